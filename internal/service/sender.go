package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/LeventeLantos/message-sync/internal/cache"
	"github.com/LeventeLantos/message-sync/internal/client"
	"github.com/LeventeLantos/message-sync/internal/inbox"
	"github.com/LeventeLantos/message-sync/internal/model"
	"github.com/LeventeLantos/message-sync/internal/syncer"
)

var (
	// ErrNotConfigured is shared with the syncer. For a send it means no
	// provider token is set, and it is reported to the caller.
	ErrNotConfigured = syncer.ErrNotConfigured

	ErrInvalidMessage = errors.New("invalid message")
)

type SendClient interface {
	Send(ctx context.Context, token string, req client.SendRequest) (remoteMessageID string, err error)
}

type SettingsSource interface {
	Get(ctx context.Context) (model.ProviderSettings, error)
}

type SentStore interface {
	InsertSent(ctx context.Context, userID string, rec model.OutboundRecord) (model.Message, error)
}

type SendRequest struct {
	Recipient string `json:"recipient"`
	Message   string `json:"message"`
	Link      string `json:"link,omitempty"`
}

// Sender delivers one outbound message through the provider and records the
// outcome, successful or not, in the sent store.
type Sender struct {
	client     SendClient
	settings   SettingsSource
	store      SentStore
	cache      cache.MessageCache
	contentMax int
}

func NewSender(c SendClient, settings SettingsSource, store SentStore, contentMax int) *Sender {
	return &Sender{
		client:     c,
		settings:   settings,
		store:      store,
		contentMax: contentMax,
	}
}

// WithCache records the provider id of every delivered message.
func (s *Sender) WithCache(c cache.MessageCache) *Sender {
	s.cache = c
	return s
}

func (s *Sender) Send(ctx context.Context, userID string, req SendRequest) (model.Message, error) {
	recipient := strings.TrimSpace(req.Recipient)
	if inbox.DigitsOnly(recipient) == "" {
		return model.Message{}, fmt.Errorf("%w: recipient is required", ErrInvalidMessage)
	}
	if strings.TrimSpace(req.Message) == "" {
		return model.Message{}, fmt.Errorf("%w: message is required", ErrInvalidMessage)
	}
	if s.contentMax > 0 && utf8.RuneCountInString(req.Message) > s.contentMax {
		return model.Message{}, fmt.Errorf("%w: content exceeds %d chars", ErrInvalidMessage, s.contentMax)
	}

	settings, err := s.settings.Get(ctx)
	if err != nil {
		return model.Message{}, fmt.Errorf("load settings: %w", err)
	}
	// The sender number is bound to the token, so sending needs only the token.
	if strings.TrimSpace(settings.Token) == "" {
		return model.Message{}, ErrNotConfigured
	}

	link := strings.TrimSpace(req.Link)
	body := req.Message
	if link != "" {
		body += "\n\nAttachment: " + link
	}

	remoteID, sendErr := s.client.Send(ctx, settings.Token, client.SendRequest{
		Recipient: inbox.DigitsOnly(recipient),
		Message:   req.Message,
		Link:      link,
	})

	status := model.Sent
	if sendErr != nil {
		status = model.Failed
	}

	m, err := s.store.InsertSent(ctx, userID, model.OutboundRecord{
		Recipient: recipient,
		Body:      body,
		Status:    status,
	})
	if err != nil {
		if sendErr != nil {
			return model.Message{}, errors.Join(fmt.Errorf("send message: %w", sendErr), fmt.Errorf("store sent message: %w", err))
		}
		return model.Message{}, fmt.Errorf("store sent message: %w", err)
	}

	if sendErr != nil {
		slog.Warn("send message failed", "user_id", userID, "message_id", m.ID, "err", sendErr)
		return m, fmt.Errorf("send message: %w", sendErr)
	}

	if s.cache != nil {
		if err := s.cache.StoreSent(ctx, m.ID, remoteID, time.Now().UTC()); err != nil {
			slog.Warn("cache sent message failed", "message_id", m.ID, "err", err)
		}
	}

	slog.Info("message sent", "user_id", userID, "message_id", m.ID, "remote_message_id", remoteID)
	return m, nil
}
