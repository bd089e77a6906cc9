package repo

import (
	"context"
	"errors"

	"github.com/LeventeLantos/message-sync/internal/model"
)

var ErrNotFound = errors.New("not found")

// MessageRepository is the local message store. Received messages are
// append-only apart from their read status; nothing here deletes.
type MessageRepository interface {
	ListReceived(ctx context.Context, userID string) ([]model.Message, error)
	InsertReceived(ctx context.Context, userID string, rec model.InboundRecord) (model.Message, error)
	// InsertReceivedIfAbsent stores rec unless a message matching rule is
	// already present. The bool reports whether a row was created.
	InsertReceivedIfAbsent(ctx context.Context, userID string, rec model.InboundRecord, rule model.DedupRule) (model.Message, bool, error)
	MarkRead(ctx context.Context, userID, id string) (model.Message, error)
	MarkAllRead(ctx context.Context, userID string) (int, error)

	ListSent(ctx context.Context, userID string) ([]model.Message, error)
	InsertSent(ctx context.Context, userID string, rec model.OutboundRecord) (model.Message, error)
}

// SettingsRepository holds the single provider settings record.
type SettingsRepository interface {
	Get(ctx context.Context) (model.ProviderSettings, error)
	Put(ctx context.Context, s model.ProviderSettings) (model.ProviderSettings, error)
}
