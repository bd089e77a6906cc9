package repo

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/LeventeLantos/message-sync/internal/model"
)

type MemoryMessageRepo struct {
	mu       sync.Mutex
	received []model.Message
	sent     []model.Message
	now      func() time.Time
}

func NewMemoryMessageRepo() *MemoryMessageRepo {
	return &MemoryMessageRepo{now: func() time.Time { return time.Now().UTC() }}
}

func (r *MemoryMessageRepo) ListReceived(ctx context.Context, userID string) ([]model.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return newestFirst(r.received, userID), nil
}

func (r *MemoryMessageRepo) InsertReceived(ctx context.Context, userID string, rec model.InboundRecord) (model.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.appendReceived(userID, rec), nil
}

func (r *MemoryMessageRepo) InsertReceivedIfAbsent(ctx context.Context, userID string, rec model.InboundRecord, rule model.DedupRule) (model.Message, bool, error) {
	if err := ctx.Err(); err != nil {
		return model.Message{}, false, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	for _, m := range r.received {
		if m.UserID == userID && rule.Matches(m, rec) {
			return m, false, nil
		}
	}
	return r.appendReceived(userID, rec), true, nil
}

func (r *MemoryMessageRepo) appendReceived(userID string, rec model.InboundRecord) model.Message {
	now := r.now()
	ts := now
	if rec.HasTime {
		ts = rec.Time.UTC()
	}
	m := model.Message{
		ID:        uuid.NewString(),
		UserID:    userID,
		Direction: model.Inbound,
		Address:   rec.Sender,
		Body:      rec.Body,
		Status:    model.Unread,
		Timestamp: ts,
		CreatedAt: now,
	}
	r.received = append(r.received, m)
	return m
}

func (r *MemoryMessageRepo) MarkRead(ctx context.Context, userID, id string) (model.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i := range r.received {
		if r.received[i].ID == id && r.received[i].UserID == userID {
			r.received[i].Status = model.Read
			return r.received[i], nil
		}
	}
	return model.Message{}, ErrNotFound
}

func (r *MemoryMessageRepo) MarkAllRead(ctx context.Context, userID string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := 0
	for i := range r.received {
		if r.received[i].UserID == userID && r.received[i].Status == model.Unread {
			r.received[i].Status = model.Read
			n++
		}
	}
	return n, nil
}

func (r *MemoryMessageRepo) ListSent(ctx context.Context, userID string) ([]model.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return newestFirst(r.sent, userID), nil
}

func (r *MemoryMessageRepo) InsertSent(ctx context.Context, userID string, rec model.OutboundRecord) (model.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	status := rec.Status
	if status == "" {
		status = model.Sent
	}
	now := r.now()
	m := model.Message{
		ID:        uuid.NewString(),
		UserID:    userID,
		Direction: model.Outbound,
		Address:   rec.Recipient,
		Body:      rec.Body,
		Status:    status,
		Timestamp: now,
		CreatedAt: now,
	}
	r.sent = append(r.sent, m)
	return m, nil
}

func newestFirst(all []model.Message, userID string) []model.Message {
	out := make([]model.Message, 0)
	for i := len(all) - 1; i >= 0; i-- {
		if all[i].UserID == userID {
			out = append(out, all[i])
		}
	}
	return out
}
