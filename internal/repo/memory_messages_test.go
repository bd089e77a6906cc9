package repo

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/LeventeLantos/message-sync/internal/model"
)

func newTestRepo(now time.Time) *MemoryMessageRepo {
	r := NewMemoryMessageRepo()
	r.now = func() time.Time { return now }
	return r
}

func TestMemoryRepo_InsertReceivedDefaultsToUnread(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	r := newTestRepo(now)

	m, err := r.InsertReceived(context.Background(), "u1", model.InboundRecord{Sender: "0912", Body: "hi"})
	if err != nil {
		t.Fatalf("InsertReceived() error: %v", err)
	}
	if m.ID == "" {
		t.Fatalf("expected an id to be assigned")
	}
	if m.Status != model.Unread {
		t.Fatalf("expected status unread, got %q", m.Status)
	}
	if !m.CreatedAt.Equal(now) || !m.Timestamp.Equal(now) {
		t.Fatalf("expected server timestamps, got ts=%v created=%v", m.Timestamp, m.CreatedAt)
	}
}

func TestMemoryRepo_InsertReceivedKeepsProviderTime(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	provider := now.Add(-time.Hour)
	r := newTestRepo(now)

	m, err := r.InsertReceived(context.Background(), "u1", model.InboundRecord{Sender: "0912", Body: "hi", Time: provider, HasTime: true})
	if err != nil {
		t.Fatalf("InsertReceived() error: %v", err)
	}
	if !m.Timestamp.Equal(provider) {
		t.Fatalf("expected provider time %v, got %v", provider, m.Timestamp)
	}
	if !m.CreatedAt.Equal(now) {
		t.Fatalf("expected created at %v, got %v", now, m.CreatedAt)
	}
}

func TestMemoryRepo_ListReceivedNewestFirstPerUser(t *testing.T) {
	t.Parallel()

	r := NewMemoryMessageRepo()
	ctx := context.Background()

	for _, body := range []string{"one", "two", "three"} {
		if _, err := r.InsertReceived(ctx, "u1", model.InboundRecord{Sender: "a", Body: body}); err != nil {
			t.Fatalf("InsertReceived() error: %v", err)
		}
	}
	if _, err := r.InsertReceived(ctx, "u2", model.InboundRecord{Sender: "a", Body: "other"}); err != nil {
		t.Fatalf("InsertReceived() error: %v", err)
	}

	got, err := r.ListReceived(ctx, "u1")
	if err != nil {
		t.Fatalf("ListReceived() error: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("expected 3 messages, got %d", len(got))
	}
	if got[0].Body != "three" || got[2].Body != "one" {
		t.Fatalf("expected newest first, got %q..%q", got[0].Body, got[2].Body)
	}

	empty, err := r.ListReceived(ctx, "nobody")
	if err != nil {
		t.Fatalf("ListReceived() error: %v", err)
	}
	if empty == nil || len(empty) != 0 {
		t.Fatalf("expected empty non-nil slice, got %#v", empty)
	}
}

func TestMemoryRepo_InsertReceivedIfAbsent(t *testing.T) {
	t.Parallel()

	base := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	r := newTestRepo(base)
	ctx := context.Background()
	strict := model.Strict(5 * time.Minute)

	rec := model.InboundRecord{Sender: "0912", Body: "hi", Time: base, HasTime: true}
	if _, created, err := r.InsertReceivedIfAbsent(ctx, "u1", rec, strict); err != nil || !created {
		t.Fatalf("first insert: created=%v err=%v", created, err)
	}
	if _, created, err := r.InsertReceivedIfAbsent(ctx, "u1", rec, strict); err != nil || created {
		t.Fatalf("second insert should be deduplicated: created=%v err=%v", created, err)
	}

	later := rec
	later.Time = base.Add(10 * time.Minute)
	if _, created, _ := r.InsertReceivedIfAbsent(ctx, "u1", later, strict); !created {
		t.Fatalf("expected strict rule to insert beyond the window")
	}

	muchLater := rec
	muchLater.Time = base.Add(48 * time.Hour)
	if _, created, _ := r.InsertReceivedIfAbsent(ctx, "u1", muchLater, model.Relaxed()); created {
		t.Fatalf("expected relaxed rule to treat same address/body as duplicate")
	}

	if _, created, _ := r.InsertReceivedIfAbsent(ctx, "u2", rec, strict); !created {
		t.Fatalf("expected dedup to be scoped per user")
	}
}

func TestMemoryRepo_InsertReceivedIfAbsent_ConcurrentCallersInsertOnce(t *testing.T) {
	t.Parallel()

	r := NewMemoryMessageRepo()
	ctx := context.Background()
	rec := model.InboundRecord{Sender: "0912", Body: "race"}

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _, _ = r.InsertReceivedIfAbsent(ctx, "u1", rec, model.Relaxed())
		}()
	}
	wg.Wait()

	got, _ := r.ListReceived(ctx, "u1")
	if len(got) != 1 {
		t.Fatalf("expected exactly one message, got %d", len(got))
	}
}

func TestMemoryRepo_MarkReadIsIdempotent(t *testing.T) {
	t.Parallel()

	r := NewMemoryMessageRepo()
	ctx := context.Background()

	m, _ := r.InsertReceived(ctx, "u1", model.InboundRecord{Sender: "0912", Body: "hi"})

	first, err := r.MarkRead(ctx, "u1", m.ID)
	if err != nil {
		t.Fatalf("MarkRead() error: %v", err)
	}
	second, err := r.MarkRead(ctx, "u1", m.ID)
	if err != nil {
		t.Fatalf("second MarkRead() error: %v", err)
	}
	if first != second || second.Status != model.Read {
		t.Fatalf("expected identical read state, got %+v vs %+v", first, second)
	}

	list, _ := r.ListReceived(ctx, "u1")
	if list[0].Status != model.Read {
		t.Fatalf("expected list to reflect read status, got %q", list[0].Status)
	}
}

func TestMemoryRepo_MarkReadNotFound(t *testing.T) {
	t.Parallel()

	r := NewMemoryMessageRepo()
	ctx := context.Background()
	m, _ := r.InsertReceived(ctx, "u1", model.InboundRecord{Sender: "0912", Body: "hi"})

	if _, err := r.MarkRead(ctx, "u1", "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if _, err := r.MarkRead(ctx, "u2", m.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for another user's message, got %v", err)
	}
}

func TestMemoryRepo_MarkAllRead(t *testing.T) {
	t.Parallel()

	r := NewMemoryMessageRepo()
	ctx := context.Background()
	for _, body := range []string{"a", "b", "c"} {
		_, _ = r.InsertReceived(ctx, "u1", model.InboundRecord{Sender: "x", Body: body})
	}
	_, _ = r.InsertReceived(ctx, "u2", model.InboundRecord{Sender: "x", Body: "d"})

	n, err := r.MarkAllRead(ctx, "u1")
	if err != nil {
		t.Fatalf("MarkAllRead() error: %v", err)
	}
	if n != 3 {
		t.Fatalf("expected 3 updated, got %d", n)
	}
	if n, _ := r.MarkAllRead(ctx, "u1"); n != 0 {
		t.Fatalf("expected nothing left to mark, got %d", n)
	}

	other, _ := r.ListReceived(ctx, "u2")
	if other[0].Status != model.Unread {
		t.Fatalf("expected other user's message untouched")
	}
}

func TestMemoryRepo_Sent(t *testing.T) {
	t.Parallel()

	r := NewMemoryMessageRepo()
	ctx := context.Background()

	m, err := r.InsertSent(ctx, "u1", model.OutboundRecord{Recipient: "0912", Body: "hello"})
	if err != nil {
		t.Fatalf("InsertSent() error: %v", err)
	}
	if m.Status != model.Sent || m.Direction != model.Outbound {
		t.Fatalf("unexpected sent message: %+v", m)
	}

	if _, err := r.InsertSent(ctx, "u1", model.OutboundRecord{Recipient: "0912", Body: "oops", Status: model.Failed}); err != nil {
		t.Fatalf("InsertSent() error: %v", err)
	}

	list, _ := r.ListSent(ctx, "u1")
	if len(list) != 2 || list[0].Status != model.Failed {
		t.Fatalf("expected newest failed message first, got %+v", list)
	}
}

func TestMemorySettingsRepo(t *testing.T) {
	t.Parallel()

	r := NewMemorySettingsRepo()
	ctx := context.Background()

	s, err := r.Get(ctx)
	if err != nil {
		t.Fatalf("Get() error: %v", err)
	}
	if s.Configured() {
		t.Fatalf("expected empty settings to be unconfigured")
	}

	saved, err := r.Put(ctx, model.ProviderSettings{Token: "tok", PhoneNumber: "+98912", Notifications: []string{"new_message"}})
	if err != nil {
		t.Fatalf("Put() error: %v", err)
	}
	if saved.UpdatedAt.IsZero() {
		t.Fatalf("expected UpdatedAt to be set")
	}

	got, _ := r.Get(ctx)
	if !got.Configured() || got.Token != "tok" || len(got.Notifications) != 1 {
		t.Fatalf("unexpected settings: %+v", got)
	}
}
