package syncer_test

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/LeventeLantos/message-sync/internal/model"
	"github.com/LeventeLantos/message-sync/internal/notify"
	"github.com/LeventeLantos/message-sync/internal/repo"
)

var t0 = time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)

type fakeInbox struct {
	mu       sync.Mutex
	pages    map[int][]model.InboundRecord
	errs     map[int]error
	requests []int
	tokens   []string
}

func newFakeInbox() *fakeInbox {
	return &fakeInbox{
		pages: make(map[int][]model.InboundRecord),
		errs:  make(map[int]error),
	}
}

func (f *fakeInbox) setPage(page int, recs ...model.InboundRecord) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pages[page] = recs
}

func (f *fakeInbox) failPage(page int, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.errs[page] = err
}

func (f *fakeInbox) ReceivedMessages(ctx context.Context, token, phone string, page int) ([]model.InboundRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.requests = append(f.requests, page)
	f.tokens = append(f.tokens, token)
	if err := f.errs[page]; err != nil {
		return nil, err
	}
	return append([]model.InboundRecord(nil), f.pages[page]...), nil
}

func (f *fakeInbox) requested() []int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]int(nil), f.requests...)
}

type fakeNotifier struct {
	mu     sync.Mutex
	events []notify.Event
}

func (n *fakeNotifier) Notify(userID string, ev notify.Event) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, ev)
}

func (n *fakeNotifier) all() []notify.Event {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]notify.Event(nil), n.events...)
}

// flakyStore fails inserts for one body and delegates the rest.
type flakyStore struct {
	*repo.MemoryMessageRepo
	failBody string
}

func (s *flakyStore) InsertReceivedIfAbsent(ctx context.Context, userID string, rec model.InboundRecord, rule model.DedupRule) (model.Message, bool, error) {
	if rec.Body == s.failBody {
		return model.Message{}, false, errors.New("insert failed")
	}
	return s.MemoryMessageRepo.InsertReceivedIfAbsent(ctx, userID, rec, rule)
}

func configuredSettings() *repo.MemorySettingsRepo {
	s := repo.NewMemorySettingsRepo()
	_, _ = s.Put(context.Background(), model.ProviderSettings{Token: "tok", PhoneNumber: "+98 912 000 0000", Enabled: true})
	return s
}

func rec(sender, body string, at time.Time) model.InboundRecord {
	return model.InboundRecord{Sender: sender, Body: body, Time: at, HasTime: true}
}
