package syncer

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"time"

	"github.com/LeventeLantos/message-sync/internal/model"
	"github.com/LeventeLantos/message-sync/internal/notify"
)

const (
	DefaultBackfillDelay = 3 * time.Second
	DefaultMaxPages      = 5
	DefaultPageDelay     = 200 * time.Millisecond
)

// Backfill reads up to maxPages inbox pages once and stores what the
// poller's single page would miss.
type Backfill struct {
	deps      Deps
	userID    string
	maxPages  int
	pageDelay time.Duration
}

func NewBackfill(deps Deps, userID string, maxPages int, pageDelay time.Duration) *Backfill {
	if maxPages <= 0 {
		maxPages = DefaultMaxPages
	}
	if pageDelay < 0 {
		pageDelay = 0
	}
	return &Backfill{deps: deps, userID: userID, maxPages: maxPages, pageDelay: pageDelay}
}

// Run fetches pages in order until one is empty, one fails, or maxPages is
// reached, then inserts the collected records oldest first using the
// relaxed rule. A failed page ends fetching but what was collected before it
// is still stored.
func (b *Backfill) Run(ctx context.Context) (model.SyncReport, error) {
	report := model.SyncReport{Kind: model.BackfillSync, StartedAt: time.Now().UTC()}

	s, err := b.deps.settings(ctx)
	if err != nil {
		return report, err
	}

	var (
		all      []model.InboundRecord
		fetchErr error
	)
	for page := 1; page <= b.maxPages; page++ {
		if page > 1 && b.pageDelay > 0 {
			if err := sleep(ctx, b.pageDelay); err != nil {
				return report, err
			}
		}

		report.Requests++
		recs, err := b.deps.Client.ReceivedMessages(ctx, s.Token, s.PhoneNumber, page)
		if err != nil {
			if ctx.Err() != nil {
				return report, ctx.Err()
			}
			fetchErr = err
			slog.Warn("backfill page failed", "user_id", b.userID, "page", page, "err", err)
			break
		}
		if len(recs) == 0 {
			slog.Debug("backfill reached empty page", "user_id", b.userID, "page", page)
			break
		}

		report.Pages++
		all = append(all, recs...)
	}
	report.Fetched = len(all)

	sortOldestFirst(all)

	res := b.deps.ingest(ctx, b.userID, all, model.Relaxed())
	report.Inserted = len(res.inserted)
	report.Skipped = res.skipped
	report.Failed = res.failed
	report.FinishedAt = time.Now().UTC()
	if fetchErr != nil {
		report.Error = fetchErr.Error()
	}

	if err := ctx.Err(); err != nil {
		return report, err
	}
	return report, fetchErr
}

// Execute adapts Run to a delayed one-shot task: it logs, stores the report
// and sends the single summary notification. Failures are never surfaced to
// the user.
func (b *Backfill) Execute(ctx context.Context) {
	report, err := b.Run(ctx)
	switch {
	case errors.Is(err, ErrNotConfigured):
		return
	case ctx.Err() != nil:
		slog.Info("backfill cancelled", "user_id", b.userID, "inserted", report.Inserted)
		return
	case err != nil:
		slog.Warn("backfill ended early", "user_id", b.userID, "pages", report.Pages, "inserted", report.Inserted, "err", err)
	default:
		slog.Info("backfill completed", "user_id", b.userID, "pages", report.Pages, "fetched", report.Fetched, "inserted", report.Inserted)
	}

	b.deps.report(ctx, b.userID, report)
	if report.Fetched > 0 {
		b.deps.notify(b.userID, notify.Event{Type: notify.BackfillCompleted, Count: report.Inserted})
	}
}

// sortOldestFirst orders by provider time; records without one sort first.
func sortOldestFirst(recs []model.InboundRecord) {
	key := func(r model.InboundRecord) time.Time {
		if !r.HasTime {
			return time.Time{}
		}
		return r.Time
	}
	sort.SliceStable(recs, func(i, j int) bool {
		return key(recs[i]).Before(key(recs[j]))
	})
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
