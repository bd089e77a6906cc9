package syncer

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/LeventeLantos/message-sync/internal/model"
	"github.com/LeventeLantos/message-sync/internal/notify"
)

const (
	DefaultPollInterval = 5 * time.Second
	DefaultTolerance    = 5 * time.Minute
)

// Poller checks page 1 of the provider inbox for one user.
type Poller struct {
	deps   Deps
	userID string
	rule   model.DedupRule
}

func NewPoller(deps Deps, userID string, tolerance time.Duration) *Poller {
	if tolerance <= 0 {
		tolerance = DefaultTolerance
	}
	return &Poller{deps: deps, userID: userID, rule: model.Strict(tolerance)}
}

// Poll runs one tick. It returns ErrNotConfigured without touching the
// provider when settings are incomplete.
func (p *Poller) Poll(ctx context.Context) (model.SyncReport, error) {
	report := model.SyncReport{Kind: model.PollSync, StartedAt: time.Now().UTC()}

	s, err := p.deps.settings(ctx)
	if err != nil {
		return report, err
	}

	report.Requests = 1
	recs, err := p.deps.Client.ReceivedMessages(ctx, s.Token, s.PhoneNumber, 1)
	if err != nil {
		report.Error = err.Error()
		report.FinishedAt = time.Now().UTC()
		return report, err
	}
	if len(recs) > 0 {
		report.Pages = 1
	}
	report.Fetched = len(recs)

	res := p.deps.ingest(ctx, p.userID, recs, p.rule)
	report.Inserted = len(res.inserted)
	report.Skipped = res.skipped
	report.Failed = res.failed
	report.FinishedAt = time.Now().UTC()

	for i := range res.inserted {
		p.deps.notify(p.userID, notify.Event{Type: notify.MessageReceived, Message: &res.inserted[i]})
	}
	return report, nil
}

// Tick adapts Poll to the scheduler. Failures are logged and the next tick
// starts from scratch.
func (p *Poller) Tick(ctx context.Context) {
	report, err := p.Poll(ctx)
	switch {
	case errors.Is(err, ErrNotConfigured):
		return
	case ctx.Err() != nil:
		return
	case err != nil:
		slog.Warn("inbox poll failed", "user_id", p.userID, "err", err)
	case report.Inserted > 0:
		slog.Info("inbox poll stored new messages", "user_id", p.userID, "inserted", report.Inserted, "fetched", report.Fetched)
	}
	p.deps.report(ctx, p.userID, report)
}
