// Package syncer keeps the local received-message store in step with the
// provider inbox: a recurring poller for page 1 and a one-shot multi-page
// backfill per session.
//
// The two never lock against each other. Each relies on the store's
// check-and-insert, so interleaving is safe apart from the accepted case
// where both see a message before either commits it.
package syncer

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/LeventeLantos/message-sync/internal/cache"
	"github.com/LeventeLantos/message-sync/internal/model"
	"github.com/LeventeLantos/message-sync/internal/notify"
)

// ErrNotConfigured means the provider token or phone number is missing.
// Callers treat it as "nothing to do", not as a failure.
var ErrNotConfigured = errors.New("provider not configured")

type InboxClient interface {
	ReceivedMessages(ctx context.Context, token, phone string, page int) ([]model.InboundRecord, error)
}

type SettingsSource interface {
	Get(ctx context.Context) (model.ProviderSettings, error)
}

type ReceivedStore interface {
	InsertReceivedIfAbsent(ctx context.Context, userID string, rec model.InboundRecord, rule model.DedupRule) (model.Message, bool, error)
}

type Notifier interface {
	Notify(userID string, ev notify.Event)
}

// Deps are shared by every poller and backfill. Reports and Notifier may be
// nil.
type Deps struct {
	Client   InboxClient
	Settings SettingsSource
	Store    ReceivedStore
	Reports  cache.ReportCache
	Notifier Notifier
}

func (d Deps) settings(ctx context.Context) (model.ProviderSettings, error) {
	s, err := d.Settings.Get(ctx)
	if err != nil {
		return model.ProviderSettings{}, err
	}
	if !s.Configured() {
		return model.ProviderSettings{}, ErrNotConfigured
	}
	return s, nil
}

func (d Deps) report(ctx context.Context, userID string, r model.SyncReport) {
	if d.Reports == nil {
		return
	}
	if err := d.Reports.StoreReport(ctx, userID, r); err != nil {
		slog.Warn("store sync report failed", "user_id", userID, "kind", r.Kind, "err", err)
	}
}

func (d Deps) notify(userID string, ev notify.Event) {
	if d.Notifier != nil {
		d.Notifier.Notify(userID, ev)
	}
}

type ingestResult struct {
	inserted []model.Message
	skipped  int
	failed   int
}

// ingest stores every record with a non-blank body that rule does not find.
// An insert failure is logged and does not stop the rest of the batch.
func (d Deps) ingest(ctx context.Context, userID string, recs []model.InboundRecord, rule model.DedupRule) ingestResult {
	var res ingestResult
	for _, rec := range recs {
		if ctx.Err() != nil {
			break
		}
		if strings.TrimSpace(rec.Body) == "" {
			res.skipped++
			continue
		}

		m, created, err := d.Store.InsertReceivedIfAbsent(ctx, userID, rec, rule.For(rec))
		if err != nil {
			res.failed++
			slog.Error("store received message failed", "user_id", userID, "sender", rec.Sender, "err", err)
			continue
		}
		if !created {
			res.skipped++
			continue
		}
		res.inserted = append(res.inserted, m)
	}
	return res
}
