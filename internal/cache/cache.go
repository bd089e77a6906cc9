package cache

import (
	"context"
	"time"

	"github.com/LeventeLantos/message-sync/internal/model"
)

type MessageCache interface {
	StoreSent(ctx context.Context, messageID, remoteMessageID string, sentAt time.Time) error
}

// ReportCache keeps the latest sync report of each kind per user.
type ReportCache interface {
	StoreReport(ctx context.Context, userID string, report model.SyncReport) error
	LoadReports(ctx context.Context, userID string) ([]model.SyncReport, error)
}

var reportKinds = []model.SyncKind{model.PollSync, model.BackfillSync}
