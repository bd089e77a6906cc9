package cache

import (
	"context"
	"sync"
	"time"

	"github.com/LeventeLantos/message-sync/internal/model"
)

// MemoryCache backs both cache interfaces when Redis is not configured.
// Entries never expire.
type MemoryCache struct {
	mu      sync.Mutex
	sent    map[string]sentValue
	reports map[string]model.SyncReport
}

func NewMemoryCache() *MemoryCache {
	return &MemoryCache{
		sent:    make(map[string]sentValue),
		reports: make(map[string]model.SyncReport),
	}
}

func (c *MemoryCache) StoreSent(ctx context.Context, messageID, remoteMessageID string, sentAt time.Time) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent[messageID] = sentValue{RemoteMessageID: remoteMessageID, SentAt: sentAt.UTC()}
	return nil
}

func (c *MemoryCache) StoreReport(ctx context.Context, userID string, report model.SyncReport) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.reports[reportKey(userID, report.Kind)] = report
	return nil
}

func (c *MemoryCache) LoadReports(ctx context.Context, userID string) ([]model.SyncReport, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]model.SyncReport, 0, len(reportKinds))
	for _, k := range reportKinds {
		if r, ok := c.reports[reportKey(userID, k)]; ok {
			out = append(out, r)
		}
	}
	return out, nil
}
