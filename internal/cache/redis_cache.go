package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/LeventeLantos/message-sync/internal/model"
)

type RedisCache struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewRedisCache(rdb *redis.Client, ttl time.Duration) *RedisCache {
	return &RedisCache{rdb: rdb, ttl: ttl}
}

type sentValue struct {
	RemoteMessageID string    `json:"remoteMessageId"`
	SentAt          time.Time `json:"sentAt"`
}

func (c *RedisCache) StoreSent(ctx context.Context, messageID, remoteMessageID string, sentAt time.Time) error {
	key := fmt.Sprintf("msg:%s", messageID)
	val := sentValue{
		RemoteMessageID: remoteMessageID,
		SentAt:          sentAt.UTC(),
	}

	b, err := json.Marshal(val)
	if err != nil {
		return err
	}

	return c.rdb.Set(ctx, key, b, c.ttl).Err()
}

func reportKey(userID string, kind model.SyncKind) string {
	return fmt.Sprintf("sync:%s:%s", userID, kind)
}

func (c *RedisCache) StoreReport(ctx context.Context, userID string, report model.SyncReport) error {
	b, err := json.Marshal(report)
	if err != nil {
		return err
	}
	return c.rdb.Set(ctx, reportKey(userID, report.Kind), b, c.ttl).Err()
}

func (c *RedisCache) LoadReports(ctx context.Context, userID string) ([]model.SyncReport, error) {
	keys := make([]string, 0, len(reportKinds))
	for _, k := range reportKinds {
		keys = append(keys, reportKey(userID, k))
	}

	vals, err := c.rdb.MGet(ctx, keys...).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, err
	}

	out := make([]model.SyncReport, 0, len(vals))
	for i, v := range vals {
		s, ok := v.(string)
		if !ok {
			continue
		}
		var r model.SyncReport
		if err := json.Unmarshal([]byte(s), &r); err != nil {
			return nil, fmt.Errorf("decode report %s: %w", keys[i], err)
		}
		out = append(out, r)
	}
	return out, nil
}
