package repo

import (
	"context"
	"database/sql"
	"errors"
	"slices"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgtype"

	"github.com/LeventeLantos/message-sync/internal/model"
)

type MemorySettingsRepo struct {
	mu       sync.RWMutex
	settings model.ProviderSettings
}

func NewMemorySettingsRepo() *MemorySettingsRepo {
	return &MemorySettingsRepo{}
}

func (r *MemorySettingsRepo) Get(ctx context.Context) (model.ProviderSettings, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s := r.settings
	s.Notifications = slices.Clone(s.Notifications)
	return s, nil
}

func (r *MemorySettingsRepo) Put(ctx context.Context, s model.ProviderSettings) (model.ProviderSettings, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s.Notifications = slices.Clone(s.Notifications)
	s.UpdatedAt = time.Now().UTC()
	r.settings = s
	return s, nil
}

type PostgresSettingsRepo struct {
	db    *sql.DB
	types *pgtype.Map
}

func NewPostgresSettingsRepo(db *sql.DB) *PostgresSettingsRepo {
	return &PostgresSettingsRepo{db: db, types: pgtype.NewMap()}
}

// Get returns the zero settings when nothing has been saved yet.
func (r *PostgresSettingsRepo) Get(ctx context.Context) (model.ProviderSettings, error) {
	var s model.ProviderSettings
	err := r.db.QueryRowContext(ctx, `
		SELECT token, phone_number, is_enabled, notifications, updated_at
		FROM whatsapp_settings
		WHERE id = 1
	`).Scan(&s.Token, &s.PhoneNumber, &s.Enabled, r.types.SQLScanner(&s.Notifications), &s.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return model.ProviderSettings{}, nil
	}
	return s, err
}

func (r *PostgresSettingsRepo) Put(ctx context.Context, s model.ProviderSettings) (model.ProviderSettings, error) {
	notifications := s.Notifications
	if notifications == nil {
		notifications = []string{}
	}

	var out model.ProviderSettings
	err := r.db.QueryRowContext(ctx, `
		INSERT INTO whatsapp_settings (id, token, phone_number, is_enabled, notifications, updated_at)
		VALUES (1, $1, $2, $3, $4, now())
		ON CONFLICT (id) DO UPDATE
		SET token = EXCLUDED.token,
		    phone_number = EXCLUDED.phone_number,
		    is_enabled = EXCLUDED.is_enabled,
		    notifications = EXCLUDED.notifications,
		    updated_at = EXCLUDED.updated_at
		RETURNING token, phone_number, is_enabled, notifications, updated_at
	`, s.Token, s.PhoneNumber, s.Enabled, notifications).
		Scan(&out.Token, &out.PhoneNumber, &out.Enabled, r.types.SQLScanner(&out.Notifications), &out.UpdatedAt)
	return out, err
}
