package repo

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
)

const schema = `
CREATE TABLE IF NOT EXISTS received_messages (
	seq          BIGSERIAL,
	id           TEXT PRIMARY KEY,
	user_id      TEXT NOT NULL,
	sender       TEXT NOT NULL,
	message      TEXT NOT NULL,
	status       TEXT NOT NULL DEFAULT 'unread',
	message_time TIMESTAMPTZ NOT NULL,
	created_at   TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS received_messages_dedup_idx
	ON received_messages (user_id, sender, message);

CREATE TABLE IF NOT EXISTS sent_messages (
	seq          BIGSERIAL,
	id           TEXT PRIMARY KEY,
	user_id      TEXT NOT NULL,
	recipient    TEXT NOT NULL,
	message      TEXT NOT NULL,
	status       TEXT NOT NULL DEFAULT 'sent',
	message_time TIMESTAMPTZ NOT NULL,
	created_at   TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS sent_messages_user_idx
	ON sent_messages (user_id, created_at DESC);

CREATE TABLE IF NOT EXISTS whatsapp_settings (
	id            SMALLINT PRIMARY KEY DEFAULT 1 CHECK (id = 1),
	token         TEXT NOT NULL DEFAULT '',
	phone_number  TEXT NOT NULL DEFAULT '',
	is_enabled    BOOLEAN NOT NULL DEFAULT false,
	notifications TEXT[] NOT NULL DEFAULT '{}',
	updated_at    TIMESTAMPTZ NOT NULL DEFAULT now()
);
`

// OpenPostgres opens a pgx-backed database/sql pool and makes sure the tables
// this service writes to exist.
func OpenPostgres(ctx context.Context, url string) (*sql.DB, error) {
	db, err := sql.Open("pgx", url)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetConnMaxIdleTime(5 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ensure schema: %w", err)
	}
	return db, nil
}
