package repo

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/LeventeLantos/message-sync/internal/model"
)

type PostgresMessageRepo struct {
	db *sql.DB
}

func NewPostgresMessageRepo(db *sql.DB) *PostgresMessageRepo {
	return &PostgresMessageRepo{db: db}
}

const receivedColumns = `id, user_id, sender, message, status, message_time, created_at`

func (r *PostgresMessageRepo) ListReceived(ctx context.Context, userID string) ([]model.Message, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+receivedColumns+`
		FROM received_messages
		WHERE user_id = $1
		ORDER BY created_at DESC, seq DESC
	`, userID)
	if err != nil {
		return nil, err
	}
	return scanMessages(rows, model.Inbound)
}

func (r *PostgresMessageRepo) InsertReceived(ctx context.Context, userID string, rec model.InboundRecord) (model.Message, error) {
	now := time.Now().UTC()
	row := r.db.QueryRowContext(ctx, `
		INSERT INTO received_messages (id, user_id, sender, message, status, message_time, created_at)
		VALUES ($1, $2, $3, $4, 'unread', $5, $6)
		RETURNING `+receivedColumns,
		uuid.NewString(), userID, rec.Sender, rec.Body, inboundTime(rec, now), now,
	)
	return scanMessage(row, model.Inbound)
}

// InsertReceivedIfAbsent runs the existence check and the insert as one
// statement. Two concurrent callers can still both insert under READ
// COMMITTED; that narrow window is accepted.
func (r *PostgresMessageRepo) InsertReceivedIfAbsent(ctx context.Context, userID string, rec model.InboundRecord, rule model.DedupRule) (model.Message, bool, error) {
	now := time.Now().UTC()
	row := r.db.QueryRowContext(ctx, `
		INSERT INTO received_messages (id, user_id, sender, message, status, message_time, created_at)
		SELECT $1::text, $2::text, $3::text, $4::text, 'unread', $5::timestamptz, $6::timestamptz
		WHERE NOT EXISTS (
			SELECT 1
			FROM received_messages
			WHERE user_id = $2::text
			  AND sender = $3::text
			  AND message = $4::text
			  AND ($7::bigint <= 0
			       OR abs(extract(epoch FROM (message_time - $5::timestamptz))) * 1000000 < $7::bigint)
		)
		RETURNING `+receivedColumns,
		uuid.NewString(), userID, rec.Sender, rec.Body, inboundTime(rec, now), now, toleranceMicros(rule),
	)

	m, err := scanMessage(row, model.Inbound)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Message{}, false, nil
	}
	if err != nil {
		return model.Message{}, false, err
	}
	return m, true, nil
}

func (r *PostgresMessageRepo) MarkRead(ctx context.Context, userID, id string) (model.Message, error) {
	row := r.db.QueryRowContext(ctx, `
		UPDATE received_messages
		SET status = 'read'
		WHERE id = $1 AND user_id = $2
		RETURNING `+receivedColumns,
		id, userID,
	)
	m, err := scanMessage(row, model.Inbound)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Message{}, ErrNotFound
	}
	return m, err
}

func (r *PostgresMessageRepo) MarkAllRead(ctx context.Context, userID string) (int, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE received_messages
		SET status = 'read'
		WHERE user_id = $1 AND status = 'unread'
	`, userID)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}

const sentColumns = `id, user_id, recipient, message, status, message_time, created_at`

func (r *PostgresMessageRepo) ListSent(ctx context.Context, userID string) ([]model.Message, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+sentColumns+`
		FROM sent_messages
		WHERE user_id = $1
		ORDER BY created_at DESC, seq DESC
	`, userID)
	if err != nil {
		return nil, err
	}
	return scanMessages(rows, model.Outbound)
}

func (r *PostgresMessageRepo) InsertSent(ctx context.Context, userID string, rec model.OutboundRecord) (model.Message, error) {
	status := rec.Status
	if status == "" {
		status = model.Sent
	}
	now := time.Now().UTC()
	row := r.db.QueryRowContext(ctx, `
		INSERT INTO sent_messages (id, user_id, recipient, message, status, message_time, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $6)
		RETURNING `+sentColumns,
		uuid.NewString(), userID, rec.Recipient, rec.Body, string(status), now,
	)
	return scanMessage(row, model.Outbound)
}

// toleranceMicros is the $7 argument of the dedup insert: 0 disables the time
// comparison, anything else is the strict window in microseconds, the
// resolution of timestamptz. A strict window below one microsecond still
// compares times.
func toleranceMicros(rule model.DedupRule) int64 {
	if rule.IsRelaxed() {
		return 0
	}
	return max(rule.Tolerance.Microseconds(), 1)
}

func inboundTime(rec model.InboundRecord, now time.Time) time.Time {
	if rec.HasTime {
		return rec.Time.UTC()
	}
	return now
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMessage(row rowScanner, dir model.Direction) (model.Message, error) {
	var m model.Message
	var status string
	if err := row.Scan(
		&m.ID,
		&m.UserID,
		&m.Address,
		&m.Body,
		&status,
		&m.Timestamp,
		&m.CreatedAt,
	); err != nil {
		return model.Message{}, err
	}
	m.Status = model.Status(status)
	m.Direction = dir
	m.Timestamp = m.Timestamp.UTC()
	m.CreatedAt = m.CreatedAt.UTC()
	return m, nil
}

func scanMessages(rows *sql.Rows, dir model.Direction) ([]model.Message, error) {
	defer rows.Close()

	out := make([]model.Message, 0)
	for rows.Next() {
		m, err := scanMessage(rows, dir)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}
