// Package buffer persists postings the reading sink rejected or never
// received, so they can be replayed in order once it is reachable again.
package buffer

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/speedwagon-io/idlerguard/internal/lib/logger/sl"
	"github.com/speedwagon-io/idlerguard/internal/model"
)

// Buffer keeps envelopes the sink could not accept until a retry succeeds.
type Buffer interface {
	Store(ctx context.Context, envelope *model.Envelope) error
	GetPending(ctx context.Context, limit int) ([]*model.Envelope, error)
	MarkSent(ctx context.Context, ids []string) error
	// MarkFailed records a failed replay of id.
	MarkFailed(ctx context.Context, id string, cause error) error
	Cleanup(ctx context.Context, maxAge time.Duration) error
	Count(ctx context.Context) (int64, error)
	Close() error
}

// migrations are applied in order; PRAGMA user_version holds how many ran.
var migrations = []string{
	`CREATE TABLE IF NOT EXISTS envelopes (
		id         TEXT PRIMARY KEY,
		kind       TEXT NOT NULL,
		site_id    TEXT NOT NULL,
		sensor_key TEXT NOT NULL,
		device_id  TEXT NOT NULL,
		timestamp  TEXT NOT NULL,
		body       TEXT NOT NULL,
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_envelopes_created_at ON envelopes(created_at);`,

	`ALTER TABLE envelopes ADD COLUMN attempts INTEGER NOT NULL DEFAULT 0;
	ALTER TABLE envelopes ADD COLUMN last_error TEXT NOT NULL DEFAULT '';`,
}

const (
	upsertEnvelope = `
		INSERT INTO envelopes (id, kind, site_id, sensor_key, device_id, timestamp, body, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			kind = excluded.kind,
			site_id = excluded.site_id,
			sensor_key = excluded.sensor_key,
			device_id = excluded.device_id,
			timestamp = excluded.timestamp,
			body = excluded.body`

	selectPending = `
		SELECT id, kind, site_id, sensor_key, device_id, timestamp, body, attempts
		FROM envelopes
		ORDER BY created_at, rowid
		LIMIT ?`

	recordFailure = `UPDATE envelopes SET attempts = attempts + 1, last_error = ? WHERE id = ?`
)

type SQLiteBuffer struct {
	log *slog.Logger
	db  *sql.DB
	now func() time.Time
}

func NewSQLiteBuffer(log *slog.Logger, dbPath string) (*SQLiteBuffer, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create buffer directory: %w", err)
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open buffer database: %w", err)
	}
	// one writer keeps WAL contention out of the replay path
	db.SetMaxOpenConns(1)

	b := &SQLiteBuffer{
		log: log.With(slog.String("component", "buffer")),
		db:  db,
		now: time.Now,
	}

	if err := b.migrate(context.Background()); err != nil {
		db.Close()
		return nil, err
	}
	return b, nil
}

func (b *SQLiteBuffer) migrate(ctx context.Context) error {
	var version int
	if err := b.db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("failed to read schema version: %w", err)
	}

	for i := version; i < len(migrations); i++ {
		tx, err := b.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("failed to begin migration %d: %w", i+1, err)
		}
		if _, err := tx.ExecContext(ctx, migrations[i]); err != nil {
			tx.Rollback()
			return fmt.Errorf("migration %d failed: %w", i+1, err)
		}
		if _, err := tx.ExecContext(ctx, fmt.Sprintf("PRAGMA user_version = %d", i+1)); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to bump schema version to %d: %w", i+1, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("failed to commit migration %d: %w", i+1, err)
		}
		b.log.Debug("buffer schema migrated", slog.Int("version", i+1))
	}
	return nil
}

// Store inserts envelope. Storing an id twice replaces the body but keeps
// the original queue position.
func (b *SQLiteBuffer) Store(ctx context.Context, envelope *model.Envelope) error {
	_, err := b.db.ExecContext(ctx, upsertEnvelope,
		envelope.ID,
		envelope.Kind,
		envelope.SiteID,
		envelope.SensorKey,
		envelope.DeviceID,
		envelope.Timestamp.UTC().Format(time.RFC3339Nano),
		string(envelope.Body),
		b.now().UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("failed to store envelope %s: %w", envelope.ID, err)
	}

	b.log.Debug("envelope buffered", slog.String("id", envelope.ID), slog.String("kind", envelope.Kind))
	return nil
}

// GetPending returns up to limit envelopes, oldest first. Rows that cannot
// be decoded are logged and skipped.
func (b *SQLiteBuffer) GetPending(ctx context.Context, limit int) ([]*model.Envelope, error) {
	rows, err := b.db.QueryContext(ctx, selectPending, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query pending envelopes: %w", err)
	}
	defer rows.Close()

	var out []*model.Envelope
	for rows.Next() {
		var (
			e    model.Envelope
			ts   string
			body string
		)
		if err := rows.Scan(&e.ID, &e.Kind, &e.SiteID, &e.SensorKey, &e.DeviceID, &ts, &body, &e.Attempts); err != nil {
			b.log.Error("skipping unreadable envelope row", sl.Err(err))
			continue
		}
		if e.Timestamp, err = time.Parse(time.RFC3339Nano, ts); err != nil {
			b.log.Error("skipping envelope with bad timestamp", slog.String("id", e.ID), sl.Err(err))
			continue
		}
		e.Body = []byte(body)
		out = append(out, &e)
	}

	return out, rows.Err()
}

// MarkSent removes delivered envelopes.
func (b *SQLiteBuffer) MarkSent(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	query := "DELETE FROM envelopes WHERE id IN (?" + strings.Repeat(",?", len(ids)-1) + ")"

	res, err := b.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to delete sent envelopes: %w", err)
	}

	n, _ := res.RowsAffected()
	b.log.Debug("sent envelopes removed", slog.Int64("count", n))
	return nil
}

func (b *SQLiteBuffer) MarkFailed(ctx context.Context, id string, cause error) error {
	msg := ""
	if cause != nil {
		msg = cause.Error()
	}
	if _, err := b.db.ExecContext(ctx, recordFailure, msg, id); err != nil {
		return fmt.Errorf("failed to record replay failure for %s: %w", id, err)
	}
	return nil
}

// Cleanup drops envelopes buffered more than maxAge ago, delivered or not.
func (b *SQLiteBuffer) Cleanup(ctx context.Context, maxAge time.Duration) error {
	cutoff := b.now().Add(-maxAge).UnixNano()

	res, err := b.db.ExecContext(ctx, "DELETE FROM envelopes WHERE created_at < ?", cutoff)
	if err != nil {
		return fmt.Errorf("failed to clean up expired envelopes: %w", err)
	}

	if n, _ := res.RowsAffected(); n > 0 {
		b.log.Warn("expired envelopes dropped", slog.Int64("count", n), slog.Duration("max_age", maxAge))
	}
	return nil
}

func (b *SQLiteBuffer) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := b.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM envelopes").Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count envelopes: %w", err)
	}
	return n, nil
}

func (b *SQLiteBuffer) Close() error {
	return b.db.Close()
}
