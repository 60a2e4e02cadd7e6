package safety

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // Pure Go SQLite driver
)

// SQLiteRecorder persists audit events to a SQLite database.
type SQLiteRecorder struct {
	db *sql.DB
}

// OpenSQLiteRecorder opens (or creates) the audit database at path.
// An empty path opens an in-memory database.
func OpenSQLiteRecorder(path string) (*SQLiteRecorder, error) {
	dsn := path
	if path == "" {
		dsn = ":memory:"
	} else if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create audit dir: %w", err)
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open audit database: %w", err)
	}
	// A single connection keeps :memory: databases alive and serializes writes.
	db.SetMaxOpenConns(1)

	r := &SQLiteRecorder{db: db}
	if err := r.init(); err != nil {
		db.Close()
		return nil, err
	}
	return r, nil
}

func (r *SQLiteRecorder) init() error {
	_, err := r.db.Exec(`
		CREATE TABLE IF NOT EXISTS audit_events (
			id TEXT PRIMARY KEY,
			recorded_at INTEGER NOT NULL,
			subject TEXT NOT NULL,
			action TEXT NOT NULL,
			result TEXT NOT NULL,
			detail TEXT
		)
	`)
	if err != nil {
		return fmt.Errorf("create audit table: %w", err)
	}
	_, err = r.db.Exec(`CREATE INDEX IF NOT EXISTS idx_audit_recorded_at ON audit_events(recorded_at)`)
	if err != nil {
		return fmt.Errorf("create audit index: %w", err)
	}
	return nil
}

func (r *SQLiteRecorder) Record(event AuditEvent) error {
	if r == nil || r.db == nil {
		return errors.New("audit database is closed")
	}
	if event.Time.IsZero() {
		event.Time = time.Now().UTC()
	}
	_, err := r.db.Exec(
		`INSERT INTO audit_events (id, recorded_at, subject, action, result, detail) VALUES (?, ?, ?, ?, ?, ?)`,
		event.ID, event.Time.UnixNano(), event.Subject, event.Action, event.Result, event.Detail,
	)
	if err != nil {
		return fmt.Errorf("insert audit event: %w", err)
	}
	return nil
}

// Recent returns up to limit events, newest first. A limit of 0 or less returns all.
func (r *SQLiteRecorder) Recent(ctx context.Context, limit int) ([]AuditEvent, error) {
	query := `SELECT id, recorded_at, subject, action, result, COALESCE(detail, '') FROM audit_events ORDER BY recorded_at DESC, rowid DESC`
	var args []any
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query audit events: %w", err)
	}
	defer rows.Close()

	var events []AuditEvent
	for rows.Next() {
		var (
			event AuditEvent
			nanos int64
		)
		if err := rows.Scan(&event.ID, &nanos, &event.Subject, &event.Action, &event.Result, &event.Detail); err != nil {
			return nil, fmt.Errorf("scan audit event: %w", err)
		}
		event.Time = time.Unix(0, nanos).UTC()
		events = append(events, event)
	}
	return events, rows.Err()
}

func (r *SQLiteRecorder) Close() error {
	if r == nil || r.db == nil {
		return nil
	}
	return r.db.Close()
}
