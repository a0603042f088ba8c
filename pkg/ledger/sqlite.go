package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// Fixed-width so lexical order in SQL matches time order.
const timestampLayout = "2006-01-02T15:04:05.000000000Z07:00"

// SQLiteStore persists records in a SQLite database.
type SQLiteStore struct {
	db   *sql.DB
	path string
}

// OpenSQLite opens (creating if needed) the ledger database at path and
// applies migrations.
func OpenSQLite(ctx context.Context, path string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return nil, fmt.Errorf("ensure ledger directory: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.ExecContext(ctx, pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	store := &SQLiteStore{db: db, path: path}
	if err := store.applyMigrations(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// Path returns the database file path.
func (s *SQLiteStore) Path() string { return s.path }

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Save writes the record and its changes in one SQL transaction.
func (s *SQLiteStore) Save(ctx context.Context, rec *Record) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO transactions (id, name, tool_id, created_at) VALUES (?, ?, ?, ?)`,
		rec.ID, rec.Name, rec.ToolID, rec.CreatedAt.UTC().Format(timestampLayout),
	); err != nil {
		return fmt.Errorf("insert transaction: %w", err)
	}
	for i, c := range rec.Changes {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO changes (transaction_id, seq, entity, action, before_value, after_value) VALUES (?, ?, ?, ?, ?, ?)`,
			rec.ID, i, c.Entity, c.Action, c.Before, c.After,
		); err != nil {
			return fmt.Errorf("insert change %d: %w", i, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// Get loads one record with its changes.
func (s *SQLiteStore) Get(ctx context.Context, id string) (*Record, error) {
	row := s.db.QueryRowContext(ctx, `SELECT id, name, tool_id, created_at FROM transactions WHERE id = ?`, id)
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if err := s.loadChanges(ctx, rec); err != nil {
		return nil, err
	}
	return rec, nil
}

// List returns every record, newest first.
func (s *SQLiteStore) List(ctx context.Context) ([]*Record, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, name, tool_id, created_at FROM transactions ORDER BY created_at DESC, rowid DESC`)
	if err != nil {
		return nil, fmt.Errorf("query transactions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []*Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate transactions: %w", err)
	}
	for _, rec := range out {
		if err := s.loadChanges(ctx, rec); err != nil {
			return nil, err
		}
	}
	return out, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(sc scanner) (*Record, error) {
	var (
		rec     Record
		created string
	)
	if err := sc.Scan(&rec.ID, &rec.Name, &rec.ToolID, &created); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan transaction: %w", err)
	}
	ts, err := time.Parse(time.RFC3339Nano, created)
	if err != nil {
		return nil, fmt.Errorf("parse created_at %q: %w", created, err)
	}
	rec.CreatedAt = ts.UTC()
	return &rec, nil
}

func (s *SQLiteStore) loadChanges(ctx context.Context, rec *Record) error {
	rows, err := s.db.QueryContext(ctx,
		`SELECT entity, action, before_value, after_value FROM changes WHERE transaction_id = ? ORDER BY seq`, rec.ID)
	if err != nil {
		return fmt.Errorf("query changes: %w", err)
	}
	defer func() { _ = rows.Close() }()

	rec.Changes = []Change{}
	for rows.Next() {
		var c Change
		if err := rows.Scan(&c.Entity, &c.Action, &c.Before, &c.After); err != nil {
			return fmt.Errorf("scan change: %w", err)
		}
		rec.Changes = append(rec.Changes, c)
	}
	return rows.Err()
}
