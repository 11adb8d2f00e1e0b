// Package store persists reconciled document entries so `kbsync status`
// can show last-known state across invocations and detect documents that
// vanished server-side.
package store

import (
	"context"
	"database/sql"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"kbsync/internal/model"
)

type SQLiteStore struct {
	path string

	mu sync.Mutex
	db *sql.DB
}

func NewSQLiteStore(path string) *SQLiteStore {
	return &SQLiteStore{path: path}
}

func (s *SQLiteStore) Init(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db != nil {
		return nil
	}

	db, err := sql.Open("sqlite", s.path)
	if err != nil {
		return err
	}

	if _, err := db.ExecContext(ctx, `PRAGMA journal_mode=WAL;`); err != nil {
		_ = db.Close()
		return err
	}

	schema := `
CREATE TABLE IF NOT EXISTS documents (
  id TEXT PRIMARY KEY,
  name TEXT NOT NULL,
  size_bytes INTEGER NOT NULL DEFAULT 0,
  submitted_unix INTEGER NOT NULL DEFAULT 0,
  status TEXT NOT NULL DEFAULT 'uploading',
  progress INTEGER NOT NULL DEFAULT 0,
  error_message TEXT NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_documents_status ON documents(status);
`
	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return err
	}

	s.db = db
	return nil
}

func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

func (s *SQLiteStore) UpsertEntry(ctx context.Context, entry model.DocumentEntry) error {
	db, err := s.ensureDB(ctx)
	if err != nil {
		return err
	}

	_, err = db.ExecContext(
		ctx,
		`INSERT INTO documents(id, name, size_bytes, submitted_unix, status, progress, error_message)
		 VALUES(?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
		   name=excluded.name,
		   size_bytes=excluded.size_bytes,
		   submitted_unix=excluded.submitted_unix,
		   status=excluded.status,
		   progress=excluded.progress,
		   error_message=excluded.error_message`,
		entry.ID,
		entry.Name,
		entry.SizeBytes,
		entry.SubmittedAt.Unix(),
		string(entry.Status),
		entry.Progress,
		entry.ErrorMessage,
	)
	return err
}

func (s *SQLiteStore) ListEntries(ctx context.Context) ([]model.DocumentEntry, error) {
	db, err := s.ensureDB(ctx)
	if err != nil {
		return nil, err
	}

	rows, err := db.QueryContext(
		ctx,
		`SELECT id, name, size_bytes, submitted_unix, status, progress, error_message
		 FROM documents ORDER BY submitted_unix DESC, id`,
	)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var entries []model.DocumentEntry
	for rows.Next() {
		var entry model.DocumentEntry
		var status string
		var submittedUnix int64
		if err := rows.Scan(
			&entry.ID,
			&entry.Name,
			&entry.SizeBytes,
			&submittedUnix,
			&status,
			&entry.Progress,
			&entry.ErrorMessage,
		); err != nil {
			return nil, err
		}
		entry.Status = model.Status(status)
		entry.SubmittedAt = time.Unix(submittedUnix, 0).UTC()
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

func (s *SQLiteStore) DeleteEntry(ctx context.Context, id string) error {
	db, err := s.ensureDB(ctx)
	if err != nil {
		return err
	}
	_, err = db.ExecContext(ctx, `DELETE FROM documents WHERE id = ?`, id)
	return err
}

func (s *SQLiteStore) ensureDB(ctx context.Context) (*sql.DB, error) {
	s.mu.Lock()
	db := s.db
	s.mu.Unlock()
	if db != nil {
		return db, nil
	}
	if err := s.Init(ctx); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db, nil
}
