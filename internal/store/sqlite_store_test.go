package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"kbsync/internal/model"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s := NewSQLiteStore(filepath.Join(t.TempDir(), "journal.db"))
	if err := s.Init(context.Background()); err != nil {
		t.Fatalf("init: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestUpsertAndList(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	base := time.Now().Truncate(time.Second).UTC()

	old := model.DocumentEntry{
		ID: "doc-old", Name: "old.pdf", SizeBytes: 100,
		SubmittedAt: base, Status: model.StatusSuccess, Progress: 100,
	}
	recent := model.DocumentEntry{
		ID: "doc-new", Name: "new.pdf", SizeBytes: 200,
		SubmittedAt: base.Add(time.Hour), Status: model.StatusError, Progress: 50,
		ErrorMessage: "indexing failed",
	}
	for _, e := range []model.DocumentEntry{old, recent} {
		if err := s.UpsertEntry(ctx, e); err != nil {
			t.Fatalf("upsert %s: %v", e.ID, err)
		}
	}

	got, err := s.ListEntries(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(got))
	}
	if got[0].ID != "doc-new" || got[1].ID != "doc-old" {
		t.Fatalf("expected newest first, got [%s %s]", got[0].ID, got[1].ID)
	}
	if got[0].ErrorMessage != "indexing failed" || got[0].Progress != 50 {
		t.Fatalf("error row mangled: %+v", got[0])
	}
	if !got[1].SubmittedAt.Equal(base) {
		t.Fatalf("timestamp roundtrip: want %v, got %v", base, got[1].SubmittedAt)
	}
}

func TestUpsert_Overwrites(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	entry := model.DocumentEntry{
		ID: "doc-1", Name: "a.pdf", SubmittedAt: time.Now(),
		Status: model.StatusUploading, Progress: 50,
	}
	if err := s.UpsertEntry(ctx, entry); err != nil {
		t.Fatalf("insert: %v", err)
	}

	entry.Status = model.StatusSuccess
	entry.Progress = 100
	if err := s.UpsertEntry(ctx, entry); err != nil {
		t.Fatalf("update: %v", err)
	}

	got, err := s.ListEntries(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("upsert must not duplicate, got %d rows", len(got))
	}
	if got[0].Status != model.StatusSuccess || got[0].Progress != 100 {
		t.Fatalf("update not applied: %+v", got[0])
	}
}

func TestDeleteEntry(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	entry := model.DocumentEntry{
		ID: "doc-1", Name: "a.pdf", SubmittedAt: time.Now(),
		Status: model.StatusSuccess, Progress: 100,
	}
	if err := s.UpsertEntry(ctx, entry); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if err := s.DeleteEntry(ctx, "doc-1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := s.DeleteEntry(ctx, "doc-1"); err != nil {
		t.Fatalf("delete of a missing row must be a no-op, got %v", err)
	}

	got, err := s.ListEntries(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("expected empty store, got %d rows", len(got))
	}
}

func TestLazyInit(t *testing.T) {
	s := NewSQLiteStore(filepath.Join(t.TempDir(), "journal.db"))
	t.Cleanup(func() { _ = s.Close() })

	// first call must open and migrate on demand
	got, err := s.ListEntries(context.Background())
	if err != nil {
		t.Fatalf("lazy list: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("fresh store must be empty, got %d rows", len(got))
	}
}
