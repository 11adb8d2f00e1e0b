// Package registry holds the ordered collection of document entries that
// every other component reads and mutates. It is the single enforcement
// point for the entry invariants: unique ids, bounded progress, and atomic
// temporary→server id reconciliation.
package registry

import (
	"context"
	"log"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"kbsync/internal/model"
)

// tempPrefix marks client-generated identifiers issued before the server
// acknowledges an upload.
const tempPrefix = "tmp_"

// aliasWindow bounds how long a reconciled temporary id keeps resolving to
// its server id, covering poll responses that were in flight across the
// reconciliation.
const aliasWindow = time.Minute

// NewTempID returns a fresh temporary document identifier.
func NewTempID() string {
	return tempPrefix + uuid.NewString()
}

// IsTempID reports whether id was client-generated.
func IsTempID(id string) bool {
	return strings.HasPrefix(id, tempPrefix)
}

type alias struct {
	serverID string
	at       time.Time
}

// Registry is safe for concurrent use; all mutation funnels through one
// mutex so invariants hold at every observable instant. Entries with a
// server id are written through to the journal when one is configured;
// temp-phase entries stay local.
type Registry struct {
	mu      sync.Mutex
	entries []model.DocumentEntry
	aliases map[string]alias

	journal model.Journal
	logger  *log.Logger

	now func() time.Time
}

func New(journal model.Journal) *Registry {
	return &Registry{
		aliases: make(map[string]alias),
		journal: journal,
		now:     time.Now,
	}
}

// SetLogger routes journal write-through warnings; nil uses the stdlib
// global logger.
func (r *Registry) SetLogger(l *log.Logger) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.logger = l
}

// Hydrate loads journaled entries, newest first. Entries already present
// are left untouched.
func (r *Registry) Hydrate(ctx context.Context) error {
	if r.journal == nil {
		return nil
	}
	stored, err := r.journal.ListEntries(ctx)
	if err != nil {
		return err
	}
	sort.Slice(stored, func(i, j int) bool {
		return stored[i].SubmittedAt.After(stored[j].SubmittedAt)
	})

	r.mu.Lock()
	defer r.mu.Unlock()
	for _, entry := range stored {
		if r.indexOfLocked(entry.ID) >= 0 {
			continue
		}
		r.entries = append(r.entries, clampEntry(entry))
	}
	return nil
}

// Insert prepends the entry (newest first). An entry with a duplicate id is
// rejected; the registry never holds two rows for one logical document.
func (r *Registry) Insert(ctx context.Context, entry model.DocumentEntry) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.indexOfLocked(entry.ID) >= 0 {
		return false
	}
	entry = clampEntry(entry)
	r.entries = append([]model.DocumentEntry{entry}, r.entries...)
	r.journalUpsertLocked(ctx, entry)
	return true
}

// Reconcile atomically replaces tempID with serverID for the same logical
// document. Position is preserved and the registry size does not change.
// The temporary id keeps resolving to the server id for a bounded window.
func (r *Registry) Reconcile(ctx context.Context, tempID, serverID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	idx := r.indexOfLocked(tempID)
	if idx < 0 || serverID == "" || r.indexOfLocked(serverID) >= 0 {
		return false
	}
	r.entries[idx].ID = serverID
	r.entries[idx].Progress = model.ProgressTransferDone
	r.aliases[tempID] = alias{serverID: serverID, at: r.now()}
	r.journalUpsertLocked(ctx, r.entries[idx])
	return true
}

// SetProgress advances an uploading entry's progress. Values are clamped to
// [0,99] and regressions within an attempt are ignored; only a status
// transition may reset progress.
func (r *Registry) SetProgress(id string, progress int) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	idx := r.indexOfLocked(r.resolveLocked(id))
	if idx < 0 {
		return false
	}
	entry := &r.entries[idx]
	if entry.Status != model.StatusUploading {
		return false
	}
	if progress > 99 {
		progress = 99
	}
	if progress < entry.Progress {
		return false
	}
	entry.Progress = progress
	return true
}

// SetStatus moves an entry to a new lifecycle state. Success forces
// progress 100; Uploading caps it below 100; errorMessage is kept only for
// Error entries.
func (r *Registry) SetStatus(ctx context.Context, id string, status model.Status, progress int, errorMessage string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	idx := r.indexOfLocked(r.resolveLocked(id))
	if idx < 0 {
		return false
	}
	entry := &r.entries[idx]
	entry.Status = status
	entry.Progress = progress
	entry.ErrorMessage = errorMessage
	*entry = clampEntry(*entry)
	r.journalUpsertLocked(ctx, *entry)
	return true
}

// Remove deletes the entry (and its journal row when reconciled).
func (r *Registry) Remove(ctx context.Context, id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	canonical := r.resolveLocked(id)
	idx := r.indexOfLocked(canonical)
	if idx < 0 {
		return false
	}
	r.entries = append(r.entries[:idx], r.entries[idx+1:]...)
	if r.journal != nil && !IsTempID(canonical) {
		if err := r.journal.DeleteEntry(ctx, canonical); err != nil {
			r.logf("journal delete failed for %s: %v", canonical, err)
		}
	}
	return true
}

// Get returns a copy of the entry for id, following the alias window.
func (r *Registry) Get(id string) (model.DocumentEntry, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	idx := r.indexOfLocked(r.resolveLocked(id))
	if idx < 0 {
		return model.DocumentEntry{}, false
	}
	return r.entries[idx], true
}

// Resolve maps id to its canonical form: ids that were reconciled away
// resolve to the server id while the alias window is open.
func (r *Registry) Resolve(id string) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.resolveLocked(id)
}

// List returns a snapshot of all entries in registry order.
func (r *Registry) List() []model.DocumentEntry {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]model.DocumentEntry, len(r.entries))
	copy(out, r.entries)
	return out
}

// SuccessIDs returns the ids of successfully indexed documents in registry
// order; this is the query scope.
func (r *Registry) SuccessIDs() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	ids := make([]string, 0, len(r.entries))
	for _, entry := range r.entries {
		if entry.Status == model.StatusSuccess {
			ids = append(ids, entry.ID)
		}
	}
	return ids
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

func (r *Registry) indexOfLocked(id string) int {
	for i := range r.entries {
		if r.entries[i].ID == id {
			return i
		}
	}
	return -1
}

func (r *Registry) resolveLocked(id string) string {
	a, ok := r.aliases[id]
	if !ok {
		return id
	}
	if r.now().Sub(a.at) > aliasWindow {
		delete(r.aliases, id)
		return id
	}
	return a.serverID
}

func (r *Registry) journalUpsertLocked(ctx context.Context, entry model.DocumentEntry) {
	if r.journal == nil || IsTempID(entry.ID) {
		return
	}
	if err := r.journal.UpsertEntry(ctx, entry); err != nil {
		r.logf("journal upsert failed for %s: %v", entry.ID, err)
	}
}

func (r *Registry) logf(format string, args ...interface{}) {
	if r.logger != nil {
		r.logger.Printf(format, args...)
		return
	}
	log.Printf(format, args...)
}

// clampEntry enforces the progress invariants for a single entry.
func clampEntry(entry model.DocumentEntry) model.DocumentEntry {
	if entry.Progress < 0 {
		entry.Progress = 0
	}
	if entry.Progress > model.ProgressComplete {
		entry.Progress = model.ProgressComplete
	}
	switch entry.Status {
	case model.StatusSuccess:
		entry.Progress = model.ProgressComplete
		entry.ErrorMessage = ""
	case model.StatusUploading:
		if entry.Progress >= model.ProgressComplete {
			entry.Progress = model.ProgressComplete - 1
		}
		entry.ErrorMessage = ""
	case model.StatusPaused:
		entry.ErrorMessage = ""
	}
	return entry
}
