// Package ingest drives the document upload and indexing lifecycle: it
// validates candidate files, runs cancellable uploads against the backend,
// polls per-document indexing status to a terminal state, and re-arms
// failed documents for retry. All visible state lives in the registry.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"kbsync/internal/config"
	"kbsync/internal/model"
	"kbsync/internal/registry"
)

const (
	defaultPollInterval = 2 * time.Second
	defaultPollAttempts = 30
)

type cancelMode int

const (
	cancelNone cancelMode = iota
	cancelPause
	cancelRemove
)

// task is one in-flight upload or poll loop with its own cancellation
// token. mode records why the token was revoked so the failure handler can
// tell a pause apart from a delete.
type task struct {
	cancel context.CancelFunc

	mu   sync.Mutex
	mode cancelMode
}

func (t *task) setMode(m cancelMode) {
	t.mu.Lock()
	t.mode = m
	t.mu.Unlock()
}

func (t *task) getMode() cancelMode {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.mode
}

// Orchestrator coordinates uploads and pollers. Fields are set once before
// first use; PollInterval and MaxPollAttempts fall back to the 2s/30
// defaults when zero.
type Orchestrator struct {
	API      model.DocumentAPI
	Registry *registry.Registry
	Limits   config.Upload

	PollInterval    time.Duration
	MaxPollAttempts int

	// Logger is optional; nil routes to the stdlib global logger.
	Logger *log.Logger

	mu       sync.Mutex
	tasks    map[string]*task
	notifyFn func(model.Event)
	wg       sync.WaitGroup
}

// SetNotify installs the sink for user-facing events (entry removed,
// paused, budget exhausted). Safe to call while tasks are in flight; nil
// drops events.
func (o *Orchestrator) SetNotify(fn func(model.Event)) {
	o.mu.Lock()
	o.notifyFn = fn
	o.mu.Unlock()
}

// Submit validates path and, on acceptance, inserts an optimistic entry and
// starts the upload in the background. The returned id is the entry's
// temporary identifier; it changes to the server id on reconciliation.
// Validation failures are returned synchronously and create no state.
func (o *Orchestrator) Submit(ctx context.Context, path string) (string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return "", &model.ServiceError{Kind: model.KindValidation, Message: "cannot read file: " + err.Error(), Cause: err}
	}
	if err := ValidateFile(info.Name(), info.Size(), o.Limits); err != nil {
		return "", err
	}
	f, err := os.Open(path)
	if err != nil {
		return "", &model.ServiceError{Kind: model.KindValidation, Message: "cannot open file: " + err.Error(), Cause: err}
	}
	return o.start(ctx, info.Name(), info.Size(), f), nil
}

// SubmitReader is Submit for callers that already hold the bytes (tests,
// piped input). Same validate → insert → upload → reconcile → poll path.
func (o *Orchestrator) SubmitReader(ctx context.Context, name string, size int64, r io.Reader) (string, error) {
	name = filepath.Base(name)
	if err := ValidateFile(name, size, o.Limits); err != nil {
		return "", err
	}
	return o.start(ctx, name, size, io.NopCloser(r)), nil
}

// start inserts the optimistic entry and launches the upload goroutine,
// which owns rc.
func (o *Orchestrator) start(ctx context.Context, name string, size int64, rc io.ReadCloser) string {
	tempID := registry.NewTempID()
	entry := model.DocumentEntry{
		ID:          tempID,
		Name:        name,
		SizeBytes:   size,
		SubmittedAt: time.Now().UTC(),
		Status:      model.StatusUploading,
		Progress:    0,
	}
	o.Registry.Insert(ctx, entry)

	taskCtx, cancel := context.WithCancel(ctx)
	t := &task{cancel: cancel}
	o.register(tempID, t)

	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		defer func() { _ = rc.Close() }()
		o.runUpload(taskCtx, t, tempID, entry, rc)
	}()

	return tempID
}

func (o *Orchestrator) runUpload(ctx context.Context, t *task, tempID string, entry model.DocumentEntry, r io.Reader) {
	currentID := tempID
	defer func() { o.unregister(currentID) }()

	onProgress := func(sent, total int64) {
		if total <= 0 {
			return
		}
		o.Registry.SetProgress(currentID, int(sent*model.ProgressTransferDone/total))
	}

	serverID, err := o.API.Upload(ctx, entry.Name, entry.SizeBytes, r, onProgress)
	if err != nil {
		o.handleUploadFailure(t, tempID, entry.Name, err)
		return
	}

	// Identifier reconciliation: atomic in-place swap, position preserved,
	// progress pinned to the transfer-complete mark. The temp id keeps
	// resolving inside the registry's alias window.
	if !o.Registry.Reconcile(context.Background(), tempID, serverID) {
		// entry was deleted while the upload response was in flight
		o.bestEffortDelete(serverID)
		return
	}
	currentID = serverID
	o.rekey(tempID, serverID)

	o.pollStatus(ctx, t, serverID, entry.Name)
}

func (o *Orchestrator) handleUploadFailure(t *task, id, name string, err error) {
	kind := model.Classify(err)
	switch {
	case kind == model.KindCancelled:
		if t.getMode() == cancelPause {
			o.Registry.SetStatus(context.Background(), id, model.StatusPaused, progressOf(o.Registry, id), "")
			o.notify(model.EventInfo, id, name, "upload paused")
			return
		}
		o.Registry.Remove(context.Background(), id)
		o.bestEffortDelete(id)
		o.notify(model.EventInfo, id, name, "upload cancelled")
	case model.RemovesOptimisticEntry(kind):
		// no durable server record exists yet, so there is nothing to keep
		o.Registry.Remove(context.Background(), id)
		if kind == model.KindUnavailable {
			o.notify(model.EventError, id, name, "indexing backend is unavailable; start the document service and try again")
		} else {
			o.notify(model.EventError, id, name, "upload timed out; check the document service and try again")
		}
	default:
		o.Registry.SetStatus(context.Background(), id, model.StatusError, progressOf(o.Registry, id), errorMessage(err))
		o.notify(model.EventError, id, name, errorMessage(err))
	}
}

// pollStatus queries the server at a fixed interval until the document
// reaches a terminal state or the attempt budget runs out. Exhausting the
// budget is a bounded-wait policy, not a failure: the entry is left at
// Uploading/90 for a later manual refresh.
func (o *Orchestrator) pollStatus(ctx context.Context, t *task, id, name string) {
	interval := o.PollInterval
	if interval <= 0 {
		interval = defaultPollInterval
	}
	maxAttempts := o.MaxPollAttempts
	if maxAttempts <= 0 {
		maxAttempts = defaultPollAttempts
	}

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		select {
		case <-ctx.Done():
			if t != nil && t.getMode() == cancelRemove {
				o.Registry.Remove(context.Background(), id)
			}
			return
		case <-time.After(interval):
		}

		docs, err := o.API.List(ctx)
		if err != nil {
			if model.Classify(err) == model.KindCancelled {
				return
			}
			// transient from the poller's point of view; the attempt budget
			// absorbs a down backend
			o.logf("status poll %d/%d for %s failed: %v", attempt, maxAttempts, id, err)
			continue
		}

		doc, found := findDocument(docs, id)
		if !found {
			o.Registry.Remove(context.Background(), id)
			o.notify(model.EventInfo, id, name, "document was removed on the server")
			return
		}

		switch doc.Status {
		case model.ServerIndexed:
			o.Registry.SetStatus(context.Background(), id, model.StatusSuccess, model.ProgressComplete, "")
			return
		case model.ServerError:
			msg := doc.ErrorMessage
			if msg == "" {
				msg = "indexing failed"
			}
			o.Registry.SetStatus(context.Background(), id, model.StatusError, progressOf(o.Registry, id), msg)
			o.notify(model.EventError, id, name, msg)
			return
		default:
			o.Registry.SetProgress(id, pollProgress(attempt, maxAttempts))
		}
	}

	o.Registry.SetProgress(id, model.ProgressPollCeiling)
	o.notify(model.EventInfo, id, name, fmt.Sprintf("still processing after %d checks; run 'kbsync status' later", maxAttempts))
}

// pollProgress advances linearly from just past the transfer-complete mark
// toward the poll ceiling, never implying completion before the server
// confirms it.
func pollProgress(attempt, maxAttempts int) int {
	span := model.ProgressPollCeiling - model.ProgressTransferDone
	p := model.ProgressTransferDone + attempt*span/maxAttempts
	if p > model.ProgressPollCeiling {
		p = model.ProgressPollCeiling
	}
	return p
}

// Pause aborts an in-flight upload, leaving the entry in Paused. It has no
// effect on documents that already completed transfer.
func (o *Orchestrator) Pause(id string) bool {
	t := o.lookup(id)
	if t == nil {
		return false
	}
	entry, ok := o.Registry.Get(id)
	if !ok || entry.Status != model.StatusUploading || entry.Progress >= model.ProgressTransferDone {
		return false
	}
	t.setMode(cancelPause)
	t.cancel()
	return true
}

// Delete removes a document everywhere: any in-flight task is cancelled,
// the entry leaves the registry, and a delete request goes to the server
// (the server remains the source of truth for the underlying record).
func (o *Orchestrator) Delete(ctx context.Context, id string) error {
	canonical := o.Registry.Resolve(id)
	if t := o.lookup(canonical); t != nil {
		t.setMode(cancelRemove)
		t.cancel()
	}
	o.Registry.Remove(ctx, canonical)
	if registry.IsTempID(canonical) {
		// nothing durable server-side; the upload goroutine already issues a
		// best-effort delete on abort
		return nil
	}
	return o.API.Delete(ctx, canonical)
}

// Retry re-arms an Error document for indexing and restarts its poller.
// Invoking it on an entry that is already Uploading is a no-op; any other
// state is rejected. If the retry request itself fails to register, the
// entry reverts to Error with a retry-specific message.
func (o *Orchestrator) Retry(ctx context.Context, id string) error {
	entry, ok := o.Registry.Get(id)
	if !ok {
		return &model.ServiceError{Kind: model.KindValidation, Message: "no document with id " + id}
	}
	if entry.Status == model.StatusUploading {
		return nil
	}
	if entry.Status != model.StatusError {
		return &model.ServiceError{Kind: model.KindValidation, Message: fmt.Sprintf("document is %s, only failed documents can be retried", entry.Status)}
	}

	o.Registry.SetStatus(ctx, entry.ID, model.StatusUploading, model.ProgressTransferDone, "")
	if err := o.API.RetryIndexing(ctx, entry.ID); err != nil {
		o.Registry.SetStatus(ctx, entry.ID, model.StatusError, model.ProgressTransferDone, "retry failed: "+errorMessage(err))
		return err
	}

	taskCtx, cancel := context.WithCancel(ctx)
	t := &task{cancel: cancel}
	o.register(entry.ID, t)

	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		defer o.unregister(entry.ID)
		o.pollStatus(taskCtx, t, entry.ID, entry.Name)
	}()
	return nil
}

// Refresh overwrites local state with the server's view: known documents
// are updated, unknown ones inserted, and reconciled entries the server no
// longer reports are removed with a notification. In-flight temp entries
// are left alone.
func (o *Orchestrator) Refresh(ctx context.Context) error {
	docs, err := o.API.List(ctx)
	if err != nil {
		return err
	}

	seen := make(map[string]bool, len(docs))
	for _, doc := range docs {
		seen[doc.ID] = true
		status, progress, msg := localState(doc)
		if existing, ok := o.Registry.Get(doc.ID); ok {
			if existing.Status == model.StatusUploading && status == model.StatusUploading &&
				existing.Progress > progress {
				progress = existing.Progress
			}
			o.Registry.SetStatus(ctx, doc.ID, status, progress, msg)
			continue
		}
		submitted := doc.UploadedAt
		if submitted.IsZero() {
			submitted = time.Now().UTC()
		}
		o.Registry.Insert(ctx, model.DocumentEntry{
			ID:           doc.ID,
			Name:         doc.FileName,
			SizeBytes:    doc.FileSize,
			SubmittedAt:  submitted,
			Status:       status,
			Progress:     progress,
			ErrorMessage: msg,
		})
	}

	for _, entry := range o.Registry.List() {
		if registry.IsTempID(entry.ID) || seen[entry.ID] {
			continue
		}
		if o.lookup(entry.ID) != nil {
			// its own poller will observe the disappearance
			continue
		}
		o.Registry.Remove(ctx, entry.ID)
		o.notify(model.EventInfo, entry.ID, entry.Name, "document was removed on the server")
	}
	return nil
}

// Wait blocks until every upload and poller started by this orchestrator
// has finished.
func (o *Orchestrator) Wait() {
	o.wg.Wait()
}

// CancelAll aborts every in-flight task as if each were deleted, then
// waits for the goroutines to finish their cleanup (entry removal plus
// best-effort server delete). Used when the user abandons an interactive
// upload session.
func (o *Orchestrator) CancelAll() {
	o.mu.Lock()
	tasks := make([]*task, 0, len(o.tasks))
	for _, t := range o.tasks {
		tasks = append(tasks, t)
	}
	o.mu.Unlock()

	for _, t := range tasks {
		t.setMode(cancelRemove)
		t.cancel()
	}
	o.wg.Wait()
}

// Active reports whether any task is still in flight.
func (o *Orchestrator) Active() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.tasks) > 0
}

func localState(doc model.ServerDocument) (model.Status, int, string) {
	switch doc.Status {
	case model.ServerIndexed:
		return model.StatusSuccess, model.ProgressComplete, ""
	case model.ServerError:
		msg := doc.ErrorMessage
		if msg == "" {
			msg = "indexing failed"
		}
		return model.StatusError, model.ProgressTransferDone, msg
	default:
		return model.StatusUploading, model.ProgressTransferDone, ""
	}
}

func findDocument(docs []model.ServerDocument, id string) (model.ServerDocument, bool) {
	for _, doc := range docs {
		if doc.ID == id {
			return doc, true
		}
	}
	return model.ServerDocument{}, false
}

func (o *Orchestrator) register(id string, t *task) {
	o.mu.Lock()
	if o.tasks == nil {
		o.tasks = make(map[string]*task)
	}
	o.tasks[id] = t
	o.mu.Unlock()
}

func (o *Orchestrator) rekey(oldID, newID string) {
	o.mu.Lock()
	if t, ok := o.tasks[oldID]; ok {
		delete(o.tasks, oldID)
		o.tasks[newID] = t
	}
	o.mu.Unlock()
}

func (o *Orchestrator) unregister(id string) {
	o.mu.Lock()
	delete(o.tasks, id)
	o.mu.Unlock()
}

func (o *Orchestrator) lookup(id string) *task {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.tasks[id]
}

// bestEffortDelete tries to clean up a possibly part-registered server
// record after an aborted upload. Failures are logged, never surfaced.
func (o *Orchestrator) bestEffortDelete(id string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := o.API.Delete(ctx, id); err != nil {
		o.logf("best-effort delete of %s failed: %v", id, err)
	}
}

func (o *Orchestrator) notify(kind model.EventKind, id, name, msg string) {
	o.mu.Lock()
	fn := o.notifyFn
	o.mu.Unlock()
	if fn == nil {
		return
	}
	fn(model.Event{Kind: kind, DocumentID: id, Name: name, Message: msg})
}

func (o *Orchestrator) logf(format string, args ...interface{}) {
	if o != nil && o.Logger != nil {
		o.Logger.Printf(format, args...)
		return
	}
	log.Printf(format, args...)
}

func progressOf(r *registry.Registry, id string) int {
	if entry, ok := r.Get(id); ok {
		return entry.Progress
	}
	return 0
}

func errorMessage(err error) string {
	var se *model.ServiceError
	if errors.As(err, &se) {
		return se.Message
	}
	return err.Error()
}
