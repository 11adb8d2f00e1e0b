package model

import (
	"context"
	"io"
)

// ProgressFunc receives transfer progress while an upload is in flight.
type ProgressFunc func(sent, total int64)

// DocumentAPI is the document-management backend consumed by the
// orchestrator. Implementations must honor context cancellation on every
// call; the orchestrator relies on it for mid-flight aborts.
type DocumentAPI interface {
	// Upload streams one file and returns the server-assigned document id.
	// onProgress may be nil.
	Upload(ctx context.Context, name string, size int64, r io.Reader, onProgress ProgressFunc) (string, error)

	// List returns the server's view of all documents.
	List(ctx context.Context) ([]ServerDocument, error)

	// RetryIndexing restarts indexing for an existing document. It does not
	// re-upload content.
	RetryIndexing(ctx context.Context, id string) error

	// Delete removes a document; allowed on any status.
	Delete(ctx context.Context, id string) error

	// Download returns the stored document bytes. The caller closes the
	// reader.
	Download(ctx context.Context, id string) (io.ReadCloser, error)

	// Ask answers a question scoped to the given document ids. An empty
	// scope is passed through; the server decides what no context means.
	Ask(ctx context.Context, query string, documentIDs []string) (AskResult, error)
}

// Journal persists reconciled document entries across CLI invocations.
// Entries still under a temporary id are never journaled.
type Journal interface {
	UpsertEntry(ctx context.Context, entry DocumentEntry) error
	ListEntries(ctx context.Context) ([]DocumentEntry, error)
	DeleteEntry(ctx context.Context, id string) error
}
