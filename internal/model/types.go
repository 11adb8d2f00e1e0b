package model

import (
	"strings"
	"time"
)

// Status is the client-visible lifecycle state of a document entry.
type Status string

const (
	StatusUploading Status = "uploading"
	StatusPaused    Status = "paused"
	StatusSuccess   Status = "success"
	StatusError     Status = "error"
)

// Terminal reports whether the status is one the poller stops on.
func (s Status) Terminal() bool {
	return s == StatusSuccess || s == StatusError
}

// Progress boundaries shared by the submitter and the poller. The upload
// transfer owns 0..50 exclusively; polling advances 50..90; 100 is reserved
// for confirmed indexing success.
const (
	ProgressTransferDone = 50
	ProgressPollCeiling  = 90
	ProgressComplete     = 100
)

// DocumentEntry is one row of client-visible state for a single uploaded
// file and its indexing lifecycle. ID starts as a client-generated
// temporary identifier and is swapped for the server-assigned one when the
// upload is acknowledged.
type DocumentEntry struct {
	ID           string
	Name         string
	SizeBytes    int64
	SubmittedAt  time.Time
	Status       Status
	Progress     int
	ErrorMessage string
}

// ServerStatus is the indexing state reported by the backend.
type ServerStatus string

const (
	ServerProcessing ServerStatus = "processing"
	ServerIndexed    ServerStatus = "indexed"
	ServerError      ServerStatus = "error"
)

// NormalizeServerStatus folds the loosely-cased status strings seen on the
// wire into the canonical set. Unknown values map to processing so a new
// intermediate server state never terminates a poll run early.
func NormalizeServerStatus(raw string) ServerStatus {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "indexed", "ready", "done":
		return ServerIndexed
	case "error", "failed":
		return ServerError
	default:
		return ServerProcessing
	}
}

// ServerDocument is the normalized shape of one element of the backend's
// document list. Error detail arrives in more than one field in practice;
// kbapi collapses it into ErrorMessage at the boundary.
type ServerDocument struct {
	ID           string
	FileName     string
	FileSize     int64
	UploadedAt   time.Time
	Status       ServerStatus
	ErrorMessage string
}

// AskSource attributes part of an answer to an indexed document.
type AskSource struct {
	DocumentID string `json:"document_id"`
	FileName   string `json:"file_name,omitempty"`
	Snippet    string `json:"snippet,omitempty"`
}

// AskResult is the outcome of one question-answering request.
type AskResult struct {
	Question string
	Answer   string
	Sources  []AskSource
	// ScopeIDs is the document id set the question was bounded to.
	ScopeIDs []string
}

// EventKind distinguishes informational notifications from failures.
type EventKind string

const (
	EventInfo  EventKind = "info"
	EventError EventKind = "error"
)

// Event is a user-facing notification emitted by the orchestrator, e.g.
// "entry removed because the backend is down" or "still processing after
// the poll budget". Cancellation confirmations are EventInfo, never
// EventError.
type Event struct {
	Kind       EventKind
	DocumentID string
	Name       string
	Message    string
}
