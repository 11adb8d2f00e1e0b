package model

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strings"
)

// ErrorKind is the canonical failure taxonomy. Every failure that reaches a
// user is exactly one of these.
type ErrorKind string

const (
	// KindValidation covers rejections made before any network activity.
	KindValidation ErrorKind = "validation"
	// KindCancelled covers user-initiated aborts; surfaced as confirmation,
	// not failure.
	KindCancelled ErrorKind = "cancelled"
	// KindUnavailable means the indexing backend dependency is down.
	KindUnavailable ErrorKind = "unavailable"
	// KindTimeout is a transport timeout. During upload it is treated like
	// KindUnavailable; during polling the attempt budget absorbs it.
	KindTimeout ErrorKind = "timeout"
	// KindPermanent is any other service failure; the entry survives and is
	// retryable.
	KindPermanent ErrorKind = "permanent"
)

// ServiceError is the structured error produced at the kbapi boundary and
// by the validator. Cause, when set, is the underlying transport error.
type ServiceError struct {
	Kind       ErrorKind
	Message    string
	StatusCode int
	Cause      error
}

func (e *ServiceError) Error() string {
	if e == nil {
		return ""
	}
	return string(e.Kind) + ": " + e.Message
}

func (e *ServiceError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

// Classify maps an arbitrary error into the taxonomy. ServiceError values
// carry their own kind; everything else is inspected for cancellation,
// timeout, and connectivity signals, defaulting to permanent.
func Classify(err error) ErrorKind {
	if err == nil {
		return KindPermanent
	}
	var se *ServiceError
	if errors.As(err, &se) {
		return se.Kind
	}
	if errors.Is(err, context.Canceled) {
		return KindCancelled
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return KindTimeout
	}
	lower := strings.ToLower(err.Error())
	if strings.Contains(lower, "connection refused") || strings.Contains(lower, "no such host") {
		return KindUnavailable
	}
	if strings.Contains(lower, "timeout") {
		return KindTimeout
	}
	return KindPermanent
}

// KindForStatus maps an HTTP status code to an error kind. 502-504 signal
// the backend dependency itself is down; the rest of 4xx/5xx is permanent.
func KindForStatus(statusCode int) ErrorKind {
	switch statusCode {
	case http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return KindUnavailable
	default:
		return KindPermanent
	}
}

// RemovesOptimisticEntry reports whether an upload-phase failure of the
// given kind should purge the optimistic registry entry. Before a server
// record exists there is nothing to retry, so infrastructure failures
// remove rather than mark.
func RemovesOptimisticEntry(kind ErrorKind) bool {
	return kind == KindUnavailable || kind == KindTimeout
}
