// Package apperr defines the error taxonomy shared across Ansuz services.
package apperr

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound      = errors.New("not found")
	ErrConflict      = errors.New("conflict")
	ErrAlreadyExists = errors.New("already exists")
)

// ValidationError marks bad input detected before any external call.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

// Validation builds a ValidationError with a formatted message.
func Validation(format string, args ...any) error {
	return &ValidationError{Message: fmt.Sprintf(format, args...)}
}

// IsValidation reports whether err is (or wraps) a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// UpstreamKind classifies failures from external collaborators
// (search provider, generative model).
type UpstreamKind string

const (
	UpstreamAuth       UpstreamKind = "auth"
	UpstreamRateLimit  UpstreamKind = "rate_limit"
	UpstreamBadRequest UpstreamKind = "bad_request"
	UpstreamServer     UpstreamKind = "server"
	UpstreamNetwork    UpstreamKind = "network"
	UpstreamUnknown    UpstreamKind = "unknown"
)

// UpstreamError wraps a failure from an external collaborator, keeping
// the upstream status and message where available.
type UpstreamError struct {
	Kind    UpstreamKind
	Service string // "search" or "llm"
	Status  int    // HTTP status, 0 when no response was received
	Message string
	Err     error
}

func (e *UpstreamError) Error() string {
	if e.Status > 0 {
		return fmt.Sprintf("%s: %s (%d): %s", e.Service, e.Kind, e.Status, e.Message)
	}
	return fmt.Sprintf("%s: %s: %s", e.Service, e.Kind, e.Message)
}

func (e *UpstreamError) Unwrap() error { return e.Err }

// Upstream builds an UpstreamError.
func Upstream(kind UpstreamKind, service string, status int, message string, err error) error {
	return &UpstreamError{Kind: kind, Service: service, Status: status, Message: message, Err: err}
}

// AsUpstream extracts an UpstreamError from err, if present.
func AsUpstream(err error) (*UpstreamError, bool) {
	var ue *UpstreamError
	ok := errors.As(err, &ue)
	return ue, ok
}
