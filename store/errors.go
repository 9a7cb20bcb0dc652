package store

import (
	"errors"
	"fmt"
)

// ValidationError reports malformed input. It is never retried and its
// message is safe to show to the user.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
	}
	return e.Message
}

// StoreError wraps local I/O and schema failures. A StoreError is fatal for
// the current operation; a single failed row rolls back the whole transaction.
type StoreError struct {
	Op     string // e.g. "SaveTask", "LoadTasks"
	TaskID string // optional: affected task id
	Err    error
}

func (e *StoreError) Error() string {
	if e.TaskID != "" {
		return fmt.Sprintf("store %s failed for task %s: %v", e.Op, e.TaskID, e.Err)
	}
	return fmt.Sprintf("store %s failed: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

// ConflictError signals that a concurrent writer changed a row between the
// caller's read and write (optimistic concurrency). Callers re-read,
// re-resolve and retry a bounded number of times.
type ConflictError struct {
	TaskID string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("task %s was modified concurrently", e.TaskID)
}

// AuthError signals invalid or expired credentials. It is surfaced
// immediately and never retried beyond a single token refresh.
type AuthError struct {
	Op  string
	Err error
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("%s: authentication failed: %v", e.Op, e.Err)
}

func (e *AuthError) Unwrap() error {
	return e.Err
}

// TransientNetError signals a network failure that was retried with
// exponential back-off and is surfaced only once retries are exhausted.
type TransientNetError struct {
	Op       string
	Attempts int
	Err      error
}

func (e *TransientNetError) Error() string {
	return fmt.Sprintf("%s failed after %d attempts: %v", e.Op, e.Attempts, e.Err)
}

func (e *TransientNetError) Unwrap() error {
	return e.Err
}

// UpstreamError carries a non-retriable upstream HTTP response. The engine
// decides whether to surface or skip it.
type UpstreamError struct {
	Op   string
	Code int
	Body string
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("%s failed with status %d: %s", e.Op, e.Code, e.Body)
}

// IsNotFound reports whether the upstream answered 404.
func (e *UpstreamError) IsNotFound() bool {
	return e.Code == 404
}

// IsRateLimited reports whether the upstream asked us to back off.
func (e *UpstreamError) IsRateLimited() bool {
	return e.Code == 429 || e.Code == 503
}

// IsUnauthorized reports whether the upstream rejected our credentials.
func (e *UpstreamError) IsUnauthorized() bool {
	return e.Code == 401 || e.Code == 403
}

// SchemaMismatchError is fatal: the remote store speaks a different schema
// version than this binary.
type SchemaMismatchError struct {
	Want int
	Got  int
}

func (e *SchemaMismatchError) Error() string {
	return fmt.Sprintf("remote schema version %d, expected %d", e.Got, e.Want)
}

// FingerprintError reports a structurally malformed timestamp handed to the
// fingerprinter. Callers treat the input as unique and proceed.
type FingerprintError struct {
	Value string
	Err   error
}

func (e *FingerprintError) Error() string {
	return fmt.Sprintf("cannot fingerprint due value %q: %v", e.Value, e.Err)
}

func (e *FingerprintError) Unwrap() error {
	return e.Err
}

// ErrNotFound is returned by point lookups when no row matches.
var ErrNotFound = errors.New("not found")
