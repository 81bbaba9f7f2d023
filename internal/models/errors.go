package models

import (
	"errors"
	"fmt"
	"strings"
	"syscall"
)

// ErrAuth is returned when no valid credentials can be obtained.
var ErrAuth = errors.New("authentication failed")

// ListError reports a failed remote listing.
type ListError struct {
	Path string
	Err  error
}

func (e *ListError) Error() string {
	return fmt.Sprintf("list %q: %v", e.Path, e.Err)
}

func (e *ListError) Unwrap() error {
	return e.Err
}

// FetchError reports a failed remote fetch. Transient is set when the
// failure was a connection reset and an immediate retry may succeed.
type FetchError struct {
	Key       string
	Transient bool
	Err       error
}

func (e *FetchError) Error() string {
	if e.Transient {
		return fmt.Sprintf("fetch %q (transient): %v", e.Key, e.Err)
	}
	return fmt.Sprintf("fetch %q: %v", e.Key, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// NewFetchError wraps err and classifies it as transient when it is a
// connection reset.
func NewFetchError(key string, err error) *FetchError {
	return &FetchError{
		Key:       key,
		Transient: IsConnectionReset(err),
		Err:       err,
	}
}

// LocalIOError reports a failed local filesystem operation.
type LocalIOError struct {
	Op   string
	Path string
	Err  error
}

func (e *LocalIOError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

func (e *LocalIOError) Unwrap() error {
	return e.Err
}

// ValidationError reports a malformed store response or an unusable entry.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// IsConnectionReset reports whether err was caused by the peer resetting
// the connection.
func IsConnectionReset(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, syscall.ECONNRESET) {
		return true
	}
	return strings.Contains(err.Error(), "connection reset by peer")
}

// IsTransient reports whether err is a fetch failure worth retrying.
func IsTransient(err error) bool {
	var fe *FetchError
	if errors.As(err, &fe) {
		return fe.Transient
	}
	return false
}
