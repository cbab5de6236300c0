package labelsync

import (
	"errors"
	"fmt"
	"net/http"
)

// Error kinds
var (
	// ErrNotFound indicates a catalog or storage entity does not exist
	ErrNotFound = errors.New("not found")

	// ErrUnavailable indicates a backend could not be reached or timed out
	ErrUnavailable = errors.New("unavailable")

	// ErrInvalidState indicates the request cannot be served in the current state
	ErrInvalidState = errors.New("invalid state")

	// ErrExternalRejected indicates the annotation service answered with a non-2xx status
	ErrExternalRejected = errors.New("rejected by annotation service")

	// ErrUnauthorized is an ErrExternalRejected with status 401
	ErrUnauthorized = errors.New("annotation service token rejected")

	// ErrForbidden is an ErrExternalRejected with status 403
	ErrForbidden = errors.New("annotation service access forbidden")

	// ErrNoLabels indicates a project cannot be created without class labels
	ErrNoLabels = &stateError{msg: "no class labels for project"}
)

type stateError struct {
	msg string
}

func (e *stateError) Error() string { return e.msg }

func (e *stateError) Is(target error) bool { return target == ErrInvalidState }

// StorageError represents an error related to storage operations
type StorageError struct {
	Backend string
	Key     string
	Op      string
	Err     error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage operation %s failed for key %s on backend %s: %v", e.Op, e.Key, e.Backend, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// RejectedError is returned when the annotation service answers a call with
// an unexpected status code.
type RejectedError struct {
	Op         string
	StatusCode int
	Body       string
}

func (e *RejectedError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("annotation %s failed: HTTP %d", e.Op, e.StatusCode)
	}
	return fmt.Sprintf("annotation %s failed: HTTP %d: %s", e.Op, e.StatusCode, e.Body)
}

func (e *RejectedError) Is(target error) bool {
	switch target {
	case ErrExternalRejected:
		return true
	case ErrUnauthorized:
		return e.StatusCode == http.StatusUnauthorized
	case ErrForbidden:
		return e.StatusCode == http.StatusForbidden
	case ErrNotFound:
		return e.StatusCode == http.StatusNotFound
	}
	return false
}

// Error kind names, as reported to API clients.
const (
	KindNotFound     = "not_found"
	KindUnavailable  = "unavailable"
	KindInvalidState = "invalid_state"
	KindUnauthorized = "unauthorized"
	KindForbidden    = "forbidden"
	KindRejected     = "external_rejected"
	KindInternal     = "internal"
)

// ErrorKind classifies err into one of the Kind* names.
func ErrorKind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrNotFound):
		return KindNotFound
	case errors.Is(err, ErrInvalidState):
		return KindInvalidState
	case errors.Is(err, ErrUnauthorized):
		return KindUnauthorized
	case errors.Is(err, ErrForbidden):
		return KindForbidden
	case errors.Is(err, ErrExternalRejected):
		return KindRejected
	case errors.Is(err, ErrUnavailable):
		return KindUnavailable
	}
	return KindInternal
}
