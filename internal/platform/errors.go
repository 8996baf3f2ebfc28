package platform

import (
	"errors"
	"fmt"
)

// ErrorCode classifies a platform failure. The synchronizer maps each code
// to a recovery strategy: purge, clear cached id, degrade, or retry later.
type ErrorCode string

const (
	// ErrCodeChannelGone means the channel is permanently inaccessible
	// (bot removed, channel archived or deleted). Terminal for the
	// channel: all local state is purged.
	ErrCodeChannelGone ErrorCode = "CHANNEL_GONE"

	// ErrCodeCanvasStale means the cached canvas id no longer resolves.
	// Recoverable: only the cached id is dropped.
	ErrCodeCanvasStale ErrorCode = "CANVAS_STALE"

	// ErrCodeAccessDenied means canvas writes are not permitted at all.
	// The summary is posted as a plain message instead.
	ErrCodeAccessDenied ErrorCode = "ACCESS_DENIED"

	// ErrCodeUnsupported means the platform does not implement the
	// operation. Callers treat it as a best-effort miss.
	ErrCodeUnsupported ErrorCode = "UNSUPPORTED"

	// ErrCodeRateLimit means the operation was rate limited upstream.
	ErrCodeRateLimit ErrorCode = "RATE_LIMIT"

	// ErrCodeConnection means a transient network failure.
	ErrCodeConnection ErrorCode = "CONNECTION_ERROR"

	// ErrCodeInternal is the catch-all for unexpected failures.
	ErrCodeInternal ErrorCode = "INTERNAL_ERROR"
)

// Error is a platform failure with a machine-readable code.
type Error struct {
	Code    ErrorCode
	Op      string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %s: %v", e.Code, e.Op, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s: %s", e.Code, e.Op, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// NewError creates an Error with the given code, operation, and message.
func NewError(code ErrorCode, op, message string, err error) *Error {
	return &Error{Code: code, Op: op, Message: message, Err: err}
}

// CodeOf extracts the ErrorCode from err, or ErrCodeInternal when err is
// not a platform Error.
func CodeOf(err error) ErrorCode {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Code
	}
	return ErrCodeInternal
}

// IsRetryable reports whether err represents a transient failure that may
// succeed on a later cycle.
func IsRetryable(err error) bool {
	switch CodeOf(err) {
	case ErrCodeRateLimit, ErrCodeConnection, ErrCodeInternal:
		return err != nil
	default:
		return false
	}
}
