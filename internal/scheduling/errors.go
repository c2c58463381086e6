package scheduling

import (
	"errors"
	"fmt"
)

// ErrSlotUnavailable means the remote system rejected the booking because
// the slot is taken. Callers surface it as "pick another time", never as an
// incident.
var ErrSlotUnavailable = errors.New("scheduling: slot no longer available")

// TransientError marks a retryable remote failure (timeout, 5xx). The
// orchestrator does not retry automatically; the caller may.
type TransientError struct {
	Err error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("scheduling: transient backend failure: %v", e.Err)
}

func (e *TransientError) Unwrap() error { return e.Err }

// Transient wraps err as a TransientError.
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return &TransientError{Err: err}
}

// IsTransient reports whether err is a transient backend failure.
func IsTransient(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}

// PermanentError marks a non-availability rejection by the remote system.
// Detail holds the portion of the remote error that is safe to show callers.
type PermanentError struct {
	Detail string
	Err    error
}

func (e *PermanentError) Error() string {
	return fmt.Sprintf("scheduling: backend rejected request: %s", e.Detail)
}

func (e *PermanentError) Unwrap() error { return e.Err }

// Permanent wraps err as a PermanentError with a caller-safe detail string.
func Permanent(detail string, err error) error {
	return &PermanentError{Detail: detail, Err: err}
}

// IsPermanent reports whether err is a permanent backend rejection.
func IsPermanent(err error) bool {
	var pe *PermanentError
	return errors.As(err, &pe)
}
