package appointments

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// ErrNotFound is returned when an appointment or appointment type does
// not exist.
var ErrNotFound = errors.New("appointments: not found")

// ValidationError is a user-correctable request problem. It is returned
// directly and never logged as an incident.
type ValidationError struct {
	Field  string
	Reason string
	Err    error
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("appointments: %s", e.Reason)
	}
	return fmt.Sprintf("appointments: %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error { return e.Err }

// IsValidation reports whether err is a validation failure.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// GatingError means the account has not passed the provider's intake
// assessment. Callers use it to redirect the user into intake instead
// of showing a generic failure.
type GatingError struct {
	ProviderID uuid.UUID
}

func (e *GatingError) Error() string {
	return fmt.Sprintf("appointments: intake assessment required for provider %s", e.ProviderID)
}

// IsGating reports whether err is an intake gating rejection.
func IsGating(err error) bool {
	var ge *GatingError
	return errors.As(err, &ge)
}
