// Package scheduling defines the backend abstraction shared by the booking
// orchestrator and the reconciliation engine. Each bookable appointment type
// is owned by exactly one backend variant (native slot ledger, Acuity
// calendar SaaS, or the Athena EHR scheduling API); all of them are driven
// through the Backend interface so orchestrator code branches on the variant
// once, at dispatch time.
package scheduling

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Variant identifies which scheduling system owns a booking.
type Variant string

const (
	// VariantNative is the in-house slot ledger backed by Postgres.
	VariantNative Variant = "native"
	// VariantCalendar is the Acuity calendar-booking SaaS.
	VariantCalendar Variant = "calendar"
	// VariantEHR is the hospital EHR scheduling API (Athena FHIR).
	VariantEHR Variant = "ehr"
)

// Valid reports whether v is a known backend variant.
func (v Variant) Valid() bool {
	switch v {
	case VariantNative, VariantCalendar, VariantEHR:
		return true
	}
	return false
}

// Slot is the provider time window being reserved.
type Slot struct {
	ProviderID       uuid.UUID
	ProviderRemoteID string // backend-specific provider handle
	Start            time.Time
	End              time.Time
	Timezone         string
}

// Attendee carries the patient details forwarded to the remote system.
type Attendee struct {
	AccountID       uuid.UUID
	RemotePatientID string // backend-specific patient handle, may be empty
	FirstName       string
	LastName        string
	Email           string
	Phone           string
}

// BookingRequest is the backend-neutral create request.
type BookingRequest struct {
	Slot              Slot
	Attendee          Attendee
	VisitTypeRemoteID string // backend-specific appointment type handle
	Title             string
	Notes             string
}

// RemoteBooking is the remote system's confirmation of a booking.
type RemoteBooking struct {
	// RemoteID is the external handle for the booking (visit/contact number).
	// It is the sole matching key used by reconciliation.
	RemoteID string
	// JoinHint is set when the remote platform manages its own conference
	// link; the orchestrator then skips videoconference provisioning hints.
	JoinHint string
}

// RemoteAppointment is one entry of a remote authoritative schedule.
type RemoteAppointment struct {
	RemoteID          string
	ProviderRemoteID  string
	VisitTypeRemoteID string
	Start             time.Time
	End               time.Time
}

// Backend is implemented once per scheduling system variant.
type Backend interface {
	// Name returns the variant this backend serves.
	Name() Variant

	// CreateBooking reserves the slot remotely. Slot contention is reported
	// as ErrSlotUnavailable; remote outages as TransientError.
	CreateBooking(ctx context.Context, req BookingRequest) (*RemoteBooking, error)

	// CancelBooking cancels a remote booking. Implementations treat a
	// booking that is already gone remotely as success, not error.
	CancelBooking(ctx context.Context, remoteID, reason string) error

	// QuerySchedule returns the remote authoritative upcoming schedule for
	// a patient. Only the reconciliation engine calls this, and only for
	// EHR-backed accounts; other variants may return an empty list.
	QuerySchedule(ctx context.Context, remotePatientID string, from, to time.Time) ([]RemoteAppointment, error)
}
