// Package appointments holds the booking, cancellation, reschedule and
// reconciliation orchestration. All local appointment state lives here;
// remote state belongs to whichever scheduling backend owns the
// appointment type.
package appointments

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/wolfman30/telehealth-scheduling/internal/scheduling"
)

// NativeSlotGranularity is the slot ledger's grid. Native appointment
// type durations must be a multiple of it.
const NativeSlotGranularity = 5 * time.Minute

// Attendance tracks whether the patient showed up.
type Attendance string

const (
	AttendanceUnknown  Attendance = "unknown"
	AttendanceAttended Attendance = "attended"
	AttendanceNoShow   Attendance = "no_show"
	AttendanceCanceled Attendance = "canceled"
)

// Valid reports whether a is a known attendance status.
func (a Attendance) Valid() bool {
	switch a {
	case AttendanceUnknown, AttendanceAttended, AttendanceNoShow, AttendanceCanceled:
		return true
	}
	return false
}

// AppointmentType is a bookable offering. Types are soft-deleted so
// existing appointments keep their history.
type AppointmentType struct {
	ID       uuid.UUID
	Title    string
	Duration time.Duration
	// Backend is the variant that owns bookings of this type. Changing it
	// only affects future bookings; existing appointments keep the backend
	// snapshot taken at creation time.
	Backend   scheduling.Variant
	RemoteID  string // backend-specific type handle, empty for native
	DeletedAt *time.Time
}

// Validate enforces the type invariants.
func (t *AppointmentType) Validate() error {
	if t.Duration <= 0 {
		return &ValidationError{Field: "duration", Reason: "must be positive"}
	}
	if t.Backend == scheduling.VariantNative && t.Duration%NativeSlotGranularity != 0 {
		return &ValidationError{
			Field:  "duration",
			Reason: fmt.Sprintf("native bookings must be a multiple of %s", NativeSlotGranularity),
		}
	}
	if !t.Backend.Valid() {
		return &ValidationError{Field: "backend", Reason: "unknown backend variant"}
	}
	return nil
}

// Deleted reports whether the type has been soft-deleted.
func (t *AppointmentType) Deleted() bool { return t.DeletedAt != nil }

// Appointment is a confirmed reservation of a provider's time.
type Appointment struct {
	ID         uuid.UUID
	ProviderID uuid.UUID
	AccountID  uuid.UUID
	// CreatorAccountID differs from AccountID for staff-assisted bookings.
	CreatorAccountID uuid.UUID
	TypeID           uuid.UUID
	// Backend is the variant snapshot taken when the booking was made.
	Backend  scheduling.Variant
	Start    time.Time
	End      time.Time
	Timezone string
	// RemoteID is the owning backend's handle for this booking. It is the
	// sole matching key used by reconciliation.
	RemoteID string

	// Videoconference fields, empty for phone visits.
	MeetingID  string
	JoinURL    string
	AccessCode string

	// Cancellation is terminal; these fields are set once, never cleared.
	Canceled     bool
	CanceledAt   *time.Time
	CanceledBy   *uuid.UUID
	CancelReason string
	// RescheduledTo points at the replacement appointment when this one was
	// canceled for a reschedule.
	RescheduledTo *uuid.UUID

	Attendance Attendance
	CreatedAt  time.Time
}
