// Package audit keeps the append-only trail of every external-system
// interaction and local scheduling mutation. Entries are written inside the
// same database transaction as the mutation they document, so an entry never
// exists for a booking that did not commit.
package audit

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Kind classifies an audit entry.
type Kind string

const (
	// KindBackendCreate records the outcome of a remote createBooking call.
	KindBackendCreate Kind = "backend.create"
	// KindBackendCancel records the outcome of a remote cancelBooking call.
	KindBackendCancel Kind = "backend.cancel"
	// KindBackendQuery records a remote schedule query.
	KindBackendQuery Kind = "backend.query"
	// KindBookingCreated records a locally committed booking.
	KindBookingCreated Kind = "booking.created"
	// KindBookingDuplicated records a duplicate-across-accounts clone.
	KindBookingDuplicated Kind = "booking.duplicated"
	// KindBookingCanceled records a local cancellation.
	KindBookingCanceled Kind = "booking.canceled"
	// KindBookingRescheduled records a local move driven by the owning
	// backend.
	KindBookingRescheduled Kind = "booking.rescheduled"
	// KindReconcileCreated records an appointment materialized from the
	// remote authoritative schedule.
	KindReconcileCreated Kind = "reconcile.created"
	// KindReconcileCanceled records an implicit cancellation detected by
	// reconciliation.
	KindReconcileCanceled Kind = "reconcile.canceled"
)

// Entry is an immutable audit record. Entries are appended, never mutated.
type Entry struct {
	ID        uuid.UUID       `json:"id"`
	AccountID uuid.UUID       `json:"account_id"`
	Kind      Kind            `json:"kind"`
	Backend   string          `json:"backend,omitempty"`
	RemoteID  string          `json:"remote_id,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}

// Recorder appends audit entries.
type Recorder interface {
	Record(ctx context.Context, entry Entry) error
}

// Detail marshals a request/response snapshot into an entry payload.
// Marshal failures degrade to a null payload rather than blocking the
// operation being audited.
func Detail(v any) json.RawMessage {
	data, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	return data
}
