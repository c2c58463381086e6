// Package emr defines the interface the scheduling engine needs from a
// hospital EHR scheduling API. Only booking, cancellation and schedule
// queries are modeled here; charting and clinical data stay in the EHR.
package emr

import (
	"context"
	"time"
)

// Client is implemented per EHR vendor integration.
type Client interface {
	// CreateAppointment books an appointment in the EHR system
	CreateAppointment(ctx context.Context, req AppointmentRequest) (*Appointment, error)

	// CancelAppointment cancels an existing appointment by its EHR id
	CancelAppointment(ctx context.Context, appointmentID, reason string) error

	// ListPatientAppointments returns the patient's booked appointments in
	// the window. This is the authoritative schedule reconciliation runs
	// against.
	ListPatientAppointments(ctx context.Context, patientID string, from, to time.Time) ([]Appointment, error)
}

// AppointmentRequest represents a request to book an appointment
type AppointmentRequest struct {
	PatientID   string    // EHR patient ID
	ProviderID  string    // EHR practitioner ID
	VisitTypeID string    // EHR visit/service type code
	StartTime   time.Time // Appointment start time
	EndTime     time.Time // Appointment end time
	Notes       string    // Optional appointment notes
}

// Appointment represents a booked appointment in the EHR
type Appointment struct {
	ID          string    // EHR-specific appointment identifier (contact/visit number)
	PatientID   string    // Patient identifier
	ProviderID  string    // Practitioner identifier
	VisitTypeID string    // Visit/service type code
	StartTime   time.Time // Appointment start time
	EndTime     time.Time // Appointment end time
	Status      string    // "booked", "cancelled", "fulfilled", ...
	Notes       string    // Appointment notes
}
