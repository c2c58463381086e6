// Package notify delivers appointment notifications. The orchestrator
// enqueues messages after commit; a worker drains the queue and sends
// email. Appointments booked on the calendar SaaS are never enqueued
// because that system notifies its own clients.
package notify

import "time"

// Template identifies the message body to render.
type Template string

const (
	TemplateBookingConfirmed   Template = "booking.confirmed"
	TemplateBookingCanceled    Template = "booking.canceled"
	TemplateBookingRescheduled Template = "booking.rescheduled"
)

// Message is the queue payload for a single notification.
type Message struct {
	Template       Template  `json:"template"`
	AppointmentID  string    `json:"appointment_id"`
	RecipientEmail string    `json:"recipient_email"`
	RecipientName  string    `json:"recipient_name"`
	ProviderName   string    `json:"provider_name"`
	VisitType      string    `json:"visit_type"`
	Start          time.Time `json:"start"`
	Timezone       string    `json:"timezone"`
	JoinURL        string    `json:"join_url,omitempty"`
	AccessCode     string    `json:"access_code,omitempty"`
	NewStart       time.Time `json:"new_start,omitempty"` // rescheduled-to time
}

// localStart renders the start in the recipient's timezone when known.
func (m Message) localStart(t time.Time) string {
	if loc, err := time.LoadLocation(m.Timezone); err == nil && m.Timezone != "" {
		t = t.In(loc)
	}
	return t.Format("Monday, January 2 at 3:04 PM MST")
}
