package acuity

// Appointment is Acuity's appointment resource, reduced to the fields the
// scheduling engine consumes.
type Appointment struct {
	ID                int64  `json:"id"`
	FirstName         string `json:"firstName"`
	LastName          string `json:"lastName"`
	Email             string `json:"email"`
	Phone             string `json:"phone"`
	Datetime          string `json:"datetime"` // ISO 8601 with offset
	EndTime           string `json:"endTime"`
	CalendarID        int64  `json:"calendarID"`
	AppointmentTypeID int64  `json:"appointmentTypeID"`
	Canceled          bool   `json:"canceled"`
	Timezone          string `json:"timezone"`
}

// CreateAppointmentRequest is the booking payload.
type CreateAppointmentRequest struct {
	Datetime          string `json:"datetime"`
	AppointmentTypeID int64  `json:"appointmentTypeID"`
	CalendarID        int64  `json:"calendarID,omitempty"`
	FirstName         string `json:"firstName"`
	LastName          string `json:"lastName"`
	Email             string `json:"email"`
	Phone             string `json:"phone,omitempty"`
	Notes             string `json:"notes,omitempty"`
}

// apiError is Acuity's error envelope.
type apiError struct {
	StatusCode int    `json:"status_code"`
	ErrorCode  string `json:"error"`
	Message    string `json:"message"`
}
