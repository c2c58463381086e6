package acuity

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/wolfman30/telehealth-scheduling/internal/scheduling"
	"github.com/wolfman30/telehealth-scheduling/pkg/logging"
)

// Adapter bridges the Acuity client into the shared scheduling backend
// interface.
type Adapter struct {
	client *Client
	logger *logging.Logger
}

// NewAdapter creates the calendar SaaS backend adapter.
func NewAdapter(client *Client, logger *logging.Logger) *Adapter {
	if client == nil {
		panic("acuity: client required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Adapter{client: client, logger: logger.Component("acuity-backend")}
}

// Name returns the calendar variant.
func (a *Adapter) Name() scheduling.Variant { return scheduling.VariantCalendar }

// CreateBooking books the slot through Acuity's appointment API.
func (a *Adapter) CreateBooking(ctx context.Context, req scheduling.BookingRequest) (*scheduling.RemoteBooking, error) {
	typeID, err := strconv.ParseInt(strings.TrimSpace(req.VisitTypeRemoteID), 10, 64)
	if err != nil {
		return nil, scheduling.Permanent("appointment type is not linked to the calendar system", err)
	}

	createReq := CreateAppointmentRequest{
		Datetime:          req.Slot.Start.Format(time.RFC3339),
		AppointmentTypeID: typeID,
		FirstName:         req.Attendee.FirstName,
		LastName:          req.Attendee.LastName,
		Email:             req.Attendee.Email,
		Phone:             req.Attendee.Phone,
		Notes:             req.Notes,
	}
	if calID, err := strconv.ParseInt(strings.TrimSpace(req.Slot.ProviderRemoteID), 10, 64); err == nil {
		createReq.CalendarID = calID
	}

	appt, err := a.client.CreateAppointment(ctx, createReq)
	if err != nil {
		return nil, classify(err)
	}
	return &scheduling.RemoteBooking{RemoteID: strconv.FormatInt(appt.ID, 10)}, nil
}

// CancelBooking cancels the Acuity appointment. A booking Acuity no longer
// has is treated as success.
func (a *Adapter) CancelBooking(ctx context.Context, remoteID, reason string) error {
	id, err := strconv.ParseInt(strings.TrimSpace(remoteID), 10, 64)
	if err != nil {
		a.logger.Warn("acuity cancel with malformed remote id, treating as already gone", "remote_id", remoteID)
		return nil
	}
	if err := a.client.CancelAppointment(ctx, id, reason); err != nil {
		var se *statusError
		if errors.As(err, &se) && se.status == http.StatusNotFound {
			a.logger.Debug("acuity booking already gone", "remote_id", remoteID)
			return nil
		}
		return classify(err)
	}
	return nil
}

// QuerySchedule lists the client's upcoming Acuity appointments. The
// remote patient handle for the calendar variant is the client email.
func (a *Adapter) QuerySchedule(ctx context.Context, remotePatientID string, from, to time.Time) ([]scheduling.RemoteAppointment, error) {
	appts, err := a.client.ListAppointments(ctx, remotePatientID, from)
	if err != nil {
		return nil, classify(err)
	}

	out := make([]scheduling.RemoteAppointment, 0, len(appts))
	for _, appt := range appts {
		if appt.Canceled {
			continue
		}
		start, err := time.Parse(time.RFC3339, appt.Datetime)
		if err != nil {
			a.logger.Warn("acuity appointment with unparseable datetime skipped", "id", appt.ID, "datetime", appt.Datetime)
			continue
		}
		end, err := time.Parse(time.RFC3339, appt.EndTime)
		if err != nil {
			end = start
		}
		if !to.IsZero() && start.After(to) {
			continue
		}
		out = append(out, scheduling.RemoteAppointment{
			RemoteID:          strconv.FormatInt(appt.ID, 10),
			ProviderRemoteID:  strconv.FormatInt(appt.CalendarID, 10),
			VisitTypeRemoteID: strconv.FormatInt(appt.AppointmentTypeID, 10),
			Start:             start,
			End:               end,
		})
	}
	return out, nil
}

// classify maps Acuity failures onto the shared error taxonomy.
func classify(err error) error {
	var se *statusError
	if !errors.As(err, &se) {
		// transport-level failure (timeout, connection reset)
		return scheduling.Transient(err)
	}
	switch {
	case se.status == http.StatusBadRequest && availabilityRejection(se):
		return fmt.Errorf("%w: %s", scheduling.ErrSlotUnavailable, se.message)
	case se.status >= 500, se.status == http.StatusTooManyRequests:
		return scheduling.Transient(err)
	default:
		return scheduling.Permanent(se.message, err)
	}
}

func availabilityRejection(se *statusError) bool {
	switch se.code {
	case "not_available", "no_available_calendar", "invalid_timezone_choice":
		return true
	}
	return strings.Contains(strings.ToLower(se.message), "not available")
}

var _ scheduling.Backend = (*Adapter)(nil)
