package athena

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/wolfman30/telehealth-scheduling/internal/emr"
	"github.com/wolfman30/telehealth-scheduling/internal/scheduling"
	"github.com/wolfman30/telehealth-scheduling/pkg/logging"
)

// Adapter bridges the Athena EHR client into the shared scheduling
// backend interface.
type Adapter struct {
	client emr.Client
	logger *logging.Logger
}

// NewAdapter creates the EHR backend adapter.
func NewAdapter(client emr.Client, logger *logging.Logger) *Adapter {
	if client == nil {
		panic("athena: client required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Adapter{client: client, logger: logger.Component("ehr-backend")}
}

// Name returns the EHR variant.
func (a *Adapter) Name() scheduling.Variant { return scheduling.VariantEHR }

// CreateBooking books the slot in the hospital EHR. The attendee must
// already be registered there; accounts without an EHR patient id
// cannot book on this variant.
func (a *Adapter) CreateBooking(ctx context.Context, req scheduling.BookingRequest) (*scheduling.RemoteBooking, error) {
	if strings.TrimSpace(req.Attendee.RemotePatientID) == "" {
		return nil, scheduling.Permanent("account is not registered with the hospital EHR", nil)
	}
	if strings.TrimSpace(req.Slot.ProviderRemoteID) == "" {
		return nil, scheduling.Permanent("provider is not linked to the hospital EHR", nil)
	}

	appt, err := a.client.CreateAppointment(ctx, emr.AppointmentRequest{
		PatientID:   req.Attendee.RemotePatientID,
		ProviderID:  req.Slot.ProviderRemoteID,
		VisitTypeID: req.VisitTypeRemoteID,
		StartTime:   req.Slot.Start,
		EndTime:     req.Slot.End,
		Notes:       req.Notes,
	})
	if err != nil {
		return nil, classify(err)
	}
	return &scheduling.RemoteBooking{RemoteID: appt.ID}, nil
}

// CancelBooking cancels the EHR appointment. A booking the EHR no
// longer has is treated as success.
func (a *Adapter) CancelBooking(ctx context.Context, remoteID, reason string) error {
	if err := a.client.CancelAppointment(ctx, remoteID, reason); err != nil {
		var se *statusError
		if errors.As(err, &se) && (se.status == http.StatusNotFound || se.status == http.StatusGone) {
			a.logger.Debug("ehr booking already gone", "remote_id", remoteID)
			return nil
		}
		return classify(err)
	}
	return nil
}

// QuerySchedule lists the patient's booked EHR appointments. The remote
// patient handle for this variant is the Athena patient id.
func (a *Adapter) QuerySchedule(ctx context.Context, remotePatientID string, from, to time.Time) ([]scheduling.RemoteAppointment, error) {
	appts, err := a.client.ListPatientAppointments(ctx, remotePatientID, from, to)
	if err != nil {
		return nil, classify(err)
	}

	out := make([]scheduling.RemoteAppointment, 0, len(appts))
	for _, appt := range appts {
		if appt.Status == "cancelled" || appt.Status == "noshow" {
			continue
		}
		out = append(out, scheduling.RemoteAppointment{
			RemoteID:          appt.ID,
			ProviderRemoteID:  appt.ProviderID,
			VisitTypeRemoteID: appt.VisitTypeID,
			Start:             appt.StartTime,
			End:               appt.EndTime,
		})
	}
	return out, nil
}

// classify maps EHR failures onto the shared error taxonomy.
func classify(err error) error {
	var se *statusError
	if !errors.As(err, &se) {
		// transport-level failure (timeout, connection reset)
		return scheduling.Transient(err)
	}
	switch {
	case se.status == http.StatusConflict,
		se.status == http.StatusUnprocessableEntity && slotRejection(se):
		return fmt.Errorf("%w: %s", scheduling.ErrSlotUnavailable, se.message)
	case se.status >= 500, se.status == http.StatusTooManyRequests:
		return scheduling.Transient(err)
	default:
		return scheduling.Permanent(se.message, err)
	}
}

func slotRejection(se *statusError) bool {
	msg := strings.ToLower(se.message)
	return strings.Contains(msg, "not available") ||
		strings.Contains(msg, "already booked") ||
		strings.Contains(msg, "no slot")
}

var _ scheduling.Backend = (*Adapter)(nil)
