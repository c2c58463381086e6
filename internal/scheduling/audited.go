package scheduling

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/wolfman30/telehealth-scheduling/internal/audit"
)

// Audited wraps a Backend so that every call produces exactly one audit
// entry regardless of outcome. Callers pass a per-operation recorder
// (usually an audit.Buffer flushed inside the enclosing transaction).
type Audited struct {
	backend   Backend
	recorder  audit.Recorder
	accountID uuid.UUID
}

// NewAudited decorates backend with audit recording attributed to accountID.
func NewAudited(backend Backend, recorder audit.Recorder, accountID uuid.UUID) *Audited {
	if backend == nil {
		panic("scheduling: backend required")
	}
	if recorder == nil {
		panic("scheduling: recorder required")
	}
	return &Audited{backend: backend, recorder: recorder, accountID: accountID}
}

// Name returns the wrapped backend's variant.
func (a *Audited) Name() Variant { return a.backend.Name() }

type callOutcome struct {
	Request  any    `json:"request,omitempty"`
	Response any    `json:"response,omitempty"`
	Error    string `json:"error,omitempty"`
}

// CreateBooking delegates and records the call outcome.
func (a *Audited) CreateBooking(ctx context.Context, req BookingRequest) (*RemoteBooking, error) {
	res, err := a.backend.CreateBooking(ctx, req)
	outcome := callOutcome{Request: req, Response: res}
	if err != nil {
		outcome.Error = err.Error()
	}
	entry := audit.Entry{
		AccountID: a.accountID,
		Kind:      audit.KindBackendCreate,
		Backend:   string(a.backend.Name()),
		Payload:   audit.Detail(outcome),
	}
	if res != nil {
		entry.RemoteID = res.RemoteID
	}
	_ = a.recorder.Record(ctx, entry)
	return res, err
}

// CancelBooking delegates and records the call outcome.
func (a *Audited) CancelBooking(ctx context.Context, remoteID, reason string) error {
	err := a.backend.CancelBooking(ctx, remoteID, reason)
	outcome := callOutcome{Request: map[string]string{"remote_id": remoteID, "reason": reason}}
	if err != nil {
		outcome.Error = err.Error()
	}
	_ = a.recorder.Record(ctx, audit.Entry{
		AccountID: a.accountID,
		Kind:      audit.KindBackendCancel,
		Backend:   string(a.backend.Name()),
		RemoteID:  remoteID,
		Payload:   audit.Detail(outcome),
	})
	return err
}

// QuerySchedule delegates and records the call outcome.
func (a *Audited) QuerySchedule(ctx context.Context, remotePatientID string, from, to time.Time) ([]RemoteAppointment, error) {
	appts, err := a.backend.QuerySchedule(ctx, remotePatientID, from, to)
	outcome := callOutcome{
		Request:  map[string]string{"patient": remotePatientID, "from": from.Format(time.RFC3339), "to": to.Format(time.RFC3339)},
		Response: map[string]int{"count": len(appts)},
	}
	if err != nil {
		outcome.Error = err.Error()
	}
	_ = a.recorder.Record(ctx, audit.Entry{
		AccountID: a.accountID,
		Kind:      audit.KindBackendQuery,
		Backend:   string(a.backend.Name()),
		Payload:   audit.Detail(outcome),
	})
	return appts, err
}

var _ Backend = (*Audited)(nil)
