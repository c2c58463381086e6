package appointments

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/wolfman30/telehealth-scheduling/internal/audit"
	"github.com/wolfman30/telehealth-scheduling/internal/notify"
	"github.com/wolfman30/telehealth-scheduling/internal/postcommit"
	"github.com/wolfman30/telehealth-scheduling/internal/scheduling"
)

// ReasonRescheduled marks a cancellation that is half of a reschedule.
const ReasonRescheduled = "rescheduled"

// CancelRequest is a cancellation intent.
type CancelRequest struct {
	AppointmentID uuid.UUID
	CanceledBy    uuid.UUID
	Reason        string
	// ViaExternalWebhook is true when the cancellation originated in the
	// owning backend; the remote cancel call is then skipped.
	ViaExternalWebhook bool

	rescheduledTo *uuid.UUID
}

// Cancel cancels an appointment. Local cancellation always succeeds once
// requested: a failing remote cancel is logged and left for
// reconciliation to repair, never surfaced as a failure.
func (o *Orchestrator) Cancel(ctx context.Context, req CancelRequest) error {
	ctx, span := tracer.Start(ctx, "appointments.Cancel")
	defer span.End()

	appt, err := o.repo.GetByID(ctx, req.AppointmentID)
	if err != nil {
		return err
	}
	if appt.Canceled {
		// terminal state; canceling again is a no-op
		return nil
	}

	buffer := audit.NewBuffer()
	if !req.ViaExternalWebhook {
		backend, err := o.registry.For(appt.Backend)
		if err != nil {
			return err
		}
		audited := scheduling.NewAudited(backend, buffer, appt.AccountID)
		started := o.now()
		if err := audited.CancelBooking(ctx, appt.RemoteID, req.Reason); err != nil {
			o.logger.Error("remote cancel failed, proceeding with local cancellation",
				"appointment_id", appt.ID, "remote_id", appt.RemoteID, "error", err)
			o.metrics.ObserveCancellation(string(appt.Backend), "remote_error")
		}
		o.metrics.ObserveBackendLatency(string(appt.Backend), "cancel", o.now().Sub(started).Seconds())
	}

	var canceledBy *uuid.UUID
	if req.CanceledBy != uuid.Nil {
		canceledBy = &req.CanceledBy
	}
	_ = buffer.Record(ctx, audit.Entry{
		AccountID: appt.AccountID,
		Kind:      audit.KindBookingCanceled,
		Backend:   string(appt.Backend),
		RemoteID:  appt.RemoteID,
		Payload: audit.Detail(map[string]any{
			"appointment_id": appt.ID,
			"reason":         req.Reason,
			"via_webhook":    req.ViaExternalWebhook,
		}),
	})

	err = postcommit.InTx(ctx, o.db, o.runner, func(ctx context.Context, tx pgx.Tx, q *postcommit.Queue) error {
		txRepo := o.repo.WithTx(tx)
		if err := txRepo.MarkCanceled(ctx, appt.ID, canceledBy, req.Reason, req.rescheduledTo); err != nil {
			return err
		}
		if err := txRepo.CancelFollowUpTasks(ctx, appt.ID); err != nil {
			return err
		}
		if err := buffer.Flush(ctx, o.auditStore.WithTx(tx)); err != nil {
			return err
		}
		o.queueCancelSideEffects(ctx, q, appt, req)
		return nil
	})
	if err != nil {
		return err
	}

	o.metrics.ObserveCancellation(string(appt.Backend), "success")
	o.logger.Info("appointment canceled",
		"appointment_id", appt.ID, "backend", appt.Backend, "via_webhook", req.ViaExternalWebhook)
	return nil
}

func (o *Orchestrator) queueCancelSideEffects(ctx context.Context, q *postcommit.Queue, appt *Appointment, req CancelRequest) {
	if appt.MeetingID != "" {
		meetingID := appt.MeetingID
		q.Add("video-deprovision", func(ctx context.Context) error {
			return o.provisioner.Deprovision(ctx, meetingID)
		})
	}
	o.queueAvailabilityResync(q, appt.ProviderID, appt.Start)
	// reschedule sends its own notification; webhook-origin cancels were
	// already announced by the external system
	if o.dispatcher != nil && appt.Backend == scheduling.VariantNative &&
		req.Reason != ReasonRescheduled && !req.ViaExternalWebhook {
		account, err := o.accounts.FindByID(ctx, appt.AccountID)
		if err != nil {
			o.logger.Warn("skipping cancel notification, account lookup failed", "account_id", appt.AccountID, "error", err)
			return
		}
		provider, err := o.providers.FindByID(ctx, appt.ProviderID)
		if err != nil {
			o.logger.Warn("skipping cancel notification, provider lookup failed", "provider_id", appt.ProviderID, "error", err)
			return
		}
		msg := notify.Message{
			Template:       notify.TemplateBookingCanceled,
			AppointmentID:  appt.ID.String(),
			RecipientEmail: account.Email,
			RecipientName:  account.FirstName,
			ProviderName:   provider.DisplayName,
			Start:          appt.Start,
			Timezone:       appt.Timezone,
		}
		q.Add("cancel-notification", func(ctx context.Context) error {
			return o.dispatcher.Enqueue(ctx, msg)
		})
	}
}

// Reschedule books a replacement appointment and then cancels the
// original with a link to the replacement. If the new booking fails the
// original is left untouched; the order is never reversed.
func (o *Orchestrator) Reschedule(ctx context.Context, appointmentID uuid.UUID, newStart time.Time, actor uuid.UUID) (*Appointment, error) {
	ctx, span := tracer.Start(ctx, "appointments.Reschedule")
	defer span.End()

	old, err := o.repo.GetByID(ctx, appointmentID)
	if err != nil {
		return nil, err
	}
	if old.Canceled {
		return nil, &ValidationError{Field: "appointment_id", Reason: "appointment is already canceled"}
	}

	replacement, err := o.Create(ctx, CreateRequest{
		AccountID:        old.AccountID,
		CreatorAccountID: actor,
		ProviderID:       old.ProviderID,
		TypeID:           old.TypeID,
		Start:            newStart,
		Timezone:         old.Timezone,
	})
	if err != nil {
		return nil, fmt.Errorf("appointments: reschedule: book replacement: %w", err)
	}

	cancelErr := o.Cancel(ctx, CancelRequest{
		AppointmentID: old.ID,
		CanceledBy:    actor,
		Reason:        ReasonRescheduled,
		rescheduledTo: &replacement.ID,
	})
	if cancelErr != nil {
		// the replacement is booked; the stale original will be caught by
		// reconciliation or staff
		o.logger.Error("reschedule booked replacement but failed to cancel original",
			"original_id", old.ID, "replacement_id", replacement.ID, "error", cancelErr)
	}

	o.queueRescheduleNotification(ctx, old, replacement)
	return replacement, nil
}

// queueRescheduleNotification announces the move for native bookings.
// It runs directly on the runner because both transactions have already
// committed by the time the reschedule is complete.
func (o *Orchestrator) queueRescheduleNotification(ctx context.Context, old, replacement *Appointment) {
	if o.dispatcher == nil || o.runner == nil || replacement.Backend != scheduling.VariantNative {
		return
	}
	account, err := o.accounts.FindByID(ctx, replacement.AccountID)
	if err != nil {
		o.logger.Warn("skipping reschedule notification, account lookup failed", "account_id", replacement.AccountID, "error", err)
		return
	}
	provider, err := o.providers.FindByID(ctx, replacement.ProviderID)
	if err != nil {
		o.logger.Warn("skipping reschedule notification, provider lookup failed", "provider_id", replacement.ProviderID, "error", err)
		return
	}
	msg := notify.Message{
		Template:       notify.TemplateBookingRescheduled,
		AppointmentID:  replacement.ID.String(),
		RecipientEmail: account.Email,
		RecipientName:  account.FirstName,
		ProviderName:   provider.DisplayName,
		Start:          old.Start,
		NewStart:       replacement.Start,
		Timezone:       replacement.Timezone,
		JoinURL:        replacement.JoinURL,
	}
	o.runner.Dispatch([]postcommit.Task{{
		Name: "reschedule-notification",
		Run: func(ctx context.Context) error {
			return o.dispatcher.Enqueue(ctx, msg)
		},
	}})
}

// ApplyExternalReschedule aligns the local mirror with a move that
// already happened in the owning backend. EHR bookings are canceled
// and left for reconciliation, which re-materializes them from the
// authoritative schedule; other backends never reconcile, so their
// local record is moved in place.
func (o *Orchestrator) ApplyExternalReschedule(ctx context.Context, appointmentID uuid.UUID, newStart time.Time) error {
	ctx, span := tracer.Start(ctx, "appointments.ApplyExternalReschedule")
	defer span.End()

	appt, err := o.repo.GetByID(ctx, appointmentID)
	if err != nil {
		return err
	}
	if appt.Canceled {
		return nil
	}
	if appt.Backend == scheduling.VariantEHR {
		return o.Cancel(ctx, CancelRequest{
			AppointmentID:      appt.ID,
			Reason:             ReasonRescheduled,
			ViaExternalWebhook: true,
		})
	}

	newEnd := newStart.Add(appt.End.Sub(appt.Start))
	err = postcommit.InTx(ctx, o.db, o.runner, func(ctx context.Context, tx pgx.Tx, q *postcommit.Queue) error {
		if err := o.repo.WithTx(tx).UpdateSchedule(ctx, appt.ID, newStart, newEnd); err != nil {
			return err
		}
		if err := o.auditStore.WithTx(tx).Record(ctx, audit.Entry{
			AccountID: appt.AccountID,
			Kind:      audit.KindBookingRescheduled,
			Backend:   string(appt.Backend),
			RemoteID:  appt.RemoteID,
			Payload: audit.Detail(map[string]any{
				"appointment_id": appt.ID,
				"old_start":      appt.Start,
				"new_start":      newStart,
			}),
		}); err != nil {
			return err
		}
		o.queueAvailabilityResync(q, appt.ProviderID, appt.Start)
		return nil
	})
	if err != nil {
		return err
	}

	o.logger.Info("externally rescheduled booking moved locally",
		"appointment_id", appt.ID, "backend", appt.Backend, "new_start", newStart)
	return nil
}

// SetAttendance applies the attendance state machine: unknown may move
// to any state, and setting the current state again is a no-op.
func (o *Orchestrator) SetAttendance(ctx context.Context, appointmentID uuid.UUID, status Attendance) error {
	if !status.Valid() {
		return &ValidationError{Field: "attendance", Reason: "unknown attendance status"}
	}
	appt, err := o.repo.GetByID(ctx, appointmentID)
	if err != nil {
		return err
	}
	if appt.Attendance == status {
		return nil
	}
	if appt.Attendance != AttendanceUnknown {
		return &ValidationError{
			Field:  "attendance",
			Reason: fmt.Sprintf("cannot change attendance from %s to %s", appt.Attendance, status),
		}
	}
	if err := o.repo.SetAttendance(ctx, appointmentID, status); err != nil {
		return err
	}
	o.logger.Info("attendance recorded", "appointment_id", appointmentID, "status", status)
	return nil
}

// FindByRemoteID resolves a live appointment from its remote booking
// identifier. The webhook handler uses it for externally-originated
// cancellations.
func (o *Orchestrator) FindByRemoteID(ctx context.Context, remoteID string) (*Appointment, error) {
	return o.repo.GetByRemoteID(ctx, remoteID)
}
