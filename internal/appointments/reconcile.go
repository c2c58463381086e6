package appointments

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.opentelemetry.io/otel/attribute"

	"github.com/wolfman30/telehealth-scheduling/internal/audit"
	"github.com/wolfman30/telehealth-scheduling/internal/directory"
	"github.com/wolfman30/telehealth-scheduling/internal/notify"
	"github.com/wolfman30/telehealth-scheduling/internal/postcommit"
	"github.com/wolfman30/telehealth-scheduling/internal/scheduling"
	"github.com/wolfman30/telehealth-scheduling/internal/video"
)

// defaultReconcileWindow is how far ahead the remote schedule is pulled.
const defaultReconcileWindow = 60 * 24 * time.Hour

// reconcileDiff is computed once per pass and discarded. Matching keys
// on remote booking identifier equality and nothing else.
type reconcileDiff struct {
	toCreate []scheduling.RemoteAppointment
	toCancel []Appointment
	matched  int
}

// UpcomingAppointments returns the account's upcoming schedule. For
// EHR-backed accounts the remote authoritative schedule is reconciled
// into the local mirror first, so the returned list is post-repair.
func (o *Orchestrator) UpcomingAppointments(ctx context.Context, accountID uuid.UUID) ([]Appointment, error) {
	ctx, span := tracer.Start(ctx, "appointments.UpcomingAppointments")
	defer span.End()

	account, err := o.accounts.FindByID(ctx, accountID)
	if err != nil {
		return nil, err
	}

	if account.EHRPatientID != "" {
		span.SetAttributes(attribute.Bool("reconciled", true))
		if err := o.reconcile(ctx, account); err != nil {
			// reconciliation is best-effort repair; a failed pass still
			// leaves the local mirror readable
			o.logger.Error("reconciliation pass failed", "account_id", account.ID, "error", err)
		}
	}

	return o.repo.ListUpcomingByAccount(ctx, account.ID, o.now())
}

// reconcile aligns the local mirror with the EHR's authoritative
// schedule. Single-record failures never abort the pass; each action
// commits in its own transaction so partial progress survives.
func (o *Orchestrator) reconcile(ctx context.Context, account *directory.Account) error {
	backend, err := o.registry.For(scheduling.VariantEHR)
	if err != nil {
		return err
	}

	from := o.now()
	to := from.Add(o.reconcileWindow)

	queryBuffer := audit.NewBuffer()
	audited := scheduling.NewAudited(backend, queryBuffer, account.ID)
	remote, err := audited.QuerySchedule(ctx, account.EHRPatientID, from, to)
	o.flushAuditBestEffort(ctx, queryBuffer)
	if err != nil {
		return fmt.Errorf("appointments: query remote schedule: %w", err)
	}

	local, err := o.repo.ListUpcomingByAccount(ctx, account.ID, from)
	if err != nil {
		return err
	}

	diff := computeDiff(local, remote)
	o.logger.Debug("reconciliation diff computed",
		"account_id", account.ID, "matched", diff.matched,
		"to_create", len(diff.toCreate), "to_cancel", len(diff.toCancel))

	for _, stale := range diff.toCancel {
		if err := o.reconcileCancel(ctx, account, stale); err != nil {
			o.logger.Warn("reconcile cancel failed, skipping record",
				"appointment_id", stale.ID, "remote_id", stale.RemoteID, "error", err)
			o.metrics.ObserveReconcile("skipped")
		}
	}
	for _, r := range diff.toCreate {
		if r.Start.Before(o.now()) {
			continue
		}
		if err := o.reconcileCreate(ctx, account, r); err != nil {
			o.logger.Warn("reconcile create failed, skipping record",
				"remote_id", r.RemoteID, "error", err)
			o.metrics.ObserveReconcile("skipped")
		}
	}
	return nil
}

// computeDiff keys solely on remote identifier equality. Only EHR-backed
// local records participate; native and calendar bookings are invisible
// to the EHR and must never be canceled by it.
func computeDiff(local []Appointment, remote []scheduling.RemoteAppointment) reconcileDiff {
	remoteByID := make(map[string]scheduling.RemoteAppointment, len(remote))
	for _, r := range remote {
		remoteByID[r.RemoteID] = r
	}

	var diff reconcileDiff
	localIDs := make(map[string]bool)
	for _, l := range local {
		if l.Backend != scheduling.VariantEHR {
			continue
		}
		localIDs[l.RemoteID] = true
		if _, ok := remoteByID[l.RemoteID]; ok {
			diff.matched++
		} else {
			diff.toCancel = append(diff.toCancel, l)
		}
	}
	for _, r := range remote {
		if !localIDs[r.RemoteID] {
			diff.toCreate = append(diff.toCreate, r)
		}
	}
	return diff
}

// reconcileCancel cancels a local record the EHR no longer has.
func (o *Orchestrator) reconcileCancel(ctx context.Context, account *directory.Account, stale Appointment) error {
	err := postcommit.InTx(ctx, o.db, o.runner, func(ctx context.Context, tx pgx.Tx, q *postcommit.Queue) error {
		txRepo := o.repo.WithTx(tx)
		if err := txRepo.MarkCanceled(ctx, stale.ID, nil, "canceled in EHR", nil); err != nil {
			if errors.Is(err, ErrNotFound) {
				// already canceled concurrently; idempotent
				return nil
			}
			return err
		}
		if err := txRepo.CancelFollowUpTasks(ctx, stale.ID); err != nil {
			return err
		}
		if err := o.auditStore.WithTx(tx).Record(ctx, audit.Entry{
			AccountID: account.ID,
			Kind:      audit.KindReconcileCanceled,
			Backend:   string(scheduling.VariantEHR),
			RemoteID:  stale.RemoteID,
			Payload:   audit.Detail(map[string]any{"appointment_id": stale.ID}),
		}); err != nil {
			return err
		}
		if stale.MeetingID != "" {
			meetingID := stale.MeetingID
			q.Add("video-deprovision", func(ctx context.Context) error {
				return o.provisioner.Deprovision(ctx, meetingID)
			})
		}
		o.queueAvailabilityResync(q, stale.ProviderID, stale.Start)
		return nil
	})
	if err != nil {
		return err
	}
	o.metrics.ObserveReconcile("canceled")
	return nil
}

// reconcileCreate materializes a local record for a remote booking made
// out-of-band. Unresolvable provider or visit type hints skip the record
// with a warning; the pass keeps moving.
func (o *Orchestrator) reconcileCreate(ctx context.Context, account *directory.Account, r scheduling.RemoteAppointment) error {
	provider, err := o.providers.FindByRemoteID(ctx, scheduling.VariantEHR, r.ProviderRemoteID)
	if err != nil {
		if errors.Is(err, directory.ErrNotFound) {
			o.logger.Warn("remote appointment references unknown provider, skipping",
				"remote_id", r.RemoteID, "provider_remote_id", r.ProviderRemoteID)
			o.metrics.ObserveReconcile("skipped")
			return nil
		}
		return err
	}
	apptType, err := o.repo.GetTypeByRemoteID(ctx, scheduling.VariantEHR, r.VisitTypeRemoteID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			o.logger.Warn("remote appointment references unknown visit type, skipping",
				"remote_id", r.RemoteID, "visit_type_remote_id", r.VisitTypeRemoteID)
			o.metrics.ObserveReconcile("skipped")
			return nil
		}
		return err
	}

	appt := &Appointment{
		ProviderID:       provider.ID,
		AccountID:        account.ID,
		CreatorAccountID: account.ID,
		TypeID:           apptType.ID,
		Backend:          scheduling.VariantEHR,
		Start:            r.Start,
		End:              r.End,
		Timezone:         provider.Timezone,
		RemoteID:         r.RemoteID,
		Attendance:       AttendanceUnknown,
	}
	if appt.End.IsZero() || !appt.End.After(appt.Start) {
		appt.End = appt.Start.Add(apptType.Duration)
	}

	// duplicate-across-accounts: the same remote booking may already be
	// mirrored under another account; clone its conference metadata and do
	// not provision again
	cloned := false
	if existing, err := o.repo.FindActiveBySlot(ctx, provider.ID, r.Start, account.ID); err == nil && existing.RemoteID == r.RemoteID {
		appt.MeetingID = existing.MeetingID
		appt.JoinURL = existing.JoinURL
		appt.AccessCode = existing.AccessCode
		cloned = true
	} else if err != nil && !errors.Is(err, ErrNotFound) {
		return err
	}

	if !cloned {
		if provider.VideoPlatform.NeedsProvisioning() {
			meeting, err := o.provisioner.Provision(ctx, provider.VideoconferenceCredentials(),
				apptType.Title, account.Email, video.Window{Start: appt.Start, End: appt.End})
			if err != nil {
				return fmt.Errorf("appointments: provision for reconciled booking: %w", err)
			}
			appt.MeetingID = meeting.ID
			appt.JoinURL = meeting.JoinURL
			appt.AccessCode = meeting.AccessCode
		} else if provider.VideoPlatform == video.PlatformExternal {
			appt.JoinURL = provider.ExternalJoinURL
		}
	}

	err = postcommit.InTx(ctx, o.db, o.runner, func(ctx context.Context, tx pgx.Tx, q *postcommit.Queue) error {
		if err := o.repo.WithTx(tx).Insert(ctx, appt); err != nil {
			return err
		}
		if err := o.auditStore.WithTx(tx).Record(ctx, audit.Entry{
			AccountID: account.ID,
			Kind:      audit.KindReconcileCreated,
			Backend:   string(scheduling.VariantEHR),
			RemoteID:  r.RemoteID,
			Payload:   audit.Detail(map[string]any{"appointment_id": appt.ID, "cloned": cloned}),
		}); err != nil {
			return err
		}
		o.queueReconcileCreateSideEffects(q, appt, account, provider, apptType, cloned)
		return nil
	})
	if err != nil {
		if !cloned && appt.MeetingID != "" {
			o.deprovision(ctx, &video.Meeting{ID: appt.MeetingID})
		}
		return err
	}
	o.metrics.ObserveReconcile("created")
	return nil
}

// queueReconcileCreateSideEffects notifies the patient about a booking
// made out-of-band, unless it is a duplicate-account clone or the
// provider's platform announces its own bookings.
func (o *Orchestrator) queueReconcileCreateSideEffects(q *postcommit.Queue, appt *Appointment, account *directory.Account, provider *directory.Provider, apptType *AppointmentType, cloned bool) {
	o.queueAvailabilityResync(q, appt.ProviderID, appt.Start)
	if o.dispatcher == nil || cloned || provider.VideoPlatform == video.PlatformExternal {
		return
	}
	msg := notify.Message{
		Template:       notify.TemplateBookingConfirmed,
		AppointmentID:  appt.ID.String(),
		RecipientEmail: account.Email,
		RecipientName:  account.FirstName,
		ProviderName:   provider.DisplayName,
		VisitType:      apptType.Title,
		Start:          appt.Start,
		Timezone:       appt.Timezone,
		JoinURL:        appt.JoinURL,
		AccessCode:     appt.AccessCode,
	}
	q.Add("booking-notification", func(ctx context.Context) error {
		return o.dispatcher.Enqueue(ctx, msg)
	})
}
