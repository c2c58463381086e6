package appointments

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/wolfman30/telehealth-scheduling/internal/audit"
	"github.com/wolfman30/telehealth-scheduling/internal/directory"
	"github.com/wolfman30/telehealth-scheduling/internal/intake"
	"github.com/wolfman30/telehealth-scheduling/internal/notify"
	"github.com/wolfman30/telehealth-scheduling/internal/observability/metrics"
	"github.com/wolfman30/telehealth-scheduling/internal/postcommit"
	"github.com/wolfman30/telehealth-scheduling/internal/scheduling"
	"github.com/wolfman30/telehealth-scheduling/internal/video"
	"github.com/wolfman30/telehealth-scheduling/pkg/logging"
)

var tracer = otel.Tracer("internal/appointments")

// Account sources exempt from the verified-email rule. EHR imports were
// verified by the hospital; staff-created accounts are vouched for.
var verifiedEmailExemptSources = map[string]bool{
	"ehr_import": true,
	"staff":      true,
}

// AccountDirectory is the slice of the directory the orchestrator reads.
type AccountDirectory interface {
	FindByID(ctx context.Context, id uuid.UUID) (*directory.Account, error)
}

// ProviderDirectory resolves providers by local and backend handles.
type ProviderDirectory interface {
	FindByID(ctx context.Context, id uuid.UUID) (*directory.Provider, error)
	FindByRemoteID(ctx context.Context, variant scheduling.Variant, remoteID string) (*directory.Provider, error)
}

// AvailabilityResyncer refreshes the cached open-slot view for a
// provider. Invoked only from post-commit tasks.
type AvailabilityResyncer interface {
	Resync(ctx context.Context, providerID uuid.UUID, from, to time.Time) ([]scheduling.Slot, error)
}

// Orchestrator drives booking, cancellation, reschedule and attendance.
type Orchestrator struct {
	db          postcommit.Beginner
	repo        *Repository
	accounts    AccountDirectory
	providers   ProviderDirectory
	registry    *scheduling.Registry
	provisioner video.Provisioner
	gate        intake.Gate
	auditStore  *audit.Store
	dispatcher  notify.Dispatcher
	resyncer    AvailabilityResyncer
	runner      *postcommit.Runner
	metrics     *metrics.SchedulingMetrics
	logger      *logging.Logger
	now         func() time.Time

	reconcileWindow time.Duration
}

// OrchestratorDeps bundles the orchestrator's collaborators.
type OrchestratorDeps struct {
	DB          postcommit.Beginner
	Repo        *Repository
	Accounts    AccountDirectory
	Providers   ProviderDirectory
	Registry    *scheduling.Registry
	Provisioner video.Provisioner
	Gate        intake.Gate
	AuditStore  *audit.Store
	Dispatcher  notify.Dispatcher
	Resyncer    AvailabilityResyncer
	Runner      *postcommit.Runner
	Metrics     *metrics.SchedulingMetrics
	Logger      *logging.Logger

	// ReconcileWindow bounds how far ahead the EHR schedule is pulled.
	// Defaults to 60 days.
	ReconcileWindow time.Duration
}

// NewOrchestrator wires the orchestrator.
func NewOrchestrator(deps OrchestratorDeps) *Orchestrator {
	if deps.DB == nil || deps.Repo == nil || deps.Registry == nil || deps.AuditStore == nil {
		panic("appointments: db, repo, registry and audit store are required")
	}
	if deps.Provisioner == nil {
		deps.Provisioner = video.NewStubProvisioner(deps.Logger)
	}
	if deps.Gate == nil {
		deps.Gate = intake.OpenGate{}
	}
	if deps.Logger == nil {
		deps.Logger = logging.Default()
	}
	if deps.ReconcileWindow <= 0 {
		deps.ReconcileWindow = defaultReconcileWindow
	}
	return &Orchestrator{
		db:          deps.DB,
		repo:        deps.Repo,
		accounts:    deps.Accounts,
		providers:   deps.Providers,
		registry:    deps.Registry,
		provisioner: deps.Provisioner,
		gate:        deps.Gate,
		auditStore:  deps.AuditStore,
		dispatcher:  deps.Dispatcher,
		resyncer:    deps.Resyncer,
		runner:      deps.Runner,
		metrics:     deps.Metrics,
		logger:      deps.Logger.Component("orchestrator"),
		now:         time.Now,

		reconcileWindow: deps.ReconcileWindow,
	}
}

// CreateRequest is a booking intent.
type CreateRequest struct {
	AccountID uuid.UUID
	// CreatorAccountID is set when staff book on a patient's behalf.
	// Defaults to AccountID.
	CreatorAccountID uuid.UUID
	ProviderID       uuid.UUID
	// GroupSessionID is accepted for mutual-exclusion validation only.
	// Group sessions are owned by a separate service.
	GroupSessionID uuid.UUID
	TypeID         uuid.UUID
	Start          time.Time
	Timezone       string
	Notes          string
}

// Create books an appointment: validate, resolve the owning backend,
// provision video, book remotely, persist locally in one transaction,
// then run post-commit side effects.
func (o *Orchestrator) Create(ctx context.Context, req CreateRequest) (*Appointment, error) {
	ctx, span := tracer.Start(ctx, "appointments.Create")
	defer span.End()

	if err := o.validateCreate(req); err != nil {
		return nil, err
	}
	if req.CreatorAccountID == uuid.Nil {
		req.CreatorAccountID = req.AccountID
	}

	account, err := o.accounts.FindByID(ctx, req.AccountID)
	if err != nil {
		if errors.Is(err, directory.ErrNotFound) {
			return nil, &ValidationError{Field: "account_id", Reason: "account not found"}
		}
		return nil, fmt.Errorf("appointments: load account: %w", err)
	}
	provider, err := o.providers.FindByID(ctx, req.ProviderID)
	if err != nil {
		if errors.Is(err, directory.ErrNotFound) {
			return nil, &ValidationError{Field: "provider_id", Reason: "provider not found"}
		}
		return nil, fmt.Errorf("appointments: load provider: %w", err)
	}
	if err := o.checkEligibility(ctx, account, provider); err != nil {
		return nil, err
	}

	apptType, err := o.repo.GetType(ctx, req.TypeID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, &ValidationError{Field: "type_id", Reason: "appointment type not found"}
		}
		return nil, err
	}
	if apptType.Deleted() {
		return nil, &ValidationError{Field: "type_id", Reason: "appointment type is no longer offered"}
	}
	if err := apptType.Validate(); err != nil {
		return nil, err
	}

	backend, err := o.registry.For(apptType.Backend)
	if err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.String("backend", string(apptType.Backend)))

	end := req.Start.Add(apptType.Duration)

	// Duplicate-across-accounts: an EHR visit booked before the patient
	// identified may already be mirrored at this slot under another
	// account. Clone its metadata instead of booking the same visit
	// again. Native and calendar slots are never shared: contention goes
	// to the backend, which rejects an occupied slot.
	if apptType.Backend == scheduling.VariantEHR {
		existing, err := o.repo.FindActiveBySlot(ctx, req.ProviderID, req.Start, req.AccountID)
		switch {
		case err == nil && existing.Backend == scheduling.VariantEHR:
			return o.cloneForAccount(ctx, existing, account, req)
		case err != nil && !errors.Is(err, ErrNotFound):
			return nil, err
		}
	}

	// Provision video before the backend call; it is the compensated
	// resource if booking fails.
	var meeting *video.Meeting
	if provider.VideoPlatform.NeedsProvisioning() {
		meeting, err = o.provisioner.Provision(ctx, provider.VideoconferenceCredentials(),
			apptType.Title, account.Email, video.Window{Start: req.Start, End: end})
		if err != nil {
			return nil, fmt.Errorf("appointments: provision videoconference: %w", err)
		}
	}

	buffer := audit.NewBuffer()
	audited := scheduling.NewAudited(backend, buffer, account.ID)

	started := o.now()
	remote, err := audited.CreateBooking(ctx, scheduling.BookingRequest{
		Slot: scheduling.Slot{
			ProviderID:       provider.ID,
			ProviderRemoteID: provider.RemoteID(apptType.Backend),
			Start:            req.Start,
			End:              end,
			Timezone:         req.Timezone,
		},
		Attendee: scheduling.Attendee{
			AccountID:       account.ID,
			RemotePatientID: account.RemotePatientID(apptType.Backend),
			FirstName:       account.FirstName,
			LastName:        account.LastName,
			Email:           account.Email,
			Phone:           account.Phone,
		},
		VisitTypeRemoteID: apptType.RemoteID,
		Title:             apptType.Title,
		Notes:             req.Notes,
	})
	o.metrics.ObserveBackendLatency(string(apptType.Backend), "create", o.now().Sub(started).Seconds())
	if err != nil {
		o.deprovision(ctx, meeting)
		o.flushAuditBestEffort(ctx, buffer)
		o.metrics.ObserveBooking(string(apptType.Backend), bookingOutcome(err))
		return nil, mapBackendError(err)
	}

	appt := &Appointment{
		ID:               uuid.New(),
		ProviderID:       provider.ID,
		AccountID:        account.ID,
		CreatorAccountID: req.CreatorAccountID,
		TypeID:           apptType.ID,
		Backend:          apptType.Backend,
		Start:            req.Start,
		End:              end,
		Timezone:         req.Timezone,
		RemoteID:         remote.RemoteID,
		Attendance:       AttendanceUnknown,
	}
	applyJoinDetails(appt, provider, meeting, remote)

	_ = buffer.Record(ctx, audit.Entry{
		AccountID: account.ID,
		Kind:      audit.KindBookingCreated,
		Backend:   string(apptType.Backend),
		RemoteID:  appt.RemoteID,
		Payload:   audit.Detail(map[string]any{"appointment_id": appt.ID, "start": appt.Start}),
	})

	err = postcommit.InTx(ctx, o.db, o.runner, func(ctx context.Context, tx pgx.Tx, q *postcommit.Queue) error {
		txRepo := o.repo.WithTx(tx)
		if err := txRepo.Insert(ctx, appt); err != nil {
			return err
		}
		if err := buffer.Flush(ctx, o.auditStore.WithTx(tx)); err != nil {
			return err
		}
		if apptType.Backend == scheduling.VariantNative {
			if err := txRepo.InsertFollowUpTask(ctx, appt.ID, appt.End.Add(24*time.Hour)); err != nil {
				return err
			}
		}
		o.queueBookingSideEffects(q, appt, account, provider, apptType)
		return nil
	})
	if err != nil {
		// the remote booking exists but the local row does not; undo both
		// side effects so nothing orphaned survives
		o.compensateRemote(ctx, backend, remote.RemoteID)
		o.deprovision(ctx, meeting)
		o.metrics.ObserveBooking(string(apptType.Backend), "persist_error")
		return nil, err
	}

	o.metrics.ObserveBooking(string(apptType.Backend), "success")
	o.logger.Info("appointment booked",
		"appointment_id", appt.ID, "account_id", account.ID,
		"provider_id", provider.ID, "backend", apptType.Backend, "remote_id", appt.RemoteID)
	return appt, nil
}

func (o *Orchestrator) validateCreate(req CreateRequest) error {
	switch {
	case req.AccountID == uuid.Nil:
		return &ValidationError{Field: "account_id", Reason: "required"}
	case req.ProviderID != uuid.Nil && req.GroupSessionID != uuid.Nil:
		return &ValidationError{Field: "provider_id", Reason: "provider and group session are mutually exclusive"}
	case req.ProviderID == uuid.Nil && req.GroupSessionID == uuid.Nil:
		return &ValidationError{Field: "provider_id", Reason: "a provider or group session is required"}
	case req.GroupSessionID != uuid.Nil:
		return &ValidationError{Field: "group_session_id", Reason: "group sessions are booked through the group-sessions service"}
	case req.TypeID == uuid.Nil:
		return &ValidationError{Field: "type_id", Reason: "required"}
	case req.Start.IsZero():
		return &ValidationError{Field: "start", Reason: "required"}
	case req.Start.Before(o.now()):
		return &ValidationError{Field: "start", Reason: "must be in the future"}
	}
	return nil
}

func (o *Orchestrator) checkEligibility(ctx context.Context, account *directory.Account, provider *directory.Provider) error {
	if !account.EmailVerified && !verifiedEmailExemptSources[account.Source] {
		return &ValidationError{Field: "account", Reason: "email must be verified before booking"}
	}
	if provider.Flags.RequiresPhone && account.Phone == "" {
		return &ValidationError{Field: "phone", Reason: "a phone number is required to book this provider"}
	}
	if provider.Flags.IntakeGated {
		session, err := o.gate.FindGatingSession(ctx, provider.ID, account.ID)
		if err != nil {
			return fmt.Errorf("appointments: intake gate: %w", err)
		}
		if !o.gate.IsBookingAllowed(session) {
			return &GatingError{ProviderID: provider.ID}
		}
	}
	return nil
}

// cloneForAccount duplicates an existing booking's metadata for a second
// account without touching the backend or the provisioner.
func (o *Orchestrator) cloneForAccount(ctx context.Context, existing *Appointment, account *directory.Account, req CreateRequest) (*Appointment, error) {
	clone := &Appointment{
		ID:               uuid.New(),
		ProviderID:       existing.ProviderID,
		AccountID:        account.ID,
		CreatorAccountID: req.CreatorAccountID,
		TypeID:           existing.TypeID,
		Backend:          existing.Backend,
		Start:            existing.Start,
		End:              existing.End,
		Timezone:         existing.Timezone,
		RemoteID:         existing.RemoteID,
		MeetingID:        existing.MeetingID,
		JoinURL:          existing.JoinURL,
		AccessCode:       existing.AccessCode,
		Attendance:       AttendanceUnknown,
	}

	err := postcommit.InTx(ctx, o.db, o.runner, func(ctx context.Context, tx pgx.Tx, q *postcommit.Queue) error {
		if err := o.repo.WithTx(tx).Insert(ctx, clone); err != nil {
			return err
		}
		return o.auditStore.WithTx(tx).Record(ctx, audit.Entry{
			AccountID: account.ID,
			Kind:      audit.KindBookingDuplicated,
			Backend:   string(clone.Backend),
			RemoteID:  clone.RemoteID,
			Payload:   audit.Detail(map[string]any{"cloned_from": existing.ID, "appointment_id": clone.ID}),
		})
	})
	if err != nil {
		return nil, err
	}

	o.metrics.ObserveBooking(string(clone.Backend), "duplicated")
	o.logger.Info("appointment duplicated for second account",
		"appointment_id", clone.ID, "cloned_from", existing.ID, "account_id", account.ID)
	return clone, nil
}

// queueBookingSideEffects registers the post-commit tasks for a fresh
// booking. Only native bookings notify; external backends own their own
// notification flow and must not be double-notified.
func (o *Orchestrator) queueBookingSideEffects(q *postcommit.Queue, appt *Appointment, account *directory.Account, provider *directory.Provider, apptType *AppointmentType) {
	o.queueAvailabilityResync(q, appt.ProviderID, appt.Start)
	if o.dispatcher != nil && appt.Backend == scheduling.VariantNative {
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
}

// queueAvailabilityResync schedules a best-effort refresh of the
// provider's cached open-slot view. Every booking mutation changes the
// provider's availability regardless of which backend owns it.
func (o *Orchestrator) queueAvailabilityResync(q *postcommit.Queue, providerID uuid.UUID, start time.Time) {
	if o.resyncer == nil {
		return
	}
	q.Add("availability-resync", func(ctx context.Context) error {
		_, err := o.resyncer.Resync(ctx, providerID, start.Add(-24*time.Hour), start.Add(30*24*time.Hour))
		return err
	})
}

// applyJoinDetails fills the appointment's conference fields from the
// provisioned meeting, the provider's static link, or the backend's hint.
func applyJoinDetails(appt *Appointment, provider *directory.Provider, meeting *video.Meeting, remote *scheduling.RemoteBooking) {
	if meeting != nil {
		appt.MeetingID = meeting.ID
		appt.JoinURL = meeting.JoinURL
		appt.AccessCode = meeting.AccessCode
		return
	}
	if remote != nil && remote.JoinHint != "" {
		appt.JoinURL = remote.JoinHint
		return
	}
	if provider.VideoPlatform == video.PlatformExternal {
		appt.JoinURL = provider.ExternalJoinURL
	}
}

// deprovision tears down a meeting best-effort. Failures are logged,
// never propagated, so the original error reaches the caller.
func (o *Orchestrator) deprovision(ctx context.Context, meeting *video.Meeting) {
	if meeting == nil {
		return
	}
	if err := o.provisioner.Deprovision(ctx, meeting.ID); err != nil {
		o.logger.Error("videoconference deprovision failed", "meeting_id", meeting.ID, "error", err)
	}
}

// compensateRemote cancels a remote booking whose local persist failed.
func (o *Orchestrator) compensateRemote(ctx context.Context, backend scheduling.Backend, remoteID string) {
	if err := backend.CancelBooking(ctx, remoteID, "local persistence failed"); err != nil {
		o.logger.Error("compensating remote cancel failed", "remote_id", remoteID, "error", err)
	}
}

// flushAuditBestEffort writes buffered entries outside a transaction
// after a failed backend call, so the failure itself stays traceable.
func (o *Orchestrator) flushAuditBestEffort(ctx context.Context, buffer *audit.Buffer) {
	if o.auditStore == nil {
		return
	}
	if err := buffer.Flush(ctx, o.auditStore); err != nil {
		o.logger.Error("audit flush failed", "error", err)
	}
}

// mapBackendError converts backend failures into the caller-facing
// taxonomy without leaking backend-specific shapes.
func mapBackendError(err error) error {
	if errors.Is(err, scheduling.ErrSlotUnavailable) {
		return &ValidationError{Field: "start", Reason: "slot is no longer available, please pick another time", Err: err}
	}
	return err
}

func bookingOutcome(err error) string {
	switch {
	case errors.Is(err, scheduling.ErrSlotUnavailable):
		return "slot_unavailable"
	case scheduling.IsTransient(err):
		return "transient_error"
	default:
		return "permanent_error"
	}
}
