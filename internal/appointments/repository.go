package appointments

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/wolfman30/telehealth-scheduling/internal/scheduling"
)

// DBTX is satisfied by *pgxpool.Pool and pgx.Tx.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Repository persists appointments and appointment types.
type Repository struct {
	db DBTX
}

// NewRepository creates an appointment repository.
func NewRepository(db DBTX) *Repository {
	if db == nil {
		panic("appointments: db required")
	}
	return &Repository{db: db}
}

// WithTx returns a repository bound to the given transaction.
func (r *Repository) WithTx(tx pgx.Tx) *Repository {
	return &Repository{db: tx}
}

const appointmentColumns = `id, provider_id, account_id, creator_account_id, type_id, backend,
	start_at, end_at, timezone, remote_id, meeting_id, join_url, access_code,
	canceled, canceled_at, canceled_by, cancel_reason, rescheduled_to, attendance, created_at`

// Insert writes a new appointment row.
func (r *Repository) Insert(ctx context.Context, a *Appointment) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}
	if a.Attendance == "" {
		a.Attendance = AttendanceUnknown
	}
	_, err := r.db.Exec(ctx, `
		INSERT INTO appointments (id, provider_id, account_id, creator_account_id, type_id, backend,
			start_at, end_at, timezone, remote_id, meeting_id, join_url, access_code,
			canceled, canceled_at, canceled_by, cancel_reason, rescheduled_to, attendance, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20)
	`, a.ID, a.ProviderID, a.AccountID, a.CreatorAccountID, a.TypeID, string(a.Backend),
		a.Start.UTC(), a.End.UTC(), a.Timezone, a.RemoteID, a.MeetingID, a.JoinURL, a.AccessCode,
		a.Canceled, a.CanceledAt, a.CanceledBy, a.CancelReason, a.RescheduledTo, string(a.Attendance), a.CreatedAt)
	if err != nil {
		return fmt.Errorf("appointments: insert: %w", err)
	}
	return nil
}

// GetByID loads one appointment.
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	row := r.db.QueryRow(ctx, `SELECT `+appointmentColumns+` FROM appointments WHERE id = $1`, id)
	return scanAppointment(row)
}

// GetByRemoteID loads the account's non-canceled appointment holding the
// given remote booking identifier. The webhook handler resolves inbound
// cancellations through it.
func (r *Repository) GetByRemoteID(ctx context.Context, remoteID string) (*Appointment, error) {
	row := r.db.QueryRow(ctx, `
		SELECT `+appointmentColumns+` FROM appointments
		WHERE remote_id = $1 AND canceled = false
		ORDER BY created_at DESC
		LIMIT 1
	`, remoteID)
	return scanAppointment(row)
}

// ListUpcomingByAccount returns the account's non-canceled appointments
// starting at or after now, soonest first.
func (r *Repository) ListUpcomingByAccount(ctx context.Context, accountID uuid.UUID, now time.Time) ([]Appointment, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+appointmentColumns+` FROM appointments
		WHERE account_id = $1 AND canceled = false AND start_at >= $2
		ORDER BY start_at
	`, accountID, now.UTC())
	if err != nil {
		return nil, fmt.Errorf("appointments: list upcoming: %w", err)
	}
	return collectAppointments(rows)
}

// FindActiveBySlot finds a non-canceled appointment at the same provider
// slot held by a different account. Used by the duplicate-across-accounts
// policy to clone booking metadata instead of re-booking.
func (r *Repository) FindActiveBySlot(ctx context.Context, providerID uuid.UUID, start time.Time, excludeAccountID uuid.UUID) (*Appointment, error) {
	row := r.db.QueryRow(ctx, `
		SELECT `+appointmentColumns+` FROM appointments
		WHERE provider_id = $1 AND start_at = $2 AND canceled = false AND account_id <> $3
		ORDER BY created_at
		LIMIT 1
	`, providerID, start.UTC(), excludeAccountID)
	return scanAppointment(row)
}

// MarkCanceled sets the terminal cancellation fields. Already-canceled
// rows are left untouched.
func (r *Repository) MarkCanceled(ctx context.Context, id uuid.UUID, canceledBy *uuid.UUID, reason string, rescheduledTo *uuid.UUID) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE appointments
		SET canceled = true, canceled_at = $2, canceled_by = $3, cancel_reason = $4,
			rescheduled_to = $5, attendance = $6
		WHERE id = $1 AND canceled = false
	`, id, time.Now().UTC(), canceledBy, reason, rescheduledTo, string(AttendanceCanceled))
	if err != nil {
		return fmt.Errorf("appointments: mark canceled: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// UpdateSchedule moves a live appointment to a new window. Canceled
// rows are left untouched.
func (r *Repository) UpdateSchedule(ctx context.Context, id uuid.UUID, start, end time.Time) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE appointments SET start_at = $2, end_at = $3
		WHERE id = $1 AND canceled = false
	`, id, start.UTC(), end.UTC())
	if err != nil {
		return fmt.Errorf("appointments: update schedule: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// SetAttendance updates the attendance status.
func (r *Repository) SetAttendance(ctx context.Context, id uuid.UUID, status Attendance) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE appointments SET attendance = $2 WHERE id = $1`, id, string(status))
	if err != nil {
		return fmt.Errorf("appointments: set attendance: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

const typeColumns = `id, title, duration_minutes, backend, remote_id, deleted_at`

// GetType loads an appointment type, soft-deleted ones included.
func (r *Repository) GetType(ctx context.Context, id uuid.UUID) (*AppointmentType, error) {
	row := r.db.QueryRow(ctx, `SELECT `+typeColumns+` FROM appointment_types WHERE id = $1`, id)
	return scanType(row)
}

// GetTypeByRemoteID resolves a type from a backend-specific handle. The
// reconciliation engine uses it to map remote visit types back to local
// appointment types.
func (r *Repository) GetTypeByRemoteID(ctx context.Context, backend scheduling.Variant, remoteID string) (*AppointmentType, error) {
	row := r.db.QueryRow(ctx, `
		SELECT `+typeColumns+` FROM appointment_types
		WHERE backend = $1 AND remote_id = $2 AND deleted_at IS NULL
	`, string(backend), remoteID)
	return scanType(row)
}

// InsertFollowUpTask creates a reminder task linked to the appointment.
func (r *Repository) InsertFollowUpTask(ctx context.Context, appointmentID uuid.UUID, dueAt time.Time) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO follow_up_tasks (id, appointment_id, due_at, canceled)
		VALUES ($1, $2, $3, false)
	`, uuid.New(), appointmentID, dueAt.UTC())
	if err != nil {
		return fmt.Errorf("appointments: insert follow-up task: %w", err)
	}
	return nil
}

// CancelFollowUpTasks cancels any open tasks linked to the appointment.
func (r *Repository) CancelFollowUpTasks(ctx context.Context, appointmentID uuid.UUID) error {
	_, err := r.db.Exec(ctx, `
		UPDATE follow_up_tasks SET canceled = true
		WHERE appointment_id = $1 AND canceled = false
	`, appointmentID)
	if err != nil {
		return fmt.Errorf("appointments: cancel follow-up tasks: %w", err)
	}
	return nil
}

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var a Appointment
	var backend, attendance string
	err := row.Scan(&a.ID, &a.ProviderID, &a.AccountID, &a.CreatorAccountID, &a.TypeID, &backend,
		&a.Start, &a.End, &a.Timezone, &a.RemoteID, &a.MeetingID, &a.JoinURL, &a.AccessCode,
		&a.Canceled, &a.CanceledAt, &a.CanceledBy, &a.CancelReason, &a.RescheduledTo, &attendance, &a.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("appointments: scan: %w", err)
	}
	a.Backend = scheduling.Variant(backend)
	a.Attendance = Attendance(attendance)
	return &a, nil
}

func collectAppointments(rows pgx.Rows) ([]Appointment, error) {
	defer rows.Close()
	var appts []Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		appts = append(appts, *a)
	}
	return appts, rows.Err()
}

func scanType(row pgx.Row) (*AppointmentType, error) {
	var t AppointmentType
	var backend string
	var durationMinutes int
	err := row.Scan(&t.ID, &t.Title, &durationMinutes, &backend, &t.RemoteID, &t.DeletedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("appointments: scan type: %w", err)
	}
	t.Backend = scheduling.Variant(backend)
	t.Duration = time.Duration(durationMinutes) * time.Minute
	return &t, nil
}
