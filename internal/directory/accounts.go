// Package directory provides read-mostly lookups for accounts and providers.
// The scheduling engine consumes it for booking-eligibility checks and
// videoconference credentials; account management itself lives elsewhere.
package directory

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/wolfman30/telehealth-scheduling/internal/scheduling"
)

// ErrNotFound is returned when an account or provider does not exist.
var ErrNotFound = errors.New("directory: not found")

// Account is a patient-facing account.
type Account struct {
	ID            uuid.UUID
	FirstName     string
	LastName      string
	Email         string
	EmailVerified bool
	Phone         string
	// Source records where the account originated ("self_signup", "staff",
	// "ehr_import"). Some sources are exempt from the verified-email rule.
	Source string
	// EHRPatientID is the hospital EHR's patient handle. Non-empty means
	// the account is EHR-backed and subject to inline reconciliation.
	EHRPatientID string
	// AcuityClientID is the calendar SaaS client handle, when known.
	AcuityClientID string
	Timezone       string
}

// RemotePatientID returns the account's handle in the given backend.
func (a *Account) RemotePatientID(v scheduling.Variant) string {
	switch v {
	case scheduling.VariantEHR:
		return a.EHRPatientID
	case scheduling.VariantCalendar:
		return a.AcuityClientID
	}
	return a.ID.String()
}

// DBTX is satisfied by *pgxpool.Pool and pgx.Tx.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// AccountRepository reads and updates account contact details.
type AccountRepository struct {
	db DBTX
}

// NewAccountRepository creates an account repository.
func NewAccountRepository(db DBTX) *AccountRepository {
	if db == nil {
		panic("directory: db required")
	}
	return &AccountRepository{db: db}
}

const accountColumns = `id, first_name, last_name, email, email_verified, phone, source, ehr_patient_id, acuity_client_id, timezone`

// FindByID loads one account.
func (r *AccountRepository) FindByID(ctx context.Context, id uuid.UUID) (*Account, error) {
	row := r.db.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE id = $1`, id)
	return scanAccount(row)
}

// FindByEHRPatientID loads the account holding the given EHR patient handle.
func (r *AccountRepository) FindByEHRPatientID(ctx context.Context, patientID string) (*Account, error) {
	row := r.db.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE ehr_patient_id = $1`, patientID)
	return scanAccount(row)
}

// IsContactEmailVerified reports whether the account's email is verified.
func (r *AccountRepository) IsContactEmailVerified(ctx context.Context, id uuid.UUID) (bool, error) {
	acct, err := r.FindByID(ctx, id)
	if err != nil {
		return false, err
	}
	return acct.EmailVerified, nil
}

// UpdateContactEmail replaces the account email and resets verification.
func (r *AccountRepository) UpdateContactEmail(ctx context.Context, id uuid.UUID, email string) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE accounts SET email = $2, email_verified = false WHERE id = $1`, id, email)
	if err != nil {
		return fmt.Errorf("directory: update email: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// UpdateContactPhone replaces the account phone number.
func (r *AccountRepository) UpdateContactPhone(ctx context.Context, id uuid.UUID, phone string) error {
	tag, err := r.db.Exec(ctx, `UPDATE accounts SET phone = $2 WHERE id = $1`, id, phone)
	if err != nil {
		return fmt.Errorf("directory: update phone: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func scanAccount(row pgx.Row) (*Account, error) {
	var a Account
	err := row.Scan(&a.ID, &a.FirstName, &a.LastName, &a.Email, &a.EmailVerified,
		&a.Phone, &a.Source, &a.EHRPatientID, &a.AcuityClientID, &a.Timezone)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("directory: scan account: %w", err)
	}
	return &a, nil
}
