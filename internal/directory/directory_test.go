package directory

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/pashagolub/pgxmock/v4"

	"github.com/wolfman30/telehealth-scheduling/internal/scheduling"
	"github.com/wolfman30/telehealth-scheduling/internal/video"
)

func TestFindAccountByID(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock: %v", err)
	}
	defer mock.Close()

	id := uuid.New()
	rows := pgxmock.NewRows([]string{
		"id", "first_name", "last_name", "email", "email_verified", "phone",
		"source", "ehr_patient_id", "acuity_client_id", "timezone",
	}).AddRow(id, "Jane", "Doe", "jane@example.com", true, "+15555550100",
		"self_signup", "EHR-77", "", "America/New_York")

	mock.ExpectQuery(`SELECT .+ FROM accounts WHERE id =`).
		WithArgs(id).
		WillReturnRows(rows)

	repo := NewAccountRepository(mock)
	acct, err := repo.FindByID(context.Background(), id)
	if err != nil {
		t.Fatalf("FindByID error: %v", err)
	}
	if !acct.EmailVerified {
		t.Error("expected verified email")
	}
	if acct.RemotePatientID(scheduling.VariantEHR) != "EHR-77" {
		t.Errorf("unexpected EHR patient id: %s", acct.EHRPatientID)
	}
	if acct.RemotePatientID(scheduling.VariantNative) != id.String() {
		t.Error("native remote patient id should be the local account id")
	}
}

func TestFindAccountNotFound(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock: %v", err)
	}
	defer mock.Close()

	id := uuid.New()
	mock.ExpectQuery(`SELECT .+ FROM accounts WHERE id =`).
		WithArgs(id).
		WillReturnRows(pgxmock.NewRows([]string{"id"}))

	repo := NewAccountRepository(mock)
	_, err = repo.FindByID(context.Background(), id)
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestUpdateContactEmailResetsVerification(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock: %v", err)
	}
	defer mock.Close()

	id := uuid.New()
	mock.ExpectExec(`UPDATE accounts SET email = \$2, email_verified = false`).
		WithArgs(id, "new@example.com").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	repo := NewAccountRepository(mock)
	if err := repo.UpdateContactEmail(context.Background(), id, "new@example.com"); err != nil {
		t.Fatalf("UpdateContactEmail error: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestFindProviderByRemoteID(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock: %v", err)
	}
	defer mock.Close()

	id := uuid.New()
	rows := pgxmock.NewRows([]string{
		"id", "display_name", "email", "timezone", "video_platform",
		"video_host_id", "external_join_url", "ehr_provider_id",
		"acuity_calendar_id", "requires_phone", "intake_gated",
	}).AddRow(id, "Dr. Smith", "smith@clinic.example", "America/Chicago", "zoom",
		"zoom-host-1", "", "PRAC-9", "", true, false)

	mock.ExpectQuery(`SELECT .+ FROM providers WHERE ehr_provider_id =`).
		WithArgs("PRAC-9").
		WillReturnRows(rows)

	repo := NewProviderRepository(mock)
	p, err := repo.FindByRemoteID(context.Background(), scheduling.VariantEHR, "PRAC-9")
	if err != nil {
		t.Fatalf("FindByRemoteID error: %v", err)
	}
	if p.VideoPlatform != video.PlatformZoom {
		t.Errorf("unexpected platform: %s", p.VideoPlatform)
	}
	if !p.Flags.RequiresPhone {
		t.Error("expected requires_phone flag")
	}
	creds := p.VideoconferenceCredentials()
	if creds.HostID != "zoom-host-1" {
		t.Errorf("unexpected host id: %s", creds.HostID)
	}
}

func TestFindProviderByRemoteIDRejectsBadNativeID(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock: %v", err)
	}
	defer mock.Close()

	repo := NewProviderRepository(mock)
	_, err = repo.FindByRemoteID(context.Background(), scheduling.VariantNative, "not-a-uuid")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
