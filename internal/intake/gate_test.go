package intake

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
)

func TestFindGatingSessionReturnsLatest(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	providerID := uuid.New()
	accountID := uuid.New()
	sessionID := uuid.New()
	completed := time.Now().Add(-2 * time.Hour)

	rows := sqlmock.NewRows([]string{"id", "account_id", "provider_id", "score", "completed_at"}).
		AddRow(sessionID, accountID, providerID, 14, completed)

	mock.ExpectQuery(`SELECT id, account_id, provider_id, score, completed_at\s+FROM intake_sessions`).
		WithArgs(providerID, accountID).
		WillReturnRows(rows)

	gate := NewSQLGate(db, 10)
	session, err := gate.FindGatingSession(context.Background(), providerID, accountID)
	if err != nil {
		t.Fatalf("FindGatingSession error: %v", err)
	}
	if session == nil || session.Score != 14 {
		t.Fatalf("unexpected session: %+v", session)
	}
	if !gate.IsBookingAllowed(session) {
		t.Error("score 14 should pass a threshold of 10")
	}
}

func TestFindGatingSessionNone(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	providerID := uuid.New()
	accountID := uuid.New()

	mock.ExpectQuery(`SELECT id, account_id, provider_id, score, completed_at\s+FROM intake_sessions`).
		WithArgs(providerID, accountID).
		WillReturnRows(sqlmock.NewRows([]string{"id", "account_id", "provider_id", "score", "completed_at"}))

	gate := NewSQLGate(db, 10)
	session, err := gate.FindGatingSession(context.Background(), providerID, accountID)
	if err != nil {
		t.Fatalf("FindGatingSession error: %v", err)
	}
	if session != nil {
		t.Fatalf("expected nil session, got %+v", session)
	}
	if gate.IsBookingAllowed(session) {
		t.Error("missing session must not pass the gate")
	}
}

func TestIsBookingAllowedThreshold(t *testing.T) {
	db, _, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	gate := NewSQLGate(db, 10)
	if gate.IsBookingAllowed(&Session{Score: 9}) {
		t.Error("score below threshold must fail")
	}
	if !gate.IsBookingAllowed(&Session{Score: 10}) {
		t.Error("score at threshold must pass")
	}
}
