// Package intake exposes the assessment gate consulted before a 1:1 booking
// with a gated provider. The question/answer trees themselves live in the
// intake subsystem; this package only reads the scored session.
package intake

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Session is a scored intake assessment for a provider/account pair.
type Session struct {
	ID          uuid.UUID
	AccountID   uuid.UUID
	ProviderID  uuid.UUID
	Score       int
	CompletedAt time.Time
}

// Gate decides whether an account may book a gated provider.
type Gate interface {
	// FindGatingSession returns the account's current intake session for
	// the provider, or nil when none exists.
	FindGatingSession(ctx context.Context, providerID, accountID uuid.UUID) (*Session, error)
	// IsBookingAllowed applies the scoring gate to a session.
	IsBookingAllowed(session *Session) bool
}

// SQLGate reads intake sessions from the intake subsystem's tables.
type SQLGate struct {
	db       *sql.DB
	minScore int
}

// NewSQLGate creates a gate with the given passing score threshold.
func NewSQLGate(db *sql.DB, minScore int) *SQLGate {
	if db == nil {
		panic("intake: db required")
	}
	return &SQLGate{db: db, minScore: minScore}
}

// FindGatingSession returns the most recent completed session.
func (g *SQLGate) FindGatingSession(ctx context.Context, providerID, accountID uuid.UUID) (*Session, error) {
	query := `
		SELECT id, account_id, provider_id, score, completed_at
		FROM intake_sessions
		WHERE provider_id = $1 AND account_id = $2 AND completed_at IS NOT NULL
		ORDER BY completed_at DESC
		LIMIT 1
	`
	var s Session
	err := g.db.QueryRowContext(ctx, query, providerID, accountID).
		Scan(&s.ID, &s.AccountID, &s.ProviderID, &s.Score, &s.CompletedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("intake: find gating session: %w", err)
	}
	return &s, nil
}

// IsBookingAllowed reports whether the session score passes the gate.
func (g *SQLGate) IsBookingAllowed(session *Session) bool {
	if session == nil {
		return false
	}
	return session.Score >= g.minScore
}

// OpenGate allows every booking. Used when a deployment has no intake
// subsystem configured.
type OpenGate struct{}

func (OpenGate) FindGatingSession(ctx context.Context, providerID, accountID uuid.UUID) (*Session, error) {
	return &Session{ProviderID: providerID, AccountID: accountID}, nil
}

func (OpenGate) IsBookingAllowed(session *Session) bool { return true }

var (
	_ Gate = (*SQLGate)(nil)
	_ Gate = OpenGate{}
)
