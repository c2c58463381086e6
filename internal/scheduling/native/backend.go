// Package native implements the in-house scheduling backend on top of the
// provider slot ledger in Postgres. It is the system of record for its own
// bookings, so QuerySchedule has nothing to reconcile against.
package native

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/wolfman30/telehealth-scheduling/internal/scheduling"
	"github.com/wolfman30/telehealth-scheduling/pkg/logging"
)

const remoteIDPrefix = "NAT-"

// DBTX is satisfied by *pgxpool.Pool and pgx.Tx.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Backend claims and releases rows of the provider_open_slots ledger.
type Backend struct {
	db     DBTX
	logger *logging.Logger
}

// New creates the native backend.
func New(db DBTX, logger *logging.Logger) *Backend {
	if db == nil {
		panic("native: db required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Backend{db: db, logger: logger.Component("native-backend")}
}

// Name returns the native variant.
func (b *Backend) Name() scheduling.Variant { return scheduling.VariantNative }

// CreateBooking claims the open slot covering the requested window. Two
// concurrent claims race on the conditional UPDATE; the loser sees zero rows
// and gets ErrSlotUnavailable.
func (b *Backend) CreateBooking(ctx context.Context, req scheduling.BookingRequest) (*scheduling.RemoteBooking, error) {
	row := b.db.QueryRow(ctx, `
		UPDATE provider_open_slots
		SET booked = true, booked_at = now()
		WHERE id = (
			SELECT id FROM provider_open_slots
			WHERE provider_id = $1 AND start_at = $2 AND booked = false
			LIMIT 1
		)
		RETURNING id
	`, req.Slot.ProviderID, req.Slot.Start.UTC())

	var slotID uuid.UUID
	if err := row.Scan(&slotID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, scheduling.ErrSlotUnavailable
		}
		return nil, scheduling.Transient(fmt.Errorf("native: claim slot: %w", err))
	}

	b.logger.Info("native slot claimed", "slot_id", slotID, "provider_id", req.Slot.ProviderID, "start", req.Slot.Start)
	return &scheduling.RemoteBooking{RemoteID: remoteIDPrefix + slotID.String()}, nil
}

// CancelBooking releases the claimed slot. A slot that no longer exists or
// was already released is treated as success.
func (b *Backend) CancelBooking(ctx context.Context, remoteID, reason string) error {
	slotID, err := parseRemoteID(remoteID)
	if err != nil {
		b.logger.Warn("native cancel with malformed remote id, treating as already gone", "remote_id", remoteID)
		return nil
	}
	tag, err := b.db.Exec(ctx, `
		UPDATE provider_open_slots
		SET booked = false, booked_at = NULL
		WHERE id = $1 AND booked = true
	`, slotID)
	if err != nil {
		return scheduling.Transient(fmt.Errorf("native: release slot: %w", err))
	}
	if tag.RowsAffected() == 0 {
		b.logger.Debug("native cancel found no claimed slot, treating as success", "slot_id", slotID)
	}
	return nil
}

// QuerySchedule returns nothing: the native ledger is local and needs no
// reconciliation pass.
func (b *Backend) QuerySchedule(ctx context.Context, remotePatientID string, from, to time.Time) ([]scheduling.RemoteAppointment, error) {
	return nil, nil
}

// OpenSlots lists unclaimed future slots for a provider. The availability
// resync task caches this view.
func (b *Backend) OpenSlots(ctx context.Context, providerID uuid.UUID, from, to time.Time) ([]scheduling.Slot, error) {
	rows, err := b.db.Query(ctx, `
		SELECT provider_id, start_at, end_at
		FROM provider_open_slots
		WHERE provider_id = $1 AND booked = false AND start_at >= $2 AND start_at < $3
		ORDER BY start_at
	`, providerID, from.UTC(), to.UTC())
	if err != nil {
		return nil, fmt.Errorf("native: list open slots: %w", err)
	}
	defer rows.Close()

	var slots []scheduling.Slot
	for rows.Next() {
		var s scheduling.Slot
		if err := rows.Scan(&s.ProviderID, &s.Start, &s.End); err != nil {
			return nil, fmt.Errorf("native: scan slot: %w", err)
		}
		slots = append(slots, s)
	}
	return slots, rows.Err()
}

func parseRemoteID(remoteID string) (uuid.UUID, error) {
	raw, ok := strings.CutPrefix(remoteID, remoteIDPrefix)
	if !ok {
		return uuid.Nil, fmt.Errorf("native: remote id %q lacks prefix", remoteID)
	}
	return uuid.Parse(raw)
}

var _ scheduling.Backend = (*Backend)(nil)
