package audit

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// DBTX is satisfied by *pgxpool.Pool and pgx.Tx, so a Store can write
// standalone or join the caller's transaction.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// Store persists audit entries in Postgres.
type Store struct {
	db DBTX
}

// NewStore creates an audit store.
func NewStore(db DBTX) *Store {
	if db == nil {
		panic("audit: db required")
	}
	return &Store{db: db}
}

// WithTx returns a store bound to the given transaction.
func (s *Store) WithTx(tx pgx.Tx) *Store {
	return &Store{db: tx}
}

// Record appends one entry. Entries are never updated or deleted.
func (s *Store) Record(ctx context.Context, entry Entry) error {
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	query := `
		INSERT INTO audit_entries (id, account_id, kind, backend, remote_id, payload, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	if _, err := s.db.Exec(ctx, query,
		entry.ID, entry.AccountID, string(entry.Kind), entry.Backend,
		entry.RemoteID, entry.Payload, entry.CreatedAt,
	); err != nil {
		return fmt.Errorf("audit: insert entry: %w", err)
	}
	return nil
}

// Filter narrows an audit query.
type Filter struct {
	AccountID uuid.UUID
	Kind      Kind
	Since     time.Time
	Limit     int
}

// List returns entries for an account, newest first.
func (s *Store) List(ctx context.Context, filter Filter) ([]Entry, error) {
	query := `
		SELECT id, account_id, kind, backend, remote_id, payload, created_at
		FROM audit_entries
		WHERE account_id = $1
	`
	args := []any{filter.AccountID}
	argIdx := 2

	if filter.Kind != "" {
		query += fmt.Sprintf(" AND kind = $%d", argIdx)
		args = append(args, string(filter.Kind))
		argIdx++
	}
	if !filter.Since.IsZero() {
		query += fmt.Sprintf(" AND created_at >= $%d", argIdx)
		args = append(args, filter.Since)
		argIdx++
	}

	query += " ORDER BY created_at DESC"
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
	}

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("audit: query entries: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var kind string
		if err := rows.Scan(&e.ID, &e.AccountID, &kind, &e.Backend, &e.RemoteID, &e.Payload, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("audit: scan entry: %w", err)
		}
		e.Kind = Kind(kind)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

var _ Recorder = (*Store)(nil)
