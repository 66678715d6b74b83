/*
store.go - Persistence interface for duty sessions and their aggregates

PURPOSE:
  Defines the boundary between the services and the database. Three
  concerns share one backend:

    ClockStore  active_sessions     one row per on-duty person
    Ledger      sessions            immutable completed shifts
                monthly_times       additive per-person monthly rollups
    AuditLog    time_modifications  append-only admin adjustments

KEY RULES:
  - InsertActive returns ErrAlreadyActive when the person already has a row.
    The uniqueness check is the store's key constraint, never a read-then-write.
  - AddToRollup is a native atomic upsert: create-or-add in one statement.
  - Completed sessions and adjustment records are never updated or deleted.
  - Absence is not an error: lookups return nil, nil.

ATOMIC UNITS:
  Clock-out touches three tables and an adjustment touches two. Callers run
  these inside TxStore.WithTx so a failure part way leaves nothing behind.

IMPLEMENTATIONS:
  - store/sqlite/sqlite.go: default single-file backend
  - store/postgres/postgres.go: pgx backend
  - duty/store/memory.go: in-memory for tests and dev
*/
package duty

import (
	"context"
	"time"
)

// =============================================================================
// CLOCK STORE - Active sessions
// =============================================================================

type ClockStore interface {
	// InsertActive creates the active row. ErrAlreadyActive on duplicate.
	InsertActive(ctx context.Context, s ActiveSession) error

	// GetActive returns the active row or nil.
	GetActive(ctx context.Context, personID string) (*ActiveSession, error)

	// TakeActive reads and deletes the active row in one step. Nil if absent.
	TakeActive(ctx context.Context, personID string) (*ActiveSession, error)

	// UpdateRidealong sets the companion. False when there is no active row
	// or the stored value already equals ridealongID (nil included).
	UpdateRidealong(ctx context.Context, personID string, ridealongID *string) (bool, error)

	// ListActive returns all active rows, oldest start first.
	ListActive(ctx context.Context) ([]ActiveSession, error)
}

// =============================================================================
// LEDGER - Completed sessions and monthly rollups
// =============================================================================

type Ledger interface {
	// AddToRollup adds the delta to the rollup, creating it if needed.
	AddToRollup(ctx context.Context, d RollupDelta) error

	// AppendSession stores a completed session and returns its assigned ID.
	AppendSession(ctx context.Context, s CompletedSession) (int64, error)

	// GetRollup returns the rollup for person and month, or nil.
	GetRollup(ctx context.Context, personID string, key MonthKey) (*MonthlyRollup, error)

	// ListRollups returns a month's rollups by total seconds, highest first.
	// limit <= 0 returns every row.
	ListRollups(ctx context.Context, key MonthKey, limit int) ([]MonthlyRollup, error)

	// SumSessionsSince totals completed sessions with EndTime >= since, per person,
	// highest total first. limit <= 0 returns every row.
	SumSessionsSince(ctx context.Context, since time.Time, limit int) ([]LeaderboardRow, error)

	// ListSessions returns a person's sessions with from <= EndTime < to, oldest first.
	ListSessions(ctx context.Context, personID string, from, to time.Time) ([]CompletedSession, error)
}

// =============================================================================
// AUDIT LOG - Adjustment records
// =============================================================================

type AuditLog interface {
	// AppendAdjustment stores the record and returns its assigned ID.
	AppendAdjustment(ctx context.Context, a AdjustmentRecord) (int64, error)

	// ListAdjustments returns a person's records, most recent first.
	ListAdjustments(ctx context.Context, personID string, limit int) ([]AdjustmentRecord, error)
}

// Store is the full persistence surface.
type Store interface {
	ClockStore
	Ledger
	AuditLog
}

// =============================================================================
// TRANSACTIONAL STORE
// =============================================================================

// TxStore wraps Store with transaction support.
type TxStore interface {
	Store

	// WithTx executes fn within a transaction.
	// If fn returns error, transaction is rolled back.
	// If fn returns nil, transaction is committed.
	WithTx(ctx context.Context, fn func(Store) error) error
}
