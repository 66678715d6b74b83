/*
Package sqlite provides a SQLite-backed implementation of duty.TxStore.

PURPOSE:
  Default single-file backend. Implements ClockStore, Ledger and AuditLog
  over four tables in one database.

KEY TABLES:
  active_sessions:    One row per on-duty person (person_id is the primary key)
  sessions:           Immutable completed shifts
  monthly_times:      Per-person monthly rollups, keyed (person_id, month, year)
  time_modifications: Append-only admin adjustments

UNIQUENESS:
  A second clock-in violates the active_sessions primary key. The driver's
  constraint error is mapped to duty.ErrAlreadyActive; the row is never
  read first.

UPSERT:
  monthly_times is only ever written with
    INSERT ... ON CONFLICT(person_id, month, year) DO UPDATE SET total = total + excluded.total
  so two clock-outs in the same month cannot lose an update.

TIMESTAMPS:
  Stored as INTEGER unix milliseconds and read back in UTC.

CONCURRENCY:
  Uses sync.RWMutex for writers and a single pooled connection. WithTx
  holds the write lock for the whole transaction.

USAGE:
  store, err := sqlite.New("./data/duty.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

  core := duty.NewCore(store, clock, logger, recorder)

SEE ALSO:
  - duty/store.go: Interface definitions
  - store/postgres: pgx implementation of the same interfaces
  - duty/store/memory.go: In-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/mattn/go-sqlite3"
	"github.com/warp/duty-ledger/duty"
)

// Store implements duty.TxStore using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

var _ duty.TxStore = (*Store)(nil)

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// :memory: databases exist per connection.
	db.SetMaxOpenConns(1)

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS active_sessions (
		person_id TEXT PRIMARY KEY,
		start_time INTEGER NOT NULL,
		channel TEXT NOT NULL DEFAULT '',
		ridealong_id TEXT,
		message_ref TEXT NOT NULL DEFAULT ''
	);

	-- Completed shifts (never updated or deleted)
	CREATE TABLE IF NOT EXISTS sessions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		person_id TEXT NOT NULL,
		start_time INTEGER NOT NULL,
		end_time INTEGER NOT NULL,
		duration_seconds INTEGER NOT NULL,
		ridealong_id TEXT,
		recorded_at INTEGER NOT NULL,
		CHECK (end_time > start_time)
	);

	CREATE INDEX IF NOT EXISTS idx_sessions_end_time
		ON sessions(end_time);
	CREATE INDEX IF NOT EXISTS idx_sessions_person_end_time
		ON sessions(person_id, end_time);

	-- Monthly rollups (additive upsert only)
	CREATE TABLE IF NOT EXISTS monthly_times (
		person_id TEXT NOT NULL,
		month INTEGER NOT NULL CHECK (month BETWEEN 1 AND 12),
		year INTEGER NOT NULL,
		total_seconds INTEGER NOT NULL DEFAULT 0,
		shifts_completed INTEGER NOT NULL DEFAULT 0,
		PRIMARY KEY (person_id, month, year)
	);

	CREATE INDEX IF NOT EXISTS idx_monthly_times_period_total
		ON monthly_times(year, month, total_seconds DESC);

	-- Admin adjustments (append-only)
	CREATE TABLE IF NOT EXISTS time_modifications (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		person_id TEXT NOT NULL,
		admin_id TEXT NOT NULL,
		created_at INTEGER NOT NULL,
		seconds_delta INTEGER NOT NULL,
		reason TEXT NOT NULL DEFAULT ''
	);

	CREATE INDEX IF NOT EXISTS idx_time_modifications_person_created
		ON time_modifications(person_id, created_at DESC);
	`
	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// STORE - locking wrappers around conn
// =============================================================================

func (s *Store) conn() *conn {
	return &conn{q: s.db}
}

func (s *Store) InsertActive(ctx context.Context, a duty.ActiveSession) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn().InsertActive(ctx, a)
}

func (s *Store) GetActive(ctx context.Context, personID string) (*duty.ActiveSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.conn().GetActive(ctx, personID)
}

// TakeActive runs the read and delete in its own transaction.
func (s *Store) TakeActive(ctx context.Context, personID string) (*duty.ActiveSession, error) {
	var taken *duty.ActiveSession
	err := s.WithTx(ctx, func(tx duty.Store) error {
		var err error
		taken, err = tx.TakeActive(ctx, personID)
		return err
	})
	return taken, err
}

func (s *Store) UpdateRidealong(ctx context.Context, personID string, ridealongID *string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn().UpdateRidealong(ctx, personID, ridealongID)
}

func (s *Store) ListActive(ctx context.Context) ([]duty.ActiveSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.conn().ListActive(ctx)
}

func (s *Store) AddToRollup(ctx context.Context, d duty.RollupDelta) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn().AddToRollup(ctx, d)
}

func (s *Store) AppendSession(ctx context.Context, cs duty.CompletedSession) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn().AppendSession(ctx, cs)
}

func (s *Store) GetRollup(ctx context.Context, personID string, key duty.MonthKey) (*duty.MonthlyRollup, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.conn().GetRollup(ctx, personID, key)
}

func (s *Store) ListRollups(ctx context.Context, key duty.MonthKey, limit int) ([]duty.MonthlyRollup, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.conn().ListRollups(ctx, key, limit)
}

func (s *Store) SumSessionsSince(ctx context.Context, since time.Time, limit int) ([]duty.LeaderboardRow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.conn().SumSessionsSince(ctx, since, limit)
}

func (s *Store) ListSessions(ctx context.Context, personID string, from, to time.Time) ([]duty.CompletedSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.conn().ListSessions(ctx, personID, from, to)
}

func (s *Store) AppendAdjustment(ctx context.Context, a duty.AdjustmentRecord) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn().AppendAdjustment(ctx, a)
}

func (s *Store) ListAdjustments(ctx context.Context, personID string, limit int) ([]duty.AdjustmentRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.conn().ListAdjustments(ctx, personID, limit)
}

// =============================================================================
// TRANSACTIONAL STORE
// =============================================================================

// WithTx executes a function within a database transaction.
func (s *Store) WithTx(ctx context.Context, fn func(store duty.Store) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	if err := fn(&conn{q: sqlTx}); err != nil {
		return err
	}

	return sqlTx.Commit()
}

// =============================================================================
// CONN - SQL against either *sql.DB or *sql.Tx
// =============================================================================

type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type conn struct {
	q querier
}

const activeColumns = `person_id, start_time, channel, ridealong_id, message_ref`

func (c *conn) InsertActive(ctx context.Context, a duty.ActiveSession) error {
	_, err := c.q.ExecContext(ctx, `
		INSERT INTO active_sessions (`+activeColumns+`)
		VALUES (?, ?, ?, ?, ?)
	`, a.PersonID, a.StartTime.UnixMilli(), a.Channel, nullable(a.RidealongID), a.MessageRef)
	if isConstraint(err) {
		return duty.ErrAlreadyActive
	}
	if err != nil {
		return fmt.Errorf("insert active session: %w", err)
	}
	return nil
}

func (c *conn) GetActive(ctx context.Context, personID string) (*duty.ActiveSession, error) {
	row := c.q.QueryRowContext(ctx, `
		SELECT `+activeColumns+` FROM active_sessions WHERE person_id = ?
	`, personID)
	a, err := scanActive(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get active session: %w", err)
	}
	return &a, nil
}

// TakeActive must run inside a transaction.
func (c *conn) TakeActive(ctx context.Context, personID string) (*duty.ActiveSession, error) {
	a, err := c.GetActive(ctx, personID)
	if err != nil || a == nil {
		return nil, err
	}
	if _, err := c.q.ExecContext(ctx, `DELETE FROM active_sessions WHERE person_id = ?`, personID); err != nil {
		return nil, fmt.Errorf("delete active session: %w", err)
	}
	return a, nil
}

func (c *conn) UpdateRidealong(ctx context.Context, personID string, ridealongID *string) (bool, error) {
	value := nullable(ridealongID)
	result, err := c.q.ExecContext(ctx, `
		UPDATE active_sessions SET ridealong_id = ?
		WHERE person_id = ? AND ridealong_id IS NOT ?
	`, value, personID, value)
	if err != nil {
		return false, fmt.Errorf("update ridealong: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (c *conn) ListActive(ctx context.Context) ([]duty.ActiveSession, error) {
	rows, err := c.q.QueryContext(ctx, `
		SELECT `+activeColumns+` FROM active_sessions ORDER BY start_time ASC, person_id ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("list active sessions: %w", err)
	}
	defer rows.Close()

	result := make([]duty.ActiveSession, 0)
	for rows.Next() {
		a, err := scanActive(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, a)
	}
	return result, rows.Err()
}

func (c *conn) AddToRollup(ctx context.Context, d duty.RollupDelta) error {
	_, err := c.q.ExecContext(ctx, `
		INSERT INTO monthly_times (person_id, month, year, total_seconds, shifts_completed)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(person_id, month, year) DO UPDATE SET
			total_seconds = total_seconds + excluded.total_seconds,
			shifts_completed = shifts_completed + excluded.shifts_completed
	`, d.PersonID, int(d.Key.Month), d.Key.Year, d.Seconds, d.Shifts)
	if err != nil {
		return fmt.Errorf("upsert monthly time: %w", err)
	}
	return nil
}

func (c *conn) AppendSession(ctx context.Context, cs duty.CompletedSession) (int64, error) {
	result, err := c.q.ExecContext(ctx, `
		INSERT INTO sessions (person_id, start_time, end_time, duration_seconds, ridealong_id, recorded_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, cs.PersonID, cs.StartTime.UnixMilli(), cs.EndTime.UnixMilli(), cs.DurationSeconds,
		nullable(cs.RidealongID), cs.RecordedAt.UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("insert session: %w", err)
	}
	return result.LastInsertId()
}

func (c *conn) GetRollup(ctx context.Context, personID string, key duty.MonthKey) (*duty.MonthlyRollup, error) {
	r := duty.MonthlyRollup{PersonID: personID, Key: key}
	err := c.q.QueryRowContext(ctx, `
		SELECT total_seconds, shifts_completed FROM monthly_times
		WHERE person_id = ? AND month = ? AND year = ?
	`, personID, int(key.Month), key.Year).Scan(&r.TotalSeconds, &r.ShiftsCompleted)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get monthly time: %w", err)
	}
	return &r, nil
}

func (c *conn) ListRollups(ctx context.Context, key duty.MonthKey, limit int) ([]duty.MonthlyRollup, error) {
	rows, err := c.q.QueryContext(ctx, `
		SELECT person_id, total_seconds, shifts_completed FROM monthly_times
		WHERE month = ? AND year = ?
		ORDER BY total_seconds DESC
		LIMIT ?
	`, int(key.Month), key.Year, sqlLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("list monthly times: %w", err)
	}
	defer rows.Close()

	result := make([]duty.MonthlyRollup, 0)
	for rows.Next() {
		r := duty.MonthlyRollup{Key: key}
		if err := rows.Scan(&r.PersonID, &r.TotalSeconds, &r.ShiftsCompleted); err != nil {
			return nil, err
		}
		result = append(result, r)
	}
	return result, rows.Err()
}

func (c *conn) SumSessionsSince(ctx context.Context, since time.Time, limit int) ([]duty.LeaderboardRow, error) {
	rows, err := c.q.QueryContext(ctx, `
		SELECT person_id, SUM(duration_seconds) AS total_seconds, COUNT(*) AS shifts
		FROM sessions
		WHERE end_time >= ?
		GROUP BY person_id
		ORDER BY total_seconds DESC
		LIMIT ?
	`, since.UnixMilli(), sqlLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("sum sessions: %w", err)
	}
	defer rows.Close()

	result := make([]duty.LeaderboardRow, 0)
	for rows.Next() {
		var r duty.LeaderboardRow
		if err := rows.Scan(&r.PersonID, &r.TotalSeconds, &r.ShiftsCompleted); err != nil {
			return nil, err
		}
		result = append(result, r)
	}
	return result, rows.Err()
}

func (c *conn) ListSessions(ctx context.Context, personID string, from, to time.Time) ([]duty.CompletedSession, error) {
	rows, err := c.q.QueryContext(ctx, `
		SELECT id, person_id, start_time, end_time, duration_seconds, ridealong_id, recorded_at
		FROM sessions
		WHERE person_id = ? AND end_time >= ? AND end_time < ?
		ORDER BY end_time ASC, id ASC
	`, personID, from.UnixMilli(), to.UnixMilli())
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	result := make([]duty.CompletedSession, 0)
	for rows.Next() {
		var (
			cs                   duty.CompletedSession
			start, end, recorded int64
			ridealong            sql.NullString
		)
		if err := rows.Scan(&cs.ID, &cs.PersonID, &start, &end, &cs.DurationSeconds, &ridealong, &recorded); err != nil {
			return nil, err
		}
		cs.StartTime = fromMillis(start)
		cs.EndTime = fromMillis(end)
		cs.RecordedAt = fromMillis(recorded)
		cs.RidealongID = fromNullString(ridealong)
		result = append(result, cs)
	}
	return result, rows.Err()
}

func (c *conn) AppendAdjustment(ctx context.Context, a duty.AdjustmentRecord) (int64, error) {
	result, err := c.q.ExecContext(ctx, `
		INSERT INTO time_modifications (person_id, admin_id, created_at, seconds_delta, reason)
		VALUES (?, ?, ?, ?, ?)
	`, a.PersonID, a.AdminID, a.Timestamp.UnixMilli(), a.SecondsDelta, a.Reason)
	if err != nil {
		return 0, fmt.Errorf("insert time modification: %w", err)
	}
	return result.LastInsertId()
}

func (c *conn) ListAdjustments(ctx context.Context, personID string, limit int) ([]duty.AdjustmentRecord, error) {
	rows, err := c.q.QueryContext(ctx, `
		SELECT id, person_id, admin_id, created_at, seconds_delta, reason
		FROM time_modifications
		WHERE person_id = ?
		ORDER BY created_at DESC, id DESC
		LIMIT ?
	`, personID, sqlLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("list time modifications: %w", err)
	}
	defer rows.Close()

	result := make([]duty.AdjustmentRecord, 0)
	for rows.Next() {
		var (
			a       duty.AdjustmentRecord
			created int64
		)
		if err := rows.Scan(&a.ID, &a.PersonID, &a.AdminID, &created, &a.SecondsDelta, &a.Reason); err != nil {
			return nil, err
		}
		a.Timestamp = fromMillis(created)
		result = append(result, a)
	}
	return result, rows.Err()
}

// =============================================================================
// HELPERS
// =============================================================================

type scanner interface {
	Scan(dest ...any) error
}

func scanActive(row scanner) (duty.ActiveSession, error) {
	var (
		a         duty.ActiveSession
		start     int64
		ridealong sql.NullString
	)
	if err := row.Scan(&a.PersonID, &start, &a.Channel, &ridealong, &a.MessageRef); err != nil {
		return duty.ActiveSession{}, err
	}
	a.StartTime = fromMillis(start)
	a.RidealongID = fromNullString(ridealong)
	return a, nil
}

func isConstraint(err error) bool {
	var sqliteErr sqlite3.Error
	return errors.As(err, &sqliteErr) && sqliteErr.Code == sqlite3.ErrConstraint
}

// sqlLimit maps "no limit" to SQLite's LIMIT -1.
func sqlLimit(limit int) int {
	if limit <= 0 {
		return -1
	}
	return limit
}

func nullable(id *string) any {
	if id == nil {
		return nil
	}
	return *id
}

func fromNullString(s sql.NullString) *string {
	if !s.Valid {
		return nil
	}
	v := s.String
	return &v
}

func fromMillis(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}
