// Package postgres implements duty.TxStore on PostgreSQL with pgx.
//
// The schema lives in migrations/ and is applied with Migrate. Reads are
// built with squirrel; the upsert, take and ridealong statements are written
// out by hand because they rely on ON CONFLICT, DELETE ... RETURNING and
// IS DISTINCT FROM.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	squirrel "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/warp/duty-ledger/duty"
)

const uniqueViolation = "23505"

type pgExecutor interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// DB is satisfied by *pgxpool.Pool and by pgxmock pools.
type DB interface {
	pgExecutor
	Begin(ctx context.Context) (pgx.Tx, error)
}

// PoolConfig tunes the pgx pool.
type PoolConfig struct {
	MaxConns int32
	MinConns int32
}

// Store implements duty.TxStore backed by PostgreSQL.
type Store struct {
	pool    *pgxpool.Pool
	db      DB
	exec    pgExecutor
	builder squirrel.StatementBuilderType
	logger  *zap.Logger
}

var _ duty.TxStore = (*Store)(nil)

// Open connects a pool to dsn and verifies it with a ping.
func Open(ctx context.Context, dsn string, cfg PoolConfig, logger *zap.Logger) (*Store, error) {
	poolCfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("create pgx pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	store := New(pool, logger)
	store.pool = pool
	return store, nil
}

// New constructs a store over any DB implementation.
func New(db DB, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{
		db:      db,
		exec:    db,
		builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
		logger:  logger,
	}
}

// Close releases the pool if Open created one.
func (s *Store) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// Ping checks the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	if s.pool == nil {
		return nil
	}
	return s.pool.Ping(ctx)
}

// WithTx executes fn within a transaction. Rolled back if fn returns an error.
func (s *Store) WithTx(ctx context.Context, fn func(duty.Store) error) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}

	scoped := &Store{pool: s.pool, db: s.db, exec: tx, builder: s.builder, logger: s.logger}
	if err := fn(scoped); err != nil {
		if rbErr := tx.Rollback(ctx); rbErr != nil {
			s.logger.Warn("rollback failed", zap.Error(rbErr))
		}
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// =============================================================================
// ACTIVE SESSIONS
// =============================================================================

var activeColumns = []string{"person_id", "start_time", "channel", "ridealong_id", "message_ref"}

func (s *Store) InsertActive(ctx context.Context, a duty.ActiveSession) error {
	sql, args, err := s.builder.Insert("active_sessions").
		Columns(activeColumns...).
		Values(a.PersonID, a.StartTime, a.Channel, nullable(a.RidealongID), a.MessageRef).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert active session sql: %w", err)
	}

	if _, err := s.exec.Exec(ctx, sql, args...); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return duty.ErrAlreadyActive
		}
		return fmt.Errorf("insert active session: %w", err)
	}
	return nil
}

func (s *Store) GetActive(ctx context.Context, personID string) (*duty.ActiveSession, error) {
	sql, args, err := s.builder.Select(activeColumns...).
		From("active_sessions").
		Where(squirrel.Eq{"person_id": personID}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build get active session sql: %w", err)
	}

	a, err := scanActive(s.exec.QueryRow(ctx, sql, args...))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get active session: %w", err)
	}
	return &a, nil
}

// TakeActive deletes and returns the row in one statement.
func (s *Store) TakeActive(ctx context.Context, personID string) (*duty.ActiveSession, error) {
	const q = `DELETE FROM active_sessions WHERE person_id = $1
		RETURNING person_id, start_time, channel, ridealong_id, message_ref`

	a, err := scanActive(s.exec.QueryRow(ctx, q, personID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("take active session: %w", err)
	}
	return &a, nil
}

func (s *Store) UpdateRidealong(ctx context.Context, personID string, ridealongID *string) (bool, error) {
	const q = `UPDATE active_sessions SET ridealong_id = $2::text
		WHERE person_id = $1 AND ridealong_id IS DISTINCT FROM $2::text`

	tag, err := s.exec.Exec(ctx, q, personID, nullable(ridealongID))
	if err != nil {
		return false, fmt.Errorf("update ridealong: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

func (s *Store) ListActive(ctx context.Context) ([]duty.ActiveSession, error) {
	sql, args, err := s.builder.Select(activeColumns...).
		From("active_sessions").
		OrderBy("start_time ASC", "person_id ASC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list active sessions sql: %w", err)
	}

	rows, err := s.exec.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("list active sessions: %w", err)
	}
	defer rows.Close()

	result := make([]duty.ActiveSession, 0)
	for rows.Next() {
		a, err := scanActive(rows)
		if err != nil {
			return nil, fmt.Errorf("scan active session: %w", err)
		}
		result = append(result, a)
	}
	return result, rows.Err()
}

// =============================================================================
// LEDGER
// =============================================================================

func (s *Store) AddToRollup(ctx context.Context, d duty.RollupDelta) error {
	const q = `INSERT INTO monthly_times (person_id, month, year, total_seconds, shifts_completed)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (person_id, month, year) DO UPDATE SET
			total_seconds = monthly_times.total_seconds + EXCLUDED.total_seconds,
			shifts_completed = monthly_times.shifts_completed + EXCLUDED.shifts_completed`

	if _, err := s.exec.Exec(ctx, q, d.PersonID, int(d.Key.Month), d.Key.Year, d.Seconds, d.Shifts); err != nil {
		return fmt.Errorf("upsert monthly time: %w", err)
	}
	return nil
}

func (s *Store) AppendSession(ctx context.Context, cs duty.CompletedSession) (int64, error) {
	sql, args, err := s.builder.Insert("sessions").
		Columns("person_id", "start_time", "end_time", "duration_seconds", "ridealong_id", "recorded_at").
		Values(cs.PersonID, cs.StartTime, cs.EndTime, cs.DurationSeconds, nullable(cs.RidealongID), cs.RecordedAt).
		Suffix("RETURNING id").
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("build insert session sql: %w", err)
	}

	var id int64
	if err := s.exec.QueryRow(ctx, sql, args...).Scan(&id); err != nil {
		return 0, fmt.Errorf("insert session: %w", err)
	}
	return id, nil
}

func (s *Store) GetRollup(ctx context.Context, personID string, key duty.MonthKey) (*duty.MonthlyRollup, error) {
	sql, args, err := s.builder.Select("total_seconds", "shifts_completed").
		From("monthly_times").
		Where(squirrel.Eq{"person_id": personID, "month": int(key.Month), "year": key.Year}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build get monthly time sql: %w", err)
	}

	r := duty.MonthlyRollup{PersonID: personID, Key: key}
	err = s.exec.QueryRow(ctx, sql, args...).Scan(&r.TotalSeconds, &r.ShiftsCompleted)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get monthly time: %w", err)
	}
	return &r, nil
}

func (s *Store) ListRollups(ctx context.Context, key duty.MonthKey, limit int) ([]duty.MonthlyRollup, error) {
	query := s.builder.Select("person_id", "total_seconds", "shifts_completed").
		From("monthly_times").
		Where(squirrel.Eq{"month": int(key.Month), "year": key.Year}).
		OrderBy("total_seconds DESC", "person_id ASC")
	if limit > 0 {
		query = query.Limit(uint64(limit))
	}
	sql, args, err := query.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list monthly times sql: %w", err)
	}

	rows, err := s.exec.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("list monthly times: %w", err)
	}
	defer rows.Close()

	result := make([]duty.MonthlyRollup, 0)
	for rows.Next() {
		r := duty.MonthlyRollup{Key: key}
		if err := rows.Scan(&r.PersonID, &r.TotalSeconds, &r.ShiftsCompleted); err != nil {
			return nil, fmt.Errorf("scan monthly time: %w", err)
		}
		result = append(result, r)
	}
	return result, rows.Err()
}

func (s *Store) SumSessionsSince(ctx context.Context, since time.Time, limit int) ([]duty.LeaderboardRow, error) {
	query := s.builder.Select("person_id", "SUM(duration_seconds)::bigint AS total_seconds", "COUNT(*) AS shifts").
		From("sessions").
		Where(squirrel.GtOrEq{"end_time": since}).
		GroupBy("person_id").
		OrderBy("total_seconds DESC", "person_id ASC")
	if limit > 0 {
		query = query.Limit(uint64(limit))
	}
	sql, args, err := query.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build sum sessions sql: %w", err)
	}

	rows, err := s.exec.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("sum sessions: %w", err)
	}
	defer rows.Close()

	result := make([]duty.LeaderboardRow, 0)
	for rows.Next() {
		var r duty.LeaderboardRow
		if err := rows.Scan(&r.PersonID, &r.TotalSeconds, &r.ShiftsCompleted); err != nil {
			return nil, fmt.Errorf("scan session totals: %w", err)
		}
		result = append(result, r)
	}
	return result, rows.Err()
}

func (s *Store) ListSessions(ctx context.Context, personID string, from, to time.Time) ([]duty.CompletedSession, error) {
	sql, args, err := s.builder.Select("id", "person_id", "start_time", "end_time", "duration_seconds", "ridealong_id", "recorded_at").
		From("sessions").
		Where(squirrel.Eq{"person_id": personID}).
		Where(squirrel.GtOrEq{"end_time": from}).
		Where(squirrel.Lt{"end_time": to}).
		OrderBy("end_time ASC", "id ASC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list sessions sql: %w", err)
	}

	rows, err := s.exec.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	result := make([]duty.CompletedSession, 0)
	for rows.Next() {
		var cs duty.CompletedSession
		if err := rows.Scan(&cs.ID, &cs.PersonID, &cs.StartTime, &cs.EndTime, &cs.DurationSeconds, &cs.RidealongID, &cs.RecordedAt); err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		cs.StartTime = cs.StartTime.UTC()
		cs.EndTime = cs.EndTime.UTC()
		cs.RecordedAt = cs.RecordedAt.UTC()
		result = append(result, cs)
	}
	return result, rows.Err()
}

// =============================================================================
// AUDIT LOG
// =============================================================================

func (s *Store) AppendAdjustment(ctx context.Context, a duty.AdjustmentRecord) (int64, error) {
	sql, args, err := s.builder.Insert("time_modifications").
		Columns("person_id", "admin_id", "created_at", "seconds_delta", "reason").
		Values(a.PersonID, a.AdminID, a.Timestamp, a.SecondsDelta, a.Reason).
		Suffix("RETURNING id").
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("build insert time modification sql: %w", err)
	}

	var id int64
	if err := s.exec.QueryRow(ctx, sql, args...).Scan(&id); err != nil {
		return 0, fmt.Errorf("insert time modification: %w", err)
	}
	return id, nil
}

func (s *Store) ListAdjustments(ctx context.Context, personID string, limit int) ([]duty.AdjustmentRecord, error) {
	query := s.builder.Select("id", "person_id", "admin_id", "created_at", "seconds_delta", "reason").
		From("time_modifications").
		Where(squirrel.Eq{"person_id": personID}).
		OrderBy("created_at DESC", "id DESC")
	if limit > 0 {
		query = query.Limit(uint64(limit))
	}
	sql, args, err := query.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list time modifications sql: %w", err)
	}

	rows, err := s.exec.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("list time modifications: %w", err)
	}
	defer rows.Close()

	result := make([]duty.AdjustmentRecord, 0)
	for rows.Next() {
		var a duty.AdjustmentRecord
		if err := rows.Scan(&a.ID, &a.PersonID, &a.AdminID, &a.Timestamp, &a.SecondsDelta, &a.Reason); err != nil {
			return nil, fmt.Errorf("scan time modification: %w", err)
		}
		a.Timestamp = a.Timestamp.UTC()
		result = append(result, a)
	}
	return result, rows.Err()
}

// =============================================================================
// HELPERS
// =============================================================================

func scanActive(row pgx.Row) (duty.ActiveSession, error) {
	var a duty.ActiveSession
	if err := row.Scan(&a.PersonID, &a.StartTime, &a.Channel, &a.RidealongID, &a.MessageRef); err != nil {
		return duty.ActiveSession{}, err
	}
	a.StartTime = a.StartTime.UTC()
	return a, nil
}

func nullable(id *string) any {
	if id == nil {
		return nil
	}
	return *id
}
