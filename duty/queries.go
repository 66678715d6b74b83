package duty

import "context"

// DefaultLimit is the leaderboard and history size when the caller passes none.
const DefaultLimit = 10

// Queries answers read-only projections over the ledger and audit log.
// Month queries take a MonthKey; the zero key means the current month.
type Queries struct {
	Store Store
	Clock Clock
}

func NewQueries(store Store, clock Clock) *Queries {
	return &Queries{Store: store, Clock: clock}
}

// TopByMonth returns the month's leaderboard, highest total first.
func (q *Queries) TopByMonth(ctx context.Context, key MonthKey, limit int) ([]LeaderboardRow, error) {
	key, err := q.Clock.resolve(key)
	if err != nil {
		return nil, err
	}
	rollups, err := q.Store.ListRollups(ctx, key, limitOrDefault(limit))
	if err != nil {
		return nil, storeErr("top by month", err)
	}
	return rowsFromRollups(rollups), nil
}

// PersonMonthTotal returns one person's totals, zero when nothing is recorded.
func (q *Queries) PersonMonthTotal(ctx context.Context, personID string, key MonthKey) (Totals, error) {
	if err := required("person_id", personID); err != nil {
		return Totals{}, err
	}
	key, err := q.Clock.resolve(key)
	if err != nil {
		return Totals{}, err
	}
	rollup, err := q.Store.GetRollup(ctx, personID, key)
	if err != nil {
		return Totals{}, storeErr("person month total", err)
	}
	if rollup == nil {
		return Totals{}, nil
	}
	return Totals{TotalSeconds: rollup.TotalSeconds, ShiftsCompleted: rollup.ShiftsCompleted}, nil
}

// TopByWeek ranks people by completed sessions that ended in the last seven
// days. Computed from sessions on every call; adjustments are not included.
func (q *Queries) TopByWeek(ctx context.Context, limit int) ([]LeaderboardRow, error) {
	since := q.Clock.Current().Add(-WeekWindow)
	rows, err := q.Store.SumSessionsSince(ctx, since, limitOrDefault(limit))
	if err != nil {
		return nil, storeErr("top by week", err)
	}
	return rows, nil
}

// MonthReport returns every rollup of the month, highest total first.
func (q *Queries) MonthReport(ctx context.Context, key MonthKey) (Snapshot, error) {
	key, err := q.Clock.resolve(key)
	if err != nil {
		return Snapshot{}, err
	}
	rollups, err := q.Store.ListRollups(ctx, key, 0)
	if err != nil {
		return Snapshot{}, storeErr("month report", err)
	}
	return Snapshot{Key: key, Rows: rowsFromRollups(rollups)}, nil
}

// PreviousMonthSnapshot reports on the calendar month before the current one.
func (q *Queries) PreviousMonthSnapshot(ctx context.Context) (Snapshot, error) {
	return q.MonthReport(ctx, q.Clock.CurrentMonth().Previous())
}

// AdjustmentHistory returns a person's adjustments, most recent first.
func (q *Queries) AdjustmentHistory(ctx context.Context, personID string, limit int) ([]AdjustmentRecord, error) {
	if err := required("person_id", personID); err != nil {
		return nil, err
	}
	records, err := q.Store.ListAdjustments(ctx, personID, limitOrDefault(limit))
	if err != nil {
		return nil, storeErr("adjustment history", err)
	}
	return records, nil
}

// PersonSessions returns the completed sessions that ended in the month.
func (q *Queries) PersonSessions(ctx context.Context, personID string, key MonthKey) ([]CompletedSession, error) {
	if err := required("person_id", personID); err != nil {
		return nil, err
	}
	key, err := q.Clock.resolve(key)
	if err != nil {
		return nil, err
	}
	loc := q.Clock.location()
	from := key.Start(loc)
	to := from.AddDate(0, 1, 0)
	sessions, err := q.Store.ListSessions(ctx, personID, from, to)
	if err != nil {
		return nil, storeErr("person sessions", err)
	}
	return sessions, nil
}

func limitOrDefault(limit int) int {
	if limit <= 0 {
		return DefaultLimit
	}
	return limit
}
