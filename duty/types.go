package duty

import "time"

// =============================================================================
// ACTIVE SESSIONS - one row per on-duty person
// =============================================================================

// ActiveSession is the open shift of a person who is currently clocked in.
type ActiveSession struct {
	PersonID    string
	StartTime   time.Time
	Channel     string
	RidealongID *string // companion, no integrity check against the roster
	MessageRef  string
}

// Elapsed returns how long the session has been open at now.
func (a ActiveSession) Elapsed(now time.Time) time.Duration {
	if now.Before(a.StartTime) {
		return 0
	}
	return now.Sub(a.StartTime)
}

// =============================================================================
// LEDGER ENTITIES
// =============================================================================

// CompletedSession is an immutable record of a finished shift.
type CompletedSession struct {
	ID              int64
	PersonID        string
	StartTime       time.Time
	EndTime         time.Time
	DurationSeconds int64
	RidealongID     *string
	RecordedAt      time.Time
}

// MonthlyRollup is the running total of a person for one calendar month.
// TotalSeconds is signed: adjustments may take it below zero.
type MonthlyRollup struct {
	PersonID        string
	Key             MonthKey
	TotalSeconds    int64
	ShiftsCompleted int64
}

// RollupDelta is an additive change applied to a MonthlyRollup.
type RollupDelta struct {
	PersonID string
	Key      MonthKey
	Seconds  int64
	Shifts   int64
}

// AdjustmentRecord is the audit entry for a manual change to a rollup.
type AdjustmentRecord struct {
	ID           int64
	PersonID     string
	AdminID      string
	Timestamp    time.Time
	SecondsDelta int64
	Reason       string
}

// =============================================================================
// READ MODELS
// =============================================================================

// Totals is a person's aggregate for a month.
type Totals struct {
	TotalSeconds    int64
	ShiftsCompleted int64
}

// LeaderboardRow is one line of a leaderboard or month report.
type LeaderboardRow struct {
	PersonID        string
	TotalSeconds    int64
	ShiftsCompleted int64
}

// Snapshot is the full set of rollups for one month, highest total first.
type Snapshot struct {
	Key  MonthKey
	Rows []LeaderboardRow
}

// TotalSeconds sums every row of the snapshot.
func (s Snapshot) TotalSeconds() int64 {
	var total int64
	for _, r := range s.Rows {
		total += r.TotalSeconds
	}
	return total
}

// TotalShifts sums the shift counts of every row.
func (s Snapshot) TotalShifts() int64 {
	var total int64
	for _, r := range s.Rows {
		total += r.ShiftsCompleted
	}
	return total
}

// SessionSummary is what ClockOut hands back so the caller can render the
// result and clean up the clock-in artifact it posted earlier.
type SessionSummary struct {
	SessionID       int64
	PersonID        string
	Duration        time.Duration
	DurationSeconds int64
	Channel         string
	StartTime       time.Time
	EndTime         time.Time
	MessageRef      string
	RidealongID     *string
}

func rowsFromRollups(rollups []MonthlyRollup) []LeaderboardRow {
	rows := make([]LeaderboardRow, 0, len(rollups))
	for _, r := range rollups {
		rows = append(rows, LeaderboardRow{
			PersonID:        r.PersonID,
			TotalSeconds:    r.TotalSeconds,
			ShiftsCompleted: r.ShiftsCompleted,
		})
	}
	return rows
}

func optionalID(id *string) *string {
	if id == nil || *id == "" {
		return nil
	}
	v := *id
	return &v
}
