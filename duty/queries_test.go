package duty_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/duty-ledger/duty"
)

// shift clocks person in and out, leaving the clock advanced by d.
func (f *fixture) shift(t *testing.T, person string, d time.Duration) {
	t.Helper()
	ctx := context.Background()
	_, err := f.core.Sessions.ClockIn(ctx, person, "c", "m", nil)
	require.NoError(t, err)
	f.advance(d)
	_, err = f.core.Sessions.ClockOut(ctx, person)
	require.NoError(t, err)
}

func TestTopByMonth_SortedAndLimited(t *testing.T) {
	f := newFixture(t, march)
	ctx := context.Background()

	for i := 1; i <= 12; i++ {
		f.shift(t, fmt.Sprintf("p%02d", i), time.Duration(i)*time.Minute)
	}

	rows, err := f.core.Queries.TopByMonth(ctx, duty.MonthKey{}, 5)
	require.NoError(t, err)
	require.Len(t, rows, 5)
	assert.Equal(t, "p12", rows[0].PersonID)
	for i := 1; i < len(rows); i++ {
		assert.GreaterOrEqual(t, rows[i-1].TotalSeconds, rows[i].TotalSeconds)
	}

	rows, err = f.core.Queries.TopByMonth(ctx, duty.MonthKey{}, 0)
	require.NoError(t, err)
	assert.Len(t, rows, duty.DefaultLimit)
}

func TestTopByMonth_ExplicitMonth(t *testing.T) {
	f := newFixture(t, march)
	ctx := context.Background()
	f.shift(t, "alice", time.Hour)

	rows, err := f.core.Queries.TopByMonth(ctx, duty.MonthKey{Month: time.February, Year: 2025}, 10)
	require.NoError(t, err)
	assert.Empty(t, rows)

	rows, err = f.core.Queries.TopByMonth(ctx, duty.MonthKey{Month: time.March, Year: 2025}, 10)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, int64(3600), rows[0].TotalSeconds)
}

func TestTopByMonth_InvalidMonth(t *testing.T) {
	f := newFixture(t, march)

	_, err := f.core.Queries.TopByMonth(context.Background(), duty.MonthKey{Month: 13, Year: 2025}, 10)
	assert.True(t, duty.IsClientError(err))
}

func TestPersonMonthTotal_Absent_IsZero(t *testing.T) {
	f := newFixture(t, march)

	totals, err := f.core.Queries.PersonMonthTotal(context.Background(), "nobody", duty.MonthKey{})
	require.NoError(t, err)
	assert.Equal(t, duty.Totals{}, totals)
}

func TestTopByWeek_OnlyLastSevenDays(t *testing.T) {
	// GIVEN: alice worked 8 days ago, bob worked yesterday and today
	// WHEN: the weekly board is read
	// THEN: only sessions ending inside the window count

	f := newFixture(t, march)
	ctx := context.Background()

	f.shift(t, "alice", 5*time.Hour)
	f.advance(7 * 24 * time.Hour)
	f.shift(t, "bob", time.Hour)
	f.advance(20 * time.Hour)
	f.shift(t, "bob", 2*time.Hour)

	rows, err := f.core.Queries.TopByWeek(ctx, 10)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, duty.LeaderboardRow{PersonID: "bob", TotalSeconds: 3 * 3600, ShiftsCompleted: 2}, rows[0])
}

func TestTopByWeek_IgnoresAdjustments(t *testing.T) {
	f := newFixture(t, march)
	ctx := context.Background()

	f.shift(t, "alice", time.Hour)
	_, err := f.core.Adjustments.Adjust(ctx, "alice", 7200, "admin", "missed shift")
	require.NoError(t, err)

	rows, err := f.core.Queries.TopByWeek(ctx, 10)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, int64(3600), rows[0].TotalSeconds)
}

func TestPreviousMonthSnapshot_JanuaryRollsBackYear(t *testing.T) {
	f := newFixture(t, time.Date(2024, time.December, 15, 12, 0, 0, 0, time.UTC))
	ctx := context.Background()
	f.shift(t, "alice", time.Hour)

	*f.now = time.Date(2025, time.January, 1, 0, 30, 0, 0, time.UTC)
	snap, err := f.core.Queries.PreviousMonthSnapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, duty.MonthKey{Month: time.December, Year: 2024}, snap.Key)
	require.Len(t, snap.Rows, 1)
	assert.Equal(t, int64(3600), snap.TotalSeconds())
	assert.Equal(t, int64(1), snap.TotalShifts())
}

func TestMonthReport_AllRowsDescending(t *testing.T) {
	f := newFixture(t, march)
	ctx := context.Background()
	for i := 1; i <= 15; i++ {
		f.shift(t, fmt.Sprintf("p%02d", i), time.Duration(i)*time.Minute)
	}

	snap, err := f.core.Queries.MonthReport(ctx, duty.MonthKey{})
	require.NoError(t, err)
	require.Len(t, snap.Rows, 15)
	assert.Equal(t, "p15", snap.Rows[0].PersonID)
	assert.Equal(t, "p01", snap.Rows[14].PersonID)
}

func TestAdjustmentHistory_MostRecentFirst(t *testing.T) {
	f := newFixture(t, march)
	ctx := context.Background()

	for i := 1; i <= 12; i++ {
		_, err := f.core.Adjustments.Adjust(ctx, "alice", int64(i*60), "admin", fmt.Sprintf("fix %d", i))
		require.NoError(t, err)
		f.advance(time.Minute)
	}
	_, err := f.core.Adjustments.Adjust(ctx, "bob", 60, "admin", "other person")
	require.NoError(t, err)

	history, err := f.core.Queries.AdjustmentHistory(ctx, "alice", 0)
	require.NoError(t, err)
	require.Len(t, history, duty.DefaultLimit)
	assert.Equal(t, "fix 12", history[0].Reason)
	assert.Equal(t, "fix 3", history[9].Reason)
}

func TestReconciliation_SessionsPlusAdjustmentsEqualRollup(t *testing.T) {
	// GIVEN: several shifts then several adjustments
	// THEN: rollup == sum(session durations) + sum(deltas)

	f := newFixture(t, march)
	ctx := context.Background()

	for _, d := range []time.Duration{3661 * time.Second, 1800 * time.Second, 90*time.Minute + 500*time.Millisecond} {
		f.shift(t, "alice", d)
	}

	sessions, err := f.core.Queries.PersonSessions(ctx, "alice", duty.MonthKey{})
	require.NoError(t, err)
	var fromSessions int64
	for _, s := range sessions {
		fromSessions += s.DurationSeconds
	}
	totals, err := f.core.Queries.PersonMonthTotal(ctx, "alice", duty.MonthKey{})
	require.NoError(t, err)
	assert.Equal(t, fromSessions, totals.TotalSeconds)
	assert.Equal(t, int64(len(sessions)), totals.ShiftsCompleted)

	deltas := []int64{600, -1200, 45}
	var sum int64
	for _, d := range deltas {
		_, err := f.core.Adjustments.Adjust(ctx, "alice", d, "admin", "reconcile")
		require.NoError(t, err)
		sum += d
	}

	totals, err = f.core.Queries.PersonMonthTotal(ctx, "alice", duty.MonthKey{})
	require.NoError(t, err)
	assert.Equal(t, fromSessions+sum, totals.TotalSeconds)
	assert.Equal(t, int64(3), totals.ShiftsCompleted)
}
