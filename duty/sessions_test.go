package duty_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/duty-ledger/duty"
	"github.com/warp/duty-ledger/duty/store"
)

// =============================================================================
// TEST SETUP
// =============================================================================

type fixture struct {
	store *store.TxMemory
	now   *time.Time
	core  *duty.Core
}

func newFixture(t *testing.T, start time.Time) *fixture {
	t.Helper()
	now := start
	mem := store.NewTxMemory()
	return &fixture{
		store: mem,
		now:   &now,
		core:  duty.NewCore(mem, duty.FixedClock(&now), nil, nil),
	}
}

func (f *fixture) advance(d time.Duration) {
	*f.now = f.now.Add(d)
}

func ptr(s string) *string { return &s }

// failingStore makes the last write of every transaction fail.
type failingStore struct {
	*store.TxMemory
	err error
}

func (f *failingStore) WithTx(ctx context.Context, fn func(duty.Store) error) error {
	return f.TxMemory.WithTx(ctx, func(tx duty.Store) error {
		return fn(failingView{Store: tx, err: f.err})
	})
}

type failingView struct {
	duty.Store
	err error
}

func (v failingView) AppendSession(context.Context, duty.CompletedSession) (int64, error) {
	return 0, v.err
}

func (v failingView) AppendAdjustment(context.Context, duty.AdjustmentRecord) (int64, error) {
	return 0, v.err
}

var march = time.Date(2025, time.March, 10, 8, 0, 0, 0, time.UTC)

// =============================================================================
// CLOCK IN
// =============================================================================

func TestClockIn_RecordsStartTime(t *testing.T) {
	f := newFixture(t, march)
	ctx := context.Background()

	start, err := f.core.Sessions.ClockIn(ctx, "alice", "chan-1", "msg-1", nil)
	require.NoError(t, err)
	assert.Equal(t, march, start)

	active, err := f.core.Sessions.Active(ctx, "alice")
	require.NoError(t, err)
	require.NotNil(t, active)
	assert.Equal(t, "chan-1", active.Channel)
	assert.Equal(t, "msg-1", active.MessageRef)
	assert.Nil(t, active.RidealongID)
}

func TestClockIn_TruncatesToMilliseconds(t *testing.T) {
	f := newFixture(t, march.Add(1500*time.Microsecond))

	start, err := f.core.Sessions.ClockIn(context.Background(), "alice", "c", "m", nil)
	require.NoError(t, err)
	assert.Equal(t, march.Add(time.Millisecond), start)
}

func TestClockIn_Twice_RejectedAndFirstSessionUntouched(t *testing.T) {
	// GIVEN: alice is on duty with bob riding along
	// WHEN: alice clocks in again from another channel
	// THEN: AlreadyActive, and the first row is unchanged

	f := newFixture(t, march)
	ctx := context.Background()

	_, err := f.core.Sessions.ClockIn(ctx, "alice", "chan-1", "msg-1", ptr("bob"))
	require.NoError(t, err)

	f.advance(time.Minute)
	_, err = f.core.Sessions.ClockIn(ctx, "alice", "chan-2", "msg-2", nil)
	require.Error(t, err)
	assert.True(t, duty.IsConflict(err))
	var conflict *duty.AlreadyActiveError
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, "alice", conflict.PersonID)

	active, err := f.core.Sessions.Active(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, march, active.StartTime)
	assert.Equal(t, "chan-1", active.Channel)
	assert.Equal(t, "bob", *active.RidealongID)
}

func TestClockIn_EmptyPerson_InvalidArgument(t *testing.T) {
	f := newFixture(t, march)

	_, err := f.core.Sessions.ClockIn(context.Background(), "", "c", "m", nil)
	assert.True(t, duty.IsClientError(err))
}

func TestClockIn_EmptyRidealongTreatedAsNone(t *testing.T) {
	f := newFixture(t, march)
	ctx := context.Background()

	_, err := f.core.Sessions.ClockIn(ctx, "alice", "c", "m", ptr(""))
	require.NoError(t, err)

	active, err := f.core.Sessions.Active(ctx, "alice")
	require.NoError(t, err)
	assert.Nil(t, active.RidealongID)
}

// =============================================================================
// CLOCK OUT
// =============================================================================

func TestClockOut_OneHourOneMinuteOneSecond(t *testing.T) {
	// GIVEN: alice clocks in at t=0
	// WHEN: she clocks out at t=3661000ms, then works another 1800s shift
	// THEN: the rollup holds 3661s/1 shift, then 5461s/2 shifts

	f := newFixture(t, march)
	ctx := context.Background()

	_, err := f.core.Sessions.ClockIn(ctx, "alice", "chan-1", "msg-1", nil)
	require.NoError(t, err)
	f.advance(3661000 * time.Millisecond)

	summary, err := f.core.Sessions.ClockOut(ctx, "alice")
	require.NoError(t, err)
	require.NotNil(t, summary)
	assert.Equal(t, int64(3661), summary.DurationSeconds)
	assert.Equal(t, time.Hour+time.Minute+time.Second, summary.Duration)
	assert.Equal(t, "chan-1", summary.Channel)
	assert.Equal(t, "msg-1", summary.MessageRef)
	assert.Equal(t, march, summary.StartTime)

	totals, err := f.core.Queries.PersonMonthTotal(ctx, "alice", duty.MonthKey{})
	require.NoError(t, err)
	assert.Equal(t, duty.Totals{TotalSeconds: 3661, ShiftsCompleted: 1}, totals)

	_, err = f.core.Sessions.ClockIn(ctx, "alice", "chan-1", "msg-2", nil)
	require.NoError(t, err)
	f.advance(1800 * time.Second)
	_, err = f.core.Sessions.ClockOut(ctx, "alice")
	require.NoError(t, err)

	totals, err = f.core.Queries.PersonMonthTotal(ctx, "alice", duty.MonthKey{})
	require.NoError(t, err)
	assert.Equal(t, duty.Totals{TotalSeconds: 5461, ShiftsCompleted: 2}, totals)
}

func TestClockOut_NotClockedIn_ReturnsNilAndMutatesNothing(t *testing.T) {
	f := newFixture(t, march)
	ctx := context.Background()

	summary, err := f.core.Sessions.ClockOut(ctx, "alice")
	require.NoError(t, err)
	assert.Nil(t, summary)

	rows, err := f.core.Queries.TopByMonth(ctx, duty.MonthKey{}, 10)
	require.NoError(t, err)
	assert.Empty(t, rows)
	sessions, err := f.core.Queries.PersonSessions(ctx, "alice", duty.MonthKey{})
	require.NoError(t, err)
	assert.Empty(t, sessions)
}

func TestClockOut_RoundsHalfUp(t *testing.T) {
	tests := []struct {
		name    string
		elapsed time.Duration
		want    int64
	}{
		{"below half", 1499 * time.Millisecond, 1},
		{"exactly half", 1500 * time.Millisecond, 2},
		{"sub second", 499 * time.Millisecond, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, march)
			ctx := context.Background()
			_, err := f.core.Sessions.ClockIn(ctx, "alice", "c", "m", nil)
			require.NoError(t, err)
			f.advance(tt.elapsed)

			summary, err := f.core.Sessions.ClockOut(ctx, "alice")
			require.NoError(t, err)
			assert.Equal(t, tt.want, summary.DurationSeconds)
		})
	}
}

func TestClockOut_ClockMovedBackwards_EndsOneMillisecondAfterStart(t *testing.T) {
	f := newFixture(t, march)
	ctx := context.Background()

	_, err := f.core.Sessions.ClockIn(ctx, "alice", "c", "m", nil)
	require.NoError(t, err)
	f.advance(-time.Minute)

	summary, err := f.core.Sessions.ClockOut(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, march.Add(time.Millisecond), summary.EndTime)
	assert.Equal(t, int64(0), summary.DurationSeconds)
}

func TestClockOut_AcrossMonthBoundary_AttributedToEndMonth(t *testing.T) {
	f := newFixture(t, time.Date(2025, time.March, 31, 22, 0, 0, 0, time.UTC))
	ctx := context.Background()

	_, err := f.core.Sessions.ClockIn(ctx, "alice", "c", "m", nil)
	require.NoError(t, err)
	f.advance(4 * time.Hour)
	_, err = f.core.Sessions.ClockOut(ctx, "alice")
	require.NoError(t, err)

	marchTotals, err := f.core.Queries.PersonMonthTotal(ctx, "alice", duty.MonthKey{Month: time.March, Year: 2025})
	require.NoError(t, err)
	april, err := f.core.Queries.PersonMonthTotal(ctx, "alice", duty.MonthKey{Month: time.April, Year: 2025})
	require.NoError(t, err)
	assert.Zero(t, marchTotals.TotalSeconds)
	assert.Equal(t, int64(4*3600), april.TotalSeconds)
}

func TestClockOut_SnapshotsRidealong(t *testing.T) {
	f := newFixture(t, march)
	ctx := context.Background()

	_, err := f.core.Sessions.ClockIn(ctx, "alice", "c", "m", nil)
	require.NoError(t, err)
	_, err = f.core.Sessions.SetRidealong(ctx, "alice", ptr("bob"))
	require.NoError(t, err)
	f.advance(time.Hour)

	summary, err := f.core.Sessions.ClockOut(ctx, "alice")
	require.NoError(t, err)
	require.NotNil(t, summary.RidealongID)
	assert.Equal(t, "bob", *summary.RidealongID)

	sessions, err := f.core.Queries.PersonSessions(ctx, "alice", duty.MonthKey{})
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	assert.Equal(t, "bob", *sessions[0].RidealongID)
	assert.Equal(t, summary.SessionID, sessions[0].ID)
}

func TestClockOut_StoreFailure_RollsBackEverything(t *testing.T) {
	// GIVEN: the session insert fails inside the clock-out transaction
	// WHEN: alice clocks out
	// THEN: the active row and rollup are exactly as before

	now := march
	mem := store.NewTxMemory()
	broken := &failingStore{TxMemory: mem, err: errors.New("disk full")}
	sessions := duty.NewSessionManager(broken, duty.FixedClock(&now), nil)
	queries := duty.NewQueries(mem, duty.FixedClock(&now))
	ctx := context.Background()

	_, err := sessions.ClockIn(ctx, "alice", "c", "m", nil)
	require.NoError(t, err)
	now = now.Add(time.Hour)

	summary, err := sessions.ClockOut(ctx, "alice")
	require.Error(t, err)
	assert.Nil(t, summary)
	assert.ErrorIs(t, err, duty.ErrStoreFailure)

	active, err := sessions.IsActive(ctx, "alice")
	require.NoError(t, err)
	assert.True(t, active, "active session must survive a failed clock-out")

	totals, err := queries.PersonMonthTotal(ctx, "alice", duty.MonthKey{})
	require.NoError(t, err)
	assert.Equal(t, duty.Totals{}, totals)
}

// =============================================================================
// RIDEALONG + ROSTER
// =============================================================================

func TestSetRidealong_NoActiveSession_NotUpdated(t *testing.T) {
	f := newFixture(t, march)

	updated, err := f.core.Sessions.SetRidealong(context.Background(), "alice", nil)
	require.NoError(t, err)
	assert.False(t, updated)
}

func TestSetRidealong_ChangedThenUnchanged(t *testing.T) {
	f := newFixture(t, march)
	ctx := context.Background()
	_, err := f.core.Sessions.ClockIn(ctx, "alice", "c", "m", nil)
	require.NoError(t, err)

	updated, err := f.core.Sessions.SetRidealong(ctx, "alice", ptr("bob"))
	require.NoError(t, err)
	assert.True(t, updated)

	updated, err = f.core.Sessions.SetRidealong(ctx, "alice", ptr("bob"))
	require.NoError(t, err)
	assert.False(t, updated, "same companion is not a change")

	updated, err = f.core.Sessions.SetRidealong(ctx, "alice", nil)
	require.NoError(t, err)
	assert.True(t, updated)

	updated, err = f.core.Sessions.SetRidealong(ctx, "alice", nil)
	require.NoError(t, err)
	assert.False(t, updated)
}

func TestListActive_OrderedByStartTime(t *testing.T) {
	f := newFixture(t, march)
	ctx := context.Background()

	for _, person := range []string{"carol", "alice", "bob"} {
		_, err := f.core.Sessions.ClockIn(ctx, person, "c", "m", nil)
		require.NoError(t, err)
		f.advance(time.Minute)
	}

	roster, err := f.core.Sessions.ListActive(ctx)
	require.NoError(t, err)
	require.Len(t, roster, 3)
	assert.Equal(t, "carol", roster[0].PersonID)
	assert.Equal(t, "alice", roster[1].PersonID)
	assert.Equal(t, "bob", roster[2].PersonID)
	assert.Equal(t, 3*time.Minute, roster[0].Elapsed(*f.now))
}
