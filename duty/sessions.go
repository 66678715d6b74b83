/*
sessions.go - Clock-in / clock-out lifecycle

PURPOSE:
  A person is either off duty (no active row) or on duty (exactly one
  active row). ClockIn opens the row, ClockOut closes it and moves its
  duration into the ledger.

CLOCK-OUT UNIT:
  One transaction:
    1. take the active row (read + delete)
    2. end = now, duration rounded half up to whole seconds
    3. add duration and one shift to the rollup of end's month
    4. append the completed session
  Any failure rolls back all four steps.

  A session that crosses midnight at month end is attributed entirely to
  the month of its end time.

SEE ALSO:
  - store.go: ClockStore / Ledger contracts
  - adjust.go: The other writer of monthly rollups
*/
package duty

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
)

// SessionManager owns active sessions and their conversion into ledger entries.
type SessionManager struct {
	Store    TxStore
	Clock    Clock
	Logger   *zap.Logger
	Observer Observer
}

func NewSessionManager(store TxStore, clock Clock, logger *zap.Logger) *SessionManager {
	return &SessionManager{Store: store, Clock: clock, Logger: loggerOrNop(logger)}
}

// ClockIn starts a session for personID and returns its start time.
// A second clock-in while active fails with *AlreadyActiveError.
func (m *SessionManager) ClockIn(ctx context.Context, personID, channel, messageRef string, ridealongID *string) (time.Time, error) {
	if err := required("person_id", personID); err != nil {
		return time.Time{}, err
	}

	session := ActiveSession{
		PersonID:    personID,
		StartTime:   m.Clock.Current(),
		Channel:     channel,
		RidealongID: optionalID(ridealongID),
		MessageRef:  messageRef,
	}
	if err := m.Store.InsertActive(ctx, session); err != nil {
		if errors.Is(err, ErrAlreadyActive) {
			return time.Time{}, &AlreadyActiveError{PersonID: personID}
		}
		return time.Time{}, storeErr("clock in", err)
	}

	m.logger().Info("clocked in",
		zap.String("person_id", personID),
		zap.String("channel", channel),
		zap.Time("start_time", session.StartTime))
	observerOrNop(m.Observer).ClockedIn(personID)
	return session.StartTime, nil
}

// ClockOut ends the person's session. Returns nil, nil when not clocked in.
func (m *SessionManager) ClockOut(ctx context.Context, personID string) (*SessionSummary, error) {
	if err := required("person_id", personID); err != nil {
		return nil, err
	}

	var summary *SessionSummary
	err := m.Store.WithTx(ctx, func(tx Store) error {
		active, err := tx.TakeActive(ctx, personID)
		if err != nil {
			return err
		}
		if active == nil {
			return nil
		}

		end := m.Clock.Current()
		if !end.After(active.StartTime) {
			// wall clock stepped backwards
			end = active.StartTime.Add(time.Millisecond)
		}
		elapsed := end.Sub(active.StartTime)
		seconds := RoundSeconds(elapsed)

		if err := tx.AddToRollup(ctx, RollupDelta{
			PersonID: personID,
			Key:      m.Clock.Month(end),
			Seconds:  seconds,
			Shifts:   1,
		}); err != nil {
			return err
		}

		id, err := tx.AppendSession(ctx, CompletedSession{
			PersonID:        personID,
			StartTime:       active.StartTime,
			EndTime:         end,
			DurationSeconds: seconds,
			RidealongID:     active.RidealongID,
			RecordedAt:      end,
		})
		if err != nil {
			return err
		}

		summary = &SessionSummary{
			SessionID:       id,
			PersonID:        personID,
			Duration:        elapsed,
			DurationSeconds: seconds,
			Channel:         active.Channel,
			StartTime:       active.StartTime,
			EndTime:         end,
			MessageRef:      active.MessageRef,
			RidealongID:     active.RidealongID,
		}
		return nil
	})
	if err != nil {
		return nil, storeErr("clock out", err)
	}
	if summary == nil {
		return nil, nil
	}

	m.logger().Info("clocked out",
		zap.String("person_id", personID),
		zap.Int64("session_id", summary.SessionID),
		zap.Int64("duration_seconds", summary.DurationSeconds))
	observerOrNop(m.Observer).ClockedOut(personID, summary.DurationSeconds)
	return summary, nil
}

// SetRidealong replaces the companion on the active session.
// Returns false if the person is not clocked in or nothing changed.
func (m *SessionManager) SetRidealong(ctx context.Context, personID string, ridealongID *string) (bool, error) {
	if err := required("person_id", personID); err != nil {
		return false, err
	}
	updated, err := m.Store.UpdateRidealong(ctx, personID, optionalID(ridealongID))
	if err != nil {
		return false, storeErr("set ridealong", err)
	}
	return updated, nil
}

// IsActive reports whether the person is clocked in.
func (m *SessionManager) IsActive(ctx context.Context, personID string) (bool, error) {
	active, err := m.Active(ctx, personID)
	if err != nil {
		return false, err
	}
	return active != nil, nil
}

// Active returns the person's open session, or nil.
func (m *SessionManager) Active(ctx context.Context, personID string) (*ActiveSession, error) {
	active, err := m.Store.GetActive(ctx, personID)
	if err != nil {
		return nil, storeErr("get active session", err)
	}
	return active, nil
}

// ListActive returns the on-duty roster ordered by start time.
func (m *SessionManager) ListActive(ctx context.Context) ([]ActiveSession, error) {
	sessions, err := m.Store.ListActive(ctx)
	if err != nil {
		return nil, storeErr("list active sessions", err)
	}
	return sessions, nil
}

func (m *SessionManager) logger() *zap.Logger {
	return loggerOrNop(m.Logger)
}
