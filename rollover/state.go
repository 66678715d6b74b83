package rollover

import "time"

// State decides when a month has rolled over. It is owned by one Scheduler
// and lives only in memory, so a process (re)started on the 1st skips that
// month's rollover; TriggerNow covers it.
type State struct {
	LastCheckedMonth time.Month
	FiredThisPeriod  bool
}

// NewState seeds the state with the month of now, so a process that starts
// on the 1st waits for the next month before firing.
func NewState(now time.Time) State {
	return State{LastCheckedMonth: now.Month()}
}

// Observe records a check at now and reports whether the rollover should fire.
// It fires on the 1st of a month it has not fired for yet; any other day
// clears the fired flag.
func (s *State) Observe(now time.Time) bool {
	if now.Day() != 1 {
		s.FiredThisPeriod = false
		return false
	}
	if now.Month() == s.LastCheckedMonth || s.FiredThisPeriod {
		return false
	}
	s.FiredThisPeriod = true
	s.LastCheckedMonth = now.Month()
	return true
}
