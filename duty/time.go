package duty

import (
	"fmt"
	"math"
	"time"
)

// WeekWindow is the trailing window used by the weekly leaderboard.
const WeekWindow = 7 * 24 * time.Hour

// MonthKey identifies a calendar month. The zero value means "current month"
// wherever a query accepts one.
type MonthKey struct {
	Month time.Month
	Year  int
}

// MonthOf returns the key of the month t falls in.
func MonthOf(t time.Time) MonthKey {
	return MonthKey{Month: t.Month(), Year: t.Year()}
}

func (k MonthKey) IsZero() bool { return k.Month == 0 && k.Year == 0 }

// Validate rejects months outside 1..12 and non-positive years.
func (k MonthKey) Validate() error {
	if k.Month < time.January || k.Month > time.December {
		return &ValidationError{Field: "month", Message: fmt.Sprintf("%d is not in 1..12", int(k.Month))}
	}
	if k.Year <= 0 {
		return &ValidationError{Field: "year", Message: fmt.Sprintf("%d is not a valid year", k.Year)}
	}
	return nil
}

// Previous returns the month before k, crossing into the prior year from January.
func (k MonthKey) Previous() MonthKey {
	if k.Month == time.January {
		return MonthKey{Month: time.December, Year: k.Year - 1}
	}
	return MonthKey{Month: k.Month - 1, Year: k.Year}
}

// Start returns the first instant of the month in loc.
func (k MonthKey) Start(loc *time.Location) time.Time {
	return time.Date(k.Year, k.Month, 1, 0, 0, 0, 0, loc)
}

func (k MonthKey) String() string {
	return fmt.Sprintf("%04d-%02d", k.Year, int(k.Month))
}

// RoundSeconds converts a duration to whole seconds, rounding half up.
func RoundSeconds(d time.Duration) int64 {
	return int64(math.Floor(float64(d.Milliseconds())/1000 + 0.5))
}

// =============================================================================
// CLOCK - Source of "now" and the location months are computed in
// =============================================================================

// Clock supplies the current time. The zero value reads the system clock
// in time.Local.
type Clock struct {
	Now      func() time.Time
	Location *time.Location
}

// FixedClock returns a Clock that always reports t. Tests move it by
// reassigning the pointer target.
func FixedClock(t *time.Time) Clock {
	return Clock{
		Now:      func() time.Time { return *t },
		Location: t.Location(),
	}
}

func (c Clock) location() *time.Location {
	if c.Location == nil {
		return time.Local
	}
	return c.Location
}

// Current returns now in the clock's location, truncated to milliseconds.
func (c Clock) Current() time.Time {
	now := time.Now
	if c.Now != nil {
		now = c.Now
	}
	return now().In(c.location()).Truncate(time.Millisecond)
}

// Month returns the month t falls in, evaluated in the clock's location.
func (c Clock) Month(t time.Time) MonthKey {
	return MonthOf(t.In(c.location()))
}

// CurrentMonth returns the key of the month that contains now.
func (c Clock) CurrentMonth() MonthKey {
	return c.Month(c.Current())
}

// resolve replaces a zero key with the current month.
func (c Clock) resolve(k MonthKey) (MonthKey, error) {
	if k.IsZero() {
		return c.CurrentMonth(), nil
	}
	if err := k.Validate(); err != nil {
		return MonthKey{}, err
	}
	return k, nil
}
