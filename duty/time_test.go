package duty_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/warp/duty-ledger/duty"
)

func TestMonthKey_Previous(t *testing.T) {
	assert.Equal(t, duty.MonthKey{Month: time.December, Year: 2024},
		duty.MonthKey{Month: time.January, Year: 2025}.Previous())
	assert.Equal(t, duty.MonthKey{Month: time.February, Year: 2025},
		duty.MonthKey{Month: time.March, Year: 2025}.Previous())
}

func TestMonthKey_Validate(t *testing.T) {
	assert.NoError(t, duty.MonthKey{Month: time.June, Year: 2025}.Validate())
	assert.Error(t, duty.MonthKey{Month: 0, Year: 2025}.Validate())
	assert.Error(t, duty.MonthKey{Month: time.June, Year: 0}.Validate())
}

func TestRoundSeconds(t *testing.T) {
	assert.Equal(t, int64(3661), duty.RoundSeconds(3661000*time.Millisecond))
	assert.Equal(t, int64(1), duty.RoundSeconds(500*time.Millisecond))
	assert.Equal(t, int64(0), duty.RoundSeconds(499*time.Millisecond))
}

func TestClock_MonthUsesLocation(t *testing.T) {
	tokyo := time.FixedZone("JST", 9*3600)
	clock := duty.Clock{
		Now:      func() time.Time { return time.Date(2025, time.January, 31, 20, 0, 0, 0, time.UTC) },
		Location: tokyo,
	}

	assert.Equal(t, duty.MonthKey{Month: time.February, Year: 2025}, clock.CurrentMonth())
}
