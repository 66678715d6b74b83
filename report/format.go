package report

import (
	"fmt"

	"github.com/shopspring/decimal"
)

var secondsPerHour = decimal.NewFromInt(3600)

// FormatDuration renders seconds as "Xh Ym", or "Xh Ym Zs" when withSeconds
// is set. A negative total keeps its sign in front of the absolute value.
func FormatDuration(seconds int64, withSeconds bool) string {
	sign := ""
	if seconds < 0 {
		sign = "-"
		seconds = -seconds
	}
	hours := seconds / 3600
	minutes := (seconds % 3600) / 60
	if withSeconds {
		return fmt.Sprintf("%s%dh %dm %ds", sign, hours, minutes, seconds%60)
	}
	return fmt.Sprintf("%s%dh %dm", sign, hours, minutes)
}

// Hours converts seconds to decimal hours, rounded to two places.
func Hours(seconds int64) decimal.Decimal {
	return decimal.NewFromInt(seconds).DivRound(secondsPerHour, 2)
}

// averageSeconds is the mean shift length, zero when no shift was completed.
func averageSeconds(total, shifts int64) int64 {
	if shifts <= 0 {
		return 0
	}
	return total / shifts
}
