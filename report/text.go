package report

import (
	"fmt"
	"strings"
)

var rule = strings.Repeat("=", 37)

// Text renders the plain-text report attached to the admin channel.
func Text(r Report) string {
	var b strings.Builder
	b.WriteString(r.Heading())
	b.WriteString("\n")
	b.WriteString(rule)
	b.WriteString("\n\n")

	if r.Empty() {
		b.WriteString("No duty time recorded for this month.\n")
		return b.String()
	}

	for _, row := range r.Rows {
		fmt.Fprintf(&b, "%d. %s\n", row.Rank, row.Name)
		fmt.Fprintf(&b, "   Total Hours: %s\n", FormatDuration(row.TotalSeconds, false))
		fmt.Fprintf(&b, "   Shifts: %d\n", row.Shifts)
		fmt.Fprintf(&b, "   Average Shift: %s\n\n", FormatDuration(row.AverageSeconds, false))
	}
	return b.String()
}
