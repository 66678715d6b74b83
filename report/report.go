/*
report.go - Monthly duty report

PURPOSE:
  Turns a rollover run (the full snapshot of a finished month) into a
  ranked report that can be rendered as text or as a workbook and handed to
  one or more deliverers.

DESIGN:
  - Build resolves display names through a NameResolver; a missing name
    falls back to "Unknown User (ID: x)"
  - Hours and averages are computed here, never in the duty core
  - Rendering (text.go, xlsx.go) and delivery (deliver.go, discord.go) are
    separate so each target picks the formats it needs

SEE ALSO:
  - rollover/scheduler.go: produces the Run
  - deliver.go: Publisher, the rollover.Reporter implementation
*/
package report

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/warp/duty-ledger/duty"
	"github.com/warp/duty-ledger/rollover"
)

// Title is the heading used by every rendering of the report.
const Title = "Monthly Duty Report"

// NameResolver maps a person id to a display name. ok is false when the
// person is unknown.
type NameResolver interface {
	DisplayName(ctx context.Context, personID string) (name string, ok bool)
}

// StaticNames is a NameResolver backed by a map.
type StaticNames map[string]string

func (n StaticNames) DisplayName(_ context.Context, personID string) (string, bool) {
	name, ok := n[personID]
	return name, ok
}

// Row is one ranked person in the report.
type Row struct {
	Rank           int
	PersonID       string
	Name           string
	TotalSeconds   int64
	Shifts         int64
	Hours          decimal.Decimal
	AverageSeconds int64
}

// Report is a rendered-ready month report.
type Report struct {
	RunID        string
	Key          duty.MonthKey
	Rows         []Row
	TotalSeconds int64
	TotalShifts  int64
	GeneratedAt  time.Time
}

// Empty reports whether nothing was recorded for the month.
func (r Report) Empty() bool { return len(r.Rows) == 0 }

// Heading returns "Monthly Duty Report - March 2025".
func (r Report) Heading() string {
	return fmt.Sprintf("%s - %s %d", Title, r.Key.Month, r.Key.Year)
}

// FileBase returns the file name without extension for the month.
func FileBase(key duty.MonthKey) string {
	return fmt.Sprintf("Duty_Monthly_Report_%04d_%02d", key.Year, int(key.Month))
}

// Build ranks the run's snapshot rows in the order they were returned.
func Build(ctx context.Context, run rollover.Run, names NameResolver) Report {
	return FromSnapshot(ctx, run.Snapshot, names, run.ID, run.GeneratedAt)
}

// FromSnapshot builds a report for any month snapshot.
func FromSnapshot(ctx context.Context, snapshot duty.Snapshot, names NameResolver, runID string, generatedAt time.Time) Report {
	rep := Report{
		RunID:        runID,
		Key:          snapshot.Key,
		Rows:         make([]Row, 0, len(snapshot.Rows)),
		TotalSeconds: snapshot.TotalSeconds(),
		TotalShifts:  snapshot.TotalShifts(),
		GeneratedAt:  generatedAt,
	}
	for i, r := range snapshot.Rows {
		rep.Rows = append(rep.Rows, Row{
			Rank:           i + 1,
			PersonID:       r.PersonID,
			Name:           displayName(ctx, names, r.PersonID),
			TotalSeconds:   r.TotalSeconds,
			Shifts:         r.ShiftsCompleted,
			Hours:          Hours(r.TotalSeconds),
			AverageSeconds: averageSeconds(r.TotalSeconds, r.ShiftsCompleted),
		})
	}
	return rep
}

func displayName(ctx context.Context, names NameResolver, personID string) string {
	if names != nil {
		if name, ok := names.DisplayName(ctx, personID); ok && name != "" {
			return name
		}
	}
	return fmt.Sprintf("Unknown User (ID: %s)", personID)
}
