/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the duty core from the external API contract.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

TYPES:
  Sessions:
    ClockInRequest, ClockInDTO, SessionSummaryDTO, ActiveSessionDTO,
    PersonStatusDTO, RidealongRequest

  Leaderboards:
    LeaderboardDTO, LeaderboardRowDTO, PersonTotalsDTO

  Adjustments:
    AdjustmentRequest, AdjustmentDTO, AdjustmentResultDTO

  Reports:
    ReportDTO, ReportRowDTO, RolloverRunDTO

VALIDATION:
  Validation is done in handlers and the duty core, not in DTOs.

SEE ALSO:
  - handlers.go: Uses these types
*/
package api

import (
	"time"

	"github.com/warp/duty-ledger/duty"
	"github.com/warp/duty-ledger/report"
	"github.com/warp/duty-ledger/rollover"
)

// Millisecond precision, matching what the stores keep.
const timeFormat = "2006-01-02T15:04:05.000Z07:00"

// =============================================================================
// SESSIONS
// =============================================================================

// ClockInRequest is the body of a clock-in.
type ClockInRequest struct {
	Channel     string  `json:"channel"`
	MessageRef  string  `json:"message_ref"`
	RidealongID *string `json:"ridealong_id,omitempty"`
}

// ClockInDTO acknowledges a clock-in.
type ClockInDTO struct {
	PersonID  string `json:"person_id"`
	StartTime string `json:"start_time"`
}

// SessionSummaryDTO is returned by clock-out.
type SessionSummaryDTO struct {
	SessionID       int64   `json:"session_id"`
	PersonID        string  `json:"person_id"`
	DurationSeconds int64   `json:"duration_seconds"`
	Duration        string  `json:"duration"`
	Channel         string  `json:"channel"`
	StartTime       string  `json:"start_time"`
	EndTime         string  `json:"end_time"`
	MessageRef      string  `json:"message_ref"`
	RidealongID     *string `json:"ridealong_id,omitempty"`
}

// ActiveSessionDTO is one row of the on-duty roster.
type ActiveSessionDTO struct {
	PersonID    string  `json:"person_id"`
	StartTime   string  `json:"start_time"`
	Channel     string  `json:"channel"`
	MessageRef  string  `json:"message_ref"`
	RidealongID *string `json:"ridealong_id,omitempty"`
	ElapsedMs   int64   `json:"elapsed_ms"`
}

// PersonStatusDTO tells whether a person is on duty.
type PersonStatusDTO struct {
	PersonID string            `json:"person_id"`
	Active   bool              `json:"active"`
	Session  *ActiveSessionDTO `json:"session,omitempty"`
}

// RidealongRequest replaces the companion; null or "" clears it.
type RidealongRequest struct {
	RidealongID *string `json:"ridealong_id"`
}

// =============================================================================
// LEADERBOARDS
// =============================================================================

// LeaderboardRowDTO is one ranked person.
type LeaderboardRowDTO struct {
	Rank            int    `json:"rank"`
	PersonID        string `json:"person_id"`
	TotalSeconds    int64  `json:"total_seconds"`
	ShiftsCompleted int64  `json:"shifts_completed"`
	Duration        string `json:"duration"`
}

// LeaderboardDTO is a month or rolling-week leaderboard.
type LeaderboardDTO struct {
	Month *int                `json:"month,omitempty"`
	Year  *int                `json:"year,omitempty"`
	Since string              `json:"since,omitempty"`
	Rows  []LeaderboardRowDTO `json:"rows"`
}

// PersonTotalsDTO is a person's month aggregate.
type PersonTotalsDTO struct {
	PersonID        string `json:"person_id"`
	Month           int    `json:"month"`
	Year            int    `json:"year"`
	TotalSeconds    int64  `json:"total_seconds"`
	ShiftsCompleted int64  `json:"shifts_completed"`
	Duration        string `json:"duration"`
}

// =============================================================================
// ADJUSTMENTS
// =============================================================================

// AdjustmentRequest is an admin's manual change to a person's month.
type AdjustmentRequest struct {
	PersonID string `json:"person_id"`
	AdminID  string `json:"admin_id"`
	Hours    int    `json:"hours"`
	Minutes  int    `json:"minutes"`
	Action   string `json:"action"` // add | remove
	Reason   string `json:"reason"`
}

// AdjustmentDTO is one audit entry.
type AdjustmentDTO struct {
	ID           int64  `json:"id"`
	PersonID     string `json:"person_id"`
	AdminID      string `json:"admin_id"`
	Timestamp    string `json:"timestamp"`
	SecondsDelta int64  `json:"seconds_delta"`
	Delta        string `json:"delta"`
	Reason       string `json:"reason"`
}

// AdjustmentResultDTO pairs the audit entry with the person's new totals.
type AdjustmentResultDTO struct {
	Adjustment AdjustmentDTO   `json:"adjustment"`
	Totals     PersonTotalsDTO `json:"totals"`
}

// =============================================================================
// REPORTS
// =============================================================================

// ReportRowDTO is one person in a month report.
type ReportRowDTO struct {
	Rank          int    `json:"rank"`
	PersonID      string `json:"person_id"`
	Name          string `json:"name"`
	TotalSeconds  int64  `json:"total_seconds"`
	TotalHours    string `json:"total_hours"`
	Shifts        int64  `json:"shifts"`
	AverageShift  string `json:"average_shift"`
	TotalDuration string `json:"total_duration"`
}

// ReportDTO is a month report.
type ReportDTO struct {
	Title        string         `json:"title"`
	Month        int            `json:"month"`
	Year         int            `json:"year"`
	TotalSeconds int64          `json:"total_seconds"`
	TotalShifts  int64          `json:"total_shifts"`
	Rows         []ReportRowDTO `json:"rows"`
}

// RolloverRunDTO describes a delivered rollover.
type RolloverRunDTO struct {
	ID          string `json:"id"`
	Month       int    `json:"month"`
	Year        int    `json:"year"`
	Rows        int    `json:"rows"`
	GeneratedAt string `json:"generated_at"`
	Forced      bool   `json:"forced"`
}

// ErrorResponse is the standard error response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details any    `json:"details,omitempty"`
}

// =============================================================================
// CONVERSIONS
// =============================================================================

func toSessionSummaryDTO(s *duty.SessionSummary) SessionSummaryDTO {
	return SessionSummaryDTO{
		SessionID:       s.SessionID,
		PersonID:        s.PersonID,
		DurationSeconds: s.DurationSeconds,
		Duration:        report.FormatDuration(s.DurationSeconds, true),
		Channel:         s.Channel,
		StartTime:       s.StartTime.Format(timeFormat),
		EndTime:         s.EndTime.Format(timeFormat),
		MessageRef:      s.MessageRef,
		RidealongID:     s.RidealongID,
	}
}

func toActiveSessionDTO(a duty.ActiveSession, now time.Time) ActiveSessionDTO {
	return ActiveSessionDTO{
		PersonID:    a.PersonID,
		StartTime:   a.StartTime.Format(timeFormat),
		Channel:     a.Channel,
		MessageRef:  a.MessageRef,
		RidealongID: a.RidealongID,
		ElapsedMs:   a.Elapsed(now).Milliseconds(),
	}
}

func toLeaderboardRows(rows []duty.LeaderboardRow) []LeaderboardRowDTO {
	dtos := make([]LeaderboardRowDTO, len(rows))
	for i, r := range rows {
		dtos[i] = LeaderboardRowDTO{
			Rank:            i + 1,
			PersonID:        r.PersonID,
			TotalSeconds:    r.TotalSeconds,
			ShiftsCompleted: r.ShiftsCompleted,
			Duration:        report.FormatDuration(r.TotalSeconds, false),
		}
	}
	return dtos
}

func toPersonTotalsDTO(personID string, key duty.MonthKey, t duty.Totals) PersonTotalsDTO {
	return PersonTotalsDTO{
		PersonID:        personID,
		Month:           int(key.Month),
		Year:            key.Year,
		TotalSeconds:    t.TotalSeconds,
		ShiftsCompleted: t.ShiftsCompleted,
		Duration:        report.FormatDuration(t.TotalSeconds, false),
	}
}

func toAdjustmentDTO(a duty.AdjustmentRecord) AdjustmentDTO {
	return AdjustmentDTO{
		ID:           a.ID,
		PersonID:     a.PersonID,
		AdminID:      a.AdminID,
		Timestamp:    a.Timestamp.Format(timeFormat),
		SecondsDelta: a.SecondsDelta,
		Delta:        report.FormatDuration(a.SecondsDelta, true),
		Reason:       a.Reason,
	}
}

func toReportDTO(r report.Report) ReportDTO {
	rows := make([]ReportRowDTO, len(r.Rows))
	for i, row := range r.Rows {
		rows[i] = ReportRowDTO{
			Rank:          row.Rank,
			PersonID:      row.PersonID,
			Name:          row.Name,
			TotalSeconds:  row.TotalSeconds,
			TotalHours:    row.Hours.StringFixed(2),
			Shifts:        row.Shifts,
			AverageShift:  report.FormatDuration(row.AverageSeconds, false),
			TotalDuration: report.FormatDuration(row.TotalSeconds, false),
		}
	}
	return ReportDTO{
		Title:        r.Heading(),
		Month:        int(r.Key.Month),
		Year:         r.Key.Year,
		TotalSeconds: r.TotalSeconds,
		TotalShifts:  r.TotalShifts,
		Rows:         rows,
	}
}

func toRolloverRunDTO(run rollover.Run) RolloverRunDTO {
	return RolloverRunDTO{
		ID:          run.ID,
		Month:       int(run.Snapshot.Key.Month),
		Year:        run.Snapshot.Key.Year,
		Rows:        len(run.Snapshot.Rows),
		GeneratedAt: run.GeneratedAt.Format(timeFormat),
		Forced:      run.Forced,
	}
}
