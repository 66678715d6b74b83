/*
handlers.go - HTTP API handlers for the duty ledger

PURPOSE:
  Exposes clock-in/out, leaderboards, adjustments and month reports via
  REST API. Handles HTTP request/response, JSON serialization, and
  delegates to the duty core.

ENDPOINTS:
  Sessions:
    POST   /api/sessions/{person}/clock-in   Start a shift
    POST   /api/sessions/{person}/clock-out  End a shift
    PUT    /api/sessions/{person}/ridealong  Replace the companion
    GET    /api/sessions/active              On-duty roster
    GET    /api/sessions/{person}            Is the person on duty

  Leaderboards:
    GET    /api/leaderboards/month           ?month=&year=&limit=
    GET    /api/leaderboards/week            ?limit=

  People:
    GET    /api/people/{person}/totals       ?month=&year=
    GET    /api/people/{person}/adjustments  ?limit=

  Reports:
    GET    /api/reports/{year}/{month}       ?format=json|text|xlsx

  Admin:
    POST   /api/admin/adjustments            Add or remove time
    POST   /api/admin/rollover               Deliver last month's report now

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Validation errors, invalid input
  - 404: Not clocked in
  - 409: Already clocked in
  - 500: Store failures
  - 503: Rollover not configured

SECURITY NOTE:
  No authentication. The admin routes trust the admin_id they are given.

SEE ALSO:
  - dto.go: Request/response data structures
  - server.go: Router setup and middleware
*/
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/warp/duty-ledger/duty"
	"github.com/warp/duty-ledger/report"
	"github.com/warp/duty-ledger/rollover"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// RolloverTrigger forces a month rollover. *rollover.Scheduler implements it.
type RolloverTrigger interface {
	TriggerNow(ctx context.Context) (rollover.Run, error)
}

// Pinger checks the backing store.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Core     *duty.Core
	Rollover RolloverTrigger
	Names    report.NameResolver
	Health   Pinger
	Logger   *zap.Logger
}

// NewHandler creates a new handler over the duty core.
func NewHandler(core *duty.Core, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{Core: core, Logger: logger}
}

func (h *Handler) clock() duty.Clock {
	return h.Core.Queries.Clock
}

// =============================================================================
// SESSION HANDLERS
// =============================================================================

// ClockIn starts a shift for the person in the path.
func (h *Handler) ClockIn(w http.ResponseWriter, r *http.Request) {
	personID := chi.URLParam(r, "person")

	var req ClockInRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if isSelf(personID, req.RidealongID) {
		writeError(w, http.StatusBadRequest, "Cannot ride along with yourself", nil)
		return
	}

	start, err := h.Core.Sessions.ClockIn(r.Context(), personID, req.Channel, req.MessageRef, req.RidealongID)
	if err != nil {
		h.writeDutyError(w, "Failed to clock in", err)
		return
	}

	writeJSON(w, http.StatusCreated, ClockInDTO{PersonID: personID, StartTime: start.Format(timeFormat)})
}

// ClockOut ends the person's shift and returns its summary.
func (h *Handler) ClockOut(w http.ResponseWriter, r *http.Request) {
	personID := chi.URLParam(r, "person")

	summary, err := h.Core.Sessions.ClockOut(r.Context(), personID)
	if err != nil {
		h.writeDutyError(w, "Failed to clock out", err)
		return
	}
	if summary == nil {
		writeError(w, http.StatusNotFound, "Not clocked in", nil)
		return
	}

	writeJSON(w, http.StatusOK, toSessionSummaryDTO(summary))
}

// SetRidealong replaces the companion on the person's open shift.
func (h *Handler) SetRidealong(w http.ResponseWriter, r *http.Request) {
	personID := chi.URLParam(r, "person")

	var req RidealongRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if isSelf(personID, req.RidealongID) {
		writeError(w, http.StatusBadRequest, "Cannot ride along with yourself", nil)
		return
	}

	updated, err := h.Core.Sessions.SetRidealong(r.Context(), personID, req.RidealongID)
	if err != nil {
		h.writeDutyError(w, "Failed to set ridealong", err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]bool{"updated": updated})
}

// ListActive returns everyone on duty with the time elapsed so far.
func (h *Handler) ListActive(w http.ResponseWriter, r *http.Request) {
	sessions, err := h.Core.Sessions.ListActive(r.Context())
	if err != nil {
		h.writeDutyError(w, "Failed to list active sessions", err)
		return
	}

	now := h.clock().Current()
	dtos := make([]ActiveSessionDTO, len(sessions))
	for i, s := range sessions {
		dtos[i] = toActiveSessionDTO(s, now)
	}

	writeJSON(w, http.StatusOK, dtos)
}

// GetStatus tells whether the person is on duty.
func (h *Handler) GetStatus(w http.ResponseWriter, r *http.Request) {
	personID := chi.URLParam(r, "person")

	active, err := h.Core.Sessions.Active(r.Context(), personID)
	if err != nil {
		h.writeDutyError(w, "Failed to get session", err)
		return
	}

	resp := PersonStatusDTO{PersonID: personID, Active: active != nil}
	if active != nil {
		dto := toActiveSessionDTO(*active, h.clock().Current())
		resp.Session = &dto
	}

	writeJSON(w, http.StatusOK, resp)
}

// =============================================================================
// LEADERBOARD HANDLERS
// =============================================================================

// MonthLeaderboard ranks people by their month total.
func (h *Handler) MonthLeaderboard(w http.ResponseWriter, r *http.Request) {
	key, err := monthKeyFromQuery(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid month", err)
		return
	}
	limit, err := limitFromQuery(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid limit", err)
		return
	}
	if key.IsZero() {
		key = h.clock().CurrentMonth()
	}

	rows, err := h.Core.Queries.TopByMonth(r.Context(), key, limit)
	if err != nil {
		h.writeDutyError(w, "Failed to load leaderboard", err)
		return
	}

	month, year := int(key.Month), key.Year
	writeJSON(w, http.StatusOK, LeaderboardDTO{Month: &month, Year: &year, Rows: toLeaderboardRows(rows)})
}

// WeekLeaderboard ranks people by sessions that ended in the last 7 days.
func (h *Handler) WeekLeaderboard(w http.ResponseWriter, r *http.Request) {
	limit, err := limitFromQuery(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid limit", err)
		return
	}

	since := h.clock().Current().Add(-duty.WeekWindow)
	rows, err := h.Core.Queries.TopByWeek(r.Context(), limit)
	if err != nil {
		h.writeDutyError(w, "Failed to load leaderboard", err)
		return
	}

	writeJSON(w, http.StatusOK, LeaderboardDTO{Since: since.Format(timeFormat), Rows: toLeaderboardRows(rows)})
}

// =============================================================================
// PEOPLE HANDLERS
// =============================================================================

// GetTotals returns a person's month totals.
func (h *Handler) GetTotals(w http.ResponseWriter, r *http.Request) {
	personID := chi.URLParam(r, "person")
	key, err := monthKeyFromQuery(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid month", err)
		return
	}
	if key.IsZero() {
		key = h.clock().CurrentMonth()
	}

	totals, err := h.Core.Queries.PersonMonthTotal(r.Context(), personID, key)
	if err != nil {
		h.writeDutyError(w, "Failed to load totals", err)
		return
	}

	writeJSON(w, http.StatusOK, toPersonTotalsDTO(personID, key, totals))
}

// ListAdjustments returns a person's adjustment history, newest first.
func (h *Handler) ListAdjustments(w http.ResponseWriter, r *http.Request) {
	personID := chi.URLParam(r, "person")
	limit, err := limitFromQuery(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid limit", err)
		return
	}

	records, err := h.Core.Queries.AdjustmentHistory(r.Context(), personID, limit)
	if err != nil {
		h.writeDutyError(w, "Failed to load adjustments", err)
		return
	}

	dtos := make([]AdjustmentDTO, len(records))
	for i, a := range records {
		dtos[i] = toAdjustmentDTO(a)
	}

	writeJSON(w, http.StatusOK, dtos)
}

// =============================================================================
// ADMIN HANDLERS
// =============================================================================

// CreateAdjustment adds or removes time from a person's current month.
func (h *Handler) CreateAdjustment(w http.ResponseWriter, r *http.Request) {
	var req AdjustmentRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.Hours < 0 || req.Minutes < 0 || req.Minutes > 59 {
		writeError(w, http.StatusBadRequest, "hours must be >= 0 and minutes between 0 and 59", nil)
		return
	}

	seconds := duty.SecondsFromHoursMinutes(req.Hours, req.Minutes)
	switch strings.ToLower(req.Action) {
	case "add":
	case "remove":
		seconds = -seconds
	default:
		writeError(w, http.StatusBadRequest, "action must be add or remove", nil)
		return
	}

	ctx := r.Context()
	record, err := h.Core.Adjustments.Adjust(ctx, req.PersonID, seconds, req.AdminID, req.Reason)
	if err != nil {
		h.writeDutyError(w, "Failed to adjust time", err)
		return
	}

	key := h.clock().Month(record.Timestamp)
	totals, err := h.Core.Queries.PersonMonthTotal(ctx, req.PersonID, key)
	if err != nil {
		h.writeDutyError(w, "Failed to load totals", err)
		return
	}

	writeJSON(w, http.StatusCreated, AdjustmentResultDTO{
		Adjustment: toAdjustmentDTO(record),
		Totals:     toPersonTotalsDTO(req.PersonID, key, totals),
	})
}

// TriggerRollover delivers the previous month's report immediately.
func (h *Handler) TriggerRollover(w http.ResponseWriter, r *http.Request) {
	if h.Rollover == nil {
		writeError(w, http.StatusServiceUnavailable, "Rollover is not configured", nil)
		return
	}

	run, err := h.Rollover.TriggerNow(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Rollover failed", err)
		return
	}

	writeJSON(w, http.StatusOK, toRolloverRunDTO(run))
}

// =============================================================================
// REPORT HANDLERS
// =============================================================================

// GetReport renders a month report as JSON, plain text or a workbook.
func (h *Handler) GetReport(w http.ResponseWriter, r *http.Request) {
	year, err := strconv.Atoi(chi.URLParam(r, "year"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid year", err)
		return
	}
	month, err := strconv.Atoi(chi.URLParam(r, "month"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid month", err)
		return
	}
	key := duty.MonthKey{Month: time.Month(month), Year: year}
	if err := key.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid month", err)
		return
	}

	ctx := r.Context()
	snapshot, err := h.Core.Queries.MonthReport(ctx, key)
	if err != nil {
		h.writeDutyError(w, "Failed to load report", err)
		return
	}
	rep := report.FromSnapshot(ctx, snapshot, h.Names, "", h.clock().Current())

	switch format := r.URL.Query().Get("format"); format {
	case "", "json":
		writeJSON(w, http.StatusOK, toReportDTO(rep))
	case "text":
		writeFile(w, report.FileBase(key)+".txt", report.ContentTypeText, []byte(report.Text(rep)))
	case "xlsx":
		data, err := report.XLSX(rep)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "Failed to render workbook", err)
			return
		}
		writeFile(w, report.FileBase(key)+".xlsx", report.ContentTypeXLSX, data)
	default:
		writeError(w, http.StatusBadRequest, fmt.Sprintf("Unknown format %q", format), nil)
	}
}

// HealthCheck pings the store.
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	if h.Health != nil {
		if err := h.Health.Ping(r.Context()); err != nil {
			writeError(w, http.StatusServiceUnavailable, "Store unavailable", err)
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// =============================================================================
// HELPERS
// =============================================================================

func (h *Handler) writeDutyError(w http.ResponseWriter, message string, err error) {
	switch {
	case duty.IsConflict(err):
		writeError(w, http.StatusConflict, message, err)
	case duty.IsClientError(err):
		writeError(w, http.StatusBadRequest, message, err)
	default:
		h.Logger.Error(message, zap.Error(err))
		writeError(w, http.StatusInternalServerError, message, err)
	}
}

func decodeBody(r *http.Request, v any) error {
	if r.Body == nil || r.ContentLength == 0 {
		return nil
	}
	return json.NewDecoder(r.Body).Decode(v)
}

func isSelf(personID string, ridealongID *string) bool {
	return ridealongID != nil && *ridealongID == personID
}

// monthKeyFromQuery reads ?month=&year=. Both absent means the current
// month; one without the other is rejected.
func monthKeyFromQuery(r *http.Request) (duty.MonthKey, error) {
	q := r.URL.Query()
	m, y := q.Get("month"), q.Get("year")
	if m == "" && y == "" {
		return duty.MonthKey{}, nil
	}
	if m == "" || y == "" {
		return duty.MonthKey{}, errors.New("month and year must be given together")
	}
	month, err := strconv.Atoi(m)
	if err != nil {
		return duty.MonthKey{}, fmt.Errorf("month: %w", err)
	}
	year, err := strconv.Atoi(y)
	if err != nil {
		return duty.MonthKey{}, fmt.Errorf("year: %w", err)
	}
	key := duty.MonthKey{Month: time.Month(month), Year: year}
	return key, key.Validate()
}

func limitFromQuery(r *http.Request) (int, error) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return 0, nil
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit < 0 {
		return 0, fmt.Errorf("limit must be a non-negative integer, got %q", raw)
	}
	return limit, nil
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}

func writeFile(w http.ResponseWriter, name, contentType string, data []byte) {
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}
