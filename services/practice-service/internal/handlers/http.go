package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/sessionly-app/sessionly/libs/auth"
	"github.com/sessionly-app/sessionly/libs/httpx"
	"github.com/sessionly-app/sessionly/services/practice-service/internal/schedule"
	"github.com/sessionly-app/sessionly/services/practice-service/internal/storage"
)

// Store is the repository surface the handlers need. Narrowed to an interface
// so tests can inject fakes.
type Store interface {
	CreateTherapist(ctx context.Context, displayName, timezone string) (string, error)
	GetTherapist(ctx context.Context, id string) (storage.Therapist, error)
	UpdateTherapist(ctx context.Context, id, displayName, timezone string, isActive bool) error
	ListTherapists(ctx context.Context, limit int) ([]storage.Therapist, error)

	CreateCategory(ctx context.Context, name string) (string, error)
	ListCategories(ctx context.Context, limit int) ([]storage.ServiceCategory, error)
	UpsertService(ctx context.Context, in storage.ServiceInput) (storage.TherapyService, error)
	GetService(ctx context.Context, id string) (storage.TherapyService, error)
	ListServices(ctx context.Context, categoryID string, limit int) ([]storage.TherapyService, error)

	ReplaceWeeklyAvailability(ctx context.Context, therapistID string, byWeekday map[int][]schedule.Range) error
	ListWeeklyRules(ctx context.Context, therapistID string) ([]storage.WeeklyRule, error)
	ReplaceDateOverride(ctx context.Context, therapistID string, date time.Time, ranges []schedule.Range) error
	DeleteDateOverride(ctx context.Context, therapistID string, date time.Time) error
	CreateTimeOff(ctx context.Context, therapistID string, startTime, endTime time.Time, reason string) (string, error)
	ListTimeOff(ctx context.Context, therapistID string, from, to time.Time, limit int) ([]storage.TimeOff, error)
	DeleteTimeOff(ctx context.Context, therapistID, timeOffID string) error
	ResolveDayWindows(ctx context.Context, therapistID, date string) (string, []schedule.Interval, error)
}

type Handler struct {
	store  Store
	logger *slog.Logger
}

func New(store Store, logger *slog.Logger) *Handler {
	return &Handler{store: store, logger: logger}
}

// canManageTherapist reports whether the caller may modify the therapist's
// calendar. Therapists manage their own; admins manage anyone's.
func canManageTherapist(r *http.Request, therapistID string) bool {
	actor, ok := auth.ActorFromContext(r.Context())
	if !ok {
		return false
	}
	if actor.IsAdmin() {
		return true
	}
	return actor.Role == auth.RoleTherapist && actor.ID == therapistID
}

func (h *Handler) writeStoreError(w http.ResponseWriter, err error, op string) {
	if errors.Is(err, pgx.ErrNoRows) {
		httpx.WriteError(w, http.StatusNotFound, httpx.CodeNotFound, "not found")
		return
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23P01" {
		httpx.WriteError(w, http.StatusConflict, httpx.CodeConflict, "overlaps an existing entry")
		return
	}
	h.logger.Error(op+" failed", "err", err)
	httpx.WriteError(w, http.StatusServiceUnavailable, httpx.CodeStoreUnavailable, "store unavailable")
}

func (h *Handler) CreateTherapist(w http.ResponseWriter, r *http.Request) {
	var req struct {
		DisplayName string `json:"display_name"`
		Timezone    string `json:"timezone"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, httpx.CodeValidationFailed, "invalid json body")
		return
	}
	req.DisplayName = strings.TrimSpace(req.DisplayName)
	req.Timezone = strings.TrimSpace(req.Timezone)
	if req.Timezone == "" {
		req.Timezone = "UTC"
	}
	if req.DisplayName == "" {
		httpx.WriteError(w, http.StatusBadRequest, httpx.CodeValidationFailed, "display_name is required")
		return
	}
	if _, err := time.LoadLocation(req.Timezone); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, httpx.CodeValidationFailed, "invalid timezone")
		return
	}

	id, err := h.store.CreateTherapist(r.Context(), req.DisplayName, req.Timezone)
	if err != nil {
		h.writeStoreError(w, err, "create therapist")
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, map[string]any{"id": id})
}

func (h *Handler) ListTherapists(w http.ResponseWriter, r *http.Request) {
	therapists, err := h.store.ListTherapists(r.Context(), 100)
	if err != nil {
		h.writeStoreError(w, err, "list therapists")
		return
	}
	out := make([]map[string]any, 0, len(therapists))
	for _, t := range therapists {
		out = append(out, map[string]any{
			"id":           t.ID,
			"display_name": t.DisplayName,
			"timezone":     t.Timezone,
			"is_active":    t.IsActive,
		})
	}
	httpx.WriteJSON(w, http.StatusOK, out)
}

func (h *Handler) UpdateTherapist(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(r.URL.Query().Get("id"))
	if id == "" {
		httpx.WriteError(w, http.StatusBadRequest, httpx.CodeValidationFailed, "id is required")
		return
	}
	if !canManageTherapist(r, id) {
		httpx.WriteError(w, http.StatusForbidden, httpx.CodeForbidden, "not allowed for this therapist")
		return
	}

	var req struct {
		DisplayName string `json:"display_name"`
		Timezone    string `json:"timezone"`
		IsActive    *bool  `json:"is_active"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, httpx.CodeValidationFailed, "invalid json body")
		return
	}
	req.DisplayName = strings.TrimSpace(req.DisplayName)
	req.Timezone = strings.TrimSpace(req.Timezone)
	if req.DisplayName == "" || req.Timezone == "" {
		httpx.WriteError(w, http.StatusBadRequest, httpx.CodeValidationFailed, "display_name and timezone are required")
		return
	}
	if _, err := time.LoadLocation(req.Timezone); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, httpx.CodeValidationFailed, "invalid timezone")
		return
	}
	isActive := true
	if req.IsActive != nil {
		isActive = *req.IsActive
	}

	if err := h.store.UpdateTherapist(r.Context(), id, req.DisplayName, req.Timezone, isActive); err != nil {
		h.writeStoreError(w, err, "update therapist")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) CreateCategory(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name string `json:"name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, httpx.CodeValidationFailed, "invalid json body")
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		httpx.WriteError(w, http.StatusBadRequest, httpx.CodeValidationFailed, "name is required")
		return
	}

	id, err := h.store.CreateCategory(r.Context(), req.Name)
	if err != nil {
		h.writeStoreError(w, err, "create category")
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, map[string]any{"id": id})
}

func (h *Handler) ListCategories(w http.ResponseWriter, r *http.Request) {
	categories, err := h.store.ListCategories(r.Context(), 100)
	if err != nil {
		h.writeStoreError(w, err, "list categories")
		return
	}
	out := make([]map[string]any, 0, len(categories))
	for _, c := range categories {
		out = append(out, map[string]any{"id": c.ID, "name": c.Name})
	}
	httpx.WriteJSON(w, http.StatusOK, out)
}

func (h *Handler) UpsertService(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ID                        string `json:"id"`
		CategoryID                string `json:"category_id"`
		Name                      string `json:"name"`
		DurationMins              int    `json:"duration_minutes"`
		PriceCents                int64  `json:"price_cents"`
		Currency                  string `json:"currency"`
		Description               string `json:"description"`
		CancellationDeadlineHours int    `json:"cancellation_deadline_hours"`
		IsActive                  *bool  `json:"is_active"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, httpx.CodeValidationFailed, "invalid json body")
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	req.Currency = strings.ToLower(strings.TrimSpace(req.Currency))
	if req.Currency == "" {
		req.Currency = "usd"
	}
	if req.Name == "" || req.CategoryID == "" {
		httpx.WriteError(w, http.StatusBadRequest, httpx.CodeValidationFailed, "name and category_id are required")
		return
	}
	if req.DurationMins <= 0 || req.DurationMins > 24*60 {
		httpx.WriteError(w, http.StatusBadRequest, httpx.CodeValidationFailed, "invalid duration_minutes")
		return
	}
	if req.PriceCents < 0 {
		httpx.WriteError(w, http.StatusBadRequest, httpx.CodeValidationFailed, "invalid price_cents")
		return
	}
	if req.CancellationDeadlineHours < 0 {
		httpx.WriteError(w, http.StatusBadRequest, httpx.CodeValidationFailed, "invalid cancellation_deadline_hours")
		return
	}
	isActive := true
	if req.IsActive != nil {
		isActive = *req.IsActive
	}

	svc, err := h.store.UpsertService(r.Context(), storage.ServiceInput{
		ID:                        strings.TrimSpace(req.ID),
		CategoryID:                req.CategoryID,
		Name:                      req.Name,
		DurationMins:              req.DurationMins,
		PriceCents:                req.PriceCents,
		Currency:                  req.Currency,
		Description:               strings.TrimSpace(req.Description),
		CancellationDeadlineHours: req.CancellationDeadlineHours,
		IsActive:                  isActive,
	})
	if err != nil {
		h.writeStoreError(w, err, "upsert service")
		return
	}
	httpx.WriteJSON(w, http.StatusOK, serviceJSON(svc))
}

func (h *Handler) ListServices(w http.ResponseWriter, r *http.Request) {
	categoryID := strings.TrimSpace(r.URL.Query().Get("category_id"))
	services, err := h.store.ListServices(r.Context(), categoryID, 100)
	if err != nil {
		h.writeStoreError(w, err, "list services")
		return
	}
	out := make([]map[string]any, 0, len(services))
	for _, svc := range services {
		out = append(out, serviceJSON(svc))
	}
	httpx.WriteJSON(w, http.StatusOK, out)
}

func serviceJSON(svc storage.TherapyService) map[string]any {
	return map[string]any{
		"id":                          svc.ID,
		"category_id":                 svc.CategoryID,
		"name":                        svc.Name,
		"duration_minutes":            svc.DurationMins,
		"price_cents":                 svc.PriceCents,
		"currency":                    svc.Currency,
		"description":                 svc.Description,
		"cancellation_deadline_hours": svc.CancellationDeadlineHours,
		"is_active":                   svc.IsActive,
	}
}

// PutWeeklyAvailability replaces the therapist's whole weekly grid. The body
// carries selected hours per weekday; the fold into disjoint ranges happens
// here, so the stored rows are always normalized.
func (h *Handler) PutWeeklyAvailability(w http.ResponseWriter, r *http.Request) {
	var req struct {
		TherapistID string           `json:"therapist_id"`
		Grid        map[string][]int `json:"grid"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, httpx.CodeValidationFailed, "invalid json body")
		return
	}
	req.TherapistID = strings.TrimSpace(req.TherapistID)
	if req.TherapistID == "" {
		httpx.WriteError(w, http.StatusBadRequest, httpx.CodeValidationFailed, "therapist_id is required")
		return
	}
	if !canManageTherapist(r, req.TherapistID) {
		httpx.WriteError(w, http.StatusForbidden, httpx.CodeForbidden, "not allowed for this therapist")
		return
	}

	grid := make(map[int][]int, len(req.Grid))
	for key, hours := range req.Grid {
		weekday, err := strconv.Atoi(key)
		if err != nil {
			httpx.WriteError(w, http.StatusBadRequest, httpx.CodeValidationFailed, "grid keys must be weekdays 0-6")
			return
		}
		grid[weekday] = hours
	}
	byWeekday, err := schedule.FoldGrid(grid)
	if err != nil {
		httpx.WriteError(w, http.StatusBadRequest, httpx.CodeValidationFailed, err.Error())
		return
	}

	if err := h.store.ReplaceWeeklyAvailability(r.Context(), req.TherapistID, byWeekday); err != nil {
		h.writeStoreError(w, err, "replace weekly availability")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) ListWeeklyAvailability(w http.ResponseWriter, r *http.Request) {
	therapistID := strings.TrimSpace(r.URL.Query().Get("therapist_id"))
	if therapistID == "" {
		httpx.WriteError(w, http.StatusBadRequest, httpx.CodeValidationFailed, "therapist_id is required")
		return
	}

	rules, err := h.store.ListWeeklyRules(r.Context(), therapistID)
	if err != nil {
		h.writeStoreError(w, err, "list weekly availability")
		return
	}
	out := make([]map[string]any, 0, len(rules))
	for _, rule := range rules {
		out = append(out, map[string]any{
			"weekday":      rule.Weekday,
			"start_minute": rule.StartMinute,
			"end_minute":   rule.EndMinute,
			"enabled":      rule.Enabled,
		})
	}
	httpx.WriteJSON(w, http.StatusOK, out)
}

// PutDateOverride replaces the override for one date. An empty hours list
// closes the day; deleting the override instead falls back to the weekly
// rules.
func (h *Handler) PutDateOverride(w http.ResponseWriter, r *http.Request) {
	var req struct {
		TherapistID string `json:"therapist_id"`
		Date        string `json:"date"`
		Hours       []int  `json:"hours"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, httpx.CodeValidationFailed, "invalid json body")
		return
	}
	req.TherapistID = strings.TrimSpace(req.TherapistID)
	if req.TherapistID == "" {
		httpx.WriteError(w, http.StatusBadRequest, httpx.CodeValidationFailed, "therapist_id is required")
		return
	}
	if !canManageTherapist(r, req.TherapistID) {
		httpx.WriteError(w, http.StatusForbidden, httpx.CodeForbidden, "not allowed for this therapist")
		return
	}
	date, err := time.Parse("2006-01-02", strings.TrimSpace(req.Date))
	if err != nil {
		httpx.WriteError(w, http.StatusBadRequest, httpx.CodeValidationFailed, "invalid date (want YYYY-MM-DD)")
		return
	}

	folded, err := schedule.FoldGrid(map[int][]int{0: req.Hours})
	if err != nil {
		httpx.WriteError(w, http.StatusBadRequest, httpx.CodeValidationFailed, err.Error())
		return
	}

	if err := h.store.ReplaceDateOverride(r.Context(), req.TherapistID, date, folded[0]); err != nil {
		h.writeStoreError(w, err, "replace date override")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) DeleteDateOverride(w http.ResponseWriter, r *http.Request) {
	therapistID := strings.TrimSpace(r.URL.Query().Get("therapist_id"))
	dateStr := strings.TrimSpace(r.URL.Query().Get("date"))
	if therapistID == "" || dateStr == "" {
		httpx.WriteError(w, http.StatusBadRequest, httpx.CodeValidationFailed, "therapist_id and date are required")
		return
	}
	if !canManageTherapist(r, therapistID) {
		httpx.WriteError(w, http.StatusForbidden, httpx.CodeForbidden, "not allowed for this therapist")
		return
	}
	date, err := time.Parse("2006-01-02", dateStr)
	if err != nil {
		httpx.WriteError(w, http.StatusBadRequest, httpx.CodeValidationFailed, "invalid date (want YYYY-MM-DD)")
		return
	}

	if err := h.store.DeleteDateOverride(r.Context(), therapistID, date); err != nil {
		h.writeStoreError(w, err, "delete date override")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) CreateTimeOff(w http.ResponseWriter, r *http.Request) {
	var req struct {
		TherapistID string `json:"therapist_id"`
		StartTime   string `json:"start_time"`
		EndTime     string `json:"end_time"`
		Reason      string `json:"reason"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, httpx.CodeValidationFailed, "invalid json body")
		return
	}
	req.TherapistID = strings.TrimSpace(req.TherapistID)
	if req.TherapistID == "" {
		httpx.WriteError(w, http.StatusBadRequest, httpx.CodeValidationFailed, "therapist_id is required")
		return
	}
	if !canManageTherapist(r, req.TherapistID) {
		httpx.WriteError(w, http.StatusForbidden, httpx.CodeForbidden, "not allowed for this therapist")
		return
	}

	start, err := time.Parse(time.RFC3339, strings.TrimSpace(req.StartTime))
	if err != nil {
		httpx.WriteError(w, http.StatusBadRequest, httpx.CodeValidationFailed, "invalid start_time")
		return
	}
	end, err := time.Parse(time.RFC3339, strings.TrimSpace(req.EndTime))
	if err != nil {
		httpx.WriteError(w, http.StatusBadRequest, httpx.CodeValidationFailed, "invalid end_time")
		return
	}
	if !end.After(start) {
		httpx.WriteError(w, http.StatusBadRequest, httpx.CodeValidationFailed, "end_time must be after start_time")
		return
	}

	id, err := h.store.CreateTimeOff(r.Context(), req.TherapistID, start.UTC(), end.UTC(), strings.TrimSpace(req.Reason))
	if err != nil {
		h.writeStoreError(w, err, "create time off")
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, map[string]any{"id": id})
}

func (h *Handler) ListTimeOff(w http.ResponseWriter, r *http.Request) {
	therapistID := strings.TrimSpace(r.URL.Query().Get("therapist_id"))
	if therapistID == "" {
		httpx.WriteError(w, http.StatusBadRequest, httpx.CodeValidationFailed, "therapist_id is required")
		return
	}

	fromStr := strings.TrimSpace(r.URL.Query().Get("from"))
	toStr := strings.TrimSpace(r.URL.Query().Get("to"))
	if fromStr == "" || toStr == "" {
		httpx.WriteError(w, http.StatusBadRequest, httpx.CodeValidationFailed, "from and to are required (RFC3339)")
		return
	}
	from, err := time.Parse(time.RFC3339, fromStr)
	if err != nil {
		httpx.WriteError(w, http.StatusBadRequest, httpx.CodeValidationFailed, "invalid from")
		return
	}
	to, err := time.Parse(time.RFC3339, toStr)
	if err != nil {
		httpx.WriteError(w, http.StatusBadRequest, httpx.CodeValidationFailed, "invalid to")
		return
	}
	if !to.After(from) {
		httpx.WriteError(w, http.StatusBadRequest, httpx.CodeValidationFailed, "to must be after from")
		return
	}

	items, err := h.store.ListTimeOff(r.Context(), therapistID, from.UTC(), to.UTC(), 100)
	if err != nil {
		h.writeStoreError(w, err, "list time off")
		return
	}
	out := make([]map[string]any, 0, len(items))
	for _, t := range items {
		out = append(out, map[string]any{
			"id":         t.ID,
			"start_time": t.StartTime.UTC().Format(time.RFC3339),
			"end_time":   t.EndTime.UTC().Format(time.RFC3339),
			"reason":     t.Reason,
		})
	}
	httpx.WriteJSON(w, http.StatusOK, out)
}

func (h *Handler) DeleteTimeOff(w http.ResponseWriter, r *http.Request) {
	therapistID := strings.TrimSpace(r.URL.Query().Get("therapist_id"))
	id := strings.TrimSpace(r.URL.Query().Get("id"))
	if therapistID == "" || id == "" {
		httpx.WriteError(w, http.StatusBadRequest, httpx.CodeValidationFailed, "therapist_id and id are required")
		return
	}
	if !canManageTherapist(r, therapistID) {
		httpx.WriteError(w, http.StatusForbidden, httpx.CodeForbidden, "not allowed for this therapist")
		return
	}

	if err := h.store.DeleteTimeOff(r.Context(), therapistID, id); err != nil {
		h.writeStoreError(w, err, "delete time off")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GetResolvedAvailability returns the bookable UTC windows for one local
// date, after overrides and time off are applied. Used by the dashboard
// preview; booking-service asks the same question over gRPC.
func (h *Handler) GetResolvedAvailability(w http.ResponseWriter, r *http.Request) {
	therapistID := strings.TrimSpace(r.URL.Query().Get("therapist_id"))
	date := strings.TrimSpace(r.URL.Query().Get("date"))
	if therapistID == "" || date == "" {
		httpx.WriteError(w, http.StatusBadRequest, httpx.CodeValidationFailed, "therapist_id and date are required")
		return
	}
	if _, err := time.Parse("2006-01-02", date); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, httpx.CodeValidationFailed, "invalid date (want YYYY-MM-DD)")
		return
	}

	timezone, windows, err := h.store.ResolveDayWindows(r.Context(), therapistID, date)
	if err != nil {
		h.writeStoreError(w, err, "resolve availability")
		return
	}
	out := make([]map[string]any, 0, len(windows))
	for _, win := range windows {
		out = append(out, map[string]any{
			"start": win.Start.UTC().Format(time.RFC3339),
			"end":   win.End.UTC().Format(time.RFC3339),
		})
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{
		"therapist_id": therapistID,
		"date":         date,
		"timezone":     timezone,
		"windows":      out,
	})
}
