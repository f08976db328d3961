package handlers

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/sessionly-app/sessionly/libs/auth"
	"github.com/sessionly-app/sessionly/libs/httpx"
	"github.com/sessionly-app/sessionly/services/booking-service/internal/availability"
	"github.com/sessionly-app/sessionly/services/booking-service/internal/model"
	"github.com/sessionly-app/sessionly/services/booking-service/internal/outbox"
	"github.com/sessionly-app/sessionly/services/booking-service/internal/payments"
	"github.com/sessionly-app/sessionly/services/booking-service/internal/policy"
	"github.com/sessionly-app/sessionly/services/booking-service/internal/scheduling"
	"github.com/sessionly-app/sessionly/services/booking-service/internal/storage"
)

// Store is the persistence surface the handlers depend on. Satisfied by
// *storage.BookingRepository; tests substitute fakes.
type Store interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	LockIdempotencyKey(ctx context.Context, tx pgx.Tx, patientID, key string) (storage.IdempotencyRecord, bool, error)
	FinalizeIdempotency(ctx context.Context, tx pgx.Tx, patientID, key, appointmentID string, statusCode int, response []byte) error
	Create(ctx context.Context, tx pgx.Tx, appt *model.Appointment) (string, error)
	GetAppointmentForUpdate(ctx context.Context, tx pgx.Tx, appointmentID string) (model.Appointment, error)
	UpdateStatus(ctx context.Context, tx pgx.Tx, appointmentID, status string) error
	CancelAppointment(ctx context.Context, tx pgx.Tx, appointmentID, reason string, feeCents int64) (time.Time, error)
	SetPaymentStatus(ctx context.Context, tx pgx.Tx, appointmentID, paymentStatus, paymentIntentID string) error
	ListBookedIntervals(ctx context.Context, therapistID string, start, end time.Time) ([]model.Appointment, error)
	ListByPatient(ctx context.Context, patientID string, limit int) ([]model.Appointment, error)
	ListByTherapist(ctx context.Context, therapistID string, limit int) ([]model.Appointment, error)
	GetCatalogService(ctx context.Context, serviceID string) (storage.CatalogService, error)
	InsertProviderEvent(ctx context.Context, tx pgx.Tx, provider, eventID, eventType string, payload []byte) error
}

// OutboxStore writes domain events inside the caller's transaction.
type OutboxStore interface {
	Insert(ctx context.Context, tx pgx.Tx, evt outbox.Event) error
}

type BookingHandler struct {
	store           Store
	outbox          OutboxStore
	logger          *slog.Logger
	scheduling      scheduling.Provider
	refunder        payments.Refunder
	reminderOffsets []time.Duration

	stripeWebhookSecret    string
	stripeWebhookTolerance time.Duration
}

type Config struct {
	Scheduling             scheduling.Provider
	Refunder               payments.Refunder
	ReminderOffsets        []time.Duration
	StripeWebhookSecret    string
	StripeWebhookTolerance time.Duration
}

func NewBookingHandler(store Store, outboxStore OutboxStore, logger *slog.Logger, cfg Config) *BookingHandler {
	if len(cfg.ReminderOffsets) == 0 {
		cfg.ReminderOffsets = []time.Duration{24 * time.Hour}
	}
	if cfg.StripeWebhookTolerance <= 0 {
		cfg.StripeWebhookTolerance = 5 * time.Minute
	}
	return &BookingHandler{
		store:                  store,
		outbox:                 outboxStore,
		logger:                 logger,
		scheduling:             cfg.Scheduling,
		refunder:               cfg.Refunder,
		reminderOffsets:        cfg.ReminderOffsets,
		stripeWebhookSecret:    cfg.StripeWebhookSecret,
		stripeWebhookTolerance: cfg.StripeWebhookTolerance,
	}
}

type createBookingRequest struct {
	TherapistID  string `json:"therapist_id"`
	ServiceID    string `json:"service_id"`
	StartTime    string `json:"start_time"`
	PatientID    string `json:"patient_id,omitempty"`
	PatientName  string `json:"patient_name"`
	PatientEmail string `json:"patient_email"`
	PatientPhone string `json:"patient_phone"`
	Notes        string `json:"notes"`
}

type createBookingResponse struct {
	AppointmentID string `json:"appointment_id"`
	Status        string `json:"status"`
	PaymentStatus string `json:"payment_status"`
	PriceCents    int64  `json:"price_cents"`
	Currency      string `json:"currency"`
}

func (h *BookingHandler) Create(w http.ResponseWriter, r *http.Request) {
	actor, ok := auth.ActorFromContext(r.Context())
	if !ok {
		httpx.WriteError(w, http.StatusUnauthorized, httpx.CodeUnauthorized, "authentication required")
		return
	}
	if actor.Role != auth.RolePatient && !actor.IsAdmin() {
		httpx.WriteError(w, http.StatusForbidden, httpx.CodeForbidden, "only patients may book appointments")
		return
	}

	var req createBookingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, httpx.CodeValidationFailed, "invalid json body")
		return
	}
	req.TherapistID = strings.TrimSpace(req.TherapistID)
	req.ServiceID = strings.TrimSpace(req.ServiceID)
	req.PatientName = strings.TrimSpace(req.PatientName)
	req.PatientEmail = strings.TrimSpace(req.PatientEmail)

	if req.TherapistID == "" || req.ServiceID == "" || req.StartTime == "" || req.PatientName == "" || req.PatientEmail == "" {
		httpx.WriteError(w, http.StatusBadRequest, httpx.CodeValidationFailed, "therapist_id, service_id, start_time, patient_name and patient_email are required")
		return
	}

	patientID := actor.ID
	if actor.IsAdmin() && strings.TrimSpace(req.PatientID) != "" {
		patientID = strings.TrimSpace(req.PatientID)
	}

	startTime, err := time.Parse(time.RFC3339, req.StartTime)
	if err != nil {
		httpx.WriteError(w, http.StatusBadRequest, httpx.CodeValidationFailed, "start_time must be RFC3339")
		return
	}

	ctx := r.Context()

	// Duration, price and currency are copied from the catalog at call time,
	// never recomputed later.
	svc, err := h.store.GetCatalogService(ctx, req.ServiceID)
	if err != nil {
		if storage.IsNotFound(err) {
			httpx.WriteError(w, http.StatusBadRequest, httpx.CodeValidationFailed, "unknown service")
			return
		}
		httpx.WriteError(w, http.StatusServiceUnavailable, httpx.CodeStoreUnavailable, "service catalog unavailable")
		return
	}
	if !svc.IsActive {
		httpx.WriteError(w, http.StatusBadRequest, httpx.CodeValidationFailed, "service is not bookable")
		return
	}

	appt := &model.Appointment{
		PatientID:     patientID,
		PatientName:   req.PatientName,
		PatientEmail:  req.PatientEmail,
		PatientPhone:  strings.TrimSpace(req.PatientPhone),
		TherapistID:   req.TherapistID,
		ServiceID:     req.ServiceID,
		StartTime:     startTime.UTC(),
		EndTime:       startTime.UTC().Add(time.Duration(svc.DurationMinutes) * time.Minute),
		PriceCents:    svc.PriceCents,
		Currency:      svc.Currency,
		Status:        model.StatusPending,
		PaymentStatus: model.PaymentPending,
		Notes:         strings.TrimSpace(req.Notes),
	}

	tx, err := h.store.Begin(ctx)
	if err != nil {
		httpx.WriteError(w, http.StatusServiceUnavailable, httpx.CodeStoreUnavailable, "store unavailable")
		return
	}
	defer func() { _ = tx.Rollback(ctx) }()

	idempotencyKey := strings.TrimSpace(r.Header.Get("Idempotency-Key"))
	if idempotencyKey != "" {
		rec, seen, err := h.store.LockIdempotencyKey(ctx, tx, patientID, idempotencyKey)
		if err != nil {
			httpx.WriteError(w, http.StatusServiceUnavailable, httpx.CodeStoreUnavailable, "failed to lock idempotency key")
			return
		}
		if seen && rec.StatusCode > 0 {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(rec.StatusCode)
			_, _ = w.Write(rec.ResponsePayload)
			return
		}
	}

	ok, err = h.withinAvailability(ctx, appt)
	if err != nil {
		// Dependency error: do not finalize idempotency so the client can
		// retry with the same key.
		httpx.WriteError(w, http.StatusServiceUnavailable, httpx.CodeStoreUnavailable, "availability lookup unavailable")
		return
	}
	if !ok {
		if idempotencyKey != "" && h.finalizeIdempotencyError(ctx, tx, patientID, idempotencyKey, http.StatusUnprocessableEntity, httpx.CodeOutsideAvailability, "requested time is outside therapist availability") {
			_ = tx.Commit(ctx)
		}
		httpx.WriteError(w, http.StatusUnprocessableEntity, httpx.CodeOutsideAvailability, "requested time is outside therapist availability")
		return
	}

	id, err := h.store.Create(ctx, tx, appt)
	if err != nil {
		if storage.IsConflict(err) {
			httpx.WriteError(w, http.StatusConflict, httpx.CodeConflict, "time slot already booked")
			return
		}
		httpx.WriteError(w, http.StatusServiceUnavailable, httpx.CodeStoreUnavailable, "failed to create appointment")
		return
	}

	evtPayload, err := json.Marshal(map[string]any{
		"appointment_id": id,
		"patient_id":     appt.PatientID,
		"therapist_id":   appt.TherapistID,
		"service_id":     appt.ServiceID,
		"patient_email":  appt.PatientEmail,
		"patient_phone":  appt.PatientPhone,
		"start_time":     appt.StartTime.Format(time.RFC3339),
		"end_time":       appt.EndTime.Format(time.RFC3339),
		"price_cents":    appt.PriceCents,
		"currency":       appt.Currency,
	})
	if err != nil {
		httpx.WriteError(w, http.StatusInternalServerError, httpx.CodeInternal, "failed to build event payload")
		return
	}
	if err := h.outbox.Insert(ctx, tx, outbox.Event{
		AggregateType: "appointment",
		AggregateID:   id,
		EventType:     outbox.EventAppointmentRequested,
		Payload:       evtPayload,
	}); err != nil {
		httpx.WriteError(w, http.StatusServiceUnavailable, httpx.CodeStoreUnavailable, "failed to write outbox event")
		return
	}

	now := time.Now().UTC()
	for _, offset := range h.reminderOffsets {
		remindAt := appt.StartTime.Add(-offset)
		if remindAt.Before(now) {
			continue
		}
		h.enqueueReminder(ctx, tx, id, appt, remindAt, "email", appt.PatientEmail)
		h.enqueueReminder(ctx, tx, id, appt, remindAt, "sms", appt.PatientPhone)
	}

	respBody, err := json.Marshal(createBookingResponse{
		AppointmentID: id,
		Status:        appt.Status,
		PaymentStatus: appt.PaymentStatus,
		PriceCents:    appt.PriceCents,
		Currency:      appt.Currency,
	})
	if err != nil {
		httpx.WriteError(w, http.StatusInternalServerError, httpx.CodeInternal, "failed to build response")
		return
	}
	if idempotencyKey != "" {
		if err := h.store.FinalizeIdempotency(ctx, tx, patientID, idempotencyKey, id, http.StatusCreated, respBody); err != nil {
			httpx.WriteError(w, http.StatusServiceUnavailable, httpx.CodeStoreUnavailable, "failed to finalize idempotency key")
			return
		}
	}

	if err := tx.Commit(ctx); err != nil {
		httpx.WriteError(w, http.StatusServiceUnavailable, httpx.CodeStoreUnavailable, "failed to commit")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	_, _ = w.Write(respBody)
}

// withinAvailability checks the requested interval against the resolved
// windows from practice-service. Without a provider the DB exclusion
// constraint is the only guard.
func (h *BookingHandler) withinAvailability(ctx context.Context, appt *model.Appointment) (bool, error) {
	if h.scheduling == nil {
		return true, nil
	}

	startUTC := appt.StartTime.UTC()
	endUTC := appt.EndTime.UTC()

	// Practice-service keys availability on therapist-local dates. The
	// therapist timezone is unknown here, so probe the UTC date and its
	// neighbours and accept if any window contains the interval.
	dates := uniqueStrings([]string{
		startUTC.Add(-24 * time.Hour).Format("2006-01-02"),
		startUTC.Format("2006-01-02"),
		startUTC.Add(24 * time.Hour).Format("2006-01-02"),
	})

	var lastErr error
	for _, dateStr := range dates {
		reqCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
		cfg, err := h.scheduling.GetAvailabilityConfig(reqCtx, appt.TherapistID, appt.ServiceID, dateStr)
		cancel()
		if err != nil {
			lastErr = err
			continue
		}
		for _, w := range cfg.WindowsUTC {
			if !w.EndUTC.After(w.StartUTC) {
				continue
			}
			if !startUTC.Before(w.StartUTC) && !endUTC.After(w.EndUTC) {
				return true, nil
			}
		}
	}

	if lastErr != nil {
		return false, lastErr
	}
	return false, nil
}

func (h *BookingHandler) enqueueReminder(ctx context.Context, tx pgx.Tx, appointmentID string, appt *model.Appointment, remindAt time.Time, channel string, recipient string) {
	if strings.TrimSpace(recipient) == "" {
		return
	}
	payload, err := json.Marshal(map[string]any{
		"appointment_id": appointmentID,
		"patient_id":     appt.PatientID,
		"channel":        channel,
		"recipient":      recipient,
		"remind_at":      remindAt.UTC().Format(time.RFC3339),
		"template_data": map[string]any{
			"patient_name": appt.PatientName,
			"service_id":   appt.ServiceID,
			"start_time":   appt.StartTime.UTC().Format(time.RFC3339),
		},
	})
	if err != nil {
		h.logger.Error("failed to build reminder payload", "err", err)
		return
	}
	if err := h.outbox.Insert(ctx, tx, outbox.Event{
		AggregateType: "appointment",
		AggregateID:   appointmentID,
		EventType:     outbox.EventReminderRequested,
		Payload:       payload,
	}); err != nil {
		h.logger.Error("failed to enqueue reminder", "err", err)
	}
}

func (h *BookingHandler) finalizeIdempotencyError(ctx context.Context, tx pgx.Tx, patientID, key string, statusCode int, code, msg string) bool {
	body, err := json.Marshal(map[string]map[string]string{"error": {"code": code, "message": msg}})
	if err != nil {
		return false
	}
	if err := h.store.FinalizeIdempotency(ctx, tx, patientID, key, "", statusCode, body); err != nil {
		h.logger.Error("failed to finalize idempotency (error)", "err", err)
		return false
	}
	return true
}

func uniqueStrings(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s == "" {
			continue
		}
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}

type transitionRequest struct {
	AppointmentID string `json:"appointment_id"`
	Reason        string `json:"reason"`
}

type transitionResponse struct {
	AppointmentID        string `json:"appointment_id"`
	Status               string `json:"status"`
	CancelledAt          string `json:"cancelled_at,omitempty"`
	CancellationFeeCents int64  `json:"cancellation_fee_cents,omitempty"`
}

// Confirm moves pending to confirmed. Only the therapist who owns the
// calendar, or an admin. Confirming does not touch payment status.
func (h *BookingHandler) Confirm(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, model.StatusConfirmed)
}

func (h *BookingHandler) Complete(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, model.StatusCompleted)
}

func (h *BookingHandler) NoShow(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, model.StatusNoShow)
}

func (h *BookingHandler) transition(w http.ResponseWriter, r *http.Request, target string) {
	actor, ok := auth.ActorFromContext(r.Context())
	if !ok {
		httpx.WriteError(w, http.StatusUnauthorized, httpx.CodeUnauthorized, "authentication required")
		return
	}

	var req transitionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, httpx.CodeValidationFailed, "invalid json body")
		return
	}
	req.AppointmentID = strings.TrimSpace(req.AppointmentID)
	if req.AppointmentID == "" {
		httpx.WriteError(w, http.StatusBadRequest, httpx.CodeValidationFailed, "appointment_id required")
		return
	}

	ctx := r.Context()
	tx, err := h.store.Begin(ctx)
	if err != nil {
		httpx.WriteError(w, http.StatusServiceUnavailable, httpx.CodeStoreUnavailable, "store unavailable")
		return
	}
	defer func() { _ = tx.Rollback(ctx) }()

	appt, err := h.store.GetAppointmentForUpdate(ctx, tx, req.AppointmentID)
	if err != nil {
		if storage.IsNotFound(err) {
			httpx.WriteError(w, http.StatusNotFound, httpx.CodeNotFound, "appointment not found")
			return
		}
		httpx.WriteError(w, http.StatusServiceUnavailable, httpx.CodeStoreUnavailable, "failed to load appointment")
		return
	}

	// Only the therapist who owns the calendar, or an admin, may drive these
	// transitions. Authorization is checked before the state machine so a
	// foreign caller always sees forbidden, never conflict.
	if !actor.IsAdmin() && !(actor.Role == auth.RoleTherapist && actor.ID == appt.TherapistID) {
		httpx.WriteError(w, http.StatusForbidden, httpx.CodeForbidden, "not your appointment")
		return
	}

	if !model.CanTransition(appt.Status, target) {
		httpx.WriteError(w, http.StatusConflict, httpx.CodeConflict, "appointment cannot move to "+target)
		return
	}

	if err := h.store.UpdateStatus(ctx, tx, appt.ID, target); err != nil {
		httpx.WriteError(w, http.StatusServiceUnavailable, httpx.CodeStoreUnavailable, "failed to update appointment")
		return
	}

	if target == model.StatusConfirmed {
		payload, err := json.Marshal(map[string]any{
			"appointment_id": appt.ID,
			"patient_id":     appt.PatientID,
			"therapist_id":   appt.TherapistID,
			"service_id":     appt.ServiceID,
			"patient_email":  appt.PatientEmail,
			"patient_phone":  appt.PatientPhone,
			"start_time":     appt.StartTime.UTC().Format(time.RFC3339),
			"end_time":       appt.EndTime.UTC().Format(time.RFC3339),
		})
		if err != nil {
			httpx.WriteError(w, http.StatusInternalServerError, httpx.CodeInternal, "failed to build event payload")
			return
		}
		if err := h.outbox.Insert(ctx, tx, outbox.Event{
			AggregateType: "appointment",
			AggregateID:   appt.ID,
			EventType:     outbox.EventAppointmentConfirmed,
			Payload:       payload,
		}); err != nil {
			httpx.WriteError(w, http.StatusServiceUnavailable, httpx.CodeStoreUnavailable, "failed to write outbox event")
			return
		}
	}

	if err := tx.Commit(ctx); err != nil {
		httpx.WriteError(w, http.StatusServiceUnavailable, httpx.CodeStoreUnavailable, "failed to commit")
		return
	}

	httpx.WriteJSON(w, http.StatusOK, transitionResponse{AppointmentID: appt.ID, Status: target})
}

// Cancel is the one transition patients may drive, for their own
// appointments. Fees come from the service's cancellation deadline read at
// cancel time; paid appointments are refunded for price minus fee.
func (h *BookingHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	actor, ok := auth.ActorFromContext(r.Context())
	if !ok {
		httpx.WriteError(w, http.StatusUnauthorized, httpx.CodeUnauthorized, "authentication required")
		return
	}

	var req transitionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, httpx.CodeValidationFailed, "invalid json body")
		return
	}
	req.AppointmentID = strings.TrimSpace(req.AppointmentID)
	req.Reason = strings.TrimSpace(req.Reason)
	if req.AppointmentID == "" {
		httpx.WriteError(w, http.StatusBadRequest, httpx.CodeValidationFailed, "appointment_id required")
		return
	}

	ctx := r.Context()
	tx, err := h.store.Begin(ctx)
	if err != nil {
		httpx.WriteError(w, http.StatusServiceUnavailable, httpx.CodeStoreUnavailable, "store unavailable")
		return
	}
	defer func() { _ = tx.Rollback(ctx) }()

	appt, err := h.store.GetAppointmentForUpdate(ctx, tx, req.AppointmentID)
	if err != nil {
		if storage.IsNotFound(err) {
			httpx.WriteError(w, http.StatusNotFound, httpx.CodeNotFound, "appointment not found")
			return
		}
		httpx.WriteError(w, http.StatusServiceUnavailable, httpx.CodeStoreUnavailable, "failed to load appointment")
		return
	}

	// Ownership before state: a patient touching someone else's appointment
	// is forbidden regardless of its status.
	switch {
	case actor.IsAdmin():
	case actor.Role == auth.RolePatient && actor.ID == appt.PatientID:
	case actor.Role == auth.RoleTherapist && actor.ID == appt.TherapistID:
	default:
		httpx.WriteError(w, http.StatusForbidden, httpx.CodeForbidden, "not your appointment")
		return
	}

	if appt.Status == model.StatusCancelled && appt.CancelledAt != nil {
		httpx.WriteJSON(w, http.StatusOK, transitionResponse{
			AppointmentID:        appt.ID,
			Status:               model.StatusCancelled,
			CancelledAt:          appt.CancelledAt.UTC().Format(time.RFC3339),
			CancellationFeeCents: appt.CancellationFeeCents,
		})
		return
	}
	if !model.CanTransition(appt.Status, model.StatusCancelled) {
		httpx.WriteError(w, http.StatusConflict, httpx.CodeConflict, "appointment cannot be cancelled")
		return
	}

	// The deadline is read from the catalog at cancel time so a service
	// policy change applies to existing bookings.
	deadlineHours := 0
	svc, err := h.store.GetCatalogService(ctx, appt.ServiceID)
	if err == nil {
		deadlineHours = svc.CancellationDeadlineHours
	} else if !storage.IsNotFound(err) {
		httpx.WriteError(w, http.StatusServiceUnavailable, httpx.CodeStoreUnavailable, "service catalog unavailable")
		return
	}

	fee := policy.CancellationFee(actor.Role, appt.StartTime, deadlineHours, appt.PriceCents, time.Now().UTC())

	cancelledAt, err := h.store.CancelAppointment(ctx, tx, appt.ID, req.Reason, fee)
	if err != nil {
		httpx.WriteError(w, http.StatusServiceUnavailable, httpx.CodeStoreUnavailable, "failed to cancel appointment")
		return
	}

	paymentStatus := appt.PaymentStatus
	if appt.PaymentStatus == model.PaymentPaid && appt.PaymentIntentID != "" {
		refundCents := appt.PriceCents - fee
		if refundCents > 0 && h.refunder != nil {
			if err := h.refunder.Refund(ctx, appt.PaymentIntentID, refundCents); err != nil {
				h.logger.Error("refund failed", "appointment_id", appt.ID, "err", err)
				httpx.WriteError(w, http.StatusInternalServerError, httpx.CodeInternal, "refund failed")
				return
			}
		}
		if fee > 0 {
			paymentStatus = model.PaymentPartialRefund
		} else {
			paymentStatus = model.PaymentRefunded
		}
		if err := h.store.SetPaymentStatus(ctx, tx, appt.ID, paymentStatus, appt.PaymentIntentID); err != nil {
			httpx.WriteError(w, http.StatusServiceUnavailable, httpx.CodeStoreUnavailable, "failed to update payment status")
			return
		}
	}

	payload, err := json.Marshal(map[string]any{
		"appointment_id":         appt.ID,
		"patient_id":             appt.PatientID,
		"therapist_id":           appt.TherapistID,
		"service_id":             appt.ServiceID,
		"patient_email":          appt.PatientEmail,
		"patient_phone":          appt.PatientPhone,
		"start_time":             appt.StartTime.UTC().Format(time.RFC3339),
		"end_time":               appt.EndTime.UTC().Format(time.RFC3339),
		"cancelled_at":           cancelledAt.UTC().Format(time.RFC3339),
		"cancelled_by":           actor.Role,
		"reason":                 req.Reason,
		"cancellation_fee_cents": fee,
		"payment_status":         paymentStatus,
	})
	if err != nil {
		httpx.WriteError(w, http.StatusInternalServerError, httpx.CodeInternal, "failed to build cancellation event")
		return
	}
	if err := h.outbox.Insert(ctx, tx, outbox.Event{
		AggregateType: "appointment",
		AggregateID:   appt.ID,
		EventType:     outbox.EventAppointmentCancelled,
		Payload:       payload,
	}); err != nil {
		httpx.WriteError(w, http.StatusServiceUnavailable, httpx.CodeStoreUnavailable, "failed to write outbox event")
		return
	}

	if err := tx.Commit(ctx); err != nil {
		httpx.WriteError(w, http.StatusServiceUnavailable, httpx.CodeStoreUnavailable, "failed to commit")
		return
	}

	httpx.WriteJSON(w, http.StatusOK, transitionResponse{
		AppointmentID:        appt.ID,
		Status:               model.StatusCancelled,
		CancelledAt:          cancelledAt.UTC().Format(time.RFC3339),
		CancellationFeeCents: fee,
	})
}

type listAppointmentItem struct {
	AppointmentID        string `json:"appointment_id"`
	PatientID            string `json:"patient_id"`
	TherapistID          string `json:"therapist_id"`
	ServiceID            string `json:"service_id"`
	StartTime            string `json:"start_time"`
	EndTime              string `json:"end_time"`
	PriceCents           int64  `json:"price_cents"`
	Currency             string `json:"currency"`
	Status               string `json:"status"`
	PaymentStatus        string `json:"payment_status"`
	CancelledAt          string `json:"cancelled_at,omitempty"`
	CancellationFeeCents int64  `json:"cancellation_fee_cents,omitempty"`
	CreatedAt            string `json:"created_at"`
}

// List returns the caller's appointments: patients see their own bookings,
// therapists their calendar. Admins pick a scope via query params.
func (h *BookingHandler) List(w http.ResponseWriter, r *http.Request) {
	actor, ok := auth.ActorFromContext(r.Context())
	if !ok {
		httpx.WriteError(w, http.StatusUnauthorized, httpx.CodeUnauthorized, "authentication required")
		return
	}

	limit := 50
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 && n <= 200 {
			limit = n
		}
	}

	var appts []model.Appointment
	var err error
	switch {
	case actor.Role == auth.RolePatient:
		appts, err = h.store.ListByPatient(r.Context(), actor.ID, limit)
	case actor.Role == auth.RoleTherapist:
		appts, err = h.store.ListByTherapist(r.Context(), actor.ID, limit)
	case actor.IsAdmin():
		if id := strings.TrimSpace(r.URL.Query().Get("patient_id")); id != "" {
			appts, err = h.store.ListByPatient(r.Context(), id, limit)
		} else if id := strings.TrimSpace(r.URL.Query().Get("therapist_id")); id != "" {
			appts, err = h.store.ListByTherapist(r.Context(), id, limit)
		} else {
			httpx.WriteError(w, http.StatusBadRequest, httpx.CodeValidationFailed, "patient_id or therapist_id required")
			return
		}
	default:
		httpx.WriteError(w, http.StatusForbidden, httpx.CodeForbidden, "unknown role")
		return
	}
	if err != nil {
		httpx.WriteError(w, http.StatusServiceUnavailable, httpx.CodeStoreUnavailable, "failed to list appointments")
		return
	}

	items := make([]listAppointmentItem, 0, len(appts))
	for _, appt := range appts {
		item := listAppointmentItem{
			AppointmentID:        appt.ID,
			PatientID:            appt.PatientID,
			TherapistID:          appt.TherapistID,
			ServiceID:            appt.ServiceID,
			StartTime:            appt.StartTime.UTC().Format(time.RFC3339),
			EndTime:              appt.EndTime.UTC().Format(time.RFC3339),
			PriceCents:           appt.PriceCents,
			Currency:             appt.Currency,
			Status:               appt.Status,
			PaymentStatus:        appt.PaymentStatus,
			CancellationFeeCents: appt.CancellationFeeCents,
			CreatedAt:            appt.CreatedAt.UTC().Format(time.RFC3339),
		}
		if appt.CancelledAt != nil {
			item.CancelledAt = appt.CancelledAt.UTC().Format(time.RFC3339)
		}
		items = append(items, item)
	}

	httpx.WriteJSON(w, http.StatusOK, items)
}

type slotItem struct {
	StartTime string `json:"start_time"`
	EndTime   string `json:"end_time"`
	Available bool   `json:"available"`
}

// Slots is public: the chronological slot grid for (therapist, service, date)
// with an availability flag per slot. A store or availability lookup failure
// is a 503, never an empty list.
func (h *BookingHandler) Slots(w http.ResponseWriter, r *http.Request) {
	therapistID := strings.TrimSpace(r.URL.Query().Get("therapist_id"))
	serviceID := strings.TrimSpace(r.URL.Query().Get("service_id"))
	dateStr := strings.TrimSpace(r.URL.Query().Get("date"))
	if therapistID == "" || serviceID == "" || dateStr == "" {
		httpx.WriteError(w, http.StatusBadRequest, httpx.CodeValidationFailed, "therapist_id, service_id and date are required")
		return
	}
	if _, err := time.Parse("2006-01-02", dateStr); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, httpx.CodeValidationFailed, "date must be YYYY-MM-DD")
		return
	}

	windows, durationMins, stepMins, err := h.resolveWindows(r.Context(), therapistID, serviceID, dateStr, r)
	if err != nil {
		httpx.WriteError(w, http.StatusServiceUnavailable, httpx.CodeStoreUnavailable, "availability lookup unavailable")
		return
	}
	if len(windows) == 0 {
		httpx.WriteJSON(w, http.StatusOK, []slotItem{})
		return
	}

	minStart, maxEnd := minMaxWindows(windows)

	booked, err := h.store.ListBookedIntervals(r.Context(), therapistID, minStart, maxEnd)
	if err != nil {
		httpx.WriteError(w, http.StatusServiceUnavailable, httpx.CodeStoreUnavailable, "failed to load booked slots")
		return
	}
	busy := make([]availability.Interval, 0, len(booked))
	for _, a := range booked {
		busy = append(busy, availability.Interval{Start: a.StartTime, End: a.EndTime})
	}

	now := time.Now().UTC()
	resp := []slotItem{}
	for _, win := range windows {
		slots := availability.Slots(
			win.Start,
			win.End,
			time.Duration(durationMins)*time.Minute,
			time.Duration(stepMins)*time.Minute,
			busy,
			now,
		)
		for _, s := range slots {
			resp = append(resp, slotItem{
				StartTime: s.Start.UTC().Format(time.RFC3339),
				EndTime:   s.End.UTC().Format(time.RFC3339),
				Available: s.Available,
			})
		}
	}

	httpx.WriteJSON(w, http.StatusOK, resp)
}

func (h *BookingHandler) resolveWindows(ctx context.Context, therapistID, serviceID, dateStr string, r *http.Request) ([]availability.Interval, int, int, error) {
	if h.scheduling != nil {
		reqCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
		defer cancel()

		cfg, err := h.scheduling.GetAvailabilityConfig(reqCtx, therapistID, serviceID, dateStr)
		if err != nil {
			return nil, 0, 0, err
		}
		duration := cfg.DurationMinutes
		if duration <= 0 {
			duration = 50
		}
		step := cfg.SlotStepMinutes
		if step <= 0 {
			step = 60
		}
		wins := make([]availability.Interval, 0, len(cfg.WindowsUTC))
		for _, w := range cfg.WindowsUTC {
			start := w.StartUTC.UTC()
			end := w.EndUTC.UTC()
			if end.After(start) {
				wins = append(wins, availability.Interval{Start: start, End: end})
			}
		}
		return wins, duration, step, nil
	}

	// No provider in this build. Take the duration from the catalog cache and
	// the workday from query params so the service works standalone.
	duration := 50
	svc, err := h.store.GetCatalogService(ctx, serviceID)
	if err == nil && svc.DurationMinutes > 0 {
		duration = svc.DurationMinutes
	} else if err != nil && !storage.IsNotFound(err) {
		return nil, 0, 0, err
	}

	step := 60
	if v := strings.TrimSpace(r.URL.Query().Get("slot_step_minutes")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 120 {
			step = n
		}
	}
	workStart := strings.TrimSpace(r.URL.Query().Get("workday_start"))
	if workStart == "" {
		workStart = "09:00"
	}
	workEnd := strings.TrimSpace(r.URL.Query().Get("workday_end"))
	if workEnd == "" {
		workEnd = "17:00"
	}

	day, err := time.ParseInLocation("2006-01-02", dateStr, time.UTC)
	if err != nil {
		return nil, 0, 0, nil
	}
	startClock, err := time.Parse("15:04", workStart)
	if err != nil {
		return nil, 0, 0, nil
	}
	endClock, err := time.Parse("15:04", workEnd)
	if err != nil {
		return nil, 0, 0, nil
	}
	windowStart := time.Date(day.Year(), day.Month(), day.Day(), startClock.Hour(), startClock.Minute(), 0, 0, time.UTC)
	windowEnd := time.Date(day.Year(), day.Month(), day.Day(), endClock.Hour(), endClock.Minute(), 0, 0, time.UTC)
	if !windowEnd.After(windowStart) {
		return nil, 0, 0, nil
	}
	return []availability.Interval{{Start: windowStart, End: windowEnd}}, duration, step, nil
}

func minMaxWindows(windows []availability.Interval) (time.Time, time.Time) {
	var min time.Time
	var max time.Time
	for _, w := range windows {
		if min.IsZero() || w.Start.Before(min) {
			min = w.Start
		}
		if max.IsZero() || w.End.After(max) {
			max = w.End
		}
	}
	return min, max
}
