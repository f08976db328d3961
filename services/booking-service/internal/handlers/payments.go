package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/sessionly-app/sessionly/libs/auth"
	"github.com/sessionly-app/sessionly/libs/httpx"
	"github.com/sessionly-app/sessionly/services/booking-service/internal/model"
	"github.com/sessionly-app/sessionly/services/booking-service/internal/outbox"
	"github.com/sessionly-app/sessionly/services/booking-service/internal/storage"
	"github.com/stripe/stripe-go/v79"
	"github.com/stripe/stripe-go/v79/webhook"
)

// StripeWebhook handles Stripe payment webhooks. No JWT auth; the signature
// verification is the auth. payment_intent.succeeded with an appointment_id
// in metadata marks the appointment paid.
func (h *BookingHandler) StripeWebhook(w http.ResponseWriter, r *http.Request) {
	if strings.TrimSpace(h.stripeWebhookSecret) == "" {
		httpx.WriteError(w, http.StatusServiceUnavailable, httpx.CodeStoreUnavailable, "stripe webhook not configured")
		return
	}

	sigHeader := r.Header.Get("Stripe-Signature")
	if strings.TrimSpace(sigHeader) == "" {
		httpx.WriteError(w, http.StatusBadRequest, httpx.CodeValidationFailed, "missing Stripe-Signature header")
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20)) // 1 MiB hard cap
	if err != nil {
		httpx.WriteError(w, http.StatusBadRequest, httpx.CodeValidationFailed, "failed to read request body")
		return
	}

	evt, err := webhook.ConstructEventWithTolerance(body, sigHeader, h.stripeWebhookSecret, h.stripeWebhookTolerance)
	if err != nil {
		httpx.WriteError(w, http.StatusBadRequest, httpx.CodeValidationFailed, "invalid signature")
		return
	}

	evtType := string(evt.Type)
	h.logger.Info("payment provider event received",
		"provider", "stripe",
		"provider_event_id", evt.ID,
		"event_type", evtType,
	)

	ctx := r.Context()
	tx, err := h.store.Begin(ctx)
	if err != nil {
		httpx.WriteError(w, http.StatusServiceUnavailable, httpx.CodeStoreUnavailable, "store unavailable")
		return
	}
	defer func() { _ = tx.Rollback(ctx) }()

	// Idempotency: ignore replayed Stripe events.
	if err := h.store.InsertProviderEvent(ctx, tx, "stripe", evt.ID, evtType, body); err != nil {
		if errors.Is(err, storage.ErrDuplicateProviderEvent) {
			h.logger.Info("payment provider event duplicate ignored", "provider_event_id", evt.ID)
			httpx.WriteJSON(w, http.StatusOK, map[string]any{"status": "duplicate"})
			return
		}
		httpx.WriteError(w, http.StatusServiceUnavailable, httpx.CodeStoreUnavailable, "failed to record provider event")
		return
	}

	if evtType == "payment_intent.succeeded" {
		var intent stripe.PaymentIntent
		if err := json.Unmarshal(evt.Data.Raw, &intent); err != nil {
			h.logger.Error("stripe: invalid payment intent payload", "err", err)
			httpx.WriteError(w, http.StatusBadRequest, httpx.CodeValidationFailed, "invalid payment intent payload")
			return
		}
		appointmentID := strings.TrimSpace(intent.Metadata["appointment_id"])
		if appointmentID == "" {
			h.logger.Warn("stripe: payment intent without appointment_id metadata", "payment_intent", intent.ID)
		} else if err := h.applyPaymentSucceeded(ctx, tx, appointmentID, intent.ID); err != nil {
			if storage.IsNotFound(err) {
				h.logger.Warn("stripe: payment for unknown appointment", "appointment_id", appointmentID)
			} else {
				httpx.WriteError(w, http.StatusServiceUnavailable, httpx.CodeStoreUnavailable, "failed to apply payment")
				return
			}
		}
	}

	if err := tx.Commit(ctx); err != nil {
		httpx.WriteError(w, http.StatusServiceUnavailable, httpx.CodeStoreUnavailable, "failed to commit")
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

// MarkPaid records an out-of-band payment. Admin only.
func (h *BookingHandler) MarkPaid(w http.ResponseWriter, r *http.Request) {
	actor, ok := auth.ActorFromContext(r.Context())
	if !ok {
		httpx.WriteError(w, http.StatusUnauthorized, httpx.CodeUnauthorized, "authentication required")
		return
	}
	if !actor.IsAdmin() {
		httpx.WriteError(w, http.StatusForbidden, httpx.CodeForbidden, "admin only")
		return
	}

	var req struct {
		AppointmentID   string `json:"appointment_id"`
		PaymentIntentID string `json:"payment_intent_id"`
	}
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

	if err := h.applyPaymentSucceeded(ctx, tx, req.AppointmentID, strings.TrimSpace(req.PaymentIntentID)); err != nil {
		switch {
		case storage.IsNotFound(err):
			httpx.WriteError(w, http.StatusNotFound, httpx.CodeNotFound, "appointment not found")
		case errors.Is(err, errAlreadyPaid):
			httpx.WriteError(w, http.StatusConflict, httpx.CodeConflict, "appointment is not awaiting payment")
		default:
			httpx.WriteError(w, http.StatusServiceUnavailable, httpx.CodeStoreUnavailable, "failed to apply payment")
		}
		return
	}

	if err := tx.Commit(ctx); err != nil {
		httpx.WriteError(w, http.StatusServiceUnavailable, httpx.CodeStoreUnavailable, "failed to commit")
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{
		"appointment_id": req.AppointmentID,
		"payment_status": model.PaymentPaid,
	})
}

var errAlreadyPaid = errors.New("appointment not awaiting payment")

func (h *BookingHandler) applyPaymentSucceeded(ctx context.Context, tx pgx.Tx, appointmentID, paymentIntentID string) error {
	appt, err := h.store.GetAppointmentForUpdate(ctx, tx, appointmentID)
	if err != nil {
		return err
	}
	if appt.PaymentStatus != model.PaymentPending {
		return errAlreadyPaid
	}
	if err := h.store.SetPaymentStatus(ctx, tx, appt.ID, model.PaymentPaid, paymentIntentID); err != nil {
		return err
	}

	payload, err := json.Marshal(map[string]any{
		"appointment_id":    appt.ID,
		"patient_id":        appt.PatientID,
		"therapist_id":      appt.TherapistID,
		"service_id":        appt.ServiceID,
		"payment_intent_id": paymentIntentID,
		"price_cents":       appt.PriceCents,
		"currency":          appt.Currency,
		"paid_at":           time.Now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		return err
	}
	return h.outbox.Insert(ctx, tx, outbox.Event{
		AggregateType: "appointment",
		AggregateID:   appt.ID,
		EventType:     outbox.EventPaymentSucceeded,
		Payload:       payload,
	})
}
