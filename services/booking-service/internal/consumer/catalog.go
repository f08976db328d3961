package consumer

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/segmentio/kafka-go"
	"github.com/sessionly-app/sessionly/services/booking-service/internal/storage"
)

// CatalogHandler applies practice-service catalog events to the local
// service_catalog cache.
type CatalogHandler struct {
	repo   *storage.BookingRepository
	logger *slog.Logger
}

func NewCatalogHandler(repo *storage.BookingRepository, logger *slog.Logger) *CatalogHandler {
	return &CatalogHandler{repo: repo, logger: logger}
}

type serviceUpsertedPayload struct {
	ServiceID                 string `json:"service_id"`
	Name                      string `json:"name"`
	DurationMinutes           int    `json:"duration_minutes"`
	PriceCents                int64  `json:"price_cents"`
	Currency                  string `json:"currency"`
	CancellationDeadlineHours int    `json:"cancellation_deadline_hours"`
	IsActive                  bool   `json:"is_active"`
}

func (h *CatalogHandler) Handle(ctx context.Context, msg kafka.Message) error {
	var payload serviceUpsertedPayload
	if err := json.Unmarshal(msg.Value, &payload); err != nil {
		// Malformed payloads never become parseable; log and commit.
		h.logger.Error("invalid service upserted payload", "err", err)
		return nil
	}
	if payload.ServiceID == "" {
		h.logger.Warn("service upserted event without service_id")
		return nil
	}

	if err := h.repo.UpsertCatalogService(ctx, storage.CatalogService{
		ServiceID:                 payload.ServiceID,
		Name:                      payload.Name,
		DurationMinutes:           payload.DurationMinutes,
		PriceCents:                payload.PriceCents,
		Currency:                  payload.Currency,
		CancellationDeadlineHours: payload.CancellationDeadlineHours,
		IsActive:                  payload.IsActive,
	}); err != nil {
		return err
	}
	h.logger.Info("service catalog updated", "service_id", payload.ServiceID)
	return nil
}
