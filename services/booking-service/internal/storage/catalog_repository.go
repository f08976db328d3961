package storage

import (
	"context"
	"time"
)

// CatalogService is the locally cached view of a therapy service owned by
// practice-service. Kept current by consuming service upserted events.
type CatalogService struct {
	ServiceID                 string
	Name                      string
	DurationMinutes           int
	PriceCents                int64
	Currency                  string
	CancellationDeadlineHours int
	IsActive                  bool
	UpdatedAt                 time.Time
}

func (r *BookingRepository) UpsertCatalogService(ctx context.Context, svc CatalogService) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO service_catalog
			(service_id, name, duration_minutes, price_cents, currency, cancellation_deadline_hours, is_active, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, now())
		ON CONFLICT (service_id) DO UPDATE
		SET name = EXCLUDED.name,
			duration_minutes = EXCLUDED.duration_minutes,
			price_cents = EXCLUDED.price_cents,
			currency = EXCLUDED.currency,
			cancellation_deadline_hours = EXCLUDED.cancellation_deadline_hours,
			is_active = EXCLUDED.is_active,
			updated_at = now()
	`, svc.ServiceID, svc.Name, svc.DurationMinutes, svc.PriceCents, svc.Currency,
		svc.CancellationDeadlineHours, svc.IsActive)
	return err
}

func (r *BookingRepository) GetCatalogService(ctx context.Context, serviceID string) (CatalogService, error) {
	var svc CatalogService
	err := r.pool.QueryRow(ctx, `
		SELECT service_id::text, name, duration_minutes, price_cents, currency,
			cancellation_deadline_hours, is_active, updated_at
		FROM service_catalog
		WHERE service_id = $1
	`, serviceID).Scan(
		&svc.ServiceID,
		&svc.Name,
		&svc.DurationMinutes,
		&svc.PriceCents,
		&svc.Currency,
		&svc.CancellationDeadlineHours,
		&svc.IsActive,
		&svc.UpdatedAt,
	)
	return svc, err
}
