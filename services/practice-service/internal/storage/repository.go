package storage

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/sessionly-app/sessionly/libs/db"
	"github.com/sessionly-app/sessionly/services/practice-service/internal/outbox"
	"github.com/sessionly-app/sessionly/services/practice-service/internal/schedule"
)

type Repository struct {
	pool   *db.Pool
	outbox *outbox.Repository
}

func NewRepository(pool *db.Pool, outboxRepo *outbox.Repository) *Repository {
	return &Repository{pool: pool, outbox: outboxRepo}
}

type Therapist struct {
	ID          string
	DisplayName string
	Timezone    string
	IsActive    bool
	CreatedAt   time.Time
}

func (r *Repository) CreateTherapist(ctx context.Context, displayName, timezone string) (string, error) {
	id := uuid.NewString()
	_, err := r.pool.Exec(ctx, `
		INSERT INTO therapists (id, display_name, timezone)
		VALUES ($1, $2, $3)
	`, id, displayName, timezone)
	if err != nil {
		return "", err
	}
	return id, nil
}

func (r *Repository) GetTherapist(ctx context.Context, id string) (Therapist, error) {
	var t Therapist
	err := r.pool.QueryRow(ctx, `
		SELECT id::text, display_name, timezone, is_active, created_at
		FROM therapists
		WHERE id = $1
	`, id).Scan(&t.ID, &t.DisplayName, &t.Timezone, &t.IsActive, &t.CreatedAt)
	return t, err
}

func (r *Repository) UpdateTherapist(ctx context.Context, id, displayName, timezone string, isActive bool) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE therapists
		SET display_name = $2, timezone = $3, is_active = $4
		WHERE id = $1
	`, id, displayName, timezone, isActive)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *Repository) ListTherapists(ctx context.Context, limit int) ([]Therapist, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.pool.Query(ctx, `
		SELECT id::text, display_name, timezone, is_active, created_at
		FROM therapists
		ORDER BY created_at DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Therapist
	for rows.Next() {
		var t Therapist
		if err := rows.Scan(&t.ID, &t.DisplayName, &t.Timezone, &t.IsActive, &t.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return out, nil
}

type ServiceCategory struct {
	ID        string
	Name      string
	CreatedAt time.Time
}

func (r *Repository) CreateCategory(ctx context.Context, name string) (string, error) {
	id := uuid.NewString()
	_, err := r.pool.Exec(ctx, `
		INSERT INTO service_categories (id, name)
		VALUES ($1, $2)
	`, id, name)
	if err != nil {
		return "", err
	}
	return id, nil
}

func (r *Repository) ListCategories(ctx context.Context, limit int) ([]ServiceCategory, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.pool.Query(ctx, `
		SELECT id::text, name, created_at
		FROM service_categories
		ORDER BY name ASC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ServiceCategory
	for rows.Next() {
		var c ServiceCategory
		if err := rows.Scan(&c.ID, &c.Name, &c.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return out, nil
}

type TherapyService struct {
	ID                        string
	CategoryID                string
	Name                      string
	DurationMins              int
	PriceCents                int64
	Currency                  string
	Description               string
	CancellationDeadlineHours int
	IsActive                  bool
	CreatedAt                 time.Time
}

type ServiceInput struct {
	ID                        string // empty for create
	CategoryID                string
	Name                      string
	DurationMins              int
	PriceCents                int64
	Currency                  string
	Description               string
	CancellationDeadlineHours int
	IsActive                  bool
}

// UpsertService writes the service row and the catalog change event in one
// transaction so the outbox never diverges from the table.
func (r *Repository) UpsertService(ctx context.Context, in ServiceInput) (TherapyService, error) {
	if in.ID == "" {
		in.ID = uuid.NewString()
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return TherapyService{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var svc TherapyService
	err = tx.QueryRow(ctx, `
		INSERT INTO therapy_services
			(id, category_id, name, duration_minutes, price_cents, currency, description, cancellation_deadline_hours, is_active)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO UPDATE
		SET category_id = EXCLUDED.category_id,
			name = EXCLUDED.name,
			duration_minutes = EXCLUDED.duration_minutes,
			price_cents = EXCLUDED.price_cents,
			currency = EXCLUDED.currency,
			description = EXCLUDED.description,
			cancellation_deadline_hours = EXCLUDED.cancellation_deadline_hours,
			is_active = EXCLUDED.is_active
		RETURNING id::text, category_id::text, name, duration_minutes, price_cents, currency, description, cancellation_deadline_hours, is_active, created_at
	`, in.ID, in.CategoryID, in.Name, in.DurationMins, in.PriceCents, in.Currency, in.Description, in.CancellationDeadlineHours, in.IsActive).
		Scan(&svc.ID, &svc.CategoryID, &svc.Name, &svc.DurationMins, &svc.PriceCents, &svc.Currency, &svc.Description, &svc.CancellationDeadlineHours, &svc.IsActive, &svc.CreatedAt)
	if err != nil {
		return TherapyService{}, err
	}

	payload, err := json.Marshal(map[string]any{
		"service_id":                  svc.ID,
		"name":                        svc.Name,
		"duration_minutes":            svc.DurationMins,
		"price_cents":                 svc.PriceCents,
		"currency":                    svc.Currency,
		"cancellation_deadline_hours": svc.CancellationDeadlineHours,
		"is_active":                   svc.IsActive,
	})
	if err != nil {
		return TherapyService{}, err
	}
	if err := r.outbox.Insert(ctx, tx, outbox.Event{
		AggregateType: "therapy_service",
		AggregateID:   svc.ID,
		EventType:     outbox.EventServiceUpserted,
		Payload:       payload,
	}); err != nil {
		return TherapyService{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return TherapyService{}, err
	}
	return svc, nil
}

func (r *Repository) GetService(ctx context.Context, id string) (TherapyService, error) {
	var svc TherapyService
	err := r.pool.QueryRow(ctx, `
		SELECT id::text, category_id::text, name, duration_minutes, price_cents, currency, description, cancellation_deadline_hours, is_active, created_at
		FROM therapy_services
		WHERE id = $1
	`, id).Scan(&svc.ID, &svc.CategoryID, &svc.Name, &svc.DurationMins, &svc.PriceCents, &svc.Currency, &svc.Description, &svc.CancellationDeadlineHours, &svc.IsActive, &svc.CreatedAt)
	return svc, err
}

func (r *Repository) ListServices(ctx context.Context, categoryID string, limit int) ([]TherapyService, error) {
	if limit <= 0 {
		limit = 100
	}
	query := `
		SELECT id::text, category_id::text, name, duration_minutes, price_cents, currency, description, cancellation_deadline_hours, is_active, created_at
		FROM therapy_services
		WHERE ($1 = '' OR category_id::text = $1)
		ORDER BY created_at DESC
		LIMIT $2
	`
	rows, err := r.pool.Query(ctx, query, categoryID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []TherapyService
	for rows.Next() {
		var svc TherapyService
		if err := rows.Scan(&svc.ID, &svc.CategoryID, &svc.Name, &svc.DurationMins, &svc.PriceCents, &svc.Currency, &svc.Description, &svc.CancellationDeadlineHours, &svc.IsActive, &svc.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, svc)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return out, nil
}

type WeeklyRule struct {
	ID          string
	TherapistID string
	Weekday     int
	StartMinute int
	EndMinute   int
	Enabled     bool
}

// ReplaceWeeklyAvailability persists a full weekly grid: all prior rows for
// the therapist are removed and the new disjoint ranges inserted. Last write
// wins.
func (r *Repository) ReplaceWeeklyAvailability(ctx context.Context, therapistID string, byWeekday map[int][]schedule.Range) error {
	if err := r.therapistExists(ctx, therapistID); err != nil {
		return err
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `
		DELETE FROM weekly_availability WHERE therapist_id = $1
	`, therapistID); err != nil {
		return err
	}
	for weekday, ranges := range byWeekday {
		for _, rg := range ranges {
			if _, err := tx.Exec(ctx, `
				INSERT INTO weekly_availability (id, therapist_id, weekday, start_minute, end_minute, enabled)
				VALUES ($1, $2, $3, $4, $5, true)
			`, uuid.NewString(), therapistID, weekday, rg.StartMinute, rg.EndMinute); err != nil {
				return err
			}
		}
	}
	return tx.Commit(ctx)
}

func (r *Repository) ListWeeklyRules(ctx context.Context, therapistID string) ([]WeeklyRule, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id::text, therapist_id::text, weekday, start_minute, end_minute, enabled
		FROM weekly_availability
		WHERE therapist_id = $1
		ORDER BY weekday ASC, start_minute ASC
	`, therapistID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []WeeklyRule
	for rows.Next() {
		var wr WeeklyRule
		if err := rows.Scan(&wr.ID, &wr.TherapistID, &wr.Weekday, &wr.StartMinute, &wr.EndMinute, &wr.Enabled); err != nil {
			return nil, err
		}
		out = append(out, wr)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return out, nil
}

func (r *Repository) weeklyRanges(ctx context.Context, therapistID string, weekday int) ([]schedule.Range, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT start_minute, end_minute
		FROM weekly_availability
		WHERE therapist_id = $1 AND weekday = $2 AND enabled
		ORDER BY start_minute ASC
	`, therapistID, weekday)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []schedule.Range
	for rows.Next() {
		var rg schedule.Range
		if err := rows.Scan(&rg.StartMinute, &rg.EndMinute); err != nil {
			return nil, err
		}
		out = append(out, rg)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return out, nil
}

// ReplaceDateOverride replaces all override rows for the date. An empty range
// list writes a single disabled marker row, which keeps the override present
// and closes the day.
func (r *Repository) ReplaceDateOverride(ctx context.Context, therapistID string, date time.Time, ranges []schedule.Range) error {
	if err := r.therapistExists(ctx, therapistID); err != nil {
		return err
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `
		DELETE FROM date_availability WHERE therapist_id = $1 AND date = $2
	`, therapistID, date); err != nil {
		return err
	}
	if len(ranges) == 0 {
		if _, err := tx.Exec(ctx, `
			INSERT INTO date_availability (id, therapist_id, date, start_minute, end_minute, enabled)
			VALUES ($1, $2, $3, 0, 0, false)
		`, uuid.NewString(), therapistID, date); err != nil {
			return err
		}
		return tx.Commit(ctx)
	}
	for _, rg := range ranges {
		if _, err := tx.Exec(ctx, `
			INSERT INTO date_availability (id, therapist_id, date, start_minute, end_minute, enabled)
			VALUES ($1, $2, $3, $4, $5, true)
		`, uuid.NewString(), therapistID, date, rg.StartMinute, rg.EndMinute); err != nil {
			return err
		}
	}
	return tx.Commit(ctx)
}

func (r *Repository) DeleteDateOverride(ctx context.Context, therapistID string, date time.Time) error {
	tag, err := r.pool.Exec(ctx, `
		DELETE FROM date_availability WHERE therapist_id = $1 AND date = $2
	`, therapistID, date)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

// dateOverride reports the enabled ranges for the date and whether any
// override rows exist at all (a disabled marker row counts as an override).
func (r *Repository) dateOverride(ctx context.Context, therapistID string, date time.Time) ([]schedule.Range, bool, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT start_minute, end_minute, enabled
		FROM date_availability
		WHERE therapist_id = $1 AND date = $2
		ORDER BY start_minute ASC
	`, therapistID, date)
	if err != nil {
		return nil, false, err
	}
	defer rows.Close()

	var out []schedule.Range
	found := false
	for rows.Next() {
		var rg schedule.Range
		var enabled bool
		if err := rows.Scan(&rg.StartMinute, &rg.EndMinute, &enabled); err != nil {
			return nil, false, err
		}
		found = true
		if enabled {
			out = append(out, rg)
		}
	}
	if rows.Err() != nil {
		return nil, false, rows.Err()
	}
	return out, found, nil
}

type TimeOff struct {
	ID          string
	TherapistID string
	StartTime   time.Time
	EndTime     time.Time
	Reason      string
	CreatedAt   time.Time
}

func (r *Repository) CreateTimeOff(ctx context.Context, therapistID string, startTime, endTime time.Time, reason string) (string, error) {
	if err := r.therapistExists(ctx, therapistID); err != nil {
		return "", err
	}

	id := uuid.NewString()
	_, err := r.pool.Exec(ctx, `
		INSERT INTO therapist_time_off (id, therapist_id, start_time, end_time, reason)
		VALUES ($1, $2, $3, $4, $5)
	`, id, therapistID, startTime, endTime, reason)
	if err != nil {
		return "", err
	}
	return id, nil
}

func (r *Repository) ListTimeOff(ctx context.Context, therapistID string, from, to time.Time, limit int) ([]TimeOff, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.pool.Query(ctx, `
		SELECT id::text, therapist_id::text, start_time, end_time, reason, created_at
		FROM therapist_time_off
		WHERE therapist_id = $1
			AND end_time > $2
			AND start_time < $3
		ORDER BY start_time ASC
		LIMIT $4
	`, therapistID, from, to, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []TimeOff
	for rows.Next() {
		var t TimeOff
		if err := rows.Scan(&t.ID, &t.TherapistID, &t.StartTime, &t.EndTime, &t.Reason, &t.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return out, nil
}

func (r *Repository) DeleteTimeOff(ctx context.Context, therapistID, timeOffID string) error {
	tag, err := r.pool.Exec(ctx, `
		DELETE FROM therapist_time_off
		WHERE therapist_id = $1 AND id = $2
	`, therapistID, timeOffID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *Repository) therapistExists(ctx context.Context, therapistID string) error {
	var exists bool
	if err := r.pool.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM therapists WHERE id = $1
		)
	`, therapistID).Scan(&exists); err != nil {
		return err
	}
	if !exists {
		return pgx.ErrNoRows
	}
	return nil
}

// ResolveDayWindows computes the bookable UTC windows for a therapist on a
// local calendar date ("2006-01-02"). Unknown or inactive therapists and
// closed days resolve to zero windows rather than an error.
func (r *Repository) ResolveDayWindows(ctx context.Context, therapistID, date string) (string, []schedule.Interval, error) {
	t, err := r.GetTherapist(ctx, therapistID)
	if errors.Is(err, pgx.ErrNoRows) {
		return "UTC", nil, nil
	}
	if err != nil {
		return "", nil, err
	}

	timezone := t.Timezone
	loc, err := time.LoadLocation(timezone)
	if err != nil {
		loc = time.UTC
		timezone = "UTC"
	}
	if !t.IsActive {
		return timezone, nil, nil
	}

	dayLocal, err := time.ParseInLocation("2006-01-02", date, loc)
	if err != nil {
		return "", nil, err
	}

	weekly, err := r.weeklyRanges(ctx, therapistID, int(dayLocal.Weekday()))
	if err != nil {
		return "", nil, err
	}
	dateUTC, err := time.Parse("2006-01-02", date)
	if err != nil {
		return "", nil, err
	}
	override, hasOverride, err := r.dateOverride(ctx, therapistID, dateUTC)
	if err != nil {
		return "", nil, err
	}

	ranges := weekly
	if hasOverride {
		ranges = override
	}
	if len(ranges) == 0 {
		return timezone, nil, nil
	}

	// Time off is stored in UTC; fetch everything touching the day's span.
	dayStart := time.Date(dayLocal.Year(), dayLocal.Month(), dayLocal.Day(), 0, 0, 0, 0, loc).UTC()
	dayEnd := dayStart.Add(24 * time.Hour)
	timeOff, err := r.ListTimeOff(ctx, therapistID, dayStart, dayEnd, 500)
	if err != nil {
		return "", nil, err
	}
	blocks := make([]schedule.Interval, 0, len(timeOff))
	for _, t := range timeOff {
		blocks = append(blocks, schedule.Interval{Start: t.StartTime, End: t.EndTime})
	}

	return timezone, schedule.Resolve(dayLocal, weekly, override, hasOverride, blocks), nil
}
