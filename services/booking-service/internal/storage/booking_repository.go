package storage

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/sessionly-app/sessionly/libs/db"
	"github.com/sessionly-app/sessionly/services/booking-service/internal/model"
)

var ErrDuplicateProviderEvent = errors.New("provider event already processed")

type BookingRepository struct {
	pool *db.Pool
}

type IdempotencyRecord struct {
	PatientID       string
	IdempotencyKey  string
	AppointmentID   string
	StatusCode      int
	ResponsePayload []byte
}

func NewBookingRepository(pool *db.Pool) *BookingRepository {
	return &BookingRepository{pool: pool}
}

func (r *BookingRepository) Begin(ctx context.Context) (pgx.Tx, error) {
	return r.pool.Begin(ctx)
}

// LockIdempotencyKey returns the recorded outcome for (patient, key) when one
// exists, locking the row either way so concurrent retries serialize. The
// bool reports whether the key was seen before.
func (r *BookingRepository) LockIdempotencyKey(ctx context.Context, tx pgx.Tx, patientID, key string) (IdempotencyRecord, bool, error) {
	rec, err := r.selectIdempotencyForUpdate(ctx, tx, patientID, key)
	if err == nil {
		return rec, true, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return IdempotencyRecord{}, false, err
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO booking_idempotency_keys (patient_id, idempotency_key)
		VALUES ($1, $2)
		ON CONFLICT (patient_id, idempotency_key) DO NOTHING
	`, patientID, key)
	if err != nil {
		return IdempotencyRecord{}, false, err
	}

	rec, err = r.selectIdempotencyForUpdate(ctx, tx, patientID, key)
	if err != nil {
		return IdempotencyRecord{}, false, err
	}
	return rec, false, nil
}

func (r *BookingRepository) FinalizeIdempotency(ctx context.Context, tx pgx.Tx, patientID, key, appointmentID string, statusCode int, response []byte) error {
	_, err := tx.Exec(ctx, `
		UPDATE booking_idempotency_keys
		SET appointment_id = $3,
			status_code = $4,
			response_payload = $5,
			updated_at = now()
		WHERE patient_id = $1 AND idempotency_key = $2
	`, patientID, key, appointmentID, statusCode, response)
	return err
}

// Create inserts the appointment. The exclusion constraint on
// (therapist_id, time range) raises 23P01 on overlap with another live
// appointment; callers translate that with IsConflict.
func (r *BookingRepository) Create(ctx context.Context, tx pgx.Tx, appt *model.Appointment) (string, error) {
	var id string
	err := tx.QueryRow(ctx, `
		INSERT INTO appointments
			(patient_id, patient_name, patient_email, patient_phone, therapist_id, service_id,
			start_time, end_time, price_cents, currency, status, payment_status, notes)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		RETURNING id
	`, appt.PatientID, appt.PatientName, appt.PatientEmail, appt.PatientPhone, appt.TherapistID, appt.ServiceID,
		appt.StartTime, appt.EndTime, appt.PriceCents, appt.Currency, appt.Status, appt.PaymentStatus, appt.Notes).Scan(&id)
	if err != nil {
		return "", err
	}
	return id, nil
}

func (r *BookingRepository) GetAppointmentForUpdate(ctx context.Context, tx pgx.Tx, appointmentID string) (model.Appointment, error) {
	row := tx.QueryRow(ctx, appointmentSelect+`
		WHERE id = $1
		FOR UPDATE
	`, appointmentID)
	return scanAppointment(row)
}

func (r *BookingRepository) GetAppointment(ctx context.Context, appointmentID string) (model.Appointment, error) {
	row := r.pool.QueryRow(ctx, appointmentSelect+`
		WHERE id = $1
	`, appointmentID)
	return scanAppointment(row)
}

func (r *BookingRepository) UpdateStatus(ctx context.Context, tx pgx.Tx, appointmentID, status string) error {
	tag, err := tx.Exec(ctx, `
		UPDATE appointments
		SET status = $2
		WHERE id = $1
	`, appointmentID, status)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *BookingRepository) CancelAppointment(ctx context.Context, tx pgx.Tx, appointmentID, reason string, feeCents int64) (time.Time, error) {
	var cancelledAt time.Time
	err := tx.QueryRow(ctx, `
		UPDATE appointments
		SET status = 'cancelled',
			cancelled_at = now(),
			cancellation_reason = $2,
			cancellation_fee_cents = $3
		WHERE id = $1
		RETURNING cancelled_at
	`, appointmentID, reason, feeCents).Scan(&cancelledAt)
	return cancelledAt, err
}

func (r *BookingRepository) SetPaymentStatus(ctx context.Context, tx pgx.Tx, appointmentID, paymentStatus, paymentIntentID string) error {
	tag, err := tx.Exec(ctx, `
		UPDATE appointments
		SET payment_status = $2,
			payment_intent_id = NULLIF($3, '')
		WHERE id = $1
	`, appointmentID, paymentStatus, paymentIntentID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

// ListBookedIntervals returns live appointments (pending or confirmed)
// overlapping [start, end) for the therapist. Cancelled and finished
// appointments free their slots.
func (r *BookingRepository) ListBookedIntervals(ctx context.Context, therapistID string, start, end time.Time) ([]model.Appointment, error) {
	rows, err := r.pool.Query(ctx, appointmentSelect+`
		WHERE therapist_id = $1
			AND status IN ('pending', 'confirmed')
			AND start_time < $3
			AND end_time > $2
		ORDER BY start_time ASC
	`, therapistID, start, end)
	if err != nil {
		return nil, err
	}
	return scanAppointments(rows)
}

func (r *BookingRepository) ListByPatient(ctx context.Context, patientID string, limit int) ([]model.Appointment, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.pool.Query(ctx, appointmentSelect+`
		WHERE patient_id = $1
		ORDER BY start_time DESC
		LIMIT $2
	`, patientID, limit)
	if err != nil {
		return nil, err
	}
	return scanAppointments(rows)
}

func (r *BookingRepository) ListByTherapist(ctx context.Context, therapistID string, limit int) ([]model.Appointment, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.pool.Query(ctx, appointmentSelect+`
		WHERE therapist_id = $1
		ORDER BY start_time DESC
		LIMIT $2
	`, therapistID, limit)
	if err != nil {
		return nil, err
	}
	return scanAppointments(rows)
}

// InsertProviderEvent records a payment provider event id for dedupe.
// ErrDuplicateProviderEvent means the webhook was already processed.
func (r *BookingRepository) InsertProviderEvent(ctx context.Context, tx pgx.Tx, provider, eventID, eventType string, payload []byte) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO payment_provider_events (provider, event_id, event_type, payload)
		VALUES ($1, $2, $3, $4)
	`, provider, eventID, eventType, payload)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrDuplicateProviderEvent
		}
		return err
	}
	return nil
}

func IsConflict(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23P01"
}

func IsNotFound(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}

const appointmentSelect = `
	SELECT id::text, patient_id::text, patient_name, patient_email, COALESCE(patient_phone, ''),
		therapist_id::text, service_id::text, start_time, end_time, price_cents, currency,
		status, payment_status, COALESCE(payment_intent_id, ''), COALESCE(notes, ''),
		COALESCE(cancellation_reason, ''), cancellation_fee_cents, cancelled_at, created_at
	FROM appointments
`

func scanAppointment(row pgx.Row) (model.Appointment, error) {
	var appt model.Appointment
	var cancelledAt *time.Time
	err := row.Scan(
		&appt.ID,
		&appt.PatientID,
		&appt.PatientName,
		&appt.PatientEmail,
		&appt.PatientPhone,
		&appt.TherapistID,
		&appt.ServiceID,
		&appt.StartTime,
		&appt.EndTime,
		&appt.PriceCents,
		&appt.Currency,
		&appt.Status,
		&appt.PaymentStatus,
		&appt.PaymentIntentID,
		&appt.Notes,
		&appt.CancellationReason,
		&appt.CancellationFeeCents,
		&cancelledAt,
		&appt.CreatedAt,
	)
	if err != nil {
		return model.Appointment{}, err
	}
	appt.CancelledAt = cancelledAt
	return appt, nil
}

func scanAppointments(rows pgx.Rows) ([]model.Appointment, error) {
	defer rows.Close()

	var appts []model.Appointment
	for rows.Next() {
		appt, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		appts = append(appts, appt)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return appts, nil
}

func (r *BookingRepository) selectIdempotencyForUpdate(ctx context.Context, tx pgx.Tx, patientID, key string) (IdempotencyRecord, error) {
	var rec IdempotencyRecord
	var responseText string
	err := tx.QueryRow(ctx, `
		SELECT patient_id::text,
			idempotency_key,
			COALESCE(appointment_id::text, ''),
			COALESCE(status_code, 0),
			COALESCE(response_payload::text, '')
		FROM booking_idempotency_keys
		WHERE patient_id = $1 AND idempotency_key = $2
		FOR UPDATE
	`, patientID, key).Scan(
		&rec.PatientID,
		&rec.IdempotencyKey,
		&rec.AppointmentID,
		&rec.StatusCode,
		&responseText,
	)
	if err != nil {
		return IdempotencyRecord{}, err
	}
	if responseText != "" {
		rec.ResponsePayload = []byte(responseText)
	}
	return rec, nil
}
