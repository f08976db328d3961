package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/sessionly-app/sessionly/libs/auth"
	"github.com/sessionly-app/sessionly/services/booking-service/internal/model"
	"github.com/sessionly-app/sessionly/services/booking-service/internal/outbox"
	"github.com/sessionly-app/sessionly/services/booking-service/internal/scheduling"
	"github.com/sessionly-app/sessionly/services/booking-service/internal/storage"
)

// fakeTx satisfies pgx.Tx for handler tests; only Commit and Rollback are
// ever reached.
type fakeTx struct {
	pgx.Tx
	committed  bool
	rolledBack bool
}

func (t *fakeTx) Commit(ctx context.Context) error   { t.committed = true; return nil }
func (t *fakeTx) Rollback(ctx context.Context) error { t.rolledBack = true; return nil }

type fakeStore struct {
	tx *fakeTx

	catalog    map[string]storage.CatalogService
	catalogErr error

	appointments map[string]model.Appointment

	created   *model.Appointment
	createErr error

	cancelled     string
	cancelReason  string
	cancelFee     int64
	statusUpdates map[string]string
	payments      map[string]string

	bookedIntervals []model.Appointment
	bookedErr       error

	finalizedStatus int
	finalizedBody   []byte
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		tx:            &fakeTx{},
		catalog:       map[string]storage.CatalogService{},
		appointments:  map[string]model.Appointment{},
		statusUpdates: map[string]string{},
		payments:      map[string]string{},
	}
}

func (f *fakeStore) Begin(ctx context.Context) (pgx.Tx, error) { return f.tx, nil }

func (f *fakeStore) LockIdempotencyKey(ctx context.Context, tx pgx.Tx, patientID, key string) (storage.IdempotencyRecord, bool, error) {
	return storage.IdempotencyRecord{PatientID: patientID, IdempotencyKey: key}, false, nil
}

func (f *fakeStore) FinalizeIdempotency(ctx context.Context, tx pgx.Tx, patientID, key, appointmentID string, statusCode int, response []byte) error {
	f.finalizedStatus = statusCode
	f.finalizedBody = response
	return nil
}

func (f *fakeStore) Create(ctx context.Context, tx pgx.Tx, appt *model.Appointment) (string, error) {
	if f.createErr != nil {
		return "", f.createErr
	}
	f.created = appt
	return "appointment-1", nil
}

func (f *fakeStore) GetAppointmentForUpdate(ctx context.Context, tx pgx.Tx, appointmentID string) (model.Appointment, error) {
	appt, ok := f.appointments[appointmentID]
	if !ok {
		return model.Appointment{}, pgx.ErrNoRows
	}
	return appt, nil
}

func (f *fakeStore) UpdateStatus(ctx context.Context, tx pgx.Tx, appointmentID, status string) error {
	f.statusUpdates[appointmentID] = status
	return nil
}

func (f *fakeStore) CancelAppointment(ctx context.Context, tx pgx.Tx, appointmentID, reason string, feeCents int64) (time.Time, error) {
	f.cancelled = appointmentID
	f.cancelReason = reason
	f.cancelFee = feeCents
	return time.Date(2026, 9, 1, 12, 0, 0, 0, time.UTC), nil
}

func (f *fakeStore) SetPaymentStatus(ctx context.Context, tx pgx.Tx, appointmentID, paymentStatus, paymentIntentID string) error {
	f.payments[appointmentID] = paymentStatus
	return nil
}

func (f *fakeStore) ListBookedIntervals(ctx context.Context, therapistID string, start, end time.Time) ([]model.Appointment, error) {
	if f.bookedErr != nil {
		return nil, f.bookedErr
	}
	return f.bookedIntervals, nil
}

func (f *fakeStore) ListByPatient(ctx context.Context, patientID string, limit int) ([]model.Appointment, error) {
	var out []model.Appointment
	for _, a := range f.appointments {
		if a.PatientID == patientID {
			out = append(out, a)
		}
	}
	return out, nil
}

func (f *fakeStore) ListByTherapist(ctx context.Context, therapistID string, limit int) ([]model.Appointment, error) {
	var out []model.Appointment
	for _, a := range f.appointments {
		if a.TherapistID == therapistID {
			out = append(out, a)
		}
	}
	return out, nil
}

func (f *fakeStore) GetCatalogService(ctx context.Context, serviceID string) (storage.CatalogService, error) {
	if f.catalogErr != nil {
		return storage.CatalogService{}, f.catalogErr
	}
	svc, ok := f.catalog[serviceID]
	if !ok {
		return storage.CatalogService{}, pgx.ErrNoRows
	}
	return svc, nil
}

func (f *fakeStore) InsertProviderEvent(ctx context.Context, tx pgx.Tx, provider, eventID, eventType string, payload []byte) error {
	return nil
}

type fakeOutbox struct {
	events []outbox.Event
}

func (f *fakeOutbox) Insert(ctx context.Context, tx pgx.Tx, evt outbox.Event) error {
	f.events = append(f.events, evt)
	return nil
}

func (f *fakeOutbox) eventTypes() []string {
	var out []string
	for _, e := range f.events {
		out = append(out, e.EventType)
	}
	return out
}

type fakeScheduler struct {
	cfg scheduling.AvailabilityConfig
	err error
}

func (f *fakeScheduler) GetAvailabilityConfig(ctx context.Context, therapistID, serviceID string, date string) (scheduling.AvailabilityConfig, error) {
	if f.err != nil {
		return scheduling.AvailabilityConfig{}, f.err
	}
	return f.cfg, nil
}

type fakeRefunder struct {
	paymentIntentID string
	amountCents     int64
	calls           int
	err             error
}

func (f *fakeRefunder) Refund(ctx context.Context, paymentIntentID string, amountCents int64) error {
	f.calls++
	f.paymentIntentID = paymentIntentID
	f.amountCents = amountCents
	return f.err
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(&strings.Builder{}, nil))
}

func withActor(r *http.Request, id, role string) *http.Request {
	return r.WithContext(auth.ContextWithActor(r.Context(), auth.Actor{ID: id, Role: role}))
}

func newHandler(store *fakeStore, ob *fakeOutbox, cfg Config) *BookingHandler {
	return NewBookingHandler(store, ob, testLogger(), cfg)
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("invalid error body %q: %v", rec.Body.String(), err)
	}
	return body.Error.Code
}

func TestCreateWritesPendingWithCatalogPrice(t *testing.T) {
	store := newFakeStore()
	store.catalog["service-1"] = storage.CatalogService{
		ServiceID:       "service-1",
		DurationMinutes: 50,
		PriceCents:      9000,
		Currency:        "usd",
		IsActive:        true,
	}
	ob := &fakeOutbox{}
	h := newHandler(store, ob, Config{})

	start := time.Now().UTC().Add(72 * time.Hour).Truncate(time.Hour)
	body := `{"therapist_id":"therapist-1","service_id":"service-1","start_time":"` + start.Format(time.RFC3339) + `","patient_name":"Ana","patient_email":"ana@example.com"}`
	req := withActor(httptest.NewRequest(http.MethodPost, "/api/v1/public/book", strings.NewReader(body)), "patient-1", auth.RolePatient)
	rec := httptest.NewRecorder()

	h.Create(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	if store.created == nil {
		t.Fatal("appointment was not created")
	}
	if store.created.Status != model.StatusPending || store.created.PaymentStatus != model.PaymentPending {
		t.Fatalf("expected pending/pending, got %s/%s", store.created.Status, store.created.PaymentStatus)
	}
	if store.created.PriceCents != 9000 || store.created.Currency != "usd" {
		t.Fatalf("price not copied from catalog: %d %s", store.created.PriceCents, store.created.Currency)
	}
	if !store.created.EndTime.Equal(start.Add(50 * time.Minute)) {
		t.Fatalf("end time not derived from catalog duration: %s", store.created.EndTime)
	}
	if store.created.PatientID != "patient-1" {
		t.Fatalf("patient id not taken from actor: %q", store.created.PatientID)
	}
	if !store.tx.committed {
		t.Fatal("transaction was not committed")
	}
	types := ob.eventTypes()
	if len(types) == 0 || types[0] != outbox.EventAppointmentRequested {
		t.Fatalf("expected appointment requested event, got %v", types)
	}
	foundReminder := false
	for _, et := range types {
		if et == outbox.EventReminderRequested {
			foundReminder = true
		}
	}
	if !foundReminder {
		t.Fatalf("expected reminder event, got %v", types)
	}
}

func TestCreateOutsideAvailability(t *testing.T) {
	store := newFakeStore()
	store.catalog["service-1"] = storage.CatalogService{
		ServiceID: "service-1", DurationMinutes: 50, PriceCents: 9000,
		Currency: "usd", IsActive: true,
	}
	day := time.Now().UTC().Add(72 * time.Hour).Truncate(24 * time.Hour)
	sched := &fakeScheduler{cfg: scheduling.AvailabilityConfig{
		WindowsUTC: []scheduling.AvailabilityWindow{
			{StartUTC: day.Add(9 * time.Hour), EndUTC: day.Add(12 * time.Hour)},
		},
		DurationMinutes: 50,
	}}
	h := newHandler(store, &fakeOutbox{}, Config{Scheduling: sched})

	start := day.Add(20 * time.Hour)
	body := `{"therapist_id":"therapist-1","service_id":"service-1","start_time":"` + start.Format(time.RFC3339) + `","patient_name":"Ana","patient_email":"ana@example.com"}`
	req := withActor(httptest.NewRequest(http.MethodPost, "/api/v1/public/book", strings.NewReader(body)), "patient-1", auth.RolePatient)
	rec := httptest.NewRecorder()

	h.Create(rec, req)

	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d: %s", rec.Code, rec.Body.String())
	}
	if code := errorCode(t, rec); code != "outside_availability" {
		t.Fatalf("expected outside_availability, got %q", code)
	}
	if store.created != nil {
		t.Fatal("appointment must not be created outside availability")
	}
}

func TestCreateOverlapConflict(t *testing.T) {
	store := newFakeStore()
	store.catalog["service-1"] = storage.CatalogService{
		ServiceID: "service-1", DurationMinutes: 50, PriceCents: 9000,
		Currency: "usd", IsActive: true,
	}
	store.createErr = &pgconn.PgError{Code: "23P01"}
	h := newHandler(store, &fakeOutbox{}, Config{})

	start := time.Now().UTC().Add(72 * time.Hour).Truncate(time.Hour)
	body := `{"therapist_id":"therapist-1","service_id":"service-1","start_time":"` + start.Format(time.RFC3339) + `","patient_name":"Ana","patient_email":"ana@example.com"}`
	req := withActor(httptest.NewRequest(http.MethodPost, "/api/v1/public/book", strings.NewReader(body)), "patient-1", auth.RolePatient)
	rec := httptest.NewRecorder()

	h.Create(rec, req)

	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d: %s", rec.Code, rec.Body.String())
	}
	if code := errorCode(t, rec); code != "conflict" {
		t.Fatalf("expected conflict, got %q", code)
	}
}

func TestCreateCatalogUnavailable(t *testing.T) {
	store := newFakeStore()
	store.catalogErr = errors.New("connection refused")
	h := newHandler(store, &fakeOutbox{}, Config{})

	start := time.Now().UTC().Add(72 * time.Hour).Truncate(time.Hour)
	body := `{"therapist_id":"therapist-1","service_id":"service-1","start_time":"` + start.Format(time.RFC3339) + `","patient_name":"Ana","patient_email":"ana@example.com"}`
	req := withActor(httptest.NewRequest(http.MethodPost, "/api/v1/public/book", strings.NewReader(body)), "patient-1", auth.RolePatient)
	rec := httptest.NewRecorder()

	h.Create(rec, req)

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d: %s", rec.Code, rec.Body.String())
	}
	if code := errorCode(t, rec); code != "store_unavailable" {
		t.Fatalf("expected store_unavailable, got %q", code)
	}
}

func TestCancelForbiddenForForeignPatient(t *testing.T) {
	statuses := []string{
		model.StatusPending,
		model.StatusConfirmed,
		model.StatusCancelled,
		model.StatusCompleted,
	}
	for _, status := range statuses {
		store := newFakeStore()
		store.appointments["appointment-1"] = model.Appointment{
			ID: "appointment-1", PatientID: "patient-1", TherapistID: "therapist-1",
			Status: status, PaymentStatus: model.PaymentPending,
		}
		h := newHandler(store, &fakeOutbox{}, Config{})

		req := withActor(httptest.NewRequest(http.MethodPost, "/api/v1/appointments/cancel",
			strings.NewReader(`{"appointment_id":"appointment-1"}`)), "patient-2", auth.RolePatient)
		rec := httptest.NewRecorder()

		h.Cancel(rec, req)

		if rec.Code != http.StatusForbidden {
			t.Fatalf("status %s: expected 403, got %d", status, rec.Code)
		}
		if code := errorCode(t, rec); code != "forbidden" {
			t.Fatalf("status %s: expected forbidden, got %q", status, code)
		}
	}
}

func TestCancelTerminalStatusConflicts(t *testing.T) {
	for _, status := range []string{model.StatusCompleted, model.StatusNoShow} {
		store := newFakeStore()
		store.appointments["appointment-1"] = model.Appointment{
			ID: "appointment-1", PatientID: "patient-1", TherapistID: "therapist-1",
			Status: status, PaymentStatus: model.PaymentPaid,
		}
		h := newHandler(store, &fakeOutbox{}, Config{})

		req := withActor(httptest.NewRequest(http.MethodPost, "/api/v1/appointments/cancel",
			strings.NewReader(`{"appointment_id":"appointment-1"}`)), "patient-1", auth.RolePatient)
		rec := httptest.NewRecorder()

		h.Cancel(rec, req)

		if rec.Code != http.StatusConflict {
			t.Fatalf("status %s: expected 409, got %d", status, rec.Code)
		}
	}
}

func TestCancelInsideDeadlineChargesFullFee(t *testing.T) {
	store := newFakeStore()
	store.appointments["appointment-1"] = model.Appointment{
		ID: "appointment-1", PatientID: "patient-1", TherapistID: "therapist-1",
		ServiceID: "service-1", StartTime: time.Now().UTC().Add(2 * time.Hour),
		PriceCents: 9000, Status: model.StatusConfirmed,
		PaymentStatus: model.PaymentPaid, PaymentIntentID: "pi_123",
	}
	store.catalog["service-1"] = storage.CatalogService{
		ServiceID: "service-1", CancellationDeadlineHours: 24,
	}
	refunder := &fakeRefunder{}
	ob := &fakeOutbox{}
	h := newHandler(store, ob, Config{Refunder: refunder})

	req := withActor(httptest.NewRequest(http.MethodPost, "/api/v1/appointments/cancel",
		strings.NewReader(`{"appointment_id":"appointment-1","reason":"sick"}`)), "patient-1", auth.RolePatient)
	rec := httptest.NewRecorder()

	h.Cancel(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if store.cancelFee != 9000 {
		t.Fatalf("expected full fee 9000, got %d", store.cancelFee)
	}
	if refunder.calls != 0 {
		t.Fatalf("no refund expected when the fee consumes the payment, got %d calls", refunder.calls)
	}
	if store.payments["appointment-1"] != model.PaymentPartialRefund {
		t.Fatalf("expected partial_refund, got %q", store.payments["appointment-1"])
	}
	types := ob.eventTypes()
	if len(types) != 1 || types[0] != outbox.EventAppointmentCancelled {
		t.Fatalf("expected cancelled event, got %v", types)
	}
}

func TestCancelOutsideDeadlineRefundsInFull(t *testing.T) {
	store := newFakeStore()
	store.appointments["appointment-1"] = model.Appointment{
		ID: "appointment-1", PatientID: "patient-1", TherapistID: "therapist-1",
		ServiceID: "service-1", StartTime: time.Now().UTC().Add(96 * time.Hour),
		PriceCents: 9000, Status: model.StatusConfirmed,
		PaymentStatus: model.PaymentPaid, PaymentIntentID: "pi_123",
	}
	store.catalog["service-1"] = storage.CatalogService{
		ServiceID: "service-1", CancellationDeadlineHours: 24,
	}
	refunder := &fakeRefunder{}
	h := newHandler(store, &fakeOutbox{}, Config{Refunder: refunder})

	req := withActor(httptest.NewRequest(http.MethodPost, "/api/v1/appointments/cancel",
		strings.NewReader(`{"appointment_id":"appointment-1"}`)), "patient-1", auth.RolePatient)
	rec := httptest.NewRecorder()

	h.Cancel(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if store.cancelFee != 0 {
		t.Fatalf("expected no fee, got %d", store.cancelFee)
	}
	if refunder.calls != 1 || refunder.amountCents != 9000 || refunder.paymentIntentID != "pi_123" {
		t.Fatalf("expected full refund of 9000 on pi_123, got %+v", refunder)
	}
	if store.payments["appointment-1"] != model.PaymentRefunded {
		t.Fatalf("expected refunded, got %q", store.payments["appointment-1"])
	}
}

func TestCancelRefundFailureAborts(t *testing.T) {
	store := newFakeStore()
	store.appointments["appointment-1"] = model.Appointment{
		ID: "appointment-1", PatientID: "patient-1", TherapistID: "therapist-1",
		ServiceID: "service-1", StartTime: time.Now().UTC().Add(96 * time.Hour),
		PriceCents: 9000, Status: model.StatusConfirmed,
		PaymentStatus: model.PaymentPaid, PaymentIntentID: "pi_123",
	}
	refunder := &fakeRefunder{err: errors.New("stripe down")}
	h := newHandler(store, &fakeOutbox{}, Config{Refunder: refunder})

	req := withActor(httptest.NewRequest(http.MethodPost, "/api/v1/appointments/cancel",
		strings.NewReader(`{"appointment_id":"appointment-1"}`)), "patient-1", auth.RolePatient)
	rec := httptest.NewRecorder()

	h.Cancel(rec, req)

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d: %s", rec.Code, rec.Body.String())
	}
	if store.tx.committed {
		t.Fatal("transaction must not commit when the refund fails")
	}
}

func TestConfirmByOwningTherapist(t *testing.T) {
	store := newFakeStore()
	store.appointments["appointment-1"] = model.Appointment{
		ID: "appointment-1", PatientID: "patient-1", TherapistID: "therapist-1",
		Status: model.StatusPending, PaymentStatus: model.PaymentPending,
	}
	ob := &fakeOutbox{}
	h := newHandler(store, ob, Config{})

	req := withActor(httptest.NewRequest(http.MethodPost, "/api/v1/appointments/confirm",
		strings.NewReader(`{"appointment_id":"appointment-1"}`)), "therapist-1", auth.RoleTherapist)
	rec := httptest.NewRecorder()

	h.Confirm(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if store.statusUpdates["appointment-1"] != model.StatusConfirmed {
		t.Fatalf("expected confirmed, got %q", store.statusUpdates["appointment-1"])
	}
	// Confirming never touches payment status.
	if _, ok := store.payments["appointment-1"]; ok {
		t.Fatal("confirm must not change payment status")
	}
	types := ob.eventTypes()
	if len(types) != 1 || types[0] != outbox.EventAppointmentConfirmed {
		t.Fatalf("expected confirmed event, got %v", types)
	}
}

func TestConfirmByForeignTherapistForbidden(t *testing.T) {
	store := newFakeStore()
	store.appointments["appointment-1"] = model.Appointment{
		ID: "appointment-1", PatientID: "patient-1", TherapistID: "therapist-1",
		Status: model.StatusPending,
	}
	h := newHandler(store, &fakeOutbox{}, Config{})

	req := withActor(httptest.NewRequest(http.MethodPost, "/api/v1/appointments/confirm",
		strings.NewReader(`{"appointment_id":"appointment-1"}`)), "therapist-2", auth.RoleTherapist)
	rec := httptest.NewRecorder()

	h.Confirm(rec, req)

	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rec.Code)
	}
}

func TestConfirmFromTerminalStatusConflicts(t *testing.T) {
	store := newFakeStore()
	store.appointments["appointment-1"] = model.Appointment{
		ID: "appointment-1", PatientID: "patient-1", TherapistID: "therapist-1",
		Status: model.StatusCancelled,
	}
	h := newHandler(store, &fakeOutbox{}, Config{})

	req := withActor(httptest.NewRequest(http.MethodPost, "/api/v1/appointments/confirm",
		strings.NewReader(`{"appointment_id":"appointment-1"}`)), "therapist-1", auth.RoleTherapist)
	rec := httptest.NewRecorder()

	h.Confirm(rec, req)

	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", rec.Code)
	}
	if code := errorCode(t, rec); code != "conflict" {
		t.Fatalf("expected conflict, got %q", code)
	}
}

func TestSlotsStoreErrorIsNotAnEmptyList(t *testing.T) {
	store := newFakeStore()
	store.bookedErr = errors.New("connection refused")
	day := time.Now().UTC().Add(72 * time.Hour).Truncate(24 * time.Hour)
	sched := &fakeScheduler{cfg: scheduling.AvailabilityConfig{
		WindowsUTC: []scheduling.AvailabilityWindow{
			{StartUTC: day.Add(9 * time.Hour), EndUTC: day.Add(17 * time.Hour)},
		},
		DurationMinutes: 50, SlotStepMinutes: 60,
	}}
	h := newHandler(store, &fakeOutbox{}, Config{Scheduling: sched})

	req := httptest.NewRequest(http.MethodGet,
		"/api/v1/public/slots?therapist_id=therapist-1&service_id=service-1&date="+day.Format("2006-01-02"), nil)
	rec := httptest.NewRecorder()

	h.Slots(rec, req)

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d: %s", rec.Code, rec.Body.String())
	}
	if code := errorCode(t, rec); code != "store_unavailable" {
		t.Fatalf("expected store_unavailable, got %q", code)
	}
}

func TestSlotsMarksBookedSlotUnavailable(t *testing.T) {
	day := time.Now().UTC().Add(72 * time.Hour).Truncate(24 * time.Hour)
	store := newFakeStore()
	store.bookedIntervals = []model.Appointment{
		{StartTime: day.Add(11 * time.Hour), EndTime: day.Add(12 * time.Hour)},
	}
	sched := &fakeScheduler{cfg: scheduling.AvailabilityConfig{
		WindowsUTC: []scheduling.AvailabilityWindow{
			{StartUTC: day.Add(9 * time.Hour), EndUTC: day.Add(17 * time.Hour)},
		},
		DurationMinutes: 60, SlotStepMinutes: 60,
	}}
	h := newHandler(store, &fakeOutbox{}, Config{Scheduling: sched})

	req := httptest.NewRequest(http.MethodGet,
		"/api/v1/public/slots?therapist_id=therapist-1&service_id=service-1&date="+day.Format("2006-01-02"), nil)
	rec := httptest.NewRecorder()

	h.Slots(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var slots []slotItem
	if err := json.Unmarshal(rec.Body.Bytes(), &slots); err != nil {
		t.Fatalf("invalid body: %v", err)
	}
	if len(slots) != 8 {
		t.Fatalf("expected 8 slots, got %d", len(slots))
	}
	blockedStart := day.Add(11 * time.Hour).Format(time.RFC3339)
	for _, s := range slots {
		if s.StartTime == blockedStart && s.Available {
			t.Fatal("booked slot reported available")
		}
		if s.StartTime != blockedStart && !s.Available {
			t.Fatalf("free slot %s reported unavailable", s.StartTime)
		}
	}
}

func TestSlotsClosedDayIsEmptyList(t *testing.T) {
	store := newFakeStore()
	sched := &fakeScheduler{cfg: scheduling.AvailabilityConfig{DurationMinutes: 50}}
	h := newHandler(store, &fakeOutbox{}, Config{Scheduling: sched})

	req := httptest.NewRequest(http.MethodGet,
		"/api/v1/public/slots?therapist_id=therapist-1&service_id=service-1&date=2026-09-07", nil)
	rec := httptest.NewRecorder()

	h.Slots(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if strings.TrimSpace(rec.Body.String()) != "[]" {
		t.Fatalf("expected empty list, got %s", rec.Body.String())
	}
}
