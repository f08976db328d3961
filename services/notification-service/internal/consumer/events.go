package consumer

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/sessionly-app/sessionly/libs/db"
	"github.com/sessionly-app/sessionly/libs/kafkax"
	"github.com/sessionly-app/sessionly/services/notification-service/internal/email"
	"github.com/sessionly-app/sessionly/services/notification-service/internal/jobs"
	"github.com/sessionly-app/sessionly/services/notification-service/internal/notify"
	"github.com/sessionly-app/sessionly/services/notification-service/internal/sms"
	"github.com/sessionly-app/sessionly/services/notification-service/internal/storage"
)

// Events turns booking-service Kafka events into notifications. Lifecycle
// events send immediately; reminder requests become durable jobs for the
// worker.
type Events struct {
	pool          *db.Pool
	jobs          *jobs.Repository
	notifications *storage.Repository
	email         email.Sender
	sms           sms.Sender
	logger        *slog.Logger
}

func NewEvents(pool *db.Pool, jobsRepo *jobs.Repository, notifications *storage.Repository, emailSender email.Sender, smsSender sms.Sender, logger *slog.Logger) *Events {
	return &Events{
		pool:          pool,
		jobs:          jobsRepo,
		notifications: notifications,
		email:         emailSender,
		sms:           smsSender,
		logger:        logger,
	}
}

type appointmentEventPayload struct {
	AppointmentID string `json:"appointment_id"`
	PatientID     string `json:"patient_id"`
	PatientEmail  string `json:"patient_email"`
	PatientPhone  string `json:"patient_phone"`
	StartTime     string `json:"start_time"`
	Reason        string `json:"reason"`
}

// AppointmentHandler handles a lifecycle topic. kind is requested, confirmed
// or cancelled.
func (e *Events) AppointmentHandler(kind string) kafkax.Handler {
	return func(ctx context.Context, msg kafka.Message) error {
		var payload appointmentEventPayload
		if err := json.Unmarshal(msg.Value, &payload); err != nil {
			e.logger.Error("invalid appointment event payload", "err", err)
			return nil
		}
		if payload.AppointmentID == "" || payload.PatientEmail == "" {
			e.logger.Warn("appointment event missing appointment_id or patient_email")
			return nil
		}

		data := notify.TemplateData{"reason": payload.Reason}
		subject, body := notify.AppointmentMessage(kind, payload.AppointmentID, payload.StartTime, data)

		status := "sent"
		if err := e.email.Send(payload.PatientEmail, subject, body); err != nil {
			status = "failed"
			e.logger.Error("email send failed", "err", err, "recipient", payload.PatientEmail)
		}
		if err := e.notifications.Insert(ctx, e.pool, storage.Notification{
			AppointmentID: payload.AppointmentID,
			PatientID:     payload.PatientID,
			Channel:       "email",
			Recipient:     payload.PatientEmail,
			Payload:       map[string]any{"kind": kind, "start_time": payload.StartTime},
			Status:        status,
		}); err != nil {
			return err
		}

		if phone := strings.TrimSpace(payload.PatientPhone); phone != "" {
			status = "sent"
			if err := e.sms.Send(ctx, phone, body); err != nil {
				status = "failed"
				e.logger.Error("sms send failed", "err", err, "recipient", phone)
			}
			if err := e.notifications.Insert(ctx, e.pool, storage.Notification{
				AppointmentID: payload.AppointmentID,
				PatientID:     payload.PatientID,
				Channel:       "sms",
				Recipient:     phone,
				Payload:       map[string]any{"kind": kind, "start_time": payload.StartTime},
				Status:        status,
			}); err != nil {
				return err
			}
		}

		e.logger.Info("appointment event processed", "kind", kind, "appointment_id", payload.AppointmentID)
		return nil
	}
}

type reminderRequestedPayload struct {
	AppointmentID string         `json:"appointment_id"`
	PatientID     string         `json:"patient_id"`
	Channel       string         `json:"channel"`
	Recipient     string         `json:"recipient"`
	RemindAt      string         `json:"remind_at"`
	TemplateData  map[string]any `json:"template_data"`
}

// ReminderRequested stores the reminder as a durable job keyed by the event
// id, so consumer group rebalances cannot double-schedule it.
func (e *Events) ReminderRequested(ctx context.Context, msg kafka.Message) error {
	var payload reminderRequestedPayload
	if err := json.Unmarshal(msg.Value, &payload); err != nil {
		e.logger.Error("invalid reminder payload", "err", err)
		return nil
	}
	if payload.AppointmentID == "" || payload.Channel == "" || payload.Recipient == "" || payload.RemindAt == "" {
		e.logger.Warn("reminder event missing fields")
		return nil
	}
	remindAt, err := time.Parse(time.RFC3339, payload.RemindAt)
	if err != nil {
		e.logger.Error("invalid remind_at", "err", err)
		return nil
	}

	meta := kafkax.ExtractEventMeta(msg)
	idempotencyKey := meta.EventID
	if idempotencyKey == "" {
		idempotencyKey = payload.AppointmentID + ":" + payload.Channel + ":" + payload.RemindAt
	}

	tx, err := e.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := e.jobs.Insert(ctx, tx, jobs.Job{
		IdempotencyKey: idempotencyKey,
		AppointmentID:  payload.AppointmentID,
		PatientID:      payload.PatientID,
		Channel:        payload.Channel,
		Recipient:      payload.Recipient,
		RemindAt:       remindAt,
		TemplateData:   payload.TemplateData,
	}); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return err
	}

	e.logger.Info("reminder scheduled", "appointment_id", payload.AppointmentID, "channel", payload.Channel, "remind_at", payload.RemindAt)
	return nil
}
