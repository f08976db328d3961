package jobs

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/sessionly-app/sessionly/libs/db"
	otelx "github.com/sessionly-app/sessionly/libs/otel"
	"github.com/sessionly-app/sessionly/services/notification-service/internal/email"
	"github.com/sessionly-app/sessionly/services/notification-service/internal/notify"
	"github.com/sessionly-app/sessionly/services/notification-service/internal/outbox"
	"github.com/sessionly-app/sessionly/services/notification-service/internal/sms"
	"github.com/sessionly-app/sessionly/services/notification-service/internal/storage"
)

// Worker fires due reminder jobs: send, record the notification, emit the
// outcome event. Failed sends retry with a fixed backoff until max attempts.
type Worker struct {
	pool          *db.Pool
	repo          *Repository
	notifications *storage.Repository
	outbox        *outbox.Repository
	email         email.Sender
	sms           sms.Sender
	logger        *slog.Logger
	interval      time.Duration
	batchSize     int
	backoff       time.Duration
}

type WorkerConfig struct {
	Interval  time.Duration
	BatchSize int
	Backoff   time.Duration
}

func NewWorker(pool *db.Pool, repo *Repository, notifications *storage.Repository, outboxRepo *outbox.Repository, emailSender email.Sender, smsSender sms.Sender, logger *slog.Logger, cfg WorkerConfig) *Worker {
	if cfg.Interval <= 0 {
		cfg.Interval = 2 * time.Second
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 50
	}
	if cfg.Backoff <= 0 {
		cfg.Backoff = 1 * time.Minute
	}
	return &Worker{
		pool:          pool,
		repo:          repo,
		notifications: notifications,
		outbox:        outboxRepo,
		email:         emailSender,
		sms:           smsSender,
		logger:        logger,
		interval:      cfg.Interval,
		batchSize:     cfg.BatchSize,
		backoff:       cfg.Backoff,
	}
}

func (w *Worker) Run(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := w.processBatch(ctx); err != nil {
				w.logger.Error("reminder batch failed", "err", err)
			}
		}
	}
}

func (w *Worker) processBatch(ctx context.Context) error {
	tx, err := w.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	due, err := w.repo.FetchDue(ctx, tx, w.batchSize)
	if err != nil {
		return err
	}
	if len(due) == 0 {
		return tx.Commit(ctx)
	}

	var processed []int64
	for _, job := range due {
		jobCtx := otelx.ContextWithTraceContext(ctx, job.Traceparent, job.Tracestate)

		if err := w.send(jobCtx, job); err != nil {
			attempts := job.Attempts + 1
			w.logger.Error("reminder send failed", "err", err, "appointment_id", job.AppointmentID, "channel", job.Channel, "attempt", attempts)
			nextRunAt := time.Now().UTC().Add(w.backoff)
			if err := w.repo.MarkFailed(ctx, tx, job.ID, attempts, job.MaxAttempts, nextRunAt, err.Error()); err != nil {
				return err
			}
			if attempts >= job.MaxAttempts {
				if err := w.recordOutcome(jobCtx, tx, job, "failed", err.Error()); err != nil {
					return err
				}
			}
			continue
		}

		if err := w.recordOutcome(jobCtx, tx, job, "sent", ""); err != nil {
			return err
		}
		processed = append(processed, job.ID)
	}

	if err := w.repo.MarkProcessed(ctx, tx, processed); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (w *Worker) send(ctx context.Context, job Job) error {
	subject, body := notify.ReminderMessage(job.AppointmentID, job.RemindAt.UTC().Format(time.RFC3339), notify.TemplateData(job.TemplateData))
	switch strings.ToLower(job.Channel) {
	case "sms":
		return w.sms.Send(ctx, job.Recipient, body)
	default:
		return w.email.Send(job.Recipient, subject, body)
	}
}

func (w *Worker) recordOutcome(ctx context.Context, tx pgx.Tx, job Job, status, reason string) error {
	// Notification row and outcome event commit with the batch transaction.
	if err := w.notifications.Insert(ctx, tx, storage.Notification{
		AppointmentID: job.AppointmentID,
		PatientID:     job.PatientID,
		Channel:       job.Channel,
		Recipient:     job.Recipient,
		Payload:       job.TemplateData,
		Status:        status,
	}); err != nil {
		return err
	}

	eventType := outbox.EventNotificationSent
	fields := map[string]any{
		"appointment_id": job.AppointmentID,
		"patient_id":     job.PatientID,
		"channel":        job.Channel,
		"remind_at":      job.RemindAt.UTC().Format(time.RFC3339),
	}
	if status == "failed" {
		eventType = outbox.EventNotificationFailed
		fields["error_reason"] = reason
		fields["failed_at"] = time.Now().UTC().Format(time.RFC3339)
	} else {
		fields["sent_at"] = time.Now().UTC().Format(time.RFC3339)
	}
	payload, err := json.Marshal(fields)
	if err != nil {
		return err
	}
	return w.outbox.Insert(ctx, tx, outbox.Event{
		AggregateType: "notification",
		AggregateID:   job.AppointmentID,
		EventType:     eventType,
		Payload:       payload,
	})
}
