package storage

import (
	"context"
	"encoding/json"

	"github.com/jackc/pgx/v5/pgconn"
)

type Notification struct {
	AppointmentID string
	PatientID     string
	Channel       string
	Recipient     string
	Payload       map[string]any
	Status        string
}

// Execer is the write surface shared by *db.Pool and pgx.Tx. Callers that
// also write an outbox event pass their transaction so both rows commit
// together.
type Execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

type Repository struct{}

func NewRepository() *Repository {
	return &Repository{}
}

func (r *Repository) Insert(ctx context.Context, db Execer, n Notification) error {
	payload, err := json.Marshal(n.Payload)
	if err != nil {
		return err
	}

	_, err = db.Exec(ctx, `
		INSERT INTO notifications (appointment_id, patient_id, channel, recipient, payload, status)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, n.AppointmentID, n.PatientID, n.Channel, n.Recipient, payload, n.Status)
	return err
}
