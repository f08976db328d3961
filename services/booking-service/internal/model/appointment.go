package model

import "time"

// Appointment lifecycle statuses.
const (
	StatusPending   = "pending"
	StatusConfirmed = "confirmed"
	StatusCancelled = "cancelled"
	StatusCompleted = "completed"
	StatusNoShow    = "no_show"
)

// Payment statuses, tracked independently of the lifecycle.
const (
	PaymentPending       = "pending"
	PaymentPaid          = "paid"
	PaymentRefunded      = "refunded"
	PaymentPartialRefund = "partial_refund"
)

type Appointment struct {
	ID                   string
	PatientID            string
	PatientName          string
	PatientEmail         string
	PatientPhone         string
	TherapistID          string
	ServiceID            string
	StartTime            time.Time
	EndTime              time.Time
	PriceCents           int64
	Currency             string
	Status               string
	PaymentStatus        string
	PaymentIntentID      string
	Notes                string
	CancellationReason   string
	CancellationFeeCents int64
	CancelledAt          *time.Time
	CreatedAt            time.Time
}

// IsTerminal reports whether the status admits no further transitions.
func IsTerminal(status string) bool {
	switch status {
	case StatusCancelled, StatusCompleted, StatusNoShow:
		return true
	}
	return false
}

// CanTransition reports whether the lifecycle permits moving between the two
// statuses. Terminal statuses reject everything.
func CanTransition(from, to string) bool {
	switch to {
	case StatusConfirmed:
		return from == StatusPending
	case StatusCancelled:
		return from == StatusPending || from == StatusConfirmed
	case StatusCompleted, StatusNoShow:
		return from == StatusConfirmed
	}
	return false
}
