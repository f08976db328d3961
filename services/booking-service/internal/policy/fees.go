package policy

import (
	"time"

	"github.com/sessionly-app/sessionly/libs/auth"
)

// CancellationFee computes the fee charged when an appointment is cancelled.
// Patients cancelling inside the service's deadline window pay the full price;
// outside it they pay nothing. Therapist and admin cancellations are always
// free.
func CancellationFee(cancellerRole string, start time.Time, deadlineHours int, priceCents int64, now time.Time) int64 {
	if cancellerRole != auth.RolePatient {
		return 0
	}
	if deadlineHours <= 0 || priceCents <= 0 {
		return 0
	}
	deadline := start.Add(-time.Duration(deadlineHours) * time.Hour)
	if now.Before(deadline) {
		return 0
	}
	return priceCents
}
