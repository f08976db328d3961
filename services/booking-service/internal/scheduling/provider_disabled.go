//go:build !protogen

package scheduling

import (
	"context"
	"time"
)

type AvailabilityConfig struct {
	WindowsUTC                []AvailabilityWindow
	DurationMinutes           int
	SlotStepMinutes           int
	PriceCents                int64
	Currency                  string
	CancellationDeadlineHours int
	Timezone                  string
}

type AvailabilityWindow struct {
	StartUTC time.Time
	EndUTC   time.Time
}

type Provider interface {
	GetAvailabilityConfig(ctx context.Context, therapistID, serviceID string, date string) (AvailabilityConfig, error)
}

func NewProvider(_ string) (Provider, error) {
	return nil, nil
}
