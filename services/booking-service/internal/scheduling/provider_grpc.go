//go:build protogen

package scheduling

import (
	"context"
	"time"

	"github.com/sessionly-app/sessionly/libs/grpcx"
	practicev1 "github.com/sessionly-app/sessionly/protos/gen/practice/v1"
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

// Provider answers which UTC windows are bookable for (therapist, service,
// date). Backed by practice-service over gRPC.
type Provider interface {
	GetAvailabilityConfig(ctx context.Context, therapistID, serviceID string, date string) (AvailabilityConfig, error)
}

type grpcProvider struct {
	client practicev1.PracticeServiceClient
}

func NewProvider(addr string) (Provider, error) {
	if addr == "" {
		return nil, nil
	}
	conn, err := grpcx.Dial(context.Background(), addr, grpcx.DialOptions{Timeout: 3 * time.Second})
	if err != nil {
		return nil, err
	}
	return &grpcProvider{client: practicev1.NewPracticeServiceClient(conn)}, nil
}

func (p *grpcProvider) GetAvailabilityConfig(ctx context.Context, therapistID, serviceID string, date string) (AvailabilityConfig, error) {
	resp, err := p.client.GetAvailabilityConfig(ctx, &practicev1.AvailabilityConfigRequest{
		TherapistId: therapistID,
		ServiceId:   serviceID,
		Date:        date,
	})
	if err != nil {
		return AvailabilityConfig{}, err
	}
	cfg := AvailabilityConfig{
		DurationMinutes:           int(resp.GetDurationMinutes()),
		SlotStepMinutes:           int(resp.GetSlotStepMinutes()),
		PriceCents:                resp.GetPriceCents(),
		Currency:                  resp.GetCurrency(),
		CancellationDeadlineHours: int(resp.GetCancellationDeadlineHours()),
		Timezone:                  resp.GetTimezone(),
	}
	for _, w := range resp.GetWindowsUtc() {
		if w.GetStartUtc() == nil || w.GetEndUtc() == nil {
			continue
		}
		start := w.GetStartUtc().AsTime()
		end := w.GetEndUtc().AsTime()
		if end.After(start) {
			cfg.WindowsUTC = append(cfg.WindowsUTC, AvailabilityWindow{StartUTC: start, EndUTC: end})
		}
	}
	return cfg, nil
}
