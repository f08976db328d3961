//go:build protogen

package grpcserver

import (
	"context"

	"github.com/sessionly-app/sessionly/libs/config"
	practicev1 "github.com/sessionly-app/sessionly/protos/gen/practice/v1"
	"github.com/sessionly-app/sessionly/services/practice-service/internal/storage"
	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/timestamppb"
)

type server struct {
	practicev1.UnimplementedPracticeServiceServer
	repo *storage.Repository
}

func Register(grpcServer *grpc.Server, repo *storage.Repository) {
	practicev1.RegisterPracticeServiceServer(grpcServer, &server{repo: repo})
}

// GetAvailabilityConfig answers booking-service's question: which UTC windows
// are bookable for (therapist, service, date), at what duration, price and
// step. Missing data degrades to zero windows so the caller renders an empty
// slot list instead of failing the request.
func (s *server) GetAvailabilityConfig(ctx context.Context, req *practicev1.AvailabilityConfigRequest) (*practicev1.AvailabilityConfigResponse, error) {
	resp := &practicev1.AvailabilityConfigResponse{
		TherapistId:     req.GetTherapistId(),
		ServiceId:       req.GetServiceId(),
		Timezone:        "UTC",
		DurationMinutes: 50,
		SlotStepMinutes: int32(config.Int("SLOT_STEP_MINUTES", 60)),
		Currency:        "usd",
	}
	if req.GetTherapistId() == "" || req.GetServiceId() == "" || req.GetDate() == "" {
		return resp, nil
	}

	svc, err := s.repo.GetService(ctx, req.GetServiceId())
	if err != nil || !svc.IsActive {
		return resp, nil
	}
	resp.DurationMinutes = int32(svc.DurationMins)
	resp.PriceCents = svc.PriceCents
	resp.Currency = svc.Currency
	resp.CancellationDeadlineHours = int32(svc.CancellationDeadlineHours)

	timezone, windows, err := s.repo.ResolveDayWindows(ctx, req.GetTherapistId(), req.GetDate())
	if err != nil {
		return resp, nil
	}
	resp.Timezone = timezone
	for _, w := range windows {
		resp.WindowsUtc = append(resp.WindowsUtc, &practicev1.AvailabilityWindow{
			StartUtc: timestamppb.New(w.Start),
			EndUtc:   timestamppb.New(w.End),
		})
	}
	return resp, nil
}
