package dischargesync

import (
	"context"
	"fmt"
)

// Service is the outbox surface used by the admission lifecycle: Enqueue is
// called inside the discharge transaction, List backs the operator endpoint.
type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

func (s *Service) Enqueue(ctx context.Context, payload DischargePayload) error {
	if err := s.repo.Enqueue(ctx, &Event{
		AdmissionID: payload.AdmissionID,
		Payload:     payload,
	}); err != nil {
		return fmt.Errorf("enqueue discharge event: %w", err)
	}
	return nil
}

func (s *Service) List(ctx context.Context, status string, limit, offset int) ([]*Event, int, error) {
	if status != "" && status != StatusPending && status != StatusDelivered && status != StatusFailed {
		return nil, 0, fmt.Errorf("invalid status filter: %s", status)
	}
	return s.repo.List(ctx, status, limit, offset)
}
