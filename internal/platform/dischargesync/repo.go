package dischargesync

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type Repository interface {
	// Enqueue inserts a pending event. Called inside the discharge
	// transaction so the event commits or rolls back with it.
	Enqueue(ctx context.Context, event *Event) error
	// ClaimDue claims up to limit pending events whose next attempt is due,
	// skipping rows another dispatcher holds, and pushes each claimed event's
	// next attempt out by lease so it stays hidden from rival claims while
	// delivery runs outside the claiming transaction.
	ClaimDue(ctx context.Context, limit int, lease time.Duration) ([]*Event, error)
	MarkDelivered(ctx context.Context, id uuid.UUID) error
	MarkAttemptFailed(ctx context.Context, id uuid.UUID, attempts int, nextAttemptAt time.Time, lastError string, terminal bool) error
	List(ctx context.Context, status string, limit, offset int) ([]*Event, int, error)
}
