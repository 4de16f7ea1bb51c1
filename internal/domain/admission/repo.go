package admission

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type Repository interface {
	Create(ctx context.Context, adm *Admission) error
	GetByID(ctx context.Context, id uuid.UUID) (*Admission, error)
	GetByNumber(ctx context.Context, number string) (*Admission, error)
	List(ctx context.Context, filter Filter, limit, offset int) ([]*Admission, int, error)

	// Status transitions are compare-and-swap writes guarded by the
	// expected current status; each returns false when no row matched,
	// meaning the status moved underneath the caller.
	MarkPendingDischarge(ctx context.Context, id uuid.UUID, summary string, expectedDate *time.Time) (bool, error)
	MarkActive(ctx context.Context, id uuid.UUID) (bool, error)
	Finalize(ctx context.Context, id uuid.UUID, terminalStatus string, dischargeDate time.Time,
		dischargeType, condition, followUp string, lengthOfStayDays int) (bool, error)

	// Allocation ledger
	CreateAssignment(ctx context.Context, assignment *BedAssignment) error
	GetCurrentAssignment(ctx context.Context, admissionID uuid.UUID) (*BedAssignment, error)
	CloseAssignment(ctx context.Context, assignmentID uuid.UUID, releasedBy string, transferReason *string) error
	ListAssignments(ctx context.Context, admissionID uuid.UUID) ([]*BedAssignment, error)
}
