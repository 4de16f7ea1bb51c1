package sequence

import (
	"context"
)

type Repository interface {
	Create(ctx context.Context, seq *Sequence) error
	GetByType(ctx context.Context, seqType string) (*Sequence, error)
	// GetByTypeForUpdate locks the sequence row for the remainder of the
	// current unit of work so concurrent issuers serialize on it.
	GetByTypeForUpdate(ctx context.Context, seqType string) (*Sequence, error)
	UpdateValue(ctx context.Context, seqType string, value int64, year int) error
	List(ctx context.Context) ([]*Sequence, error)
}
