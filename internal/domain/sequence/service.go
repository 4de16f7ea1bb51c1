package sequence

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/adt/adt/internal/platform/db"
)

// ErrSequenceExhausted signals that the next counter value no longer fits the
// configured width. Issuing must fail loudly rather than truncate.
var ErrSequenceExhausted = errors.New("sequence exhausted")

type Service struct {
	repo Repository
	txm  *db.TxManager
}

func NewService(repo Repository, txm *db.TxManager) *Service {
	return &Service{repo: repo, txm: txm}
}

// Register creates a new sequence type. The counter starts at zero; the first
// issued value is 1.
func (s *Service) Register(ctx context.Context, seq *Sequence) error {
	seq.SeqType = strings.ToLower(strings.TrimSpace(seq.SeqType))
	if seq.SeqType == "" {
		return fmt.Errorf("seq_type is required")
	}
	if seq.Prefix == "" {
		return fmt.Errorf("prefix is required")
	}
	if seq.Width <= 0 {
		seq.Width = DefaultWidth
	}
	if seq.Width > 12 {
		return fmt.Errorf("width must be at most 12, got %d", seq.Width)
	}
	if seq.Year == 0 {
		seq.Year = time.Now().UTC().Year()
	}
	seq.CurrentValue = 0
	return s.repo.Create(ctx, seq)
}

func (s *Service) List(ctx context.Context) ([]*Sequence, error) {
	return s.repo.List(ctx)
}

func (s *Service) Get(ctx context.Context, seqType string) (*Sequence, error) {
	return s.repo.GetByType(ctx, seqType)
}

// Next issues the next formatted identifier for the sequence type. The
// sequence row is locked for the duration of the unit of work, so concurrent
// issuers serialize and never observe the same pre-increment value. The
// yearly reset happens under the same lock. When the caller is already inside
// a transaction, issuance joins it, so a rolled-back caller never leaks an
// identifier (gaps in the counter are acceptable, duplicates are not).
func (s *Service) Next(ctx context.Context, seqType string) (string, error) {
	var formatted string
	err := s.txm.Run(ctx, func(ctx context.Context) error {
		seq, err := s.repo.GetByTypeForUpdate(ctx, seqType)
		if err != nil {
			return fmt.Errorf("sequence %q: %w", seqType, err)
		}

		year := time.Now().UTC().Year()
		if seq.ResetYearly && seq.Year != year {
			seq.Year = year
			seq.CurrentValue = 0
		}

		next := seq.CurrentValue + 1
		if next > seq.MaxValue() {
			return fmt.Errorf("sequence %q at width %d: %w", seqType, seq.Width, ErrSequenceExhausted)
		}

		if err := s.repo.UpdateValue(ctx, seq.SeqType, next, seq.Year); err != nil {
			return fmt.Errorf("advance sequence %q: %w", seqType, err)
		}

		formatted = seq.Format(next)
		return nil
	})
	if err != nil {
		return "", err
	}
	return formatted, nil
}
