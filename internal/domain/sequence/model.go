package sequence

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Sequence maps to the id_sequences table. One row per sequence type; the
// row is the single serialization point for issuing that type's identifiers.
type Sequence struct {
	ID           uuid.UUID `db:"id" json:"id"`
	SeqType      string    `db:"seq_type" json:"seq_type"`
	Prefix       string    `db:"prefix" json:"prefix"`
	CurrentValue int64     `db:"current_value" json:"current_value"`
	Year         int       `db:"year" json:"year"`
	Width        int       `db:"width" json:"width"`
	ResetYearly  bool      `db:"reset_yearly" json:"reset_yearly"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time `db:"updated_at" json:"updated_at"`
}

// DefaultWidth is the zero-padded width used when a sequence is registered
// without one.
const DefaultWidth = 6

// MaxValue returns the largest counter value that still fits the configured
// width without truncation.
func (s *Sequence) MaxValue() int64 {
	max := int64(1)
	for i := 0; i < s.Width; i++ {
		max *= 10
	}
	return max - 1
}

// Format renders a counter value as the issued identifier,
// e.g. ADM-2026-000042.
func (s *Sequence) Format(value int64) string {
	return fmt.Sprintf("%s-%d-%0*d", s.Prefix, s.Year, s.Width, value)
}
