package sequence

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/adt/adt/internal/platform/db"
)

type repoPG struct {
	pool *pgxpool.Pool
}

func NewRepo(pool *pgxpool.Pool) Repository {
	return &repoPG{pool: pool}
}

type querier interface {
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
}

func (r *repoPG) conn(ctx context.Context) querier {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

const seqCols = `id, seq_type, prefix, current_value, year, width, reset_yearly, created_at, updated_at`

func (r *repoPG) Create(ctx context.Context, seq *Sequence) error {
	seq.ID = uuid.New()
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO id_sequences (id, seq_type, prefix, current_value, year, width, reset_yearly)
		VALUES ($1,$2,$3,$4,$5,$6,$7)`,
		seq.ID, seq.SeqType, seq.Prefix, seq.CurrentValue, seq.Year, seq.Width, seq.ResetYearly,
	)
	return err
}

func (r *repoPG) GetByType(ctx context.Context, seqType string) (*Sequence, error) {
	return scanSeq(r.conn(ctx).QueryRow(ctx,
		`SELECT `+seqCols+` FROM id_sequences WHERE seq_type = $1`, seqType))
}

func (r *repoPG) GetByTypeForUpdate(ctx context.Context, seqType string) (*Sequence, error) {
	return scanSeq(r.conn(ctx).QueryRow(ctx,
		`SELECT `+seqCols+` FROM id_sequences WHERE seq_type = $1 FOR UPDATE`, seqType))
}

func (r *repoPG) UpdateValue(ctx context.Context, seqType string, value int64, year int) error {
	_, err := r.conn(ctx).Exec(ctx, `
		UPDATE id_sequences SET current_value = $2, year = $3, updated_at = NOW()
		WHERE seq_type = $1`,
		seqType, value, year,
	)
	return err
}

func (r *repoPG) List(ctx context.Context) ([]*Sequence, error) {
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+seqCols+` FROM id_sequences ORDER BY seq_type`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var seqs []*Sequence
	for rows.Next() {
		var s Sequence
		if err := rows.Scan(&s.ID, &s.SeqType, &s.Prefix, &s.CurrentValue, &s.Year,
			&s.Width, &s.ResetYearly, &s.CreatedAt, &s.UpdatedAt); err != nil {
			return nil, err
		}
		seqs = append(seqs, &s)
	}
	return seqs, rows.Err()
}

func scanSeq(row pgx.Row) (*Sequence, error) {
	var s Sequence
	err := row.Scan(&s.ID, &s.SeqType, &s.Prefix, &s.CurrentValue, &s.Year,
		&s.Width, &s.ResetYearly, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &s, nil
}
