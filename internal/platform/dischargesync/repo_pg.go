package dischargesync

import (
	"context"
	"fmt"
	"time"

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

const eventCols = `id, admission_id, payload, status, attempts, next_attempt_at, last_error, created_at, delivered_at`

func (r *repoPG) Enqueue(ctx context.Context, event *Event) error {
	event.ID = uuid.New()
	event.Status = StatusPending
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO discharge_outbox (id, admission_id, payload, status, next_attempt_at)
		VALUES ($1,$2,$3,$4,NOW())`,
		event.ID, event.AdmissionID, event.Payload, event.Status,
	)
	return err
}

func (r *repoPG) ClaimDue(ctx context.Context, limit int, lease time.Duration) ([]*Event, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		UPDATE discharge_outbox
		SET next_attempt_at = NOW() + make_interval(secs => $2)
		WHERE id IN (
			SELECT id FROM discharge_outbox
			WHERE status = 'pending' AND next_attempt_at <= NOW()
			ORDER BY next_attempt_at
			LIMIT $1
			FOR UPDATE SKIP LOCKED
		)
		RETURNING `+eventCols,
		limit, lease.Seconds())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []*Event
	for rows.Next() {
		var e Event
		if err := rows.Scan(&e.ID, &e.AdmissionID, &e.Payload, &e.Status, &e.Attempts,
			&e.NextAttemptAt, &e.LastError, &e.CreatedAt, &e.DeliveredAt); err != nil {
			return nil, err
		}
		events = append(events, &e)
	}
	return events, rows.Err()
}

func (r *repoPG) MarkDelivered(ctx context.Context, id uuid.UUID) error {
	_, err := r.conn(ctx).Exec(ctx, `
		UPDATE discharge_outbox
		SET status = 'delivered', delivered_at = NOW(), last_error = NULL
		WHERE id = $1`, id)
	return err
}

func (r *repoPG) MarkAttemptFailed(ctx context.Context, id uuid.UUID, attempts int, nextAttemptAt time.Time, lastError string, terminal bool) error {
	status := StatusPending
	if terminal {
		status = StatusFailed
	}
	_, err := r.conn(ctx).Exec(ctx, `
		UPDATE discharge_outbox
		SET status = $2, attempts = $3, next_attempt_at = $4, last_error = $5
		WHERE id = $1`,
		id, status, attempts, nextAttemptAt, lastError)
	return err
}

func (r *repoPG) List(ctx context.Context, status string, limit, offset int) ([]*Event, int, error) {
	where := ``
	args := []interface{}{}
	if status != "" {
		where = ` WHERE status = $1`
		args = append(args, status)
	}

	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM discharge_outbox`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := fmt.Sprintf(`SELECT `+eventCols+` FROM discharge_outbox`+where+
		` ORDER BY created_at DESC LIMIT $%d OFFSET $%d`, len(args)+1, len(args)+2)
	args = append(args, limit, offset)

	rows, err := r.conn(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var events []*Event
	for rows.Next() {
		var e Event
		if err := rows.Scan(&e.ID, &e.AdmissionID, &e.Payload, &e.Status, &e.Attempts,
			&e.NextAttemptAt, &e.LastError, &e.CreatedAt, &e.DeliveredAt); err != nil {
			return nil, 0, err
		}
		events = append(events, &e)
	}
	return events, total, rows.Err()
}
