package ward

import (
	"context"
	"fmt"
	"strings"

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

// -- Rooms --

const roomCols = `id, room_number, room_type, floor, department, max_beds, operational, created_at, updated_at`

func (r *repoPG) CreateRoom(ctx context.Context, room *Room) error {
	room.ID = uuid.New()
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO rooms (id, room_number, room_type, floor, department, max_beds, operational)
		VALUES ($1,$2,$3,$4,$5,$6,$7)`,
		room.ID, room.RoomNumber, room.RoomType, room.Floor, room.Department, room.MaxBeds, room.Operational,
	)
	return err
}

func (r *repoPG) GetRoom(ctx context.Context, id uuid.UUID) (*Room, error) {
	return scanRoom(r.conn(ctx).QueryRow(ctx, `SELECT `+roomCols+` FROM rooms WHERE id = $1`, id))
}

func (r *repoPG) ListRooms(ctx context.Context, limit, offset int) ([]*Room, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM rooms`).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+roomCols+` FROM rooms ORDER BY room_number LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var rooms []*Room
	for rows.Next() {
		var rm Room
		if err := rows.Scan(&rm.ID, &rm.RoomNumber, &rm.RoomType, &rm.Floor, &rm.Department,
			&rm.MaxBeds, &rm.Operational, &rm.CreatedAt, &rm.UpdatedAt); err != nil {
			return nil, 0, err
		}
		rooms = append(rooms, &rm)
	}
	return rooms, total, rows.Err()
}

func (r *repoPG) SetRoomOperational(ctx context.Context, id uuid.UUID, operational bool) error {
	tag, err := r.conn(ctx).Exec(ctx,
		`UPDATE rooms SET operational = $2, updated_at = NOW() WHERE id = $1`, id, operational)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *repoPG) CountBedsInRoom(ctx context.Context, roomID uuid.UUID) (int, error) {
	var count int
	err := r.conn(ctx).QueryRow(ctx,
		`SELECT COUNT(*) FROM beds WHERE room_id = $1`, roomID).Scan(&count)
	return count, err
}

// -- Beds --

const bedCols = `id, room_id, bed_number, bed_type, status, features, last_cleaned_at, created_at, updated_at`

func (r *repoPG) CreateBed(ctx context.Context, bed *Bed) error {
	bed.ID = uuid.New()
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO beds (id, room_id, bed_number, bed_type, status, features)
		VALUES ($1,$2,$3,$4,$5,$6)`,
		bed.ID, bed.RoomID, bed.BedNumber, bed.BedType, bed.Status, bed.Features,
	)
	return err
}

func (r *repoPG) GetBed(ctx context.Context, id uuid.UUID) (*Bed, error) {
	return scanBed(r.conn(ctx).QueryRow(ctx, `SELECT `+bedCols+` FROM beds WHERE id = $1`, id))
}

func (r *repoPG) GetBedForUpdate(ctx context.Context, id uuid.UUID) (*Bed, error) {
	return scanBed(r.conn(ctx).QueryRow(ctx, `SELECT `+bedCols+` FROM beds WHERE id = $1 FOR UPDATE`, id))
}

func (r *repoPG) ListBeds(ctx context.Context, filter BedFilter, limit, offset int) ([]*Bed, int, error) {
	where := []string{"1=1"}
	args := []interface{}{}

	add := func(clause string, arg interface{}) {
		args = append(args, arg)
		where = append(where, fmt.Sprintf(clause, len(args)))
	}

	if filter.Status != "" {
		add("b.status = $%d", filter.Status)
	}
	if filter.BedType != "" {
		add("b.bed_type = $%d", filter.BedType)
	}
	if filter.Department != "" {
		add("r.department = $%d", filter.Department)
	}
	if filter.Floor != nil {
		add("r.floor = $%d", *filter.Floor)
	}
	if filter.RoomID != nil {
		add("b.room_id = $%d", *filter.RoomID)
	}

	cond := strings.Join(where, " AND ")
	base := ` FROM beds b JOIN rooms r ON r.id = b.room_id WHERE ` + cond

	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*)`+base, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := `SELECT b.id, b.room_id, b.bed_number, b.bed_type, b.status, b.features,
		b.last_cleaned_at, b.created_at, b.updated_at` + base +
		fmt.Sprintf(` ORDER BY r.room_number, b.bed_number LIMIT $%d OFFSET $%d`, len(args)+1, len(args)+2)
	args = append(args, limit, offset)

	rows, err := r.conn(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var beds []*Bed
	for rows.Next() {
		var b Bed
		if err := rows.Scan(&b.ID, &b.RoomID, &b.BedNumber, &b.BedType, &b.Status,
			&b.Features, &b.LastCleanedAt, &b.CreatedAt, &b.UpdatedAt); err != nil {
			return nil, 0, err
		}
		beds = append(beds, &b)
	}
	return beds, total, rows.Err()
}

// UpdateBedStatus writes the new status. Returning to available from cleaning
// stamps last_cleaned_at.
func (r *repoPG) UpdateBedStatus(ctx context.Context, id uuid.UUID, status string) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE beds SET
			last_cleaned_at = CASE WHEN status = 'cleaning' AND $2 = 'available' THEN NOW() ELSE last_cleaned_at END,
			status = $2,
			updated_at = NOW()
		WHERE id = $1`,
		id, status,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *repoPG) GetOccupant(ctx context.Context, bedID uuid.UUID) (*Occupant, error) {
	var o Occupant
	err := r.conn(ctx).QueryRow(ctx, `
		SELECT a.id, a.admission_number, a.patient_id, a.doctor_id, ba.assigned_at
		FROM bed_assignments ba
		JOIN admissions a ON a.id = ba.admission_id
		WHERE ba.bed_id = $1 AND ba.released_at IS NULL`,
		bedID,
	).Scan(&o.AdmissionID, &o.AdmissionNumber, &o.PatientID, &o.DoctorID, &o.AssignedAt)
	if err != nil {
		return nil, err
	}
	return &o, nil
}

// -- Status audit log --

func (r *repoPG) AddStatusLog(ctx context.Context, log *BedStatusLog) error {
	log.ID = uuid.New()
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO bed_status_logs (id, bed_id, old_status, new_status, changed_by, reason, admission_id, assignment_id)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
		log.ID, log.BedID, log.OldStatus, log.NewStatus, log.ChangedBy, log.Reason, log.AdmissionID, log.AssignmentID,
	)
	return err
}

func (r *repoPG) GetBedHistory(ctx context.Context, bedID uuid.UUID, limit int) ([]*BedStatusLog, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT id, bed_id, old_status, new_status, changed_by, reason, admission_id, assignment_id, created_at
		FROM bed_status_logs WHERE bed_id = $1 ORDER BY created_at DESC LIMIT $2`,
		bedID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var history []*BedStatusLog
	for rows.Next() {
		var l BedStatusLog
		if err := rows.Scan(&l.ID, &l.BedID, &l.OldStatus, &l.NewStatus, &l.ChangedBy,
			&l.Reason, &l.AdmissionID, &l.AssignmentID, &l.CreatedAt); err != nil {
			return nil, err
		}
		history = append(history, &l)
	}
	return history, rows.Err()
}

func scanRoom(row pgx.Row) (*Room, error) {
	var rm Room
	err := row.Scan(&rm.ID, &rm.RoomNumber, &rm.RoomType, &rm.Floor, &rm.Department,
		&rm.MaxBeds, &rm.Operational, &rm.CreatedAt, &rm.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &rm, nil
}

func scanBed(row pgx.Row) (*Bed, error) {
	var b Bed
	err := row.Scan(&b.ID, &b.RoomID, &b.BedNumber, &b.BedType, &b.Status,
		&b.Features, &b.LastCleanedAt, &b.CreatedAt, &b.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &b, nil
}
