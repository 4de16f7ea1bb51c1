package admission

import (
	"context"
	"fmt"
	"strings"
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

const admCols = `id, admission_number, patient_id, doctor_id, appointment_id,
	admission_type, source, diagnosis, status, admission_date,
	expected_discharge_date, discharge_date, discharge_type, discharge_summary,
	condition_on_discharge, follow_up_instructions, length_of_stay_days,
	created_at, updated_at`

func (r *repoPG) Create(ctx context.Context, adm *Admission) error {
	adm.ID = uuid.New()
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO admissions (
			id, admission_number, patient_id, doctor_id, appointment_id,
			admission_type, source, diagnosis, status, admission_date
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`,
		adm.ID, adm.AdmissionNumber, adm.PatientID, adm.DoctorID, adm.AppointmentID,
		adm.AdmissionType, adm.Source, adm.Diagnosis, adm.Status, adm.AdmissionDate,
	)
	return err
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*Admission, error) {
	return scanAdm(r.conn(ctx).QueryRow(ctx, `SELECT `+admCols+` FROM admissions WHERE id = $1`, id))
}

func (r *repoPG) GetByNumber(ctx context.Context, number string) (*Admission, error) {
	return scanAdm(r.conn(ctx).QueryRow(ctx, `SELECT `+admCols+` FROM admissions WHERE admission_number = $1`, number))
}

func (r *repoPG) List(ctx context.Context, filter Filter, limit, offset int) ([]*Admission, int, error) {
	where := []string{"1=1"}
	args := []interface{}{}

	if filter.PatientID != nil {
		args = append(args, *filter.PatientID)
		where = append(where, fmt.Sprintf("patient_id = $%d", len(args)))
	}
	if filter.DoctorID != nil {
		args = append(args, *filter.DoctorID)
		where = append(where, fmt.Sprintf("doctor_id = $%d", len(args)))
	}
	if filter.Status != "" {
		args = append(args, filter.Status)
		where = append(where, fmt.Sprintf("status = $%d", len(args)))
	}

	cond := strings.Join(where, " AND ")

	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM admissions WHERE `+cond, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := fmt.Sprintf(`SELECT `+admCols+` FROM admissions WHERE `+cond+
		` ORDER BY admission_date DESC LIMIT $%d OFFSET $%d`, len(args)+1, len(args)+2)
	args = append(args, limit, offset)

	rows, err := r.conn(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var adms []*Admission
	for rows.Next() {
		adm, err := scanAdm(rows)
		if err != nil {
			return nil, 0, err
		}
		adms = append(adms, adm)
	}
	return adms, total, rows.Err()
}

func (r *repoPG) MarkPendingDischarge(ctx context.Context, id uuid.UUID, summary string, expectedDate *time.Time) (bool, error) {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE admissions
		SET status = 'pending_discharge', discharge_summary = $2,
		    expected_discharge_date = $3, updated_at = NOW()
		WHERE id = $1 AND status = 'active'`,
		id, summary, expectedDate)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (r *repoPG) MarkActive(ctx context.Context, id uuid.UUID) (bool, error) {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE admissions
		SET status = 'active', updated_at = NOW()
		WHERE id = $1 AND status = 'pending_discharge'`,
		id)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (r *repoPG) Finalize(ctx context.Context, id uuid.UUID, terminalStatus string, dischargeDate time.Time,
	dischargeType, condition, followUp string, lengthOfStayDays int) (bool, error) {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE admissions
		SET status = $2, discharge_date = $3, discharge_type = $4,
		    condition_on_discharge = $5, follow_up_instructions = $6,
		    length_of_stay_days = $7, updated_at = NOW()
		WHERE id = $1 AND status = 'pending_discharge'`,
		id, terminalStatus, dischargeDate, dischargeType, condition, followUp, lengthOfStayDays)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// -- Allocation ledger --

const assignCols = `id, admission_id, bed_id, assigned_at, assigned_by, released_at, released_by, transfer_reason`

func (r *repoPG) CreateAssignment(ctx context.Context, assignment *BedAssignment) error {
	assignment.ID = uuid.New()
	if assignment.AssignedAt.IsZero() {
		assignment.AssignedAt = time.Now().UTC()
	}
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO bed_assignments (id, admission_id, bed_id, assigned_at, assigned_by)
		VALUES ($1,$2,$3,$4,$5)`,
		assignment.ID, assignment.AdmissionID, assignment.BedID, assignment.AssignedAt, assignment.AssignedBy,
	)
	return err
}

func (r *repoPG) GetCurrentAssignment(ctx context.Context, admissionID uuid.UUID) (*BedAssignment, error) {
	return scanAssignment(r.conn(ctx).QueryRow(ctx,
		`SELECT `+assignCols+` FROM bed_assignments WHERE admission_id = $1 AND released_at IS NULL`,
		admissionID))
}

func (r *repoPG) CloseAssignment(ctx context.Context, assignmentID uuid.UUID, releasedBy string, transferReason *string) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE bed_assignments
		SET released_at = NOW(), released_by = $2, transfer_reason = $3
		WHERE id = $1 AND released_at IS NULL`,
		assignmentID, releasedBy, transferReason)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return db.ErrConcurrentUpdate
	}
	return nil
}

func (r *repoPG) ListAssignments(ctx context.Context, admissionID uuid.UUID) ([]*BedAssignment, error) {
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+assignCols+` FROM bed_assignments WHERE admission_id = $1 ORDER BY assigned_at`,
		admissionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var assignments []*BedAssignment
	for rows.Next() {
		var a BedAssignment
		if err := rows.Scan(&a.ID, &a.AdmissionID, &a.BedID, &a.AssignedAt, &a.AssignedBy,
			&a.ReleasedAt, &a.ReleasedBy, &a.TransferReason); err != nil {
			return nil, err
		}
		assignments = append(assignments, &a)
	}
	return assignments, rows.Err()
}

func scanAdm(row pgx.Row) (*Admission, error) {
	var a Admission
	err := row.Scan(
		&a.ID, &a.AdmissionNumber, &a.PatientID, &a.DoctorID, &a.AppointmentID,
		&a.AdmissionType, &a.Source, &a.Diagnosis, &a.Status, &a.AdmissionDate,
		&a.ExpectedDischargeDate, &a.DischargeDate, &a.DischargeType, &a.DischargeSummary,
		&a.ConditionOnDischarge, &a.FollowUpInstructions, &a.LengthOfStayDays,
		&a.CreatedAt, &a.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func scanAssignment(row pgx.Row) (*BedAssignment, error) {
	var a BedAssignment
	err := row.Scan(&a.ID, &a.AdmissionID, &a.BedID, &a.AssignedAt, &a.AssignedBy,
		&a.ReleasedAt, &a.ReleasedBy, &a.TransferReason)
	if err != nil {
		return nil, err
	}
	return &a, nil
}
