package admission

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/adt/adt/internal/domain/ward"
	"github.com/adt/adt/internal/platform/db"
	"github.com/adt/adt/internal/platform/dischargesync"
)

// ErrInvalidStateTransition signals a lifecycle transition not legal from the
// admission's current status. Non-retryable.
var ErrInvalidStateTransition = errors.New("invalid state transition")

// ErrAccessDenied signals that the actor lacks authority for the requested
// transition.
var ErrAccessDenied = errors.New("access denied")

// SequenceTypeAdmission is the sequence family admission numbers are issued
// from.
const SequenceTypeAdmission = "admission"

// SequenceIssuer issues formatted identifiers; inside a unit of work the
// issuance joins it.
type SequenceIssuer interface {
	Next(ctx context.Context, seqType string) (string, error)
}

// BedRegistry is the slice of the ward service the allocation ledger needs.
type BedRegistry interface {
	GetBed(ctx context.Context, id uuid.UUID) (*ward.Bed, error)
	TransitionBedStatus(ctx context.Context, bedID uuid.UUID, newStatus, actor string, reason *string, admissionID, assignmentID *uuid.UUID) error
}

// DischargeOutbox records a committed discharge for asynchronous delivery.
type DischargeOutbox interface {
	Enqueue(ctx context.Context, payload dischargesync.DischargePayload) error
}

type Service struct {
	repo   Repository
	beds   BedRegistry
	seqs   SequenceIssuer
	outbox DischargeOutbox
	txm    *db.TxManager
}

func NewService(repo Repository, beds BedRegistry, seqs SequenceIssuer, outbox DischargeOutbox, txm *db.TxManager) *Service {
	return &Service{repo: repo, beds: beds, seqs: seqs, outbox: outbox, txm: txm}
}

const (
	retryAttempts = 3
	retryBackoff  = 50 * time.Millisecond
)

// withRetry re-runs contended units of work a bounded number of times before
// surfacing ConcurrentUpdate to the caller.
func withRetry(fn func() error) error {
	var err error
	for attempt := 0; attempt < retryAttempts; attempt++ {
		if attempt > 0 {
			time.Sleep(time.Duration(attempt) * retryBackoff)
		}
		err = fn()
		if err == nil || !errors.Is(err, db.ErrConcurrentUpdate) {
			return err
		}
	}
	return err
}

// Create opens a new admission. The admission number is issued, the row
// created, and the optional initial bed assigned in one unit of work — a
// failed assignment rolls back the whole admission, identifier included.
func (s *Service) Create(ctx context.Context, adm *Admission, bedID *uuid.UUID, actor string) error {
	if adm.PatientID == uuid.Nil {
		return fmt.Errorf("patient_id is required")
	}
	if adm.DoctorID == uuid.Nil {
		return fmt.Errorf("doctor_id is required")
	}
	if !validTypes[adm.AdmissionType] {
		return fmt.Errorf("invalid admission_type: %s", adm.AdmissionType)
	}
	if !validSources[adm.Source] {
		return fmt.Errorf("invalid source: %s", adm.Source)
	}
	if adm.Diagnosis == "" {
		return fmt.Errorf("diagnosis is required")
	}
	adm.Status = StatusActive
	if adm.AdmissionDate.IsZero() {
		adm.AdmissionDate = time.Now().UTC()
	}

	return withRetry(func() error {
		return s.txm.Run(ctx, func(ctx context.Context) error {
			number, err := s.seqs.Next(ctx, SequenceTypeAdmission)
			if err != nil {
				return fmt.Errorf("issue admission number: %w", err)
			}
			adm.AdmissionNumber = number

			if err := s.repo.Create(ctx, adm); err != nil {
				return fmt.Errorf("create admission: %w", err)
			}

			if bedID != nil {
				if _, err := s.assignBedTx(ctx, adm, *bedID, actor, nil); err != nil {
					return err
				}
			}
			return nil
		})
	})
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Admission, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *Service) GetByNumber(ctx context.Context, number string) (*Admission, error) {
	return s.repo.GetByNumber(ctx, number)
}

func (s *Service) List(ctx context.Context, filter Filter, limit, offset int) ([]*Admission, int, error) {
	if filter.Status != "" && !validStatuses[filter.Status] {
		return nil, 0, fmt.Errorf("invalid status filter: %s", filter.Status)
	}
	return s.repo.List(ctx, filter, limit, offset)
}

// AssignBed places an active admission into an available bed.
func (s *Service) AssignBed(ctx context.Context, admissionID, bedID uuid.UUID, actor string) (*BedAssignment, error) {
	return s.allocate(ctx, admissionID, bedID, actor, nil)
}

// TransferBed moves an admission to a new bed: the old assignment is closed
// with the transfer reason, the old bed goes to cleaning, the new bed to
// occupied, all in one unit of work.
func (s *Service) TransferBed(ctx context.Context, admissionID, newBedID uuid.UUID, actor, reason string) (*BedAssignment, error) {
	if reason == "" {
		return nil, fmt.Errorf("transfer reason is required")
	}
	return s.allocate(ctx, admissionID, newBedID, actor, &reason)
}

func (s *Service) allocate(ctx context.Context, admissionID, bedID uuid.UUID, actor string, transferReason *string) (*BedAssignment, error) {
	var assignment *BedAssignment
	err := withRetry(func() error {
		return s.txm.Run(ctx, func(ctx context.Context) error {
			adm, err := s.repo.GetByID(ctx, admissionID)
			if err != nil {
				return fmt.Errorf("admission not found: %w", err)
			}
			assignment, err = s.assignBedTx(ctx, adm, bedID, actor, transferReason)
			return err
		})
	})
	if err != nil {
		return nil, err
	}
	return assignment, nil
}

// assignBedTx runs inside an open unit of work. Closing the previous
// assignment before inserting the new one keeps the one-open-per-admission
// index satisfied at every point; the one-open-per-bed index is the final
// arbiter against a concurrent writer taking the same bed.
func (s *Service) assignBedTx(ctx context.Context, adm *Admission, bedID uuid.UUID, actor string, transferReason *string) (*BedAssignment, error) {
	if adm.Status != StatusActive {
		return nil, fmt.Errorf("admission %s is %s: %w", adm.AdmissionNumber, adm.Status, ErrInvalidStateTransition)
	}

	current, err := s.repo.GetCurrentAssignment(ctx, adm.ID)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("lookup current assignment: %w", err)
	}
	if current != nil && current.BedID == bedID {
		return nil, fmt.Errorf("admission already occupies bed %s: %w", bedID, ward.ErrBedUnavailable)
	}

	if current != nil {
		if err := s.repo.CloseAssignment(ctx, current.ID, actor, transferReason); err != nil {
			return nil, fmt.Errorf("close previous assignment: %w", err)
		}
		if err := s.beds.TransitionBedStatus(ctx, current.BedID, ward.StatusCleaning, actor,
			transferReason, &adm.ID, &current.ID); err != nil {
			return nil, fmt.Errorf("release previous bed: %w", err)
		}
	}

	assignment := &BedAssignment{
		AdmissionID: adm.ID,
		BedID:       bedID,
		AssignedBy:  actor,
	}
	if err := s.repo.CreateAssignment(ctx, assignment); err != nil {
		if db.IsUniqueViolation(err, "uq_bed_assignments_open_bed") {
			return nil, fmt.Errorf("bed %s: %w", bedID, ward.ErrBedUnavailable)
		}
		if db.IsUniqueViolation(err, "uq_bed_assignments_open_admission") || db.IsSerializationFailure(err) {
			return nil, db.ErrConcurrentUpdate
		}
		return nil, fmt.Errorf("create assignment: %w", err)
	}

	// The bed row is locked here; a bed in any status but available fails
	// the transition and the whole unit of work rolls back.
	if err := s.beds.TransitionBedStatus(ctx, bedID, ward.StatusOccupied, actor, nil, &adm.ID, &assignment.ID); err != nil {
		if errors.Is(err, ward.ErrInvalidTransition) {
			return nil, fmt.Errorf("bed %s: %w", bedID, ward.ErrBedUnavailable)
		}
		return nil, err
	}

	return assignment, nil
}

// releaseBedTx closes the current assignment and sends the bed to cleaning.
// No-op when the admission holds no bed.
func (s *Service) releaseBedTx(ctx context.Context, adm *Admission, actor string, reason *string) error {
	current, err := s.repo.GetCurrentAssignment(ctx, adm.ID)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("lookup current assignment: %w", err)
	}
	if err := s.repo.CloseAssignment(ctx, current.ID, actor, nil); err != nil {
		return fmt.Errorf("close assignment: %w", err)
	}
	if err := s.beds.TransitionBedStatus(ctx, current.BedID, ward.StatusCleaning, actor,
		reason, &adm.ID, &current.ID); err != nil {
		return fmt.Errorf("release bed: %w", err)
	}
	return nil
}

// GetCurrentBed returns the bed currently serving the admission, or nil when
// none is assigned.
func (s *Service) GetCurrentBed(ctx context.Context, admissionID uuid.UUID) (*ward.Bed, error) {
	current, err := s.repo.GetCurrentAssignment(ctx, admissionID)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return s.beds.GetBed(ctx, current.BedID)
}

func (s *Service) ListAssignments(ctx context.Context, admissionID uuid.UUID) ([]*BedAssignment, error) {
	return s.repo.ListAssignments(ctx, admissionID)
}

// RequestDischarge moves an active admission to pending_discharge. Only the
// attending doctor of record may request discharge; the bed is untouched.
func (s *Service) RequestDischarge(ctx context.Context, admissionID, doctorID uuid.UUID, summary string, expectedDate *time.Time) (*Admission, error) {
	if summary == "" {
		return nil, fmt.Errorf("discharge summary is required")
	}

	var result *Admission
	err := withRetry(func() error {
		return s.txm.Run(ctx, func(ctx context.Context) error {
			adm, err := s.repo.GetByID(ctx, admissionID)
			if err != nil {
				return fmt.Errorf("admission not found: %w", err)
			}
			if adm.DoctorID != doctorID {
				return fmt.Errorf("only the attending doctor may request discharge: %w", ErrAccessDenied)
			}
			if adm.Status != StatusActive {
				return fmt.Errorf("admission is %s: %w", adm.Status, ErrInvalidStateTransition)
			}

			matched, err := s.repo.MarkPendingDischarge(ctx, admissionID, summary, expectedDate)
			if err != nil {
				return err
			}
			if !matched {
				return s.diagnoseLostUpdate(ctx, admissionID, StatusActive)
			}

			result, err = s.repo.GetByID(ctx, admissionID)
			return err
		})
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// CancelDischargeRequest returns a pending_discharge admission to active.
// The bed was never released, so no bed action is needed.
func (s *Service) CancelDischargeRequest(ctx context.Context, admissionID uuid.UUID) (*Admission, error) {
	var result *Admission
	err := withRetry(func() error {
		return s.txm.Run(ctx, func(ctx context.Context) error {
			matched, err := s.repo.MarkActive(ctx, admissionID)
			if err != nil {
				return err
			}
			if !matched {
				return s.diagnoseLostUpdate(ctx, admissionID, StatusPendingDischarge)
			}
			result, err = s.repo.GetByID(ctx, admissionID)
			return err
		})
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// FinalizeDischarge completes a requested discharge: the admission reaches
// its terminal status, the bed is released to cleaning, discharge_date is
// stamped and length_of_stay_days frozen, and the outbox event recorded — all
// in one unit of work. Delivery to the downstream gateway happens after
// commit, in the background, and never affects the discharge itself.
func (s *Service) FinalizeDischarge(ctx context.Context, admissionID uuid.UUID, actor, dischargeType, condition, followUp string) (*Admission, error) {
	if !terminalStatuses[dischargeType] {
		return nil, fmt.Errorf("invalid discharge_type %q (want discharged, transferred or deceased)", dischargeType)
	}

	var result *Admission
	err := withRetry(func() error {
		return s.txm.Run(ctx, func(ctx context.Context) error {
			adm, err := s.repo.GetByID(ctx, admissionID)
			if err != nil {
				return fmt.Errorf("admission not found: %w", err)
			}
			if adm.Status != StatusPendingDischarge {
				return fmt.Errorf("admission is %s: %w", adm.Status, ErrInvalidStateTransition)
			}

			now := time.Now().UTC()
			los := ceilDays(now.Sub(adm.AdmissionDate))

			matched, err := s.repo.Finalize(ctx, admissionID, dischargeType, now, dischargeType, condition, followUp, los)
			if err != nil {
				return err
			}
			if !matched {
				return s.diagnoseLostUpdate(ctx, admissionID, StatusPendingDischarge)
			}

			reason := "discharge"
			if err := s.releaseBedTx(ctx, adm, actor, &reason); err != nil {
				return err
			}

			if err := s.outbox.Enqueue(ctx, dischargesync.DischargePayload{
				PatientID:            adm.PatientID,
				AdmissionID:          adm.ID,
				AdmissionNumber:      adm.AdmissionNumber,
				DischargeDateTime:    now,
				Diagnosis:            adm.Diagnosis,
				DischargeType:        dischargeType,
				ConditionOnDischarge: condition,
				FollowUpInstructions: followUp,
			}); err != nil {
				return err
			}

			result, err = s.repo.GetByID(ctx, admissionID)
			return err
		})
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// diagnoseLostUpdate distinguishes a status that moved on (invalid
// transition) from transient contention after a compare-and-swap matched
// nothing.
func (s *Service) diagnoseLostUpdate(ctx context.Context, admissionID uuid.UUID, expected string) error {
	adm, err := s.repo.GetByID(ctx, admissionID)
	if err != nil {
		return fmt.Errorf("admission not found: %w", err)
	}
	if adm.Status != expected {
		return fmt.Errorf("admission is %s: %w", adm.Status, ErrInvalidStateTransition)
	}
	return db.ErrConcurrentUpdate
}
