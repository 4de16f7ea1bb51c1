package ward

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/adt/adt/internal/platform/db"
)

// ErrInvalidTransition signals a bed status change not permitted from the
// bed's current status.
var ErrInvalidTransition = errors.New("invalid bed status transition")

// ErrBedUnavailable signals that the target bed is not available at commit
// time. The caller should re-query for a fresh available bed.
var ErrBedUnavailable = errors.New("bed unavailable")

// allowedTransitions is the full bed status machine. occupied is entered only
// through allocation and left only through release; the staff endpoint
// additionally refuses to touch it (see StaffTransition).
var allowedTransitions = map[string]map[string]bool{
	StatusAvailable:   {StatusReserved: true, StatusOccupied: true, StatusMaintenance: true},
	StatusReserved:    {StatusAvailable: true},
	StatusOccupied:    {StatusCleaning: true},
	StatusCleaning:    {StatusAvailable: true},
	StatusMaintenance: {StatusAvailable: true},
}

type Service struct {
	repo Repository
	txm  *db.TxManager
}

func NewService(repo Repository, txm *db.TxManager) *Service {
	return &Service{repo: repo, txm: txm}
}

// -- Rooms --

func (s *Service) CreateRoom(ctx context.Context, room *Room) error {
	if room.RoomNumber == "" {
		return fmt.Errorf("room_number is required")
	}
	if !validRoomTypes[room.RoomType] {
		return fmt.Errorf("invalid room_type: %s", room.RoomType)
	}
	if room.Department == "" {
		return fmt.Errorf("department is required")
	}
	if room.MaxBeds <= 0 {
		return fmt.Errorf("max_beds must be positive")
	}
	room.Operational = true
	return s.repo.CreateRoom(ctx, room)
}

func (s *Service) GetRoom(ctx context.Context, id uuid.UUID) (*Room, error) {
	return s.repo.GetRoom(ctx, id)
}

func (s *Service) ListRooms(ctx context.Context, limit, offset int) ([]*Room, int, error) {
	return s.repo.ListRooms(ctx, limit, offset)
}

func (s *Service) SetRoomOperational(ctx context.Context, id uuid.UUID, operational bool) error {
	return s.repo.SetRoomOperational(ctx, id, operational)
}

// -- Beds --

func (s *Service) CreateBed(ctx context.Context, bed *Bed) error {
	if bed.RoomID == uuid.Nil {
		return fmt.Errorf("room_id is required")
	}
	if bed.BedNumber == "" {
		return fmt.Errorf("bed_number is required")
	}
	if bed.BedType == "" {
		bed.BedType = "standard"
	}
	bed.Status = StatusAvailable

	return s.txm.Run(ctx, func(ctx context.Context) error {
		room, err := s.repo.GetRoom(ctx, bed.RoomID)
		if err != nil {
			return fmt.Errorf("room not found: %w", err)
		}
		count, err := s.repo.CountBedsInRoom(ctx, bed.RoomID)
		if err != nil {
			return err
		}
		if count >= room.MaxBeds {
			return fmt.Errorf("room %s is at capacity (%d beds)", room.RoomNumber, room.MaxBeds)
		}
		return s.repo.CreateBed(ctx, bed)
	})
}

func (s *Service) GetBed(ctx context.Context, id uuid.UUID) (*Bed, error) {
	return s.repo.GetBed(ctx, id)
}

func (s *Service) ListBeds(ctx context.Context, filter BedFilter, limit, offset int) ([]*Bed, int, error) {
	if filter.Status != "" && !validStatuses[filter.Status] {
		return nil, 0, fmt.Errorf("invalid status filter: %s", filter.Status)
	}
	return s.repo.ListBeds(ctx, filter, limit, offset)
}

// ListAvailableBeds lists beds ready for allocation, optionally narrowed by
// type, department and floor.
func (s *Service) ListAvailableBeds(ctx context.Context, bedType, department string, floor *int, limit, offset int) ([]*Bed, int, error) {
	return s.repo.ListBeds(ctx, BedFilter{
		Status:     StatusAvailable,
		BedType:    bedType,
		Department: department,
		Floor:      floor,
	}, limit, offset)
}

func (s *Service) GetOccupant(ctx context.Context, bedID uuid.UUID) (*Occupant, error) {
	return s.repo.GetOccupant(ctx, bedID)
}

const defaultHistoryLimit = 50

func (s *Service) GetBedHistory(ctx context.Context, bedID uuid.UUID, limit int) ([]*BedStatusLog, error) {
	if limit <= 0 || limit > 500 {
		limit = defaultHistoryLimit
	}
	return s.repo.GetBedHistory(ctx, bedID, limit)
}

// TransitionBedStatus moves a bed through the status machine. The bed row is
// locked first, the transition validated against the bed's fresh status, and
// the new status plus exactly one audit row are written in the same unit of
// work. Callers already inside a transaction (allocation, release) join it.
func (s *Service) TransitionBedStatus(ctx context.Context, bedID uuid.UUID, newStatus, actor string, reason *string, admissionID, assignmentID *uuid.UUID) error {
	if !validStatuses[newStatus] {
		return fmt.Errorf("invalid status: %s", newStatus)
	}
	if actor == "" {
		return fmt.Errorf("actor is required")
	}

	return s.txm.Run(ctx, func(ctx context.Context) error {
		bed, err := s.repo.GetBedForUpdate(ctx, bedID)
		if err != nil {
			return fmt.Errorf("bed not found: %w", err)
		}
		if !allowedTransitions[bed.Status][newStatus] {
			return fmt.Errorf("%s -> %s: %w", bed.Status, newStatus, ErrInvalidTransition)
		}
		if err := s.repo.UpdateBedStatus(ctx, bedID, newStatus); err != nil {
			return fmt.Errorf("update bed status: %w", err)
		}
		return s.repo.AddStatusLog(ctx, &BedStatusLog{
			BedID:        bedID,
			OldStatus:    bed.Status,
			NewStatus:    newStatus,
			ChangedBy:    actor,
			Reason:       reason,
			AdmissionID:  admissionID,
			AssignmentID: assignmentID,
		})
	})
}

// StaffTransition is the maintenance/reserve/cleaning-done surface for staff.
// occupied is owned by the allocation ledger: allocation enters it, release
// leaves it via cleaning, so neither may be requested here. With both refused,
// an occupied bed has no transition this surface could take, and every
// remaining target is validated against the locked row in TransitionBedStatus.
func (s *Service) StaffTransition(ctx context.Context, bedID uuid.UUID, newStatus, actor string, reason *string) error {
	switch newStatus {
	case StatusOccupied:
		return fmt.Errorf("occupied is set by bed allocation only: %w", ErrInvalidTransition)
	case StatusCleaning:
		return fmt.Errorf("cleaning is set by bed release only: %w", ErrInvalidTransition)
	}
	return s.TransitionBedStatus(ctx, bedID, newStatus, actor, reason, nil, nil)
}
