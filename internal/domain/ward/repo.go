package ward

import (
	"context"

	"github.com/google/uuid"
)

type Repository interface {
	// Rooms
	CreateRoom(ctx context.Context, room *Room) error
	GetRoom(ctx context.Context, id uuid.UUID) (*Room, error)
	ListRooms(ctx context.Context, limit, offset int) ([]*Room, int, error)
	SetRoomOperational(ctx context.Context, id uuid.UUID, operational bool) error
	CountBedsInRoom(ctx context.Context, roomID uuid.UUID) (int, error)

	// Beds
	CreateBed(ctx context.Context, bed *Bed) error
	GetBed(ctx context.Context, id uuid.UUID) (*Bed, error)
	// GetBedForUpdate locks the bed row for the remainder of the current
	// unit of work so concurrent allocation decisions serialize on it.
	GetBedForUpdate(ctx context.Context, id uuid.UUID) (*Bed, error)
	ListBeds(ctx context.Context, filter BedFilter, limit, offset int) ([]*Bed, int, error)
	UpdateBedStatus(ctx context.Context, id uuid.UUID, status string) error
	GetOccupant(ctx context.Context, bedID uuid.UUID) (*Occupant, error)

	// Status audit log
	AddStatusLog(ctx context.Context, log *BedStatusLog) error
	GetBedHistory(ctx context.Context, bedID uuid.UUID, limit int) ([]*BedStatusLog, error)
}
