package ward

import (
	"time"

	"github.com/google/uuid"
)

// Bed statuses.
const (
	StatusAvailable   = "available"
	StatusOccupied    = "occupied"
	StatusMaintenance = "maintenance"
	StatusReserved    = "reserved"
	StatusCleaning    = "cleaning"
)

// Room types.
const (
	RoomTypeWard        = "ward"
	RoomTypeSemiPrivate = "semi_private"
	RoomTypePrivate     = "private"
	RoomTypeICU         = "icu"
	RoomTypeIsolation   = "isolation"
)

// Room maps to the rooms table. Immutable after creation except for the
// operational flag.
type Room struct {
	ID          uuid.UUID `db:"id" json:"id"`
	RoomNumber  string    `db:"room_number" json:"room_number"`
	RoomType    string    `db:"room_type" json:"room_type"`
	Floor       int       `db:"floor" json:"floor"`
	Department  string    `db:"department" json:"department"`
	MaxBeds     int       `db:"max_beds" json:"max_beds"`
	Operational bool      `db:"operational" json:"operational"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time `db:"updated_at" json:"updated_at"`
}

// Bed maps to the beds table. Status is never written directly; every change
// goes through the service so the matching BedStatusLog row is written in the
// same unit of work.
type Bed struct {
	ID            uuid.UUID  `db:"id" json:"id"`
	RoomID        uuid.UUID  `db:"room_id" json:"room_id"`
	BedNumber     string     `db:"bed_number" json:"bed_number"`
	BedType       string     `db:"bed_type" json:"bed_type"`
	Status        string     `db:"status" json:"status"`
	Features      []string   `db:"features" json:"features,omitempty"`
	LastCleanedAt *time.Time `db:"last_cleaned_at" json:"last_cleaned_at,omitempty"`
	CreatedAt     time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time  `db:"updated_at" json:"updated_at"`
}

// BedStatusLog maps to the bed_status_logs table. Append-only; rows are never
// updated or deleted.
type BedStatusLog struct {
	ID           uuid.UUID  `db:"id" json:"id"`
	BedID        uuid.UUID  `db:"bed_id" json:"bed_id"`
	OldStatus    string     `db:"old_status" json:"old_status"`
	NewStatus    string     `db:"new_status" json:"new_status"`
	ChangedBy    string     `db:"changed_by" json:"changed_by"`
	Reason       *string    `db:"reason" json:"reason,omitempty"`
	AdmissionID  *uuid.UUID `db:"admission_id" json:"admission_id,omitempty"`
	AssignmentID *uuid.UUID `db:"assignment_id" json:"assignment_id,omitempty"`
	CreatedAt    time.Time  `db:"created_at" json:"created_at"`
}

// Occupant is the current occupant of a bed, joined through the open
// assignment.
type Occupant struct {
	AdmissionID     uuid.UUID `db:"admission_id" json:"admission_id"`
	AdmissionNumber string    `db:"admission_number" json:"admission_number"`
	PatientID       uuid.UUID `db:"patient_id" json:"patient_id"`
	DoctorID        uuid.UUID `db:"doctor_id" json:"doctor_id"`
	AssignedAt      time.Time `db:"assigned_at" json:"assigned_at"`
}

// BedFilter narrows bed listings.
type BedFilter struct {
	Status     string
	BedType    string
	Department string
	Floor      *int
	RoomID     *uuid.UUID
}

var validRoomTypes = map[string]bool{
	RoomTypeWard:        true,
	RoomTypeSemiPrivate: true,
	RoomTypePrivate:     true,
	RoomTypeICU:         true,
	RoomTypeIsolation:   true,
}

var validStatuses = map[string]bool{
	StatusAvailable:   true,
	StatusOccupied:    true,
	StatusMaintenance: true,
	StatusReserved:    true,
	StatusCleaning:    true,
}
