package admission

import (
	"time"

	"github.com/google/uuid"
)

// Admission statuses. discharged, transferred and deceased are terminal: once
// reached, the record is immutable.
const (
	StatusActive           = "active"
	StatusPendingDischarge = "pending_discharge"
	StatusDischarged       = "discharged"
	StatusTransferred      = "transferred"
	StatusDeceased         = "deceased"
)

// Admission types.
const (
	TypeElective  = "elective"
	TypeEmergency = "emergency"
	TypeTransfer  = "transfer"
	TypeDelivery  = "delivery"
)

// Admission sources.
const (
	SourceER         = "er"
	SourceOutpatient = "outpatient"
	SourceReferral   = "referral"
	SourceDirect     = "direct"
)

// Admission maps to the admissions table. One inpatient stay from intake to
// discharge, transfer or death.
type Admission struct {
	ID                    uuid.UUID  `db:"id" json:"id"`
	AdmissionNumber       string     `db:"admission_number" json:"admission_number"`
	PatientID             uuid.UUID  `db:"patient_id" json:"patient_id"`
	DoctorID              uuid.UUID  `db:"doctor_id" json:"doctor_id"`
	AppointmentID         *uuid.UUID `db:"appointment_id" json:"appointment_id,omitempty"`
	AdmissionType         string     `db:"admission_type" json:"admission_type"`
	Source                string     `db:"source" json:"source"`
	Diagnosis             string     `db:"diagnosis" json:"diagnosis"`
	Status                string     `db:"status" json:"status"`
	AdmissionDate         time.Time  `db:"admission_date" json:"admission_date"`
	ExpectedDischargeDate *time.Time `db:"expected_discharge_date" json:"expected_discharge_date,omitempty"`
	DischargeDate         *time.Time `db:"discharge_date" json:"discharge_date,omitempty"`
	DischargeType         *string    `db:"discharge_type" json:"discharge_type,omitempty"`
	DischargeSummary      *string    `db:"discharge_summary" json:"discharge_summary,omitempty"`
	ConditionOnDischarge  *string    `db:"condition_on_discharge" json:"condition_on_discharge,omitempty"`
	FollowUpInstructions  *string    `db:"follow_up_instructions" json:"follow_up_instructions,omitempty"`
	LengthOfStayDays      *int       `db:"length_of_stay_days" json:"length_of_stay_days,omitempty"`
	CreatedAt             time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt             time.Time  `db:"updated_at" json:"updated_at"`
}

// IsTerminal reports whether the admission reached a terminal status.
func (a *Admission) IsTerminal() bool {
	switch a.Status {
	case StatusDischarged, StatusTransferred, StatusDeceased:
		return true
	}
	return false
}

// LengthOfStay returns the stay length in whole days, rounding partial days
// up. The frozen value is used once discharged; otherwise it is computed
// against now.
func (a *Admission) LengthOfStay(now time.Time) int {
	if a.LengthOfStayDays != nil {
		return *a.LengthOfStayDays
	}
	end := now
	if a.DischargeDate != nil {
		end = *a.DischargeDate
	}
	return ceilDays(end.Sub(a.AdmissionDate))
}

func ceilDays(d time.Duration) int {
	if d <= 0 {
		return 0
	}
	days := int(d / (24 * time.Hour))
	if d%(24*time.Hour) > 0 {
		days++
	}
	return days
}

// BedAssignment maps to the bed_assignments table: one admission bound to one
// bed for the interval [assigned_at, released_at). A row with no released_at
// is the current assignment; partial unique indexes guarantee at most one per
// admission and at most one per bed.
type BedAssignment struct {
	ID             uuid.UUID  `db:"id" json:"id"`
	AdmissionID    uuid.UUID  `db:"admission_id" json:"admission_id"`
	BedID          uuid.UUID  `db:"bed_id" json:"bed_id"`
	AssignedAt     time.Time  `db:"assigned_at" json:"assigned_at"`
	AssignedBy     string     `db:"assigned_by" json:"assigned_by"`
	ReleasedAt     *time.Time `db:"released_at" json:"released_at,omitempty"`
	ReleasedBy     *string    `db:"released_by" json:"released_by,omitempty"`
	TransferReason *string    `db:"transfer_reason" json:"transfer_reason,omitempty"`
}

// Filter narrows admission listings.
type Filter struct {
	PatientID *uuid.UUID
	DoctorID  *uuid.UUID
	Status    string
}

var validTypes = map[string]bool{
	TypeElective:  true,
	TypeEmergency: true,
	TypeTransfer:  true,
	TypeDelivery:  true,
}

var validSources = map[string]bool{
	SourceER:         true,
	SourceOutpatient: true,
	SourceReferral:   true,
	SourceDirect:     true,
}

var terminalStatuses = map[string]bool{
	StatusDischarged:  true,
	StatusTransferred: true,
	StatusDeceased:    true,
}

var validStatuses = map[string]bool{
	StatusActive:           true,
	StatusPendingDischarge: true,
	StatusDischarged:       true,
	StatusTransferred:      true,
	StatusDeceased:         true,
}
