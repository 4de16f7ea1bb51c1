package dischargesync

import (
	"time"

	"github.com/google/uuid"
)

// Outbox event statuses.
const (
	StatusPending   = "pending"
	StatusDelivered = "delivered"
	StatusFailed    = "failed"
)

// DischargePayload is the body POSTed to the downstream discharge gateway.
type DischargePayload struct {
	PatientID            uuid.UUID `json:"patient_id"`
	AdmissionID          uuid.UUID `json:"admission_id"`
	AdmissionNumber      string    `json:"admission_number"`
	DischargeDateTime    time.Time `json:"discharge_datetime"`
	Diagnosis            string    `json:"diagnosis"`
	DischargeType        string    `json:"discharge_type"`
	ConditionOnDischarge string    `json:"condition_on_discharge,omitempty"`
	FollowUpInstructions string    `json:"follow_up_instructions,omitempty"`
}

// Event maps to the discharge_outbox table. A row is written in the same
// transaction as the discharge it describes; the dispatcher delivers it
// afterwards. failed is terminal — the row stays for operator inspection.
type Event struct {
	ID            uuid.UUID        `db:"id" json:"id"`
	AdmissionID   uuid.UUID        `db:"admission_id" json:"admission_id"`
	Payload       DischargePayload `db:"payload" json:"payload"`
	Status        string           `db:"status" json:"status"`
	Attempts      int              `db:"attempts" json:"attempts"`
	NextAttemptAt time.Time        `db:"next_attempt_at" json:"next_attempt_at"`
	LastError     *string          `db:"last_error" json:"last_error,omitempty"`
	CreatedAt     time.Time        `db:"created_at" json:"created_at"`
	DeliveredAt   *time.Time       `db:"delivered_at" json:"delivered_at,omitempty"`
}
