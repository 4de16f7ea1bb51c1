package admission

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/adt/adt/internal/domain/ward"
	"github.com/adt/adt/internal/platform/db"
	"github.com/adt/adt/internal/platform/dischargesync"
)

// -- Mock Repository --

type mockRepo struct {
	admissions  map[uuid.UUID]*Admission
	assignments map[uuid.UUID]*BedAssignment
}

func newMockRepo() *mockRepo {
	return &mockRepo{
		admissions:  make(map[uuid.UUID]*Admission),
		assignments: make(map[uuid.UUID]*BedAssignment),
	}
}

func (m *mockRepo) Create(_ context.Context, adm *Admission) error {
	adm.ID = uuid.New()
	adm.CreatedAt = time.Now()
	adm.UpdatedAt = time.Now()
	m.admissions[adm.ID] = adm
	return nil
}

func (m *mockRepo) GetByID(_ context.Context, id uuid.UUID) (*Admission, error) {
	adm, ok := m.admissions[id]
	if !ok {
		return nil, fmt.Errorf("not found")
	}
	cp := *adm
	return &cp, nil
}

func (m *mockRepo) GetByNumber(_ context.Context, number string) (*Admission, error) {
	for _, adm := range m.admissions {
		if adm.AdmissionNumber == number {
			return adm, nil
		}
	}
	return nil, fmt.Errorf("not found")
}

func (m *mockRepo) List(_ context.Context, filter Filter, limit, offset int) ([]*Admission, int, error) {
	var result []*Admission
	for _, adm := range m.admissions {
		if filter.Status != "" && adm.Status != filter.Status {
			continue
		}
		if filter.PatientID != nil && adm.PatientID != *filter.PatientID {
			continue
		}
		result = append(result, adm)
	}
	return result, len(result), nil
}

func (m *mockRepo) MarkPendingDischarge(_ context.Context, id uuid.UUID, summary string, expectedDate *time.Time) (bool, error) {
	adm, ok := m.admissions[id]
	if !ok || adm.Status != StatusActive {
		return false, nil
	}
	adm.Status = StatusPendingDischarge
	adm.DischargeSummary = &summary
	adm.ExpectedDischargeDate = expectedDate
	return true, nil
}

func (m *mockRepo) MarkActive(_ context.Context, id uuid.UUID) (bool, error) {
	adm, ok := m.admissions[id]
	if !ok || adm.Status != StatusPendingDischarge {
		return false, nil
	}
	adm.Status = StatusActive
	return true, nil
}

func (m *mockRepo) Finalize(_ context.Context, id uuid.UUID, terminalStatus string, dischargeDate time.Time,
	dischargeType, condition, followUp string, lengthOfStayDays int) (bool, error) {
	adm, ok := m.admissions[id]
	if !ok || adm.Status != StatusPendingDischarge {
		return false, nil
	}
	adm.Status = terminalStatus
	adm.DischargeDate = &dischargeDate
	adm.DischargeType = &dischargeType
	adm.ConditionOnDischarge = &condition
	adm.FollowUpInstructions = &followUp
	adm.LengthOfStayDays = &lengthOfStayDays
	return true, nil
}

// CreateAssignment simulates the partial unique index on open assignments per
// bed: a second open assignment for the same bed fails the way Postgres
// would.
func (m *mockRepo) CreateAssignment(_ context.Context, assignment *BedAssignment) error {
	for _, a := range m.assignments {
		if a.ReleasedAt != nil {
			continue
		}
		if a.BedID == assignment.BedID {
			return &pgconn.PgError{Code: "23505", ConstraintName: "uq_bed_assignments_open_bed"}
		}
		if a.AdmissionID == assignment.AdmissionID {
			return &pgconn.PgError{Code: "23505", ConstraintName: "uq_bed_assignments_open_admission"}
		}
	}
	assignment.ID = uuid.New()
	if assignment.AssignedAt.IsZero() {
		assignment.AssignedAt = time.Now()
	}
	m.assignments[assignment.ID] = assignment
	return nil
}

func (m *mockRepo) GetCurrentAssignment(_ context.Context, admissionID uuid.UUID) (*BedAssignment, error) {
	for _, a := range m.assignments {
		if a.AdmissionID == admissionID && a.ReleasedAt == nil {
			return a, nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (m *mockRepo) CloseAssignment(_ context.Context, assignmentID uuid.UUID, releasedBy string, transferReason *string) error {
	a, ok := m.assignments[assignmentID]
	if !ok || a.ReleasedAt != nil {
		return db.ErrConcurrentUpdate
	}
	now := time.Now()
	a.ReleasedAt = &now
	a.ReleasedBy = &releasedBy
	a.TransferReason = transferReason
	return nil
}

func (m *mockRepo) ListAssignments(_ context.Context, admissionID uuid.UUID) ([]*BedAssignment, error) {
	var result []*BedAssignment
	for _, a := range m.assignments {
		if a.AdmissionID == admissionID {
			result = append(result, a)
		}
	}
	return result, nil
}

// -- Mock collaborators --

// mockWardRepo backs a real ward.Service so bed transitions run through the
// actual status machine.
type mockWardRepo struct {
	beds map[uuid.UUID]*ward.Bed
	logs []*ward.BedStatusLog
}

func newMockWardRepo() *mockWardRepo {
	return &mockWardRepo{beds: make(map[uuid.UUID]*ward.Bed)}
}

func (m *mockWardRepo) addBed(status string) *ward.Bed {
	bed := &ward.Bed{ID: uuid.New(), RoomID: uuid.New(), BedNumber: "B", BedType: "standard", Status: status}
	m.beds[bed.ID] = bed
	return bed
}

func (m *mockWardRepo) CreateRoom(_ context.Context, _ *ward.Room) error  { return nil }
func (m *mockWardRepo) GetRoom(_ context.Context, _ uuid.UUID) (*ward.Room, error) {
	return nil, fmt.Errorf("not found")
}
func (m *mockWardRepo) ListRooms(_ context.Context, _, _ int) ([]*ward.Room, int, error) {
	return nil, 0, nil
}
func (m *mockWardRepo) SetRoomOperational(_ context.Context, _ uuid.UUID, _ bool) error { return nil }
func (m *mockWardRepo) CountBedsInRoom(_ context.Context, _ uuid.UUID) (int, error)     { return 0, nil }
func (m *mockWardRepo) CreateBed(_ context.Context, _ *ward.Bed) error                  { return nil }

func (m *mockWardRepo) GetBed(_ context.Context, id uuid.UUID) (*ward.Bed, error) {
	bed, ok := m.beds[id]
	if !ok {
		return nil, fmt.Errorf("not found")
	}
	cp := *bed
	return &cp, nil
}

func (m *mockWardRepo) GetBedForUpdate(ctx context.Context, id uuid.UUID) (*ward.Bed, error) {
	return m.GetBed(ctx, id)
}

func (m *mockWardRepo) ListBeds(_ context.Context, _ ward.BedFilter, _, _ int) ([]*ward.Bed, int, error) {
	return nil, 0, nil
}

func (m *mockWardRepo) UpdateBedStatus(_ context.Context, id uuid.UUID, status string) error {
	bed, ok := m.beds[id]
	if !ok {
		return fmt.Errorf("not found")
	}
	bed.Status = status
	return nil
}

func (m *mockWardRepo) GetOccupant(_ context.Context, _ uuid.UUID) (*ward.Occupant, error) {
	return nil, pgx.ErrNoRows
}

func (m *mockWardRepo) AddStatusLog(_ context.Context, log *ward.BedStatusLog) error {
	log.ID = uuid.New()
	log.CreatedAt = time.Now()
	m.logs = append(m.logs, log)
	return nil
}

func (m *mockWardRepo) GetBedHistory(_ context.Context, _ uuid.UUID, _ int) ([]*ward.BedStatusLog, error) {
	return m.logs, nil
}

type mockSequences struct {
	n int64
}

func (m *mockSequences) Next(_ context.Context, seqType string) (string, error) {
	m.n++
	return fmt.Sprintf("ADM-%d-%06d", time.Now().UTC().Year(), m.n), nil
}

type mockOutbox struct {
	payloads []dischargesync.DischargePayload
}

func (m *mockOutbox) Enqueue(_ context.Context, payload dischargesync.DischargePayload) error {
	m.payloads = append(m.payloads, payload)
	return nil
}

type fixture struct {
	svc      *Service
	repo     *mockRepo
	wardRepo *mockWardRepo
	outbox   *mockOutbox
}

func newFixture() *fixture {
	repo := newMockRepo()
	wardRepo := newMockWardRepo()
	outbox := &mockOutbox{}
	wardSvc := ward.NewService(wardRepo, nil)
	svc := NewService(repo, wardSvc, &mockSequences{}, outbox, nil)
	return &fixture{svc: svc, repo: repo, wardRepo: wardRepo, outbox: outbox}
}

func newActiveAdmission(f *fixture, doctorID uuid.UUID) *Admission {
	adm := &Admission{
		PatientID:     uuid.New(),
		DoctorID:      doctorID,
		AdmissionType: TypeEmergency,
		Source:        SourceER,
		Diagnosis:     "pneumonia",
	}
	if err := f.svc.Create(context.Background(), adm, nil, "registrar-1"); err != nil {
		panic(err)
	}
	return adm
}

// -- Tests --

func TestCreate_IssuesNumberAndAssignsBed(t *testing.T) {
	f := newFixture()
	bed := f.wardRepo.addBed(ward.StatusAvailable)

	adm := &Admission{
		PatientID:     uuid.New(),
		DoctorID:      uuid.New(),
		AdmissionType: TypeElective,
		Source:        SourceReferral,
		Diagnosis:     "cholecystitis",
	}
	if err := f.svc.Create(context.Background(), adm, &bed.ID, "registrar-1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if adm.Status != StatusActive {
		t.Errorf("expected active, got %s", adm.Status)
	}
	wantPrefix := fmt.Sprintf("ADM-%d-", time.Now().UTC().Year())
	if !strings.HasPrefix(adm.AdmissionNumber, wantPrefix) {
		t.Errorf("expected admission number prefix %q, got %q", wantPrefix, adm.AdmissionNumber)
	}
	if f.wardRepo.beds[bed.ID].Status != ward.StatusOccupied {
		t.Errorf("expected bed occupied, got %s", f.wardRepo.beds[bed.ID].Status)
	}

	current, err := f.svc.GetCurrentBed(context.Background(), adm.ID)
	if err != nil {
		t.Fatalf("get current bed: %v", err)
	}
	if current == nil || current.ID != bed.ID {
		t.Error("expected current bed to be the assigned bed")
	}
	if len(f.wardRepo.logs) != 1 {
		t.Errorf("expected one bed audit row, got %d", len(f.wardRepo.logs))
	}
}

func TestCreate_Validation(t *testing.T) {
	f := newFixture()
	base := Admission{
		PatientID:     uuid.New(),
		DoctorID:      uuid.New(),
		AdmissionType: TypeElective,
		Source:        SourceDirect,
		Diagnosis:     "x",
	}

	cases := []struct {
		name   string
		mutate func(a *Admission)
	}{
		{"missing patient", func(a *Admission) { a.PatientID = uuid.Nil }},
		{"missing doctor", func(a *Admission) { a.DoctorID = uuid.Nil }},
		{"bad type", func(a *Admission) { a.AdmissionType = "walk-in" }},
		{"bad source", func(a *Admission) { a.Source = "street" }},
		{"missing diagnosis", func(a *Admission) { a.Diagnosis = "" }},
	}
	for _, tc := range cases {
		adm := base
		tc.mutate(&adm)
		if err := f.svc.Create(context.Background(), &adm, nil, "actor"); err == nil {
			t.Errorf("%s: expected validation error", tc.name)
		}
	}
}

func TestAssignBed_Unavailable(t *testing.T) {
	f := newFixture()
	adm := newActiveAdmission(f, uuid.New())
	bed := f.wardRepo.addBed(ward.StatusMaintenance)

	_, err := f.svc.AssignBed(context.Background(), adm.ID, bed.ID, "nurse-1")
	if !errors.Is(err, ward.ErrBedUnavailable) {
		t.Fatalf("expected ErrBedUnavailable, got %v", err)
	}
}

func TestAssignBed_ConcurrentLoser(t *testing.T) {
	f := newFixture()
	a2 := newActiveAdmission(f, uuid.New())
	a3 := newActiveAdmission(f, uuid.New())
	bed := f.wardRepo.addBed(ward.StatusAvailable)

	if _, err := f.svc.AssignBed(context.Background(), a2.ID, bed.ID, "nurse-1"); err != nil {
		t.Fatalf("first assignment: %v", err)
	}
	_, err := f.svc.AssignBed(context.Background(), a3.ID, bed.ID, "nurse-2")
	if !errors.Is(err, ward.ErrBedUnavailable) {
		t.Fatalf("expected ErrBedUnavailable for losing writer, got %v", err)
	}

	// Invariant B: the bed still has exactly one open assignment.
	open := 0
	for _, a := range f.repo.assignments {
		if a.BedID == bed.ID && a.ReleasedAt == nil {
			open++
		}
	}
	if open != 1 {
		t.Errorf("expected one open assignment for the bed, got %d", open)
	}
}

func TestTransferBed(t *testing.T) {
	f := newFixture()
	adm := newActiveAdmission(f, uuid.New())
	b1 := f.wardRepo.addBed(ward.StatusAvailable)
	b2 := f.wardRepo.addBed(ward.StatusAvailable)

	first, err := f.svc.AssignBed(context.Background(), adm.ID, b1.ID, "nurse-1")
	if err != nil {
		t.Fatalf("assign: %v", err)
	}

	if _, err := f.svc.TransferBed(context.Background(), adm.ID, b2.ID, "nurse-1", ""); err == nil {
		t.Error("expected error for missing transfer reason")
	}

	second, err := f.svc.TransferBed(context.Background(), adm.ID, b2.ID, "nurse-1", "isolation required")
	if err != nil {
		t.Fatalf("transfer: %v", err)
	}

	if f.wardRepo.beds[b1.ID].Status != ward.StatusCleaning {
		t.Errorf("expected old bed cleaning, got %s", f.wardRepo.beds[b1.ID].Status)
	}
	if f.wardRepo.beds[b2.ID].Status != ward.StatusOccupied {
		t.Errorf("expected new bed occupied, got %s", f.wardRepo.beds[b2.ID].Status)
	}

	closed := f.repo.assignments[first.ID]
	if closed.ReleasedAt == nil {
		t.Error("expected first assignment closed")
	}
	if closed.TransferReason == nil || *closed.TransferReason != "isolation required" {
		t.Error("expected transfer reason recorded on the closed assignment")
	}
	if f.repo.assignments[second.ID].ReleasedAt != nil {
		t.Error("expected new assignment open")
	}

	// Invariant A: one open assignment for the admission.
	open := 0
	for _, a := range f.repo.assignments {
		if a.AdmissionID == adm.ID && a.ReleasedAt == nil {
			open++
		}
	}
	if open != 1 {
		t.Errorf("expected one open assignment for the admission, got %d", open)
	}
}

func TestDischargeFlow(t *testing.T) {
	f := newFixture()
	attending := uuid.New()
	other := uuid.New()
	adm := newActiveAdmission(f, attending)
	bed := f.wardRepo.addBed(ward.StatusAvailable)

	if _, err := f.svc.AssignBed(context.Background(), adm.ID, bed.ID, "nurse-1"); err != nil {
		t.Fatalf("assign: %v", err)
	}

	// Non-attending doctor is rejected, state unchanged.
	_, err := f.svc.RequestDischarge(context.Background(), adm.ID, other, "ready to go", nil)
	if !errors.Is(err, ErrAccessDenied) {
		t.Fatalf("expected ErrAccessDenied, got %v", err)
	}
	if f.repo.admissions[adm.ID].Status != StatusActive {
		t.Errorf("expected admission still active, got %s", f.repo.admissions[adm.ID].Status)
	}

	// Attending doctor moves it to pending_discharge; bed untouched.
	pending, err := f.svc.RequestDischarge(context.Background(), adm.ID, attending, "recovered", nil)
	if err != nil {
		t.Fatalf("request discharge: %v", err)
	}
	if pending.Status != StatusPendingDischarge {
		t.Errorf("expected pending_discharge, got %s", pending.Status)
	}
	if f.wardRepo.beds[bed.ID].Status != ward.StatusOccupied {
		t.Errorf("expected bed still occupied, got %s", f.wardRepo.beds[bed.ID].Status)
	}

	// Finalize releases the bed and freezes the record.
	final, err := f.svc.FinalizeDischarge(context.Background(), adm.ID, "registrar-1", StatusDischarged, "stable", "follow up in 2 weeks")
	if err != nil {
		t.Fatalf("finalize: %v", err)
	}
	if final.Status != StatusDischarged {
		t.Errorf("expected discharged, got %s", final.Status)
	}
	if final.DischargeDate == nil || final.LengthOfStayDays == nil {
		t.Error("expected discharge date and length of stay set")
	}
	if f.wardRepo.beds[bed.ID].Status != ward.StatusCleaning {
		t.Errorf("expected bed cleaning after discharge, got %s", f.wardRepo.beds[bed.ID].Status)
	}
	for _, a := range f.repo.assignments {
		if a.AdmissionID == adm.ID && a.ReleasedAt == nil {
			t.Error("expected all assignments released")
		}
	}
	if len(f.outbox.payloads) != 1 {
		t.Fatalf("expected one outbox event, got %d", len(f.outbox.payloads))
	}
	if f.outbox.payloads[0].AdmissionNumber != adm.AdmissionNumber {
		t.Error("expected outbox payload to carry the admission number")
	}
}

func TestFinalize_OnlyFromPendingDischarge(t *testing.T) {
	f := newFixture()
	adm := newActiveAdmission(f, uuid.New())

	_, err := f.svc.FinalizeDischarge(context.Background(), adm.ID, "actor", StatusDischarged, "", "")
	if !errors.Is(err, ErrInvalidStateTransition) {
		t.Fatalf("expected ErrInvalidStateTransition, got %v", err)
	}
	if len(f.outbox.payloads) != 0 {
		t.Error("expected no outbox event for a rejected finalize")
	}
}

func TestFinalize_InvalidDischargeType(t *testing.T) {
	f := newFixture()
	adm := newActiveAdmission(f, uuid.New())

	if _, err := f.svc.FinalizeDischarge(context.Background(), adm.ID, "actor", "eloped", "", ""); err == nil {
		t.Fatal("expected error for invalid discharge type")
	}
}

func TestTerminalStatesAreImmutable(t *testing.T) {
	f := newFixture()
	attending := uuid.New()
	adm := newActiveAdmission(f, attending)

	if _, err := f.svc.RequestDischarge(context.Background(), adm.ID, attending, "done", nil); err != nil {
		t.Fatalf("request: %v", err)
	}
	if _, err := f.svc.FinalizeDischarge(context.Background(), adm.ID, "actor", StatusDeceased, "", ""); err != nil {
		t.Fatalf("finalize: %v", err)
	}

	if _, err := f.svc.RequestDischarge(context.Background(), adm.ID, attending, "again", nil); !errors.Is(err, ErrInvalidStateTransition) {
		t.Errorf("request from terminal: expected ErrInvalidStateTransition, got %v", err)
	}
	if _, err := f.svc.CancelDischargeRequest(context.Background(), adm.ID); !errors.Is(err, ErrInvalidStateTransition) {
		t.Errorf("cancel from terminal: expected ErrInvalidStateTransition, got %v", err)
	}
	bed := f.wardRepo.addBed(ward.StatusAvailable)
	if _, err := f.svc.AssignBed(context.Background(), adm.ID, bed.ID, "nurse"); !errors.Is(err, ErrInvalidStateTransition) {
		t.Errorf("assign to terminal: expected ErrInvalidStateTransition, got %v", err)
	}
}

func TestCancelDischargeRequest(t *testing.T) {
	f := newFixture()
	attending := uuid.New()
	adm := newActiveAdmission(f, attending)

	if _, err := f.svc.RequestDischarge(context.Background(), adm.ID, attending, "done", nil); err != nil {
		t.Fatalf("request: %v", err)
	}
	back, err := f.svc.CancelDischargeRequest(context.Background(), adm.ID)
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if back.Status != StatusActive {
		t.Errorf("expected active after cancel, got %s", back.Status)
	}

	// Cancel is only valid from pending_discharge.
	if _, err := f.svc.CancelDischargeRequest(context.Background(), adm.ID); !errors.Is(err, ErrInvalidStateTransition) {
		t.Errorf("expected ErrInvalidStateTransition, got %v", err)
	}
}

func TestRequestDischarge_RequiresSummary(t *testing.T) {
	f := newFixture()
	attending := uuid.New()
	adm := newActiveAdmission(f, attending)

	if _, err := f.svc.RequestDischarge(context.Background(), adm.ID, attending, "", nil); err == nil {
		t.Fatal("expected error for empty summary")
	}
}

func TestGetCurrentBed_NoneAssigned(t *testing.T) {
	f := newFixture()
	adm := newActiveAdmission(f, uuid.New())

	bed, err := f.svc.GetCurrentBed(context.Background(), adm.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if bed != nil {
		t.Errorf("expected nil bed, got %v", bed)
	}
}
