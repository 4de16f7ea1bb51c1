package dischargesync

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

type mockRepo struct {
	events map[uuid.UUID]*Event
}

func newMockRepo() *mockRepo {
	return &mockRepo{events: make(map[uuid.UUID]*Event)}
}

func (m *mockRepo) Enqueue(_ context.Context, event *Event) error {
	event.ID = uuid.New()
	event.Status = StatusPending
	event.NextAttemptAt = time.Now()
	event.CreatedAt = time.Now()
	m.events[event.ID] = event
	return nil
}

func (m *mockRepo) ClaimDue(_ context.Context, limit int, lease time.Duration) ([]*Event, error) {
	var due []*Event
	now := time.Now()
	for _, e := range m.events {
		if e.Status == StatusPending && !e.NextAttemptAt.After(now) {
			e.NextAttemptAt = now.Add(lease)
			due = append(due, e)
			if len(due) == limit {
				break
			}
		}
	}
	return due, nil
}

func (m *mockRepo) MarkDelivered(_ context.Context, id uuid.UUID) error {
	e, ok := m.events[id]
	if !ok {
		return fmt.Errorf("not found")
	}
	now := time.Now()
	e.Status = StatusDelivered
	e.DeliveredAt = &now
	return nil
}

func (m *mockRepo) MarkAttemptFailed(_ context.Context, id uuid.UUID, attempts int, nextAttemptAt time.Time, lastError string, terminal bool) error {
	e, ok := m.events[id]
	if !ok {
		return fmt.Errorf("not found")
	}
	e.Attempts = attempts
	e.NextAttemptAt = nextAttemptAt
	e.LastError = &lastError
	if terminal {
		e.Status = StatusFailed
	}
	return nil
}

func (m *mockRepo) List(_ context.Context, status string, _, _ int) ([]*Event, int, error) {
	var result []*Event
	for _, e := range m.events {
		if status == "" || e.Status == status {
			result = append(result, e)
		}
	}
	return result, len(result), nil
}

type stubNotifier struct {
	err   error
	calls int
}

func (n *stubNotifier) Notify(_ context.Context, _ DischargePayload) error {
	n.calls++
	return n.err
}

type notifierFunc func(ctx context.Context, payload DischargePayload) error

func (f notifierFunc) Notify(ctx context.Context, payload DischargePayload) error {
	return f(ctx, payload)
}

func enqueue(t *testing.T, repo *mockRepo) *Event {
	t.Helper()
	event := &Event{
		AdmissionID: uuid.New(),
		Payload:     DischargePayload{AdmissionID: uuid.New(), AdmissionNumber: "ADM-2026-000001"},
	}
	if err := repo.Enqueue(context.Background(), event); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	return event
}

func newDispatcher(repo Repository, notifier Notifier, maxAttempts int) *Dispatcher {
	return NewDispatcher(repo, notifier, nil, zerolog.Nop(), time.Second, 10, maxAttempts)
}

func TestDispatchOnce_DeliversPendingEvents(t *testing.T) {
	repo := newMockRepo()
	event := enqueue(t, repo)
	notifier := &stubNotifier{}

	delivered, err := newDispatcher(repo, notifier, 5).DispatchOnce(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if delivered != 1 {
		t.Errorf("expected 1 delivered, got %d", delivered)
	}
	got := repo.events[event.ID]
	if got.Status != StatusDelivered {
		t.Errorf("expected delivered, got %s", got.Status)
	}
	if got.DeliveredAt == nil {
		t.Error("expected delivered_at stamped")
	}
}

func TestDispatchOnce_FailureSchedulesRetry(t *testing.T) {
	repo := newMockRepo()
	event := enqueue(t, repo)
	notifier := &stubNotifier{err: errors.New("connection refused")}

	delivered, err := newDispatcher(repo, notifier, 5).DispatchOnce(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if delivered != 0 {
		t.Errorf("expected 0 delivered, got %d", delivered)
	}

	got := repo.events[event.ID]
	if got.Status != StatusPending {
		t.Errorf("expected still pending, got %s", got.Status)
	}
	if got.Attempts != 1 {
		t.Errorf("expected 1 attempt, got %d", got.Attempts)
	}
	if got.LastError == nil || *got.LastError != "connection refused" {
		t.Error("expected last error recorded")
	}
	if !got.NextAttemptAt.After(time.Now()) {
		t.Error("expected next attempt pushed into the future")
	}
}

func TestDispatchOnce_TerminalFailureAtMaxAttempts(t *testing.T) {
	repo := newMockRepo()
	event := enqueue(t, repo)
	event.Attempts = 2
	notifier := &stubNotifier{err: errors.New("gateway down")}

	if _, err := newDispatcher(repo, notifier, 3).DispatchOnce(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got := repo.events[event.ID]
	if got.Status != StatusFailed {
		t.Errorf("expected failed after max attempts, got %s", got.Status)
	}
	if got.Attempts != 3 {
		t.Errorf("expected 3 attempts, got %d", got.Attempts)
	}
}

func TestDispatchOnce_SkipsEventsNotYetDue(t *testing.T) {
	repo := newMockRepo()
	event := enqueue(t, repo)
	event.NextAttemptAt = time.Now().Add(time.Hour)
	notifier := &stubNotifier{}

	delivered, err := newDispatcher(repo, notifier, 5).DispatchOnce(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if delivered != 0 || notifier.calls != 0 {
		t.Errorf("expected no delivery attempt, got delivered=%d calls=%d", delivered, notifier.calls)
	}
}

func TestDispatchOnce_ClaimedEventsHiddenFromRivalClaim(t *testing.T) {
	repo := newMockRepo()
	event := enqueue(t, repo)

	rival := -1
	notifier := notifierFunc(func(ctx context.Context, _ DischargePayload) error {
		claimed, err := repo.ClaimDue(ctx, 10, claimLease)
		if err != nil {
			return err
		}
		rival = len(claimed)
		return nil
	})

	delivered, err := newDispatcher(repo, notifier, 5).DispatchOnce(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if delivered != 1 {
		t.Errorf("expected 1 delivered, got %d", delivered)
	}
	if rival != 0 {
		t.Errorf("expected in-flight event hidden from a second claim, got %d", rival)
	}
	if repo.events[event.ID].Status != StatusDelivered {
		t.Errorf("expected delivered, got %s", repo.events[event.ID].Status)
	}
}

func TestDispatchOnce_OutcomesRecordedPerEvent(t *testing.T) {
	repo := newMockRepo()
	good := enqueue(t, repo)
	bad := enqueue(t, repo)

	notifier := notifierFunc(func(_ context.Context, payload DischargePayload) error {
		if payload.AdmissionID == bad.Payload.AdmissionID {
			return errors.New("gateway down")
		}
		return nil
	})

	delivered, err := newDispatcher(repo, notifier, 5).DispatchOnce(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if delivered != 1 {
		t.Errorf("expected 1 delivered, got %d", delivered)
	}
	if repo.events[good.ID].Status != StatusDelivered {
		t.Errorf("expected good event delivered, got %s", repo.events[good.ID].Status)
	}
	if got := repo.events[bad.ID]; got.Status != StatusPending || got.Attempts != 1 {
		t.Errorf("expected bad event retried independently, got status=%s attempts=%d", got.Status, got.Attempts)
	}
}

func TestBackoff_DoublesAndCaps(t *testing.T) {
	cases := []struct {
		attempts int
		want     time.Duration
	}{
		{1, 30 * time.Second},
		{2, time.Minute},
		{3, 2 * time.Minute},
		{8, time.Hour},
		{20, time.Hour},
	}
	for _, tc := range cases {
		if got := backoff(tc.attempts); got != tc.want {
			t.Errorf("backoff(%d): expected %v, got %v", tc.attempts, tc.want, got)
		}
	}
}

func TestService_ListRejectsUnknownStatus(t *testing.T) {
	svc := NewService(newMockRepo())
	if _, _, err := svc.List(context.Background(), "bogus", 20, 0); err == nil {
		t.Fatal("expected error for unknown status filter")
	}
}
