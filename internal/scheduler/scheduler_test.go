package scheduler

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shaiso/Flowline/internal/domain"
	"github.com/shaiso/Flowline/internal/repo"
)

// --- Fakes ---

type fakeScheduleStore struct {
	due     []domain.Schedule
	updated []*domain.Schedule
}

func (s *fakeScheduleStore) ListDue(_ context.Context, _ time.Time, _ int) ([]domain.Schedule, error) {
	return s.due, nil
}

func (s *fakeScheduleStore) Update(_ context.Context, sched *domain.Schedule) error {
	cp := *sched
	s.updated = append(s.updated, &cp)
	return nil
}

type fakeRunStore struct {
	created []*domain.Execution
	byKey   map[string]*domain.Execution
}

func (s *fakeRunStore) CreatePending(_ context.Context, exec *domain.Execution) error {
	s.created = append(s.created, exec)
	return nil
}

func (s *fakeRunStore) GetByIdempotencyKey(_ context.Context, _ uuid.UUID, key string) (*domain.Execution, error) {
	if exec, ok := s.byKey[key]; ok {
		return exec, nil
	}
	return nil, repo.ErrNotFound
}

type fakeWorkflowStore struct {
	wfs map[uuid.UUID]*domain.Workflow
}

func (s *fakeWorkflowStore) GetByID(_ context.Context, id uuid.UUID) (*domain.Workflow, error) {
	wf, ok := s.wfs[id]
	if !ok {
		return nil, repo.ErrNotFound
	}
	return wf, nil
}

// --- Helpers ---

func dueSchedule(workflowID uuid.UUID) domain.Schedule {
	due := time.Now().Add(-time.Minute)
	return domain.Schedule{
		ID:          uuid.New(),
		WorkflowID:  workflowID,
		Name:        "nightly",
		IntervalSec: 3600,
		Timezone:    "UTC",
		Enabled:     true,
		NextDueAt:   &due,
		Payload:     map[string]any{"source": "schedule"},
	}
}

// --- Tests ---

func TestTickCreatesExecution(t *testing.T) {
	wf := &domain.Workflow{ID: uuid.New(), IsActive: true}
	sched := dueSchedule(wf.ID)

	schedules := &fakeScheduleStore{due: []domain.Schedule{sched}}
	runs := &fakeRunStore{byKey: map[string]*domain.Execution{}}
	workflows := &fakeWorkflowStore{wfs: map[uuid.UUID]*domain.Workflow{wf.ID: wf}}

	s := New(Config{Schedules: schedules, Runs: runs, Workflows: workflows})

	if err := s.Tick(context.Background()); err != nil {
		t.Fatalf("Tick: %v", err)
	}

	if len(runs.created) != 1 {
		t.Fatalf("created = %d, want 1", len(runs.created))
	}

	exec := runs.created[0]
	if exec.WorkflowID != wf.ID {
		t.Errorf("workflow_id = %s, want %s", exec.WorkflowID, wf.ID)
	}
	if exec.Status != domain.ExecutionStatusPending {
		t.Errorf("status = %s, want PENDING", exec.Status)
	}
	if exec.IdempotencyKey == "" {
		t.Error("expected idempotency key")
	}
	if exec.TriggerPayload["source"] != "schedule" {
		t.Error("expected schedule payload as trigger payload")
	}

	// next_due_at должен сдвинуться вперёд
	if len(schedules.updated) != 1 {
		t.Fatalf("updated = %d, want 1", len(schedules.updated))
	}
	upd := schedules.updated[0]
	if upd.NextDueAt == nil || !upd.NextDueAt.After(time.Now()) {
		t.Error("next_due_at should move into the future")
	}
	if upd.LastRunID == nil || *upd.LastRunID != exec.ID {
		t.Error("last_run_id should point to the created execution")
	}
}

func TestTickIdempotent(t *testing.T) {
	wf := &domain.Workflow{ID: uuid.New(), IsActive: true}
	sched := dueSchedule(wf.ID)

	existing := &domain.Execution{ID: uuid.New(), WorkflowID: wf.ID}

	runs := &fakeRunStore{byKey: map[string]*domain.Execution{}}
	// Регистрируем существующий execution под ожидаемым ключом
	key := fmt.Sprintf("%s_%d", sched.ID, sched.NextDueAt.Unix())
	runs.byKey[key] = existing

	schedules := &fakeScheduleStore{due: []domain.Schedule{sched}}
	workflows := &fakeWorkflowStore{wfs: map[uuid.UUID]*domain.Workflow{wf.ID: wf}}

	s := New(Config{Schedules: schedules, Runs: runs, Workflows: workflows})

	if err := s.Tick(context.Background()); err != nil {
		t.Fatalf("Tick: %v", err)
	}

	if len(runs.created) != 0 {
		t.Errorf("created = %d, want 0 (duplicate suppressed)", len(runs.created))
	}
	// Schedule всё равно двигается вперёд
	if len(schedules.updated) != 1 {
		t.Errorf("updated = %d, want 1", len(schedules.updated))
	}
}

func TestTickSkipsInactiveWorkflow(t *testing.T) {
	wf := &domain.Workflow{ID: uuid.New(), IsActive: false}
	sched := dueSchedule(wf.ID)

	schedules := &fakeScheduleStore{due: []domain.Schedule{sched}}
	runs := &fakeRunStore{byKey: map[string]*domain.Execution{}}
	workflows := &fakeWorkflowStore{wfs: map[uuid.UUID]*domain.Workflow{wf.ID: wf}}

	s := New(Config{Schedules: schedules, Runs: runs, Workflows: workflows})

	if err := s.Tick(context.Background()); err != nil {
		t.Fatalf("Tick: %v", err)
	}

	if len(runs.created) != 0 {
		t.Errorf("created = %d, want 0 for inactive workflow", len(runs.created))
	}
	// next_due_at двигается, чтобы schedule не застрял в due
	if len(schedules.updated) != 1 {
		t.Errorf("updated = %d, want 1", len(schedules.updated))
	}
}

func TestTickMissingWorkflow(t *testing.T) {
	sched := dueSchedule(uuid.New())

	schedules := &fakeScheduleStore{due: []domain.Schedule{sched}}
	runs := &fakeRunStore{byKey: map[string]*domain.Execution{}}
	workflows := &fakeWorkflowStore{wfs: map[uuid.UUID]*domain.Workflow{}}

	s := New(Config{Schedules: schedules, Runs: runs, Workflows: workflows})

	if err := s.Tick(context.Background()); err != nil {
		t.Fatalf("Tick: %v", err)
	}

	if len(runs.created) != 0 {
		t.Errorf("created = %d, want 0 for missing workflow", len(runs.created))
	}
}
