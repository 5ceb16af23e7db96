package orchestrator

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shaiso/Flowline/internal/capability"
	"github.com/shaiso/Flowline/internal/catalog"
	"github.com/shaiso/Flowline/internal/domain"
	"github.com/shaiso/Flowline/internal/engine"
	"github.com/shaiso/Flowline/internal/ledger"
	"github.com/shaiso/Flowline/internal/repo"
)

// --- Fakes ---

type fakeWorkflowStore struct {
	mu  sync.Mutex
	wfs map[uuid.UUID]*domain.Workflow
}

func (s *fakeWorkflowStore) GetByID(_ context.Context, id uuid.UUID) (*domain.Workflow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	wf, ok := s.wfs[id]
	if !ok {
		return nil, repo.ErrNotFound
	}
	return wf, nil
}

type fakeRunStore struct {
	mu        sync.Mutex
	runs      map[uuid.UUID]*domain.Execution
	finalized []*domain.Execution
}

func (s *fakeRunStore) GetRun(_ context.Context, runID uuid.UUID) (*domain.Execution, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	exec, ok := s.runs[runID]
	if !ok {
		return nil, repo.ErrNotFound
	}
	return exec, nil
}

func (s *fakeRunStore) ListPending(_ context.Context, limit int) ([]*domain.Execution, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*domain.Execution
	for _, exec := range s.runs {
		if exec.Status == domain.ExecutionStatusPending {
			out = append(out, exec)
		}
		if len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (s *fakeRunStore) ListCancelRequested(_ context.Context, _ int) ([]*domain.Execution, error) {
	return nil, nil
}

func (s *fakeRunStore) Finalize(_ context.Context, exec *domain.Execution) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.finalized = append(s.finalized, exec)
	return nil
}

// --- Helpers ---

func testWorkflow() *domain.Workflow {
	return &domain.Workflow{
		ID:       uuid.New(),
		Name:     "ping",
		IsActive: true,
		Nodes: []domain.NodeInstance{
			{ID: "hook", Kind: "webhook", Label: "Hook"},
			{ID: "reply", Kind: "response", Label: "Reply"},
		},
		Edges: []domain.Edge{
			{ID: "e1", SourceNodeID: "hook", SourcePort: domain.PortDefault, TargetNodeID: "reply"},
		},
	}
}

func testProviders() *capability.Registry {
	reg := capability.NewRegistry()
	reg.Register(&capability.StaticProvider{
		NodeKind: "webhook",
		Outputs:  map[string]any{"received": true},
	})
	reg.Register(&capability.StaticProvider{
		NodeKind: "response",
		Outputs:  map[string]any{"sent": true},
	})
	return reg
}

func newTestOrchestrator(t *testing.T, wfs *fakeWorkflowStore, runs *fakeRunStore) (*Orchestrator, *ledger.InMemoryLedger) {
	t.Helper()

	led := ledger.NewInMemoryLedger()
	eng := engine.New(engine.Config{
		Catalog:   catalog.DefaultRegistry(),
		Providers: testProviders(),
		Ledger:    led,
		Logger:    slog.Default(),
	})

	orc := New(Config{
		Workflows: wfs,
		Runs:      runs,
		Engine:    eng,
		Logger:    slog.Default(),
	})

	return orc, led
}

func waitForRun(t *testing.T, led *ledger.InMemoryLedger, runID uuid.UUID) *domain.Execution {
	t.Helper()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		exec, err := led.GetRun(context.Background(), runID)
		if err == nil && exec.IsFinished() {
			return exec
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("run %s did not finish in time", runID)
	return nil
}

// --- Tests ---

func TestLaunchRunCompletes(t *testing.T) {
	wf := testWorkflow()
	runID := uuid.New()

	wfs := &fakeWorkflowStore{wfs: map[uuid.UUID]*domain.Workflow{wf.ID: wf}}
	runs := &fakeRunStore{runs: map[uuid.UUID]*domain.Execution{
		runID: {
			ID:             runID,
			WorkflowID:     wf.ID,
			Status:         domain.ExecutionStatusPending,
			TriggerPayload: map[string]any{"ping": "pong"},
		},
	}}

	orc, led := newTestOrchestrator(t, wfs, runs)

	if err := orc.launchRun(context.Background(), runID); err != nil {
		t.Fatalf("launchRun: %v", err)
	}

	exec := waitForRun(t, led, runID)
	if exec.Status != domain.ExecutionStatusCompleted {
		t.Errorf("status = %s, want COMPLETED", exec.Status)
	}
	if len(exec.Nodes) != 2 {
		t.Errorf("nodes = %d, want 2", len(exec.Nodes))
	}

	// Горутина должна освободить учёт после завершения
	deadline := time.Now().Add(time.Second)
	for orc.InFlightCount() != 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if n := orc.InFlightCount(); n != 0 {
		t.Errorf("in-flight count = %d, want 0", n)
	}
}

func TestLaunchRunNotPending(t *testing.T) {
	wf := testWorkflow()
	runID := uuid.New()

	exec := &domain.Execution{ID: runID, WorkflowID: wf.ID, Status: domain.ExecutionStatusPending}
	exec.MarkRunning()

	wfs := &fakeWorkflowStore{wfs: map[uuid.UUID]*domain.Workflow{wf.ID: wf}}
	runs := &fakeRunStore{runs: map[uuid.UUID]*domain.Execution{runID: exec}}

	orc, _ := newTestOrchestrator(t, wfs, runs)

	if err := orc.launchRun(context.Background(), runID); !errors.Is(err, ErrRunNotPending) {
		t.Errorf("err = %v, want ErrRunNotPending", err)
	}
}

func TestLaunchRunUnknown(t *testing.T) {
	orc, _ := newTestOrchestrator(t,
		&fakeWorkflowStore{wfs: map[uuid.UUID]*domain.Workflow{}},
		&fakeRunStore{runs: map[uuid.UUID]*domain.Execution{}},
	)

	if err := orc.launchRun(context.Background(), uuid.New()); !errors.Is(err, ErrRunNotFound) {
		t.Errorf("err = %v, want ErrRunNotFound", err)
	}
}

func TestLaunchRunWorkflowMissing(t *testing.T) {
	runID := uuid.New()
	runs := &fakeRunStore{runs: map[uuid.UUID]*domain.Execution{
		runID: {ID: runID, WorkflowID: uuid.New(), Status: domain.ExecutionStatusPending},
	}}

	orc, _ := newTestOrchestrator(t, &fakeWorkflowStore{wfs: map[uuid.UUID]*domain.Workflow{}}, runs)

	if err := orc.launchRun(context.Background(), runID); err != nil {
		t.Fatalf("launchRun: %v", err)
	}

	runs.mu.Lock()
	defer runs.mu.Unlock()
	if len(runs.finalized) != 1 {
		t.Fatalf("finalized = %d, want 1", len(runs.finalized))
	}
	if got := runs.finalized[0].Status; got != domain.ExecutionStatusFailed {
		t.Errorf("status = %s, want FAILED", got)
	}
	if runs.finalized[0].Error == "" {
		t.Error("expected error message on failed run")
	}
}

func TestPollLaunchesPending(t *testing.T) {
	wf := testWorkflow()
	runID := uuid.New()

	wfs := &fakeWorkflowStore{wfs: map[uuid.UUID]*domain.Workflow{wf.ID: wf}}
	runs := &fakeRunStore{runs: map[uuid.UUID]*domain.Execution{
		runID: {ID: runID, WorkflowID: wf.ID, Status: domain.ExecutionStatusPending},
	}}

	orc, led := newTestOrchestrator(t, wfs, runs)

	orc.poll(context.Background())

	exec := waitForRun(t, led, runID)
	if exec.Status != domain.ExecutionStatusCompleted {
		t.Errorf("status = %s, want COMPLETED", exec.Status)
	}
}

func TestLaunchRunTwice(t *testing.T) {
	wf := testWorkflow()
	runID := uuid.New()

	wfs := &fakeWorkflowStore{wfs: map[uuid.UUID]*domain.Workflow{wf.ID: wf}}
	runs := &fakeRunStore{runs: map[uuid.UUID]*domain.Execution{
		runID: {ID: runID, WorkflowID: wf.ID, Status: domain.ExecutionStatusPending},
	}}

	orc, led := newTestOrchestrator(t, wfs, runs)

	first := orc.launchRun(context.Background(), runID)
	second := orc.launchRun(context.Background(), runID)

	if first != nil && second != nil {
		t.Fatalf("both launches failed: %v / %v", first, second)
	}
	// Вторая попытка либо отклонена как активная, либо проскочила после
	// завершения первой. Тогда дубликат отсекает журнал.
	if second != nil && !errors.Is(second, ErrRunAlreadyActive) {
		t.Errorf("second launch err = %v, want ErrRunAlreadyActive", second)
	}

	waitForRun(t, led, runID)
}
