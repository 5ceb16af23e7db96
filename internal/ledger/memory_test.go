package ledger

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/shaiso/Flowline/internal/domain"
)

func newRun(t *testing.T, l *InMemoryLedger) *domain.Execution {
	t.Helper()
	exec := &domain.Execution{
		ID:         uuid.New(),
		WorkflowID: uuid.New(),
		Status:     domain.ExecutionStatusPending,
	}
	exec.MarkRunning()
	if err := l.StartRun(context.Background(), exec); err != nil {
		t.Fatal(err)
	}
	return exec
}

func TestStartRunDuplicate(t *testing.T) {
	l := NewInMemoryLedger()
	exec := newRun(t, l)

	err := l.StartRun(context.Background(), exec)
	if !errors.Is(err, ErrDuplicateRun) {
		t.Errorf("expected ErrDuplicateRun, got %v", err)
	}
}

func TestNodeLifecycle(t *testing.T) {
	ctx := context.Background()
	l := NewInMemoryLedger()
	exec := newRun(t, l)

	node := &domain.NodeExecution{
		ID:          uuid.New(),
		ExecutionID: exec.ID,
		NodeID:      "n1",
		Kind:        "webhook",
		Status:      domain.NodeStatusPending,
	}
	node.MarkRunning()
	if err := l.NodeStarted(ctx, node); err != nil {
		t.Fatal(err)
	}

	node.MarkCompleted(map[string]any{"x": 1}, []string{domain.PortDefault})
	if err := l.NodeCompleted(ctx, node); err != nil {
		t.Fatal(err)
	}

	got, err := l.GetRun(ctx, exec.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(got.Nodes) != 1 {
		t.Fatalf("expected 1 node record, got %d", len(got.Nodes))
	}
	if got.Nodes[0].Status != domain.NodeStatusCompleted {
		t.Errorf("node status = %s", got.Nodes[0].Status)
	}
}

func TestTerminalNodeIsImmutable(t *testing.T) {
	ctx := context.Background()
	l := NewInMemoryLedger()
	exec := newRun(t, l)

	node := &domain.NodeExecution{
		ID:          uuid.New(),
		ExecutionID: exec.ID,
		NodeID:      "n1",
		Status:      domain.NodeStatusPending,
	}
	node.MarkRunning()
	if err := l.NodeStarted(ctx, node); err != nil {
		t.Fatal(err)
	}
	node.MarkFailed("boom")
	if err := l.NodeFailed(ctx, node); err != nil {
		t.Fatal(err)
	}

	node.MarkCompleted(nil, nil)
	err := l.NodeCompleted(ctx, node)
	if !errors.Is(err, ErrTerminalTransition) {
		t.Errorf("expected ErrTerminalTransition, got %v", err)
	}
}

func TestFinalizeTwice(t *testing.T) {
	ctx := context.Background()
	l := NewInMemoryLedger()
	exec := newRun(t, l)

	exec.MarkCompleted()
	if err := l.Finalize(ctx, exec); err != nil {
		t.Fatal(err)
	}

	exec.Status = domain.ExecutionStatusFailed
	err := l.Finalize(ctx, exec)
	if !errors.Is(err, ErrTerminalTransition) {
		t.Errorf("expected ErrTerminalTransition, got %v", err)
	}
}

func TestSkipWithoutStart(t *testing.T) {
	ctx := context.Background()
	l := NewInMemoryLedger()
	exec := newRun(t, l)

	node := &domain.NodeExecution{
		ID:          uuid.New(),
		ExecutionID: exec.ID,
		NodeID:      "n2",
		Status:      domain.NodeStatusPending,
	}
	node.MarkSkipped(domain.SkipReasonBranch)
	if err := l.NodeSkipped(ctx, node); err != nil {
		t.Fatal(err)
	}

	got, err := l.GetRun(ctx, exec.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Nodes[0].Status != domain.NodeStatusSkipped {
		t.Errorf("status = %s", got.Nodes[0].Status)
	}
	if got.Nodes[0].SkipReason != domain.SkipReasonBranch {
		t.Errorf("skip reason = %s", got.Nodes[0].SkipReason)
	}
}

func TestListRunsFilterAndLimit(t *testing.T) {
	ctx := context.Background()
	l := NewInMemoryLedger()

	wfA := uuid.New()
	wfB := uuid.New()
	for i := 0; i < 3; i++ {
		exec := &domain.Execution{ID: uuid.New(), WorkflowID: wfA, Status: domain.ExecutionStatusPending}
		if err := l.StartRun(ctx, exec); err != nil {
			t.Fatal(err)
		}
	}
	exec := &domain.Execution{ID: uuid.New(), WorkflowID: wfB, Status: domain.ExecutionStatusPending}
	if err := l.StartRun(ctx, exec); err != nil {
		t.Fatal(err)
	}

	runs, err := l.ListRuns(ctx, wfA, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(runs) != 2 {
		t.Errorf("expected 2 runs, got %d", len(runs))
	}
	for _, r := range runs {
		if r.WorkflowID != wfA {
			t.Errorf("unexpected workflow %s", r.WorkflowID)
		}
	}

	all, err := l.ListRuns(ctx, uuid.Nil, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 4 {
		t.Errorf("expected 4 runs, got %d", len(all))
	}
}

func TestGetRunNotFound(t *testing.T) {
	l := NewInMemoryLedger()
	_, err := l.GetRun(context.Background(), uuid.New())
	if !errors.Is(err, ErrRunNotFound) {
		t.Errorf("expected ErrRunNotFound, got %v", err)
	}
}
