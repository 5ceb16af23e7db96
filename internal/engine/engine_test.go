package engine

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shaiso/Flowline/internal/capability"
	"github.com/shaiso/Flowline/internal/catalog"
	"github.com/shaiso/Flowline/internal/domain"
	"github.com/shaiso/Flowline/internal/ledger"
)

// localProviders — провайдеры без внешних вызовов.
func localProviders() *capability.Registry {
	r := capability.NewRegistry()
	r.Register(capability.NewWebhookTrigger())
	r.Register(capability.NewFormTrigger())
	r.Register(capability.NewConditionProvider())
	r.Register(capability.NewMemoryProvider(capability.NewInMemoryStore()))
	r.Register(capability.NewResponseProvider())
	return r
}

func newTestEngine(providers *capability.Registry, opts ...func(*Config)) (*Engine, *ledger.InMemoryLedger) {
	led := ledger.NewInMemoryLedger()
	cfg := Config{
		Catalog:     catalog.DefaultRegistry(),
		Providers:   providers,
		Ledger:      led,
		Credentials: MapResolver{},
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	return New(cfg), led
}

func nodeByID(t *testing.T, exec *domain.Execution, nodeID string) *domain.NodeExecution {
	t.Helper()
	for i := range exec.Nodes {
		if exec.Nodes[i].NodeID == nodeID {
			return &exec.Nodes[i]
		}
	}
	t.Fatalf("no record for node %s", nodeID)
	return nil
}

func TestExecuteLinearChain(t *testing.T) {
	eng, _ := newTestEngine(localProviders())

	wf := &domain.Workflow{
		ID: uuid.New(),
		Nodes: []domain.NodeInstance{
			{ID: "hook", Kind: "webhook", Label: "Start"},
			{ID: "save", Kind: "memory", Label: "Save", Config: map[string]any{
				"action": "store", "key": "name", "value": "{{$json.body.name}}",
			}},
			{ID: "reply", Kind: "response", Label: "Reply", Config: map[string]any{
				"body": "saved {{$node[\"Save\"].json.value}}",
			}},
		},
		Edges: []domain.Edge{
			{ID: "e1", SourceNodeID: "hook", SourcePort: domain.PortDefault, TargetNodeID: "save"},
			{ID: "e2", SourceNodeID: "save", SourcePort: domain.PortDefault, TargetNodeID: "reply"},
		},
	}

	exec, err := eng.Execute(context.Background(), RunRequest{
		Workflow: wf,
		Trigger:  map[string]any{"body": map[string]any{"name": "alice"}},
	})
	if err != nil {
		t.Fatal(err)
	}

	if exec.Status != domain.ExecutionStatusCompleted {
		t.Fatalf("run status = %s, error = %s", exec.Status, exec.Error)
	}
	if len(exec.Nodes) != 3 {
		t.Fatalf("expected 3 node records, got %d", len(exec.Nodes))
	}
	for _, n := range exec.Nodes {
		if n.Status != domain.NodeStatusCompleted {
			t.Errorf("node %s status = %s", n.NodeID, n.Status)
		}
	}

	save := nodeByID(t, exec, "save")
	if save.ResolvedInput["value"] != "alice" {
		t.Errorf("resolved value = %v", save.ResolvedInput["value"])
	}

	reply := nodeByID(t, exec, "reply")
	if reply.Output["body"] != "saved alice" {
		t.Errorf("reply body = %v", reply.Output["body"])
	}
}

func TestExecuteBranchSkipsUntakenPath(t *testing.T) {
	eng, _ := newTestEngine(localProviders())

	wf := validWorkflow() // hook → cond → (true: save, false: reply)

	exec, err := eng.Execute(context.Background(), RunRequest{
		Workflow: wf,
		Trigger:  map[string]any{"body": map[string]any{"status": "ok"}},
	})
	if err != nil {
		t.Fatal(err)
	}

	if exec.Status != domain.ExecutionStatusCompleted {
		t.Fatalf("run status = %s, error = %s", exec.Status, exec.Error)
	}

	cond := nodeByID(t, exec, "cond")
	if len(cond.ActivatedPorts) != 1 || cond.ActivatedPorts[0] != domain.PortTrue {
		t.Errorf("activated ports = %v", cond.ActivatedPorts)
	}

	if got := nodeByID(t, exec, "save").Status; got != domain.NodeStatusCompleted {
		t.Errorf("save status = %s", got)
	}

	reply := nodeByID(t, exec, "reply")
	if reply.Status != domain.NodeStatusSkipped {
		t.Errorf("reply status = %s", reply.Status)
	}
	if reply.SkipReason != domain.SkipReasonBranch {
		t.Errorf("reply skip reason = %s", reply.SkipReason)
	}
}

func TestExecuteFailureIsolation(t *testing.T) {
	providers := localProviders()
	providers.Register(&capability.StaticProvider{
		NodeKind: "response",
		Err:      errors.New("boom"),
	})
	eng, _ := newTestEngine(providers)

	// hook ветвится на два независимых пути: сбойный и здоровый.
	wf := &domain.Workflow{
		ID: uuid.New(),
		Nodes: []domain.NodeInstance{
			{ID: "hook", Kind: "webhook"},
			{ID: "bad", Kind: "response"},
			{ID: "after_bad", Kind: "memory", Config: map[string]any{
				"action": "store", "key": "k", "value": "v",
			}},
			{ID: "good", Kind: "memory", Config: map[string]any{
				"action": "store", "key": "k2", "value": "v2",
			}},
		},
		Edges: []domain.Edge{
			{ID: "e1", SourceNodeID: "hook", SourcePort: domain.PortDefault, TargetNodeID: "bad"},
			{ID: "e2", SourceNodeID: "hook", SourcePort: domain.PortDefault, TargetNodeID: "good"},
			{ID: "e3", SourceNodeID: "bad", SourcePort: domain.PortDefault, TargetNodeID: "after_bad"},
		},
	}

	exec, err := eng.Execute(context.Background(), RunRequest{Workflow: wf})
	if err != nil {
		t.Fatal(err)
	}

	if exec.Status != domain.ExecutionStatusFailed {
		t.Fatalf("run status = %s", exec.Status)
	}

	bad := nodeByID(t, exec, "bad")
	if bad.Status != domain.NodeStatusFailed || bad.Error == "" {
		t.Errorf("bad: status = %s, error = %q", bad.Status, bad.Error)
	}

	afterBad := nodeByID(t, exec, "after_bad")
	if afterBad.Status != domain.NodeStatusSkipped {
		t.Errorf("after_bad status = %s", afterBad.Status)
	}
	if afterBad.SkipReason != domain.SkipReasonUpstreamFailed {
		t.Errorf("after_bad skip reason = %s", afterBad.SkipReason)
	}

	// Независимая ветвь не страдает от чужого сбоя.
	if got := nodeByID(t, exec, "good").Status; got != domain.NodeStatusCompleted {
		t.Errorf("good status = %s", got)
	}
}

func TestExecuteUnresolvedReferenceFailsNode(t *testing.T) {
	eng, _ := newTestEngine(localProviders())

	wf := &domain.Workflow{
		ID: uuid.New(),
		Nodes: []domain.NodeInstance{
			{ID: "hook", Kind: "webhook"},
			{ID: "save", Kind: "memory", Config: map[string]any{
				"action": "store", "key": "k", "value": `{{$node["Nowhere"].json.x}}`,
			}},
		},
		Edges: []domain.Edge{
			{ID: "e1", SourceNodeID: "hook", SourcePort: domain.PortDefault, TargetNodeID: "save"},
		},
	}

	exec, err := eng.Execute(context.Background(), RunRequest{Workflow: wf})
	if err != nil {
		t.Fatal(err)
	}

	if exec.Status != domain.ExecutionStatusFailed {
		t.Fatalf("run status = %s", exec.Status)
	}
	save := nodeByID(t, exec, "save")
	if save.Status != domain.NodeStatusFailed {
		t.Errorf("save status = %s", save.Status)
	}
	// Ошибка называет конкретный неразрешимый placeholder.
	if want := `{{$node["Nowhere"].json.x}}`; !contains(save.Error, want) {
		t.Errorf("error %q does not mention %q", save.Error, want)
	}
}

func TestExecuteInvalidWorkflowFailsWithoutNodeRecords(t *testing.T) {
	eng, _ := newTestEngine(localProviders())

	wf := &domain.Workflow{
		ID: uuid.New(),
		Nodes: []domain.NodeInstance{
			{ID: "lonely", Kind: "memory", Config: map[string]any{"action": "store", "key": "k"}},
		},
	}

	exec, err := eng.Execute(context.Background(), RunRequest{Workflow: wf})
	if err != nil {
		t.Fatal(err)
	}

	if exec.Status != domain.ExecutionStatusFailed {
		t.Fatalf("run status = %s", exec.Status)
	}
	if len(exec.Nodes) != 0 {
		t.Errorf("expected no node records, got %d", len(exec.Nodes))
	}
	if exec.Error == "" {
		t.Error("expected validation error message")
	}
}

func TestExecuteMergeAfterBranch(t *testing.T) {
	eng, _ := newTestEngine(localProviders())

	// Слияние после if: merge ждёт решения обоих рёбер и выполняется,
	// когда активировано хотя бы одно.
	wf := &domain.Workflow{
		ID: uuid.New(),
		Nodes: []domain.NodeInstance{
			{ID: "hook", Kind: "webhook"},
			{ID: "cond", Kind: "if-condition", Config: map[string]any{
				"value1": "x", "operator": "equals", "value2": "x",
			}},
			{ID: "yes", Kind: "memory", Config: map[string]any{"action": "store", "key": "a", "value": "1"}},
			{ID: "no", Kind: "memory", Config: map[string]any{"action": "store", "key": "b", "value": "2"}},
			{ID: "merge", Kind: "response"},
		},
		Edges: []domain.Edge{
			{ID: "e1", SourceNodeID: "hook", SourcePort: domain.PortDefault, TargetNodeID: "cond"},
			{ID: "e2", SourceNodeID: "cond", SourcePort: domain.PortTrue, TargetNodeID: "yes"},
			{ID: "e3", SourceNodeID: "cond", SourcePort: domain.PortFalse, TargetNodeID: "no"},
			{ID: "e4", SourceNodeID: "yes", SourcePort: domain.PortDefault, TargetNodeID: "merge"},
			{ID: "e5", SourceNodeID: "no", SourcePort: domain.PortDefault, TargetNodeID: "merge"},
		},
	}

	exec, err := eng.Execute(context.Background(), RunRequest{Workflow: wf})
	if err != nil {
		t.Fatal(err)
	}

	if exec.Status != domain.ExecutionStatusCompleted {
		t.Fatalf("run status = %s, error = %s", exec.Status, exec.Error)
	}
	if got := nodeByID(t, exec, "no").Status; got != domain.NodeStatusSkipped {
		t.Errorf("no status = %s", got)
	}
	if got := nodeByID(t, exec, "merge").Status; got != domain.NodeStatusCompleted {
		t.Errorf("merge status = %s", got)
	}
}

func TestExecuteDeterministicOrder(t *testing.T) {
	eng, led := newTestEngine(localProviders())

	// Ромб: hook → (a, b) → join.
	wf := &domain.Workflow{
		ID: uuid.New(),
		Nodes: []domain.NodeInstance{
			{ID: "hook", Kind: "webhook"},
			{ID: "a", Kind: "memory", Config: map[string]any{"action": "store", "key": "a", "value": "1"}},
			{ID: "b", Kind: "memory", Config: map[string]any{"action": "store", "key": "b", "value": "2"}},
			{ID: "join", Kind: "response"},
		},
		Edges: []domain.Edge{
			{ID: "e1", SourceNodeID: "hook", SourcePort: domain.PortDefault, TargetNodeID: "a"},
			{ID: "e2", SourceNodeID: "hook", SourcePort: domain.PortDefault, TargetNodeID: "b"},
			{ID: "e3", SourceNodeID: "a", SourcePort: domain.PortDefault, TargetNodeID: "join"},
			{ID: "e4", SourceNodeID: "b", SourcePort: domain.PortDefault, TargetNodeID: "join"},
		},
	}

	exec, err := eng.Execute(context.Background(), RunRequest{Workflow: wf})
	if err != nil {
		t.Fatal(err)
	}
	if exec.Status != domain.ExecutionStatusCompleted {
		t.Fatalf("run status = %s", exec.Status)
	}

	// Журнал фиксирует начало узлов в порядке постановки: очередь FIFO,
	// рёбра обходятся в порядке объявления.
	got, err := led.GetRun(context.Background(), exec.ID)
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"hook", "a", "b", "join"}
	if len(got.Nodes) != len(want) {
		t.Fatalf("expected %d records, got %d", len(want), len(got.Nodes))
	}
	for i, id := range want {
		if got.Nodes[i].NodeID != id {
			t.Errorf("record[%d] = %s, want %s", i, got.Nodes[i].NodeID, id)
		}
	}
}

func TestExecuteUnreachableNodeSkipped(t *testing.T) {
	eng, _ := newTestEngine(localProviders())

	wf := &domain.Workflow{
		ID: uuid.New(),
		Nodes: []domain.NodeInstance{
			{ID: "hook", Kind: "webhook"},
			{ID: "island", Kind: "memory", Config: map[string]any{
				"action": "store", "key": "k", "value": "v",
			}},
		},
	}

	exec, err := eng.Execute(context.Background(), RunRequest{Workflow: wf})
	if err != nil {
		t.Fatal(err)
	}

	if exec.Status != domain.ExecutionStatusCompleted {
		t.Fatalf("run status = %s, error = %s", exec.Status, exec.Error)
	}
	island := nodeByID(t, exec, "island")
	if island.Status != domain.NodeStatusSkipped {
		t.Errorf("island status = %s", island.Status)
	}
	if island.SkipReason != domain.SkipReasonUnreachable {
		t.Errorf("island skip reason = %s", island.SkipReason)
	}
}

func TestExecuteDetachedCycleSkipped(t *testing.T) {
	eng, _ := newTestEngine(localProviders())

	// Остров с циклом вне достижимости триггера: запуск завершается,
	// узлы острова пропускаются как недостижимые.
	wf := &domain.Workflow{
		ID: uuid.New(),
		Nodes: []domain.NodeInstance{
			{ID: "hook", Kind: "webhook"},
			{ID: "reply", Kind: "response"},
			{ID: "loop_a", Kind: "memory", Config: map[string]any{
				"action": "store", "key": "a", "value": "1",
			}},
			{ID: "loop_b", Kind: "memory", Config: map[string]any{
				"action": "store", "key": "b", "value": "2",
			}},
		},
		Edges: []domain.Edge{
			{ID: "e1", SourceNodeID: "hook", SourcePort: domain.PortDefault, TargetNodeID: "reply"},
			{ID: "e2", SourceNodeID: "loop_a", SourcePort: domain.PortDefault, TargetNodeID: "loop_b"},
			{ID: "e3", SourceNodeID: "loop_b", SourcePort: domain.PortDefault, TargetNodeID: "loop_a"},
		},
	}

	exec, err := eng.Execute(context.Background(), RunRequest{Workflow: wf})
	if err != nil {
		t.Fatal(err)
	}

	if exec.Status != domain.ExecutionStatusCompleted {
		t.Fatalf("run status = %s, error = %s", exec.Status, exec.Error)
	}
	if got := nodeByID(t, exec, "reply").Status; got != domain.NodeStatusCompleted {
		t.Errorf("reply status = %s", got)
	}
	for _, id := range []string{"loop_a", "loop_b"} {
		node := nodeByID(t, exec, id)
		if node.Status != domain.NodeStatusSkipped {
			t.Errorf("%s status = %s", id, node.Status)
		}
		if node.SkipReason != domain.SkipReasonUnreachable {
			t.Errorf("%s skip reason = %s", id, node.SkipReason)
		}
	}
}

func TestExecuteCancellation(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{})

	providers := localProviders()
	providers.Register(&capability.StaticProvider{
		NodeKind: "memory",
		Fn: func(ctx context.Context, req *capability.Request) (*capability.Response, error) {
			close(started)
			<-release
			return capability.NewResponse(map[string]any{"value": "done"}), nil
		},
	})
	eng, _ := newTestEngine(providers)

	runID := uuid.New()
	wf := &domain.Workflow{
		ID: uuid.New(),
		Nodes: []domain.NodeInstance{
			{ID: "hook", Kind: "webhook"},
			{ID: "slow", Kind: "memory", Config: map[string]any{"action": "store", "key": "k"}},
			{ID: "after", Kind: "response"},
		},
		Edges: []domain.Edge{
			{ID: "e1", SourceNodeID: "hook", SourcePort: domain.PortDefault, TargetNodeID: "slow"},
			{ID: "e2", SourceNodeID: "slow", SourcePort: domain.PortDefault, TargetNodeID: "after"},
		},
	}

	done := make(chan *domain.Execution, 1)
	go func() {
		exec, err := eng.Execute(context.Background(), RunRequest{RunID: runID, Workflow: wf})
		if err != nil {
			t.Error(err)
		}
		done <- exec
	}()

	<-started
	if err := eng.CancelRun(runID); err != nil {
		t.Fatal(err)
	}
	close(release)

	exec := <-done
	if exec.Status != domain.ExecutionStatusCancelled {
		t.Fatalf("run status = %s", exec.Status)
	}

	// Узел в полёте завершается штатно, невыполненные узлы пропускаются.
	if got := nodeByID(t, exec, "slow").Status; got != domain.NodeStatusCompleted {
		t.Errorf("slow status = %s", got)
	}
	after := nodeByID(t, exec, "after")
	if after.Status != domain.NodeStatusSkipped {
		t.Errorf("after status = %s", after.Status)
	}
	if after.SkipReason != domain.SkipReasonCancelled {
		t.Errorf("after skip reason = %s", after.SkipReason)
	}
}

func TestExecuteRunTimeout(t *testing.T) {
	providers := localProviders()
	providers.Register(&capability.StaticProvider{
		NodeKind: "memory",
		Fn: func(ctx context.Context, req *capability.Request) (*capability.Response, error) {
			time.Sleep(150 * time.Millisecond)
			return capability.NewResponse(nil), nil
		},
	})
	eng, _ := newTestEngine(providers, func(cfg *Config) {
		cfg.RunTimeout = 30 * time.Millisecond
	})

	wf := &domain.Workflow{
		ID: uuid.New(),
		Nodes: []domain.NodeInstance{
			{ID: "hook", Kind: "webhook"},
			{ID: "slow", Kind: "memory", Config: map[string]any{"action": "store", "key": "k"}},
			{ID: "after", Kind: "response"},
		},
		Edges: []domain.Edge{
			{ID: "e1", SourceNodeID: "hook", SourcePort: domain.PortDefault, TargetNodeID: "slow"},
			{ID: "e2", SourceNodeID: "slow", SourcePort: domain.PortDefault, TargetNodeID: "after"},
		},
	}

	exec, err := eng.Execute(context.Background(), RunRequest{Workflow: wf})
	if err != nil {
		t.Fatal(err)
	}

	if exec.Status != domain.ExecutionStatusFailed {
		t.Fatalf("run status = %s", exec.Status)
	}
	if !contains(exec.Error, "timeout") {
		t.Errorf("error = %q", exec.Error)
	}
	if got := nodeByID(t, exec, "after").Status; got != domain.NodeStatusSkipped {
		t.Errorf("after status = %s", got)
	}
}

func TestCancelInactiveRun(t *testing.T) {
	eng, _ := newTestEngine(localProviders())

	err := eng.CancelRun(uuid.New())
	if !errors.Is(err, ErrRunNotActive) {
		t.Errorf("expected ErrRunNotActive, got %v", err)
	}
}

func contains(s, substr string) bool {
	return strings.Contains(s, substr)
}
