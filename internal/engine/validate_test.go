package engine

import (
	"errors"
	"testing"

	"github.com/shaiso/Flowline/internal/catalog"
	"github.com/shaiso/Flowline/internal/domain"
)

// validWorkflow — webhook → if → (true: memory, false: response).
func validWorkflow() *domain.Workflow {
	return &domain.Workflow{
		Nodes: []domain.NodeInstance{
			{ID: "hook", Kind: "webhook", Label: "Start", Config: map[string]any{
				"method": "POST", "path": "/in",
			}},
			{ID: "cond", Kind: "if-condition", Label: "Check", Config: map[string]any{
				"value1": "{{$json.body.status}}", "operator": "equals", "value2": "ok",
			}},
			{ID: "save", Kind: "memory", Label: "Save", Config: map[string]any{
				"action": "store", "key": "k", "value": "v",
			}},
			{ID: "reply", Kind: "response", Label: "Reply", Config: map[string]any{
				"statusCode": 200,
			}},
		},
		Edges: []domain.Edge{
			{ID: "e1", SourceNodeID: "hook", SourcePort: domain.PortDefault, TargetNodeID: "cond"},
			{ID: "e2", SourceNodeID: "cond", SourcePort: domain.PortTrue, TargetNodeID: "save"},
			{ID: "e3", SourceNodeID: "cond", SourcePort: domain.PortFalse, TargetNodeID: "reply"},
		},
	}
}

func hasError(errs []*StructuralError, sentinel error) bool {
	for _, e := range errs {
		if errors.Is(e, sentinel) {
			return true
		}
	}
	return false
}

func TestValidateOK(t *testing.T) {
	errs := Validate(validWorkflow(), catalog.DefaultRegistry())
	if len(errs) != 0 {
		t.Fatalf("expected no errors, got %v", errs)
	}
}

func TestValidateStructuralErrors(t *testing.T) {
	cat := catalog.DefaultRegistry()

	tests := []struct {
		name    string
		mutate  func(wf *domain.Workflow)
		wantErr error
	}{
		{
			"empty workflow",
			func(wf *domain.Workflow) { wf.Nodes = nil; wf.Edges = nil },
			ErrEmptyWorkflow,
		},
		{
			"duplicate node id",
			func(wf *domain.Workflow) {
				wf.Nodes = append(wf.Nodes, domain.NodeInstance{ID: "hook", Kind: "memory"})
			},
			ErrDuplicateNodeID,
		},
		{
			"unknown kind",
			func(wf *domain.Workflow) { wf.Nodes[2].Kind = "quantum" },
			ErrUnknownKind,
		},
		{
			"no trigger",
			func(wf *domain.Workflow) {
				wf.Nodes = wf.Nodes[1:]
				wf.Edges = wf.Edges[1:]
			},
			ErrNoTrigger,
		},
		{
			"dangling edge source",
			func(wf *domain.Workflow) { wf.Edges[0].SourceNodeID = "ghost" },
			ErrDanglingEdge,
		},
		{
			"dangling edge target",
			func(wf *domain.Workflow) { wf.Edges[2].TargetNodeID = "ghost" },
			ErrDanglingEdge,
		},
		{
			"undeclared port",
			func(wf *domain.Workflow) { wf.Edges[1].SourcePort = "maybe" },
			ErrUnknownPort,
		},
		{
			"default port on condition",
			func(wf *domain.Workflow) { wf.Edges[1].SourcePort = domain.PortDefault },
			ErrUnknownPort,
		},
		{
			"trigger with inbound edge",
			func(wf *domain.Workflow) {
				wf.Edges = append(wf.Edges, domain.Edge{
					ID: "e4", SourceNodeID: "save", SourcePort: domain.PortDefault, TargetNodeID: "hook",
				})
			},
			ErrTriggerInbound,
		},
		{
			"missing required config",
			func(wf *domain.Workflow) { delete(wf.Nodes[2].Config, "key") },
			ErrMissingConfig,
		},
		{
			"cycle",
			func(wf *domain.Workflow) {
				wf.Edges = append(wf.Edges, domain.Edge{
					ID: "e4", SourceNodeID: "save", SourcePort: domain.PortDefault, TargetNodeID: "cond",
				})
			},
			ErrCyclicGraph,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			wf := validWorkflow()
			tt.mutate(wf)

			errs := Validate(wf, cat)
			if !hasError(errs, tt.wantErr) {
				t.Errorf("expected %v in %v", tt.wantErr, errs)
			}
		})
	}
}

func TestValidateDetachedCycleAllowed(t *testing.T) {
	// Цикл в острове, до которого не дотягивается триггер, не мешает
	// ни сохранению, ни запуску: его узлы пропускаются как недостижимые.
	wf := validWorkflow()
	wf.Nodes = append(wf.Nodes,
		domain.NodeInstance{ID: "loop_a", Kind: "memory", Config: map[string]any{
			"action": "store", "key": "a", "value": "1",
		}},
		domain.NodeInstance{ID: "loop_b", Kind: "memory", Config: map[string]any{
			"action": "store", "key": "b", "value": "2",
		}},
	)
	wf.Edges = append(wf.Edges,
		domain.Edge{ID: "e4", SourceNodeID: "loop_a", SourcePort: domain.PortDefault, TargetNodeID: "loop_b"},
		domain.Edge{ID: "e5", SourceNodeID: "loop_b", SourcePort: domain.PortDefault, TargetNodeID: "loop_a"},
	)

	errs := Validate(wf, catalog.DefaultRegistry())
	if len(errs) != 0 {
		t.Errorf("expected no errors, got %v", errs)
	}

	// Тот же цикл, пристёгнутый к достижимой части, валидацию проваливает.
	wf.Edges = append(wf.Edges, domain.Edge{
		ID: "e6", SourceNodeID: "save", SourcePort: domain.PortDefault, TargetNodeID: "loop_a",
	})
	errs = Validate(wf, catalog.DefaultRegistry())
	if !hasError(errs, ErrCyclicGraph) {
		t.Errorf("expected ErrCyclicGraph in %v", errs)
	}
}

func TestValidateMissingCredential(t *testing.T) {
	wf := validWorkflow()
	wf.Nodes = append(wf.Nodes, domain.NodeInstance{
		ID: "tg", Kind: "telegram-send",
		Config: map[string]any{"chatId": "@c", "message": "hi"},
	})
	wf.Edges = append(wf.Edges, domain.Edge{
		ID: "e4", SourceNodeID: "save", SourcePort: domain.PortDefault, TargetNodeID: "tg",
	})

	errs := Validate(wf, catalog.DefaultRegistry())
	if !hasError(errs, ErrMissingCredential) {
		t.Errorf("expected ErrMissingCredential in %v", errs)
	}

	wf.Nodes[len(wf.Nodes)-1].CredentialRefs = map[string]string{
		"telegram_bot_token": "cred-tg-1",
	}
	errs = Validate(wf, catalog.DefaultRegistry())
	if hasError(errs, ErrMissingCredential) {
		t.Errorf("unexpected ErrMissingCredential in %v", errs)
	}
}

func TestValidateRequiredFieldWithDefaultMayBeOmitted(t *testing.T) {
	wf := validWorkflow()
	// У webhook обязательные method и path имеют значения по умолчанию.
	wf.Nodes[0].Config = map[string]any{}

	errs := Validate(wf, catalog.DefaultRegistry())
	if len(errs) != 0 {
		t.Errorf("expected no errors, got %v", errs)
	}
}

func TestValidateCollectsAllErrors(t *testing.T) {
	wf := validWorkflow()
	wf.Nodes[2].Kind = "quantum"
	wf.Edges[0].SourceNodeID = "ghost"

	errs := Validate(wf, catalog.DefaultRegistry())
	if len(errs) < 2 {
		t.Errorf("expected at least 2 errors, got %v", errs)
	}
}
