package capability

import (
	"context"
	"errors"
	"testing"

	"github.com/shaiso/Flowline/internal/domain"
)

func invokeCondition(t *testing.T, config map[string]any) (*Response, error) {
	t.Helper()
	p := NewConditionProvider()
	return p.Invoke(context.Background(), &Request{
		Node:   &domain.NodeInstance{ID: "cond", Kind: KindCondition},
		Config: config,
	})
}

func TestConditionOperators(t *testing.T) {
	tests := []struct {
		name     string
		value1   any
		operator string
		value2   any
		want     bool
	}{
		{"equals strings", "approved", OpEquals, "approved", true},
		{"equals mismatch", "approved", OpEquals, "rejected", false},
		{"equals numbers as strings", "42", OpEquals, 42.0, true},
		{"not equals", "a", OpNotEquals, "b", true},
		{"greater than", 10.0, OpGreaterThan, 5.0, true},
		{"greater than false", 5.0, OpGreaterThan, 10.0, false},
		{"greater than string numbers", "10", OpGreaterThan, "9", true},
		{"less than", 3.0, OpLessThan, 4.0, true},
		{"contains", "hello world", OpContains, "world", true},
		{"contains missing", "hello", OpContains, "xyz", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := invokeCondition(t, map[string]any{
				"value1":   tt.value1,
				"operator": tt.operator,
				"value2":   tt.value2,
			})
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}

			if got := resp.Outputs["result"]; got != tt.want {
				t.Errorf("result = %v, want %v", got, tt.want)
			}

			wantPort := domain.PortFalse
			if tt.want {
				wantPort = domain.PortTrue
			}
			if len(resp.ActivatedPorts) != 1 || resp.ActivatedPorts[0] != wantPort {
				t.Errorf("activated ports = %v, want [%s]", resp.ActivatedPorts, wantPort)
			}
		})
	}
}

func TestConditionExactlyOnePort(t *testing.T) {
	resp, err := invokeCondition(t, map[string]any{
		"value1":   "x",
		"operator": OpEquals,
		"value2":   "x",
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(resp.ActivatedPorts) != 1 {
		t.Fatalf("condition must activate exactly one port, got %v", resp.ActivatedPorts)
	}
}

func TestConditionNonNumericComparison(t *testing.T) {
	_, err := invokeCondition(t, map[string]any{
		"value1":   "not-a-number",
		"operator": OpGreaterThan,
		"value2":   "5",
	})
	if !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("expected ErrInvalidConfig, got %v", err)
	}
}

func TestConditionUnknownOperator(t *testing.T) {
	_, err := invokeCondition(t, map[string]any{
		"value1":   "a",
		"operator": "matches",
		"value2":   "b",
	})
	if !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("expected ErrInvalidConfig, got %v", err)
	}
}
