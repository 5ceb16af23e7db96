package catalog

import (
	"errors"
	"testing"

	"github.com/shaiso/Flowline/internal/domain"
)

func TestDefaultRegistryKinds(t *testing.T) {
	r := DefaultRegistry()

	expected := []string{
		"form",
		"if-condition",
		"llm-anthropic",
		"llm-chatgpt",
		"llm-gemini",
		"memory",
		"resend-email",
		"response",
		"telegram-send",
		"telegram-wait",
		"webhook",
	}

	kinds := r.Kinds()
	if len(kinds) != len(expected) {
		t.Fatalf("expected %d kinds, got %d: %v", len(expected), len(kinds), kinds)
	}
	for i, k := range expected {
		if kinds[i] != k {
			t.Errorf("kinds[%d] = %q, want %q", i, kinds[i], k)
		}
	}
}

func TestGetUnknownKind(t *testing.T) {
	r := DefaultRegistry()

	_, err := r.Get("no-such-kind")
	if !errors.Is(err, ErrKindNotFound) {
		t.Errorf("expected ErrKindNotFound, got %v", err)
	}
}

func TestTriggerKinds(t *testing.T) {
	r := DefaultRegistry()

	tests := []struct {
		kind      string
		isTrigger bool
	}{
		{"webhook", true},
		{"form", true},
		{"if-condition", false},
		{"telegram-send", false},
		{"memory", false},
	}

	for _, tt := range tests {
		tmpl, err := r.Get(tt.kind)
		if err != nil {
			t.Fatalf("Get(%q): %v", tt.kind, err)
		}
		if tmpl.IsTrigger != tt.isTrigger {
			t.Errorf("%s: IsTrigger = %v, want %v", tt.kind, tmpl.IsTrigger, tt.isTrigger)
		}
	}
}

func TestConditionPorts(t *testing.T) {
	r := DefaultRegistry()

	tmpl, err := r.Get("if-condition")
	if err != nil {
		t.Fatal(err)
	}

	if !tmpl.HasPort(domain.PortTrue) || !tmpl.HasPort(domain.PortFalse) {
		t.Errorf("if-condition ports = %v, want true and false", tmpl.Ports)
	}
	if tmpl.HasPort(domain.PortDefault) {
		t.Error("if-condition must not declare the default port")
	}
}

func TestDefaultConfig(t *testing.T) {
	r := DefaultRegistry()

	tmpl, err := r.Get("llm-chatgpt")
	if err != nil {
		t.Fatal(err)
	}

	cfg := tmpl.DefaultConfig()
	if cfg["model"] != "gpt-4" {
		t.Errorf("default model = %v, want gpt-4", cfg["model"])
	}
	if cfg["temperature"] != 0.7 {
		t.Errorf("default temperature = %v, want 0.7", cfg["temperature"])
	}
	if _, ok := cfg["prompt"]; ok {
		t.Error("prompt has no default and must be absent")
	}
}

func TestRequiredCredentials(t *testing.T) {
	r := DefaultRegistry()

	tmpl, err := r.Get("telegram-send")
	if err != nil {
		t.Fatal(err)
	}

	if len(tmpl.RequiredCredentials) != 1 || tmpl.RequiredCredentials[0] != "telegram_bot_token" {
		t.Errorf("telegram-send credentials = %v", tmpl.RequiredCredentials)
	}
}

func TestRegisterOverwrites(t *testing.T) {
	r := NewRegistry()
	r.Register(&Template{Kind: "custom", Label: "v1"})
	r.Register(&Template{Kind: "custom", Label: "v2"})

	if r.Count() != 1 {
		t.Fatalf("count = %d, want 1", r.Count())
	}
	tmpl, err := r.Get("custom")
	if err != nil {
		t.Fatal(err)
	}
	if tmpl.Label != "v2" {
		t.Errorf("label = %q, want v2", tmpl.Label)
	}
}
