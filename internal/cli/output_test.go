package cli

import (
	"bytes"
	"strings"
	"testing"
)

func newBufferedOutput(jsonMode bool) (*Output, *bytes.Buffer, *bytes.Buffer) {
	var data, msgs bytes.Buffer
	return &Output{jsonMode: jsonMode, w: &data, errW: &msgs}, &data, &msgs
}

func TestPrintTable(t *testing.T) {
	out, data, msgs := newBufferedOutput(false)

	out.Print([]string{"ID", "NAME"}, [][]string{{"w1", "ping"}}, nil)

	got := data.String()
	for _, want := range []string{"ID", "NAME", "--", "w1", "ping"} {
		if !strings.Contains(got, want) {
			t.Errorf("table %q does not contain %q", got, want)
		}
	}
	if msgs.Len() != 0 {
		t.Errorf("unexpected stderr output: %q", msgs.String())
	}
}

func TestPrintEmptyRows(t *testing.T) {
	out, data, msgs := newBufferedOutput(false)

	out.Print([]string{"ID"}, nil, nil)

	// Данные в stdout не попадают: stdout остаётся пригодным для конвейера.
	if data.Len() != 0 {
		t.Errorf("unexpected stdout output: %q", data.String())
	}
	if !strings.Contains(msgs.String(), "Nothing to show") {
		t.Errorf("stderr = %q", msgs.String())
	}
}

func TestPrintJSONMode(t *testing.T) {
	out, data, _ := newBufferedOutput(true)

	out.Print([]string{"ID"}, nil, []string{"a", "b"})

	got := strings.TrimSpace(data.String())
	if got != "[\n  \"a\",\n  \"b\"\n]" {
		t.Errorf("json output = %q", got)
	}
}

func TestMessagesGoToStderr(t *testing.T) {
	out, data, msgs := newBufferedOutput(false)

	out.Success("done")
	out.Error("boom")

	if data.Len() != 0 {
		t.Errorf("unexpected stdout output: %q", data.String())
	}
	if !strings.Contains(msgs.String(), "done") || !strings.Contains(msgs.String(), "Error: boom") {
		t.Errorf("stderr = %q", msgs.String())
	}
}
