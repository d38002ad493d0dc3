package hook

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"reflect"
	"testing"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func boolPtr(b bool) *bool    { return &b }
func strPtr(s string) *string { return &s }

// opinion returns a callback with a fixed output that records whether it ran.
func opinion(out *Output, ran *bool) Callback {
	return func(ctx context.Context, input json.RawMessage, callID string) (*Output, error) {
		if ran != nil {
			*ran = true
		}
		return out, nil
	}
}

func TestExecuteUnknownEventFailsOpen(t *testing.T) {
	e := NewEngine(testLogger())
	got := e.Execute(context.Background(), "NotARealEvent", "Bash", nil, "")
	want := map[string]any{"continue": true}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Execute() = %v, want %v", got, want)
	}
}

func TestExecuteNoRegistrationsContinues(t *testing.T) {
	e := NewEngine(testLogger())
	got := e.Execute(context.Background(), "PreToolUse", "Bash", nil, "call-1")
	want := map[string]any{"continue": true}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Execute() = %v, want %v", got, want)
	}
}

func TestMatcherSelection(t *testing.T) {
	tests := []struct {
		name    string
		pattern string
		subject string
		want    bool
	}{
		{"empty pattern matches everything", "", "Bash", true},
		{"wildcard matches everything", "*", "Edit", true},
		{"substring match", "Bash", "mcp__Bash__run", true},
		{"exact match", "Edit", "Edit", true},
		{"no match", "Write", "Bash", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := NewEngine(testLogger())
			ran := false
			e.Register(PreToolUse, Matcher{
				Pattern:   tt.pattern,
				Callbacks: []Callback{opinion(&Output{Decision: strPtr("block")}, &ran)},
			})
			e.Execute(context.Background(), "PreToolUse", tt.subject, nil, "")
			if ran != tt.want {
				t.Errorf("callback ran = %v, want %v", ran, tt.want)
			}
		})
	}
}

func TestMergeLastNonAbsentWinsAndShortCircuit(t *testing.T) {
	e := NewEngine(testLogger())
	var ran3 bool
	e.Register(PreToolUse, Matcher{Callbacks: []Callback{
		opinion(&Output{Decision: strPtr("approve"), SystemMessage: strPtr("first")}, nil),
		opinion(&Output{Continue: boolPtr(false), Decision: strPtr("block")}, nil),
		opinion(&Output{SystemMessage: strPtr("never seen")}, &ran3),
	}})

	got := e.Execute(context.Background(), "PreToolUse", "Bash", nil, "call-1")

	if ran3 {
		t.Error("callback after continue=false executed")
	}
	want := map[string]any{
		"continue":      false,
		"decision":      "block",
		"systemMessage": "first",
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Execute() = %v, want %v", got, want)
	}
}

func TestShortCircuitAcrossMatchers(t *testing.T) {
	e := NewEngine(testLogger())
	var ranLater bool
	e.Register(PreToolUse, Matcher{Callbacks: []Callback{
		opinion(&Output{Continue: boolPtr(false)}, nil),
	}})
	e.Register(PreToolUse, Matcher{Callbacks: []Callback{
		opinion(&Output{Decision: strPtr("approve")}, &ranLater),
	}})

	got := e.Execute(context.Background(), "PreToolUse", "Bash", nil, "")
	if ranLater {
		t.Error("matcher after continue=false executed")
	}
	if got["continue"] != false {
		t.Errorf("continue = %v, want false", got["continue"])
	}
}

func TestAsyncOutputIsTotalOverride(t *testing.T) {
	e := NewEngine(testLogger())
	async := map[string]any{"async": true, "asyncTimeout": float64(5000)}
	e.Register(PostToolUse, Matcher{Callbacks: []Callback{
		opinion(&Output{Decision: strPtr("block"), SystemMessage: strPtr("partial")}, nil),
		opinion(&Output{Async: async}, nil),
	}})

	got := e.Execute(context.Background(), "PostToolUse", "Bash", nil, "")
	if !reflect.DeepEqual(got, async) {
		t.Errorf("Execute() = %v, want async payload %v", got, async)
	}
}

func TestCallbackErrorIsNoOpinion(t *testing.T) {
	e := NewEngine(testLogger())
	e.Register(Stop, Matcher{Callbacks: []Callback{
		func(ctx context.Context, input json.RawMessage, callID string) (*Output, error) {
			return nil, errors.New("hook crashed")
		},
		opinion(&Output{Reason: strPtr("still ran")}, nil),
	}})

	got := e.Execute(context.Background(), "Stop", "", nil, "")
	want := map[string]any{"continue": true, "reason": "still ran"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Execute() = %v, want %v", got, want)
	}
}

func TestSpecificOutputPassthrough(t *testing.T) {
	e := NewEngine(testLogger())
	specific := map[string]any{"hookEventName": "UserPromptSubmit", "additionalContext": "hi"}
	e.Register(UserPromptSubmit, Matcher{Callbacks: []Callback{
		opinion(&Output{SpecificOutput: specific}, nil),
	}})

	got := e.Execute(context.Background(), "UserPromptSubmit", "", nil, "")
	if !reflect.DeepEqual(got["hookSpecificOutput"], specific) {
		t.Errorf("hookSpecificOutput = %v, want %v", got["hookSpecificOutput"], specific)
	}
}

func TestCallbackReceivesInputAndCallID(t *testing.T) {
	e := NewEngine(testLogger())
	var gotInput string
	var gotCallID string
	e.Register(PreToolUse, Matcher{Callbacks: []Callback{
		func(ctx context.Context, input json.RawMessage, callID string) (*Output, error) {
			gotInput = string(input)
			gotCallID = callID
			return nil, nil
		},
	}})

	input := json.RawMessage(`{"tool_name":"Bash","tool_input":{"command":"ls"}}`)
	e.Execute(context.Background(), "PreToolUse", "Bash", input, "toolu_123")

	if gotInput != string(input) {
		t.Errorf("input = %s", gotInput)
	}
	if gotCallID != "toolu_123" {
		t.Errorf("callID = %s", gotCallID)
	}
}
