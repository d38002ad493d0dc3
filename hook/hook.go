// Package hook runs registered lifecycle callbacks when the peer asks for
// a hook decision, merging their partial outputs into one response payload.
package hook

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"sync"
)

// Event is one of the known lifecycle events a hook can be registered for.
// Event names arriving from the peer outside this set are answered with an
// unconditional continue so unregistered events never block progress.
type Event string

const (
	PreToolUse         Event = "PreToolUse"
	PostToolUse        Event = "PostToolUse"
	PostToolUseFailure Event = "PostToolUseFailure"
	Notification       Event = "Notification"
	UserPromptSubmit   Event = "UserPromptSubmit"
	SessionStart       Event = "SessionStart"
	SessionEnd         Event = "SessionEnd"
	Stop               Event = "Stop"
	SubagentStart      Event = "SubagentStart"
	SubagentStop       Event = "SubagentStop"
	PreCompact         Event = "PreCompact"
	PermissionRequest  Event = "PermissionRequest"
)

var knownEvents = map[Event]bool{
	PreToolUse:         true,
	PostToolUse:        true,
	PostToolUseFailure: true,
	Notification:       true,
	UserPromptSubmit:   true,
	SessionStart:       true,
	SessionEnd:         true,
	Stop:               true,
	SubagentStart:      true,
	SubagentStop:       true,
	PreCompact:         true,
	PermissionRequest:  true,
}

// ParseEvent maps a peer-supplied event name to the closed Event set.
func ParseEvent(name string) (Event, bool) {
	e := Event(name)
	return e, knownEvents[e]
}

// Output is a single callback's opinion. Nil fields mean "no opinion" and
// never clear a value an earlier callback set.
type Output struct {
	Continue       *bool
	SuppressOutput *bool
	StopReason     *string
	Decision       *string
	SystemMessage  *string
	Reason         *string
	SpecificOutput map[string]any

	// Async, when non-nil, is a total override: it is returned to the
	// peer verbatim and any synchronous merge in progress is discarded.
	Async map[string]any
}

// Callback is one registered hook. input is the raw hook payload from the
// peer; callID identifies the triggering tool call when there is one.
type Callback func(ctx context.Context, input json.RawMessage, callID string) (*Output, error)

// Matcher pairs a subject pattern with an ordered callback list. An empty
// pattern and the literal "*" both match every subject; any other pattern
// matches by substring. The two always-match spellings are treated
// identically here even though callers can distinguish them.
type Matcher struct {
	Pattern   string
	Callbacks []Callback
}

func (m Matcher) matches(subject string) bool {
	if m.Pattern == "" || m.Pattern == "*" {
		return true
	}
	return strings.Contains(subject, m.Pattern)
}

// Engine holds hook registrations for one session and executes them on
// demand from the reader loop.
type Engine struct {
	log *slog.Logger

	mu       sync.Mutex
	matchers map[Event][]Matcher
}

// NewEngine creates an empty Engine.
func NewEngine(log *slog.Logger) *Engine {
	if log == nil {
		log = slog.Default()
	}
	return &Engine{log: log, matchers: make(map[Event][]Matcher)}
}

// Register appends a matcher for event. Matchers run in registration order.
func (e *Engine) Register(event Event, m Matcher) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.matchers[event] = append(e.matchers[event], m)
}

// Execute runs all callbacks registered for eventName whose pattern matches
// subject and returns the merged response payload.
//
// Merge rules: each output field follows last-non-absent-value-wins. An
// explicit continue=false stops execution immediately, within and across
// matchers. A callback returning an async payload overrides everything. A
// callback error is logged and treated as no opinion.
func (e *Engine) Execute(ctx context.Context, eventName, subject string, input json.RawMessage, callID string) map[string]any {
	event, ok := ParseEvent(eventName)
	if !ok {
		e.log.Debug("unknown hook event", "event", eventName)
		return continuePayload()
	}

	e.mu.Lock()
	matchers := e.matchers[event]
	e.mu.Unlock()

	if len(matchers) == 0 {
		return continuePayload()
	}

	var merged Output
	for _, m := range matchers {
		if !m.matches(subject) {
			continue
		}
		for _, cb := range m.Callbacks {
			out, err := cb(ctx, input, callID)
			if err != nil {
				e.log.Warn("hook callback failed", "event", eventName, "error", err)
				continue
			}
			if out == nil {
				continue
			}
			if out.Async != nil {
				return out.Async
			}
			merge(&merged, out)
			if merged.Continue != nil && !*merged.Continue {
				return merged.payload()
			}
		}
	}
	return merged.payload()
}

func merge(dst, src *Output) {
	if src.Continue != nil {
		dst.Continue = src.Continue
	}
	if src.SuppressOutput != nil {
		dst.SuppressOutput = src.SuppressOutput
	}
	if src.StopReason != nil {
		dst.StopReason = src.StopReason
	}
	if src.Decision != nil {
		dst.Decision = src.Decision
	}
	if src.SystemMessage != nil {
		dst.SystemMessage = src.SystemMessage
	}
	if src.Reason != nil {
		dst.Reason = src.Reason
	}
	if src.SpecificOutput != nil {
		dst.SpecificOutput = src.SpecificOutput
	}
}

// payload serializes the merged outcome. "continue" is always present and
// defaults to true; every other field appears only if some callback set it.
func (o *Output) payload() map[string]any {
	out := map[string]any{"continue": true}
	if o.Continue != nil {
		out["continue"] = *o.Continue
	}
	if o.SuppressOutput != nil {
		out["suppressOutput"] = *o.SuppressOutput
	}
	if o.StopReason != nil {
		out["stopReason"] = *o.StopReason
	}
	if o.Decision != nil {
		out["decision"] = *o.Decision
	}
	if o.SystemMessage != nil {
		out["systemMessage"] = *o.SystemMessage
	}
	if o.Reason != nil {
		out["reason"] = *o.Reason
	}
	if o.SpecificOutput != nil {
		out["hookSpecificOutput"] = o.SpecificOutput
	}
	return out
}

func continuePayload() map[string]any {
	return map[string]any{"continue": true}
}
