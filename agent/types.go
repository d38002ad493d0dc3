package agent

import (
	"context"
	"encoding/json"
)

// PermissionRequest is the payload of the peer's can_use_tool request.
type PermissionRequest struct {
	ToolName    string          `json:"tool_name"`
	Input       json.RawMessage `json:"input"`
	Suggestions json.RawMessage `json:"suggestions,omitempty"`
	BlockedPath string          `json:"blocked_path,omitempty"`
	Reason      string          `json:"reason,omitempty"`
	CallID      string          `json:"call_id,omitempty"`
	AgentID     string          `json:"agent_id,omitempty"`
}

// PermissionResult is the answer to one can_use_tool request.
type PermissionResult struct {
	Behavior     string          `json:"behavior"`
	UpdatedInput json.RawMessage `json:"updatedInput,omitempty"`
	Message      string          `json:"message,omitempty"`
	Interrupt    bool            `json:"interrupt,omitempty"`
}

// Allow permits the tool call with its input unchanged.
func Allow() *PermissionResult {
	return &PermissionResult{Behavior: "allow"}
}

// AllowWithInput permits the tool call with a modified input payload.
func AllowWithInput(updated json.RawMessage) *PermissionResult {
	return &PermissionResult{Behavior: "allow", UpdatedInput: updated}
}

// Deny rejects the tool call with an explanation the agent can act on.
func Deny(message string) *PermissionResult {
	return &PermissionResult{Behavior: "deny", Message: message}
}

// PermissionHandler decides whether the agent may run a tool. A returned
// error is sent to the peer as an error response; the call is never
// silently allowed on failure.
type PermissionHandler func(ctx context.Context, req *PermissionRequest) (*PermissionResult, error)

// SlashCommand describes one command reported by supported_commands.
type SlashCommand struct {
	Name         string `json:"name"`
	Description  string `json:"description"`
	ArgumentHint string `json:"argument_hint,omitempty"`
}

// ModelInfo describes one model reported by supported_models.
type ModelInfo struct {
	Value       string `json:"value"`
	DisplayName string `json:"display_name"`
	Description string `json:"description"`
}

// AccountInfo describes the authenticated account.
type AccountInfo struct {
	Email            string `json:"email,omitempty"`
	Organization     string `json:"organization,omitempty"`
	SubscriptionType string `json:"subscription_type,omitempty"`
}
