// Package agent runs a Claude-style agent CLI as a child process and
// exposes its control plane: typed control requests, permission checks,
// hook callbacks, and the streamed message sequence.
//
// The protocol engine lives in the control package; this package is the
// thin method table that names the agent's methods and markers.
package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/zhubert/agentmux/control"
	"github.com/zhubert/agentmux/logger"
	"github.com/zhubert/agentmux/transport"
	"github.com/zhubert/agentmux/wire"
)

// Agent is one live agent CLI session.
type Agent struct {
	opts    Options
	log     *slog.Logger
	session *control.Session
}

// New creates an Agent from opts. The process is not spawned until Start.
func New(opts Options) *Agent {
	if opts.Executable == "" {
		opts.Executable = DefaultExecutable
	}
	if opts.SessionID == "" {
		opts.SessionID = uuid.NewString()
	}

	log := opts.Logger
	if log == nil {
		log = logger.WithSession(opts.SessionID)
	}

	a := &Agent{opts: opts, log: log}

	tr := opts.Transport
	if tr == nil {
		tr = transport.NewProcess(transport.Config{
			Path: opts.Executable,
			Args: opts.BuildArgs(),
			Dir:  opts.CWD,
			Env:  opts.Env,
		}, log)
	}

	// Raw stream capture only makes sense for a real spawned process; an
	// injected transport is a test double.
	var streamLogPath string
	if opts.Transport == nil {
		if p, err := logger.StreamLogPath(opts.SessionID); err == nil {
			streamLogPath = p
		}
	}

	a.session = control.NewSession(control.Config{
		Transport:     tr,
		HandleRequest: a.handleRequest,
		InitSessionID: initSessionID,
		IsTerminal:    isTerminal,
		Logger:        log,
		StreamLogPath: streamLogPath,
	})
	return a
}

// Start spawns the agent process and begins reading its stream.
func (a *Agent) Start() error {
	a.log.Info("starting agent session", "sessionID", a.opts.SessionID)
	return a.session.Start()
}

// initSessionID recognizes the system/init marker and extracts the
// CLI-assigned session id.
func initSessionID(method string, params json.RawMessage) (string, bool) {
	if method != "system/init" {
		return "", false
	}
	var p struct {
		SessionID string `json:"session_id"`
	}
	if err := json.Unmarshal(params, &p); err != nil || p.SessionID == "" {
		return "", false
	}
	return p.SessionID, true
}

// isTerminal recognizes the result marker that ends a conversation.
func isTerminal(method string, params json.RawMessage) bool {
	return method == "result"
}

// handleRequest is the agent's peer-request table: permission checks, hook
// callbacks, and a default acknowledgment for everything else.
func (a *Agent) handleRequest(ctx context.Context, method string, params json.RawMessage) (any, error) {
	if method == "can_use_tool" {
		return a.handlePermission(ctx, params)
	}

	var probe struct {
		HookEventName string `json:"hook_event_name"`
		ToolName      string `json:"tool_name"`
		ToolUseID     string `json:"tool_use_id"`
	}
	if len(params) > 0 {
		// Probe failures fall through to the default acknowledgment.
		json.Unmarshal(params, &probe)
	}
	if probe.HookEventName != "" {
		if a.opts.Hooks == nil {
			return map[string]any{"continue": true}, nil
		}
		return a.opts.Hooks.Execute(ctx, probe.HookEventName, probe.ToolName, params, probe.ToolUseID), nil
	}

	// Unrecognized peer requests are acknowledged so the peer never hangs.
	a.log.Debug("acknowledging unrecognized peer request", "method", method)
	return map[string]any{}, nil
}

func (a *Agent) handlePermission(ctx context.Context, params json.RawMessage) (any, error) {
	var req PermissionRequest
	if err := json.Unmarshal(params, &req); err != nil {
		return nil, fmt.Errorf("invalid can_use_tool params: %w", err)
	}
	if a.opts.Permission == nil {
		return Allow(), nil
	}
	result, err := a.opts.Permission(ctx, &req)
	if err != nil {
		// Fail loud: the peer gets an error response, never a silent allow.
		return nil, fmt.Errorf("permission handler: %w", err)
	}
	return result, nil
}

// SendUserMessage streams one user message into the conversation.
func (a *Agent) SendUserMessage(content string) error {
	sessionID := a.session.SessionID()
	if sessionID == "" {
		sessionID = a.opts.SessionID
	}
	return a.session.Send(map[string]any{
		"type": "user",
		"message": map[string]any{
			"role":    "user",
			"content": content,
		},
		"parent_tool_use_id": nil,
		"session_id":         sessionID,
	})
}

// Next returns the next streamed message. The stream ends with
// control.ErrNoMoreMessages after the result marker or process exit.
func (a *Agent) Next(ctx context.Context) (*wire.Frame, error) {
	return a.session.Next(ctx)
}

// SessionID returns the CLI-assigned session id once system/init has been
// observed, falling back to the locally minted id before that.
func (a *Agent) SessionID() string {
	if id := a.session.SessionID(); id != "" {
		return id
	}
	return a.opts.SessionID
}

// Completed reports whether the result marker has been observed.
func (a *Agent) Completed() bool {
	return a.session.Completed()
}

// Interrupt asks the agent to stop the current operation gracefully.
func (a *Agent) Interrupt(ctx context.Context) error {
	_, err := a.session.Request(ctx, "interrupt", nil)
	return err
}

// SetPermissionMode switches the permission mode mid-session.
func (a *Agent) SetPermissionMode(ctx context.Context, mode PermissionMode) error {
	_, err := a.session.Request(ctx, "set_permission_mode", map[string]any{"mode": mode})
	return err
}

// SetModel switches the model mid-session. An empty model resets to the
// CLI default.
func (a *Agent) SetModel(ctx context.Context, model string) error {
	params := map[string]any{"model": nil}
	if model != "" {
		params["model"] = model
	}
	_, err := a.session.Request(ctx, "set_model", params)
	return err
}

// SetMaxThinkingTokens adjusts the thinking-token budget mid-session.
func (a *Agent) SetMaxThinkingTokens(ctx context.Context, maxTokens int) error {
	_, err := a.session.Request(ctx, "set_max_thinking_tokens", map[string]any{"max_thinking_tokens": maxTokens})
	return err
}

// MCPServerStatus returns the raw MCP server status payload.
func (a *Agent) MCPServerStatus(ctx context.Context) (json.RawMessage, error) {
	return a.session.Request(ctx, "mcp_server_status", nil)
}

// RewindFiles restores the workspace to its state at a prior user message.
func (a *Agent) RewindFiles(ctx context.Context, userMessageID string) error {
	_, err := a.session.Request(ctx, "rewind_files", map[string]any{"user_message_id": userMessageID})
	return err
}

// SupportedCommands returns the slash commands available in this session.
func (a *Agent) SupportedCommands(ctx context.Context) ([]SlashCommand, error) {
	result, err := a.session.Request(ctx, "supported_commands", nil)
	if err != nil {
		return nil, err
	}
	var commands []SlashCommand
	if err := json.Unmarshal(result, &commands); err != nil {
		return nil, fmt.Errorf("%w: supported commands: %v", control.ErrInvalidMessage, err)
	}
	return commands, nil
}

// SupportedModels returns the models available in this session.
func (a *Agent) SupportedModels(ctx context.Context) ([]ModelInfo, error) {
	result, err := a.session.Request(ctx, "supported_models", nil)
	if err != nil {
		return nil, err
	}
	var models []ModelInfo
	if err := json.Unmarshal(result, &models); err != nil {
		return nil, fmt.Errorf("%w: supported models: %v", control.ErrInvalidMessage, err)
	}
	return models, nil
}

// AccountInfo returns details about the authenticated account.
func (a *Agent) AccountInfo(ctx context.Context) (*AccountInfo, error) {
	result, err := a.session.Request(ctx, "account_info", nil)
	if err != nil {
		return nil, err
	}
	var account AccountInfo
	if err := json.Unmarshal(result, &account); err != nil {
		return nil, fmt.Errorf("%w: account info: %v", control.ErrInvalidMessage, err)
	}
	return &account, nil
}

// Abort kills the agent process immediately without waiting.
func (a *Agent) Abort() {
	a.session.Abort()
}

// Shutdown kills the agent process and waits for it to exit, reaping any
// tool subprocesses it spawned. Idempotent.
func (a *Agent) Shutdown() error {
	return a.session.Shutdown()
}
