package agent

import (
	"log/slog"
	"strconv"
	"strings"

	"github.com/zhubert/agentmux/hook"
	"github.com/zhubert/agentmux/transport"
)

// DefaultExecutable is the agent CLI binary resolved from PATH when
// Options.Executable is empty.
const DefaultExecutable = "claude"

// PermissionMode controls how the agent CLI gates tool use.
type PermissionMode string

const (
	PermissionDefault           PermissionMode = "default"
	PermissionAcceptEdits       PermissionMode = "acceptEdits"
	PermissionBypassPermissions PermissionMode = "bypassPermissions"
	PermissionPlan              PermissionMode = "plan"
	PermissionDontAsk           PermissionMode = "dontAsk"
)

// Options configures an agent session. The zero value spawns the default
// executable with a fresh session id.
type Options struct {
	// Executable is the agent CLI binary. Defaults to DefaultExecutable.
	Executable string

	// SessionID is the session UUID passed to the CLI. Minted when empty.
	SessionID string

	// ForkFromSessionID resumes the parent session and forks it, so the
	// new session inherits the parent's conversation history.
	ForkFromSessionID string

	Model          string
	PermissionMode PermissionMode

	// DangerouslySkipPermissions disables the CLI's permission prompts
	// entirely. Mutually exclusive with PermissionMode on the wire; when
	// set, PermissionMode is not emitted.
	DangerouslySkipPermissions bool

	MaxTurns          int
	MaxBudgetUSD      float64
	MaxThinkingTokens int

	AllowedTools          []string
	DisallowedTools       []string
	AdditionalDirectories []string

	// AppendSystemPrompt is appended to the CLI's built-in system prompt.
	AppendSystemPrompt string

	// CWD is the working directory for the spawned process.
	CWD string

	// Env holds extra environment variables for the spawned process.
	Env map[string]string

	// Hooks holds this session's hook registrations. Nil means no hooks;
	// every hook callback request is answered with continue.
	Hooks *hook.Engine

	// Permission answers the peer's can_use_tool requests. Nil means
	// default-allow.
	Permission PermissionHandler

	// Transport overrides the spawned process. Tests inject a scripted
	// transport here.
	Transport transport.Transport

	Logger *slog.Logger
}

// BuildArgs builds the agent CLI argument list from the options. Exported
// for testing argument construction.
func (o *Options) BuildArgs() []string {
	args := []string{
		"--output-format", "stream-json",
		"--input-format", "stream-json",
		"--verbose",
		"--permission-prompt-tool", "stdio",
	}

	if o.ForkFromSessionID != "" {
		// Resume the parent and fork, keeping our UUID for the new
		// session so it can be resumed later.
		args = append(args,
			"--resume", o.ForkFromSessionID,
			"--fork-session",
			"--session-id", o.SessionID,
		)
	} else {
		args = append(args, "--session-id", o.SessionID)
	}

	if o.Model != "" {
		args = append(args, "--model", o.Model)
	}
	if o.DangerouslySkipPermissions {
		args = append(args, "--dangerously-skip-permissions")
	} else if o.PermissionMode != "" {
		args = append(args, "--permission-mode", string(o.PermissionMode))
	}
	if o.MaxTurns > 0 {
		args = append(args, "--max-turns", strconv.Itoa(o.MaxTurns))
	}
	if o.MaxBudgetUSD > 0 {
		args = append(args, "--max-budget-usd", strconv.FormatFloat(o.MaxBudgetUSD, 'f', -1, 64))
	}
	if o.MaxThinkingTokens > 0 {
		args = append(args, "--max-thinking-tokens", strconv.Itoa(o.MaxThinkingTokens))
	}
	for _, dir := range o.AdditionalDirectories {
		args = append(args, "--add-dir", dir)
	}
	if len(o.AllowedTools) > 0 {
		args = append(args, "--allowed-tools", strings.Join(o.AllowedTools, ","))
	}
	if len(o.DisallowedTools) > 0 {
		args = append(args, "--disallowed-tools", strings.Join(o.DisallowedTools, ","))
	}
	if o.AppendSystemPrompt != "" {
		args = append(args, "--append-system-prompt", o.AppendSystemPrompt)
	}

	return args
}
