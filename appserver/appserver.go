// Package appserver runs a codex-style app-server CLI as a child process
// and exposes its control plane: initialize, thread and turn lifecycle
// requests, and the streamed event sequence.
//
// The protocol engine lives in the control package; this package is the
// thin method table that names the app-server's methods and answers its
// approval prompts automatically (full-auto operation).
package appserver

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/zhubert/agentmux/control"
	"github.com/zhubert/agentmux/logger"
	"github.com/zhubert/agentmux/transport"
	"github.com/zhubert/agentmux/wire"
)

// DefaultContinuePrompt is sent when a turn is started with an empty
// prompt, keeping an unattended session moving.
const DefaultContinuePrompt = "Continue immediately. Do not ask for confirmation or pause. If errors occur, recover and keep going."

// AppServer is one live app-server session.
type AppServer struct {
	opts    Options
	log     *slog.Logger
	session *control.Session
}

// New creates an AppServer from opts. The process is not spawned until
// Start.
func New(opts Options) *AppServer {
	if opts.Executable == "" {
		opts.Executable = DefaultExecutable
	}

	log := opts.Logger
	if log == nil {
		log = logger.WithComponent("appserver")
	}

	s := &AppServer{opts: opts, log: log}

	tr := opts.Transport
	if tr == nil {
		env := map[string]string{"PATH": BuildPathEnv()}
		for k, v := range opts.Env {
			env[k] = v
		}
		tr = transport.NewProcess(transport.Config{
			Path: opts.Executable,
			Args: opts.BuildArgs(),
			Dir:  opts.CWD,
			Env:  env,
		}, log)
	}

	s.session = control.NewSession(control.Config{
		Transport:     tr,
		HandleRequest: s.handleRequest,
		InitSessionID: threadStarted,
		Logger:        log,
	})
	return s
}

// Start spawns the app-server process and begins reading its stream.
func (s *AppServer) Start() error {
	s.log.Info("starting app-server session", "executable", s.opts.Executable)
	return s.session.Start()
}

// threadStarted recognizes the thread/started marker and extracts the
// server-assigned thread id.
func threadStarted(method string, params json.RawMessage) (string, bool) {
	if method != "thread/started" {
		return "", false
	}
	return ExtractThreadID(params)
}

// handleRequest answers the app-server's approval and input prompts from
// the auto-response table; anything unrecognized is acknowledged.
func (s *AppServer) handleRequest(ctx context.Context, method string, params json.RawMessage) (any, error) {
	if resp, ok := autoResponse(method, params); ok {
		s.log.Debug("auto-answering peer request", "method", method)
		return resp, nil
	}
	s.log.Debug("acknowledging unrecognized peer request", "method", method)
	return map[string]any{}, nil
}

// autoResponse maps the app-server's interactive prompts to their
// full-auto answers: approvals accepted, tool questions answered with the
// first offered option.
func autoResponse(method string, params json.RawMessage) (any, bool) {
	switch method {
	case "item/commandExecution/requestApproval", "item/fileChange/requestApproval":
		return map[string]any{"decision": "accept"}, true
	case "item/tool/requestUserInput":
		return toolInputResponse(params), true
	default:
		return nil, false
	}
}

func toolInputResponse(params json.RawMessage) map[string]any {
	var p struct {
		Questions []struct {
			ID      string `json:"id"`
			Options []struct {
				ID string `json:"id"`
			} `json:"options"`
		} `json:"questions"`
	}
	answers := map[string]any{}
	if len(params) > 0 {
		json.Unmarshal(params, &p)
	}
	for _, q := range p.Questions {
		if q.ID == "" {
			continue
		}
		answer := "yes"
		if len(q.Options) > 0 && q.Options[0].ID != "" {
			answer = q.Options[0].ID
		}
		answers[q.ID] = map[string]any{"answers": []string{answer}}
	}
	return map[string]any{"answers": answers}
}

// Initialize performs the handshake: an initialize request carrying the
// client identity, followed by the initialized notification.
func (s *AppServer) Initialize(ctx context.Context, clientName, clientTitle, clientVersion string) (json.RawMessage, error) {
	result, err := s.session.Request(ctx, "initialize", map[string]any{
		"clientInfo": map[string]any{
			"name":    clientName,
			"title":   clientTitle,
			"version": clientVersion,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("app-server did not respond to initialize: %w", err)
	}
	if err := s.session.Notify("initialized", nil); err != nil {
		return nil, err
	}
	return result, nil
}

// StartThread creates a new thread rooted at cwd and returns its id.
func (s *AppServer) StartThread(ctx context.Context, cwd string) (string, error) {
	result, err := s.session.Request(ctx, "thread/start", map[string]any{"cwd": cwd})
	if err != nil {
		return "", err
	}
	if id, ok := ExtractThreadID(result); ok {
		return id, nil
	}
	return "", fmt.Errorf("thread/start response carried no thread id: %s", wire.TruncateForLog(string(result), 120))
}

// ResumeThread reattaches to an existing thread.
func (s *AppServer) ResumeThread(ctx context.Context, threadID, cwd string) error {
	_, err := s.session.Request(ctx, "thread/resume", map[string]any{
		"threadId": threadID,
		"cwd":      cwd,
	})
	return err
}

// StartTurn starts a turn on the thread with full-auto policies. An empty
// prompt sends DefaultContinuePrompt.
func (s *AppServer) StartTurn(ctx context.Context, threadID, cwd, prompt string) (json.RawMessage, error) {
	return s.session.Request(ctx, "turn/start", buildTurnParams(threadID, cwd, prompt))
}

// InterruptTurn asks the app-server to stop the thread's active turn.
func (s *AppServer) InterruptTurn(ctx context.Context, threadID string) error {
	_, err := s.session.Request(ctx, "turn/interrupt", map[string]any{"threadId": threadID})
	return err
}

func buildTurnParams(threadID, cwd, prompt string) map[string]any {
	message := strings.TrimSpace(prompt)
	if message == "" {
		message = DefaultContinuePrompt
	}
	return map[string]any{
		"threadId":       threadID,
		"input":          []map[string]any{{"type": "text", "text": message}},
		"cwd":            cwd,
		"approvalPolicy": "never",
		"sandboxPolicy":  map[string]any{"type": "dangerFullAccess"},
	}
}

// Notify sends a fire-and-forget notification to the app-server.
func (s *AppServer) Notify(method string, params any) error {
	return s.session.Notify(method, params)
}

// Next returns the next streamed event. The stream ends with
// control.ErrNoMoreMessages when the process exits.
func (s *AppServer) Next(ctx context.Context) (*wire.Frame, error) {
	return s.session.Next(ctx)
}

// ThreadID returns the server-assigned thread id once thread/started has
// been observed, or "" before that.
func (s *AppServer) ThreadID() string {
	return s.session.SessionID()
}

// Abort kills the app-server process immediately without waiting.
func (s *AppServer) Abort() {
	s.session.Abort()
}

// Shutdown kills the app-server process and waits for it to exit.
// Idempotent.
func (s *AppServer) Shutdown() error {
	return s.session.Shutdown()
}
