// Package control implements the bidirectional control-plane multiplexer
// shared by the agent and app-server method tables.
//
// A Session acts as RPC client and server over one child process pipe: it
// mints ids and correlates responses for its own outbound requests, answers
// peer-initiated requests through an injected handler, and surfaces
// fire-and-forget notifications as a finite message stream. A single reader
// goroutine owns the transport's read half for the session's lifetime.
package control

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/zhubert/agentmux/transport"
	"github.com/zhubert/agentmux/wire"
)

const (
	// DefaultBufferSize is the notification channel capacity. A full
	// channel applies backpressure to the reader rather than dropping
	// messages.
	DefaultBufferSize = 256

	// handlerErrorCode is the error code sent to the peer when a request
	// handler fails.
	handlerErrorCode = -32603
)

// RequestHandler answers a peer-initiated request. The returned value is
// serialized as the result payload; a non-nil error is sent back as an
// error response instead.
type RequestHandler func(ctx context.Context, method string, params json.RawMessage) (any, error)

// Config assembles a Session. Transport is required; everything else has a
// working default. The marker hooks and request handler are how the thin
// per-process method tables specialize the shared engine.
type Config struct {
	Transport transport.Transport

	// HandleRequest answers peer requests. Nil acknowledges every request
	// with an empty object.
	HandleRequest RequestHandler

	// InitSessionID inspects a notification and, for the marker that
	// announces session start, extracts the peer-assigned session id.
	InitSessionID func(method string, params json.RawMessage) (string, bool)

	// IsTerminal reports whether a notification ends the message stream.
	IsTerminal func(method string, params json.RawMessage) bool

	// IDPrefix prefixes minted request ids ("sdk" by default).
	IDPrefix string

	// BufferSize overrides DefaultBufferSize when positive.
	BufferSize int

	Logger *slog.Logger

	// StreamLogPath, when set, receives a copy of every raw inbound line
	// for debugging.
	StreamLogPath string
}

// Session is the public handle for one child process conversation.
//
// Lifecycle: create, Start, exchange requests and consume the message
// stream, then Abort (kill only) or Shutdown (kill and reap). The session
// is not restartable.
type Session struct {
	cfg     Config
	log     *slog.Logger
	pending *pendingTable
	nextID  atomic.Uint64

	messages   chan *wire.Frame
	streamDone bool // reader-goroutine local: stream channel closed

	mu        sync.Mutex
	sessionID string
	completed bool

	done          chan struct{} // closed by Abort/Shutdown to release the reader
	doneOnce      sync.Once
	closeOnce     sync.Once // closes messages exactly once
	readerStarted atomic.Bool
	readerDone    chan struct{}
	streamLog     *os.File
}

// NewSession creates a Session over the given transport. The process is
// not started until Start is called.
func NewSession(cfg Config) *Session {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.IDPrefix == "" {
		cfg.IDPrefix = "sdk"
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = DefaultBufferSize
	}

	s := &Session{
		cfg:        cfg,
		log:        cfg.Logger,
		pending:    newPendingTable(),
		messages:   make(chan *wire.Frame, cfg.BufferSize),
		done:       make(chan struct{}),
		readerDone: make(chan struct{}),
	}

	if cfg.StreamLogPath != "" {
		f, err := os.OpenFile(cfg.StreamLogPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			s.log.Warn("failed to open stream log", "path", cfg.StreamLogPath, "error", err)
		} else {
			s.streamLog = f
		}
	}
	return s
}

// Start spawns the child process and the reader goroutine.
func (s *Session) Start() error {
	if err := s.cfg.Transport.Start(); err != nil {
		return fmt.Errorf("failed to start transport: %w", err)
	}
	s.readerStarted.Store(true)
	go s.readLoop()
	return nil
}

// Request sends a control request to the peer and blocks until the
// correlated response arrives. The id is minted here; concurrent callers
// are safe and may complete in any order.
//
// Cancelling ctx abandons the wait but leaves the table entry in place
// until the peer responds or the session shuts down; a late response for
// an abandoned id is logged and dropped, not an error.
func (s *Session) Request(ctx context.Context, method string, params any) (json.RawMessage, error) {
	id := wire.StringID(fmt.Sprintf("%s-%d", s.cfg.IDPrefix, s.nextID.Add(1)-1))

	ch, err := s.pending.register(id.String())
	if err != nil {
		return nil, fmt.Errorf("%s request not sent: %w", method, err)
	}

	line, err := wire.EncodeRequest(id, method, params)
	if err != nil {
		s.pending.cancel(id.String())
		return nil, err
	}
	if err := s.cfg.Transport.WriteLine(line); err != nil {
		s.pending.cancel(id.String())
		return nil, fmt.Errorf("failed to send %s request: %w", method, err)
	}

	s.log.Debug("control request sent", "method", method, "id", id.String())

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case out, ok := <-ch:
		if !ok {
			return nil, ErrCanceled
		}
		if out.err != nil {
			return nil, out.err
		}
		return out.result, nil
	}
}

// Notify sends a fire-and-forget notification to the peer.
func (s *Session) Notify(method string, params any) error {
	line, err := wire.EncodeNotification(method, params)
	if err != nil {
		return err
	}
	return s.cfg.Transport.WriteLine(line)
}

// Send writes an arbitrary JSON object as one line. Used for stream input
// that is not a control frame, such as user messages.
func (s *Session) Send(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}
	return s.cfg.Transport.WriteLine(append(data, '\n'))
}

// Next returns the next inbound notification. It blocks until a message
// arrives, ctx is cancelled, or the stream ends (ErrNoMoreMessages). The
// stream ends when the terminal marker has been consumed or the process
// exits.
func (s *Session) Next(ctx context.Context) (*wire.Frame, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case f, ok := <-s.messages:
		if !ok {
			return nil, ErrNoMoreMessages
		}
		return f, nil
	}
}

// SessionID returns the peer-assigned session id, or "" before the init
// marker has been observed.
func (s *Session) SessionID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sessionID
}

// Completed reports whether the terminal marker has been observed.
func (s *Session) Completed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.completed
}

// Abort kills the child process immediately without waiting for exit.
// Pending requests fail once the reader observes EOF.
func (s *Session) Abort() {
	s.log.Debug("aborting session")
	s.signalStop()
	s.cfg.Transport.Kill()
}

// Shutdown kills the child process and waits for it to exit, reaping any
// descendant processes. Idempotent: repeated calls return the same
// terminal state.
func (s *Session) Shutdown() error {
	s.log.Debug("shutting down session")
	s.signalStop()
	s.cfg.Transport.Kill()
	err := s.cfg.Transport.Wait()
	if s.readerStarted.Load() {
		<-s.readerDone
		return err
	}

	// Start never launched a reader, so do its teardown here: fail any
	// pending requests and end the message stream.
	s.pending.failAll(ErrConnectionClosed)
	s.closeMessages()
	s.mu.Lock()
	if s.streamLog != nil {
		s.streamLog.Close()
		s.streamLog = nil
	}
	s.mu.Unlock()
	return err
}

func (s *Session) signalStop() {
	s.doneOnce.Do(func() { close(s.done) })
}

// readLoop is the single goroutine that owns the transport's read half.
// On EOF it drains the pending table before closing the message stream,
// so no outbound request is ever left hanging.
func (s *Session) readLoop() {
	defer close(s.readerDone)
	defer s.closeMessages()
	defer s.pending.failAll(ErrConnectionClosed)
	defer func() {
		if s.streamLog != nil {
			s.streamLog.Close()
		}
	}()

	for {
		line, err := s.cfg.Transport.ReadLine()
		if err != nil {
			if err != io.EOF {
				s.log.Debug("transport read ended", "error", err)
			}
			return
		}

		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}

		if s.streamLog != nil {
			s.streamLog.WriteString(trimmed + "\n")
		}

		// Peers emit occasional diagnostic output between frames.
		if !strings.HasPrefix(trimmed, "{") {
			s.log.Debug("skipping non-frame output", "line", wire.TruncateForLog(trimmed, 120))
			continue
		}

		frame, err := wire.Decode([]byte(trimmed))
		if err != nil {
			s.log.Warn("dropping undecodable line", "error", err)
			continue
		}

		switch frame.Kind {
		case wire.KindResponse:
			s.handleResponse(frame)
		case wire.KindRequest:
			s.handlePeerRequest(frame)
		case wire.KindNotification:
			s.handleNotification(frame)
		}
	}
}

func (s *Session) handleResponse(frame *wire.Frame) {
	out := outcome{result: frame.Result}
	if frame.Err != nil {
		out = outcome{err: &RequestError{Code: frame.Err.Code, Message: frame.Err.Message}}
	}
	if !s.pending.resolve(frame.ID.String(), out) {
		s.log.Warn("response for unknown request id", "id", frame.ID.String())
	}
}

// handlePeerRequest answers one peer-initiated request inline. Peer
// requests are rare relative to notifications, and inline handling keeps
// responses in arrival order without a second correlation table; the cost
// is that a slow handler stalls delivery of subsequent notifications until
// it returns.
func (s *Session) handlePeerRequest(frame *wire.Frame) {
	s.log.Debug("peer request", "method", frame.Method, "id", frame.ID.String())

	result, err := s.dispatch(frame)

	var line []byte
	var encErr error
	if err != nil {
		s.log.Warn("peer request handler failed", "method", frame.Method, "error", err)
		line, encErr = wire.EncodeError(frame.ID, handlerErrorCode, err.Error())
	} else {
		line, encErr = wire.EncodeResult(frame.ID, result)
	}
	if encErr != nil {
		s.log.Error("failed to encode peer response", "method", frame.Method, "error", encErr)
		return
	}
	if werr := s.cfg.Transport.WriteLine(line); werr != nil {
		s.log.Warn("failed to send peer response", "method", frame.Method, "error", werr)
	}
}

func (s *Session) dispatch(frame *wire.Frame) (any, error) {
	if s.cfg.HandleRequest == nil {
		return map[string]any{}, nil
	}
	return s.cfg.HandleRequest(context.Background(), frame.Method, frame.Params)
}

func (s *Session) handleNotification(frame *wire.Frame) {
	if s.cfg.InitSessionID != nil {
		if id, ok := s.cfg.InitSessionID(frame.Method, frame.Params); ok {
			s.mu.Lock()
			if s.sessionID == "" {
				s.sessionID = id
			}
			s.mu.Unlock()
			s.log.Debug("session initialized", "peerSessionID", id)
		}
	}

	terminal := s.cfg.IsTerminal != nil && s.cfg.IsTerminal(frame.Method, frame.Params)
	if terminal {
		s.mu.Lock()
		s.completed = true
		s.mu.Unlock()
	}

	if !s.streamDone {
		// Blocking send: a full channel applies backpressure to the
		// reader. Abort/Shutdown closes done so a stopped consumer never
		// wedges the loop.
		select {
		case s.messages <- frame:
		case <-s.done:
			s.streamDone = true
		}
	}

	if terminal {
		s.closeMessages()
		s.streamDone = true
	}
}

func (s *Session) closeMessages() {
	s.closeOnce.Do(func() { close(s.messages) })
}
