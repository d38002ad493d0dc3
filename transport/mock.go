package transport

import (
	"io"
	"sync"
)

// Mock is a scripted Transport for tests. Lines queued with QueueLine come
// back from ReadLine in order; CloseRead ends the stream with io.EOF, as a
// real process exit would. Every WriteLine is recorded for assertions.
type Mock struct {
	mu        sync.Mutex
	written   []string
	writeErr  error
	running   bool
	killCount int

	lines     chan string
	closeOnce sync.Once
	waitErr   error
}

// NewMock creates a Mock with room for a generous backlog of scripted lines.
func NewMock() *Mock {
	return &Mock{lines: make(chan string, 256)}
}

// Start marks the transport as running.
func (m *Mock) Start() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.running = true
	return nil
}

// QueueLine scripts one inbound line for ReadLine to return.
func (m *Mock) QueueLine(line string) {
	m.lines <- line
}

// CloseRead ends the inbound stream. Subsequent ReadLine calls return
// io.EOF once the queued backlog is drained. Safe to call multiple times.
func (m *Mock) CloseRead() {
	m.closeOnce.Do(func() { close(m.lines) })
}

// WriteLine records the written frame.
func (m *Mock) WriteLine(data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.writeErr != nil {
		return m.writeErr
	}
	if !m.running {
		return ErrNotRunning
	}
	m.written = append(m.written, string(data))
	return nil
}

// SetWriteError makes subsequent WriteLine calls fail with err.
func (m *Mock) SetWriteError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.writeErr = err
}

// ReadLine returns the next scripted line, blocking until one is queued or
// CloseRead is called.
func (m *Mock) ReadLine() (string, error) {
	line, ok := <-m.lines
	if !ok {
		return "", io.EOF
	}
	return line, nil
}

// Kill marks the transport dead and ends the inbound stream.
func (m *Mock) Kill() {
	m.mu.Lock()
	m.killCount++
	m.running = false
	m.mu.Unlock()
	m.CloseRead()
}

// Wait returns the scripted exit error. There is no child process behind
// the mock, so it returns immediately rather than blocking.
func (m *Mock) Wait() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.waitErr
}

// Running reports whether Kill has been called since Start.
func (m *Mock) Running() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}

// Stderr returns an empty string; the mock has no stderr.
func (m *Mock) Stderr() string {
	return ""
}

// Written returns a copy of all frames written so far.
func (m *Mock) Written() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.written))
	copy(out, m.written)
	return out
}

// KillCount returns how many times Kill has been called.
func (m *Mock) KillCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.killCount
}

// Ensure Mock implements Transport at compile time.
var _ Transport = (*Mock)(nil)
