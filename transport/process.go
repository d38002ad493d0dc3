package transport

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"sync"
)

// readResult holds the result of a blocking read so it can be shuttled
// through a channel.
type readResult struct {
	line string
	err  error
}

// Process is the real Transport backed by an os/exec child process.
type Process struct {
	config Config
	log    *slog.Logger

	// Process state (protected by mu)
	mu            sync.Mutex
	cmd           *exec.Cmd
	stdin         io.WriteCloser
	stdout        *bufio.Reader
	stderr        io.ReadCloser
	stderrContent string
	stderrDone    chan struct{}
	running       bool
	waitErr       error

	// writeMu serializes WriteLine so concurrent senders never interleave
	// partial frames on the wire.
	writeMu sync.Mutex

	// waitDone is closed by monitorExit when cmd.Wait() completes.
	// Wait() blocks on this channel instead of calling cmd.Wait() again,
	// preventing undefined behavior from double Wait().
	waitDone chan struct{}

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewProcess creates a Process transport for the given config.
// The process is not spawned until Start is called.
func NewProcess(config Config, log *slog.Logger) *Process {
	if log == nil {
		log = slog.Default()
	}
	return &Process{config: config, log: log}
}

// Start spawns the child process and begins draining stderr.
func (p *Process) Start() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.running {
		return fmt.Errorf("process already running")
	}

	p.log.Debug("starting process", "command", p.config.Path+" "+strings.Join(p.config.Args, " "))

	cmd := exec.Command(p.config.Path, p.config.Args...)
	cmd.Dir = p.config.Dir
	if len(p.config.Env) > 0 {
		env := os.Environ()
		for k, v := range p.config.Env {
			env = append(env, k+"="+v)
		}
		cmd.Env = env
	}

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("failed to get stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		stdin.Close()
		return fmt.Errorf("failed to get stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		stdin.Close()
		stdout.Close()
		return fmt.Errorf("failed to get stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		stdin.Close()
		stdout.Close()
		stderr.Close()
		return fmt.Errorf("failed to start %s: %w", p.config.Path, err)
	}

	p.cmd = cmd
	p.stdin = stdin
	p.stdout = bufio.NewReader(stdout)
	p.stderr = stderr
	p.stderrContent = ""
	p.stderrDone = make(chan struct{})
	p.waitDone = make(chan struct{})
	p.waitErr = nil
	p.running = true
	p.ctx, p.cancel = context.WithCancel(context.Background())

	p.log.Info("process started", "pid", cmd.Process.Pid)

	p.wg.Add(2)
	go func() {
		defer p.wg.Done()
		p.drainStderr()
	}()
	go func() {
		defer p.wg.Done()
		p.monitorExit()
	}()

	return nil
}

// WriteLine writes one frame to the process stdin.
func (p *Process) WriteLine(data []byte) error {
	p.writeMu.Lock()
	defer p.writeMu.Unlock()

	p.mu.Lock()
	stdin := p.stdin
	running := p.running
	p.mu.Unlock()

	if !running || stdin == nil {
		return ErrNotRunning
	}
	if _, err := stdin.Write(data); err != nil {
		return fmt.Errorf("failed to write to process: %w", err)
	}
	return nil
}

// ReadLine reads the next stdout line, blocking until data is available.
//
// The spawned goroutine doing ReadString cannot be cancelled (blocking I/O),
// but on Kill the pipe closes and the read unblocks with an error. The
// channel is buffered so the goroutine can always deliver its result even
// after this function has returned, preventing a leak.
func (p *Process) ReadLine() (string, error) {
	p.mu.Lock()
	reader := p.stdout
	ctx := p.ctx
	p.mu.Unlock()

	if reader == nil {
		return "", io.EOF
	}

	resultCh := make(chan readResult, 1)
	go func() {
		line, err := reader.ReadString('\n')
		resultCh <- readResult{line: line, err: err}
	}()

	select {
	case <-ctx.Done():
		return "", io.EOF
	case result := <-resultCh:
		return strings.TrimSuffix(result.line, "\n"), result.err
	}
}

// Kill terminates the process immediately. It does not wait for exit; use
// Wait for that.
func (p *Process) Kill() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.cancel != nil {
		p.cancel()
	}
	if p.stdin != nil {
		p.stdin.Close()
		p.stdin = nil
	}
	if p.cmd != nil && p.cmd.Process != nil && p.running {
		p.log.Debug("killing process", "pid", p.cmd.Process.Pid)
		p.cmd.Process.Kill()
	}
}

// Wait blocks until the process has exited and returns the exit error
// recorded by the monitor goroutine. Safe to call repeatedly.
func (p *Process) Wait() error {
	p.mu.Lock()
	waitDone := p.waitDone
	p.mu.Unlock()

	if waitDone == nil {
		return nil
	}
	<-waitDone

	p.mu.Lock()
	defer p.mu.Unlock()
	return p.waitErr
}

// Running reports whether the process is currently running.
func (p *Process) Running() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}

// Stderr returns the stderr content captured so far.
func (p *Process) Stderr() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stderrContent
}

// drainStderr reads all stderr content and stores it for later retrieval.
// This must run concurrently with the process so stderr is captured before
// cmd.Wait() closes the pipe.
func (p *Process) drainStderr() {
	defer close(p.stderrDone)

	p.mu.Lock()
	stderr := p.stderr
	p.mu.Unlock()

	if stderr == nil {
		return
	}

	data, err := io.ReadAll(stderr)
	if err != nil {
		p.log.Debug("error reading stderr", "error", err)
		return
	}
	if len(data) > 0 {
		content := strings.TrimSpace(string(data))
		p.mu.Lock()
		p.stderrContent = content
		p.mu.Unlock()
		p.log.Debug("captured stderr", "content", content)
	}
}

// monitorExit waits for the process to exit and records the result. It is
// the sole caller of cmd.Wait(); Wait() coordinates via the waitDone
// channel instead of calling cmd.Wait() itself.
func (p *Process) monitorExit() {
	p.mu.Lock()
	cmd := p.cmd
	waitDone := p.waitDone
	stderrDone := p.stderrDone
	p.mu.Unlock()

	if cmd == nil {
		close(waitDone)
		return
	}

	err := cmd.Wait()

	// Stderr must be fully drained before the pipes are considered dead.
	if stderrDone != nil {
		<-stderrDone
	}

	p.mu.Lock()
	p.waitErr = err
	p.running = false
	if p.stdin != nil {
		p.stdin.Close()
		p.stdin = nil
	}
	p.mu.Unlock()

	p.log.Debug("process exited", "error", err)
	close(waitDone)
}

// Ensure Process implements Transport at compile time.
var _ Transport = (*Process)(nil)
