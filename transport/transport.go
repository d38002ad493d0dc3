// Package transport owns the spawned child process and its stdio pipes.
//
// A Transport knows nothing about the frame protocol. It spawns the process,
// serializes writes so concurrent senders never interleave partial lines,
// hands out blocking line reads to the single reader that owns the read
// half, and exposes kill/wait for teardown.
package transport

import (
	"errors"
)

// ErrNotRunning is returned by WriteLine when the process has not been
// started or has already exited.
var ErrNotRunning = errors.New("process not running")

// Config describes the child process to spawn. Executable resolution and
// argument construction are the caller's job; the transport runs exactly
// what it is given.
type Config struct {
	// Path is the executable to run.
	Path string
	// Args are the command line arguments, excluding the executable name.
	Args []string
	// Dir is the working directory. Empty means inherit.
	Dir string
	// Env holds extra environment variables appended to the parent
	// environment. A value here overrides an inherited variable of the
	// same name.
	Env map[string]string
}

// Transport is the contract between the protocol layer and the child
// process. Process is the real implementation; Mock is a scripted stand-in
// for tests.
type Transport interface {
	// Start spawns the process. Calling Start on a running transport is an
	// error.
	Start() error

	// WriteLine writes one newline-terminated frame to the process stdin.
	// Writes are serialized internally; each call is atomic on the wire.
	WriteLine(data []byte) error

	// ReadLine blocks until the next stdout line is available and returns
	// it without the trailing newline. io.EOF signals process exit. Only
	// one goroutine may call ReadLine.
	ReadLine() (string, error)

	// Kill terminates the process immediately without waiting for exit.
	// Safe to call multiple times and before Start.
	Kill()

	// Wait blocks until the process has exited and returns its exit error.
	// Safe to call multiple times; every call returns the same result.
	Wait() error

	// Stderr returns the stderr output captured so far.
	Stderr() string

	// Running reports whether the process is currently running.
	Running() bool
}
