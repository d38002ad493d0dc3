// Package manager tracks live control-plane sessions by id so a host
// application can run several agent or app-server children at once and
// shut them all down on exit.
package manager

import (
	"context"
	"slices"
	"sync"

	"github.com/google/uuid"

	"github.com/zhubert/agentmux/logger"
	"github.com/zhubert/agentmux/wire"
)

// Runner is the surface shared by agent.Agent and appserver.AppServer:
// spawn the child, consume its stream, and stop it.
type Runner interface {
	Start() error
	Next(ctx context.Context) (*wire.Frame, error)
	Abort()
	Shutdown() error
}

// Factory builds a runner for a freshly minted session id.
// This allows tests to inject mock runners.
type Factory func(id string) (Runner, error)

// Manager is a registry of live sessions keyed by session id.
// Safe for concurrent use.
type Manager struct {
	mu      sync.RWMutex
	runners map[string]Runner
}

// New creates an empty Manager.
func New() *Manager {
	return &Manager{runners: make(map[string]Runner)}
}

// NewSession mints a session id, builds a runner for it, starts it, and
// registers it. On any failure nothing is registered.
func (m *Manager) NewSession(create Factory) (string, Runner, error) {
	id := uuid.NewString()
	log := logger.WithSession(id)

	runner, err := create(id)
	if err != nil {
		log.Warn("failed to create runner", "error", err)
		return "", nil, err
	}
	if err := runner.Start(); err != nil {
		log.Warn("failed to start runner", "error", err)
		return "", nil, err
	}

	m.mu.Lock()
	m.runners[id] = runner
	m.mu.Unlock()

	log.Debug("session registered")
	return id, runner, nil
}

// GetOrCreate returns the runner registered under id, creating and
// starting one if none exists. Uses double-checked locking so concurrent
// callers never create duplicate runners for the same id.
func (m *Manager) GetOrCreate(id string, create Factory) (Runner, error) {
	m.mu.RLock()
	if runner, exists := m.runners[id]; exists {
		m.mu.RUnlock()
		return runner, nil
	}
	m.mu.RUnlock()

	// Build outside the write lock. Spawning a child is slow and must not
	// block unrelated lookups.
	runner, err := create(id)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	if existing, exists := m.runners[id]; exists {
		m.mu.Unlock()
		// Another goroutine won the race. Discard ours.
		runner.Abort()
		return existing, nil
	}
	m.runners[id] = runner
	m.mu.Unlock()

	if err := runner.Start(); err != nil {
		m.mu.Lock()
		delete(m.runners, id)
		m.mu.Unlock()
		return nil, err
	}
	return runner, nil
}

// Get returns the runner for id, or nil if none is registered.
func (m *Manager) Get(id string) Runner {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.runners[id]
}

// List returns the registered session ids in sorted order.
func (m *Manager) List() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ids := make([]string, 0, len(m.runners))
	for id := range m.runners {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// Len returns the number of registered sessions.
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.runners)
}

// Remove shuts down the session and removes it from the registry.
// Returns the runner if one was registered, so callers can inspect it.
func (m *Manager) Remove(id string) Runner {
	m.mu.Lock()
	runner, exists := m.runners[id]
	if exists {
		delete(m.runners, id)
	}
	m.mu.Unlock()

	if !exists {
		return nil
	}
	log := logger.WithSession(id)
	log.Debug("stopping removed session")
	if err := runner.Shutdown(); err != nil {
		log.Warn("shutdown failed for removed session", "error", err)
	}
	return runner
}

// StopAll shuts down every registered session and empties the registry.
// Call on application exit so no child processes are orphaned. Idempotent.
func (m *Manager) StopAll() {
	m.mu.Lock()
	runners := m.runners
	m.runners = make(map[string]Runner)
	m.mu.Unlock()

	log := logger.WithComponent("manager")
	log.Info("shutting down all sessions", "count", len(runners))
	for id, runner := range runners {
		if err := runner.Shutdown(); err != nil {
			logger.WithSession(id).Warn("shutdown failed", "error", err)
		}
	}
	log.Info("shutdown complete")
}
