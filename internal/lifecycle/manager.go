// Package lifecycle aggregates resource cleanup so shutdown closes
// everything in reverse registration order.
package lifecycle

import (
	"io"
	"sync"

	"github.com/rs/zerolog/log"
)

// Manager collects closers registered during startup and closes them
// LIFO on shutdown, attempting every closer even when some fail.
type Manager struct {
	mu        sync.Mutex
	resources []resource
}

type resource struct {
	name   string
	closer io.Closer
}

// NewManager creates an empty lifecycle manager.
func NewManager() *Manager {
	return &Manager{}
}

// Register adds a resource to close on shutdown.
func (m *Manager) Register(name string, closer io.Closer) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.resources = append(m.resources, resource{name: name, closer: closer})
}

// RegisterFunc wraps a cleanup function as a closer.
func (m *Manager) RegisterFunc(name string, fn func() error) {
	m.Register(name, closerFunc(fn))
}

// Close closes all registered resources in reverse order and returns
// the first error encountered.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	var firstErr error
	for i := len(m.resources) - 1; i >= 0; i-- {
		res := m.resources[i]
		if err := res.closer.Close(); err != nil {
			log.Error().
				Err(err).
				Str("resource", res.name).
				Msg("lifecycle.close_resource_failed")
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

type closerFunc func() error

func (f closerFunc) Close() error {
	return f()
}
