// ABOUTME: Owned database handle with deep-equal configuration reuse
// ABOUTME: Also tracks the default handle used when callers name no connection

package connection

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/go-cmp/cmp"

	"github.com/2389/treesync/internal/backend"
	"github.com/2389/treesync/internal/syncerr"
)

// Manager holds at most one live connection.
type Manager struct {
	mu        sync.Mutex
	backend   backend.Backend
	db        backend.DB
	config    *backend.Config
	defaultDB backend.DB
	logger    *slog.Logger
}

// NewManager creates a manager that connects through b. Pass nil logger for default.
func NewManager(b backend.Backend, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		backend: b,
		logger:  logger.With("component", "connection"),
	}
}

// Database returns the live connection. With a non-nil cfg it connects
// first unless cfg equals the configuration of the live connection. With
// a nil cfg and no live connection it fails with a not-ready error.
func (m *Manager) Database(ctx context.Context, cfg *backend.Config) (backend.DB, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if cfg != nil {
		if m.db == nil || m.config == nil || !cmp.Equal(*cfg, *m.config) {
			db, err := m.backend.Connect(ctx, *cfg)
			if err != nil {
				return nil, fmt.Errorf("connecting to %q: %w", cfg.Name, err)
			}
			m.replace(db)
			m.logger.Info("database connected", "name", cfg.Name)
		} else {
			m.logger.Debug("reusing database connection", "name", cfg.Name)
		}
		c := cfg.Clone()
		m.config = &c
	}

	if m.db == nil {
		return nil, syncerr.NotReady("trying to get the database connection but it has not been established yet")
	}
	return m.db, nil
}

// replace installs db as the live connection and closes the previous one.
// Must be called with mu held.
func (m *Manager) replace(db backend.DB) {
	prev := m.db
	m.db = db
	if prev == nil {
		return
	}
	if m.defaultDB == prev {
		m.defaultDB = nil
	}
	if err := prev.Close(); err != nil {
		m.logger.Warn("closing replaced connection", "error", err)
	}
}

// Current returns the live connection, or nil.
func (m *Manager) Current() backend.DB {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.db
}

// Config returns a copy of the configuration of the live connection, or nil.
func (m *Manager) Config() *backend.Config {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.config == nil {
		return nil
	}
	c := m.config.Clone()
	return &c
}

// SetDefaultIfUnset makes db the default handle unless one is already set.
// It reports whether db was installed.
func (m *Manager) SetDefaultIfUnset(db backend.DB) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.defaultDB != nil {
		return false
	}
	m.defaultDB = db
	return true
}

// Default returns the default handle, or nil.
func (m *Manager) Default() backend.DB {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.defaultDB
}

// Close closes the live connection.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.db == nil {
		return nil
	}
	err := m.db.Close()
	m.db = nil
	m.config = nil
	m.defaultDB = nil
	return err
}
