package browser

import (
	"log/slog"
)

// Manager owns at most one live Browser at a time. Recovery from a degraded
// session is always recycle-then-recreate; no in-place repair is attempted.
type Manager struct {
	opts    *Options
	current *Browser
	logger  *slog.Logger
}

func NewManager(opts *Options, logger *slog.Logger) *Manager {
	if opts == nil {
		opts = DefaultOptions()
	}
	return &Manager{
		opts:   opts,
		logger: logger.With("component", "session_manager"),
	}
}

// Acquire returns the live browser, creating one if absent. Construction
// failures propagate to the caller; retrying is the caller's decision.
func (m *Manager) Acquire() (*Browser, error) {
	if m.current != nil {
		return m.current, nil
	}

	m.logger.Info("creating browser session")
	b, err := New(m.opts)
	if err != nil {
		return nil, err
	}

	m.current = b
	return m.current, nil
}

// Recycle tears down the current browser unconditionally. It is idempotent,
// safe to call when no session exists, and never returns an error; close
// failures are logged and the handle is discarded regardless.
func (m *Manager) Recycle() {
	if m.current == nil {
		return
	}

	if err := m.current.Close(); err != nil {
		m.logger.Warn("error closing browser session", "error", err)
	}
	m.current = nil
	m.logger.Info("browser session recycled")
}
