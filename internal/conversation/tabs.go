// Package conversation provides per-tab conversation controllers on top of
// the agent session layer.
//
// tabs.go - Multi-tab manager
//
// This file contains:
// - Manager, which owns the set of open tabs and their adapters
//
// Every tab gets its own adapter instance, so per-tab state (bound session,
// in-flight query) is isolated by construction and tabs can stream
// concurrently. The manager layers rate limiting and binding persistence
// on top of the controllers.

package conversation

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/aotsukiqx/opendian/internal/agent"
	"github.com/aotsukiqx/opendian/internal/logger"
	"github.com/aotsukiqx/opendian/internal/metrics"
	"github.com/aotsukiqx/opendian/internal/store"
)

// BindingStore persists tab/session bindings across restarts
type BindingStore interface {
	SaveBinding(b store.Binding) error
	DeleteBinding(tabID string) error
	ListBindings() ([]store.Binding, error)
}

// TabInfo is a snapshot of one open tab
type TabInfo struct {
	ID        string
	Title     string
	SessionID string
	Busy      bool
}

// Manager owns the open conversation tabs for one backend
type Manager struct {
	backend  agent.BackendType
	cfg      agent.BackendConfig
	bindings BindingStore
	limiter  *RateLimiter

	mu     sync.Mutex
	tabs   map[string]*Controller
	closed bool
}

// NewManager creates a tab manager for the given backend. bindings may be
// nil to disable persistence.
func NewManager(backend agent.BackendType, cfg agent.BackendConfig, bindings BindingStore, limiter *RateLimiter) *Manager {
	if limiter == nil {
		limiter = DefaultRateLimiter()
	}
	return &Manager{
		backend:  backend,
		cfg:      cfg,
		bindings: bindings,
		limiter:  limiter,
		tabs:     make(map[string]*Controller),
	}
}

// OpenTab creates a new tab with its own adapter instance. The backend
// session is created lazily on the tab's first send.
func (m *Manager) OpenTab(ctx context.Context, title string) (*Controller, error) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil, ErrManagerClosed
	}
	m.mu.Unlock()

	tabID := uuid.NewString()
	ctrl, err := m.newController(ctx, tabID, title)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	m.tabs[tabID] = ctrl
	m.mu.Unlock()

	metrics.RecordTabOpen()
	logger.Slog().Info("tab opened", "tab_id", tabID, "backend", m.backend)
	return ctrl, nil
}

// Resume reattaches persisted tabs from the binding store. Bindings for
// other backends are left alone. Tabs whose adapter cannot initialize are
// skipped with a warning rather than failing the whole resume.
func (m *Manager) Resume(ctx context.Context) error {
	if m.bindings == nil {
		return nil
	}

	persisted, err := m.bindings.ListBindings()
	if err != nil {
		return fmt.Errorf("failed to load persisted tabs: %w", err)
	}

	for _, b := range persisted {
		if b.Backend != string(m.backend) {
			continue
		}

		ctrl, err := m.newController(ctx, b.TabID, b.Title)
		if err != nil {
			logger.Slog().Warn("skipping persisted tab", "tab_id", b.TabID, "error", err)
			continue
		}
		ctrl.AttachSession(b.SessionID)

		m.mu.Lock()
		m.tabs[b.TabID] = ctrl
		m.mu.Unlock()

		metrics.RecordTabOpen()
		logger.Slog().Info("tab resumed", "tab_id", b.TabID, "session_id", b.SessionID)
	}
	return nil
}

// newController builds and initializes one tab's adapter
func (m *Manager) newController(ctx context.Context, tabID, title string) (*Controller, error) {
	session, err := agent.New(m.backend, m.cfg)
	if err != nil {
		return nil, err
	}
	if !session.Initialize(ctx) {
		session.Cleanup()
		return nil, fmt.Errorf("%w: %s", ErrBackendNotReady, m.backend)
	}

	ctrl := NewController(tabID, title, session)
	ctrl.onSession = m.persistBinding
	return ctrl, nil
}

// persistBinding records a tab's session binding when the backend
// announces it. Persistence failures are logged, not surfaced: the
// conversation works without them.
func (m *Manager) persistBinding(tabID, sessionID string) {
	if m.bindings == nil {
		return
	}

	title := ""
	m.mu.Lock()
	if ctrl, ok := m.tabs[tabID]; ok {
		title = ctrl.Title()
	}
	m.mu.Unlock()

	err := m.bindings.SaveBinding(store.Binding{
		TabID:     tabID,
		SessionID: sessionID,
		Backend:   string(m.backend),
		Title:     title,
	})
	if err != nil {
		logger.Slog().Warn("failed to persist tab binding", "tab_id", tabID, "error", err)
	}
}

// Tab returns the controller for a tab id
func (m *Manager) Tab(tabID string) (*Controller, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	ctrl, ok := m.tabs[tabID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrTabNotFound, tabID)
	}
	return ctrl, nil
}

// Send submits a prompt on a tab, applying the per-tab rate limit before
// the tab's own busy discipline
func (m *Manager) Send(ctx context.Context, tabID, prompt string, opts *agent.QueryOptions) (<-chan agent.StreamChunk, error) {
	ctrl, err := m.Tab(tabID)
	if err != nil {
		return nil, err
	}

	if !m.limiter.Allow(tabID) {
		metrics.RecordRateLimitRejection()
		return nil, ErrRateLimited
	}

	return ctrl.Send(ctx, prompt, opts)
}

// CloseTab closes a tab: its adapter is released and its persisted
// binding removed
func (m *Manager) CloseTab(tabID string) error {
	m.mu.Lock()
	ctrl, ok := m.tabs[tabID]
	if ok {
		delete(m.tabs, tabID)
	}
	m.mu.Unlock()

	if !ok {
		return fmt.Errorf("%w: %s", ErrTabNotFound, tabID)
	}

	ctrl.Close()
	m.limiter.Forget(tabID)
	metrics.RecordTabClose()

	if m.bindings != nil {
		if err := m.bindings.DeleteBinding(tabID); err != nil && err != store.ErrBindingNotFound {
			logger.Slog().Warn("failed to delete tab binding", "tab_id", tabID, "error", err)
		}
	}

	logger.Slog().Info("tab closed", "tab_id", tabID)
	return nil
}

// Tabs returns a snapshot of all open tabs
func (m *Manager) Tabs() []TabInfo {
	m.mu.Lock()
	controllers := make([]*Controller, 0, len(m.tabs))
	for _, ctrl := range m.tabs {
		controllers = append(controllers, ctrl)
	}
	m.mu.Unlock()

	infos := make([]TabInfo, 0, len(controllers))
	for _, ctrl := range controllers {
		infos = append(infos, TabInfo{
			ID:        ctrl.TabID(),
			Title:     ctrl.Title(),
			SessionID: ctrl.SessionID(),
			Busy:      ctrl.Busy(),
		})
	}
	return infos
}

// ClearCaches invalidates every open tab's capability cache, for example
// after a configuration change
func (m *Manager) ClearCaches() {
	m.mu.Lock()
	controllers := make([]*Controller, 0, len(m.tabs))
	for _, ctrl := range m.tabs {
		controllers = append(controllers, ctrl)
	}
	m.mu.Unlock()

	for _, ctrl := range controllers {
		ctrl.session.ClearCache()
	}
}

// Close shuts the manager down, releasing every tab's adapter. Persisted
// bindings are kept so tabs can be resumed on the next start.
func (m *Manager) Close() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	controllers := make([]*Controller, 0, len(m.tabs))
	for _, ctrl := range m.tabs {
		controllers = append(controllers, ctrl)
	}
	m.tabs = make(map[string]*Controller)
	m.mu.Unlock()

	for _, ctrl := range controllers {
		ctrl.Close()
		metrics.RecordTabClose()
	}
}
