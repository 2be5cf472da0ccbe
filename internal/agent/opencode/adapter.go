// Package opencode provides the OpenCode backend adapter.
//
// adapter.go - agent.Session implementation
//
// This file contains:
// - Adapter bridging the Client's backend-specific shapes to the contract
// - The per-instance state machine gating streaming queries
//
// State machine: Uninitialized -> Initializing -> Ready on a successful
// Initialize; Ready <-> Streaming while a query is outstanding (one
// Streaming excursion at a time); Cleanup moves any state to Closed,
// which is terminal.
//
// Compatibility operations the OpenCode backend has no equivalent for
// (permission preload, prewarm, persistent-query restart, tool server
// reload) are intentional no-ops, not omissions.

package opencode

import (
	"context"
	"sync"
	"time"

	"github.com/aotsukiqx/opendian/internal/agent"
	"github.com/aotsukiqx/opendian/internal/logger"
	"github.com/aotsukiqx/opendian/internal/metrics"
)

// backendClient is the slice of Client the adapter depends on
type backendClient interface {
	Initialize(ctx context.Context) bool
	HealthCheck(ctx context.Context) bool
	CreateSession(ctx context.Context, title string) string
	SessionID() string
	SetSessionID(id string)
	DeleteSession(ctx context.Context, id string) bool
	ListSessions(ctx context.Context) []agent.SessionInfo
	GetMessages(ctx context.Context, sessionID string) []agent.Message
	ShareSession(ctx context.Context, id string) string
	Query(ctx context.Context, prompt string, opts *agent.QueryOptions) <-chan RawEvent
	Abort(ctx context.Context)
	Providers(ctx context.Context) []agent.Provider
	Models(ctx context.Context) []agent.Model
	ClearCache()
	Cleanup()
}

type adapterState int

const (
	stateUninitialized adapterState = iota
	stateInitializing
	stateReady
	stateStreaming
	stateClosed
)

// Adapter implements agent.Session on top of one OpenCode client
type Adapter struct {
	client backendClient
	cfg    agent.BackendConfig

	mu    sync.Mutex
	state adapterState
}

var _ agent.Session = (*Adapter)(nil)

// NewAdapter creates an adapter for the configured OpenCode server
func NewAdapter(cfg agent.BackendConfig) *Adapter {
	return &Adapter{
		client: NewClient(cfg.BaseURL),
		cfg:    cfg,
	}
}

// newAdapterWithClient is used by tests to inject a fake client
func newAdapterWithClient(client backendClient, cfg agent.BackendConfig) *Adapter {
	return &Adapter{client: client, cfg: cfg}
}

// BackendType returns the backend identifier
func (a *Adapter) BackendType() agent.BackendType {
	return agent.BackendOpenCode
}

// Initialize establishes connectivity and moves the adapter to Ready
func (a *Adapter) Initialize(ctx context.Context) bool {
	a.mu.Lock()
	if a.state == stateClosed {
		a.mu.Unlock()
		return false
	}
	if a.state == stateReady || a.state == stateStreaming {
		a.mu.Unlock()
		return true
	}
	a.state = stateInitializing
	a.mu.Unlock()

	ok := a.client.Initialize(ctx)

	a.mu.Lock()
	if a.state == stateInitializing {
		if ok {
			a.state = stateReady
		} else {
			a.state = stateUninitialized
		}
	}
	a.mu.Unlock()
	return ok
}

// HealthCheck probes backend liveness
func (a *Adapter) HealthCheck(ctx context.Context) bool {
	if a.closed() {
		return false
	}
	return a.client.HealthCheck(ctx)
}

// Cleanup aborts outstanding work and closes the adapter permanently
func (a *Adapter) Cleanup() {
	a.mu.Lock()
	if a.state == stateClosed {
		a.mu.Unlock()
		return
	}
	a.state = stateClosed
	a.mu.Unlock()

	a.client.Cleanup()
}

// CreateSession creates and binds a new backend session
func (a *Adapter) CreateSession(ctx context.Context, title string) string {
	if a.closed() {
		return ""
	}
	id := a.client.CreateSession(ctx, title)
	if id != "" {
		metrics.RecordSessionCreated(string(agent.BackendOpenCode))
	}
	return id
}

// SessionID returns the bound current session id
func (a *Adapter) SessionID() string {
	return a.client.SessionID()
}

// SetSessionID binds an existing session as current
func (a *Adapter) SetSessionID(id string) {
	a.client.SetSessionID(id)
}

// ResetSession clears the bound session id without deleting the remote
// session. The next query lazily creates a fresh one.
func (a *Adapter) ResetSession() {
	a.client.SetSessionID("")
}

// DeleteSession deletes a remote session
func (a *Adapter) DeleteSession(ctx context.Context, id string) bool {
	if a.closed() {
		return false
	}
	return a.client.DeleteSession(ctx, id)
}

// ListSessions returns the backend's sessions
func (a *Adapter) ListSessions(ctx context.Context) []agent.SessionInfo {
	if a.closed() {
		return nil
	}
	return a.client.ListSessions(ctx)
}

// ShareSession publishes a session and returns its share URL
func (a *Adapter) ShareSession(ctx context.Context, id string) string {
	if a.closed() {
		return ""
	}
	return a.client.ShareSession(ctx, id)
}

// Messages returns a session's persisted messages
func (a *Adapter) Messages(ctx context.Context, sessionID string) []agent.Message {
	if a.closed() {
		return nil
	}
	if sessionID == "" {
		sessionID = a.client.SessionID()
	}
	return a.client.GetMessages(ctx, sessionID)
}

// Query submits a prompt and streams normalized chunks. A session is
// lazily created when none is bound; creation failure short-circuits with
// a single error chunk and the client is never called without a session.
func (a *Adapter) Query(ctx context.Context, prompt string, opts *agent.QueryOptions) <-chan agent.StreamChunk {
	out := make(chan agent.StreamChunk, 8)
	opts = opts.Clone()

	a.mu.Lock()
	switch a.state {
	case stateClosed:
		a.mu.Unlock()
		failStream(out, "adapter is closed")
		return out
	case stateStreaming:
		a.mu.Unlock()
		failStream(out, "a query is already in progress")
		return out
	}
	a.state = stateStreaming
	a.mu.Unlock()

	go a.runQuery(ctx, prompt, opts, out)
	return out
}

func (a *Adapter) runQuery(ctx context.Context, prompt string, opts *agent.QueryOptions, out chan<- agent.StreamChunk) {
	defer close(out)
	defer func() {
		a.mu.Lock()
		if a.state == stateStreaming {
			a.state = stateReady
		}
		a.mu.Unlock()
	}()

	start := time.Now()

	sessionID := opts.SessionID
	if sessionID == "" {
		sessionID = a.client.SessionID()
	}
	var created bool
	if sessionID == "" {
		sessionID = a.client.CreateSession(ctx, "")
		if sessionID == "" {
			metrics.RecordQuery(string(agent.BackendOpenCode), "error", time.Since(start))
			out <- agent.ErrorChunk("Failed to create OpenCode session")
			return
		}
		metrics.RecordSessionCreated(string(agent.BackendOpenCode))
		created = true
	}
	opts.SessionID = sessionID

	a.applyModelDefaults(ctx, opts)

	if created {
		out <- agent.StreamChunk{Type: agent.ChunkSession, SessionID: sessionID}
	}

	status := "done"
	for chunk := range Normalize(a.client.Query(ctx, prompt, opts)) {
		metrics.RecordChunk(string(chunk.Type))
		if chunk.Type == agent.ChunkError {
			status = "error"
		}
		out <- chunk
	}
	metrics.RecordQuery(string(agent.BackendOpenCode), status, time.Since(start))
}

// applyModelDefaults fills missing options from configuration and strips
// request features the selected model does not support
func (a *Adapter) applyModelDefaults(ctx context.Context, opts *agent.QueryOptions) {
	if opts.Model == "" {
		opts.Model = a.cfg.DefaultModel
	}
	if opts.ToolServers == nil {
		opts.ToolServers = a.cfg.ToolServers
	}

	if opts.ReasoningEffort == "" && len(opts.Attachments) == 0 {
		return
	}
	model, ok := agent.FindModel(a.client.Models(ctx), opts.Model)
	if !ok {
		return
	}
	if !model.SupportsReasoning && opts.ReasoningEffort != "" {
		logger.Slog().Debug("opencode: model lacks reasoning, dropping variant", "model", opts.Model)
		opts.ReasoningEffort = ""
	}
	if !model.SupportsAttachment && len(opts.Attachments) > 0 {
		logger.Slog().Debug("opencode: model lacks attachments, dropping files", "model", opts.Model)
		opts.Attachments = nil
	}
}

// Abort delegates cancellation to the client. A no-op when idle.
func (a *Adapter) Abort(ctx context.Context) {
	a.client.Abort(ctx)
}

// Providers returns cached provider metadata
func (a *Adapter) Providers(ctx context.Context) []agent.Provider {
	if a.closed() {
		return nil
	}
	return a.client.Providers(ctx)
}

// Models returns the cached model list
func (a *Adapter) Models(ctx context.Context) []agent.Model {
	if a.closed() {
		return nil
	}
	return a.client.Models(ctx)
}

// ClearCache invalidates cached capability metadata
func (a *Adapter) ClearCache() {
	metrics.RecordCacheRefresh(string(agent.BackendOpenCode))
	a.client.ClearCache()
}

// PreloadPermissions is a no-op: OpenCode handles permissions server-side
func (a *Adapter) PreloadPermissions(ctx context.Context) {}

// Prewarm is a no-op: OpenCode sessions need no warmup
func (a *Adapter) Prewarm(ctx context.Context) {}

// RestartPersistentQuery is a no-op: OpenCode uses per-call round trips
// rather than a persistent query channel
func (a *Adapter) RestartPersistentQuery(ctx context.Context) {}

// ClosePersistentQuery clears the bound session id, like ResetSession.
// There is no persistent channel to close for this backend.
func (a *Adapter) ClosePersistentQuery() {
	a.client.SetSessionID("")
}

// ReloadToolServers is a no-op: tool server selection is passed per query
func (a *Adapter) ReloadToolServers(ctx context.Context) {}

func (a *Adapter) closed() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state == stateClosed
}

// failStream emits a single terminal error chunk and closes the stream
func failStream(out chan<- agent.StreamChunk, message string) {
	out <- agent.ErrorChunk(message)
	close(out)
}
