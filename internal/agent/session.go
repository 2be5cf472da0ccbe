// Package agent provides the backend-agnostic agent session layer.
//
// session.go - Session interface definition
//
// This file contains:
// - Session, the contract every backend adapter must satisfy
//
// Callers (conversation controllers, UI) are fully backend-agnostic: adding
// a second backend requires a new adapter implementation and a registry
// entry, nothing else. Features not every backend supports are part of the
// contract as documented no-ops rather than being omitted, so callers never
// need backend-specific branches.

package agent

import "context"

// Session is the interface for agent backend adapters
type Session interface {
	// BackendType returns the backend this adapter drives
	BackendType() BackendType

	// Initialize establishes connectivity to the backend. It reports
	// success rather than returning an error; after a failure all other
	// calls behave as "not ready".
	Initialize(ctx context.Context) bool

	// HealthCheck is a bounded liveness probe. It tolerates an
	// uninitialized adapter and reports false instead of failing.
	HealthCheck(ctx context.Context) bool

	// Cleanup aborts outstanding work and releases the adapter. The
	// adapter is terminal afterwards; no further calls are permitted.
	Cleanup()

	// CreateSession creates a new backend session and binds it as the
	// current one. Returns the new session id, or "" on failure.
	CreateSession(ctx context.Context, title string) string

	// SessionID returns the currently bound session id, or ""
	SessionID() string

	// SetSessionID binds an existing session as current
	SetSessionID(id string)

	// ResetSession clears the bound session id without deleting the
	// remote session. The next query lazily creates a fresh session.
	ResetSession()

	// DeleteSession deletes a remote session. A deleted id is never
	// reused. Reports whether the deletion succeeded.
	DeleteSession(ctx context.Context, id string) bool

	// ListSessions returns the backend's sessions, or nil on failure
	ListSessions(ctx context.Context) []SessionInfo

	// ShareSession publishes a session and returns its share URL, or ""
	// for backends without sharing
	ShareSession(ctx context.Context, id string) string

	// Messages returns the persisted messages of a session, or nil
	Messages(ctx context.Context, sessionID string) []Message

	// Query submits a prompt and streams normalized chunks. The returned
	// channel is single-consumer, delivers chunks in emission order, and
	// is closed after exactly one terminal chunk. At most one query may
	// be outstanding per adapter instance; a second concurrent call
	// yields a single error chunk without touching shared state.
	Query(ctx context.Context, prompt string, opts *QueryOptions) <-chan StreamChunk

	// Abort cooperatively cancels the in-flight query, locally and
	// best-effort on the remote side. A no-op when nothing is in flight.
	Abort(ctx context.Context)

	// Providers returns capability metadata, memoized for the adapter's
	// lifetime until ClearCache
	Providers(ctx context.Context) []Provider

	// Models returns the flattened, UI-ready model list, memoized like
	// Providers
	Models(ctx context.Context) []Model

	// ClearCache invalidates memoized provider/model metadata
	ClearCache()

	// Cross-backend compatibility operations. Backends lacking the
	// feature implement these as documented no-ops.

	// PreloadPermissions warms backend permission state
	PreloadPermissions(ctx context.Context)

	// Prewarm primes the backend before the first query
	Prewarm(ctx context.Context)

	// RestartPersistentQuery restarts a long-lived query channel for
	// backends that keep one open
	RestartPersistentQuery(ctx context.Context)

	// ClosePersistentQuery ends the persistent query channel and clears
	// the bound session id, like ResetSession
	ClosePersistentQuery()

	// ReloadToolServers re-reads auxiliary tool server configuration
	ReloadToolServers(ctx context.Context)
}
