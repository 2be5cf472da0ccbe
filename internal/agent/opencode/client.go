// Package opencode provides the OpenCode backend adapter.
//
// client.go - HTTP client for the OpenCode server
//
// This file contains:
// - Client, a thin typed gateway to the OpenCode REST API
// - Session CRUD, prompt submission, abort, capability discovery
//
// The client never lets a transport error escape: every method degrades to
// a neutral value (false, "", nil) on failure so callers can treat "backend
// flaked" and "backend has no data" identically. Provider/model metadata is
// memoized for the client's lifetime until ClearCache.

package opencode

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/aotsukiqx/opendian/internal/agent"
	"github.com/aotsukiqx/opendian/internal/logger"
)

const (
	healthCheckTimeout = 2 * time.Second
	remoteAbortTimeout = 2 * time.Second
)

// Client is a typed gateway to one OpenCode server
type Client struct {
	baseURL string
	httpc   *http.Client

	mu           sync.Mutex
	initialized  bool
	sessionID    string
	cancelQuery  context.CancelFunc
	querySession string

	cacheMu   sync.Mutex
	cached    bool
	providers []agent.Provider
	models    []agent.Model
}

// NewClient creates a client for the server at baseURL
// (e.g. "http://127.0.0.1:4096")
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		httpc:   &http.Client{},
	}
}

// Initialize establishes connectivity by probing the health endpoint.
// Reports success; on failure the client stays not-ready and every other
// method degrades to its neutral value.
func (c *Client) Initialize(ctx context.Context) bool {
	if !c.probeHealth(ctx) {
		logger.Slog().Warn("opencode: server not reachable", "url", c.baseURL)
		return false
	}

	c.mu.Lock()
	c.initialized = true
	c.mu.Unlock()
	return true
}

// HealthCheck probes server liveness with a bounded timeout. Tolerates an
// uninitialized client by reporting false.
func (c *Client) HealthCheck(ctx context.Context) bool {
	if !c.isInitialized() {
		return false
	}
	return c.probeHealth(ctx)
}

func (c *Client) probeHealth(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, healthCheckTimeout)
	defer cancel()

	resp, err := c.do(ctx, http.MethodGet, "/global/health", nil)
	if err != nil {
		return false
	}
	defer func() { _ = resp.Body.Close() }()
	return resp.StatusCode == http.StatusOK
}

func (c *Client) isInitialized() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.initialized
}

// CreateSession creates a new session and binds it as current.
// Returns "" on failure.
func (c *Client) CreateSession(ctx context.Context, title string) string {
	if !c.isInitialized() {
		return ""
	}

	var body any
	if title != "" {
		body = map[string]string{"title": title}
	}

	var created wireSession
	if err := c.doJSON(ctx, http.MethodPost, "/session", body, &created); err != nil {
		logger.Slog().Warn("opencode: create session failed", "error", err)
		return ""
	}
	if created.ID == "" {
		return ""
	}

	c.mu.Lock()
	c.sessionID = created.ID
	c.mu.Unlock()
	return created.ID
}

// SessionID returns the bound current session id, or ""
func (c *Client) SessionID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sessionID
}

// SetSessionID binds an existing session as current
func (c *Client) SetSessionID(id string) {
	c.mu.Lock()
	c.sessionID = id
	c.mu.Unlock()
}

// GetSession fetches one session, or nil on failure
func (c *Client) GetSession(ctx context.Context, id string) *agent.SessionInfo {
	if !c.isInitialized() || id == "" {
		return nil
	}

	var ws wireSession
	if err := c.doJSON(ctx, http.MethodGet, "/session/"+id, nil, &ws); err != nil {
		logger.Slog().Warn("opencode: get session failed", "session_id", id, "error", err)
		return nil
	}
	if ws.ID == "" {
		return nil
	}
	info := toSessionInfo(ws)
	return &info
}

// ListSessions returns all sessions, or nil on failure
func (c *Client) ListSessions(ctx context.Context) []agent.SessionInfo {
	if !c.isInitialized() {
		return nil
	}

	var sessions []wireSession
	if err := c.doJSON(ctx, http.MethodGet, "/session", nil, &sessions); err != nil {
		logger.Slog().Warn("opencode: list sessions failed", "error", err)
		return nil
	}

	out := make([]agent.SessionInfo, 0, len(sessions))
	for _, ws := range sessions {
		out = append(out, toSessionInfo(ws))
	}
	return out
}

// DeleteSession deletes a remote session, reporting success. The bound
// current session is unbound when it is the one deleted.
func (c *Client) DeleteSession(ctx context.Context, id string) bool {
	if !c.isInitialized() || id == "" {
		return false
	}

	resp, err := c.do(ctx, http.MethodDelete, "/session/"+id, nil)
	if err != nil {
		logger.Slog().Warn("opencode: delete session failed", "session_id", id, "error", err)
		return false
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNoContent {
		return false
	}

	c.mu.Lock()
	if c.sessionID == id {
		c.sessionID = ""
	}
	c.mu.Unlock()
	return true
}

// GetMessages returns a session's persisted messages, or nil on failure.
// Text parts of each message are joined; other part types are skipped.
func (c *Client) GetMessages(ctx context.Context, sessionID string) []agent.Message {
	if !c.isInitialized() || sessionID == "" {
		return nil
	}

	var msgs []messageResponse
	if err := c.doJSON(ctx, http.MethodGet, "/session/"+sessionID+"/message", nil, &msgs); err != nil {
		logger.Slog().Warn("opencode: get messages failed", "session_id", sessionID, "error", err)
		return nil
	}

	out := make([]agent.Message, 0, len(msgs))
	for _, m := range msgs {
		var text string
		for _, p := range m.Parts {
			if p.Type == partTypeText && p.Text != "" {
				if text != "" {
					text += "\n"
				}
				text += p.Text
			}
		}
		out = append(out, agent.Message{
			ID:        m.Info.ID,
			Role:      m.Info.Role,
			Content:   text,
			CreatedAt: time.UnixMilli(m.Info.Time.Created),
		})
	}
	return out
}

// ShareSession publishes a session and returns its share URL, or ""
func (c *Client) ShareSession(ctx context.Context, id string) string {
	if !c.isInitialized() || id == "" {
		return ""
	}

	var shared wireShare
	if err := c.doJSON(ctx, http.MethodPost, "/session/"+id+"/share", nil, &shared); err != nil {
		logger.Slog().Warn("opencode: share session failed", "session_id", id, "error", err)
		return ""
	}
	return shared.Share.URL
}

// Query submits a prompt and returns a lazy, single-consumer sequence of
// raw response events: the parts of the response in order, closed by
// exactly one terminal marker. Cancellation via Abort (or the caller's
// context) terminates the sequence with a done marker, not an error.
func (c *Client) Query(ctx context.Context, prompt string, opts *agent.QueryOptions) <-chan RawEvent {
	out := make(chan RawEvent, 8)
	opts = opts.Clone()

	sessionID := opts.SessionID
	if sessionID == "" {
		sessionID = c.SessionID()
	}
	if !c.isInitialized() || sessionID == "" {
		out <- RawEvent{Type: RawError, Err: "no session bound for query"}
		close(out)
		return out
	}

	qctx, cancel := context.WithCancel(ctx)
	c.mu.Lock()
	c.cancelQuery = cancel
	c.querySession = sessionID
	c.mu.Unlock()

	go func() {
		defer close(out)
		defer func() {
			cancel()
			c.mu.Lock()
			c.cancelQuery = nil
			c.querySession = ""
			c.mu.Unlock()
		}()

		body := buildPromptRequest(prompt, opts)

		var msg messageResponse
		err := c.doJSON(qctx, http.MethodPost, "/session/"+sessionID+"/message", body, &msg)
		if err != nil {
			if errors.Is(err, context.Canceled) || qctx.Err() != nil {
				// Cancellation is an expected early termination
				out <- RawEvent{Type: RawDone}
				return
			}
			out <- RawEvent{Type: RawError, Err: "query failed: " + err.Error()}
			return
		}

		for _, part := range msg.Parts {
			select {
			case out <- RawEvent{Type: RawPart, Part: part}:
			case <-qctx.Done():
				out <- RawEvent{Type: RawDone}
				return
			}
		}
		out <- RawEvent{Type: RawDone}
	}()

	return out
}

// buildPromptRequest assembles the wire body for a prompt submission
func buildPromptRequest(prompt string, opts *agent.QueryOptions) promptRequest {
	req := promptRequest{
		Parts: []promptPart{{Type: partTypeText, Text: prompt}},
	}

	for _, a := range opts.Attachments {
		req.Parts = append(req.Parts, promptPart{
			Type:     partTypeFile,
			MIME:     a.MIME,
			Filename: a.Filename,
			URL:      a.URL,
		})
	}

	if providerID, modelID, ok := agent.SplitModelKey(opts.Model); ok {
		req.Model = &modelSelector{ProviderID: providerID, ModelID: modelID}
	}

	if opts.ReasoningEffort != "" {
		req.Variant = opts.ReasoningEffort
	}

	if len(opts.ToolServers) > 0 {
		req.Tools = make(map[string]bool, len(opts.ToolServers))
		for _, name := range opts.ToolServers {
			req.Tools[name] = true
		}
	}

	return req
}

// Abort cancels the in-flight query locally and notifies the remote side
// best-effort; remote failures are swallowed. A no-op when nothing is in
// flight.
func (c *Client) Abort(ctx context.Context) {
	c.mu.Lock()
	cancel := c.cancelQuery
	sessionID := c.querySession
	c.cancelQuery = nil
	c.querySession = ""
	c.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()

	abortCtx, done := context.WithTimeout(context.WithoutCancel(ctx), remoteAbortTimeout)
	defer done()
	resp, err := c.do(abortCtx, http.MethodPost, "/session/"+sessionID+"/abort", nil)
	if err != nil {
		logger.Slog().Debug("opencode: remote abort failed", "session_id", sessionID, "error", err)
		return
	}
	_ = resp.Body.Close()
}

// Providers returns provider metadata, memoized until ClearCache
func (c *Client) Providers(ctx context.Context) []agent.Provider {
	if err := c.fetchCapabilities(ctx); err != nil {
		logger.Slog().Warn("opencode: provider fetch failed", "error", err)
		return nil
	}

	c.cacheMu.Lock()
	defer c.cacheMu.Unlock()
	return c.providers
}

// Models returns the flattened, UI-ready model list, memoized until
// ClearCache
func (c *Client) Models(ctx context.Context) []agent.Model {
	if err := c.fetchCapabilities(ctx); err != nil {
		logger.Slog().Warn("opencode: model fetch failed", "error", err)
		return nil
	}

	c.cacheMu.Lock()
	defer c.cacheMu.Unlock()
	return c.models
}

// fetchCapabilities populates the provider/model cache on first use
func (c *Client) fetchCapabilities(ctx context.Context) error {
	if !c.isInitialized() {
		return fmt.Errorf("client not initialized")
	}

	c.cacheMu.Lock()
	defer c.cacheMu.Unlock()
	if c.cached {
		return nil
	}

	var resp providersResponse
	if err := c.doJSON(ctx, http.MethodGet, "/config/providers", nil, &resp); err != nil {
		return err
	}

	providers := make([]agent.Provider, 0, len(resp.Providers))
	var models []agent.Model
	for _, p := range resp.Providers {
		providers = append(providers, agent.Provider{ID: p.ID, Name: p.Name})
		for modelID, m := range p.Models {
			models = append(models, m.toModel(p.ID, modelID))
		}
	}
	sort.Slice(models, func(i, j int) bool { return models[i].Key < models[j].Key })

	c.providers = providers
	c.models = models
	c.cached = true
	return nil
}

// ClearCache invalidates memoized provider/model metadata. The next
// Providers/Models call fetches fresh data.
func (c *Client) ClearCache() {
	c.cacheMu.Lock()
	c.cached = false
	c.providers = nil
	c.models = nil
	c.cacheMu.Unlock()
}

// Cleanup aborts any outstanding query and releases the client
func (c *Client) Cleanup() {
	c.Abort(context.Background())

	c.mu.Lock()
	c.initialized = false
	c.sessionID = ""
	c.mu.Unlock()
	c.ClearCache()
}

// do executes one HTTP request against the server
func (c *Client) do(ctx context.Context, method, path string, body any) (*http.Response, error) {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to encode request body: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request %s %s failed: %w", method, path, err)
	}
	return resp, nil
}

// doJSON executes a request and decodes a JSON response into out
func (c *Client) doJSON(ctx context.Context, method, path string, body, out any) error {
	resp, err := c.do(ctx, method, path, body)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("%s %s returned %d: %s", method, path, resp.StatusCode, string(data))
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode %s response: %w", path, err)
	}
	return nil
}

func toSessionInfo(ws wireSession) agent.SessionInfo {
	return agent.SessionInfo{
		ID:        ws.ID,
		Title:     ws.Title,
		Backend:   string(agent.BackendOpenCode),
		CreatedAt: time.UnixMilli(ws.Time.Created),
	}
}
