// Package conversation provides per-tab conversation controllers on top of
// the agent session layer.
//
// controller.go - Single-tab conversation controller
//
// This file contains:
// - Controller, which owns one tab's adapter, history, and turn discipline
//
// A controller enforces one query in flight per tab. History is append-only:
// the user turn is recorded when the send is accepted, the assistant turn
// when the stream ends with a done chunk. An aborted turn keeps whatever
// text arrived before cancellation; a failed turn records no reply.

package conversation

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/aotsukiqx/opendian/internal/agent"
)

// Controller drives one conversation tab against its own adapter instance
type Controller struct {
	tabID   string
	title   string
	session agent.Session

	mu        sync.Mutex
	history   []agent.Message
	sessionID string
	inFlight  bool

	// onSession is invoked (outside the lock) when the backend announces
	// a newly created session for this tab
	onSession func(tabID, sessionID string)
}

// NewController wraps an initialized adapter as a tab controller
func NewController(tabID, title string, session agent.Session) *Controller {
	return &Controller{
		tabID:   tabID,
		title:   title,
		session: session,
	}
}

// TabID returns the controller's tab id
func (c *Controller) TabID() string {
	return c.tabID
}

// Title returns the tab's display title
func (c *Controller) Title() string {
	return c.title
}

// SessionID returns the backend session bound to this tab, or ""
func (c *Controller) SessionID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sessionID
}

// Busy reports whether a query is currently in flight
func (c *Controller) Busy() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.inFlight
}

// AttachSession binds an existing backend session to this tab, for
// resuming a persisted tab after restart
func (c *Controller) AttachSession(sessionID string) {
	c.session.SetSessionID(sessionID)

	c.mu.Lock()
	c.sessionID = sessionID
	c.mu.Unlock()
}

// Send submits a prompt on this tab and returns the normalized chunk
// stream. Returns ErrBusy while a previous send is still streaming; the
// rejected send leaves history and session state untouched.
func (c *Controller) Send(ctx context.Context, prompt string, opts *agent.QueryOptions) (<-chan agent.StreamChunk, error) {
	c.mu.Lock()
	if c.inFlight {
		c.mu.Unlock()
		return nil, ErrBusy
	}
	c.inFlight = true
	c.history = append(c.history, agent.Message{
		ID:        uuid.NewString(),
		Role:      "user",
		Content:   prompt,
		CreatedAt: time.Now(),
	})
	c.mu.Unlock()

	inner := c.session.Query(ctx, prompt, opts)
	out := make(chan agent.StreamChunk, 8)
	go c.relay(inner, out)
	return out, nil
}

// relay forwards chunks to the tab's consumer while folding them into the
// controller's state
func (c *Controller) relay(inner <-chan agent.StreamChunk, out chan<- agent.StreamChunk) {
	defer close(out)

	var reply strings.Builder
	completed := false
	for chunk := range inner {
		switch chunk.Type {
		case agent.ChunkSession:
			c.recordSession(chunk.SessionID)
		case agent.ChunkText:
			reply.WriteString(chunk.Content)
		case agent.ChunkDone:
			completed = true
		}
		out <- chunk
	}
	c.finishTurn(reply.String(), completed)
}

func (c *Controller) recordSession(sessionID string) {
	if sessionID == "" {
		return
	}
	c.mu.Lock()
	c.sessionID = sessionID
	notify := c.onSession
	c.mu.Unlock()

	if notify != nil {
		notify(c.tabID, sessionID)
	}
}

func (c *Controller) finishTurn(reply string, completed bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.inFlight = false
	if completed && reply != "" {
		c.history = append(c.history, agent.Message{
			ID:        uuid.NewString(),
			Role:      "assistant",
			Content:   reply,
			CreatedAt: time.Now(),
		})
	}
}

// History returns a copy of the tab's recorded turns
func (c *Controller) History() []agent.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]agent.Message(nil), c.history...)
}

// Abort cancels the tab's in-flight query. A no-op when the tab is idle.
func (c *Controller) Abort(ctx context.Context) {
	c.session.Abort(ctx)
}

// NewSession starts a fresh conversation on this tab: the bound session id
// and local history are cleared, the remote session is left intact, and
// the next send lazily creates a new backend session. Rejected while a
// query is in flight.
func (c *Controller) NewSession() error {
	c.mu.Lock()
	if c.inFlight {
		c.mu.Unlock()
		return ErrBusy
	}
	c.sessionID = ""
	c.history = nil
	c.mu.Unlock()

	c.session.ResetSession()
	return nil
}

// Messages returns the backend's persisted messages for the tab's session,
// or nil when no session is bound yet
func (c *Controller) Messages(ctx context.Context) []agent.Message {
	sessionID := c.SessionID()
	if sessionID == "" {
		return nil
	}
	return c.session.Messages(ctx, sessionID)
}

// Close aborts outstanding work and releases the tab's adapter
func (c *Controller) Close() {
	c.session.Cleanup()
}
