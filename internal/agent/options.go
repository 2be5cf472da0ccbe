// Package agent provides the backend-agnostic agent session layer.
//
// options.go - Per-call query configuration
//
// This file contains:
// - QueryOptions for a single streaming query
// - Message and Attachment used for history and file inputs
//
// QueryOptions is built fresh for every call and never mutated afterwards.
// Missing fields fall back to the adapter's bound state (session id) or the
// configured defaults (model).

package agent

import "time"

// QueryOptions contains immutable per-call configuration for a query
type QueryOptions struct {
	// Model is a compound "<providerID>:<modelID>" key. Empty selects the
	// adapter's configured default model.
	Model string

	// SessionID targets a specific session. Empty falls back to the
	// adapter's bound current session.
	SessionID string

	// ToolServers lists the enabled auxiliary tool servers for this call.
	ToolServers []string

	// ReasoningEffort requests a reasoning variant (low, medium, high).
	// Ignored when the selected model does not support reasoning.
	ReasoningEffort string

	// History optionally supplies prior conversation turns for backends
	// that do not persist history server-side.
	History []Message

	// Attachments are image/file inputs sent alongside the prompt.
	Attachments []Attachment
}

// Clone returns a copy so defaulting never mutates the caller's value
func (o *QueryOptions) Clone() *QueryOptions {
	if o == nil {
		return &QueryOptions{}
	}
	c := *o
	c.ToolServers = append([]string(nil), o.ToolServers...)
	c.History = append([]Message(nil), o.History...)
	c.Attachments = append([]Attachment(nil), o.Attachments...)
	return &c
}

// Message is one turn of conversation history
type Message struct {
	ID        string    `json:"id"`
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"createdAt"`
}

// Attachment is a file input referenced by a prompt part
type Attachment struct {
	MIME     string `json:"mime"`
	Filename string `json:"filename"`
	URL      string `json:"url"`
}

// SessionInfo describes one backend session
type SessionInfo struct {
	ID        string    `json:"id"`
	Title     string    `json:"title,omitempty"`
	Backend   string    `json:"backend,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}
