// Package opencode provides the OpenCode backend adapter.
//
// wire.go - OpenCode REST API wire shapes
//
// This file contains:
// - Request/response types for the OpenCode HTTP API
// - RawEvent, the client's lazy raw output sequence
//
// A prompt submission carries an ordered parts list plus an optional
// {providerID, modelID} selector; a successful response carries
// {info, parts} where parts is the ordered list the normalizer consumes.

package opencode

import "github.com/aotsukiqx/opendian/internal/agent"

// Part type tags in OpenCode messages
const (
	partTypeText      = "text"
	partTypeReasoning = "reasoning"
	partTypeFile      = "file"
)

// promptPart is one element of a prompt submission's parts list
type promptPart struct {
	Type     string `json:"type"`
	Text     string `json:"text,omitempty"`
	MIME     string `json:"mime,omitempty"`
	Filename string `json:"filename,omitempty"`
	URL      string `json:"url,omitempty"`
}

// modelSelector is the compound model reference on the wire
type modelSelector struct {
	ProviderID string `json:"providerID"`
	ModelID    string `json:"modelID"`
}

// promptRequest is the body of POST /session/:id/message
type promptRequest struct {
	Parts   []promptPart    `json:"parts"`
	Model   *modelSelector  `json:"model,omitempty"`
	Variant string          `json:"variant,omitempty"`
	Tools   map[string]bool `json:"tools,omitempty"`
	NoReply bool            `json:"noReply"`
}

// messageInfo is the info envelope on messages
type messageInfo struct {
	ID        string `json:"id"`
	Role      string `json:"role"`
	SessionID string `json:"sessionID"`
	Time      struct {
		Created int64 `json:"created"`
	} `json:"time"`
}

// responsePart is one ordered part of a message response
type responsePart struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// messageResponse is the body of a successful prompt submission
type messageResponse struct {
	Info  messageInfo    `json:"info"`
	Parts []responsePart `json:"parts"`
}

// wireSession is a session object from /session endpoints
type wireSession struct {
	ID    string `json:"id"`
	Title string `json:"title"`
	Time  struct {
		Created int64 `json:"created"`
	} `json:"time"`
}

// wireShare is the body of POST /session/:id/share
type wireShare struct {
	Share struct {
		URL string `json:"url"`
	} `json:"share"`
}

// wireModel is one model entry under a provider's models map
type wireModel struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Attachment  bool   `json:"attachment"`
	Temperature bool   `json:"temperature"`
	ToolCall    bool   `json:"tool_call"`
	Reasoning   *bool  `json:"reasoning"`
	Status      string `json:"status"`

	// Some providers nest the reasoning flag under capabilities
	Capabilities *struct {
		Reasoning bool `json:"reasoning"`
	} `json:"capabilities"`

	Cost struct {
		Input      float64 `json:"input"`
		Output     float64 `json:"output"`
		CacheRead  float64 `json:"cache_read"`
		CacheWrite float64 `json:"cache_write"`
	} `json:"cost"`

	Limit struct {
		Context int `json:"context"`
		Output  int `json:"output"`
	} `json:"limit"`
}

// wireProvider is one provider entry from /config/providers
type wireProvider struct {
	ID     string               `json:"id"`
	Name   string               `json:"name"`
	Models map[string]wireModel `json:"models"`
}

// providersResponse is the body of GET /config/providers
type providersResponse struct {
	Providers []wireProvider    `json:"providers"`
	Default   map[string]string `json:"default"`
}

// RawEventType tags the client's raw output sequence
type RawEventType string

const (
	// RawPart carries one ordered response part
	RawPart RawEventType = "part"
	// RawDone terminates a successful (or cancelled) round trip
	RawDone RawEventType = "done"
	// RawError terminates a failed round trip
	RawError RawEventType = "error"
)

// RawEvent is one element of the client's lazy raw response sequence.
// A single-shot backend emits all parts of one response followed by a
// terminal marker; a token-incremental backend would emit the same event
// type per token. The normalizer handles both identically.
type RawEvent struct {
	Type RawEventType
	Part responsePart
	Err  string
}

// reasoningFlag derives the model's reasoning capability. The nested
// capabilities object wins when present; otherwise the top-level flag is
// used, defaulting to false when absent entirely.
func (m wireModel) reasoningFlag() bool {
	if m.Capabilities != nil {
		return m.Capabilities.Reasoning
	}
	if m.Reasoning != nil {
		return *m.Reasoning
	}
	return false
}

// toModel flattens a wire model into the uniform capability descriptor
func (m wireModel) toModel(providerID, modelID string) agent.Model {
	name := m.Name
	if name == "" {
		name = modelID
	}
	status := agent.ModelStatus(m.Status)
	if status == "" {
		status = agent.ModelStatusStable
	}
	return agent.Model{
		Key:           agent.ModelKey(providerID, modelID),
		ProviderID:    providerID,
		ModelID:       modelID,
		DisplayName:   name,
		ContextTokens: m.Limit.Context,
		OutputTokens:  m.Limit.Output,
		Cost: agent.ModelCost{
			Input:      m.Cost.Input,
			Output:     m.Cost.Output,
			CacheRead:  m.Cost.CacheRead,
			CacheWrite: m.Cost.CacheWrite,
		},
		SupportsReasoning:   m.reasoningFlag(),
		SupportsTemperature: m.Temperature,
		SupportsAttachment:  m.Attachment,
		SupportsToolCall:    m.ToolCall,
		Status:              status,
	}
}
