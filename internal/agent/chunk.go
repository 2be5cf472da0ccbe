// Package agent provides the backend-agnostic agent session layer.
//
// chunk.go - Normalized stream chunk types
//
// This file contains:
// - ChunkType and StreamChunk for normalized response streaming
//
// StreamChunk is the common format every backend adapter must convert its
// native response shape into. Exactly one terminal chunk (done or error)
// closes any streaming query; chunks before it preserve the relative order
// in which the backend produced them.

package agent

// ChunkType represents the type of a stream chunk
type ChunkType string

const (
	ChunkText       ChunkType = "text"
	ChunkThinking   ChunkType = "thinking"
	ChunkToolUse    ChunkType = "tool_use"
	ChunkToolResult ChunkType = "tool_result"
	ChunkUsage      ChunkType = "usage"
	ChunkSession    ChunkType = "session"
	ChunkDone       ChunkType = "done"
	ChunkError      ChunkType = "error"
)

// StreamChunk represents a single unit of a normalized response stream
type StreamChunk struct {
	Type    ChunkType `json:"type"`
	Content string    `json:"content,omitempty"`

	// Session identity announcement
	SessionID string `json:"sessionId,omitempty"`

	// Tool invocation fields
	ToolID    string         `json:"toolId,omitempty"`
	ToolName  string         `json:"toolName,omitempty"`
	ToolInput map[string]any `json:"toolInput,omitempty"`
	IsError   bool           `json:"isError,omitempty"`

	// Usage snapshot
	Usage *Usage `json:"usage,omitempty"`
}

// Usage is a token/cost telemetry snapshot attached to usage chunks
type Usage struct {
	InputTokens  int     `json:"inputTokens"`
	OutputTokens int     `json:"outputTokens"`
	CostUSD      float64 `json:"costUsd,omitempty"`
}

// Terminal reports whether the chunk ends the stream
func (c StreamChunk) Terminal() bool {
	return c.Type == ChunkDone || c.Type == ChunkError
}

// TextChunk builds a text delta chunk
func TextChunk(text string) StreamChunk {
	return StreamChunk{Type: ChunkText, Content: text}
}

// ThinkingChunk builds a reasoning delta chunk
func ThinkingChunk(text string) StreamChunk {
	return StreamChunk{Type: ChunkThinking, Content: text}
}

// DoneChunk builds the terminal success marker
func DoneChunk() StreamChunk {
	return StreamChunk{Type: ChunkDone}
}

// ErrorChunk builds the terminal error marker with a human-readable message
func ErrorChunk(message string) StreamChunk {
	return StreamChunk{Type: ChunkError, Content: message}
}
