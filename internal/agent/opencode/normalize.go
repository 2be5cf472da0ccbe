// Package opencode provides the OpenCode backend adapter.
//
// normalize.go - Raw response normalization
//
// This file contains:
// - Normalize, converting the client's raw event sequence into uniform
//   stream chunks
//
// Reasoning parts become thinking chunks, text parts become text chunks,
// all other part tags are ignored so unknown parts never break the stream.
// Every stream ends with exactly one terminal chunk: done on success (even
// when zero content chunks were produced) or a single error chunk carrying
// the failure message, after which nothing else is emitted.

package opencode

import "github.com/aotsukiqx/opendian/internal/agent"

// Normalize converts raw backend events into normalized stream chunks.
// The returned channel preserves the relative order of the input events
// and is closed after its single terminal chunk.
func Normalize(events <-chan RawEvent) <-chan agent.StreamChunk {
	out := make(chan agent.StreamChunk, 8)

	go func() {
		defer close(out)

		for ev := range events {
			switch ev.Type {
			case RawPart:
				if chunk, ok := normalizePart(ev.Part); ok {
					out <- chunk
				}
			case RawDone:
				out <- agent.DoneChunk()
				return
			case RawError:
				out <- agent.ErrorChunk(ev.Err)
				return
			}
		}

		// Producer closed without a terminal marker; the stream still
		// gets its one done chunk.
		out <- agent.DoneChunk()
	}()

	return out
}

// normalizePart maps one response part onto the chunk union. Unrecognized
// part tags and empty text produce no chunk.
func normalizePart(part responsePart) (agent.StreamChunk, bool) {
	switch part.Type {
	case partTypeReasoning:
		if part.Text == "" {
			return agent.StreamChunk{}, false
		}
		return agent.ThinkingChunk(part.Text), true
	case partTypeText:
		if part.Text == "" {
			return agent.StreamChunk{}, false
		}
		return agent.TextChunk(part.Text), true
	default:
		return agent.StreamChunk{}, false
	}
}
