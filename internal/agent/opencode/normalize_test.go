package opencode

import (
	"testing"

	"github.com/aotsukiqx/opendian/internal/agent"
)

// feed builds a closed raw event channel from the given events
func feed(events ...RawEvent) <-chan RawEvent {
	ch := make(chan RawEvent, len(events))
	for _, ev := range events {
		ch <- ev
	}
	close(ch)
	return ch
}

func collect(t *testing.T, chunks <-chan agent.StreamChunk) []agent.StreamChunk {
	t.Helper()
	var out []agent.StreamChunk
	for c := range chunks {
		out = append(out, c)
	}
	return out
}

func partEvent(partType, text string) RawEvent {
	return RawEvent{Type: RawPart, Part: responsePart{Type: partType, Text: text}}
}

func TestNormalize_ReasoningAndText(t *testing.T) {
	chunks := collect(t, Normalize(feed(
		partEvent("reasoning", "t1"),
		partEvent("text", "answer"),
		RawEvent{Type: RawDone},
	)))

	want := []agent.StreamChunk{
		{Type: agent.ChunkThinking, Content: "t1"},
		{Type: agent.ChunkText, Content: "answer"},
		{Type: agent.ChunkDone},
	}
	if len(chunks) != len(want) {
		t.Fatalf("got %d chunks, want %d: %+v", len(chunks), len(want), chunks)
	}
	for i := range want {
		if chunks[i].Type != want[i].Type || chunks[i].Content != want[i].Content {
			t.Errorf("chunk[%d] = {%s %q}, want {%s %q}",
				i, chunks[i].Type, chunks[i].Content, want[i].Type, want[i].Content)
		}
	}
}

func TestNormalize_EmptyParts(t *testing.T) {
	chunks := collect(t, Normalize(feed(RawEvent{Type: RawDone})))

	if len(chunks) != 1 {
		t.Fatalf("got %d chunks, want exactly 1: %+v", len(chunks), chunks)
	}
	if chunks[0].Type != agent.ChunkDone {
		t.Errorf("chunk type = %q, want done", chunks[0].Type)
	}
}

func TestNormalize_UnknownPartsIgnored(t *testing.T) {
	chunks := collect(t, Normalize(feed(
		partEvent("step-start", ""),
		partEvent("text", "hello"),
		partEvent("tool-invocation", "ignored"),
		partEvent("snapshot", "also ignored"),
		RawEvent{Type: RawDone},
	)))

	if len(chunks) != 2 {
		t.Fatalf("got %d chunks, want 2: %+v", len(chunks), chunks)
	}
	if chunks[0].Type != agent.ChunkText || chunks[0].Content != "hello" {
		t.Errorf("chunk[0] = {%s %q}, want text 'hello'", chunks[0].Type, chunks[0].Content)
	}
	if chunks[1].Type != agent.ChunkDone {
		t.Errorf("chunk[1] type = %q, want done", chunks[1].Type)
	}
}

func TestNormalize_EmptyTextSkipped(t *testing.T) {
	chunks := collect(t, Normalize(feed(
		partEvent("text", ""),
		partEvent("reasoning", ""),
		RawEvent{Type: RawDone},
	)))

	if len(chunks) != 1 || chunks[0].Type != agent.ChunkDone {
		t.Errorf("empty parts should yield only the done chunk, got %+v", chunks)
	}
}

func TestNormalize_ErrorTerminatesStream(t *testing.T) {
	chunks := collect(t, Normalize(feed(
		partEvent("text", "partial"),
		RawEvent{Type: RawError, Err: "connection reset"},
		// Events after the terminal marker must be suppressed
		partEvent("text", "late"),
		RawEvent{Type: RawDone},
	)))

	if len(chunks) != 2 {
		t.Fatalf("got %d chunks, want 2: %+v", len(chunks), chunks)
	}
	if chunks[1].Type != agent.ChunkError || chunks[1].Content != "connection reset" {
		t.Errorf("terminal chunk = {%s %q}, want error 'connection reset'",
			chunks[1].Type, chunks[1].Content)
	}
}

func TestNormalize_ProducerCloseWithoutTerminal(t *testing.T) {
	chunks := collect(t, Normalize(feed(partEvent("text", "hi"))))

	if len(chunks) != 2 {
		t.Fatalf("got %d chunks, want 2: %+v", len(chunks), chunks)
	}
	if chunks[1].Type != agent.ChunkDone {
		t.Errorf("stream must end with a done chunk even when the producer closes early, got %q", chunks[1].Type)
	}
}

func TestNormalize_OrderPreserved(t *testing.T) {
	chunks := collect(t, Normalize(feed(
		partEvent("reasoning", "r1"),
		partEvent("text", "a"),
		partEvent("reasoning", "r2"),
		partEvent("text", "b"),
		RawEvent{Type: RawDone},
	)))

	wantContent := []string{"r1", "a", "r2", "b"}
	if len(chunks) != len(wantContent)+1 {
		t.Fatalf("got %d chunks, want %d", len(chunks), len(wantContent)+1)
	}
	for i, want := range wantContent {
		if chunks[i].Content != want {
			t.Errorf("chunk[%d].Content = %q, want %q (relative order must match input)",
				i, chunks[i].Content, want)
		}
	}

	terminals := 0
	for _, c := range chunks {
		if c.Terminal() {
			terminals++
		}
	}
	if terminals != 1 {
		t.Errorf("stream carried %d terminal chunks, want exactly 1", terminals)
	}
}
