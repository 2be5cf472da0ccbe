package opencode

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/aotsukiqx/opendian/internal/agent"
)

func newHealthyServer(t *testing.T, mux *http.ServeMux) *httptest.Server {
	t.Helper()
	mux.HandleFunc("GET /global/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func initializedClient(t *testing.T, mux *http.ServeMux) *Client {
	t.Helper()
	srv := newHealthyServer(t, mux)
	c := NewClient(srv.URL)
	if !c.Initialize(context.Background()) {
		t.Fatal("Initialize() failed against healthy server")
	}
	return c
}

func TestClientInitialize_ServerDown(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	srv.Close()

	c := NewClient(srv.URL)
	if c.Initialize(context.Background()) {
		t.Error("Initialize() should fail when the server is unreachable")
	}

	// All subsequent calls behave as "not ready" rather than failing
	if c.HealthCheck(context.Background()) {
		t.Error("HealthCheck() should be false when uninitialized")
	}
	if id := c.CreateSession(context.Background(), ""); id != "" {
		t.Errorf("CreateSession() = %q, want ''", id)
	}
	if sessions := c.ListSessions(context.Background()); sessions != nil {
		t.Errorf("ListSessions() = %v, want nil", sessions)
	}
	if msgs := c.GetMessages(context.Background(), "ses_1"); msgs != nil {
		t.Errorf("GetMessages() = %v, want nil", msgs)
	}
}

func TestClientCreateSession_BindsCurrent(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /session", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"id": "ses_abc", "title": "test"})
	})
	c := initializedClient(t, mux)

	id := c.CreateSession(context.Background(), "test")
	if id != "ses_abc" {
		t.Fatalf("CreateSession() = %q, want ses_abc", id)
	}
	if c.SessionID() != "ses_abc" {
		t.Errorf("SessionID() = %q, want the created session bound", c.SessionID())
	}
}

func TestClientCreateSession_ServerError(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /session", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	})
	c := initializedClient(t, mux)

	if id := c.CreateSession(context.Background(), ""); id != "" {
		t.Errorf("CreateSession() = %q, want '' on server error", id)
	}
	if c.SessionID() != "" {
		t.Error("a failed creation must not bind a session")
	}
}

func TestClientDeleteSession_UnbindsCurrent(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("DELETE /session/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	c := initializedClient(t, mux)
	c.SetSessionID("ses_1")

	if !c.DeleteSession(context.Background(), "ses_1") {
		t.Fatal("DeleteSession() should succeed")
	}
	if c.SessionID() != "" {
		t.Error("deleting the bound session must unbind it")
	}
}

func TestClientQuery_EmitsPartsInOrder(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /session/{id}/message", func(w http.ResponseWriter, r *http.Request) {
		var req promptRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if len(req.Parts) == 0 || req.Parts[0].Type != "text" || req.Parts[0].Text != "hello" {
			http.Error(w, "bad parts", http.StatusBadRequest)
			return
		}
		if req.Model == nil || req.Model.ProviderID != "anthropic" || req.Model.ModelID != "claude-sonnet-4-5" {
			http.Error(w, "bad model", http.StatusBadRequest)
			return
		}
		_ = json.NewEncoder(w).Encode(messageResponse{
			Parts: []responsePart{
				{Type: "step-start"},
				{Type: "reasoning", Text: "thinking hard"},
				{Type: "text", Text: "the answer"},
			},
		})
	})
	c := initializedClient(t, mux)
	c.SetSessionID("ses_1")

	var events []RawEvent
	for ev := range c.Query(context.Background(), "hello", &agent.QueryOptions{
		Model: "anthropic:claude-sonnet-4-5",
	}) {
		events = append(events, ev)
	}

	if len(events) != 4 {
		t.Fatalf("got %d events, want 4 (3 parts + done): %+v", len(events), events)
	}
	if events[1].Part.Type != "reasoning" || events[1].Part.Text != "thinking hard" {
		t.Errorf("events[1] = %+v, want the reasoning part", events[1])
	}
	if events[2].Part.Type != "text" || events[2].Part.Text != "the answer" {
		t.Errorf("events[2] = %+v, want the text part", events[2])
	}
	if events[3].Type != RawDone {
		t.Errorf("events[3].Type = %q, want done", events[3].Type)
	}
}

func TestClientQuery_NoSession(t *testing.T) {
	c := initializedClient(t, http.NewServeMux())

	var events []RawEvent
	for ev := range c.Query(context.Background(), "hello", nil) {
		events = append(events, ev)
	}

	if len(events) != 1 || events[0].Type != RawError {
		t.Errorf("events = %+v, want a single error event", events)
	}
}

func TestClientAbort_MidStream(t *testing.T) {
	inHandler := make(chan struct{})
	var abortCalls atomic.Int32

	mux := http.NewServeMux()
	mux.HandleFunc("POST /session/{id}/message", func(w http.ResponseWriter, r *http.Request) {
		// Drain the body: the server only detects the client's cancellation
		// once no unread request bytes are pending
		_, _ = io.Copy(io.Discard, r.Body)
		close(inHandler)
		// Block until the client cancels the request
		<-r.Context().Done()
	})
	mux.HandleFunc("POST /session/{id}/abort", func(w http.ResponseWriter, r *http.Request) {
		abortCalls.Add(1)
		// Remote abort failures are swallowed by the client
		http.Error(w, "abort failed", http.StatusInternalServerError)
	})
	c := initializedClient(t, mux)
	c.SetSessionID("ses_1")

	stream := c.Query(context.Background(), "hello", nil)
	<-inHandler
	c.Abort(context.Background())

	var events []RawEvent
	for ev := range stream {
		events = append(events, ev)
	}

	if len(events) != 1 || events[0].Type != RawDone {
		t.Errorf("aborted stream = %+v, want a single done event (cancellation is not an error)", events)
	}
	if abortCalls.Load() != 1 {
		t.Errorf("remote abort calls = %d, want 1", abortCalls.Load())
	}
}

func TestClientAbort_IdleIsNoOp(t *testing.T) {
	var abortCalls atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("POST /session/{id}/abort", func(w http.ResponseWriter, r *http.Request) {
		abortCalls.Add(1)
	})
	c := initializedClient(t, mux)
	c.SetSessionID("ses_1")

	c.Abort(context.Background())
	c.Abort(context.Background())

	if abortCalls.Load() != 0 {
		t.Errorf("idle Abort() made %d remote calls, want 0", abortCalls.Load())
	}
}

func TestClientModels_MemoizedUntilClearCache(t *testing.T) {
	var fetches atomic.Int32
	reasoning := true

	mux := http.NewServeMux()
	mux.HandleFunc("GET /config/providers", func(w http.ResponseWriter, r *http.Request) {
		fetches.Add(1)
		_ = json.NewEncoder(w).Encode(providersResponse{
			Providers: []wireProvider{{
				ID:   "anthropic",
				Name: "Anthropic",
				Models: map[string]wireModel{
					"claude-sonnet-4-5": {
						Name:      "Claude Sonnet 4.5",
						Reasoning: &reasoning,
					},
				},
			}},
		})
	})
	c := initializedClient(t, mux)

	first := c.Models(context.Background())
	second := c.Models(context.Background())

	if fetches.Load() != 1 {
		t.Errorf("fetches after two Models() calls = %d, want 1 (memoized)", fetches.Load())
	}
	if len(first) != 1 || len(second) != 1 {
		t.Fatalf("Models() = %v / %v, want one model each", first, second)
	}
	if first[0].Key != second[0].Key {
		t.Error("cached Models() content differs between calls")
	}

	c.ClearCache()
	_ = c.Models(context.Background())
	if fetches.Load() != 2 {
		t.Errorf("fetches after ClearCache() = %d, want 2 (fresh fetch)", fetches.Load())
	}
}

func TestClientModels_ReasoningFlagDerivation(t *testing.T) {
	reasoningTrue := true
	tests := []struct {
		name  string
		model wireModel
		want  bool
	}{
		{"top-level flag", wireModel{Reasoning: &reasoningTrue}, true},
		{"absent defaults to false", wireModel{}, false},
		{
			"nested capabilities win",
			wireModel{Capabilities: &struct {
				Reasoning bool `json:"reasoning"`
			}{Reasoning: true}},
			true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.model.reasoningFlag(); got != tt.want {
				t.Errorf("reasoningFlag() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestClientModels_Flattening(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /config/providers", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(providersResponse{
			Providers: []wireProvider{
				{ID: "anthropic", Name: "Anthropic", Models: map[string]wireModel{
					"claude-sonnet-4-5": {Name: "Claude Sonnet 4.5", Attachment: true, ToolCall: true},
				}},
				{ID: "openai", Name: "OpenAI", Models: map[string]wireModel{
					"gpt-5.1": {Name: "GPT-5.1", Status: "beta"},
				}},
			},
		})
	})
	c := initializedClient(t, mux)

	models := c.Models(context.Background())
	if len(models) != 2 {
		t.Fatalf("got %d models, want 2", len(models))
	}

	m, ok := agent.FindModel(models, "anthropic:claude-sonnet-4-5")
	if !ok {
		t.Fatal("flattened list missing anthropic:claude-sonnet-4-5")
	}
	if !m.SupportsAttachment || !m.SupportsToolCall {
		t.Error("capability flags lost in flattening")
	}
	if m.Status != agent.ModelStatusStable {
		t.Errorf("missing status should default to stable, got %q", m.Status)
	}

	g, _ := agent.FindModel(models, "openai:gpt-5.1")
	if g.Status != agent.ModelStatusBeta {
		t.Errorf("Status = %q, want beta", g.Status)
	}

	providers := c.Providers(context.Background())
	if len(providers) != 2 {
		t.Errorf("got %d providers, want 2", len(providers))
	}
}

func TestClientGetMessages(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /session/{id}/message", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode([]messageResponse{
			{
				Info: messageInfo{ID: "msg_1", Role: "user"},
				Parts: []responsePart{
					{Type: "text", Text: "hello"},
				},
			},
			{
				Info: messageInfo{ID: "msg_2", Role: "assistant"},
				Parts: []responsePart{
					{Type: "reasoning", Text: "skip me"},
					{Type: "text", Text: "hi"},
					{Type: "text", Text: "there"},
				},
			},
		})
	})
	c := initializedClient(t, mux)

	msgs := c.GetMessages(context.Background(), "ses_1")
	if len(msgs) != 2 {
		t.Fatalf("got %d messages, want 2", len(msgs))
	}
	if msgs[0].Role != "user" || msgs[0].Content != "hello" {
		t.Errorf("msgs[0] = %+v", msgs[0])
	}
	if msgs[1].Content != "hi\nthere" {
		t.Errorf("msgs[1].Content = %q, want text parts joined", msgs[1].Content)
	}
}

func TestClientShareSession(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /session/{id}/share", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"share": map[string]string{"url": "https://opncd.ai/s/ses_1"},
		})
	})
	c := initializedClient(t, mux)

	if url := c.ShareSession(context.Background(), "ses_1"); url != "https://opncd.ai/s/ses_1" {
		t.Errorf("ShareSession() = %q", url)
	}
}

func TestClientGetSession(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /session/{id}", func(w http.ResponseWriter, r *http.Request) {
		if r.PathValue("id") != "ses_1" {
			http.NotFound(w, r)
			return
		}
		_ = json.NewEncoder(w).Encode(wireSession{ID: "ses_1", Title: "refactor"})
	})
	c := initializedClient(t, mux)

	info := c.GetSession(context.Background(), "ses_1")
	if info == nil || info.Title != "refactor" {
		t.Errorf("GetSession() = %+v, want title 'refactor'", info)
	}
	if missing := c.GetSession(context.Background(), "ses_2"); missing != nil {
		t.Errorf("GetSession() for missing id = %+v, want nil", missing)
	}
}

func TestClientCleanup(t *testing.T) {
	c := initializedClient(t, http.NewServeMux())
	c.SetSessionID("ses_1")

	c.Cleanup()

	if c.SessionID() != "" {
		t.Error("Cleanup() must unbind the session")
	}
	if c.HealthCheck(context.Background()) {
		t.Error("client must be not-ready after Cleanup()")
	}

	// Query after cleanup degrades to a single error event
	var events []RawEvent
	deadline := time.After(time.Second)
	stream := c.Query(context.Background(), "hello", nil)
	for {
		select {
		case ev, ok := <-stream:
			if !ok {
				if len(events) != 1 || events[0].Type != RawError {
					t.Errorf("events = %+v, want single error", events)
				}
				return
			}
			events = append(events, ev)
		case <-deadline:
			t.Fatal("stream did not close")
		}
	}
}
