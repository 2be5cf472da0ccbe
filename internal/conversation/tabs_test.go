package conversation

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/aotsukiqx/opendian/internal/agent"
	"github.com/aotsukiqx/opendian/internal/store"
)

// memBindings is an in-memory BindingStore
type memBindings struct {
	mu   sync.Mutex
	rows map[string]store.Binding
}

func newMemBindings() *memBindings {
	return &memBindings{rows: make(map[string]store.Binding)}
}

func (m *memBindings) SaveBinding(b store.Binding) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rows[b.TabID] = b
	return nil
}

func (m *memBindings) DeleteBinding(tabID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.rows[tabID]; !ok {
		return store.ErrBindingNotFound
	}
	delete(m.rows, tabID)
	return nil
}

func (m *memBindings) ListBindings() ([]store.Binding, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]store.Binding, 0, len(m.rows))
	for _, b := range m.rows {
		out = append(out, b)
	}
	return out, nil
}

func (m *memBindings) get(tabID string) (store.Binding, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.rows[tabID]
	return b, ok
}

// registerBackend installs a factory under a test-unique backend name
func registerBackend(name agent.BackendType, build func() *fakeSession) {
	agent.Register(name, func(cfg agent.BackendConfig) agent.Session {
		return build()
	})
}

func TestManagerOpenTabAndSend(t *testing.T) {
	backend := agent.BackendType("fake-open-send")
	registerBackend(backend, func() *fakeSession {
		return &fakeSession{
			initOK: true,
			chunks: []agent.StreamChunk{
				{Type: agent.ChunkSession, SessionID: "ses_tab"},
				agent.TextChunk("reply"),
				agent.DoneChunk(),
			},
		}
	})

	bindings := newMemBindings()
	m := NewManager(backend, agent.BackendConfig{}, bindings, nil)
	defer m.Close()

	ctrl, err := m.OpenTab(context.Background(), "refactor")
	if err != nil {
		t.Fatalf("OpenTab() error = %v", err)
	}

	stream, err := m.Send(context.Background(), ctrl.TabID(), "hi", nil)
	if err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	drain(t, stream)

	// The announced session was persisted against the tab
	b, ok := bindings.get(ctrl.TabID())
	if !ok {
		t.Fatal("binding was not persisted")
	}
	if b.SessionID != "ses_tab" || b.Backend != string(backend) || b.Title != "refactor" {
		t.Errorf("binding = %+v", b)
	}

	tabs := m.Tabs()
	if len(tabs) != 1 || tabs[0].SessionID != "ses_tab" {
		t.Errorf("Tabs() = %+v, want one tab bound to ses_tab", tabs)
	}
}

func TestManagerTabsAreIsolated(t *testing.T) {
	backend := agent.BackendType("fake-isolated")
	var built []*fakeSession
	var builtMu sync.Mutex
	registerBackend(backend, func() *fakeSession {
		f := &fakeSession{
			initOK: true,
			chunks: []agent.StreamChunk{agent.DoneChunk()},
		}
		builtMu.Lock()
		built = append(built, f)
		builtMu.Unlock()
		return f
	})

	m := NewManager(backend, agent.BackendConfig{}, nil, nil)
	defer m.Close()

	a, err := m.OpenTab(context.Background(), "a")
	if err != nil {
		t.Fatal(err)
	}
	b, err := m.OpenTab(context.Background(), "b")
	if err != nil {
		t.Fatal(err)
	}

	// Each tab gets its own adapter instance
	if len(built) != 2 {
		t.Fatalf("built %d adapters, want 2", len(built))
	}

	a.AttachSession("ses_a")
	b.AttachSession("ses_b")
	if built[0].SessionID() == built[1].SessionID() {
		t.Error("tabs share adapter state")
	}
}

func TestManagerSend_RateLimited(t *testing.T) {
	backend := agent.BackendType("fake-ratelimit")
	registerBackend(backend, func() *fakeSession {
		return &fakeSession{
			initOK: true,
			chunks: []agent.StreamChunk{agent.DoneChunk()},
		}
	})

	// Zero refill, burst of 1: the second send must be rejected
	m := NewManager(backend, agent.BackendConfig{}, nil, NewRateLimiter(0, 1))
	defer m.Close()

	ctrl, err := m.OpenTab(context.Background(), "")
	if err != nil {
		t.Fatal(err)
	}

	stream, err := m.Send(context.Background(), ctrl.TabID(), "one", nil)
	if err != nil {
		t.Fatalf("first Send() error = %v", err)
	}
	drain(t, stream)

	if _, err := m.Send(context.Background(), ctrl.TabID(), "two", nil); !errors.Is(err, ErrRateLimited) {
		t.Errorf("second Send() error = %v, want ErrRateLimited", err)
	}
}

func TestManagerCloseTab(t *testing.T) {
	backend := agent.BackendType("fake-close")
	var last *fakeSession
	registerBackend(backend, func() *fakeSession {
		last = &fakeSession{initOK: true}
		return last
	})

	bindings := newMemBindings()
	m := NewManager(backend, agent.BackendConfig{}, bindings, nil)
	defer m.Close()

	ctrl, err := m.OpenTab(context.Background(), "")
	if err != nil {
		t.Fatal(err)
	}
	_ = bindings.SaveBinding(store.Binding{TabID: ctrl.TabID(), SessionID: "ses_1", Backend: string(backend)})

	if err := m.CloseTab(ctrl.TabID()); err != nil {
		t.Fatalf("CloseTab() error = %v", err)
	}
	if !last.cleaned {
		t.Error("closing a tab must release its adapter")
	}
	if _, ok := bindings.get(ctrl.TabID()); ok {
		t.Error("closing a tab must remove its persisted binding")
	}
	if _, err := m.Tab(ctrl.TabID()); !errors.Is(err, ErrTabNotFound) {
		t.Errorf("Tab() after close = %v, want ErrTabNotFound", err)
	}
	if err := m.CloseTab(ctrl.TabID()); !errors.Is(err, ErrTabNotFound) {
		t.Errorf("double CloseTab() = %v, want ErrTabNotFound", err)
	}
}

func TestManagerResume(t *testing.T) {
	backend := agent.BackendType("fake-resume")
	registerBackend(backend, func() *fakeSession {
		return &fakeSession{initOK: true}
	})

	bindings := newMemBindings()
	_ = bindings.SaveBinding(store.Binding{TabID: "tab_a", SessionID: "ses_a", Backend: string(backend), Title: "kept"})
	_ = bindings.SaveBinding(store.Binding{TabID: "tab_b", SessionID: "ses_b", Backend: "other-backend"})

	m := NewManager(backend, agent.BackendConfig{}, bindings, nil)
	defer m.Close()

	if err := m.Resume(context.Background()); err != nil {
		t.Fatalf("Resume() error = %v", err)
	}

	tabs := m.Tabs()
	if len(tabs) != 1 {
		t.Fatalf("resumed %d tabs, want 1 (other backends skipped): %+v", len(tabs), tabs)
	}
	if tabs[0].ID != "tab_a" || tabs[0].SessionID != "ses_a" || tabs[0].Title != "kept" {
		t.Errorf("resumed tab = %+v", tabs[0])
	}
}

func TestManagerOpenTab_BackendNotReady(t *testing.T) {
	backend := agent.BackendType("fake-notready")
	registerBackend(backend, func() *fakeSession {
		return &fakeSession{initOK: false}
	})

	m := NewManager(backend, agent.BackendConfig{}, nil, nil)
	defer m.Close()

	if _, err := m.OpenTab(context.Background(), ""); !errors.Is(err, ErrBackendNotReady) {
		t.Errorf("OpenTab() error = %v, want ErrBackendNotReady", err)
	}
}

func TestManagerClosed(t *testing.T) {
	backend := agent.BackendType("fake-closed")
	registerBackend(backend, func() *fakeSession {
		return &fakeSession{initOK: true}
	})

	m := NewManager(backend, agent.BackendConfig{}, nil, nil)
	m.Close()

	if _, err := m.OpenTab(context.Background(), ""); !errors.Is(err, ErrManagerClosed) {
		t.Errorf("OpenTab() after Close() = %v, want ErrManagerClosed", err)
	}
}
