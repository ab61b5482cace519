package file

import (
	"testing"

	"github.com/open1s/aisbot/internal/providers"
	"github.com/open1s/aisbot/internal/sessions"
	"github.com/open1s/aisbot/internal/store"
)

func newStore(t *testing.T) *FileSessionStore {
	t.Helper()
	return NewFileSessionStore(sessions.NewManager(t.TempDir()))
}

func TestFileSessionStoreAppendAndReload(t *testing.T) {
	dir := t.TempDir()
	s := NewFileSessionStore(sessions.NewManager(dir))
	s.GetOrCreate("cli:u1")
	s.AddMessage("cli:u1", providers.Message{Role: "user", Content: "hello"})
	s.AddMessage("cli:u1", providers.Message{Role: "assistant", Content: "hi"})
	if err := s.Save("cli:u1"); err != nil {
		t.Fatalf("save: %v", err)
	}

	reloaded := NewFileSessionStore(sessions.NewManager(dir))
	history := reloaded.GetHistory("cli:u1")
	if len(history) != 2 || history[0].Content != "hello" || history[1].Content != "hi" {
		t.Fatalf("unexpected reloaded history: %+v", history)
	}
}

func TestFileSessionStoreSatisfiesInterface(t *testing.T) {
	var _ store.SessionStore = newStore(t)
}

func TestFileSessionStoreListPagedRespectsBounds(t *testing.T) {
	s := newStore(t)
	for i := 0; i < 5; i++ {
		s.GetOrCreate("agent:default:cli:direct:" + string(rune('a'+i)))
	}

	page := s.ListPaged(store.SessionListOpts{AgentID: "default", Limit: 2, Offset: 1})
	if page.Total != 5 {
		t.Fatalf("expected total 5, got %d", page.Total)
	}
	if len(page.Sessions) != 2 {
		t.Fatalf("expected 2 sessions on the page, got %d", len(page.Sessions))
	}
}

func TestFileSessionStoreListPagedOffsetBeyondTotal(t *testing.T) {
	s := newStore(t)
	s.GetOrCreate("agent:default:cli:direct:a")

	page := s.ListPaged(store.SessionListOpts{AgentID: "default", Limit: 10, Offset: 100})
	if len(page.Sessions) != 0 {
		t.Fatalf("expected no sessions past total, got %+v", page.Sessions)
	}
	if page.Total != 1 {
		t.Fatalf("expected total 1, got %d", page.Total)
	}
}
