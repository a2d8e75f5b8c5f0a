package store

import (
	"encoding/json"
	"path/filepath"
	"testing"

	"boardroom/internal/config"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	dir := t.TempDir()
	s, err := New(config.StoreConfig{Path: filepath.Join(dir, "test.db")})
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestConversationLifecycle(t *testing.T) {
	s := newTestStore(t)

	if err := s.EnsureConversation("conv-1", "web"); err != nil {
		t.Fatalf("ensure conversation: %v", err)
	}
	// Idempotent
	if err := s.EnsureConversation("conv-1", "web"); err != nil {
		t.Fatalf("ensure conversation again: %v", err)
	}

	c, err := s.GetConversation("conv-1")
	if err != nil {
		t.Fatalf("get conversation: %v", err)
	}
	if c == nil {
		t.Fatal("expected conversation, got nil")
	}
	if c.Surface != "web" {
		t.Errorf("expected surface 'web', got %q", c.Surface)
	}

	missing, err := s.GetConversation("nope")
	if err != nil {
		t.Fatalf("get missing conversation: %v", err)
	}
	if missing != nil {
		t.Fatal("expected nil for missing conversation")
	}
}

func TestMessageWindowing(t *testing.T) {
	s := newTestStore(t)
	if err := s.EnsureConversation("conv-1", "web"); err != nil {
		t.Fatalf("ensure conversation: %v", err)
	}

	for _, content := range []string{"first", "second", "third", "fourth"} {
		if err := s.SaveMessage(&Message{ConversationID: "conv-1", Role: "user", Content: content}); err != nil {
			t.Fatalf("save message %q: %v", content, err)
		}
	}

	// Windowed: most recent two, chronological order
	msgs, err := s.GetMessages("conv-1", 2)
	if err != nil {
		t.Fatalf("get messages: %v", err)
	}
	if len(msgs) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(msgs))
	}
	if msgs[0].Content != "third" || msgs[1].Content != "fourth" {
		t.Errorf("expected [third fourth], got [%s %s]", msgs[0].Content, msgs[1].Content)
	}

	// Full history
	all, err := s.GetMessages("conv-1", 0)
	if err != nil {
		t.Fatalf("get all messages: %v", err)
	}
	if len(all) != 4 {
		t.Fatalf("expected 4 messages, got %d", len(all))
	}
	if all[0].Content != "first" {
		t.Errorf("expected chronological order, first message was %q", all[0].Content)
	}
}

func TestDelegationRunUpsert(t *testing.T) {
	s := newTestStore(t)
	if err := s.EnsureConversation("conv-1", "web"); err != nil {
		t.Fatalf("ensure conversation: %v", err)
	}

	steps, _ := json.Marshal([]string{"designer", "developer"})
	run := &DelegationRun{
		ID:             "run-1",
		ConversationID: "conv-1",
		Category:       "development",
		Steps:          steps,
		Status:         "running",
	}
	if err := s.SaveDelegationRun(run); err != nil {
		t.Fatalf("save run: %v", err)
	}

	run.Status = "completed"
	run.DurationMs = 1234
	if err := s.SaveDelegationRun(run); err != nil {
		t.Fatalf("update run: %v", err)
	}

	got, err := s.GetDelegationRun("run-1")
	if err != nil {
		t.Fatalf("get run: %v", err)
	}
	if got == nil {
		t.Fatal("expected run, got nil")
	}
	if got.Status != "completed" {
		t.Errorf("expected status 'completed', got %q", got.Status)
	}
	if got.DurationMs != 1234 {
		t.Errorf("expected duration 1234, got %d", got.DurationMs)
	}

	runs, err := s.ListDelegationRuns("conv-1", 10)
	if err != nil {
		t.Fatalf("list runs: %v", err)
	}
	if len(runs) != 1 {
		t.Fatalf("expected 1 run, got %d", len(runs))
	}
}

func TestResponderUsageAccumulates(t *testing.T) {
	s := newTestStore(t)

	if err := s.AddResponderUsage("developer", 100, 200); err != nil {
		t.Fatalf("add usage: %v", err)
	}
	if err := s.AddResponderUsage("developer", 50, 25); err != nil {
		t.Fatalf("add usage again: %v", err)
	}

	usage, err := s.ListResponderUsage()
	if err != nil {
		t.Fatalf("list usage: %v", err)
	}
	if len(usage) != 1 {
		t.Fatalf("expected 1 row, got %d", len(usage))
	}
	u := usage[0]
	if u.Calls != 2 || u.TokensIn != 150 || u.TokensOut != 225 {
		t.Errorf("unexpected usage row: %+v", u)
	}
}
