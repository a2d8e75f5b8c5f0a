package engine

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/nats-io/nats.go"

	"boardroom/internal/backend"
	"boardroom/internal/config"
	"boardroom/internal/delegate"
	"boardroom/internal/natsbus"
	"boardroom/internal/responder"
	"boardroom/internal/store"
	"boardroom/internal/throttle"
)

// fakeCompleter answers by persona, identified from the system
// prompt, and counts calls.
type fakeCompleter struct {
	mu      sync.Mutex
	replies map[string]string
	errs    map[string]error
	calls   []string
}

func newFakeCompleter() *fakeCompleter {
	return &fakeCompleter{
		replies: make(map[string]string),
		errs:    make(map[string]error),
	}
}

func (c *fakeCompleter) Complete(ctx context.Context, req backend.Request) (string, backend.Usage, error) {
	persona := "generalist"
	switch {
	case strings.Contains(req.System, "software developer"):
		persona = "developer"
	case strings.Contains(req.System, "product designer"):
		persona = "designer"
	case strings.Contains(req.System, "marketing strategist"):
		persona = "marketer"
	case strings.Contains(req.System, "research analyst"):
		persona = "researcher"
	}

	c.mu.Lock()
	c.calls = append(c.calls, persona)
	reply, ok := c.replies[persona]
	err := c.errs[persona]
	c.mu.Unlock()

	if err != nil {
		return "", backend.Usage{}, err
	}
	if !ok {
		reply = "reply from " + persona
	}
	return reply, backend.Usage{TokensIn: 1, TokensOut: 1}, nil
}

func (c *fakeCompleter) callOrder() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.calls...)
}

func newTestEngine(t *testing.T, comp *fakeCompleter) (*Engine, *store.Store) {
	t.Helper()

	st, err := store.New(config.StoreConfig{Path: filepath.Join(t.TempDir(), "test.db")})
	if err != nil {
		t.Fatalf("store.New: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	reg := responder.NewRegistry(comp, nil)
	disp := delegate.NewDispatcher(reg, throttle.Noop{}, delegate.DispatcherOpts{})
	syn := delegate.NewSynthesizer(reg)
	eng := New(st, reg, disp, syn, nil, config.BackendConfig{HistoryWindow: 5})
	return eng, st
}

func TestAskSmallTalkAnswersDirectly(t *testing.T) {
	comp := newFakeCompleter()
	comp.replies["generalist"] = "doing great, thanks for asking"
	eng, st := newTestEngine(t, comp)

	reply, err := eng.Ask(context.Background(), "conv-1", "web", "how are you today?")
	if err != nil {
		t.Fatalf("Ask: %v", err)
	}
	if reply != "doing great, thanks for asking" {
		t.Errorf("reply = %q", reply)
	}
	if got := comp.callOrder(); len(got) != 1 || got[0] != "generalist" {
		t.Errorf("calls = %v, want only the generalist", got)
	}

	msgs, err := st.GetMessages("conv-1", 10)
	if err != nil {
		t.Fatalf("GetMessages: %v", err)
	}
	if len(msgs) != 2 {
		t.Fatalf("persisted %d messages, want user and assistant", len(msgs))
	}
	if msgs[0].Role != "user" || msgs[1].Role != "assistant" {
		t.Errorf("roles = %s, %s", msgs[0].Role, msgs[1].Role)
	}
	if msgs[1].Content != reply {
		t.Errorf("stored reply %q differs from returned %q", msgs[1].Content, reply)
	}

	runs, err := st.ListDelegationRuns("conv-1", 10)
	if err != nil {
		t.Fatalf("ListDelegationRuns: %v", err)
	}
	if len(runs) != 0 {
		t.Errorf("recorded %d delegation runs for small talk, want none", len(runs))
	}
}

func TestAskDevelopmentRunsDesignerThenDeveloper(t *testing.T) {
	comp := newFakeCompleter()
	comp.replies["generalist"] = "here is your landing page"
	eng, st := newTestEngine(t, comp)

	reply, err := eng.Ask(context.Background(), "conv-1", "web", "build a landing page with a modern design")
	if err != nil {
		t.Fatalf("Ask: %v", err)
	}
	if reply != "here is your landing page" {
		t.Errorf("reply = %q", reply)
	}

	want := []string{"designer", "developer", "generalist"}
	got := comp.callOrder()
	if len(got) != len(want) {
		t.Fatalf("calls = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("calls = %v, want %v", got, want)
		}
	}

	runs, err := st.ListDelegationRuns("conv-1", 10)
	if err != nil {
		t.Fatalf("ListDelegationRuns: %v", err)
	}
	if len(runs) != 1 {
		t.Fatalf("recorded %d runs, want 1", len(runs))
	}
	if runs[0].Status != "completed" {
		t.Errorf("run status = %q", runs[0].Status)
	}
	if runs[0].Category != "development" {
		t.Errorf("run category = %q", runs[0].Category)
	}
	if !strings.Contains(string(runs[0].Steps), "designer") || !strings.Contains(string(runs[0].Steps), "developer") {
		t.Errorf("run steps = %s", runs[0].Steps)
	}
}

func TestAskResearchDelegatesToResearcher(t *testing.T) {
	comp := newFakeCompleter()
	eng, _ := newTestEngine(t, comp)

	if _, err := eng.Ask(context.Background(), "conv-1", "web", "research the best go web frameworks"); err != nil {
		t.Fatalf("Ask: %v", err)
	}

	got := comp.callOrder()
	if len(got) != 2 || got[0] != "researcher" || got[1] != "generalist" {
		t.Errorf("calls = %v, want researcher then generalist", got)
	}
}

func TestAskUsesConversationHistory(t *testing.T) {
	comp := newFakeCompleter()
	eng, st := newTestEngine(t, comp)

	if _, err := eng.Ask(context.Background(), "conv-1", "web", "how are you?"); err != nil {
		t.Fatalf("first Ask: %v", err)
	}
	if _, err := eng.Ask(context.Background(), "conv-1", "web", "and how about now?"); err != nil {
		t.Fatalf("second Ask: %v", err)
	}

	msgs, err := st.GetMessages("conv-1", 10)
	if err != nil {
		t.Fatalf("GetMessages: %v", err)
	}
	if len(msgs) != 4 {
		t.Errorf("persisted %d messages, want 4", len(msgs))
	}
}

func TestAskDisabledSpecialistFallsBack(t *testing.T) {
	comp := newFakeCompleter()
	comp.replies["generalist"] = "my own research summary"

	st, err := store.New(config.StoreConfig{Path: filepath.Join(t.TempDir(), "test.db")})
	if err != nil {
		t.Fatalf("store.New: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	reg := responder.NewRegistry(comp, map[string]config.ResponderConfig{
		"researcher": {Disabled: true},
	})
	disp := delegate.NewDispatcher(reg, throttle.Noop{}, delegate.DispatcherOpts{})
	eng := New(st, reg, disp, delegate.NewSynthesizer(reg), nil, config.BackendConfig{})

	reply, err := eng.Ask(context.Background(), "conv-1", "web", "research the market for smart watches")
	if err != nil {
		t.Fatalf("Ask: %v", err)
	}
	if reply != "my own research summary" {
		t.Errorf("reply = %q", reply)
	}
	if got := comp.callOrder(); len(got) != 1 || got[0] != "generalist" {
		t.Errorf("calls = %v, want only the generalist", got)
	}
}

func TestAskPublishesStepEventsIncludingFailures(t *testing.T) {
	comp := newFakeCompleter()
	comp.errs["developer"] = errors.New("backend exploded")

	st, err := store.New(config.StoreConfig{Path: filepath.Join(t.TempDir(), "test.db")})
	if err != nil {
		t.Fatalf("store.New: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	bus, err := natsbus.New(config.NATSConfig{Port: 0, DataDir: t.TempDir()})
	if err != nil {
		t.Fatalf("natsbus.New: %v", err)
	}
	t.Cleanup(bus.Close)

	events, err := natsbus.NewClient(bus)
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	t.Cleanup(events.Close)

	obs, err := natsbus.NewClient(bus)
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	t.Cleanup(obs.Close)

	received := make(chan Event, 16)
	_, err = obs.Subscribe("events.delegation.>", func(msg *nats.Msg) {
		var ev Event
		if json.Unmarshal(msg.Data, &ev) == nil {
			received <- ev
		}
	})
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	reg := responder.NewRegistry(comp, nil)
	disp := delegate.NewDispatcher(reg, throttle.Noop{}, delegate.DispatcherOpts{})
	eng := New(st, reg, disp, delegate.NewSynthesizer(reg), events, config.BackendConfig{})

	if _, err := eng.Ask(context.Background(), "conv-1", "web", "build a landing page with a modern design"); err != nil {
		t.Fatalf("Ask: %v", err)
	}

	var got []Event
collect:
	for {
		select {
		case ev := <-received:
			got = append(got, ev)
			if ev.Type == "delegation_finished" {
				break collect
			}
		case <-time.After(5 * time.Second):
			t.Fatalf("never saw delegation_finished, events so far: %v", got)
		}
	}

	byStep := make(map[string]string)
	for _, ev := range got {
		if ev.Type == "delegation_step" {
			byStep[ev.Target] = ev.Status
		}
	}
	if byStep["designer"] != "completed" {
		t.Errorf("designer step status = %q, want completed", byStep["designer"])
	}
	if byStep["developer"] != "failed" {
		t.Errorf("developer step status = %q, want failed", byStep["developer"])
	}
	if got[0].Type != "delegation_started" {
		t.Errorf("first event = %q, want delegation_started", got[0].Type)
	}
	if last := got[len(got)-1]; last.Status != "failed" {
		t.Errorf("finished status = %q, want failed", last.Status)
	}
}

func TestHandleMessageNotifiesListeners(t *testing.T) {
	comp := newFakeCompleter()
	comp.replies["generalist"] = "hello there"
	eng, _ := newTestEngine(t, comp)

	type seen struct {
		conversationID string
		text           string
		meta           map[string]string
	}
	done := make(chan seen, 1)
	eng.OnReply(func(conversationID, text string, meta map[string]string) {
		done <- seen{conversationID, text, meta}
	})

	eng.HandleMessage(context.Background(), "conv-1", "telegram", "hi", map[string]string{"chat_id": "42"})

	select {
	case got := <-done:
		if got.conversationID != "conv-1" {
			t.Errorf("conversation = %q", got.conversationID)
		}
		if got.text != "hello there" {
			t.Errorf("text = %q", got.text)
		}
		if got.meta["chat_id"] != "42" {
			t.Errorf("meta = %v, want chat_id preserved", got.meta)
		}
		if got.meta["surface"] != "telegram" {
			t.Errorf("meta surface = %q", got.meta["surface"])
		}
	case <-time.After(5 * time.Second):
		t.Fatal("listener was never called")
	}
}

func TestHandleMessagePreservesOrderWithinConversation(t *testing.T) {
	comp := newFakeCompleter()
	eng, st := newTestEngine(t, comp)

	var mu sync.Mutex
	var replies int
	done := make(chan struct{})
	eng.OnReply(func(conversationID, text string, meta map[string]string) {
		mu.Lock()
		replies++
		if replies == 3 {
			close(done)
		}
		mu.Unlock()
	})

	for _, text := range []string{"first message", "second message", "third message"} {
		eng.HandleMessage(context.Background(), "conv-1", "web", text, nil)
	}

	select {
	case <-done:
	case <-time.After(10 * time.Second):
		t.Fatal("not all messages were handled")
	}

	msgs, err := st.GetMessages("conv-1", 20)
	if err != nil {
		t.Fatalf("GetMessages: %v", err)
	}
	var userMsgs []string
	for _, m := range msgs {
		if m.Role == "user" {
			userMsgs = append(userMsgs, m.Content)
		}
	}
	want := []string{"first message", "second message", "third message"}
	if len(userMsgs) != len(want) {
		t.Fatalf("user messages = %v", userMsgs)
	}
	for i := range want {
		if userMsgs[i] != want[i] {
			t.Fatalf("user messages out of order: %v", userMsgs)
		}
	}
}
