package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"boardroom/internal/backend"
	"boardroom/internal/config"
	"boardroom/internal/delegate"
	"boardroom/internal/intent"
	"boardroom/internal/natsbus"
	"boardroom/internal/responder"
	"boardroom/internal/store"
)

// Engine runs the full chat pipeline: classify the message, plan and
// execute delegation, synthesize the reply, persist the transcript.
// One instance serves every surface; ordering is per conversation.
type Engine struct {
	store       *store.Store
	registry    *responder.Registry
	dispatcher  *delegate.Dispatcher
	synthesizer *delegate.Synthesizer
	events      *natsbus.Client

	historyWindow int

	queues map[string]*conversationQueue
	locks  map[string]*sync.Mutex
	mu     sync.Mutex

	listeners  []ReplyListener
	listenerMu sync.RWMutex
}

// ReplyListener receives the final reply of an asynchronously handled
// message, with the meta the submitter attached.
type ReplyListener func(conversationID, text string, meta map[string]string)

// Event is the shape published on the events.chat.* and
// events.delegation.* topics.
type Event struct {
	Type           string `json:"type"`
	ConversationID string `json:"conversation_id,omitempty"`
	RunID          string `json:"run_id,omitempty"`
	Role           string `json:"role,omitempty"`
	Content        string `json:"content,omitempty"`
	Target         string `json:"target,omitempty"`
	Status         string `json:"status,omitempty"`
}

func New(st *store.Store, reg *responder.Registry, d *delegate.Dispatcher, syn *delegate.Synthesizer, events *natsbus.Client, cfg config.BackendConfig) *Engine {
	hw := cfg.HistoryWindow
	if hw <= 0 {
		hw = 5
	}
	return &Engine{
		store:         st,
		registry:      reg,
		dispatcher:    d,
		synthesizer:   syn,
		events:        events,
		historyWindow: hw,
		queues:        make(map[string]*conversationQueue),
		locks:         make(map[string]*sync.Mutex),
	}
}

func (e *Engine) OnReply(listener ReplyListener) {
	e.listenerMu.Lock()
	defer e.listenerMu.Unlock()
	e.listeners = append(e.listeners, listener)
}

// Ask handles a message synchronously and returns the final reply.
// Messages within one conversation are processed one at a time.
func (e *Engine) Ask(ctx context.Context, conversationID, surface, text string) (string, error) {
	lock := e.conversationLock(conversationID)
	lock.Lock()
	defer lock.Unlock()
	return e.process(ctx, conversationID, surface, text)
}

// HandleMessage enqueues a message for asynchronous handling. The
// reply is delivered to registered listeners with the given meta.
func (e *Engine) HandleMessage(ctx context.Context, conversationID, surface, text string, meta map[string]string) {
	if meta == nil {
		meta = map[string]string{}
	}
	meta["surface"] = surface

	q := e.getQueue(conversationID)
	q.Enqueue(queuedMessage{ConversationID: conversationID, Text: text, Meta: meta})
	go e.drainQueue(ctx, conversationID)
}

func (e *Engine) getQueue(conversationID string) *conversationQueue {
	e.mu.Lock()
	defer e.mu.Unlock()

	q, ok := e.queues[conversationID]
	if !ok {
		q = newConversationQueue(conversationID)
		e.queues[conversationID] = q
	}
	return q
}

func (e *Engine) conversationLock(conversationID string) *sync.Mutex {
	e.mu.Lock()
	defer e.mu.Unlock()

	l, ok := e.locks[conversationID]
	if !ok {
		l = &sync.Mutex{}
		e.locks[conversationID] = l
	}
	return l
}

func (e *Engine) drainQueue(ctx context.Context, conversationID string) {
	q := e.getQueue(conversationID)

	if !q.TryLock() {
		return // another drainer is active
	}
	defer q.Unlock()

	for {
		msg, ok := q.Dequeue()
		if !ok {
			return
		}

		lock := e.conversationLock(conversationID)
		lock.Lock()
		reply, err := e.process(ctx, conversationID, msg.Meta["surface"], msg.Text)
		lock.Unlock()
		if err != nil {
			slog.Error("message handling failed", "conversation", conversationID, "error", err)
			continue
		}
		e.notify(conversationID, reply, msg.Meta)
	}
}

func (e *Engine) notify(conversationID, text string, meta map[string]string) {
	e.listenerMu.RLock()
	listeners := make([]ReplyListener, len(e.listeners))
	copy(listeners, e.listeners)
	e.listenerMu.RUnlock()

	for _, fn := range listeners {
		fn(conversationID, text, meta)
	}
}

func (e *Engine) process(ctx context.Context, conversationID, surface, text string) (string, error) {
	if err := e.store.EnsureConversation(conversationID, surface); err != nil {
		return "", err
	}

	// History is the window before this message; the new turn is
	// appended by the responder itself.
	history, err := e.history(conversationID)
	if err != nil {
		return "", err
	}

	userMsg := &store.Message{ConversationID: conversationID, Role: "user", Content: text}
	if err := e.store.SaveMessage(userMsg); err != nil {
		return "", err
	}
	e.publishChat(conversationID, "user", text)

	cls := intent.Classify(text)
	plan := delegate.BuildPlan(cls, text)
	if err := plan.Validate(); err != nil {
		slog.Warn("discarding invalid delegation plan", "conversation", conversationID, "error", err)
		plan = nil
	}
	plan = delegate.FilterEnabled(plan, e.registry.Enabled)

	runID := uuid.NewString()
	started := time.Now()
	if len(plan) > 0 {
		e.publishDelegation(runID, conversationID, Event{Type: "delegation_started", Status: "running"})
	}

	outcome := e.dispatcher.Execute(ctx, plan, func(r delegate.Result) {
		status := "completed"
		if r.Err != nil {
			status = "failed"
		}
		e.publishDelegation(runID, conversationID, Event{
			Type:   "delegation_step",
			Target: string(r.Step.Target),
			Status: status,
		})
	})

	// A plan step naming a responder the registry does not know is a
	// programming error, not a model hiccup. Surface it to the caller.
	if errors.Is(outcome.Err, responder.ErrUnknownResponder) {
		e.recordRun(runID, conversationID, cls, plan, "failed", started)
		e.publishDelegation(runID, conversationID, Event{Type: "delegation_finished", Status: "failed"})
		return "", fmt.Errorf("dispatch: %w", outcome.Err)
	}

	reply, err := e.synthesizer.Synthesize(ctx, history, text, outcome)
	if err != nil {
		e.recordRun(runID, conversationID, cls, plan, "failed", started)
		return "", fmt.Errorf("synthesize: %w", err)
	}

	assistantMsg := &store.Message{ConversationID: conversationID, Role: "assistant", Content: reply}
	if err := e.store.SaveMessage(assistantMsg); err != nil {
		slog.Error("save reply failed", "conversation", conversationID, "error", err)
	}
	e.publishChat(conversationID, "assistant", reply)

	if len(plan) > 0 {
		status := "completed"
		if outcome.Failed() {
			status = "failed"
		}
		e.recordRun(runID, conversationID, cls, plan, status, started)
		e.publishDelegation(runID, conversationID, Event{Type: "delegation_finished", Status: status})
	}

	return reply, nil
}

func (e *Engine) history(conversationID string) ([]backend.Message, error) {
	msgs, err := e.store.GetMessages(conversationID, e.historyWindow)
	if err != nil {
		return nil, fmt.Errorf("load history: %w", err)
	}
	out := make([]backend.Message, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, backend.Message{Role: m.Role, Content: m.Content})
	}
	return out, nil
}

func (e *Engine) recordRun(runID, conversationID string, cls intent.Classification, plan delegate.Plan, status string, started time.Time) {
	if len(plan) == 0 && status != "failed" {
		return
	}
	steps, err := json.Marshal(plan)
	if err != nil {
		steps = []byte("[]")
	}
	run := &store.DelegationRun{
		ID:             runID,
		ConversationID: conversationID,
		Category:       string(cls.Category),
		Steps:          steps,
		Status:         status,
		DurationMs:     time.Since(started).Milliseconds(),
	}
	if err := e.store.SaveDelegationRun(run); err != nil {
		slog.Error("save delegation run failed", "run", runID, "error", err)
	}
}

func (e *Engine) publishChat(conversationID, role, content string) {
	if e.events == nil {
		return
	}
	ev := Event{Type: "message", ConversationID: conversationID, Role: role, Content: content}
	if err := e.events.PublishJSON(natsbus.TopicEventsConversation(conversationID), ev); err != nil {
		slog.Warn("publish chat event failed", "conversation", conversationID, "error", err)
	}
}

func (e *Engine) publishDelegation(runID, conversationID string, ev Event) {
	if e.events == nil {
		return
	}
	ev.RunID = runID
	ev.ConversationID = conversationID
	if err := e.events.PublishJSON(natsbus.TopicEventsDelegation(runID), ev); err != nil {
		slog.Warn("publish delegation event failed", "run", runID, "error", err)
	}
}
