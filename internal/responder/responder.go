// Package responder defines the fixed set of specialist personas and the
// registry that binds each one to the completion backend.
package responder

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"boardroom/internal/backend"
	"boardroom/internal/config"
)

// ID names a responder persona. The set is closed and defined at
// process start; anything outside it is a programming error.
type ID string

const (
	Developer  ID = "developer"
	Designer   ID = "designer"
	Marketer   ID = "marketer"
	Researcher ID = "researcher"
	Generalist ID = "generalist"
)

// ErrUnknownResponder is returned for ids outside the compiled-in set.
// It indicates a misconfiguration and surfaces as a 5xx, never as an
// in-conversation degradation.
var ErrUnknownResponder = errors.New("unknown responder")

// All returns the closed responder set in stable order.
func All() []ID {
	return []ID{Developer, Designer, Marketer, Researcher, Generalist}
}

func Valid(id ID) bool {
	switch id {
	case Developer, Designer, Marketer, Researcher, Generalist:
		return true
	}
	return false
}

// Completer is the backend boundary: an opaque (system, messages) -> text
// function. *backend.Client satisfies it.
type Completer interface {
	Complete(ctx context.Context, req backend.Request) (string, backend.Usage, error)
}

// UsageSink receives per-responder token accounting after each
// completed call. *store.Store satisfies it.
type UsageSink interface {
	AddResponderUsage(responder string, tokensIn, tokensOut int64) error
}

// Responder is a stateless capability bound to an ID. Respond issues a
// single completion under the persona's system prompt; RespondInContext
// additionally supplies a trailing window of conversation history.
type Responder interface {
	ID() ID
	Respond(ctx context.Context, instruction string) (string, error)
	RespondInContext(ctx context.Context, history []backend.Message, instruction string) (string, error)
}

type boundResponder struct {
	id        ID
	persona   Persona
	completer Completer
	usage     UsageSink
	model     string
	temp      *float64
}

func (r *boundResponder) ID() ID { return r.id }

func (r *boundResponder) Respond(ctx context.Context, instruction string) (string, error) {
	return r.RespondInContext(ctx, nil, instruction)
}

func (r *boundResponder) RespondInContext(ctx context.Context, history []backend.Message, instruction string) (string, error) {
	messages := make([]backend.Message, 0, len(history)+1)
	messages = append(messages, history...)
	messages = append(messages, backend.Message{Role: "user", Content: instruction})

	text, usage, err := r.completer.Complete(ctx, backend.Request{
		System:      r.persona.SystemPrompt,
		Messages:    messages,
		Model:       r.model,
		Temperature: r.temp,
	})
	if err != nil {
		return "", fmt.Errorf("responder %s: %w", r.id, err)
	}
	if r.usage != nil {
		if err := r.usage.AddResponderUsage(string(r.id), usage.TokensIn, usage.TokensOut); err != nil {
			slog.Warn("record responder usage failed", "responder", r.id, "error", err)
		}
	}
	return text, nil
}

// Registry holds the fixed responder set. Built once at startup;
// read-only afterwards.
type Registry struct {
	responders map[ID]Responder
	disabled   map[ID]bool
}

// NewRegistry binds every persona in the compiled-in set to the
// completer, applying per-responder config overrides.
func NewRegistry(completer Completer, overrides map[string]config.ResponderConfig) *Registry {
	reg := &Registry{
		responders: make(map[ID]Responder, len(All())),
		disabled:   make(map[ID]bool),
	}

	for _, id := range All() {
		r := &boundResponder{
			id:        id,
			persona:   PersonaFor(id),
			completer: completer,
		}
		if o, ok := overrides[string(id)]; ok {
			r.model = o.Model
			r.temp = o.Temperature
			if o.Disabled && id != Generalist {
				reg.disabled[id] = true
			}
		}
		reg.responders[id] = r
	}

	return reg
}

// RecordUsage attaches a sink that receives token accounting for
// every responder call. Call before the registry is in use.
func (r *Registry) RecordUsage(sink UsageSink) {
	for _, resp := range r.responders {
		if b, ok := resp.(*boundResponder); ok {
			b.usage = sink
		}
	}
}

// Get returns the responder for id, or ErrUnknownResponder for ids
// outside the fixed set.
func (r *Registry) Get(id ID) (Responder, error) {
	resp, ok := r.responders[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownResponder, id)
	}
	return resp, nil
}

// Enabled reports whether a responder may be delegated to. The
// generalist is always enabled.
func (r *Registry) Enabled(id ID) bool {
	if !Valid(id) {
		return false
	}
	return !r.disabled[id]
}

// Descriptions returns display metadata for the full set.
func (r *Registry) Descriptions() map[ID]string {
	out := make(map[ID]string, len(r.responders))
	for id := range r.responders {
		out[id] = PersonaFor(id).Description
	}
	return out
}
