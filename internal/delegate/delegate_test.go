package delegate

import (
	"context"
	"strings"
	"sync"

	"boardroom/internal/backend"
	"boardroom/internal/responder"
)

// scriptedCompleter routes completions by persona and records every
// call, so tests can assert call counts and received instructions.
type scriptedCompleter struct {
	mu      sync.Mutex
	replies map[responder.ID]string
	errs    map[responder.ID]error
	delays  map[responder.ID]func(ctx context.Context)
	calls   []completerCall
}

type completerCall struct {
	persona     responder.ID
	instruction string
	msgCount    int
}

func newScriptedCompleter() *scriptedCompleter {
	return &scriptedCompleter{
		replies: make(map[responder.ID]string),
		errs:    make(map[responder.ID]error),
		delays:  make(map[responder.ID]func(ctx context.Context)),
	}
}

func (c *scriptedCompleter) Complete(ctx context.Context, req backend.Request) (string, backend.Usage, error) {
	persona := personaOf(req.System)
	instruction := ""
	if len(req.Messages) > 0 {
		instruction = req.Messages[len(req.Messages)-1].Content
	}

	c.mu.Lock()
	c.calls = append(c.calls, completerCall{persona: persona, instruction: instruction, msgCount: len(req.Messages)})
	delay := c.delays[persona]
	reply, hasReply := c.replies[persona]
	err := c.errs[persona]
	c.mu.Unlock()

	if delay != nil {
		delay(ctx)
		if ctx.Err() != nil {
			return "", backend.Usage{}, ctx.Err()
		}
	}
	if err != nil {
		return "", backend.Usage{}, err
	}
	if !hasReply {
		reply = "reply from " + string(persona)
	}
	return reply, backend.Usage{TokensIn: 1, TokensOut: 1}, nil
}

func (c *scriptedCompleter) callsTo(id responder.ID) []completerCall {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []completerCall
	for _, call := range c.calls {
		if call.persona == id {
			out = append(out, call)
		}
	}
	return out
}

func (c *scriptedCompleter) totalCalls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.calls)
}

// personaOf identifies the persona by a distinctive fragment of its
// system prompt.
func personaOf(system string) responder.ID {
	switch {
	case strings.Contains(system, "software developer"):
		return responder.Developer
	case strings.Contains(system, "product designer"):
		return responder.Designer
	case strings.Contains(system, "marketing strategist"):
		return responder.Marketer
	case strings.Contains(system, "research analyst"):
		return responder.Researcher
	default:
		return responder.Generalist
	}
}
