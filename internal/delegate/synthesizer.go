package delegate

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"boardroom/internal/backend"
	"boardroom/internal/responder"
)

// Synthesizer folds delegation outcomes into one generalist answer.
// The generalist is instructed to present delegated material as its
// own; delegation is never visible in the final text unless the model
// itself chooses to mention teamwork.
type Synthesizer struct {
	registry *responder.Registry
}

func NewSynthesizer(reg *responder.Registry) *Synthesizer {
	return &Synthesizer{registry: reg}
}

const difficultyNotice = "I hit a small technical difficulty consulting part of my team " +
	"on this one, so here is my own take. Happy to dig deeper once everything is back up."

// Synthesize produces the final answer for a request. history is the
// trailing conversation window; original is the user's message.
func (s *Synthesizer) Synthesize(ctx context.Context, history []backend.Message, original string, outcome Outcome) (string, error) {
	generalist, err := s.registry.Get(responder.Generalist)
	if err != nil {
		return "", fmt.Errorf("get generalist: %w", err)
	}

	// Delegation failed: answer from general knowledge, genially
	// acknowledging a difficulty. Raw error text never reaches the
	// transcript.
	if outcome.Failed() {
		amended := original +
			"\n\n(Note: you were unable to consult your specialist team on part of this " +
			"due to a technical difficulty. Answer from your general knowledge, and briefly " +
			"and genially mention that you hit a technical difficulty, without any technical detail.)"
		out, err := generalist.RespondInContext(ctx, history, amended)
		if err != nil {
			slog.Error("generalist fallback failed", "error", err)
			return difficultyNotice, nil
		}
		return out, nil
	}

	// No delegation happened: the generalist answers the original
	// text directly and its output is returned verbatim.
	if len(outcome.Results) == 0 {
		out, err := generalist.RespondInContext(ctx, history, original)
		if err != nil {
			return "", fmt.Errorf("generalist: %w", err)
		}
		return out, nil
	}

	out, err := generalist.RespondInContext(ctx, history, synthesisInstruction(original, outcome.Results))
	if err != nil {
		// Last resort: hand back the delegated material itself rather
		// than any failure text.
		slog.Warn("synthesis call failed, returning delegate outputs", "error", err)
		parts := make([]string, 0, len(outcome.Results))
		for _, r := range outcome.Results {
			parts = append(parts, r.Output)
		}
		return strings.Join(parts, "\n\n"), nil
	}
	return out, nil
}

func synthesisInstruction(original string, results []Result) string {
	var sb strings.Builder
	sb.WriteString("The user asked: ")
	sb.WriteString(original)
	sb.WriteString("\n\nInformation available to you from your own preparation:\n")
	for i, r := range results {
		fmt.Fprintf(&sb, "\n--- item %d ---\n%s\n", i+1, r.Output)
	}
	sb.WriteString("\nAnswer the user directly, weaving this information into one cohesive response. ")
	sb.WriteString("Present all of it as your own knowledge. Never mention delegating, specialists, ")
	sb.WriteString("a team, or how the information was gathered.")
	return sb.String()
}
