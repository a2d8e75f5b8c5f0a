package delegate

import (
	"fmt"
	"strings"

	"boardroom/internal/intent"
	"boardroom/internal/responder"
)

// BuildPlan maps a classification to an ordered delegation plan. Plans
// are 0, 1, or 2 steps long; when both a design and a development step
// are present the design step always comes first, and the development
// step embeds the designer's output.
func BuildPlan(cls intent.Classification, text string) Plan {
	query := intent.CleanQuery(text)
	if query == "" {
		return nil
	}

	switch cls.Category {
	case intent.Research:
		return Plan{{
			Target:      responder.Researcher,
			Instruction: fmt.Sprintf("Conduct research on the following and summarize your findings: %s", query),
		}}

	case intent.Development:
		if cls.NeedsDesignInput {
			return Plan{
				{
					Target:      responder.Designer,
					Instruction: fmt.Sprintf("Produce design recommendations for the following request: %s", query),
				},
				{
					Target: responder.Developer,
					Instruction: fmt.Sprintf(
						"Implement the following request: %s\n\nFollow these design recommendations:\n%s",
						query, PriorOutputToken),
					DependsOnPrior: true,
				},
			}
		}
		return Plan{{
			Target:      responder.Developer,
			Instruction: fmt.Sprintf("Implement the following request: %s", query),
		}}

	case intent.Design:
		return Plan{{
			Target:      responder.Designer,
			Instruction: fmt.Sprintf("Produce design recommendations for the following request: %s", query),
		}}

	case intent.Marketing:
		return Plan{{
			Target:      responder.Marketer,
			Instruction: fmt.Sprintf("Develop marketing guidance for the following request: %s", query),
		}}
	}

	return nil
}

// FilterEnabled drops steps whose target responder is disabled. When a
// dropped step fed a dependent one, the dependent step's embed slot is
// removed so it runs standalone.
func FilterEnabled(p Plan, enabled func(responder.ID) bool) Plan {
	var out Plan
	dropped := false
	for _, s := range p {
		if !enabled(s.Target) {
			dropped = true
			continue
		}
		if s.DependsOnPrior && dropped {
			s.DependsOnPrior = false
			s.Instruction = stripPriorSection(s.Instruction)
		}
		out = append(out, s)
	}
	return out
}

// stripPriorSection removes the trailing section that embeds the prior
// step's output, which always sits after a blank line.
func stripPriorSection(instruction string) string {
	idx := strings.Index(instruction, PriorOutputToken)
	if idx < 0 {
		return instruction
	}
	if cut := strings.LastIndex(instruction[:idx], "\n\n"); cut >= 0 {
		return instruction[:cut]
	}
	return strings.ReplaceAll(instruction, PriorOutputToken, "")
}
