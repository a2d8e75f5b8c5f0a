// Package delegate plans, executes, and synthesizes delegation runs:
// a classified user request becomes an ordered list of specialist
// calls whose outputs fold into one generalist answer.
package delegate

import (
	"errors"
	"fmt"
	"time"

	"boardroom/internal/responder"
)

// PriorOutputToken marks where a dependent step's instruction embeds
// the previous step's output. The dispatcher substitutes it at
// execution time.
const PriorOutputToken = "{{prior_output}}"

// Step is one delegation call in a plan.
type Step struct {
	Target         responder.ID `json:"target"`
	Instruction    string       `json:"instruction"`
	DependsOnPrior bool         `json:"depends_on_prior"`
}

// Plan is an ordered list of steps, owned by a single request. A valid
// plan has at most one step per responder and at most two steps.
type Plan []Step

// Validate enforces the plan invariants. Violations are programming
// errors; callers fall back to an empty plan.
func (p Plan) Validate() error {
	if len(p) > 2 {
		return fmt.Errorf("plan has %d steps, maximum is 2", len(p))
	}
	seen := make(map[responder.ID]bool, len(p))
	for _, s := range p {
		if seen[s.Target] {
			return fmt.Errorf("plan delegates twice to %s", s.Target)
		}
		seen[s.Target] = true
	}
	return nil
}

// Result is the outcome of one executed step.
type Result struct {
	Step    Step
	Output  string
	Err     error
	Elapsed time.Duration
}

// Outcome is the result of executing a plan: all results in step order
// on success, or the results gathered before the first failure plus
// that failure.
type Outcome struct {
	Results []Result
	Err     error
}

func (o Outcome) Failed() bool {
	return o.Err != nil
}

// ErrResponderTimeout marks a step that exceeded its per-step timeout.
var ErrResponderTimeout = errors.New("responder timed out")
