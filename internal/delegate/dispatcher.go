package delegate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"boardroom/internal/responder"
	"boardroom/internal/throttle"
)

// Dispatcher executes a plan step by step, strictly in sequence, since
// later steps may embed earlier outputs. Before each call it consults
// the throttle cache so a double-submitted request reaches the backend
// once.
type Dispatcher struct {
	registry    *responder.Registry
	cache       throttle.Cache
	stepTimeout time.Duration
	pendingWait time.Duration
	keyPrefix   int
}

type DispatcherOpts struct {
	StepTimeout time.Duration
	PendingWait time.Duration
	KeyPrefix   int
}

func NewDispatcher(reg *responder.Registry, cache throttle.Cache, opts DispatcherOpts) *Dispatcher {
	if opts.StepTimeout == 0 {
		opts.StepTimeout = 30 * time.Second
	}
	if opts.PendingWait == 0 {
		opts.PendingWait = 1 * time.Second
	}
	if opts.KeyPrefix == 0 {
		opts.KeyPrefix = 100
	}
	if cache == nil {
		cache = throttle.Noop{}
	}
	return &Dispatcher{
		registry:    reg,
		cache:       cache,
		stepTimeout: opts.StepTimeout,
		pendingWait: opts.PendingWait,
		keyPrefix:   opts.KeyPrefix,
	}
}

// Execute runs the plan. onStep, when non-nil, is invoked as each step
// finishes, successful or not, so observers see progress while later
// steps are still running. The first step failure aborts the remainder
// and is reported in the outcome together with any results already
// gathered; retries are the caller's responsibility via fallback.
func (d *Dispatcher) Execute(ctx context.Context, plan Plan, onStep func(Result)) Outcome {
	outcome := Outcome{}

	var prior string
	for i, step := range plan {
		instruction := step.Instruction
		if step.DependsOnPrior {
			instruction = strings.ReplaceAll(instruction, PriorOutputToken, prior)
		}

		result := d.executeStep(ctx, step, instruction)

		if onStep != nil {
			onStep(result)
		}

		if result.Err != nil {
			slog.Warn("delegation step failed",
				"step", i, "target", step.Target, "error", result.Err)
			// Partial results exclude the failed step; the error stays
			// distinguishable (registry lookups are fatal upstream).
			outcome.Err = result.Err
			return outcome
		}

		outcome.Results = append(outcome.Results, result)
		prior = result.Output
	}

	return outcome
}

func (d *Dispatcher) executeStep(ctx context.Context, step Step, instruction string) Result {
	start := time.Now()
	result := Result{Step: step}

	r, err := d.registry.Get(step.Target)
	if err != nil {
		result.Err = err
		result.Elapsed = time.Since(start)
		return result
	}

	key := throttle.Key(string(step.Target), instruction, d.keyPrefix)
	ticket, created := d.cache.GetOrCreate(key)

	if !created {
		if out, ok := ticket.Completed(); ok {
			slog.Debug("replaying cached responder result", "target", step.Target)
			result.Output = out
			result.Elapsed = time.Since(start)
			return result
		}
		// In flight elsewhere: wait briefly for that result, then
		// proceed independently without touching the entry.
		if out, ok := ticket.Wait(ctx, d.pendingWait); ok {
			slog.Debug("reusing in-flight responder result", "target", step.Target)
			result.Output = out
			result.Elapsed = time.Since(start)
			return result
		}
		result.Output, result.Err = d.callResponder(ctx, r, instruction)
		result.Elapsed = time.Since(start)
		return result
	}

	out, err := d.callResponder(ctx, r, instruction)
	if err != nil {
		d.cache.Fail(key)
	} else {
		d.cache.Resolve(key, out)
	}
	result.Output = out
	result.Err = err
	result.Elapsed = time.Since(start)
	return result
}

func (d *Dispatcher) callResponder(ctx context.Context, r responder.Responder, instruction string) (string, error) {
	stepCtx, cancel := context.WithTimeout(ctx, d.stepTimeout)
	defer cancel()

	out, err := r.Respond(stepCtx, instruction)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return "", fmt.Errorf("%w after %s", ErrResponderTimeout, d.stepTimeout)
		}
		return "", err
	}
	return out, nil
}
