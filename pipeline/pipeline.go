// Package pipeline implements the generic multi-step execution contract that
// agent runners build on: a small cooperative state machine with named steps,
// direct edges and conditional branching over a caller-owned state type.
//
// Steps within one run are strictly sequential; each step's output state is
// the next step's sole input. There is no internal parallelism, retry or
// timeout; cancellation is honored between steps via the run context.
package pipeline

import (
	"context"
	"errors"
	"fmt"

	"github.com/hupe1980/agenthub/logging"
)

// End is the terminal transition target. A branch or edge pointing at End
// finishes the run.
const End = "__end__"

// ErrNoEntryPoint is returned by Validate when no entry step was set.
var ErrNoEntryPoint = errors.New("pipeline has no entry point")

// ErrStepLimit is returned when a run exceeds the transition budget,
// indicating a cycle or a runaway branch function.
var ErrStepLimit = errors.New("pipeline exceeded max step transitions")

// StepFunc transforms the state. Returning an error aborts the run; the
// error is wrapped with the step name and propagated unchanged otherwise.
type StepFunc[S any] func(ctx context.Context, state S) (S, error)

// BranchFunc inspects the state after a step and names the next step (or
// End). Branching is an explicit predicate, not error-based control flow.
type BranchFunc[S any] func(state S) string

// Options configures a Pipeline.
type Options[S any] struct {
	// Logger defaults to NoOpLogger if nil.
	Logger logging.Logger
	// MaxTransitions bounds the number of step executions per run. Zero
	// selects the default of 32.
	MaxTransitions int
}

// Pipeline is an ordered/conditional multi-step state machine. Build it with
// AddStep/AddEdge/AddBranch/SetEntryPoint, then Run. A Pipeline is immutable
// during Run and safe for concurrent runs once built.
type Pipeline[S any] struct {
	entry          string
	steps          map[string]StepFunc[S]
	edges          map[string]string
	branches       map[string]BranchFunc[S]
	logger         logging.Logger
	maxTransitions int
}

// New constructs an empty Pipeline.
func New[S any](optFns ...func(o *Options[S])) *Pipeline[S] {
	opts := Options[S]{Logger: logging.NoOpLogger{}, MaxTransitions: 32}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Logger == nil {
		opts.Logger = logging.NoOpLogger{}
	}
	if opts.MaxTransitions <= 0 {
		opts.MaxTransitions = 32
	}
	return &Pipeline[S]{
		steps:          make(map[string]StepFunc[S]),
		edges:          make(map[string]string),
		branches:       make(map[string]BranchFunc[S]),
		logger:         opts.Logger,
		maxTransitions: opts.MaxTransitions,
	}
}

// AddStep registers a named step. Re-registering a name replaces the step.
func (p *Pipeline[S]) AddStep(name string, fn StepFunc[S]) *Pipeline[S] {
	p.steps[name] = fn
	return p
}

// AddEdge wires an unconditional transition from one step to the next (or End).
func (p *Pipeline[S]) AddEdge(from, to string) *Pipeline[S] {
	p.edges[from] = to
	return p
}

// AddBranch wires a conditional transition: after from completes, fn picks
// the next step by name. A branch takes precedence over a direct edge.
func (p *Pipeline[S]) AddBranch(from string, fn BranchFunc[S]) *Pipeline[S] {
	p.branches[from] = fn
	return p
}

// SetEntryPoint names the initial step.
func (p *Pipeline[S]) SetEntryPoint(name string) *Pipeline[S] {
	p.entry = name
	return p
}

// Validate checks the graph is runnable: an entry point exists, every edge
// and entry names a registered step, and every non-branching step has an
// outgoing edge or is implicitly terminal via a branch.
func (p *Pipeline[S]) Validate() error {
	if p.entry == "" {
		return ErrNoEntryPoint
	}
	if _, ok := p.steps[p.entry]; !ok {
		return fmt.Errorf("entry point %q is not a registered step", p.entry)
	}
	for from, to := range p.edges {
		if _, ok := p.steps[from]; !ok {
			return fmt.Errorf("edge source %q is not a registered step", from)
		}
		if to != End {
			if _, ok := p.steps[to]; !ok {
				return fmt.Errorf("edge target %q is not a registered step", to)
			}
		}
	}
	for from := range p.branches {
		if _, ok := p.steps[from]; !ok {
			return fmt.Errorf("branch source %q is not a registered step", from)
		}
	}
	return nil
}

// Run executes the machine from the entry point until a transition reaches
// End or a step has no outgoing transition. Step errors abort immediately and
// are wrapped with the failing step's name; context cancellation is checked
// before every step.
func (p *Pipeline[S]) Run(ctx context.Context, initial S) (S, error) {
	if err := p.Validate(); err != nil {
		return initial, err
	}

	state := initial
	current := p.entry

	for transitions := 0; ; transitions++ {
		if transitions >= p.maxTransitions {
			return state, ErrStepLimit
		}

		select {
		case <-ctx.Done():
			return state, ctx.Err()
		default:
		}

		fn := p.steps[current]
		p.logger.Debug("pipeline step starting", "step", current)

		next, err := fn(ctx, state)
		if err != nil {
			return state, fmt.Errorf("pipeline step %s failed: %w", current, err)
		}
		state = next
		p.logger.Debug("pipeline step completed", "step", current)

		target, ok := p.transition(current, state)
		if !ok || target == End {
			return state, nil
		}
		if _, registered := p.steps[target]; !registered {
			return state, fmt.Errorf("pipeline step %s branched to unknown step %q", current, target)
		}
		current = target
	}
}

// transition resolves the next step after current: a branch wins over a
// direct edge; absence of both ends the run.
func (p *Pipeline[S]) transition(current string, state S) (string, bool) {
	if branch, ok := p.branches[current]; ok {
		return branch(state), true
	}
	if to, ok := p.edges[current]; ok {
		return to, true
	}
	return "", false
}
