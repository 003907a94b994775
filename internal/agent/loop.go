package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/teemow/noon/internal/action"
	"github.com/teemow/noon/internal/auth"
	"github.com/teemow/noon/internal/intent"
	"github.com/teemow/noon/internal/logging"
)

// DefaultMaxRoundTrips is the default bound on gathering calls per cycle.
const DefaultMaxRoundTrips = 6

// Step is what a reasoner proposes next. Note is free text kept for the
// exhaustion reason.
type Step struct {
	Calls []Call
	Note  string
}

// Terminate returns a step ending the cycle with call.
func Terminate(call TerminalCall) Step {
	return Step{Calls: []Call{call}}
}

// Gather returns a step running calls.
func Gather(calls ...GatherCall) Step {
	s := Step{Calls: make([]Call, 0, len(calls))}
	for _, c := range calls {
		s.Calls = append(s.Calls, c)
	}
	return s
}

// State is everything a reasoner sees of a cycle. The loop owns it; it is
// discarded when the cycle ends.
type State struct {
	CycleID  string
	Query    Query
	Analysis intent.Analysis
	Facts    Facts

	RoundTrips    int
	MaxRoundTrips int
}

// Remaining returns the gathering calls left before the bound.
func (s *State) Remaining() int {
	return max(s.MaxRoundTrips-s.RoundTrips, 0)
}

// Reasoner is the decision procedure of the loop.
type Reasoner interface {
	Next(ctx context.Context, s *State) (Step, error)
}

// ReasonerFunc adapts a function to Reasoner.
type ReasonerFunc func(ctx context.Context, s *State) (Step, error)

func (f ReasonerFunc) Next(ctx context.Context, s *State) (Step, error) { return f(ctx, s) }

// Config bounds a cycle.
type Config struct {
	// MaxRoundTrips bounds the gathering calls of a cycle.
	MaxRoundTrips int
	// CycleTimeout, when positive, bounds the cycle's wall time on top of
	// the caller's deadline.
	CycleTimeout time.Duration
}

// Outcome is the result of running the loop.
type Outcome struct {
	Record action.Record
	// Err is the sentinel behind a failed or abandoned cycle: ErrLoopExhausted,
	// ErrInvalidStep, auth.ErrUnauthenticated or a conversion error.
	Err        error
	RoundTrips int
	// Terminal is the call that ended the cycle, if any.
	Terminal TerminalCall
}

// Loop alternates between reasoning and gathering until the reasoner
// proposes one terminal call.
type Loop struct {
	reasoner Reasoner
	gatherer *Gatherer
	cfg      Config
	logger   *slog.Logger
}

// NewLoop creates a Loop.
func NewLoop(reasoner Reasoner, gatherer *Gatherer, cfg Config, logger *slog.Logger) *Loop {
	if cfg.MaxRoundTrips <= 0 {
		cfg.MaxRoundTrips = DefaultMaxRoundTrips
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Loop{reasoner: reasoner, gatherer: gatherer, cfg: cfg, logger: logger}
}

// MaxRoundTrips returns the configured bound.
func (l *Loop) MaxRoundTrips() int {
	return l.cfg.MaxRoundTrips
}

// Run drives one cycle. It always returns a record; state is updated in place.
func (l *Loop) Run(ctx context.Context, carrier *auth.Carrier, state *State) Outcome {
	if l.cfg.CycleTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, l.cfg.CycleTimeout)
		defer cancel()
	}
	state.MaxRoundTrips = l.cfg.MaxRoundTrips
	logger := logging.WithCycle(l.logger, state.CycleID)

	var note string
	for {
		if ctx.Err() != nil {
			return l.exhausted(state, "deadline exceeded", note)
		}
		logger.DebugContext(ctx, "reasoning", logging.RoundTrip(state.RoundTrips))

		step, err := l.reasoner.Next(ctx, state)
		if err != nil {
			if ctx.Err() != nil {
				return l.exhausted(state, "deadline exceeded", note)
			}
			if errors.Is(err, auth.ErrUnauthenticated) {
				return l.fail(state, err)
			}
			return l.fail(state, fmt.Errorf("%w: reasoning failed: %v", ErrInvalidStep, err))
		}
		if s := strings.TrimSpace(step.Note); s != "" {
			note = s
		}

		terminal, gathers, err := validateStep(step)
		if err != nil {
			return l.fail(state, err)
		}
		if terminal != nil {
			logger.DebugContext(ctx, "terminated", logging.Tool(terminal.Tool()))
			return l.finish(state, terminal)
		}

		logger.DebugContext(ctx, "gathering", slog.Int("calls", len(gathers)))
		for _, call := range gathers {
			if state.Remaining() == 0 {
				return l.exhausted(state, fmt.Sprintf("no terminal call after %d round trips", state.RoundTrips), note)
			}
			if ctx.Err() != nil {
				return l.exhausted(state, "deadline exceeded", note)
			}

			state.RoundTrips++
			fact, err := l.gatherer.Gather(ctx, carrier, call)
			fact.RoundTrip = state.RoundTrips
			state.Facts = append(state.Facts, fact)
			if err != nil {
				return l.fail(state, err)
			}
		}
	}
}

// validateStep splits a step into its terminal call or its gathering calls.
func validateStep(step Step) (TerminalCall, []GatherCall, error) {
	var (
		terminals []TerminalCall
		gathers   []GatherCall
	)
	for _, c := range step.Calls {
		switch c := c.(type) {
		case TerminalCall:
			terminals = append(terminals, c)
		case GatherCall:
			gathers = append(gathers, c)
		}
	}

	switch {
	case len(step.Calls) == 0:
		return nil, nil, fmt.Errorf("%w: reasoning step proposed 0 terminal calls", ErrInvalidStep)
	case len(terminals) > 1:
		return nil, nil, fmt.Errorf("%w: reasoning step proposed %d terminal calls", ErrInvalidStep, len(terminals))
	case len(terminals) == 1 && len(gathers) > 0:
		return nil, nil, fmt.Errorf("%w: reasoning step mixed a terminal call with %d gathering calls", ErrInvalidStep, len(gathers))
	case len(terminals) == 1:
		return terminals[0], nil, nil
	case len(gathers) != len(step.Calls):
		return nil, nil, fmt.Errorf("%w: reasoning step proposed an unknown call", ErrInvalidStep)
	}
	return nil, gathers, nil
}

// finish converts the terminal call into the cycle's record. A call that
// cannot be converted, or whose record fails validation, yields no-action.
func (l *Loop) finish(state *State, call TerminalCall) Outcome {
	out := Outcome{RoundTrips: state.RoundTrips, Terminal: call}

	rec, err := call.Record(state.Query.Location)
	if err == nil {
		err = action.Validate(rec)
	}
	if err != nil {
		out.Err = err
		out.Record = action.NoAction(err.Error(), false)
		return out
	}

	if rec.Request == action.KindNoAction && state.Facts.AllFailed() {
		rec.Success = false
		if last, ok := state.Facts.Last(); ok {
			rec.Metadata[action.KeyReason] = rec.Reason() + " (lookup failed: " + last.Err + ")"
		}
	}
	out.Record = rec
	return out
}

func (l *Loop) exhausted(state *State, why, note string) Outcome {
	reason := fmt.Sprintf("%s: %s", ErrLoopExhausted, why)
	if note != "" {
		reason += ": " + note
	}
	return Outcome{
		Record:     action.NoAction(reason, false),
		Err:        fmt.Errorf("%w: %s", ErrLoopExhausted, why),
		RoundTrips: state.RoundTrips,
	}
}

func (l *Loop) fail(state *State, err error) Outcome {
	return Outcome{
		Record:     action.NoAction(err.Error(), false),
		Err:        err,
		RoundTrips: state.RoundTrips,
	}
}
