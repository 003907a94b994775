package agent

import (
	"context"
	"errors"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/teemow/noon/internal/action"
	"github.com/teemow/noon/internal/auth"
	"github.com/teemow/noon/internal/calendar/calendartest"
)

// Step codes for generated reasoners. Codes past the end of a script
// keep gathering, so every script eventually meets the bound.
const (
	codeReadSchedule = iota
	codeTwoGathers
	codeShowSchedule
	codeNoAction
	codeEmptyStep
	codeDelete
	codeUpdateNothing
	numCodes
)

func codeStep(code int) Step {
	ref := action.EventRef{EventID: "dentist-1", CalendarID: "primary"}
	switch code {
	case codeTwoGathers:
		return Gather(ListCalendars{}, SearchEvents{Keywords: []string{"dentist"}, Window: week()})
	case codeShowSchedule:
		return Terminate(ShowSchedule{Window: week()})
	case codeNoAction:
		return Terminate(NoAction{Reason: "nothing to do"})
	case codeEmptyStep:
		return Step{}
	case codeDelete:
		return Terminate(DeleteEvent{Ref: ref})
	case codeUpdateNothing:
		return Terminate(UpdateEvent{Ref: ref})
	}
	return Gather(ReadSchedule{Window: week()})
}

func codeReasoner(codes []int) Reasoner {
	i := 0
	return ReasonerFunc(func(context.Context, *State) (Step, error) {
		code := codeReadSchedule
		if i < len(codes) {
			code = codes[i]
		}
		i++
		return codeStep(code), nil
	})
}

func TestLoop_Properties(t *testing.T) {
	params := gopter.DefaultTestParameters()
	params.MinSuccessfulTests = 200
	properties := gopter.NewProperties(params)

	run := func(codes []int, maxRoundTrips int) (Outcome, *calendartest.Fake) {
		fake := calendartest.New(dentist())
		l := newLoop(codeReasoner(codes), fake, Config{MaxRoundTrips: maxRoundTrips})
		return l.Run(context.Background(), auth.NewCarrier(testCreds()), newState("cancel my dentist appointment")), fake
	}
	codes := gen.SliceOf(gen.IntRange(0, numCodes-1))
	bound := gen.IntRange(1, 8)

	properties.Property("every cycle ends with exactly one valid record", prop.ForAll(
		func(codes []int, maxRoundTrips int) bool {
			out, _ := run(codes, maxRoundTrips)
			return out.Record.Request.Valid() && action.Validate(out.Record) == nil
		},
		codes, bound,
	))

	properties.Property("gathering never exceeds the bound", prop.ForAll(
		func(codes []int, maxRoundTrips int) bool {
			out, fake := run(codes, maxRoundTrips)
			return out.RoundTrips <= maxRoundTrips && fake.CallCount("") == out.RoundTrips
		},
		codes, bound,
	))

	properties.Property("a clean cycle emits the kind of its terminal call", prop.ForAll(
		func(codes []int, maxRoundTrips int) bool {
			out, _ := run(codes, maxRoundTrips)
			if out.Err != nil {
				return out.Record.Request == action.KindNoAction && !out.Record.Success
			}
			return out.Terminal != nil && out.Terminal.Kind() == out.Record.Request
		},
		codes, bound,
	))

	properties.Property("failures are reported as loop errors or invalid steps", prop.ForAll(
		func(codes []int, maxRoundTrips int) bool {
			out, _ := run(codes, maxRoundTrips)
			if out.Err == nil {
				return true
			}
			return errors.Is(out.Err, ErrLoopExhausted) ||
				errors.Is(out.Err, ErrInvalidStep) ||
				errors.Is(out.Err, action.ErrNoChanges)
		},
		codes, bound,
	))

	properties.Property("the port is never written", prop.ForAll(
		func(codes []int, maxRoundTrips int) bool {
			_, fake := run(codes, maxRoundTrips)
			return fake.CallCount(calendartest.OpCreateEvent) == 0 &&
				fake.CallCount(calendartest.OpUpdateEvent) == 0 &&
				fake.CallCount(calendartest.OpDeleteEvent) == 0 &&
				len(fake.Events()) == 1
		},
		codes, bound,
	))

	properties.TestingRun(t)
}
