package reasoner

import (
	"context"
	"fmt"
	"strings"

	"github.com/teemow/noon/internal/action"
	"github.com/teemow/noon/internal/agent"
	"github.com/teemow/noon/internal/intent"
)

// DefaultCalendarID is the calendar new events go to unless the request
// names another one.
const DefaultCalendarID = "primary"

// Search horizons, in days, for requests that name no date.
const (
	lookaheadDays  = 14
	widenBackDays  = 30
	widenAheadDays = 180
)

// Rules is a deterministic reasoner over the lexical analysis of the query
// and the facts gathered so far. It needs no network access beyond the
// calendar port. It keeps no state between calls.
type Rules struct{}

var _ agent.Reasoner = (*Rules)(nil)

// NewRules creates a Rules reasoner.
func NewRules() *Rules {
	return &Rules{}
}

// Next implements agent.Reasoner.
func (r *Rules) Next(_ context.Context, s *agent.State) (agent.Step, error) {
	a := s.Analysis
	switch kindFor(a) {
	case action.KindShowSchedule:
		return agent.Terminate(agent.ShowSchedule{Window: a.Window()}), nil
	case action.KindCreateEvent:
		return r.create(s), nil
	case action.KindShowEvent:
		return r.target(s, a, action.KindShowEvent, func(ev agent.EventSummary) agent.TerminalCall {
			return agent.ShowEvent{Ref: refOf(ev)}
		}), nil
	case action.KindDeleteEvent:
		return r.target(s, a, action.KindDeleteEvent, func(ev agent.EventSummary) agent.TerminalCall {
			return agent.DeleteEvent{Ref: refOf(ev)}
		}), nil
	case action.KindUpdateEvent:
		return r.update(s), nil
	}
	return agent.Terminate(agent.NoAction{Reason: "could not tell what to do with the request"}), nil
}

// kindFor picks the kind to work towards. Without a verb, a request
// mentioning a time reads as a schedule question and anything else as a
// question about one event.
func kindFor(a intent.Analysis) action.Kind {
	switch a.Hint {
	case action.KindShowEvent:
		if len(lookupTerms(a)) == 0 && a.Start == nil {
			return action.KindShowSchedule
		}
		return a.Hint
	case "":
		if a.HasTime() || len(lookupTerms(a)) == 0 {
			return action.KindShowSchedule
		}
		return action.KindShowEvent
	}
	return a.Hint
}

// genericNouns never identify an event on their own.
var genericNouns = map[string]bool{
	"calendar": true, "calendars": true, "schedule": true, "agenda": true,
	"event": true, "events": true, "busy": true, "free": true,
	"available": true, "availability": true, "booked": true, "plans": true,
}

// lookupTerms are the words used to search for the request's event.
func lookupTerms(a intent.Analysis) []string {
	if len(a.Keywords) > 0 {
		return a.Keywords
	}
	var out []string
	for _, t := range a.Terms {
		if !genericNouns[t] {
			out = append(out, t)
		}
	}
	return out
}

func refOf(ev agent.EventSummary) action.EventRef {
	return action.EventRef{EventID: ev.ID, CalendarID: ev.CalendarID}
}

func noAction(format string, args ...any) agent.Step {
	return agent.Terminate(agent.NoAction{Reason: fmt.Sprintf(format, args...)})
}

// create builds a create-event call, listing calendars first when the
// request names one ("add gym to my work calendar").
func (r *Rules) create(s *agent.State) agent.Step {
	a := s.Analysis
	title := a.Title
	if title == "" {
		return noAction("the request does not say what the new event is")
	}
	timing, err := a.Timing()
	if err != nil {
		return noAction("the request does not say when %q should happen", title)
	}

	calendarID := DefaultCalendarID
	if name := calendarName(a.Normalized); name != "" {
		fact, ok := lastOf[agent.ListCalendars](s.Facts)
		if !ok {
			if s.Remaining() > 0 {
				return agent.Gather(agent.ListCalendars{})
			}
		} else if !fact.Failed() {
			for _, c := range fact.Calendars {
				if c.Writable() && strings.Contains(strings.ToLower(c.Summary), name) {
					calendarID = c.ID
					break
				}
			}
		}
	}
	return agent.Terminate(agent.NewCreateEvent(title, calendarID, timing))
}

// calendarName returns the word naming a calendar in "... my work
// calendar", or "" when the request names none.
func calendarName(normalized string) string {
	toks := strings.Fields(normalized)
	for i := 1; i < len(toks); i++ {
		if toks[i] != "calendar" {
			continue
		}
		switch prev := toks[i-1]; prev {
		case "my", "the", "a", "your", "our", "to", "on", "in":
		default:
			return prev
		}
	}
	return ""
}

// lastOf returns the most recent fact produced by a call of type T.
func lastOf[T agent.GatherCall](facts agent.Facts) (agent.Fact, bool) {
	for i := len(facts) - 1; i >= 0; i-- {
		if _, ok := facts[i].Call.(T); ok {
			return facts[i], true
		}
	}
	return agent.Fact{}, false
}
