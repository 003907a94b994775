package reasoner

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/teemow/noon/internal/action"
	"github.com/teemow/noon/internal/agent"
	"github.com/teemow/noon/internal/calendar"
	"github.com/teemow/noon/internal/intent"
)

// lookup describes how to find the one event a request is about.
type lookup struct {
	terms  []string
	detail []string
	clock  *intent.Clock
	window action.TimeWindow
	// dated is set when the request pins the day, so widening the window
	// would only find the wrong event.
	dated bool
	now   time.Time
}

func newLookup(a intent.Analysis) lookup {
	l := lookup{terms: lookupTerms(a), clock: a.Start, now: a.Now}
	for _, t := range a.Terms {
		if !genericNouns[t] {
			l.detail = append(l.detail, t)
		}
	}
	switch {
	case a.HasDay:
		l.window, l.dated = a.Window(), true
	case a.Start != nil && len(l.terms) == 0:
		l.window, l.dated = action.DayWindow(a.Now), true
	default:
		l.window = action.DaysWindow(a.Now, lookaheadDays)
	}
	return l
}

func (l lookup) empty() bool {
	return len(l.terms) == 0 && l.clock == nil
}

func (l lookup) String() string {
	switch {
	case len(l.terms) > 0:
		return fmt.Sprintf("%q", strings.Join(l.terms, " "))
	case l.clock != nil:
		return "an event at " + l.clock.String()
	}
	return "the request"
}

func (l lookup) call(w action.TimeWindow) agent.GatherCall {
	if len(l.terms) == 0 {
		return agent.ReadSchedule{Window: w}
	}
	return agent.SearchEvents{Keywords: l.terms, Window: w}
}

// wide returns the lookup over the long horizon used after a miss.
func (l lookup) wide() (agent.GatherCall, bool) {
	if l.dated {
		return nil, false
	}
	start := action.StartOfDay(l.now).AddDate(0, 0, -widenBackDays)
	return l.call(action.DaysWindow(start, widenBackDays+widenAheadDays)), true
}

// filter keeps the events starting at the requested clock time, if any.
func (l lookup) filter(events []agent.EventSummary) []agent.EventSummary {
	if l.clock == nil {
		return events
	}
	loc := l.now.Location()
	var out []agent.EventSummary
	for _, ev := range events {
		if !ev.AllDay && l.clock.Matches(ev.Start.In(loc)) {
			out = append(out, ev)
		}
	}
	return out
}

// narrow reduces several candidates without another lookup: first to the
// ones whose title carries every term, then, for an undated question about a
// recurring title, to the next occurrence. Writes never pick an occurrence
// on their own.
func (l lookup) narrow(cands []agent.EventSummary, kind action.Kind) []agent.EventSummary {
	if len(l.detail) > 0 {
		var titled []agent.EventSummary
		for _, ev := range cands {
			if containsAll(ev.Summary, l.detail) {
				titled = append(titled, ev)
			}
		}
		if len(titled) > 0 {
			cands = titled
		}
	}
	if len(cands) < 2 || l.dated || kind.Mutates() || !sameTitle(cands) {
		return cands
	}

	sorted := byStart(cands)
	for _, ev := range sorted {
		if !ev.End.Before(l.now) {
			return []agent.EventSummary{ev}
		}
	}
	return sorted[len(sorted)-1:]
}

// confirms reports whether the full text of ev mentions every term.
func (l lookup) confirms(ev *calendar.Event) bool {
	if ev == nil {
		return false
	}
	return containsAll(ev.Summary+" "+ev.Description+" "+ev.Location, l.detail)
}

func containsAll(text string, words []string) bool {
	text = intent.Normalize(text)
	for _, w := range words {
		if !strings.Contains(text, w) {
			return false
		}
	}
	return true
}

func byStart(events []agent.EventSummary) []agent.EventSummary {
	sorted := append([]agent.EventSummary(nil), events...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Start.Before(sorted[j].Start) })
	return sorted
}

func sameTitle(events []agent.EventSummary) bool {
	for _, ev := range events[1:] {
		if !strings.EqualFold(strings.TrimSpace(ev.Summary), strings.TrimSpace(events[0].Summary)) {
			return false
		}
	}
	return true
}

// target finds the event a request of the given kind is about and ends the
// cycle with build(event). It widens the search after a miss and reads
// candidates one at a time when several remain.
func (r *Rules) target(s *agent.State, a intent.Analysis, kind action.Kind, build func(agent.EventSummary) agent.TerminalCall) agent.Step {
	l := newLookup(a)
	if l.empty() {
		return noAction("could not tell which event the request is about")
	}

	searches := searchFacts(s.Facts)
	if len(searches) == 0 {
		return gather(s, l, l.call(l.window))
	}
	last := searches[len(searches)-1]
	if last.Failed() {
		return noAction("could not look up %s: %s", l, last.Err)
	}

	cands := l.filter(last.Events)
	if len(cands) == 0 {
		if call, ok := l.wide(); ok && len(searches) == 1 {
			return gather(s, l, call)
		}
		return noAction("no matching event found for %s", l)
	}
	if len(cands) > 1 {
		cands = l.narrow(cands, kind)
	}
	if len(cands) == 1 {
		return agent.Terminate(build(cands[0]))
	}
	return r.readCandidates(s, l, cands, build)
}

// readCandidates reads the remaining candidates in start order and keeps
// the ones whose full text mentions every term of the request. It stops as
// soon as the outcome is settled or no round trip is left.
func (r *Rules) readCandidates(s *agent.State, l lookup, cands []agent.EventSummary, build func(agent.EventSummary) agent.TerminalCall) agent.Step {
	read := make(map[action.EventRef]agent.Fact)
	for _, f := range s.Facts {
		if c, ok := f.Call.(agent.ReadEvent); ok {
			read[c.Ref] = f
		}
	}

	var confirmed []agent.EventSummary
	unread := false
	for _, c := range byStart(cands) {
		f, ok := read[refOf(c)]
		if !ok {
			if s.Remaining() == 0 {
				unread = true
				break
			}
			return gather(s, l, agent.ReadEvent{Ref: refOf(c)})
		}
		if !f.Failed() && l.confirms(f.Event) {
			confirmed = append(confirmed, c)
			if len(confirmed) > 1 {
				break
			}
		}
	}
	if len(confirmed) == 1 && !unread {
		return agent.Terminate(build(confirmed[0]))
	}
	return ambiguous(l, cands)
}

// gather proposes call, or gives up with an ambiguity when no round trip
// is left.
func gather(s *agent.State, l lookup, call agent.GatherCall) agent.Step {
	if s.Remaining() == 0 {
		return noAction("%s: ran out of lookups while looking for %s", agent.ErrAmbiguousIntent, l)
	}
	return agent.Step{
		Calls: []agent.Call{call},
		Note:  "looking for " + l.String(),
	}
}

func ambiguous(l lookup, cands []agent.EventSummary) agent.Step {
	loc := l.now.Location()
	names := make([]string, 0, len(cands))
	for i, ev := range cands {
		if i == 5 {
			names = append(names, fmt.Sprintf("and %d more", len(cands)-i))
			break
		}
		layout := "Mon Jan 2 15:04"
		if ev.AllDay {
			layout = "Mon Jan 2"
		}
		names = append(names, fmt.Sprintf("%q on %s", ev.Summary, ev.Start.In(loc).Format(layout)))
	}
	return noAction("%s: %d events match %s: %s", agent.ErrAmbiguousIntent, len(cands), l, strings.Join(names, ", "))
}

func searchFacts(facts agent.Facts) agent.Facts {
	var out agent.Facts
	for _, f := range facts {
		switch f.Call.(type) {
		case agent.SearchEvents, agent.ReadSchedule:
			out = append(out, f)
		}
	}
	return out
}
