package agent

import (
	"time"

	"github.com/teemow/noon/internal/calendar"
)

// EventSummary is the minimal view of an event returned by read_schedule
// and search_events.
type EventSummary struct {
	ID         string    `json:"id"`
	Summary    string    `json:"summary,omitempty"`
	Start      time.Time `json:"start"`
	End        time.Time `json:"end"`
	AllDay     bool      `json:"all_day,omitempty"`
	CalendarID string    `json:"calendar_id"`
}

func summarize(e calendar.Event) EventSummary {
	return EventSummary{
		ID:         e.ID,
		Summary:    e.Summary,
		Start:      e.Start,
		End:        e.End,
		AllDay:     e.AllDay,
		CalendarID: e.CalendarID,
	}
}

// EventError is the minimal record read_event returns when the lookup fails.
type EventError struct {
	ID         string `json:"id"`
	CalendarID string `json:"calendar_id"`
	Error      string `json:"error"`
}

// LookupError is what a failed read_schedule, search_events or
// list_calendars call shows in place of its result.
type LookupError struct {
	Error string `json:"error"`
}

// Fact is the result of one gathering call. A failed lookup has Err set
// and an empty result, so "the lookup failed" is never mistaken for
// "nothing matched".
type Fact struct {
	Call      GatherCall
	RoundTrip int

	Events    []EventSummary
	Event     *calendar.Event
	Calendars []calendar.Calendar

	// Dropped counts items the port returned without an ID or calendar ID.
	Dropped int
	// Err is the failure of the lookup, if any.
	Err string

	cause error
}

// Failed reports whether the lookup failed.
func (f Fact) Failed() bool {
	return f.Err != ""
}

// Output returns the tool's result in the shape shown to reasoners.
func (f Fact) Output() any {
	if c, ok := f.Call.(ReadEvent); ok {
		if f.Event == nil {
			return EventError{ID: c.Ref.EventID, CalendarID: c.Ref.CalendarID, Error: f.Err}
		}
		return f.Event
	}
	if f.Failed() {
		return LookupError{Error: f.Err}
	}
	if _, ok := f.Call.(ListCalendars); ok {
		if f.Calendars == nil {
			return []calendar.Calendar{}
		}
		return f.Calendars
	}
	if f.Events == nil {
		return []EventSummary{}
	}
	return f.Events
}

// Facts is the ordered list of facts of one cycle.
type Facts []Fact

// Last returns the most recent fact.
func (fs Facts) Last() (Fact, bool) {
	if len(fs) == 0 {
		return Fact{}, false
	}
	return fs[len(fs)-1], true
}

// AllFailed reports whether there was at least one fact and every one failed.
func (fs Facts) AllFailed() bool {
	if len(fs) == 0 {
		return false
	}
	for _, f := range fs {
		if !f.Failed() {
			return false
		}
	}
	return true
}

// Count returns the number of facts produced by tool.
func (fs Facts) Count(tool string) int {
	n := 0
	for _, f := range fs {
		if f.Call != nil && f.Call.Tool() == tool {
			n++
		}
	}
	return n
}
