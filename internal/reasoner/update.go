package reasoner

import (
	"strings"
	"time"

	"github.com/teemow/noon/internal/action"
	"github.com/teemow/noon/internal/agent"
	"github.com/teemow/noon/internal/intent"
)

// update splits "move my dentist appointment to 4pm" into the event to
// find and the change to make, then locates the event.
func (r *Rules) update(s *agent.State) agent.Step {
	target, change, ok := intent.Split(s.Query.Text)
	ta := s.Analysis
	if ok {
		ta = intent.Analyze(target, s.Query.Now)
	}
	title := rawChange(s.Query.Text)
	return r.target(s, ta, action.KindUpdateEvent, func(ev agent.EventSummary) agent.TerminalCall {
		return changeOf(ev, change, title, s.Query.Now)
	})
}

// changeOf turns the change text into an update of ev. A change naming a
// day or a clock time moves the event and keeps its duration; anything
// else renames it.
func changeOf(ev agent.EventSummary, change, title string, now time.Time) agent.UpdateEvent {
	u := agent.UpdateEvent{Ref: refOf(ev)}
	if strings.TrimSpace(change) == "" {
		return u
	}

	ca := intent.Analyze(change, now)
	if !ca.HasTime() {
		if title != "" {
			u.Summary = &title
		}
		return u
	}

	loc := now.Location()
	start := ev.Start.In(loc)
	if ev.AllDay && ca.Start == nil {
		days := max(int(ev.End.Sub(ev.Start).Round(24*time.Hour)/(24*time.Hour)), 1)
		u.StartDate = ca.Day.Format(action.DateLayout)
		u.EndDate = ca.Day.AddDate(0, 0, days).Format(action.DateLayout)
		return u
	}

	day := action.StartOfDay(start)
	if ca.HasDay {
		day = ca.Day
	}
	clock := intent.Clock{Hour: start.Hour(), Minute: start.Minute()}
	if ca.Start != nil {
		clock = *ca.Start
	}
	newStart := clock.On(day)

	duration := ev.End.Sub(ev.Start)
	if ev.AllDay || duration <= 0 {
		duration = intent.DefaultDuration
	}
	newEnd := newStart.Add(duration)
	switch {
	case ca.End != nil:
		newEnd = ca.End.On(newStart)
		if !newEnd.After(newStart) {
			newEnd = newEnd.AddDate(0, 0, 1)
		}
	case ca.Duration > 0:
		newEnd = newStart.Add(ca.Duration)
	}
	u.StartTime = newStart.Format(time.RFC3339)
	u.EndTime = newEnd.Format(time.RFC3339)
	return u
}

// rawChange returns the text after the first " to " with its original
// casing, for use as a new title.
func rawChange(q string) string {
	padded := " " + strings.TrimSpace(q) + " "
	for i := 0; i+4 <= len(padded); i++ {
		if strings.EqualFold(padded[i:i+4], " to ") {
			return strings.Trim(strings.TrimSpace(padded[i+4:]), `.!?"'`)
		}
	}
	return ""
}
