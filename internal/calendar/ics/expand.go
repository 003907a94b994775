package ics

import (
	"log/slog"
	"time"

	"github.com/teambition/rrule-go"

	"github.com/teemow/noon/internal/action"
	"github.com/teemow/noon/internal/calendar"
)

// maxOccurrences caps the instances expanded from one RRULE per call.
const maxOccurrences = 1000

// instanceLayout formats the start of a recurring instance into its ID,
// the same way Google suffixes instance IDs.
const instanceLayout = "20060102T150405Z"

// instanceID returns the ID of the occurrence of uid starting at start.
func instanceID(uid string, start time.Time) string {
	return uid + "_" + start.UTC().Format(instanceLayout)
}

// expand turns the entries of one feed into the events overlapping window.
// Recurring entries are expanded with their EXDATEs removed; overrides
// (RECURRENCE-ID) replace the instance they name.
func expand(logger *slog.Logger, calendarID string, entries []entry, window action.TimeWindow) []calendar.Event {
	loc := window.Start.Location()
	overrides := make(map[string]entry)
	for _, e := range entries {
		if e.recurrence != nil {
			overrides[instanceID(e.uid, *e.recurrence)] = e
		}
	}

	var out []calendar.Event
	add := func(id string, e entry, start, end time.Time) {
		if e.cancelled() || !overlaps(start, end, window) {
			return
		}
		out = append(out, toEvent(calendarID, id, e, start.In(loc), end.In(loc)))
	}

	for _, e := range entries {
		if e.recurrence != nil {
			continue
		}
		if e.rrule == "" {
			add(e.uid, e, e.start, e.end)
			continue
		}

		starts, err := occurrences(e, window)
		if err != nil {
			logger.Warn("skipping event with invalid recurrence rule",
				slog.String("uid", e.uid),
				slog.String("rrule", e.rrule),
				slog.String("error", err.Error()))
			continue
		}
		duration := e.end.Sub(e.start)
		for _, start := range starts {
			id := instanceID(e.uid, start)
			if o, ok := overrides[id]; ok {
				add(id, o, o.start, o.end)
				continue
			}
			add(id, e, start, start.Add(duration))
		}
	}
	return out
}

// occurrences returns the starts of e's instances that can overlap window.
func occurrences(e entry, window action.TimeWindow) ([]time.Time, error) {
	opt, err := rrule.StrToROptionInLocation(e.rrule, e.start.Location())
	if err != nil {
		return nil, err
	}
	opt.Dtstart = e.start
	r, err := rrule.NewRRule(*opt)
	if err != nil {
		return nil, err
	}

	var set rrule.Set
	set.RRule(r)
	for _, ex := range e.exdates {
		set.ExDate(ex.In(e.start.Location()))
	}

	// Instances that started before the window may still run into it.
	from := window.Start.Add(-e.end.Sub(e.start)).In(e.start.Location())
	starts := set.Between(from, window.End.In(e.start.Location()), true)
	if len(starts) > maxOccurrences {
		starts = starts[:maxOccurrences]
	}
	return starts, nil
}

// overlaps treats end as exclusive; zero-length events overlap when their
// start lies in the window.
func overlaps(start, end time.Time, w action.TimeWindow) bool {
	if !end.After(start) {
		return w.Contains(start)
	}
	return !start.After(w.End) && end.After(w.Start)
}

func toEvent(calendarID, id string, e entry, start, end time.Time) calendar.Event {
	if e.allDay {
		start, end = inLoc(start, start.Location()), inLoc(end, end.Location())
	}
	return calendar.Event{
		ID:          id,
		CalendarID:  calendarID,
		Summary:     e.summary,
		Description: e.description,
		Location:    e.location,
		Start:       start,
		End:         end,
		AllDay:      e.allDay,
		Status:      e.status,
		Account:     Account,
	}
}
