package ics

import (
	"strings"
	"time"

	ical "github.com/arran4/golang-ical"
)

// entry is one VEVENT read from a feed, before recurrence expansion.
type entry struct {
	uid         string
	summary     string
	description string
	location    string
	status      string

	start  time.Time
	end    time.Time
	allDay bool

	rrule      string
	exdates    []time.Time
	recurrence *time.Time // RECURRENCE-ID of an overridden instance
}

func (e entry) cancelled() bool {
	return strings.EqualFold(e.status, "CANCELLED")
}

// parseEvent reads a VEVENT. All-day dates are placed in loc; timed values
// keep the zone named by their TZID.
func parseEvent(ve *ical.VEvent, loc *time.Location) (entry, bool) {
	e := entry{uid: ve.Id()}
	if e.uid == "" {
		return e, false
	}

	e.summary = text(ve, ical.ComponentPropertySummary)
	e.description = text(ve, ical.ComponentPropertyDescription)
	e.location = text(ve, ical.ComponentPropertyLocation)
	e.status = text(ve, ical.ComponentPropertyStatus)

	dtstart := ve.GetProperty(ical.ComponentPropertyDtStart)
	if dtstart == nil {
		return e, false
	}
	e.allDay = isDate(dtstart)

	var err error
	if e.allDay {
		var start time.Time
		if start, err = ve.GetAllDayStartAt(); err != nil {
			return e, false
		}
		e.start = inLoc(start, loc)
		if end, err := ve.GetAllDayEndAt(); err == nil {
			e.end = inLoc(end, loc)
		}
		if !e.end.After(e.start) {
			e.end = e.start.AddDate(0, 0, 1)
		}
	} else {
		if e.start, err = ve.GetStartAt(); err != nil {
			return e, false
		}
		if end, err := ve.GetEndAt(); err == nil && end.After(e.start) {
			e.end = end
		} else {
			e.end = e.start
		}
	}

	if p := ve.GetProperty(ical.ComponentPropertyRrule); p != nil {
		e.rrule = strings.TrimSpace(p.Value)
	}
	for _, p := range ve.GetProperties(ical.ComponentPropertyExdate) {
		for _, part := range strings.Split(p.Value, ",") {
			if t, ok := parseValue(strings.TrimSpace(part), p.ICalParameters, e.start.Location()); ok {
				e.exdates = append(e.exdates, t)
			}
		}
	}
	if p := ve.GetProperty(ical.ComponentPropertyRecurrenceId); p != nil {
		if t, ok := parseValue(strings.TrimSpace(p.Value), p.ICalParameters, e.start.Location()); ok {
			e.recurrence = &t
		}
	}
	return e, true
}

func text(ve *ical.VEvent, prop ical.ComponentProperty) string {
	if p := ve.GetProperty(prop); p != nil {
		return ical.FromText(p.Value)
	}
	return ""
}

func isDate(p *ical.IANAProperty) bool {
	if vs := p.ICalParameters["VALUE"]; len(vs) > 0 && strings.EqualFold(vs[0], "DATE") {
		return true
	}
	return !strings.Contains(p.Value, "T")
}

// inLoc keeps the calendar date of t and moves it to midnight in loc.
func inLoc(t time.Time, loc *time.Location) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, loc)
}

// parseValue reads an EXDATE or RECURRENCE-ID value. Values without a zone
// use their TZID parameter, falling back to def.
func parseValue(v string, params map[string][]string, def *time.Location) (time.Time, bool) {
	if v == "" {
		return time.Time{}, false
	}
	loc := def
	if tz := params["TZID"]; len(tz) == 1 {
		if l, err := time.LoadLocation(tz[0]); err == nil {
			loc = l
		}
	}

	var (
		t   time.Time
		err error
	)
	switch {
	case strings.HasSuffix(v, "Z"):
		t, err = time.Parse("20060102T150405Z", v)
	case strings.Contains(v, "T"):
		t, err = time.ParseInLocation("20060102T150405", v, loc)
	default:
		t, err = time.ParseInLocation("20060102", v, loc)
	}
	return t, err == nil
}
