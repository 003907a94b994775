package action

import (
	"fmt"
	"strings"
	"time"
)

// DateLayout is the wire layout of all-day dates.
const DateLayout = "2006-01-02"

// Wire keys of an event time object.
const (
	KeyDateTime = "dateTime"
	KeyDate     = "date"
)

// EventTime is either a full timezone-aware instant or an all-day date.
type EventTime struct {
	Time   time.Time
	AllDay bool
}

// At returns a timed EventTime.
func At(t time.Time) EventTime {
	return EventTime{Time: t}
}

// OnDate returns an all-day EventTime for the calendar date of t.
func OnDate(t time.Time) EventTime {
	return EventTime{Time: StartOfDay(t), AllDay: true}
}

// ParseEventTime parses exactly one of dateTime (RFC 3339) or date
// (YYYY-MM-DD, interpreted in loc).
func ParseEventTime(dateTime, date string, loc *time.Location) (EventTime, error) {
	dateTime = strings.TrimSpace(dateTime)
	date = strings.TrimSpace(date)
	if loc == nil {
		loc = time.UTC
	}

	switch {
	case dateTime != "" && date != "":
		return EventTime{}, fmt.Errorf("%w: both dateTime and date are set", ErrInvalidTiming)
	case dateTime != "":
		t, err := time.Parse(time.RFC3339, dateTime)
		if err != nil {
			return EventTime{}, fmt.Errorf("%w: dateTime %q: %v", ErrInvalidTiming, dateTime, err)
		}
		return At(t), nil
	case date != "":
		t, err := time.ParseInLocation(DateLayout, date, loc)
		if err != nil {
			return EventTime{}, fmt.Errorf("%w: date %q: %v", ErrInvalidTiming, date, err)
		}
		return EventTime{Time: t, AllDay: true}, nil
	}
	return EventTime{}, fmt.Errorf("%w: neither dateTime nor date is set", ErrInvalidTiming)
}

// Wire renders the time as {"dateTime": ...} or {"date": ...}.
func (e EventTime) Wire() map[string]any {
	if e.AllDay {
		return map[string]any{KeyDate: e.Time.Format(DateLayout)}
	}
	return map[string]any{KeyDateTime: e.Time.Format(time.RFC3339)}
}

// eventTimeFromWire accepts the decoded form of Wire, as either
// map[string]any (from JSON) or map[string]string.
func eventTimeFromWire(v any, loc *time.Location) (EventTime, error) {
	var dateTime, date string
	switch m := v.(type) {
	case map[string]any:
		dateTime, _ = m[KeyDateTime].(string)
		date, _ = m[KeyDate].(string)
	case map[string]string:
		dateTime, date = m[KeyDateTime], m[KeyDate]
	case EventTime:
		return m, nil
	default:
		return EventTime{}, fmt.Errorf("%w: unexpected time value %T", ErrInvalidTiming, v)
	}
	return ParseEventTime(dateTime, date, loc)
}

// Timing is a start/end pair of the same flavour: both timed or both all-day.
// For all-day timings End is exclusive, matching the calendar provider.
type Timing struct {
	Start EventTime
	End   EventTime
}

// NewTiming requires exactly one of the datetime pair or the date pair.
func NewTiming(startDateTime, endDateTime, startDate, endDate string, loc *time.Location) (Timing, error) {
	hasDateTime := strings.TrimSpace(startDateTime) != "" || strings.TrimSpace(endDateTime) != ""
	hasDate := strings.TrimSpace(startDate) != "" || strings.TrimSpace(endDate) != ""

	switch {
	case hasDateTime && hasDate:
		return Timing{}, fmt.Errorf("%w: both a datetime pair and a date pair are set", ErrInvalidTiming)
	case !hasDateTime && !hasDate:
		return Timing{}, fmt.Errorf("%w: neither a datetime pair nor a date pair is set", ErrInvalidTiming)
	}

	var (
		start, end EventTime
		err        error
	)
	if hasDateTime {
		if start, err = ParseEventTime(startDateTime, "", loc); err != nil {
			return Timing{}, err
		}
		if end, err = ParseEventTime(endDateTime, "", loc); err != nil {
			return Timing{}, err
		}
	} else {
		if start, err = ParseEventTime("", startDate, loc); err != nil {
			return Timing{}, err
		}
		if end, err = ParseEventTime("", endDate, loc); err != nil {
			return Timing{}, err
		}
	}

	t := Timing{Start: start, End: end}
	return t, t.Validate()
}

// TimedPair builds a timed Timing.
func TimedPair(start, end time.Time) (Timing, error) {
	t := Timing{Start: At(start), End: At(end)}
	return t, t.Validate()
}

// DatePair builds an all-day Timing. end is exclusive.
func DatePair(start, end time.Time) (Timing, error) {
	t := Timing{Start: OnDate(start), End: OnDate(end)}
	return t, t.Validate()
}

// Validate checks that both ends are the same flavour and start < end.
func (t Timing) Validate() error {
	if t.Start.Time.IsZero() || t.End.Time.IsZero() {
		return fmt.Errorf("%w: start and end are required", ErrInvalidTiming)
	}
	if t.Start.AllDay != t.End.AllDay {
		return fmt.Errorf("%w: start and end mix a datetime and a date", ErrInvalidTiming)
	}
	if !t.Start.Time.Before(t.End.Time) {
		return fmt.Errorf("%w: start is not before end", ErrInvalidTiming)
	}
	return nil
}

// AllDay reports whether the timing is a date pair.
func (t Timing) AllDay() bool {
	return t.Start.AllDay
}

// Duration returns End - Start.
func (t Timing) Duration() time.Duration {
	return t.End.Time.Sub(t.Start.Time)
}
