package action

import (
	"fmt"
	"time"
)

// TimeWindow is a half-open interval of timezone-aware instants.
// Start must be strictly before End.
type TimeWindow struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// NewTimeWindow builds a window and validates it.
func NewTimeWindow(start, end time.Time) (TimeWindow, error) {
	w := TimeWindow{Start: start, End: end}
	if err := w.Validate(); err != nil {
		return TimeWindow{}, err
	}
	return w, nil
}

// Validate enforces start < end and that neither bound is zero.
func (w TimeWindow) Validate() error {
	if w.Start.IsZero() || w.End.IsZero() {
		return fmt.Errorf("%w: start and end are required", ErrInvalidWindow)
	}
	if !w.Start.Before(w.End) {
		return fmt.Errorf("%w: start %s is not before end %s", ErrInvalidWindow,
			w.Start.Format(time.RFC3339), w.End.Format(time.RFC3339))
	}
	return nil
}

// DayWindow covers day from 00:00:00 to 23:59:59 in the day's own location.
func DayWindow(day time.Time) TimeWindow {
	return DaysWindow(day, 1)
}

// DaysWindow covers n whole days starting at the midnight of first.
// The end is the last second of the final day.
func DaysWindow(first time.Time, n int) TimeWindow {
	if n < 1 {
		n = 1
	}
	start := StartOfDay(first)
	return TimeWindow{
		Start: start,
		End:   start.AddDate(0, 0, n).Add(-time.Second),
	}
}

// StartOfDay truncates t to midnight in t's location.
func StartOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// Contains reports whether t falls inside the window, bounds included.
func (w TimeWindow) Contains(t time.Time) bool {
	return !t.Before(w.Start) && !t.After(w.End)
}

// Overlaps reports whether [start, end] intersects the window.
func (w TimeWindow) Overlaps(start, end time.Time) bool {
	if end.IsZero() {
		end = start
	}
	return !end.Before(w.Start) && !start.After(w.End)
}

// Duration returns End - Start.
func (w TimeWindow) Duration() time.Duration {
	return w.End.Sub(w.Start)
}

// In converts both bounds into loc.
func (w TimeWindow) In(loc *time.Location) TimeWindow {
	return TimeWindow{Start: w.Start.In(loc), End: w.End.In(loc)}
}

func (w TimeWindow) String() string {
	return w.Start.Format(time.RFC3339) + "/" + w.End.Format(time.RFC3339)
}
