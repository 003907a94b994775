// Package calendartest provides an in-memory calendar port for tests.
package calendartest

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/teemow/noon/internal/action"
	"github.com/teemow/noon/internal/auth"
	"github.com/teemow/noon/internal/calendar"
)

// Op names a port method.
type Op string

const (
	OpReadSchedule  Op = "read_schedule"
	OpSearchEvents  Op = "search_events"
	OpReadEvent     Op = "read_event"
	OpListCalendars Op = "list_calendars"
	OpCreateEvent   Op = "create_event"
	OpUpdateEvent   Op = "update_event"
	OpDeleteEvent   Op = "delete_event"
)

// Call is one recorded port invocation.
type Call struct {
	Op       Op
	Keywords []string
	Window   action.TimeWindow
	Ref      action.EventRef
}

// Fake is an in-memory calendar.Service. The zero value is an empty
// calendar; it is safe for concurrent use.
type Fake struct {
	// Delay is slept before every call without watching the context, so
	// tests can model a port that ignores cancellation.
	Delay time.Duration

	mu        sync.Mutex
	events    []calendar.Event
	calendars []calendar.Calendar
	errs      map[Op]error
	calls     []Call
	nextID    int
}

var _ calendar.Service = (*Fake)(nil)

// New returns a Fake holding events.
func New(events ...calendar.Event) *Fake {
	f := &Fake{}
	f.events = append(f.events, events...)
	return f
}

// WithCalendars sets the calendars returned by ListCalendars.
func (f *Fake) WithCalendars(calendars ...calendar.Calendar) *Fake {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calendars = append(f.calendars[:0], calendars...)
	return f
}

// Fail makes every later call of op return err. A nil err clears it.
func (f *Fake) Fail(op Op, err error) *Fake {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.errs == nil {
		f.errs = make(map[Op]error)
	}
	if err == nil {
		delete(f.errs, op)
	} else {
		f.errs[op] = err
	}
	return f
}

// Calls returns the recorded invocations in order.
func (f *Fake) Calls() []Call {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Call(nil), f.calls...)
}

// CallCount returns how often op was invoked. An empty op counts every call.
func (f *Fake) CallCount(op Op) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		if op == "" || c.Op == op {
			n++
		}
	}
	return n
}

// Events returns a snapshot of the stored events.
func (f *Fake) Events() []calendar.Event {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]calendar.Event(nil), f.events...)
}

// begin records the call and returns the injected error, if any. The
// lock is not held while sleeping.
func (f *Fake) begin(creds *auth.Context, call Call) error {
	f.mu.Lock()
	f.calls = append(f.calls, call)
	injected := f.errs[call.Op]
	delay := f.Delay
	f.mu.Unlock()

	if delay > 0 {
		time.Sleep(delay)
	}
	if err := creds.Validate(); err != nil {
		return err
	}
	return injected
}

func overlaps(e calendar.Event, w action.TimeWindow) bool {
	if !e.End.After(e.Start) {
		return w.Contains(e.Start)
	}
	// End is exclusive.
	return !e.Start.After(w.End) && e.End.After(w.Start)
}

func (f *Fake) ReadSchedule(_ context.Context, creds *auth.Context, window action.TimeWindow) ([]calendar.Event, error) {
	if err := f.begin(creds, Call{Op: OpReadSchedule, Window: window}); err != nil {
		return nil, err
	}
	if err := window.Validate(); err != nil {
		return nil, err
	}
	return f.filter(window, nil), nil
}

func (f *Fake) SearchEvents(_ context.Context, creds *auth.Context, keywords []string, window action.TimeWindow) ([]calendar.Event, error) {
	call := Call{Op: OpSearchEvents, Keywords: append([]string(nil), keywords...), Window: window}
	if err := f.begin(creds, call); err != nil {
		return nil, err
	}
	if err := window.Validate(); err != nil {
		return nil, err
	}
	return f.filter(window, keywords), nil
}

func (f *Fake) filter(window action.TimeWindow, keywords []string) []calendar.Event {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]calendar.Event, 0, len(f.events))
	for _, e := range f.events {
		if overlaps(e, window) && calendar.MatchesKeywords(e, keywords) {
			out = append(out, e)
		}
	}
	return calendar.SortEvents(out)
}

func (f *Fake) ReadEvent(_ context.Context, creds *auth.Context, ref action.EventRef) (*calendar.Event, error) {
	if err := f.begin(creds, Call{Op: OpReadEvent, Ref: ref}); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if i := f.index(ref); i >= 0 {
		e := f.events[i]
		return &e, nil
	}
	return nil, fmt.Errorf("event %s: %w", ref, calendar.ErrNotFound)
}

func (f *Fake) ListCalendars(_ context.Context, creds *auth.Context) ([]calendar.Calendar, error) {
	if err := f.begin(creds, Call{Op: OpListCalendars}); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]calendar.Calendar{}, f.calendars...), nil
}

func (f *Fake) CreateEvent(_ context.Context, creds *auth.Context, draft action.Draft) (*calendar.Event, error) {
	if err := f.begin(creds, Call{Op: OpCreateEvent}); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	e := calendar.Event{
		ID:          fmt.Sprintf("evt-%d", f.nextID),
		CalendarID:  draft.CalendarID,
		Summary:     draft.Summary,
		Description: draft.Description,
		Location:    draft.Location,
		Start:       draft.Timing.Start.Time,
		End:         draft.Timing.End.Time,
		AllDay:      draft.Timing.AllDay(),
	}
	f.events = append(f.events, e)
	return &e, nil
}

func (f *Fake) UpdateEvent(_ context.Context, creds *auth.Context, patch action.Patch) (*calendar.Event, error) {
	if err := f.begin(creds, Call{Op: OpUpdateEvent, Ref: patch.Ref}); err != nil {
		return nil, err
	}
	if err := patch.Validate(); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	i := f.index(patch.Ref)
	if i < 0 {
		return nil, fmt.Errorf("event %s: %w", patch.Ref, calendar.ErrNotFound)
	}
	e := &f.events[i]
	if patch.Summary != nil {
		e.Summary = *patch.Summary
	}
	if patch.Description != nil {
		e.Description = *patch.Description
	}
	if patch.Location != nil {
		e.Location = *patch.Location
	}
	if patch.Start != nil {
		// Moving the start keeps the duration unless the end moves too.
		d := e.End.Sub(e.Start)
		e.Start, e.AllDay = patch.Start.Time, patch.Start.AllDay
		if patch.End == nil {
			e.End = e.Start.Add(d)
		}
	}
	if patch.End != nil {
		e.End = patch.End.Time
	}
	out := *e
	return &out, nil
}

func (f *Fake) DeleteEvent(_ context.Context, creds *auth.Context, ref action.EventRef) error {
	if err := f.begin(creds, Call{Op: OpDeleteEvent, Ref: ref}); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	i := f.index(ref)
	if i < 0 {
		return fmt.Errorf("event %s: %w", ref, calendar.ErrNotFound)
	}
	f.events = append(f.events[:i], f.events[i+1:]...)
	return nil
}

func (f *Fake) index(ref action.EventRef) int {
	for i, e := range f.events {
		if e.ID == ref.EventID && strings.EqualFold(e.CalendarID, ref.CalendarID) {
			return i
		}
	}
	return -1
}
