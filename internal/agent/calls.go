package agent

import (
	"fmt"
	"strings"
	"time"

	"github.com/teemow/noon/internal/action"
)

// Tool names. They are the names advertised to language models and the
// names DecodeCall accepts.
const (
	ToolReadSchedule  = "read_schedule"
	ToolSearchEvents  = "search_events"
	ToolReadEvent     = "read_event"
	ToolListCalendars = "list_calendars"

	ToolShowSchedule = "show_schedule"
	ToolShowEvent    = "show_event"
	ToolCreateEvent  = "request_create_event"
	ToolUpdateEvent  = "request_update_event"
	ToolDeleteEvent  = "request_delete_event"
	ToolNoAction     = "do_nothing"
)

// Call is one tool call proposed by a reasoner. The set of implementations
// is closed: every call is either a GatherCall or a TerminalCall.
type Call interface {
	Tool() string
	sealed()
}

// GatherCall reads from the calendar without ending the cycle.
type GatherCall interface {
	Call
	gather()
}

// TerminalCall ends the cycle. Record converts it into the cycle's action
// record without touching the calendar; loc resolves all-day dates.
type TerminalCall interface {
	Call
	Kind() action.Kind
	Record(loc *time.Location) (action.Record, error)
}

// ReadSchedule lists the events in a window.
type ReadSchedule struct {
	Window action.TimeWindow
}

// SearchEvents lists the events in a window matching every keyword.
type SearchEvents struct {
	Keywords []string
	Window   action.TimeWindow
}

// ReadEvent reads the full detail of one event.
type ReadEvent struct {
	Ref action.EventRef
}

// ListCalendars lists the calendars of every linked account.
type ListCalendars struct{}

func (ReadSchedule) Tool() string  { return ToolReadSchedule }
func (SearchEvents) Tool() string  { return ToolSearchEvents }
func (ReadEvent) Tool() string     { return ToolReadEvent }
func (ListCalendars) Tool() string { return ToolListCalendars }

func (ReadSchedule) sealed()  {}
func (SearchEvents) sealed()  {}
func (ReadEvent) sealed()     {}
func (ListCalendars) sealed() {}

func (ReadSchedule) gather()  {}
func (SearchEvents) gather()  {}
func (ReadEvent) gather()     {}
func (ListCalendars) gather() {}

// ShowEvent asks the caller to display one event.
type ShowEvent struct {
	Ref action.EventRef
}

// ShowSchedule asks the caller to display a window of the schedule.
type ShowSchedule struct {
	Window action.TimeWindow
}

// CreateEvent asks the caller to create an event. Exactly one of the
// datetime pair (StartTime, EndTime; RFC 3339) and the date pair
// (StartDate, EndDate; YYYY-MM-DD, end exclusive) must be set.
type CreateEvent struct {
	Summary     string
	CalendarID  string
	Description string
	Location    string
	StartTime   string
	EndTime     string
	StartDate   string
	EndDate     string
}

// NewCreateEvent builds a CreateEvent from a validated timing.
func NewCreateEvent(summary, calendarID string, t action.Timing) CreateEvent {
	c := CreateEvent{Summary: summary, CalendarID: calendarID}
	if t.AllDay() {
		c.StartDate = t.Start.Time.Format(action.DateLayout)
		c.EndDate = t.End.Time.Format(action.DateLayout)
	} else {
		c.StartTime = t.Start.Time.Format(time.RFC3339)
		c.EndTime = t.End.Time.Format(time.RFC3339)
	}
	return c
}

// UpdateEvent asks the caller to change an event. Nil fields are left
// alone; at most one of StartTime and StartDate (and of EndTime and
// EndDate) may be set.
type UpdateEvent struct {
	Ref         action.EventRef
	Summary     *string
	Description *string
	Location    *string
	StartTime   string
	EndTime     string
	StartDate   string
	EndDate     string
}

// DeleteEvent asks the caller to delete an event.
type DeleteEvent struct {
	Ref action.EventRef
}

// NoAction ends the cycle without an action.
type NoAction struct {
	Reason string
}

func (ShowEvent) Tool() string    { return ToolShowEvent }
func (ShowSchedule) Tool() string { return ToolShowSchedule }
func (CreateEvent) Tool() string  { return ToolCreateEvent }
func (UpdateEvent) Tool() string  { return ToolUpdateEvent }
func (DeleteEvent) Tool() string  { return ToolDeleteEvent }
func (NoAction) Tool() string     { return ToolNoAction }

func (ShowEvent) sealed()    {}
func (ShowSchedule) sealed() {}
func (CreateEvent) sealed()  {}
func (UpdateEvent) sealed()  {}
func (DeleteEvent) sealed()  {}
func (NoAction) sealed()     {}

func (ShowEvent) Kind() action.Kind    { return action.KindShowEvent }
func (ShowSchedule) Kind() action.Kind { return action.KindShowSchedule }
func (CreateEvent) Kind() action.Kind  { return action.KindCreateEvent }
func (UpdateEvent) Kind() action.Kind  { return action.KindUpdateEvent }
func (DeleteEvent) Kind() action.Kind  { return action.KindDeleteEvent }
func (NoAction) Kind() action.Kind     { return action.KindNoAction }

func (c ShowEvent) Record(*time.Location) (action.Record, error) {
	return action.ShowEvent(c.Ref)
}

func (c ShowSchedule) Record(*time.Location) (action.Record, error) {
	return action.ShowSchedule(c.Window)
}

func (c CreateEvent) Record(loc *time.Location) (action.Record, error) {
	timing, err := action.NewTiming(c.StartTime, c.EndTime, c.StartDate, c.EndDate, loc)
	if err != nil {
		return action.Record{}, err
	}
	return action.CreateEvent(action.Draft{
		CalendarID:  strings.TrimSpace(c.CalendarID),
		Summary:     strings.TrimSpace(c.Summary),
		Description: c.Description,
		Location:    c.Location,
		Timing:      timing,
	})
}

func (c UpdateEvent) Record(loc *time.Location) (action.Record, error) {
	p := action.Patch{
		Ref:         c.Ref,
		Summary:     c.Summary,
		Description: c.Description,
		Location:    c.Location,
	}
	var err error
	if p.Start, err = optionalTime("start", c.StartTime, c.StartDate, loc); err != nil {
		return action.Record{}, err
	}
	if p.End, err = optionalTime("end", c.EndTime, c.EndDate, loc); err != nil {
		return action.Record{}, err
	}
	return action.UpdateEvent(p)
}

func optionalTime(field, dateTime, date string, loc *time.Location) (*action.EventTime, error) {
	if strings.TrimSpace(dateTime) == "" && strings.TrimSpace(date) == "" {
		return nil, nil
	}
	t, err := action.ParseEventTime(dateTime, date, loc)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", field, err)
	}
	return &t, nil
}

func (c DeleteEvent) Record(*time.Location) (action.Record, error) {
	return action.DeleteEvent(c.Ref)
}

// Record of a NoAction always succeeds; the loop decides the success flag.
func (c NoAction) Record(*time.Location) (action.Record, error) {
	return action.NoAction(c.Reason, true), nil
}
