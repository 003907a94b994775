package calendar

import (
	"time"

	calendar "google.golang.org/api/calendar/v3"

	"github.com/teemow/noon/internal/action"
)

// Event is a calendar event as seen by the resolution core. Start and End
// are timezone-aware instants; for all-day events they are midnights and End
// is exclusive.
type Event struct {
	ID          string     `json:"id"`
	CalendarID  string     `json:"calendar_id"`
	Summary     string     `json:"summary,omitempty"`
	Description string     `json:"description,omitempty"`
	Location    string     `json:"location,omitempty"`
	Start       time.Time  `json:"start"`
	End         time.Time  `json:"end"`
	AllDay      bool       `json:"all_day,omitempty"`
	Status      string     `json:"status,omitempty"`
	HTMLLink    string     `json:"html_link,omitempty"`
	Account     string     `json:"account,omitempty"`
	Organizer   string     `json:"organizer,omitempty"`
	Attendees   []Attendee `json:"attendees,omitempty"`
	MeetLink    string     `json:"meet_link,omitempty"`
}

// Ref returns the event's reference, or ErrMalformedReference when the
// event lacks an ID or a calendar ID.
func (e Event) Ref() (action.EventRef, error) {
	return action.NewEventRef(e.ID, e.CalendarID)
}

// Timing returns the event's start and end as an action.Timing.
func (e Event) Timing() action.Timing {
	if e.AllDay {
		return action.Timing{Start: action.OnDate(e.Start), End: action.OnDate(e.End)}
	}
	return action.Timing{Start: action.At(e.Start), End: action.At(e.End)}
}

// Attendee is one guest of an event.
type Attendee struct {
	Email          string `json:"email"`
	DisplayName    string `json:"display_name,omitempty"`
	ResponseStatus string `json:"response_status,omitempty"` // needsAction, declined, tentative, accepted
	Optional       bool   `json:"optional,omitempty"`
}

// Calendar describes one calendar of a linked account.
type Calendar struct {
	ID          string `json:"id"`
	Summary     string `json:"summary"`
	Description string `json:"description,omitempty"`
	TimeZone    string `json:"time_zone,omitempty"`
	Primary     bool   `json:"primary,omitempty"`
	Selected    bool   `json:"selected,omitempty"`
	AccessRole  string `json:"access_role,omitempty"` // owner, writer, reader, freeBusyReader
	Account     string `json:"account,omitempty"`
}

// Visible reports whether the calendar's events belong in the user's
// schedule: the primary calendar and every calendar selected in the UI.
func (c Calendar) Visible() bool {
	return c.Primary || c.Selected
}

// Writable reports whether events can be created on the calendar.
func (c Calendar) Writable() bool {
	return c.AccessRole == "owner" || c.AccessRole == "writer"
}

// toEvent converts a Google Calendar event. Dates without a time are read
// in the event's own time zone when it names one, otherwise in loc.
func toEvent(calendarID, account string, event *calendar.Event, loc *time.Location) Event {
	if event == nil {
		return Event{CalendarID: calendarID, Account: account}
	}

	e := Event{
		ID:          event.Id,
		CalendarID:  calendarID,
		Summary:     event.Summary,
		Description: event.Description,
		Location:    event.Location,
		Status:      event.Status,
		HTMLLink:    event.HtmlLink,
		Account:     account,
	}

	var startAllDay bool
	e.Start, startAllDay = parseEventDateTime(event.Start, loc)
	e.End, _ = parseEventDateTime(event.End, loc)
	e.AllDay = startAllDay

	if event.Organizer != nil {
		e.Organizer = event.Organizer.Email
	}
	for _, att := range event.Attendees {
		if att == nil {
			continue
		}
		e.Attendees = append(e.Attendees, Attendee{
			Email:          att.Email,
			DisplayName:    att.DisplayName,
			ResponseStatus: att.ResponseStatus,
			Optional:       att.Optional,
		})
	}

	if event.ConferenceData != nil {
		for _, ep := range event.ConferenceData.EntryPoints {
			if ep != nil && ep.EntryPointType == "video" {
				e.MeetLink = ep.Uri
				break
			}
		}
	}

	return e
}

func parseEventDateTime(edt *calendar.EventDateTime, loc *time.Location) (time.Time, bool) {
	if edt == nil {
		return time.Time{}, false
	}
	if edt.DateTime != "" {
		t, err := time.Parse(time.RFC3339, edt.DateTime)
		if err != nil {
			return time.Time{}, false
		}
		if loc != nil {
			t = t.In(loc)
		}
		return t, false
	}
	if edt.Date != "" {
		if edt.TimeZone != "" {
			if tz, err := time.LoadLocation(edt.TimeZone); err == nil {
				loc = tz
			}
		}
		if loc == nil {
			loc = time.UTC
		}
		t, err := time.ParseInLocation(action.DateLayout, edt.Date, loc)
		if err != nil {
			return time.Time{}, true
		}
		return t, true
	}
	return time.Time{}, false
}

// toEventDateTime renders an EventTime the way the Calendar API expects it.
func toEventDateTime(t action.EventTime) *calendar.EventDateTime {
	if t.AllDay {
		return &calendar.EventDateTime{Date: t.Time.Format(action.DateLayout)}
	}
	edt := &calendar.EventDateTime{DateTime: t.Time.Format(time.RFC3339)}
	if name := t.Time.Location().String(); name != "Local" && name != "" {
		edt.TimeZone = name
	}
	return edt
}

// toCalendar converts a calendar list entry.
func toCalendar(account string, entry *calendar.CalendarListEntry) Calendar {
	if entry == nil {
		return Calendar{Account: account}
	}
	return Calendar{
		ID:          entry.Id,
		Summary:     entry.Summary,
		Description: entry.Description,
		TimeZone:    entry.TimeZone,
		Primary:     entry.Primary,
		Selected:    entry.Selected,
		AccessRole:  entry.AccessRole,
		Account:     account,
	}
}
