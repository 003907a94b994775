package calendar

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
	gcal "google.golang.org/api/calendar/v3"
	"google.golang.org/api/googleapi"

	"github.com/teemow/noon/internal/action"
	"github.com/teemow/noon/internal/auth"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want error
	}{
		{"not found", &googleapi.Error{Code: http.StatusNotFound}, ErrNotFound},
		{"gone", &googleapi.Error{Code: http.StatusGone}, ErrNotFound},
		{"unauthorized", &googleapi.Error{Code: http.StatusUnauthorized}, auth.ErrUnauthenticated},
		{"rate limited", &googleapi.Error{Code: http.StatusTooManyRequests}, ErrUpstreamUnavailable},
		{"server error", &googleapi.Error{Code: http.StatusBadGateway}, ErrUpstreamUnavailable},
		{"refresh rejected", &oauth2.RetrieveError{}, auth.ErrUnauthenticated},
		{"transport", errors.New("connection reset by peer"), ErrUpstreamUnavailable},
		{"deadline", context.DeadlineExceeded, context.DeadlineExceeded},
		{"wrapped not found", fmt.Errorf("lookup: %w", ErrNotFound), ErrNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := classify("failed to get event", tt.err)
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.want)
			assert.Contains(t, err.Error(), "failed to get event")
		})
	}

	assert.NoError(t, classify("noop", nil))
}

func TestClassify_ForbiddenIsNotUpstream(t *testing.T) {
	err := classify("failed to create event", &googleapi.Error{Code: http.StatusForbidden})
	assert.NotErrorIs(t, err, ErrUpstreamUnavailable)
	assert.NotErrorIs(t, err, ErrNotFound)
}

func TestParseEventDateTime(t *testing.T) {
	berlin, err := time.LoadLocation("Europe/Berlin")
	require.NoError(t, err)
	loc := la(t)

	tests := []struct {
		name       string
		edt        *gcal.EventDateTime
		loc        *time.Location
		want       time.Time
		wantAllDay bool
	}{
		{
			name: "nil",
		},
		{
			name: "datetime converted to loc",
			edt:  &gcal.EventDateTime{DateTime: "2026-10-20T18:00:00Z"},
			loc:  loc,
			want: time.Date(2026, 10, 20, 11, 0, 0, 0, loc),
		},
		{
			name:       "date in loc",
			edt:        &gcal.EventDateTime{Date: "2026-10-20"},
			loc:        loc,
			want:       time.Date(2026, 10, 20, 0, 0, 0, 0, loc),
			wantAllDay: true,
		},
		{
			name:       "date in the event's own zone",
			edt:        &gcal.EventDateTime{Date: "2026-10-20", TimeZone: "Europe/Berlin"},
			loc:        loc,
			want:       time.Date(2026, 10, 20, 0, 0, 0, 0, berlin),
			wantAllDay: true,
		},
		{
			name:       "date without any zone",
			edt:        &gcal.EventDateTime{Date: "2026-10-20"},
			want:       time.Date(2026, 10, 20, 0, 0, 0, 0, time.UTC),
			wantAllDay: true,
		},
		{
			name: "garbage",
			edt:  &gcal.EventDateTime{DateTime: "next tuesday"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, allDay := parseEventDateTime(tt.edt, tt.loc)
			assert.True(t, tt.want.Equal(got), "got %s, want %s", got, tt.want)
			assert.Equal(t, tt.wantAllDay, allDay)
		})
	}
}

func TestToEventDateTime(t *testing.T) {
	loc := la(t)

	timed := toEventDateTime(action.At(time.Date(2026, 10, 20, 15, 0, 0, 0, loc)))
	assert.Equal(t, "2026-10-20T15:00:00-07:00", timed.DateTime)
	assert.Equal(t, "America/Los_Angeles", timed.TimeZone)
	assert.Empty(t, timed.Date)

	utc := toEventDateTime(action.At(time.Date(2026, 10, 20, 15, 0, 0, 0, time.UTC)))
	assert.Equal(t, "2026-10-20T15:00:00Z", utc.DateTime)
	assert.Equal(t, "UTC", utc.TimeZone)

	allDay := toEventDateTime(action.OnDate(time.Date(2026, 10, 20, 9, 30, 0, 0, loc)))
	assert.Equal(t, "2026-10-20", allDay.Date)
	assert.Empty(t, allDay.DateTime)
	assert.Empty(t, allDay.TimeZone)
}

func TestToEvent(t *testing.T) {
	loc := la(t)
	e := toEvent("jane@example.com", "personal", &gcal.Event{
		Id:        "abc",
		Summary:   "Design review",
		Location:  "Room 4",
		Start:     timed("2026-10-20T10:00:00-07:00"),
		End:       timed("2026-10-20T11:00:00-07:00"),
		Organizer: &gcal.EventOrganizer{Email: "boss@example.com"},
		Attendees: []*gcal.EventAttendee{
			{Email: "jane@example.com", ResponseStatus: "accepted"},
			nil,
			{Email: "bob@example.com", Optional: true},
		},
		ConferenceData: &gcal.ConferenceData{
			EntryPoints: []*gcal.EntryPoint{
				{EntryPointType: "phone", Uri: "tel:+1"},
				{EntryPointType: "video", Uri: "https://meet.google.com/abc-defg-hij"},
			},
		},
	}, loc)

	assert.Equal(t, "abc", e.ID)
	assert.Equal(t, "personal", e.Account)
	assert.False(t, e.AllDay)
	assert.Equal(t, time.Hour, e.End.Sub(e.Start))
	assert.Equal(t, "boss@example.com", e.Organizer)
	require.Len(t, e.Attendees, 2)
	assert.True(t, e.Attendees[1].Optional)
	assert.Equal(t, "https://meet.google.com/abc-defg-hij", e.MeetLink)

	ref, err := e.Ref()
	require.NoError(t, err)
	assert.Equal(t, action.EventRef{EventID: "abc", CalendarID: "jane@example.com"}, ref)

	timing := e.Timing()
	assert.False(t, timing.AllDay())
	assert.NoError(t, timing.Validate())
}

func TestEvent_RefMissingID(t *testing.T) {
	_, err := Event{CalendarID: "primary"}.Ref()
	assert.ErrorIs(t, err, action.ErrMalformedReference)
}

func TestCalendar_VisibleWritable(t *testing.T) {
	tests := []struct {
		cal      Calendar
		visible  bool
		writable bool
	}{
		{Calendar{Primary: true, AccessRole: "owner"}, true, true},
		{Calendar{Selected: true, AccessRole: "writer"}, true, true},
		{Calendar{AccessRole: "reader"}, false, false},
		{Calendar{Selected: true, AccessRole: "freeBusyReader"}, true, false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.visible, tt.cal.Visible(), "%+v", tt.cal)
		assert.Equal(t, tt.writable, tt.cal.Writable(), "%+v", tt.cal)
	}
}

func TestSearchQuery(t *testing.T) {
	assert.Equal(t, "dentist appointment", searchQuery([]string{" dentist ", "", "appointment"}))
	assert.Empty(t, searchQuery(nil))
}

func TestSortEventsAndDedupe(t *testing.T) {
	at := func(h int) time.Time { return time.Date(2026, 10, 20, h, 0, 0, 0, time.UTC) }
	events := []Event{
		{ID: "b", CalendarID: "work", Start: at(9)},
		{ID: "a", CalendarID: "work", Start: at(9)},
		{ID: "a", CalendarID: "home", Start: at(9)},
		{ID: "z", CalendarID: "home", Start: at(8)},
		{ID: "a", CalendarID: "work", Start: at(9)},
	}

	got := SortEvents(dedupe(events))
	var keys []string
	for _, e := range got {
		keys = append(keys, e.CalendarID+"/"+e.ID)
	}
	assert.Equal(t, []string{"home/z", "home/a", "work/a", "work/b"}, keys)
}
