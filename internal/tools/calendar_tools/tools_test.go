package calendar_tools

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teemow/noon/internal/action"
	"github.com/teemow/noon/internal/agent"
	"github.com/teemow/noon/internal/auth"
	"github.com/teemow/noon/internal/calendar"
	"github.com/teemow/noon/internal/calendar/calendartest"
	"github.com/teemow/noon/internal/reasoner"
	"github.com/teemow/noon/internal/server"
)

func losAngeles(t *testing.T) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation("America/Los_Angeles")
	require.NoError(t, err)
	return loc
}

type fixture struct {
	mcp  *mcpserver.MCPServer
	fake *calendartest.Fake
}

func newFixture(t *testing.T, writable bool, static *auth.Context) *fixture {
	t.Helper()
	loc := losAngeles(t)
	at := func(day, hour int) time.Time { return time.Date(2026, 10, day, hour, 0, 0, 0, loc) }
	fake := calendartest.New(
		calendar.Event{ID: "dentist-1", CalendarID: "primary", Summary: "Dentist appointment", Location: "Main St", Start: at(20, 15), End: at(20, 16)},
		calendar.Event{ID: "sync-1", CalendarID: "work@example.com", Summary: "Team sync", Start: at(19, 15), End: at(19, 16)},
		calendar.Event{ID: "offsite-1", CalendarID: "primary", Summary: "Offsite", AllDay: true, Start: at(22, 0), End: at(24, 0)},
	).WithCalendars(calendar.Calendar{ID: "primary", Summary: "jane@example.com", Primary: true, AccessRole: "owner", Account: "personal"})

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	loop := agent.NewLoop(reasoner.NewRules(), agent.NewGatherer(fake, agent.NewBridge(2), nil, logger), agent.Config{}, logger)
	resolver := agent.NewResolver(agent.NewRouter(nil), loop,
		agent.WithLogger(logger),
		agent.WithClock(func() time.Time { return time.Date(2026, 10, 19, 9, 30, 0, 0, loc) }))

	cfg := server.Config{Resolver: resolver, Reader: fake, Static: static, Location: loc, Logger: logger}
	if writable {
		cfg.Writer = fake
	}
	sc, err := server.NewServerContext(context.Background(), cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = sc.Shutdown() })

	s := mcpserver.NewMCPServer("noon-test", "test", mcpserver.WithToolCapabilities(true))
	require.NoError(t, RegisterCalendarTools(s, sc))
	return &fixture{mcp: s, fake: fake}
}

func jane() *auth.Context {
	return auth.New("jane", auth.Account{ID: "personal"})
}

func (f *fixture) call(t *testing.T, tool string, args map[string]any) *mcp.CallToolResult {
	t.Helper()
	st := f.mcp.GetTool(tool)
	require.NotNil(t, st, "tool %s not registered", tool)
	req := mcp.CallToolRequest{}
	req.Params.Name = tool
	req.Params.Arguments = args
	result, err := st.Handler(context.Background(), req)
	require.NoError(t, err)
	require.NotNil(t, result)
	return result
}

func text(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()
	require.NotEmpty(t, result.Content)
	tc, ok := result.Content[0].(mcp.TextContent)
	require.True(t, ok)
	return tc.Text
}

func TestRegisterCalendarTools(t *testing.T) {
	readOnly := newFixture(t, false, jane())
	for _, name := range []string{
		"calendar_resolve_request",
		"calendar_read_schedule",
		"calendar_search_events",
		"calendar_read_event",
		"calendar_list_calendars",
	} {
		assert.NotNil(t, readOnly.mcp.GetTool(name), name)
	}
	assert.Nil(t, readOnly.mcp.GetTool("calendar_execute_action"))

	writable := newFixture(t, true, jane())
	assert.NotNil(t, writable.mcp.GetTool("calendar_execute_action"))
}

func TestResolveRequest(t *testing.T) {
	f := newFixture(t, false, jane())

	result := f.call(t, "calendar_resolve_request", map[string]any{"query": "cancel my dentist appointment"})
	require.False(t, result.IsError, text(t, result))

	var record action.Record
	require.NoError(t, json.Unmarshal([]byte(text(t, result)), &record))
	assert.True(t, record.Success)
	assert.Equal(t, action.KindDeleteEvent, record.Request)
	assert.Equal(t, "dentist-1", record.Metadata[action.KeyEventID])
	assert.Len(t, f.fake.Events(), 3)
}

func TestResolveRequest_WithoutCredentials(t *testing.T) {
	f := newFixture(t, false, nil)

	result := f.call(t, "calendar_resolve_request", map[string]any{"query": "cancel my dentist appointment"})
	require.False(t, result.IsError)

	var record action.Record
	require.NoError(t, json.Unmarshal([]byte(text(t, result)), &record))
	assert.False(t, record.Success)
	assert.Equal(t, action.KindNoAction, record.Request)
}

func TestResolveRequest_InvalidArguments(t *testing.T) {
	f := newFixture(t, false, jane())

	tests := []struct {
		name string
		args map[string]any
	}{
		{"missing query", map[string]any{}},
		{"bad now", map[string]any{"query": "what's on today", "now": "soon"}},
		{"bad time zone", map[string]any{"query": "what's on today", "timeZone": "Mars/Olympus"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.True(t, f.call(t, "calendar_resolve_request", tt.args).IsError)
		})
	}
}

func TestExecuteAction(t *testing.T) {
	f := newFixture(t, true, jane())

	resolved := f.call(t, "calendar_resolve_request", map[string]any{"query": "Please schedule lunch tomorrow at 1pm"})
	result := f.call(t, "calendar_execute_action", map[string]any{"record": text(t, resolved)})
	require.False(t, result.IsError, text(t, result))

	var applied calendar.Result
	require.NoError(t, json.Unmarshal([]byte(text(t, result)), &applied))
	assert.Equal(t, action.KindCreateEvent, applied.Request)
	require.NotNil(t, applied.Event)
	assert.Equal(t, "Lunch", applied.Event.Summary)
	assert.Len(t, f.fake.Events(), 4)

	// Records may also be passed as objects.
	ref, err := action.NewEventRef("dentist-1", "primary")
	require.NoError(t, err)
	del, err := action.DeleteEvent(ref)
	require.NoError(t, err)
	var obj map[string]any
	data, _ := del.JSON()
	require.NoError(t, json.Unmarshal(data, &obj))
	result = f.call(t, "calendar_execute_action", map[string]any{"record": obj})
	require.False(t, result.IsError, text(t, result))
	assert.Len(t, f.fake.Events(), 3)
}

func TestExecuteAction_Errors(t *testing.T) {
	f := newFixture(t, true, jane())

	ref, err := action.NewEventRef("dentist-1", "primary")
	require.NoError(t, err)
	show, err := action.ShowEvent(ref)
	require.NoError(t, err)
	showJSON, _ := show.JSON()

	tests := []struct {
		name string
		args map[string]any
	}{
		{"missing record", map[string]any{}},
		{"not json", map[string]any{"record": "{"}},
		{"malformed record", map[string]any{"record": `{"success":true,"request":"delete-event","metadata":{}}`}},
		{"not executable", map[string]any{"record": string(showJSON)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.True(t, f.call(t, "calendar_execute_action", tt.args).IsError)
		})
	}
	assert.Len(t, f.fake.Events(), 3)
}

func TestReadSchedule(t *testing.T) {
	f := newFixture(t, false, jane())

	result := f.call(t, "calendar_read_schedule", map[string]any{
		"timeMin": "2026-10-19T00:00:00-07:00",
		"timeMax": "2026-10-21T00:00:00-07:00",
	})
	require.False(t, result.IsError, text(t, result))
	out := text(t, result)
	assert.Contains(t, out, "Found 2 event(s)")
	assert.Contains(t, out, "Dentist appointment")
	assert.Contains(t, out, "Team sync")
	assert.Contains(t, out, "Tue Oct 20, 2026 15:00 - 16:00 PDT")

	result = f.call(t, "calendar_read_schedule", map[string]any{
		"timeMin": "2026-10-22T00:00:00-07:00",
		"timeMax": "2026-10-23T00:00:00-07:00",
	})
	assert.Contains(t, text(t, result), "Thu Oct 22, 2026 - Fri Oct 23, 2026 (all day)")
}

func TestReadSchedule_Errors(t *testing.T) {
	tests := []struct {
		name   string
		static *auth.Context
		args   map[string]any
		want   string
	}{
		{"missing range", jane(), map[string]any{"timeMin": "2026-10-19T00:00:00Z"}, "timeMax"},
		{"bad format", jane(), map[string]any{"timeMin": "monday", "timeMax": "2026-10-21T00:00:00Z"}, "invalid timeMin"},
		{"inverted range", jane(), map[string]any{"timeMin": "2026-10-21T00:00:00Z", "timeMax": "2026-10-19T00:00:00Z"}, "window"},
		{"no account", nil, map[string]any{"timeMin": "2026-10-19T00:00:00Z", "timeMax": "2026-10-21T00:00:00Z"}, "noon auth login"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := newFixture(t, false, tt.static).call(t, "calendar_read_schedule", tt.args)
			assert.True(t, result.IsError)
			assert.Contains(t, text(t, result), tt.want)
		})
	}
}

func TestSearchEvents(t *testing.T) {
	f := newFixture(t, false, jane())

	result := f.call(t, "calendar_search_events", map[string]any{
		"keywords": []any{"dentist"},
		"timeMin":  "2026-10-19T00:00:00-07:00",
		"timeMax":  "2026-10-26T00:00:00-07:00",
	})
	require.False(t, result.IsError, text(t, result))
	assert.Contains(t, text(t, result), "Found 1 event(s)")
	assert.Contains(t, text(t, result), "dentist-1")

	result = f.call(t, "calendar_search_events", map[string]any{
		"keywords": []any{"yoga"},
		"timeMin":  "2026-10-19T00:00:00-07:00",
		"timeMax":  "2026-10-26T00:00:00-07:00",
	})
	require.False(t, result.IsError)
	assert.Contains(t, text(t, result), "No events found")

	result = f.call(t, "calendar_search_events", map[string]any{
		"keywords": []any{" "},
		"timeMin":  "2026-10-19T00:00:00-07:00",
		"timeMax":  "2026-10-26T00:00:00-07:00",
	})
	assert.True(t, result.IsError)
}

func TestReadEvent(t *testing.T) {
	f := newFixture(t, false, jane())

	result := f.call(t, "calendar_read_event", map[string]any{"calendarId": "primary", "eventId": "dentist-1"})
	require.False(t, result.IsError, text(t, result))
	assert.Contains(t, text(t, result), "Event: Dentist appointment")
	assert.Contains(t, text(t, result), "Location: Main St")

	result = f.call(t, "calendar_read_event", map[string]any{"calendarId": "primary", "eventId": "nope"})
	assert.True(t, result.IsError)

	result = f.call(t, "calendar_read_event", map[string]any{"eventId": "dentist-1"})
	assert.True(t, result.IsError)
}

func TestListCalendars(t *testing.T) {
	f := newFixture(t, false, jane())

	result := f.call(t, "calendar_list_calendars", nil)
	require.False(t, result.IsError, text(t, result))
	out := text(t, result)
	assert.Contains(t, out, "Found 1 calendar(s)")
	assert.Contains(t, out, "[PRIMARY]")
	assert.Contains(t, out, "Account: personal")

	f.fake.Fail(calendartest.OpListCalendars, calendar.ErrUpstreamUnavailable)
	assert.True(t, f.call(t, "calendar_list_calendars", nil).IsError)
}
