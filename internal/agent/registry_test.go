package agent

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teemow/noon/internal/action"
)

func TestRegistry_SchemasCompile(t *testing.T) {
	all, err := compiledSchemas()
	require.NoError(t, err)
	assert.Len(t, all, len(registry))

	terminals := 0
	for _, spec := range Tools() {
		assert.True(t, json.Valid(spec.Parameters), spec.Name)
		assert.NotEmpty(t, spec.Description, spec.Name)
		if spec.Terminal {
			terminals++
		}
	}
	assert.Equal(t, len(action.Kinds()), terminals)
}

func TestLookup(t *testing.T) {
	spec, ok := Lookup(ToolSearchEvents)
	require.True(t, ok)
	assert.False(t, spec.Terminal)

	spec, ok = Lookup(ToolNoAction)
	require.True(t, ok)
	assert.True(t, spec.Terminal)

	_, ok = Lookup("send_email")
	assert.False(t, ok)
}

func TestDecodeCall(t *testing.T) {
	window := action.TimeWindow{
		Start: time.Date(2026, 10, 20, 0, 0, 0, 0, time.FixedZone("", -7*3600)),
		End:   time.Date(2026, 10, 20, 23, 59, 59, 0, time.FixedZone("", -7*3600)),
	}
	ref := action.EventRef{EventID: "evt1", CalendarID: "primary"}
	summary := "Planning"

	tests := []struct {
		name string
		tool string
		args string
		want Call
	}{
		{
			name: "read schedule",
			tool: ToolReadSchedule,
			args: `{"start_time":"2026-10-20T00:00:00-07:00","end_time":"2026-10-20T23:59:59-07:00"}`,
			want: ReadSchedule{Window: window},
		},
		{
			name: "search events splits keywords",
			tool: ToolSearchEvents,
			args: `{"keywords":"dentist  appointment","start_time":"2026-10-20T00:00:00-07:00","end_time":"2026-10-20T23:59:59-07:00"}`,
			want: SearchEvents{Keywords: []string{"dentist", "appointment"}, Window: window},
		},
		{
			name: "read event",
			tool: ToolReadEvent,
			args: `{"event_id":"evt1","calendar_id":"primary"}`,
			want: ReadEvent{Ref: ref},
		},
		{
			name: "list calendars without arguments",
			tool: ToolListCalendars,
			args: ``,
			want: ListCalendars{},
		},
		{
			name: "show event",
			tool: ToolShowEvent,
			args: `{"event_id":"evt1","calendar_id":"primary"}`,
			want: ShowEvent{Ref: ref},
		},
		{
			name: "create all-day event",
			tool: ToolCreateEvent,
			args: `{"summary":"Offsite","calendar_id":"primary","start_date":"2026-10-22","end_date":"2026-10-24"}`,
			want: CreateEvent{Summary: "Offsite", CalendarID: "primary", StartDate: "2026-10-22", EndDate: "2026-10-24"},
		},
		{
			name: "update keeps unset fields nil",
			tool: ToolUpdateEvent,
			args: `{"event_id":"evt1","calendar_id":"primary","summary":"Planning"}`,
			want: UpdateEvent{Ref: ref, Summary: &summary},
		},
		{
			name: "delete",
			tool: ToolDeleteEvent,
			args: `{"event_id":"evt1","calendar_id":"primary"}`,
			want: DeleteEvent{Ref: ref},
		},
		{
			name: "do nothing",
			tool: ToolNoAction,
			args: `{"reason":"not about the calendar"}`,
			want: NoAction{Reason: "not about the calendar"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			call, err := DecodeCall(tt.tool, json.RawMessage(tt.args))
			require.NoError(t, err)
			assert.Equal(t, tt.tool, call.Tool())

			// Windows compare as instants.
			if got, ok := call.(ReadSchedule); ok {
				assert.True(t, got.Window.Start.Equal(window.Start))
				assert.True(t, got.Window.End.Equal(window.End))
				return
			}
			if got, ok := call.(SearchEvents); ok {
				assert.Equal(t, tt.want.(SearchEvents).Keywords, got.Keywords)
				assert.True(t, got.Window.Start.Equal(window.Start))
				return
			}
			assert.Equal(t, tt.want, call)
		})
	}
}

func TestDecodeCall_Errors(t *testing.T) {
	tests := []struct {
		name    string
		tool    string
		args    string
		wantErr error
	}{
		{name: "unknown tool", tool: "send_email", args: `{}`, wantErr: ErrUnknownTool},
		{name: "not json", tool: ToolReadEvent, args: `{`, wantErr: ErrInvalidArguments},
		{name: "missing calendar id", tool: ToolReadEvent, args: `{"event_id":"evt1"}`, wantErr: ErrInvalidArguments},
		{name: "empty event id", tool: ToolDeleteEvent, args: `{"event_id":"","calendar_id":"primary"}`, wantErr: ErrInvalidArguments},
		{name: "unknown argument", tool: ToolShowEvent, args: `{"event_id":"a","calendar_id":"b","extra":1}`, wantErr: ErrInvalidArguments},
		{name: "time without offset", tool: ToolReadSchedule, args: `{"start_time":"2026-10-20T00:00:00","end_time":"2026-10-20T23:59:59"}`, wantErr: ErrInvalidArguments},
		{name: "reversed window", tool: ToolShowSchedule, args: `{"start_time":"2026-10-21T00:00:00Z","end_time":"2026-10-20T00:00:00Z"}`, wantErr: action.ErrInvalidWindow},
		{name: "create with both timing pairs", tool: ToolCreateEvent, args: `{"summary":"x","calendar_id":"primary","start_time":"2026-10-20T10:00:00Z","end_time":"2026-10-20T11:00:00Z","start_date":"2026-10-20","end_date":"2026-10-21"}`, wantErr: ErrInvalidArguments},
		{name: "create without timing", tool: ToolCreateEvent, args: `{"summary":"x","calendar_id":"primary"}`, wantErr: ErrInvalidArguments},
		{name: "do nothing without reason", tool: ToolNoAction, args: `{}`, wantErr: ErrInvalidArguments},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			call, err := DecodeCall(tt.tool, json.RawMessage(tt.args))
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.wantErr)
			assert.Nil(t, call)
		})
	}
}

func TestTerminalCalls_Record(t *testing.T) {
	loc := time.FixedZone("PDT", -7*3600)
	ref := action.EventRef{EventID: "evt1", CalendarID: "primary"}

	t.Run("create timed", func(t *testing.T) {
		rec, err := CreateEvent{Summary: " Lunch ", CalendarID: "primary", StartTime: "2026-10-21T13:00:00-07:00", EndTime: "2026-10-21T14:00:00-07:00"}.Record(loc)
		require.NoError(t, err)
		assert.Equal(t, action.KindCreateEvent, rec.Request)
		assert.Equal(t, "Lunch", rec.Metadata[action.KeySummary])
		assert.NoError(t, action.Validate(rec))
	})

	t.Run("create from timing", func(t *testing.T) {
		timing, err := action.DatePair(time.Date(2026, 10, 22, 0, 0, 0, 0, loc), time.Date(2026, 10, 23, 0, 0, 0, 0, loc))
		require.NoError(t, err)
		call := NewCreateEvent("Offsite", "primary", timing)
		assert.Equal(t, "2026-10-22", call.StartDate)
		assert.Equal(t, "2026-10-23", call.EndDate)
		assert.Empty(t, call.StartTime)
	})

	t.Run("update without changes", func(t *testing.T) {
		_, err := UpdateEvent{Ref: ref}.Record(loc)
		assert.ErrorIs(t, err, action.ErrNoChanges)
	})

	t.Run("update with bad start", func(t *testing.T) {
		_, err := UpdateEvent{Ref: ref, StartTime: "4pm"}.Record(loc)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "start")
	})

	t.Run("no action", func(t *testing.T) {
		rec, err := NoAction{Reason: "nothing to do"}.Record(loc)
		require.NoError(t, err)
		assert.True(t, rec.Success)
		assert.Equal(t, "nothing to do", rec.Reason())
	})

	t.Run("delete with malformed ref", func(t *testing.T) {
		_, err := DeleteEvent{Ref: action.EventRef{EventID: "evt1"}}.Record(loc)
		assert.ErrorIs(t, err, action.ErrMalformedReference)
	})
}

func TestEncodeCall_DecodesBack(t *testing.T) {
	ref := action.EventRef{EventID: "evt1", CalendarID: "primary"}
	title := "Planning"
	calls := []Call{
		ReadEvent{Ref: ref},
		ListCalendars{},
		CreateEvent{Summary: "Lunch", CalendarID: "primary", StartTime: "2026-10-20T13:00:00-07:00", EndTime: "2026-10-20T14:00:00-07:00"},
		UpdateEvent{Ref: ref, Summary: &title, StartDate: "2026-10-22", EndDate: "2026-10-23"},
		DeleteEvent{Ref: ref},
		NoAction{Reason: "ambiguous"},
	}
	for _, call := range calls {
		raw, err := EncodeCall(call)
		require.NoError(t, err, call.Tool())
		got, err := DecodeCall(call.Tool(), raw)
		require.NoError(t, err, string(raw))
		assert.Equal(t, call, got)
	}

	w := week()
	raw, err := EncodeCall(SearchEvents{Keywords: []string{"team", "sync"}, Window: w})
	require.NoError(t, err)
	assert.JSONEq(t, `{"keywords":"team sync","start_time":"2026-10-19T00:00:00-07:00","end_time":"2026-10-25T23:59:59-07:00"}`, string(raw))
}
