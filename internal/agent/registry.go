package agent

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/teemow/noon/internal/action"
)

// ToolSpec describes one tool: its name, what it is for and the JSON
// Schema of its arguments.
type ToolSpec struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Terminal    bool            `json:"terminal"`
	Parameters  json.RawMessage `json:"parameters"`
}

const windowProps = `
    "start_time": {"type": "string", "format": "date-time", "description": "Timezone-aware RFC 3339 start, e.g. 2026-01-14T00:00:00-08:00"},
    "end_time": {"type": "string", "format": "date-time", "description": "Timezone-aware RFC 3339 end, e.g. 2026-01-14T23:59:59-08:00"}`

const refProps = `
    "event_id": {"type": "string", "minLength": 1, "description": "ID of the event"},
    "calendar_id": {"type": "string", "minLength": 1, "description": "ID of the calendar containing the event"}`

const timingProps = `
    "start_time": {"type": "string", "format": "date-time", "description": "RFC 3339 start of a timed event"},
    "end_time": {"type": "string", "format": "date-time", "description": "RFC 3339 end of a timed event"},
    "start_date": {"type": "string", "format": "date", "description": "First day of an all-day event, YYYY-MM-DD"},
    "end_date": {"type": "string", "format": "date", "description": "Day after the last day of an all-day event, YYYY-MM-DD"},
    "description": {"type": "string"},
    "location": {"type": "string"}`

var registry = []ToolSpec{
	{
		Name:        ToolReadSchedule,
		Description: "Read the events of every visible calendar within a time window.",
		Parameters: json.RawMessage(`{
  "type": "object",
  "required": ["start_time", "end_time"],
  "properties": {` + windowProps + `},
  "additionalProperties": false
}`),
	},
	{
		Name:        ToolSearchEvents,
		Description: "Search for events matching every keyword within a time window.",
		Parameters: json.RawMessage(`{
  "type": "object",
  "required": ["keywords", "start_time", "end_time"],
  "properties": {
    "keywords": {"type": "string", "minLength": 1, "description": "Space-separated keywords"},` + windowProps + `},
  "additionalProperties": false
}`),
	},
	{
		Name:        ToolReadEvent,
		Description: "Read the full detail of one event.",
		Parameters: json.RawMessage(`{
  "type": "object",
  "required": ["event_id", "calendar_id"],
  "properties": {` + refProps + `},
  "additionalProperties": false
}`),
	},
	{
		Name:        ToolListCalendars,
		Description: "List the calendars of every linked account.",
		Parameters:  json.RawMessage(`{"type": "object", "properties": {}, "additionalProperties": false}`),
	},
	{
		Name:        ToolShowSchedule,
		Description: "Show the schedule of a time window to the user. Ends the request.",
		Terminal:    true,
		Parameters: json.RawMessage(`{
  "type": "object",
  "required": ["start_time", "end_time"],
  "properties": {` + windowProps + `},
  "additionalProperties": false
}`),
	},
	{
		Name:        ToolShowEvent,
		Description: "Show one event to the user. Ends the request.",
		Terminal:    true,
		Parameters: json.RawMessage(`{
  "type": "object",
  "required": ["event_id", "calendar_id"],
  "properties": {` + refProps + `},
  "additionalProperties": false
}`),
	},
	{
		Name:        ToolCreateEvent,
		Description: "Request a new event. Give either start_time and end_time or start_date and end_date. Ends the request.",
		Terminal:    true,
		Parameters: json.RawMessage(`{
  "type": "object",
  "required": ["summary", "calendar_id"],
  "properties": {
    "summary": {"type": "string", "minLength": 1, "description": "Title of the event"},
    "calendar_id": {"type": "string", "minLength": 1, "description": "Calendar to create the event on; primary for the default calendar"},` + timingProps + `},
  "oneOf": [
    {"required": ["start_time", "end_time"], "not": {"anyOf": [{"required": ["start_date"]}, {"required": ["end_date"]}]}},
    {"required": ["start_date", "end_date"], "not": {"anyOf": [{"required": ["start_time"]}, {"required": ["end_time"]}]}}
  ],
  "additionalProperties": false
}`),
	},
	{
		Name:        ToolUpdateEvent,
		Description: "Request changes to an existing event. Only the given fields change. Ends the request.",
		Terminal:    true,
		Parameters: json.RawMessage(`{
  "type": "object",
  "required": ["event_id", "calendar_id"],
  "properties": {` + refProps + `,
    "summary": {"type": "string", "minLength": 1},` + timingProps + `},
  "additionalProperties": false
}`),
	},
	{
		Name:        ToolDeleteEvent,
		Description: "Request the deletion of an event. Ends the request.",
		Terminal:    true,
		Parameters: json.RawMessage(`{
  "type": "object",
  "required": ["event_id", "calendar_id"],
  "properties": {` + refProps + `},
  "additionalProperties": false
}`),
	},
	{
		Name:        ToolNoAction,
		Description: "Take no action, for requests that cannot be fulfilled or are not about the calendar. Ends the request.",
		Terminal:    true,
		Parameters: json.RawMessage(`{
  "type": "object",
  "required": ["reason"],
  "properties": {"reason": {"type": "string", "minLength": 1, "description": "Why no action is taken"}},
  "additionalProperties": false
}`),
	},
}

// Tools returns the registry, gathering tools first.
func Tools() []ToolSpec {
	return append([]ToolSpec(nil), registry...)
}

// Lookup returns the spec of a tool.
func Lookup(name string) (ToolSpec, bool) {
	for _, t := range registry {
		if t.Name == name {
			return t, true
		}
	}
	return ToolSpec{}, false
}

var (
	schemaOnce sync.Once
	schemas    map[string]*jsonschema.Schema
	schemaErr  error
)

func compiledSchemas() (map[string]*jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		out := make(map[string]*jsonschema.Schema, len(registry))
		for _, t := range registry {
			c := jsonschema.NewCompiler()
			c.Draft = jsonschema.Draft2020
			c.AssertFormat = true
			url := fmt.Sprintf("https://noon.schemas.local/tools/%s.schema.json", t.Name)
			if err := c.AddResource(url, bytes.NewReader(t.Parameters)); err != nil {
				schemaErr = fmt.Errorf("failed to load %s schema: %w", t.Name, err)
				return
			}
			s, err := c.Compile(url)
			if err != nil {
				schemaErr = fmt.Errorf("failed to compile %s schema: %w", t.Name, err)
				return
			}
			out[t.Name] = s
		}
		schemas = out
	})
	return schemas, schemaErr
}

type arguments struct {
	StartTime   string  `json:"start_time,omitempty"`
	EndTime     string  `json:"end_time,omitempty"`
	StartDate   string  `json:"start_date,omitempty"`
	EndDate     string  `json:"end_date,omitempty"`
	Keywords    string  `json:"keywords,omitempty"`
	EventID     string  `json:"event_id,omitempty"`
	CalendarID  string  `json:"calendar_id,omitempty"`
	Summary     *string `json:"summary,omitempty"`
	Description *string `json:"description,omitempty"`
	Location    *string `json:"location,omitempty"`
	Reason      string  `json:"reason,omitempty"`
}

// DecodeCall validates raw JSON arguments against the schema of the named
// tool and builds the call. Empty args are treated as {}.
func DecodeCall(name string, args json.RawMessage) (Call, error) {
	all, err := compiledSchemas()
	if err != nil {
		return nil, err
	}
	schema, ok := all[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownTool, name)
	}

	if len(bytes.TrimSpace(args)) == 0 {
		args = json.RawMessage(`{}`)
	}
	var doc any
	if err := json.Unmarshal(args, &doc); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidArguments, name, err)
	}
	if err := schema.Validate(doc); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidArguments, name, err)
	}
	var a arguments
	if err := json.Unmarshal(args, &a); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidArguments, name, err)
	}

	call, err := a.build(name)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	return call, nil
}

func (a arguments) build(name string) (Call, error) {
	switch name {
	case ToolReadSchedule:
		w, err := a.window()
		return ReadSchedule{Window: w}, err
	case ToolSearchEvents:
		w, err := a.window()
		return SearchEvents{Keywords: strings.Fields(a.Keywords), Window: w}, err
	case ToolReadEvent:
		ref, err := action.NewEventRef(a.EventID, a.CalendarID)
		return ReadEvent{Ref: ref}, err
	case ToolListCalendars:
		return ListCalendars{}, nil
	case ToolShowSchedule:
		w, err := a.window()
		return ShowSchedule{Window: w}, err
	case ToolShowEvent:
		ref, err := action.NewEventRef(a.EventID, a.CalendarID)
		return ShowEvent{Ref: ref}, err
	case ToolCreateEvent:
		return CreateEvent{
			Summary:     deref(a.Summary),
			CalendarID:  a.CalendarID,
			Description: deref(a.Description),
			Location:    deref(a.Location),
			StartTime:   a.StartTime,
			EndTime:     a.EndTime,
			StartDate:   a.StartDate,
			EndDate:     a.EndDate,
		}, nil
	case ToolUpdateEvent:
		ref, err := action.NewEventRef(a.EventID, a.CalendarID)
		return UpdateEvent{
			Ref:         ref,
			Summary:     a.Summary,
			Description: a.Description,
			Location:    a.Location,
			StartTime:   a.StartTime,
			EndTime:     a.EndTime,
			StartDate:   a.StartDate,
			EndDate:     a.EndDate,
		}, err
	case ToolDeleteEvent:
		ref, err := action.NewEventRef(a.EventID, a.CalendarID)
		return DeleteEvent{Ref: ref}, err
	case ToolNoAction:
		return NoAction{Reason: a.Reason}, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownTool, name)
}

// EncodeCall renders a call as the JSON arguments of its tool. It is the
// inverse of DecodeCall.
func EncodeCall(call Call) (json.RawMessage, error) {
	var a arguments
	setWindow := func(w action.TimeWindow) {
		a.StartTime = w.Start.Format(time.RFC3339)
		a.EndTime = w.End.Format(time.RFC3339)
	}
	setRef := func(r action.EventRef) {
		a.EventID, a.CalendarID = r.EventID, r.CalendarID
	}
	optional := func(s string) *string {
		if s == "" {
			return nil
		}
		return &s
	}

	switch c := call.(type) {
	case ReadSchedule:
		setWindow(c.Window)
	case SearchEvents:
		a.Keywords = strings.Join(c.Keywords, " ")
		setWindow(c.Window)
	case ReadEvent:
		setRef(c.Ref)
	case ListCalendars:
	case ShowSchedule:
		setWindow(c.Window)
	case ShowEvent:
		setRef(c.Ref)
	case CreateEvent:
		a.Summary = &c.Summary
		a.CalendarID = c.CalendarID
		a.Description = optional(c.Description)
		a.Location = optional(c.Location)
		a.StartTime, a.EndTime = c.StartTime, c.EndTime
		a.StartDate, a.EndDate = c.StartDate, c.EndDate
	case UpdateEvent:
		setRef(c.Ref)
		a.Summary, a.Description, a.Location = c.Summary, c.Description, c.Location
		a.StartTime, a.EndTime = c.StartTime, c.EndTime
		a.StartDate, a.EndDate = c.StartDate, c.EndDate
	case DeleteEvent:
		setRef(c.Ref)
	case NoAction:
		a.Reason = c.Reason
	default:
		return nil, fmt.Errorf("%w: %T", ErrUnknownTool, call)
	}
	return json.Marshal(a)
}

func (a arguments) window() (action.TimeWindow, error) {
	start, err := time.Parse(time.RFC3339, a.StartTime)
	if err != nil {
		return action.TimeWindow{}, fmt.Errorf("%w: start_time %q", action.ErrInvalidWindow, a.StartTime)
	}
	end, err := time.Parse(time.RFC3339, a.EndTime)
	if err != nil {
		return action.TimeWindow{}, fmt.Errorf("%w: end_time %q", action.ErrInvalidWindow, a.EndTime)
	}
	return action.NewTimeWindow(start, end)
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
