package calendar_tools

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/teemow/noon/internal/action"
	"github.com/teemow/noon/internal/calendar"
	"github.com/teemow/noon/internal/instrumentation"
	"github.com/teemow/noon/internal/server"
	"github.com/teemow/noon/internal/tools/common"
)

// RegisterEventTools registers event-related tools with the MCP server
func RegisterEventTools(s *mcpserver.MCPServer, sc *server.ServerContext) error {
	readScheduleTool := mcp.NewTool("calendar_read_schedule",
		mcp.WithDescription("List calendar events within a time range across all linked accounts"),
		mcp.WithString("account",
			mcp.Description(accountDescription),
		),
		mcp.WithString("timeMin",
			mcp.Required(),
			mcp.Description("Start time for the range (RFC3339 format, e.g., '2026-10-19T00:00:00Z')"),
		),
		mcp.WithString("timeMax",
			mcp.Required(),
			mcp.Description("End time for the range (RFC3339 format, e.g., '2026-10-26T00:00:00Z')"),
		),
		mcp.WithString("timeZone",
			mcp.Description("Time zone used to display events"),
		),
	)

	s.AddTool(readScheduleTool, common.InstrumentedToolHandlerWithService(
		"calendar_read_schedule", instrumentation.ServiceCalendar, "list", sc,
		func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return handleReadSchedule(ctx, request, sc)
		}))

	searchEventsTool := mcp.NewTool("calendar_search_events",
		mcp.WithDescription("Search calendar events by keywords within a time range"),
		mcp.WithString("account",
			mcp.Description(accountDescription),
		),
		mcp.WithArray("keywords",
			mcp.Required(),
			mcp.Description("Keywords that must all appear in the event's title, description or location"),
			mcp.WithStringItems(),
		),
		mcp.WithString("timeMin",
			mcp.Required(),
			mcp.Description("Start time for the range (RFC3339 format)"),
		),
		mcp.WithString("timeMax",
			mcp.Required(),
			mcp.Description("End time for the range (RFC3339 format)"),
		),
		mcp.WithString("timeZone",
			mcp.Description("Time zone used to display events"),
		),
	)

	s.AddTool(searchEventsTool, common.InstrumentedToolHandlerWithService(
		"calendar_search_events", instrumentation.ServiceCalendar, "search", sc,
		func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return handleSearchEvents(ctx, request, sc)
		}))

	readEventTool := mcp.NewTool("calendar_read_event",
		mcp.WithDescription("Get details of a specific calendar event"),
		mcp.WithString("account",
			mcp.Description(accountDescription),
		),
		mcp.WithString("calendarId",
			mcp.Required(),
			mcp.Description("Calendar ID (use 'primary' for primary calendar)"),
		),
		mcp.WithString("eventId",
			mcp.Required(),
			mcp.Description("The ID of the event to retrieve"),
		),
		mcp.WithString("timeZone",
			mcp.Description("Time zone used to display the event"),
		),
	)

	s.AddTool(readEventTool, common.InstrumentedToolHandlerWithService(
		"calendar_read_event", instrumentation.ServiceCalendar, "get", sc,
		func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return handleReadEvent(ctx, request, sc)
		}))

	return nil
}

func handleReadSchedule(ctx context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	w, err := window(request)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	loc, err := location(request, sc)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	creds, errResult := credentials(ctx, request, sc)
	if errResult != nil {
		return errResult, nil
	}

	events, err := sc.Reader().ReadSchedule(ctx, creds, w)
	if err != nil {
		return mcp.NewToolResultErrorFromErr("Failed to read schedule", err), nil
	}
	return mcp.NewToolResultText(formatEvents(events, loc, fmt.Sprintf("in %s", w.In(loc)))), nil
}

func handleSearchEvents(ctx context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	var keywords []string
	for _, k := range request.GetStringSlice("keywords", nil) {
		if k = strings.TrimSpace(k); k != "" {
			keywords = append(keywords, k)
		}
	}
	if len(keywords) == 0 {
		return mcp.NewToolResultError("at least one keyword is required"), nil
	}
	w, err := window(request)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	loc, err := location(request, sc)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	creds, errResult := credentials(ctx, request, sc)
	if errResult != nil {
		return errResult, nil
	}

	events, err := sc.Reader().SearchEvents(ctx, creds, keywords, w)
	if err != nil {
		return mcp.NewToolResultErrorFromErr("Failed to search events", err), nil
	}
	return mcp.NewToolResultText(formatEvents(events, loc, fmt.Sprintf("matching %q", strings.Join(keywords, " ")))), nil
}

func handleReadEvent(ctx context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	ref, err := action.NewEventRef(request.GetString("eventId", ""), request.GetString("calendarId", ""))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	loc, err := location(request, sc)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	creds, errResult := credentials(ctx, request, sc)
	if errResult != nil {
		return errResult, nil
	}

	event, err := sc.Reader().ReadEvent(ctx, creds, ref)
	if err != nil {
		return mcp.NewToolResultErrorFromErr("Failed to get event", err), nil
	}
	return mcp.NewToolResultText(formatEvent(*event, loc)), nil
}

func formatEvents(events []calendar.Event, loc *time.Location, scope string) string {
	if len(events) == 0 {
		return fmt.Sprintf("No events found %s.", scope)
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Found %d event(s) %s:\n\n", len(events), scope)
	for i, e := range events {
		fmt.Fprintf(&b, "%d. %s\n", i+1, e.Summary)
		fmt.Fprintf(&b, "   ID: %s\n", e.ID)
		fmt.Fprintf(&b, "   Calendar: %s\n", e.CalendarID)
		fmt.Fprintf(&b, "   When: %s\n", formatWhen(e, loc))
		if e.Location != "" {
			fmt.Fprintf(&b, "   Location: %s\n", e.Location)
		}
		if e.Account != "" {
			fmt.Fprintf(&b, "   Account: %s\n", e.Account)
		}
		b.WriteString("\n")
	}
	return b.String()
}

func formatEvent(e calendar.Event, loc *time.Location) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Event: %s\n", e.Summary)
	fmt.Fprintf(&b, "ID: %s\n", e.ID)
	fmt.Fprintf(&b, "Calendar: %s\n", e.CalendarID)
	fmt.Fprintf(&b, "When: %s\n", formatWhen(e, loc))
	if e.Location != "" {
		fmt.Fprintf(&b, "Location: %s\n", e.Location)
	}
	if e.Status != "" {
		fmt.Fprintf(&b, "Status: %s\n", e.Status)
	}
	if e.Organizer != "" {
		fmt.Fprintf(&b, "Organizer: %s\n", e.Organizer)
	}
	if len(e.Attendees) > 0 {
		b.WriteString("Attendees:\n")
		for _, a := range e.Attendees {
			fmt.Fprintf(&b, "  - %s", a.Email)
			if a.ResponseStatus != "" {
				fmt.Fprintf(&b, " (%s)", a.ResponseStatus)
			}
			b.WriteString("\n")
		}
	}
	if e.MeetLink != "" {
		fmt.Fprintf(&b, "Meet: %s\n", e.MeetLink)
	}
	if e.HTMLLink != "" {
		fmt.Fprintf(&b, "Link: %s\n", e.HTMLLink)
	}
	if e.Description != "" {
		fmt.Fprintf(&b, "\n%s\n", e.Description)
	}
	return b.String()
}

// formatWhen renders the event's span; all-day ends are exclusive.
func formatWhen(e calendar.Event, loc *time.Location) string {
	if e.AllDay {
		first, last := e.Start, e.End.AddDate(0, 0, -1)
		if !last.After(first) {
			return first.Format("Mon Jan 2, 2006") + " (all day)"
		}
		return fmt.Sprintf("%s - %s (all day)", first.Format("Mon Jan 2, 2006"), last.Format("Mon Jan 2, 2006"))
	}
	start, end := e.Start.In(loc), e.End.In(loc)
	if start.YearDay() == end.YearDay() && start.Year() == end.Year() {
		return fmt.Sprintf("%s - %s", start.Format("Mon Jan 2, 2006 15:04"), end.Format("15:04 MST"))
	}
	return fmt.Sprintf("%s - %s", start.Format("Mon Jan 2, 2006 15:04"), end.Format("Mon Jan 2, 2006 15:04 MST"))
}
