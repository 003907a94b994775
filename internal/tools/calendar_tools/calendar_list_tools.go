package calendar_tools

import (
	"context"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/teemow/noon/internal/instrumentation"
	"github.com/teemow/noon/internal/server"
	"github.com/teemow/noon/internal/tools/common"
)

// RegisterCalendarListTools registers calendar list tools with the MCP server
func RegisterCalendarListTools(s *mcpserver.MCPServer, sc *server.ServerContext) error {
	listCalendarsTool := mcp.NewTool("calendar_list_calendars",
		mcp.WithDescription("List all calendars of the linked accounts"),
		mcp.WithString("account",
			mcp.Description(accountDescription),
		),
	)

	s.AddTool(listCalendarsTool, common.InstrumentedToolHandlerWithService(
		"calendar_list_calendars", instrumentation.ServiceCalendar, "list_calendars", sc,
		func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return handleListCalendars(ctx, request, sc)
		}))

	return nil
}

func handleListCalendars(ctx context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	creds, errResult := credentials(ctx, request, sc)
	if errResult != nil {
		return errResult, nil
	}

	calendars, err := sc.Reader().ListCalendars(ctx, creds)
	if err != nil {
		return mcp.NewToolResultErrorFromErr("Failed to list calendars", err), nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Found %d calendar(s):\n\n", len(calendars))
	for i, cal := range calendars {
		fmt.Fprintf(&b, "%d. %s\n", i+1, cal.Summary)
		fmt.Fprintf(&b, "   ID: %s\n", cal.ID)
		fmt.Fprintf(&b, "   Access Role: %s\n", cal.AccessRole)
		if cal.Primary {
			b.WriteString("   [PRIMARY]\n")
		}
		if cal.Account != "" {
			fmt.Fprintf(&b, "   Account: %s\n", cal.Account)
		}
		if cal.Description != "" {
			fmt.Fprintf(&b, "   Description: %s\n", cal.Description)
		}
		if cal.TimeZone != "" {
			fmt.Fprintf(&b, "   Time Zone: %s\n", cal.TimeZone)
		}
		b.WriteString("\n")
	}

	return mcp.NewToolResultText(b.String()), nil
}
