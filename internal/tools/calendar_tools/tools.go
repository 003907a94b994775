package calendar_tools

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/teemow/noon/internal/action"
	"github.com/teemow/noon/internal/auth"
	"github.com/teemow/noon/internal/server"
	"github.com/teemow/noon/internal/tools/common"
)

const accountDescription = "Account name. Omit to use every linked account."

// credentials builds the call's bundle, or a tool error telling the
// caller how to link an account.
func credentials(ctx context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*auth.Context, *mcp.CallToolResult) {
	creds, err := common.Credentials(ctx, sc, request.GetArguments())
	if errors.Is(err, auth.ErrUnauthenticated) {
		return nil, mcp.NewToolResultError(fmt.Sprintf(`No Google account is linked (%v).

Run "noon auth login" to link an account, or pass a Google access token as a Bearer token.`, err))
	}
	if err != nil {
		return nil, mcp.NewToolResultErrorFromErr("Failed to load credentials", err)
	}
	return creds, nil
}

// location returns the "timeZone" argument, or the server default.
func location(request mcp.CallToolRequest, sc *server.ServerContext) (*time.Location, error) {
	name := request.GetString("timeZone", "")
	if name == "" {
		return sc.Location(), nil
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("unknown time zone %q", name)
	}
	return loc, nil
}

// window parses the required timeMin/timeMax arguments.
func window(request mcp.CallToolRequest) (action.TimeWindow, error) {
	minStr, err := request.RequireString("timeMin")
	if err != nil {
		return action.TimeWindow{}, err
	}
	maxStr, err := request.RequireString("timeMax")
	if err != nil {
		return action.TimeWindow{}, err
	}
	start, err := time.Parse(time.RFC3339, minStr)
	if err != nil {
		return action.TimeWindow{}, fmt.Errorf("invalid timeMin format: %w", err)
	}
	end, err := time.Parse(time.RFC3339, maxStr)
	if err != nil {
		return action.TimeWindow{}, fmt.Errorf("invalid timeMax format: %w", err)
	}
	return action.NewTimeWindow(start, end)
}

// RegisterCalendarTools registers all Calendar-related tools with the MCP server
func RegisterCalendarTools(s *mcpserver.MCPServer, sc *server.ServerContext) error {
	if err := RegisterResolveTools(s, sc); err != nil {
		return fmt.Errorf("failed to register resolve tools: %w", err)
	}
	if err := RegisterEventTools(s, sc); err != nil {
		return fmt.Errorf("failed to register event tools: %w", err)
	}
	if err := RegisterCalendarListTools(s, sc); err != nil {
		return fmt.Errorf("failed to register calendar list tools: %w", err)
	}
	return nil
}
