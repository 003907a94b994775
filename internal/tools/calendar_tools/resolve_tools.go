package calendar_tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/teemow/noon/internal/action"
	"github.com/teemow/noon/internal/agent"
	"github.com/teemow/noon/internal/auth"
	"github.com/teemow/noon/internal/calendar"
	"github.com/teemow/noon/internal/instrumentation"
	"github.com/teemow/noon/internal/server"
	"github.com/teemow/noon/internal/tools/common"
)

// RegisterResolveTools registers the request resolution tool and, for
// writable deployments, the execution tool.
func RegisterResolveTools(s *mcpserver.MCPServer, sc *server.ServerContext) error {
	resolveTool := mcp.NewTool("calendar_resolve_request",
		mcp.WithDescription("Resolve a natural-language calendar request (e.g. 'cancel my dentist appointment') into one action record. The calendar is not changed."),
		mcp.WithString("query",
			mcp.Required(),
			mcp.Description("The user's request"),
		),
		mcp.WithString("now",
			mcp.Description("Current time (RFC3339). Defaults to the server clock."),
		),
		mcp.WithString("timeZone",
			mcp.Description("Time zone of the user (e.g., 'America/New_York')"),
		),
		mcp.WithString("account",
			mcp.Description(accountDescription),
		),
	)

	s.AddTool(resolveTool, common.InstrumentedToolHandlerWithService(
		"calendar_resolve_request", instrumentation.ServiceCalendar, "resolve", sc,
		func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return handleResolveRequest(ctx, request, sc)
		}))

	if sc.Writer() == nil {
		return nil
	}

	executeTool := mcp.NewTool("calendar_execute_action",
		mcp.WithDescription("Apply a create-event, update-event or delete-event record returned by calendar_resolve_request"),
		mcp.WithString("record",
			mcp.Required(),
			mcp.Description("The action record as JSON"),
		),
		mcp.WithString("timeZone",
			mcp.Description("Time zone for all-day dates in the record"),
		),
		mcp.WithString("account",
			mcp.Description(accountDescription),
		),
	)

	s.AddTool(executeTool, common.InstrumentedToolHandlerWithService(
		"calendar_execute_action", instrumentation.ServiceCalendar, "execute", sc,
		func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return handleExecuteAction(ctx, request, sc)
		}))

	return nil
}

func handleResolveRequest(ctx context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	query, err := request.RequireString("query")
	if err != nil || query == "" {
		return mcp.NewToolResultError("query is required"), nil
	}
	loc, err := location(request, sc)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	q := agent.Query{Text: query, Location: loc}
	if nowStr := request.GetString("now", ""); nowStr != "" {
		now, err := time.Parse(time.RFC3339, nowStr)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("Invalid now format: %v", err)), nil
		}
		q.Now = now
	}

	// Without credentials the resolver still answers, with a failed
	// no-action record naming the reason.
	creds, err := common.Credentials(ctx, sc, request.GetArguments())
	if err != nil && !errors.Is(err, auth.ErrUnauthenticated) {
		return mcp.NewToolResultErrorFromErr("Failed to load credentials", err), nil
	}

	record := sc.Resolver().Resolve(ctx, q, creds)
	return mcp.NewToolResultJSON(record)
}

func handleExecuteAction(ctx context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	record, err := recordArgument(request)
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

	result, err := calendar.Apply(ctx, sc.Writer(), creds, record, loc)
	if err != nil {
		return mcp.NewToolResultErrorFromErr("Failed to apply record", err), nil
	}
	return mcp.NewToolResultJSON(result)
}

// recordArgument accepts the record as a JSON string or as an object.
func recordArgument(request mcp.CallToolRequest) (action.Record, error) {
	var record action.Record
	raw, ok := request.GetArguments()["record"]
	if !ok {
		return record, fmt.Errorf("record is required")
	}
	var data []byte
	switch v := raw.(type) {
	case string:
		data = []byte(v)
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return record, fmt.Errorf("invalid record: %w", err)
		}
		data = b
	}
	if err := json.Unmarshal(data, &record); err != nil {
		return record, fmt.Errorf("invalid record: %w", err)
	}
	if err := action.Validate(record); err != nil {
		return record, fmt.Errorf("invalid record: %w", err)
	}
	return record, nil
}
