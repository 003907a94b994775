package common

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/metric/noop"

	"github.com/teemow/noon/internal/agent"
	"github.com/teemow/noon/internal/auth"
	"github.com/teemow/noon/internal/calendar/calendartest"
	"github.com/teemow/noon/internal/instrumentation"
	"github.com/teemow/noon/internal/reasoner"
	"github.com/teemow/noon/internal/server"
)

func newServerContext(t *testing.T, static *auth.Context) *server.ServerContext {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	fake := calendartest.New()
	loop := agent.NewLoop(reasoner.NewRules(), agent.NewGatherer(fake, agent.NewBridge(1), nil, logger), agent.Config{}, logger)
	sc, err := server.NewServerContext(context.Background(), server.Config{
		Resolver: agent.NewResolver(agent.NewRouter(nil), loop, agent.WithLogger(logger)),
		Reader:   fake,
		Static:   static,
		Logger:   logger,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = sc.Shutdown() })
	return sc
}

func instrumented(t *testing.T) (*server.ServerContext, *bytes.Buffer) {
	t.Helper()
	sc := newServerContext(t, nil)
	metrics, err := instrumentation.NewMetrics(noop.NewMeterProvider().Meter("test"), false)
	require.NoError(t, err)
	sc.SetMetrics(metrics)

	var buf bytes.Buffer
	sc.SetAuditLogger(instrumentation.NewAuditLogger(slog.New(slog.NewJSONHandler(&buf, nil))))
	return sc, &buf
}

func request(args map[string]any) mcp.CallToolRequest {
	req := mcp.CallToolRequest{}
	req.Params.Arguments = args
	return req
}

func TestInstrumentedToolHandler_WithoutInstrumentation(t *testing.T) {
	sc := newServerContext(t, nil)
	called := false
	wrapped := InstrumentedToolHandler("test_tool", sc, func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		called = true
		return mcp.NewToolResultText("success"), nil
	})

	result, err := wrapped(context.Background(), mcp.CallToolRequest{})
	require.NoError(t, err)
	assert.True(t, called)
	assert.NotNil(t, result)
}

func TestInstrumentedToolHandler_Outcomes(t *testing.T) {
	boom := errors.New("test error")
	tests := []struct {
		name     string
		result   *mcp.CallToolResult
		err      error
		wantMsg  string
		wantErr  error
		isResult bool
	}{
		{name: "success", result: mcp.NewToolResultText("ok"), wantMsg: "tool_executed", isResult: true},
		{name: "error result", result: mcp.NewToolResultError("bad input"), wantMsg: "tool_failed", isResult: true},
		{name: "handler error", err: boom, wantMsg: "tool_failed", wantErr: boom},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sc, buf := instrumented(t)
			wrapped := InstrumentedToolHandlerWithService("calendar_read_schedule", instrumentation.ServiceCalendar, "list", sc,
				func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error) {
					return tt.result, tt.err
				})

			ctx := server.WithIdentity(context.Background(), server.Identity{UserID: "jane@example.com"})
			result, err := wrapped(ctx, request(map[string]any{"account": "work"}))
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			} else {
				require.NoError(t, err)
			}
			assert.Equal(t, tt.isResult, result != nil)

			out := buf.String()
			assert.Contains(t, out, tt.wantMsg)
			assert.Contains(t, out, "calendar_read_schedule")
			assert.Contains(t, out, `"work"`)
			assert.NotContains(t, out, "jane@example.com")
		})
	}
}

func TestInstrumentedToolHandler_AllAccountsLabel(t *testing.T) {
	sc, buf := instrumented(t)
	wrapped := InstrumentedToolHandler("calendar_list_calendars", sc, func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		return mcp.NewToolResultText("ok"), nil
	})

	_, err := wrapped(context.Background(), mcp.CallToolRequest{})
	require.NoError(t, err)
	assert.Contains(t, buf.String(), `"`+AllAccounts+`"`)
}
