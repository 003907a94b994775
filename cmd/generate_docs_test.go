package cmd

import (
	"context"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegisteredTools(t *testing.T) {
	tools, err := registeredTools(context.Background())
	require.NoError(t, err)

	names := make([]string, 0, len(tools))
	for _, tool := range tools {
		names = append(names, tool.Name)
	}
	assert.Equal(t, []string{
		"calendar_execute_action",
		"calendar_list_calendars",
		"calendar_read_event",
		"calendar_read_schedule",
		"calendar_resolve_request",
		"calendar_search_events",
	}, names)
}

func TestGenerateToolsMarkdown(t *testing.T) {
	tools := []mcp.Tool{
		mcp.NewTool("calendar_resolve_request",
			mcp.WithDescription("Resolve a request"),
			mcp.WithString("query", mcp.Required(), mcp.Description("The request")),
			mcp.WithString("timeZone"),
		),
		mcp.NewTool("calendar_read_schedule", mcp.WithDescription("Read the schedule")),
	}

	md := generateToolsMarkdown(tools)
	assert.Contains(t, md, "## Resolution Tools\n\n### calendar_resolve_request\n\nResolve a request\n\n")
	assert.Contains(t, md, "- `query` (required): The request\n")
	assert.Contains(t, md, "- `timeZone` (optional): string parameter\n")
	assert.Contains(t, md, "## Calendar Tools\n\n### calendar_read_schedule\n")
	assert.Less(t, strings.Index(md, "## Resolution Tools"), strings.Index(md, "## Calendar Tools"))
}
