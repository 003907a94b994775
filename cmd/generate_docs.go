package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"slices"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"

	"github.com/teemow/noon/internal/server"
	"github.com/teemow/noon/internal/tools/calendar_tools"
)

func newGenerateDocsCmd() *cobra.Command {
	var outputFile string

	cmd := &cobra.Command{
		Use:   "generate-docs",
		Short: "Generate MCP tool documentation",
		Long: `Generate markdown documentation for all MCP tools served by "noon serve".
The tools are registered as with --yolo and their definitions are rendered,
so the reference always matches the implementation.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			tools, err := registeredTools(cmd.Context())
			if err != nil {
				return err
			}
			if outputFile == "" {
				_, err := io.WriteString(cmd.OutOrStdout(), generateToolsMarkdown(tools))
				return err
			}
			if err := os.WriteFile(outputFile, []byte(generateToolsMarkdown(tools)), 0o644); err != nil {
				return fmt.Errorf("failed to write output file: %w", err)
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "Documentation written to: %s\n", outputFile)
			return nil
		},
	}

	cmd.Flags().StringVarP(&outputFile, "output", "o", "", "Output file (default: stdout)")
	return cmd
}

// registeredTools lists the tools of a server with every tool enabled. No
// credentials are needed; the ports are never called.
func registeredTools(ctx context.Context) ([]mcp.Tool, error) {
	cfg := DefaultConfig()
	logger := newLogger(false)
	p, err := buildPorts(cfg, nil, nil, logger)
	if err != nil {
		return nil, err
	}
	resolver, err := buildResolver(cfg, p.reader, nil, nil, logger)
	if err != nil {
		return nil, err
	}
	sc, err := server.NewServerContext(ctx, server.Config{
		Resolver: resolver,
		Reader:   p.reader,
		Writer:   p.writer,
		Logger:   logger,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create server context: %w", err)
	}
	defer func() { _ = sc.Shutdown() }()

	mcpSrv := mcpserver.NewMCPServer("noon", version, mcpserver.WithToolCapabilities(true))
	if err := calendar_tools.RegisterCalendarTools(mcpSrv, sc); err != nil {
		return nil, fmt.Errorf("failed to register calendar tools: %w", err)
	}

	tools := make([]mcp.Tool, 0)
	for _, st := range mcpSrv.ListTools() {
		tools = append(tools, st.Tool)
	}
	slices.SortFunc(tools, func(a, b mcp.Tool) int { return strings.Compare(a.Name, b.Name) })
	return tools, nil
}

func generateToolsMarkdown(tools []mcp.Tool) string {
	var sb strings.Builder

	sb.WriteString("# MCP Tools Reference\n\n")
	sb.WriteString("This document lists the tools available when running noon as an MCP server.\n\n")
	sb.WriteString("**Note:** This documentation is automatically generated from the tool definitions.\n\n")

	sb.WriteString("## Accounts\n\n")
	sb.WriteString("Every tool accepts an optional `account` argument naming one linked Google account. ")
	sb.WriteString("Without it, all linked accounts are read. `calendar_execute_action` is only served with `--yolo`.\n\n")

	groups := map[string][]mcp.Tool{}
	for _, tool := range tools {
		category := toolCategory(tool.Name)
		groups[category] = append(groups[category], tool)
	}
	for _, category := range []string{"Resolution Tools", "Calendar Tools"} {
		if len(groups[category]) == 0 {
			continue
		}
		fmt.Fprintf(&sb, "## %s\n\n", category)
		for _, tool := range groups[category] {
			sb.WriteString(generateToolMarkdown(tool))
			sb.WriteString("\n")
		}
	}
	return sb.String()
}

func toolCategory(name string) string {
	switch name {
	case "calendar_resolve_request", "calendar_execute_action":
		return "Resolution Tools"
	default:
		return "Calendar Tools"
	}
}

func generateToolMarkdown(tool mcp.Tool) string {
	var sb strings.Builder

	fmt.Fprintf(&sb, "### %s\n\n", tool.Name)
	if tool.Description != "" {
		fmt.Fprintf(&sb, "%s\n\n", tool.Description)
	}

	if len(tool.InputSchema.Properties) == 0 {
		return sb.String()
	}

	sb.WriteString("**Arguments:**\n")
	names := make([]string, 0, len(tool.InputSchema.Properties))
	for name := range tool.InputSchema.Properties {
		names = append(names, name)
	}
	slices.Sort(names)

	for _, name := range names {
		prop, ok := tool.InputSchema.Properties[name].(map[string]any)
		if !ok {
			continue
		}
		required := "optional"
		if slices.Contains(tool.InputSchema.Required, name) {
			required = "required"
		}
		fmt.Fprintf(&sb, "- `%s` (%s): ", name, required)
		if desc, ok := prop["description"].(string); ok {
			sb.WriteString(desc)
		} else {
			fmt.Fprintf(&sb, "%s parameter", propertyType(prop))
		}
		sb.WriteString("\n")
	}
	sb.WriteString("\n")
	return sb.String()
}

func propertyType(prop map[string]any) string {
	if t, ok := prop["type"].(string); ok {
		return t
	}
	return "any"
}
