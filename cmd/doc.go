// Package cmd implements the command-line interface for noon.
//
// This package provides the following commands:
//   - resolve: Resolve one calendar request into an action record, optionally executing it
//   - auth: Log Google accounts in and out of the local token cache
//   - serve: Start the HTTP API and the MCP server
//   - version: Display version information
//   - generate-docs: Generate markdown documentation for all MCP tools
//
// Agent settings (reasoner, bounds, timezone, ICS feeds) are read from an
// optional YAML file; see Config.
package cmd
