// Package google holds the Google OAuth plumbing of noon: the OAuth2
// configuration for the Calendar API, the loopback login used by
// "noon auth login", and the token providers that turn stored tokens into
// the credential bundle of a resolution cycle.
//
// FileTokenProvider keeps one token file per account in the user's cache
// directory and serves the CLI and the stdio MCP transport.
// StoreTokenProvider keeps tokens in an mcp-oauth storage backend (memory
// or valkey) and serves the HTTP transports.
package google
