// Package server provides the server context shared by the MCP tools and
// the HTTP API of noon.
//
// # Key Components
//
// ServerContext holds the resolver, the calendar ports and the credential
// sources. Credentials are built per request and handed to the resolver
// explicitly:
//   - the signed-in user's Google token plus the accounts they linked
//   - the file token cache serves the local user over stdio
//   - a static bundle serves read-only ICS deployments
//
// OAuth signs callers in with Google through mcp-oauth and guards /v1 and
// /mcp. Behind an authenticating gateway the X-Noon-User header may be
// trusted instead.
//
// LinkedAccounts keeps linked Google tokens in an mcp-oauth token store, in
// memory or in valkey.
//
// HTTPServer serves the API routes, the Kubernetes health probes and,
// optionally, MCP over streamable HTTP under /mcp. API routes are rate
// limited per caller.
//
// MetricsServer exposes Prometheus metrics on a dedicated port.
package server
