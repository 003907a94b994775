// Package resources provides MCP resources describing the caller's
// session: the Google accounts noon can read for them and the server
// settings that shape resolution.
package resources
