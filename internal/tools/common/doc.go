// Package common provides shared helpers for the MCP tool packages: the
// account argument, per-call credentials and the instrumented handler
// wrappers.
package common
