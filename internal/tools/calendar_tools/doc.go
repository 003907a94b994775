// Package calendar_tools provides MCP (Model Context Protocol) tools for
// calendar requests.
//
// calendar_resolve_request turns a natural-language request into one
// action record without changing the calendar. calendar_execute_action
// applies such a record and is only registered when the deployment can
// write. The remaining tools read schedules, events and calendars across
// the caller's linked accounts.
package calendar_tools
