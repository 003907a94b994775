package instrumentation

import "strings"

// Operation types for Google API metrics.
// Status, router decision and service constants are defined in config.go.
const (
	OperationList   = "list"
	OperationGet    = "get"
	OperationCreate = "create"
	OperationUpdate = "update"
	OperationDelete = "delete"
	OperationSearch = "search"
)

// CalendarLabel reduces a calendar ID to a low-cardinality label value.
// Calendar IDs are usually email addresses, so only "primary", the domain,
// or "unknown" is returned.
//
//	CalendarLabel("primary")                          // "primary"
//	CalendarLabel("jane@example.com")                 // "example.com"
//	CalendarLabel("en.usa#holiday@group.v.calendar.google.com") // "group.v.calendar.google.com"
func CalendarLabel(calendarID string) string {
	if calendarID == "primary" {
		return calendarID
	}
	at := strings.LastIndex(calendarID, "@")
	if at < 0 || at == len(calendarID)-1 {
		return "unknown"
	}
	return calendarID[at+1:]
}
