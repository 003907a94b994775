// Package action defines the terminal output of a resolution cycle.
//
// A Record is the only thing the resolver ever returns. Its Request field is
// one of six kinds and its Metadata shape depends on the kind:
//
//	{"success": true, "request": "delete-event",
//	 "metadata": {"event-id": "abc", "calendar-id": "primary"}}
//
// Constructors (ShowEvent, ShowSchedule, CreateEvent, UpdateEvent,
// DeleteEvent, NoAction) enforce the per-kind invariants, and Validate checks
// any record, including one decoded from JSON, against the per-kind JSON Schema.
package action
