package action

import (
	"fmt"
	"strings"
)

// EventRef identifies an event on a specific calendar. Both fields are
// mandatory whenever an event is referenced.
type EventRef struct {
	EventID    string `json:"event_id"`
	CalendarID string `json:"calendar_id"`
}

// NewEventRef builds a reference and validates it.
func NewEventRef(eventID, calendarID string) (EventRef, error) {
	ref := EventRef{
		EventID:    strings.TrimSpace(eventID),
		CalendarID: strings.TrimSpace(calendarID),
	}
	if err := ref.Validate(); err != nil {
		return EventRef{}, err
	}
	return ref, nil
}

// Validate returns ErrMalformedReference if either identifier is missing.
func (r EventRef) Validate() error {
	switch {
	case r.EventID == "" && r.CalendarID == "":
		return fmt.Errorf("%w: event_id and calendar_id are empty", ErrMalformedReference)
	case r.EventID == "":
		return fmt.Errorf("%w: event_id is empty", ErrMalformedReference)
	case r.CalendarID == "":
		return fmt.Errorf("%w: calendar_id is empty", ErrMalformedReference)
	}
	return nil
}

func (r EventRef) String() string {
	return r.CalendarID + "/" + r.EventID
}
