package action

import "fmt"

// Kind identifies which of the six canonical outcomes a Record describes.
type Kind string

// The closed set of action kinds. Adding a member requires updating the
// router, the loop and the tool registry together.
const (
	KindShowEvent    Kind = "show-event"
	KindShowSchedule Kind = "show-schedule"
	KindCreateEvent  Kind = "create-event"
	KindUpdateEvent  Kind = "update-event"
	KindDeleteEvent  Kind = "delete-event"
	KindNoAction     Kind = "no-action"
)

// Kinds returns every valid kind in a stable order.
func Kinds() []Kind {
	return []Kind{
		KindShowEvent,
		KindShowSchedule,
		KindCreateEvent,
		KindUpdateEvent,
		KindDeleteEvent,
		KindNoAction,
	}
}

// Valid reports whether k is a member of the closed set.
func (k Kind) Valid() bool {
	switch k {
	case KindShowEvent, KindShowSchedule, KindCreateEvent, KindUpdateEvent, KindDeleteEvent, KindNoAction:
		return true
	}
	return false
}

// ReferencesEvent reports whether records of this kind must carry an EventRef.
func (k Kind) ReferencesEvent() bool {
	return k == KindShowEvent || k == KindUpdateEvent || k == KindDeleteEvent
}

// Mutates reports whether the kind describes a write against the calendar.
func (k Kind) Mutates() bool {
	return k == KindCreateEvent || k == KindUpdateEvent || k == KindDeleteEvent
}

// ParseKind converts a wire value into a Kind.
func ParseKind(s string) (Kind, error) {
	k := Kind(s)
	if !k.Valid() {
		return "", fmt.Errorf("unknown action kind %q", s)
	}
	return k, nil
}
