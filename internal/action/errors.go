package action

import "errors"

var (
	// ErrMalformedReference is returned when an event reference lacks its
	// event ID or calendar ID.
	ErrMalformedReference = errors.New("malformed event reference")

	// ErrInvalidWindow is returned when a time window does not satisfy start < end.
	ErrInvalidWindow = errors.New("invalid time window")

	// ErrInvalidTiming is returned when an event does not carry exactly one of
	// a datetime pair or a date pair.
	ErrInvalidTiming = errors.New("invalid event timing")

	// ErrNoChanges is returned when an update request changes nothing.
	ErrNoChanges = errors.New("update request contained no changes")

	// ErrMissingField is returned when a required metadata field is empty.
	ErrMissingField = errors.New("missing required field")
)
