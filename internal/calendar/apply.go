package calendar

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/teemow/noon/internal/action"
	"github.com/teemow/noon/internal/auth"
)

// ErrNotExecutable is returned by Apply for records that do not change the
// calendar (show-event, show-schedule, no-action).
var ErrNotExecutable = errors.New("record does not change the calendar")

// Result is the outcome of applying a record.
type Result struct {
	Request action.Kind `json:"request"`
	Event   *Event      `json:"event,omitempty"`
	Deleted bool        `json:"deleted,omitempty"`
}

// Apply executes a create, update or delete record through w. loc resolves
// all-day dates in the record; nil means UTC.
func Apply(ctx context.Context, w Writer, creds *auth.Context, record action.Record, loc *time.Location) (*Result, error) {
	if err := action.Validate(record); err != nil {
		return nil, err
	}
	if !record.Success {
		return nil, fmt.Errorf("%w: record reports failure", ErrNotExecutable)
	}

	switch record.Request {
	case action.KindCreateEvent:
		draft, err := record.Draft(loc)
		if err != nil {
			return nil, err
		}
		event, err := w.CreateEvent(ctx, creds, draft)
		if err != nil {
			return nil, err
		}
		return &Result{Request: record.Request, Event: event}, nil

	case action.KindUpdateEvent:
		patch, err := record.Patch(loc)
		if err != nil {
			return nil, err
		}
		event, err := w.UpdateEvent(ctx, creds, patch)
		if err != nil {
			return nil, err
		}
		return &Result{Request: record.Request, Event: event}, nil

	case action.KindDeleteEvent:
		ref, err := record.Ref()
		if err != nil {
			return nil, err
		}
		if err := w.DeleteEvent(ctx, creds, ref); err != nil {
			return nil, err
		}
		return &Result{Request: record.Request, Deleted: true}, nil
	}

	return nil, fmt.Errorf("%w: %s", ErrNotExecutable, record.Request)
}
