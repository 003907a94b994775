package calendar

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"golang.org/x/oauth2"
	"google.golang.org/api/googleapi"

	"github.com/teemow/noon/internal/action"
	"github.com/teemow/noon/internal/auth"
)

var (
	// ErrUpstreamUnavailable is returned when the calendar provider cannot be
	// reached or answers with a server-side failure.
	ErrUpstreamUnavailable = errors.New("calendar service unavailable")

	// ErrNotFound is returned when a referenced event or calendar does not
	// exist in any linked account.
	ErrNotFound = errors.New("not found")

	// ErrReadOnly is returned by ports that cannot write.
	ErrReadOnly = errors.New("calendar is read-only")
)

// Reader is the read side of the calendar port. Every method takes the
// cycle's credentials explicitly.
type Reader interface {
	// ReadSchedule returns the events overlapping window, ordered by start.
	ReadSchedule(ctx context.Context, creds *auth.Context, window action.TimeWindow) ([]Event, error)
	// SearchEvents returns the events overlapping window whose text matches
	// every keyword. No match is an empty slice, not an error.
	SearchEvents(ctx context.Context, creds *auth.Context, keywords []string, window action.TimeWindow) ([]Event, error)
	// ReadEvent returns the full detail of one event.
	ReadEvent(ctx context.Context, creds *auth.Context, ref action.EventRef) (*Event, error)
	// ListCalendars returns the calendars of every linked account.
	ListCalendars(ctx context.Context, creds *auth.Context) ([]Calendar, error)
}

// Writer is the write side of the calendar port. Only the execution backend
// calls it, after a resolution cycle has produced a record.
type Writer interface {
	CreateEvent(ctx context.Context, creds *auth.Context, draft action.Draft) (*Event, error)
	UpdateEvent(ctx context.Context, creds *auth.Context, patch action.Patch) (*Event, error)
	DeleteEvent(ctx context.Context, creds *auth.Context, ref action.EventRef) error
}

// Service is a full calendar port.
type Service interface {
	Reader
	Writer
}

// classify maps provider errors onto the port's sentinel errors.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%s: %w", op, err)
	}

	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		switch {
		case gerr.Code == http.StatusNotFound || gerr.Code == http.StatusGone:
			return fmt.Errorf("%s: %w: %v", op, ErrNotFound, err)
		case gerr.Code == http.StatusUnauthorized:
			return fmt.Errorf("%s: %w: %v", op, auth.ErrUnauthenticated, err)
		case gerr.Code == http.StatusTooManyRequests || gerr.Code >= 500:
			return fmt.Errorf("%s: %w: %v", op, ErrUpstreamUnavailable, err)
		}
		return fmt.Errorf("%s: %w", op, err)
	}

	// A refresh token the provider rejects cannot be retried with the same bundle.
	var rerr *oauth2.RetrieveError
	if errors.As(err, &rerr) {
		return fmt.Errorf("%s: %w: %v", op, auth.ErrUnauthenticated, err)
	}
	if errors.Is(err, auth.ErrUnauthenticated) || errors.Is(err, ErrNotFound) {
		return fmt.Errorf("%s: %w", op, err)
	}
	return fmt.Errorf("%s: %w: %v", op, ErrUpstreamUnavailable, err)
}
