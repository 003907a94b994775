package calendar

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	calendar "google.golang.org/api/calendar/v3"
	"google.golang.org/api/option"

	"github.com/teemow/noon/internal/action"
)

// maxPageSize is the page size requested from the Calendar API.
const maxPageSize = 250

// Client wraps the Google Calendar service for one linked account.
type Client struct {
	svc     *calendar.Service
	account string
}

// NewClient creates a Calendar client for account that sends its requests
// through httpClient. Extra options (an endpoint override in tests) are
// passed to the API client.
func NewClient(ctx context.Context, account string, httpClient *http.Client, opts ...option.ClientOption) (*Client, error) {
	if httpClient == nil {
		return nil, fmt.Errorf("http client cannot be nil")
	}
	opts = append([]option.ClientOption{option.WithHTTPClient(httpClient)}, opts...)
	svc, err := calendar.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create Calendar service: %w", err)
	}
	return &Client{svc: svc, account: account}, nil
}

// Account returns the account name this client is associated with
func (c *Client) Account() string {
	return c.account
}

// ListEvents lists the single (expanded) events of calendarID that overlap
// window. A non-empty query is passed to the provider's free-text search.
func (c *Client) ListEvents(ctx context.Context, calendarID string, window action.TimeWindow, query string) ([]Event, error) {
	call := c.svc.Events.List(calendarID).
		TimeMin(window.Start.Format(time.RFC3339)).
		TimeMax(window.End.Format(time.RFC3339)).
		SingleEvents(true).
		OrderBy("startTime").
		MaxResults(maxPageSize)

	if query != "" {
		call = call.Q(query)
	}

	loc := window.Start.Location()
	var events []Event
	err := call.Pages(ctx, func(page *calendar.Events) error {
		for _, item := range page.Items {
			if item == nil || item.Status == "cancelled" {
				continue
			}
			events = append(events, toEvent(calendarID, c.account, item, loc))
		}
		return nil
	})
	if err != nil {
		return nil, classify("failed to list events", err)
	}
	return events, nil
}

// GetEvent retrieves a specific event by ID.
func (c *Client) GetEvent(ctx context.Context, ref action.EventRef, loc *time.Location) (*Event, error) {
	event, err := c.svc.Events.Get(ref.CalendarID, ref.EventID).Context(ctx).Do()
	if err != nil {
		return nil, classify("failed to get event", err)
	}
	e := toEvent(ref.CalendarID, c.account, event, loc)
	return &e, nil
}

// CreateEvent inserts a new event described by draft.
func (c *Client) CreateEvent(ctx context.Context, draft action.Draft) (*Event, error) {
	event := &calendar.Event{
		Summary:     draft.Summary,
		Description: draft.Description,
		Location:    draft.Location,
		Start:       toEventDateTime(draft.Timing.Start),
		End:         toEventDateTime(draft.Timing.End),
	}

	created, err := c.svc.Events.Insert(draft.CalendarID, event).Context(ctx).Do()
	if err != nil {
		return nil, classify("failed to create event", err)
	}
	e := toEvent(draft.CalendarID, c.account, created, draft.Timing.Start.Time.Location())
	return &e, nil
}

// PatchEvent applies the fields set in patch and leaves the rest untouched.
func (c *Client) PatchEvent(ctx context.Context, patch action.Patch) (*Event, error) {
	event := &calendar.Event{}
	var forceSend []string

	if patch.Summary != nil {
		event.Summary = *patch.Summary
	}
	if patch.Description != nil {
		event.Description = *patch.Description
		if *patch.Description == "" {
			forceSend = append(forceSend, "Description")
		}
	}
	if patch.Location != nil {
		event.Location = *patch.Location
		if *patch.Location == "" {
			forceSend = append(forceSend, "Location")
		}
	}
	if patch.Start != nil {
		event.Start = toEventDateTime(*patch.Start)
	}
	if patch.End != nil {
		event.End = toEventDateTime(*patch.End)
	}
	event.ForceSendFields = forceSend

	updated, err := c.svc.Events.Patch(patch.Ref.CalendarID, patch.Ref.EventID, event).Context(ctx).Do()
	if err != nil {
		return nil, classify("failed to update event", err)
	}
	var loc *time.Location
	if patch.Start != nil {
		loc = patch.Start.Time.Location()
	}
	e := toEvent(patch.Ref.CalendarID, c.account, updated, loc)
	return &e, nil
}

// DeleteEvent deletes a calendar event.
func (c *Client) DeleteEvent(ctx context.Context, ref action.EventRef) error {
	if err := c.svc.Events.Delete(ref.CalendarID, ref.EventID).Context(ctx).Do(); err != nil {
		return classify("failed to delete event", err)
	}
	return nil
}

// ListCalendars lists all calendars accessible to the account.
func (c *Client) ListCalendars(ctx context.Context) ([]Calendar, error) {
	var calendars []Calendar
	err := c.svc.CalendarList.List().MaxResults(maxPageSize).Pages(ctx, func(page *calendar.CalendarList) error {
		for _, entry := range page.Items {
			if entry == nil || entry.Deleted {
				continue
			}
			calendars = append(calendars, toCalendar(c.account, entry))
		}
		return nil
	})
	if err != nil {
		return nil, classify("failed to list calendars", err)
	}
	return calendars, nil
}

// searchQuery joins keywords into the provider's free-text query.
func searchQuery(keywords []string) string {
	var parts []string
	for _, k := range keywords {
		if k = strings.TrimSpace(k); k != "" {
			parts = append(parts, k)
		}
	}
	return strings.Join(parts, " ")
}
