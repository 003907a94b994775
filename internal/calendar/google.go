package calendar

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"slices"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/sync/errgroup"
	"google.golang.org/api/option"

	"github.com/teemow/noon/internal/action"
	"github.com/teemow/noon/internal/auth"
	"github.com/teemow/noon/internal/instrumentation"
	"github.com/teemow/noon/internal/logging"
)

// defaultAccountConcurrency bounds the accounts queried in parallel by one call.
const defaultAccountConcurrency = 4

// GoogleConfig configures a GoogleService.
type GoogleConfig struct {
	// OAuth refreshes expired access tokens. Without it tokens are used as-is.
	OAuth *oauth2.Config
	// Transport is shared by every account. Defaults to http.DefaultTransport.
	Transport http.RoundTripper
	// AccountConcurrency bounds the per-call fan-out across accounts.
	AccountConcurrency int
	// ClientOptions are appended to every API client (endpoint overrides).
	ClientOptions []option.ClientOption

	Metrics *instrumentation.Metrics
	Logger  *slog.Logger
}

// GoogleService is the Google Calendar implementation of Service. It is
// built once and shared by every resolution cycle; credentials arrive with
// each call.
type GoogleService struct {
	oauth       *oauth2.Config
	base        http.RoundTripper
	refreshCtx  context.Context
	concurrency int
	opts        []option.ClientOption
	metrics     *instrumentation.Metrics
	logger      *slog.Logger
}

var _ Service = (*GoogleService)(nil)

// NewGoogleService creates the Google Calendar port.
func NewGoogleService(cfg GoogleConfig) *GoogleService {
	base := cfg.Transport
	if base == nil {
		base = http.DefaultTransport
	}
	concurrency := cfg.AccountConcurrency
	if concurrency <= 0 {
		concurrency = defaultAccountConcurrency
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &GoogleService{
		oauth:       cfg.OAuth,
		base:        base,
		refreshCtx:  context.WithValue(context.Background(), oauth2.HTTPClient, &http.Client{Transport: base}),
		concurrency: concurrency,
		opts:        cfg.ClientOptions,
		metrics:     cfg.Metrics,
		logger:      logger.With("component", "calendar"),
	}
}

// client builds the API client of one account. Token refreshes go through
// the shared transport as well.
func (s *GoogleService) client(ctx context.Context, acct auth.Account) (*Client, error) {
	if !acct.HasToken() {
		return nil, fmt.Errorf("account %s has no token: %w", acct.ID, auth.ErrUnauthenticated)
	}
	var src oauth2.TokenSource = oauth2.StaticTokenSource(acct.Token)
	if s.oauth != nil {
		src = s.oauth.TokenSource(s.refreshCtx, acct.Token)
	}
	hc := &http.Client{Transport: &oauth2.Transport{Source: src, Base: s.base}}
	return NewClient(ctx, acct.ID, hc, s.opts...)
}

// observe wraps one provider request in a span and records its metrics.
func (s *GoogleService) observe(ctx context.Context, op string, fn func(context.Context) error) error {
	ctx, span := instrumentation.StartGoogleAPISpan(ctx, instrumentation.ServiceCalendar, op)
	defer span.End()

	start := time.Now()
	err := fn(ctx)
	status := instrumentation.StatusSuccess
	if err != nil {
		status = instrumentation.StatusError
		instrumentation.SetSpanError(span, err)
	} else {
		instrumentation.SetSpanSuccess(span)
	}
	s.metrics.RecordGoogleAPIOperation(ctx, instrumentation.ServiceCalendar, op, status, time.Since(start))
	return err
}

// fanOut runs fn for every account of creds in parallel and merges the
// results. One failing account does not hide the others; the call only
// fails when every account failed.
func fanOut[T any](ctx context.Context, s *GoogleService, creds *auth.Context, op string, fn func(context.Context, *Client) ([]T, error)) ([]T, error) {
	if err := creds.Validate(); err != nil {
		return nil, err
	}

	results := make([][]T, len(creds.Accounts))
	errs := make([]error, len(creds.Accounts))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for i, acct := range creds.Accounts {
		g.Go(func() error {
			c, err := s.client(gctx, acct)
			if err != nil {
				errs[i] = err
				return nil
			}
			results[i], errs[i] = fn(gctx, c)
			return nil
		})
	}
	_ = g.Wait()

	var (
		merged []T
		failed []error
	)
	for i := range creds.Accounts {
		if errs[i] != nil {
			failed = append(failed, errs[i])
			s.logger.WarnContext(ctx, "calendar account failed",
				logging.Operation(op),
				logging.Account(creds.Accounts[i].ID),
				logging.Err(errs[i]))
			continue
		}
		merged = append(merged, results[i]...)
	}
	if len(failed) == len(creds.Accounts) {
		return nil, errors.Join(failed...)
	}
	return merged, nil
}

// ReadSchedule lists the events of every visible calendar of every account.
func (s *GoogleService) ReadSchedule(ctx context.Context, creds *auth.Context, window action.TimeWindow) ([]Event, error) {
	return s.listEvents(ctx, creds, window, nil)
}

// SearchEvents lists the events matching every keyword.
func (s *GoogleService) SearchEvents(ctx context.Context, creds *auth.Context, keywords []string, window action.TimeWindow) ([]Event, error) {
	events, err := s.listEvents(ctx, creds, window, keywords)
	if err != nil {
		return nil, err
	}
	matched := make([]Event, 0, len(events))
	for _, e := range events {
		if MatchesKeywords(e, keywords) {
			matched = append(matched, e)
		}
	}
	return matched, nil
}

func (s *GoogleService) listEvents(ctx context.Context, creds *auth.Context, window action.TimeWindow, keywords []string) ([]Event, error) {
	if err := window.Validate(); err != nil {
		return nil, err
	}
	op := instrumentation.OperationList
	if len(keywords) > 0 {
		op = instrumentation.OperationSearch
	}
	query := searchQuery(keywords)

	events, err := fanOut(ctx, s, creds, op, func(ctx context.Context, c *Client) ([]Event, error) {
		var calendars []Calendar
		err := s.observe(ctx, instrumentation.OperationList, func(ctx context.Context) error {
			var err error
			calendars, err = c.ListCalendars(ctx)
			return err
		})
		if err != nil {
			return nil, err
		}

		var events []Event
		for _, cal := range calendars {
			if !cal.Visible() {
				continue
			}
			err := s.observe(ctx, op, func(ctx context.Context) error {
				found, err := c.ListEvents(ctx, cal.ID, window, query)
				events = append(events, found...)
				return err
			})
			if err != nil {
				return nil, err
			}
		}
		return events, nil
	})
	if err != nil {
		return nil, err
	}
	return SortEvents(dedupe(events)), nil
}

// ReadEvent looks the reference up in each account until one has it.
func (s *GoogleService) ReadEvent(ctx context.Context, creds *auth.Context, ref action.EventRef) (*Event, error) {
	if err := ref.Validate(); err != nil {
		return nil, err
	}
	if err := creds.Validate(); err != nil {
		return nil, err
	}

	var lastErr error
	for _, acct := range creds.Accounts {
		c, err := s.client(ctx, acct)
		if err != nil {
			lastErr = err
			continue
		}
		var event *Event
		err = s.observe(ctx, instrumentation.OperationGet, func(ctx context.Context) error {
			var err error
			event, err = c.GetEvent(ctx, ref, nil)
			return err
		})
		if err == nil {
			return event, nil
		}
		lastErr = err
		if !errors.Is(err, ErrNotFound) {
			s.logger.WarnContext(ctx, "read event failed",
				logging.Account(acct.ID),
				logging.Err(err))
		}
	}
	return nil, lastErr
}

// ListCalendars lists the calendars of every account.
func (s *GoogleService) ListCalendars(ctx context.Context, creds *auth.Context) ([]Calendar, error) {
	return fanOut(ctx, s, creds, instrumentation.OperationList, func(ctx context.Context, c *Client) ([]Calendar, error) {
		var calendars []Calendar
		err := s.observe(ctx, instrumentation.OperationList, func(ctx context.Context) error {
			var err error
			calendars, err = c.ListCalendars(ctx)
			return err
		})
		return calendars, err
	})
}

// CreateEvent inserts the draft into the account owning its calendar.
func (s *GoogleService) CreateEvent(ctx context.Context, creds *auth.Context, draft action.Draft) (*Event, error) {
	c, err := s.accountFor(ctx, creds, draft.CalendarID)
	if err != nil {
		return nil, err
	}
	var event *Event
	err = s.observe(ctx, instrumentation.OperationCreate, func(ctx context.Context) error {
		var err error
		event, err = c.CreateEvent(ctx, draft)
		return err
	})
	return event, err
}

// UpdateEvent patches the referenced event.
func (s *GoogleService) UpdateEvent(ctx context.Context, creds *auth.Context, patch action.Patch) (*Event, error) {
	if err := patch.Validate(); err != nil {
		return nil, err
	}
	c, err := s.accountFor(ctx, creds, patch.Ref.CalendarID)
	if err != nil {
		return nil, err
	}
	var event *Event
	err = s.observe(ctx, instrumentation.OperationUpdate, func(ctx context.Context) error {
		var err error
		event, err = c.PatchEvent(ctx, patch)
		return err
	})
	return event, err
}

// DeleteEvent removes the referenced event.
func (s *GoogleService) DeleteEvent(ctx context.Context, creds *auth.Context, ref action.EventRef) error {
	if err := ref.Validate(); err != nil {
		return err
	}
	c, err := s.accountFor(ctx, creds, ref.CalendarID)
	if err != nil {
		return err
	}
	return s.observe(ctx, instrumentation.OperationDelete, func(ctx context.Context) error {
		return c.DeleteEvent(ctx, ref)
	})
}

// accountFor picks the account that can write to calendarID. "primary" and
// single-account bundles resolve to the first account.
func (s *GoogleService) accountFor(ctx context.Context, creds *auth.Context, calendarID string) (*Client, error) {
	if err := creds.Validate(); err != nil {
		return nil, err
	}
	if calendarID == "primary" || len(creds.Accounts) == 1 {
		return s.client(ctx, creds.Accounts[0])
	}

	calendars, err := s.ListCalendars(ctx, creds)
	if err != nil {
		return nil, err
	}
	for _, cal := range calendars {
		if cal.ID != calendarID || !cal.Writable() {
			continue
		}
		if acct, ok := creds.Account(cal.Account); ok {
			return s.client(ctx, acct)
		}
	}
	return nil, fmt.Errorf("no writable calendar %q in linked accounts: %w", calendarID, ErrNotFound)
}

// MatchesKeywords reports whether every keyword occurs, case-insensitively,
// in the event's summary, description or location. No keywords match
// everything.
func MatchesKeywords(e Event, keywords []string) bool {
	text := strings.ToLower(e.Summary + "\n" + e.Description + "\n" + e.Location)
	for _, k := range keywords {
		k = strings.ToLower(strings.TrimSpace(k))
		if k != "" && !strings.Contains(text, k) {
			return false
		}
	}
	return true
}

// SortEvents orders events by start, then calendar, then ID.
func SortEvents(events []Event) []Event {
	slices.SortStableFunc(events, func(a, b Event) int {
		if c := a.Start.Compare(b.Start); c != 0 {
			return c
		}
		if c := cmp.Compare(a.CalendarID, b.CalendarID); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	return events
}

// dedupe drops repeated references, which appear when accounts share a calendar.
func dedupe(events []Event) []Event {
	seen := make(map[string]bool, len(events))
	out := events[:0]
	for _, e := range events {
		key := e.CalendarID + "\x00" + e.ID
		if e.ID != "" && seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, e)
	}
	return out
}
