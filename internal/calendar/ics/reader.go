// Package ics is a read-only calendar port over iCalendar feeds, read from
// local files or fetched over HTTP.
package ics

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	ical "github.com/arran4/golang-ical"

	"github.com/teemow/noon/internal/action"
	"github.com/teemow/noon/internal/auth"
	"github.com/teemow/noon/internal/calendar"
	"github.com/teemow/noon/internal/logging"
)

// Account is the account name reported on ICS events and calendars.
const Account = "ics"

// Source is one feed. Exactly one of Path and URL is set.
type Source struct {
	// ID is the calendar ID the feed's events carry.
	ID   string `yaml:"id"`
	Path string `yaml:"path,omitempty"`
	URL  string `yaml:"url,omitempty"`
}

func (s Source) validate() error {
	switch {
	case strings.TrimSpace(s.ID) == "":
		return fmt.Errorf("ics source needs an id")
	case (s.Path == "") == (s.URL == ""):
		return fmt.Errorf("ics source %s needs exactly one of path and url", s.ID)
	}
	return nil
}

// Config configures a Reader.
type Config struct {
	Sources    []Source
	HTTPClient *http.Client
	// Location resolves floating all-day dates. Defaults to the query window's location.
	Location *time.Location
	Logger   *slog.Logger
}

// Reader implements calendar.Reader over ICS feeds. Feeds are read on
// every call.
type Reader struct {
	sources []Source
	client  *http.Client
	loc     *time.Location
	logger  *slog.Logger
}

var _ calendar.Reader = (*Reader)(nil)

// New creates a Reader.
func New(cfg Config) (*Reader, error) {
	if len(cfg.Sources) == 0 {
		return nil, fmt.Errorf("at least one ics source is required")
	}
	seen := make(map[string]bool)
	for _, s := range cfg.Sources {
		if err := s.validate(); err != nil {
			return nil, err
		}
		if seen[s.ID] {
			return nil, fmt.Errorf("duplicate ics source %s", s.ID)
		}
		seen[s.ID] = true
	}

	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Reader{
		sources: cfg.Sources,
		client:  client,
		loc:     cfg.Location,
		logger:  logger.With("component", "ics"),
	}, nil
}

// Credentials returns the bundle used when the Reader is the only port:
// feeds need no token, but the port still refuses to run without a bundle.
func Credentials(userID string) *auth.Context {
	return auth.New(userID, auth.Account{ID: Account})
}

func (r *Reader) load(ctx context.Context, src Source) (*ical.Calendar, error) {
	if src.URL != "" {
		cal, err := ical.ParseCalendarFromUrl(src.URL, ctx, r.client)
		if err != nil {
			return nil, fmt.Errorf("failed to fetch %s: %w: %v", src.ID, calendar.ErrUpstreamUnavailable, err)
		}
		return cal, nil
	}

	f, err := os.Open(src.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w: %v", src.ID, calendar.ErrUpstreamUnavailable, err)
	}
	defer func() { _ = f.Close() }()
	cal, err := ical.ParseCalendar(f)
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", src.ID, err)
	}
	return cal, nil
}

func (r *Reader) entries(ctx context.Context, src Source, loc *time.Location) ([]entry, error) {
	cal, err := r.load(ctx, src)
	if err != nil {
		return nil, err
	}
	if r.loc != nil {
		loc = r.loc
	}
	var out []entry
	for _, ve := range cal.Events() {
		e, ok := parseEvent(ve, loc)
		if !ok {
			r.logger.WarnContext(ctx, "skipping unreadable event",
				slog.String("source", src.ID),
				slog.String("uid", ve.Id()))
			continue
		}
		out = append(out, e)
	}
	return out, nil
}

// events collects the events of every source overlapping window. A source
// that fails is logged and skipped unless every source failed.
func (r *Reader) events(ctx context.Context, creds *auth.Context, window action.TimeWindow) ([]calendar.Event, error) {
	if err := creds.Validate(); err != nil {
		return nil, err
	}
	if err := window.Validate(); err != nil {
		return nil, err
	}

	var (
		out     []calendar.Event
		lastErr error
		failed  int
	)
	for _, src := range r.sources {
		entries, err := r.entries(ctx, src, window.Start.Location())
		if err != nil {
			failed++
			lastErr = err
			r.logger.WarnContext(ctx, "ics source failed",
				slog.String("source", src.ID),
				logging.Err(err))
			continue
		}
		out = append(out, expand(r.logger, src.ID, entries, window)...)
	}
	if failed == len(r.sources) {
		return nil, lastErr
	}
	return calendar.SortEvents(out), nil
}

// ReadSchedule returns the events of every feed overlapping window.
func (r *Reader) ReadSchedule(ctx context.Context, creds *auth.Context, window action.TimeWindow) ([]calendar.Event, error) {
	return r.events(ctx, creds, window)
}

// SearchEvents returns the events overlapping window that match every keyword.
func (r *Reader) SearchEvents(ctx context.Context, creds *auth.Context, keywords []string, window action.TimeWindow) ([]calendar.Event, error) {
	events, err := r.events(ctx, creds, window)
	if err != nil {
		return nil, err
	}
	matched := make([]calendar.Event, 0, len(events))
	for _, e := range events {
		if calendar.MatchesKeywords(e, keywords) {
			matched = append(matched, e)
		}
	}
	return matched, nil
}

// ReadEvent finds an event by UID, or a recurring instance by the ID
// ReadSchedule gave it.
func (r *Reader) ReadEvent(ctx context.Context, creds *auth.Context, ref action.EventRef) (*calendar.Event, error) {
	if err := creds.Validate(); err != nil {
		return nil, err
	}
	if err := ref.Validate(); err != nil {
		return nil, err
	}
	src, ok := r.source(ref.CalendarID)
	if !ok {
		return nil, fmt.Errorf("calendar %s: %w", ref.CalendarID, calendar.ErrNotFound)
	}

	loc := r.loc
	if loc == nil {
		loc = time.UTC
	}
	entries, err := r.entries(ctx, src, loc)
	if err != nil {
		return nil, err
	}

	uid, instance := ref.EventID, time.Time{}
	if i := strings.LastIndex(ref.EventID, "_"); i > 0 {
		if t, err := time.Parse(instanceLayout, ref.EventID[i+1:]); err == nil {
			uid, instance = ref.EventID[:i], t
		}
	}

	for _, e := range entries {
		if e.uid != uid {
			continue
		}
		switch {
		case instance.IsZero() && e.recurrence == nil,
			!instance.IsZero() && e.recurrence != nil && e.recurrence.Equal(instance):
			ev := toEvent(src.ID, ref.EventID, e, e.start, e.end)
			return &ev, nil
		}
	}
	if !instance.IsZero() {
		window := action.TimeWindow{Start: instance.In(loc), End: instance.In(loc).Add(time.Second)}
		for _, ev := range expand(r.logger, src.ID, entries, window) {
			if ev.ID == ref.EventID {
				return &ev, nil
			}
		}
	}
	return nil, fmt.Errorf("event %s: %w", ref, calendar.ErrNotFound)
}

// ListCalendars describes each feed as a read-only calendar.
func (r *Reader) ListCalendars(ctx context.Context, creds *auth.Context) ([]calendar.Calendar, error) {
	if err := creds.Validate(); err != nil {
		return nil, err
	}
	out := make([]calendar.Calendar, 0, len(r.sources))
	for _, src := range r.sources {
		c := calendar.Calendar{
			ID:         src.ID,
			Summary:    src.ID,
			Selected:   true,
			AccessRole: "reader",
			Account:    Account,
		}
		cal, err := r.load(ctx, src)
		if err != nil {
			r.logger.WarnContext(ctx, "ics source failed", slog.String("source", src.ID), logging.Err(err))
		} else {
			for _, p := range cal.CalendarProperties {
				switch p.IANAToken {
				case "X-WR-CALNAME":
					c.Summary = p.Value
				case "X-WR-CALDESC":
					c.Description = p.Value
				case "X-WR-TIMEZONE":
					c.TimeZone = p.Value
				}
			}
		}
		out = append(out, c)
	}
	return out, nil
}

func (r *Reader) source(id string) (Source, bool) {
	for _, s := range r.sources {
		if s.ID == id {
			return s, true
		}
	}
	return Source{}, false
}
