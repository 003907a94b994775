package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/teemow/noon/internal/auth"
	"github.com/teemow/noon/internal/calendar"
	"github.com/teemow/noon/internal/instrumentation"
	"github.com/teemow/noon/internal/logging"
)

// Gatherer executes gathering calls against the calendar port. Port
// failures never leave it: they become the fact's Err. The one exception
// is auth.ErrUnauthenticated, which ends the cycle.
type Gatherer struct {
	reader  calendar.Reader
	bridge  *Bridge
	metrics *instrumentation.Metrics
	logger  *slog.Logger
}

// NewGatherer creates a Gatherer. A nil bridge runs calls unbounded.
func NewGatherer(reader calendar.Reader, bridge *Bridge, metrics *instrumentation.Metrics, logger *slog.Logger) *Gatherer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Gatherer{reader: reader, bridge: bridge, metrics: metrics, logger: logger}
}

// Gather runs one call with the carrier's credentials.
func (g *Gatherer) Gather(ctx context.Context, carrier *auth.Carrier, call GatherCall) (Fact, error) {
	creds, err := carrier.Credentials()
	if err != nil {
		return Fact{Call: call, Err: err.Error()}, err
	}

	tool := call.Tool()
	ctx, span := instrumentation.StartGatherSpan(ctx, tool)
	defer span.End()
	start := time.Now()

	fact := g.run(ctx, creds, call)

	status := instrumentation.StatusSuccess
	if fact.Failed() {
		status = instrumentation.StatusError
		span.SetAttributes(attribute.String(instrumentation.SpanAttrStatus, status))
		instrumentation.SetSpanError(span, errors.New(fact.Err))
	} else {
		instrumentation.SetSpanSuccess(span)
	}
	g.metrics.RecordGatherCall(ctx, tool, status, time.Since(start))

	if fact.Dropped > 0 {
		g.logger.WarnContext(ctx, "dropped events without a reference",
			logging.Tool(tool),
			slog.Int("dropped", fact.Dropped))
	}
	if fact.Failed() {
		g.logger.WarnContext(ctx, "gathering call failed",
			logging.Tool(tool),
			slog.String(logging.KeyError, fact.Err))
		if errors.Is(fact.cause, auth.ErrUnauthenticated) {
			return fact, fact.cause
		}
	}
	return fact, nil
}

func (g *Gatherer) run(ctx context.Context, creds *auth.Context, call GatherCall) Fact {
	fact := Fact{Call: call}
	switch c := call.(type) {
	case ReadSchedule:
		events, err := Await(ctx, g.bridge, func(ctx context.Context) ([]calendar.Event, error) {
			return g.reader.ReadSchedule(ctx, creds, c.Window)
		})
		fact.fail(err)
		fact.Events, fact.Dropped = summaries(events)

	case SearchEvents:
		events, err := Await(ctx, g.bridge, func(ctx context.Context) ([]calendar.Event, error) {
			return g.reader.SearchEvents(ctx, creds, c.Keywords, c.Window)
		})
		fact.fail(err)
		fact.Events, fact.Dropped = summaries(events)

	case ReadEvent:
		event, err := Await(ctx, g.bridge, func(ctx context.Context) (*calendar.Event, error) {
			return g.reader.ReadEvent(ctx, creds, c.Ref)
		})
		fact.fail(err)
		if err == nil && event != nil {
			// The reference the caller asked for is authoritative.
			if event.ID == "" {
				event.ID = c.Ref.EventID
			}
			if event.CalendarID == "" {
				event.CalendarID = c.Ref.CalendarID
			}
			fact.Event = event
		} else if err == nil {
			fact.fail(fmt.Errorf("event %s: %w", c.Ref, calendar.ErrNotFound))
		}

	case ListCalendars:
		calendars, err := Await(ctx, g.bridge, func(ctx context.Context) ([]calendar.Calendar, error) {
			return g.reader.ListCalendars(ctx, creds)
		})
		fact.fail(err)
		if err == nil {
			fact.Calendars = calendars
			if fact.Calendars == nil {
				fact.Calendars = []calendar.Calendar{}
			}
		}

	default:
		fact.fail(fmt.Errorf("unsupported gathering call %T", call))
	}
	return fact
}

func (f *Fact) fail(err error) {
	if err == nil {
		return
	}
	f.Err = err.Error()
	f.cause = err
}

// summaries keeps the events carrying a full reference.
func summaries(events []calendar.Event) ([]EventSummary, int) {
	out := make([]EventSummary, 0, len(events))
	dropped := 0
	for _, e := range events {
		if _, err := e.Ref(); err != nil {
			dropped++
			continue
		}
		out = append(out, summarize(e))
	}
	return out, dropped
}
