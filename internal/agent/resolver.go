package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/teemow/noon/internal/action"
	"github.com/teemow/noon/internal/auth"
	"github.com/teemow/noon/internal/instrumentation"
	"github.com/teemow/noon/internal/logging"
)

// Resolver turns a query into exactly one action record. It holds no
// per-cycle state, so Resolve may be called concurrently.
type Resolver struct {
	router  *Router
	loop    *Loop
	clock   func() time.Time
	logger  *slog.Logger
	metrics *instrumentation.Metrics
	audit   *instrumentation.AuditLogger
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithClock sets the clock used for queries without Now.
func WithClock(clock func() time.Time) Option {
	return func(r *Resolver) { r.clock = clock }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Resolver) { r.logger = logger }
}

// WithMetrics sets the metrics recorder.
func WithMetrics(m *instrumentation.Metrics) Option {
	return func(r *Resolver) { r.metrics = m }
}

// WithAuditLogger writes one audit entry per cycle.
func WithAuditLogger(al *instrumentation.AuditLogger) Option {
	return func(r *Resolver) { r.audit = al }
}

// NewResolver creates a Resolver.
func NewResolver(router *Router, loop *Loop, opts ...Option) *Resolver {
	r := &Resolver{
		router: router,
		loop:   loop,
		clock:  time.Now,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve runs one resolution cycle. It always returns a record that
// passes action.Validate. creds is only reachable during the cycle.
func (r *Resolver) Resolve(ctx context.Context, q Query, creds *auth.Context) (rec action.Record) {
	cycleID := uuid.NewString()
	start := time.Now()
	q = q.normalize(r.clock)

	ctx, span := instrumentation.StartResolveSpan(ctx, cycleID)
	defer span.End()
	logger := logging.WithCycle(r.logger, cycleID)

	carrier := auth.NewCarrier(creds)
	defer carrier.Close()

	var out Outcome
	defer func() {
		if p := recover(); p != nil {
			logger.ErrorContext(ctx, "resolution panicked", slog.Any("panic", p))
			out = Outcome{Err: fmt.Errorf("internal error: %v", p), RoundTrips: out.RoundTrips}
			rec = action.NoAction("internal error", false)
		}
		r.complete(ctx, span, logger, cycleID, q, creds, rec, out, time.Since(start))
	}()

	decision := r.router.Route(ctx, q)
	if decision.Terminal() {
		return *decision.Record
	}
	// Missing credentials surface on the first gathering call, so a cycle
	// that needs no calendar data still resolves.
	state := &State{CycleID: cycleID, Query: q, Analysis: decision.Analysis}
	out = r.loop.Run(ctx, carrier, state)
	rec = out.Record

	if err := action.Validate(rec); err != nil {
		logger.ErrorContext(ctx, "loop produced an invalid record", logging.Err(err))
		out.Err = err
		rec = action.NoAction("invalid record: "+err.Error(), false)
	}
	return rec
}

func (r *Resolver) complete(ctx context.Context, span trace.Span, logger *slog.Logger, cycleID string, q Query, creds *auth.Context, rec action.Record, out Outcome, d time.Duration) {
	status := instrumentation.StatusSuccess
	if !rec.Success {
		status = instrumentation.StatusError
	}
	span.SetAttributes(
		attribute.String(instrumentation.SpanAttrKind, string(rec.Request)),
		attribute.Int(instrumentation.SpanAttrRoundTrips, out.RoundTrips),
		attribute.String(instrumentation.SpanAttrStatus, status),
	)
	if out.Err != nil {
		instrumentation.SetSpanError(span, out.Err)
	} else {
		instrumentation.SetSpanSuccess(span)
	}
	r.metrics.RecordResolution(ctx, string(rec.Request), status, out.RoundTrips, d)

	attrs := []any{
		logging.Kind(string(rec.Request)),
		slog.Bool("success", rec.Success),
		logging.RoundTrip(out.RoundTrips),
		slog.Duration(logging.KeyDuration, d),
	}
	if reason := rec.Reason(); reason != "" {
		attrs = append(attrs, slog.String("reason", reason))
	}
	switch {
	case out.Err == nil:
		logger.InfoContext(ctx, "resolution completed", attrs...)
	case errors.Is(out.Err, auth.ErrUnauthenticated):
		logger.WarnContext(ctx, "resolution rejected", append(attrs, logging.Err(out.Err))...)
	default:
		logger.WarnContext(ctx, "resolution failed", append(attrs, logging.Err(out.Err))...)
	}

	var userID string
	if creds != nil {
		userID = creds.UserID
	}
	r.audit.LogResolution(instrumentation.Resolution{
		CycleID:    cycleID,
		UserID:     userID,
		Query:      q.Text,
		Kind:       string(rec.Request),
		Success:    rec.Success,
		Reason:     rec.Reason(),
		RoundTrips: out.RoundTrips,
		Duration:   d,
		TraceID:    instrumentation.GetTraceID(ctx),
	})
}
