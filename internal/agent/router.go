package agent

import (
	"context"

	"github.com/teemow/noon/internal/action"
	"github.com/teemow/noon/internal/instrumentation"
	"github.com/teemow/noon/internal/intent"
)

// Router reasons used for the records it emits without entering the loop.
const (
	ReasonEmptyQuery  = "empty query"
	ReasonOutOfDomain = "request is not about the calendar"
)

// Decision is the router's verdict on a query. When Record is set the
// query is answered without the loop.
type Decision struct {
	Analysis intent.Analysis
	Record   *action.Record
}

// Terminal reports whether the router answered the query itself.
func (d Decision) Terminal() bool {
	return d.Record != nil
}

// Router makes the single classification step ahead of the loop. It never
// calls a tool.
type Router struct {
	metrics *instrumentation.Metrics
}

// NewRouter creates a Router. metrics may be nil.
func NewRouter(metrics *instrumentation.Metrics) *Router {
	return &Router{metrics: metrics}
}

// Route classifies q, whose Now and Location must be set.
func (r *Router) Route(ctx context.Context, q Query) Decision {
	a := intent.Analyze(q.Text, q.Now)
	d := Decision{Analysis: a}

	switch {
	case a.Empty():
		rec := action.NoAction(ReasonEmptyQuery, false)
		d.Record = &rec
		r.metrics.RecordRouterDecision(ctx, instrumentation.RouterDecisionEmpty)
	case !a.InDomain():
		rec := action.NoAction(ReasonOutOfDomain, true)
		d.Record = &rec
		r.metrics.RecordRouterDecision(ctx, instrumentation.RouterDecisionOutOfScope)
	default:
		r.metrics.RecordRouterDecision(ctx, instrumentation.RouterDecisionLoop)
	}
	return d
}
