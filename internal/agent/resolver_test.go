package agent

import (
	"bytes"
	"context"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teemow/noon/internal/action"
	"github.com/teemow/noon/internal/auth"
	"github.com/teemow/noon/internal/calendar/calendartest"
	"github.com/teemow/noon/internal/instrumentation"
)

func newResolver(r Reasoner, fake *calendartest.Fake, opts ...Option) *Resolver {
	opts = append([]Option{WithLogger(discard()), WithClock(func() time.Time { return monday })}, opts...)
	return NewResolver(NewRouter(nil), newLoop(r, fake, Config{}), opts...)
}

func TestResolver_RoutesBeforeCheckingCredentials(t *testing.T) {
	r := ReasonerFunc(func(context.Context, *State) (Step, error) {
		t.Fatal("reasoner must not run for out-of-domain queries")
		return Step{}, nil
	})
	res := newResolver(r, calendartest.New())

	rec := res.Resolve(context.Background(), Query{Text: "what's the weather"}, nil)
	assert.Equal(t, action.KindNoAction, rec.Request)
	assert.True(t, rec.Success)
	assert.Equal(t, ReasonOutOfDomain, rec.Reason())

	rec = res.Resolve(context.Background(), Query{Text: ""}, nil)
	assert.False(t, rec.Success)
	assert.Equal(t, ReasonEmptyQuery, rec.Reason())
}

func TestResolver_MissingCredentials(t *testing.T) {
	for _, creds := range []*auth.Context{nil, auth.New("jane")} {
		fake := calendartest.New()
		r := &script{steps: []Step{Gather(ListCalendars{})}}
		res := newResolver(r, fake)

		rec := res.Resolve(context.Background(), Query{Text: "what's on my calendar tomorrow"}, creds)
		assert.Equal(t, action.KindNoAction, rec.Request)
		assert.False(t, rec.Success)
		assert.Contains(t, rec.Reason(), auth.ErrUnauthenticated.Error())
		// The cycle ends at the first gathering call.
		assert.Equal(t, 1, r.calls)
		assert.Equal(t, 0, fake.CallCount(""))
	}
}

func TestResolver_NoGatheringNeedsNoCredentials(t *testing.T) {
	r := &script{steps: []Step{Terminate(ShowSchedule{Window: week()})}}
	fake := calendartest.New()
	res := newResolver(r, fake)

	rec := res.Resolve(context.Background(), Query{Text: "what's on my calendar next week"}, nil)
	assert.Equal(t, action.KindShowSchedule, rec.Request)
	assert.True(t, rec.Success)
	assert.Equal(t, 1, r.calls)
	assert.Equal(t, 0, fake.CallCount(""))
}

func TestResolver_UsesClockAndLocation(t *testing.T) {
	r := &script{steps: []Step{Terminate(NoAction{Reason: "done"})}}
	res := newResolver(r, calendartest.New())

	berlin, err := time.LoadLocation("Europe/Berlin")
	require.NoError(t, err)
	rec := res.Resolve(context.Background(), Query{Text: "what's on tomorrow", Location: berlin}, testCreds())
	require.True(t, rec.Success)

	require.Len(t, r.states, 1)
	st := r.states[0]
	assert.True(t, st.Query.Now.Equal(monday))
	assert.Equal(t, berlin, st.Query.Now.Location())
	assert.NotEmpty(t, st.CycleID)
	assert.Equal(t, DefaultMaxRoundTrips, st.MaxRoundTrips)
}

func TestResolver_RecoversFromPanics(t *testing.T) {
	r := ReasonerFunc(func(context.Context, *State) (Step, error) {
		panic("nil map")
	})
	res := newResolver(r, calendartest.New())

	rec := res.Resolve(context.Background(), Query{Text: "show my calendar"}, testCreds())
	assert.Equal(t, action.KindNoAction, rec.Request)
	assert.False(t, rec.Success)
	assert.Equal(t, "internal error", rec.Reason())
}

func TestResolver_Audit(t *testing.T) {
	var buf bytes.Buffer
	al := instrumentation.NewAuditLogger(slog.New(slog.NewJSONHandler(&buf, nil)))
	r := &script{steps: []Step{Terminate(ShowSchedule{Window: week()})}}
	res := newResolver(r, calendartest.New(), WithAuditLogger(al))

	rec := res.Resolve(context.Background(), Query{Text: "what's on this week"}, testCreds())
	require.Equal(t, action.KindShowSchedule, rec.Request)

	out := buf.String()
	assert.Contains(t, out, "resolution_completed")
	assert.Contains(t, out, `"kind":"show-schedule"`)
	assert.NotContains(t, out, "what's on this week")
}

func TestResolver_ConcurrentCycles(t *testing.T) {
	fake := calendartest.New(dentist())
	r := ReasonerFunc(func(_ context.Context, s *State) (Step, error) {
		last, ok := s.Facts.Last()
		if !ok {
			return Gather(SearchEvents{Keywords: []string{"dentist"}, Window: week()}), nil
		}
		if len(last.Events) != 1 {
			return Terminate(NoAction{Reason: "no single match"}), nil
		}
		e := last.Events[0]
		return Terminate(DeleteEvent{Ref: action.EventRef{EventID: e.ID, CalendarID: e.CalendarID}}), nil
	})
	res := newResolver(r, fake)

	var wg sync.WaitGroup
	records := make([]action.Record, 32)
	for i := range records {
		wg.Add(1)
		go func() {
			defer wg.Done()
			records[i] = res.Resolve(context.Background(), Query{Text: "cancel my dentist appointment"}, testCreds())
		}()
	}
	wg.Wait()

	for _, rec := range records {
		assert.Equal(t, action.KindDeleteEvent, rec.Request)
		assert.NoError(t, action.Validate(rec))
	}
	assert.Equal(t, len(records), fake.CallCount(calendartest.OpSearchEvents))
}
