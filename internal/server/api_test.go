package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/giantswarm/mcp-oauth/storage/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"

	"github.com/teemow/noon/internal/action"
	"github.com/teemow/noon/internal/agent"
	"github.com/teemow/noon/internal/auth"
	"github.com/teemow/noon/internal/calendar"
	"github.com/teemow/noon/internal/calendar/calendartest"
	"github.com/teemow/noon/internal/reasoner"
)

func losAngeles(t *testing.T) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation("America/Los_Angeles")
	require.NoError(t, err)
	return loc
}

// monday is 2026-10-19 09:30 in Los Angeles.
func monday(t *testing.T) time.Time {
	return time.Date(2026, 10, 19, 9, 30, 0, 0, losAngeles(t))
}

func dentist(t *testing.T) calendar.Event {
	start := time.Date(2026, 10, 20, 15, 0, 0, 0, losAngeles(t))
	return calendar.Event{ID: "dentist-1", CalendarID: "primary", Summary: "Dentist appointment", Start: start, End: start.Add(time.Hour)}
}

type testEnv struct {
	sc      *ServerContext
	fake    *calendartest.Fake
	linked  *LinkedAccounts
	handler http.Handler
}

type envConfig struct {
	Config
	http  HTTPConfig
	store *memory.Store
}

type envOption func(*envConfig)

func readOnly() envOption { return func(c *envConfig) { c.Writer = nil } }

func withoutLinking() envOption { return func(c *envConfig) { c.Linked = nil } }

func withStatic(creds *auth.Context) envOption { return func(c *envConfig) { c.Static = creds } }

// withoutGateway serves without the trusted X-Noon-User header.
func withoutGateway() envOption { return func(c *envConfig) { c.http.TrustUserHeader = false } }

func withHTTP(f func(*HTTPConfig)) envOption { return func(c *envConfig) { f(&c.http) } }

func newTestEnv(t *testing.T, opts ...envOption) *testEnv {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	fake := calendartest.New(dentist(t)).WithCalendars(
		calendar.Calendar{ID: "primary", Summary: "jane@example.com", Primary: true, AccessRole: "owner"},
	)
	loop := agent.NewLoop(reasoner.NewRules(), agent.NewGatherer(fake, agent.NewBridge(4), nil, logger), agent.Config{}, logger)
	resolver := agent.NewResolver(agent.NewRouter(nil), loop,
		agent.WithLogger(logger),
		agent.WithClock(func() time.Time { return monday(t) }))

	store := memory.New()
	linked := NewLinkedAccounts(store)

	cfg := envConfig{
		Config: Config{
			Resolver: resolver,
			Reader:   fake,
			Writer:   fake,
			Linked:   linked,
			Location: losAngeles(t),
			Logger:   logger,
		},
		http:  HTTPConfig{TrustUserHeader: true},
		store: store,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	t.Cleanup(func() {
		// Shutting down sign-in stops the store as well.
		if cfg.http.OAuth != nil {
			_ = cfg.http.OAuth.Shutdown(context.Background())
			return
		}
		store.Stop()
	})
	sc, err := NewServerContext(context.Background(), cfg.Config)
	require.NoError(t, err)
	t.Cleanup(func() { _ = sc.Shutdown() })

	srv, err := NewHTTPServer(sc, cfg.http)
	require.NoError(t, err)
	return &testEnv{sc: sc, fake: fake, linked: linked, handler: srv.Handler()}
}

func (e *testEnv) link(t *testing.T, user, account string) {
	t.Helper()
	require.NoError(t, e.linked.Link(context.Background(), user, account, &oauth2.Token{AccessToken: "at-" + account, RefreshToken: "rt"}))
}

func (e *testEnv) do(t *testing.T, method, path string, body any, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		r = strings.NewReader(b)
	default:
		data, err := json.Marshal(b)
		require.NoError(t, err)
		r = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, r)
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

func decodeRecord(t *testing.T, rec *httptest.ResponseRecorder) action.Record {
	t.Helper()
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var out action.Record
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	require.NoError(t, action.Validate(out))
	return out
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var out ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out.Error
}

func TestAPI_Resolve(t *testing.T) {
	env := newTestEnv(t)
	env.link(t, "jane", "personal")

	rec := decodeRecord(t, env.do(t, http.MethodPost, "/v1/agent/resolve",
		ResolveRequest{Query: "cancel my dentist appointment"}, UserHeader, "jane"))

	assert.True(t, rec.Success)
	assert.Equal(t, action.KindDeleteEvent, rec.Request)
	assert.Equal(t, "dentist-1", rec.Metadata[action.KeyEventID])
	assert.Equal(t, "primary", rec.Metadata[action.KeyCalendarID])
	// Resolution never writes.
	assert.Len(t, env.fake.Events(), 1)
}

func TestAPI_ResolveWithExplicitClock(t *testing.T) {
	env := newTestEnv(t)

	rec := decodeRecord(t, env.do(t, http.MethodPost, "/v1/agent/resolve", ResolveRequest{
		Query:    "schedule lunch tomorrow at noon",
		Now:      "2026-10-21T08:00:00-04:00",
		Timezone: "America/New_York",
	}, "Authorization", "Bearer ya29.token"))

	assert.Equal(t, action.KindCreateEvent, rec.Request)
	assert.Equal(t, map[string]any{action.KeyDateTime: "2026-10-22T12:00:00-04:00"}, rec.Metadata[action.KeyStart])
}

func TestAPI_ResolveWithoutCredentials(t *testing.T) {
	env := newTestEnv(t)

	rec := decodeRecord(t, env.do(t, http.MethodPost, "/v1/agent/resolve",
		ResolveRequest{Query: "cancel my dentist appointment"}, UserHeader, "nobody"))

	assert.False(t, rec.Success)
	assert.Equal(t, action.KindNoAction, rec.Request)
	assert.Equal(t, 0, env.fake.CallCount(""))
}

func TestAPI_ResolveInvalidRequests(t *testing.T) {
	env := newTestEnv(t)

	tests := []struct {
		name string
		body any
		code string
	}{
		{"malformed json", `{"query":`, "invalid_request"},
		{"missing query", ResolveRequest{}, "invalid_request"},
		{"unknown timezone", ResolveRequest{Query: "what's on today", Timezone: "Mars/Olympus"}, "invalid_timezone"},
		{"bad now", ResolveRequest{Query: "what's on today", Now: "tomorrow"}, "invalid_now"},
		{"bad account", ResolveRequest{Query: "what's on today", Account: "../x"}, "invalid_account"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := env.do(t, http.MethodPost, "/v1/agent/resolve", tt.body, UserHeader, "jane")
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Equal(t, tt.code, errorCode(t, rec))
		})
	}
}

func TestAPI_Test(t *testing.T) {
	env := newTestEnv(t)
	env.link(t, "jane", "personal")

	rec := decodeRecord(t, env.do(t, http.MethodPost, "/v1/agent/test", nil, UserHeader, "jane"))

	assert.Equal(t, action.KindCreateEvent, rec.Request)
	assert.Equal(t, "Lunch", rec.Metadata[action.KeySummary])
	assert.Equal(t, map[string]any{action.KeyDateTime: "2026-10-20T13:00:00-07:00"}, rec.Metadata[action.KeyStart])
}

func TestAPI_Calendars(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/v1/calendars", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	env.link(t, "jane", "personal")
	rec = env.do(t, http.MethodGet, "/v1/calendars", nil, UserHeader, "jane")
	require.Equal(t, http.StatusOK, rec.Code)
	var calendars []calendar.Calendar
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &calendars))
	require.Len(t, calendars, 1)
	assert.Equal(t, "primary", calendars[0].ID)

	env.fake.Fail(calendartest.OpListCalendars, calendar.ErrUpstreamUnavailable)
	rec = env.do(t, http.MethodGet, "/v1/calendars", nil, UserHeader, "jane")
	assert.Equal(t, http.StatusBadGateway, rec.Code)
}

func TestAPI_CalendarsStaticCredentials(t *testing.T) {
	env := newTestEnv(t, withoutLinking(), withStatic(auth.New("", auth.Account{ID: "ics"})))

	rec := env.do(t, http.MethodGet, "/v1/calendars", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(t, http.MethodGet, "/v1/calendars?account=work", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAPI_Execute(t *testing.T) {
	env := newTestEnv(t)
	env.link(t, "jane", "personal")

	created := decodeRecord(t, env.do(t, http.MethodPost, "/v1/agent/test", nil, UserHeader, "jane"))
	rec := env.do(t, http.MethodPost, "/v1/actions/execute", ExecuteRequest{Record: created}, UserHeader, "jane")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var result calendar.Result
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.Equal(t, action.KindCreateEvent, result.Request)
	require.NotNil(t, result.Event)
	assert.Equal(t, "Lunch", result.Event.Summary)
	assert.Len(t, env.fake.Events(), 2)
}

func TestAPI_ExecuteErrors(t *testing.T) {
	ref, err := action.NewEventRef("dentist-1", "primary")
	require.NoError(t, err)
	del, err := action.DeleteEvent(ref)
	require.NoError(t, err)
	missing, err := action.NewEventRef("gone", "primary")
	require.NoError(t, err)
	delMissing, err := action.DeleteEvent(missing)
	require.NoError(t, err)
	show, err := action.ShowEvent(ref)
	require.NoError(t, err)

	tests := []struct {
		name    string
		opts    []envOption
		fail    error
		headers []string
		body    any
		status  int
		code    string
	}{
		{
			name:   "read-only deployment",
			opts:   []envOption{readOnly()},
			body:   ExecuteRequest{Record: del},
			status: http.StatusNotImplemented,
			code:   "read_only",
		},
		{
			name:   "malformed record",
			body:   ExecuteRequest{Record: action.Record{Success: true, Request: action.KindDeleteEvent, Metadata: action.Metadata{}}},
			status: http.StatusBadRequest,
			code:   "invalid_record",
		},
		{
			name:   "record without side effect",
			body:   ExecuteRequest{Record: show},
			status: http.StatusUnprocessableEntity,
			code:   "not_executable",
		},
		{
			name:   "unknown event",
			body:   ExecuteRequest{Record: delMissing},
			status: http.StatusNotFound,
			code:   "not_found",
		},
		{
			name:   "upstream failure",
			fail:   calendar.ErrUpstreamUnavailable,
			body:   ExecuteRequest{Record: del},
			status: http.StatusBadGateway,
			code:   "upstream_unavailable",
		},
		{
			name:    "no credentials",
			headers: []string{UserHeader, "nobody"},
			body:    ExecuteRequest{Record: del},
			status:  http.StatusUnauthorized,
			code:    "unauthenticated",
		},
		{
			name:   "unexpected failure",
			fail:   errors.New("disk on fire"),
			body:   ExecuteRequest{Record: del},
			status: http.StatusInternalServerError,
			code:   "internal_error",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t, tt.opts...)
			env.link(t, "jane", "personal")
			if tt.fail != nil {
				env.fake.Fail(calendartest.OpDeleteEvent, tt.fail)
			}
			headers := tt.headers
			if headers == nil {
				headers = []string{UserHeader, "jane"}
			}
			rec := env.do(t, http.MethodPost, "/v1/actions/execute", tt.body, headers...)
			assert.Equal(t, tt.status, rec.Code, rec.Body.String())
			assert.Equal(t, tt.code, errorCode(t, rec))
		})
	}
}

func TestAPI_Accounts(t *testing.T) {
	env := newTestEnv(t)
	jane := []string{UserHeader, "jane"}

	rec := env.do(t, http.MethodPut, "/v1/accounts/work", map[string]string{"access_token": "at", "refresh_token": "rt"}, jane...)
	require.Equal(t, http.StatusNoContent, rec.Code, rec.Body.String())
	rec = env.do(t, http.MethodPut, "/v1/accounts/personal", map[string]string{"access_token": "at2"}, jane...)
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = env.do(t, http.MethodGet, "/v1/accounts", nil, jane...)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"accounts":["personal","work"]}`, rec.Body.String())

	rec = env.do(t, http.MethodDelete, "/v1/accounts/work", nil, jane...)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	rec = env.do(t, http.MethodDelete, "/v1/accounts/work", nil, jane...)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = env.do(t, http.MethodGet, "/v1/accounts", nil, jane...)
	assert.JSONEq(t, `{"accounts":["personal"]}`, rec.Body.String())
}

func TestAPI_AccountErrors(t *testing.T) {
	tests := []struct {
		name    string
		opts    []envOption
		method  string
		path    string
		body    any
		headers []string
		status  int
	}{
		{"no user", nil, http.MethodPut, "/v1/accounts/work", map[string]string{"access_token": "at"}, nil, http.StatusUnauthorized},
		{"bearer only", nil, http.MethodGet, "/v1/accounts", nil, []string{"Authorization", "Bearer x"}, http.StatusUnauthorized},
		{"bad account name", nil, http.MethodPut, "/v1/accounts/a.b", map[string]string{"access_token": "at"}, []string{UserHeader, "jane"}, http.StatusBadRequest},
		{"empty token", nil, http.MethodPut, "/v1/accounts/work", map[string]string{}, []string{UserHeader, "jane"}, http.StatusBadRequest},
		{"linking disabled", []envOption{withoutLinking()}, http.MethodGet, "/v1/accounts", nil, []string{UserHeader, "jane"}, http.StatusNotImplemented},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t, tt.opts...)
			rec := env.do(t, tt.method, tt.path, tt.body, tt.headers...)
			assert.Equal(t, tt.status, rec.Code, rec.Body.String())
		})
	}
}

func TestAPI_RateLimited(t *testing.T) {
	env := newTestEnv(t, withHTTP(func(c *HTTPConfig) { c.RateLimiter = NewRateLimiter(0.001, 1, false) }))

	first := env.do(t, http.MethodGet, "/v1/accounts", nil, UserHeader, "jane")
	assert.Equal(t, http.StatusOK, first.Code)

	second := env.do(t, http.MethodGet, "/v1/accounts", nil, UserHeader, "jane")
	assert.Equal(t, http.StatusTooManyRequests, second.Code)
	assert.NotEmpty(t, second.Header().Get("Retry-After"))

	// Another caller has its own budget, and health probes are never limited.
	other := env.do(t, http.MethodGet, "/v1/accounts", nil, UserHeader, "john")
	assert.Equal(t, http.StatusOK, other.Code)
	health := env.do(t, http.MethodGet, "/healthz", nil, UserHeader, "jane")
	assert.Equal(t, http.StatusOK, health.Code)
}
