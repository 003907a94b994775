package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/oauth2"

	"github.com/teemow/noon/internal/action"
	"github.com/teemow/noon/internal/agent"
	"github.com/teemow/noon/internal/auth"
	"github.com/teemow/noon/internal/calendar"
	"github.com/teemow/noon/internal/google"
	"github.com/teemow/noon/internal/logging"
)

// TestQuery is the canned request answered by POST /v1/agent/test.
const TestQuery = "Please schedule lunch tomorrow at 1pm"

// maxBodyBytes bounds request bodies of the API.
const maxBodyBytes = 1 << 20

// ResolveRequest is the body of POST /v1/agent/resolve.
type ResolveRequest struct {
	Query string `json:"query"`
	// Now is an RFC 3339 timestamp; the server clock is used when empty.
	Now      string `json:"now,omitempty"`
	Timezone string `json:"timezone,omitempty"`
	Account  string `json:"account,omitempty"`
}

// ExecuteRequest is the body of POST /v1/actions/execute.
type ExecuteRequest struct {
	Record   action.Record `json:"record"`
	Timezone string        `json:"timezone,omitempty"`
	Account  string        `json:"account,omitempty"`
}

// ErrorResponse is the body of every failed API call.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// API serves the resolution, execution and account routes.
type API struct {
	sc *ServerContext
}

// NewAPI creates the API handlers for sc.
func NewAPI(sc *ServerContext) *API {
	return &API{sc: sc}
}

// Register adds the API routes to mux.
func (a *API) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /v1/agent/resolve", a.handleResolve)
	mux.HandleFunc("POST /v1/agent/test", a.handleTest)
	mux.HandleFunc("GET /v1/calendars", a.handleCalendars)
	mux.HandleFunc("POST /v1/actions/execute", a.handleExecute)
	mux.HandleFunc("GET /v1/accounts", a.handleListAccounts)
	mux.HandleFunc("PUT /v1/accounts/{account}", a.handleLinkAccount)
	mux.HandleFunc("DELETE /v1/accounts/{account}", a.handleUnlinkAccount)
}

func (a *API) handleResolve(w http.ResponseWriter, r *http.Request) {
	var req ResolveRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Query == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "query is required")
		return
	}
	a.resolve(w, r, req)
}

func (a *API) handleTest(w http.ResponseWriter, r *http.Request) {
	a.resolve(w, r, ResolveRequest{Query: TestQuery})
}

func (a *API) resolve(w http.ResponseWriter, r *http.Request, req ResolveRequest) {
	q := agent.Query{Text: req.Query}

	loc, err := a.location(req.Timezone)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_timezone", err.Error())
		return
	}
	q.Location = loc
	if req.Now != "" {
		now, err := time.Parse(time.RFC3339, req.Now)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_now", "now must be an RFC 3339 timestamp")
			return
		}
		q.Now = now
	}

	creds, ok := a.credentials(w, r, req.Account, true)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, a.sc.Resolver().Resolve(r.Context(), q, creds))
}

func (a *API) handleCalendars(w http.ResponseWriter, r *http.Request) {
	creds, ok := a.credentials(w, r, r.URL.Query().Get("account"), false)
	if !ok {
		return
	}
	calendars, err := a.sc.Reader().ListCalendars(r.Context(), creds)
	if err != nil {
		a.writeCalendarError(w, r, err)
		return
	}
	if calendars == nil {
		calendars = []calendar.Calendar{}
	}
	writeJSON(w, http.StatusOK, calendars)
}

func (a *API) handleExecute(w http.ResponseWriter, r *http.Request) {
	writer := a.sc.Writer()
	if writer == nil {
		writeError(w, http.StatusNotImplemented, "read_only", "this deployment cannot change calendars")
		return
	}
	var req ExecuteRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if err := action.Validate(req.Record); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_record", err.Error())
		return
	}
	loc, err := a.location(req.Timezone)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_timezone", err.Error())
		return
	}
	creds, ok := a.credentials(w, r, req.Account, false)
	if !ok {
		return
	}

	result, err := calendar.Apply(r.Context(), writer, creds, req.Record, loc)
	if err != nil {
		a.writeCalendarError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (a *API) handleListAccounts(w http.ResponseWriter, r *http.Request) {
	linked, userID, ok := a.accountStore(w, r)
	if !ok {
		return
	}
	accounts, err := linked.Accounts(r.Context(), userID)
	if err != nil {
		a.writeInternal(w, r, err)
		return
	}
	if accounts == nil {
		accounts = []string{}
	}
	writeJSON(w, http.StatusOK, map[string][]string{"accounts": accounts})
}

func (a *API) handleLinkAccount(w http.ResponseWriter, r *http.Request) {
	linked, userID, ok := a.accountStore(w, r)
	if !ok {
		return
	}
	account := r.PathValue("account")
	if err := google.ValidateAccountName(account); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_account", err.Error())
		return
	}
	var token oauth2.Token
	if !decodeBody(w, r, &token) {
		return
	}
	if err := linked.Link(r.Context(), userID, account, &token); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_token", err.Error())
		return
	}
	a.sc.Logger().InfoContext(r.Context(), "account linked", logging.UserHash(userID), logging.Account(account))
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleUnlinkAccount(w http.ResponseWriter, r *http.Request) {
	linked, userID, ok := a.accountStore(w, r)
	if !ok {
		return
	}
	account := r.PathValue("account")
	err := linked.Unlink(r.Context(), userID, account)
	switch {
	case errors.Is(err, ErrAccountNotLinked):
		writeError(w, http.StatusNotFound, "not_found", err.Error())
		return
	case err != nil:
		a.writeInternal(w, r, err)
		return
	}
	a.sc.Logger().InfoContext(r.Context(), "account unlinked", logging.UserHash(userID), logging.Account(account))
	w.WriteHeader(http.StatusNoContent)
}

// accountStore resolves the linked-account store and the calling user.
func (a *API) accountStore(w http.ResponseWriter, r *http.Request) (*LinkedAccounts, string, bool) {
	linked := a.sc.Linked()
	if linked == nil {
		writeError(w, http.StatusNotImplemented, "not_supported", "account linking is not enabled")
		return nil, "", false
	}
	userID := requestIdentity(r).UserID
	if err := validateUser(userID); err != nil {
		writeError(w, http.StatusUnauthorized, "unauthenticated", "a signed-in user is required")
		return nil, "", false
	}
	return linked, userID, true
}

// credentials builds the request's bundle. With lenient set a missing
// bundle is passed on as nil so that the resolver answers with a
// failed no-action record; otherwise it is a 401.
func (a *API) credentials(w http.ResponseWriter, r *http.Request, account string, lenient bool) (*auth.Context, bool) {
	if account != "" {
		if err := google.ValidateAccountName(account); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_account", err.Error())
			return nil, false
		}
	}
	creds, err := a.sc.Credentials(r.Context(), requestIdentity(r), account)
	switch {
	case err == nil:
		return creds, true
	case errors.Is(err, auth.ErrUnauthenticated) && lenient:
		return nil, true
	case errors.Is(err, auth.ErrUnauthenticated):
		writeError(w, http.StatusUnauthorized, "unauthenticated", err.Error())
		return nil, false
	}
	a.writeInternal(w, r, err)
	return nil, false
}

func (a *API) location(name string) (*time.Location, error) {
	if name == "" {
		return a.sc.Location(), nil
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("unknown timezone %q", name)
	}
	return loc, nil
}

// writeCalendarError maps port and execution errors onto status codes.
func (a *API) writeCalendarError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, calendar.ErrNotExecutable):
		writeError(w, http.StatusUnprocessableEntity, "not_executable", err.Error())
	case errors.Is(err, calendar.ErrNotFound):
		writeError(w, http.StatusNotFound, "not_found", err.Error())
	case errors.Is(err, auth.ErrUnauthenticated):
		writeError(w, http.StatusUnauthorized, "unauthenticated", err.Error())
	case errors.Is(err, calendar.ErrReadOnly):
		writeError(w, http.StatusNotImplemented, "read_only", err.Error())
	case errors.Is(err, calendar.ErrUpstreamUnavailable):
		a.sc.Logger().WarnContext(r.Context(), "calendar upstream failed", logging.Err(err))
		writeError(w, http.StatusBadGateway, "upstream_unavailable", "calendar service unavailable")
	case errors.Is(err, action.ErrMalformedReference),
		errors.Is(err, action.ErrInvalidWindow),
		errors.Is(err, action.ErrInvalidTiming),
		errors.Is(err, action.ErrNoChanges),
		errors.Is(err, action.ErrMissingField):
		writeError(w, http.StatusBadRequest, "invalid_record", err.Error())
	default:
		a.writeInternal(w, r, err)
	}
}

func (a *API) writeInternal(w http.ResponseWriter, r *http.Request, err error) {
	a.sc.Logger().ErrorContext(r.Context(), "request failed", slog.String("path", r.URL.Path), logging.Err(err))
	writeError(w, http.StatusInternalServerError, "internal_error", "internal server error")
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body: "+err.Error())
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, ErrorResponse{Error: code, Message: message})
}
