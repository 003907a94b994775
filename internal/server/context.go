package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/teemow/noon/internal/agent"
	"github.com/teemow/noon/internal/auth"
	"github.com/teemow/noon/internal/calendar"
	"github.com/teemow/noon/internal/google"
	"github.com/teemow/noon/internal/instrumentation"
)

// Config holds the dependencies of a ServerContext.
type Config struct {
	Resolver *agent.Resolver
	Reader   calendar.Reader
	// Writer executes records. Nil serves a read-only deployment.
	Writer calendar.Writer

	// Linked stores per-user tokens for the HTTP transports.
	Linked *LinkedAccounts
	// Tokens and Accounts supply the local user's credentials for stdio.
	Tokens   google.TokenProvider
	Accounts []string
	// Static is used when no token source applies, e.g. ICS feeds.
	Static *auth.Context

	Location *time.Location
	Logger   *slog.Logger
}

// ServerContext holds the context for the MCP server and the HTTP API.
type ServerContext struct {
	ctx    context.Context
	cancel context.CancelFunc

	resolver *agent.Resolver
	reader   calendar.Reader
	writer   calendar.Writer
	linked   *LinkedAccounts
	tokens   google.TokenProvider
	accounts []string
	static   *auth.Context
	location *time.Location
	logger   *slog.Logger

	metrics     *instrumentation.Metrics
	auditLogger *instrumentation.AuditLogger

	mu       sync.RWMutex
	shutdown bool
}

// NewServerContext creates a new server context
func NewServerContext(ctx context.Context, cfg Config) (*ServerContext, error) {
	if cfg.Resolver == nil {
		return nil, fmt.Errorf("resolver is required")
	}
	if cfg.Reader == nil {
		return nil, fmt.Errorf("calendar reader is required")
	}
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	accounts := cfg.Accounts
	if len(accounts) == 0 {
		accounts = []string{google.DefaultAccount}
	}

	shutdownCtx, cancel := context.WithCancel(ctx)
	return &ServerContext{
		ctx:      shutdownCtx,
		cancel:   cancel,
		resolver: cfg.Resolver,
		reader:   cfg.Reader,
		writer:   cfg.Writer,
		linked:   cfg.Linked,
		tokens:   cfg.Tokens,
		accounts: accounts,
		static:   cfg.Static,
		location: cfg.Location,
		logger:   cfg.Logger,
	}, nil
}

// Context returns the server context
func (sc *ServerContext) Context() context.Context {
	return sc.ctx
}

// Resolver returns the resolution entry point.
func (sc *ServerContext) Resolver() *agent.Resolver { return sc.resolver }

// Reader returns the calendar read port.
func (sc *ServerContext) Reader() calendar.Reader { return sc.reader }

// Writer returns the calendar write port, nil when read-only.
func (sc *ServerContext) Writer() calendar.Writer { return sc.writer }

// Linked returns the linked-account storage, nil outside the HTTP transports.
func (sc *ServerContext) Linked() *LinkedAccounts { return sc.linked }

// Location returns the default timezone for queries without one.
func (sc *ServerContext) Location() *time.Location { return sc.location }

// Logger returns the server logger.
func (sc *ServerContext) Logger() *slog.Logger { return sc.logger }

// Credentials builds the credential bundle of one request. Sources are
// tried in order: the signed-in user with their linked accounts, a bare
// bearer token, local token provider, static bundle. account narrows the
// bundle to one account.
func (sc *ServerContext) Credentials(ctx context.Context, id Identity, account string) (*auth.Context, error) {
	switch {
	case id.UserID != "":
		return sc.userCredentials(ctx, id, account)

	case id.Token != nil:
		name := account
		if name == "" {
			name = google.DefaultAccount
		}
		return auth.FromToken(name, id.Token), nil

	case sc.tokens != nil:
		accounts := sc.accounts
		if account != "" {
			if err := google.ValidateAccountName(account); err != nil {
				return nil, err
			}
			accounts = []string{account}
		}
		return google.Credentials(ctx, sc.tokens, id.UserID, accounts...)

	case sc.static != nil:
		if account != "" {
			if _, ok := sc.static.Account(account); !ok {
				return nil, fmt.Errorf("unknown account %s: %w", account, auth.ErrUnauthenticated)
			}
		}
		return sc.static, nil
	}
	return nil, auth.ErrUnauthenticated
}

// userCredentials merges the user's linked accounts with their own token,
// which is the default account unless one was linked under that name.
func (sc *ServerContext) userCredentials(ctx context.Context, id Identity, account string) (*auth.Context, error) {
	var accounts []auth.Account
	if sc.linked != nil {
		creds, err := sc.linked.Credentials(ctx, id.UserID, account)
		switch {
		case err == nil:
			accounts = creds.Accounts
		case !errors.Is(err, auth.ErrUnauthenticated):
			return nil, err
		}
	}

	isDefault := func(a auth.Account) bool { return a.ID == google.DefaultAccount }
	if id.Token != nil && (account == "" || account == google.DefaultAccount) && !slices.ContainsFunc(accounts, isDefault) {
		own := auth.Account{ID: google.DefaultAccount, Email: id.Email, Token: id.Token}
		accounts = append([]auth.Account{own}, accounts...)
	}
	if len(accounts) == 0 {
		if account != "" {
			return nil, fmt.Errorf("account %s is not linked: %w", account, auth.ErrUnauthenticated)
		}
		return nil, fmt.Errorf("no linked accounts: %w", auth.ErrUnauthenticated)
	}
	return auth.New(id.UserID, accounts...), nil
}

// SetMetrics sets the metrics recorder for the server
func (sc *ServerContext) SetMetrics(m *instrumentation.Metrics) {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	sc.metrics = m
}

// Metrics returns the metrics recorder, nil when instrumentation is off.
func (sc *ServerContext) Metrics() *instrumentation.Metrics {
	sc.mu.RLock()
	defer sc.mu.RUnlock()
	return sc.metrics
}

// SetAuditLogger sets the audit logger for the server
func (sc *ServerContext) SetAuditLogger(al *instrumentation.AuditLogger) {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	sc.auditLogger = al
}

// AuditLogger returns the audit logger, nil when auditing is off.
func (sc *ServerContext) AuditLogger() *instrumentation.AuditLogger {
	sc.mu.RLock()
	defer sc.mu.RUnlock()
	return sc.auditLogger
}

// IsShutdown returns whether the server has been shutdown
func (sc *ServerContext) IsShutdown() bool {
	sc.mu.RLock()
	defer sc.mu.RUnlock()
	return sc.shutdown
}

// Shutdown shuts down the server context
func (sc *ServerContext) Shutdown() error {
	sc.mu.Lock()
	defer sc.mu.Unlock()

	if sc.shutdown {
		return nil
	}

	sc.shutdown = true
	sc.cancel()
	return nil
}
