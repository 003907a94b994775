package auth

import (
	"errors"
	"log/slog"
	"strings"

	"golang.org/x/oauth2"

	"github.com/teemow/noon/internal/logging"
)

// ErrUnauthenticated is returned when a tool needs credentials and none are
// available. Callers must not substitute default or anonymous credentials.
var ErrUnauthenticated = errors.New("unauthenticated")

// Account is one linked calendar account.
type Account struct {
	// ID is the caller-facing account name ("default", "work", an email).
	ID string
	// Email is the provider account address, if known.
	Email string
	// Token is the OAuth token used for provider calls. Some ports
	// (read-only ICS feeds) do not need one.
	Token *oauth2.Token
}

// HasToken reports whether the account carries usable token material.
func (a Account) HasToken() bool {
	return a.Token != nil && (a.Token.AccessToken != "" || a.Token.RefreshToken != "")
}

// LogValue renders the account without token content.
func (a Account) LogValue() slog.Value {
	attrs := []slog.Attr{slog.String("id", a.ID)}
	if a.Email != "" {
		attrs = append(attrs, logging.UserHash(a.Email))
	}
	if a.Token != nil {
		attrs = append(attrs, slog.String("access_token", logging.SanitizeToken(a.Token.AccessToken)))
	}
	return slog.GroupValue(attrs...)
}

// Context is the opaque credential bundle for one resolution cycle.
type Context struct {
	UserID   string
	Accounts []Account
}

// New builds a bundle for userID from the given accounts.
func New(userID string, accounts ...Account) *Context {
	return &Context{UserID: userID, Accounts: accounts}
}

// FromToken wraps a single bearer token as a one-account bundle.
func FromToken(accountID string, token *oauth2.Token) *Context {
	if accountID == "" {
		accountID = "default"
	}
	return New(accountID, Account{ID: accountID, Token: token})
}

// Validate returns ErrUnauthenticated for a nil or empty bundle.
func (c *Context) Validate() error {
	if c == nil {
		return ErrUnauthenticated
	}
	if len(c.Accounts) == 0 {
		return ErrUnauthenticated
	}
	for _, a := range c.Accounts {
		if strings.TrimSpace(a.ID) == "" {
			return ErrUnauthenticated
		}
	}
	return nil
}

// Account returns the account with the given ID.
func (c *Context) Account(id string) (Account, bool) {
	if c == nil {
		return Account{}, false
	}
	for _, a := range c.Accounts {
		if a.ID == id {
			return a, true
		}
	}
	return Account{}, false
}

// AccountIDs lists the account IDs in the bundle.
func (c *Context) AccountIDs() []string {
	if c == nil {
		return nil
	}
	ids := make([]string, 0, len(c.Accounts))
	for _, a := range c.Accounts {
		ids = append(ids, a.ID)
	}
	return ids
}

// LogValue keeps the bundle out of logs except for identifiers.
func (c *Context) LogValue() slog.Value {
	if c == nil {
		return slog.StringValue("<none>")
	}
	return slog.GroupValue(
		logging.UserHash(c.UserID),
		slog.Int("accounts", len(c.Accounts)),
	)
}

// String never includes token material.
func (c *Context) String() string {
	if c == nil {
		return "auth.Context(<none>)"
	}
	return "auth.Context(" + logging.AnonymizeEmail(c.UserID) + ", accounts=" + strings.Join(c.AccountIDs(), ",") + ")"
}
