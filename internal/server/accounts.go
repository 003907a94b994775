package server

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/giantswarm/mcp-oauth/providers"
	"github.com/giantswarm/mcp-oauth/storage"
	"golang.org/x/oauth2"

	"github.com/teemow/noon/internal/auth"
	"github.com/teemow/noon/internal/google"
)

// ErrAccountNotLinked is returned when unlinking an account that is not linked.
var ErrAccountNotLinked = errors.New("account not linked")

// LinkedAccounts stores the Google tokens each user linked, in an mcp-oauth
// token store (memory or valkey). Tokens live under "<user>/<account>"; the
// account index of a user lives in the store's user-info record so it
// survives restarts with a persistent backend.
type LinkedAccounts struct {
	store  storage.TokenStore
	tokens *google.StoreTokenProvider
	// mu serializes index updates within this process.
	mu sync.Mutex
}

// NewLinkedAccounts creates linked-account storage on top of store.
func NewLinkedAccounts(store storage.TokenStore) *LinkedAccounts {
	return &LinkedAccounts{store: store, tokens: google.NewStoreTokenProvider(store)}
}

func tokenKey(userID, account string) string {
	return userID + "/" + account
}

func indexKey(userID string) string {
	return "accounts:" + userID
}

func validateUser(userID string) error {
	if strings.TrimSpace(userID) == "" || strings.ContainsAny(userID, "/ ") {
		return fmt.Errorf("invalid user id %q", userID)
	}
	return nil
}

// Accounts lists the accounts userID linked, sorted.
func (l *LinkedAccounts) Accounts(ctx context.Context, userID string) ([]string, error) {
	info, err := l.store.GetUserInfo(ctx, indexKey(userID))
	if storage.IsNotFoundError(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load account index: %w", err)
	}
	return strings.Fields(info.Name), nil
}

func (l *LinkedAccounts) saveIndex(ctx context.Context, userID string, accounts []string) error {
	info := &providers.UserInfo{ID: userID, Name: strings.Join(accounts, " ")}
	if err := l.store.SaveUserInfo(ctx, indexKey(userID), info); err != nil {
		return fmt.Errorf("failed to save account index: %w", err)
	}
	return nil
}

// Link stores token as account of userID, replacing an earlier token.
func (l *LinkedAccounts) Link(ctx context.Context, userID, account string, token *oauth2.Token) error {
	if err := validateUser(userID); err != nil {
		return err
	}
	if err := google.ValidateAccountName(account); err != nil {
		return err
	}
	if token == nil || (token.AccessToken == "" && token.RefreshToken == "") {
		return fmt.Errorf("token needs an access or refresh token")
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.tokens.SaveToken(ctx, tokenKey(userID, account), token); err != nil {
		return fmt.Errorf("failed to save token: %w", err)
	}
	accounts, err := l.Accounts(ctx, userID)
	if err != nil {
		return err
	}
	if slices.Contains(accounts, account) {
		return nil
	}
	accounts = append(accounts, account)
	slices.Sort(accounts)
	return l.saveIndex(ctx, userID, accounts)
}

// Unlink removes account from userID.
func (l *LinkedAccounts) Unlink(ctx context.Context, userID, account string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	accounts, err := l.Accounts(ctx, userID)
	if err != nil {
		return err
	}
	i := slices.Index(accounts, account)
	if i < 0 {
		return fmt.Errorf("%w: %s", ErrAccountNotLinked, account)
	}
	if err := l.tokens.DeleteToken(ctx, tokenKey(userID, account)); err != nil {
		return fmt.Errorf("failed to delete token: %w", err)
	}
	return l.saveIndex(ctx, userID, slices.Delete(accounts, i, i+1))
}

// Credentials builds the bundle of userID. A non-empty account narrows
// it to that one account.
func (l *LinkedAccounts) Credentials(ctx context.Context, userID, account string) (*auth.Context, error) {
	accounts, err := l.Accounts(ctx, userID)
	if err != nil {
		return nil, err
	}
	if account != "" {
		if !slices.Contains(accounts, account) {
			return nil, fmt.Errorf("account %s is not linked: %w", account, auth.ErrUnauthenticated)
		}
		accounts = []string{account}
	}
	if len(accounts) == 0 {
		return nil, fmt.Errorf("no linked accounts: %w", auth.ErrUnauthenticated)
	}
	return google.Credentials(ctx, userTokens{l: l, userID: userID}, userID, accounts...)
}

// userTokens presents one user's slice of the store as a TokenProvider
// keyed by plain account names.
type userTokens struct {
	l      *LinkedAccounts
	userID string
}

func (u userTokens) GetTokenForAccount(ctx context.Context, account string) (*oauth2.Token, error) {
	return u.l.tokens.GetTokenForAccount(ctx, tokenKey(u.userID, account))
}

func (u userTokens) HasTokenForAccount(ctx context.Context, account string) bool {
	return u.l.tokens.HasTokenForAccount(ctx, tokenKey(u.userID, account))
}
