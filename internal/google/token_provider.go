package google

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"strings"

	"github.com/giantswarm/mcp-oauth/storage"
	"golang.org/x/oauth2"

	"github.com/teemow/noon/internal/auth"
)

// DefaultAccount is the account name used when none is given.
const DefaultAccount = "default"

// ErrNoToken is returned when no token is stored for an account.
var ErrNoToken = errors.New("no token stored")

var accountNamePattern = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

// ValidateAccountName rejects names that are unsafe as file names or storage keys.
func ValidateAccountName(account string) error {
	if account == "" {
		return fmt.Errorf("account name cannot be empty")
	}
	if !accountNamePattern.MatchString(account) {
		return fmt.Errorf("invalid account name %q: only letters, digits, '-' and '_' are allowed", account)
	}
	return nil
}

// TokenProvider is an interface for providing OAuth tokens for Google APIs.
type TokenProvider interface {
	// GetTokenForAccount retrieves an OAuth token for the specified account
	GetTokenForAccount(ctx context.Context, account string) (*oauth2.Token, error)

	// HasTokenForAccount checks if a token exists for the specified account
	HasTokenForAccount(ctx context.Context, account string) bool
}

// Credentials builds the credential bundle of userID from the tokens
// provider holds for accounts. Accounts without a token are skipped; a
// bundle without any account is auth.ErrUnauthenticated.
func Credentials(ctx context.Context, provider TokenProvider, userID string, accounts ...string) (*auth.Context, error) {
	var linked []auth.Account
	for _, account := range accounts {
		token, err := provider.GetTokenForAccount(ctx, account)
		if err != nil {
			if errors.Is(err, ErrNoToken) {
				continue
			}
			return nil, err
		}
		linked = append(linked, auth.Account{ID: account, Token: token})
	}
	if len(linked) == 0 {
		return nil, fmt.Errorf("no linked account among %s: %w", strings.Join(accounts, ", "), auth.ErrUnauthenticated)
	}
	return auth.New(userID, linked...), nil
}

// FileTokenProvider provides tokens from disk files (CLI and stdio).
type FileTokenProvider struct {
	dir string
}

// DefaultTokenDir returns the per-user cache directory holding token files.
func DefaultTokenDir() string {
	dir, err := os.UserCacheDir()
	if err != nil {
		dir = os.TempDir()
	}
	return filepath.Join(dir, AppName)
}

// NewFileTokenProvider creates a file-based token provider rooted at dir.
// An empty dir means DefaultTokenDir.
func NewFileTokenProvider(dir string) *FileTokenProvider {
	if dir == "" {
		dir = DefaultTokenDir()
	}
	return &FileTokenProvider{dir: dir}
}

func (p *FileTokenProvider) tokenFilePath(account string) string {
	return filepath.Join(p.dir, "google-"+account+".token")
}

// GetTokenForAccount reads the token file of account.
func (p *FileTokenProvider) GetTokenForAccount(_ context.Context, account string) (*oauth2.Token, error) {
	if err := ValidateAccountName(account); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(p.tokenFilePath(account))
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w for account %s", ErrNoToken, account)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read token file: %w", err)
	}
	var token oauth2.Token
	if err := json.Unmarshal(data, &token); err != nil {
		return nil, fmt.Errorf("invalid token file for account %s: %w", account, err)
	}
	return &token, nil
}

// HasTokenForAccount checks if a token file exists for the specified account.
func (p *FileTokenProvider) HasTokenForAccount(_ context.Context, account string) bool {
	if ValidateAccountName(account) != nil {
		return false
	}
	_, err := os.Stat(p.tokenFilePath(account))
	return err == nil
}

// SaveToken writes the token file of account, readable by the owner only.
func (p *FileTokenProvider) SaveToken(account string, token *oauth2.Token) error {
	if err := ValidateAccountName(account); err != nil {
		return err
	}
	if token == nil {
		return fmt.Errorf("token cannot be nil")
	}
	if err := os.MkdirAll(p.dir, 0o700); err != nil {
		return fmt.Errorf("failed to create cache directory: %w", err)
	}
	data, err := json.Marshal(token)
	if err != nil {
		return fmt.Errorf("failed to encode token: %w", err)
	}
	if err := os.WriteFile(p.tokenFilePath(account), data, 0o600); err != nil {
		return fmt.Errorf("failed to write token file: %w", err)
	}
	return nil
}

// DeleteToken removes the token file of account. A missing file is not an error.
func (p *FileTokenProvider) DeleteToken(account string) error {
	if err := ValidateAccountName(account); err != nil {
		return err
	}
	if err := os.Remove(p.tokenFilePath(account)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to delete token file: %w", err)
	}
	return nil
}

// Accounts lists the accounts with a token file, sorted.
func (p *FileTokenProvider) Accounts() ([]string, error) {
	matches, err := filepath.Glob(filepath.Join(p.dir, "google-*.token"))
	if err != nil {
		return nil, err
	}
	var accounts []string
	for _, m := range matches {
		name := strings.TrimSuffix(strings.TrimPrefix(filepath.Base(m), "google-"), ".token")
		if ValidateAccountName(name) == nil {
			accounts = append(accounts, name)
		}
	}
	slices.Sort(accounts)
	return accounts, nil
}

// StoreTokenProvider keeps tokens in an mcp-oauth storage backend.
type StoreTokenProvider struct {
	store storage.TokenStore
}

// NewStoreTokenProvider creates a token provider from an mcp-oauth TokenStore.
func NewStoreTokenProvider(store storage.TokenStore) *StoreTokenProvider {
	return &StoreTokenProvider{store: store}
}

// GetTokenForAccount retrieves the stored token of account. Missing and
// expired tokens without a refresh token are ErrNoToken.
func (p *StoreTokenProvider) GetTokenForAccount(ctx context.Context, account string) (*oauth2.Token, error) {
	token, err := p.store.GetToken(ctx, account)
	if storage.IsNotFoundError(err) || storage.IsExpiredError(err) {
		return nil, fmt.Errorf("%w for account %s: %v", ErrNoToken, account, err)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load token: %w", err)
	}
	return token, nil
}

// HasTokenForAccount checks if a token exists for the specified account.
func (p *StoreTokenProvider) HasTokenForAccount(ctx context.Context, account string) bool {
	_, err := p.store.GetToken(ctx, account)
	return err == nil
}

// SaveToken stores the token of account.
func (p *StoreTokenProvider) SaveToken(ctx context.Context, account string, token *oauth2.Token) error {
	return p.store.SaveToken(ctx, account, token)
}

// DeleteToken removes the token of account.
func (p *StoreTokenProvider) DeleteToken(ctx context.Context, account string) error {
	return p.store.DeleteToken(ctx, account)
}
