package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	oauth "github.com/giantswarm/mcp-oauth"
	"github.com/giantswarm/mcp-oauth/providers"
	oauthgoogle "github.com/giantswarm/mcp-oauth/providers/google"
	"github.com/giantswarm/mcp-oauth/security"
	"github.com/giantswarm/mcp-oauth/storage"
	"golang.org/x/oauth2"

	"github.com/teemow/noon/internal/google"
	"github.com/teemow/noon/internal/logging"
)

// Rate limits of the authorization server.
const (
	oauthIPRate    = 10
	oauthIPBurst   = 20
	oauthUserRate  = 100
	oauthUserBurst = 200
)

// OAuthStore keeps the tokens, registered clients and pending flows of the
// authorization server. The memory and Valkey stores implement all three.
type OAuthStore interface {
	storage.TokenStore
	storage.ClientStore
	storage.FlowStore
}

// OAuthConfig configures sign-in with Google.
type OAuthConfig struct {
	// BaseURL is the issuer and the base of the callback URL.
	BaseURL            string
	GoogleClientID     string
	GoogleClientSecret string
	Store              OAuthStore

	// AllowPublicClientRegistration lets MCP clients register without
	// RegistrationAccessToken.
	AllowPublicClientRegistration bool
	RegistrationAccessToken       string
	TrustProxy                    bool

	// Provider replaces Google as the identity provider.
	Provider providers.Provider
	Logger   *slog.Logger
}

// OAuth is the authorization server in front of the API and MCP. Callers
// sign in with Google. The user ID of the validated token selects the
// caller's linked accounts and the Google token behind it is the default
// account.
type OAuth struct {
	server  *oauth.Server
	handler *oauth.Handler
	tokens  storage.TokenStore
	logger  *slog.Logger
}

// NewOAuth creates the authorization server.
func NewOAuth(cfg OAuthConfig) (*OAuth, error) {
	if cfg.Store == nil {
		return nil, fmt.Errorf("token store is required for sign-in")
	}
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("base URL is required for sign-in")
	}
	if err := validateHTTPSRequirement(cfg.BaseURL); err != nil {
		return nil, err
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	baseURL := strings.TrimSuffix(cfg.BaseURL, "/")

	provider := cfg.Provider
	if provider == nil {
		p, err := oauthgoogle.NewProvider(&oauthgoogle.Config{
			ClientID:     cfg.GoogleClientID,
			ClientSecret: cfg.GoogleClientSecret,
			RedirectURL:  baseURL + "/oauth/callback",
			Scopes:       google.Scopes,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create Google provider: %w", err)
		}
		provider = p
	}

	srv, err := oauth.NewServer(provider, cfg.Store, cfg.Store, cfg.Store, &oauth.ServerConfig{
		Issuer:                        baseURL,
		AllowPublicClientRegistration: cfg.AllowPublicClientRegistration,
		RegistrationAccessToken:       cfg.RegistrationAccessToken,
		TrustProxy:                    cfg.TrustProxy,
	}, cfg.Logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create OAuth server: %w", err)
	}
	srv.SetAuditor(security.NewAuditor(cfg.Logger, true))
	srv.SetRateLimiter(security.NewRateLimiter(oauthIPRate, oauthIPBurst, cfg.Logger))
	srv.SetUserRateLimiter(security.NewRateLimiter(oauthUserRate, oauthUserBurst, cfg.Logger))

	return &OAuth{
		server:  srv,
		handler: oauth.NewHandler(srv, cfg.Logger),
		tokens:  cfg.Store,
		logger:  cfg.Logger,
	}, nil
}

// Register adds the metadata and OAuth endpoints to mux.
func (o *OAuth) Register(mux *http.ServeMux) {
	// RFC 9728 and RFC 8414 metadata
	mux.HandleFunc("/.well-known/oauth-protected-resource", o.handler.ServeProtectedResourceMetadata)
	mux.HandleFunc("/.well-known/oauth-authorization-server", o.handler.ServeAuthorizationServerMetadata)

	mux.HandleFunc("/oauth/register", o.handler.ServeClientRegistration)
	mux.HandleFunc("/oauth/authorize", o.handler.ServeAuthorization)
	mux.HandleFunc("/oauth/token", o.handler.ServeToken)
	mux.HandleFunc("/oauth/callback", o.handler.ServeCallback)
	mux.HandleFunc("/oauth/revoke", o.handler.ServeTokenRevocation)
	mux.HandleFunc("/oauth/introspect", o.handler.ServeTokenIntrospection)
}

// Protect rejects requests without a valid access token and attaches the
// identity of the signed-in user to the rest.
func (o *OAuth) Protect(next http.Handler) http.Handler {
	return o.handler.ValidateToken(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		info, ok := oauth.UserInfoFromContext(r.Context())
		if !ok || info == nil || info.ID == "" {
			writeError(w, http.StatusUnauthorized, "unauthenticated", "sign-in required")
			return
		}
		id := Identity{
			UserID: info.ID,
			Email:  info.Email,
			Token:  o.providerToken(r.Context(), bearerToken(r), info.ID),
		}
		o.logger.DebugContext(r.Context(), "caller signed in", logging.UserHash(id.UserID))
		next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), id)))
	}))
}

// providerToken finds the Google token behind an access token issued at
// sign-in. A Google access token presented directly is used as is.
func (o *OAuth) providerToken(ctx context.Context, accessToken, userID string) *oauth2.Token {
	for _, key := range []string{accessToken, userID} {
		if key == "" {
			continue
		}
		if tok, err := o.tokens.GetToken(ctx, key); err == nil && tok != nil {
			return tok
		}
	}
	if accessToken == "" {
		return nil
	}
	return &oauth2.Token{AccessToken: accessToken, TokenType: "Bearer"}
}

// Shutdown stops the rate limiters and the storage cleanup of the
// authorization server.
func (o *OAuth) Shutdown(ctx context.Context) error {
	return o.server.Shutdown(ctx)
}
