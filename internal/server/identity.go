package server

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"net"
	"net/http"
	"strings"

	"golang.org/x/oauth2"
)

// UserHeader names the caller of an HTTP request when a trusted gateway
// in front of the server authenticates callers.
const UserHeader = "X-Noon-User"

// Identity is who an HTTP request or MCP session acts for. UserID selects
// the linked accounts; Token is the caller's own Google token, used as the
// default account.
type Identity struct {
	UserID string
	Email  string
	Token  *oauth2.Token
}

// Empty reports whether the request carried no identity at all.
func (id Identity) Empty() bool {
	return id.UserID == "" && id.Token == nil
}

// Key identifies the caller for rate limiting without exposing the token.
func (id Identity) Key() string {
	if id.UserID != "" {
		return "user:" + id.UserID
	}
	if id.Token != nil {
		sum := sha256.Sum256([]byte(id.Token.AccessToken))
		return "token:" + hex.EncodeToString(sum[:8])
	}
	return ""
}

// IdentityFromRequest reads the X-Noon-User and Authorization headers.
// Nothing in them is verified, so it is only used behind a gateway that
// sets them.
func IdentityFromRequest(r *http.Request) Identity {
	id := Identity{UserID: strings.TrimSpace(r.Header.Get(UserHeader))}
	if token := bearerToken(r); token != "" {
		id.Token = &oauth2.Token{AccessToken: token, TokenType: "Bearer"}
	}
	return id
}

func bearerToken(r *http.Request) string {
	scheme, token, ok := strings.Cut(r.Header.Get("Authorization"), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}

// trustHeaders attaches the identity named by the request headers.
func trustHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), IdentityFromRequest(r))))
	})
}

type identityKey struct{}

// WithIdentity attaches id to ctx. It is used at the MCP transport
// boundary, where tool handlers only see a context.
func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, id)
}

// IdentityFromContext returns the identity attached by WithIdentity.
func IdentityFromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(identityKey{}).(Identity)
	return id, ok && !id.Empty()
}

// requestIdentity returns the identity the middleware attached to r.
func requestIdentity(r *http.Request) Identity {
	id, _ := IdentityFromContext(r.Context())
	return id
}

// HTTPContextFunc copies the request identity into the MCP request context.
func HTTPContextFunc(ctx context.Context, r *http.Request) context.Context {
	return WithIdentity(ctx, requestIdentity(r))
}

// getClientIP extracts the client IP address from the request.
// trustProxy: if true, trust X-Forwarded-For and X-Real-IP headers (only if behind trusted proxy)
func getClientIP(r *http.Request, trustProxy bool) string {
	if trustProxy {
		if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
			first, _, _ := strings.Cut(xff, ",")
			return strings.TrimSpace(first)
		}
		if xri := r.Header.Get("X-Real-IP"); xri != "" {
			return xri
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
