package google

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

// AppName names the token cache directory.
const AppName = "noon"

// loginTimeout bounds how long Login waits for the browser redirect.
const loginTimeout = 5 * time.Minute

// ErrLoginDenied is returned when the user declines the consent screen.
var ErrLoginDenied = errors.New("authorization denied")

// OAuthConfig returns the OAuth2 configuration for the Calendar API. The
// redirect URL is filled in by Login.
func OAuthConfig(clientID, clientSecret string) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		Endpoint:     google.Endpoint,
		Scopes:       Scopes,
	}
}

// Login runs the authorization code flow with PKCE against a loopback
// redirect. open receives the consent URL (print it or launch a browser);
// Login returns once the provider redirects back with a code and the code
// has been exchanged.
func Login(ctx context.Context, conf *oauth2.Config, open func(authURL string) error) (*oauth2.Token, error) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return nil, fmt.Errorf("failed to start login listener: %w", err)
	}

	c := *conf
	c.RedirectURL = fmt.Sprintf("http://%s/callback", ln.Addr())
	state := rand.Text()
	verifier := oauth2.GenerateVerifier()

	codes := make(chan string, 1)
	failures := make(chan error, 1)
	srv := &http.Server{
		ReadHeaderTimeout: 10 * time.Second,
		Handler: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path != "/callback" {
				http.NotFound(w, r)
				return
			}
			q := r.URL.Query()
			if reason := q.Get("error"); reason != "" {
				select {
				case failures <- fmt.Errorf("%w: %s", ErrLoginDenied, reason):
				default:
				}
				http.Error(w, "Authorization failed. You can close this window.", http.StatusBadRequest)
				return
			}
			// A stray request must not end the login.
			if q.Get("state") != state || q.Get("code") == "" {
				http.Error(w, "invalid authorization response", http.StatusBadRequest)
				return
			}
			select {
			case codes <- q.Get("code"):
			default:
			}
			_, _ = fmt.Fprintln(w, "noon is linked to your calendar. You can close this window.")
		}),
	}
	go func() { _ = srv.Serve(ln) }()
	defer srv.Close()

	authURL := c.AuthCodeURL(state,
		oauth2.AccessTypeOffline,
		oauth2.ApprovalForce,
		oauth2.S256ChallengeOption(verifier))
	if err := open(authURL); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, loginTimeout)
	defer cancel()

	select {
	case code := <-codes:
		token, err := c.Exchange(ctx, code, oauth2.VerifierOption(verifier))
		if err != nil {
			return nil, fmt.Errorf("failed to exchange auth code: %w", err)
		}
		return token, nil
	case err := <-failures:
		return nil, err
	case <-ctx.Done():
		return nil, fmt.Errorf("login aborted: %w", ctx.Err())
	}
}
