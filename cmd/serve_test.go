package cmd

import (
	"context"
	"encoding/base64"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"

	"github.com/teemow/noon/internal/calendar/ics"
	"github.com/teemow/noon/internal/server"
)

func TestParseCommaSeparatedList(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected []string
	}{
		{"empty string", "", nil},
		{"single value", "work", []string{"work"}},
		{"multiple values", "work,personal", []string{"work", "personal"}},
		{"values with spaces around comma", "work, personal", []string{"work", "personal"}},
		{"leading and trailing spaces", "  work  ,  personal  ", []string{"work", "personal"}},
		{"trailing comma", "work,personal,", []string{"work", "personal"}},
		{"multiple consecutive commas", "work,,personal", []string{"work", "personal"}},
		{"only commas and spaces", ",  , , ", []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, parseCommaSeparatedList(tt.input))
		})
	}
}

func TestDecodeEncryptionKey(t *testing.T) {
	key := strings.Repeat("k", 32)
	decoded, err := decodeEncryptionKey(base64.StdEncoding.EncodeToString([]byte(key)))
	require.NoError(t, err)
	assert.Equal(t, []byte(key), decoded)

	_, err = decodeEncryptionKey("not base64!")
	assert.Error(t, err)

	_, err = decodeEncryptionKey(base64.StdEncoding.EncodeToString([]byte("short")))
	assert.ErrorContains(t, err, "32 bytes")
}

func TestNewTokenStore(t *testing.T) {
	t.Run("memory with encryption", func(t *testing.T) {
		store, release, err := newTokenStore(TokenStorageConfig{
			Type:          StorageTypeMemory,
			EncryptionKey: []byte(strings.Repeat("k", 32)),
		}, discardLogger())
		require.NoError(t, err)
		defer release()

		linked := server.NewLinkedAccounts(store)
		ctx := context.Background()
		require.NoError(t, linked.Link(ctx, "jane", "work", &oauth2.Token{AccessToken: "at", Expiry: time.Now().Add(time.Hour)}))
		creds, err := linked.Credentials(ctx, "jane", "work")
		require.NoError(t, err)
		acct, ok := creds.Account("work")
		require.True(t, ok)
		assert.Equal(t, "at", acct.Token.AccessToken)
	})

	t.Run("valkey needs an address", func(t *testing.T) {
		_, _, err := newTokenStore(TokenStorageConfig{Type: StorageTypeValkey}, discardLogger())
		assert.ErrorContains(t, err, "valkey-url")
	})

	t.Run("unsupported type", func(t *testing.T) {
		_, _, err := newTokenStore(TokenStorageConfig{Type: "etcd"}, discardLogger())
		assert.Error(t, err)
	})
}

func TestValkeyTLSConfig(t *testing.T) {
	cfg, err := valkeyTLSConfig("")
	require.NoError(t, err)
	assert.Nil(t, cfg.RootCAs)

	_, err = valkeyTLSConfig("/nonexistent/ca.pem")
	assert.Error(t, err)
}

func TestLoadStorageEnvVars(t *testing.T) {
	t.Setenv("NOON_STORAGE_TYPE", "valkey")
	t.Setenv("VALKEY_URL", "valkey.noon.svc:6379")
	t.Setenv("VALKEY_PASSWORD", "secret")
	t.Setenv("VALKEY_KEY_PREFIX", "noon-test:")
	t.Setenv("VALKEY_TLS_ENABLED", "true")
	t.Setenv("VALKEY_DB", "2")

	t.Run("environment fills unset flags", func(t *testing.T) {
		cmd := newServeCmd()
		require.NoError(t, cmd.ParseFlags(nil))
		var cfg TokenStorageConfig
		loadStorageEnvVars(cmd, &cfg)

		assert.Equal(t, StorageTypeValkey, cfg.Type)
		assert.Equal(t, "valkey.noon.svc:6379", cfg.Valkey.URL)
		assert.Equal(t, "secret", cfg.Valkey.Password)
		assert.Equal(t, "noon-test:", cfg.Valkey.KeyPrefix)
		assert.True(t, cfg.Valkey.TLSEnabled)
		assert.Equal(t, 2, cfg.Valkey.DB)
	})

	t.Run("flags win", func(t *testing.T) {
		cmd := newServeCmd()
		require.NoError(t, cmd.ParseFlags([]string{"--storage-type=memory", "--valkey-db=5"}))
		cfg := TokenStorageConfig{Type: StorageTypeMemory, Valkey: ValkeyStorageConfig{DB: 5}}
		loadStorageEnvVars(cmd, &cfg)

		assert.Equal(t, StorageTypeMemory, cfg.Type)
		assert.Equal(t, 5, cfg.Valkey.DB)
	})
}

func TestLoadServeEnvVars(t *testing.T) {
	t.Setenv("HTTP_ADDR", ":9999")
	t.Setenv("NOON_BASE_URL", "https://noon.example.com")
	t.Setenv("RATE_LIMIT_RPS", "0")
	t.Setenv("RATE_LIMIT_BURST", "3")
	t.Setenv("TRUST_PROXY", "true")
	t.Setenv("METRICS_ENABLED", "false")
	t.Setenv("METRICS_ADDR", ":9191")
	t.Setenv("GOOGLE_CLIENT_ID", "client-id")
	t.Setenv("GOOGLE_CLIENT_SECRET", "client-secret")
	t.Setenv("NOON_OAUTH_REGISTRATION_TOKEN", "reg-token")
	t.Setenv("NOON_TRUST_USER_HEADER", "true")

	cmd := newServeCmd()
	require.NoError(t, cmd.ParseFlags([]string{"--http-addr=:8081"}))
	opts := serveOptions{HTTPAddr: ":8081", RateLimit: RateLimitConfig{PerSecond: 2, Burst: 10}}
	loadServeEnvVars(cmd, &opts)

	assert.Equal(t, ":8081", opts.HTTPAddr)
	assert.Equal(t, "https://noon.example.com", opts.BaseURL)
	assert.Zero(t, opts.RateLimit.PerSecond)
	assert.Equal(t, 3, opts.RateLimit.Burst)
	assert.True(t, opts.RateLimit.TrustProxy)
	assert.False(t, opts.Metrics.Enabled)
	assert.Equal(t, ":9191", opts.Metrics.Addr)
	assert.True(t, opts.signInEnabled())
	assert.Equal(t, "reg-token", opts.SignIn.RegistrationAccessToken)
	assert.True(t, opts.SignIn.TrustUserHeader)
	assert.False(t, opts.SignIn.AllowPublicClientRegistration)
}

func TestCheckSignIn(t *testing.T) {
	withICS := DefaultConfig()
	withICS.ICS = []ics.Source{{ID: "team", Path: "/tmp/team.ics"}}
	signIn := serveOptions{Transport: TransportHTTP, GoogleClientID: "id", GoogleClientSecret: "secret"}

	tests := []struct {
		name    string
		cfg     *Config
		opts    serveOptions
		wantErr bool
	}{
		{"stdio needs nothing", DefaultConfig(), serveOptions{Transport: TransportStdio}, false},
		{"google sign-in", DefaultConfig(), signIn, false},
		{"trusted gateway", DefaultConfig(), serveOptions{Transport: TransportHTTP, SignIn: SignInConfig{TrustUserHeader: true}}, false},
		{"ics feeds", withICS, serveOptions{Transport: TransportHTTP}, false},
		{"client id without secret", DefaultConfig(), serveOptions{Transport: TransportHTTP, GoogleClientID: "id"}, true},
		{"anonymous", DefaultConfig(), serveOptions{Transport: TransportHTTP}, true},
		{"both", DefaultConfig(), serveOptions{Transport: TransportHTTP, GoogleClientID: "id", GoogleClientSecret: "secret", SignIn: SignInConfig{TrustUserHeader: true}}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := checkSignIn(tt.cfg, tt.opts)
			assert.Equal(t, tt.wantErr, err != nil, "checkSignIn() = %v", err)
		})
	}
}

func TestRunServe_RefusesAnonymousHTTP(t *testing.T) {
	err := runServe(DefaultConfig(), serveOptions{Transport: TransportHTTP})
	assert.ErrorContains(t, err, "--trust-user-header")
}

func TestLocalBaseURL(t *testing.T) {
	assert.Equal(t, "http://localhost:8080", localBaseURL(":8080"))
	assert.Equal(t, "http://localhost:9000", localBaseURL("0.0.0.0:9000"))
	assert.Equal(t, "http://localhost:8080", localBaseURL("garbage"))
}

func TestNewSignIn(t *testing.T) {
	store, _, err := newTokenStore(TokenStorageConfig{Type: StorageTypeMemory}, discardLogger())
	require.NoError(t, err)

	opts := serveOptions{HTTPAddr: ":8080", GoogleClientID: "id", GoogleClientSecret: "secret"}
	signIn, err := newSignIn(store, opts, discardLogger())
	require.NoError(t, err)
	// Stops the store too.
	require.NoError(t, signIn.Shutdown(context.Background()))

	opts.BaseURL = "http://noon.example.com"
	_, err = newSignIn(store, opts, discardLogger())
	assert.Error(t, err)
}

func TestRunServe_UnsupportedTransport(t *testing.T) {
	err := runServe(DefaultConfig(), serveOptions{Transport: "carrier-pigeon"})
	assert.ErrorContains(t, err, "unsupported transport")
}
