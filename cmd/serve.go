package cmd

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/base64"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/giantswarm/mcp-oauth/security"
	"github.com/giantswarm/mcp-oauth/storage/memory"
	"github.com/giantswarm/mcp-oauth/storage/valkey"
	mcpserver "github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"

	"github.com/teemow/noon/internal/google"
	"github.com/teemow/noon/internal/instrumentation"
	"github.com/teemow/noon/internal/logging"
	"github.com/teemow/noon/internal/resources"
	"github.com/teemow/noon/internal/server"
	"github.com/teemow/noon/internal/tools/calendar_tools"
)

// Transports.
const (
	TransportStdio          = "stdio"
	TransportHTTP           = "http"
	TransportStreamableHTTP = "streamable-http"
)

// Token storage backends.
const (
	StorageTypeMemory = "memory"
	StorageTypeValkey = "valkey"
)

// MetricsConfig holds configuration for the metrics server
type MetricsConfig struct {
	// Enabled determines whether to start the metrics server (default: true)
	Enabled bool

	// Addr is the address for the metrics server (e.g., ":9090")
	Addr string
}

// TokenStorageConfig holds the linked-account token storage backend configuration
type TokenStorageConfig struct {
	// Type is the storage backend type: "memory" or "valkey" (default: "memory")
	Type string

	// EncryptionKey encrypts tokens at rest (AES-256, 32 bytes).
	EncryptionKey []byte

	// Valkey configuration (used when Type is "valkey")
	Valkey ValkeyStorageConfig
}

// ValkeyStorageConfig holds configuration for Valkey storage backend
type ValkeyStorageConfig struct {
	// URL is the Valkey server address (e.g., "valkey.namespace.svc:6379")
	URL string

	// Password is the optional password for Valkey authentication
	Password string

	// TLSEnabled enables TLS for Valkey connections
	TLSEnabled bool

	// TLSCAFile is the path to a custom CA certificate file for TLS verification.
	TLSCAFile string

	// KeyPrefix is the prefix for all Valkey keys (default: "noon:")
	KeyPrefix string

	// DB is the Valkey database number (default: 0)
	DB int
}

// RateLimitConfig bounds API requests per caller.
type RateLimitConfig struct {
	PerSecond  float64
	Burst      int
	TrustProxy bool
}

// SignInConfig configures how HTTP callers are identified.
type SignInConfig struct {
	// AllowPublicClientRegistration lets MCP clients register without a token.
	AllowPublicClientRegistration bool

	// RegistrationAccessToken is required for client registration otherwise.
	RegistrationAccessToken string

	// TrustUserHeader takes the caller from X-Noon-User without sign-in.
	TrustUserHeader bool
}

// serveOptions collects the serve flags after environment fallbacks.
type serveOptions struct {
	Transport          string
	HTTPAddr           string
	BaseURL            string
	DisableStreaming   bool
	Debug              bool
	Yolo               bool
	GoogleClientID     string
	GoogleClientSecret string
	Storage            TokenStorageConfig
	Metrics            MetricsConfig
	RateLimit          RateLimitConfig
	SignIn             SignInConfig
}

// signInEnabled reports whether callers sign in with Google.
func (o serveOptions) signInEnabled() bool {
	return o.GoogleClientID != "" && o.GoogleClientSecret != ""
}

func newServeCmd() *cobra.Command {
	var (
		opts          serveOptions
		encryptionKey string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API and MCP server",
		Long: `Start noon as a server for assistants and applications.

Supports multiple transport types:
  - http: HTTP API under /v1, MCP over streamable HTTP under /mcp (default)
  - streamable-http: same as http
  - stdio: MCP over standard input/output, using the local token cache

Safety Mode:
  By default, the server only resolves requests and reads calendars.
  Use --yolo to enable the execute endpoint and the calendar_execute_action tool.

Accounts:
  HTTP Transport:
    With --google-client-id and --google-client-secret (or GOOGLE_CLIENT_ID
    and GOOGLE_CLIENT_SECRET), callers sign in with Google through the OAuth
    endpoints under /oauth and send the issued token as
    "Authorization: Bearer <token>" on /v1 and /mcp. The signed-in Google
    account is the default account; more are linked with
    PUT /v1/accounts/{account}. Tokens are kept in memory or in Valkey
    (--storage-type valkey).

    Behind a gateway that authenticates callers itself, --trust-user-header
    takes the caller from the X-Noon-User header instead. The header is not
    verified, so never expose such a server directly.

    One of the two is required unless the calendar is an ICS feed.

  STDIO Transport:
    Tokens cached by "noon auth login" are used.

Token Refresh:
  The Google client credentials also refresh expired tokens. Without them,
  users need to relink accounts when tokens expire (~1 hour).`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if encryptionKey == "" {
				encryptionKey = os.Getenv("NOON_ENCRYPTION_KEY")
			}
			if encryptionKey != "" {
				decoded, err := decodeEncryptionKey(encryptionKey)
				if err != nil {
					return err
				}
				opts.Storage.EncryptionKey = decoded
			}
			loadStorageEnvVars(cmd, &opts.Storage)
			loadServeEnvVars(cmd, &opts)

			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if env := os.Getenv("NOON_ACCOUNTS"); env != "" {
				cfg.Accounts = parseCommaSeparatedList(env)
			}
			cfg.Normalize()
			if err := cfg.Validate(); err != nil {
				return err
			}
			return runServe(cfg, opts)
		},
	}

	cmd.Flags().BoolVar(&opts.Debug, "debug", false, "Enable debug logging")
	cmd.Flags().StringVar(&opts.Transport, "transport", TransportHTTP, "Transport type: http, streamable-http or stdio")
	cmd.Flags().StringVar(&opts.HTTPAddr, "http-addr", server.DefaultHTTPAddr, "HTTP server address. Can also use HTTP_ADDR env var.")
	cmd.Flags().StringVar(&opts.BaseURL, "base-url", "", "Public base URL of the server. Must be https unless it is a loopback address. Can also use NOON_BASE_URL env var.")
	cmd.Flags().BoolVar(&opts.DisableStreaming, "disable-streaming", false, "Disable streaming for the MCP endpoint (for compatibility with certain clients)")
	cmd.Flags().BoolVar(&opts.Yolo, "yolo", false, "Enable executing records against Google Calendar. Default is read-only mode.")
	cmd.Flags().StringVar(&opts.GoogleClientID, "google-client-id", "", "Google OAuth Client ID for sign-in and token refresh. Can also use GOOGLE_CLIENT_ID env var.")
	cmd.Flags().StringVar(&opts.GoogleClientSecret, "google-client-secret", "", "Google OAuth Client Secret for sign-in and token refresh. Can also use GOOGLE_CLIENT_SECRET env var.")

	// Linked-account token storage
	cmd.Flags().StringVar(&opts.Storage.Type, "storage-type", StorageTypeMemory, "Linked-account token storage: memory or valkey. Can also use NOON_STORAGE_TYPE env var.")
	cmd.Flags().StringVar(&encryptionKey, "encryption-key", "", "AES-256 key encrypting stored tokens (32 bytes, base64 encoded). Can also use NOON_ENCRYPTION_KEY env var. Generate with: openssl rand -base64 32")
	cmd.Flags().StringVar(&opts.Storage.Valkey.URL, "valkey-url", "", "Valkey server address (e.g., valkey.namespace.svc:6379). Can also use VALKEY_URL env var.")
	cmd.Flags().StringVar(&opts.Storage.Valkey.Password, "valkey-password", "", "Valkey authentication password. Can also use VALKEY_PASSWORD env var.")
	cmd.Flags().BoolVar(&opts.Storage.Valkey.TLSEnabled, "valkey-tls", false, "Enable TLS for Valkey connections. Can also use VALKEY_TLS_ENABLED env var.")
	cmd.Flags().StringVar(&opts.Storage.Valkey.KeyPrefix, "valkey-key-prefix", "noon:", "Prefix for all Valkey keys. Can also use VALKEY_KEY_PREFIX env var.")
	cmd.Flags().IntVar(&opts.Storage.Valkey.DB, "valkey-db", 0, "Valkey database number. Can also use VALKEY_DB env var.")

	// Sign-in
	cmd.Flags().BoolVar(&opts.SignIn.AllowPublicClientRegistration, "oauth-allow-public-registration", false, "WARNING: Allow unauthenticated client registration (NOT recommended for production). Can also use NOON_OAUTH_ALLOW_PUBLIC_REGISTRATION env var.")
	cmd.Flags().StringVar(&opts.SignIn.RegistrationAccessToken, "oauth-registration-token", "", "Registration access token required for client registration when public registration is disabled. Can also use NOON_OAUTH_REGISTRATION_TOKEN env var.")
	cmd.Flags().BoolVar(&opts.SignIn.TrustUserHeader, "trust-user-header", false, "WARNING: Identify callers by the unverified X-Noon-User header. Only behind an authenticating gateway. Can also use NOON_TRUST_USER_HEADER env var.")

	// Rate limiting
	cmd.Flags().Float64Var(&opts.RateLimit.PerSecond, "rate-limit", server.DefaultRateLimit, "API requests per second per caller; 0 disables limiting. Can also use RATE_LIMIT_RPS env var.")
	cmd.Flags().IntVar(&opts.RateLimit.Burst, "rate-limit-burst", server.DefaultRateBurst, "API request burst per caller. Can also use RATE_LIMIT_BURST env var.")
	cmd.Flags().BoolVar(&opts.RateLimit.TrustProxy, "trust-proxy", false, "Use X-Forwarded-For and X-Real-IP to identify anonymous callers. Can also use TRUST_PROXY env var.")

	// Metrics server flags
	cmd.Flags().BoolVar(&opts.Metrics.Enabled, "metrics-enabled", true, "Enable the metrics server on a dedicated port. Can also use METRICS_ENABLED env var.")
	cmd.Flags().StringVar(&opts.Metrics.Addr, "metrics-addr", server.DefaultMetricsAddr, "Metrics server address. Can also use METRICS_ADDR env var.")

	return cmd
}

func runServe(cfg *Config, opts serveOptions) error {
	// Setup graceful shutdown
	shutdownCtx, cancel := signal.NotifyContext(context.Background(),
		os.Interrupt, syscall.SIGTERM)
	defer cancel()

	switch opts.Transport {
	case TransportStdio, TransportHTTP, TransportStreamableHTTP:
	default:
		return fmt.Errorf("unsupported transport type: %s (supported: %s, %s, %s)", opts.Transport, TransportHTTP, TransportStreamableHTTP, TransportStdio)
	}
	stdio := opts.Transport == TransportStdio
	if err := checkSignIn(cfg, opts); err != nil {
		return err
	}

	logger := newLogger(opts.Debug)
	slog.SetDefault(logger)

	// Initialize instrumentation provider
	instrConfig := instrumentation.DefaultConfig()
	instrConfig.ServiceVersion = version

	provider, err := instrumentation.NewProvider(shutdownCtx, instrConfig)
	if err != nil {
		return fmt.Errorf("failed to create instrumentation provider: %w", err)
	}
	defer func() {
		if err := provider.Shutdown(context.Background()); err != nil {
			logger.Warn("Error during instrumentation shutdown", logging.Err(err))
		}
	}()

	var (
		metrics *instrumentation.Metrics
		audit   *instrumentation.AuditLogger
	)
	if provider.Enabled() {
		metrics = provider.Metrics()
		audit = instrumentation.NewAuditLoggerWithConfig(logger, instrConfig.AuditLogging)
	}

	// Start metrics server if enabled and not in stdio mode
	if !stdio && opts.Metrics.Enabled && provider.Enabled() {
		metricsServer, err := startMetricsServer(opts.Metrics, provider, logger)
		if err != nil {
			return err
		}
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := metricsServer.Shutdown(ctx); err != nil {
				logger.Warn("Error during metrics server shutdown", logging.Err(err))
			}
		}()
	}

	loc, err := cfg.Location()
	if err != nil {
		return err
	}
	p, err := buildPorts(cfg, googleOAuthConfig(opts.GoogleClientID, opts.GoogleClientSecret), metrics, logger)
	if err != nil {
		return err
	}
	resolver, err := buildResolver(cfg, p.reader, metrics, audit, logger)
	if err != nil {
		return err
	}

	scConfig := server.Config{
		Resolver: resolver,
		Reader:   p.reader,
		Static:   p.static,
		Location: loc,
		Logger:   logger,
	}
	// readOnly is the inverse of yolo
	if opts.Yolo {
		scConfig.Writer = p.writer
	}
	var signIn *server.OAuth
	switch {
	case stdio:
		scConfig.Tokens = google.NewFileTokenProvider("")
		scConfig.Accounts = cfg.Accounts
	case p.static == nil || opts.signInEnabled():
		store, closeStore, err := newTokenStore(opts.Storage, logger)
		if err != nil {
			return err
		}
		if opts.signInEnabled() {
			signIn, err = newSignIn(store, opts, logger)
			if err != nil {
				closeStore()
				return err
			}
			// The authorization server stops in-memory storage on shutdown.
			if _, ok := store.(*memory.Store); ok {
				closeStore = func() {}
			}
			defer func() {
				ctx, cancel := context.WithTimeout(context.Background(), server.DefaultShutdownTimeout)
				defer cancel()
				if err := signIn.Shutdown(ctx); err != nil {
					logger.Warn("Error during sign-in shutdown", logging.Err(err))
				}
			}()
		}
		defer closeStore()
		if p.static == nil {
			scConfig.Linked = server.NewLinkedAccounts(store)
		}
	}
	if !stdio && signIn == nil && !opts.SignIn.TrustUserHeader {
		logger.Warn("Serving ICS feeds without sign-in")
	}

	serverContext, err := server.NewServerContext(shutdownCtx, scConfig)
	if err != nil {
		return fmt.Errorf("failed to create server context: %w", err)
	}
	serverContext.SetMetrics(metrics)
	serverContext.SetAuditLogger(audit)
	defer func() {
		if err := serverContext.Shutdown(); err != nil {
			logger.Warn("Error during server context shutdown", logging.Err(err))
		}
	}()

	if serverContext.Writer() == nil {
		logger.Info("Starting server in READ-ONLY mode (use --yolo to enable executing records)")
	} else {
		logger.Info("Starting server with record execution enabled (--yolo flag is set)")
	}

	mcpSrv := mcpserver.NewMCPServer("noon", version,
		mcpserver.WithToolCapabilities(true),
		mcpserver.WithResourceCapabilities(false, false), // Subscribe and listChanged
	)
	if err := calendar_tools.RegisterCalendarTools(mcpSrv, serverContext); err != nil {
		return fmt.Errorf("failed to register calendar tools: %w", err)
	}
	if err := resources.RegisterSessionResources(mcpSrv, serverContext); err != nil {
		return fmt.Errorf("failed to register session resources: %w", err)
	}

	if stdio {
		return runStdioServer(mcpSrv)
	}
	return runHTTPServer(shutdownCtx, serverContext, mcpSrv, signIn, opts, logger)
}

// checkSignIn refuses an HTTP server that cannot tell callers apart. ICS
// feeds are the same for every caller and need no sign-in.
func checkSignIn(cfg *Config, opts serveOptions) error {
	if opts.Transport == TransportStdio {
		return nil
	}
	switch {
	case opts.signInEnabled() && opts.SignIn.TrustUserHeader:
		return fmt.Errorf("--trust-user-header cannot be combined with Google sign-in")
	case opts.signInEnabled() || opts.SignIn.TrustUserHeader || len(cfg.ICS) > 0:
		return nil
	}
	return fmt.Errorf("the HTTP transport needs --google-client-id and --google-client-secret for sign-in, or --trust-user-header behind an authenticating gateway")
}

// newSignIn creates the authorization server callers sign in through.
func newSignIn(store server.OAuthStore, opts serveOptions, logger *slog.Logger) (*server.OAuth, error) {
	baseURL := opts.BaseURL
	if baseURL == "" {
		baseURL = localBaseURL(opts.HTTPAddr)
		logger.Warn("No --base-url set, using loopback issuer", "base_url", baseURL)
	}
	signIn, err := server.NewOAuth(server.OAuthConfig{
		BaseURL:                       baseURL,
		GoogleClientID:                opts.GoogleClientID,
		GoogleClientSecret:            opts.GoogleClientSecret,
		Store:                         store,
		AllowPublicClientRegistration: opts.SignIn.AllowPublicClientRegistration,
		RegistrationAccessToken:       opts.SignIn.RegistrationAccessToken,
		TrustProxy:                    opts.RateLimit.TrustProxy,
		Logger:                        logger,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to set up sign-in: %w", err)
	}
	return signIn, nil
}

// localBaseURL is the loopback URL of the listen address.
func localBaseURL(addr string) string {
	_, port, err := net.SplitHostPort(addr)
	if err != nil || port == "" {
		_, port, _ = net.SplitHostPort(server.DefaultHTTPAddr)
	}
	return "http://" + net.JoinHostPort("localhost", port)
}

func startMetricsServer(cfg MetricsConfig, provider *instrumentation.Provider, logger *slog.Logger) (*server.MetricsServer, error) {
	metricsServer, err := server.NewMetricsServer(server.MetricsServerConfig{
		Addr:                    cfg.Addr,
		Enabled:                 true,
		InstrumentationProvider: provider,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create metrics server: %w", err)
	}

	// Use ready channel to confirm metrics server started successfully
	metricsReady := make(chan struct{})
	metricsErr := make(chan error, 1)
	go func() {
		if err := metricsServer.StartWithReadySignal(metricsReady); err != nil && err != http.ErrServerClosed {
			metricsErr <- err
		}
		close(metricsErr)
	}()

	select {
	case <-metricsReady:
		logger.Info("Metrics server started", "addr", metricsServer.Addr())
		return metricsServer, nil
	case err := <-metricsErr:
		return nil, fmt.Errorf("metrics server failed to start: %w", err)
	case <-time.After(5 * time.Second):
		return nil, fmt.Errorf("metrics server startup timed out")
	}
}

func runStdioServer(mcpSrv *mcpserver.MCPServer) error {
	serverDone := make(chan error, 1)
	go func() {
		defer close(serverDone)
		if err := mcpserver.ServeStdio(mcpSrv); err != nil {
			serverDone <- err
		}
	}()

	err := <-serverDone
	if err != nil {
		return fmt.Errorf("server stopped with error: %w", err)
	}
	return nil
}

func runHTTPServer(ctx context.Context, sc *server.ServerContext, mcpSrv *mcpserver.MCPServer, signIn *server.OAuth, opts serveOptions, logger *slog.Logger) error {
	httpServer, err := server.NewHTTPServer(sc, server.HTTPConfig{
		Addr:             opts.HTTPAddr,
		BaseURL:          opts.BaseURL,
		MCPServer:        mcpSrv,
		DisableStreaming: opts.DisableStreaming,
		RateLimiter:      server.NewRateLimiter(opts.RateLimit.PerSecond, opts.RateLimit.Burst, opts.RateLimit.TrustProxy),
		OAuth:            signIn,
		TrustUserHeader:  opts.SignIn.TrustUserHeader,
	})
	if err != nil {
		return fmt.Errorf("failed to create HTTP server: %w", err)
	}

	fmt.Printf("noon HTTP server starting on %s\n", opts.HTTPAddr)
	fmt.Printf("  API endpoints: /v1/agent/resolve, /v1/calendars, /v1/accounts\n")
	fmt.Printf("  MCP endpoint: /mcp\n")
	if signIn != nil {
		fmt.Printf("  OAuth endpoints: /oauth/authorize, /oauth/token, /oauth/register\n")
	}
	fmt.Printf("  Health endpoints: /healthz, /readyz\n")
	if opts.Metrics.Enabled {
		fmt.Printf("  Metrics endpoint: %s/metrics\n", opts.Metrics.Addr)
	}

	serverDone := make(chan error, 1)
	go func() {
		defer close(serverDone)
		if err := httpServer.Start(); err != nil {
			serverDone <- err
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("Shutdown signal received, stopping HTTP server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), server.DefaultShutdownTimeout)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("error shutting down HTTP server: %w", err)
		}
	case err := <-serverDone:
		if err != nil {
			return fmt.Errorf("HTTP server stopped with error: %w", err)
		}
	}

	logger.Info("HTTP server gracefully stopped")
	return nil
}

// encryptingStore is a store that can encrypt tokens at rest.
type encryptingStore interface {
	server.OAuthStore
	SetEncryptor(enc *security.Encryptor)
}

// newTokenStore creates the store shared by sign-in and linked accounts.
// The returned function releases it.
func newTokenStore(cfg TokenStorageConfig, logger *slog.Logger) (server.OAuthStore, func(), error) {
	var (
		store   encryptingStore
		release func()
	)
	switch cfg.Type {
	case StorageTypeMemory, "":
		mem := memory.New()
		store, release = mem, mem.Stop
	case StorageTypeValkey:
		if cfg.Valkey.URL == "" {
			return nil, nil, fmt.Errorf("valkey storage requires --valkey-url or VALKEY_URL")
		}
		vcfg := valkey.Config{
			Address:   cfg.Valkey.URL,
			Password:  cfg.Valkey.Password,
			DB:        cfg.Valkey.DB,
			KeyPrefix: cfg.Valkey.KeyPrefix,
			Logger:    logger,
		}
		if cfg.Valkey.TLSEnabled {
			tlsConfig, err := valkeyTLSConfig(cfg.Valkey.TLSCAFile)
			if err != nil {
				return nil, nil, err
			}
			vcfg.TLS = tlsConfig
		}
		vs, err := valkey.New(vcfg)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to connect to valkey: %w", err)
		}
		store, release = vs, vs.Close
	default:
		return nil, nil, fmt.Errorf("unsupported storage type: %s (supported: %s, %s)", cfg.Type, StorageTypeMemory, StorageTypeValkey)
	}

	if len(cfg.EncryptionKey) > 0 {
		enc, err := security.NewEncryptor(cfg.EncryptionKey)
		if err != nil {
			release()
			return nil, nil, fmt.Errorf("failed to create token encryptor: %w", err)
		}
		store.SetEncryptor(enc)
	} else if cfg.Type == StorageTypeValkey {
		logger.Warn("Valkey token storage without an encryption key stores Google tokens in plain text")
	}
	return store, release, nil
}

func valkeyTLSConfig(caFile string) (*tls.Config, error) {
	tlsConfig := &tls.Config{MinVersion: tls.VersionTLS12}
	if caFile == "" {
		return tlsConfig, nil
	}
	pem, err := os.ReadFile(caFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read valkey CA file: %w", err)
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(pem) {
		return nil, fmt.Errorf("valkey CA file %s contains no certificates", caFile)
	}
	tlsConfig.RootCAs = pool
	return tlsConfig, nil
}

func decodeEncryptionKey(s string) ([]byte, error) {
	decoded, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("invalid encryption key (must be base64 encoded): %w", err)
	}
	if len(decoded) != 32 {
		return nil, fmt.Errorf("encryption key must be exactly 32 bytes (got %d bytes)", len(decoded))
	}
	return decoded, nil
}

// loadStorageEnvVars loads token storage configuration from environment variables.
// Environment variables only override flag values when the flag was not explicitly set.
func loadStorageEnvVars(cmd *cobra.Command, config *TokenStorageConfig) {
	if !cmd.Flags().Changed("storage-type") {
		if storageType := os.Getenv("NOON_STORAGE_TYPE"); storageType != "" {
			config.Type = storageType
		}
	}
	if !cmd.Flags().Changed("valkey-url") {
		if url := os.Getenv("VALKEY_URL"); url != "" {
			config.Valkey.URL = url
		}
	}
	if !cmd.Flags().Changed("valkey-password") {
		if password := os.Getenv("VALKEY_PASSWORD"); password != "" {
			config.Valkey.Password = password
		}
	}
	if !cmd.Flags().Changed("valkey-key-prefix") {
		if keyPrefix := os.Getenv("VALKEY_KEY_PREFIX"); keyPrefix != "" {
			config.Valkey.KeyPrefix = keyPrefix
		}
	}
	if !cmd.Flags().Changed("valkey-tls") && os.Getenv("VALKEY_TLS_ENABLED") == "true" {
		config.Valkey.TLSEnabled = true
	}
	if config.Valkey.TLSCAFile == "" {
		config.Valkey.TLSCAFile = os.Getenv("VALKEY_TLS_CA_FILE")
	}
	if !cmd.Flags().Changed("valkey-db") {
		if dbStr := os.Getenv("VALKEY_DB"); dbStr != "" {
			if db, err := strconv.Atoi(dbStr); err == nil {
				config.Valkey.DB = db
			}
		}
	}
}

// loadServeEnvVars applies the environment fallbacks of the remaining serve flags.
func loadServeEnvVars(cmd *cobra.Command, opts *serveOptions) {
	flags := cmd.Flags()
	if !flags.Changed("http-addr") {
		if addr := os.Getenv("HTTP_ADDR"); addr != "" {
			opts.HTTPAddr = addr
		}
	}
	if !flags.Changed("base-url") {
		opts.BaseURL = os.Getenv("NOON_BASE_URL")
	}
	if !flags.Changed("rate-limit") {
		if v, err := strconv.ParseFloat(os.Getenv("RATE_LIMIT_RPS"), 64); err == nil {
			opts.RateLimit.PerSecond = v
		}
	}
	if !flags.Changed("rate-limit-burst") {
		if v, err := strconv.Atoi(os.Getenv("RATE_LIMIT_BURST")); err == nil && v > 0 {
			opts.RateLimit.Burst = v
		}
	}
	if !flags.Changed("trust-proxy") && os.Getenv("TRUST_PROXY") == "true" {
		opts.RateLimit.TrustProxy = true
	}
	if !flags.Changed("google-client-id") {
		opts.GoogleClientID = os.Getenv("GOOGLE_CLIENT_ID")
	}
	if !flags.Changed("google-client-secret") {
		opts.GoogleClientSecret = os.Getenv("GOOGLE_CLIENT_SECRET")
	}
	if !flags.Changed("oauth-allow-public-registration") && os.Getenv("NOON_OAUTH_ALLOW_PUBLIC_REGISTRATION") == "true" {
		opts.SignIn.AllowPublicClientRegistration = true
	}
	if !flags.Changed("oauth-registration-token") {
		opts.SignIn.RegistrationAccessToken = os.Getenv("NOON_OAUTH_REGISTRATION_TOKEN")
	}
	if !flags.Changed("trust-user-header") && os.Getenv("NOON_TRUST_USER_HEADER") == "true" {
		opts.SignIn.TrustUserHeader = true
	}
	if !flags.Changed("metrics-enabled") {
		if v, err := strconv.ParseBool(os.Getenv("METRICS_ENABLED")); err == nil {
			opts.Metrics.Enabled = v
		}
	}
	if !flags.Changed("metrics-addr") {
		if addr := os.Getenv("METRICS_ADDR"); addr != "" {
			opts.Metrics.Addr = addr
		}
	}
}

// parseCommaSeparatedList parses a comma-separated string into a slice,
// trimming whitespace from each element and filtering out empty strings.
// Returns nil if the input is empty.
func parseCommaSeparatedList(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	result := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			result = append(result, p)
		}
	}
	return result
}
