package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"time"

	mcpserver "github.com/mark3labs/mcp-go/server"
)

const (
	// DefaultHTTPAddr is the default listen address of the API server.
	DefaultHTTPAddr = ":8080"

	// DefaultWriteTimeout covers a full resolution cycle including reasoner calls.
	DefaultWriteTimeout = 90 * time.Second
)

// HTTPConfig configures the API server.
type HTTPConfig struct {
	Addr string
	// BaseURL is the externally visible URL. Plain http is accepted for
	// loopback hosts only.
	BaseURL string
	// MCPServer, when set, is served as streamable HTTP under /mcp.
	MCPServer        *mcpserver.MCPServer
	DisableStreaming bool
	RateLimiter      *RateLimiter

	// OAuth, when set, requires a signed-in caller on /v1 and /mcp.
	OAuth *OAuth
	// TrustUserHeader takes the caller from the X-Noon-User and
	// Authorization headers unverified. Only for deployments behind a
	// gateway that authenticates callers. Without either, requests carry
	// no identity.
	TrustUserHeader bool
}

// HTTPServer serves the API, the health endpoints and optionally MCP.
type HTTPServer struct {
	sc         *ServerContext
	config     HTTPConfig
	health     *HealthChecker
	httpServer *http.Server
	listener   net.Listener
}

// NewHTTPServer creates the API server for sc.
func NewHTTPServer(sc *ServerContext, config HTTPConfig) (*HTTPServer, error) {
	if config.Addr == "" {
		config.Addr = DefaultHTTPAddr
	}
	if config.BaseURL != "" {
		if err := validateHTTPSRequirement(config.BaseURL); err != nil {
			return nil, err
		}
	}
	if config.OAuth != nil && config.TrustUserHeader {
		return nil, fmt.Errorf("sign-in and trusted user headers cannot be combined")
	}
	s := &HTTPServer{
		sc:     sc,
		config: config,
		health: NewHealthChecker(sc),
	}
	s.httpServer = &http.Server{
		Addr:              config.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      DefaultWriteTimeout,
		IdleTimeout:       120 * time.Second,
	}
	return s, nil
}

// Health returns the server's health checker.
func (s *HTTPServer) Health() *HealthChecker {
	return s.health
}

// Handler builds the routing tree.
func (s *HTTPServer) Handler() http.Handler {
	api := http.NewServeMux()
	NewAPI(s.sc).Register(api)
	if s.config.MCPServer != nil {
		mcp := mcpserver.NewStreamableHTTPServer(s.config.MCPServer,
			mcpserver.WithEndpointPath("/mcp"),
			mcpserver.WithDisableStreaming(s.config.DisableStreaming),
			mcpserver.WithHTTPContextFunc(HTTPContextFunc),
		)
		api.Handle("/mcp", mcp)
	}

	// Identity is attached before rate limiting so that callers are
	// limited per user.
	routes := s.config.RateLimiter.Middleware(api)
	switch {
	case s.config.OAuth != nil:
		routes = s.config.OAuth.Protect(routes)
	case s.config.TrustUserHeader:
		routes = trustHeaders(routes)
	}

	mux := http.NewServeMux()
	s.health.RegisterHealthEndpoints(mux)
	if s.config.OAuth != nil {
		s.config.OAuth.Register(mux)
	}
	mux.Handle("/", routes)
	return s.instrumentationMiddleware(mux)
}

// Start listens and serves until Shutdown.
func (s *HTTPServer) Start() error {
	return s.StartWithReadySignal(nil)
}

// StartWithReadySignal is Start, closing ready once the listener is bound
// so that callers can report a bind failure before continuing startup.
func (s *HTTPServer) StartWithReadySignal(ready chan<- struct{}) error {
	ln, err := net.Listen("tcp", s.config.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.config.Addr, err)
	}
	s.listener = ln
	if ready != nil {
		close(ready)
	}
	s.sc.Logger().Info("starting HTTP server", "addr", ln.Addr().String(), "mcp", s.config.MCPServer != nil, "sign_in", s.config.OAuth != nil)
	if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Addr returns the bound address once started, the configured one before.
func (s *HTTPServer) Addr() string {
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.config.Addr
}

// Shutdown marks the server not ready, drains in-flight requests and stops
// the authorization server.
func (s *HTTPServer) Shutdown(ctx context.Context) error {
	s.health.SetReady(false)
	err := s.httpServer.Shutdown(ctx)
	if s.config.OAuth != nil {
		err = errors.Join(err, s.config.OAuth.Shutdown(ctx))
	}
	return err
}

// responseWriter captures the status code for metrics.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func newResponseWriter(w http.ResponseWriter) *responseWriter {
	return &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Flush keeps streaming responses working through the wrapper.
func (rw *responseWriter) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// instrumentationMiddleware records request count and latency.
func (s *HTTPServer) instrumentationMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		metrics := s.sc.Metrics()
		if metrics == nil {
			next.ServeHTTP(w, r)
			return
		}
		start := time.Now()
		rw := newResponseWriter(w)
		next.ServeHTTP(rw, r)
		metrics.RecordHTTPRequest(r.Context(), r.Method, routeLabel(r), rw.statusCode, time.Since(start))
	})
}

// routeLabel keeps the path label bounded: the matched mux pattern, with
// unmatched paths folded into one value.
func routeLabel(r *http.Request) string {
	if r.Pattern != "" && r.Pattern != "/" {
		return r.Pattern
	}
	return "unmatched"
}

// validateHTTPSRequirement ensures the public URL uses HTTPS.
// Allows HTTP only for loopback addresses (localhost, 127.0.0.1, ::1)
func validateHTTPSRequirement(baseURL string) error {
	u, err := url.Parse(baseURL)
	if err != nil {
		return fmt.Errorf("invalid base URL: %w", err)
	}

	if u.Scheme == "http" {
		host := u.Hostname()
		if host != "localhost" && host != "127.0.0.1" && host != "::1" {
			return fmt.Errorf("HTTPS is required outside of loopback (got: %s)", baseURL)
		}
	} else if u.Scheme != "https" {
		return fmt.Errorf("invalid URL scheme: %s. Must be http (localhost only) or https", u.Scheme)
	}

	return nil
}
