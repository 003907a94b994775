package cmd

import (
	"fmt"
	"log/slog"
	"os"
	"os/user"
	"path/filepath"
	"strings"

	"golang.org/x/oauth2"

	"github.com/teemow/noon/internal/agent"
	"github.com/teemow/noon/internal/auth"
	"github.com/teemow/noon/internal/calendar"
	"github.com/teemow/noon/internal/calendar/ics"
	"github.com/teemow/noon/internal/google"
	"github.com/teemow/noon/internal/instrumentation"
	"github.com/teemow/noon/internal/reasoner"
)

// ports holds the calendar ports of one process.
type ports struct {
	reader calendar.Reader
	// writer is nil for read-only ICS feeds.
	writer calendar.Writer
	// static is the credential bundle of the ICS port.
	static *auth.Context
}

// newLogger returns a text logger on stderr; stdout carries results and,
// over stdio, the MCP protocol.
func newLogger(debug bool) *slog.Logger {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// localUser names the user of CLI and stdio credential bundles.
func localUser() string {
	if u, err := user.Current(); err == nil && u.Username != "" {
		return u.Username
	}
	return "local"
}

// googleOAuthConfig returns the client used to refresh and obtain tokens,
// or nil when no client ID is configured.
func googleOAuthConfig(clientID, clientSecret string) *oauth2.Config {
	if clientID == "" {
		clientID = os.Getenv("GOOGLE_CLIENT_ID")
	}
	if clientSecret == "" {
		clientSecret = os.Getenv("GOOGLE_CLIENT_SECRET")
	}
	if clientID == "" {
		return nil
	}
	return google.OAuthConfig(clientID, clientSecret)
}

// icsSources turns file paths into sources named after the file.
func icsSources(paths []string) []ics.Source {
	sources := make([]ics.Source, 0, len(paths))
	for _, p := range paths {
		id := strings.TrimSuffix(filepath.Base(p), filepath.Ext(p))
		sources = append(sources, ics.Source{ID: id, Path: p})
	}
	return sources
}

func buildPorts(cfg *Config, oauthCfg *oauth2.Config, metrics *instrumentation.Metrics, logger *slog.Logger) (ports, error) {
	if len(cfg.ICS) > 0 {
		loc, err := cfg.Location()
		if err != nil {
			return ports{}, err
		}
		reader, err := ics.New(ics.Config{Sources: cfg.ICS, Location: loc, Logger: logger})
		if err != nil {
			return ports{}, fmt.Errorf("failed to create ICS reader: %w", err)
		}
		return ports{reader: reader, static: ics.Credentials(localUser())}, nil
	}

	svc := calendar.NewGoogleService(calendar.GoogleConfig{
		OAuth:   oauthCfg,
		Metrics: metrics,
		Logger:  logger,
	})
	return ports{reader: svc, writer: svc}, nil
}

func buildReasoner(cfg *Config, logger *slog.Logger) (agent.Reasoner, error) {
	switch cfg.Reasoner {
	case ReasonerOpenAI:
		baseURL := cfg.OpenAI.BaseURL
		if baseURL == "" {
			baseURL = os.Getenv("OPENAI_BASE_URL")
		}
		return reasoner.NewOpenAI(reasoner.OpenAIConfig{
			APIKey:      os.Getenv("OPENAI_API_KEY"),
			BaseURL:     baseURL,
			Model:       cfg.OpenAI.Model,
			Temperature: cfg.OpenAI.Temperature,
			MaxTokens:   cfg.OpenAI.MaxTokens,
			Logger:      logger,
		})
	case ReasonerRules, "":
		return reasoner.NewRules(), nil
	default:
		return nil, fmt.Errorf("unknown reasoner %q", cfg.Reasoner)
	}
}

func buildResolver(cfg *Config, reader calendar.Reader, metrics *instrumentation.Metrics, audit *instrumentation.AuditLogger, logger *slog.Logger) (*agent.Resolver, error) {
	r, err := buildReasoner(cfg, logger)
	if err != nil {
		return nil, err
	}
	gatherer := agent.NewGatherer(reader, agent.NewBridge(int64(cfg.BridgeConcurrency)), metrics, logger)
	loop := agent.NewLoop(r, gatherer, agent.Config{
		MaxRoundTrips: cfg.MaxRoundTrips,
		CycleTimeout:  cfg.CycleTimeout,
	}, logger)
	return agent.NewResolver(agent.NewRouter(metrics), loop,
		agent.WithLogger(logger),
		agent.WithMetrics(metrics),
		agent.WithAuditLogger(audit),
	), nil
}
