package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/teemow/noon/internal/agent"
	"github.com/teemow/noon/internal/auth"
	"github.com/teemow/noon/internal/calendar"
	"github.com/teemow/noon/internal/google"
	"github.com/teemow/noon/internal/logging"
)

// resolveOptions are the per-invocation settings of resolve.
type resolveOptions struct {
	Query    string
	Now      time.Time
	Accounts []string
	Execute  bool
	TokenDir string
}

func newResolveCmd() *cobra.Command {
	var (
		now                string
		timezone           string
		accounts           []string
		icsFiles           []string
		execute            bool
		reasonerKind       string
		googleClientID     string
		googleClientSecret string
		debugMode          bool
	)

	cmd := &cobra.Command{
		Use:   "resolve <query>",
		Short: "Resolve a calendar request into an action record",
		Long: `Resolve one natural-language calendar request and print the resulting
action record as JSON.

The calendars of the accounts logged in with "noon auth login" are read to
find the events the request refers to. With --ics, local iCalendar files
are read instead (read-only).

Nothing is changed unless --execute is given; then create, update and
delete records are applied to Google Calendar and the result is printed
after the record.

Examples:
  noon resolve "what's on my calendar next Tuesday"
  noon resolve "cancel my dentist appointment" --execute
  noon resolve --now 2026-10-19T09:30:00-07:00 --timezone America/Los_Angeles "lunch tomorrow at 1pm"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("timezone") {
				cfg.Timezone = timezone
			}
			if cmd.Flags().Changed("reasoner") {
				cfg.Reasoner = reasonerKind
			}
			if len(accounts) > 0 {
				cfg.Accounts = accounts
			}
			if len(icsFiles) > 0 {
				cfg.ICS = icsSources(icsFiles)
			}
			cfg.Normalize()
			if err := cfg.Validate(); err != nil {
				return err
			}

			opts := resolveOptions{
				Query:    strings.Join(args, " "),
				Accounts: cfg.Accounts,
				Execute:  execute,
				TokenDir: google.DefaultTokenDir(),
			}
			if now != "" {
				opts.Now, err = time.Parse(time.RFC3339, now)
				if err != nil {
					return fmt.Errorf("invalid --now %q (want RFC3339): %w", now, err)
				}
			}

			ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			logger := newLogger(debugMode)
			p, err := buildPorts(cfg, googleOAuthConfig(googleClientID, googleClientSecret), nil, logger)
			if err != nil {
				return err
			}
			resolver, err := buildResolver(cfg, p.reader, nil, nil, logger)
			if err != nil {
				return err
			}
			return runResolve(ctx, cmd.OutOrStdout(), cfg, resolver, p, opts, logger)
		},
	}

	cmd.Flags().StringVar(&now, "now", "", "Reference time for relative expressions (RFC3339). Default: the current time")
	cmd.Flags().StringVar(&timezone, "timezone", "", "IANA timezone the request is interpreted in. Default: the config timezone or the local zone")
	cmd.Flags().StringSliceVar(&accounts, "account", nil, "Google account(s) to read, as named at login. Default: the configured accounts")
	cmd.Flags().StringSliceVar(&icsFiles, "ics", nil, "Read these iCalendar files instead of Google Calendar (read-only)")
	cmd.Flags().BoolVar(&execute, "execute", false, "Apply create, update and delete records to the calendar")
	cmd.Flags().StringVar(&reasonerKind, "reasoner", "", "Reasoner: rules or openai (openai needs OPENAI_API_KEY). Default: the config reasoner")
	cmd.Flags().StringVar(&googleClientID, "google-client-id", "", "Google OAuth Client ID used to refresh tokens. Can also use GOOGLE_CLIENT_ID env var.")
	cmd.Flags().StringVar(&googleClientSecret, "google-client-secret", "", "Google OAuth Client Secret used to refresh tokens. Can also use GOOGLE_CLIENT_SECRET env var.")
	cmd.Flags().BoolVar(&debugMode, "debug", false, "Enable debug logging")

	return cmd
}

func runResolve(ctx context.Context, out io.Writer, cfg *Config, resolver *agent.Resolver, p ports, opts resolveOptions, logger *slog.Logger) error {
	loc, err := cfg.Location()
	if err != nil {
		return err
	}

	creds := p.static
	if creds == nil {
		creds, err = google.Credentials(ctx, google.NewFileTokenProvider(opts.TokenDir), localUser(), opts.Accounts...)
		switch {
		case errors.Is(err, auth.ErrUnauthenticated):
			// The record reports the missing login for requests that need the calendar.
			logger.Warn("No Google account is logged in; run 'noon auth login'", logging.Err(err))
			creds = nil
		case err != nil:
			return err
		}
	}

	rec := resolver.Resolve(ctx, agent.Query{Text: opts.Query, Now: opts.Now, Location: loc}, creds)
	if err := writeIndented(out, rec); err != nil {
		return err
	}
	if !opts.Execute || !rec.Success || !rec.Request.Mutates() {
		return nil
	}

	if p.writer == nil {
		return fmt.Errorf("cannot execute %s: %w", rec.Request, calendar.ErrReadOnly)
	}
	res, err := calendar.Apply(ctx, p.writer, creds, rec, loc)
	if err != nil {
		return fmt.Errorf("failed to execute %s: %w", rec.Request, err)
	}
	return writeIndented(out, res)
}

func writeIndented(out io.Writer, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(out, string(data))
	return err
}
