package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/teemow/noon/internal/google"
)

func newAuthCmd() *cobra.Command {
	var tokenDir string

	cmd := &cobra.Command{
		Use:   "auth",
		Short: "Manage the Google accounts noon reads",
		Long: `Log Google accounts in and out. Tokens are cached per account under the
user cache directory and used by "noon resolve" and "noon serve --transport stdio".`,
	}
	cmd.PersistentFlags().StringVar(&tokenDir, "token-dir", "", "Directory holding the token files. Default: <user cache dir>/noon")

	cmd.AddCommand(newAuthLoginCmd(&tokenDir))
	cmd.AddCommand(newAuthStatusCmd(&tokenDir))
	cmd.AddCommand(newAuthLogoutCmd(&tokenDir))
	return cmd
}

func newAuthLoginCmd(tokenDir *string) *cobra.Command {
	var (
		account            string
		googleClientID     string
		googleClientSecret string
	)

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Log a Google account in",
		Long: `Run the Google OAuth consent flow in the browser and cache the token.

A Google OAuth client of type "Desktop app" is required:
  --google-client-id and --google-client-secret flags
  OR GOOGLE_CLIENT_ID and GOOGLE_CLIENT_SECRET env vars`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := google.ValidateAccountName(account); err != nil {
				return err
			}
			conf := googleOAuthConfig(googleClientID, googleClientSecret)
			if conf == nil {
				return fmt.Errorf("google client ID is required (--google-client-id or GOOGLE_CLIENT_ID)")
			}

			ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			out := cmd.ErrOrStderr()
			token, err := google.Login(ctx, conf, func(authURL string) error {
				_, err := fmt.Fprintf(out, "Open this URL in your browser to grant calendar access:\n\n  %s\n\n", authURL)
				return err
			})
			if err != nil {
				return fmt.Errorf("login failed: %w", err)
			}
			if err := google.NewFileTokenProvider(*tokenDir).SaveToken(account, token); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Logged in account %s\n", account)
			return nil
		},
	}

	cmd.Flags().StringVar(&account, "account", google.DefaultAccount, "Name for the account (letters, digits, '-' and '_')")
	cmd.Flags().StringVar(&googleClientID, "google-client-id", "", "Google OAuth Client ID. Can also use GOOGLE_CLIENT_ID env var.")
	cmd.Flags().StringVar(&googleClientSecret, "google-client-secret", "", "Google OAuth Client Secret. Can also use GOOGLE_CLIENT_SECRET env var.")
	return cmd
}

func newAuthStatusCmd(tokenDir *string) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "List the logged-in accounts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return printAuthStatus(cmd.Context(), cmd.OutOrStdout(), google.NewFileTokenProvider(*tokenDir), time.Now())
		},
	}
}

func newAuthLogoutCmd(tokenDir *string) *cobra.Command {
	var account string
	cmd := &cobra.Command{
		Use:   "logout",
		Short: "Remove the cached token of an account",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := google.NewFileTokenProvider(*tokenDir).DeleteToken(account); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Logged out account %s\n", account)
			return nil
		},
	}
	cmd.Flags().StringVar(&account, "account", google.DefaultAccount, "Account to log out")
	return cmd
}

func printAuthStatus(ctx context.Context, out io.Writer, provider *google.FileTokenProvider, now time.Time) error {
	accounts, err := provider.Accounts()
	if err != nil {
		return err
	}
	if len(accounts) == 0 {
		_, err := fmt.Fprintln(out, "No account logged in. Run 'noon auth login'.")
		return err
	}
	for _, account := range accounts {
		token, err := provider.GetTokenForAccount(ctx, account)
		if err != nil {
			fmt.Fprintf(out, "%s\tunreadable (%v)\n", account, err)
			continue
		}
		fmt.Fprintf(out, "%s\t%s\n", account, tokenState(token.Expiry, token.RefreshToken != "", now))
	}
	return nil
}

func tokenState(expiry time.Time, refreshable bool, now time.Time) string {
	switch {
	case refreshable:
		return "ok (refreshable)"
	case expiry.IsZero():
		return "ok"
	case expiry.After(now):
		return "ok (expires " + expiry.Format(time.RFC3339) + ")"
	default:
		return "expired, run 'noon auth login'"
	}
}
