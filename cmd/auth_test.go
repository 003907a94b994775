package cmd

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"

	"github.com/teemow/noon/internal/google"
)

func TestTokenState(t *testing.T) {
	now := time.Date(2026, 10, 19, 9, 0, 0, 0, time.UTC)
	tests := []struct {
		name        string
		expiry      time.Time
		refreshable bool
		want        string
	}{
		{"refreshable", now.Add(-time.Hour), true, "ok (refreshable)"},
		{"no expiry", time.Time{}, false, "ok"},
		{"valid", now.Add(time.Hour), false, "ok (expires 2026-10-19T10:00:00Z)"},
		{"expired", now.Add(-time.Hour), false, "expired, run 'noon auth login'"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tokenState(tt.expiry, tt.refreshable, now))
		})
	}
}

func TestPrintAuthStatus(t *testing.T) {
	dir := t.TempDir()
	provider := google.NewFileTokenProvider(dir)
	now := time.Date(2026, 10, 19, 9, 0, 0, 0, time.UTC)

	var out bytes.Buffer
	require.NoError(t, printAuthStatus(context.Background(), &out, provider, now))
	assert.Contains(t, out.String(), "No account logged in")

	require.NoError(t, provider.SaveToken("work", &oauth2.Token{AccessToken: "at", RefreshToken: "rt"}))
	require.NoError(t, provider.SaveToken("personal", &oauth2.Token{AccessToken: "at", Expiry: now.Add(-time.Minute)}))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "google-broken.token"), []byte("{"), 0o600))

	out.Reset()
	require.NoError(t, printAuthStatus(context.Background(), &out, provider, now))
	assert.Equal(t, "broken\tunreadable", firstFields(out.String(), 0))
	assert.Contains(t, out.String(), "personal\texpired")
	assert.Contains(t, out.String(), "work\tok (refreshable)")
}

// firstFields returns line n of s cut before the first space.
func firstFields(s string, n int) string {
	lines := bytes.Split([]byte(s), []byte("\n"))
	line := lines[n]
	if i := bytes.IndexByte(line, ' '); i >= 0 {
		line = line[:i]
	}
	return string(line)
}

func TestAuthLogout(t *testing.T) {
	dir := t.TempDir()
	provider := google.NewFileTokenProvider(dir)
	require.NoError(t, provider.SaveToken("work", &oauth2.Token{AccessToken: "at"}))

	cmd := newAuthCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"logout", "--account", "work", "--token-dir", dir})
	require.NoError(t, cmd.Execute())

	assert.Contains(t, out.String(), "Logged out account work")
	assert.False(t, provider.HasTokenForAccount(context.Background(), "work"))
}

func TestAuthLogin_RequiresClient(t *testing.T) {
	t.Setenv("GOOGLE_CLIENT_ID", "")
	cmd := newAuthCmd()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"login", "--token-dir", t.TempDir()})
	assert.ErrorContains(t, cmd.Execute(), "client ID")
}
