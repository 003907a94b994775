package auth

import (
	"bytes"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
)

func testBundle() *Context {
	return New("jane@example.com", Account{
		ID:    "default",
		Email: "jane@example.com",
		Token: &oauth2.Token{AccessToken: "ya29.secret-access-token", RefreshToken: "1//secret-refresh"},
	})
}

func TestCarrier_Credentials(t *testing.T) {
	c := NewCarrier(testBundle())

	creds, err := c.Credentials()
	require.NoError(t, err)
	assert.Equal(t, []string{"default"}, creds.AccountIDs())
}

func TestCarrier_MissingBundle(t *testing.T) {
	tests := []struct {
		name    string
		carrier *Carrier
	}{
		{name: "nil carrier", carrier: nil},
		{name: "nil bundle", carrier: NewCarrier(nil)},
		{name: "no accounts", carrier: NewCarrier(New("jane"))},
		{name: "account without id", carrier: NewCarrier(New("jane", Account{}))},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.carrier.Credentials()
			assert.ErrorIs(t, err, ErrUnauthenticated)
		})
	}
}

func TestCarrier_CloseReleasesBundle(t *testing.T) {
	c := NewCarrier(testBundle())
	c.Close()

	_, err := c.Credentials()
	assert.ErrorIs(t, err, ErrUnauthenticated)

	// Idempotent.
	c.Close()
}

func TestCarrier_ConcurrentReadsAndClose(t *testing.T) {
	c := NewCarrier(testBundle())

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				creds, err := c.Credentials()
				if err == nil {
					assert.NotNil(t, creds)
				} else {
					assert.ErrorIs(t, err, ErrUnauthenticated)
				}
			}
		}()
	}
	c.Close()
	wg.Wait()
}

func TestContext_NeverLogsTokens(t *testing.T) {
	bundle := testBundle()

	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))
	logger.Info("resolving", "auth", bundle, "account", bundle.Accounts[0])

	out := buf.String()
	assert.NotContains(t, out, "ya29.secret-access-token")
	assert.NotContains(t, out, "secret-refresh")
	assert.NotContains(t, out, "jane@example.com")
	assert.Contains(t, out, "user:")

	assert.NotContains(t, bundle.String(), "secret")
	assert.NotContains(t, bundle.String(), "jane@example.com")
}

func TestAccount_HasToken(t *testing.T) {
	assert.False(t, Account{ID: "a"}.HasToken())
	assert.False(t, Account{ID: "a", Token: &oauth2.Token{}}.HasToken())
	assert.True(t, Account{ID: "a", Token: &oauth2.Token{RefreshToken: "r"}}.HasToken())
}

func TestFromToken(t *testing.T) {
	bundle := FromToken("", &oauth2.Token{AccessToken: "t"})
	require.NoError(t, bundle.Validate())

	acct, ok := bundle.Account("default")
	require.True(t, ok)
	assert.True(t, acct.HasToken())
}
