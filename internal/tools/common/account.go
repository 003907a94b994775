package common

import (
	"context"

	"github.com/teemow/noon/internal/auth"
	"github.com/teemow/noon/internal/server"
)

// AllAccounts labels invocations that span every linked account.
const AllAccounts = "all"

// GetAccountFromArgs extracts the explicit "account" argument. An empty
// result means the tool acts on every account of the caller.
func GetAccountFromArgs(args map[string]interface{}) string {
	if accountVal, ok := args["account"].(string); ok {
		return accountVal
	}
	return ""
}

// AccountLabel is the account recorded in metrics and audit entries.
func AccountLabel(args map[string]interface{}) string {
	if account := GetAccountFromArgs(args); account != "" {
		return account
	}
	return AllAccounts
}

// Credentials builds the credential bundle for a tool call from the
// caller's identity and the optional "account" argument.
//
// Priority order:
//  1. The signed-in caller attached by the HTTP transport
//  2. The local token cache (stdio)
//  3. The static bundle of read-only deployments
func Credentials(ctx context.Context, sc *server.ServerContext, args map[string]interface{}) (*auth.Context, error) {
	id, _ := server.IdentityFromContext(ctx)
	return sc.Credentials(ctx, id, GetAccountFromArgs(args))
}
