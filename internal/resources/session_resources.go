package resources

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/teemow/noon/internal/auth"
	"github.com/teemow/noon/internal/server"
)

// Resource URIs.
const (
	AccountsURI = "session://accounts"
	SettingsURI = "session://settings"
)

// AccountsInfo is the body of the accounts resource.
type AccountsInfo struct {
	// User is empty for anonymous callers.
	User          string   `json:"user,omitempty"`
	Accounts      []string `json:"accounts"`
	Authenticated bool     `json:"authenticated"`
}

// SettingsInfo is the body of the settings resource.
type SettingsInfo struct {
	Timezone       string `json:"timezone"`
	ReadOnly       bool   `json:"readOnly"`
	AccountLinking bool   `json:"accountLinking"`
}

// RegisterSessionResources registers the session resources.
func RegisterSessionResources(s *mcpserver.MCPServer, sc *server.ServerContext) error {
	accounts := mcp.NewResource(
		AccountsURI,
		"Calendar Accounts",
		mcp.WithResourceDescription("Google accounts whose calendars are read for the current caller"),
		mcp.WithMIMEType("application/json"),
	)
	s.AddResource(accounts, func(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		return handleAccounts(ctx, request, sc)
	})

	settings := mcp.NewResource(
		SettingsURI,
		"Server Settings",
		mcp.WithResourceDescription("Default timezone and write mode of this server"),
		mcp.WithMIMEType("application/json"),
	)
	s.AddResource(settings, func(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		return handleSettings(ctx, request, sc)
	})

	return nil
}

// handleAccounts reports the caller's usable accounts. An unauthenticated
// caller gets an empty list rather than an error.
func handleAccounts(ctx context.Context, request mcp.ReadResourceRequest, sc *server.ServerContext) ([]mcp.ResourceContents, error) {
	id, _ := server.IdentityFromContext(ctx)
	info := AccountsInfo{User: id.UserID, Accounts: []string{}}

	creds, err := sc.Credentials(ctx, id, "")
	switch {
	case errors.Is(err, auth.ErrUnauthenticated):
	case err != nil:
		return nil, fmt.Errorf("failed to read accounts: %w", err)
	default:
		info.Accounts = creds.AccountIDs()
		info.Authenticated = true
	}
	return jsonContents(request.Params.URI, info)
}

func handleSettings(_ context.Context, request mcp.ReadResourceRequest, sc *server.ServerContext) ([]mcp.ResourceContents, error) {
	return jsonContents(request.Params.URI, SettingsInfo{
		Timezone:       sc.Location().String(),
		ReadOnly:       sc.Writer() == nil,
		AccountLinking: sc.Linked() != nil,
	})
}

func jsonContents(uri string, v any) ([]mcp.ResourceContents, error) {
	jsonData, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s: %w", uri, err)
	}
	return []mcp.ResourceContents{
		&mcp.TextResourceContents{
			URI:      uri,
			MIMEType: "application/json",
			Text:     string(jsonData),
		},
	}, nil
}
