package google

import (
	"context"
	"errors"
	"fmt"

	"github.com/coreos/go-oidc/v3/oidc"
	"golang.org/x/oauth2"

	"github.com/divyanshdhote/server-actions/internal/auth/provider"
)

const (
	Name   = "google"
	issuer = "https://accounts.google.com"
)

// Provider signs users in with their Google account.
type Provider struct {
	*provider.CodeFlow
}

// New discovers Google's OIDC endpoints. Google is a confidential client,
// so the secret is required alongside PKCE.
func New(ctx context.Context, clientID, clientSecret, redirectURL string) (*Provider, error) {
	if clientID == "" || clientSecret == "" || redirectURL == "" {
		return nil, errors.New("google: client id, secret and redirect url are required")
	}

	discovered, err := oidc.NewProvider(ctx, issuer)
	if err != nil {
		return nil, fmt.Errorf("google: oidc discovery: %w", err)
	}

	oauthCfg := &oauth2.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		RedirectURL:  redirectURL,
		Endpoint:     discovered.Endpoint(),
		Scopes:       provider.Scopes,
	}
	verifier := discovered.Verifier(&oidc.Config{ClientID: clientID})

	return &Provider{CodeFlow: provider.NewCodeFlow(Name, oauthCfg, verifier)}, nil
}
