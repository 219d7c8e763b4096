package keycloak

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/coreos/go-oidc/v3/oidc"
	"golang.org/x/oauth2"

	"github.com/divyanshdhote/server-actions/internal/auth/provider"
)

const Name = "keycloak"

// Provider signs users in through a Keycloak realm as a public client.
type Provider struct {
	*provider.CodeFlow
}

// New discovers the realm at issuer, e.g. http://keycloak:8080/realms/app.
// When browsers reach Keycloak on another host than the server does,
// publicBaseURL replaces the issuer host in the authorization URL.
func New(ctx context.Context, issuer, clientID, redirectURL, publicBaseURL string) (*Provider, error) {
	if issuer == "" || clientID == "" || redirectURL == "" {
		return nil, errors.New("keycloak: issuer, client id and redirect url are required")
	}

	discovered, err := oidc.NewProvider(ctx, issuer)
	if err != nil {
		return nil, fmt.Errorf("keycloak: oidc discovery: %w", err)
	}

	endpoint := discovered.Endpoint()
	if publicBaseURL != "" {
		endpoint.AuthURL = rebase(endpoint.AuthURL, issuer, publicBaseURL)
	}

	oauthCfg := &oauth2.Config{
		ClientID:    clientID,
		RedirectURL: redirectURL,
		Endpoint:    endpoint,
		Scopes:      provider.Scopes,
	}
	verifier := discovered.Verifier(&oidc.Config{ClientID: clientID})

	return &Provider{CodeFlow: provider.NewCodeFlow(Name, oauthCfg, verifier)}, nil
}

// rebase swaps the scheme and host of authURL for those of publicBaseURL,
// keeping the realm path discovered from the issuer.
func rebase(authURL, issuer, publicBaseURL string) string {
	issuerHost := issuer
	if i := strings.Index(issuer, "/realms/"); i >= 0 {
		issuerHost = issuer[:i]
	}
	return strings.TrimSuffix(publicBaseURL, "/") + strings.TrimPrefix(authURL, issuerHost)
}
