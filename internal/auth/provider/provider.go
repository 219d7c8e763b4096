package provider

import (
	"context"

	"github.com/divyanshdhote/server-actions/internal/auth"
)

// OAuthProvider is an external sign-in provider reachable through the
// authorization-code flow. The callback handler owns state and PKCE; the
// provider only turns a code into identity facts.
type OAuthProvider interface {
	Name() string
	AuthCodeURL(state string, codeChallenge string) string
	ExchangeCode(ctx context.Context, code string, codeVerifier string) (*auth.Identity, error)
}
