package provider

import (
	"context"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/samber/oops"
	"golang.org/x/oauth2"

	"github.com/divyanshdhote/server-actions/internal/auth"
	"github.com/divyanshdhote/server-actions/internal/logger"
)

const (
	CodeExchangeFailed = "OAUTH_EXCHANGE_FAILED"
	CodeInvalidIDToken = "OAUTH_INVALID_ID_TOKEN"
)

// Scopes requested from every OIDC provider.
var Scopes = []string{oidc.ScopeOpenID, "email", "profile"}

// Claims are the ID token claims an identity is built from.
type Claims struct {
	Subject           string `json:"sub"`
	Email             string `json:"email"`
	EmailVerified     bool   `json:"email_verified"`
	Name              string `json:"name"`
	PreferredUsername string `json:"preferred_username"`
	Picture           string `json:"picture"`
}

// Identity maps the claims for the named provider. Both sub and email
// are required; the display name falls back to preferred_username.
func (c Claims) Identity(provider string) (*auth.Identity, error) {
	if c.Subject == "" || c.Email == "" {
		return nil, oops.
			Code(CodeInvalidIDToken).
			With("provider", provider).
			With("subject_present", c.Subject != "").
			Errorf("id token lacks sub or email")
	}

	name := c.Name
	if name == "" {
		name = c.PreferredUsername
	}

	return &auth.Identity{
		Provider:       provider,
		ProviderUserID: c.Subject,
		Email:          c.Email,
		EmailVerified:  c.EmailVerified,
		Name:           name,
		Picture:        c.Picture,
	}, nil
}

// CodeFlow runs the PKCE authorization-code flow against one OIDC issuer
// and verifies the returned ID token. Provider packages embed it.
type CodeFlow struct {
	name     string
	oauth    *oauth2.Config
	verifier *oidc.IDTokenVerifier
}

func NewCodeFlow(name string, oauthCfg *oauth2.Config, verifier *oidc.IDTokenVerifier) *CodeFlow {
	return &CodeFlow{
		name:     name,
		oauth:    oauthCfg,
		verifier: verifier,
	}
}

func (f *CodeFlow) Name() string {
	return f.name
}

// AuthCodeURL builds the authorization URL carrying state and the S256
// challenge.
func (f *CodeFlow) AuthCodeURL(state string, codeChallenge string) string {
	return f.oauth.AuthCodeURL(
		state,
		oauth2.AccessTypeOnline,
		oauth2.SetAuthURLParam("code_challenge", codeChallenge),
		oauth2.SetAuthURLParam("code_challenge_method", "S256"),
	)
}

func (f *CodeFlow) ExchangeCode(ctx context.Context, code string, codeVerifier string) (*auth.Identity, error) {
	token, err := f.oauth.Exchange(ctx, code, oauth2.VerifierOption(codeVerifier))
	if err != nil {
		return nil, oops.Code(CodeExchangeFailed).With("provider", f.name).Wrap(err)
	}

	rawIDToken, ok := token.Extra("id_token").(string)
	if !ok || rawIDToken == "" {
		return nil, oops.
			Code(CodeInvalidIDToken).
			With("provider", f.name).
			Errorf("token response has no id_token")
	}

	idToken, err := f.verifier.Verify(ctx, rawIDToken)
	if err != nil {
		return nil, oops.Code(CodeInvalidIDToken).With("provider", f.name).Wrap(err)
	}

	var claims Claims
	if err := idToken.Claims(&claims); err != nil {
		return nil, oops.Code(CodeInvalidIDToken).With("provider", f.name).Wrap(err)
	}

	logger.Debug("id token verified", map[string]any{
		"provider":       f.name,
		"email_verified": claims.EmailVerified,
		"expiry_unix":    idToken.Expiry.Unix(),
	})

	return claims.Identity(f.name)
}
