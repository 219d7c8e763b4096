package auth

import "github.com/divyanshdhote/server-actions/internal/auth/username"

// Identity represents a normalized external authentication identity
// returned by an OAuth provider. It contains facts only, no decisions.
type Identity struct {
	Provider       string // e.g. "google", "keycloak"
	ProviderUserID string // provider-scoped unique user identifier (sub)
	Email          string // email returned by provider
	EmailVerified  bool   // whether provider asserts email ownership
	Name           string // display name, may be empty
	Picture        string // avatar URL, may be empty
}

// Profile returns the fields used to derive a username.
func (i *Identity) Profile() username.Profile {
	return username.Profile{
		Email:       i.Email,
		DisplayName: i.Name,
	}
}
