package provider

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/divyanshdhote/server-actions/internal/auth"
)

type stubProvider struct{ name string }

func (s stubProvider) Name() string                   { return s.name }
func (s stubProvider) AuthCodeURL(_, _ string) string { return "https://idp.test/" + s.name }
func (s stubProvider) ExchangeCode(context.Context, string, string) (*auth.Identity, error) {
	return &auth.Identity{Provider: s.name}, nil
}

func TestRegistry(t *testing.T) {
	r := NewRegistry(stubProvider{"google"}, nil, stubProvider{"keycloak"})

	p, err := r.Get("google")
	require.NoError(t, err)
	assert.Equal(t, "google", p.Name())

	_, err = r.Get("github")
	assert.Error(t, err)

	assert.Equal(t, []string{"google", "keycloak"}, r.Names())
}
