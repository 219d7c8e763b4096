package web

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTemplates(t *testing.T) {
	tmpl, err := Templates()
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, tmpl.ExecuteTemplate(&buf, PageHome, HomeData{Name: "Ada <script>"}))
	assert.Contains(t, buf.String(), "Hello Ada &lt;script&gt;")
	assert.Contains(t, buf.String(), `action="/auth/sign-out"`)

	buf.Reset()
	require.NoError(t, tmpl.ExecuteTemplate(&buf, PageSignIn, SignInData{
		Email:     "a@b.c",
		Errors:    map[string]string{"email": "Please provide a valid email address"},
		Providers: []string{"google"},
	}))
	assert.Contains(t, buf.String(), "Please provide a valid email address")
	assert.Contains(t, buf.String(), `href="/oauth/login/google"`)

	buf.Reset()
	require.NoError(t, tmpl.ExecuteTemplate(&buf, PageSignUp, SignUpData{}))
	assert.Contains(t, buf.String(), "Create Account")
}
