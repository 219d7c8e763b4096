// Package web holds the server-rendered pages.
package web

import (
	"embed"
	"fmt"
	"html/template"
)

//go:embed templates/*.html
var templateFS embed.FS

// Page template names.
const (
	PageHome   = "home"
	PageSignIn = "sign-in"
	PageSignUp = "sign-up"
)

// Templates parses the embedded layout and pages.
func Templates() (*template.Template, error) {
	t, err := template.New("").ParseFS(templateFS, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("web: parse templates: %w", err)
	}
	return t, nil
}

// HomeData is rendered by PageHome.
type HomeData struct {
	Name string
}

// SignInData is rendered by PageSignIn.
type SignInData struct {
	Email     string
	Error     string
	Errors    map[string]string
	Providers []string
}

// SignUpData is rendered by PageSignUp.
type SignUpData struct {
	Name     string
	Username string
	Email    string
	Error    string
	Errors   map[string]string
}
