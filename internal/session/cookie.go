package session

import (
	"net/http"
	"time"
)

const (
	// CookieName uses the __Host- prefix: Secure, Path=/ and no Domain.
	CookieName = "__Host-session"

	// insecureCookieName is used for plain-HTTP development setups, where
	// browsers drop __Host- cookies.
	insecureCookieName = "session"
)

// CookieOptions defines how session cookies are issued.
type CookieOptions struct {
	Secure   bool
	SameSite http.SameSite
}

func (o CookieOptions) name() string {
	if o.Secure {
		return CookieName
	}
	return insecureCookieName
}

func (o CookieOptions) sameSite() http.SameSite {
	if o.SameSite == 0 {
		return http.SameSiteLaxMode
	}
	return o.SameSite
}

// SetCookie issues the session cookie to the client.
func SetCookie(w http.ResponseWriter, sessionID string, expiresAt time.Time, opts CookieOptions) {
	http.SetCookie(w, &http.Cookie{
		Name:     opts.name(),
		Value:    sessionID,
		Path:     "/",
		Expires:  expiresAt,
		HttpOnly: true,
		Secure:   opts.Secure,
		SameSite: opts.sameSite(),
	})
}

// ClearCookie removes the session cookie from the client.
func ClearCookie(w http.ResponseWriter, opts CookieOptions) {
	http.SetCookie(w, &http.Cookie{
		Name:     opts.name(),
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   opts.Secure,
		SameSite: opts.sameSite(),
	})
}

// IDFromRequest returns the session id carried by the request, or "".
func IDFromRequest(r *http.Request, opts CookieOptions) string {
	c, err := r.Cookie(opts.name())
	if err != nil {
		return ""
	}
	return c.Value
}
