package httpx

import (
	"net/http"
	"strings"
	"time"
)

const (
	// DefaultSessionCookieName is used when CookieConfig.Name is empty.
	DefaultSessionCookieName = "session_id"

	stateCookieName    = "oauth_state"
	nonceCookieName    = "oauth_nonce"
	redirectCookieName = "post_login_redirect"

	flowCookieMaxAge = 600 // 10 minutes
)

// CookieConfig controls the attributes of cookies written by the auth handlers.
type CookieConfig struct {
	Name   string // session cookie name
	Domain string // empty for host-only cookies
	// ForceSecure sets Secure even when the request did not arrive over HTTPS.
	ForceSecure bool
}

func (c CookieConfig) sessionName() string {
	if c.Name == "" {
		return DefaultSessionCookieName
	}
	return c.Name
}

func (c CookieConfig) secure(r *http.Request) bool {
	return c.ForceSecure || r.TLS != nil || strings.EqualFold(r.Header.Get("X-Forwarded-Proto"), "https")
}

func (c CookieConfig) base(r *http.Request, name, value string) *http.Cookie {
	return &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		Domain:   c.Domain,
		HttpOnly: true,
		Secure:   c.secure(r),
		SameSite: http.SameSiteLaxMode,
	}
}

// sessionToken returns the session token presented by the request, if any.
func (c CookieConfig) sessionToken(r *http.Request) string {
	ck, err := r.Cookie(c.sessionName())
	if err != nil {
		return ""
	}
	return ck.Value
}

// setSession writes the session cookie so it lapses together with the session.
func (c CookieConfig) setSession(w http.ResponseWriter, r *http.Request, token string, expires time.Time) {
	ck := c.base(r, c.sessionName(), token)
	ck.Expires = expires.UTC()
	ck.MaxAge = max(int(time.Until(expires).Seconds()), 1)
	http.SetCookie(w, ck)
}

// setFlow stores a short-lived cookie used during the OAuth round trip.
func (c CookieConfig) setFlow(w http.ResponseWriter, r *http.Request, name, value string) {
	ck := c.base(r, name, value)
	ck.MaxAge = flowCookieMaxAge
	http.SetCookie(w, ck)
}

// clear expires a cookie. It mirrors the attributes used when setting cookies
// so browsers match and drop the original.
func (c CookieConfig) clear(w http.ResponseWriter, r *http.Request, name string) {
	ck := c.base(r, name, "")
	ck.MaxAge = -1
	ck.Expires = time.Unix(0, 0).UTC()
	http.SetCookie(w, ck)
}

func (c CookieConfig) clearSession(w http.ResponseWriter, r *http.Request) {
	c.clear(w, r, c.sessionName())
}
