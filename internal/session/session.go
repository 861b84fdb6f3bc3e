// Package session resolves the opaque per-browser session token that scopes
// transaction visibility.
//
// The token is an unsigned bearer value: whoever presents the cookie sees
// that session's transactions. Only the cookie's own Max-Age bounds it.
package session

import (
	"context"
	"net/http"

	"github.com/google/uuid"
)

const (
	DefaultCookieName = "sessionId"
	DefaultMaxAge     = 60 * 60 * 24 * 7 // 7 days
)

type contextKey string

const tokenKey contextKey = "session_token"

// Config controls the issued cookie.
type Config struct {
	CookieName string
	MaxAge     int // seconds
	Secure     bool
}

// DefaultConfig returns the cookie settings used when nothing is configured.
func DefaultConfig() Config {
	return Config{
		CookieName: DefaultCookieName,
		MaxAge:     DefaultMaxAge,
	}
}

// Resolver reads and issues session cookies.
type Resolver struct {
	cfg      Config
	newToken func() string
}

func NewResolver(cfg Config) *Resolver {
	if cfg.CookieName == "" {
		cfg.CookieName = DefaultCookieName
	}
	if cfg.MaxAge <= 0 {
		cfg.MaxAge = DefaultMaxAge
	}
	return &Resolver{
		cfg:      cfg,
		newToken: func() string { return uuid.NewString() },
	}
}

// CookieName returns the name of the session cookie.
func (r *Resolver) CookieName() string {
	return r.cfg.CookieName
}

// Lookup returns the token carried by the request, if any. The value is
// trusted and returned as-is; only an empty value counts as missing.
func (r *Resolver) Lookup(req *http.Request) (string, bool) {
	c, err := req.Cookie(r.cfg.CookieName)
	if err != nil {
		return "", false
	}
	if c.Value == "" {
		return "", false
	}
	return c.Value, true
}

// Resolve returns the request's token, issuing a new one when absent. A new
// token is written as a Set-Cookie header on w, so Resolve must run before
// the response status or body is written.
func (r *Resolver) Resolve(w http.ResponseWriter, req *http.Request) (token string, issued bool) {
	if token, ok := r.Lookup(req); ok {
		return token, false
	}

	token = r.newToken()
	http.SetCookie(w, &http.Cookie{
		Name:     r.cfg.CookieName,
		Value:    token,
		Path:     "/",
		MaxAge:   r.cfg.MaxAge,
		HttpOnly: true,
		Secure:   r.cfg.Secure,
		SameSite: http.SameSiteLaxMode,
	})
	return token, true
}

// Require rejects requests without a session cookie by calling onMissing,
// and otherwise stores the token in the request context.
func (r *Resolver) Require(onMissing http.HandlerFunc) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			token, ok := r.Lookup(req)
			if !ok {
				onMissing(w, req)
				return
			}
			next.ServeHTTP(w, req.WithContext(NewContext(req.Context(), token)))
		})
	}
}

// NewContext returns a copy of ctx carrying token.
func NewContext(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, tokenKey, token)
}

// FromContext extracts the session token placed by Require.
func FromContext(ctx context.Context) (string, bool) {
	token, ok := ctx.Value(tokenKey).(string)
	return token, ok && token != ""
}
