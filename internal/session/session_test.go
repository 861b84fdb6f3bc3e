package session

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
)

func TestResolveIssuesCookieOnFirstContact(t *testing.T) {
	r := NewResolver(DefaultConfig())
	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/", nil)

	token, issued := r.Resolve(rr, req)
	if !issued {
		t.Fatalf("expected a new session to be issued")
	}
	if _, err := uuid.Parse(token); err != nil {
		t.Fatalf("token %q is not a uuid: %v", token, err)
	}

	cookies := rr.Result().Cookies()
	if len(cookies) != 1 {
		t.Fatalf("expected exactly one cookie, got %d", len(cookies))
	}
	c := cookies[0]
	if c.Name != "sessionId" || c.Value != token || c.Path != "/" || c.MaxAge != 604800 {
		t.Fatalf("unexpected cookie: %+v", c)
	}
	if !c.HttpOnly {
		t.Errorf("cookie should be HttpOnly")
	}
}

func TestResolveKeepsExistingCookie(t *testing.T) {
	r := NewResolver(DefaultConfig())
	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/", nil)
	req.AddCookie(&http.Cookie{Name: "sessionId", Value: "X"})

	token, issued := r.Resolve(rr, req)
	if issued || token != "X" {
		t.Fatalf("Resolve = (%q, %v), want (X, false)", token, issued)
	}
	if got := rr.Header().Values("Set-Cookie"); len(got) != 0 {
		t.Fatalf("existing session must not be re-issued, got %v", got)
	}
}

func TestResolveTreatsEmptyCookieAsMissing(t *testing.T) {
	r := NewResolver(DefaultConfig())
	r.newToken = func() string { return "fresh" }
	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/", nil)
	req.AddCookie(&http.Cookie{Name: "sessionId", Value: ""})

	token, issued := r.Resolve(rr, req)
	if !issued || token != "fresh" {
		t.Fatalf("Resolve = (%q, %v), want (fresh, true)", token, issued)
	}
}

func TestNewResolverDefaults(t *testing.T) {
	r := NewResolver(Config{CookieName: "sid", MaxAge: 0, Secure: true})
	rr := httptest.NewRecorder()
	r.Resolve(rr, httptest.NewRequest(http.MethodPost, "/", nil))

	c := rr.Result().Cookies()[0]
	if c.Name != "sid" || c.MaxAge != DefaultMaxAge || !c.Secure {
		t.Fatalf("unexpected cookie: %+v", c)
	}
}

func TestRequire(t *testing.T) {
	r := NewResolver(DefaultConfig())
	var seen string
	h := r.Require(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		seen, _ = FromContext(req.Context())
		w.WriteHeader(http.StatusOK)
	}))

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("missing cookie: status = %d, want 401", rr.Code)
	}
	if len(rr.Header().Values("Set-Cookie")) != 0 {
		t.Fatalf("read paths must not issue sessions")
	}

	rr = httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: "sessionId", Value: "X"})
	h.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK || seen != "X" {
		t.Fatalf("with cookie: status = %d seen = %q", rr.Code, seen)
	}
}

func TestLookupReturnsValueUnchanged(t *testing.T) {
	r := NewResolver(DefaultConfig())

	tests := []struct {
		name   string
		header string
		want   string
	}{
		{"plain", `sessionId=Mixed.Case-Token_1`, "Mixed.Case-Token_1"},
		{"quoted with spaces", `sessionId=" tok "`, " tok "},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.Header.Set("Cookie", tt.header)

			got, ok := r.Lookup(req)
			if !ok || got != tt.want {
				t.Fatalf("Lookup() = (%q, %v), want (%q, true)", got, ok, tt.want)
			}
		})
	}
}
