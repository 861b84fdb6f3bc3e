package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"ledger/internal/core"
	"ledger/internal/services"
	"ledger/internal/session"
	"ledger/internal/storage"
	"ledger/internal/storage/memory"
)

type testEnv struct {
	srv   *Server
	store *memory.Store
}

func newTestEnv(t *testing.T, scoping bool, opts Options) testEnv {
	t.Helper()
	store := memory.New()
	svc := services.NewTransactionService(store, nil, services.WithScoping(scoping))
	srv := NewServer(":0", svc, session.NewResolver(session.DefaultConfig()), opts)
	return testEnv{srv: srv, store: store}
}

func (e testEnv) do(t *testing.T, method, path, body string, cookie string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	if cookie != "" {
		req.AddCookie(&http.Cookie{Name: "sessionId", Value: cookie})
	}
	rr := httptest.NewRecorder()
	e.srv.Handler.ServeHTTP(rr, req)
	return rr
}

func sessionCookies(rr *httptest.ResponseRecorder) []*http.Cookie {
	var out []*http.Cookie
	for _, c := range rr.Result().Cookies() {
		if c.Name == "sessionId" {
			out = append(out, c)
		}
	}
	return out
}

func decodeList(t *testing.T, rr *httptest.ResponseRecorder) []map[string]any {
	t.Helper()
	var out []map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode list %q: %v", rr.Body.String(), err)
	}
	return out
}

func TestHealthAndReady(t *testing.T) {
	env := newTestEnv(t, true, Options{})
	for path, want := range map[string]string{"/healthz": "ok", "/readyz": "ready"} {
		rr := env.do(t, http.MethodGet, path, "", "")
		if rr.Code != http.StatusOK || rr.Body.String() != want {
			t.Fatalf("%s = %d %q", path, rr.Code, rr.Body.String())
		}
	}
}

func TestLedgerScenarios(t *testing.T) {
	env := newTestEnv(t, true, Options{})

	// Scenario 1: first create issues a session.
	rr := env.do(t, http.MethodPost, "/", `{"title":"Salary","amount":5000,"type":"credit"}`, "")
	if rr.Code != http.StatusCreated {
		t.Fatalf("create status = %d, body %q", rr.Code, rr.Body.String())
	}
	if rr.Body.Len() != 0 {
		t.Fatalf("create body = %q, want empty", rr.Body.String())
	}
	cookies := sessionCookies(rr)
	if len(cookies) != 1 {
		t.Fatalf("got %d session cookies, want 1", len(cookies))
	}
	c := cookies[0]
	if c.Path != "/" || c.MaxAge != 604800 || c.Value == "" {
		t.Fatalf("unexpected cookie: %+v", c)
	}
	sid := c.Value

	rr = env.do(t, http.MethodGet, "/", "", sid)
	if rr.Code != http.StatusOK {
		t.Fatalf("list status = %d", rr.Code)
	}
	list := decodeList(t, rr)
	if len(list) != 1 || list[0]["title"] != "Salary" || list[0]["amount"] != 5000.0 || list[0]["session_id"] != sid {
		t.Fatalf("unexpected list: %v", list)
	}
	if ct := rr.Header().Get("Content-Type"); !strings.HasPrefix(ct, "application/json") {
		t.Fatalf("Content-Type = %q", ct)
	}

	// Scenario 2: debit with existing cookie stores a negative amount.
	rr = env.do(t, http.MethodPost, "/", `{"title":"Rent","amount":1200,"type":"debit"}`, sid)
	if rr.Code != http.StatusCreated {
		t.Fatalf("create status = %d", rr.Code)
	}
	if len(sessionCookies(rr)) != 0 {
		t.Fatalf("existing session must not be re-issued")
	}
	list = decodeList(t, env.do(t, http.MethodGet, "/", "", sid))
	if len(list) != 2 || list[1]["title"] != "Rent" || list[1]["amount"] != -1200.0 {
		t.Fatalf("unexpected list after debit: %v", list)
	}

	// Scenario 3: summary is the signed sum.
	rr = env.do(t, http.MethodGet, "/summary", "", sid)
	if rr.Code != http.StatusOK || strings.TrimSpace(rr.Body.String()) != `{"amount":3800}` {
		t.Fatalf("summary = %d %q", rr.Code, rr.Body.String())
	}

	// Scenario 4: reads without a cookie are rejected.
	for _, path := range []string{"/", "/summary", "/" + list[0]["id"].(string)} {
		rr = env.do(t, http.MethodGet, path, "", "")
		if rr.Code != http.StatusUnauthorized || strings.TrimSpace(rr.Body.String()) != `{"error":"unauthorized"}` {
			t.Fatalf("GET %s without cookie = %d %q", path, rr.Code, rr.Body.String())
		}
		if len(sessionCookies(rr)) != 0 {
			t.Fatalf("read routes must not issue a session")
		}
	}

	// Scenario 5: another session's id reads as null.
	rr = env.do(t, http.MethodGet, "/"+list[0]["id"].(string), "", "someone-else")
	if rr.Code != http.StatusOK || strings.TrimSpace(rr.Body.String()) != "null" {
		t.Fatalf("foreign get = %d %q", rr.Code, rr.Body.String())
	}

	// Own id is visible.
	rr = env.do(t, http.MethodGet, "/"+list[0]["id"].(string), "", sid)
	var got map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &got); err != nil || got["title"] != "Salary" {
		t.Fatalf("own get = %d %q", rr.Code, rr.Body.String())
	}

	// Other sessions see nothing.
	rr = env.do(t, http.MethodGet, "/", "", "someone-else")
	if strings.TrimSpace(rr.Body.String()) != "[]" {
		t.Fatalf("empty list = %q, want []", rr.Body.String())
	}
	rr = env.do(t, http.MethodGet, "/summary", "", "someone-else")
	if strings.TrimSpace(rr.Body.String()) != `{"amount":0}` {
		t.Fatalf("empty summary = %q", rr.Body.String())
	}
}

func TestGetMissingID(t *testing.T) {
	tests := []struct {
		name     string
		mode     NotFoundMode
		wantCode int
		wantBody string
	}{
		{"default null", "", http.StatusOK, "null"},
		{"null", NotFoundNull, http.StatusOK, "null"},
		{"status", NotFoundStatus, http.StatusNotFound, `{"error":"transaction not found"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t, true, Options{NotFoundMode: tt.mode})
			rr := env.do(t, http.MethodGet, "/does-not-exist", "", "X")
			if rr.Code != tt.wantCode || strings.TrimSpace(rr.Body.String()) != tt.wantBody {
				t.Fatalf("got %d %q, want %d %q", rr.Code, rr.Body.String(), tt.wantCode, tt.wantBody)
			}
		})
	}
}

func TestCreateValidation(t *testing.T) {
	tests := []struct {
		name      string
		body      string
		wantError string
		wantField string
	}{
		{"missing title", `{"amount":10,"type":"credit"}`, "validation failed", "title"},
		{"blank title", `{"title":"   ","amount":10,"type":"credit"}`, "validation failed", "title"},
		{"zero amount", `{"title":"a","amount":0,"type":"credit"}`, "validation failed", "amount"},
		{"negative amount", `{"title":"a","amount":-5,"type":"debit"}`, "validation failed", "amount"},
		{"sub-cent amount", `{"title":"a","amount":0.001,"type":"debit"}`, "validation failed", "amount"},
		{"more than two decimals", `{"title":"a","amount":12.345,"type":"credit"}`, "validation failed", "amount"},
		{"unknown type", `{"title":"a","amount":1,"type":"refund"}`, "validation failed", "type"},
		{"missing type", `{"title":"a","amount":1}`, "validation failed", "type"},
		{"wrong-case type", `{"title":"a","amount":1,"type":"CREDIT"}`, "validation failed", "type"},
		{"padded type", `{"title":"a","amount":1,"type":" credit "}`, "validation failed", "type"},
		{"title too long", `{"title":"` + strings.Repeat("x", 201) + `","amount":1,"type":"credit"}`, "validation failed", "title"},
		{"amount as string", `{"title":"a","amount":"10","type":"credit"}`, "invalid request body", ""},
		{"malformed json", `{"title":`, "invalid request body", ""},
		{"trailing data", `{"title":"a","amount":1,"type":"credit"}{}`, "invalid request body", ""},
		{"empty body", ``, "invalid request body", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t, true, Options{})
			req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(tt.body))
			rr := httptest.NewRecorder()
			env.srv.Handler.ServeHTTP(rr, req)

			if rr.Code != http.StatusBadRequest {
				t.Fatalf("status = %d, want 400 (body %q)", rr.Code, rr.Body.String())
			}
			var body struct {
				Error   string            `json:"error"`
				Details []ValidationIssue `json:"details"`
			}
			if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
				t.Fatalf("decode error body %q: %v", rr.Body.String(), err)
			}
			if body.Error != tt.wantError {
				t.Fatalf("error = %q, want %q", body.Error, tt.wantError)
			}
			if tt.wantField != "" && (len(body.Details) == 0 || body.Details[0].Field != tt.wantField) {
				t.Fatalf("details = %+v, want field %q", body.Details, tt.wantField)
			}
			if len(sessionCookies(rr)) != 0 {
				t.Fatalf("rejected create must not issue a session")
			}
			if env.store.Len() != 0 {
				t.Fatalf("rejected create must not touch the store")
			}
		})
	}
}

func TestCreateStoresExactAmount(t *testing.T) {
	env := newTestEnv(t, true, Options{})
	rr := env.do(t, http.MethodPost, "/", `{"title":" Coffee\u0007 ","amount":2.35,"type":"debit"}`, "X")
	if rr.Code != http.StatusCreated {
		t.Fatalf("status = %d %q", rr.Code, rr.Body.String())
	}
	txs, _ := env.store.List(context.Background(), storage.BySession("X"))
	if len(txs) != 1 || txs[0].Amount.Cents != -235 || txs[0].Title != "Coffee" {
		t.Fatalf("stored = %+v", txs)
	}

	rr = env.do(t, http.MethodGet, "/summary", "", "X")
	if strings.TrimSpace(rr.Body.String()) != `{"amount":-2.35}` {
		t.Fatalf("summary = %q, want -2.35", rr.Body.String())
	}
}

func TestUnscopedReads(t *testing.T) {
	env := newTestEnv(t, false, Options{})
	env.do(t, http.MethodPost, "/", `{"title":"A","amount":10,"type":"credit"}`, "X")
	env.do(t, http.MethodPost, "/", `{"title":"B","amount":3,"type":"debit"}`, "Y")

	rr := env.do(t, http.MethodGet, "/", "", "")
	if rr.Code != http.StatusOK || len(decodeList(t, rr)) != 2 {
		t.Fatalf("unscoped list = %d %q", rr.Code, rr.Body.String())
	}
	rr = env.do(t, http.MethodGet, "/summary", "", "")
	if strings.TrimSpace(rr.Body.String()) != `{"amount":7}` {
		t.Fatalf("unscoped summary = %q", rr.Body.String())
	}
}

type failingStore struct {
	*memory.Store
	err error
}

func (f failingStore) List(context.Context, storage.Filter) ([]core.Transaction, error) {
	return nil, f.err
}

func (f failingStore) Create(context.Context, core.Transaction) error { return f.err }

func (f failingStore) Ping(context.Context) error { return f.err }

func TestStorageFailures(t *testing.T) {
	store := failingStore{Store: memory.New(), err: errors.New("disk on fire")}
	svc := services.NewTransactionService(store, nil)
	srv := NewServer(":0", svc, session.NewResolver(session.DefaultConfig()), Options{})
	env := testEnv{srv: srv}

	rr := env.do(t, http.MethodGet, "/", "", "X")
	if rr.Code != http.StatusInternalServerError || strings.TrimSpace(rr.Body.String()) != `{"error":"internal server error"}` {
		t.Fatalf("list failure = %d %q", rr.Code, rr.Body.String())
	}
	if strings.Contains(rr.Body.String(), "disk on fire") {
		t.Fatalf("internal error leaked to client")
	}

	rr = env.do(t, http.MethodPost, "/", `{"title":"a","amount":1,"type":"credit"}`, "X")
	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("create failure = %d", rr.Code)
	}

	rr = env.do(t, http.MethodGet, "/readyz", "", "")
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("readyz with failing store = %d", rr.Code)
	}
}

func TestRoutingAndHeaders(t *testing.T) {
	env := newTestEnv(t, true, Options{})

	rr := env.do(t, http.MethodDelete, "/abc", "", "X")
	if rr.Code != http.StatusMethodNotAllowed {
		t.Fatalf("DELETE status = %d, want 405", rr.Code)
	}
	rr = env.do(t, http.MethodGet, "/a/b", "", "X")
	if rr.Code != http.StatusNotFound {
		t.Fatalf("nested path status = %d, want 404", rr.Code)
	}
	if rr.Header().Get("X-Content-Type-Options") != "nosniff" {
		t.Fatalf("security headers missing")
	}
	if rr.Header().Get("X-Request-ID") == "" {
		t.Fatalf("request id header missing")
	}
}

func TestCORS(t *testing.T) {
	env := newTestEnv(t, true, Options{CORSAllowedOrigins: []string{"http://app.test"}})

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("Origin", "http://app.test")
	rr := httptest.NewRecorder()
	env.srv.Handler.ServeHTTP(rr, req)

	if got := rr.Header().Get("Access-Control-Allow-Origin"); got != "http://app.test" {
		t.Fatalf("Access-Control-Allow-Origin = %q", got)
	}
	if got := rr.Header().Get("Access-Control-Allow-Credentials"); got != "true" {
		t.Fatalf("Access-Control-Allow-Credentials = %q", got)
	}

	req = httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("Origin", "http://evil.test")
	rr = httptest.NewRecorder()
	env.srv.Handler.ServeHTTP(rr, req)
	if got := rr.Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Fatalf("disallowed origin got Access-Control-Allow-Origin = %q", got)
	}
}

func TestExtractClientIP(t *testing.T) {
	tests := []struct {
		name   string
		remote string
		xff    string
		want   string
	}{
		{"direct", "203.0.113.5:1234", "", "203.0.113.5"},
		{"untrusted proxy ignored", "203.0.113.5:1234", "198.51.100.1", "203.0.113.5"},
		{"trusted proxy", "10.0.0.2:1234", "198.51.100.1, 10.0.0.2", "198.51.100.1"},
		{"trusted proxy bad header", "10.0.0.2:1234", "garbage", "10.0.0.2"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.remote
			if tt.xff != "" {
				req.Header.Set("X-Forwarded-For", tt.xff)
			}
			if got := extractClientIP(req); got != tt.want {
				t.Fatalf("extractClientIP() = %q, want %q", got, tt.want)
			}
		})
	}
}
