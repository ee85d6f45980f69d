package mw

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/voxrelay/voxrelay/pkg/core"
	"github.com/voxrelay/voxrelay/pkg/gateway/config"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestRequestID_GeneratesAndEchoes(t *testing.T) {
	var seen string
	h := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = RequestIDFrom(r.Context())
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if seen == "" || !strings.HasPrefix(seen, "req_") {
		t.Errorf("generated id = %q", seen)
	}
	if rec.Header().Get("X-Request-ID") != seen {
		t.Errorf("header = %q, ctx = %q", rec.Header().Get("X-Request-ID"), seen)
	}

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Request-ID", "req_given")
	h.ServeHTTP(httptest.NewRecorder(), req)
	if seen != "req_given" {
		t.Errorf("supplied id = %q", seen)
	}
}

func TestAuth_Required(t *testing.T) {
	cfg := config.Config{
		AuthMode: config.AuthModeRequired,
		APIKeys:  map[string]struct{}{"key-1": {}},
	}
	var principal *Principal
	h := Auth(cfg, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		principal, _ = PrincipalFrom(r.Context())
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("no token: status = %d", rec.Code)
	}
	var env struct {
		Error *core.Error `json:"error"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&env); err != nil {
		t.Fatal(err)
	}
	if env.Error == nil || env.Error.Type != core.ErrAuthentication {
		t.Errorf("error = %+v", env.Error)
	}

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer nope")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("bad key: status = %d", rec.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer key-1")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Errorf("good key: status = %d", rec.Code)
	}
	if principal == nil || principal.APIKey != "key-1" {
		t.Errorf("principal = %+v", principal)
	}
}

func TestAuth_Disabled(t *testing.T) {
	cfg := config.Config{AuthMode: config.AuthModeDisabled}
	h := Auth(cfg, okHandler())
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d", rec.Code)
	}
}

func TestParseBearer(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "bearer  tok-1 ")
	tok, ok := ParseBearer(req)
	if !ok || tok != "tok-1" {
		t.Errorf("token = %q, ok = %v", tok, ok)
	}

	req.Header.Set("Authorization", "Basic abc")
	if _, ok := ParseBearer(req); ok {
		t.Error("accepted non-bearer scheme")
	}
}

func TestRecover(t *testing.T) {
	h := Recover(slog.Default(), http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d", rec.Code)
	}
}

func TestAccessLog_RecordsStatus(t *testing.T) {
	h := AccessLog(slog.Default(), http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusTeapot {
		t.Errorf("status = %d", rec.Code)
	}
}

func TestRateLimit_PerClient(t *testing.T) {
	h := RateLimit(NewClientLimiter(1, 2), okHandler())

	send := func(addr string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = addr
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec
	}

	for i := 0; i < 2; i++ {
		if rec := send("10.0.0.1:1234"); rec.Code != http.StatusOK {
			t.Fatalf("request %d: status = %d", i, rec.Code)
		}
	}
	rec := send("10.0.0.1:1234")
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("over burst: status = %d", rec.Code)
	}
	if rec.Header().Get("Retry-After") == "" {
		t.Error("missing Retry-After header")
	}

	// A different client has its own bucket.
	if rec := send("10.0.0.2:1234"); rec.Code != http.StatusOK {
		t.Errorf("other client: status = %d", rec.Code)
	}
}

func TestRateLimit_DisabledPassesThrough(t *testing.T) {
	h := RateLimit(NewClientLimiter(0, 0), okHandler())
	for i := 0; i < 10; i++ {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
		if rec.Code != http.StatusOK {
			t.Fatalf("request %d: status = %d", i, rec.Code)
		}
	}
}
