package client

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/hivetrace/hivectl/internal/state"
)

func TestCSRFHeaderOnStateChangingMethods(t *testing.T) {
	var gotHeader string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotHeader = r.Header.Get("X-CSRF-TOKEN")
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	tokens := state.NewMemStore()
	_ = tokens.SetToken("tok123")
	c := New(srv.URL, tokens)

	for _, method := range []string{"POST", "PUT", "DELETE", "PATCH"} {
		gotHeader = ""
		if _, err := c.Do(context.Background(), method, "/x", nil); err != nil {
			t.Fatalf("%s failed: %v", method, err)
		}
		if gotHeader != "tok123" {
			t.Errorf("%s: X-CSRF-TOKEN = %q, want %q", method, gotHeader, "tok123")
		}
	}

	gotHeader = "unset"
	if _, err := c.Do(context.Background(), "GET", "/x", nil); err != nil {
		t.Fatalf("GET failed: %v", err)
	}
	if gotHeader != "" {
		t.Errorf("GET: X-CSRF-TOKEN = %q, want absent", gotHeader)
	}
}

func TestCSRFForcedOnGet(t *testing.T) {
	var gotHeader string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotHeader = r.Header.Get("X-CSRF-TOKEN")
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	tokens := state.NewMemStore()
	_ = tokens.SetToken("tok123")
	c := New(srv.URL, tokens)

	if _, err := c.Do(context.Background(), "GET", "/whoami", nil, WithCSRF()); err != nil {
		t.Fatalf("GET failed: %v", err)
	}
	if gotHeader != "tok123" {
		t.Errorf("X-CSRF-TOKEN = %q, want %q", gotHeader, "tok123")
	}
}

func TestRequestSentWithoutToken(t *testing.T) {
	var called bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		if _, ok := r.Header["X-Csrf-Token"]; ok {
			t.Error("X-CSRF-TOKEN header present despite empty store")
		}
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	c := New(srv.URL, state.NewMemStore())

	resp, err := c.Do(context.Background(), "POST", "/x", nil)
	if err != nil {
		t.Fatalf("Do failed: %v", err)
	}
	if !called {
		t.Fatal("request was not sent")
	}
	if !resp.CsrfRejected() {
		t.Errorf("status = %d, want 403", resp.Status)
	}
}

func TestContentTypeDefaultAndOverride(t *testing.T) {
	var gotCT string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotCT = r.Header.Get("Content-Type")
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := New(srv.URL, state.NewMemStore())

	if _, err := c.Do(context.Background(), "POST", "/x", []byte(`{}`)); err != nil {
		t.Fatalf("Do failed: %v", err)
	}
	if gotCT != "application/json" {
		t.Errorf("default Content-Type = %q, want application/json", gotCT)
	}

	if _, err := c.Do(context.Background(), "POST", "/x", []byte("a=b"), WithHeader("Content-Type", "text/plain")); err != nil {
		t.Fatalf("Do failed: %v", err)
	}
	if gotCT != "text/plain" {
		t.Errorf("overridden Content-Type = %q, want text/plain", gotCT)
	}
}

func TestRedirectIntercepted(t *testing.T) {
	var followed bool
	mux := http.NewServeMux()
	mux.HandleFunc("/api", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/login", http.StatusFound)
	})
	mux.HandleFunc("/login", func(w http.ResponseWriter, r *http.Request) {
		followed = true
		w.WriteHeader(http.StatusOK)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c := New(srv.URL, state.NewMemStore())

	resp, err := c.Do(context.Background(), "GET", "/api", nil)
	if err != nil {
		t.Fatalf("Do failed: %v", err)
	}
	if !resp.RedirectDetected {
		t.Error("RedirectDetected = false, want true")
	}
	if resp.OK {
		t.Error("OK = true for redirect, want false")
	}
	if resp.Status != http.StatusFound {
		t.Errorf("status = %d, want 302", resp.Status)
	}
	if followed {
		t.Error("redirect was followed")
	}
}

func TestTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer srv.Close()

	c := New(srv.URL, state.NewMemStore(), WithTimeout(20*time.Millisecond))

	_, err := c.Do(context.Background(), "GET", "/slow", nil)
	var te *TimeoutError
	if !errors.As(err, &te) {
		t.Fatalf("error = %v, want *TimeoutError", err)
	}
	if te.URL != srv.URL+"/slow" {
		t.Errorf("TimeoutError.URL = %q, want %q", te.URL, srv.URL+"/slow")
	}
}

func TestNetworkError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close()

	c := New(srv.URL, state.NewMemStore())

	_, err := c.Do(context.Background(), "GET", "/x", nil)
	var ne *NetworkError
	if !errors.As(err, &ne) {
		t.Fatalf("error = %v, want *NetworkError", err)
	}
	if ne.URL != srv.URL+"/x" {
		t.Errorf("NetworkError.URL = %q, want %q", ne.URL, srv.URL+"/x")
	}
}

func TestUnauthorizedFiresHookAndReturnsResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	var hookFired bool
	c := New(srv.URL, state.NewMemStore(), WithAuthExpiredHook(func() { hookFired = true }))

	resp, err := c.Do(context.Background(), "GET", "/x", nil)
	if err != nil {
		t.Fatalf("Do returned error for 401: %v", err)
	}
	if !resp.AuthExpired() {
		t.Errorf("status = %d, want 401", resp.Status)
	}
	if !hookFired {
		t.Error("auth-expired hook was not invoked")
	}
}

func TestForbiddenRefreshesTokenOnce(t *testing.T) {
	var dataCalls, tokenCalls int
	mux := http.NewServeMux()
	mux.HandleFunc("/honeypot/admin/csrf-token", func(w http.ResponseWriter, r *http.Request) {
		tokenCalls++
		_ = json.NewEncoder(w).Encode(map[string]string{"csrf_token": "fresh"})
	})
	mux.HandleFunc("/data", func(w http.ResponseWriter, r *http.Request) {
		dataCalls++
		w.WriteHeader(http.StatusForbidden)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	tokens := state.NewMemStore()
	_ = tokens.SetToken("stale")
	c := New(srv.URL, tokens)

	resp, err := c.Do(context.Background(), "POST", "/data", nil)
	if err != nil {
		t.Fatalf("Do failed: %v", err)
	}
	if !resp.CsrfRejected() {
		t.Errorf("status = %d, want 403", resp.Status)
	}
	if tokenCalls != 1 {
		t.Errorf("token endpoint called %d times, want 1", tokenCalls)
	}
	if dataCalls != 1 {
		t.Errorf("original request issued %d times, want 1 (no automatic resend)", dataCalls)
	}
	if tok, _ := tokens.Token(); tok != "fresh" {
		t.Errorf("stored token = %q, want %q", tok, "fresh")
	}
}

func TestServerErrorReturnedAsIs(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	c := New(srv.URL, state.NewMemStore())

	resp, err := c.Do(context.Background(), "GET", "/x", nil)
	if err != nil {
		t.Fatalf("Do returned error for 502: %v", err)
	}
	if !resp.ServerError() {
		t.Errorf("status = %d, want 5xx", resp.Status)
	}
}

func TestFetchToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]string{"csrf_token": "abc"})
	}))
	defer srv.Close()

	tokens := state.NewMemStore()
	c := New(srv.URL, tokens, WithTokenEndpoint("/token"))

	tok, err := c.FetchToken(context.Background())
	if err != nil {
		t.Fatalf("FetchToken failed: %v", err)
	}
	if tok != "abc" {
		t.Errorf("token = %q, want %q", tok, "abc")
	}
	if stored, ok := tokens.Token(); !ok || stored != "abc" {
		t.Errorf("stored token = %q, %v, want %q, true", stored, ok, "abc")
	}
}

func TestErrorReason(t *testing.T) {
	resp := &Response{Body: []byte(`{"error":"bad key"}`)}
	if got := resp.ErrorReason("fallback"); got != "bad key" {
		t.Errorf("ErrorReason = %q, want %q", got, "bad key")
	}

	resp = &Response{Body: []byte(`not json`)}
	if got := resp.ErrorReason("fallback"); got != "fallback" {
		t.Errorf("ErrorReason = %q, want %q", got, "fallback")
	}

	resp = &Response{Body: []byte(`{}`)}
	if got := resp.ErrorReason("fallback"); got != "fallback" {
		t.Errorf("ErrorReason = %q, want %q", got, "fallback")
	}
}

func TestFetchTokenMalformedResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`not json`))
	}))
	defer srv.Close()

	c := New(srv.URL, state.NewMemStore(), WithTokenEndpoint("/token"))

	_, err := c.FetchToken(context.Background())
	var merr *MalformedResponseError
	if !errors.As(err, &merr) {
		t.Fatalf("FetchToken error = %v, want MalformedResponseError", err)
	}
	var nerr *NetworkError
	if errors.As(err, &nerr) {
		t.Error("malformed token body reported as a network failure")
	}
}

func TestFetchTokenRefused(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(`{"error":"service unavailable"}`))
	}))
	defer srv.Close()

	c := New(srv.URL, state.NewMemStore(), WithTokenEndpoint("/token"))

	_, err := c.FetchToken(context.Background())
	if err == nil {
		t.Fatal("FetchToken succeeded on a refused request")
	}
	var nerr *NetworkError
	if errors.As(err, &nerr) {
		t.Error("server refusal reported as a network failure")
	}
	var merr *MalformedResponseError
	if errors.As(err, &merr) {
		t.Error("server refusal reported as a malformed response")
	}
	if !strings.Contains(err.Error(), "service unavailable") {
		t.Errorf("error %q does not carry the service's reason", err)
	}
}

func TestSessionSurvivesClientRestart(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/login", func(w http.ResponseWriter, r *http.Request) {
		http.SetCookie(w, &http.Cookie{Name: "session", Value: "s1", Path: "/", HttpOnly: true})
		w.Write([]byte(`{"message":"ok"}`))
	})
	mux.HandleFunc("/data", func(w http.ResponseWriter, r *http.Request) {
		c, err := r.Cookie("session")
		if err != nil || c.Value != "s1" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Write([]byte(`[]`))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	base, err := url.Parse(srv.URL)
	if err != nil {
		t.Fatalf("parse server URL: %v", err)
	}
	store := state.NewMemStore()
	_ = store.SetToken("tok123")

	jar1, err := state.NewJar(store, base)
	if err != nil {
		t.Fatalf("NewJar failed: %v", err)
	}
	c1 := New(srv.URL, store, WithCookieJar(jar1))
	if _, err := c1.Do(context.Background(), "POST", "/login", []byte(`{}`)); err != nil {
		t.Fatalf("login failed: %v", err)
	}

	// A second client over the same store stands in for the next
	// process invocation.
	jar2, err := state.NewJar(store, base)
	if err != nil {
		t.Fatalf("NewJar failed: %v", err)
	}
	c2 := New(srv.URL, store, WithCookieJar(jar2))
	resp, err := c2.Do(context.Background(), "GET", "/data", nil)
	if err != nil {
		t.Fatalf("data fetch failed: %v", err)
	}
	if resp.AuthExpired() {
		t.Fatal("session cookie did not survive the restart: /data returned 401")
	}
	if !resp.OK {
		t.Fatalf("data fetch status = %d, want 200", resp.Status)
	}
}
