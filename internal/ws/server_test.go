package ws

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/termfocus/termfocus/internal/focus"
	"github.com/termfocus/termfocus/internal/session"
	"github.com/termfocus/termfocus/internal/window"
)

type blockingActivator struct{}

func (blockingActivator) Activate(ctx context.Context, _ string) error {
	<-ctx.Done()
	return ctx.Err()
}

func newTestServer(t *testing.T) (*session.Store, *window.Demo, http.Handler) {
	t.Helper()
	store := session.NewStore()
	demo := window.NewDemo()
	svc := focus.NewService(store, demo, focus.Options{Timeout: time.Second})
	return store, demo, NewServer(store, nil, svc, Options{}).Handler()
}

func do(h http.Handler, method, target string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(method, target, nil))
	return rec
}

func TestSecurityHeaders(t *testing.T) {
	inner := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	securityHeaders(inner).ServeHTTP(rec, req)

	want := map[string]string{
		"X-Content-Type-Options":  "nosniff",
		"X-Frame-Options":         "DENY",
		"Content-Security-Policy": "default-src 'self'",
	}

	for header, expected := range want {
		if got := rec.Header().Get(header); got != expected {
			t.Errorf("header %s = %q, want %q", header, got, expected)
		}
	}
}

func TestWithRecover(t *testing.T) {
	h := withRecover(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))

	rec := do(h, http.MethodGet, "/")
	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", rec.Code)
	}
}

func TestHealthz(t *testing.T) {
	_, _, h := newTestServer(t)
	rec := do(h, http.MethodGet, "/healthz")
	if rec.Code != http.StatusOK || strings.TrimSpace(rec.Body.String()) != "ok" {
		t.Errorf("healthz = %d %q", rec.Code, rec.Body.String())
	}
}

func TestUnknownPath(t *testing.T) {
	_, _, h := newTestServer(t)
	if rec := do(h, http.MethodGet, "/nope"); rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}

func TestHandleSessions(t *testing.T) {
	store, _, h := newTestServer(t)
	store.Upsert("1", "build", "compiling")
	store.Upsert("2", "tests", "")
	store.MarkSeen("2")

	rec := do(h, http.MethodGet, "/api/sessions")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q", ct)
	}

	var model session.RenderModel
	if err := json.NewDecoder(rec.Body).Decode(&model); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if model.BadgeCount != 1 || model.Total != 2 {
		t.Errorf("badge=%d total=%d", model.BadgeCount, model.Total)
	}
	if len(model.Entries) != 2 || model.Entries[0].WindowID != "1" || model.Entries[1].WindowID != "2" {
		t.Errorf("unexpected entries %+v", model.Entries)
	}

	if rec := do(h, http.MethodPost, "/api/sessions"); rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("POST status = %d, want 405", rec.Code)
	}
}

func TestHandleFocus(t *testing.T) {
	store, demo, h := newTestServer(t)
	demo.Open("7")
	store.Upsert("7", "build", "done")

	rec := do(h, http.MethodPost, "/api/sessions/7/focus")
	if rec.Code != http.StatusNoContent {
		t.Fatalf("status = %d, body %q", rec.Code, rec.Body.String())
	}
	if demo.Front() != "7" {
		t.Errorf("front window = %q, want 7", demo.Front())
	}
	s, _ := store.Get("7")
	if s.Unseen {
		t.Error("focused session should be marked seen")
	}
}

func TestHandleFocus_Unknown(t *testing.T) {
	_, _, h := newTestServer(t)
	if rec := do(h, http.MethodPost, "/api/sessions/99/focus"); rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}

func TestHandleFocus_ClosedWindow(t *testing.T) {
	store, _, h := newTestServer(t)
	store.Upsert("7", "build", "")

	rec := do(h, http.MethodPost, "/api/sessions/7/focus")
	if rec.Code != http.StatusBadGateway {
		t.Fatalf("status = %d, want 502", rec.Code)
	}
	if _, ok := store.Get("7"); !ok {
		t.Error("session should be kept under the default policy")
	}
}

func TestHandleFocus_Timeout(t *testing.T) {
	store := session.NewStore()
	svc := focus.NewService(store, blockingActivator{}, focus.Options{Timeout: 20 * time.Millisecond})
	h := NewServer(store, nil, svc, Options{}).Handler()
	store.Upsert("7", "build", "")

	if rec := do(h, http.MethodPost, "/api/sessions/7/focus"); rec.Code != http.StatusGatewayTimeout {
		t.Errorf("status = %d, want 504", rec.Code)
	}
}

func TestHandleFocus_EscapedID(t *testing.T) {
	store := session.NewStore()
	demo := window.NewDemo()
	svc := focus.NewService(store, demo, focus.Options{Timeout: time.Second})
	h := NewServer(store, nil, svc, Options{}).Handler()

	demo.Open("%3")
	store.Upsert("%3", "pane", "")

	rec := do(h, http.MethodPost, "/api/sessions/%253/focus")
	if rec.Code != http.StatusNoContent {
		t.Fatalf("status = %d, body %q", rec.Code, rec.Body.String())
	}
	if demo.Front() != "%3" {
		t.Errorf("front = %q", demo.Front())
	}
}

func TestHandleSeen(t *testing.T) {
	store, _, h := newTestServer(t)
	store.Upsert("5", "build", "")

	if rec := do(h, http.MethodPost, "/api/sessions/5/seen"); rec.Code != http.StatusNoContent {
		t.Fatalf("status = %d", rec.Code)
	}
	if store.UnseenCount() != 0 {
		t.Errorf("unseen = %d", store.UnseenCount())
	}

	if rec := do(h, http.MethodPost, "/api/sessions/99/seen"); rec.Code != http.StatusNotFound {
		t.Errorf("unknown id status = %d, want 404", rec.Code)
	}
	if store.Count() != 1 {
		t.Errorf("marking an unknown id changed the registry: %d entries", store.Count())
	}
}

func TestHandleSessionRoutes_BadRequests(t *testing.T) {
	store, _, h := newTestServer(t)
	store.Upsert("5", "build", "")

	tests := []struct {
		method string
		target string
		want   int
	}{
		{http.MethodGet, "/api/sessions/5/focus", http.StatusMethodNotAllowed},
		{http.MethodPost, "/api/sessions/5/explode", http.StatusNotFound},
		{http.MethodPost, "/api/sessions/5", http.StatusNotFound},
	}
	for _, tt := range tests {
		if rec := do(h, tt.method, tt.target); rec.Code != tt.want {
			t.Errorf("%s %s = %d, want %d", tt.method, tt.target, rec.Code, tt.want)
		}
	}
}

func TestHandleSeenAll(t *testing.T) {
	store, _, h := newTestServer(t)
	store.Upsert("1", "a", "")
	store.Upsert("2", "b", "")

	rec := do(h, http.MethodPost, "/api/seen")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var body map[string]int
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["cleared"] != 2 {
		t.Errorf("cleared = %d, want 2", body["cleared"])
	}
	if store.UnseenCount() != 0 {
		t.Errorf("unseen = %d", store.UnseenCount())
	}
}

func TestCheckOrigin(t *testing.T) {
	tests := []struct {
		origin string
		host   string
		want   bool
	}{
		{"", "127.0.0.1:9876", true},
		{"http://127.0.0.1:9876", "127.0.0.1:9876", true},
		{"http://localhost:3000", "127.0.0.1:9876", true},
		{"http://[::1]:8080", "127.0.0.1:9876", true},
		{"https://evil.example", "127.0.0.1:9876", false},
		{"://bad", "127.0.0.1:9876", false},
	}
	for _, tt := range tests {
		req := httptest.NewRequest(http.MethodGet, "/ws", nil)
		req.Host = tt.host
		if tt.origin != "" {
			req.Header.Set("Origin", tt.origin)
		}
		if got := checkOrigin(req); got != tt.want {
			t.Errorf("checkOrigin(%q) = %v, want %v", tt.origin, got, tt.want)
		}
	}
}

func TestListen_AddressInUse(t *testing.T) {
	ln, err := Listen("127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()

	_, err = Listen(ln.Addr().String())
	if !errors.Is(err, ErrListen) {
		t.Fatalf("expected ErrListen, got %v", err)
	}
}

func TestServe_ShutsDownOnCancel(t *testing.T) {
	ln, err := Listen("127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}

	_, _, h := newTestServer(t)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- Serve(ctx, ln, h) }()

	resp, err := http.Get("http://" + ln.Addr().String() + "/healthz")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d", resp.StatusCode)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Serve returned %v", err)
		}
	case <-time.After(6 * time.Second):
		t.Fatal("Serve did not return after cancel")
	}
}
