package api

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestRequestIDMiddleware_GeneratesID(t *testing.T) {
	mw := RequestIDMiddleware()
	var seen string
	handler := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = RequestID(r)
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/stats", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if seen == "" {
		t.Fatal("expected a request id in the handler context")
	}
	if rec.Header().Get("X-Request-ID") != seen {
		t.Errorf("response header %q does not match context id %q",
			rec.Header().Get("X-Request-ID"), seen)
	}
}

func TestRequestIDMiddleware_HonorsCallerID(t *testing.T) {
	mw := RequestIDMiddleware()
	var seen string
	handler := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = RequestID(r)
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/stats", nil)
	req.Header.Set("X-Request-ID", "caller-supplied-id")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if seen != "caller-supplied-id" {
		t.Errorf("expected caller id to pass through, got %q", seen)
	}
}

func TestRequestID_MissingMiddleware(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if id := RequestID(req); id != "" {
		t.Errorf("expected empty id without middleware, got %q", id)
	}
}

func TestLoggingMiddleware_PreservesStatus(t *testing.T) {
	mw := LoggingMiddleware()
	handler := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/metadata/tt9999999", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 to pass through, got %d", rec.Code)
	}
}

func TestLoggingMiddleware_ImplicitOK(t *testing.T) {
	mw := LoggingMiddleware()
	handler := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	}))

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected implicit 200, got %d", rec.Code)
	}
	if rec.Body.String() != "ok" {
		t.Errorf("body altered: %q", rec.Body.String())
	}
}
