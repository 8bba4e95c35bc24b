package middleware

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
)

func TestSecurityHeaders(t *testing.T) {
	handler := SecurityHeaders(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	expectedHeaders := map[string]string{
		"X-Content-Type-Options": "nosniff",
		"X-Frame-Options":        "DENY",
		"Referrer-Policy":        "strict-origin-when-cross-origin",
		"Cache-Control":          "no-store",
	}

	for header, expected := range expectedHeaders {
		got := rr.Header().Get(header)
		if got != expected {
			t.Errorf("header %s: want %q, got %q", header, expected, got)
		}
	}
}

func TestRequestID_GeneratesID(t *testing.T) {
	var seen string
	handler := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = RequestIDFromContext(r.Context())
	}))

	req := httptest.NewRequest(http.MethodPost, "/api/v1/quotes/tax", nil)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if _, err := uuid.Parse(seen); err != nil {
		t.Fatalf("expected a UUID request id in context, got %q", seen)
	}
	if got := rr.Header().Get(RequestIDHeader); got != seen {
		t.Errorf("expected response header %q, got %q", seen, got)
	}
}

func TestRequestID_ReusesInboundID(t *testing.T) {
	inbound := "0d8f5b8e-8a0b-4a53-9a4e-53c1a4f0c2d1"

	tests := []struct {
		name   string
		header string
		reuse  bool
	}{
		{"well-formed", inbound, true},
		{"malformed", "not-a-uuid", false},
		{"missing", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var seen string
			handler := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				seen, _ = RequestIDFromContext(r.Context())
			}))

			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.header != "" {
				req.Header.Set(RequestIDHeader, tt.header)
			}
			handler.ServeHTTP(httptest.NewRecorder(), req)

			if tt.reuse && seen != inbound {
				t.Errorf("expected inbound id %q, got %q", inbound, seen)
			}
			if !tt.reuse && seen == tt.header {
				t.Errorf("expected a fresh id, got %q", seen)
			}
		})
	}
}

func TestRequestIDFromContext_Missing(t *testing.T) {
	if id, ok := RequestIDFromContext(context.Background()); ok || id != "" {
		t.Errorf("expected no id, got %q, %v", id, ok)
	}
}

func TestRequestLogger_LogsStatusAndLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	handler := RequestID(RequestLogger(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		w.Write([]byte(`{"error":"x"}`))
	})))

	req := httptest.NewRequest(http.MethodPost, "/api/v1/quotes/tax", nil)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusUnprocessableEntity {
		t.Errorf("expected status 422, got %d", rr.Code)
	}

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("expected one JSON log line, got %q: %v", buf.String(), err)
	}
	if entry["level"] != "WARN" {
		t.Errorf("expected level WARN, got %v", entry["level"])
	}
	if entry["status"] != float64(422) || entry["bytes"] != float64(13) {
		t.Errorf("expected status 422 and 13 bytes, got %v and %v", entry["status"], entry["bytes"])
	}
	if entry["request_id"] != rr.Header().Get(RequestIDHeader) {
		t.Errorf("expected request_id %q, got %v", rr.Header().Get(RequestIDHeader), entry["request_id"])
	}
}

func TestLevelFor(t *testing.T) {
	tests := []struct {
		status int
		want   slog.Level
	}{
		{http.StatusOK, slog.LevelInfo},
		{http.StatusNoContent, slog.LevelInfo},
		{http.StatusBadRequest, slog.LevelWarn},
		{http.StatusTooManyRequests, slog.LevelWarn},
		{http.StatusInternalServerError, slog.LevelError},
		{http.StatusServiceUnavailable, slog.LevelError},
	}
	for _, tt := range tests {
		if got := levelFor(tt.status); got != tt.want {
			t.Errorf("levelFor(%d) = %v, want %v", tt.status, got, tt.want)
		}
	}
}

func TestRecover_NoPanic(t *testing.T) {
	handler := Recover(slog.Default())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Errorf("expected status 200, got %d", rr.Code)
	}
}

func TestRecover_CatchesPanic(t *testing.T) {
	handler := Recover(slog.Default())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("something went wrong")
	}))

	req := httptest.NewRequest(http.MethodGet, "/panic", nil)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("expected status 500 after panic, got %d", rr.Code)
	}
	var body map[string]string
	if err := json.NewDecoder(rr.Body).Decode(&body); err != nil {
		t.Fatalf("expected a JSON body: %v", err)
	}
	if body["error"] != "internal server error" {
		t.Errorf("expected error 'internal server error', got %q", body["error"])
	}
}

func TestStatusWriter_CapturesStatus(t *testing.T) {
	rr := httptest.NewRecorder()
	sw := &statusWriter{ResponseWriter: rr, status: http.StatusOK}

	sw.WriteHeader(http.StatusNotFound)
	if sw.status != http.StatusNotFound {
		t.Errorf("expected captured status 404, got %d", sw.status)
	}
}
