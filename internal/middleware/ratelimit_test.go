package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

var okHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
})

func newTestLimiter(t *testing.T, rate float64, burst int, exempt ...string) *Limiter {
	t.Helper()
	l := NewLimiter(rate, burst, exempt...)
	t.Cleanup(l.Stop)
	return l
}

func quote(remote string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/quotes/tax", nil)
	req.RemoteAddr = remote
	return req
}

func TestLimiter_BurstThen429(t *testing.T) {
	handler := newTestLimiter(t, 5, 5).Middleware(okHandler)

	for i := 0; i < 5; i++ {
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, quote("10.0.0.1:9999"))
		if w.Code != http.StatusOK {
			t.Fatalf("request %d: expected 200 during burst, got %d", i+1, w.Code)
		}
		if w.Header().Get("X-RateLimit-Limit") != "5" {
			t.Errorf("expected X-RateLimit-Limit 5, got %q", w.Header().Get("X-RateLimit-Limit"))
		}
	}

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, quote("10.0.0.1:9999"))
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("expected status 429 after burst, got %d", w.Code)
	}
	if w.Header().Get("Retry-After") == "" {
		t.Error("missing Retry-After header on 429 response")
	}

	var body map[string]string
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode 429 response body: %v", err)
	}
	if body["error"] != "rate limit exceeded" {
		t.Errorf("expected error 'rate limit exceeded', got %q", body["error"])
	}
}

func TestLimiter_SeparateClients(t *testing.T) {
	handler := newTestLimiter(t, 1, 1).Middleware(okHandler)

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, quote("10.0.0.1:1111"))
	if w.Code != http.StatusOK {
		t.Fatalf("first client: expected 200, got %d", w.Code)
	}

	w = httptest.NewRecorder()
	handler.ServeHTTP(w, quote("10.0.0.1:1111"))
	if w.Code != http.StatusTooManyRequests {
		t.Errorf("first client again: expected 429, got %d", w.Code)
	}

	w = httptest.NewRecorder()
	handler.ServeHTTP(w, quote("10.0.0.2:2222"))
	if w.Code != http.StatusOK {
		t.Errorf("second client: expected 200, got %d", w.Code)
	}
}

func TestLimiter_ExemptPath(t *testing.T) {
	handler := newTestLimiter(t, 1, 1, "/api/v1/health").Middleware(okHandler)

	for i := 0; i < 5; i++ {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/health", nil)
		req.RemoteAddr = "10.0.0.3:3333"
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)
		if w.Code != http.StatusOK {
			t.Fatalf("health request %d: expected 200, got %d", i+1, w.Code)
		}
	}
}

func TestLimiter_Refill(t *testing.T) {
	l := newTestLimiter(t, 2, 1)
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

	if ok, _, _ := l.take("c", now); !ok {
		t.Fatal("expected the first request to pass")
	}
	ok, _, retry := l.take("c", now)
	if ok {
		t.Fatal("expected the second immediate request to be refused")
	}
	if retry != 1 {
		t.Errorf("expected retry after 1s, got %d", retry)
	}
	if ok, _, _ := l.take("c", now.Add(500*time.Millisecond)); !ok {
		t.Error("expected a token after half a second at 2 tokens/s")
	}
}

func TestLimiter_StopTwice(t *testing.T) {
	l := NewLimiter(1, 1)
	l.Stop()
	l.Stop()
}

func TestClientIP(t *testing.T) {
	tests := []struct {
		name    string
		headers map[string]string
		remote  string
		want    string
	}{
		{"forwarded for", map[string]string{"X-Forwarded-For": "203.0.113.5, 10.0.0.1"}, "10.0.0.1:80", "203.0.113.5"},
		{"real ip", map[string]string{"X-Real-IP": "198.51.100.7"}, "10.0.0.1:80", "198.51.100.7"},
		{"remote addr", nil, "192.0.2.9:4321", "192.0.2.9"},
		{"remote without port", nil, "192.0.2.9", "192.0.2.9"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.remote
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			if got := clientIP(req); got != tt.want {
				t.Errorf("expected %q, got %q", tt.want, got)
			}
		})
	}
}
