package middleware

import (
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"
)

// bucket is a token bucket for one client.
type bucket struct {
	mu       sync.Mutex
	tokens   float64
	lastSeen time.Time
}

// Limiter throttles quote traffic per client IP with a token bucket.
type Limiter struct {
	buckets sync.Map // client IP -> *bucket
	rate    float64  // tokens per second
	burst   int
	exempt  map[string]bool

	stopOnce sync.Once
	done     chan struct{}
}

// NewLimiter creates a Limiter refilling rate tokens per second up to burst.
// Requests to the exempt paths are never throttled. Call Stop to end the
// idle-bucket sweeper.
func NewLimiter(rate float64, burst int, exempt ...string) *Limiter {
	l := &Limiter{
		rate:   rate,
		burst:  burst,
		exempt: make(map[string]bool, len(exempt)),
		done:   make(chan struct{}),
	}
	for _, p := range exempt {
		l.exempt[p] = true
	}
	go l.sweep(5*time.Minute, 10*time.Minute)
	return l
}

// Stop ends the sweeper. Safe to call more than once.
func (l *Limiter) Stop() {
	l.stopOnce.Do(func() { close(l.done) })
}

// take refills the client's bucket for the elapsed time and consumes one
// token. It reports whether the request may proceed, the whole tokens left,
// and, when refused, the seconds until a token is available.
func (l *Limiter) take(client string, now time.Time) (ok bool, remaining, retryAfter int) {
	v, _ := l.buckets.LoadOrStore(client, &bucket{tokens: float64(l.burst), lastSeen: now})
	b := v.(*bucket)

	b.mu.Lock()
	defer b.mu.Unlock()

	b.tokens = math.Min(float64(l.burst), b.tokens+now.Sub(b.lastSeen).Seconds()*l.rate)
	b.lastSeen = now

	if b.tokens >= 1 {
		b.tokens--
		return true, int(b.tokens), 0
	}
	return false, 0, int(math.Ceil((1 - b.tokens) / l.rate))
}

// sweep drops buckets idle longer than maxIdle; an idle bucket has refilled
// to capacity and carries no state worth keeping.
func (l *Limiter) sweep(every, maxIdle time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case now := <-ticker.C:
			cutoff := now.Add(-maxIdle)
			l.buckets.Range(func(key, value any) bool {
				b := value.(*bucket)
				b.mu.Lock()
				idle := b.lastSeen.Before(cutoff)
				b.mu.Unlock()
				if idle {
					l.buckets.Delete(key)
				}
				return true
			})
		case <-l.done:
			return
		}
	}
}

// Middleware applies the limiter, answering throttled requests with 429 and
// a Retry-After header.
func (l *Limiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if l.exempt[r.URL.Path] {
			next.ServeHTTP(w, r)
			return
		}

		ok, remaining, retryAfter := l.take(clientIP(r), time.Now())
		w.Header().Set("X-RateLimit-Limit", strconv.Itoa(l.burst))
		w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
		if !ok {
			w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
			writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// clientIP prefers the first X-Forwarded-For hop, then X-Real-IP, then the
// connection address.
func clientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}
	if xri := strings.TrimSpace(r.Header.Get("X-Real-IP")); xri != "" {
		return xri
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
