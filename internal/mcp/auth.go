package mcp

import (
	"encoding/json"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"
)

const defaultMaxBodyBytes int64 = 1 << 20 // 1MiB

type HTTPHandlerConfig struct {
	AuthToken       string
	RateLimitPerMin int
	MaxBodyBytes    int64
}

// httpGuard fronts the streamable HTTP transport with bearer auth, a per
// caller rate limit and a request body cap. Trading tools must never be
// reachable without the shared token.
type httpGuard struct {
	next         http.Handler
	token        string
	limiter      *rateLimiter
	maxBodyBytes int64
}

func wrapHTTPHandler(base http.Handler, cfg HTTPHandlerConfig) http.Handler {
	maxBody := cfg.MaxBodyBytes
	if maxBody <= 0 {
		maxBody = defaultMaxBodyBytes
	}
	return &httpGuard{
		next:         base,
		token:        strings.TrimSpace(cfg.AuthToken),
		limiter:      newRateLimiter(cfg.RateLimitPerMin),
		maxBodyBytes: maxBody,
	}
}

func (g *httpGuard) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	provided, ok := bearerToken(r)
	if !ok {
		writeJSONError(w, http.StatusUnauthorized, "missing bearer token")
		return
	}
	if g.token == "" || provided != g.token {
		writeJSONError(w, http.StatusForbidden, "invalid bearer token")
		return
	}
	if !g.limiter.Allow(callerKey(r, provided)) {
		writeJSONError(w, http.StatusTooManyRequests, "rate limit exceeded")
		return
	}
	if r.Body != nil {
		r.Body = http.MaxBytesReader(w, r.Body, g.maxBodyBytes)
	}
	g.next.ServeHTTP(w, r)
}

func bearerToken(r *http.Request) (string, bool) {
	authz := strings.TrimSpace(r.Header.Get("Authorization"))
	if !strings.HasPrefix(authz, "Bearer ") {
		return "", false
	}
	token := strings.TrimSpace(strings.TrimPrefix(authz, "Bearer "))
	return token, token != ""
}

func callerKey(r *http.Request, token string) string {
	host, _, err := net.SplitHostPort(strings.TrimSpace(r.RemoteAddr))
	if err != nil {
		host = strings.TrimSpace(r.RemoteAddr)
	}
	if host == "" {
		host = "unknown"
	}
	return token + "|" + host
}

// rateLimiter is a token bucket per caller key, refilled continuously.
type rateLimiter struct {
	mu      sync.Mutex
	perSec  float64
	burst   float64
	buckets map[string]*bucket
}

type bucket struct {
	remaining float64
	refilled  time.Time
}

func newRateLimiter(perMin int) *rateLimiter {
	if perMin <= 0 {
		perMin = 60
	}
	return &rateLimiter{
		perSec:  float64(perMin) / 60.0,
		burst:   float64(perMin),
		buckets: make(map[string]*bucket),
	}
}

func (l *rateLimiter) Allow(key string) bool {
	now := time.Now()

	l.mu.Lock()
	defer l.mu.Unlock()

	b, ok := l.buckets[key]
	if !ok {
		l.buckets[key] = &bucket{remaining: l.burst - 1, refilled: now}
		return true
	}

	if elapsed := now.Sub(b.refilled).Seconds(); elapsed > 0 {
		b.remaining += elapsed * l.perSec
		if b.remaining > l.burst {
			b.remaining = l.burst
		}
	}
	b.refilled = now

	if b.remaining < 1 {
		return false
	}
	b.remaining--
	return true
}

func writeJSONError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}
