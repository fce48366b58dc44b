// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Modelsmith Contributors

package server

import (
	"encoding/json"
	"log/slog"
	"net"
	"net/http"
	"slices"
	"sync"
	"time"

	mserr "github.com/modelsmith-dev/modelsmith/pkg/errors"
)

const (
	defaultMaxVisitors = 10000
	visitorIdleTTL     = 10 * time.Minute
	sweepInterval      = 5 * time.Minute
)

// RateLimitConfig configures the per-IP token bucket.
type RateLimitConfig struct {
	// RequestsPerSecond is the sustained rate per client IP. Zero disables limiting.
	RequestsPerSecond float64
	Burst             int
	// MaxVisitors caps the number of tracked IPs; the least recently seen
	// are evicted on each sweep. Defaults to 10000.
	MaxVisitors int
}

// Validate checks c and fills in defaults.
func (c *RateLimitConfig) Validate() error {
	switch {
	case c.RequestsPerSecond < 0:
		return mserr.Errorf(mserr.CodeServerConfigInvalid,
			"rate limit requests per second must not be negative (got %g)", c.RequestsPerSecond)
	case c.RequestsPerSecond > 0 && c.Burst <= 0:
		return mserr.Errorf(mserr.CodeServerConfigInvalid,
			"rate limit burst must be positive when a rate is set (got burst=%d, rate=%g)",
			c.Burst, c.RequestsPerSecond)
	case c.MaxVisitors < 0:
		return mserr.Errorf(mserr.CodeServerConfigInvalid,
			"rate limit max visitors must not be negative (got %d)", c.MaxVisitors)
	}
	if c.MaxVisitors == 0 {
		c.MaxVisitors = defaultMaxVisitors
	}
	return nil
}

type bucket struct {
	tokens     float64
	lastRefill time.Time
	lastSeen   time.Time
}

// rateLimiter holds one token bucket per client IP.
type rateLimiter struct {
	cfg RateLimitConfig
	now func() time.Time

	mu      sync.Mutex
	buckets map[string]*bucket
}

func newRateLimiter(cfg RateLimitConfig, now func() time.Time) *rateLimiter {
	if now == nil {
		now = time.Now
	}
	return &rateLimiter{cfg: cfg, now: now, buckets: make(map[string]*bucket)}
}

// allow takes a token from ip's bucket and reports whether one was available.
func (l *rateLimiter) allow(ip string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	b, ok := l.buckets[ip]
	if !ok {
		b = &bucket{tokens: float64(l.cfg.Burst), lastRefill: now}
		l.buckets[ip] = b
	}
	b.lastSeen = now

	b.tokens += now.Sub(b.lastRefill).Seconds() * l.cfg.RequestsPerSecond
	if burst := float64(l.cfg.Burst); b.tokens > burst {
		b.tokens = burst
	}
	b.lastRefill = now

	if b.tokens < 1 {
		return false
	}
	b.tokens--
	return true
}

// sweep drops idle buckets, then the oldest ones above MaxVisitors.
// It returns how many buckets were removed.
func (l *rateLimiter) sweep() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	removed := 0
	type seen struct {
		ip   string
		last time.Time
	}
	live := make([]seen, 0, len(l.buckets))
	for ip, b := range l.buckets {
		if now.Sub(b.lastSeen) > visitorIdleTTL {
			delete(l.buckets, ip)
			removed++
			continue
		}
		live = append(live, seen{ip, b.lastSeen})
	}

	if l.cfg.MaxVisitors > 0 && len(live) > l.cfg.MaxVisitors {
		slices.SortFunc(live, func(a, b seen) int { return a.last.Compare(b.last) })
		excess := len(live) - l.cfg.MaxVisitors
		for _, s := range live[:excess] {
			delete(l.buckets, s.ip)
		}
		removed += excess
		slog.Warn("rate limiter visitor cap enforced",
			"evicted", excess, "max_visitors", l.cfg.MaxVisitors)
	}
	return removed
}

func (l *rateLimiter) len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.buckets)
}

// rateLimitMiddleware enforces per-IP limits. It passes everything through
// when the rate is zero. The sweeper goroutine exits when done is closed.
func rateLimitMiddleware(cfg RateLimitConfig, done <-chan struct{}) func(http.Handler) http.Handler {
	if cfg.RequestsPerSecond <= 0 {
		return func(next http.Handler) http.Handler { return next }
	}

	limiter := newRateLimiter(cfg, nil)
	go func() {
		ticker := time.NewTicker(sweepInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				limiter.sweep()
			case <-done:
				return
			}
		}
	}()

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := clientIP(r)
			if limiter.allow(ip) {
				next.ServeHTTP(w, r)
				return
			}
			slog.Warn("rate limit exceeded", "ip", ip, "path", r.URL.Path)
			w.Header().Set("Retry-After", "1")
			writeProblem(w, mserr.New(mserr.CodeServerRateLimited, "rate limit exceeded"))
		})
	}
}

// clientIP strips the port so several connections from one host share a bucket.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// problem mirrors the problem+json body huma writes for handler errors so
// middleware rejections look the same to clients.
type problem struct {
	Title  string `json:"title"`
	Status int    `json:"status"`
	Detail string `json:"detail"`
	Code   string `json:"code"`
}

func writeProblem(w http.ResponseWriter, err error) {
	status := mserr.HTTPStatus(err)
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(status)
	body := problem{
		Title:  http.StatusText(status),
		Status: status,
		Detail: err.Error(),
		Code:   string(mserr.CodeOf(err)),
	}
	if encErr := json.NewEncoder(w).Encode(body); encErr != nil {
		slog.Warn("writing error response", "error", encErr)
	}
}
