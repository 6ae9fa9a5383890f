package httpx

import (
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/belgacembalti/Secure-Digital-Card/pkg/slogx"
	"golang.org/x/time/rate"
)

// RateLimitConfig defines a token bucket: RequestsPerWindow tokens refill
// over Window, with up to Burst available at once.
type RateLimitConfig struct {
	RequestsPerWindow int           `yaml:"requests" env:"RATELIMIT_REQUESTS" env-default:"0"`
	Window            time.Duration `yaml:"window"   env:"RATELIMIT_WINDOW"   env-default:"1m"`
	Burst             int           `yaml:"burst"    env:"RATELIMIT_BURST"    env-default:"0"`
}

// LoginLimit is the fake backend's brute force limit on credential endpoints.
var LoginLimit = RateLimitConfig{
	RequestsPerWindow: 5,
	Window:            time.Minute,
	Burst:             5,
}

// Enabled reports whether the config describes a real limit.
func (c RateLimitConfig) Enabled() bool {
	return c.RequestsPerWindow > 0 && c.Window > 0
}

// Limiter builds a rate.Limiter for c. A disabled config yields rate.Inf.
func (c RateLimitConfig) Limiter() *rate.Limiter {
	if !c.Enabled() {
		return rate.NewLimiter(rate.Inf, 0)
	}
	burst := c.Burst
	if burst <= 0 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(float64(c.RequestsPerWindow)/c.Window.Seconds()), burst)
}

// ThrottledTransport delays outbound requests so a client never exceeds its
// configured rate. Waiting honours the request context.
type ThrottledTransport struct {
	Base    http.RoundTripper
	limiter *rate.Limiter
}

func NewThrottledTransport(base http.RoundTripper, cfg RateLimitConfig) *ThrottledTransport {
	if base == nil {
		base = http.DefaultTransport
	}
	return &ThrottledTransport{Base: base, limiter: cfg.Limiter()}
}

func (t *ThrottledTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if err := t.limiter.Wait(req.Context()); err != nil {
		return nil, fmt.Errorf("rate limit wait: %w", err)
	}
	return t.Base.RoundTrip(req)
}

// IPKeyExtractor returns the client IP, preferring X-Forwarded-For and
// X-Real-IP over RemoteAddr.
func IPKeyExtractor(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		return strings.TrimSpace(first)
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return strings.TrimSpace(xri)
	}

	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return ip
}

type keyedLimiters struct {
	cfg      RateLimitConfig
	limiters sync.Map // map[string]*rate.Limiter
}

func (k *keyedLimiters) get(key string) *rate.Limiter {
	if l, ok := k.limiters.Load(key); ok {
		return l.(*rate.Limiter)
	}
	l, _ := k.limiters.LoadOrStore(key, k.cfg.Limiter())
	return l.(*rate.Limiter)
}

// RateLimitByIP rejects requests over cfg per client IP with 429 and a
// Retry-After header.
func RateLimitByIP(cfg RateLimitConfig) Middleware {
	kl := &keyedLimiters{cfg: cfg}

	return func(next http.Handler) http.Handler {
		if !cfg.Enabled() {
			return next
		}

		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := IPKeyExtractor(r)
			limiter := kl.get(key)

			if !limiter.Allow() {
				reservation := limiter.Reserve()
				retryAfter := max(int(reservation.Delay().Seconds()), 1)
				reservation.Cancel()

				w.Header().Set("Retry-After", fmt.Sprintf("%d", retryAfter))
				slogx.FromContext(r.Context()).Warn("rate limit exceeded",
					"key", key,
					"endpoint", r.URL.Path,
					"retry_after", retryAfter,
				)

				WriteJSON(w, http.StatusTooManyRequests, map[string]string{
					"detail": "Request was throttled.",
				})
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
