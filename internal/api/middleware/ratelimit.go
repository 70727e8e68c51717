package middleware

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/kperson/fire-sync/internal/metrics"
)

// RateLimit defines limits for an endpoint pattern.
type RateLimit struct {
	Requests int
	Window   time.Duration
	KeyFunc  func(r *http.Request) string
}

// RateLimiterConfig holds configuration for the rate limiter.
type RateLimiterConfig struct {
	Whitelist []string // IPs or CIDRs exempt from rate limiting
}

// RateLimiter implements sliding window rate limiting on Redis.
//
// PerIP runs ahead of authentication and counts every request against the
// client address. Middleware runs behind RequireNamespace and counts only
// admitted requests against their namespace, so requests the gate rejects
// never spend a tenant's quota.
type RateLimiter struct {
	client       *redis.Client
	limits       []limitRule
	perIP        limitRule
	logger       zerolog.Logger
	whitelist    []*net.IPNet
	whitelistIPs map[string]bool
}

type limitRule struct {
	prefix string
	limit  RateLimit
}

// NewRateLimiter creates a new rate limiter. Rules are matched by
// "METHOD /path" prefix, most specific first.
func NewRateLimiter(client *redis.Client, logger zerolog.Logger, cfg RateLimiterConfig) *RateLimiter {
	rl := &RateLimiter{
		client:       client,
		logger:       logger,
		whitelistIPs: make(map[string]bool),
		limits: []limitRule{
			{"POST /admin/token", RateLimit{30, time.Hour, namespaceKey}},
			{"POST /member/", RateLimit{600, time.Minute, namespaceKey}},
			{"POST /group/", RateLimit{600, time.Minute, namespaceKey}},
			{"POST /group", RateLimit{60, time.Minute, namespaceKey}},
			{"GET /", RateLimit{1200, time.Minute, namespaceKey}},
			{"DELETE /", RateLimit{600, time.Minute, namespaceKey}},
		},
		perIP: limitRule{"ip", RateLimit{3000, time.Minute, ipKey}},
	}

	// Parse whitelist entries
	for _, entry := range cfg.Whitelist {
		if strings.Contains(entry, "/") {
			// CIDR notation
			_, ipNet, err := net.ParseCIDR(entry)
			if err != nil {
				logger.Warn().Str("entry", entry).Err(err).Msg("invalid CIDR in whitelist")
				continue
			}
			rl.whitelist = append(rl.whitelist, ipNet)
		} else {
			// Single IP
			rl.whitelistIPs[entry] = true
		}
	}

	if len(cfg.Whitelist) > 0 {
		logger.Info().
			Int("ips", len(rl.whitelistIPs)).
			Int("cidrs", len(rl.whitelist)).
			Msg("rate limit whitelist configured")
	}

	return rl
}

// isWhitelisted checks if an IP is in the whitelist.
func (rl *RateLimiter) isWhitelisted(ipStr string) bool {
	if rl.whitelistIPs[ipStr] {
		return true
	}

	ip := net.ParseIP(ipStr)
	if ip == nil {
		return false
	}
	for _, ipNet := range rl.whitelist {
		if ipNet.Contains(ip) {
			return true
		}
	}
	return false
}

// namespaceKey limits per admitted namespace. The header alone is never
// trusted; without a bound namespace the client IP is used.
func namespaceKey(r *http.Request) string {
	if ns := GetNamespaceFromContext(r.Context()); ns != "" {
		return "ratelimit:ns:" + ns
	}
	return ipKey(r)
}

func ipKey(r *http.Request) string {
	return "ratelimit:ip:" + RealIP(r)
}

// RealIP extracts the real client IP from headers or connection.
func RealIP(r *http.Request) string {
	if ip := r.Header.Get("X-Forwarded-For"); ip != "" {
		return strings.TrimSpace(strings.Split(ip, ",")[0])
	}
	if ip := r.Header.Get("X-Real-IP"); ip != "" {
		return ip
	}
	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return ip
}

// CheckAndIncrement checks rate limit and increments counter.
// Returns (allowed, remaining, resetAt).
func (rl *RateLimiter) CheckAndIncrement(ctx context.Context, key string, limit int, window time.Duration) (bool, int, time.Time) {
	now := time.Now()
	windowStart := now.Add(-window)

	windowKey := fmt.Sprintf("%s:%d", key, now.Unix()/int64(window.Seconds()))

	pipe := rl.client.Pipeline()
	pipe.ZRemRangeByScore(ctx, windowKey, "-inf", strconv.FormatInt(windowStart.UnixMilli(), 10))
	countCmd := pipe.ZCard(ctx, windowKey)
	pipe.ZAdd(ctx, windowKey, redis.Z{
		Score:  float64(now.UnixMilli()),
		Member: strconv.FormatInt(now.UnixNano(), 10),
	})
	pipe.Expire(ctx, windowKey, window*2)

	if _, err := pipe.Exec(ctx); err != nil {
		// Fail open: the limiter must not take the API down with Redis.
		rl.logger.Warn().Err(err).Str("key", key).Msg("rate limit check failed")
		return true, limit, now.Add(window)
	}

	count := countCmd.Val()
	remaining := limit - int(count) - 1
	if remaining < 0 {
		remaining = 0
	}

	return count < int64(limit), remaining, now.Add(window)
}

// PerIP returns middleware that limits all requests by client IP.
func (rl *RateLimiter) PerIP(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if rl.allow(w, r, &rl.perIP) {
			next.ServeHTTP(w, r)
		}
	})
}

// Middleware returns middleware that limits admitted requests per
// namespace. It must run behind the auth gate that binds the namespace.
func (rl *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rule := rl.findLimit(r)
		if rule == nil || rl.allow(w, r, rule) {
			next.ServeHTTP(w, r)
		}
	})
}

// allow counts r against rule and writes a 429 when it is over the limit.
func (rl *RateLimiter) allow(w http.ResponseWriter, r *http.Request, rule *limitRule) bool {
	ip := RealIP(r)
	if rl.isWhitelisted(ip) {
		return true
	}

	key := rule.limit.KeyFunc(r) + ":" + rule.prefix
	allowed, remaining, resetAt := rl.CheckAndIncrement(r.Context(), key, rule.limit.Requests, rule.limit.Window)

	w.Header().Set("X-RateLimit-Limit", strconv.Itoa(rule.limit.Requests))
	w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
	w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(resetAt.Unix(), 10))

	if allowed {
		return true
	}

	w.Header().Set("Retry-After", strconv.Itoa(int(time.Until(resetAt).Seconds())))
	metrics.RateLimitHits.WithLabelValues(rule.prefix).Inc()

	rl.logger.Warn().
		Str("type", "security").
		Str("event", "rate_limit_exceeded").
		Str("ip", ip).
		Str("namespace", GetNamespaceFromContext(r.Context())).
		Str("endpoint", r.URL.Path).
		Str("key", key).
		Msg("rate limit exceeded")

	jsonError(w, http.StatusTooManyRequests, "rate limit exceeded")
	return false
}

// findLimit finds the first rule whose prefix matches the request.
func (rl *RateLimiter) findLimit(r *http.Request) *limitRule {
	key := r.Method + " " + r.URL.Path
	for i := range rl.limits {
		if strings.HasPrefix(key, rl.limits[i].prefix) {
			return &rl.limits[i]
		}
	}
	return nil
}
