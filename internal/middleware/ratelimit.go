package middleware

import (
	"log"
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"

	"github.com/tripreport/backend/internal/metrics"
	"github.com/tripreport/backend/internal/models"
	"github.com/tripreport/backend/internal/ratelimit"
)

// RateLimit spends one request from tier per call, keyed by the
// authenticated user or else the client IP. Limiter errors let the
// request through.
func RateLimit(l ratelimit.Limiter, tier ratelimit.Tier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := "ip:" + ClientIP(r)
			if userID := GetUserID(r.Context()); userID != "" {
				key = "user:" + userID
			}

			d, err := l.Allow(r.Context(), tier, key)
			if err != nil {
				log.Printf("[RateLimit] tier=%s key=%s error=%v", tier.Name, key, err)
				next.ServeHTTP(w, r)
				return
			}
			if !d.Allowed {
				metrics.RateLimited.WithLabelValues(tier.Name).Inc()
				secs := int(math.Ceil(d.RetryAfter.Seconds()))
				if secs < 1 {
					secs = 1
				}
				w.Header().Set("Retry-After", strconv.Itoa(secs))
				writeJSON(w, http.StatusTooManyRequests, models.NewErrorResponse("Too many requests"))
				return
			}
			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(tier.Limit))
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(d.Remaining))
			next.ServeHTTP(w, r)
		})
	}
}

// ClientIP returns the first X-Forwarded-For address or the remote address.
func ClientIP(r *http.Request) string {
	xff := strings.TrimSpace(r.Header.Get("X-Forwarded-For"))
	if xff != "" {
		ip := strings.TrimSpace(strings.Split(xff, ",")[0])
		if net.ParseIP(ip) != nil {
			return ip
		}
	}

	host, _, err := net.SplitHostPort(strings.TrimSpace(r.RemoteAddr))
	if err == nil && net.ParseIP(host) != nil {
		return host
	}
	if net.ParseIP(r.RemoteAddr) != nil {
		return r.RemoteAddr
	}
	return ""
}
