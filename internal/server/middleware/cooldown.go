package middleware

import (
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/alanyoungcy/polyview/internal/domain"
)

// Cooldown returns middleware that lets each client call a given market view
// at most once per window. The key is client IP plus request path, so the
// price, candles and orderbook of one slug cool down independently.
//
// X-Forwarded-For and X-Real-IP are honored only when trustProxy is set,
// which is safe only behind a proxy that overwrites them. Otherwise the
// connection's remote address is the client. Limiter errors fail open.
func Cooldown(limiter domain.RateLimiter, window time.Duration, trustProxy bool, logger *slog.Logger) func(http.Handler) http.Handler {
	retryAfter := strconv.Itoa(max(1, int(window.Round(time.Second)/time.Second)))

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := "cooldown:" + extractClientIP(r, trustProxy) + ":" + r.URL.Path

			allowed, err := limiter.Allow(r.Context(), key, 1, window)
			if err != nil {
				logger.WarnContext(r.Context(), "cooldown: limiter unavailable, allowing request",
					slog.String("key", key),
					slog.String("error", err.Error()),
				)
				next.ServeHTTP(w, r)
				return
			}

			if !allowed {
				w.Header().Set("Retry-After", retryAfter)
				writeJSONError(w, http.StatusTooManyRequests, "cooldown active for this market, retry later")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// extractClientIP determines the client IP. With trustProxy it reads the
// standard proxy headers first; the direct remote address is the fallback.
func extractClientIP(r *http.Request, trustProxy bool) string {
	if trustProxy {
		if ip := forwardedIP(r); ip != "" {
			return ip
		}
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func forwardedIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		parts := strings.SplitN(xff, ",", 2)
		ip := strings.TrimSpace(parts[0])
		if ip != "" {
			return ip
		}
	}

	return strings.TrimSpace(r.Header.Get("X-Real-IP"))
}
