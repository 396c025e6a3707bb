package auth

import (
	"net"
	"net/http"

	"go.uber.org/zap"

	"fedbridge/pkg/logger"
)

// RateLimit returns middleware that limits requests per remote IP using
// the configured RPS and burst. Zero values fall back to the pool
// defaults.
func RateLimit(cfg SecConfig) func(http.Handler) http.Handler {
	pool := &limiterPool{cfg: cfg}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := remoteIP(r)
			if !pool.Allow(ip) {
				logger.Log.Warn("rate_limited", zap.String("remote", ip), zap.String("path", r.URL.Path))
				http.Error(w, "rate limit exceeded", http.StatusTooManyRequests)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func remoteIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
