package httpmw

import (
	"log/slog"
	"net/http"

	"github.com/sosialistaflokkurinn/ekklesia-sub013/internal/apperrors"
	"github.com/sosialistaflokkurinn/ekklesia-sub013/internal/ratelimit"
)

// RateLimit enforces limiter's per-operation, per-IP window for every
// request through this route, incrementing RateLimitRejectionsTotal on
// breach.
func RateLimit(service string, limiter *ratelimit.Limiter, op ratelimit.Operation, log *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if err := limiter.Check(op, r); err != nil {
				RateLimitRejectionsTotal.WithLabelValues(service, string(op)).Inc()
				apperrors.WriteHTTP(w, log, err)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
