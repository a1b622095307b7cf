// Package http provides the metering middleware and the admin API.
package http

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/artpar/meterd/app"
	"github.com/artpar/meterd/domain/usage"
	"github.com/artpar/meterd/pkg/jsonapi"
	"github.com/artpar/meterd/ports"
)

// NewMeterMiddleware wraps metered routes with admission control and
// usage recording. Per request: resolve the caller identity, ask the
// limiter for an admission decision, reject with 429 when over the
// plan's rate, otherwise enqueue a usage event and pass through.
//
// Usage recording is fire-and-forget: the recorder never blocks the
// request and a persistence failure is never surfaced to the caller.
func NewMeterMiddleware(resolver ports.IdentityResolver, limiter *app.Limiter, recorder ports.UsageRecorder, clock ports.Clock, logger zerolog.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			principal, ok := resolver.Resolve(r)

			var decision app.Decision
			if ok {
				decision = limiter.Admit(r.Context(), &principal)
			} else {
				decision = limiter.Admit(r.Context(), nil)
			}

			if !decision.Allowed {
				retryAfter := int(time.Until(decision.RetryAt).Seconds() + 1)
				if retryAfter < 1 {
					retryAfter = 1
				}
				w.Header().Set("Retry-After", strconv.Itoa(retryAfter))

				logger.Debug().
					Str("user_id", principal.UserID).
					Str("plan", principal.Plan).
					Time("retry_at", decision.RetryAt).
					Msg("request rejected by rate limiter")

				jsonapi.WriteError(w, jsonapi.ErrRateLimited(""))
				return
			}

			if ok {
				recorder.Record(usage.NewEvent(principal.CustomerID, principal.UserID, r.URL.Path, clock.Now()))
			}

			next.ServeHTTP(w, r)
		})
	}
}

// NewLoggingMiddleware logs HTTP requests.
func NewLoggingMiddleware(logger zerolog.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			// Skip logging for health checks and metrics
			if strings.HasPrefix(r.URL.Path, "/health") || r.URL.Path == "/metrics" {
				return
			}

			logger.Debug().
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status", ww.Status()).
				Int("bytes", ww.BytesWritten()).
				Dur("duration", time.Since(start)).
				Str("request_id", middleware.GetReqID(r.Context())).
				Msg("http request")
		})
	}
}
