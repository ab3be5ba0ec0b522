package adminapi

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"

	"github.com/veigo-labs/flagward/internal/logger"
	"github.com/veigo-labs/flagward/internal/observability"
)

// injectLogger places a request-scoped logger into the context so handlers
// and downstream services log with the request id attached.
func (a *API) injectLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqLogger := a.logger.With("request_id", middleware.GetReqID(r.Context()))
		ctx := logger.WithContext(r.Context(), reqLogger)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequestLogger logs every request after completion and records the admin
// HTTP metrics. The route pattern (not the raw path) labels the metrics so
// cardinality stays bounded.
func RequestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()

		defer func() {
			elapsed := time.Since(start)
			status := ww.Status()

			pattern := chi.RouteContext(r.Context()).RoutePattern()
			if pattern == "" {
				pattern = "unmatched"
			}

			observability.AdminReqDuration.WithLabelValues(r.Method, pattern).Observe(elapsed.Seconds())
			observability.AdminReqTotal.WithLabelValues(r.Method, pattern, strconv.Itoa(status)).Inc()

			log := logger.FromContext(r.Context())
			logFn := log.Info
			if status >= 500 {
				logFn = log.Error
			} else if status >= 400 {
				logFn = log.Warn
			}
			logFn("http request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", status,
				"bytes", ww.BytesWritten(),
				"duration_ms", elapsed.Milliseconds(),
				"remote_addr", r.RemoteAddr,
			)
		}()

		next.ServeHTTP(ww, r)
	})
}

// authenticateAPIKey validates the X-API-Key header against the configured
// SHA-256 digest. The comparison is constant-time over hashes, so neither
// key length nor content leaks through timing.
func (a *API) authenticateAPIKey(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if a.skipAuth {
			next.ServeHTTP(w, r)
			return
		}

		key := r.Header.Get("X-API-Key")
		if key == "" {
			a.renderUnauthorized(w, r, "Missing API key")
			return
		}

		sum := sha256.Sum256([]byte(key))
		got := hex.EncodeToString(sum[:])
		if subtle.ConstantTimeCompare([]byte(got), []byte(a.apiKeyHash)) != 1 {
			a.renderUnauthorized(w, r, "Invalid API key")
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (a *API) renderUnauthorized(w http.ResponseWriter, r *http.Request, msg string) {
	render.Status(r, http.StatusUnauthorized)
	render.JSON(w, r, &ErrorResponse{Code: "ERR_UNAUTHORIZED", Message: msg})
}
