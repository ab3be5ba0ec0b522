// Package adminapi implements the REST surface for managing and
// inspecting feature flags.
package adminapi

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"

	"github.com/veigo-labs/flagward/internal/cache"
	"github.com/veigo-labs/flagward/internal/eval"
	"github.com/veigo-labs/flagward/internal/store"
)

// API holds the router and the dependencies of the admin surface.
type API struct {
	// Router is the chi multiplexer handling HTTP requests.
	Router *chi.Mux

	logger *slog.Logger

	// flags is the persistence layer; cache is invalidated synchronously
	// on every mutation so the next evaluation sees the change.
	flags store.FlagStore
	cache *cache.Cache

	// eval serves the read-only evaluate endpoint.
	eval *eval.Service

	// apiKeyHash is the SHA-256 hex digest of the valid API key.
	apiKeyHash string

	// skipAuth disables authentication (dev/test environments only;
	// config.Validate rejects it in production).
	skipAuth bool
}

// NewAPI creates the admin API.
//
// Panics on nil dependencies or when authentication is enabled without a
// key hash: both are wiring mistakes, not runtime conditions.
func NewAPI(logger *slog.Logger, flagStore store.FlagStore, cacheSvc *cache.Cache, evalSvc *eval.Service, apiKeyHash string, skipAuth bool) *API {
	if logger == nil {
		logger = slog.Default()
	}
	if flagStore == nil {
		panic("adminapi: flag store cannot be nil")
	}
	if cacheSvc == nil {
		panic("adminapi: cache cannot be nil")
	}
	if evalSvc == nil {
		panic("adminapi: eval service cannot be nil")
	}
	if !skipAuth && apiKeyHash == "" {
		panic("adminapi: apiKeyHash cannot be empty when authentication is enabled")
	}

	api := &API{
		Router:     chi.NewRouter(),
		logger:     logger,
		flags:      flagStore,
		cache:      cacheSvc,
		eval:       evalSvc,
		apiKeyHash: apiKeyHash,
		skipAuth:   skipAuth,
	}

	api.configureRoutes()
	return api
}

// configureRoutes registers the middleware stack and endpoints.
func (a *API) configureRoutes() {
	// RequestID first so every downstream log line can carry it.
	a.Router.Use(middleware.RequestID)
	a.Router.Use(middleware.RealIP)
	a.Router.Use(a.injectLogger)
	a.Router.Use(RequestLogger)
	a.Router.Use(middleware.Recoverer)
	a.Router.Use(render.SetContentType(render.ContentTypeJSON))

	a.Router.Get("/health", a.handleHealthCheck)

	a.Router.Route("/api/v1", func(r chi.Router) {
		r.Use(a.authenticateAPIKey)

		r.Route("/flags", func(r chi.Router) {
			r.Post("/", a.handleCreateFlag)
			r.Get("/", a.handleListFlags)
			r.Post("/cache/clear", a.handleClearCache)

			r.Route("/{key}", func(r chi.Router) {
				r.Get("/", a.handleGetFlag)
				r.Put("/", a.handleUpdateFlag)
				r.Delete("/", a.handleDeleteFlag)
				r.Get("/evaluate", a.handleEvaluate)
			})
		})
	})
}

// handleHealthCheck confirms the HTTP surface is serving. Deep dependency
// checks live on the observability server's readiness probe.
func (a *API) handleHealthCheck(w http.ResponseWriter, r *http.Request) {
	render.Status(r, http.StatusOK)
	render.JSON(w, r, map[string]string{"status": "ok"})
}
