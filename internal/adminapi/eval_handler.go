package adminapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	"github.com/veigo-labs/flagward/internal/flag"
	"github.com/veigo-labs/flagward/internal/logger"
)

// handleEvaluate evaluates one flag for the caller described by the query
// parameters. The response is always 200 with a boolean: evaluation never
// surfaces errors, unknown keys and internal failures both read as disabled.
func (a *API) handleEvaluate(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	q := r.URL.Query()

	env := flag.Environment(q.Get("environment"))
	if env != "" && !env.Valid() {
		a.renderBadRequest(w, r, "Unknown environment: "+string(env))
		return
	}

	ectx := flag.EvaluationContext{
		UserID:      q.Get("user_id"),
		UserEmail:   q.Get("user_email"),
		UserRole:    q.Get("user_role"),
		Environment: env,
	}

	enabled := a.eval.IsEnabled(r.Context(), key, ectx)

	render.Status(r, http.StatusOK)
	render.JSON(w, r, &EvaluateResponse{Key: key, Enabled: enabled})
}

// handleClearCache drops every cached flag definition. Intended for
// operational use after bulk changes made outside the API.
func (a *API) handleClearCache(w http.ResponseWriter, r *http.Request) {
	a.cache.Clear()
	logger.FromContext(r.Context()).Info("flag cache cleared")

	render.Status(r, http.StatusOK)
	render.JSON(w, r, map[string]string{"status": "cache cleared"})
}
