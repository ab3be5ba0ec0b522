package adminapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	"github.com/veigo-labs/flagward/internal/flag"
	"github.com/veigo-labs/flagward/internal/logger"
	"github.com/veigo-labs/flagward/internal/store"
)

// handleCreateFlag creates a new flag. Returns 201 with the created
// definition, 400 on validation failure, 409 when the key is taken.
func (a *API) handleCreateFlag(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContext(r.Context())

	var req CreateFlagRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.renderBadRequest(w, r, "Invalid JSON body")
		return
	}

	req.Sanitize()
	if errResp := req.Validate(); errResp != nil {
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, errResp)
		return
	}

	// Master switch defaults to on; a new flag is gated by its
	// environment configuration until explicitly deactivated.
	active := true
	if req.Active != nil {
		active = *req.Active
	}
	status := flag.StatusDevelopment
	if req.Status != "" {
		status = flag.Status(req.Status)
	}

	def, err := a.flags.Create(r.Context(), store.CreateParams{
		Key:                req.Key,
		Name:               req.Name,
		Description:        req.Description,
		Active:             active,
		Status:             status,
		Tags:               req.Tags,
		Environments:       req.Environments,
		ScheduledEnableAt:  req.ScheduledEnableAt,
		ScheduledDisableAt: req.ScheduledDisableAt,
		CreatedBy:          req.CreatedBy,
	})
	if err != nil {
		if errors.Is(err, store.ErrDuplicateKey) {
			render.Status(r, http.StatusConflict)
			render.JSON(w, r, &ErrorResponse{
				Code:    "ERR_DUPLICATE_KEY",
				Message: "A flag with this key already exists",
			})
			return
		}
		log.Error("failed to create flag", "key", req.Key, "error", err)
		a.renderInternalError(w, r)
		return
	}

	// A stale negative entry could otherwise mask the new flag until TTL.
	a.cache.Invalidate(def.Key)

	log.Info("flag created", "key", def.Key, "created_by", def.CreatedBy)
	render.Status(r, http.StatusCreated)
	render.JSON(w, r, def)
}

// handleListFlags lists flags, optionally filtered by ?status= and ?tag=.
func (a *API) handleListFlags(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContext(r.Context())

	filter := store.ListFilter{
		Status: flag.Status(r.URL.Query().Get("status")),
		Tag:    r.URL.Query().Get("tag"),
	}
	if filter.Status != "" && !filter.Status.Valid() {
		a.renderBadRequest(w, r, "Unknown status: "+string(filter.Status))
		return
	}

	flags, err := a.flags.FindAll(r.Context(), filter)
	if err != nil {
		log.Error("failed to list flags", "error", err)
		a.renderInternalError(w, r)
		return
	}
	if flags == nil {
		flags = []*flag.Definition{}
	}

	render.Status(r, http.StatusOK)
	render.JSON(w, r, flags)
}

// handleGetFlag returns the full definition for one flag.
func (a *API) handleGetFlag(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContext(r.Context())
	key := chi.URLParam(r, "key")

	def, err := a.flags.FindByKey(r.Context(), key)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			a.renderNotFound(w, r)
			return
		}
		log.Error("failed to fetch flag", "key", key, "error", err)
		a.renderInternalError(w, r)
		return
	}

	render.Status(r, http.StatusOK)
	render.JSON(w, r, def)
}

// handleUpdateFlag merges the provided fields into an existing flag.
// The cache entry is invalidated synchronously so the next evaluation
// re-reads the updated definition.
func (a *API) handleUpdateFlag(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContext(r.Context())
	key := chi.URLParam(r, "key")

	var req UpdateFlagRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.renderBadRequest(w, r, "Invalid JSON body")
		return
	}
	if errResp := req.Validate(); errResp != nil {
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, errResp)
		return
	}

	fields := store.UpdateFields{
		Name:                  req.Name,
		Description:           req.Description,
		Active:                req.Active,
		Tags:                  req.Tags,
		Environments:          req.Environments,
		ScheduledEnableAt:     req.ScheduledEnableAt,
		ScheduledDisableAt:    req.ScheduledDisableAt,
		ClearScheduledEnable:  req.ClearScheduledEnable,
		ClearScheduledDisable: req.ClearScheduledDisable,
	}
	if req.Status != nil {
		status := flag.Status(*req.Status)
		fields.Status = &status
	}
	if req.LastModifiedBy != "" {
		fields.LastModifiedBy = &req.LastModifiedBy
	}

	def, err := a.flags.Update(r.Context(), key, fields)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			a.renderNotFound(w, r)
			return
		}
		log.Error("failed to update flag", "key", key, "error", err)
		a.renderInternalError(w, r)
		return
	}

	a.cache.Invalidate(key)

	log.Info("flag updated", "key", key, "modified_by", req.LastModifiedBy)
	render.Status(r, http.StatusOK)
	render.JSON(w, r, def)
}

// handleDeleteFlag removes a flag. Returns 204 on success, 404 when the
// key does not exist.
func (a *API) handleDeleteFlag(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContext(r.Context())
	key := chi.URLParam(r, "key")

	if err := a.flags.Delete(r.Context(), key); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			a.renderNotFound(w, r)
			return
		}
		log.Error("failed to delete flag", "key", key, "error", err)
		a.renderInternalError(w, r)
		return
	}

	a.cache.Invalidate(key)

	log.Info("flag deleted", "key", key)
	render.NoContent(w, r)
}

func (a *API) renderBadRequest(w http.ResponseWriter, r *http.Request, msg string) {
	render.Status(r, http.StatusBadRequest)
	render.JSON(w, r, &ErrorResponse{Code: "ERR_INVALID_INPUT", Message: msg})
}

func (a *API) renderNotFound(w http.ResponseWriter, r *http.Request) {
	render.Status(r, http.StatusNotFound)
	render.JSON(w, r, &ErrorResponse{Code: "ERR_NOT_FOUND", Message: "Flag not found"})
}

func (a *API) renderInternalError(w http.ResponseWriter, r *http.Request) {
	render.Status(r, http.StatusInternalServerError)
	render.JSON(w, r, &ErrorResponse{Code: "ERR_INTERNAL", Message: "Internal server error"})
}
