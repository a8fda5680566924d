package api

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/starford/attune/internal/apperr"
	"github.com/starford/attune/internal/models"
	"github.com/starford/attune/internal/rotationservice"
)

// Handler holds API route handlers.
type Handler struct {
	svc *rotationservice.Service
}

// NewHandler creates a new Handler.
func NewHandler(svc *rotationservice.Service) *Handler {
	return &Handler{svc: svc}
}

func parseFilter(r *http.Request) (models.TargetFilter, error) {
	q := r.URL.Query()
	var f models.TargetFilter
	var err error
	if v := q.Get("only_active"); v != "" {
		if f.OnlyActive, err = strconv.ParseBool(v); err != nil {
			return f, fmt.Errorf("%w: only_active: %v", apperr.ErrValidation, err)
		}
	}
	if v := q.Get("only_urgent"); v != "" {
		if f.OnlyUrgent, err = strconv.ParseBool(v); err != nil {
			return f, fmt.Errorf("%w: only_urgent: %v", apperr.ErrValidation, err)
		}
	}
	if v := q.Get("min_priority"); v != "" {
		if f.MinPriority, err = strconv.Atoi(v); err != nil {
			return f, fmt.Errorf("%w: min_priority: %v", apperr.ErrValidation, err)
		}
	}
	return f, nil
}

// ListTargets handles GET /api/targets.
//
//	@Summary		List targets in registration order
//	@Tags			targets
//	@Produce		json
//	@Param			only_active		query		bool	false	"Only active targets"
//	@Param			only_urgent		query		bool	false	"Only urgent targets"
//	@Param			min_priority	query		int		false	"Minimum priority"
//	@Success		200				{object}	TargetListResponse
//	@Failure		400				{object}	errResponse
//	@Security		BearerAuth
//	@Router			/targets [get]
func (h *Handler) ListTargets(w http.ResponseWriter, r *http.Request) {
	f, err := parseFilter(r)
	if err != nil {
		writeError(w, "list targets", err)
		return
	}
	targets, err := h.svc.ListTargets(r.Context(), f)
	if err != nil {
		writeError(w, "list targets", err)
		return
	}
	writeJSON(w, http.StatusOK, TargetListResponse{Targets: targets, Total: len(targets)})
}

// CreateTarget handles POST /api/targets.
//
//	@Summary		Register a target
//	@Tags			targets
//	@Accept			json
//	@Produce		json
//	@Param			body	body		CreateTargetRequest	true	"Target to register"
//	@Success		201		{object}	Target
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/targets [post]
func (h *Handler) CreateTarget(w http.ResponseWriter, r *http.Request) {
	var req CreateTargetRequest
	if err := decodeBody(w, r, &req, false); err != nil {
		writeError(w, "create target", err)
		return
	}
	t, err := h.svc.CreateTarget(r.Context(), req)
	if err != nil {
		writeError(w, "create target", err)
		return
	}
	writeJSON(w, http.StatusCreated, t)
}

// GetTarget handles GET /api/targets/{id}.
//
//	@Summary		Get a target
//	@Tags			targets
//	@Produce		json
//	@Param			id	path		string	true	"Target id"
//	@Success		200	{object}	Target
//	@Failure		404	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/targets/{id} [get]
func (h *Handler) GetTarget(w http.ResponseWriter, r *http.Request) {
	t, err := h.svc.GetTarget(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, "get target", err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

// UpdateTarget handles PATCH /api/targets/{id}.
//
//	@Summary		Partially update a target
//	@Tags			targets
//	@Accept			json
//	@Produce		json
//	@Param			id		path		string				true	"Target id"
//	@Param			body	body		UpdateTargetRequest	true	"Fields to change"
//	@Success		200		{object}	Target
//	@Failure		400		{object}	errResponse
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/targets/{id} [patch]
func (h *Handler) UpdateTarget(w http.ResponseWriter, r *http.Request) {
	var req UpdateTargetRequest
	if err := decodeBody(w, r, &req, false); err != nil {
		writeError(w, "update target", err)
		return
	}
	t, err := h.svc.UpdateTarget(r.Context(), chi.URLParam(r, "id"), req)
	if err != nil {
		writeError(w, "update target", err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

// DeleteTarget handles DELETE /api/targets/{id}.
//
//	@Summary		Delete a target and its usage history
//	@Tags			targets
//	@Param			id	path	string	true	"Target id"
//	@Success		204	"Target deleted"
//	@Failure		404	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/targets/{id} [delete]
func (h *Handler) DeleteTarget(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.DeleteTarget(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeError(w, "delete target", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// RefreshTarget handles POST /api/targets/{id}/refresh.
//
//	@Summary		Rescan a target's locator
//	@Tags			targets
//	@Produce		json
//	@Param			id	path		string	true	"Target id"
//	@Success		200	{object}	Target
//	@Failure		404	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/targets/{id}/refresh [post]
func (h *Handler) RefreshTarget(w http.ResponseWriter, r *http.Request) {
	t, err := h.svc.RefreshTarget(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, "refresh target", err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}
