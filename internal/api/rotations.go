package api

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/starford/attune/internal/apperr"
)

const defaultQueuePreview = 10

// StartRotation handles POST /api/rotations.
//
//	@Summary		Start a rotation over the eligible targets
//	@Tags			rotations
//	@Accept			json
//	@Produce		json
//	@Param			body	body		StartRotationRequest	false	"Overrides of the configured defaults"
//	@Success		201		{object}	scheduler.Status
//	@Failure		400		{object}	errResponse
//	@Failure		409		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/rotations [post]
func (h *Handler) StartRotation(w http.ResponseWriter, r *http.Request) {
	var req StartRotationRequest
	if err := decodeBody(w, r, &req, true); err != nil {
		writeError(w, "start rotation", err)
		return
	}
	st, err := h.svc.StartRotation(r.Context(), req)
	if err != nil {
		writeError(w, "start rotation", err)
		return
	}
	writeJSON(w, http.StatusCreated, st)
}

// ListRotations handles GET /api/rotations.
//
//	@Summary		List rotations
//	@Tags			rotations
//	@Produce		json
//	@Success		200	{object}	RotationListResponse
//	@Security		BearerAuth
//	@Router			/rotations [get]
func (h *Handler) ListRotations(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, RotationListResponse{Rotations: h.svc.Rotations()})
}

// GetRotation handles GET /api/rotations/{id}.
//
//	@Summary		Get rotation status
//	@Tags			rotations
//	@Produce		json
//	@Param			id	path		string	true	"Rotation id"
//	@Success		200	{object}	scheduler.Status
//	@Failure		404	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/rotations/{id} [get]
func (h *Handler) GetRotation(w http.ResponseWriter, r *http.Request) {
	st, err := h.svc.RotationStatus(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, "get rotation", err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// RotationQueue handles GET /api/rotations/{id}/queue.
//
//	@Summary		Preview the upcoming queue entries
//	@Tags			rotations
//	@Produce		json
//	@Param			id	path		string	true	"Rotation id"
//	@Param			n	query		int		false	"Number of entries"
//	@Success		200	{object}	QueueResponse
//	@Failure		400	{object}	errResponse
//	@Failure		404	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/rotations/{id}/queue [get]
func (h *Handler) RotationQueue(w http.ResponseWriter, r *http.Request) {
	n := defaultQueuePreview
	if v := r.URL.Query().Get("n"); v != "" {
		var err error
		if n, err = strconv.Atoi(v); err != nil {
			writeError(w, "rotation queue", fmt.Errorf("%w: n: %v", apperr.ErrValidation, err))
			return
		}
	}
	entries, err := h.svc.RotationQueue(chi.URLParam(r, "id"), n)
	if err != nil {
		writeError(w, "rotation queue", err)
		return
	}
	writeJSON(w, http.StatusOK, QueueResponse{Entries: entries})
}

// RotationStats handles GET /api/rotations/{id}/stats.
//
//	@Summary		Get cumulative rotation stats
//	@Tags			rotations
//	@Produce		json
//	@Param			id	path		string	true	"Rotation id"
//	@Success		200	{object}	scheduler.Stats
//	@Failure		404	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/rotations/{id}/stats [get]
func (h *Handler) RotationStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.svc.RotationStats(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, "rotation stats", err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// PauseRotation handles POST /api/rotations/{id}/pause.
//
//	@Summary		Pause a running rotation
//	@Tags			rotations
//	@Produce		json
//	@Param			id	path		string	true	"Rotation id"
//	@Success		200	{object}	scheduler.Status
//	@Failure		404	{object}	errResponse
//	@Failure		409	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/rotations/{id}/pause [post]
func (h *Handler) PauseRotation(w http.ResponseWriter, r *http.Request) {
	st, err := h.svc.PauseRotation(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, "pause rotation", err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// ResumeRotation handles POST /api/rotations/{id}/resume.
//
//	@Summary		Resume a paused rotation
//	@Tags			rotations
//	@Produce		json
//	@Param			id	path		string	true	"Rotation id"
//	@Success		200	{object}	scheduler.Status
//	@Failure		404	{object}	errResponse
//	@Failure		409	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/rotations/{id}/resume [post]
func (h *Handler) ResumeRotation(w http.ResponseWriter, r *http.Request) {
	st, err := h.svc.ResumeRotation(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, "resume rotation", err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// StopRotation handles POST /api/rotations/{id}/stop.
//
//	@Summary		Stop a rotation
//	@Tags			rotations
//	@Produce		json
//	@Param			id	path		string	true	"Rotation id"
//	@Success		200	{object}	scheduler.Stats
//	@Failure		404	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/rotations/{id}/stop [post]
func (h *Handler) StopRotation(w http.ResponseWriter, r *http.Request) {
	stats, err := h.svc.StopRotation(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, "stop rotation", err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}
