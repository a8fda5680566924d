package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// CreateReadingSession handles POST /api/readings/sessions.
//
//	@Summary		Open a standalone reading session
//	@Tags			readings
//	@Accept			json
//	@Produce		json
//	@Param			body	body		ReadingSessionRequest	false	"Parameter overrides"
//	@Success		201		{object}	reading.SessionInfo
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/readings/sessions [post]
func (h *Handler) CreateReadingSession(w http.ResponseWriter, r *http.Request) {
	var req ReadingSessionRequest
	if err := decodeBody(w, r, &req, true); err != nil {
		writeError(w, "create reading session", err)
		return
	}
	params := req.params(h.svc.Defaults().Reading)
	info, err := h.svc.OpenReadingSession(&params)
	if err != nil {
		writeError(w, "create reading session", err)
		return
	}
	writeJSON(w, http.StatusCreated, info)
}

// TakeReading handles POST /api/readings/sessions/{id}/readings.
//
//	@Summary		Produce the next reading
//	@Tags			readings
//	@Produce		json
//	@Param			id	path		string	true	"Session id"
//	@Success		200	{object}	reading.Reading
//	@Failure		404	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/readings/sessions/{id}/readings [post]
func (h *Handler) TakeReading(w http.ResponseWriter, r *http.Request) {
	rd, err := h.svc.TakeReading(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, "take reading", err)
		return
	}
	writeJSON(w, http.StatusOK, rd)
}

// ReadingSummary handles GET /api/readings/sessions/{id}/summary.
//
//	@Summary		Summarise a reading session
//	@Tags			readings
//	@Produce		json
//	@Param			id	path		string	true	"Session id"
//	@Success		200	{object}	reading.Summary
//	@Failure		404	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/readings/sessions/{id}/summary [get]
func (h *Handler) ReadingSummary(w http.ResponseWriter, r *http.Request) {
	sum, err := h.svc.ReadingSummary(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, "reading summary", err)
		return
	}
	writeJSON(w, http.StatusOK, sum)
}

// CloseReadingSession handles DELETE /api/readings/sessions/{id}.
//
//	@Summary		Close a reading session and return its summary
//	@Tags			readings
//	@Produce		json
//	@Param			id	path		string	true	"Session id"
//	@Success		200	{object}	reading.Summary
//	@Failure		404	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/readings/sessions/{id} [delete]
func (h *Handler) CloseReadingSession(w http.ResponseWriter, r *http.Request) {
	sum, err := h.svc.CloseReadingSession(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, "close reading session", err)
		return
	}
	writeJSON(w, http.StatusOK, sum)
}
