package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/go-chi/chi/v5"

	"github.com/starford/yardmove/internal/apperr"
	"github.com/starford/yardmove/internal/classify"
	"github.com/starford/yardmove/internal/models"
)

// Handler holds API route handlers.
type Handler struct {
	sess *classify.Session
}

// NewHandler creates a new Handler.
func NewHandler(sess *classify.Session) *Handler {
	return &Handler{sess: sess}
}

// ensureLoaded loads the zones on first use. It reports false after writing
// an error response.
func (h *Handler) ensureLoaded(w http.ResponseWriter, r *http.Request) bool {
	if h.sess.Snapshot().Loaded {
		return true
	}
	if _, err := h.sess.LoadAll(r.Context()); err != nil {
		writeError(w, err)
		return false
	}
	return true
}

// ListZones handles GET /api/zones.
//
//	@Summary		Both zone lists, filtered by their search terms
//	@Tags			zones
//	@Produce		json
//	@Param			plain_q		query		string	false	"Search term for plain zones"
//	@Param			tagged_q	query		string	false	"Search term for Yard Move zones"
//	@Success		200			{object}	ZonesResponse
//	@Failure		502			{object}	errResponse
//	@Security		BearerAuth
//	@Router			/zones [get]
func (h *Handler) ListZones(w http.ResponseWriter, r *http.Request) {
	if !h.ensureLoaded(w, r) {
		return
	}
	q := r.URL.Query()
	if q.Has("plain_q") {
		h.sess.SetFilter(models.Plain, q.Get("plain_q"))
	}
	if q.Has("tagged_q") {
		h.sess.SetFilter(models.Tagged, q.Get("tagged_q"))
	}
	writeJSON(w, http.StatusOK, zonesResponse(h.sess.Snapshot()))
}

// ListView handles GET /api/lists/{list}.
//
//	@Summary		One filtered zone list
//	@Tags			zones
//	@Produce		json
//	@Param			list	path		string	true	"List"	Enums(plain, tagged)
//	@Param			q		query		string	false	"Search term; omitted keeps the current term"
//	@Success		200		{object}	ListView
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/lists/{list} [get]
func (h *Handler) ListView(w http.ResponseWriter, r *http.Request) {
	kind, err := models.ParseListKind(chi.URLParam(r, "list"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
		return
	}
	if !h.ensureLoaded(w, r) {
		return
	}

	var zones []models.Zone
	if q := r.URL.Query(); q.Has("q") {
		zones = h.sess.Search(kind, q.Get("q"))
	} else {
		zones = h.sess.View(kind)
	}
	st := h.sess.Snapshot()
	view := zonesResponse(st).Plain
	if kind == models.Tagged {
		view = zonesResponse(st).Tagged
	}
	view.Zones = zones
	writeJSON(w, http.StatusOK, view)
}

// Reload handles POST /api/zones/reload.
//
//	@Summary		Re-resolve the category and reload every zone
//	@Tags			zones
//	@Produce		json
//	@Success		200	{object}	ZonesResponse
//	@Failure		502	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/zones/reload [post]
func (h *Handler) Reload(w http.ResponseWriter, r *http.Request) {
	st, err := h.sess.Reload(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, zonesResponse(st))
}

// Reclassify handles PUT /api/zones/{id}/list.
//
//	@Summary		Move a zone into the plain or Yard Move list
//	@Tags			zones
//	@Accept			json
//	@Produce		json
//	@Param			id		path		string				true	"Zone id"
//	@Param			body	body		ReclassifyRequest	true	"Target list"
//	@Success		200		{object}	ReclassifyResponse
//	@Failure		400		{object}	errResponse
//	@Failure		404		{object}	errResponse
//	@Failure		409		{object}	errResponse
//	@Failure		502		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/zones/{id}/list [put]
func (h *Handler) Reclassify(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	id, err := url.PathUnescape(chi.URLParam(r, "id"))
	if err != nil || id == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("zone id is required"))
		return
	}
	var req ReclassifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}
	target, err := models.ParseListKind(req.List)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
		return
	}
	if !h.ensureLoaded(w, r) {
		return
	}

	_, before, known := h.sess.Zone(id)
	err = h.sess.Reclassify(r.Context(), id, target)
	switch {
	case errors.Is(err, apperr.ErrAlreadyClassified):
		z, _, _ := h.sess.Zone(id)
		writeJSON(w, http.StatusOK, ReclassifyResponse{
			Result:  "already_classified",
			Message: err.Error(),
			Zone:    z,
			List:    before.String(),
		})
		return
	case err != nil:
		slog.Warn("reclassify failed",
			slog.String("zone_id", id),
			slog.String("target", target.String()),
			slog.String("error", err.Error()))
		writeError(w, err)
		return
	}

	z, list, _ := h.sess.Zone(id)
	result := "moved"
	if known && before == target {
		result = "unchanged"
	}
	writeJSON(w, http.StatusOK, ReclassifyResponse{
		Result: result,
		Zone:   z,
		List:   list.String(),
	})
}

// Category handles GET /api/category.
//
//	@Summary		The Yard Move category, created when missing
//	@Tags			category
//	@Produce		json
//	@Success		200	{object}	CategoryResponse
//	@Failure		500	{object}	errResponse
//	@Failure		502	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/category [get]
func (h *Handler) Category(w http.ResponseWriter, r *http.Request) {
	id, err := h.sess.ResolveCategoryID(r.Context())
	if err != nil {
		slog.Error("resolve category failed", slog.String("error", err.Error()))
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, CategoryResponse{ID: id, Name: h.sess.CategoryName()})
}
