package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/starford/yardmove/internal/classify"
)

// NewRouter creates a chi router with all API routes mounted.
// authEnabled controls whether Bearer token auth is enforced.
// sseHandler, if non-nil, is mounted at GET /events inside the auth group.
func NewRouter(sess *classify.Session, authEnabled bool, token string, sseHandler http.Handler) chi.Router {
	h := NewHandler(sess)

	r := chi.NewRouter()
	r.Use(AuthMiddleware(authEnabled, token))

	// Classification state and views.
	r.Get("/zones", h.ListZones)
	r.Post("/zones/reload", h.Reload)
	r.Get("/lists/{list}", h.ListView)

	// Reclassification.
	r.Put("/zones/{id}/list", h.Reclassify)

	r.Get("/category", h.Category)

	if sseHandler != nil {
		r.Get("/events", sseHandler.ServeHTTP)
	}

	return r
}
