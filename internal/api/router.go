package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// NewRouter creates a chi router with all API routes mounted.
// authEnabled controls whether Bearer token auth is enforced.
// sseHandler, if non-nil, is mounted at GET /events inside the auth group.
func NewRouter(h *Handler, authEnabled bool, token string, sseHandler http.Handler) chi.Router {
	r := chi.NewRouter()
	r.Use(AuthMiddleware(authEnabled, token))

	// Timeline.
	r.Get("/timeline", h.GetTimeline)
	r.Put("/timeline/resource", h.FocusResource)
	r.Post("/timeline/load-more", h.LoadMore)
	r.Post("/timeline/reset", h.ResetTimeline)
	r.Put("/timeline/visibility", h.SetVisibility)

	// Sources.
	r.Get("/sources", h.ListSources)
	r.Get("/sources/probe", h.ProbeSources)

	// Comments.
	r.Post("/comments", h.CreateComment)
	r.Delete("/comments/{handle}", h.DeleteComment)

	// SSE endpoint (protected by same auth middleware).
	if sseHandler != nil {
		r.Get("/events", sseHandler.ServeHTTP)
	}

	return r
}
