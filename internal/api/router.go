package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/starford/rulesync/internal/ruleservice"
)

// NewRouter creates a chi router with all API routes mounted.
// authEnabled controls whether Bearer token auth is enforced.
// sseHandler, if non-nil, is mounted at GET /events inside the auth group.
func NewRouter(svc *ruleservice.Service, authEnabled bool, token string, sseHandler http.Handler) chi.Router {
	h := NewHandler(svc)

	r := chi.NewRouter()
	r.Use(AuthMiddleware(authEnabled, token))

	// Rules CRUD.
	r.Get("/rules", h.ListRules)
	r.Get("/rules/{name}", h.GetRule)
	r.Get("/rules/{name}/content", h.GetRuleContent)
	r.Put("/rules/{name}", h.PutRule)
	r.Delete("/rules/{name}", h.DeleteRule)

	// Search.
	r.Get("/search", h.Search)

	// Import into a project.
	r.Post("/import", h.Import)

	// SSE endpoint (protected by same auth middleware).
	if sseHandler != nil {
		r.Get("/events", sseHandler.ServeHTTP)
	}

	return r
}
