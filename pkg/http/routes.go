package http

import (
	"github.com/go-chi/chi/v5"

	"shortly/pkg/middleware"
)

// SetupAPIRoutes wires the link management plane. A nil oauthMiddleware
// leaves the routes open (tests, or auth terminated at a trusted gateway).
func SetupAPIRoutes(r *chi.Mux, handler *Handler, oauthMiddleware *middleware.OAuthMiddleware) {
	r.Get("/health", handler.HealthCheck)
	r.Route("/v1", func(r chi.Router) {
		if oauthMiddleware != nil {
			r.With(oauthMiddleware.Authenticate("links:write")).Post("/links", handler.CreateLink)
			r.With(oauthMiddleware.Authenticate("links:read")).Get("/links", handler.ListLinks)
			r.With(oauthMiddleware.Authenticate("links:read")).Get("/links/{code}", handler.GetLink)
			r.With(oauthMiddleware.Authenticate("links:write")).Patch("/links/{code}", handler.UpdateLink)
			r.With(oauthMiddleware.Authenticate("links:write")).Delete("/links/{code}", handler.DeleteLink)
		} else {
			r.Post("/links", handler.CreateLink)
			r.Get("/links", handler.ListLinks)
			r.Get("/links/{code}", handler.GetLink)
			r.Patch("/links/{code}", handler.UpdateLink)
			r.Delete("/links/{code}", handler.DeleteLink)
		}
	})
	r.Get("/r/{code}", handler.Redirect)
}

// SetupRedirectRoutes wires the redirect plane: the hot path and nothing
// else.
func SetupRedirectRoutes(r *chi.Mux, handler *Handler) {
	r.Get("/health", handler.HealthCheck)
	r.Get("/r/{code}", handler.Redirect)
	r.Post("/r/{code}", handler.Redirect)
}
