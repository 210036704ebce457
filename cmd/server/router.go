package main

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/phrazzld/matrix-api/internal/api"
	apimiddleware "github.com/phrazzld/matrix-api/internal/api/middleware"
	"github.com/phrazzld/matrix-api/internal/ratelimit"
)

// setupRouter configures all routes and middleware. Each route group is
// charged to its rate limit class; protected groups additionally require a
// valid access token.
func (app *application) setupRouter() http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(apimiddleware.TraceMiddleware)

	authHandler := api.NewAuthHandler(app.accountService, app.userStore, app.jwtService, app.passwordVerifier, app.cacheMgr)
	taskHandler := api.NewTaskHandler(app.taskService)
	suggestHandler := api.NewSuggestHandler(app.taskService)
	healthHandler := api.NewHealthHandler(app.registry, app.cacheMgr)

	authMiddleware := apimiddleware.NewAuthMiddleware(app.jwtService)
	limit := apimiddleware.NewRateLimitMiddleware(app.limiter, app.cacheMgr)

	r.Route("/api", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(limit.Limit(ratelimit.ClassAuth, ratelimit.OpAuth))
			r.Post("/auth/register", authHandler.Register)
			r.Post("/auth/login", authHandler.Login)
			r.Post("/auth/refresh", authHandler.RefreshToken)
		})

		r.Group(func(r chi.Router) {
			r.Use(authMiddleware.Authenticate)

			r.Group(func(r chi.Router) {
				r.Use(limit.Limit(ratelimit.ClassGeneral, ratelimit.OpRead))
				r.Get("/tasks", taskHandler.List)
				r.Get("/tasks/{id}", taskHandler.Get)
			})

			r.Group(func(r chi.Router) {
				r.Use(limit.Limit(ratelimit.ClassMutation, ratelimit.OpWrite))
				r.Post("/tasks", taskHandler.Create)
				r.Patch("/tasks/{id}", taskHandler.Update)
				r.Post("/tasks/{id}/complete", taskHandler.Complete)
			})

			r.Group(func(r chi.Router) {
				r.Use(limit.Limit(ratelimit.ClassMutation, ratelimit.OpDelete))
				r.Delete("/tasks/{id}", taskHandler.Delete)
			})

			r.Group(func(r chi.Router) {
				r.Use(limit.Limit(ratelimit.ClassAI, ratelimit.OpAICall))
				r.Post("/ai/suggest", suggestHandler.Suggest)
			})
		})
	})

	r.Get("/health", healthHandler.Health)

	return r
}
