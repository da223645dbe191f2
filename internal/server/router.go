package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/ragdesk/ragdesk/internal/api"
	"github.com/ragdesk/ragdesk/internal/api/handlers"
	"github.com/ragdesk/ragdesk/internal/api/middleware"
	"github.com/ragdesk/ragdesk/internal/domain"
)

type RouterConfig struct {
	ChatHandler     *handlers.ChatHandler
	SearchHandler   *handlers.SearchHandler
	DocumentHandler *handlers.DocumentHandler
	FeedbackHandler *handlers.FeedbackHandler
}

func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	const maxBodyBytes int64 = 5 * 1024 * 1024

	r.Use(middleware.RequestID)
	r.Use(middleware.SentryMiddleware)
	r.Use(middleware.AccessLog)
	r.Use(middleware.MaxBodyBytes(maxBodyBytes))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		api.Success(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Group(func(r chi.Router) {
		r.Use(middleware.RequirePrincipal)

		r.Route("/chat", func(r chi.Router) {
			r.Post("/ask", cfg.ChatHandler.Ask)
			r.Post("/clear", cfg.ChatHandler.ClearHistory)
		})

		r.Post("/search", cfg.SearchHandler.Search)

		r.Post("/feedback", cfg.FeedbackHandler.Submit)

		// Admin surface: document management and feedback review need
		// manager clearance or above.
		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireLevel(domain.AccessManager))

			r.Route("/documents", func(r chi.Router) {
				r.Post("/", cfg.DocumentHandler.Upload)
				r.Get("/", cfg.DocumentHandler.List)
				r.Post("/jobs", cfg.DocumentHandler.Enqueue)
				r.Get("/jobs/{id}", cfg.DocumentHandler.GetJob)
				r.Delete("/{name}", cfg.DocumentHandler.Delete)
			})

			r.Get("/feedback/pending", cfg.FeedbackHandler.ListPending)
			r.Post("/feedback/{id}/approve", cfg.FeedbackHandler.Approve)
			r.Post("/feedback/{id}/reject", cfg.FeedbackHandler.Reject)
			r.Post("/feedback/{id}/retract", cfg.FeedbackHandler.Retract)

			r.Route("/kb", func(r chi.Router) {
				r.Get("/stats", cfg.DocumentHandler.Stats)
				r.Post("/rebuild", cfg.FeedbackHandler.Rebuild)
			})
		})
	})

	return r
}
