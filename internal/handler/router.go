package handler

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/followchat/followchat/internal/middleware"
	"github.com/followchat/followchat/pkg/logger"
)

// Handlers groups the endpoint handlers mounted by NewRouter.
type Handlers struct {
	Health        *HealthHandler
	Conversations *ConversationHandler
	Messages      *MessageHandler
	Stream        *StreamHandler
	Config        *ConfigHandler
	Events        *EventHandler
}

// RouterOptions configures the reply endpoint rate limit.
type RouterOptions struct {
	RateLimitRequests int
	RateLimitWindow   time.Duration
}

// NewRouter builds the HTTP routes.
func NewRouter(h Handlers, opts RouterOptions, log *logger.Logger) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Logging(log))
	r.Use(middleware.SecurityHeaders)
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.CORS())

	r.Get("/", h.Health.Root)
	r.Get("/health", h.Health.Health)
	r.Get("/ready", h.Health.Ready)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/conversations", func(r chi.Router) {
		r.Get("/", h.Conversations.List)
		r.Post("/", h.Conversations.Create)

		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", h.Conversations.Get)
			r.Patch("/", h.Conversations.Update)
			r.Delete("/", h.Conversations.Delete)

			r.Get("/messages", h.Messages.List)
			r.Post("/messages", h.Messages.Create)
			r.Get("/events", h.Events.List)

			r.With(middleware.RateLimit(opts.RateLimitRequests, opts.RateLimitWindow)).
				Post("/llm-reply", h.Stream.Reply)
		})
	})

	r.Route("/messages/{id}", func(r chi.Router) {
		r.Get("/", h.Messages.Get)
		r.Patch("/", h.Messages.Update)
		r.Delete("/", h.Messages.Delete)
		r.Get("/path-to-root", h.Messages.PathToRoot)
	})

	r.Get("/config", h.Config.Get)
	r.Put("/config", h.Config.Put)

	return r
}
