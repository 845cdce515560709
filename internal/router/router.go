package router

import (
	"net/http"

	"modrota/internal/cache"
	"modrota/internal/database"
	v1 "modrota/internal/handlers/api/v1"
	"modrota/internal/middleware"
	"modrota/internal/monitoring"
	"modrota/internal/response"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

// Deps carries everything the router wires together.
type Deps struct {
	Moderation *v1.ModerationHandler
	EventFeed  *v1.EventFeedHandler
	Auth       *middleware.Authenticator
	Metrics    *monitoring.Metrics
	DB         *database.Manager
	Cache      cache.Cache
	Logger     *zap.Logger
}

// New builds the HTTP routing tree.
func New(d Deps) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID(d.Logger))
	r.Use(middleware.Recovery(d.Logger))
	r.Use(middleware.Logging(d.Logger))
	r.Use(middleware.Metrics(d.Metrics))
	r.Use(chimw.RealIP)

	r.Get("/healthz", healthz(d))
	r.Method(http.MethodGet, "/metrics", d.Metrics.Handler())

	r.Route("/api/v1/moderation", func(r chi.Router) {
		r.Use(d.Auth.RequireAuth)

		r.Get("/status", d.Moderation.GetStatus)
		r.Post("/invitations/{id}/answer", d.Moderation.AnswerInvitation)

		r.Route("/badges/{id}", func(r chi.Router) {
			r.Post("/pass", d.Moderation.PassBadge)
			r.Get("/queue", d.Moderation.GetQueue)
			r.Post("/decisions", d.Moderation.SubmitDecision)
			r.Post("/decisions/batch", d.Moderation.SubmitBatch)
		})

		r.Route("/scopes/{kind}/{scopeID}", func(r chi.Router) {
			r.Get("/eligibility", d.Moderation.CheckEligibility)
			r.Get("/stats", d.Moderation.GetScopeStats)

			r.Group(func(r chi.Router) {
				r.Use(d.Auth.RequireAdmin)
				r.Get("/config", d.Moderation.GetConfig)
				r.Patch("/config", d.Moderation.UpdateConfig)
				r.Post("/rebalance", d.Moderation.Rebalance)
			})
		})

		r.Get("/leaderboard", d.Moderation.Leaderboard)
		r.Get("/events/ws", d.EventFeed.ServeWS)
	})

	return r
}

func healthz(d Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		checks := map[string]string{"database": "ok", "cache": "ok"}
		status := http.StatusOK

		if err := d.DB.Health(r.Context()); err != nil {
			checks["database"] = err.Error()
			status = http.StatusServiceUnavailable
		}
		if err := d.Cache.Health(r.Context()); err != nil {
			checks["cache"] = err.Error()
			status = http.StatusServiceUnavailable
		}

		if status == http.StatusOK {
			response.WriteJSON(w, r, status, checks)
			return
		}
		response.WriteError(w, r, status, "degraded")
	}
}
