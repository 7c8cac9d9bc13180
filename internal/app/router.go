package app

import (
	"database/sql"
	"net/http"
	"time"

	"admitest/internal/app/observability"
	"admitest/internal/attempt"
	"admitest/internal/auth"
	"admitest/internal/catalog"
	"admitest/internal/eligibility"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

func NewRouter(cfg Config, db *sql.DB) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	collector := observability.NewCollector(db)
	r.Use(collector.Middleware)

	tokens := auth.NewTokenIssuer(cfg.JWTSecret, cfg.JWTTTL())
	authSvc := auth.NewService(db, tokens)
	authHandler := auth.NewHandler(authSvc)

	provider := catalog.NewSQLProvider(db)
	catalogHandler := catalog.NewHandler(provider)

	attemptSvc := attempt.NewService(
		attempt.NewSQLStore(db, cfg.DBDriver),
		provider,
		eligibility.NewSQLGate(db),
	)
	attemptHandler := attempt.NewHandler(attemptSvc)

	loginLimiter := NewIPRateLimiter(cfg.AuthRateLimitPerMin, time.Minute)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"ok":true}`))
	})
	r.Get("/metrics", collector.MetricsHandler)

	r.Route("/api/v1", func(api chi.Router) {
		api.With(RateLimitMiddleware(loginLimiter)).Post("/auth/login", authHandler.Login)

		api.Group(func(secure chi.Router) {
			secure.Use(authHandler.RequireAuth)
			secure.Get("/auth/me", authHandler.Me)

			secure.Get("/tests", catalogHandler.ListTests)
			secure.Get("/tests/{id}", catalogHandler.GetTest)

			secure.Post("/attempts/start", attemptHandler.Start)
			secure.Get("/attempts/{id}", attemptHandler.GetAttempt)
			secure.Put("/attempts/{id}/answers", attemptHandler.SubmitAnswer)
			secure.Post("/attempts/{id}/finish", attemptHandler.Finish)
			secure.Get("/attempts/{id}/result", attemptHandler.Result)
			secure.Get("/results/{id}", attemptHandler.ResultByID)
		})
	})

	return r
}
