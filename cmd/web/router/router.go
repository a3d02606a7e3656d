package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"payrecon/cmd/web/handlers"
	"payrecon/cmd/web/middleware"
)

type Handlers struct {
	Deposit *handlers.Deposit
	Payout  *handlers.Payout
	Account *handlers.Account
	Health  *handlers.Health
	Metrics *handlers.Metrics
}

func New(h Handlers, auth *middleware.Auth, corsOrigins []string, logger *zap.Logger) http.Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.RequestLogger(logger))
	r.Use(chimw.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   corsOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Get("/health", h.Health.Handler)
	r.Get("/metrics", h.Metrics.Handler)
	r.Get("/metrics/snapshot", h.Metrics.Snapshot)

	r.Group(func(pr chi.Router) {
		pr.Use(auth.Require)

		pr.Post("/deposit", h.Deposit.Initiate)
		pr.Post("/deposit/capture", h.Deposit.Capture)
		pr.Post("/payout", h.Payout.Send)
		pr.Get("/payout/{id}/status", h.Payout.Status)
		pr.Get("/transactions", h.Account.Transactions)
		pr.Get("/account", h.Account.Balance)
	})
	return r
}
