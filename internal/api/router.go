package api

import (
	"net/http"
	"time"

	"github.com/dvloznov/expense-assistant/internal/api/handlers"
	"github.com/dvloznov/expense-assistant/internal/api/middleware"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
)

// Handlers groups the endpoint handlers mounted by NewRouter.
type Handlers struct {
	Transactions *handlers.TransactionsHandler
	Balance      *handlers.BalanceHandler
	Messages     *handlers.MessagesHandler
	Jobs         *handlers.JobsHandler
	Rules        *handlers.RulesHandler
}

// NewRouter builds the HTTP routes. Everything except /health requires
// authentication.
func NewRouter(h Handlers, auth middleware.AuthConfig, log zerolog.Logger) *chi.Mux {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger(log))
	r.Use(middleware.Recovery(log))
	r.Use(middleware.CORS)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		middleware.WriteJSON(w, http.StatusOK, map[string]string{
			"status": "healthy",
			"time":   time.Now().Format(time.RFC3339),
		})
	})

	r.With(middleware.Auth(auth)).Group(func(r chi.Router) {
		r.Post("/transactions", h.Transactions.Process)
		r.Post("/parse", h.Transactions.Parse)
		r.Get("/balance/{account_id}", h.Balance.GetBalance)

		r.Post("/messages", h.Messages.EnqueueMessage)
		r.Route("/jobs", func(r chi.Router) {
			r.Get("/", h.Jobs.ListJobs)
			r.Get("/{id}", h.Jobs.GetJob)
		})

		r.Route("/rules", func(r chi.Router) {
			r.Get("/", h.Rules.ListRules)
			r.Post("/", h.Rules.CreateRule)
			r.Delete("/{id}", h.Rules.DeleteRule)
		})
		r.Route("/automation", func(r chi.Router) {
			r.Post("/account-rules", h.Rules.GenerateAccountRules)
			r.Post("/generate", h.Rules.GenerateRules)
		})
	})

	return r
}
