package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/dvloznov/expense-assistant/internal/api/handlers"
	"github.com/dvloznov/expense-assistant/internal/api/middleware"
	"github.com/dvloznov/expense-assistant/internal/domain"
	"github.com/dvloznov/expense-assistant/internal/jobs/inmemory"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

type stubRules struct{}

func (stubRules) ListRules(context.Context, string) ([]domain.AutomationRule, error) {
	return []domain.AutomationRule{{ID: "rule-1", Name: "Uber"}}, nil
}

func (stubRules) InsertRule(_ context.Context, r domain.AutomationRule) (domain.AutomationRule, error) {
	return r, nil
}

func (stubRules) SoftDeleteRule(context.Context, string, string) error { return nil }

func (stubRules) ListAccounts(context.Context, string) ([]domain.Account, error) { return nil, nil }

func (stubRules) ListCategories(context.Context, string) ([]domain.Category, error) { return nil, nil }

func newTestRouter() http.Handler {
	log := zerolog.Nop()
	h := Handlers{
		Transactions: handlers.NewTransactionsHandler(nil, log),
		Balance:      handlers.NewBalanceHandler(nil, nil, log),
		Messages:     handlers.NewMessagesHandler(nil, nil, log),
		Jobs:         handlers.NewJobsHandler(inmemory.NewStore(), log),
		Rules:        handlers.NewRulesHandler(stubRules{}, nil, log),
	}
	auth := middleware.AuthConfig{StaticKey: "secret", DefaultUserID: "user-1"}
	return NewRouter(h, auth, log)
}

func TestRouter(t *testing.T) {
	router := newTestRouter()

	tests := []struct {
		name       string
		method     string
		path       string
		token      string
		wantStatus int
	}{
		{"health is public", http.MethodGet, "/health", "", http.StatusOK},
		{"rules need auth", http.MethodGet, "/rules", "", http.StatusUnauthorized},
		{"rules with key", http.MethodGet, "/rules", "secret", http.StatusOK},
		{"jobs with key", http.MethodGet, "/jobs", "secret", http.StatusOK},
		{"missing job", http.MethodGet, "/jobs/nope", "secret", http.StatusNotFound},
		{"delete rule", http.MethodDelete, "/rules/rule-1", "secret", http.StatusNoContent},
		{"wrong method", http.MethodPut, "/rules", "secret", http.StatusMethodNotAllowed},
		{"unknown route", http.MethodGet, "/nothing", "secret", http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.path, nil)
			if tt.token != "" {
				req.Header.Set("Authorization", "Bearer "+tt.token)
			}
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, req)

			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
		})
	}
}
