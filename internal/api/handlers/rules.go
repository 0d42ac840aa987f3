package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/dvloznov/expense-assistant/internal/api/middleware"
	"github.com/dvloznov/expense-assistant/internal/domain"
	"github.com/dvloznov/expense-assistant/internal/gemini"
	"github.com/dvloznov/expense-assistant/internal/infra/postgres"
	"github.com/dvloznov/expense-assistant/internal/rules"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
)

// RuleStore manages automation rules. *postgres.Store satisfies it.
type RuleStore interface {
	ListRules(ctx context.Context, userID string) ([]domain.AutomationRule, error)
	InsertRule(ctx context.Context, r domain.AutomationRule) (domain.AutomationRule, error)
	SoftDeleteRule(ctx context.Context, userID, ruleID string) error
	ListAccounts(ctx context.Context, userID string) ([]domain.Account, error)
	ListCategories(ctx context.Context, userID string) ([]domain.Category, error)
}

// RuleGenerator drafts rules from a natural-language request.
// *gemini.Client satisfies it.
type RuleGenerator interface {
	GenerateRules(ctx context.Context, prompt string, gc gemini.GenerateContext) ([]rules.GeneratedRule, error)
}

// RulesHandler handles rule authoring endpoints.
type RulesHandler struct {
	store     RuleStore
	generator RuleGenerator
	log       zerolog.Logger
}

// NewRulesHandler creates a new rules handler. generator may be nil, which
// disables POST /automation/generate.
func NewRulesHandler(store RuleStore, generator RuleGenerator, log zerolog.Logger) *RulesHandler {
	return &RulesHandler{store: store, generator: generator, log: log}
}

// ListRules handles GET /rules
func (h *RulesHandler) ListRules(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}

	list, err := h.store.ListRules(r.Context(), userID)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to list rules")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to list rules")
		return
	}
	if list == nil {
		list = []domain.AutomationRule{}
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"rules": list,
		"count": len(list),
	})
}

// CreateRule handles POST /rules
func (h *RulesHandler) CreateRule(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}
	var rule domain.AutomationRule
	if !decodeJSON(w, r, &rule) {
		return
	}

	rule.ID = ""
	rule.UserID = userID
	rule.DeletedAt = nil
	if rule.RuleType == "" {
		rule.RuleType = domain.RuleGeneral
	}
	if err := rule.Validate(); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	saved, err := h.store.InsertRule(r.Context(), rule)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to insert rule")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to create rule")
		return
	}
	middleware.WriteJSON(w, http.StatusCreated, saved)
}

// DeleteRule handles DELETE /rules/{id}
func (h *RulesHandler) DeleteRule(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}
	ruleID := chi.URLParam(r, "id")

	err := h.store.SoftDeleteRule(r.Context(), userID, ruleID)
	if errors.Is(err, postgres.ErrNotFound) {
		middleware.WriteError(w, http.StatusNotFound, "Rule not found")
		return
	}
	if err != nil {
		h.log.Error().Err(err).Str("rule_id", ruleID).Msg("Failed to delete rule")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to delete rule")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GenerateAccountRules handles POST /automation/account-rules. The drafted
// rules are saved only with ?apply=true.
func (h *RulesHandler) GenerateAccountRules(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}

	accounts, err := h.store.ListAccounts(r.Context(), userID)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to list accounts")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to list accounts")
		return
	}

	h.respondDrafts(w, r, rules.GenerateAccountRules(userID, accounts))
}

// GenerateRules handles POST /automation/generate
func (h *RulesHandler) GenerateRules(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}
	if h.generator == nil {
		middleware.WriteError(w, http.StatusServiceUnavailable, "Rule generation is not configured")
		return
	}
	var req struct {
		Prompt string `json:"prompt"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	prompt := strings.TrimSpace(req.Prompt)
	if prompt == "" {
		middleware.WriteError(w, http.StatusBadRequest, "prompt is required")
		return
	}

	ctx := r.Context()
	var gc gemini.GenerateContext
	var err error
	if gc.Accounts, err = h.store.ListAccounts(ctx, userID); err == nil {
		if gc.Categories, err = h.store.ListCategories(ctx, userID); err == nil {
			gc.ExistingRules, err = h.store.ListRules(ctx, userID)
		}
	}
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to load generation context")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to generate rules")
		return
	}

	generated, err := h.generator.GenerateRules(ctx, prompt, gc)
	if err != nil {
		h.log.Error().Err(err).Msg("Rule generation failed")
		middleware.WriteError(w, http.StatusBadGateway, "Failed to generate rules")
		return
	}

	drafts := make([]domain.AutomationRule, 0, len(generated))
	for _, g := range generated {
		rule := g.Normalize(userID, prompt)
		if err := rule.Validate(); err != nil {
			h.log.Warn().Err(err).Str("rule_name", rule.Name).Msg("Dropping invalid generated rule")
			continue
		}
		drafts = append(drafts, rule)
	}

	h.respondDrafts(w, r, drafts)
}

// respondDrafts returns drafted rules, saving them first when the request
// asks for ?apply=true.
func (h *RulesHandler) respondDrafts(w http.ResponseWriter, r *http.Request, drafts []domain.AutomationRule) {
	if drafts == nil {
		drafts = []domain.AutomationRule{}
	}
	if r.URL.Query().Get("apply") != "true" {
		middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
			"rules":   drafts,
			"count":   len(drafts),
			"applied": false,
		})
		return
	}

	saved := make([]domain.AutomationRule, 0, len(drafts))
	for _, d := range drafts {
		rule, err := h.store.InsertRule(r.Context(), d)
		if err != nil {
			h.log.Error().Err(err).Int("saved", len(saved)).Msg("Failed to save drafted rule")
			middleware.WriteError(w, http.StatusInternalServerError, "Failed to save rules")
			return
		}
		saved = append(saved, rule)
	}

	middleware.WriteJSON(w, http.StatusCreated, map[string]interface{}{
		"rules":   saved,
		"count":   len(saved),
		"applied": true,
	})
}
