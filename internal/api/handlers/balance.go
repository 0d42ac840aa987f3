package handlers

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/dvloznov/expense-assistant/internal/api/middleware"
	"github.com/dvloznov/expense-assistant/internal/domain"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
)

// AccountReader loads a user's account. *postgres.Store satisfies it.
type AccountReader interface {
	GetAccount(ctx context.Context, userID, accountID string) (*domain.Account, error)
}

// BalanceCache holds recently read balances. *cache.Cache satisfies it.
type BalanceCache interface {
	GetBalance(userID, accountID string) (int64, bool)
	SetBalance(userID, accountID string, balance int64)
}

// BalanceHandler serves account balances.
type BalanceHandler struct {
	accounts AccountReader
	cache    BalanceCache
	now      func() time.Time
	log      zerolog.Logger
}

// NewBalanceHandler creates a balance handler. cache may be nil.
func NewBalanceHandler(accounts AccountReader, cache BalanceCache, log zerolog.Logger) *BalanceHandler {
	return &BalanceHandler{accounts: accounts, cache: cache, now: time.Now, log: log}
}

// GetBalance handles GET /balance/{account_id}
func (h *BalanceHandler) GetBalance(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}
	accountID := chi.URLParam(r, "account_id")
	if accountID == "" {
		middleware.WriteError(w, http.StatusBadRequest, "Account ID required")
		return
	}

	balance, cached := int64(0), false
	if h.cache != nil {
		balance, cached = h.cache.GetBalance(userID, accountID)
	}
	if !cached {
		acc, err := h.accounts.GetAccount(r.Context(), userID, accountID)
		if err != nil {
			h.log.Error().Err(err).Str("account_id", accountID).Msg("Failed to load account")
			middleware.WriteError(w, http.StatusInternalServerError, "Failed to load balance")
			return
		}
		if acc == nil {
			middleware.WriteError(w, http.StatusNotFound, "Account not found")
			return
		}
		balance = acc.Balance
		if h.cache != nil {
			h.cache.SetBalance(userID, accountID, balance)
		}
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"account_id": accountID,
		"balance":    balance,
		"formatted":  FormatCOP(balance),
		"timestamp":  h.now().UTC().Format(time.RFC3339),
	})
}

// FormatCOP renders an amount in Colombian pesos, e.g. "$1.234.567" or
// "-$5.000".
func FormatCOP(amount int64) string {
	sign := ""
	if amount < 0 {
		sign = "-"
		amount = -amount
	}
	digits := strconv.FormatInt(amount, 10)

	var b strings.Builder
	for i, d := range digits {
		if i > 0 && (len(digits)-i)%3 == 0 {
			b.WriteByte('.')
		}
		b.WriteRune(d)
	}
	return sign + "$" + b.String()
}
