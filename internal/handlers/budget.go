package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mailtasker/mailtasker/internal/database"
	"github.com/mailtasker/mailtasker/internal/validation"
)

// BudgetHandler exposes the service-role deposit endpoint.
type BudgetHandler struct {
	budgets database.BudgetRepositoryInterface
	users   database.UserRepositoryInterface

	defaultDepositNano int64
	depositCapNano     int64
	logger             *zap.Logger
}

func NewBudgetHandler(budgets database.BudgetRepositoryInterface, users database.UserRepositoryInterface, defaultDepositNano, depositCapNano int64, log *zap.Logger) *BudgetHandler {
	return &BudgetHandler{
		budgets:            budgets,
		users:              users,
		defaultDepositNano: defaultDepositNano,
		depositCapNano:     depositCapNano,
		logger:             log,
	}
}

// DepositRequest is the service-role request to credit budget. Without a
// user id every known user is credited; without an amount the configured
// default applies.
type DepositRequest struct {
	UserID     *uuid.UUID `json:"user_id"`
	AmountNano *int64     `json:"amount_nano_usd" validate:"omitempty,gt=0"`
}

// DepositResult reports the outcome for one user.
type DepositResult struct {
	UserID      uuid.UUID `json:"user_id"`
	BalanceNano int64     `json:"balance_nano_usd,omitempty"`
	Error       string    `json:"error,omitempty"`
}

// Deposit handles POST /deposit-budget.
func (h *BudgetHandler) Deposit(w http.ResponseWriter, r *http.Request) {
	var req DepositRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondJSONError(w, http.StatusBadRequest, "invalid_request", "Request body must be valid JSON")
		return
	}
	if err := validation.Validate.Struct(&req); err != nil {
		respondJSONError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	amount := h.defaultDepositNano
	if req.AmountNano != nil {
		amount = *req.AmountNano
	}

	var userIDs []uuid.UUID
	if req.UserID != nil {
		exists, err := h.users.Exists(r.Context(), *req.UserID)
		if err != nil {
			respondJSONError(w, http.StatusInternalServerError, "internal_error", "Failed to resolve user")
			return
		}
		if !exists {
			respondJSONError(w, http.StatusNotFound, "not_found", "Unknown user")
			return
		}
		userIDs = []uuid.UUID{*req.UserID}
	} else {
		ids, err := h.users.ListIDs(r.Context())
		if err != nil {
			respondJSONError(w, http.StatusInternalServerError, "internal_error", "Failed to list users")
			return
		}
		userIDs = ids
	}

	results := make([]DepositResult, 0, len(userIDs))
	for _, id := range userIDs {
		balance, err := h.budgets.Deposit(r.Context(), id, amount, h.depositCapNano)
		if err != nil {
			h.logger.Error("budget_deposit_failed",
				zap.String("user_id", id.String()),
				zap.Error(err),
			)
			results = append(results, DepositResult{UserID: id, Error: "deposit failed"})
			continue
		}
		results = append(results, DepositResult{UserID: id, BalanceNano: balance})
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"deposited_nano_usd": amount,
		"results":            results,
	})
}
