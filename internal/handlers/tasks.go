package handlers

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/mailtasker/mailtasker/internal/database"
	"github.com/mailtasker/mailtasker/internal/middleware"
)

// TaskHandler serves the authenticated user's task list.
type TaskHandler struct {
	tasks   database.TaskRepositoryInterface
	budgets database.BudgetRepositoryInterface
	logger  *zap.Logger
}

func NewTaskHandler(tasks database.TaskRepositoryInterface, budgets database.BudgetRepositoryInterface, log *zap.Logger) *TaskHandler {
	return &TaskHandler{tasks: tasks, budgets: budgets, logger: log}
}

// ListOpen handles GET /api/v1/tasks.
func (h *TaskHandler) ListOpen(w http.ResponseWriter, r *http.Request) {
	user := middleware.UserFromContext(r)
	if user == nil {
		respondJSONError(w, http.StatusUnauthorized, "unauthorized", "Authentication required")
		return
	}

	tasks, err := h.tasks.GetOpenByUser(r.Context(), user.ID)
	if err != nil {
		h.logger.Error("task_list_failed",
			zap.String("user_id", user.ID.String()),
			zap.Error(err),
		)
		respondJSONError(w, http.StatusInternalServerError, "internal_error", "Failed to load tasks")
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{"tasks": tasks, "count": len(tasks)})
}

// Balance handles GET /api/v1/budget.
func (h *TaskHandler) Balance(w http.ResponseWriter, r *http.Request) {
	user := middleware.UserFromContext(r)
	if user == nil {
		respondJSONError(w, http.StatusUnauthorized, "unauthorized", "Authentication required")
		return
	}

	remaining, err := h.budgets.GetRemaining(r.Context(), user.ID)
	if err != nil {
		h.logger.Error("budget_read_failed",
			zap.String("user_id", user.ID.String()),
			zap.Error(err),
		)
		respondJSONError(w, http.StatusInternalServerError, "internal_error", "Failed to load budget")
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{"remaining_nano_usd": remaining})
}
