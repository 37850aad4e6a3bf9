package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/username/limoney/backend/src/database"
	"github.com/username/limoney/backend/src/ledger"
	"github.com/username/limoney/backend/src/models"
	"github.com/username/limoney/backend/src/utils"
)

type BudgetHandler struct{}

func NewBudgetHandler() *BudgetHandler {
	return &BudgetHandler{}
}

// budgetMonth reads year/month query params, defaulting to the current month.
func budgetMonth(r *http.Request) (int, int, bool) {
	now := time.Now()
	year, month := now.Year(), int(now.Month())

	query := r.URL.Query()
	if raw := query.Get("year"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			return 0, 0, false
		}
		year = parsed
	}
	if raw := query.Get("month"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 || parsed > 12 {
			return 0, 0, false
		}
		month = parsed
	}
	return year, month, true
}

// BudgetStatus pairs a limit with the month's actual spending.
type BudgetStatus struct {
	models.BudgetLimit
	Spent     int64 `json:"spent"`
	Remaining int64 `json:"remaining"`
}

// HandleGetBudgets returns the month's limits with spending rolled in.
func (h *BudgetHandler) HandleGetBudgets(w http.ResponseWriter, r *http.Request) {
	actor, ok := GetActorFromContext(r.Context())
	if !ok {
		utils.SendJSONError(w, "authentication required", http.StatusUnauthorized)
		return
	}
	year, month, ok := budgetMonth(r)
	if !ok {
		utils.SendJSONError(w, "invalid year or month", http.StatusBadRequest)
		return
	}

	limits, err := models.BudgetsForMonth(database.DB, actor.UserID, year, month)
	if err != nil {
		utils.SendAppError(w, err)
		return
	}
	spending, err := models.SpendingByCategory(database.DB, actor.UserID, year, month)
	if err != nil {
		utils.SendAppError(w, err)
		return
	}

	statuses := make([]BudgetStatus, 0, len(limits))
	for _, limit := range limits {
		spent := spending[limit.Category]
		statuses = append(statuses, BudgetStatus{
			BudgetLimit: limit,
			Spent:       spent,
			Remaining:   limit.LimitAmount - spent,
		})
	}
	utils.SendJSON(w, statuses, http.StatusOK)
}

// HandleSetBudget creates or replaces a category limit for a month.
func (h *BudgetHandler) HandleSetBudget(w http.ResponseWriter, r *http.Request) {
	actor, ok := GetActorFromContext(r.Context())
	if !ok {
		utils.SendJSONError(w, "authentication required", http.StatusUnauthorized)
		return
	}

	var body struct {
		Category    string `json:"category"`
		Year        int    `json:"year"`
		Month       int    `json:"month"`
		LimitAmount int64  `json:"limit_amount"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		utils.SendJSONError(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if body.Category == "" {
		utils.SendJSONError(w, "category is required", http.StatusBadRequest)
		return
	}
	if body.Month < 1 || body.Month > 12 {
		utils.SendJSONError(w, "month must be between 1 and 12", http.StatusBadRequest)
		return
	}
	if body.LimitAmount <= 0 {
		utils.SendJSONError(w, "limit_amount must be greater than 0", http.StatusBadRequest)
		return
	}

	limit := &models.BudgetLimit{
		UserID:      actor.UserID,
		Category:    ledger.NormalizeCategory(body.Category),
		Year:        body.Year,
		Month:       body.Month,
		LimitAmount: body.LimitAmount,
	}
	if err := models.UpsertBudget(database.DB, limit); err != nil {
		utils.SendAppError(w, err)
		return
	}
	utils.SendJSON(w, limit, http.StatusOK)
}

// HandleDeleteBudget removes a category limit for a month.
func (h *BudgetHandler) HandleDeleteBudget(w http.ResponseWriter, r *http.Request) {
	actor, ok := GetActorFromContext(r.Context())
	if !ok {
		utils.SendJSONError(w, "authentication required", http.StatusUnauthorized)
		return
	}
	year, month, ok := budgetMonth(r)
	if !ok {
		utils.SendJSONError(w, "invalid year or month", http.StatusBadRequest)
		return
	}
	category := r.URL.Query().Get("category")
	if category == "" {
		utils.SendJSONError(w, "category is required", http.StatusBadRequest)
		return
	}

	deleted, err := models.DeleteBudget(database.DB, actor.UserID, category, year, month)
	if err != nil {
		utils.SendAppError(w, err)
		return
	}
	if !deleted {
		utils.SendJSONError(w, "budget not found", http.StatusNotFound)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
