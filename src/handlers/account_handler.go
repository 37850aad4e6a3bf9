package handlers

import (
	"net/http"

	"github.com/username/limoney/backend/src/ledger"
	"github.com/username/limoney/backend/src/services"
	"github.com/username/limoney/backend/src/utils"
)

type AccountHandler struct {
	balanceService *services.BalanceService
}

func NewAccountHandler(balanceService *services.BalanceService) *AccountHandler {
	return &AccountHandler{balanceService: balanceService}
}

// HandleListAccounts returns the user's accounts with display balances.
func (h *AccountHandler) HandleListAccounts(w http.ResponseWriter, r *http.Request) {
	actor, ok := GetActorFromContext(r.Context())
	if !ok {
		utils.SendJSONError(w, "authentication required", http.StatusUnauthorized)
		return
	}

	accounts, err := h.balanceService.AccountsWithBalance(actor.UserID)
	if err != nil {
		utils.SendAppError(w, err)
		return
	}
	if accounts == nil {
		accounts = []ledger.AccountWithBalance{}
	}
	utils.SendJSON(w, accounts, http.StatusOK)
}

// HandleGetBalance returns the user's total display balance across accounts.
func (h *AccountHandler) HandleGetBalance(w http.ResponseWriter, r *http.Request) {
	actor, ok := GetActorFromContext(r.Context())
	if !ok {
		utils.SendJSONError(w, "authentication required", http.StatusUnauthorized)
		return
	}

	total, err := h.balanceService.TotalDisplayBalance(actor.UserID)
	if err != nil {
		utils.SendAppError(w, err)
		return
	}
	utils.SendJSON(w, map[string]int64{"total_balance": total}, http.StatusOK)
}
