package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/username/limoney/backend/src/bankdata"
	"github.com/username/limoney/backend/src/database"
	"github.com/username/limoney/backend/src/ledger"
	"github.com/username/limoney/backend/src/logger"
	"github.com/username/limoney/backend/src/models"
	"github.com/username/limoney/backend/src/utils"
)

// BankDataHandler links provider items and drives snapshot imports through
// the reconciliation engine.
type BankDataHandler struct {
	provider bankdata.Provider
	engine   *ledger.Engine
}

func NewBankDataHandler(provider bankdata.Provider, engine *ledger.Engine) *BankDataHandler {
	return &BankDataHandler{provider: provider, engine: engine}
}

// HandleLinkItem exchanges a public token for an access token and stores the
// resulting linked item.
func (h *BankDataHandler) HandleLinkItem(w http.ResponseWriter, r *http.Request) {
	actor, ok := GetActorFromContext(r.Context())
	if !ok {
		utils.SendJSONError(w, "authentication required", http.StatusUnauthorized)
		return
	}

	var body struct {
		PublicToken string `json:"public_token"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		utils.SendJSONError(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if body.PublicToken == "" {
		utils.SendJSONError(w, "public_token is required", http.StatusBadRequest)
		return
	}

	link, err := h.provider.ExchangePublicToken(body.PublicToken)
	if err != nil {
		logger.L.Error("Public token exchange failed", "userID", actor.UserID, "error", err)
		utils.SendAppError(w, err)
		return
	}

	item := &models.LinkedItem{
		UserID:          actor.UserID,
		AccessToken:     link.AccessToken,
		ItemID:          link.ItemID,
		InstitutionName: link.InstitutionName,
	}
	if err := models.InsertLinkedItem(database.DB, item); err != nil {
		logger.L.Error("Failed to store linked item", "userID", actor.UserID, "error", err)
		utils.SendJSONError(w, "Failed to store linked item", http.StatusInternalServerError)
		return
	}

	logger.L.Info("Provider item linked", "userID", actor.UserID, "itemID", link.ItemID, "institution", link.InstitutionName)
	utils.SendJSON(w, item, http.StatusCreated)
}

// HandleListLinkedItems lists the user's provider connections.
func (h *BankDataHandler) HandleListLinkedItems(w http.ResponseWriter, r *http.Request) {
	actor, ok := GetActorFromContext(r.Context())
	if !ok {
		utils.SendJSONError(w, "authentication required", http.StatusUnauthorized)
		return
	}

	items, err := models.LinkedItemsByUser(database.DB, actor.UserID)
	if err != nil {
		utils.SendAppError(w, err)
		return
	}
	if items == nil {
		items = []models.LinkedItem{}
	}
	utils.SendJSON(w, items, http.StatusOK)
}

// HandleImportSnapshots fetches a snapshot for every linked item and feeds
// each through the reconciliation engine. A user with no linked items gets a
// successful zero-import response. Re-running the import is safe.
func (h *BankDataHandler) HandleImportSnapshots(w http.ResponseWriter, r *http.Request) {
	actor, ok := GetActorFromContext(r.Context())
	if !ok {
		utils.SendJSONError(w, "authentication required", http.StatusUnauthorized)
		return
	}

	items, err := models.LinkedItemsByUser(database.DB, actor.UserID)
	if err != nil {
		utils.SendAppError(w, err)
		return
	}

	total := ledger.ImportResult{}
	for _, item := range items {
		snapshot, err := h.provider.FetchSnapshot(item.AccessToken)
		if err != nil {
			logger.L.Error("Snapshot fetch failed", "userID", actor.UserID, "itemID", item.ItemID, "error", err)
			utils.SendAppError(w, err)
			return
		}
		result, err := h.engine.ImportSnapshot(actor.UserID, snapshot)
		if err != nil {
			logger.L.Error("Snapshot import failed", "userID", actor.UserID, "itemID", item.ItemID, "error", err)
			utils.SendAppError(w, err)
			return
		}
		total.NewAccounts += result.NewAccounts
		total.NewTransactions += result.NewTransactions
	}

	utils.SendJSON(w, map[string]interface{}{
		"linked_items":     len(items),
		"new_accounts":     total.NewAccounts,
		"new_transactions": total.NewTransactions,
	}, http.StatusOK)
}

// HandleSandboxPublicToken hands the frontend a throwaway sandbox token so
// the link flow can be exercised without a real provider.
func (h *BankDataHandler) HandleSandboxPublicToken(w http.ResponseWriter, r *http.Request) {
	sandbox, ok := h.provider.(*bankdata.SandboxProvider)
	if !ok {
		utils.SendJSONError(w, "sandbox tokens are only available with the sandbox provider", http.StatusNotFound)
		return
	}
	utils.SendJSON(w, map[string]string{"public_token": sandbox.NewPublicToken()}, http.StatusOK)
}
