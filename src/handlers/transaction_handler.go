package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/username/limoney/backend/src/ledger"
	"github.com/username/limoney/backend/src/models"
	"github.com/username/limoney/backend/src/utils"
)

type TransactionHandler struct {
	engine *ledger.Engine
}

func NewTransactionHandler(engine *ledger.Engine) *TransactionHandler {
	return &TransactionHandler{engine: engine}
}

func (h *TransactionHandler) HandleListTransactions(w http.ResponseWriter, r *http.Request) {
	actor, ok := GetActorFromContext(r.Context())
	if !ok {
		utils.SendJSONError(w, "authentication required", http.StatusUnauthorized)
		return
	}

	var accountID int64
	if raw := r.URL.Query().Get("account_id"); raw != "" {
		parsed, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			utils.SendJSONError(w, "invalid account_id", http.StatusBadRequest)
			return
		}
		accountID = parsed
	}

	transactions, err := h.engine.List(actor, accountID)
	if err != nil {
		utils.SendAppError(w, err)
		return
	}
	if transactions == nil {
		transactions = []models.Transaction{}
	}
	utils.SendJSON(w, transactions, http.StatusOK)
}

func (h *TransactionHandler) HandleCreateTransaction(w http.ResponseWriter, r *http.Request) {
	actor, ok := GetActorFromContext(r.Context())
	if !ok {
		utils.SendJSONError(w, "authentication required", http.StatusUnauthorized)
		return
	}

	var body struct {
		AccountID int64  `json:"account_id"`
		Amount    int64  `json:"amount"`
		Direction string `json:"direction"`
		Date      string `json:"date"`
		Category  string `json:"category"`
		Name      string `json:"name"`
		Notes     string `json:"notes"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		utils.SendJSONError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	tx, err := h.engine.RecordManualTransaction(actor, ledger.ManualTransactionInput{
		AccountID: body.AccountID,
		Amount:    body.Amount,
		Direction: body.Direction,
		Date:      body.Date,
		Category:  body.Category,
		Name:      body.Name,
		Notes:     body.Notes,
	})
	if err != nil {
		utils.SendAppError(w, err)
		return
	}
	utils.SendJSON(w, tx, http.StatusCreated)
}

func (h *TransactionHandler) HandleUpdateTransaction(w http.ResponseWriter, r *http.Request) {
	actor, ok := GetActorFromContext(r.Context())
	if !ok {
		utils.SendJSONError(w, "authentication required", http.StatusUnauthorized)
		return
	}
	txID, err := parsePathID(r, "id")
	if err != nil {
		utils.SendJSONError(w, "invalid transaction id", http.StatusBadRequest)
		return
	}

	var body struct {
		Amount    int64  `json:"amount"`
		Direction string `json:"direction"`
		Date      string `json:"date"`
		Category  string `json:"category"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		utils.SendJSONError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	err = h.engine.UpdateTransaction(actor, txID, ledger.UpdateTransactionInput{
		Amount:    body.Amount,
		Direction: body.Direction,
		Date:      body.Date,
		Category:  body.Category,
	})
	if err != nil {
		utils.SendAppError(w, err)
		return
	}
	utils.SendJSON(w, map[string]string{"message": "transaction updated"}, http.StatusOK)
}

func (h *TransactionHandler) HandleDeleteTransaction(w http.ResponseWriter, r *http.Request) {
	actor, ok := GetActorFromContext(r.Context())
	if !ok {
		utils.SendJSONError(w, "authentication required", http.StatusUnauthorized)
		return
	}
	txID, err := parsePathID(r, "id")
	if err != nil {
		utils.SendJSONError(w, "invalid transaction id", http.StatusBadRequest)
		return
	}

	if err := h.engine.DeleteTransaction(actor, txID); err != nil {
		utils.SendAppError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *TransactionHandler) HandleUpdateNotes(w http.ResponseWriter, r *http.Request) {
	actor, ok := GetActorFromContext(r.Context())
	if !ok {
		utils.SendJSONError(w, "authentication required", http.StatusUnauthorized)
		return
	}
	txID, err := parsePathID(r, "id")
	if err != nil {
		utils.SendJSONError(w, "invalid transaction id", http.StatusBadRequest)
		return
	}

	var body struct {
		Notes string `json:"notes"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		utils.SendJSONError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if err := h.engine.UpdateNotes(actor, txID, body.Notes); err != nil {
		utils.SendAppError(w, err)
		return
	}
	utils.SendJSON(w, map[string]string{"message": "notes updated"}, http.StatusOK)
}

func (h *TransactionHandler) HandleToggleFlag(w http.ResponseWriter, r *http.Request) {
	actor, ok := GetActorFromContext(r.Context())
	if !ok {
		utils.SendJSONError(w, "authentication required", http.StatusUnauthorized)
		return
	}
	txID, err := parsePathID(r, "id")
	if err != nil {
		utils.SendJSONError(w, "invalid transaction id", http.StatusBadRequest)
		return
	}

	flagged, err := h.engine.ToggleFlag(actor, txID)
	if err != nil {
		utils.SendAppError(w, err)
		return
	}
	utils.SendJSON(w, map[string]bool{"is_flagged": flagged}, http.StatusOK)
}

func (h *TransactionHandler) HandleSearchTransactions(w http.ResponseWriter, r *http.Request) {
	actor, ok := GetActorFromContext(r.Context())
	if !ok {
		utils.SendJSONError(w, "authentication required", http.StatusUnauthorized)
		return
	}

	query := r.URL.Query()
	transactions, err := h.engine.Search(actor, ledger.SearchInput{
		Name:      query.Get("name"),
		Category:  query.Get("category"),
		Direction: query.Get("direction"),
		Amount:    query.Get("amount"),
		Sort:      query.Get("sort"),
	})
	if err != nil {
		utils.SendAppError(w, err)
		return
	}
	if transactions == nil {
		transactions = []models.Transaction{}
	}
	utils.SendJSON(w, transactions, http.StatusOK)
}

func (h *TransactionHandler) HandleRecentTransactions(w http.ResponseWriter, r *http.Request) {
	actor, ok := GetActorFromContext(r.Context())
	if !ok {
		utils.SendJSONError(w, "authentication required", http.StatusUnauthorized)
		return
	}

	transactions, err := h.engine.Recent(actor)
	if err != nil {
		utils.SendAppError(w, err)
		return
	}
	if transactions == nil {
		transactions = []models.Transaction{}
	}
	utils.SendJSON(w, transactions, http.StatusOK)
}

func (h *TransactionHandler) HandleResetTransactions(w http.ResponseWriter, r *http.Request) {
	actor, ok := GetActorFromContext(r.Context())
	if !ok {
		utils.SendJSONError(w, "authentication required", http.StatusUnauthorized)
		return
	}

	cloned, err := h.engine.ResetToTemplate(actor)
	if err != nil {
		utils.SendAppError(w, err)
		return
	}
	utils.SendJSON(w, map[string]interface{}{
		"message": "transactions reset to template",
		"cloned":  cloned,
	}, http.StatusOK)
}

// Admin endpoints.

func (h *TransactionHandler) HandleFlaggedTransactions(w http.ResponseWriter, r *http.Request) {
	actor, ok := GetActorFromContext(r.Context())
	if !ok {
		utils.SendJSONError(w, "authentication required", http.StatusUnauthorized)
		return
	}

	transactions, err := h.engine.FlaggedTransactions(actor)
	if err != nil {
		utils.SendAppError(w, err)
		return
	}
	if transactions == nil {
		transactions = []models.Transaction{}
	}
	utils.SendJSON(w, transactions, http.StatusOK)
}

func (h *TransactionHandler) HandleClearFlag(w http.ResponseWriter, r *http.Request) {
	actor, ok := GetActorFromContext(r.Context())
	if !ok {
		utils.SendJSONError(w, "authentication required", http.StatusUnauthorized)
		return
	}
	txID, err := parsePathID(r, "id")
	if err != nil {
		utils.SendJSONError(w, "invalid transaction id", http.StatusBadRequest)
		return
	}

	if err := h.engine.ClearFlag(actor, txID); err != nil {
		utils.SendAppError(w, err)
		return
	}
	utils.SendJSON(w, map[string]string{"message": "flag cleared"}, http.StatusOK)
}
