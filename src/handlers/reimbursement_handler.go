package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/username/limoney/backend/src/database"
	"github.com/username/limoney/backend/src/logger"
	"github.com/username/limoney/backend/src/models"
	"github.com/username/limoney/backend/src/services"
	"github.com/username/limoney/backend/src/transfer"
	"github.com/username/limoney/backend/src/utils"
)

type ReimbursementHandler struct {
	machine      *transfer.Machine
	emailService services.EmailService
}

func NewReimbursementHandler(machine *transfer.Machine, emailService services.EmailService) *ReimbursementHandler {
	return &ReimbursementHandler{
		machine:      machine,
		emailService: emailService,
	}
}

func (h *ReimbursementHandler) HandleCreateRequest(w http.ResponseWriter, r *http.Request) {
	actor, ok := GetActorFromContext(r.Context())
	if !ok {
		utils.SendJSONError(w, "authentication required", http.StatusUnauthorized)
		return
	}

	var body struct {
		Kind           string `json:"kind"`
		RecipientEmail string `json:"recipient_email"`
		Amount         int64  `json:"amount"`
		Notes          string `json:"notes"`
		AccountID      int64  `json:"account_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		utils.SendJSONError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	request, err := h.machine.CreateRequest(actor, transfer.CreateRequestInput{
		Kind:           body.Kind,
		RecipientEmail: body.RecipientEmail,
		Amount:         body.Amount,
		Notes:          body.Notes,
		AccountID:      body.AccountID,
	})
	if err != nil {
		utils.SendAppError(w, err)
		return
	}

	// Notify the recipient off the request path; a failed email never fails
	// the request.
	if request.Kind == models.KindRequest && request.RecipientID.Valid {
		go h.notifyRecipient(actor.UserID, request)
	}

	projection, err := models.ProjectionByID(database.DB, request.ID)
	if err != nil {
		logger.L.Warn("Failed to load projection after create", "requestID", request.ID, "error", err)
		utils.SendJSON(w, request, http.StatusCreated)
		return
	}
	utils.SendJSON(w, projection, http.StatusCreated)
}

func (h *ReimbursementHandler) notifyRecipient(senderID int64, request *models.ReimbursementRequest) {
	sender, err := models.GetUserByID(database.DB, senderID)
	if err != nil {
		logger.L.Warn("Notification skipped, sender lookup failed", "senderID", senderID, "error", err)
		return
	}
	recipient, err := models.GetUserByID(database.DB, request.RecipientID.Int64)
	if err != nil {
		logger.L.Warn("Notification skipped, recipient lookup failed", "recipientID", request.RecipientID.Int64, "error", err)
		return
	}

	senderName := sender.Name
	if senderName == "" {
		senderName = sender.Username
	}
	recipientName := recipient.Name
	if recipientName == "" {
		recipientName = recipient.Username
	}

	if err := h.emailService.SendRequestReceivedEmail(recipient.Email, recipientName, senderName, request.Amount, request.ID); err != nil {
		logger.L.Warn("Failed to send request notification email", "requestID", request.ID, "error", err)
	}
}

func (h *ReimbursementHandler) notifySenderOfDecision(request *models.ReimbursementRequest, status string) {
	sender, err := models.GetUserByID(database.DB, request.SenderID)
	if err != nil || !request.RecipientID.Valid {
		return
	}
	recipient, err := models.GetUserByID(database.DB, request.RecipientID.Int64)
	if err != nil {
		return
	}

	senderName := sender.Name
	if senderName == "" {
		senderName = sender.Username
	}
	recipientName := recipient.Name
	if recipientName == "" {
		recipientName = recipient.Username
	}

	if err := h.emailService.SendRequestDecisionEmail(sender.Email, senderName, recipientName, status, request.Amount); err != nil {
		logger.L.Warn("Failed to send decision notification email", "requestID", request.ID, "error", err)
	}
}

func (h *ReimbursementHandler) HandleApproveRequest(w http.ResponseWriter, r *http.Request) {
	actor, ok := GetActorFromContext(r.Context())
	if !ok {
		utils.SendJSONError(w, "authentication required", http.StatusUnauthorized)
		return
	}
	requestID, err := parsePathID(r, "id")
	if err != nil {
		utils.SendJSONError(w, "invalid request id", http.StatusBadRequest)
		return
	}

	if err := h.machine.Approve(actor, requestID); err != nil {
		utils.SendAppError(w, err)
		return
	}

	if request, err := models.RequestByID(database.DB, requestID); err == nil {
		go h.notifySenderOfDecision(request, "approved")
	}
	utils.SendJSON(w, map[string]string{"message": "request approved"}, http.StatusOK)
}

func (h *ReimbursementHandler) HandleRejectRequest(w http.ResponseWriter, r *http.Request) {
	actor, ok := GetActorFromContext(r.Context())
	if !ok {
		utils.SendJSONError(w, "authentication required", http.StatusUnauthorized)
		return
	}
	requestID, err := parsePathID(r, "id")
	if err != nil {
		utils.SendJSONError(w, "invalid request id", http.StatusBadRequest)
		return
	}

	if err := h.machine.Reject(actor, requestID); err != nil {
		utils.SendAppError(w, err)
		return
	}

	if request, err := models.RequestByID(database.DB, requestID); err == nil {
		go h.notifySenderOfDecision(request, "rejected")
	}
	utils.SendJSON(w, map[string]string{"message": "request rejected"}, http.StatusOK)
}

func (h *ReimbursementHandler) HandleCancelRequest(w http.ResponseWriter, r *http.Request) {
	actor, ok := GetActorFromContext(r.Context())
	if !ok {
		utils.SendJSONError(w, "authentication required", http.StatusUnauthorized)
		return
	}
	requestID, err := parsePathID(r, "id")
	if err != nil {
		utils.SendJSONError(w, "invalid request id", http.StatusBadRequest)
		return
	}

	if err := h.machine.Cancel(actor, requestID); err != nil {
		utils.SendAppError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *ReimbursementHandler) HandleToggleFlag(w http.ResponseWriter, r *http.Request) {
	actor, ok := GetActorFromContext(r.Context())
	if !ok {
		utils.SendJSONError(w, "authentication required", http.StatusUnauthorized)
		return
	}
	requestID, err := parsePathID(r, "id")
	if err != nil {
		utils.SendJSONError(w, "invalid request id", http.StatusBadRequest)
		return
	}

	flagged, err := h.machine.ToggleFlag(actor, requestID)
	if err != nil {
		utils.SendAppError(w, err)
		return
	}
	utils.SendJSON(w, map[string]bool{"is_flagged": flagged}, http.StatusOK)
}

func (h *ReimbursementHandler) HandleListRequests(w http.ResponseWriter, r *http.Request) {
	actor, ok := GetActorFromContext(r.Context())
	if !ok {
		utils.SendJSONError(w, "authentication required", http.StatusUnauthorized)
		return
	}

	requests, err := h.machine.RequestsForUser(actor)
	if err != nil {
		utils.SendAppError(w, err)
		return
	}
	if requests == nil {
		requests = []models.RequestProjection{}
	}
	utils.SendJSON(w, requests, http.StatusOK)
}

func (h *ReimbursementHandler) HandleListPendingApprovals(w http.ResponseWriter, r *http.Request) {
	actor, ok := GetActorFromContext(r.Context())
	if !ok {
		utils.SendJSONError(w, "authentication required", http.StatusUnauthorized)
		return
	}

	requests, err := h.machine.PendingApprovals(actor)
	if err != nil {
		utils.SendAppError(w, err)
		return
	}
	if requests == nil {
		requests = []models.RequestProjection{}
	}
	utils.SendJSON(w, requests, http.StatusOK)
}

func (h *ReimbursementHandler) HandleGetRequest(w http.ResponseWriter, r *http.Request) {
	actor, ok := GetActorFromContext(r.Context())
	if !ok {
		utils.SendJSONError(w, "authentication required", http.StatusUnauthorized)
		return
	}
	requestID, err := parsePathID(r, "id")
	if err != nil {
		utils.SendJSONError(w, "invalid request id", http.StatusBadRequest)
		return
	}

	projection, err := h.machine.Projection(actor, requestID)
	if err != nil {
		utils.SendAppError(w, err)
		return
	}
	utils.SendJSON(w, projection, http.StatusOK)
}

// Admin endpoints.

func (h *ReimbursementHandler) HandleListAllRequests(w http.ResponseWriter, r *http.Request) {
	actor, ok := GetActorFromContext(r.Context())
	if !ok {
		utils.SendJSONError(w, "authentication required", http.StatusUnauthorized)
		return
	}

	requests, err := h.machine.AllRequests(actor)
	if err != nil {
		utils.SendAppError(w, err)
		return
	}
	if requests == nil {
		requests = []models.RequestProjection{}
	}
	utils.SendJSON(w, requests, http.StatusOK)
}

func (h *ReimbursementHandler) HandleAdminOverride(w http.ResponseWriter, r *http.Request) {
	actor, ok := GetActorFromContext(r.Context())
	if !ok {
		utils.SendJSONError(w, "authentication required", http.StatusUnauthorized)
		return
	}
	requestID, err := parsePathID(r, "id")
	if err != nil {
		utils.SendJSONError(w, "invalid request id", http.StatusBadRequest)
		return
	}

	var body struct {
		Status string `json:"status"`
		Notes  string `json:"notes"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		utils.SendJSONError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	result, err := h.machine.AdminOverride(actor, requestID, transfer.OverrideInput{
		Status: body.Status,
		Notes:  body.Notes,
	})
	if err != nil {
		utils.SendAppError(w, err)
		return
	}

	response := map[string]interface{}{
		"request": result.Request,
	}
	if result.SettlementErr != nil {
		response["settlement_error"] = result.SettlementErr.Error()
		response["manual_reconciliation"] = true
	}
	utils.SendJSON(w, response, http.StatusOK)
}
