// Package transfer implements the reimbursement state machine: requests move
// pending -> approved (approval settles), pending -> rejected, or are
// cancelled by their sender, with an admin override path for stuck requests.
// Send-kind transfers skip pending and are recorded directly as completed.
package transfer

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/username/limoney/backend/src/apperrors"
	"github.com/username/limoney/backend/src/logger"
	"github.com/username/limoney/backend/src/models"
	"github.com/username/limoney/backend/src/security"
	"github.com/username/limoney/backend/src/security/validation"
)

type Machine struct {
	db       *sql.DB
	onChange func(userID int64) // balance cache invalidation, may be nil
}

func NewMachine(db *sql.DB) *Machine {
	return &Machine{db: db}
}

func (m *Machine) SetChangeListener(fn func(userID int64)) {
	m.onChange = fn
}

func (m *Machine) notify(userIDs ...int64) {
	if m.onChange == nil {
		return
	}
	for _, id := range userIDs {
		m.onChange(id)
	}
}

// CreateRequestInput covers both kinds: a "request" asks the recipient for
// money; a "send" settles immediately out of the sender's accounts.
type CreateRequestInput struct {
	Kind           string
	RecipientEmail string
	Amount         int64 // cents
	Notes          string
	AccountID      int64 // send only; 0 means draw across all accounts
}

// CreateRequest validates the input, resolves the recipient and either opens
// a pending request or, for sends, settles immediately and records the row
// as completed.
func (m *Machine) CreateRequest(actor security.ActorContext, input CreateRequestInput) (*models.ReimbursementRequest, error) {
	if input.Amount <= 0 {
		return nil, apperrors.Validation("INVALID_AMOUNT", "amount must be greater than 0")
	}
	if input.Kind != models.KindRequest && input.Kind != models.KindSend {
		return nil, apperrors.Validation("INVALID_KIND", "kind must be 'request' or 'send'")
	}
	email := strings.TrimSpace(strings.ToLower(input.RecipientEmail))
	if email == "" {
		return nil, apperrors.Validation("INVALID_RECIPIENT", "recipient email is required")
	}

	recipient, err := models.GetUserByEmail(m.db, email)
	if err != nil {
		if errors.Is(err, models.ErrUserNotFound) {
			return nil, apperrors.Conflict("RECIPIENT_NOT_FOUND", "no user with that email address")
		}
		return nil, err
	}
	if recipient.ID == actor.UserID {
		return nil, apperrors.Validation("SELF_TRANSFER", "cannot send or request money from yourself")
	}

	request := &models.ReimbursementRequest{
		SenderID:       actor.UserID,
		RecipientID:    sql.NullInt64{Int64: recipient.ID, Valid: true},
		RecipientEmail: recipient.Email,
		Amount:         input.Amount,
		Notes:          validation.StripUnprintable(input.Notes),
		Status:         models.StatusPending,
		Kind:           input.Kind,
	}

	if input.Kind == models.KindRequest {
		if err := models.InsertRequest(m.db, request); err != nil {
			return nil, err
		}
		return request, nil
	}

	// Send: debit, credit and insert in one transaction so a failed
	// settlement never leaves a completed row behind.
	dbTx, err := m.db.Begin()
	if err != nil {
		return nil, err
	}
	defer dbTx.Rollback()

	if err := m.settle(dbTx, actor.UserID, recipient.ID, input.Amount, input.AccountID); err != nil {
		return nil, err
	}

	request.Status = models.StatusCompleted
	if err := models.InsertRequest(dbTx, request); err != nil {
		return nil, err
	}
	if err := dbTx.Commit(); err != nil {
		return nil, err
	}

	m.notify(actor.UserID, recipient.ID)
	logger.L.Info("Send settled",
		"requestID", request.ID, "senderID", actor.UserID,
		"recipientID", recipient.ID, "amount", input.Amount)
	return request, nil
}

// Approve settles a pending request: the recipient pays the sender. The
// status transition, balance check and both balance writes commit together,
// so a concurrent second approval or an insufficient balance leaves the
// request untouched.
func (m *Machine) Approve(actor security.ActorContext, requestID int64) error {
	request, err := m.loadRequest(requestID)
	if err != nil {
		return err
	}
	if !request.RecipientID.Valid || request.RecipientID.Int64 != actor.UserID {
		return apperrors.Forbidden("only the recipient can approve a request")
	}
	if request.Kind != models.KindRequest {
		return apperrors.Validation("INVALID_KIND", "only money requests can be approved")
	}

	dbTx, err := m.db.Begin()
	if err != nil {
		return err
	}
	defer dbTx.Rollback()

	// The status guard is the concurrency gate: if another approval or a
	// rejection got there first, zero rows change and nothing settles.
	res, err := dbTx.Exec(`
	UPDATE reimbursement_requests SET status = ?, updated_at = CURRENT_TIMESTAMP
	WHERE id = ? AND status = ?`,
		models.StatusApproved, requestID, models.StatusPending)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return apperrors.Conflict("ALREADY_PROCESSED", "request is no longer pending")
	}

	if err := m.settle(dbTx, actor.UserID, request.SenderID, request.Amount, 0); err != nil {
		return err
	}
	if err := dbTx.Commit(); err != nil {
		return err
	}

	m.notify(actor.UserID, request.SenderID)
	logger.L.Info("Request approved",
		"requestID", requestID, "payerID", actor.UserID,
		"payeeID", request.SenderID, "amount", request.Amount)
	return nil
}

// Reject declines a pending request. Either party can reject; no money moves.
func (m *Machine) Reject(actor security.ActorContext, requestID int64) error {
	request, err := m.loadRequest(requestID)
	if err != nil {
		return err
	}
	isRecipient := request.RecipientID.Valid && request.RecipientID.Int64 == actor.UserID
	if request.SenderID != actor.UserID && !isRecipient {
		return apperrors.Forbidden("not a party to this request")
	}

	res, err := m.db.Exec(`
	UPDATE reimbursement_requests SET status = ?, updated_at = CURRENT_TIMESTAMP
	WHERE id = ? AND status = ?`,
		models.StatusRejected, requestID, models.StatusPending)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return apperrors.Conflict("ALREADY_PROCESSED", "request is no longer pending")
	}
	return nil
}

// Cancel deletes a pending request. Only the sender can cancel, and only
// while nothing has settled.
func (m *Machine) Cancel(actor security.ActorContext, requestID int64) error {
	request, err := m.loadRequest(requestID)
	if err != nil {
		return err
	}
	if request.SenderID != actor.UserID {
		return apperrors.Forbidden("only the sender can cancel a request")
	}

	res, err := m.db.Exec(
		`DELETE FROM reimbursement_requests WHERE id = ? AND status = ?`,
		requestID, models.StatusPending)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return apperrors.Conflict("ALREADY_PROCESSED", "request is no longer pending")
	}
	return nil
}

// ToggleFlag flips the review flag on a request the actor is party to (or any
// request, for admins) and returns the new value.
func (m *Machine) ToggleFlag(actor security.ActorContext, requestID int64) (bool, error) {
	request, err := m.loadRequest(requestID)
	if err != nil {
		return false, err
	}
	isRecipient := request.RecipientID.Valid && request.RecipientID.Int64 == actor.UserID
	if request.SenderID != actor.UserID && !isRecipient && !actor.IsAdmin() {
		return false, apperrors.Forbidden("not a party to this request")
	}

	newFlag := !request.IsFlagged
	_, err = m.db.Exec(
		`UPDATE reimbursement_requests SET is_flagged = ? WHERE id = ?`,
		newFlag, requestID)
	if err != nil {
		return false, err
	}
	return newFlag, nil
}

func (m *Machine) loadRequest(requestID int64) (*models.ReimbursementRequest, error) {
	request, err := models.RequestByID(m.db, requestID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperrors.NotFound("request not found")
		}
		return nil, err
	}
	return request, nil
}

// settle moves amount cents from payer to payee inside dbTx. A non-zero
// accountID restricts the debit to that single account; otherwise the payer's
// accounts are drained largest-first until the amount is covered. The credit
// always lands on the payee's primary account.
func (m *Machine) settle(dbTx *sql.Tx, payerID, payeeID, amount, accountID int64) error {
	if accountID != 0 {
		account, err := models.AccountByID(dbTx, payerID, accountID)
		if err != nil {
			if err == sql.ErrNoRows {
				return apperrors.NotFound("account not found")
			}
			return err
		}
		res, err := dbTx.Exec(`
		UPDATE user_accounts SET balance = balance - ?
		WHERE id = ? AND user_id = ? AND balance >= ?`,
			amount, accountID, payerID, amount)
		if err != nil {
			return err
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if affected == 0 {
			return &apperrors.InsufficientFunds{Balance: account.Balance, Requested: amount}
		}
	} else {
		total, err := models.TotalBalance(dbTx, payerID)
		if err != nil {
			return err
		}
		if total < amount {
			return &apperrors.InsufficientFunds{Balance: total, Requested: amount}
		}

		accounts, err := models.AccountsByUser(dbTx, payerID)
		if err != nil {
			return err
		}
		// Largest balances first so the debit touches as few accounts as
		// possible.
		remaining := amount
		for remaining > 0 {
			var best *models.Account
			for i := range accounts {
				if accounts[i].Balance <= 0 {
					continue
				}
				if best == nil || accounts[i].Balance > best.Balance {
					best = &accounts[i]
				}
			}
			if best == nil {
				// The aggregate check above should make this unreachable.
				return fmt.Errorf("settlement underflow for user %d: %d cents uncovered", payerID, remaining)
			}
			debit := remaining
			if best.Balance < debit {
				debit = best.Balance
			}
			_, err := dbTx.Exec(
				`UPDATE user_accounts SET balance = balance - ? WHERE id = ?`,
				debit, best.ID)
			if err != nil {
				return err
			}
			best.Balance -= debit
			remaining -= debit
		}
	}

	payeeAccountID, err := models.PrimaryAccountID(dbTx, payeeID)
	if err != nil {
		if err == sql.ErrNoRows {
			// Recipient has no linked account. The request row is still the
			// record of the movement.
			logger.L.Warn("Settlement credit skipped, payee has no account",
				"payeeID", payeeID, "amount", amount)
			return nil
		}
		return err
	}
	_, err = dbTx.Exec(
		`UPDATE user_accounts SET balance = balance + ? WHERE id = ?`,
		amount, payeeAccountID)
	return err
}

// OverrideInput is the admin console's forced transition.
type OverrideInput struct {
	Status string
	Notes  string
}

// OverrideResult distinguishes the status write from the settlement attempt:
// the two commit separately, so an override can land while its settlement
// fails.
type OverrideResult struct {
	Request       *models.ReimbursementRequest
	SettlementErr error
}

// AdminOverride forces a request into the given status, recording who did it
// and why. When the override newly approves a request the settlement runs
// after the status commit in its own transaction; if it fails the status
// stands and the caller is told the books need manual reconciliation.
func (m *Machine) AdminOverride(actor security.ActorContext, requestID int64, input OverrideInput) (*OverrideResult, error) {
	if !actor.IsAdmin() {
		return nil, apperrors.Forbidden("admin access required")
	}
	switch input.Status {
	case models.StatusPending, models.StatusApproved, models.StatusRejected, models.StatusCompleted:
	default:
		return nil, apperrors.Validation("INVALID_STATUS", "unknown status")
	}

	request, err := m.loadRequest(requestID)
	if err != nil {
		return nil, err
	}
	previousStatus := request.Status

	_, err = m.db.Exec(`
	UPDATE reimbursement_requests
	SET status = ?, admin_id = ?, admin_notes = ?, admin_action_at = ?, updated_at = CURRENT_TIMESTAMP
	WHERE id = ?`,
		input.Status, actor.UserID, validation.StripUnprintable(input.Notes),
		time.Now().UTC(), requestID)
	if err != nil {
		return nil, err
	}

	result := &OverrideResult{}

	// Settle only when the override newly approves the request. Approved and
	// completed rows have already moved money, so re-marking one must not
	// settle twice.
	alreadySettled := previousStatus == models.StatusApproved || previousStatus == models.StatusCompleted
	if input.Status == models.StatusApproved && !alreadySettled {
		if request.RecipientID.Valid {
			dbTx, err := m.db.Begin()
			if err != nil {
				result.SettlementErr = err
			} else {
				err = m.settle(dbTx, request.RecipientID.Int64, request.SenderID, request.Amount, 0)
				if err == nil {
					err = dbTx.Commit()
				} else {
					dbTx.Rollback()
				}
				result.SettlementErr = err
			}
		} else {
			result.SettlementErr = apperrors.NotFound("recipient is not a registered user")
		}
		if result.SettlementErr != nil {
			logger.L.Error("Admin override settlement failed, manual_reconciliation required",
				"requestID", requestID, "adminID", actor.UserID,
				"amount", request.Amount, "error", result.SettlementErr)
		} else {
			m.notify(request.SenderID, request.RecipientID.Int64)
		}
	}

	updated, err := m.loadRequest(requestID)
	if err != nil {
		return nil, err
	}
	result.Request = updated

	logger.L.Info("Admin override applied",
		"requestID", requestID, "adminID", actor.UserID,
		"fromStatus", previousStatus, "toStatus", input.Status)
	return result, nil
}

// Listing passthroughs. Permission scoping happens here, not in models.

func (m *Machine) RequestsForUser(actor security.ActorContext) ([]models.RequestProjection, error) {
	return models.RequestsForUser(m.db, actor.UserID)
}

func (m *Machine) PendingApprovals(actor security.ActorContext) ([]models.RequestProjection, error) {
	return models.PendingRequestsForRecipient(m.db, actor.UserID)
}

func (m *Machine) AllRequests(actor security.ActorContext) ([]models.RequestProjection, error) {
	if !actor.IsAdmin() {
		return nil, apperrors.Forbidden("admin access required")
	}
	return models.AllRequests(m.db)
}

func (m *Machine) Projection(actor security.ActorContext, requestID int64) (*models.RequestProjection, error) {
	request, err := m.loadRequest(requestID)
	if err != nil {
		return nil, err
	}
	isRecipient := request.RecipientID.Valid && request.RecipientID.Int64 == actor.UserID
	if request.SenderID != actor.UserID && !isRecipient && !actor.IsAdmin() {
		return nil, apperrors.Forbidden("not a party to this request")
	}
	return models.ProjectionByID(m.db, requestID)
}
