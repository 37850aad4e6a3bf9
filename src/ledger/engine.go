// Package ledger is the reconciliation engine: it keeps each user's local
// transaction ledger and account balances consistent with externally imported
// snapshots and user-entered manual records, without double-counting.
package ledger

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/username/limoney/backend/src/apperrors"
	"github.com/username/limoney/backend/src/bankdata"
	"github.com/username/limoney/backend/src/logger"
	"github.com/username/limoney/backend/src/models"
	"github.com/username/limoney/backend/src/security"
	"github.com/username/limoney/backend/src/security/validation"
)

type Engine struct {
	db       *sql.DB
	onChange func(userID int64) // balance cache invalidation, may be nil
}

func NewEngine(db *sql.DB) *Engine {
	return &Engine{db: db}
}

// SetChangeListener registers a callback fired after every write that can
// move a display balance.
func (e *Engine) SetChangeListener(fn func(userID int64)) {
	e.onChange = fn
}

func (e *Engine) notify(userID int64) {
	if e.onChange != nil {
		e.onChange(userID)
	}
}

// ImportResult reports what a snapshot import actually persisted.
type ImportResult struct {
	NewAccounts     int `json:"new_accounts"`
	NewTransactions int `json:"new_transactions"`
}

// ImportSnapshot upserts the snapshot's accounts and inserts its transactions,
// skipping any external id already present for this user. Re-running the same
// import never creates duplicates: the uniqueness check is the storage-layer
// constraint, not a pre-check query.
//
// Sign convention: provider amounts < 0 are income; stored rows carry an
// unsigned cents amount plus a direction.
func (e *Engine) ImportSnapshot(userID int64, snapshot *bankdata.Snapshot) (ImportResult, error) {
	var result ImportResult

	accountIDs := make(map[string]int64, len(snapshot.Accounts))
	for _, ext := range snapshot.Accounts {
		account := &models.Account{
			UserID:            userID,
			ExternalAccountID: ext.AccountID,
			Name:              ext.Name,
			OfficialName:      ext.OfficialName,
			Kind:              ext.Type,
			Subtype:           ext.Subtype,
			Balance:           bankdata.Cents(ext.CurrentBalance),
			InstitutionName:   snapshot.InstitutionName,
		}
		created, err := models.UpsertAccount(e.db, account)
		if err != nil {
			return result, fmt.Errorf("upserting account %s: %w", ext.AccountID, err)
		}
		accountIDs[ext.AccountID] = account.ID
		if created {
			result.NewAccounts++
		}
	}

	for _, ext := range snapshot.Transactions {
		direction := models.DirectionExpense
		if ext.Amount.IsNegative() {
			direction = models.DirectionIncome
		}

		tx := &models.Transaction{
			UserID:     userID,
			Amount:     bankdata.Cents(ext.Amount.Abs()),
			Direction:  direction,
			Date:       ext.Date,
			Name:       ext.Name,
			Category:   NormalizeCategory(ext.Category),
			Source:     models.SourceImported,
			ExternalID: sql.NullString{String: ext.TransactionID, Valid: true},
		}
		if internalID, ok := accountIDs[ext.AccountID]; ok {
			tx.AccountID = sql.NullInt64{Int64: internalID, Valid: true}
		}

		inserted, err := models.InsertImportedTransaction(e.db, tx)
		if err != nil {
			return result, fmt.Errorf("inserting imported transaction %s: %w", ext.TransactionID, err)
		}
		if inserted {
			result.NewTransactions++
		}
	}

	e.notify(userID)
	logger.L.Info("Snapshot imported",
		"userID", userID,
		"institution", snapshot.InstitutionName,
		"newAccounts", result.NewAccounts,
		"newTransactions", result.NewTransactions)
	return result, nil
}

// ManualTransactionInput is a user-entered ledger record.
type ManualTransactionInput struct {
	AccountID int64 // optional; 0 means no account
	Amount    int64 // cents
	Direction string
	Date      string
	Category  string
	Name      string
	Notes     string
}

// RecordManualTransaction validates and inserts a manual ledger entry. Manual
// entries are record-keeping, not transfers: no balance check. Future dates
// are allowed.
func (e *Engine) RecordManualTransaction(actor security.ActorContext, input ManualTransactionInput) (*models.Transaction, error) {
	if input.Amount <= 0 {
		return nil, apperrors.Validation("INVALID_AMOUNT", "amount must be greater than 0")
	}
	if input.Direction != models.DirectionIncome && input.Direction != models.DirectionExpense {
		return nil, apperrors.Validation("INVALID_DIRECTION", "direction must be 'income' or 'expense'")
	}
	if _, err := time.Parse("2006-01-02", input.Date); err != nil {
		return nil, apperrors.Validation("INVALID_DATE", "date must be a valid calendar date (YYYY-MM-DD)")
	}

	tx := &models.Transaction{
		UserID:    actor.UserID,
		Amount:    input.Amount,
		Direction: input.Direction,
		Date:      input.Date,
		Name:      validation.StripUnprintable(input.Name),
		Category:  NormalizeCategory(input.Category),
		Source:    models.SourceManual,
	}
	if input.AccountID != 0 {
		if _, err := models.AccountByID(e.db, actor.UserID, input.AccountID); err != nil {
			if err == sql.ErrNoRows {
				return nil, apperrors.NotFound("account not found")
			}
			return nil, err
		}
		tx.AccountID = sql.NullInt64{Int64: input.AccountID, Valid: true}
	}
	if input.Notes != "" {
		tx.Notes = sql.NullString{String: validation.StripUnprintable(input.Notes), Valid: true}
	}

	if err := models.InsertTransaction(e.db, tx); err != nil {
		return nil, err
	}
	e.notify(actor.UserID)
	return tx, nil
}

// UpdateTransactionInput mirrors the editable fields of a non-imported row.
type UpdateTransactionInput struct {
	Amount    int64
	Direction string
	Date      string
	Category  string
}

// UpdateTransaction edits a manual or cloned row. Imported rows are immutable
// apart from category, notes and the review flag.
func (e *Engine) UpdateTransaction(actor security.ActorContext, txID int64, input UpdateTransactionInput) error {
	if input.Amount <= 0 {
		return apperrors.Validation("INVALID_AMOUNT", "amount must be greater than 0")
	}
	if input.Direction != models.DirectionIncome && input.Direction != models.DirectionExpense {
		return apperrors.Validation("INVALID_DIRECTION", "direction must be 'income' or 'expense'")
	}
	if _, err := time.Parse("2006-01-02", input.Date); err != nil {
		return apperrors.Validation("INVALID_DATE", "date must be a valid calendar date (YYYY-MM-DD)")
	}

	existing, err := models.TransactionByID(e.db, actor.UserID, txID)
	if err != nil {
		if err == sql.ErrNoRows {
			return apperrors.NotFound("transaction not found")
		}
		return err
	}
	if existing.Source == models.SourceImported {
		return apperrors.Forbidden("imported transactions cannot be edited")
	}

	_, err = e.db.Exec(`
	UPDATE user_transactions SET amount = ?, direction = ?, date = ?, category = ?
	WHERE id = ? AND user_id = ?`,
		input.Amount, input.Direction, input.Date, NormalizeCategory(input.Category), txID, actor.UserID)
	if err != nil {
		return err
	}
	e.notify(actor.UserID)
	return nil
}

// DeleteTransaction removes a manual or cloned row. Imported rows are
// append-only: deleting one fails with Forbidden to preserve ledger integrity
// against the external source of truth.
func (e *Engine) DeleteTransaction(actor security.ActorContext, txID int64) error {
	existing, err := models.TransactionByID(e.db, actor.UserID, txID)
	if err != nil {
		if err == sql.ErrNoRows {
			return apperrors.NotFound("transaction not found")
		}
		return err
	}
	if existing.Source == models.SourceImported {
		return apperrors.Forbidden("imported transactions cannot be deleted")
	}

	_, err = e.db.Exec(
		`DELETE FROM user_transactions WHERE id = ? AND user_id = ?`, txID, actor.UserID)
	if err != nil {
		return err
	}
	e.notify(actor.UserID)
	return nil
}

// UpdateNotes replaces the free-form notes on a transaction the user owns.
func (e *Engine) UpdateNotes(actor security.ActorContext, txID int64, notes string) error {
	res, err := e.db.Exec(`
	UPDATE user_transactions SET notes = ? WHERE id = ? AND user_id = ?`,
		validation.StripUnprintable(notes), txID, actor.UserID)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return apperrors.NotFound("transaction not found")
	}
	return nil
}

// ToggleFlag flips the review flag and returns the new value. Safe to retry.
func (e *Engine) ToggleFlag(actor security.ActorContext, txID int64) (bool, error) {
	existing, err := models.TransactionByID(e.db, actor.UserID, txID)
	if err != nil {
		if err == sql.ErrNoRows {
			return false, apperrors.NotFound("transaction not found")
		}
		return false, err
	}

	newFlag := !existing.IsFlagged
	_, err = e.db.Exec(`
	UPDATE user_transactions SET is_flagged = ? WHERE id = ? AND user_id = ?`,
		newFlag, txID, actor.UserID)
	if err != nil {
		return false, err
	}
	return newFlag, nil
}

// List returns the user's transactions, optionally scoped to one account.
func (e *Engine) List(actor security.ActorContext, accountID int64) ([]models.Transaction, error) {
	return models.TransactionsByUser(e.db, actor.UserID, accountID)
}

// Recent returns transactions dated yesterday or later. The date column is
// day-granular, so the window is the current and previous calendar day rather
// than a rolling 24 hours.
func (e *Engine) Recent(actor security.ActorContext) ([]models.Transaction, error) {
	yesterday := time.Now().Add(-24 * time.Hour).Format("2006-01-02")
	return models.QueryTransactions(e.db,
		`WHERE user_id = ? AND date >= ? ORDER BY date DESC, id DESC`,
		actor.UserID, yesterday)
}

// ResetToTemplate clears the user's non-imported rows and clones the global
// template set in their place, in one transaction: partial resets must never
// surface as data loss.
func (e *Engine) ResetToTemplate(actor security.ActorContext) (int, error) {
	dbTx, err := e.db.Begin()
	if err != nil {
		return 0, err
	}
	defer dbTx.Rollback()

	_, err = dbTx.Exec(
		`DELETE FROM user_transactions WHERE user_id = ? AND source != 'imported'`,
		actor.UserID)
	if err != nil {
		return 0, err
	}

	rows, err := dbTx.Query(
		`SELECT amount, direction, date, name, category FROM template_transactions`)
	if err != nil {
		return 0, err
	}

	type template struct {
		amount    int64
		direction string
		date      string
		name      sql.NullString
		category  sql.NullString
	}
	var templates []template
	for rows.Next() {
		var t template
		if err := rows.Scan(&t.amount, &t.direction, &t.date, &t.name, &t.category); err != nil {
			rows.Close()
			return 0, err
		}
		templates = append(templates, t)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, err
	}

	for _, t := range templates {
		_, err := dbTx.Exec(`
		INSERT INTO user_transactions (user_id, amount, direction, date, name, category, source)
		VALUES (?, ?, ?, ?, ?, ?, 'clone')`,
			actor.UserID, t.amount, t.direction, t.date, t.name, t.category)
		if err != nil {
			return 0, err
		}
	}

	if err := dbTx.Commit(); err != nil {
		return 0, err
	}
	e.notify(actor.UserID)
	return len(templates), nil
}

// AccountWithBalance pairs an account with its display balance: the
// provider-reported baseline plus the signed sum of the user's manual
// transactions against it. The baseline already reflects imported
// transactions, so only manual ones are layered on.
type AccountWithBalance struct {
	models.Account
	DisplayBalance int64 `json:"display_balance"`
}

// AccountsWithBalance computes the display balance for every account the user
// owns. Pure read.
func (e *Engine) AccountsWithBalance(userID int64) ([]AccountWithBalance, error) {
	accounts, err := models.AccountsByUser(e.db, userID)
	if err != nil {
		return nil, err
	}

	out := make([]AccountWithBalance, 0, len(accounts))
	for _, account := range accounts {
		delta, err := models.ManualDelta(e.db, userID, account.ID)
		if err != nil {
			return nil, err
		}
		out = append(out, AccountWithBalance{
			Account:        account,
			DisplayBalance: account.Balance + delta,
		})
	}
	return out, nil
}
