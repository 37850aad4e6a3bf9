package models

import (
	"database/sql"
	"time"
)

const (
	DirectionIncome  = "income"
	DirectionExpense = "expense"

	SourceManual   = "manual"
	SourceImported = "imported"
	SourceClone    = "clone"
)

// Transaction is one ledger entry. Amount is unsigned integer cents; the sign
// lives in Direction. Imported rows are append-only once persisted.
type Transaction struct {
	ID         int64          `json:"id"`
	UserID     int64          `json:"user_id"`
	AccountID  sql.NullInt64  `json:"account_id"`
	Amount     int64          `json:"amount"`
	Direction  string         `json:"direction"`
	Date       string         `json:"date"`
	Name       string         `json:"name"`
	Category   string         `json:"category"`
	Source     string         `json:"source"`
	ExternalID sql.NullString `json:"external_id"`
	Notes      sql.NullString `json:"notes"`
	IsFlagged  bool           `json:"is_flagged"`
	CreatedAt  time.Time      `json:"created_at"`
}

// SignedAmount is the transaction's effect on a balance, in cents.
func (t *Transaction) SignedAmount() int64 {
	if t.Direction == DirectionIncome {
		return t.Amount
	}
	return -t.Amount
}

const transactionColumns = `id, user_id, account_id, amount, direction, date,
	COALESCE(name, ''), COALESCE(category, ''), source, external_id, notes, is_flagged`

func scanTransaction(row interface{ Scan(...any) error }) (*Transaction, error) {
	var t Transaction
	err := row.Scan(&t.ID, &t.UserID, &t.AccountID, &t.Amount, &t.Direction,
		&t.Date, &t.Name, &t.Category, &t.Source, &t.ExternalID, &t.Notes, &t.IsFlagged)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// InsertTransaction inserts the transaction and sets its id.
func InsertTransaction(db DBTX, t *Transaction) error {
	res, err := db.Exec(`
	INSERT INTO user_transactions (user_id, account_id, amount, direction, date, name, category, source, external_id, notes, is_flagged)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.UserID, t.AccountID, t.Amount, t.Direction, t.Date, t.Name, t.Category,
		t.Source, t.ExternalID, t.Notes, t.IsFlagged)
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	t.ID = id
	return nil
}

// InsertImportedTransaction inserts an imported row, relying on the
// UNIQUE(user_id, external_id) constraint rather than a pre-check so that two
// concurrent imports cannot both slip past it. Returns false when the external
// id was already present.
func InsertImportedTransaction(db DBTX, t *Transaction) (bool, error) {
	res, err := db.Exec(`
	INSERT INTO user_transactions (user_id, account_id, amount, direction, date, name, category, source, external_id)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(user_id, external_id) DO NOTHING`,
		t.UserID, t.AccountID, t.Amount, t.Direction, t.Date, t.Name, t.Category,
		SourceImported, t.ExternalID)
	if err != nil {
		return false, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if affected == 0 {
		return false, nil
	}
	if id, err := res.LastInsertId(); err == nil {
		t.ID = id
	}
	return true, nil
}

// TransactionByID returns the transaction only when it belongs to the user.
func TransactionByID(db DBTX, userID, id int64) (*Transaction, error) {
	return scanTransaction(db.QueryRow(
		`SELECT `+transactionColumns+` FROM user_transactions WHERE id = ? AND user_id = ?`,
		id, userID))
}

// TransactionsByUser lists the user's transactions, optionally scoped to one
// account, newest first.
func TransactionsByUser(db DBTX, userID int64, accountID int64) ([]Transaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM user_transactions WHERE user_id = ?`
	args := []any{userID}
	if accountID != 0 {
		query += ` AND account_id = ?`
		args = append(args, accountID)
	}
	query += ` ORDER BY date DESC, id DESC`

	rows, err := db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectTransactions(rows)
}

// ManualDelta sums the signed amounts of the user's manual transactions
// against one account, in cents.
func ManualDelta(db DBTX, userID, accountID int64) (int64, error) {
	var delta sql.NullInt64
	err := db.QueryRow(`
	SELECT SUM(CASE direction WHEN 'income' THEN amount ELSE -amount END)
	FROM user_transactions
	WHERE user_id = ? AND account_id = ? AND source = 'manual'`,
		userID, accountID).Scan(&delta)
	if err != nil {
		return 0, err
	}
	return delta.Int64, nil
}

// QueryTransactions runs a filtered select over the standard transaction
// columns; clause holds everything after FROM (WHERE/ORDER BY).
func QueryTransactions(db DBTX, clause string, args ...any) ([]Transaction, error) {
	rows, err := db.Query(
		`SELECT `+transactionColumns+` FROM user_transactions `+clause, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectTransactions(rows)
}

func collectTransactions(rows *sql.Rows) ([]Transaction, error) {
	var txs []Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		txs = append(txs, *t)
	}
	return txs, rows.Err()
}
