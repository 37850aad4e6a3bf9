package models

import (
	"database/sql"
	"time"
)

// Account is one financial account owned by one user. Balance is the
// provider-reported baseline in integer cents; the display balance layers the
// user's manual transactions on top (see ledger.Engine.AccountsWithBalance).
type Account struct {
	ID                int64     `json:"id"`
	UserID            int64     `json:"user_id"`
	ExternalAccountID string    `json:"external_account_id"`
	Name              string    `json:"name"`
	OfficialName      string    `json:"official_name"`
	Kind              string    `json:"kind"`
	Subtype           string    `json:"subtype"`
	Balance           int64     `json:"balance"`
	InstitutionName   string    `json:"institution_name"`
	CreatedAt         time.Time `json:"created_at"`
}

const accountColumns = `id, user_id, external_account_id, COALESCE(name, ''),
	COALESCE(official_name, ''), COALESCE(kind, ''), COALESCE(subtype, ''),
	balance, COALESCE(institution_name, '')`

func scanAccount(row interface{ Scan(...any) error }) (*Account, error) {
	var a Account
	err := row.Scan(&a.ID, &a.UserID, &a.ExternalAccountID, &a.Name,
		&a.OfficialName, &a.Kind, &a.Subtype, &a.Balance, &a.InstitutionName)
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// UpsertAccount inserts the account or, when the (user, external id) pair
// already exists, overwrites its display metadata and reported balance.
// Returns true when a new row was created.
func UpsertAccount(db DBTX, a *Account) (bool, error) {
	var existingID int64
	err := db.QueryRow(
		`SELECT id FROM user_accounts WHERE user_id = ? AND external_account_id = ?`,
		a.UserID, a.ExternalAccountID).Scan(&existingID)
	created := err == sql.ErrNoRows
	if err != nil && err != sql.ErrNoRows {
		return false, err
	}

	// The conflict clause keeps concurrent imports from racing past the
	// existence check above.
	res, err := db.Exec(`
	INSERT INTO user_accounts (user_id, external_account_id, name, official_name, kind, subtype, balance, institution_name)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(user_id, external_account_id) DO UPDATE SET
		name = excluded.name,
		official_name = excluded.official_name,
		kind = excluded.kind,
		subtype = excluded.subtype,
		balance = excluded.balance,
		institution_name = excluded.institution_name`,
		a.UserID, a.ExternalAccountID, a.Name, a.OfficialName, a.Kind, a.Subtype,
		a.Balance, a.InstitutionName)
	if err != nil {
		return false, err
	}
	if created {
		if id, err := res.LastInsertId(); err == nil {
			a.ID = id
		}
	} else {
		a.ID = existingID
	}
	return created, nil
}

// AccountsByUser returns all accounts owned by the user.
func AccountsByUser(db DBTX, userID int64) ([]Account, error) {
	rows, err := db.Query(
		`SELECT `+accountColumns+` FROM user_accounts WHERE user_id = ? ORDER BY id`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var accounts []Account
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, *a)
	}
	return accounts, rows.Err()
}

// AccountByID returns the account only when it belongs to the user.
func AccountByID(db DBTX, userID, accountID int64) (*Account, error) {
	a, err := scanAccount(db.QueryRow(
		`SELECT `+accountColumns+` FROM user_accounts WHERE id = ? AND user_id = ?`,
		accountID, userID))
	if err != nil {
		return nil, err
	}
	return a, nil
}

// TotalBalance sums the reported balances across all the user's accounts.
func TotalBalance(db DBTX, userID int64) (int64, error) {
	var total sql.NullInt64
	err := db.QueryRow(
		`SELECT SUM(balance) FROM user_accounts WHERE user_id = ?`, userID).Scan(&total)
	if err != nil {
		return 0, err
	}
	return total.Int64, nil
}

// PrimaryAccountID is the user's first account; credits land there.
func PrimaryAccountID(db DBTX, userID int64) (int64, error) {
	var id int64
	err := db.QueryRow(
		`SELECT id FROM user_accounts WHERE user_id = ? ORDER BY id LIMIT 1`, userID).Scan(&id)
	if err != nil {
		return 0, err
	}
	return id, nil
}
