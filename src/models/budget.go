package models

import (
	"database/sql"
	"fmt"
)

// BudgetLimit is a per-category spending limit for one month.
type BudgetLimit struct {
	UserID      int64  `json:"user_id"`
	Category    string `json:"category"`
	Year        int    `json:"year"`
	Month       int    `json:"month"`
	LimitAmount int64  `json:"limit_amount"`
}

// UpsertBudget sets or replaces the limit for one user/category/month.
func UpsertBudget(db DBTX, b *BudgetLimit) error {
	_, err := db.Exec(`
	INSERT INTO budgets (user_id, category, year, month, limit_amount)
	VALUES (?, ?, ?, ?, ?)
	ON CONFLICT(user_id, category, year, month) DO UPDATE SET
		limit_amount = excluded.limit_amount`,
		b.UserID, b.Category, b.Year, b.Month, b.LimitAmount)
	return err
}

// BudgetsForMonth lists the user's limits for one month.
func BudgetsForMonth(db DBTX, userID int64, year, month int) ([]BudgetLimit, error) {
	rows, err := db.Query(`
	SELECT user_id, category, year, month, limit_amount
	FROM budgets WHERE user_id = ? AND year = ? AND month = ?`, userID, year, month)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var limits []BudgetLimit
	for rows.Next() {
		var b BudgetLimit
		if err := rows.Scan(&b.UserID, &b.Category, &b.Year, &b.Month, &b.LimitAmount); err != nil {
			return nil, err
		}
		limits = append(limits, b)
	}
	return limits, rows.Err()
}

// DeleteBudget removes one limit; returns true when a row was deleted.
func DeleteBudget(db DBTX, userID int64, category string, year, month int) (bool, error) {
	res, err := db.Exec(`
	DELETE FROM budgets WHERE user_id = ? AND category = ? AND year = ? AND month = ?`,
		userID, category, year, month)
	if err != nil {
		return false, err
	}
	affected, err := res.RowsAffected()
	return affected > 0, err
}

// SpendingByCategory sums the user's expense transactions per category for one
// month. Dates are stored as ISO strings so a prefix match selects the month.
func SpendingByCategory(db DBTX, userID int64, year, month int) (map[string]int64, error) {
	prefix := fmt.Sprintf("%04d-%02d", year, month)
	rows, err := db.Query(`
	SELECT COALESCE(category, ''), SUM(amount)
	FROM user_transactions
	WHERE user_id = ? AND direction = 'expense' AND date LIKE ?
	GROUP BY category`, userID, prefix+"%")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	spending := make(map[string]int64)
	for rows.Next() {
		var category string
		var total sql.NullInt64
		if err := rows.Scan(&category, &total); err != nil {
			return nil, err
		}
		spending[category] = total.Int64
	}
	return spending, rows.Err()
}
