package ledger

import (
	"strings"

	"github.com/shopspring/decimal"
	"github.com/username/limoney/backend/src/apperrors"
	"github.com/username/limoney/backend/src/models"
	"github.com/username/limoney/backend/src/security"
)

// SearchInput is a free-form ledger query. Empty fields are ignored.
type SearchInput struct {
	Name      string
	Category  string
	Direction string
	Amount    string // decimal dollars; matched within a ±25% band
	Sort      string
}

const (
	SortAmountAsc    = "amount_asc"
	SortAmountDesc   = "amount_desc"
	SortNewest       = "newest"
	SortOldest       = "oldest"
	SortFlaggedFirst = "flagged_first"
)

// Search filters the user's ledger. Text fields match case-insensitively as
// substrings. An amount query matches any transaction whose magnitude falls
// within 25% of the requested value, so "50" finds a 48.37 charge.
func (e *Engine) Search(actor security.ActorContext, input SearchInput) ([]models.Transaction, error) {
	var (
		clauses = []string{"user_id = ?"}
		args    = []any{actor.UserID}
	)

	// LIKE is case-insensitive for ASCII in SQLite.
	if name := strings.TrimSpace(input.Name); name != "" {
		clauses = append(clauses, "name LIKE ?")
		args = append(args, "%"+name+"%")
	}
	if category := strings.TrimSpace(input.Category); category != "" {
		clauses = append(clauses, "category LIKE ?")
		args = append(args, "%"+category+"%")
	}
	if input.Direction != "" {
		if input.Direction != models.DirectionIncome && input.Direction != models.DirectionExpense {
			return nil, apperrors.Validation("INVALID_DIRECTION", "direction must be 'income' or 'expense'")
		}
		clauses = append(clauses, "direction = ?")
		args = append(args, input.Direction)
	}
	if amount := strings.TrimSpace(input.Amount); amount != "" {
		target, err := decimal.NewFromString(amount)
		if err != nil || target.IsNegative() {
			return nil, apperrors.Validation("INVALID_AMOUNT", "amount must be a non-negative number")
		}
		cents := target.Mul(decimal.NewFromInt(100))
		low := cents.Mul(decimal.NewFromFloat(0.75)).Round(0).IntPart()
		high := cents.Mul(decimal.NewFromFloat(1.25)).Round(0).IntPart()
		clauses = append(clauses, "amount BETWEEN ? AND ?")
		args = append(args, low, high)
	}

	order, err := orderClause(input.Sort)
	if err != nil {
		return nil, err
	}

	query := "WHERE " + strings.Join(clauses, " AND ") + " " + order
	return models.QueryTransactions(e.db, query, args...)
}

func orderClause(sort string) (string, error) {
	switch sort {
	case "", SortNewest:
		return "ORDER BY date DESC, id DESC", nil
	case SortOldest:
		return "ORDER BY date ASC, id ASC", nil
	case SortAmountAsc:
		return "ORDER BY amount ASC, id ASC", nil
	case SortAmountDesc:
		return "ORDER BY amount DESC, id ASC", nil
	case SortFlaggedFirst:
		return "ORDER BY is_flagged DESC, date DESC, id DESC", nil
	default:
		return "", apperrors.Validation("INVALID_SORT", "unknown sort option")
	}
}

// FlaggedTransactions returns every flagged transaction across all users.
// Admin only.
func (e *Engine) FlaggedTransactions(actor security.ActorContext) ([]models.Transaction, error) {
	if !actor.IsAdmin() {
		return nil, apperrors.Forbidden("admin access required")
	}
	return models.QueryTransactions(e.db,
		`WHERE is_flagged = 1 ORDER BY date DESC, id DESC`)
}

// ClearFlag lets an admin resolve a flagged transaction belonging to any user.
func (e *Engine) ClearFlag(actor security.ActorContext, txID int64) error {
	if !actor.IsAdmin() {
		return apperrors.Forbidden("admin access required")
	}
	res, err := e.db.Exec(
		`UPDATE user_transactions SET is_flagged = 0 WHERE id = ?`, txID)
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
