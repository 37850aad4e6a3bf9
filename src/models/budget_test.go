package models

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/username/limoney/backend/src/database"
)

func setupBudgetDB(t *testing.T) int64 {
	t.Helper()
	database.InitDB(filepath.Join(t.TempDir(), "test.db"))
	user := &User{Username: "alice", Email: "alice@example.com", Password: "x"}
	require.NoError(t, user.CreateUser(database.DB))
	return user.ID
}

func TestUpsertBudgetReplacesLimit(t *testing.T) {
	userID := setupBudgetDB(t)

	limit := &BudgetLimit{UserID: userID, Category: "Groceries", Year: 2026, Month: 8, LimitAmount: 40000}
	require.NoError(t, UpsertBudget(database.DB, limit))

	limit.LimitAmount = 50000
	require.NoError(t, UpsertBudget(database.DB, limit))

	limits, err := BudgetsForMonth(database.DB, userID, 2026, 8)
	require.NoError(t, err)
	require.Len(t, limits, 1)
	assert.Equal(t, int64(50000), limits[0].LimitAmount)
}

func TestSpendingByCategorySelectsTheMonth(t *testing.T) {
	userID := setupBudgetDB(t)

	seed := []Transaction{
		{UserID: userID, Amount: 2500, Direction: DirectionExpense, Date: "2026-08-01", Name: "A", Category: "Groceries", Source: SourceManual},
		{UserID: userID, Amount: 1500, Direction: DirectionExpense, Date: "2026-08-20", Name: "B", Category: "Groceries", Source: SourceManual},
		{UserID: userID, Amount: 9999, Direction: DirectionExpense, Date: "2026-07-31", Name: "C", Category: "Groceries", Source: SourceManual},
		{UserID: userID, Amount: 100000, Direction: DirectionIncome, Date: "2026-08-15", Name: "D", Category: "Income", Source: SourceManual},
	}
	for i := range seed {
		require.NoError(t, InsertTransaction(database.DB, &seed[i]))
	}

	spending, err := SpendingByCategory(database.DB, userID, 2026, 8)
	require.NoError(t, err)

	assert.Equal(t, int64(4000), spending["Groceries"], "only the requested month's expenses count")
	_, hasIncome := spending["Income"]
	assert.False(t, hasIncome, "income never counts toward spending")
}

func TestDeleteBudget(t *testing.T) {
	userID := setupBudgetDB(t)

	limit := &BudgetLimit{UserID: userID, Category: "Groceries", Year: 2026, Month: 8, LimitAmount: 40000}
	require.NoError(t, UpsertBudget(database.DB, limit))

	deleted, err := DeleteBudget(database.DB, userID, "Groceries", 2026, 8)
	require.NoError(t, err)
	assert.True(t, deleted)

	deleted, err = DeleteBudget(database.DB, userID, "Groceries", 2026, 8)
	require.NoError(t, err)
	assert.False(t, deleted)
}
