package ledger

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/username/limoney/backend/src/apperrors"
	"github.com/username/limoney/backend/src/bankdata"
	"github.com/username/limoney/backend/src/database"
	"github.com/username/limoney/backend/src/models"
	"github.com/username/limoney/backend/src/security"
)

func setupEngine(t *testing.T) (*Engine, security.ActorContext) {
	t.Helper()
	database.InitDB(filepath.Join(t.TempDir(), "test.db"))

	user := &models.User{Username: "alice", Email: "alice@example.com", Password: "x"}
	require.NoError(t, user.CreateUser(database.DB))

	return NewEngine(database.DB), security.ActorContext{UserID: user.ID, Role: "standard"}
}

func testSnapshot() *bankdata.Snapshot {
	return &bankdata.Snapshot{
		InstitutionName: "Test Bank",
		Accounts: []bankdata.ExternalAccount{
			{
				AccountID:      "ext-checking",
				Name:           "Checking",
				Type:           "depository",
				Subtype:        "checking",
				CurrentBalance: decimal.NewFromFloat(1250.50),
			},
		},
		Transactions: []bankdata.ExternalTransaction{
			{
				TransactionID: "tx-1",
				AccountID:     "ext-checking",
				Name:          "Burger Palace",
				Amount:        decimal.NewFromFloat(12.50),
				Date:          "2026-08-01",
				Category:      "Fast Food",
			},
			{
				TransactionID: "tx-2",
				AccountID:     "ext-checking",
				Name:          "Payroll Deposit",
				Amount:        decimal.NewFromFloat(-2150.00),
				Date:          "2026-08-02",
				Category:      "Payroll",
			},
			{
				TransactionID: "tx-3",
				AccountID:     "ext-checking",
				Name:          "Mystery Merchant",
				Amount:        decimal.NewFromFloat(9.99),
				Date:          "2026-08-03",
				Category:      "Something Unrecognizable",
			},
		},
	}
}

func TestImportSnapshotIsIdempotent(t *testing.T) {
	engine, actor := setupEngine(t)

	first, err := engine.ImportSnapshot(actor.UserID, testSnapshot())
	require.NoError(t, err)
	assert.Equal(t, 1, first.NewAccounts)
	assert.Equal(t, 3, first.NewTransactions)

	second, err := engine.ImportSnapshot(actor.UserID, testSnapshot())
	require.NoError(t, err)
	assert.Equal(t, 0, second.NewAccounts)
	assert.Equal(t, 0, second.NewTransactions)

	transactions, err := engine.List(actor, 0)
	require.NoError(t, err)
	assert.Len(t, transactions, 3)
}

func TestImportNormalizesSignAndCategory(t *testing.T) {
	engine, actor := setupEngine(t)

	_, err := engine.ImportSnapshot(actor.UserID, testSnapshot())
	require.NoError(t, err)

	transactions, err := engine.List(actor, 0)
	require.NoError(t, err)

	byName := make(map[string]models.Transaction)
	for _, tx := range transactions {
		byName[tx.Name] = tx
	}

	payroll := byName["Payroll Deposit"]
	assert.Equal(t, models.DirectionIncome, payroll.Direction)
	assert.Equal(t, int64(215000), payroll.Amount) // unsigned cents
	assert.Equal(t, "Income", payroll.Category)
	assert.Equal(t, models.SourceImported, payroll.Source)

	burger := byName["Burger Palace"]
	assert.Equal(t, models.DirectionExpense, burger.Direction)
	assert.Equal(t, int64(1250), burger.Amount)
	assert.Equal(t, "Food/Dining", burger.Category)

	mystery := byName["Mystery Merchant"]
	assert.Equal(t, DefaultCategory, mystery.Category)
}

func TestRecordManualTransactionValidation(t *testing.T) {
	engine, actor := setupEngine(t)

	_, err := engine.RecordManualTransaction(actor, ManualTransactionInput{
		Amount: 0, Direction: models.DirectionExpense, Date: "2026-08-01", Name: "Zero",
	})
	assert.Equal(t, apperrors.KindValidation, apperrors.KindOf(err))
	assert.Equal(t, "INVALID_AMOUNT", apperrors.CodeOf(err))

	_, err = engine.RecordManualTransaction(actor, ManualTransactionInput{
		Amount: 100, Direction: "sideways", Date: "2026-08-01", Name: "Bad direction",
	})
	assert.Equal(t, "INVALID_DIRECTION", apperrors.CodeOf(err))

	_, err = engine.RecordManualTransaction(actor, ManualTransactionInput{
		Amount: 100, Direction: models.DirectionExpense, Date: "2026-13-45", Name: "Bad date",
	})
	assert.Equal(t, "INVALID_DATE", apperrors.CodeOf(err))

	// Account must belong to the actor.
	_, err = engine.RecordManualTransaction(actor, ManualTransactionInput{
		AccountID: 999, Amount: 100, Direction: models.DirectionExpense, Date: "2026-08-01", Name: "Ghost account",
	})
	assert.Equal(t, apperrors.KindNotFound, apperrors.KindOf(err))
}

func TestRecordManualTransactionAllowsFutureDates(t *testing.T) {
	engine, actor := setupEngine(t)

	tx, err := engine.RecordManualTransaction(actor, ManualTransactionInput{
		Amount: 5000, Direction: models.DirectionExpense, Date: "2030-01-01",
		Name: "Planned purchase", Category: "Groceries",
	})
	require.NoError(t, err)
	assert.NotZero(t, tx.ID)
	assert.Equal(t, models.SourceManual, tx.Source)
}

func TestImportedTransactionsAreImmutable(t *testing.T) {
	engine, actor := setupEngine(t)

	_, err := engine.ImportSnapshot(actor.UserID, testSnapshot())
	require.NoError(t, err)

	transactions, err := engine.List(actor, 0)
	require.NoError(t, err)
	imported := transactions[0]

	err = engine.DeleteTransaction(actor, imported.ID)
	assert.Equal(t, apperrors.KindForbidden, apperrors.KindOf(err))

	err = engine.UpdateTransaction(actor, imported.ID, UpdateTransactionInput{
		Amount: 100, Direction: models.DirectionExpense, Date: "2026-08-01",
	})
	assert.Equal(t, apperrors.KindForbidden, apperrors.KindOf(err))

	// Notes and flags stay editable on imported rows.
	require.NoError(t, engine.UpdateNotes(actor, imported.ID, "double-check this one"))
	flagged, err := engine.ToggleFlag(actor, imported.ID)
	require.NoError(t, err)
	assert.True(t, flagged)
}

func TestDeleteManualTransaction(t *testing.T) {
	engine, actor := setupEngine(t)

	tx, err := engine.RecordManualTransaction(actor, ManualTransactionInput{
		Amount: 1500, Direction: models.DirectionExpense, Date: "2026-08-10", Name: "Lunch",
	})
	require.NoError(t, err)

	require.NoError(t, engine.DeleteTransaction(actor, tx.ID))

	err = engine.DeleteTransaction(actor, tx.ID)
	assert.Equal(t, apperrors.KindNotFound, apperrors.KindOf(err))
}

func TestDeleteTransactionOwnership(t *testing.T) {
	engine, actor := setupEngine(t)

	other := &models.User{Username: "mallory", Email: "mallory@example.com", Password: "x"}
	require.NoError(t, other.CreateUser(database.DB))

	tx, err := engine.RecordManualTransaction(actor, ManualTransactionInput{
		Amount: 1500, Direction: models.DirectionExpense, Date: "2026-08-10", Name: "Lunch",
	})
	require.NoError(t, err)

	// Another user sees NotFound, not Forbidden: no existence leak.
	err = engine.DeleteTransaction(security.ActorContext{UserID: other.ID, Role: "standard"}, tx.ID)
	assert.Equal(t, apperrors.KindNotFound, apperrors.KindOf(err))
}

func TestRecentUsesDayGranularWindow(t *testing.T) {
	engine, actor := setupEngine(t)

	today := time.Now().Format("2006-01-02")
	yesterday := time.Now().Add(-24 * time.Hour).Format("2006-01-02")
	lastWeek := time.Now().Add(-7 * 24 * time.Hour).Format("2006-01-02")

	seed := []ManualTransactionInput{
		{Amount: 100, Direction: models.DirectionExpense, Date: today, Name: "Today"},
		{Amount: 200, Direction: models.DirectionExpense, Date: yesterday, Name: "Yesterday"},
		{Amount: 300, Direction: models.DirectionExpense, Date: lastWeek, Name: "Last week"},
	}
	for _, input := range seed {
		_, err := engine.RecordManualTransaction(actor, input)
		require.NoError(t, err)
	}

	recent, err := engine.Recent(actor)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	for _, tx := range recent {
		assert.NotEqual(t, "Last week", tx.Name)
	}
}

func TestToggleFlagFlipsBothWays(t *testing.T) {
	engine, actor := setupEngine(t)

	tx, err := engine.RecordManualTransaction(actor, ManualTransactionInput{
		Amount: 100, Direction: models.DirectionExpense, Date: "2026-08-10", Name: "Flip",
	})
	require.NoError(t, err)

	flagged, err := engine.ToggleFlag(actor, tx.ID)
	require.NoError(t, err)
	assert.True(t, flagged)

	flagged, err = engine.ToggleFlag(actor, tx.ID)
	require.NoError(t, err)
	assert.False(t, flagged)
}

func TestSearchFilters(t *testing.T) {
	engine, actor := setupEngine(t)

	seed := []ManualTransactionInput{
		{Amount: 4800, Direction: models.DirectionExpense, Date: "2026-08-01", Name: "Corner Grocery", Category: "Groceries"},
		{Amount: 5000, Direction: models.DirectionExpense, Date: "2026-08-02", Name: "Grocery Run", Category: "Groceries"},
		{Amount: 7000, Direction: models.DirectionExpense, Date: "2026-08-03", Name: "Fancy Dinner", Category: "Food/Dining"},
		{Amount: 215000, Direction: models.DirectionIncome, Date: "2026-08-04", Name: "Paycheck", Category: "Income"},
	}
	for _, input := range seed {
		_, err := engine.RecordManualTransaction(actor, input)
		require.NoError(t, err)
	}

	// Name substring, case-insensitive.
	results, err := engine.Search(actor, SearchInput{Name: "grocery"})
	require.NoError(t, err)
	assert.Len(t, results, 2)

	// Amount band: $50 matches 48.00 and 50.00 but not 70.00.
	results, err = engine.Search(actor, SearchInput{Amount: "50"})
	require.NoError(t, err)
	require.Len(t, results, 2)
	for _, tx := range results {
		assert.LessOrEqual(t, tx.Amount, int64(6250))
		assert.GreaterOrEqual(t, tx.Amount, int64(3750))
	}

	// Direction filter.
	results, err = engine.Search(actor, SearchInput{Direction: models.DirectionIncome})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "Paycheck", results[0].Name)

	// Sort by amount ascending.
	results, err = engine.Search(actor, SearchInput{Sort: SortAmountAsc})
	require.NoError(t, err)
	require.Len(t, results, 4)
	assert.Equal(t, int64(4800), results[0].Amount)
	assert.Equal(t, int64(215000), results[3].Amount)

	_, err = engine.Search(actor, SearchInput{Sort: "by-vibes"})
	assert.Equal(t, "INVALID_SORT", apperrors.CodeOf(err))

	_, err = engine.Search(actor, SearchInput{Amount: "-3"})
	assert.Equal(t, "INVALID_AMOUNT", apperrors.CodeOf(err))
}

func TestSearchScopedToUser(t *testing.T) {
	engine, actor := setupEngine(t)

	other := &models.User{Username: "bob", Email: "bob@example.com", Password: "x"}
	require.NoError(t, other.CreateUser(database.DB))
	otherActor := security.ActorContext{UserID: other.ID, Role: "standard"}

	_, err := engine.RecordManualTransaction(actor, ManualTransactionInput{
		Amount: 100, Direction: models.DirectionExpense, Date: "2026-08-01", Name: "Alice Coffee",
	})
	require.NoError(t, err)

	results, err := engine.Search(otherActor, SearchInput{Name: "coffee"})
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestResetToTemplateIsAtomicAndKeepsImports(t *testing.T) {
	engine, actor := setupEngine(t)

	_, err := engine.ImportSnapshot(actor.UserID, testSnapshot())
	require.NoError(t, err)
	_, err = engine.RecordManualTransaction(actor, ManualTransactionInput{
		Amount: 1200, Direction: models.DirectionExpense, Date: "2026-08-05", Name: "Doomed",
	})
	require.NoError(t, err)

	_, err = database.DB.Exec(`
	INSERT INTO template_transactions (amount, direction, date, name, category) VALUES
	(2500, 'expense', '2026-01-15', 'Template Groceries', 'Groceries'),
	(500000, 'income', '2026-01-01', 'Template Salary', 'Income')`)
	require.NoError(t, err)

	cloned, err := engine.ResetToTemplate(actor)
	require.NoError(t, err)
	assert.Equal(t, 2, cloned)

	transactions, err := engine.List(actor, 0)
	require.NoError(t, err)

	var imported, clones, manual int
	for _, tx := range transactions {
		switch tx.Source {
		case models.SourceImported:
			imported++
		case models.SourceClone:
			clones++
		case models.SourceManual:
			manual++
		}
	}
	assert.Equal(t, 3, imported, "imported rows survive a reset")
	assert.Equal(t, 2, clones)
	assert.Equal(t, 0, manual, "manual rows are cleared")
}

func TestAccountsWithBalanceLayersManualDelta(t *testing.T) {
	engine, actor := setupEngine(t)

	_, err := engine.ImportSnapshot(actor.UserID, testSnapshot())
	require.NoError(t, err)

	accounts, err := engine.AccountsWithBalance(actor.UserID)
	require.NoError(t, err)
	require.Len(t, accounts, 1)
	assert.Equal(t, int64(125050), accounts[0].DisplayBalance)

	// Manual expense against the account lowers the display balance; the
	// imported baseline stays put.
	_, err = engine.RecordManualTransaction(actor, ManualTransactionInput{
		AccountID: accounts[0].ID, Amount: 5050,
		Direction: models.DirectionExpense, Date: "2026-08-06", Name: "Cash withdrawal",
	})
	require.NoError(t, err)

	accounts, err = engine.AccountsWithBalance(actor.UserID)
	require.NoError(t, err)
	assert.Equal(t, int64(120000), accounts[0].DisplayBalance)
	assert.Equal(t, int64(125050), accounts[0].Balance)
}

func TestFlaggedTransactionsRequiresAdmin(t *testing.T) {
	engine, actor := setupEngine(t)

	_, err := engine.FlaggedTransactions(actor)
	assert.Equal(t, apperrors.KindForbidden, apperrors.KindOf(err))

	admin := security.ActorContext{UserID: actor.UserID, Role: "admin"}
	tx, err := engine.RecordManualTransaction(actor, ManualTransactionInput{
		Amount: 100, Direction: models.DirectionExpense, Date: "2026-08-01", Name: "Suspicious",
	})
	require.NoError(t, err)
	_, err = engine.ToggleFlag(actor, tx.ID)
	require.NoError(t, err)

	flagged, err := engine.FlaggedTransactions(admin)
	require.NoError(t, err)
	require.Len(t, flagged, 1)

	require.NoError(t, engine.ClearFlag(admin, tx.ID))
	flagged, err = engine.FlaggedTransactions(admin)
	require.NoError(t, err)
	assert.Empty(t, flagged)
}
