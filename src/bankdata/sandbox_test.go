package bankdata

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSandboxSnapshotIsDeterministic(t *testing.T) {
	provider := NewSandboxProvider()

	link, err := provider.ExchangePublicToken("public-token-1")
	require.NoError(t, err)
	assert.NotEmpty(t, link.AccessToken)
	assert.NotEmpty(t, link.ItemID)

	first, err := provider.FetchSnapshot(link.AccessToken)
	require.NoError(t, err)
	second, err := provider.FetchSnapshot(link.AccessToken)
	require.NoError(t, err)

	// Same token, same ids: re-import must dedupe to a no-op.
	require.Len(t, second.Transactions, len(first.Transactions))
	for i := range first.Transactions {
		assert.Equal(t, first.Transactions[i].TransactionID, second.Transactions[i].TransactionID)
	}
	require.Len(t, second.Accounts, len(first.Accounts))
	for i := range first.Accounts {
		assert.Equal(t, first.Accounts[i].AccountID, second.Accounts[i].AccountID)
	}
}

func TestSandboxTokensProduceDistinctIDs(t *testing.T) {
	provider := NewSandboxProvider()

	a, err := provider.FetchSnapshot("token-a")
	require.NoError(t, err)
	b, err := provider.FetchSnapshot("token-b")
	require.NoError(t, err)

	assert.NotEqual(t, a.Accounts[0].AccountID, b.Accounts[0].AccountID)
	assert.NotEqual(t, a.Transactions[0].TransactionID, b.Transactions[0].TransactionID)
}

func TestSandboxSnapshotContainsIncome(t *testing.T) {
	provider := NewSandboxProvider()
	snapshot, err := provider.FetchSnapshot("token")
	require.NoError(t, err)

	var foundIncome bool
	for _, tx := range snapshot.Transactions {
		if tx.Amount.IsNegative() {
			foundIncome = true
		}
	}
	assert.True(t, foundIncome, "fixtures must exercise the income sign convention")
}

func TestCents(t *testing.T) {
	assert.Equal(t, int64(1250), Cents(decimal.NewFromFloat(12.50)))
	assert.Equal(t, int64(-215000), Cents(decimal.NewFromFloat(-2150.00)))
	assert.Equal(t, int64(1), Cents(decimal.NewFromFloat(0.005)), "half rounds away from zero")
	assert.Equal(t, int64(0), Cents(decimal.Zero))
}
