// Package bankdata is the boundary to the external banking-data provider.
// The rest of the application only sees the Provider interface and the
// snapshot types below; amounts cross this boundary as decimals and are
// converted to integer cents exactly once, here.
package bankdata

import "github.com/shopspring/decimal"

// ExternalAccount is one provider-reported account descriptor.
type ExternalAccount struct {
	AccountID      string          `json:"account_id"`
	Name           string          `json:"name"`
	OfficialName   string          `json:"official_name"`
	Type           string          `json:"type"`
	Subtype        string          `json:"subtype"`
	CurrentBalance decimal.Decimal `json:"current_balance"`
}

// ExternalTransaction is one provider-reported transaction. Amount follows
// the provider convention: negative means money flowing in (income).
type ExternalTransaction struct {
	TransactionID string          `json:"transaction_id"`
	AccountID     string          `json:"account_id"`
	Name          string          `json:"name"`
	Amount        decimal.Decimal `json:"amount"`
	Date          string          `json:"date"`
	Category      string          `json:"category"`
}

// Snapshot is one provider-supplied batch of account and transaction data for
// a single linked institution.
type Snapshot struct {
	InstitutionName string                `json:"institution_name"`
	Accounts        []ExternalAccount     `json:"accounts"`
	Transactions    []ExternalTransaction `json:"transactions"`
}

// LinkResult is the outcome of exchanging a public token for a long-lived
// access token.
type LinkResult struct {
	AccessToken     string `json:"access_token"`
	ItemID          string `json:"item_id"`
	InstitutionName string `json:"institution_name"`
}

// Provider is the narrow surface the application consumes from the
// banking-data provider.
type Provider interface {
	ExchangePublicToken(publicToken string) (*LinkResult, error)
	FetchSnapshot(accessToken string) (*Snapshot, error)
}

// Cents converts a provider decimal amount to integer cents, rounding half
// away from zero.
func Cents(d decimal.Decimal) int64 {
	return d.Mul(decimal.NewFromInt(100)).Round(0).IntPart()
}
