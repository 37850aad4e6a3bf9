package bankdata

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// SandboxProvider serves a small deterministic snapshot for development.
// External ids are derived from the access token, so re-importing the same
// linked item is a no-op, exactly like a real provider.
type SandboxProvider struct{}

func NewSandboxProvider() *SandboxProvider { return &SandboxProvider{} }

func (p *SandboxProvider) stableID(token, suffix string) string {
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(token+":"+suffix)).String()
}

func (p *SandboxProvider) ExchangePublicToken(publicToken string) (*LinkResult, error) {
	return &LinkResult{
		AccessToken:     "sandbox-access-" + publicToken,
		ItemID:          p.stableID(publicToken, "item"),
		InstitutionName: "Sandbox Bank",
	}, nil
}

func (p *SandboxProvider) FetchSnapshot(accessToken string) (*Snapshot, error) {
	checking := p.stableID(accessToken, "acct:checking")
	savings := p.stableID(accessToken, "acct:savings")

	snapshot := &Snapshot{
		InstitutionName: "Sandbox Bank",
		Accounts: []ExternalAccount{
			{
				AccountID:      checking,
				Name:           "Sandbox Checking",
				OfficialName:   "Sandbox Everyday Checking",
				Type:           "depository",
				Subtype:        "checking",
				CurrentBalance: decimal.NewFromFloat(1250.75),
			},
			{
				AccountID:      savings,
				Name:           "Sandbox Savings",
				OfficialName:   "Sandbox High-Yield Savings",
				Type:           "depository",
				Subtype:        "savings",
				CurrentBalance: decimal.NewFromFloat(8100.00),
			},
		},
	}

	fixtures := []struct {
		suffix   string
		account  string
		name     string
		amount   float64
		date     string
		category string
	}{
		{"tx:1", checking, "Blue Bottle Coffee", 6.50, "2025-06-02", "Coffee Shop"},
		{"tx:2", checking, "Trader Joe's", 84.12, "2025-06-03", "Supermarkets"},
		{"tx:3", checking, "Lyft", 18.40, "2025-06-05", "Ride Share"},
		{"tx:4", checking, "Payroll Deposit", -2150.00, "2025-06-06", "Payroll"},
		{"tx:5", checking, "Netflix", 15.49, "2025-06-08", "Streaming Services"},
		{"tx:6", savings, "Interest Payment", -4.21, "2025-06-30", "Interest"},
	}

	for _, f := range fixtures {
		snapshot.Transactions = append(snapshot.Transactions, ExternalTransaction{
			TransactionID: p.stableID(accessToken, f.suffix),
			AccountID:     f.account,
			Name:          f.name,
			Amount:        decimal.NewFromFloat(f.amount),
			Date:          f.date,
			Category:      f.category,
		})
	}

	return snapshot, nil
}

// NewPublicToken mints a fresh sandbox public token for the link flow.
func (p *SandboxProvider) NewPublicToken() string {
	return fmt.Sprintf("public-sandbox-%s", uuid.NewString())
}
