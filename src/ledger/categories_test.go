package ledger

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeCategory(t *testing.T) {
	cases := []struct {
		raw  string
		want string
	}{
		{"Fast Food", "Food/Dining"},
		{"Supermarkets", "Groceries"},
		{"Ride Share", "Transportation"},
		{"Streaming Services", "Subscriptions"},
		{"Payroll", "Income"},
		{"Groceries", "Groceries"},           // canonical passes through
		{"Quantum Widgets", DefaultCategory}, // unknown falls back
		{"", DefaultCategory},
	}

	for _, c := range cases {
		assert.Equal(t, c.want, NormalizeCategory(c.raw), "raw=%q", c.raw)
	}
}
