package ledger

// DefaultCategory is the bucket for anything the mapping table doesn't know.
const DefaultCategory = "Misc."

// categoryMap normalizes provider/merchant categories into the fixed set of
// budgeting buckets. Extend by adding rows, not branches.
var categoryMap = map[string]string{
	"Fast Food":             "Food/Dining",
	"Restaurants":           "Food/Dining",
	"Coffee Shop":           "Food/Dining",
	"Supermarkets":          "Groceries",
	"Grocery Stores":        "Groceries",
	"Ride Share":            "Transportation",
	"Taxi":                  "Transportation",
	"Parking":               "Transportation",
	"Gas":                   "Transportation",
	"Public Transportation": "Transportation",
	"Streaming Services":    "Subscriptions",
	"Subscription":          "Subscriptions",
	"Entertainment":         "Entertainment",
	"Movies":                "Entertainment",
	"Music and Audio":       "Entertainment",
	"Recreation":            "Entertainment",
	"Rent":                  "Housing",
	"Mortgage":              "Housing",
	"Utilities":             "Housing",
	"Payroll":               "Income",
	"Paycheck":              "Income",
	"Direct Deposit":        "Income",
	"Bonus":                 "Income",
	"Interest":              "Income",
	"Refund":                "Income",
}

// canonicalBuckets is the value set of categoryMap; user-chosen categories
// that are already canonical pass through unchanged.
var canonicalBuckets = func() map[string]bool {
	buckets := make(map[string]bool, len(categoryMap))
	for _, bucket := range categoryMap {
		buckets[bucket] = true
	}
	return buckets
}()

// NormalizeCategory maps a raw merchant/provider category to a budgeting
// bucket. Already-canonical buckets pass through; unknown values fall into
// DefaultCategory.
func NormalizeCategory(raw string) string {
	if canonicalBuckets[raw] {
		return raw
	}
	if bucket, ok := categoryMap[raw]; ok {
		return bucket
	}
	return DefaultCategory
}
