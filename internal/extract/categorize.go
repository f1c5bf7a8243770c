package extract

import (
	"strings"

	"github.com/ledgerdock/ledgerdock/internal/model"
)

type rule struct {
	keywords    []string
	category    string
	subcategory string
}

// Keyword rules are a deliberately small, ordered table; the first hit wins.
// Anything unmatched is left uncategorized at reduced confidence so the job
// lands in reviewing instead of silently completing.
var rules = []rule{
	{[]string{"salary", "payroll", "wages"}, "Income", "Salary"},
	{[]string{"stripe", "paypal", "payout"}, "Income", "Processor payout"},
	{[]string{"grocer", "supermarket", "market"}, "Food", "Groceries"},
	{[]string{"coffee", "cafe", "restaurant", "deli"}, "Food", "Dining"},
	{[]string{"uber", "taxi", "train", "transit", "fuel", "petrol"}, "Travel", "Transport"},
	{[]string{"hotel", "airbnb", "booking.com"}, "Travel", "Accommodation"},
	{[]string{"aws", "google cloud", "azure", "hosting", "domain"}, "Software", "Infrastructure"},
	{[]string{"github", "slack", "notion", "subscription", "saas"}, "Software", "Subscriptions"},
	{[]string{"rent", "lease"}, "Office", "Rent"},
	{[]string{"electric", "water", "gas", "utility", "internet", "phone"}, "Office", "Utilities"},
	{[]string{"insurance"}, "Office", "Insurance"},
	{[]string{"tax", "hmrc", "irs", "vat"}, "Taxes", ""},
	{[]string{"atm", "withdrawal"}, "Cash", ""},
	{[]string{"transfer"}, "Transfers", ""},
	{[]string{"fee", "charge", "interest"}, "Bank", "Fees"},
}

// Categorize assigns a category from the keyword table when the source file
// did not provide one. Uncategorized rows drop to 0.6 confidence.
func Categorize(tx *model.Transaction) {
	if tx.Category != "" {
		return
	}
	desc := strings.ToLower(tx.OriginalDescription)
	for _, r := range rules {
		for _, kw := range r.keywords {
			if strings.Contains(desc, kw) {
				tx.Category = r.category
				tx.Subcategory = r.subcategory
				return
			}
		}
	}
	if tx.ConfidenceScore > 0.6 {
		tx.ConfidenceScore = 0.6
	}
}
