package models

import "github.com/shopspring/decimal"

// DefaultRule describes one entry of the schedule seeded for programmes
// that have no rules yet.
type DefaultRule struct {
	Label     string
	Type      FeeType
	Amount    decimal.Decimal
	Order     int
	Mandatory bool
}

// DefaultSchedule is the registration fee followed by two tuition installments.
func DefaultSchedule() []DefaultRule {
	return []DefaultRule{
		{Label: "Inscription", Type: FeeTypeRegistration, Amount: decimal.NewFromInt(50000), Order: 1, Mandatory: true},
		{Label: "1ère tranche", Type: FeeTypeTuition, Amount: decimal.NewFromInt(150000), Order: 2, Mandatory: true},
		{Label: "2ème tranche", Type: FeeTypeTuition, Amount: decimal.NewFromInt(150000), Order: 3, Mandatory: true},
	}
}
