// Package receipt renders payment receipts and stores the resulting
// artifacts.
package receipt

import (
	"time"

	"github.com/shopspring/decimal"
)

// Document is everything printed on a receipt.
type Document struct {
	Institution      string
	Reference        string
	IssuedAt         time.Time
	CandidateName    string
	Matricule        string
	Programme        string
	AcademicYear     string
	FeeLabel         string
	Amount           decimal.Decimal
	Method           string
	PaymentReference string
	Remaining        decimal.Decimal
	VerificationURL  string
}
