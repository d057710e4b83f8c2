// Package notify delivers student-facing emails. The pipeline hands a message
// over after its transaction commits; delivery failures never reach the
// ledger.
package notify

import "github.com/shopspring/decimal"

// CredentialsMessage is sent once, when an enrollment is activated and its
// student account created. Password is the only copy of the cleartext.
type CredentialsMessage struct {
	To          string
	StudentName string
	Matricule   string
	Username    string
	Password    string
	LoginURL    string
	PublicURL   string
}

// ConfirmationMessage acknowledges a validated payment that did not activate
// the enrollment.
type ConfirmationMessage struct {
	To               string
	StudentName      string
	FeeLabel         string
	Amount           decimal.Decimal
	Remaining        decimal.Decimal
	ReceiptReference string
	PublicURL        string
}
