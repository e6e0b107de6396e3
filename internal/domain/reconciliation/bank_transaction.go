package reconciliation

import (
	"time"

	"github.com/google/uuid"
	"github.com/invoicehub/backend/internal/domain/shared"
	"github.com/shopspring/decimal"
)

// BankTransaction is one imported bank statement line.
// Positive amounts are credits to the account, negative amounts debits.
type BankTransaction struct {
	shared.TenantAggregateRoot
	Amount           decimal.Decimal
	TransactionDate  time.Time
	ReferenceNumber  string
	Description      string
	MatchedPaymentID *uuid.UUID
	MatchedAt        *time.Time
	Ignored          bool
	ImportBatchID    *uuid.UUID
}

// NewBankTransaction creates an unmatched statement line
func NewBankTransaction(tenantID uuid.UUID, amount decimal.Decimal, date time.Time, reference, description string) (*BankTransaction, error) {
	if amount.IsZero() {
		return nil, ErrInvalidAmount
	}
	return &BankTransaction{
		TenantAggregateRoot: shared.NewTenantAggregateRoot(tenantID),
		Amount:              amount,
		TransactionDate:     truncateToDay(date),
		ReferenceNumber:     reference,
		Description:         description,
	}, nil
}

// IsMatched reports whether the transaction is linked to a payment
func (t *BankTransaction) IsMatched() bool {
	return t.MatchedPaymentID != nil
}

// IsReconciled reports whether the transaction no longer blocks session completion
func (t *BankTransaction) IsReconciled() bool {
	return t.IsMatched() || t.Ignored
}

// IsCredit reports whether money came into the account
func (t *BankTransaction) IsCredit() bool {
	return t.Amount.IsPositive()
}

// MatchTo links the transaction to a payment
func (t *BankTransaction) MatchTo(paymentID uuid.UUID, at time.Time) error {
	if t.IsMatched() {
		return ErrAlreadyMatched
	}
	id := paymentID
	matchedAt := at
	t.MatchedPaymentID = &id
	t.MatchedAt = &matchedAt
	t.Touch()
	return nil
}

// Unmatch clears the payment link. Unmatching an unmatched transaction is a no-op.
func (t *BankTransaction) Unmatch() bool {
	if !t.IsMatched() {
		return false
	}
	t.MatchedPaymentID = nil
	t.MatchedAt = nil
	t.Touch()
	return true
}

// SetIgnored flags the transaction as excluded from reconciliation
func (t *BankTransaction) SetIgnored(ignored bool) {
	if t.Ignored == ignored {
		return
	}
	t.Ignored = ignored
	t.Touch()
}

// Fingerprint identifies a statement line for duplicate detection on re-import
func (t *BankTransaction) Fingerprint() string {
	return Fingerprint(t.ReferenceNumber, t.TransactionDate, t.Amount)
}

// Fingerprint builds the duplicate-detection key for a statement line
func Fingerprint(reference string, date time.Time, amount decimal.Decimal) string {
	return reference + "|" + truncateToDay(date).Format(time.DateOnly) + "|" + amount.StringFixed(2)
}

// truncateToDay drops the clock part, keeping the calendar date of t
func truncateToDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// daysBetween returns the absolute number of calendar days between a and b
func daysBetween(a, b time.Time) int {
	diff := truncateToDay(a).Sub(truncateToDay(b))
	if diff < 0 {
		diff = -diff
	}
	return int(diff / (24 * time.Hour))
}
