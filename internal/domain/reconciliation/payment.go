package reconciliation

import (
	"time"

	"github.com/google/uuid"
	"github.com/invoicehub/backend/internal/domain/shared"
	"github.com/shopspring/decimal"
)

// Payment is a payment recorded against an invoice
type Payment struct {
	shared.TenantAggregateRoot
	Amount           decimal.Decimal
	PaymentDate      time.Time
	InvoiceReference string
	RefundedAmount   decimal.Decimal
	Method           string
	Notes            string
}

// NewPayment creates a payment
func NewPayment(tenantID uuid.UUID, amount decimal.Decimal, date time.Time, invoiceReference string) (*Payment, error) {
	if !amount.IsPositive() {
		return nil, ErrInvalidPayment
	}
	return &Payment{
		TenantAggregateRoot: shared.NewTenantAggregateRoot(tenantID),
		Amount:              amount,
		PaymentDate:         truncateToDay(date),
		InvoiceReference:    invoiceReference,
		RefundedAmount:      decimal.Zero,
	}, nil
}

// SetRefunded records the refunded part of the payment
func (p *Payment) SetRefunded(amount decimal.Decimal) error {
	if amount.IsNegative() || amount.GreaterThan(p.Amount) {
		return ErrInvalidPayment
	}
	p.RefundedAmount = amount
	p.Touch()
	return nil
}

// NetAmount is the amount kept after refunds
func (p *Payment) NetAmount() decimal.Decimal {
	return p.Amount.Sub(p.RefundedAmount)
}
