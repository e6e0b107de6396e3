package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/invoicehub/backend/internal/domain/reconciliation"
	"github.com/shopspring/decimal"
)

// PaymentModel is the persistence model for a recorded payment.
// Whether a payment is matched is derived from bank_transactions.
type PaymentModel struct {
	AggregateModel
	TenantID         uuid.UUID       `gorm:"type:uuid;not null;index:idx_payments_tenant_date,priority:1"`
	CreatedBy        *uuid.UUID      `gorm:"type:uuid"`
	Amount           decimal.Decimal `gorm:"type:decimal(18,2);not null"`
	PaymentDate      time.Time       `gorm:"type:date;not null;index:idx_payments_tenant_date,priority:2"`
	InvoiceReference string          `gorm:"type:varchar(100)"`
	RefundedAmount   decimal.Decimal `gorm:"type:decimal(18,2);not null;default:0"`
	Method           string          `gorm:"type:varchar(50)"`
	Notes            string          `gorm:"type:text"`
}

// TableName returns the table name for GORM
func (PaymentModel) TableName() string {
	return "payments"
}

// ToDomain converts the persistence model to a domain Payment
func (m *PaymentModel) ToDomain() *reconciliation.Payment {
	return &reconciliation.Payment{
		TenantAggregateRoot: m.tenantRoot(m.TenantID, m.CreatedBy),
		Amount:              m.Amount,
		PaymentDate:         m.PaymentDate.UTC(),
		InvoiceReference:    m.InvoiceReference,
		RefundedAmount:      m.RefundedAmount,
		Method:              m.Method,
		Notes:               m.Notes,
	}
}

// FromDomain populates the persistence model from a domain Payment
func (m *PaymentModel) FromDomain(p *reconciliation.Payment) {
	m.TenantID, m.CreatedBy = m.fromTenantRoot(p.TenantAggregateRoot)
	m.Amount = p.Amount
	m.PaymentDate = p.PaymentDate
	m.InvoiceReference = p.InvoiceReference
	m.RefundedAmount = p.RefundedAmount
	m.Method = p.Method
	m.Notes = p.Notes
}

// PaymentModelFromDomain creates a persistence model from a domain Payment
func PaymentModelFromDomain(p *reconciliation.Payment) *PaymentModel {
	m := &PaymentModel{}
	m.FromDomain(p)
	return m
}

// BankTransactionModel is the persistence model for an imported statement line.
// A payment can be held by at most one transaction per tenant.
type BankTransactionModel struct {
	AggregateModel
	TenantID         uuid.UUID       `gorm:"type:uuid;not null;index:idx_bank_transactions_tenant_date,priority:1;uniqueIndex:idx_bank_transactions_matched_payment,priority:1,where:matched_payment_id IS NOT NULL;index:idx_bank_transactions_fingerprint,priority:1"`
	CreatedBy        *uuid.UUID      `gorm:"type:uuid"`
	Amount           decimal.Decimal `gorm:"type:decimal(18,2);not null"`
	TransactionDate  time.Time       `gorm:"type:date;not null;index:idx_bank_transactions_tenant_date,priority:2"`
	ReferenceNumber  string          `gorm:"type:varchar(100)"`
	Description      string          `gorm:"type:text"`
	MatchedPaymentID *uuid.UUID      `gorm:"type:uuid;uniqueIndex:idx_bank_transactions_matched_payment,priority:2,where:matched_payment_id IS NOT NULL"`
	MatchedAt        *time.Time
	Ignored          bool       `gorm:"not null;default:false"`
	ImportBatchID    *uuid.UUID `gorm:"type:uuid;index"`
	Fingerprint      string     `gorm:"type:varchar(160);not null;index:idx_bank_transactions_fingerprint,priority:2"`
}

// TableName returns the table name for GORM
func (BankTransactionModel) TableName() string {
	return "bank_transactions"
}

// ToDomain converts the persistence model to a domain BankTransaction
func (m *BankTransactionModel) ToDomain() *reconciliation.BankTransaction {
	return &reconciliation.BankTransaction{
		TenantAggregateRoot: m.tenantRoot(m.TenantID, m.CreatedBy),
		Amount:              m.Amount,
		TransactionDate:     m.TransactionDate.UTC(),
		ReferenceNumber:     m.ReferenceNumber,
		Description:         m.Description,
		MatchedPaymentID:    m.MatchedPaymentID,
		MatchedAt:           m.MatchedAt,
		Ignored:             m.Ignored,
		ImportBatchID:       m.ImportBatchID,
	}
}

// FromDomain populates the persistence model from a domain BankTransaction
func (m *BankTransactionModel) FromDomain(t *reconciliation.BankTransaction) {
	m.TenantID, m.CreatedBy = m.fromTenantRoot(t.TenantAggregateRoot)
	m.Amount = t.Amount
	m.TransactionDate = t.TransactionDate
	m.ReferenceNumber = t.ReferenceNumber
	m.Description = t.Description
	m.MatchedPaymentID = t.MatchedPaymentID
	m.MatchedAt = t.MatchedAt
	m.Ignored = t.Ignored
	m.ImportBatchID = t.ImportBatchID
	m.Fingerprint = t.Fingerprint()
}

// BankTransactionModelFromDomain creates a persistence model from a domain BankTransaction
func BankTransactionModelFromDomain(t *reconciliation.BankTransaction) *BankTransactionModel {
	m := &BankTransactionModel{}
	m.FromDomain(t)
	return m
}

// ReconciliationSessionModel is the persistence model for a reconciliation session
type ReconciliationSessionModel struct {
	AggregateModel
	TenantID       uuid.UUID       `gorm:"type:uuid;not null;index"`
	CreatedBy      *uuid.UUID      `gorm:"type:uuid"`
	StartDate      time.Time       `gorm:"type:date;not null"`
	EndDate        time.Time       `gorm:"type:date;not null"`
	OpeningBalance decimal.Decimal `gorm:"type:decimal(18,2);not null;default:0"`
	ClosingBalance decimal.Decimal `gorm:"type:decimal(18,2);not null;default:0"`
	Status         string          `gorm:"type:varchar(20);not null;default:'open';index"`
	CompletedAt    *time.Time
}

// TableName returns the table name for GORM
func (ReconciliationSessionModel) TableName() string {
	return "reconciliation_sessions"
}

// ToDomain converts the persistence model to a domain Session
func (m *ReconciliationSessionModel) ToDomain() *reconciliation.Session {
	return &reconciliation.Session{
		TenantAggregateRoot: m.tenantRoot(m.TenantID, m.CreatedBy),
		StartDate:           m.StartDate.UTC(),
		EndDate:             m.EndDate.UTC(),
		OpeningBalance:      m.OpeningBalance,
		ClosingBalance:      m.ClosingBalance,
		Status:              reconciliation.SessionStatus(m.Status),
		CompletedAt:         m.CompletedAt,
	}
}

// FromDomain populates the persistence model from a domain Session
func (m *ReconciliationSessionModel) FromDomain(s *reconciliation.Session) {
	m.TenantID, m.CreatedBy = m.fromTenantRoot(s.TenantAggregateRoot)
	m.StartDate = s.StartDate
	m.EndDate = s.EndDate
	m.OpeningBalance = s.OpeningBalance
	m.ClosingBalance = s.ClosingBalance
	m.Status = string(s.Status)
	m.CompletedAt = s.CompletedAt
}

// ReconciliationSessionModelFromDomain creates a persistence model from a domain Session
func ReconciliationSessionModelFromDomain(s *reconciliation.Session) *ReconciliationSessionModel {
	m := &ReconciliationSessionModel{}
	m.FromDomain(s)
	return m
}
