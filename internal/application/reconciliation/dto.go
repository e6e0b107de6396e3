package reconciliation

import (
	"time"

	"github.com/google/uuid"
	"github.com/invoicehub/backend/internal/domain/reconciliation"
	"github.com/invoicehub/backend/internal/infrastructure/statement"
	"github.com/samber/lo"
	"github.com/shopspring/decimal"
)

// =============================================================================
// Sessions
// =============================================================================

// CreateSessionRequest opens a reconciliation session for a statement period
type CreateSessionRequest struct {
	StartDate      time.Time
	EndDate        time.Time
	OpeningBalance decimal.Decimal
	ClosingBalance decimal.Decimal
	CreatedBy      *uuid.UUID
}

// SummaryResponse aggregates the transactions of a session
type SummaryResponse struct {
	Total          int             `json:"total"`
	Matched        int             `json:"matched"`
	Ignored        int             `json:"ignored"`
	Unmatched      int             `json:"unmatched"`
	StatementTotal decimal.Decimal `json:"statement_total"`
	Difference     decimal.Decimal `json:"difference"`
}

// SessionResponse is a reconciliation session as returned to clients
type SessionResponse struct {
	ID             uuid.UUID        `json:"id"`
	StartDate      string           `json:"start_date"`
	EndDate        string           `json:"end_date"`
	OpeningBalance decimal.Decimal  `json:"opening_balance"`
	ClosingBalance decimal.Decimal  `json:"closing_balance"`
	Status         string           `json:"status"`
	CompletedAt    *time.Time       `json:"completed_at,omitempty"`
	Version        int              `json:"version"`
	CreatedAt      time.Time        `json:"created_at"`
	Summary        *SummaryResponse `json:"summary,omitempty"`
}

// ToSessionResponse maps a session; summary may be nil
func ToSessionResponse(s *reconciliation.Session, summary *reconciliation.Summary) SessionResponse {
	resp := SessionResponse{
		ID:             s.ID,
		StartDate:      s.StartDate.Format(time.DateOnly),
		EndDate:        s.EndDate.Format(time.DateOnly),
		OpeningBalance: s.OpeningBalance,
		ClosingBalance: s.ClosingBalance,
		Status:         string(s.Status),
		CompletedAt:    s.CompletedAt,
		Version:        s.Version,
		CreatedAt:      s.CreatedAt,
	}
	if summary != nil {
		resp.Summary = &SummaryResponse{
			Total:          summary.Total,
			Matched:        summary.Matched,
			Ignored:        summary.Ignored,
			Unmatched:      summary.Unmatched,
			StatementTotal: summary.StatementTotal,
			Difference:     summary.Difference,
		}
	}
	return resp
}

// =============================================================================
// Transactions and matching
// =============================================================================

// TransactionResponse is a bank statement line as returned to clients
type TransactionResponse struct {
	ID               uuid.UUID       `json:"id"`
	Amount           decimal.Decimal `json:"amount"`
	TransactionDate  string          `json:"transaction_date"`
	ReferenceNumber  string          `json:"reference_number"`
	Description      string          `json:"description"`
	MatchedPaymentID *uuid.UUID      `json:"matched_payment_id,omitempty"`
	MatchedAt        *time.Time      `json:"matched_at,omitempty"`
	Ignored          bool            `json:"ignored"`
	Status           string          `json:"status"`
	ImportBatchID    *uuid.UUID      `json:"import_batch_id,omitempty"`
}

// ToTransactionResponse maps a bank transaction
func ToTransactionResponse(tx *reconciliation.BankTransaction) TransactionResponse {
	status := reconciliation.TransactionStatusUnmatched
	switch {
	case tx.IsMatched():
		status = reconciliation.TransactionStatusMatched
	case tx.Ignored:
		status = reconciliation.TransactionStatusIgnored
	}
	return TransactionResponse{
		ID:               tx.ID,
		Amount:           tx.Amount,
		TransactionDate:  tx.TransactionDate.Format(time.DateOnly),
		ReferenceNumber:  tx.ReferenceNumber,
		Description:      tx.Description,
		MatchedPaymentID: tx.MatchedPaymentID,
		MatchedAt:        tx.MatchedAt,
		Ignored:          tx.Ignored,
		Status:           string(status),
		ImportBatchID:    tx.ImportBatchID,
	}
}

// ToTransactionResponses maps a slice of bank transactions
func ToTransactionResponses(txs []reconciliation.BankTransaction) []TransactionResponse {
	return lo.Map(txs, func(tx reconciliation.BankTransaction, _ int) TransactionResponse {
		return ToTransactionResponse(&tx)
	})
}

// CandidateResponse is a payment suggested for a transaction
type CandidateResponse struct {
	Payment          PaymentResponse `json:"payment"`
	DateDistanceDays int             `json:"date_distance_days"`
	AmountDifference decimal.Decimal `json:"amount_difference"`
	AbsoluteMatch    bool            `json:"absolute_match"`
}

// ActionResult is the outcome of match, unmatch and auto-match
type ActionResult struct {
	Success        bool   `json:"success"`
	Message        string `json:"message"`
	MatchedCount   int    `json:"matched_count"`
	UnmatchedCount int    `json:"unmatched_count"`
}

// =============================================================================
// Payments
// =============================================================================

// RecordPaymentRequest records a payment received against an invoice
type RecordPaymentRequest struct {
	Amount           decimal.Decimal
	PaymentDate      time.Time
	InvoiceReference string
	RefundedAmount   decimal.Decimal
	Method           string
	Notes            string
	CreatedBy        *uuid.UUID
}

// PaymentResponse is a payment as returned to clients
type PaymentResponse struct {
	ID               uuid.UUID       `json:"id"`
	Amount           decimal.Decimal `json:"amount"`
	PaymentDate      string          `json:"payment_date"`
	InvoiceReference string          `json:"invoice_reference"`
	RefundedAmount   decimal.Decimal `json:"refunded_amount"`
	NetAmount        decimal.Decimal `json:"net_amount"`
	Method           string          `json:"method,omitempty"`
	Notes            string          `json:"notes,omitempty"`
	CreatedAt        time.Time       `json:"created_at"`
}

// ToPaymentResponse maps a payment
func ToPaymentResponse(p *reconciliation.Payment) PaymentResponse {
	return PaymentResponse{
		ID:               p.ID,
		Amount:           p.Amount,
		PaymentDate:      p.PaymentDate.Format(time.DateOnly),
		InvoiceReference: p.InvoiceReference,
		RefundedAmount:   p.RefundedAmount,
		NetAmount:        p.NetAmount(),
		Method:           p.Method,
		Notes:            p.Notes,
		CreatedAt:        p.CreatedAt,
	}
}

// =============================================================================
// Statement import
// =============================================================================

// ImportStatementRequest carries an uploaded statement file
type ImportStatementRequest struct {
	Filename string
	Data     []byte
	// Format forces csv or ofx; empty detects it from the file
	Format string
}

// ImportResult reports what an import did
type ImportResult struct {
	BatchID         uuid.UUID            `json:"batch_id"`
	Format          string               `json:"format"`
	TotalRows       int                  `json:"total_rows"`
	Imported        int                  `json:"imported"`
	Duplicates      int                  `json:"duplicates"`
	ErrorCount      int                  `json:"error_count"`
	Errors          []statement.RowError `json:"errors,omitempty"`
	ErrorsTruncated bool                 `json:"errors_truncated,omitempty"`
	ArchiveKey      string               `json:"archive_key,omitempty"`
}
