package reconciliation

import "github.com/invoicehub/backend/internal/domain/shared"

var (
	ErrAmountMismatch      = shared.NewDomainError("AMOUNT_MISMATCH", "Transaction amount does not match the payment amount")
	ErrAlreadyMatched      = shared.NewDomainError("ALREADY_MATCHED", "Transaction or payment is already matched")
	ErrSessionIncomplete   = shared.NewDomainError("SESSION_INCOMPLETE", "Every transaction must be matched or ignored before completing the session")
	ErrSessionCompleted    = shared.NewDomainError("INVALID_STATE", "Reconciliation session is already completed")
	ErrInvalidDateRange    = shared.NewDomainError("VALIDATION_ERROR", "Start date must not be after end date")
	ErrInvalidAmount       = shared.NewDomainError("VALIDATION_ERROR", "Amount must not be zero")
	ErrInvalidPayment      = shared.NewDomainError("VALIDATION_ERROR", "Payment amount must be positive and refunds must not exceed it")
	ErrTransactionNotFound = shared.NewDomainError("NOT_FOUND", "Bank transaction not found")
	ErrPaymentNotFound     = shared.NewDomainError("NOT_FOUND", "Payment not found")
	ErrSessionNotFound     = shared.NewDomainError("NOT_FOUND", "Reconciliation session not found")
)
