package reconciliation

import (
	"context"

	"github.com/google/uuid"
	"github.com/invoicehub/backend/internal/domain/reconciliation"
	"github.com/samber/lo"
)

// RecordPayment stores a payment so it can be matched against the bank
func (s *Service) RecordPayment(ctx context.Context, tenantID uuid.UUID, req RecordPaymentRequest) (*PaymentResponse, error) {
	payment, err := reconciliation.NewPayment(tenantID, req.Amount, req.PaymentDate, req.InvoiceReference)
	if err != nil {
		return nil, err
	}
	if !req.RefundedAmount.IsZero() {
		if err := payment.SetRefunded(req.RefundedAmount); err != nil {
			return nil, err
		}
	}
	payment.Method = req.Method
	payment.Notes = req.Notes
	if req.CreatedBy != nil {
		payment.SetCreatedBy(*req.CreatedBy)
	}

	if err := s.paymentRepo.Save(ctx, payment); err != nil {
		return nil, err
	}
	resp := ToPaymentResponse(payment)
	return &resp, nil
}

// ListPayments returns a page of payments
func (s *Service) ListPayments(ctx context.Context, tenantID uuid.UUID, filter reconciliation.PaymentFilter) ([]PaymentResponse, int64, error) {
	payments, total, err := s.paymentRepo.List(ctx, tenantID, filter)
	if err != nil {
		return nil, 0, err
	}
	return lo.Map(payments, func(p reconciliation.Payment, _ int) PaymentResponse {
		return ToPaymentResponse(&p)
	}), total, nil
}
