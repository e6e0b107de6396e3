package reconciliation

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/invoicehub/backend/internal/domain/reconciliation"
	"github.com/invoicehub/backend/internal/infrastructure/logger"
	"github.com/invoicehub/backend/internal/infrastructure/telemetry"
	"github.com/samber/lo"
	"go.uber.org/zap"
)

// Suggestions lists the unmatched payments that could match a transaction,
// best candidate first
func (s *Service) Suggestions(ctx context.Context, tenantID, txID uuid.UUID) ([]CandidateResponse, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "reconciliation", "find_candidates")
	defer span.End()
	telemetry.SetAttributes(span, telemetry.SpanAttrTransactionID, txID.String())

	tx, err := s.findTransaction(ctx, tenantID, txID)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	from, to := s.candidateRange(tx.TransactionDate, tx.TransactionDate)
	payments, err := s.paymentRepo.FindUnmatchedInRange(ctx, tenantID, from, to)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	candidates := s.matcher.FindCandidates(tx, payments)
	telemetry.SetOK(span)
	return lo.Map(candidates, func(c reconciliation.Candidate, _ int) CandidateResponse {
		return CandidateResponse{
			Payment:          ToPaymentResponse(&c.Payment),
			DateDistanceDays: c.DateDistanceDays,
			AmountDifference: c.AmountDifference,
			AbsoluteMatch:    c.AbsoluteMatch,
		}
	}), nil
}

// Match links a transaction to a payment. The amounts must agree under the
// matcher's rules and neither side may already be matched.
func (s *Service) Match(ctx context.Context, tenantID, txID, paymentID uuid.UUID) (*ActionResult, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "reconciliation", "match")
	defer span.End()
	telemetry.SetAttributes(span,
		telemetry.SpanAttrTenantID, tenantID.String(),
		telemetry.SpanAttrTransactionID, txID.String(),
		telemetry.SpanAttrPaymentID, paymentID.String(),
	)

	tx, err := s.findTransaction(ctx, tenantID, txID)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	payment, err := s.paymentRepo.FindByID(ctx, tenantID, paymentID)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	if payment == nil {
		telemetry.RecordError(span, reconciliation.ErrPaymentNotFound)
		return nil, reconciliation.ErrPaymentNotFound
	}

	at := s.now()
	if err := s.matcher.Match(tx, payment, at); err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	if err := s.txRepo.MarkMatched(ctx, tenantID, tx.ID, payment.ID, at); err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	s.metrics.RecordMatch(ctx, tenantID.String())
	telemetry.SetOK(span)
	return &ActionResult{Success: true, Message: "Transaction matched", MatchedCount: 1}, nil
}

// Unmatch clears the payment of a transaction. Unmatching a transaction
// that is not matched succeeds without changes.
func (s *Service) Unmatch(ctx context.Context, tenantID, txID uuid.UUID) (*ActionResult, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "reconciliation", "unmatch")
	defer span.End()
	telemetry.SetAttributes(span, telemetry.SpanAttrTransactionID, txID.String())

	tx, err := s.findTransaction(ctx, tenantID, txID)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	if !tx.IsMatched() {
		telemetry.SetOK(span)
		return &ActionResult{Success: true, Message: "Transaction was not matched", UnmatchedCount: 1}, nil
	}

	if err := s.txRepo.ClearMatch(ctx, tenantID, tx.ID); err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	s.metrics.RecordUnmatch(ctx, tenantID.String())
	telemetry.SetOK(span)
	return &ActionResult{Success: true, Message: "Transaction unmatched", UnmatchedCount: 1}, nil
}

// SetIgnored flags a transaction as needing no match, or clears the flag
func (s *Service) SetIgnored(ctx context.Context, tenantID, txID uuid.UUID, ignored bool) (*TransactionResponse, error) {
	tx, err := s.findTransaction(ctx, tenantID, txID)
	if err != nil {
		return nil, err
	}
	if tx.Ignored != ignored {
		if err := s.txRepo.SetIgnored(ctx, tenantID, tx.ID, ignored); err != nil {
			return nil, err
		}
		tx.SetIgnored(ignored)
	}
	resp := ToTransactionResponse(tx)
	return &resp, nil
}

// AutoMatch matches every unmatched, non-ignored transaction of an open
// session to its best candidate. Ties are left for manual review and
// transactions whose match fails are counted as unmatched.
func (s *Service) AutoMatch(ctx context.Context, tenantID, sessionID uuid.UUID) (*ActionResult, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "reconciliation", "auto_match")
	defer span.End()
	telemetry.SetAttributes(span,
		telemetry.SpanAttrTenantID, tenantID.String(),
		telemetry.SpanAttrSessionID, sessionID.String(),
	)

	var (
		plan               reconciliation.AutoMatchPlan
		matched, unmatched int
	)
	err := s.txRunner.RunInTx(ctx, func(txCtx context.Context) error {
		// The session lock serializes runs with each other and with completion
		session, err := s.findSessionForUpdate(txCtx, tenantID, sessionID)
		if err != nil {
			return err
		}
		if err := session.EnsureOpen(); err != nil {
			return err
		}

		txs, err := s.txRepo.FindUnmatchedInRange(txCtx, tenantID, session.StartDate, session.EndDate)
		if err != nil {
			return err
		}
		from, to := s.candidateRange(session.StartDate, session.EndDate)
		payments, err := s.paymentRepo.FindUnmatchedInRange(txCtx, tenantID, from, to)
		if err != nil {
			return err
		}

		plan = s.matcher.PlanAutoMatch(txs, payments)
		log := logger.FromContext(ctx)
		matched, unmatched = 0, len(plan.Unmatched)
		at := s.now()
		for _, pair := range plan.Pairs {
			err := s.txRepo.MarkMatched(txCtx, tenantID, pair.TransactionID, pair.PaymentID, at)
			if err == nil {
				matched++
				continue
			}
			unmatched++
			if !errors.Is(err, reconciliation.ErrAlreadyMatched) {
				log.Warn("Auto-match failed for transaction",
					zap.String("transaction_id", pair.TransactionID.String()),
					zap.String("payment_id", pair.PaymentID.String()),
					zap.Error(err),
				)
			}
		}
		return nil
	})
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	s.metrics.RecordAutoMatch(ctx, tenantID.String(), matched, unmatched)
	telemetry.SetAttributes(span,
		telemetry.SpanAttrMatched, matched,
		telemetry.SpanAttrUnmatched, unmatched,
	)
	if len(plan.Ambiguous) > 0 {
		telemetry.AddEvent(span, "ambiguous_candidates", "count", len(plan.Ambiguous))
	}
	telemetry.SetOK(span)
	return &ActionResult{
		Success:        true,
		Message:        fmt.Sprintf("Auto-match completed: %d matched, %d unmatched", matched, unmatched),
		MatchedCount:   matched,
		UnmatchedCount: unmatched,
	}, nil
}
