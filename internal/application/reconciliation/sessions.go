package reconciliation

import (
	"context"

	"github.com/google/uuid"
	"github.com/invoicehub/backend/internal/domain/reconciliation"
	"github.com/invoicehub/backend/internal/domain/shared"
	"github.com/invoicehub/backend/internal/infrastructure/logger"
	"github.com/invoicehub/backend/internal/infrastructure/telemetry"
	"github.com/samber/lo"
	"go.uber.org/zap"
)

// CreateSession opens a reconciliation session for a statement period
func (s *Service) CreateSession(ctx context.Context, tenantID uuid.UUID, req CreateSessionRequest) (*SessionResponse, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "reconciliation", "create_session")
	defer span.End()

	session, err := reconciliation.NewSession(tenantID, req.StartDate, req.EndDate, req.OpeningBalance, req.ClosingBalance)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	if req.CreatedBy != nil {
		session.SetCreatedBy(*req.CreatedBy)
	}
	if err := s.sessionRepo.Save(ctx, session); err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	txs, err := s.txRepo.FindInRange(ctx, tenantID, session.StartDate, session.EndDate, reconciliation.TransactionStatusAll)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	summary := session.Summarize(txs)

	telemetry.SetAttributes(span, telemetry.SpanAttrSessionID, session.ID.String())
	telemetry.SetOK(span)
	resp := ToSessionResponse(session, &summary)
	return &resp, nil
}

// GetSession returns a session with the summary of the transactions it owns
func (s *Service) GetSession(ctx context.Context, tenantID, sessionID uuid.UUID) (*SessionResponse, error) {
	session, err := s.findSession(ctx, tenantID, sessionID)
	if err != nil {
		return nil, err
	}
	txs, err := s.txRepo.FindInRange(ctx, tenantID, session.StartDate, session.EndDate, reconciliation.TransactionStatusAll)
	if err != nil {
		return nil, err
	}
	summary := session.Summarize(txs)
	resp := ToSessionResponse(session, &summary)
	return &resp, nil
}

// ListSessions returns a page of sessions without summaries
func (s *Service) ListSessions(ctx context.Context, tenantID uuid.UUID, filter shared.Filter) ([]SessionResponse, int64, error) {
	sessions, total, err := s.sessionRepo.List(ctx, tenantID, filter)
	if err != nil {
		return nil, 0, err
	}
	return lo.Map(sessions, func(session reconciliation.Session, _ int) SessionResponse {
		return ToSessionResponse(&session, nil)
	}), total, nil
}

// ListSessionTransactions lists the transactions dated within the session,
// optionally narrowed to one status
func (s *Service) ListSessionTransactions(ctx context.Context, tenantID, sessionID uuid.UUID, status reconciliation.TransactionStatus) ([]TransactionResponse, error) {
	switch status {
	case reconciliation.TransactionStatusAll, reconciliation.TransactionStatusMatched,
		reconciliation.TransactionStatusUnmatched, reconciliation.TransactionStatusIgnored:
	default:
		return nil, shared.NewDomainError("VALIDATION_ERROR", "Status must be one of matched, unmatched, ignored")
	}

	session, err := s.findSession(ctx, tenantID, sessionID)
	if err != nil {
		return nil, err
	}
	txs, err := s.txRepo.FindInRange(ctx, tenantID, session.StartDate, session.EndDate, status)
	if err != nil {
		return nil, err
	}
	return ToTransactionResponses(txs), nil
}

// CompleteSession closes the session once every transaction it owns is
// matched or ignored
func (s *Service) CompleteSession(ctx context.Context, tenantID, sessionID uuid.UUID) (*SessionResponse, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "reconciliation", "complete_session")
	defer span.End()
	telemetry.SetAttributes(span,
		telemetry.SpanAttrTenantID, tenantID.String(),
		telemetry.SpanAttrSessionID, sessionID.String(),
	)

	var (
		session *reconciliation.Session
		summary reconciliation.Summary
	)
	err := s.txRunner.RunInTx(ctx, func(txCtx context.Context) error {
		var err error
		session, err = s.findSessionForUpdate(txCtx, tenantID, sessionID)
		if err != nil {
			return err
		}
		// Locked so no line can be unmatched between the check and the save
		txs, err := s.txRepo.LockInRange(txCtx, tenantID, session.StartDate, session.EndDate)
		if err != nil {
			return err
		}
		if err := session.Complete(txs, s.now()); err != nil {
			return err
		}
		summary = session.Summarize(txs)
		return s.sessionRepo.SaveWithLock(txCtx, session)
	})
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	s.metrics.RecordSessionCompleted(ctx, tenantID.String())
	logger.FromContext(ctx).Info("Reconciliation session completed",
		zap.String("session_id", sessionID.String()),
		zap.Int("matched", summary.Matched),
		zap.Int("ignored", summary.Ignored),
		zap.String("difference", summary.Difference.String()),
	)
	telemetry.SetOK(span)
	resp := ToSessionResponse(session, &summary)
	return &resp, nil
}
