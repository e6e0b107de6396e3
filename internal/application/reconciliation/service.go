package reconciliation

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/invoicehub/backend/internal/domain/reconciliation"
	"github.com/invoicehub/backend/internal/infrastructure/statement"
	"github.com/invoicehub/backend/internal/infrastructure/telemetry"
)

// unboundedWindowDays is the lookup range used when the matcher has no
// candidate window
const unboundedWindowDays = 3650

// TransactionRunner runs work inside one database transaction
type TransactionRunner interface {
	RunInTx(ctx context.Context, fn func(txCtx context.Context) error) error
}

// StatementArchive keeps the raw statement files that were imported
type StatementArchive interface {
	Put(ctx context.Context, key string, data []byte, contentType string) error
}

// noTx runs fn directly, for callers without a transaction manager
type noTx struct{}

func (noTx) RunInTx(ctx context.Context, fn func(context.Context) error) error {
	return fn(ctx)
}

// Service reconciles bank statement lines against recorded payments
type Service struct {
	txRepo      reconciliation.BankTransactionRepository
	paymentRepo reconciliation.PaymentRepository
	sessionRepo reconciliation.SessionRepository
	matcher     *reconciliation.Matcher
	txRunner    TransactionRunner
	parser      *statement.Parser
	archive     StatementArchive
	metrics     *telemetry.DomainMetrics
	now         func() time.Time
}

// ServiceOption configures a Service
type ServiceOption func(*Service)

// WithMatcher replaces the default exact-amount matcher
func WithMatcher(m *reconciliation.Matcher) ServiceOption {
	return func(s *Service) {
		if m != nil {
			s.matcher = m
		}
	}
}

// WithTransactionRunner makes multi-step writes atomic
func WithTransactionRunner(r TransactionRunner) ServiceOption {
	return func(s *Service) {
		if r != nil {
			s.txRunner = r
		}
	}
}

// WithStatementParser replaces the default statement parser
func WithStatementParser(p *statement.Parser) ServiceOption {
	return func(s *Service) {
		if p != nil {
			s.parser = p
		}
	}
}

// WithStatementArchive stores every imported file
func WithStatementArchive(a StatementArchive) ServiceOption {
	return func(s *Service) {
		s.archive = a
	}
}

// WithMetrics records reconciliation metrics
func WithMetrics(m *telemetry.DomainMetrics) ServiceOption {
	return func(s *Service) {
		s.metrics = m
	}
}

// WithClock overrides the time source used for match timestamps
func WithClock(clock func() time.Time) ServiceOption {
	return func(s *Service) {
		s.now = clock
	}
}

// NewService creates a new reconciliation Service
func NewService(
	txRepo reconciliation.BankTransactionRepository,
	paymentRepo reconciliation.PaymentRepository,
	sessionRepo reconciliation.SessionRepository,
	opts ...ServiceOption,
) *Service {
	s := &Service{
		txRepo:      txRepo,
		paymentRepo: paymentRepo,
		sessionRepo: sessionRepo,
		matcher:     reconciliation.NewMatcher(),
		txRunner:    noTx{},
		parser:      statement.NewParser(),
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// candidateRange widens [start, end] by the matcher's candidate window
func (s *Service) candidateRange(start, end time.Time) (time.Time, time.Time) {
	window := s.matcher.WindowDays()
	if window <= 0 {
		window = unboundedWindowDays
	}
	return start.AddDate(0, 0, -window), end.AddDate(0, 0, window)
}

func (s *Service) findTransaction(ctx context.Context, tenantID, txID uuid.UUID) (*reconciliation.BankTransaction, error) {
	tx, err := s.txRepo.FindByID(ctx, tenantID, txID)
	if err != nil {
		return nil, err
	}
	if tx == nil {
		return nil, reconciliation.ErrTransactionNotFound
	}
	return tx, nil
}

func (s *Service) findSession(ctx context.Context, tenantID, sessionID uuid.UUID) (*reconciliation.Session, error) {
	return requireSession(s.sessionRepo.FindByID(ctx, tenantID, sessionID))
}

func (s *Service) findSessionForUpdate(ctx context.Context, tenantID, sessionID uuid.UUID) (*reconciliation.Session, error) {
	return requireSession(s.sessionRepo.FindByIDForUpdate(ctx, tenantID, sessionID))
}

func requireSession(session *reconciliation.Session, err error) (*reconciliation.Session, error) {
	if err != nil {
		return nil, err
	}
	if session == nil {
		return nil, reconciliation.ErrSessionNotFound
	}
	return session, nil
}
