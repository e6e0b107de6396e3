package reconciliation

import (
	"time"

	"github.com/google/uuid"
	"github.com/invoicehub/backend/internal/domain/shared"
	"github.com/shopspring/decimal"
)

// SessionStatus is the lifecycle state of a reconciliation session
type SessionStatus string

const (
	SessionStatusOpen      SessionStatus = "open"
	SessionStatusCompleted SessionStatus = "completed"
)

// Session is a reconciliation of a statement period. It owns the tenant's
// transactions dated within [StartDate, EndDate].
type Session struct {
	shared.TenantAggregateRoot
	StartDate      time.Time
	EndDate        time.Time
	OpeningBalance decimal.Decimal
	ClosingBalance decimal.Decimal
	Status         SessionStatus
	CompletedAt    *time.Time
}

// NewSession opens a reconciliation session
func NewSession(tenantID uuid.UUID, start, end time.Time, opening, closing decimal.Decimal) (*Session, error) {
	start, end = truncateToDay(start), truncateToDay(end)
	if start.After(end) {
		return nil, ErrInvalidDateRange
	}
	return &Session{
		TenantAggregateRoot: shared.NewTenantAggregateRoot(tenantID),
		StartDate:           start,
		EndDate:             end,
		OpeningBalance:      opening,
		ClosingBalance:      closing,
		Status:              SessionStatusOpen,
	}, nil
}

// IsOpen reports whether the session still accepts changes
func (s *Session) IsOpen() bool {
	return s.Status == SessionStatusOpen
}

// Contains reports whether date falls within the session range
func (s *Session) Contains(date time.Time) bool {
	d := truncateToDay(date)
	return !d.Before(s.StartDate) && !d.After(s.EndDate)
}

// EnsureOpen returns ErrSessionCompleted for completed sessions
func (s *Session) EnsureOpen() error {
	if !s.IsOpen() {
		return ErrSessionCompleted
	}
	return nil
}

// Complete closes the session. txs must be the session's transactions.
func (s *Session) Complete(txs []BankTransaction, at time.Time) error {
	if err := s.EnsureOpen(); err != nil {
		return err
	}
	for i := range txs {
		if !txs[i].IsReconciled() {
			return ErrSessionIncomplete
		}
	}
	completedAt := at
	s.Status = SessionStatusCompleted
	s.CompletedAt = &completedAt
	s.Touch()
	s.IncrementVersion()
	return nil
}

// Summary aggregates the state of a session's transactions
type Summary struct {
	Total          int
	Matched        int
	Ignored        int
	Unmatched      int
	StatementTotal decimal.Decimal
	// Difference is closing - opening - sum(amounts); zero when the
	// imported lines account for the whole balance movement
	Difference decimal.Decimal
}

// Summarize computes the session summary over txs
func (s *Session) Summarize(txs []BankTransaction) Summary {
	sum := Summary{Total: len(txs), StatementTotal: decimal.Zero}
	for i := range txs {
		tx := &txs[i]
		sum.StatementTotal = sum.StatementTotal.Add(tx.Amount)
		switch {
		case tx.IsMatched():
			sum.Matched++
		case tx.Ignored:
			sum.Ignored++
		default:
			sum.Unmatched++
		}
	}
	sum.Difference = s.ClosingBalance.Sub(s.OpeningBalance).Sub(sum.StatementTotal)
	return sum
}
