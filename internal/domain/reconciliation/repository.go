package reconciliation

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/invoicehub/backend/internal/domain/shared"
	"github.com/shopspring/decimal"
)

// TransactionStatus filters transactions by reconciliation state
type TransactionStatus string

const (
	TransactionStatusAll       TransactionStatus = ""
	TransactionStatusMatched   TransactionStatus = "matched"
	TransactionStatusUnmatched TransactionStatus = "unmatched"
	TransactionStatusIgnored   TransactionStatus = "ignored"
)

// BankTransactionRepository persists bank transactions
type BankTransactionRepository interface {
	// FindByID returns nil, nil when the transaction does not exist
	FindByID(ctx context.Context, tenantID, id uuid.UUID) (*BankTransaction, error)

	// FindInRange lists transactions dated within [start, end], ordered by date then id
	FindInRange(ctx context.Context, tenantID uuid.UUID, start, end time.Time, status TransactionStatus) ([]BankTransaction, error)

	// FindUnmatchedInRange lists unmatched, non-ignored transactions in [start, end]
	FindUnmatchedInRange(ctx context.Context, tenantID uuid.UUID, start, end time.Time) ([]BankTransaction, error)

	// LockInRange lists every transaction in [start, end] and holds a row
	// lock on each until the surrounding transaction ends
	LockInRange(ctx context.Context, tenantID uuid.UUID, start, end time.Time) ([]BankTransaction, error)

	// FindPaymentMatch returns the transaction holding paymentID, nil, nil if none
	FindPaymentMatch(ctx context.Context, tenantID, paymentID uuid.UUID) (*BankTransaction, error)

	// ExistsByFingerprint reports whether an identical statement line was imported before
	ExistsByFingerprint(ctx context.Context, tenantID uuid.UUID, reference string, date time.Time, amount decimal.Decimal) (bool, error)

	CreateBatch(ctx context.Context, txs []*BankTransaction) error

	// MarkMatched links a transaction to a payment in one conditional update.
	// It returns ErrAlreadyMatched if the transaction is matched or the
	// payment is held by another transaction.
	MarkMatched(ctx context.Context, tenantID, txID, paymentID uuid.UUID, at time.Time) error

	// ClearMatch unlinks the payment; clearing an unmatched transaction is a no-op
	ClearMatch(ctx context.Context, tenantID, txID uuid.UUID) error

	SetIgnored(ctx context.Context, tenantID, txID uuid.UUID, ignored bool) error
}

// PaymentFilter narrows payment listings
type PaymentFilter struct {
	shared.Filter
	From          *time.Time
	To            *time.Time
	UnmatchedOnly bool
}

// PaymentRepository persists payments
type PaymentRepository interface {
	// FindByID returns nil, nil when the payment does not exist
	FindByID(ctx context.Context, tenantID, id uuid.UUID) (*Payment, error)

	// FindUnmatchedInRange lists payments dated within [start, end] that no
	// transaction holds, ordered by date then id
	FindUnmatchedInRange(ctx context.Context, tenantID uuid.UUID, start, end time.Time) ([]Payment, error)

	List(ctx context.Context, tenantID uuid.UUID, filter PaymentFilter) ([]Payment, int64, error)
	Save(ctx context.Context, payment *Payment) error
}

// SessionRepository persists reconciliation sessions
type SessionRepository interface {
	// FindByID returns nil, nil when the session does not exist
	FindByID(ctx context.Context, tenantID, id uuid.UUID) (*Session, error)
	// FindByIDForUpdate is FindByID holding a row lock until the surrounding
	// transaction ends
	FindByIDForUpdate(ctx context.Context, tenantID, id uuid.UUID) (*Session, error)
	List(ctx context.Context, tenantID uuid.UUID, filter shared.Filter) ([]Session, int64, error)
	Save(ctx context.Context, session *Session) error
	// SaveWithLock saves only if the stored version is one less than session.Version
	SaveWithLock(ctx context.Context, session *Session) error
}
