package reconciliation

import (
	"bytes"
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/invoicehub/backend/internal/domain/reconciliation"
	"github.com/invoicehub/backend/internal/domain/shared"
	"github.com/shopspring/decimal"
)

// memoryLedger stores transactions, payments and sessions for the fakes.
// The match rules mirror the conditional update of the SQL repository.
type memoryLedger struct {
	mu       sync.Mutex
	txs      map[uuid.UUID]reconciliation.BankTransaction
	payments map[uuid.UUID]reconciliation.Payment
	sessions map[uuid.UUID]reconciliation.Session
	// markErrs forces MarkMatched to fail for a transaction
	markErrs map[uuid.UUID]error
	// row locks taken through the ForUpdate/Lock methods
	sessionLocks int
	rangeLocks   int
}

// errLockOutsideTx is returned by the fakes when a row lock is requested
// without a surrounding transaction, where it would be released at once
var errLockOutsideTx = errors.New("row lock requested outside a transaction")

type inTxKey struct{}

func inTx(ctx context.Context) bool {
	_, ok := ctx.Value(inTxKey{}).(bool)
	return ok
}

func newMemoryLedger() *memoryLedger {
	return &memoryLedger{
		txs:      make(map[uuid.UUID]reconciliation.BankTransaction),
		payments: make(map[uuid.UUID]reconciliation.Payment),
		sessions: make(map[uuid.UUID]reconciliation.Session),
		markErrs: make(map[uuid.UUID]error),
	}
}

func day(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func inRange(date, start, end time.Time) bool {
	d := day(date)
	return !d.Before(day(start)) && !d.After(day(end))
}

func (l *memoryLedger) paymentHeld(paymentID uuid.UUID) bool {
	for _, tx := range l.txs {
		if tx.MatchedPaymentID != nil && *tx.MatchedPaymentID == paymentID {
			return true
		}
	}
	return false
}

func (l *memoryLedger) tx(id uuid.UUID) reconciliation.BankTransaction {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.txs[id]
}

type memoryTxRepo struct{ l *memoryLedger }

func (r memoryTxRepo) FindByID(_ context.Context, tenantID, id uuid.UUID) (*reconciliation.BankTransaction, error) {
	r.l.mu.Lock()
	defer r.l.mu.Unlock()
	tx, ok := r.l.txs[id]
	if !ok || tx.TenantID != tenantID {
		return nil, nil
	}
	return &tx, nil
}

func (r memoryTxRepo) FindInRange(_ context.Context, tenantID uuid.UUID, start, end time.Time, status reconciliation.TransactionStatus) ([]reconciliation.BankTransaction, error) {
	r.l.mu.Lock()
	defer r.l.mu.Unlock()
	var out []reconciliation.BankTransaction
	for _, tx := range r.l.txs {
		if tx.TenantID != tenantID || !inRange(tx.TransactionDate, start, end) {
			continue
		}
		switch status {
		case reconciliation.TransactionStatusMatched:
			if !tx.IsMatched() {
				continue
			}
		case reconciliation.TransactionStatusIgnored:
			if !tx.Ignored {
				continue
			}
		case reconciliation.TransactionStatusUnmatched:
			if tx.IsMatched() || tx.Ignored {
				continue
			}
		}
		out = append(out, tx)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].TransactionDate.Equal(out[j].TransactionDate) {
			return out[i].TransactionDate.Before(out[j].TransactionDate)
		}
		return bytes.Compare(out[i].ID[:], out[j].ID[:]) < 0
	})
	return out, nil
}

func (r memoryTxRepo) FindUnmatchedInRange(ctx context.Context, tenantID uuid.UUID, start, end time.Time) ([]reconciliation.BankTransaction, error) {
	return r.FindInRange(ctx, tenantID, start, end, reconciliation.TransactionStatusUnmatched)
}

func (r memoryTxRepo) LockInRange(ctx context.Context, tenantID uuid.UUID, start, end time.Time) ([]reconciliation.BankTransaction, error) {
	if !inTx(ctx) {
		return nil, errLockOutsideTx
	}
	r.l.mu.Lock()
	r.l.rangeLocks++
	r.l.mu.Unlock()
	return r.FindInRange(ctx, tenantID, start, end, reconciliation.TransactionStatusAll)
}

func (r memoryTxRepo) FindPaymentMatch(_ context.Context, tenantID, paymentID uuid.UUID) (*reconciliation.BankTransaction, error) {
	r.l.mu.Lock()
	defer r.l.mu.Unlock()
	for _, tx := range r.l.txs {
		if tx.TenantID == tenantID && tx.MatchedPaymentID != nil && *tx.MatchedPaymentID == paymentID {
			return &tx, nil
		}
	}
	return nil, nil
}

func (r memoryTxRepo) ExistsByFingerprint(_ context.Context, tenantID uuid.UUID, reference string, date time.Time, amount decimal.Decimal) (bool, error) {
	r.l.mu.Lock()
	defer r.l.mu.Unlock()
	fp := reconciliation.Fingerprint(reference, date, amount)
	for _, tx := range r.l.txs {
		if tx.TenantID == tenantID && tx.Fingerprint() == fp {
			return true, nil
		}
	}
	return false, nil
}

func (r memoryTxRepo) CreateBatch(_ context.Context, txs []*reconciliation.BankTransaction) error {
	r.l.mu.Lock()
	defer r.l.mu.Unlock()
	for _, tx := range txs {
		r.l.txs[tx.ID] = *tx
	}
	return nil
}

func (r memoryTxRepo) MarkMatched(_ context.Context, tenantID, txID, paymentID uuid.UUID, at time.Time) error {
	r.l.mu.Lock()
	defer r.l.mu.Unlock()
	if err := r.l.markErrs[txID]; err != nil {
		return err
	}
	tx, ok := r.l.txs[txID]
	if !ok || tx.TenantID != tenantID {
		return reconciliation.ErrTransactionNotFound
	}
	if tx.IsMatched() || r.l.paymentHeld(paymentID) {
		return reconciliation.ErrAlreadyMatched
	}
	if err := tx.MatchTo(paymentID, at); err != nil {
		return err
	}
	r.l.txs[txID] = tx
	return nil
}

func (r memoryTxRepo) ClearMatch(_ context.Context, tenantID, txID uuid.UUID) error {
	r.l.mu.Lock()
	defer r.l.mu.Unlock()
	tx, ok := r.l.txs[txID]
	if !ok || tx.TenantID != tenantID {
		return nil
	}
	tx.Unmatch()
	r.l.txs[txID] = tx
	return nil
}

func (r memoryTxRepo) SetIgnored(_ context.Context, tenantID, txID uuid.UUID, ignored bool) error {
	r.l.mu.Lock()
	defer r.l.mu.Unlock()
	tx, ok := r.l.txs[txID]
	if !ok || tx.TenantID != tenantID {
		return reconciliation.ErrTransactionNotFound
	}
	tx.SetIgnored(ignored)
	r.l.txs[txID] = tx
	return nil
}

type memoryPaymentRepo struct{ l *memoryLedger }

func (r memoryPaymentRepo) FindByID(_ context.Context, tenantID, id uuid.UUID) (*reconciliation.Payment, error) {
	r.l.mu.Lock()
	defer r.l.mu.Unlock()
	p, ok := r.l.payments[id]
	if !ok || p.TenantID != tenantID {
		return nil, nil
	}
	return &p, nil
}

func (r memoryPaymentRepo) FindUnmatchedInRange(_ context.Context, tenantID uuid.UUID, start, end time.Time) ([]reconciliation.Payment, error) {
	r.l.mu.Lock()
	defer r.l.mu.Unlock()
	var out []reconciliation.Payment
	for _, p := range r.l.payments {
		if p.TenantID == tenantID && inRange(p.PaymentDate, start, end) && !r.l.paymentHeld(p.ID) {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].PaymentDate.Equal(out[j].PaymentDate) {
			return out[i].PaymentDate.Before(out[j].PaymentDate)
		}
		return bytes.Compare(out[i].ID[:], out[j].ID[:]) < 0
	})
	return out, nil
}

func (r memoryPaymentRepo) List(_ context.Context, tenantID uuid.UUID, filter reconciliation.PaymentFilter) ([]reconciliation.Payment, int64, error) {
	r.l.mu.Lock()
	defer r.l.mu.Unlock()
	var out []reconciliation.Payment
	for _, p := range r.l.payments {
		if p.TenantID != tenantID {
			continue
		}
		if filter.UnmatchedOnly && r.l.paymentHeld(p.ID) {
			continue
		}
		out = append(out, p)
	}
	return out, int64(len(out)), nil
}

func (r memoryPaymentRepo) Save(_ context.Context, payment *reconciliation.Payment) error {
	r.l.mu.Lock()
	defer r.l.mu.Unlock()
	r.l.payments[payment.ID] = *payment
	return nil
}

type memorySessionRepo struct{ l *memoryLedger }

func (r memorySessionRepo) FindByID(_ context.Context, tenantID, id uuid.UUID) (*reconciliation.Session, error) {
	r.l.mu.Lock()
	defer r.l.mu.Unlock()
	s, ok := r.l.sessions[id]
	if !ok || s.TenantID != tenantID {
		return nil, nil
	}
	return &s, nil
}

func (r memorySessionRepo) FindByIDForUpdate(ctx context.Context, tenantID, id uuid.UUID) (*reconciliation.Session, error) {
	if !inTx(ctx) {
		return nil, errLockOutsideTx
	}
	r.l.mu.Lock()
	r.l.sessionLocks++
	r.l.mu.Unlock()
	return r.FindByID(ctx, tenantID, id)
}

func (r memorySessionRepo) List(_ context.Context, tenantID uuid.UUID, _ shared.Filter) ([]reconciliation.Session, int64, error) {
	r.l.mu.Lock()
	defer r.l.mu.Unlock()
	var out []reconciliation.Session
	for _, s := range r.l.sessions {
		if s.TenantID == tenantID {
			out = append(out, s)
		}
	}
	return out, int64(len(out)), nil
}

func (r memorySessionRepo) Save(_ context.Context, session *reconciliation.Session) error {
	r.l.mu.Lock()
	defer r.l.mu.Unlock()
	r.l.sessions[session.ID] = *session
	return nil
}

func (r memorySessionRepo) SaveWithLock(_ context.Context, session *reconciliation.Session) error {
	r.l.mu.Lock()
	defer r.l.mu.Unlock()
	stored, ok := r.l.sessions[session.ID]
	if !ok || stored.Version != session.Version-1 {
		return shared.ErrConcurrencyConflict
	}
	r.l.sessions[session.ID] = *session
	return nil
}

// countingRunner records how many transactions were opened and marks the
// context it hands to fn
type countingRunner struct {
	mu    sync.Mutex
	calls int
}

func (r *countingRunner) RunInTx(ctx context.Context, fn func(context.Context) error) error {
	r.mu.Lock()
	r.calls++
	r.mu.Unlock()
	if inTx(ctx) {
		return fn(ctx)
	}
	return fn(context.WithValue(ctx, inTxKey{}, true))
}
