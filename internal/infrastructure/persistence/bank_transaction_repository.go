package persistence

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/invoicehub/backend/internal/domain/reconciliation"
	"github.com/invoicehub/backend/internal/infrastructure/persistence/models"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// createBatchSize bounds the rows per INSERT when importing statements
const createBatchSize = 200

// GormBankTransactionRepository implements reconciliation.BankTransactionRepository using GORM
type GormBankTransactionRepository struct {
	db *gorm.DB
}

// NewGormBankTransactionRepository creates a new GormBankTransactionRepository
func NewGormBankTransactionRepository(db *gorm.DB) *GormBankTransactionRepository {
	return &GormBankTransactionRepository{db: db}
}

// FindByID finds a transaction within a tenant
func (r *GormBankTransactionRepository) FindByID(ctx context.Context, tenantID, id uuid.UUID) (*reconciliation.BankTransaction, error) {
	var model models.BankTransactionModel
	err := GetDB(ctx, r.db).Scopes(tenantScope(tenantID)).Where("id = ?", id).First(&model).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return model.ToDomain(), nil
}

// FindInRange lists transactions dated within [start, end]
func (r *GormBankTransactionRepository) FindInRange(ctx context.Context, tenantID uuid.UUID, start, end time.Time, status reconciliation.TransactionStatus) ([]reconciliation.BankTransaction, error) {
	query := r.rangeQuery(ctx, tenantID, start, end)
	switch status {
	case reconciliation.TransactionStatusMatched:
		query = query.Where("matched_payment_id IS NOT NULL")
	case reconciliation.TransactionStatusUnmatched:
		query = query.Where("matched_payment_id IS NULL AND ignored = ?", false)
	case reconciliation.TransactionStatusIgnored:
		query = query.Where("ignored = ?", true)
	}
	return r.find(query)
}

// FindUnmatchedInRange lists open transactions dated within [start, end]
func (r *GormBankTransactionRepository) FindUnmatchedInRange(ctx context.Context, tenantID uuid.UUID, start, end time.Time) ([]reconciliation.BankTransaction, error) {
	return r.FindInRange(ctx, tenantID, start, end, reconciliation.TransactionStatusUnmatched)
}

// LockInRange lists transactions dated within [start, end] with FOR UPDATE
func (r *GormBankTransactionRepository) LockInRange(ctx context.Context, tenantID uuid.UUID, start, end time.Time) ([]reconciliation.BankTransaction, error) {
	return r.find(r.rangeQuery(ctx, tenantID, start, end).Clauses(clause.Locking{Strength: "UPDATE"}))
}

func (r *GormBankTransactionRepository) rangeQuery(ctx context.Context, tenantID uuid.UUID, start, end time.Time) *gorm.DB {
	return GetDB(ctx, r.db).
		Model(&models.BankTransactionModel{}).
		Scopes(tenantScope(tenantID)).
		Where("transaction_date >= ? AND transaction_date <= ?", dayStart(start), dayStart(end)).
		Order("transaction_date ASC, id ASC")
}

func (r *GormBankTransactionRepository) find(query *gorm.DB) ([]reconciliation.BankTransaction, error) {
	var rows []models.BankTransactionModel
	if err := query.Find(&rows).Error; err != nil {
		return nil, err
	}
	txs := make([]reconciliation.BankTransaction, 0, len(rows))
	for i := range rows {
		txs = append(txs, *rows[i].ToDomain())
	}
	return txs, nil
}

// FindPaymentMatch returns the transaction holding paymentID
func (r *GormBankTransactionRepository) FindPaymentMatch(ctx context.Context, tenantID, paymentID uuid.UUID) (*reconciliation.BankTransaction, error) {
	var model models.BankTransactionModel
	err := GetDB(ctx, r.db).Scopes(tenantScope(tenantID)).Where("matched_payment_id = ?", paymentID).First(&model).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return model.ToDomain(), nil
}

// ExistsByFingerprint reports whether the statement line was imported before
func (r *GormBankTransactionRepository) ExistsByFingerprint(ctx context.Context, tenantID uuid.UUID, reference string, date time.Time, amount decimal.Decimal) (bool, error) {
	var count int64
	err := GetDB(ctx, r.db).
		Model(&models.BankTransactionModel{}).
		Scopes(tenantScope(tenantID)).
		Where("fingerprint = ?", reconciliation.Fingerprint(reference, date, amount)).
		Limit(1).
		Count(&count).Error
	return count > 0, err
}

// CreateBatch inserts imported transactions
func (r *GormBankTransactionRepository) CreateBatch(ctx context.Context, txs []*reconciliation.BankTransaction) error {
	if len(txs) == 0 {
		return nil
	}
	rows := make([]*models.BankTransactionModel, 0, len(txs))
	for _, tx := range txs {
		rows = append(rows, models.BankTransactionModelFromDomain(tx))
	}
	return GetDB(ctx, r.db).CreateInBatches(rows, createBatchSize).Error
}

// MarkMatched links txID to paymentID if neither is matched yet. The
// condition is checked in the UPDATE itself; the partial unique index on
// matched_payment_id catches the remaining race between two transactions.
// The update runs in a savepoint so a conflict leaves an enclosing
// transaction usable.
func (r *GormBankTransactionRepository) MarkMatched(ctx context.Context, tenantID, txID, paymentID uuid.UUID, at time.Time) error {
	return GetDB(ctx, r.db).Transaction(func(db *gorm.DB) error {
		taken := db.Session(&gorm.Session{NewDB: true}).
			Table("bank_transactions AS held").
			Select("1").
			Where("held.tenant_id = ? AND held.matched_payment_id = ?", tenantID, paymentID)

		result := db.
			Model(&models.BankTransactionModel{}).
			Scopes(tenantScope(tenantID)).
			Where("id = ? AND matched_payment_id IS NULL", txID).
			Where("NOT EXISTS (?)", taken).
			Updates(map[string]any{
				"matched_payment_id": paymentID,
				"matched_at":         at,
				"updated_at":         at,
				"version":            gorm.Expr("version + 1"),
			})
		if result.Error != nil {
			if isUniqueViolation(result.Error) {
				return reconciliation.ErrAlreadyMatched
			}
			return result.Error
		}
		if result.RowsAffected == 0 {
			return reconciliation.ErrAlreadyMatched
		}
		return nil
	})
}

// ClearMatch unlinks the payment of txID
func (r *GormBankTransactionRepository) ClearMatch(ctx context.Context, tenantID, txID uuid.UUID) error {
	return GetDB(ctx, r.db).
		Model(&models.BankTransactionModel{}).
		Scopes(tenantScope(tenantID)).
		Where("id = ? AND matched_payment_id IS NOT NULL", txID).
		Updates(map[string]any{
			"matched_payment_id": nil,
			"matched_at":         nil,
			"updated_at":         time.Now().UTC(),
			"version":            gorm.Expr("version + 1"),
		}).Error
}

// SetIgnored flags txID as excluded from reconciliation
func (r *GormBankTransactionRepository) SetIgnored(ctx context.Context, tenantID, txID uuid.UUID, ignored bool) error {
	return GetDB(ctx, r.db).
		Model(&models.BankTransactionModel{}).
		Scopes(tenantScope(tenantID)).
		Where("id = ?", txID).
		Updates(map[string]any{
			"ignored":    ignored,
			"updated_at": time.Now().UTC(),
			"version":    gorm.Expr("version + 1"),
		}).Error
}

// dayStart keeps the calendar date of t at midnight UTC, matching how
// dates are stored
func dayStart(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

var _ reconciliation.BankTransactionRepository = (*GormBankTransactionRepository)(nil)
