package persistence

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/invoicehub/backend/internal/domain/reconciliation"
	"github.com/invoicehub/backend/internal/infrastructure/persistence/models"
	"gorm.io/gorm"
)

// unmatchedPaymentCondition selects payments no bank transaction holds
const unmatchedPaymentCondition = "NOT EXISTS (SELECT 1 FROM bank_transactions bt WHERE bt.tenant_id = payments.tenant_id AND bt.matched_payment_id = payments.id)"

// GormPaymentRepository implements reconciliation.PaymentRepository using GORM
type GormPaymentRepository struct {
	db *gorm.DB
}

// NewGormPaymentRepository creates a new GormPaymentRepository
func NewGormPaymentRepository(db *gorm.DB) *GormPaymentRepository {
	return &GormPaymentRepository{db: db}
}

// FindByID finds a payment within a tenant
func (r *GormPaymentRepository) FindByID(ctx context.Context, tenantID, id uuid.UUID) (*reconciliation.Payment, error) {
	var model models.PaymentModel
	err := GetDB(ctx, r.db).Scopes(tenantScope(tenantID)).Where("id = ?", id).First(&model).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return model.ToDomain(), nil
}

// FindUnmatchedInRange lists unheld payments dated within [start, end]
func (r *GormPaymentRepository) FindUnmatchedInRange(ctx context.Context, tenantID uuid.UUID, start, end time.Time) ([]reconciliation.Payment, error) {
	var rows []models.PaymentModel
	if err := GetDB(ctx, r.db).
		Scopes(tenantScope(tenantID)).
		Where("payment_date >= ? AND payment_date <= ?", dayStart(start), dayStart(end)).
		Where(unmatchedPaymentCondition).
		Order("payment_date ASC, id ASC").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	return toPayments(rows), nil
}

// List returns a page of payments and the total count
func (r *GormPaymentRepository) List(ctx context.Context, tenantID uuid.UUID, filter reconciliation.PaymentFilter) ([]reconciliation.Payment, int64, error) {
	query := GetDB(ctx, r.db).Model(&models.PaymentModel{}).Scopes(tenantScope(tenantID))
	if filter.From != nil {
		query = query.Where("payment_date >= ?", dayStart(*filter.From))
	}
	if filter.To != nil {
		query = query.Where("payment_date <= ?", dayStart(*filter.To))
	}
	if filter.UnmatchedOnly {
		query = query.Where(unmatchedPaymentCondition)
	}

	var total int64
	if err := query.Session(&gorm.Session{}).Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var rows []models.PaymentModel
	if err := query.Session(&gorm.Session{}).Scopes(paginate(filter.Filter, PaymentSortFields, "payment_date")).Find(&rows).Error; err != nil {
		return nil, 0, err
	}
	return toPayments(rows), total, nil
}

// Save inserts or updates a payment
func (r *GormPaymentRepository) Save(ctx context.Context, payment *reconciliation.Payment) error {
	return GetDB(ctx, r.db).Save(models.PaymentModelFromDomain(payment)).Error
}

func toPayments(rows []models.PaymentModel) []reconciliation.Payment {
	payments := make([]reconciliation.Payment, 0, len(rows))
	for i := range rows {
		payments = append(payments, *rows[i].ToDomain())
	}
	return payments
}

var _ reconciliation.PaymentRepository = (*GormPaymentRepository)(nil)
