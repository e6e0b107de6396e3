package persistence

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/invoicehub/backend/internal/domain/reconciliation"
	"github.com/invoicehub/backend/internal/domain/shared"
	"github.com/invoicehub/backend/internal/infrastructure/persistence/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormSessionRepository implements reconciliation.SessionRepository using GORM
type GormSessionRepository struct {
	db *gorm.DB
}

// NewGormSessionRepository creates a new GormSessionRepository
func NewGormSessionRepository(db *gorm.DB) *GormSessionRepository {
	return &GormSessionRepository{db: db}
}

// FindByID finds a session within a tenant
func (r *GormSessionRepository) FindByID(ctx context.Context, tenantID, id uuid.UUID) (*reconciliation.Session, error) {
	return r.findByID(GetDB(ctx, r.db), tenantID, id)
}

// FindByIDForUpdate finds a session and locks its row with FOR UPDATE
func (r *GormSessionRepository) FindByIDForUpdate(ctx context.Context, tenantID, id uuid.UUID) (*reconciliation.Session, error) {
	return r.findByID(GetDB(ctx, r.db).Clauses(clause.Locking{Strength: "UPDATE"}), tenantID, id)
}

func (r *GormSessionRepository) findByID(db *gorm.DB, tenantID, id uuid.UUID) (*reconciliation.Session, error) {
	var model models.ReconciliationSessionModel
	err := db.Scopes(tenantScope(tenantID)).Where("id = ?", id).First(&model).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return model.ToDomain(), nil
}

// List returns a page of sessions and the total count
func (r *GormSessionRepository) List(ctx context.Context, tenantID uuid.UUID, filter shared.Filter) ([]reconciliation.Session, int64, error) {
	query := GetDB(ctx, r.db).Model(&models.ReconciliationSessionModel{}).Scopes(tenantScope(tenantID))

	var total int64
	if err := query.Session(&gorm.Session{}).Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var rows []models.ReconciliationSessionModel
	if err := query.Session(&gorm.Session{}).Scopes(paginate(filter, SessionSortFields, "start_date")).Find(&rows).Error; err != nil {
		return nil, 0, err
	}
	sessions := make([]reconciliation.Session, 0, len(rows))
	for i := range rows {
		sessions = append(sessions, *rows[i].ToDomain())
	}
	return sessions, total, nil
}

// Save inserts a new session
func (r *GormSessionRepository) Save(ctx context.Context, session *reconciliation.Session) error {
	return GetDB(ctx, r.db).Create(models.ReconciliationSessionModelFromDomain(session)).Error
}

// SaveWithLock updates the session if its stored version is session.Version-1
func (r *GormSessionRepository) SaveWithLock(ctx context.Context, session *reconciliation.Session) error {
	model := models.ReconciliationSessionModelFromDomain(session)
	result := GetDB(ctx, r.db).
		Model(&models.ReconciliationSessionModel{}).
		Scopes(tenantScope(session.TenantID)).
		Where("id = ? AND version = ?", session.ID, session.Version-1).
		Updates(map[string]any{
			"opening_balance": model.OpeningBalance,
			"closing_balance": model.ClosingBalance,
			"status":          model.Status,
			"completed_at":    model.CompletedAt,
			"version":         model.Version,
			"updated_at":      model.UpdatedAt,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return shared.ErrConcurrencyConflict
	}
	return nil
}

var _ reconciliation.SessionRepository = (*GormSessionRepository)(nil)
