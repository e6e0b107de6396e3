package persistence

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/invoicehub/backend/internal/domain/numbering"
	"github.com/invoicehub/backend/internal/domain/shared"
	"github.com/invoicehub/backend/internal/infrastructure/persistence/models"
	"gorm.io/gorm"
)

// GormNumberingConfigRepository implements numbering.ConfigRepository using GORM
type GormNumberingConfigRepository struct {
	db *gorm.DB
}

// NewGormNumberingConfigRepository creates a new GormNumberingConfigRepository
func NewGormNumberingConfigRepository(db *gorm.DB) *GormNumberingConfigRepository {
	return &GormNumberingConfigRepository{db: db}
}

// FindByDocumentType returns the company's config for docType, nil if unconfigured
func (r *GormNumberingConfigRepository) FindByDocumentType(ctx context.Context, tenantID uuid.UUID, docType numbering.DocumentType) (*numbering.NumberingConfig, error) {
	var model models.NumberingConfigModel
	err := GetDB(ctx, r.db).
		Scopes(tenantScope(tenantID)).
		Where("document_type = ?", docType.String()).
		First(&model).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return model.ToDomain(), nil
}

// FindAllForTenant lists every configured document type of the company
func (r *GormNumberingConfigRepository) FindAllForTenant(ctx context.Context, tenantID uuid.UUID) ([]numbering.NumberingConfig, error) {
	var rows []models.NumberingConfigModel
	if err := GetDB(ctx, r.db).
		Scopes(tenantScope(tenantID)).
		Order("document_type ASC").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	configs := make([]numbering.NumberingConfig, 0, len(rows))
	for i := range rows {
		configs = append(configs, *rows[i].ToDomain())
	}
	return configs, nil
}

// Save inserts a new config. A concurrent insert for the same document
// type surfaces as a concurrency conflict.
func (r *GormNumberingConfigRepository) Save(ctx context.Context, cfg *numbering.NumberingConfig) error {
	err := GetDB(ctx, r.db).Create(models.NumberingConfigModelFromDomain(cfg)).Error
	if err != nil && isUniqueViolation(err) {
		return shared.ErrConcurrencyConflict
	}
	return err
}

// SaveWithLock updates an existing config if nobody changed it since it was read
func (r *GormNumberingConfigRepository) SaveWithLock(ctx context.Context, cfg *numbering.NumberingConfig) error {
	model := models.NumberingConfigModelFromDomain(cfg)
	result := GetDB(ctx, r.db).
		Model(&models.NumberingConfigModel{}).
		Where("id = ? AND tenant_id = ? AND version = ?", cfg.ID, cfg.TenantID, cfg.Version-1).
		Updates(map[string]any{
			"template":                model.Template,
			"padding":                 model.Padding,
			"start_value":             model.StartValue,
			"reset_policy":            model.ResetPolicy,
			"per_client":              model.PerClient,
			"fiscal_year_start_month": model.FiscalYearStartMonth,
			"version":                 model.Version,
			"updated_at":              model.UpdatedAt,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return shared.ErrConcurrencyConflict
	}
	return nil
}

var _ numbering.ConfigRepository = (*GormNumberingConfigRepository)(nil)
