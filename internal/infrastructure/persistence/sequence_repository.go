package persistence

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/invoicehub/backend/internal/domain/numbering"
	"github.com/invoicehub/backend/internal/infrastructure/persistence/models"
	"gorm.io/gorm"
)

// reserveSQL creates the scope on first use or advances it in the same
// statement. The stored next_value is the value the next call issues, so
// the issued value is the returned one minus one.
const reserveSQL = `
INSERT INTO number_sequences
	(id, tenant_id, document_type, client_key, client_id, next_value, fiscal_year, version, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?, 1, ?, ?)
ON CONFLICT (tenant_id, document_type, client_key) DO UPDATE SET
	next_value = number_sequences.next_value + 1,
	version = number_sequences.version + 1,
	updated_at = ?
RETURNING next_value`

// reserveFiscalYearSQL additionally restarts the counter when the document
// falls in a later fiscal year than the stored marker. A NULL marker is
// adopted without restarting.
const reserveFiscalYearSQL = `
INSERT INTO number_sequences
	(id, tenant_id, document_type, client_key, client_id, next_value, fiscal_year, version, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?, 1, ?, ?)
ON CONFLICT (tenant_id, document_type, client_key) DO UPDATE SET
	next_value = CASE WHEN number_sequences.fiscal_year < ? THEN ? ELSE number_sequences.next_value + 1 END,
	fiscal_year = CASE WHEN number_sequences.fiscal_year IS NULL OR number_sequences.fiscal_year < ? THEN ? ELSE number_sequences.fiscal_year END,
	version = number_sequences.version + 1,
	updated_at = ?
RETURNING next_value`

// GormSequenceRepository implements numbering.SequenceRepository using GORM
type GormSequenceRepository struct {
	db  *gorm.DB
	now func() time.Time
}

// NewGormSequenceRepository creates a new GormSequenceRepository
func NewGormSequenceRepository(db *gorm.DB) *GormSequenceRepository {
	return &GormSequenceRepository{db: db, now: func() time.Time { return time.Now().UTC() }}
}

// FindByScope returns the counter state of key, nil if never used
func (r *GormSequenceRepository) FindByScope(ctx context.Context, key numbering.ScopeKey) (*numbering.Sequence, error) {
	var model models.NumberSequenceModel
	err := GetDB(ctx, r.db).
		Scopes(tenantScope(key.TenantID)).
		Where("document_type = ? AND client_key = ?", key.DocumentType.String(), key.ClientKey()).
		First(&model).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return model.ToDomain(), nil
}

// Reserve atomically issues the next value of key
func (r *GormSequenceRepository) Reserve(ctx context.Context, key numbering.ScopeKey, params numbering.ReserveParams) (int64, error) {
	now := r.now()
	args := []any{
		uuid.New(), key.TenantID, key.DocumentType.String(), key.ClientKey(), key.ClientID,
		params.StartValue + 1, params.FiscalYear, now, now,
	}
	query := reserveSQL
	if params.FiscalYear != nil {
		fy := *params.FiscalYear
		query = reserveFiscalYearSQL
		args = append(args, fy, params.StartValue+1, fy, fy)
	}
	args = append(args, now)

	var next int64
	err := GetDB(ctx, r.db).Raw(query, args...).Scan(&next).Error
	if err != nil {
		if IsTransientConflict(err) {
			return 0, numbering.ErrCounterConflict
		}
		return 0, fmt.Errorf("reserve %s: %w", key, err)
	}
	if next == 0 {
		return 0, fmt.Errorf("reserve %s: no value returned", key)
	}
	return next - 1, nil
}

// Reset sets the next value of an existing scope
func (r *GormSequenceRepository) Reset(ctx context.Context, key numbering.ScopeKey, startValue int64) error {
	result := GetDB(ctx, r.db).
		Model(&models.NumberSequenceModel{}).
		Scopes(tenantScope(key.TenantID)).
		Where("document_type = ? AND client_key = ?", key.DocumentType.String(), key.ClientKey()).
		Updates(map[string]any{
			"next_value": startValue,
			"version":    gorm.Expr("version + 1"),
			"updated_at": r.now(),
		})
	if result.Error != nil {
		if IsTransientConflict(result.Error) {
			return numbering.ErrCounterConflict
		}
		return result.Error
	}
	if result.RowsAffected == 0 {
		return numbering.ErrScopeNotFound
	}
	return nil
}

var _ numbering.SequenceRepository = (*GormSequenceRepository)(nil)
