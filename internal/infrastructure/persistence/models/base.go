// Package models holds the GORM persistence models. They are kept apart
// from the domain types and converted with ToDomain/FromDomain.
package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/invoicehub/backend/internal/domain/shared"
)

// BaseModel provides common persistence fields for all models
type BaseModel struct {
	ID        uuid.UUID `gorm:"type:uuid;primary_key"`
	CreatedAt time.Time `gorm:"not null"`
	UpdatedAt time.Time `gorm:"not null"`
}

// AggregateModel extends BaseModel with version for optimistic locking
type AggregateModel struct {
	BaseModel
	Version int `gorm:"not null;default:1"`
}

// fromTenantRoot copies the aggregate fields shared by tenant-scoped models
func (m *AggregateModel) fromTenantRoot(t shared.TenantAggregateRoot) (tenantID uuid.UUID, createdBy *uuid.UUID) {
	m.ID = t.ID
	m.CreatedAt = t.CreatedAt
	m.UpdatedAt = t.UpdatedAt
	m.Version = t.Version
	return t.TenantID, t.CreatedBy
}

// tenantRoot rebuilds a domain TenantAggregateRoot from persisted fields
func (m *AggregateModel) tenantRoot(tenantID uuid.UUID, createdBy *uuid.UUID) shared.TenantAggregateRoot {
	return shared.TenantAggregateRoot{
		BaseAggregateRoot: shared.BaseAggregateRoot{
			BaseEntity: shared.BaseEntity{
				ID:        m.ID,
				CreatedAt: m.CreatedAt,
				UpdatedAt: m.UpdatedAt,
			},
			Version: m.Version,
		},
		TenantID:  tenantID,
		CreatedBy: createdBy,
	}
}

// All lists every model, in dependency order, for AutoMigrate in tests and
// local development. Production schemas come from the SQL migrations.
func All() []any {
	return []any{
		&NumberingConfigModel{},
		&NumberSequenceModel{},
		&PaymentModel{},
		&BankTransactionModel{},
		&ReconciliationSessionModel{},
	}
}
