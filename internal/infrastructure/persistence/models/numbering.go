package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/invoicehub/backend/internal/domain/numbering"
)

// NumberingConfigModel is the persistence model for a company's numbering
// setup of one document type
type NumberingConfigModel struct {
	AggregateModel
	TenantID             uuid.UUID  `gorm:"type:uuid;not null;uniqueIndex:idx_numbering_configs_tenant_doc,priority:1"`
	CreatedBy            *uuid.UUID `gorm:"type:uuid"`
	DocumentType         string     `gorm:"type:varchar(20);not null;uniqueIndex:idx_numbering_configs_tenant_doc,priority:2"`
	Template             string     `gorm:"type:varchar(64);not null;default:''"`
	Padding              int        `gorm:"not null;default:4"`
	StartValue           int64      `gorm:"not null;default:1"`
	ResetPolicy          string     `gorm:"type:varchar(20);not null;default:'never'"`
	PerClient            bool       `gorm:"not null;default:false"`
	FiscalYearStartMonth int        `gorm:"not null;default:1"`
}

// TableName returns the table name for GORM
func (NumberingConfigModel) TableName() string {
	return "numbering_configs"
}

// ToDomain converts the persistence model to a domain NumberingConfig
func (m *NumberingConfigModel) ToDomain() *numbering.NumberingConfig {
	return &numbering.NumberingConfig{
		TenantAggregateRoot:  m.tenantRoot(m.TenantID, m.CreatedBy),
		DocumentType:         numbering.DocumentType(m.DocumentType),
		Template:             m.Template,
		Padding:              m.Padding,
		StartValue:           m.StartValue,
		ResetPolicy:          numbering.ResetPolicy(m.ResetPolicy),
		PerClient:            m.PerClient,
		FiscalYearStartMonth: m.FiscalYearStartMonth,
	}
}

// FromDomain populates the persistence model from a domain NumberingConfig
func (m *NumberingConfigModel) FromDomain(c *numbering.NumberingConfig) {
	m.TenantID, m.CreatedBy = m.fromTenantRoot(c.TenantAggregateRoot)
	m.DocumentType = c.DocumentType.String()
	m.Template = c.Template
	m.Padding = c.Padding
	m.StartValue = c.StartValue
	m.ResetPolicy = c.ResetPolicy.String()
	m.PerClient = c.PerClient
	m.FiscalYearStartMonth = c.FiscalYearStartMonth
}

// NumberingConfigModelFromDomain creates a persistence model from a domain NumberingConfig
func NumberingConfigModelFromDomain(c *numbering.NumberingConfig) *NumberingConfigModel {
	m := &NumberingConfigModel{}
	m.FromDomain(c)
	return m
}

// NumberSequenceModel is the counter row of one numbering scope.
// ClientKey is the client id as text, or '' for company-wide scopes, so the
// scope stays unique without relying on NULL semantics.
type NumberSequenceModel struct {
	ID           uuid.UUID  `gorm:"type:uuid;primary_key"`
	TenantID     uuid.UUID  `gorm:"type:uuid;not null;uniqueIndex:idx_number_sequences_scope,priority:1"`
	DocumentType string     `gorm:"type:varchar(20);not null;uniqueIndex:idx_number_sequences_scope,priority:2"`
	ClientKey    string     `gorm:"type:varchar(36);not null;default:'';uniqueIndex:idx_number_sequences_scope,priority:3"`
	ClientID     *uuid.UUID `gorm:"type:uuid"`
	NextValue    int64      `gorm:"not null"`
	FiscalYear   *int
	Version      int       `gorm:"not null;default:1"`
	CreatedAt    time.Time `gorm:"not null"`
	UpdatedAt    time.Time `gorm:"not null"`
}

// TableName returns the table name for GORM
func (NumberSequenceModel) TableName() string {
	return "number_sequences"
}

// ToDomain converts the persistence model to a domain Sequence
func (m *NumberSequenceModel) ToDomain() *numbering.Sequence {
	return &numbering.Sequence{
		ID: m.ID,
		Key: numbering.ScopeKey{
			TenantID:     m.TenantID,
			DocumentType: numbering.DocumentType(m.DocumentType),
			ClientID:     m.ClientID,
		},
		NextValue:  m.NextValue,
		FiscalYear: m.FiscalYear,
		Version:    m.Version,
		CreatedAt:  m.CreatedAt,
		UpdatedAt:  m.UpdatedAt,
	}
}

// FromDomain populates the persistence model from a domain Sequence
func (m *NumberSequenceModel) FromDomain(s *numbering.Sequence) {
	m.ID = s.ID
	m.TenantID = s.Key.TenantID
	m.DocumentType = s.Key.DocumentType.String()
	m.ClientKey = s.Key.ClientKey()
	m.ClientID = s.Key.ClientID
	m.NextValue = s.NextValue
	m.FiscalYear = s.FiscalYear
	m.Version = s.Version
	m.CreatedAt = s.CreatedAt
	m.UpdatedAt = s.UpdatedAt
}
