package numbering

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/invoicehub/backend/internal/domain/shared"
)

const (
	DefaultPadding              = 4
	DefaultStartValue     int64 = 1
	DefaultFiscalYearMonth      = 1
	MaxPadding                  = 12
	MaxTemplateLength           = 64
)

// NumberingConfig is a company's numbering setup for one document type
type NumberingConfig struct {
	shared.TenantAggregateRoot
	DocumentType         DocumentType
	Template             string
	Padding              int
	StartValue           int64
	ResetPolicy          ResetPolicy
	PerClient            bool
	FiscalYearStartMonth int
}

// ConfigInput carries the editable fields of a NumberingConfig
type ConfigInput struct {
	Template             string
	Padding              int
	StartValue           int64
	ResetPolicy          ResetPolicy
	PerClient            bool
	FiscalYearStartMonth int
}

// NewNumberingConfig creates a validated config. Zero values for start
// value, reset policy and fiscal year month fall back to defaults.
func NewNumberingConfig(tenantID uuid.UUID, docType DocumentType, input ConfigInput) (*NumberingConfig, error) {
	if !docType.IsValid() {
		return nil, ErrInvalidDocumentType
	}
	cfg := &NumberingConfig{
		TenantAggregateRoot: shared.NewTenantAggregateRoot(tenantID),
		DocumentType:        docType,
	}
	if err := cfg.apply(input); err != nil {
		return nil, err
	}
	return cfg, nil
}

// DefaultConfig is used for a document type the company never configured
func DefaultConfig(tenantID uuid.UUID, docType DocumentType) *NumberingConfig {
	return &NumberingConfig{
		TenantAggregateRoot:  shared.NewTenantAggregateRoot(tenantID),
		DocumentType:         docType,
		Template:             docType.defaultPrefix(),
		Padding:              DefaultPadding,
		StartValue:           DefaultStartValue,
		ResetPolicy:          ResetPolicyNever,
		FiscalYearStartMonth: DefaultFiscalYearMonth,
	}
}

// Update replaces the editable fields and bumps the version
func (c *NumberingConfig) Update(input ConfigInput) error {
	if err := c.apply(input); err != nil {
		return err
	}
	c.Touch()
	c.IncrementVersion()
	return nil
}

func (c *NumberingConfig) apply(input ConfigInput) error {
	if len(input.Template) > MaxTemplateLength {
		return ErrTemplateTooLong
	}
	if input.Padding < 0 || input.Padding > MaxPadding {
		return ErrInvalidPadding
	}
	if input.StartValue == 0 {
		input.StartValue = DefaultStartValue
	}
	if input.StartValue < 1 {
		return ErrInvalidStartValue
	}
	if input.ResetPolicy == "" {
		input.ResetPolicy = ResetPolicyNever
	}
	if !input.ResetPolicy.IsValid() {
		return ErrInvalidResetPolicy
	}
	if input.FiscalYearStartMonth == 0 {
		input.FiscalYearStartMonth = DefaultFiscalYearMonth
	}
	if input.FiscalYearStartMonth < 1 || input.FiscalYearStartMonth > 12 {
		return ErrInvalidFiscalMonth
	}

	c.Template = input.Template
	c.Padding = input.Padding
	c.StartValue = input.StartValue
	c.ResetPolicy = input.ResetPolicy
	c.PerClient = input.PerClient
	c.FiscalYearStartMonth = input.FiscalYearStartMonth
	return nil
}

// Warnings returns non-fatal problems with the template. A fiscal year
// that does not start in January still renders %YYYY% and %YY% from the
// calendar date, so two fiscal years can share a rendered year.
func (c *NumberingConfig) Warnings() []string {
	var warnings []string
	for _, token := range UnknownPlaceholders(c.Template) {
		warnings = append(warnings, ErrInvalidTemplatePlaceholder.Code+": "+token)
	}
	if c.ResetPolicy == ResetPolicyFiscalYear && c.FiscalYearStartMonth != DefaultFiscalYearMonth {
		for _, token := range []string{PlaceholderYear, PlaceholderShortYear} {
			if strings.Contains(c.Template, token) {
				warnings = append(warnings, ErrCalendarYearInFiscalTemplate.Code+": "+token)
			}
		}
	}
	return warnings
}

// ScopeFor resolves the sequence scope for a document. The client is only
// part of the scope when numbering is per client.
func (c *NumberingConfig) ScopeFor(clientID *uuid.UUID) (ScopeKey, error) {
	key := ScopeKey{TenantID: c.TenantID, DocumentType: c.DocumentType}
	if !c.PerClient {
		return key, nil
	}
	if clientID == nil || *clientID == uuid.Nil {
		return ScopeKey{}, ErrClientRequired
	}
	id := *clientID
	key.ClientID = &id
	return key, nil
}

// FiscalYearFor returns the fiscal year marker to store for a document
// issued at t, or nil when the policy does not track fiscal years.
func (c *NumberingConfig) FiscalYearFor(t time.Time) *int {
	if c.ResetPolicy != ResetPolicyFiscalYear {
		return nil
	}
	fy := FiscalYearOf(t, c.FiscalYearStartMonth)
	return &fy
}

// Format renders value for a document issued at t
func (c *NumberingConfig) Format(value int64, t time.Time) string {
	return Render(c.Template, t, value, c.Padding)
}
