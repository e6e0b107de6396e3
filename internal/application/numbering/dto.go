package numbering

import (
	"time"

	"github.com/google/uuid"
	"github.com/invoicehub/backend/internal/domain/numbering"
)

// UpsertConfigRequest carries the editable numbering settings of a document type
type UpsertConfigRequest struct {
	Template             string
	Padding              int
	StartValue           int64
	ResetPolicy          string
	PerClient            bool
	FiscalYearStartMonth int
	// Version, when set, must equal the stored version
	Version *int
}

// ConfigResponse is a numbering config as returned to clients
type ConfigResponse struct {
	ID                   uuid.UUID `json:"id"`
	DocumentType         string    `json:"document_type"`
	Template             string    `json:"template"`
	Padding              int       `json:"padding"`
	StartValue           int64     `json:"start_value"`
	ResetPolicy          string    `json:"reset_policy"`
	PerClient            bool      `json:"per_client"`
	FiscalYearStartMonth int       `json:"fiscal_year_start_month"`
	Version              int       `json:"version"`
	// IsDefault is set when the company never saved a config for the type
	IsDefault bool `json:"is_default"`
	// Example renders the start value with today's date
	Example   string    `json:"example"`
	Warnings  []string  `json:"warnings,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NumberRequest identifies the scope and date of a document number
type NumberRequest struct {
	DocumentType string
	ClientID     *uuid.UUID
	// IssueDate defaults to now
	IssueDate *time.Time
}

// ReserveRequest reserves the next number of a scope
type ReserveRequest struct {
	NumberRequest
	// IdempotencyKey makes retries of the same request return the same number
	IdempotencyKey string
}

// NumberResponse is a previewed or reserved document number
type NumberResponse struct {
	DocumentType string     `json:"document_type"`
	Number       string     `json:"number"`
	Value        int64      `json:"value"`
	ClientID     *uuid.UUID `json:"client_id,omitempty"`
	FiscalYear   *int       `json:"fiscal_year,omitempty"`
	IssueDate    time.Time  `json:"issue_date"`
	// Replayed is set when the response was served from the idempotency store
	Replayed bool `json:"replayed"`
}

// ResetRequest restarts a scope under the manual reset policy
type ResetRequest struct {
	ClientID *uuid.UUID
	// StartValue defaults to the config's start value
	StartValue *int64
}

// ResetResponse reports the value the next reservation will receive
type ResetResponse struct {
	DocumentType string     `json:"document_type"`
	ClientID     *uuid.UUID `json:"client_id,omitempty"`
	NextValue    int64      `json:"next_value"`
	NextNumber   string     `json:"next_number"`
}

// ToConfigResponse maps a domain config to its response
func ToConfigResponse(cfg *numbering.NumberingConfig, isDefault bool, now time.Time) ConfigResponse {
	return ConfigResponse{
		ID:                   cfg.ID,
		DocumentType:         cfg.DocumentType.String(),
		Template:             cfg.Template,
		Padding:              cfg.Padding,
		StartValue:           cfg.StartValue,
		ResetPolicy:          cfg.ResetPolicy.String(),
		PerClient:            cfg.PerClient,
		FiscalYearStartMonth: cfg.FiscalYearStartMonth,
		Version:              cfg.Version,
		IsDefault:            isDefault,
		Example:              cfg.Format(cfg.StartValue, now),
		Warnings:             cfg.Warnings(),
		UpdatedAt:            cfg.UpdatedAt,
	}
}

func toNumberResponse(n numbering.Number, issueDate time.Time) *NumberResponse {
	return &NumberResponse{
		DocumentType: n.Scope.DocumentType.String(),
		Number:       n.Formatted,
		Value:        n.Value,
		ClientID:     n.Scope.ClientID,
		FiscalYear:   n.FiscalYear,
		IssueDate:    issueDate,
	}
}
