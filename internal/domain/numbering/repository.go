package numbering

import (
	"context"

	"github.com/google/uuid"
)

// ConfigRepository persists numbering configs
type ConfigRepository interface {
	// FindByDocumentType returns nil, nil when the company has no config
	FindByDocumentType(ctx context.Context, tenantID uuid.UUID, docType DocumentType) (*NumberingConfig, error)
	FindAllForTenant(ctx context.Context, tenantID uuid.UUID) ([]NumberingConfig, error)
	Save(ctx context.Context, cfg *NumberingConfig) error
	// SaveWithLock saves only if the stored version is one less than cfg.Version
	SaveWithLock(ctx context.Context, cfg *NumberingConfig) error
}

// SequenceRepository persists counters
type SequenceRepository interface {
	// FindByScope returns nil, nil when the scope was never used
	FindByScope(ctx context.Context, key ScopeKey) (*Sequence, error)

	// Reserve creates the scope on first use, then atomically issues the
	// next value following Sequence.Advance semantics. Transient write
	// conflicts are reported as ErrCounterConflict.
	Reserve(ctx context.Context, key ScopeKey, params ReserveParams) (int64, error)

	// Reset sets the next value of an existing scope; ErrScopeNotFound if absent
	Reset(ctx context.Context, key ScopeKey, startValue int64) error
}
