package numbering

import (
	"time"

	"github.com/google/uuid"
)

// ScopeKey identifies one counter
type ScopeKey struct {
	TenantID     uuid.UUID
	DocumentType DocumentType
	ClientID     *uuid.UUID
}

// ClientKey is the client part of the scope as stored, "" when unscoped
func (k ScopeKey) ClientKey() string {
	if k.ClientID == nil {
		return ""
	}
	return k.ClientID.String()
}

// String returns a stable textual form, used for logging and cache keys
func (k ScopeKey) String() string {
	s := k.TenantID.String() + ":" + k.DocumentType.String()
	if c := k.ClientKey(); c != "" {
		s += ":" + c
	}
	return s
}

// Sequence is the persisted counter state of a scope
type Sequence struct {
	ID         uuid.UUID
	Key        ScopeKey
	NextValue  int64
	FiscalYear *int
	Version    int
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// NewSequence creates the initial state of a scope
func NewSequence(key ScopeKey, startValue int64, fiscalYear *int) *Sequence {
	now := time.Now()
	return &Sequence{
		ID:         uuid.New(),
		Key:        key,
		NextValue:  startValue,
		FiscalYear: fiscalYear,
		Version:    1,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

// ReserveParams describes one reservation against a scope
type ReserveParams struct {
	StartValue int64
	FiscalYear *int
}

// rollsOver reports whether a reservation in fiscal year fy restarts the
// counter. Only moving forward restarts it; documents backdated into an
// earlier fiscal year keep counting in the current epoch, and a scope
// without a marker adopts fy without restarting.
func (s *Sequence) rollsOver(fy *int) bool {
	if fy == nil || s.FiscalYear == nil {
		return false
	}
	return *s.FiscalYear < *fy
}

// Peek returns the value the next reservation with params would issue
func (s *Sequence) Peek(params ReserveParams) int64 {
	if s == nil {
		return params.StartValue
	}
	if s.rollsOver(params.FiscalYear) {
		return params.StartValue
	}
	return s.NextValue
}

// Advance issues the next value and moves the counter. Storage
// implementations must perform the same transition in one atomic step.
func (s *Sequence) Advance(params ReserveParams) int64 {
	if s.rollsOver(params.FiscalYear) {
		s.NextValue = params.StartValue
	}
	if params.FiscalYear != nil && (s.FiscalYear == nil || *s.FiscalYear < *params.FiscalYear) {
		fy := *params.FiscalYear
		s.FiscalYear = &fy
	}
	issued := s.NextValue
	s.NextValue++
	s.Version++
	s.UpdatedAt = time.Now()
	return issued
}

// Reset restarts the counter at startValue
func (s *Sequence) Reset(startValue int64) {
	s.NextValue = startValue
	s.Version++
	s.UpdatedAt = time.Now()
}
