package telemetry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// ErrMeterNil is returned when metrics are built without a meter
var ErrMeterNil = errors.New("meter must not be nil")

// Metric attribute keys
const (
	AttrTenantID     = "tenant_id"
	AttrDocumentType = "document_type"
	AttrOutcome      = "outcome"
	AttrFormat       = "format"
)

// Outcome values
const (
	OutcomeSuccess  = "success"
	OutcomeConflict = "conflict"
	OutcomeReplay   = "replay"
	OutcomeError    = "error"
)

var reserveDurationBuckets = []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5}

// DomainMetrics holds the numbering and reconciliation instruments.
// All methods accept a nil receiver.
type DomainMetrics struct {
	numbersReserved   metric.Int64Counter
	counterConflicts  metric.Int64Counter
	reserveDuration   metric.Float64Histogram
	matches           metric.Int64Counter
	unmatches         metric.Int64Counter
	autoMatchRuns     metric.Int64Counter
	autoMatchResults  metric.Int64Counter
	importedLines     metric.Int64Counter
	duplicateLines    metric.Int64Counter
	sessionsCompleted metric.Int64Counter
}

func NewDomainMetrics(meter metric.Meter) (*DomainMetrics, error) {
	if meter == nil {
		return nil, ErrMeterNil
	}

	m := &DomainMetrics{}
	counters := []struct {
		target      *metric.Int64Counter
		name        string
		description string
		unit        string
	}{
		{&m.numbersReserved, "invoicehub_numbers_reserved_total", "Document numbers issued", "{numbers}"},
		{&m.counterConflicts, "invoicehub_counter_conflicts_total", "Transient conflicts while incrementing a sequence", "{conflicts}"},
		{&m.matches, "invoicehub_matches_total", "Transactions matched to payments", "{matches}"},
		{&m.unmatches, "invoicehub_unmatches_total", "Matches cleared", "{matches}"},
		{&m.autoMatchRuns, "invoicehub_auto_match_runs_total", "Auto-match runs", "{runs}"},
		{&m.autoMatchResults, "invoicehub_auto_match_transactions_total", "Transactions considered by auto-match", "{transactions}"},
		{&m.importedLines, "invoicehub_statement_lines_imported_total", "Statement lines stored by import", "{lines}"},
		{&m.duplicateLines, "invoicehub_statement_lines_duplicate_total", "Statement lines skipped as already imported", "{lines}"},
		{&m.sessionsCompleted, "invoicehub_sessions_completed_total", "Reconciliation sessions completed", "{sessions}"},
	}
	for _, c := range counters {
		counter, err := meter.Int64Counter(c.name, metric.WithDescription(c.description), metric.WithUnit(c.unit))
		if err != nil {
			return nil, fmt.Errorf("failed to create counter %s: %w", c.name, err)
		}
		*c.target = counter
	}

	var err error
	m.reserveDuration, err = meter.Float64Histogram("invoicehub_reserve_duration_seconds",
		metric.WithDescription("Time to reserve a document number including retries"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(reserveDurationBuckets...),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create reserve duration histogram: %w", err)
	}

	return m, nil
}

// RecordReservation records one reserveNext call
func (m *DomainMetrics) RecordReservation(ctx context.Context, tenantID, documentType, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	attrs := []attribute.KeyValue{
		attribute.String(AttrTenantID, tenantID),
		attribute.String(AttrDocumentType, documentType),
		attribute.String(AttrOutcome, outcome),
	}
	if outcome == OutcomeSuccess {
		m.numbersReserved.Add(ctx, 1, metric.WithAttributes(attrs[:2]...))
	}
	m.reserveDuration.Record(ctx, d.Seconds(), metric.WithAttributes(attrs...))
}

// RecordCounterConflict counts one retried increment
func (m *DomainMetrics) RecordCounterConflict(ctx context.Context, tenantID, documentType string) {
	if m == nil {
		return
	}
	m.counterConflicts.Add(ctx, 1, metric.WithAttributes(
		attribute.String(AttrTenantID, tenantID),
		attribute.String(AttrDocumentType, documentType),
	))
}

func (m *DomainMetrics) RecordMatch(ctx context.Context, tenantID string) {
	if m == nil {
		return
	}
	m.matches.Add(ctx, 1, tenantAttr(tenantID))
}

func (m *DomainMetrics) RecordUnmatch(ctx context.Context, tenantID string) {
	if m == nil {
		return
	}
	m.unmatches.Add(ctx, 1, tenantAttr(tenantID))
}

// RecordAutoMatch records one run and its per-transaction results
func (m *DomainMetrics) RecordAutoMatch(ctx context.Context, tenantID string, matched, unmatched int) {
	if m == nil {
		return
	}
	tenant := attribute.String(AttrTenantID, tenantID)
	m.autoMatchRuns.Add(ctx, 1, metric.WithAttributes(tenant))
	m.autoMatchResults.Add(ctx, int64(matched), metric.WithAttributes(tenant, attribute.String(AttrOutcome, "matched")))
	m.autoMatchResults.Add(ctx, int64(unmatched), metric.WithAttributes(tenant, attribute.String(AttrOutcome, "unmatched")))
	m.matches.Add(ctx, int64(matched), metric.WithAttributes(tenant))
}

// RecordImport records stored and skipped lines of one statement import
func (m *DomainMetrics) RecordImport(ctx context.Context, tenantID, format string, imported, duplicates int) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String(AttrTenantID, tenantID),
		attribute.String(AttrFormat, format),
	)
	m.importedLines.Add(ctx, int64(imported), attrs)
	m.duplicateLines.Add(ctx, int64(duplicates), attrs)
}

func (m *DomainMetrics) RecordSessionCompleted(ctx context.Context, tenantID string) {
	if m == nil {
		return
	}
	m.sessionsCompleted.Add(ctx, 1, tenantAttr(tenantID))
}

func tenantAttr(tenantID string) metric.AddOption {
	return metric.WithAttributes(attribute.String(AttrTenantID, tenantID))
}
