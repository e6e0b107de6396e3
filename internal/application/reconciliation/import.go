package reconciliation

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/invoicehub/backend/internal/domain/reconciliation"
	"github.com/invoicehub/backend/internal/domain/shared"
	"github.com/invoicehub/backend/internal/infrastructure/logger"
	"github.com/invoicehub/backend/internal/infrastructure/statement"
	"github.com/invoicehub/backend/internal/infrastructure/storage"
	"github.com/invoicehub/backend/internal/infrastructure/telemetry"
	"go.uber.org/zap"
)

var (
	ErrUnsupportedFormat = shared.NewDomainError("UNSUPPORTED_FORMAT", "Statement files must be CSV or OFX")
	ErrFileTooLarge      = shared.NewDomainError("FILE_TOO_LARGE", "Statement file exceeds the maximum allowed size")
	ErrInvalidStatement  = shared.NewDomainError("VALIDATION_ERROR", "Statement file could not be read")
)

// MaxFileSize returns the largest statement file accepted by ImportStatement
func (s *Service) MaxFileSize() int64 {
	return s.parser.MaxFileSize()
}

// mapParseError turns file level parser failures into domain errors
func mapParseError(err error) error {
	switch {
	case errors.Is(err, statement.ErrUnsupportedFormat):
		return ErrUnsupportedFormat
	case errors.Is(err, statement.ErrFileTooLarge):
		return ErrFileTooLarge
	case errors.Is(err, statement.ErrEmptyFile),
		errors.Is(err, statement.ErrMissingHeader),
		errors.Is(err, statement.ErrInvalidEncoding),
		errors.Is(err, statement.ErrUnsupportedCharset):
		return ErrInvalidStatement.WithMessage(err.Error())
	}
	return err
}

func contentTypeFor(format statement.Format) string {
	if format == statement.FormatOFX {
		return "application/x-ofx"
	}
	return "text/csv"
}

// ImportStatement parses a CSV or OFX statement and stores its lines as
// unmatched transactions. Lines identical to one already imported (same
// reference, date and amount) are skipped; row errors are reported without
// failing the import.
func (s *Service) ImportStatement(ctx context.Context, tenantID uuid.UUID, req ImportStatementRequest) (*ImportResult, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "reconciliation", "import_statement")
	defer span.End()
	telemetry.SetAttributes(span, telemetry.SpanAttrTenantID, tenantID.String())

	var (
		format statement.Format
		err    error
	)
	if req.Format != "" {
		format = statement.Format(strings.ToLower(req.Format))
	} else if format, err = statement.DetectFormat(req.Filename, req.Data); err != nil {
		telemetry.RecordError(span, err)
		return nil, mapParseError(err)
	}

	parsed, err := s.parser.Parse(ctx, format, req.Data)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, mapParseError(err)
	}

	batchID := uuid.New()
	result := &ImportResult{
		BatchID:         batchID,
		Format:          string(parsed.Format),
		TotalRows:       parsed.TotalRows,
		ErrorCount:      parsed.Errors.TotalCount(),
		Errors:          parsed.Errors.Errors(),
		ErrorsTruncated: parsed.Errors.IsTruncated(),
	}

	err = s.txRunner.RunInTx(ctx, func(txCtx context.Context) error {
		batch := make([]*reconciliation.BankTransaction, 0, len(parsed.Lines))
		for _, line := range parsed.Lines {
			exists, err := s.txRepo.ExistsByFingerprint(txCtx, tenantID, line.Reference, line.Date, line.Amount)
			if err != nil {
				return err
			}
			if exists {
				result.Duplicates++
				continue
			}
			tx, err := reconciliation.NewBankTransaction(tenantID, line.Amount, line.Date, line.Reference, line.Description)
			if err != nil {
				return fmt.Errorf("row %d: %w", line.Row, err)
			}
			tx.ImportBatchID = &batchID
			batch = append(batch, tx)
		}
		if len(batch) == 0 {
			return nil
		}
		if err := s.txRepo.CreateBatch(txCtx, batch); err != nil {
			return err
		}
		result.Imported = len(batch)
		return nil
	})
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	if s.archive != nil && result.Imported > 0 {
		key := storage.StatementKey(tenantID, batchID, req.Filename)
		if err := s.archive.Put(ctx, key, req.Data, contentTypeFor(parsed.Format)); err != nil {
			logger.FromContext(ctx).Warn("Failed to archive statement file",
				zap.String("key", key), zap.Error(err))
		} else {
			result.ArchiveKey = key
		}
	}

	s.metrics.RecordImport(ctx, tenantID.String(), result.Format, result.Imported, result.Duplicates)
	telemetry.SetAttributes(span, telemetry.SpanAttrImported, result.Imported)
	logger.FromContext(ctx).Info("Statement imported",
		zap.String("batch_id", batchID.String()),
		zap.String("format", result.Format),
		zap.Int("imported", result.Imported),
		zap.Int("duplicates", result.Duplicates),
		zap.Int("errors", result.ErrorCount),
	)
	telemetry.SetOK(span)
	return result, nil
}
