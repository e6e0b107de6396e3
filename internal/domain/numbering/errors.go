package numbering

import "github.com/invoicehub/backend/internal/domain/shared"

var (
	ErrCounterConflict = shared.NewRetryableError(
		"CONCURRENT_COUNTER_CONFLICT",
		"Could not reserve a document number because of concurrent requests, please retry",
	)
	ErrInvalidTemplatePlaceholder = shared.NewDomainError(
		"INVALID_TEMPLATE_PLACEHOLDER",
		"Template contains unrecognized placeholders, they will be rendered literally",
	)
	ErrCalendarYearInFiscalTemplate = shared.NewDomainError(
		"CALENDAR_YEAR_IN_FISCAL_TEMPLATE",
		"Year placeholders render the calendar year, numbers from different fiscal years can collide",
	)
	ErrScopeNotFound       = shared.NewDomainError("SCOPE_NOT_FOUND", "Number sequence scope not found")
	ErrInvalidDocumentType = shared.NewDomainError("INVALID_DOCUMENT_TYPE", "Document type must be one of invoice, estimate, credit_note")
	ErrInvalidResetPolicy  = shared.NewDomainError("INVALID_RESET_POLICY", "Reset policy must be one of never, fiscal_year, manual")
	ErrInvalidPadding      = shared.NewDomainError("VALIDATION_ERROR", "Padding must be between 0 and 12")
	ErrInvalidStartValue   = shared.NewDomainError("VALIDATION_ERROR", "Start value must be at least 1")
	ErrInvalidFiscalMonth  = shared.NewDomainError("VALIDATION_ERROR", "Fiscal year start month must be between 1 and 12")
	ErrTemplateTooLong     = shared.NewDomainError("VALIDATION_ERROR", "Template must be at most 64 characters")
	ErrClientRequired      = shared.NewDomainError("CLIENT_REQUIRED", "A client is required because numbering is scoped per client")
	ErrResetNotAllowed     = shared.NewDomainError("RESET_NOT_ALLOWED", "Sequences can only be reset when the reset policy is manual")
)
