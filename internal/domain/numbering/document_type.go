package numbering

import "strings"

// DocumentType identifies which family of documents a sequence numbers
type DocumentType string

const (
	DocumentTypeInvoice    DocumentType = "invoice"
	DocumentTypeEstimate   DocumentType = "estimate"
	DocumentTypeCreditNote DocumentType = "credit_note"
)

// AllDocumentTypes returns every supported document type
func AllDocumentTypes() []DocumentType {
	return []DocumentType{DocumentTypeInvoice, DocumentTypeEstimate, DocumentTypeCreditNote}
}

// IsValid reports whether the document type is supported
func (t DocumentType) IsValid() bool {
	switch t {
	case DocumentTypeInvoice, DocumentTypeEstimate, DocumentTypeCreditNote:
		return true
	}
	return false
}

// String returns the string representation
func (t DocumentType) String() string {
	return string(t)
}

// ParseDocumentType parses a document type, accepting "credit-note" as an alias
func ParseDocumentType(s string) (DocumentType, error) {
	t := DocumentType(strings.ReplaceAll(strings.ToLower(strings.TrimSpace(s)), "-", "_"))
	if !t.IsValid() {
		return "", ErrInvalidDocumentType
	}
	return t, nil
}

// defaultPrefix is the template used before a company configures numbering
func (t DocumentType) defaultPrefix() string {
	switch t {
	case DocumentTypeEstimate:
		return "EST-"
	case DocumentTypeCreditNote:
		return "CN-"
	default:
		return "INV-"
	}
}

// ResetPolicy controls when a sequence restarts at its start value
type ResetPolicy string

const (
	ResetPolicyNever      ResetPolicy = "never"
	ResetPolicyFiscalYear ResetPolicy = "fiscal_year"
	ResetPolicyManual     ResetPolicy = "manual"
)

// IsValid reports whether the reset policy is supported
func (p ResetPolicy) IsValid() bool {
	switch p {
	case ResetPolicyNever, ResetPolicyFiscalYear, ResetPolicyManual:
		return true
	}
	return false
}

// String returns the string representation
func (p ResetPolicy) String() string {
	return string(p)
}
