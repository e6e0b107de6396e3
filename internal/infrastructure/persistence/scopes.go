package persistence

import (
	"strings"

	"github.com/google/uuid"
	"github.com/invoicehub/backend/internal/domain/shared"
	"gorm.io/gorm"
)

// tenantScope restricts a query to one company
func tenantScope(tenantID uuid.UUID) func(db *gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		return db.Where("tenant_id = ?", tenantID)
	}
}

// paginate applies filter paging and a whitelisted sort order
func paginate(filter shared.Filter, allowed map[string]bool, defaultField string) func(db *gorm.DB) *gorm.DB {
	filter = filter.Normalize()
	return func(db *gorm.DB) *gorm.DB {
		field := ValidateSortField(filter.OrderBy, allowed, defaultField)
		return db.Order(field + " " + ValidateSortOrder(filter.OrderDir) + ", id ASC").
			Offset(filter.Offset()).
			Limit(filter.PageSize)
	}
}

// ValidateSortOrder normalizes the sort direction, defaulting to DESC
func ValidateSortOrder(orderDir string) string {
	if strings.EqualFold(strings.TrimSpace(orderDir), "asc") {
		return "ASC"
	}
	return "DESC"
}

// ValidateSortField returns sortField when whitelisted, otherwise defaultField
func ValidateSortField(sortField string, allowed map[string]bool, defaultField string) string {
	trimmed := strings.TrimSpace(sortField)
	if trimmed != "" && allowed[trimmed] {
		return trimmed
	}
	return defaultField
}

// PaymentSortFields contains allowed sort fields for payments
var PaymentSortFields = map[string]bool{
	"created_at":   true,
	"payment_date": true,
	"amount":       true,
}

// SessionSortFields contains allowed sort fields for reconciliation sessions
var SessionSortFields = map[string]bool{
	"created_at": true,
	"start_date": true,
	"end_date":   true,
	"status":     true,
}
