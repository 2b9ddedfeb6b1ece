package persistence

import (
	"strings"
)

// ValidateSortOrder normalizes the sort order to ASC or DESC, defaulting to DESC
func ValidateSortOrder(orderDir string) string {
	if strings.ToUpper(strings.TrimSpace(orderDir)) == "ASC" {
		return "ASC"
	}
	return "DESC"
}

// ValidateSortField returns sortField when it is whitelisted, else defaultField
func ValidateSortField(sortField string, allowedFields map[string]bool, defaultField string) string {
	trimmed := strings.TrimSpace(sortField)
	if allowedFields[trimmed] {
		return trimmed
	}
	return defaultField
}

// InvoiceSortFields contains the allowed sort fields for invoice lists
var InvoiceSortFields = map[string]bool{
	"created_at":     true,
	"updated_at":     true,
	"issued_at":      true,
	"invoice_number": true,
	"customer_name":  true,
	"total_amount":   true,
	"payment_status": true,
}
