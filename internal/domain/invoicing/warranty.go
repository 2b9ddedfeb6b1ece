package invoicing

import (
	"time"

	"github.com/google/uuid"
)

// WarrantyRecord registers the warranty of one sold item
type WarrantyRecord struct {
	ID             uuid.UUID
	TenantID       uuid.UUID
	InvoiceID      uuid.UUID
	InvoiceNumber  string
	CustomerID     uuid.UUID
	ProductID      uuid.UUID
	VariantID      *uuid.UUID
	SerialNumber   string
	WarrantyMonths int
	StartsAt       time.Time
	ExpiresAt      time.Time
	CreatedAt      time.Time
}

// PlanWarranties returns the warranty rows an invoice should have. Items with
// zero months are never registered, even when the invoice provides warranty.
func PlanWarranties(inv *Invoice) []WarrantyRecord {
	items := inv.WarrantiedItems()
	if len(items) == 0 {
		return nil
	}

	startsAt := inv.IssuedAt
	if startsAt.IsZero() {
		startsAt = time.Now()
	}
	now := time.Now()

	records := make([]WarrantyRecord, 0, len(items))
	for _, item := range items {
		records = append(records, WarrantyRecord{
			ID:             uuid.New(),
			TenantID:       inv.TenantID,
			InvoiceID:      inv.ID,
			InvoiceNumber:  inv.InvoiceNumber,
			CustomerID:     inv.CustomerID,
			ProductID:      item.ProductID,
			VariantID:      item.VariantID,
			SerialNumber:   item.SerialNumber,
			WarrantyMonths: item.WarrantyMonths,
			StartsAt:       startsAt,
			ExpiresAt:      startsAt.AddDate(0, item.WarrantyMonths, 0),
			CreatedAt:      now,
		})
	}
	return records
}
