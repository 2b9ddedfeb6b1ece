package invoicing

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// MovementType is the direction of a stock movement
type MovementType string

const (
	MovementTypeIncoming MovementType = "incoming"
	MovementTypeOutgoing MovementType = "outgoing"
)

// SyncMode selects how the stock movements of an invoice are reconciled
type SyncMode string

const (
	// SyncModeCreate writes movements for a new invoice
	SyncModeCreate SyncMode = "create"
	// SyncModeReplace drops the movements under the reference and writes fresh ones
	SyncModeReplace SyncMode = "replace"
	// SyncModeReverse drops the movements under the reference and writes none
	SyncModeReverse SyncMode = "reverse"
)

// IsValid checks if the mode is a known SyncMode
func (m SyncMode) IsValid() bool {
	switch m {
	case SyncModeCreate, SyncModeReplace, SyncModeReverse:
		return true
	}
	return false
}

// StockMovement is an append-only inventory quantity change. On-hand stock is
// the sum of movements per product, so quantity is signed.
type StockMovement struct {
	ID              uuid.UUID
	TenantID        uuid.UUID
	ProductID       uuid.UUID
	VariantID       *uuid.UUID
	Quantity        decimal.Decimal
	MovementType    MovementType
	ReferenceNumber string
	Notes           string
	CreatedAt       time.Time
}

// NewOutgoingMovement derives the sale movement for one invoice item
func NewOutgoingMovement(tenantID uuid.UUID, referenceNumber string, item InvoiceItem) StockMovement {
	notes := "Sale " + referenceNumber
	if item.SerialNumber != "" {
		notes += " S/N " + item.SerialNumber
	}
	return StockMovement{
		ID:              uuid.New(),
		TenantID:        tenantID,
		ProductID:       item.ProductID,
		VariantID:       item.VariantID,
		Quantity:        item.Quantity.Neg(),
		MovementType:    MovementTypeOutgoing,
		ReferenceNumber: referenceNumber,
		Notes:           notes,
		CreatedAt:       time.Now(),
	}
}

// PlanMovements returns the movements an invoice should have under the given
// mode. Reverse and cancelled invoices produce none.
func PlanMovements(inv *Invoice, mode SyncMode) []StockMovement {
	if mode == SyncModeReverse || inv.IsCancelled() {
		return nil
	}
	movements := make([]StockMovement, 0, len(inv.Items))
	for _, item := range inv.Items {
		movements = append(movements, NewOutgoingMovement(inv.TenantID, inv.InvoiceNumber, item))
	}
	return movements
}
