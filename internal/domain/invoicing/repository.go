package invoicing

import (
	"context"

	"github.com/erp/invoicing/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// InvoiceRepository persists invoice headers. Items are owned by
// InvoiceItemRepository so each record set can be written on its own.
type InvoiceRepository interface {
	// FindByIDForTenant loads the header and its items
	FindByIDForTenant(ctx context.Context, tenantID, id uuid.UUID) (*Invoice, error)
	FindByNumber(ctx context.Context, tenantID uuid.UUID, invoiceNumber string) (*Invoice, error)
	FindAllForTenant(ctx context.Context, tenantID uuid.UUID, filter shared.Filter) ([]Invoice, error)
	CountForTenant(ctx context.Context, tenantID uuid.UUID, filter shared.Filter) (int64, error)
	ExistsByNumber(ctx context.Context, tenantID uuid.UUID, invoiceNumber string) (bool, error)
	Create(ctx context.Context, invoice *Invoice) error
	// Update writes the header when the stored version matches and bumps it.
	// A version mismatch returns shared.ErrConcurrencyConflict.
	Update(ctx context.Context, invoice *Invoice) error
	DeleteForTenant(ctx context.Context, tenantID, id uuid.UUID) error
}

// InvoiceItemRepository stores the item set of an invoice as a unit
type InvoiceItemRepository interface {
	FindByInvoice(ctx context.Context, tenantID, invoiceID uuid.UUID) ([]InvoiceItem, error)
	// ReplaceForInvoice deletes every item of the invoice and inserts items in
	// one transaction
	ReplaceForInvoice(ctx context.Context, tenantID, invoiceID uuid.UUID, items []InvoiceItem) error
	DeleteByInvoice(ctx context.Context, tenantID, invoiceID uuid.UUID) error
}

// StockMovementRepository stores movements keyed by reference number
type StockMovementRepository interface {
	FindByReference(ctx context.Context, tenantID uuid.UUID, referenceNumber string) ([]StockMovement, error)
	// ReplaceByReference deletes every movement under the reference number and
	// inserts movements in one transaction. An empty slice only deletes.
	ReplaceByReference(ctx context.Context, tenantID uuid.UUID, referenceNumber string, movements []StockMovement) error
	// OnHand sums every movement of the product
	OnHand(ctx context.Context, tenantID, productID uuid.UUID) (decimal.Decimal, error)
}

// WarrantyRepository stores warranty records keyed by invoice id
type WarrantyRepository interface {
	FindByInvoice(ctx context.Context, tenantID, invoiceID uuid.UUID) ([]WarrantyRecord, error)
	// ReplaceForInvoice deletes every record of the invoice and inserts
	// records in one transaction. An empty slice only deletes.
	ReplaceForInvoice(ctx context.Context, tenantID, invoiceID uuid.UUID, records []WarrantyRecord) error
}

// LedgerRepository stores ledger entries and payments
type LedgerRepository interface {
	FindEntriesByInvoice(ctx context.Context, tenantID, invoiceID uuid.UUID) ([]LedgerEntry, error)
	FindPaymentsByInvoice(ctx context.Context, tenantID, invoiceID uuid.UUID) ([]Payment, error)
	// LoadState returns the active entry (nil when none) and the payment sum
	LoadState(ctx context.Context, tenantID, invoiceID uuid.UUID) (LedgerState, error)
	// Apply writes the plan in one transaction
	Apply(ctx context.Context, plan LedgerPlan) error
}

// ReconciliationLog keeps the gaps left by failed sync stages for review
type ReconciliationLog interface {
	// Record opens a gap. When the invoice already has an open gap at the
	// same stage, that gap's attempt count and reason are updated instead.
	Record(ctx context.Context, gap ReconciliationGap) error
	FindOpen(ctx context.Context, tenantID uuid.UUID, filter shared.Filter) ([]ReconciliationGap, error)
	// FindRetryable pages through the open gaps at retryable stages, oldest
	// first
	FindRetryable(ctx context.Context, tenantID uuid.UUID, filter shared.Filter) ([]ReconciliationGap, error)
	FindOpenByInvoice(ctx context.Context, tenantID, invoiceID uuid.UUID) ([]ReconciliationGap, error)
	// ResolveStage resolves every open gap of the invoice at that stage
	ResolveStage(ctx context.Context, tenantID, invoiceID uuid.UUID, stage Stage) error
	// OpenTenants lists the tenants that have at least one open gap
	OpenTenants(ctx context.Context) ([]uuid.UUID, error)
}

// ProductCatalog prices items that arrive without a unit price
type ProductCatalog interface {
	// ResolvePrice returns product price plus the variant price adjustment
	ResolvePrice(ctx context.Context, tenantID, productID uuid.UUID, variantID *uuid.UUID) (decimal.Decimal, error)
}
