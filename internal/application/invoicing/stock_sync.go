package invoicing

import (
	"context"
	"fmt"

	"github.com/erp/invoicing/internal/domain/invoicing"
	"go.uber.org/zap"
)

// StockSynchronizer keeps the outgoing movements tagged with an invoice
// number identical to the invoice's current items
type StockSynchronizer interface {
	Sync(ctx context.Context, inv *invoicing.Invoice, mode invoicing.SyncMode) error
}

// StockLedgerSynchronizer rewrites the movement set of an invoice as a whole.
// Create and replace share one path so a retried create never duplicates rows.
type StockLedgerSynchronizer struct {
	movements invoicing.StockMovementRepository
	logger    *zap.Logger
}

// NewStockLedgerSynchronizer creates a StockLedgerSynchronizer
func NewStockLedgerSynchronizer(movements invoicing.StockMovementRepository, logger *zap.Logger) *StockLedgerSynchronizer {
	return &StockLedgerSynchronizer{
		movements: movements,
		logger:    logger,
	}
}

// Sync reconciles the movements of inv under the given mode
func (s *StockLedgerSynchronizer) Sync(ctx context.Context, inv *invoicing.Invoice, mode invoicing.SyncMode) error {
	if !mode.IsValid() {
		return fmt.Errorf("unknown stock sync mode %q", mode)
	}
	if inv.InvoiceNumber == "" {
		return fmt.Errorf("invoice %s has no invoice number to reference stock movements", inv.ID)
	}

	planned := invoicing.PlanMovements(inv, mode)
	if err := s.movements.ReplaceByReference(ctx, inv.TenantID, inv.InvoiceNumber, planned); err != nil {
		return fmt.Errorf("failed to %s stock movements: %w", mode, err)
	}

	s.logger.Info("stock movements synchronized",
		zap.String("invoice_number", inv.InvoiceNumber),
		zap.String("mode", string(mode)),
		zap.Int("movement_count", len(planned)),
	)
	return nil
}

var _ StockSynchronizer = (*StockLedgerSynchronizer)(nil)
