package invoicing

import (
	"context"
	"fmt"

	"github.com/erp/invoicing/internal/domain/invoicing"
	"go.uber.org/zap"
)

// WarrantySynchronizer regenerates the warranty records of an invoice
type WarrantySynchronizer interface {
	Sync(ctx context.Context, inv *invoicing.Invoice) error
}

// WarrantyRegistrar always drops the prior records of the invoice and then
// registers one record per item with a positive warranty period, only when
// the invoice provides warranty.
type WarrantyRegistrar struct {
	warranties invoicing.WarrantyRepository
	logger     *zap.Logger
}

// NewWarrantyRegistrar creates a WarrantyRegistrar
func NewWarrantyRegistrar(warranties invoicing.WarrantyRepository, logger *zap.Logger) *WarrantyRegistrar {
	return &WarrantyRegistrar{
		warranties: warranties,
		logger:     logger,
	}
}

func (r *WarrantyRegistrar) Sync(ctx context.Context, inv *invoicing.Invoice) error {
	records := invoicing.PlanWarranties(inv)
	if err := r.warranties.ReplaceForInvoice(ctx, inv.TenantID, inv.ID, records); err != nil {
		return fmt.Errorf("failed to register warranties: %w", err)
	}

	r.logger.Info("warranty records synchronized",
		zap.String("invoice_id", inv.ID.String()),
		zap.Bool("warranty_provided", inv.WarrantyProvided),
		zap.Int("record_count", len(records)),
	)
	return nil
}

var _ WarrantySynchronizer = (*WarrantyRegistrar)(nil)
