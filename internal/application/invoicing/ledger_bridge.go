package invoicing

import (
	"context"
	"fmt"

	"github.com/erp/invoicing/internal/domain/invoicing"
	"go.uber.org/zap"
)

// LedgerBridge keeps accounts ledger entries and payments in line with the
// payment state of an invoice. method labels any payment written.
type LedgerBridge interface {
	Sync(ctx context.Context, inv *invoicing.Invoice, method string) error
}

// AccountsLedgerBridge is the store-backed LedgerBridge. It is constructed
// once at startup and injected into the Orchestrator.
type AccountsLedgerBridge struct {
	ledger invoicing.LedgerRepository
	logger *zap.Logger
}

// NewAccountsLedgerBridge creates an AccountsLedgerBridge
func NewAccountsLedgerBridge(ledger invoicing.LedgerRepository, logger *zap.Logger) *AccountsLedgerBridge {
	return &AccountsLedgerBridge{
		ledger: ledger,
		logger: logger,
	}
}

// Sync plans the ledger writes for inv against the stored ledger state and
// applies them in one transaction. Running it twice writes nothing the
// second time.
func (b *AccountsLedgerBridge) Sync(ctx context.Context, inv *invoicing.Invoice, method string) error {
	state, err := b.ledger.LoadState(ctx, inv.TenantID, inv.ID)
	if err != nil {
		return fmt.Errorf("failed to load ledger state: %w", err)
	}

	plan := invoicing.PlanLedger(inv, state, method)
	if plan.IsEmpty() {
		b.logger.Debug("ledger already in line with invoice",
			zap.String("invoice_number", inv.InvoiceNumber),
			zap.String("payment_status", inv.PaymentStatus.String()),
		)
		return nil
	}

	if err := b.ledger.Apply(ctx, plan); err != nil {
		return fmt.Errorf("failed to apply ledger plan: %w", err)
	}

	fields := []zap.Field{
		zap.String("invoice_number", inv.InvoiceNumber),
		zap.String("payment_status", inv.PaymentStatus.String()),
		zap.Int("entries_written", len(plan.Insert)),
	}
	if plan.Retire != nil {
		fields = append(fields, zap.String("retired_entry", plan.Retire.ID.String()), zap.String("retired_as", string(plan.Retire.Status)))
	}
	if plan.Payment != nil {
		fields = append(fields, zap.String("payment_kind", string(plan.Payment.Kind)), zap.String("payment_amount", plan.Payment.Amount.String()))
	}
	b.logger.Info("ledger synchronized", fields...)
	return nil
}

var _ LedgerBridge = (*AccountsLedgerBridge)(nil)
