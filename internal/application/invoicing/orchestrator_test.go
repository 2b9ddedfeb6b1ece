package invoicing

import (
	"context"
	"errors"
	"testing"

	"github.com/erp/invoicing/internal/domain/invoicing"
	"github.com/erp/invoicing/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestOrchestrator_Create(t *testing.T) {
	t.Run("Partial payment invoice syncs every record set", func(t *testing.T) {
		h := newHarness(t)

		outcome, err := h.orchestrator.Create(context.Background(), h.tenantID, scenarioDraft())

		require.NoError(t, err)
		assert.Equal(t, StateComplete, outcome.State)
		assert.False(t, outcome.HasWarnings())
		require.Len(t, outcome.Steps, 5)
		for _, s := range outcome.Steps {
			assert.Equal(t, StepDone, s.Status, s.Stage)
		}

		inv := outcome.Invoice
		assert.True(t, inv.TotalAmount.Equal(dec("350")))
		assert.Equal(t, invoicing.PaymentStatusPartial, inv.PaymentStatus)
		assert.Regexp(t, `^INV-[0-9A-Z]+$`, inv.InvoiceNumber)

		movements := h.movements(t, inv)
		require.Len(t, movements, 2)
		assert.True(t, movements[0].Quantity.Equal(dec("-3")))
		assert.True(t, movements[1].Quantity.Equal(dec("-1")))
		assert.Equal(t, "Sale "+inv.InvoiceNumber+" S/N DR-1", movements[0].Notes)

		warranties := h.warranties(t, inv.ID)
		require.Len(t, warranties, 1)
		assert.Equal(t, 12, warranties[0].WarrantyMonths)

		entries, payments := h.ledger(t, inv.ID)
		require.Len(t, entries, 1)
		assert.Equal(t, invoicing.LedgerEntryPartial, entries[0].EntryType)
		assert.True(t, entries[0].Amount.Equal(dec("150")))
		require.Len(t, payments, 1)
		assert.True(t, payments[0].Amount.Equal(dec("200")))
		assert.Equal(t, "cash", payments[0].Method)

		assert.Equal(t, []string{invoicing.EventTypeInvoiceCreated}, h.publisher.types())
	})

	t.Run("Validation failure persists nothing", func(t *testing.T) {
		h := newHarness(t)
		draft := scenarioDraft()
		draft.Items = nil

		outcome, err := h.orchestrator.Create(context.Background(), h.tenantID, draft)

		require.Error(t, err)
		assert.ErrorIs(t, err, invoicing.ErrValidationFailed)
		var verr *invoicing.ValidationError
		require.True(t, errors.As(err, &verr))
		assert.Equal(t, "items", verr.Violations[0].Field)
		assert.Equal(t, StateFailed, outcome.State)
		assert.Empty(t, outcome.Steps)

		count, err := h.store.Invoices().CountForTenant(context.Background(), h.tenantID, shared.DefaultFilter())
		require.NoError(t, err)
		assert.Zero(t, count)
		assert.Empty(t, h.publisher.events)
	})

	t.Run("Items failure removes the invoice header", func(t *testing.T) {
		h := newHarness(t)
		h.failItems = true

		outcome, err := h.orchestrator.Create(context.Background(), h.tenantID, scenarioDraft())

		require.Error(t, err)
		assert.ErrorIs(t, err, invoicing.ErrPersistenceFailed)
		assert.ErrorIs(t, err, errStoreDown)
		var perr *invoicing.PersistenceError
		require.True(t, errors.As(err, &perr))
		assert.Equal(t, invoicing.StageItems, perr.Stage)
		assert.Equal(t, StateFailed, outcome.State)

		statuses := map[invoicing.Stage]StepStatus{}
		for _, s := range outcome.Steps {
			statuses[s.Stage] = s.Status
		}
		assert.Equal(t, StepDone, statuses[invoicing.StageInvoice])
		assert.Equal(t, StepFailed, statuses[invoicing.StageItems])
		assert.Equal(t, StepSkipped, statuses[invoicing.StageStock])

		_, err = h.store.Invoices().FindByIDForTenant(context.Background(), h.tenantID, outcome.Invoice.ID)
		assert.ErrorIs(t, err, shared.ErrNotFound)
		assert.Empty(t, h.movements(t, outcome.Invoice))
	})

	t.Run("Stock failure leaves a reconciliation gap", func(t *testing.T) {
		h := newHarness(t)
		h.failStock = true

		outcome, err := h.orchestrator.Create(context.Background(), h.tenantID, scenarioDraft())

		require.NoError(t, err)
		assert.Equal(t, StateComplete, outcome.State)
		require.Len(t, outcome.Warnings, 1)
		gap := outcome.Warnings[0]
		assert.Equal(t, invoicing.StageStock, gap.Stage)
		assert.Equal(t, OperationCreate, gap.Operation)
		assert.Contains(t, gap.Reason, errStoreDown.Error())

		// later stages still ran
		assert.Len(t, h.warranties(t, outcome.Invoice.ID), 1)
		entries, _ := h.ledger(t, outcome.Invoice.ID)
		assert.Len(t, entries, 1)

		open, err := h.store.Reconciliation().FindOpenByInvoice(context.Background(), h.tenantID, outcome.Invoice.ID)
		require.NoError(t, err)
		require.Len(t, open, 1)
		assert.Equal(t, invoicing.StageStock, open[0].Stage)

		assert.Equal(t, []string{invoicing.EventTypeInvoiceCreated, invoicing.EventTypeInvoiceReconciliationNeeded}, h.publisher.types())
	})

	t.Run("Missing prices are resolved from the catalog", func(t *testing.T) {
		h := newHarness(t)
		productID, variantID := uuid.New(), uuid.New()
		h.store.Catalog().AddProduct(h.tenantID, productID, dec("80"))
		h.store.Catalog().AddVariant(h.tenantID, productID, variantID, dec("5"))

		draft := scenarioDraft()
		draft.PaymentStatus = invoicing.PaymentStatusPending
		draft.Items = append(draft.Items, invoicing.DraftItem{ProductID: productID, VariantID: &variantID, Quantity: dec("2")})

		inv := h.create(t, draft)

		require.Len(t, inv.Items, 3)
		assert.True(t, inv.Items[2].UnitPrice.Equal(dec("85")))
		assert.True(t, inv.Items[0].UnitPrice.Equal(dec("100")), "explicit prices are kept")
		assert.True(t, inv.TotalAmount.Equal(dec("520")))
	})

	t.Run("Unknown catalog product is a validation error", func(t *testing.T) {
		h := newHarness(t)
		draft := scenarioDraft()
		draft.Items[1].UnitPrice = nil

		_, err := h.orchestrator.Create(context.Background(), h.tenantID, draft)

		require.Error(t, err)
		var verr *invoicing.ValidationError
		require.True(t, errors.As(err, &verr))
		assert.Equal(t, "items[1].product_id", verr.Violations[0].Field)
	})
}

func TestOrchestrator_Update(t *testing.T) {
	t.Run("Removing an item removes its stock movement", func(t *testing.T) {
		h := newHarness(t)
		inv := h.create(t, scenarioDraft())

		draft := scenarioDraft()
		draft.CustomerID = inv.CustomerID
		draft.Items = draft.Items[:1]
		draft.AmountPaid = dec("200")

		outcome, err := h.orchestrator.Update(context.Background(), h.tenantID, inv.ID, draft)

		require.NoError(t, err)
		assert.Equal(t, StateComplete, outcome.State)
		assert.Equal(t, inv.InvoiceNumber, outcome.Invoice.InvoiceNumber)

		movements := h.movements(t, inv)
		require.Len(t, movements, 1)
		assert.True(t, movements[0].Quantity.Equal(dec("-3")))
		assert.Equal(t, inv.InvoiceNumber, movements[0].ReferenceNumber)

		stored, err := h.query.Get(context.Background(), h.tenantID, inv.ID)
		require.NoError(t, err)
		assert.Len(t, stored.Items, 1)
		assert.True(t, stored.TotalAmount.Equal(dec("300")))
		assert.Equal(t, 2, stored.Version)

		entries, payments := h.ledger(t, inv.ID)
		active := activeEntry(entries)
		require.NotNil(t, active)
		assert.True(t, active.Amount.Equal(dec("100")))
		assert.True(t, paymentsTotal(payments).Equal(dec("200")))
	})

	t.Run("Cancelling reverses stock, warranty and ledger", func(t *testing.T) {
		h := newHarness(t)
		inv := h.create(t, scenarioDraft())

		draft := scenarioDraft()
		draft.CustomerID = inv.CustomerID
		draft.PaymentStatus = invoicing.PaymentStatusCancelled

		outcome, err := h.orchestrator.Update(context.Background(), h.tenantID, inv.ID, draft)

		require.NoError(t, err)
		assert.True(t, outcome.Invoice.AmountPaid.IsZero())
		assert.Empty(t, h.movements(t, inv))
		assert.Empty(t, h.warranties(t, inv.ID))

		entries, payments := h.ledger(t, inv.ID)
		active := activeEntry(entries)
		require.NotNil(t, active)
		assert.Equal(t, invoicing.LedgerEntryReversal, active.EntryType)
		assert.True(t, paymentsTotal(payments).IsZero())
		assert.Equal(t, invoicing.PaymentKindRefund, payments[len(payments)-1].Kind)
	})

	t.Run("Paid back to pending refunds the payments", func(t *testing.T) {
		h := newHarness(t)
		draft := scenarioDraft()
		draft.PaymentStatus = invoicing.PaymentStatusPaid
		inv := h.create(t, draft)

		draft.PaymentStatus = invoicing.PaymentStatusPending
		draft.AmountPaid = dec("0")
		_, err := h.orchestrator.Update(context.Background(), h.tenantID, inv.ID, draft)
		require.NoError(t, err)

		entries, payments := h.ledger(t, inv.ID)
		require.Len(t, payments, 2)
		assert.True(t, payments[1].Amount.Equal(dec("-350")))
		assert.True(t, paymentsTotal(payments).IsZero())
		active := activeEntry(entries)
		require.NotNil(t, active)
		assert.Equal(t, invoicing.LedgerEntryPending, active.EntryType)
		assert.True(t, active.Amount.Equal(dec("350")))
	})

	t.Run("Repeated edits keep one movement per current item", func(t *testing.T) {
		h := newHarness(t)
		draft := scenarioDraft()
		inv := h.create(t, draft)

		for i, qty := range []string{"2", "4", "5"} {
			draft.Items[0].Quantity = dec(qty)
			_, err := h.orchestrator.Update(context.Background(), h.tenantID, inv.ID, draft)
			require.NoError(t, err, "edit %d", i+1)
		}

		movements := h.movements(t, inv)
		require.Len(t, movements, len(draft.Items))
		byProduct := make(map[uuid.UUID]invoicing.StockMovement, len(movements))
		for _, m := range movements {
			assert.Equal(t, inv.InvoiceNumber, m.ReferenceNumber)
			byProduct[m.ProductID] = m
		}
		require.Len(t, byProduct, len(draft.Items))
		assert.True(t, byProduct[draft.Items[0].ProductID].Quantity.Equal(dec("-5")))
		assert.True(t, byProduct[draft.Items[1].ProductID].Quantity.Equal(dec("-1")))
	})

	t.Run("Turning warranty off removes every warranty row", func(t *testing.T) {
		h := newHarness(t)
		draft := scenarioDraft()
		inv := h.create(t, draft)
		require.NotEmpty(t, h.warranties(t, inv.ID))

		draft.WarrantyProvided = false
		outcome, err := h.orchestrator.Update(context.Background(), h.tenantID, inv.ID, draft)

		require.NoError(t, err)
		assert.Equal(t, StateComplete, outcome.State)
		assert.Empty(t, h.warranties(t, inv.ID))
		assert.Len(t, h.movements(t, inv), 2)
	})

	t.Run("Items failure restores the previous header", func(t *testing.T) {
		h := newHarness(t)
		inv := h.create(t, scenarioDraft())
		h.failItems = true

		draft := scenarioDraft()
		draft.Items = draft.Items[:1]
		_, err := h.orchestrator.Update(context.Background(), h.tenantID, inv.ID, draft)

		require.Error(t, err)
		var perr *invoicing.PersistenceError
		require.True(t, errors.As(err, &perr))
		assert.Equal(t, invoicing.StageItems, perr.Stage)

		stored, err := h.query.Get(context.Background(), h.tenantID, inv.ID)
		require.NoError(t, err)
		assert.True(t, stored.TotalAmount.Equal(dec("350")))
		assert.Equal(t, inv.CustomerID, stored.CustomerID)
		assert.Len(t, stored.Items, 2)
		assert.Len(t, h.movements(t, inv), 2)
	})

	t.Run("Unknown invoice", func(t *testing.T) {
		h := newHarness(t)

		_, err := h.orchestrator.Update(context.Background(), h.tenantID, uuid.New(), scenarioDraft())

		assert.ErrorIs(t, err, invoicing.ErrInvoiceNotFound)
	})

	t.Run("Lock held elsewhere", func(t *testing.T) {
		h := newHarness(t)
		inv := h.create(t, scenarioDraft())
		locker := new(MockInvoiceLocker)
		locker.On("Acquire", mock.Anything, "invoice:"+h.tenantID.String()+":"+inv.ID.String()).
			Return(nil, shared.ErrLockNotAcquired)
		h.orchestrator.locker = locker

		_, err := h.orchestrator.Update(context.Background(), h.tenantID, inv.ID, scenarioDraft())

		assert.ErrorIs(t, err, shared.ErrLockNotAcquired)
		locker.AssertExpectations(t)
	})

	t.Run("Lock is released", func(t *testing.T) {
		h := newHarness(t)
		inv := h.create(t, scenarioDraft())
		released := false
		locker := new(MockInvoiceLocker)
		locker.On("Acquire", mock.Anything, mock.AnythingOfType("string")).
			Return(func() { released = true }, nil)
		h.orchestrator.locker = locker

		draft := scenarioDraft()
		draft.CustomerID = inv.CustomerID
		_, err := h.orchestrator.Update(context.Background(), h.tenantID, inv.ID, draft)

		require.NoError(t, err)
		assert.True(t, released)
	})
}

func TestOrchestrator_RecordPayment(t *testing.T) {
	t.Run("Final payment settles the invoice", func(t *testing.T) {
		h := newHarness(t)
		inv := h.create(t, scenarioDraft())

		outcome, err := h.orchestrator.RecordPayment(context.Background(), h.tenantID, inv.ID, dec("150"), "card")

		require.NoError(t, err)
		assert.Equal(t, invoicing.PaymentStatusPaid, outcome.Invoice.PaymentStatus)
		assert.True(t, outcome.Invoice.AmountPaid.Equal(dec("350")))

		entries, payments := h.ledger(t, inv.ID)
		require.Len(t, entries, 2)
		assert.Equal(t, invoicing.LedgerStatusSuperseded, entries[0].Status)
		assert.Equal(t, invoicing.LedgerEntrySettled, entries[1].EntryType)
		assert.True(t, entries[1].Amount.Equal(dec("350")))
		require.Len(t, payments, 2)
		assert.Equal(t, "card", payments[1].Method)
		assert.True(t, paymentsTotal(payments).Equal(dec("350")))

		assert.Contains(t, h.publisher.types(), invoicing.EventTypeInvoicePaymentRecorded)
	})

	t.Run("Overpayment is rejected", func(t *testing.T) {
		h := newHarness(t)
		inv := h.create(t, scenarioDraft())

		_, err := h.orchestrator.RecordPayment(context.Background(), h.tenantID, inv.ID, dec("151"), "cash")

		assert.ErrorIs(t, err, invoicing.ErrValidationFailed)
	})

	t.Run("Non-positive amount is rejected", func(t *testing.T) {
		h := newHarness(t)

		_, err := h.orchestrator.RecordPayment(context.Background(), h.tenantID, uuid.New(), dec("0"), "cash")

		assert.ErrorIs(t, err, invoicing.ErrValidationFailed)
	})

	t.Run("Amount below a cent is rejected before loading", func(t *testing.T) {
		h := newHarness(t)

		_, err := h.orchestrator.RecordPayment(context.Background(), h.tenantID, uuid.New(), dec("0.001"), "cash")

		var verr *invoicing.ValidationError
		require.ErrorAs(t, err, &verr)
		require.Len(t, verr.Violations, 1)
		assert.Equal(t, "amount", verr.Violations[0].Field)
		assert.Equal(t, "must be greater than zero", verr.Violations[0].Reason)
	})

	t.Run("Amount is rounded to cents", func(t *testing.T) {
		h := newHarness(t)
		inv := h.create(t, scenarioDraft())

		outcome, err := h.orchestrator.RecordPayment(context.Background(), h.tenantID, inv.ID, dec("100.004"), "cash")

		require.NoError(t, err)
		assert.True(t, outcome.Invoice.AmountPaid.Equal(dec("300")), outcome.Invoice.AmountPaid.String())
	})

	t.Run("Invoice write failure is a persistence error", func(t *testing.T) {
		h := newHarness(t)
		inv := h.create(t, scenarioDraft())
		h.failInvUpdate = true

		_, err := h.orchestrator.RecordPayment(context.Background(), h.tenantID, inv.ID, dec("50"), "cash")

		assert.ErrorIs(t, err, invoicing.ErrPersistenceFailed)
		_, payments := h.ledger(t, inv.ID)
		assert.Len(t, payments, 1)
	})

	t.Run("Ledger failure is repaired by reconcile", func(t *testing.T) {
		h := newHarness(t)
		inv := h.create(t, scenarioDraft())
		h.failLedger = true

		outcome, err := h.orchestrator.RecordPayment(context.Background(), h.tenantID, inv.ID, dec("50"), "upi")
		require.NoError(t, err)
		require.Len(t, outcome.Warnings, 1)
		assert.Equal(t, invoicing.StageLedger, outcome.Warnings[0].Stage)

		h.failLedger = false
		_, err = h.orchestrator.Reconcile(context.Background(), h.tenantID, inv.ID, invoicing.StageLedger)
		require.NoError(t, err)

		entries, payments := h.ledger(t, inv.ID)
		assert.True(t, paymentsTotal(payments).Equal(dec("250")))
		active := activeEntry(entries)
		require.NotNil(t, active)
		assert.True(t, active.Amount.Equal(dec("100")))

		open, err := h.store.Reconciliation().FindOpenByInvoice(context.Background(), h.tenantID, inv.ID)
		require.NoError(t, err)
		assert.Empty(t, open)
	})
}

func TestOrchestrator_Delete(t *testing.T) {
	t.Run("Removes every record set and reverses the ledger", func(t *testing.T) {
		h := newHarness(t)
		inv := h.create(t, scenarioDraft())

		outcome, err := h.orchestrator.Delete(context.Background(), h.tenantID, inv.ID)

		require.NoError(t, err)
		assert.Equal(t, StateComplete, outcome.State)
		_, err = h.store.Invoices().FindByIDForTenant(context.Background(), h.tenantID, inv.ID)
		assert.ErrorIs(t, err, shared.ErrNotFound)
		items, err := h.store.Items().FindByInvoice(context.Background(), h.tenantID, inv.ID)
		require.NoError(t, err)
		assert.Empty(t, items)
		assert.Empty(t, h.movements(t, inv))
		assert.Empty(t, h.warranties(t, inv.ID))

		entries, payments := h.ledger(t, inv.ID)
		active := activeEntry(entries)
		require.NotNil(t, active)
		assert.Equal(t, invoicing.LedgerEntryReversal, active.EntryType)
		assert.True(t, paymentsTotal(payments).IsZero())

		assert.Contains(t, h.publisher.types(), invoicing.EventTypeInvoiceDeleted)
	})

	t.Run("Stops before removing the invoice when stock fails", func(t *testing.T) {
		h := newHarness(t)
		inv := h.create(t, scenarioDraft())
		h.failStock = true

		outcome, err := h.orchestrator.Delete(context.Background(), h.tenantID, inv.ID)

		require.Error(t, err)
		var perr *invoicing.PersistenceError
		require.True(t, errors.As(err, &perr))
		assert.Equal(t, invoicing.StageStock, perr.Stage)
		assert.Equal(t, StateFailed, outcome.State)

		_, err = h.store.Invoices().FindByIDForTenant(context.Background(), h.tenantID, inv.ID)
		assert.NoError(t, err, "the invoice number is still available to find stock rows")
		assert.Len(t, h.movements(t, inv), 2)
		assert.NotContains(t, h.publisher.types(), invoicing.EventTypeInvoiceDeleted)
	})

	t.Run("Resolves the gaps of removed record sets", func(t *testing.T) {
		h := newHarness(t)
		h.failStock = true
		h.failWarranty = true
		inv := h.create(t, scenarioDraft())
		h.failStock = false
		h.failWarranty = false

		open, err := h.store.Reconciliation().FindOpenByInvoice(context.Background(), h.tenantID, inv.ID)
		require.NoError(t, err)
		require.Len(t, open, 2)

		_, err = h.orchestrator.Delete(context.Background(), h.tenantID, inv.ID)
		require.NoError(t, err)

		open, err = h.store.Reconciliation().FindOpenByInvoice(context.Background(), h.tenantID, inv.ID)
		require.NoError(t, err)
		assert.Empty(t, open)
	})

	t.Run("Ledger gap of a deleted invoice can be reconciled", func(t *testing.T) {
		h := newHarness(t)
		inv := h.create(t, scenarioDraft())
		h.failLedger = true

		outcome, err := h.orchestrator.Delete(context.Background(), h.tenantID, inv.ID)
		require.NoError(t, err)
		require.Len(t, outcome.Warnings, 1)

		h.failLedger = false
		_, err = h.orchestrator.Reconcile(context.Background(), h.tenantID, inv.ID, invoicing.StageLedger)
		require.NoError(t, err)

		entries, payments := h.ledger(t, inv.ID)
		active := activeEntry(entries)
		require.NotNil(t, active)
		assert.Equal(t, invoicing.LedgerEntryReversal, active.EntryType)
		assert.Equal(t, inv.CustomerID, active.CustomerID)
		assert.True(t, paymentsTotal(payments).IsZero())
	})

	t.Run("Unknown invoice", func(t *testing.T) {
		h := newHarness(t)

		_, err := h.orchestrator.Delete(context.Background(), h.tenantID, uuid.New())

		assert.ErrorIs(t, err, invoicing.ErrInvoiceNotFound)
	})
}

func TestOrchestrator_Reconcile(t *testing.T) {
	t.Run("Stock reconcile restores movements and resolves the gap", func(t *testing.T) {
		h := newHarness(t)
		h.failStock = true
		inv := h.create(t, scenarioDraft())
		h.failStock = false

		outcome, err := h.orchestrator.Reconcile(context.Background(), h.tenantID, inv.ID, invoicing.StageStock)
		require.NoError(t, err)
		assert.Equal(t, StateComplete, outcome.State)
		assert.Len(t, h.movements(t, inv), 2)

		// running again changes nothing
		_, err = h.orchestrator.Reconcile(context.Background(), h.tenantID, inv.ID, invoicing.StageStock)
		require.NoError(t, err)
		assert.Len(t, h.movements(t, inv), 2)

		open, err := h.store.Reconciliation().FindOpenByInvoice(context.Background(), h.tenantID, inv.ID)
		require.NoError(t, err)
		assert.Empty(t, open)
	})

	t.Run("Failed reconcile bumps the attempt count", func(t *testing.T) {
		h := newHarness(t)
		h.failWarranty = true
		inv := h.create(t, scenarioDraft())

		_, err := h.orchestrator.Reconcile(context.Background(), h.tenantID, inv.ID, invoicing.StageWarranty)
		assert.ErrorIs(t, err, invoicing.ErrPersistenceFailed)

		open, err := h.store.Reconciliation().FindOpenByInvoice(context.Background(), h.tenantID, inv.ID)
		require.NoError(t, err)
		require.Len(t, open, 1)
		assert.Equal(t, 2, open[0].Attempts)
		assert.Equal(t, OperationReconcile, open[0].Operation)
	})

	t.Run("Load failure bumps the attempt count", func(t *testing.T) {
		h := newHarness(t)
		h.failWarranty = true
		inv := h.create(t, scenarioDraft())
		h.failWarranty = false
		h.failInvLoad = true

		_, err := h.orchestrator.Reconcile(context.Background(), h.tenantID, inv.ID, invoicing.StageWarranty)
		assert.ErrorIs(t, err, invoicing.ErrPersistenceFailed)

		open, err := h.store.Reconciliation().FindOpenByInvoice(context.Background(), h.tenantID, inv.ID)
		require.NoError(t, err)
		require.Len(t, open, 1)
		assert.Equal(t, 2, open[0].Attempts)
		assert.Equal(t, OperationReconcile, open[0].Operation)
	})

	t.Run("Stock gap of a deleted invoice is resolved without syncing", func(t *testing.T) {
		h := newHarness(t)
		inv := h.create(t, scenarioDraft())
		_, err := h.orchestrator.Delete(context.Background(), h.tenantID, inv.ID)
		require.NoError(t, err)
		// a gap left open by an earlier run
		require.NoError(t, h.store.Reconciliation().Record(context.Background(),
			invoicing.NewReconciliationGap(inv, invoicing.StageStock, OperationCreate, errStoreDown)))
		h.failStock = true

		outcome, err := h.orchestrator.Reconcile(context.Background(), h.tenantID, inv.ID, invoicing.StageStock)

		require.NoError(t, err)
		assert.Equal(t, StateComplete, outcome.State)
		assert.Nil(t, outcome.Invoice)
		require.Len(t, outcome.Steps, 1)
		assert.Equal(t, StepSkipped, outcome.Steps[0].Status)
		assert.Empty(t, h.movements(t, inv))

		open, err := h.store.Reconciliation().FindOpenByInvoice(context.Background(), h.tenantID, inv.ID)
		require.NoError(t, err)
		assert.Empty(t, open)

		_, err = h.orchestrator.Reconcile(context.Background(), h.tenantID, inv.ID, invoicing.StageStock)
		assert.ErrorIs(t, err, invoicing.ErrInvoiceNotFound)
	})

	t.Run("Unknown invoice without gaps is not found", func(t *testing.T) {
		h := newHarness(t)

		_, err := h.orchestrator.Reconcile(context.Background(), h.tenantID, uuid.New(), invoicing.StageWarranty)

		assert.ErrorIs(t, err, invoicing.ErrInvoiceNotFound)
	})

	t.Run("Only dependent stages can be reconciled", func(t *testing.T) {
		h := newHarness(t)

		_, err := h.orchestrator.Reconcile(context.Background(), h.tenantID, uuid.New(), invoicing.StageItems)

		assert.ErrorIs(t, err, invoicing.ErrValidationFailed)
	})
}
