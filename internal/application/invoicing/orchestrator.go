package invoicing

import (
	"context"
	"errors"
	"fmt"

	"github.com/erp/invoicing/internal/domain/invoicing"
	"github.com/erp/invoicing/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const (
	OperationCreate        = "create"
	OperationUpdate        = "update"
	OperationDelete        = "delete"
	OperationRecordPayment = "record_payment"
	OperationReconcile     = "reconcile"

	numberAttempts = 5
	tracerName     = "github.com/erp/invoicing/internal/application/invoicing"
)

// InvoiceLocker serializes lifecycle operations on one invoice. Acquire
// returns shared.ErrLockNotAcquired when the lock cannot be taken in time.
type InvoiceLocker interface {
	Acquire(ctx context.Context, key string) (release func(), err error)
}

// Dependencies wires an Orchestrator. Catalog, Locker, Publisher and
// Reconciliation are optional.
type Dependencies struct {
	Invoices       invoicing.InvoiceRepository
	Items          invoicing.InvoiceItemRepository
	Stock          StockSynchronizer
	Warranty       WarrantySynchronizer
	Ledger         LedgerBridge
	Reconciliation invoicing.ReconciliationLog
	Catalog        invoicing.ProductCatalog
	Numbers        invoicing.NumberGenerator
	Locker         InvoiceLocker
	Publisher      shared.EventPublisher
	Logger         *zap.Logger
}

// Orchestrator runs the invoice lifecycle: it persists the invoice and its
// items, then drives the stock, warranty and ledger synchronizers in order.
// There is no transaction across record sets; every operation is a saga and
// failures after the invoice is committed are reported as reconciliation
// gaps instead of rolling the sale back.
type Orchestrator struct {
	invoices       invoicing.InvoiceRepository
	items          invoicing.InvoiceItemRepository
	stock          StockSynchronizer
	warranty       WarrantySynchronizer
	ledger         LedgerBridge
	reconciliation invoicing.ReconciliationLog
	catalog        invoicing.ProductCatalog
	numbers        invoicing.NumberGenerator
	locker         InvoiceLocker
	publisher      shared.EventPublisher
	logger         *zap.Logger
	tracer         trace.Tracer
}

// NewOrchestrator creates an Orchestrator
func NewOrchestrator(deps Dependencies) *Orchestrator {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	numbers := deps.Numbers
	if numbers == nil {
		numbers = invoicing.NewTimestampNumberGenerator("")
	}
	return &Orchestrator{
		invoices:       deps.Invoices,
		items:          deps.Items,
		stock:          deps.Stock,
		warranty:       deps.Warranty,
		ledger:         deps.Ledger,
		reconciliation: deps.Reconciliation,
		catalog:        deps.Catalog,
		numbers:        numbers,
		locker:         deps.Locker,
		publisher:      deps.Publisher,
		logger:         logger,
		tracer:         otel.Tracer(tracerName),
	}
}

// Create validates and prices the draft, issues an invoice number, persists
// the invoice and items, and then synchronizes stock, warranty (when
// provided) and ledger.
func (o *Orchestrator) Create(ctx context.Context, tenantID uuid.UUID, draft invoicing.Draft) (*Outcome, error) {
	ctx, span := o.tracer.Start(ctx, "invoice.create")
	defer span.End()

	lc := NewLifecycle()
	_ = lc.Enter(StateValidating)

	if err := draft.Validate(); err != nil {
		return o.fail(OperationCreate, lc, err)
	}
	if err := o.resolvePrices(ctx, tenantID, &draft); err != nil {
		return o.fail(OperationCreate, lc, err)
	}
	number, err := o.nextNumber(ctx, tenantID)
	if err != nil {
		return o.fail(OperationCreate, lc, err)
	}
	inv, err := invoicing.NewInvoice(tenantID, number, draft)
	if err != nil {
		return o.fail(OperationCreate, lc, err)
	}

	steps := []sagaStep{
		{
			stage:    invoicing.StageInvoice,
			state:    StatePersisting,
			required: true,
			run:      func(ctx context.Context) error { return o.invoices.Create(ctx, inv) },
			compensate: func(ctx context.Context) error {
				return o.invoices.DeleteForTenant(ctx, tenantID, inv.ID)
			},
		},
		{
			stage:    invoicing.StageItems,
			state:    StatePersisting,
			required: true,
			run: func(ctx context.Context) error {
				return o.items.ReplaceForInvoice(ctx, tenantID, inv.ID, inv.Items)
			},
		},
		{
			stage: invoicing.StageStock,
			state: StateSyncingStock,
			run: func(ctx context.Context) error {
				return o.stock.Sync(ctx, inv, stockMode(inv, invoicing.SyncModeCreate))
			},
		},
	}
	if inv.WarrantyProvided {
		steps = append(steps, sagaStep{
			stage: invoicing.StageWarranty,
			state: StateSyncingWarranty,
			run:   func(ctx context.Context) error { return o.warranty.Sync(ctx, inv) },
		})
	}
	steps = append(steps, sagaStep{
		stage: invoicing.StageLedger,
		state: StateSyncingLedger,
		run:   func(ctx context.Context) error { return o.ledger.Sync(ctx, inv, inv.PaymentMethod) },
	})

	outcome, err := o.runSaga(ctx, OperationCreate, inv, lc, steps)
	o.publishEvents(ctx, inv, err != nil)
	if err == nil {
		o.logger.Info("invoice created",
			zap.String("invoice_id", inv.ID.String()),
			zap.String("invoice_number", inv.InvoiceNumber),
			zap.String("total_amount", inv.TotalAmount.String()),
			zap.String("payment_status", inv.PaymentStatus.String()),
			zap.Int("warnings", len(outcome.Warnings)),
		)
	}
	return outcome, err
}

// Update replaces the form state of an existing invoice and re-derives its
// items, stock movements, warranty records and ledger. The invoice number is
// kept.
func (o *Orchestrator) Update(ctx context.Context, tenantID, id uuid.UUID, draft invoicing.Draft) (*Outcome, error) {
	ctx, span := o.tracer.Start(ctx, "invoice.update")
	defer span.End()

	lc := NewLifecycle()
	_ = lc.Enter(StateValidating)

	if err := draft.Validate(); err != nil {
		return o.fail(OperationUpdate, lc, err)
	}
	release, err := o.acquire(ctx, tenantID, id)
	if err != nil {
		return o.fail(OperationUpdate, lc, err)
	}
	defer release()

	inv, err := o.load(ctx, tenantID, id, OperationUpdate)
	if err != nil {
		return o.fail(OperationUpdate, lc, err)
	}
	if err := o.resolvePrices(ctx, tenantID, &draft); err != nil {
		return o.fail(OperationUpdate, lc, err)
	}

	previous := snapshot(inv)
	if err := inv.Revise(draft); err != nil {
		return o.fail(OperationUpdate, lc, err)
	}

	steps := []sagaStep{
		{
			stage:    invoicing.StageInvoice,
			state:    StatePersisting,
			required: true,
			run:      func(ctx context.Context) error { return o.invoices.Update(ctx, inv) },
			compensate: func(ctx context.Context) error {
				previous.Version = inv.Version
				return o.invoices.Update(ctx, previous)
			},
		},
		{
			stage:    invoicing.StageItems,
			state:    StatePersisting,
			required: true,
			run: func(ctx context.Context) error {
				return o.items.ReplaceForInvoice(ctx, tenantID, inv.ID, inv.Items)
			},
		},
		{
			stage: invoicing.StageStock,
			state: StateSyncingStock,
			run: func(ctx context.Context) error {
				return o.stock.Sync(ctx, inv, stockMode(inv, invoicing.SyncModeReplace))
			},
		},
		{
			stage: invoicing.StageWarranty,
			state: StateSyncingWarranty,
			run:   func(ctx context.Context) error { return o.warranty.Sync(ctx, inv) },
		},
		{
			stage: invoicing.StageLedger,
			state: StateSyncingLedger,
			run:   func(ctx context.Context) error { return o.ledger.Sync(ctx, inv, inv.PaymentMethod) },
		},
	}

	outcome, err := o.runSaga(ctx, OperationUpdate, inv, lc, steps)
	o.publishEvents(ctx, inv, err != nil)
	return outcome, err
}

// Delete removes items, warranty records, stock movements and finally the
// invoice. A failure stops the sequence so the invoice number needed to find
// stock rows is never lost before they are gone. The ledger is reversed
// afterwards; accounting history is kept.
func (o *Orchestrator) Delete(ctx context.Context, tenantID, id uuid.UUID) (*Outcome, error) {
	ctx, span := o.tracer.Start(ctx, "invoice.delete")
	defer span.End()

	lc := NewLifecycle()
	_ = lc.Enter(StateValidating)

	release, err := o.acquire(ctx, tenantID, id)
	if err != nil {
		return o.fail(OperationDelete, lc, err)
	}
	defer release()

	inv, err := o.load(ctx, tenantID, id, OperationDelete)
	if err != nil {
		return o.fail(OperationDelete, lc, err)
	}
	inv.MarkDeleted()
	voided := inv.Voided()

	steps := []sagaStep{
		{
			stage:    invoicing.StageItems,
			state:    StatePersisting,
			required: true,
			run:      func(ctx context.Context) error { return o.items.DeleteByInvoice(ctx, tenantID, inv.ID) },
		},
		{
			stage:    invoicing.StageWarranty,
			state:    StatePersisting,
			required: true,
			run:      func(ctx context.Context) error { return o.warranty.Sync(ctx, voided) },
		},
		{
			stage:    invoicing.StageStock,
			state:    StatePersisting,
			required: true,
			run: func(ctx context.Context) error {
				return o.stock.Sync(ctx, inv, invoicing.SyncModeReverse)
			},
		},
		{
			stage:    invoicing.StageInvoice,
			state:    StatePersisting,
			required: true,
			run:      func(ctx context.Context) error { return o.invoices.DeleteForTenant(ctx, tenantID, inv.ID) },
		},
		{
			stage: invoicing.StageLedger,
			state: StateSyncingLedger,
			run:   func(ctx context.Context) error { return o.ledger.Sync(ctx, voided, "") },
		},
	}

	outcome, err := o.runSaga(ctx, OperationDelete, inv, lc, steps)
	o.publishEvents(ctx, inv, err != nil)
	if err == nil {
		// every record set but the ledger is gone, so their gaps are moot
		o.closeGaps(ctx, tenantID, inv.ID,
			invoicing.StageInvoice, invoicing.StageItems, invoicing.StageStock, invoicing.StageWarranty)
		o.logger.Info("invoice deleted",
			zap.String("invoice_id", inv.ID.String()),
			zap.String("invoice_number", inv.InvoiceNumber),
		)
	}
	return outcome, err
}

// RecordPayment applies a payment against the outstanding balance and
// appends it to the ledger.
func (o *Orchestrator) RecordPayment(ctx context.Context, tenantID, id uuid.UUID, amount decimal.Decimal, method string) (*Outcome, error) {
	ctx, span := o.tracer.Start(ctx, "invoice.record_payment")
	defer span.End()

	lc := NewLifecycle()
	_ = lc.Enter(StateValidating)

	amount = amount.Round(invoicing.MoneyScale)
	if !amount.IsPositive() {
		return o.fail(OperationRecordPayment, lc, invoicing.NewValidationError("amount", "must be greater than zero"))
	}
	release, err := o.acquire(ctx, tenantID, id)
	if err != nil {
		return o.fail(OperationRecordPayment, lc, err)
	}
	defer release()

	inv, err := o.load(ctx, tenantID, id, OperationRecordPayment)
	if err != nil {
		return o.fail(OperationRecordPayment, lc, err)
	}
	if err := inv.RecordPayment(amount, method); err != nil {
		return o.fail(OperationRecordPayment, lc, err)
	}

	steps := []sagaStep{
		{
			stage:    invoicing.StageInvoice,
			state:    StatePersisting,
			required: true,
			run:      func(ctx context.Context) error { return o.invoices.Update(ctx, inv) },
		},
		{
			stage: invoicing.StageLedger,
			state: StateSyncingLedger,
			run:   func(ctx context.Context) error { return o.ledger.Sync(ctx, inv, method) },
		},
	}

	outcome, err := o.runSaga(ctx, OperationRecordPayment, inv, lc, steps)
	o.publishEvents(ctx, inv, err != nil)
	return outcome, err
}

// Reconcile re-runs one synchronization stage for an invoice from its
// current state and resolves the open gaps of that stage on success. A
// failure bumps the attempt count of the open gap. Stock and warranty gaps
// of a deleted invoice are resolved without running anything.
func (o *Orchestrator) Reconcile(ctx context.Context, tenantID, id uuid.UUID, stage invoicing.Stage) (*Outcome, error) {
	ctx, span := o.tracer.Start(ctx, "invoice.reconcile")
	defer span.End()

	lc := NewLifecycle()
	_ = lc.Enter(StateValidating)

	if !stage.IsRetryable() {
		return o.fail(OperationReconcile, lc, invoicing.NewValidationError("stage", "only stock, warranty and ledger can be reconciled"))
	}

	release, err := o.acquire(ctx, tenantID, id)
	if err != nil {
		o.bumpAttempt(ctx, tenantID, id, stage, err)
		return o.fail(OperationReconcile, lc, err)
	}
	defer release()

	inv, err := o.load(ctx, tenantID, id, OperationReconcile)
	if errors.Is(err, invoicing.ErrInvoiceNotFound) {
		if stage != invoicing.StageLedger {
			return o.closeDeletedGaps(ctx, lc, tenantID, id, stage)
		}
		inv, err = o.deletedInvoiceStub(ctx, tenantID, id)
	}
	if err != nil {
		o.bumpAttempt(ctx, tenantID, id, stage, err)
		return o.fail(OperationReconcile, lc, err)
	}

	var step sagaStep
	switch stage {
	case invoicing.StageStock:
		step = sagaStep{state: StateSyncingStock, run: func(ctx context.Context) error {
			return o.stock.Sync(ctx, inv, stockMode(inv, invoicing.SyncModeReplace))
		}}
	case invoicing.StageWarranty:
		step = sagaStep{state: StateSyncingWarranty, run: func(ctx context.Context) error {
			return o.warranty.Sync(ctx, inv)
		}}
	case invoicing.StageLedger:
		step = sagaStep{state: StateSyncingLedger, run: func(ctx context.Context) error {
			return o.ledger.Sync(ctx, inv, "")
		}}
	}
	step.stage = stage
	step.required = true

	outcome, err := o.runSaga(ctx, OperationReconcile, inv, lc, []sagaStep{step})
	if err != nil {
		if o.reconciliation != nil {
			gap := invoicing.NewReconciliationGap(inv, stage, OperationReconcile, err)
			if rerr := o.reconciliation.Record(ctx, gap); rerr != nil {
				o.logger.Error("failed to record reconciliation attempt",
					zap.String("invoice_id", id.String()),
					zap.Error(rerr),
				)
			}
		}
		return outcome, err
	}

	o.closeGaps(ctx, tenantID, id, stage)
	o.logger.Info("invoice stage reconciled",
		zap.String("invoice_id", id.String()),
		zap.String("stage", stage.String()),
	)
	return outcome, nil
}

// closeDeletedGaps settles a stock or warranty retry for an invoice that no
// longer exists. Delete removes both record sets before the header, so an
// open gap at that stage has nothing left to repair.
func (o *Orchestrator) closeDeletedGaps(ctx context.Context, lc *Lifecycle, tenantID, id uuid.UUID, stage invoicing.Stage) (*Outcome, error) {
	if o.reconciliation == nil {
		return o.fail(OperationReconcile, lc, invoicing.ErrInvoiceNotFound)
	}
	gaps, err := o.reconciliation.FindOpenByInvoice(ctx, tenantID, id)
	if err != nil {
		return o.fail(OperationReconcile, lc, invoicing.NewPersistenceError(stage, OperationReconcile, err))
	}
	if !hasStage(gaps, stage) {
		return o.fail(OperationReconcile, lc, invoicing.ErrInvoiceNotFound)
	}
	if err := o.reconciliation.ResolveStage(ctx, tenantID, id, stage); err != nil {
		return o.fail(OperationReconcile, lc, invoicing.NewPersistenceError(stage, OperationReconcile, err))
	}

	_ = lc.Enter(StateComplete)
	o.logger.Info("gaps of deleted invoice closed",
		zap.String("invoice_id", id.String()),
		zap.String("invoice_number", gaps[0].InvoiceNumber),
		zap.String("stage", stage.String()),
	)
	return &Outcome{
		Operation: OperationReconcile,
		State:     lc.State(),
		Steps:     []StepResult{{Stage: stage, Status: StepSkipped}},
	}, nil
}

// closeGaps resolves the invoice's open gaps at each stage. Failures are
// only logged.
func (o *Orchestrator) closeGaps(ctx context.Context, tenantID, id uuid.UUID, stages ...invoicing.Stage) {
	if o.reconciliation == nil {
		return
	}
	for _, stage := range stages {
		if err := o.reconciliation.ResolveStage(ctx, tenantID, id, stage); err != nil {
			o.logger.Warn("open gaps could not be resolved",
				zap.String("invoice_id", id.String()),
				zap.String("stage", stage.String()),
				zap.Error(err),
			)
		}
	}
}

// bumpAttempt counts a retry that failed before the stage ran against the
// open gap of that stage. Without an open gap nothing is recorded.
func (o *Orchestrator) bumpAttempt(ctx context.Context, tenantID, id uuid.UUID, stage invoicing.Stage, cause error) {
	if o.reconciliation == nil {
		return
	}
	gaps, err := o.reconciliation.FindOpenByInvoice(ctx, tenantID, id)
	if err != nil {
		o.logger.Error("failed to load reconciliation gaps", zap.String("invoice_id", id.String()), zap.Error(err))
		return
	}
	for _, gap := range gaps {
		if gap.Stage != stage {
			continue
		}
		gap.Operation = OperationReconcile
		gap.Reason = cause.Error()
		if err := o.reconciliation.Record(ctx, gap); err != nil {
			o.logger.Error("failed to record reconciliation attempt",
				zap.String("invoice_id", id.String()),
				zap.Error(err),
			)
		}
		return
	}
}

func hasStage(gaps []invoicing.ReconciliationGap, stage invoicing.Stage) bool {
	for _, g := range gaps {
		if g.Stage == stage {
			return true
		}
	}
	return false
}

// deletedInvoiceStub rebuilds enough of a deleted invoice from its open gaps
// to reverse its ledger.
func (o *Orchestrator) deletedInvoiceStub(ctx context.Context, tenantID, id uuid.UUID) (*invoicing.Invoice, error) {
	if o.reconciliation == nil {
		return nil, invoicing.ErrInvoiceNotFound
	}
	gaps, err := o.reconciliation.FindOpenByInvoice(ctx, tenantID, id)
	if err != nil {
		return nil, invoicing.NewPersistenceError(invoicing.StageLedger, OperationReconcile, err)
	}
	if len(gaps) == 0 {
		return nil, invoicing.ErrInvoiceNotFound
	}
	stub := &invoicing.Invoice{
		TenantAggregateRoot: shared.TenantAggregateRoot{TenantID: tenantID},
		InvoiceNumber:       gaps[0].InvoiceNumber,
		PaymentStatus:       invoicing.PaymentStatusCancelled,
	}
	stub.ID = id
	return stub, nil
}

func (o *Orchestrator) fail(op string, lc *Lifecycle, err error) (*Outcome, error) {
	lc.Fail()
	o.logger.Warn("invoice operation rejected",
		zap.String("operation", op),
		zap.Error(err),
	)
	return &Outcome{Operation: op, State: lc.State()}, err
}

func (o *Orchestrator) load(ctx context.Context, tenantID, id uuid.UUID, op string) (*invoicing.Invoice, error) {
	inv, err := o.invoices.FindByIDForTenant(ctx, tenantID, id)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return nil, invoicing.ErrInvoiceNotFound
		}
		return nil, invoicing.NewPersistenceError(invoicing.StageInvoice, op, err)
	}
	return inv, nil
}

func (o *Orchestrator) acquire(ctx context.Context, tenantID, id uuid.UUID) (func(), error) {
	if o.locker == nil {
		return func() {}, nil
	}
	return o.locker.Acquire(ctx, fmt.Sprintf("invoice:%s:%s", tenantID, id))
}

// nextNumber issues an invoice number not yet used by the tenant
func (o *Orchestrator) nextNumber(ctx context.Context, tenantID uuid.UUID) (string, error) {
	for attempt := 0; attempt < numberAttempts; attempt++ {
		number := o.numbers.Next()
		exists, err := o.invoices.ExistsByNumber(ctx, tenantID, number)
		if err != nil {
			return "", invoicing.NewPersistenceError(invoicing.StageInvoice, "generate invoice number", err)
		}
		if !exists {
			return number, nil
		}
		o.logger.Warn("invoice number collision, retrying", zap.String("invoice_number", number))
	}
	return "", invoicing.NewPersistenceError(invoicing.StageInvoice, "generate invoice number",
		fmt.Errorf("no unique invoice number after %d attempts", numberAttempts))
}

// resolvePrices fills unit prices the caller left empty from the catalog.
// Explicit prices are never touched.
func (o *Orchestrator) resolvePrices(ctx context.Context, tenantID uuid.UUID, draft *invoicing.Draft) error {
	if o.catalog == nil {
		return nil
	}
	items := make([]invoicing.DraftItem, len(draft.Items))
	copy(items, draft.Items)
	for i := range items {
		if items[i].UnitPrice != nil {
			continue
		}
		p, err := o.catalog.ResolvePrice(ctx, tenantID, items[i].ProductID, items[i].VariantID)
		if err != nil {
			if errors.Is(err, shared.ErrNotFound) {
				return invoicing.NewValidationError(fmt.Sprintf("items[%d].product_id", i), "product not found in catalog")
			}
			return invoicing.NewPersistenceError(invoicing.StageItems, "resolve item prices", err)
		}
		items[i].UnitPrice = &p
	}
	draft.Items = items
	return nil
}

func (o *Orchestrator) publishEvents(ctx context.Context, inv *invoicing.Invoice, gapsOnly bool) {
	events := inv.GetDomainEvents()
	inv.ClearDomainEvents()
	if o.publisher == nil || len(events) == 0 {
		return
	}
	if gapsOnly {
		filtered := events[:0]
		for _, e := range events {
			if e.EventType() == invoicing.EventTypeInvoiceReconciliationNeeded {
				filtered = append(filtered, e)
			}
		}
		events = filtered
	}
	if len(events) == 0 {
		return
	}
	if err := o.publisher.Publish(ctx, events...); err != nil {
		o.logger.Error("failed to publish invoice events",
			zap.String("invoice_id", inv.ID.String()),
			zap.Error(err),
		)
	}
}

// stockMode turns any mode into reverse for cancelled invoices
func stockMode(inv *invoicing.Invoice, mode invoicing.SyncMode) invoicing.SyncMode {
	if inv.IsCancelled() {
		return invoicing.SyncModeReverse
	}
	return mode
}

// snapshot copies the header and items so a failed edit can be undone
func snapshot(inv *invoicing.Invoice) *invoicing.Invoice {
	prev := *inv
	prev.Items = append([]invoicing.InvoiceItem(nil), inv.Items...)
	prev.ClearDomainEvents()
	return &prev
}
