package invoicing

import (
	"context"
	"errors"
	"testing"

	"github.com/erp/invoicing/internal/domain/invoicing"
	"github.com/erp/invoicing/internal/domain/shared"
	"github.com/erp/invoicing/internal/infrastructure/persistence/memory"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var errStoreDown = errors.New("store unavailable")

func dec(v string) decimal.Decimal {
	return decimal.RequireFromString(v)
}

func decPtr(v string) *decimal.Decimal {
	d := dec(v)
	return &d
}

// harness wires an orchestrator to an in-memory store. The fail* fields
// make the matching record set return errStoreDown.
type harness struct {
	tenantID     uuid.UUID
	store        *memory.Store
	orchestrator *Orchestrator
	query        *QueryService
	publisher    *recordingPublisher

	failItems     bool
	failStock     bool
	failWarranty  bool
	failLedger    bool
	failInvUpdate bool
	failInvLoad   bool
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		tenantID:  uuid.New(),
		store:     memory.NewStore(),
		publisher: &recordingPublisher{},
	}
	logger := zap.NewNop()
	h.orchestrator = NewOrchestrator(Dependencies{
		Invoices:       &flakyInvoices{InvoiceRepository: h.store.Invoices(), h: h},
		Items:          &flakyItems{InvoiceItemRepository: h.store.Items(), h: h},
		Stock:          NewStockLedgerSynchronizer(&flakyMovements{StockMovementRepository: h.store.StockMovements(), h: h}, logger),
		Warranty:       NewWarrantyRegistrar(&flakyWarranties{WarrantyRepository: h.store.Warranties(), h: h}, logger),
		Ledger:         NewAccountsLedgerBridge(&flakyLedger{LedgerRepository: h.store.Ledger(), h: h}, logger),
		Reconciliation: h.store.Reconciliation(),
		Catalog:        h.store.Catalog(),
		Publisher:      h.publisher,
		Logger:         logger,
	})
	h.query = NewQueryService(h.store.Invoices(), h.store.StockMovements(), h.store.Warranties(),
		h.store.Ledger(), h.store.Reconciliation())
	return h
}

// scenarioDraft is 3 @ 100 + 1 @ 50, no discount or tax, partially paid 200
func scenarioDraft() invoicing.Draft {
	return invoicing.Draft{
		CustomerID:   uuid.New(),
		CustomerName: "Asha Traders",
		Items: []invoicing.DraftItem{
			{ProductID: uuid.New(), ProductName: "Drill", Quantity: dec("3"), UnitPrice: decPtr("100"), SerialNumber: "DR-1", WarrantyMonths: 12},
			{ProductID: uuid.New(), ProductName: "Bits", Quantity: dec("1"), UnitPrice: decPtr("50")},
		},
		TaxAmount:        decPtr("0"),
		PaymentStatus:    invoicing.PaymentStatusPartial,
		AmountPaid:       dec("200"),
		PaymentMethod:    "cash",
		WarrantyProvided: true,
	}
}

func (h *harness) create(t *testing.T, draft invoicing.Draft) *invoicing.Invoice {
	t.Helper()
	outcome, err := h.orchestrator.Create(context.Background(), h.tenantID, draft)
	require.NoError(t, err)
	require.NotNil(t, outcome.Invoice)
	return outcome.Invoice
}

func (h *harness) movements(t *testing.T, inv *invoicing.Invoice) []invoicing.StockMovement {
	t.Helper()
	list, err := h.store.StockMovements().FindByReference(context.Background(), h.tenantID, inv.InvoiceNumber)
	require.NoError(t, err)
	return list
}

func (h *harness) warranties(t *testing.T, id uuid.UUID) []invoicing.WarrantyRecord {
	t.Helper()
	list, err := h.store.Warranties().FindByInvoice(context.Background(), h.tenantID, id)
	require.NoError(t, err)
	return list
}

func (h *harness) ledger(t *testing.T, id uuid.UUID) ([]invoicing.LedgerEntry, []invoicing.Payment) {
	t.Helper()
	entries, err := h.store.Ledger().FindEntriesByInvoice(context.Background(), h.tenantID, id)
	require.NoError(t, err)
	payments, err := h.store.Ledger().FindPaymentsByInvoice(context.Background(), h.tenantID, id)
	require.NoError(t, err)
	return entries, payments
}

func activeEntry(entries []invoicing.LedgerEntry) *invoicing.LedgerEntry {
	for i := range entries {
		if entries[i].Status == invoicing.LedgerStatusActive {
			return &entries[i]
		}
	}
	return nil
}

func paymentsTotal(payments []invoicing.Payment) decimal.Decimal {
	total := decimal.Zero
	for _, p := range payments {
		total = total.Add(p.Amount)
	}
	return total
}

type flakyInvoices struct {
	invoicing.InvoiceRepository
	h *harness
}

func (f *flakyInvoices) FindByIDForTenant(ctx context.Context, tenantID, id uuid.UUID) (*invoicing.Invoice, error) {
	if f.h.failInvLoad {
		return nil, errStoreDown
	}
	return f.InvoiceRepository.FindByIDForTenant(ctx, tenantID, id)
}

func (f *flakyInvoices) Update(ctx context.Context, inv *invoicing.Invoice) error {
	if f.h.failInvUpdate {
		return errStoreDown
	}
	return f.InvoiceRepository.Update(ctx, inv)
}

type flakyItems struct {
	invoicing.InvoiceItemRepository
	h *harness
}

func (f *flakyItems) ReplaceForInvoice(ctx context.Context, tenantID, invoiceID uuid.UUID, items []invoicing.InvoiceItem) error {
	if f.h.failItems {
		return errStoreDown
	}
	return f.InvoiceItemRepository.ReplaceForInvoice(ctx, tenantID, invoiceID, items)
}

func (f *flakyItems) DeleteByInvoice(ctx context.Context, tenantID, invoiceID uuid.UUID) error {
	if f.h.failItems {
		return errStoreDown
	}
	return f.InvoiceItemRepository.DeleteByInvoice(ctx, tenantID, invoiceID)
}

type flakyMovements struct {
	invoicing.StockMovementRepository
	h *harness
}

func (f *flakyMovements) ReplaceByReference(ctx context.Context, tenantID uuid.UUID, ref string, movements []invoicing.StockMovement) error {
	if f.h.failStock {
		return errStoreDown
	}
	return f.StockMovementRepository.ReplaceByReference(ctx, tenantID, ref, movements)
}

type flakyWarranties struct {
	invoicing.WarrantyRepository
	h *harness
}

func (f *flakyWarranties) ReplaceForInvoice(ctx context.Context, tenantID, invoiceID uuid.UUID, records []invoicing.WarrantyRecord) error {
	if f.h.failWarranty {
		return errStoreDown
	}
	return f.WarrantyRepository.ReplaceForInvoice(ctx, tenantID, invoiceID, records)
}

type flakyLedger struct {
	invoicing.LedgerRepository
	h *harness
}

func (f *flakyLedger) Apply(ctx context.Context, plan invoicing.LedgerPlan) error {
	if f.h.failLedger {
		return errStoreDown
	}
	return f.LedgerRepository.Apply(ctx, plan)
}

type recordingPublisher struct {
	events []shared.DomainEvent
}

func (p *recordingPublisher) Publish(_ context.Context, events ...shared.DomainEvent) error {
	p.events = append(p.events, events...)
	return nil
}

func (p *recordingPublisher) types() []string {
	out := make([]string, len(p.events))
	for i, e := range p.events {
		out[i] = e.EventType()
	}
	return out
}

// MockInvoiceLocker is a mock implementation of InvoiceLocker
type MockInvoiceLocker struct {
	mock.Mock
}

func (m *MockInvoiceLocker) Acquire(ctx context.Context, key string) (func(), error) {
	args := m.Called(ctx, key)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(func()), args.Error(1)
}

// MockMetricsRecorder is a mock implementation of MetricsRecorder
type MockMetricsRecorder struct {
	mock.Mock
}

func (m *MockMetricsRecorder) RecordInvoiceIssued(ctx context.Context, tenantID uuid.UUID, status string, total decimal.Decimal) {
	m.Called(ctx, tenantID, status, total)
}

func (m *MockMetricsRecorder) RecordInvoiceRevised(ctx context.Context, tenantID uuid.UUID, previous, current string) {
	m.Called(ctx, tenantID, previous, current)
}

func (m *MockMetricsRecorder) RecordInvoiceDeleted(ctx context.Context, tenantID uuid.UUID) {
	m.Called(ctx, tenantID)
}

func (m *MockMetricsRecorder) RecordPayment(ctx context.Context, tenantID uuid.UUID, method string, amount decimal.Decimal) {
	m.Called(ctx, tenantID, method, amount)
}

func (m *MockMetricsRecorder) RecordReconciliationGap(ctx context.Context, tenantID uuid.UUID, stage, operation string) {
	m.Called(ctx, tenantID, stage, operation)
}
