// Package memory keeps every invoicing record set in process memory. It backs
// the sqlite-free local mode and the application tests.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/erp/invoicing/internal/domain/invoicing"
	"github.com/erp/invoicing/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type product struct {
	tenantID uuid.UUID
	price    decimal.Decimal
}

type variant struct {
	tenantID   uuid.UUID
	productID  uuid.UUID
	adjustment decimal.Decimal
}

// Store holds all record sets behind one lock. Use the accessor methods to
// get the repository for each set.
type Store struct {
	mu         sync.RWMutex
	invoices   map[uuid.UUID]invoicing.Invoice
	items      map[uuid.UUID][]invoicing.InvoiceItem
	movements  map[string][]invoicing.StockMovement
	warranties map[uuid.UUID][]invoicing.WarrantyRecord
	entries    map[uuid.UUID][]invoicing.LedgerEntry
	payments   map[uuid.UUID][]invoicing.Payment
	gaps       []invoicing.ReconciliationGap
	products   map[uuid.UUID]product
	variants   map[uuid.UUID]variant
}

// NewStore creates an empty store
func NewStore() *Store {
	return &Store{
		invoices:   make(map[uuid.UUID]invoicing.Invoice),
		items:      make(map[uuid.UUID][]invoicing.InvoiceItem),
		movements:  make(map[string][]invoicing.StockMovement),
		warranties: make(map[uuid.UUID][]invoicing.WarrantyRecord),
		entries:    make(map[uuid.UUID][]invoicing.LedgerEntry),
		payments:   make(map[uuid.UUID][]invoicing.Payment),
		products:   make(map[uuid.UUID]product),
		variants:   make(map[uuid.UUID]variant),
	}
}

func (s *Store) Invoices() *InvoiceRepository             { return &InvoiceRepository{s} }
func (s *Store) Items() *ItemRepository                   { return &ItemRepository{s} }
func (s *Store) StockMovements() *StockMovementRepository { return &StockMovementRepository{s} }
func (s *Store) Warranties() *WarrantyRepository          { return &WarrantyRepository{s} }
func (s *Store) Ledger() *LedgerRepository                { return &LedgerRepository{s} }
func (s *Store) Reconciliation() *ReconciliationLog       { return &ReconciliationLog{s} }
func (s *Store) Catalog() *Catalog                        { return &Catalog{s} }

func movementKey(tenantID uuid.UUID, ref string) string {
	return tenantID.String() + "/" + ref
}

// ==================== Invoices ====================

// InvoiceRepository implements invoicing.InvoiceRepository
type InvoiceRepository struct{ s *Store }

func storedCopy(inv *invoicing.Invoice) invoicing.Invoice {
	c := *inv
	c.Items = nil
	c.ClearDomainEvents()
	return c
}

func (r *InvoiceRepository) load(inv invoicing.Invoice) *invoicing.Invoice {
	inv.Items = append([]invoicing.InvoiceItem(nil), r.s.items[inv.ID]...)
	return &inv
}

func (r *InvoiceRepository) FindByIDForTenant(_ context.Context, tenantID, id uuid.UUID) (*invoicing.Invoice, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	inv, ok := r.s.invoices[id]
	if !ok || inv.TenantID != tenantID {
		return nil, shared.ErrNotFound
	}
	return r.load(inv), nil
}

func (r *InvoiceRepository) FindByNumber(_ context.Context, tenantID uuid.UUID, number string) (*invoicing.Invoice, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	for _, inv := range r.s.invoices {
		if inv.TenantID == tenantID && inv.InvoiceNumber == number {
			return r.load(inv), nil
		}
	}
	return nil, shared.ErrNotFound
}

func (r *InvoiceRepository) filtered(tenantID uuid.UUID, filter shared.Filter) []invoicing.Invoice {
	search := strings.ToLower(filter.Search)
	var out []invoicing.Invoice
	for _, inv := range r.s.invoices {
		if inv.TenantID != tenantID {
			continue
		}
		if search != "" &&
			!strings.Contains(strings.ToLower(inv.InvoiceNumber), search) &&
			!strings.Contains(strings.ToLower(inv.CustomerName), search) {
			continue
		}
		if v, ok := filter.Filters["customer_id"].(uuid.UUID); ok && inv.CustomerID != v {
			continue
		}
		if v, ok := filter.Filters["payment_status"].(string); ok && v != "" && string(inv.PaymentStatus) != v {
			continue
		}
		if v, ok := filter.Filters["from"].(time.Time); ok && inv.IssuedAt.Before(v) {
			continue
		}
		if v, ok := filter.Filters["to"].(time.Time); ok && !inv.IssuedAt.Before(v.AddDate(0, 0, 1)) {
			continue
		}
		out = append(out, inv)
	}
	return out
}

func (r *InvoiceRepository) FindAllForTenant(_ context.Context, tenantID uuid.UUID, filter shared.Filter) ([]invoicing.Invoice, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	list := r.filtered(tenantID, filter)
	less := func(a, b invoicing.Invoice) bool {
		switch filter.OrderBy {
		case "invoice_number":
			return a.InvoiceNumber < b.InvoiceNumber
		case "total_amount":
			return a.TotalAmount.LessThan(b.TotalAmount)
		case "issued_at":
			return a.IssuedAt.Before(b.IssuedAt)
		default:
			return a.CreatedAt.Before(b.CreatedAt)
		}
	}
	sort.SliceStable(list, func(i, j int) bool {
		if strings.EqualFold(filter.OrderDir, "asc") {
			return less(list[i], list[j])
		}
		return less(list[j], list[i])
	})

	start := filter.Offset()
	if start > len(list) {
		start = len(list)
	}
	end := len(list)
	if filter.PageSize > 0 && start+filter.PageSize < end {
		end = start + filter.PageSize
	}

	result := make([]invoicing.Invoice, 0, end-start)
	for _, inv := range list[start:end] {
		result = append(result, *r.load(inv))
	}
	return result, nil
}

func (r *InvoiceRepository) CountForTenant(_ context.Context, tenantID uuid.UUID, filter shared.Filter) (int64, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	return int64(len(r.filtered(tenantID, filter))), nil
}

func (r *InvoiceRepository) ExistsByNumber(_ context.Context, tenantID uuid.UUID, number string) (bool, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	for _, inv := range r.s.invoices {
		if inv.TenantID == tenantID && inv.InvoiceNumber == number {
			return true, nil
		}
	}
	return false, nil
}

func (r *InvoiceRepository) Create(_ context.Context, inv *invoicing.Invoice) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.invoices[inv.ID]; ok {
		return shared.ErrAlreadyExists
	}
	for _, other := range r.s.invoices {
		if other.TenantID == inv.TenantID && other.InvoiceNumber == inv.InvoiceNumber {
			return shared.ErrAlreadyExists
		}
	}
	r.s.invoices[inv.ID] = storedCopy(inv)
	return nil
}

func (r *InvoiceRepository) Update(_ context.Context, inv *invoicing.Invoice) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	stored, ok := r.s.invoices[inv.ID]
	if !ok || stored.TenantID != inv.TenantID {
		return shared.ErrNotFound
	}
	if stored.Version != inv.Version {
		return shared.ErrConcurrencyConflict
	}
	inv.IncrementVersion()
	r.s.invoices[inv.ID] = storedCopy(inv)
	return nil
}

func (r *InvoiceRepository) DeleteForTenant(_ context.Context, tenantID, id uuid.UUID) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	inv, ok := r.s.invoices[id]
	if !ok || inv.TenantID != tenantID {
		return shared.ErrNotFound
	}
	delete(r.s.invoices, id)
	return nil
}

// ==================== Items ====================

// ItemRepository implements invoicing.InvoiceItemRepository
type ItemRepository struct{ s *Store }

func (r *ItemRepository) FindByInvoice(_ context.Context, _ uuid.UUID, invoiceID uuid.UUID) ([]invoicing.InvoiceItem, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	return append([]invoicing.InvoiceItem{}, r.s.items[invoiceID]...), nil
}

func (r *ItemRepository) ReplaceForInvoice(_ context.Context, _ uuid.UUID, invoiceID uuid.UUID, items []invoicing.InvoiceItem) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if len(items) == 0 {
		delete(r.s.items, invoiceID)
		return nil
	}
	r.s.items[invoiceID] = append([]invoicing.InvoiceItem(nil), items...)
	return nil
}

func (r *ItemRepository) DeleteByInvoice(_ context.Context, _ uuid.UUID, invoiceID uuid.UUID) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	delete(r.s.items, invoiceID)
	return nil
}

// ==================== Stock ====================

// StockMovementRepository implements invoicing.StockMovementRepository
type StockMovementRepository struct{ s *Store }

func (r *StockMovementRepository) FindByReference(_ context.Context, tenantID uuid.UUID, ref string) ([]invoicing.StockMovement, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	return append([]invoicing.StockMovement{}, r.s.movements[movementKey(tenantID, ref)]...), nil
}

func (r *StockMovementRepository) ReplaceByReference(_ context.Context, tenantID uuid.UUID, ref string, movements []invoicing.StockMovement) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	key := movementKey(tenantID, ref)
	if len(movements) == 0 {
		delete(r.s.movements, key)
		return nil
	}
	r.s.movements[key] = append([]invoicing.StockMovement(nil), movements...)
	return nil
}

// OnHand sums the movements of a product across all references
func (r *StockMovementRepository) OnHand(_ context.Context, tenantID, productID uuid.UUID) (decimal.Decimal, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	total := decimal.Zero
	for _, list := range r.s.movements {
		for _, m := range list {
			if m.TenantID == tenantID && m.ProductID == productID {
				total = total.Add(m.Quantity)
			}
		}
	}
	return total, nil
}

// ==================== Warranty ====================

// WarrantyRepository implements invoicing.WarrantyRepository
type WarrantyRepository struct{ s *Store }

func (r *WarrantyRepository) FindByInvoice(_ context.Context, _ uuid.UUID, invoiceID uuid.UUID) ([]invoicing.WarrantyRecord, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	return append([]invoicing.WarrantyRecord{}, r.s.warranties[invoiceID]...), nil
}

func (r *WarrantyRepository) ReplaceForInvoice(_ context.Context, _ uuid.UUID, invoiceID uuid.UUID, records []invoicing.WarrantyRecord) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if len(records) == 0 {
		delete(r.s.warranties, invoiceID)
		return nil
	}
	r.s.warranties[invoiceID] = append([]invoicing.WarrantyRecord(nil), records...)
	return nil
}

// ==================== Ledger ====================

// LedgerRepository implements invoicing.LedgerRepository
type LedgerRepository struct{ s *Store }

func (r *LedgerRepository) FindEntriesByInvoice(_ context.Context, _ uuid.UUID, invoiceID uuid.UUID) ([]invoicing.LedgerEntry, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	return append([]invoicing.LedgerEntry{}, r.s.entries[invoiceID]...), nil
}

func (r *LedgerRepository) FindPaymentsByInvoice(_ context.Context, _ uuid.UUID, invoiceID uuid.UUID) ([]invoicing.Payment, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	return append([]invoicing.Payment{}, r.s.payments[invoiceID]...), nil
}

func (r *LedgerRepository) LoadState(_ context.Context, _ uuid.UUID, invoiceID uuid.UUID) (invoicing.LedgerState, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	state := invoicing.LedgerState{PaymentsTotal: decimal.Zero}
	for _, e := range r.s.entries[invoiceID] {
		if e.Status == invoicing.LedgerStatusActive {
			active := e
			state.Active = &active
		}
	}
	for _, p := range r.s.payments[invoiceID] {
		state.PaymentsTotal = state.PaymentsTotal.Add(p.Amount)
	}
	return state, nil
}

func (r *LedgerRepository) Apply(_ context.Context, plan invoicing.LedgerPlan) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	entries := r.s.entries[plan.InvoiceID]
	if plan.Retire != nil {
		for i := range entries {
			if entries[i].ID == plan.Retire.ID {
				entries[i] = *plan.Retire
			}
		}
	}
	entries = append(entries, plan.Insert...)
	r.s.entries[plan.InvoiceID] = entries
	if plan.Payment != nil {
		r.s.payments[plan.InvoiceID] = append(r.s.payments[plan.InvoiceID], *plan.Payment)
	}
	return nil
}

// ==================== Reconciliation ====================

// ReconciliationLog implements invoicing.ReconciliationLog
type ReconciliationLog struct{ s *Store }

func (r *ReconciliationLog) Record(_ context.Context, gap invoicing.ReconciliationGap) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for i := range r.s.gaps {
		g := &r.s.gaps[i]
		if g.Status == invoicing.GapStatusOpen && g.TenantID == gap.TenantID &&
			g.InvoiceID == gap.InvoiceID && g.Stage == gap.Stage {
			g.Attempts++
			g.Reason = gap.Reason
			g.Operation = gap.Operation
			return nil
		}
	}
	if gap.Attempts < 1 {
		gap.Attempts = 1
	}
	r.s.gaps = append(r.s.gaps, gap)
	return nil
}

func (r *ReconciliationLog) FindOpen(_ context.Context, tenantID uuid.UUID, filter shared.Filter) ([]invoicing.ReconciliationGap, error) {
	return r.findOpen(tenantID, filter, func(invoicing.Stage) bool { return true }), nil
}

func (r *ReconciliationLog) FindRetryable(_ context.Context, tenantID uuid.UUID, filter shared.Filter) ([]invoicing.ReconciliationGap, error) {
	return r.findOpen(tenantID, filter, invoicing.Stage.IsRetryable), nil
}

func (r *ReconciliationLog) findOpen(tenantID uuid.UUID, filter shared.Filter, keep func(invoicing.Stage) bool) []invoicing.ReconciliationGap {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	var open []invoicing.ReconciliationGap
	for _, g := range r.s.gaps {
		if g.TenantID == tenantID && g.Status == invoicing.GapStatusOpen && keep(g.Stage) {
			open = append(open, g)
		}
	}
	sort.SliceStable(open, func(i, j int) bool { return open[i].DetectedAt.Before(open[j].DetectedAt) })

	start := filter.Offset()
	if start > len(open) {
		start = len(open)
	}
	end := len(open)
	if filter.PageSize > 0 && start+filter.PageSize < end {
		end = start + filter.PageSize
	}
	return append([]invoicing.ReconciliationGap{}, open[start:end]...)
}

func (r *ReconciliationLog) FindOpenByInvoice(_ context.Context, tenantID, invoiceID uuid.UUID) ([]invoicing.ReconciliationGap, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	out := []invoicing.ReconciliationGap{}
	for _, g := range r.s.gaps {
		if g.TenantID == tenantID && g.InvoiceID == invoiceID && g.Status == invoicing.GapStatusOpen {
			out = append(out, g)
		}
	}
	return out, nil
}

func (r *ReconciliationLog) ResolveStage(_ context.Context, tenantID, invoiceID uuid.UUID, stage invoicing.Stage) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for i := range r.s.gaps {
		g := &r.s.gaps[i]
		if g.TenantID == tenantID && g.InvoiceID == invoiceID && g.Stage == stage && g.Status == invoicing.GapStatusOpen {
			g.Resolve()
		}
	}
	return nil
}

func (r *ReconciliationLog) OpenTenants(_ context.Context) ([]uuid.UUID, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	seen := make(map[uuid.UUID]bool)
	var tenants []uuid.UUID
	for _, g := range r.s.gaps {
		if g.Status == invoicing.GapStatusOpen && !seen[g.TenantID] {
			seen[g.TenantID] = true
			tenants = append(tenants, g.TenantID)
		}
	}
	return tenants, nil
}

// ==================== Catalog ====================

// Catalog implements invoicing.ProductCatalog
type Catalog struct{ s *Store }

// AddProduct registers a product list price
func (c *Catalog) AddProduct(tenantID, productID uuid.UUID, price decimal.Decimal) {
	c.s.mu.Lock()
	defer c.s.mu.Unlock()
	c.s.products[productID] = product{tenantID: tenantID, price: price}
}

// AddVariant registers a variant price adjustment
func (c *Catalog) AddVariant(tenantID, productID, variantID uuid.UUID, adjustment decimal.Decimal) {
	c.s.mu.Lock()
	defer c.s.mu.Unlock()
	c.s.variants[variantID] = variant{tenantID: tenantID, productID: productID, adjustment: adjustment}
}

func (c *Catalog) ResolvePrice(_ context.Context, tenantID, productID uuid.UUID, variantID *uuid.UUID) (decimal.Decimal, error) {
	c.s.mu.RLock()
	defer c.s.mu.RUnlock()
	p, ok := c.s.products[productID]
	if !ok || p.tenantID != tenantID {
		return decimal.Zero, shared.ErrNotFound
	}
	if variantID == nil {
		return p.price, nil
	}
	v, ok := c.s.variants[*variantID]
	if !ok || v.tenantID != tenantID || v.productID != productID {
		return decimal.Zero, shared.ErrNotFound
	}
	return p.price.Add(v.adjustment), nil
}

var (
	_ invoicing.InvoiceRepository       = (*InvoiceRepository)(nil)
	_ invoicing.InvoiceItemRepository   = (*ItemRepository)(nil)
	_ invoicing.StockMovementRepository = (*StockMovementRepository)(nil)
	_ invoicing.WarrantyRepository      = (*WarrantyRepository)(nil)
	_ invoicing.LedgerRepository        = (*LedgerRepository)(nil)
	_ invoicing.ReconciliationLog       = (*ReconciliationLog)(nil)
	_ invoicing.ProductCatalog          = (*Catalog)(nil)
)
