package invoicing

import (
	"context"
	"errors"

	"github.com/erp/invoicing/internal/domain/invoicing"
	"github.com/erp/invoicing/internal/domain/shared"
	"github.com/google/uuid"
)

// QueryService serves the read side of invoices and their derived records
type QueryService struct {
	invoices       invoicing.InvoiceRepository
	movements      invoicing.StockMovementRepository
	warranties     invoicing.WarrantyRepository
	ledger         invoicing.LedgerRepository
	reconciliation invoicing.ReconciliationLog
}

// NewQueryService creates a QueryService
func NewQueryService(
	invoices invoicing.InvoiceRepository,
	movements invoicing.StockMovementRepository,
	warranties invoicing.WarrantyRepository,
	ledger invoicing.LedgerRepository,
	reconciliation invoicing.ReconciliationLog,
) *QueryService {
	return &QueryService{
		invoices:       invoices,
		movements:      movements,
		warranties:     warranties,
		ledger:         ledger,
		reconciliation: reconciliation,
	}
}

// Get retrieves an invoice with its items
func (s *QueryService) Get(ctx context.Context, tenantID, id uuid.UUID) (*InvoiceResponse, error) {
	inv, err := s.find(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}
	resp := ToInvoiceResponse(inv)
	return &resp, nil
}

// GetByNumber retrieves an invoice by its number
func (s *QueryService) GetByNumber(ctx context.Context, tenantID uuid.UUID, number string) (*InvoiceResponse, error) {
	inv, err := s.invoices.FindByNumber(ctx, tenantID, number)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return nil, invoicing.ErrInvoiceNotFound
		}
		return nil, err
	}
	resp := ToInvoiceResponse(inv)
	return &resp, nil
}

// List retrieves a page of invoices
func (s *QueryService) List(ctx context.Context, tenantID uuid.UUID, filter InvoiceListFilter) (shared.Paginated[InvoiceListItemResponse], error) {
	domainFilter := toDomainFilter(filter)

	invoices, err := s.invoices.FindAllForTenant(ctx, tenantID, domainFilter)
	if err != nil {
		return shared.Paginated[InvoiceListItemResponse]{}, err
	}
	total, err := s.invoices.CountForTenant(ctx, tenantID, domainFilter)
	if err != nil {
		return shared.Paginated[InvoiceListItemResponse]{}, err
	}

	items := make([]InvoiceListItemResponse, len(invoices))
	for i := range invoices {
		items[i] = ToInvoiceListItemResponse(&invoices[i])
	}
	return shared.NewPaginated(items, total, domainFilter.Page, domainFilter.PageSize), nil
}

// StockMovements lists the movements posted under an invoice's number
func (s *QueryService) StockMovements(ctx context.Context, tenantID, id uuid.UUID) ([]StockMovementResponse, error) {
	inv, err := s.find(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}
	movements, err := s.movements.FindByReference(ctx, tenantID, inv.InvoiceNumber)
	if err != nil {
		return nil, err
	}
	return toStockMovementResponses(movements), nil
}

// StockOnHand sums every movement posted for a product
func (s *QueryService) StockOnHand(ctx context.Context, tenantID, productID uuid.UUID) (*StockLevelResponse, error) {
	qty, err := s.movements.OnHand(ctx, tenantID, productID)
	if err != nil {
		return nil, err
	}
	return &StockLevelResponse{ProductID: productID, OnHand: qty}, nil
}

// Warranties lists the warranty records of an invoice
func (s *QueryService) Warranties(ctx context.Context, tenantID, id uuid.UUID) ([]WarrantyResponse, error) {
	if _, err := s.find(ctx, tenantID, id); err != nil {
		return nil, err
	}
	records, err := s.warranties.FindByInvoice(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}
	return toWarrantyResponses(records), nil
}

// Ledger returns every entry and payment of an invoice. It works for deleted
// invoices too, since the ledger outlives them.
func (s *QueryService) Ledger(ctx context.Context, tenantID, id uuid.UUID) (*LedgerResponse, error) {
	entries, err := s.ledger.FindEntriesByInvoice(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}
	payments, err := s.ledger.FindPaymentsByInvoice(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 && len(payments) == 0 {
		if _, err := s.find(ctx, tenantID, id); err != nil {
			return nil, err
		}
	}
	resp := toLedgerResponse(id, entries, payments)
	return &resp, nil
}

// OpenGaps lists reconciliation gaps still waiting for a retry
func (s *QueryService) OpenGaps(ctx context.Context, tenantID uuid.UUID, filter shared.Filter) ([]invoicing.ReconciliationGap, error) {
	if s.reconciliation == nil {
		return []invoicing.ReconciliationGap{}, nil
	}
	if filter.PageSize <= 0 {
		filter = shared.DefaultFilter()
	}
	return s.reconciliation.FindOpen(ctx, tenantID, filter)
}

func (s *QueryService) find(ctx context.Context, tenantID, id uuid.UUID) (*invoicing.Invoice, error) {
	inv, err := s.invoices.FindByIDForTenant(ctx, tenantID, id)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return nil, invoicing.ErrInvoiceNotFound
		}
		return nil, err
	}
	return inv, nil
}

func toDomainFilter(filter InvoiceListFilter) shared.Filter {
	f := shared.DefaultFilter()
	if filter.Page > 0 {
		f.Page = filter.Page
	}
	if filter.PageSize > 0 {
		f.PageSize = filter.PageSize
	}
	if filter.OrderBy != "" {
		f.OrderBy = filter.OrderBy
	}
	if filter.OrderDir != "" {
		f.OrderDir = filter.OrderDir
	}
	f.Search = filter.Search
	if filter.CustomerID != nil {
		f.Filters["customer_id"] = *filter.CustomerID
	}
	if filter.PaymentStatus != "" {
		f.Filters["payment_status"] = filter.PaymentStatus
	}
	if filter.From != nil {
		f.Filters["from"] = *filter.From
	}
	if filter.To != nil {
		f.Filters["to"] = *filter.To
	}
	return f
}
