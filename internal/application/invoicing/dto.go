package invoicing

import (
	"time"

	"github.com/erp/invoicing/internal/domain/invoicing"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ==================== Requests ====================

// InvoiceItemInput is one line of a create or edit request. Omit unit_price
// to price the line from the product catalog.
type InvoiceItemInput struct {
	ProductID       uuid.UUID        `json:"product_id" binding:"required"`
	VariantID       *uuid.UUID       `json:"variant_id"`
	ProductName     string           `json:"product_name" binding:"max=200"`
	Quantity        decimal.Decimal  `json:"quantity" binding:"dgt=0"`
	UnitPrice       *decimal.Decimal `json:"unit_price" binding:"omitempty,dgte=0"`
	DiscountPercent decimal.Decimal  `json:"discount_percent" binding:"dgte=0,dlte=100"`
	TaxPercent      decimal.Decimal  `json:"tax_percent" binding:"dgte=0,dlte=100"`
	SerialNumber    string           `json:"serial_number" binding:"max=100"`
	WarrantyMonths  int              `json:"warranty_months" binding:"min=0"`
}

// InvoiceRequest is the full form state submitted on create and edit
type InvoiceRequest struct {
	CustomerID       uuid.UUID          `json:"customer_id" binding:"required"`
	CustomerName     string             `json:"customer_name" binding:"max=200"`
	Items            []InvoiceItemInput `json:"items" binding:"required,min=1,dive"`
	DiscountAmount   decimal.Decimal    `json:"discount_amount" binding:"dgte=0"`
	TaxAmount        *decimal.Decimal   `json:"tax_amount" binding:"omitempty,dgte=0"`
	PaymentStatus    string             `json:"payment_status" binding:"omitempty,oneof=pending partial paid cancelled"`
	AmountPaid       decimal.Decimal    `json:"amount_paid" binding:"dgte=0"`
	PaymentMethod    string             `json:"payment_method" binding:"max=50"`
	WarrantyProvided bool               `json:"warranty_provided"`
	Notes            string             `json:"notes" binding:"max=2000"`
}

// ToDraft converts the request into a domain draft
func (r InvoiceRequest) ToDraft() invoicing.Draft {
	items := make([]invoicing.DraftItem, len(r.Items))
	for i, in := range r.Items {
		items[i] = invoicing.DraftItem{
			ProductID:       in.ProductID,
			VariantID:       in.VariantID,
			ProductName:     in.ProductName,
			Quantity:        in.Quantity,
			UnitPrice:       in.UnitPrice,
			DiscountPercent: in.DiscountPercent,
			TaxPercent:      in.TaxPercent,
			SerialNumber:    in.SerialNumber,
			WarrantyMonths:  in.WarrantyMonths,
		}
	}
	return invoicing.Draft{
		CustomerID:       r.CustomerID,
		CustomerName:     r.CustomerName,
		Items:            items,
		DiscountAmount:   r.DiscountAmount,
		TaxAmount:        r.TaxAmount,
		PaymentStatus:    invoicing.PaymentStatus(r.PaymentStatus),
		AmountPaid:       r.AmountPaid,
		PaymentMethod:    r.PaymentMethod,
		WarrantyProvided: r.WarrantyProvided,
		Notes:            r.Notes,
	}
}

// RecordPaymentRequest records money received against an invoice
type RecordPaymentRequest struct {
	Amount decimal.Decimal `json:"amount" binding:"dgt=0"`
	Method string          `json:"method" binding:"max=50"`
}

// ReconcileRequest re-runs one sync stage
type ReconcileRequest struct {
	Stage string `json:"stage" binding:"required,oneof=stock warranty ledger"`
}

// InvoiceListFilter narrows an invoice listing
type InvoiceListFilter struct {
	Page          int        `form:"page" binding:"omitempty,min=1"`
	PageSize      int        `form:"page_size" binding:"omitempty,min=1,max=100"`
	OrderBy       string     `form:"order_by" binding:"omitempty,oneof=created_at issued_at invoice_number total_amount"`
	OrderDir      string     `form:"order_dir" binding:"omitempty,oneof=asc desc"`
	Search        string     `form:"search"`
	CustomerID    *uuid.UUID `form:"customer_id"`
	PaymentStatus string     `form:"payment_status" binding:"omitempty,oneof=pending partial paid cancelled"`
	From          *time.Time `form:"from" time_format:"2006-01-02"`
	To            *time.Time `form:"to" time_format:"2006-01-02"`
}

// ==================== Responses ====================

// InvoiceItemResponse is one invoice line
type InvoiceItemResponse struct {
	ID              uuid.UUID       `json:"id"`
	Position        int             `json:"position"`
	ProductID       uuid.UUID       `json:"product_id"`
	VariantID       *uuid.UUID      `json:"variant_id,omitempty"`
	ProductName     string          `json:"product_name"`
	Quantity        decimal.Decimal `json:"quantity"`
	UnitPrice       decimal.Decimal `json:"unit_price"`
	DiscountPercent decimal.Decimal `json:"discount_percent"`
	TaxPercent      decimal.Decimal `json:"tax_percent"`
	LineTotal       decimal.Decimal `json:"line_total"`
	SerialNumber    string          `json:"serial_number,omitempty"`
	WarrantyMonths  int             `json:"warranty_months"`
}

// InvoiceResponse is an invoice with its items
type InvoiceResponse struct {
	ID               uuid.UUID             `json:"id"`
	TenantID         uuid.UUID             `json:"tenant_id"`
	InvoiceNumber    string                `json:"invoice_number"`
	CustomerID       uuid.UUID             `json:"customer_id"`
	CustomerName     string                `json:"customer_name"`
	Items            []InvoiceItemResponse `json:"items"`
	Subtotal         decimal.Decimal       `json:"subtotal"`
	DiscountAmount   decimal.Decimal       `json:"discount_amount"`
	TaxAmount        decimal.Decimal       `json:"tax_amount"`
	TotalAmount      decimal.Decimal       `json:"total_amount"`
	PaymentStatus    string                `json:"payment_status"`
	AmountPaid       decimal.Decimal       `json:"amount_paid"`
	Outstanding      decimal.Decimal       `json:"outstanding"`
	PaymentMethod    string                `json:"payment_method,omitempty"`
	WarrantyProvided bool                  `json:"warranty_provided"`
	Notes            string                `json:"notes,omitempty"`
	IssuedAt         time.Time             `json:"issued_at"`
	CreatedAt        time.Time             `json:"created_at"`
	UpdatedAt        time.Time             `json:"updated_at"`
	Version          int                   `json:"version"`
}

// InvoiceListItemResponse is the listing view of an invoice
type InvoiceListItemResponse struct {
	ID            uuid.UUID       `json:"id"`
	InvoiceNumber string          `json:"invoice_number"`
	CustomerID    uuid.UUID       `json:"customer_id"`
	CustomerName  string          `json:"customer_name"`
	ItemCount     int             `json:"item_count"`
	TotalAmount   decimal.Decimal `json:"total_amount"`
	PaymentStatus string          `json:"payment_status"`
	AmountPaid    decimal.Decimal `json:"amount_paid"`
	IssuedAt      time.Time       `json:"issued_at"`
}

// StepResponse reports one stage of an operation
type StepResponse struct {
	Stage      string `json:"stage"`
	Status     string `json:"status"`
	Error      string `json:"error,omitempty"`
	DurationMs int64  `json:"duration_ms"`
}

// OutcomeResponse is the result of a lifecycle operation
type OutcomeResponse struct {
	Operation string                        `json:"operation"`
	State     string                        `json:"state"`
	Invoice   *InvoiceResponse              `json:"invoice,omitempty"`
	Steps     []StepResponse                `json:"steps"`
	Warnings  []invoicing.ReconciliationGap `json:"warnings,omitempty"`
}

// StockMovementResponse is one movement posted for an invoice
type StockMovementResponse struct {
	ID              uuid.UUID       `json:"id"`
	ProductID       uuid.UUID       `json:"product_id"`
	VariantID       *uuid.UUID      `json:"variant_id,omitempty"`
	Quantity        decimal.Decimal `json:"quantity"`
	MovementType    string          `json:"movement_type"`
	ReferenceNumber string          `json:"reference_number"`
	Notes           string          `json:"notes"`
	CreatedAt       time.Time       `json:"created_at"`
}

// StockLevelResponse is the on-hand quantity of one product
type StockLevelResponse struct {
	ProductID uuid.UUID       `json:"product_id"`
	OnHand    decimal.Decimal `json:"on_hand"`
}

// WarrantyResponse is one registered warranty
type WarrantyResponse struct {
	ID             uuid.UUID  `json:"id"`
	InvoiceNumber  string     `json:"invoice_number"`
	CustomerID     uuid.UUID  `json:"customer_id"`
	ProductID      uuid.UUID  `json:"product_id"`
	VariantID      *uuid.UUID `json:"variant_id,omitempty"`
	SerialNumber   string     `json:"serial_number,omitempty"`
	WarrantyMonths int        `json:"warranty_months"`
	StartsAt       time.Time  `json:"starts_at"`
	ExpiresAt      time.Time  `json:"expires_at"`
}

// LedgerEntryResponse is one accounts receivable entry
type LedgerEntryResponse struct {
	ID        uuid.UUID       `json:"id"`
	EntryType string          `json:"entry_type"`
	Amount    decimal.Decimal `json:"amount"`
	Status    string          `json:"status"`
	Notes     string          `json:"notes,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}

// PaymentResponse is one payment or refund
type PaymentResponse struct {
	ID         uuid.UUID       `json:"id"`
	Kind       string          `json:"kind"`
	Amount     decimal.Decimal `json:"amount"`
	Method     string          `json:"method,omitempty"`
	ReceivedAt time.Time       `json:"received_at"`
}

// LedgerResponse is the ledger view of one invoice
type LedgerResponse struct {
	InvoiceID     uuid.UUID             `json:"invoice_id"`
	Entries       []LedgerEntryResponse `json:"entries"`
	Payments      []PaymentResponse     `json:"payments"`
	PaymentsTotal decimal.Decimal       `json:"payments_total"`
	Outstanding   decimal.Decimal       `json:"outstanding"`
}

// ==================== Converters ====================

// ToInvoiceResponse converts a domain invoice
func ToInvoiceResponse(inv *invoicing.Invoice) InvoiceResponse {
	items := make([]InvoiceItemResponse, len(inv.Items))
	for i, item := range inv.Items {
		items[i] = InvoiceItemResponse{
			ID:              item.ID,
			Position:        item.Position,
			ProductID:       item.ProductID,
			VariantID:       item.VariantID,
			ProductName:     item.ProductName,
			Quantity:        item.Quantity,
			UnitPrice:       item.UnitPrice,
			DiscountPercent: item.DiscountPercent,
			TaxPercent:      item.TaxPercent,
			LineTotal:       item.LineTotal(),
			SerialNumber:    item.SerialNumber,
			WarrantyMonths:  item.WarrantyMonths,
		}
	}
	return InvoiceResponse{
		ID:               inv.ID,
		TenantID:         inv.TenantID,
		InvoiceNumber:    inv.InvoiceNumber,
		CustomerID:       inv.CustomerID,
		CustomerName:     inv.CustomerName,
		Items:            items,
		Subtotal:         inv.Subtotal,
		DiscountAmount:   inv.DiscountAmount,
		TaxAmount:        inv.TaxAmount,
		TotalAmount:      inv.TotalAmount,
		PaymentStatus:    inv.PaymentStatus.String(),
		AmountPaid:       inv.AmountPaid,
		Outstanding:      inv.Outstanding(),
		PaymentMethod:    inv.PaymentMethod,
		WarrantyProvided: inv.WarrantyProvided,
		Notes:            inv.Notes,
		IssuedAt:         inv.IssuedAt,
		CreatedAt:        inv.CreatedAt,
		UpdatedAt:        inv.UpdatedAt,
		Version:          inv.Version,
	}
}

// ToInvoiceListItemResponse converts a domain invoice to its listing view
func ToInvoiceListItemResponse(inv *invoicing.Invoice) InvoiceListItemResponse {
	return InvoiceListItemResponse{
		ID:            inv.ID,
		InvoiceNumber: inv.InvoiceNumber,
		CustomerID:    inv.CustomerID,
		CustomerName:  inv.CustomerName,
		ItemCount:     len(inv.Items),
		TotalAmount:   inv.TotalAmount,
		PaymentStatus: inv.PaymentStatus.String(),
		AmountPaid:    inv.AmountPaid,
		IssuedAt:      inv.IssuedAt,
	}
}

// ToOutcomeResponse converts an operation outcome
func ToOutcomeResponse(o *Outcome) OutcomeResponse {
	resp := OutcomeResponse{
		Operation: o.Operation,
		State:     o.State.String(),
		Steps:     make([]StepResponse, len(o.Steps)),
		Warnings:  o.Warnings,
	}
	for i, s := range o.Steps {
		resp.Steps[i] = StepResponse{
			Stage:      s.Stage.String(),
			Status:     string(s.Status),
			Error:      s.Error,
			DurationMs: s.Duration.Milliseconds(),
		}
	}
	if o.Invoice != nil && o.Operation != OperationDelete {
		inv := ToInvoiceResponse(o.Invoice)
		resp.Invoice = &inv
	}
	return resp
}

func toStockMovementResponses(movements []invoicing.StockMovement) []StockMovementResponse {
	out := make([]StockMovementResponse, len(movements))
	for i, m := range movements {
		out[i] = StockMovementResponse{
			ID:              m.ID,
			ProductID:       m.ProductID,
			VariantID:       m.VariantID,
			Quantity:        m.Quantity,
			MovementType:    string(m.MovementType),
			ReferenceNumber: m.ReferenceNumber,
			Notes:           m.Notes,
			CreatedAt:       m.CreatedAt,
		}
	}
	return out
}

func toWarrantyResponses(records []invoicing.WarrantyRecord) []WarrantyResponse {
	out := make([]WarrantyResponse, len(records))
	for i, r := range records {
		out[i] = WarrantyResponse{
			ID:             r.ID,
			InvoiceNumber:  r.InvoiceNumber,
			CustomerID:     r.CustomerID,
			ProductID:      r.ProductID,
			VariantID:      r.VariantID,
			SerialNumber:   r.SerialNumber,
			WarrantyMonths: r.WarrantyMonths,
			StartsAt:       r.StartsAt,
			ExpiresAt:      r.ExpiresAt,
		}
	}
	return out
}

func toLedgerResponse(invoiceID uuid.UUID, entries []invoicing.LedgerEntry, payments []invoicing.Payment) LedgerResponse {
	resp := LedgerResponse{
		InvoiceID:     invoiceID,
		Entries:       make([]LedgerEntryResponse, len(entries)),
		Payments:      make([]PaymentResponse, len(payments)),
		PaymentsTotal: decimal.Zero,
		Outstanding:   decimal.Zero,
	}
	for i, e := range entries {
		resp.Entries[i] = LedgerEntryResponse{
			ID:        e.ID,
			EntryType: string(e.EntryType),
			Amount:    e.Amount,
			Status:    string(e.Status),
			Notes:     e.Notes,
			CreatedAt: e.CreatedAt,
		}
		if e.Status == invoicing.LedgerStatusActive && e.EntryType.IsOutstanding() {
			resp.Outstanding = e.Amount
		}
	}
	for i, p := range payments {
		resp.Payments[i] = PaymentResponse{
			ID:         p.ID,
			Kind:       string(p.Kind),
			Amount:     p.Amount,
			Method:     p.Method,
			ReceivedAt: p.ReceivedAt,
		}
		resp.PaymentsTotal = resp.PaymentsTotal.Add(p.Amount)
	}
	return resp
}
