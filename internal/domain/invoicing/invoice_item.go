package invoicing

import (
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// InvoiceItem is one billed line. The item set of an invoice is always
// replaced as a whole, so items carry no update operations.
type InvoiceItem struct {
	ID              uuid.UUID
	InvoiceID       uuid.UUID
	Position        int
	ProductID       uuid.UUID
	VariantID       *uuid.UUID
	ProductName     string
	Quantity        decimal.Decimal
	UnitPrice       decimal.Decimal
	DiscountPercent decimal.Decimal
	TaxPercent      decimal.Decimal
	SerialNumber    string
	WarrantyMonths  int
	CreatedAt       time.Time
}

// LineTotal returns the discounted line amount
func (i InvoiceItem) LineTotal() decimal.Decimal {
	return LineTotal(i.Quantity, i.UnitPrice, i.DiscountPercent).Round(MoneyScale)
}

// HasWarranty reports whether the item qualifies for a warranty record
func (i InvoiceItem) HasWarranty() bool {
	return i.WarrantyMonths > 0
}

// DraftItem is a line as submitted by the caller. A nil UnitPrice asks the
// engine to price the line from the catalog.
type DraftItem struct {
	ProductID       uuid.UUID
	VariantID       *uuid.UUID
	ProductName     string
	Quantity        decimal.Decimal
	UnitPrice       *decimal.Decimal
	DiscountPercent decimal.Decimal
	TaxPercent      decimal.Decimal
	SerialNumber    string
	WarrantyMonths  int
}

// Draft is the full form state behind a create or edit
type Draft struct {
	CustomerID       uuid.UUID
	CustomerName     string
	Items            []DraftItem
	DiscountAmount   decimal.Decimal
	TaxAmount        *decimal.Decimal
	PaymentStatus    PaymentStatus
	AmountPaid       decimal.Decimal
	PaymentMethod    string
	WarrantyProvided bool
	Notes            string
}

// Validate checks the rules that do not depend on computed totals
func (d Draft) Validate() error {
	verr := &ValidationError{}
	if d.CustomerID == uuid.Nil {
		verr.Add("customer_id", "customer is required")
	}
	if len(d.Items) == 0 {
		verr.Add("items", "at least one item is required")
	}
	for idx, item := range d.Items {
		validateDraftItem(verr, idx, item)
	}
	if d.DiscountAmount.IsNegative() {
		verr.Add("discount_amount", "must not be negative")
	}
	if d.TaxAmount != nil && d.TaxAmount.IsNegative() {
		verr.Add("tax_amount", "must not be negative")
	}
	status := d.PaymentStatus
	if status == "" {
		status = PaymentStatusPending
	}
	if !status.IsValid() {
		verr.Add("payment_status", "must be one of pending, partial, paid, cancelled")
	}
	if d.AmountPaid.IsNegative() {
		verr.Add("amount_paid", "must not be negative")
	}
	return verr.OrNil()
}

func validateDraftItem(verr *ValidationError, idx int, item DraftItem) {
	field := func(name string) string {
		return "items[" + strconv.Itoa(idx) + "]." + name
	}
	if item.ProductID == uuid.Nil {
		verr.Add(field("product_id"), "product is required")
	}
	if !item.Quantity.IsPositive() {
		verr.Add(field("quantity"), "must be greater than zero")
	}
	if item.UnitPrice != nil && item.UnitPrice.IsNegative() {
		verr.Add(field("unit_price"), "must not be negative")
	}
	if !isPercent(item.DiscountPercent) {
		verr.Add(field("discount_percent"), "must be between 0 and 100")
	}
	if !isPercent(item.TaxPercent) {
		verr.Add(field("tax_percent"), "must be between 0 and 100")
	}
	if item.WarrantyMonths < 0 {
		verr.Add(field("warranty_months"), "must not be negative")
	}
}

func isPercent(v decimal.Decimal) bool {
	return !v.IsNegative() && v.LessThanOrEqual(hundred)
}

// buildItems turns priced draft lines into items owned by invoiceID
func buildItems(invoiceID uuid.UUID, drafts []DraftItem) ([]InvoiceItem, error) {
	now := time.Now()
	items := make([]InvoiceItem, 0, len(drafts))
	for idx, d := range drafts {
		if d.UnitPrice == nil {
			return nil, NewValidationError("items["+strconv.Itoa(idx)+"].unit_price", "price could not be resolved")
		}
		items = append(items, InvoiceItem{
			ID:              uuid.New(),
			InvoiceID:       invoiceID,
			Position:        idx + 1,
			ProductID:       d.ProductID,
			VariantID:       d.VariantID,
			ProductName:     d.ProductName,
			Quantity:        d.Quantity,
			UnitPrice:       *d.UnitPrice,
			DiscountPercent: d.DiscountPercent,
			TaxPercent:      d.TaxPercent,
			SerialNumber:    d.SerialNumber,
			WarrantyMonths:  d.WarrantyMonths,
			CreatedAt:       now,
		})
	}
	return items, nil
}
