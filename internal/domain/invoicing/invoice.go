package invoicing

import (
	"time"

	"github.com/erp/invoicing/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// PaymentStatus is the settlement state of an invoice
type PaymentStatus string

const (
	PaymentStatusPending   PaymentStatus = "pending"
	PaymentStatusPartial   PaymentStatus = "partial"
	PaymentStatusPaid      PaymentStatus = "paid"
	PaymentStatusCancelled PaymentStatus = "cancelled"
)

// IsValid checks if the status is a known PaymentStatus
func (s PaymentStatus) IsValid() bool {
	switch s {
	case PaymentStatusPending, PaymentStatusPartial, PaymentStatusPaid, PaymentStatusCancelled:
		return true
	}
	return false
}

func (s PaymentStatus) String() string {
	return string(s)
}

// Invoice is the aggregate root for a billed sale.
//
// AmountPaid is kept consistent with PaymentStatus: it is positive and at most
// TotalAmount when partial, equal to TotalAmount when paid and zero otherwise.
type Invoice struct {
	shared.TenantAggregateRoot
	InvoiceNumber    string
	CustomerID       uuid.UUID
	CustomerName     string
	Items            []InvoiceItem
	Subtotal         decimal.Decimal
	DiscountAmount   decimal.Decimal
	TaxAmount        decimal.Decimal
	TotalAmount      decimal.Decimal
	PaymentStatus    PaymentStatus
	AmountPaid       decimal.Decimal
	PaymentMethod    string
	WarrantyProvided bool
	Notes            string
	IssuedAt         time.Time
}

// NewInvoice builds an invoice from a fully priced draft
func NewInvoice(tenantID uuid.UUID, invoiceNumber string, draft Draft) (*Invoice, error) {
	if invoiceNumber == "" {
		return nil, shared.NewDomainError("INVALID_INVOICE_NUMBER", "Invoice number cannot be empty")
	}
	if err := draft.Validate(); err != nil {
		return nil, err
	}

	inv := &Invoice{
		TenantAggregateRoot: shared.NewTenantAggregateRoot(tenantID),
		InvoiceNumber:       invoiceNumber,
		IssuedAt:            time.Now(),
	}
	if err := inv.apply(draft); err != nil {
		return nil, err
	}

	inv.AddDomainEvent(NewInvoiceCreatedEvent(inv))
	return inv, nil
}

// Revise replaces the whole form state of the invoice. The invoice number
// and identity never change.
func (inv *Invoice) Revise(draft Draft) error {
	if err := draft.Validate(); err != nil {
		return err
	}

	previous := inv.PaymentStatus
	if err := inv.apply(draft); err != nil {
		return err
	}
	inv.Touch()

	inv.AddDomainEvent(NewInvoiceUpdatedEvent(inv, previous))
	return nil
}

func (inv *Invoice) apply(d Draft) error {
	items, err := buildItems(inv.ID, d.Items)
	if err != nil {
		return err
	}

	totals := CalculateTotals(items, d.DiscountAmount, d.TaxAmount)

	status := d.PaymentStatus
	if status == "" {
		status = PaymentStatusPending
	}
	status, paid, err := settle(status, d.AmountPaid, totals.Total)
	if err != nil {
		return err
	}

	inv.CustomerID = d.CustomerID
	inv.CustomerName = d.CustomerName
	inv.Items = items
	inv.Subtotal = totals.Subtotal
	inv.DiscountAmount = totals.Discount
	inv.TaxAmount = totals.Tax
	inv.TotalAmount = totals.Total
	inv.PaymentStatus = status
	inv.AmountPaid = paid
	inv.PaymentMethod = d.PaymentMethod
	inv.WarrantyProvided = d.WarrantyProvided
	inv.Notes = d.Notes
	return nil
}

// settle derives the stored paid amount for a status. A partial payment that
// covers the whole total is promoted to paid.
func settle(status PaymentStatus, amountPaid, total decimal.Decimal) (PaymentStatus, decimal.Decimal, error) {
	switch status {
	case PaymentStatusPartial:
		amountPaid = amountPaid.Round(MoneyScale)
		if !amountPaid.IsPositive() || amountPaid.GreaterThan(total) {
			return status, decimal.Zero, NewValidationError("amount_paid",
				"partial payment must be greater than 0 and at most the total "+total.StringFixed(MoneyScale))
		}
		if amountPaid.Equal(total) {
			return PaymentStatusPaid, total, nil
		}
		return status, amountPaid, nil
	case PaymentStatusPaid:
		return status, total, nil
	default:
		return status, decimal.Zero, nil
	}
}

// RecordPayment applies money received against the outstanding balance
func (inv *Invoice) RecordPayment(amount decimal.Decimal, method string) error {
	if inv.IsCancelled() {
		return NewValidationError("payment_status", "cannot record a payment on a cancelled invoice")
	}
	amount = amount.Round(MoneyScale)
	if !amount.IsPositive() {
		return NewValidationError("amount", "must be greater than zero")
	}
	outstanding := inv.Outstanding()
	if amount.GreaterThan(outstanding) {
		return NewValidationError("amount", "exceeds the outstanding balance "+outstanding.StringFixed(MoneyScale))
	}

	inv.AmountPaid = inv.AmountPaid.Add(amount)
	if inv.AmountPaid.Equal(inv.TotalAmount) {
		inv.PaymentStatus = PaymentStatusPaid
	} else {
		inv.PaymentStatus = PaymentStatusPartial
	}
	if method != "" {
		inv.PaymentMethod = method
	}
	inv.Touch()

	inv.AddDomainEvent(NewInvoicePaymentRecordedEvent(inv, amount, method))
	return nil
}

// MarkDeleted raises the deletion event. The caller removes the rows.
func (inv *Invoice) MarkDeleted() {
	inv.AddDomainEvent(NewInvoiceDeletedEvent(inv))
}

// Voided returns a copy of the invoice as if it had been cancelled. The
// ledger uses it to reverse accounting for a deleted invoice.
func (inv *Invoice) Voided() *Invoice {
	clone := *inv
	clone.PaymentStatus = PaymentStatusCancelled
	clone.AmountPaid = decimal.Zero
	return &clone
}

// Outstanding is the balance still owed. Cancelled invoices owe nothing.
func (inv *Invoice) Outstanding() decimal.Decimal {
	if inv.IsCancelled() {
		return decimal.Zero
	}
	return inv.TotalAmount.Sub(inv.AmountPaid)
}

func (inv *Invoice) IsCancelled() bool {
	return inv.PaymentStatus == PaymentStatusCancelled
}

// WarrantiedItems returns the items that produce warranty records
func (inv *Invoice) WarrantiedItems() []InvoiceItem {
	if !inv.WarrantyProvided || inv.IsCancelled() {
		return nil
	}
	result := make([]InvoiceItem, 0, len(inv.Items))
	for _, item := range inv.Items {
		if item.HasWarranty() {
			result = append(result, item)
		}
	}
	return result
}

// TotalQuantity sums the quantities of all items
func (inv *Invoice) TotalQuantity() decimal.Decimal {
	total := decimal.Zero
	for _, item := range inv.Items {
		total = total.Add(item.Quantity)
	}
	return total
}
