package invoicing

import (
	"github.com/erp/invoicing/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const AggregateTypeInvoice = "Invoice"

const (
	EventTypeInvoiceCreated              = "InvoiceCreated"
	EventTypeInvoiceUpdated              = "InvoiceUpdated"
	EventTypeInvoiceDeleted              = "InvoiceDeleted"
	EventTypeInvoicePaymentRecorded      = "InvoicePaymentRecorded"
	EventTypeInvoiceReconciliationNeeded = "InvoiceReconciliationNeeded"
)

// InvoiceCreatedEvent is raised when a new invoice is issued
type InvoiceCreatedEvent struct {
	shared.BaseDomainEvent
	InvoiceID     uuid.UUID       `json:"invoice_id"`
	InvoiceNumber string          `json:"invoice_number"`
	CustomerID    uuid.UUID       `json:"customer_id"`
	ItemCount     int             `json:"item_count"`
	TotalAmount   decimal.Decimal `json:"total_amount"`
	PaymentStatus PaymentStatus   `json:"payment_status"`
	AmountPaid    decimal.Decimal `json:"amount_paid"`
}

func NewInvoiceCreatedEvent(inv *Invoice) *InvoiceCreatedEvent {
	return &InvoiceCreatedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeInvoiceCreated, AggregateTypeInvoice, inv.ID, inv.TenantID),
		InvoiceID:       inv.ID,
		InvoiceNumber:   inv.InvoiceNumber,
		CustomerID:      inv.CustomerID,
		ItemCount:       len(inv.Items),
		TotalAmount:     inv.TotalAmount,
		PaymentStatus:   inv.PaymentStatus,
		AmountPaid:      inv.AmountPaid,
	}
}

// InvoiceUpdatedEvent is raised after an edit replaced the invoice form state
type InvoiceUpdatedEvent struct {
	shared.BaseDomainEvent
	InvoiceID      uuid.UUID       `json:"invoice_id"`
	InvoiceNumber  string          `json:"invoice_number"`
	ItemCount      int             `json:"item_count"`
	TotalAmount    decimal.Decimal `json:"total_amount"`
	PreviousStatus PaymentStatus   `json:"previous_status"`
	PaymentStatus  PaymentStatus   `json:"payment_status"`
	AmountPaid     decimal.Decimal `json:"amount_paid"`
}

func NewInvoiceUpdatedEvent(inv *Invoice, previous PaymentStatus) *InvoiceUpdatedEvent {
	return &InvoiceUpdatedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeInvoiceUpdated, AggregateTypeInvoice, inv.ID, inv.TenantID),
		InvoiceID:       inv.ID,
		InvoiceNumber:   inv.InvoiceNumber,
		ItemCount:       len(inv.Items),
		TotalAmount:     inv.TotalAmount,
		PreviousStatus:  previous,
		PaymentStatus:   inv.PaymentStatus,
		AmountPaid:      inv.AmountPaid,
	}
}

// InvoiceDeletedEvent is raised when an invoice and its dependent rows are removed
type InvoiceDeletedEvent struct {
	shared.BaseDomainEvent
	InvoiceID     uuid.UUID       `json:"invoice_id"`
	InvoiceNumber string          `json:"invoice_number"`
	TotalAmount   decimal.Decimal `json:"total_amount"`
}

func NewInvoiceDeletedEvent(inv *Invoice) *InvoiceDeletedEvent {
	return &InvoiceDeletedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeInvoiceDeleted, AggregateTypeInvoice, inv.ID, inv.TenantID),
		InvoiceID:       inv.ID,
		InvoiceNumber:   inv.InvoiceNumber,
		TotalAmount:     inv.TotalAmount,
	}
}

// InvoicePaymentRecordedEvent is raised when money is received against an invoice
type InvoicePaymentRecordedEvent struct {
	shared.BaseDomainEvent
	InvoiceID     uuid.UUID       `json:"invoice_id"`
	InvoiceNumber string          `json:"invoice_number"`
	Amount        decimal.Decimal `json:"amount"`
	Method        string          `json:"method"`
	AmountPaid    decimal.Decimal `json:"amount_paid"`
	Outstanding   decimal.Decimal `json:"outstanding"`
	PaymentStatus PaymentStatus   `json:"payment_status"`
}

func NewInvoicePaymentRecordedEvent(inv *Invoice, amount decimal.Decimal, method string) *InvoicePaymentRecordedEvent {
	return &InvoicePaymentRecordedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeInvoicePaymentRecorded, AggregateTypeInvoice, inv.ID, inv.TenantID),
		InvoiceID:       inv.ID,
		InvoiceNumber:   inv.InvoiceNumber,
		Amount:          amount,
		Method:          method,
		AmountPaid:      inv.AmountPaid,
		Outstanding:     inv.Outstanding(),
		PaymentStatus:   inv.PaymentStatus,
	}
}

// InvoiceReconciliationNeededEvent is raised for every reconciliation gap
type InvoiceReconciliationNeededEvent struct {
	shared.BaseDomainEvent
	GapID         uuid.UUID `json:"gap_id"`
	InvoiceNumber string    `json:"invoice_number"`
	Stage         Stage     `json:"stage"`
	Operation     string    `json:"operation"`
	Reason        string    `json:"reason"`
}

func NewInvoiceReconciliationNeededEvent(gap ReconciliationGap) *InvoiceReconciliationNeededEvent {
	return &InvoiceReconciliationNeededEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeInvoiceReconciliationNeeded, AggregateTypeInvoice, gap.InvoiceID, gap.TenantID),
		GapID:           gap.ID,
		InvoiceNumber:   gap.InvoiceNumber,
		Stage:           gap.Stage,
		Operation:       gap.Operation,
		Reason:          gap.Reason,
	}
}
