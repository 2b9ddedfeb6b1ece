package models

import (
	"time"

	"github.com/erp/invoicing/internal/domain/invoicing"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// StockMovementModel is one row of stock_movements. Rows are grouped by
// reference number, which for invoices is the invoice number.
type StockMovementModel struct {
	ID              uuid.UUID              `gorm:"type:uuid;primary_key"`
	TenantID        uuid.UUID              `gorm:"type:uuid;not null;index:idx_stock_movements_reference,priority:1;index:idx_stock_movements_product,priority:1"`
	ProductID       uuid.UUID              `gorm:"type:uuid;not null;index:idx_stock_movements_product,priority:2"`
	VariantID       *uuid.UUID             `gorm:"type:uuid"`
	Quantity        decimal.Decimal        `gorm:"type:decimal(18,4);not null"`
	MovementType    invoicing.MovementType `gorm:"type:varchar(20);not null"`
	ReferenceNumber string                 `gorm:"type:varchar(50);not null;index:idx_stock_movements_reference,priority:2"`
	Notes           string                 `gorm:"type:varchar(500)"`
	CreatedAt       time.Time              `gorm:"not null"`
}

// TableName returns the table name for GORM
func (StockMovementModel) TableName() string {
	return "stock_movements"
}

func (m *StockMovementModel) ToDomain() invoicing.StockMovement {
	return invoicing.StockMovement{
		ID:              m.ID,
		TenantID:        m.TenantID,
		ProductID:       m.ProductID,
		VariantID:       m.VariantID,
		Quantity:        m.Quantity,
		MovementType:    m.MovementType,
		ReferenceNumber: m.ReferenceNumber,
		Notes:           m.Notes,
		CreatedAt:       m.CreatedAt,
	}
}

func StockMovementModelFromDomain(mv invoicing.StockMovement) StockMovementModel {
	return StockMovementModel{
		ID:              mv.ID,
		TenantID:        mv.TenantID,
		ProductID:       mv.ProductID,
		VariantID:       mv.VariantID,
		Quantity:        mv.Quantity,
		MovementType:    mv.MovementType,
		ReferenceNumber: mv.ReferenceNumber,
		Notes:           mv.Notes,
		CreatedAt:       mv.CreatedAt,
	}
}

// WarrantyRecordModel is one row of warranty_records
type WarrantyRecordModel struct {
	ID             uuid.UUID  `gorm:"type:uuid;primary_key"`
	TenantID       uuid.UUID  `gorm:"type:uuid;not null;index:idx_warranty_records_invoice,priority:1"`
	InvoiceID      uuid.UUID  `gorm:"type:uuid;not null;index:idx_warranty_records_invoice,priority:2"`
	InvoiceNumber  string     `gorm:"type:varchar(50);not null"`
	CustomerID     uuid.UUID  `gorm:"type:uuid;not null;index"`
	ProductID      uuid.UUID  `gorm:"type:uuid;not null"`
	VariantID      *uuid.UUID `gorm:"type:uuid"`
	SerialNumber   string     `gorm:"type:varchar(100);index"`
	WarrantyMonths int        `gorm:"not null"`
	StartsAt       time.Time  `gorm:"not null"`
	ExpiresAt      time.Time  `gorm:"not null;index"`
	CreatedAt      time.Time  `gorm:"not null"`
}

// TableName returns the table name for GORM
func (WarrantyRecordModel) TableName() string {
	return "warranty_records"
}

func (m *WarrantyRecordModel) ToDomain() invoicing.WarrantyRecord {
	return invoicing.WarrantyRecord{
		ID:             m.ID,
		TenantID:       m.TenantID,
		InvoiceID:      m.InvoiceID,
		InvoiceNumber:  m.InvoiceNumber,
		CustomerID:     m.CustomerID,
		ProductID:      m.ProductID,
		VariantID:      m.VariantID,
		SerialNumber:   m.SerialNumber,
		WarrantyMonths: m.WarrantyMonths,
		StartsAt:       m.StartsAt,
		ExpiresAt:      m.ExpiresAt,
		CreatedAt:      m.CreatedAt,
	}
}

func WarrantyRecordModelFromDomain(w invoicing.WarrantyRecord) WarrantyRecordModel {
	return WarrantyRecordModel{
		ID:             w.ID,
		TenantID:       w.TenantID,
		InvoiceID:      w.InvoiceID,
		InvoiceNumber:  w.InvoiceNumber,
		CustomerID:     w.CustomerID,
		ProductID:      w.ProductID,
		VariantID:      w.VariantID,
		SerialNumber:   w.SerialNumber,
		WarrantyMonths: w.WarrantyMonths,
		StartsAt:       w.StartsAt,
		ExpiresAt:      w.ExpiresAt,
		CreatedAt:      w.CreatedAt,
	}
}

// LedgerEntryModel is one row of ledger_entries
type LedgerEntryModel struct {
	ID            uuid.UUID                   `gorm:"type:uuid;primary_key"`
	TenantID      uuid.UUID                   `gorm:"type:uuid;not null;index:idx_ledger_entries_invoice,priority:1"`
	InvoiceID     uuid.UUID                   `gorm:"type:uuid;not null;index:idx_ledger_entries_invoice,priority:2"`
	InvoiceNumber string                      `gorm:"type:varchar(50);not null"`
	CustomerID    uuid.UUID                   `gorm:"type:uuid;not null;index"`
	EntryType     invoicing.LedgerEntryType   `gorm:"type:varchar(20);not null"`
	Amount        decimal.Decimal             `gorm:"type:decimal(18,2);not null"`
	Status        invoicing.LedgerEntryStatus `gorm:"type:varchar(20);not null"`
	Notes         string                      `gorm:"type:varchar(500)"`
	CreatedAt     time.Time                   `gorm:"not null"`
	UpdatedAt     time.Time                   `gorm:"not null"`
}

// TableName returns the table name for GORM
func (LedgerEntryModel) TableName() string {
	return "ledger_entries"
}

func (m *LedgerEntryModel) ToDomain() invoicing.LedgerEntry {
	return invoicing.LedgerEntry{
		ID:            m.ID,
		TenantID:      m.TenantID,
		InvoiceID:     m.InvoiceID,
		InvoiceNumber: m.InvoiceNumber,
		CustomerID:    m.CustomerID,
		EntryType:     m.EntryType,
		Amount:        m.Amount,
		Status:        m.Status,
		Notes:         m.Notes,
		CreatedAt:     m.CreatedAt,
		UpdatedAt:     m.UpdatedAt,
	}
}

func LedgerEntryModelFromDomain(e invoicing.LedgerEntry) LedgerEntryModel {
	return LedgerEntryModel{
		ID:            e.ID,
		TenantID:      e.TenantID,
		InvoiceID:     e.InvoiceID,
		InvoiceNumber: e.InvoiceNumber,
		CustomerID:    e.CustomerID,
		EntryType:     e.EntryType,
		Amount:        e.Amount,
		Status:        e.Status,
		Notes:         e.Notes,
		CreatedAt:     e.CreatedAt,
		UpdatedAt:     e.UpdatedAt,
	}
}

// PaymentModel is one row of payments. Refunds are stored with a negative amount.
type PaymentModel struct {
	ID            uuid.UUID             `gorm:"type:uuid;primary_key"`
	TenantID      uuid.UUID             `gorm:"type:uuid;not null;index:idx_payments_invoice,priority:1"`
	InvoiceID     uuid.UUID             `gorm:"type:uuid;not null;index:idx_payments_invoice,priority:2"`
	InvoiceNumber string                `gorm:"type:varchar(50);not null"`
	CustomerID    uuid.UUID             `gorm:"type:uuid;not null"`
	Kind          invoicing.PaymentKind `gorm:"type:varchar(20);not null"`
	Amount        decimal.Decimal       `gorm:"type:decimal(18,2);not null"`
	Method        string                `gorm:"type:varchar(50)"`
	ReceivedAt    time.Time             `gorm:"not null"`
}

// TableName returns the table name for GORM
func (PaymentModel) TableName() string {
	return "payments"
}

func (m *PaymentModel) ToDomain() invoicing.Payment {
	return invoicing.Payment{
		ID:            m.ID,
		TenantID:      m.TenantID,
		InvoiceID:     m.InvoiceID,
		InvoiceNumber: m.InvoiceNumber,
		CustomerID:    m.CustomerID,
		Kind:          m.Kind,
		Amount:        m.Amount,
		Method:        m.Method,
		ReceivedAt:    m.ReceivedAt,
	}
}

func PaymentModelFromDomain(p invoicing.Payment) PaymentModel {
	return PaymentModel{
		ID:            p.ID,
		TenantID:      p.TenantID,
		InvoiceID:     p.InvoiceID,
		InvoiceNumber: p.InvoiceNumber,
		CustomerID:    p.CustomerID,
		Kind:          p.Kind,
		Amount:        p.Amount,
		Method:        p.Method,
		ReceivedAt:    p.ReceivedAt,
	}
}

// ReconciliationGapModel is one row of pending_reconciliations
type ReconciliationGapModel struct {
	ID            uuid.UUID           `gorm:"type:uuid;primary_key"`
	TenantID      uuid.UUID           `gorm:"type:uuid;not null;index:idx_pending_reconciliations_open,priority:1"`
	InvoiceID     uuid.UUID           `gorm:"type:uuid;not null;index:idx_pending_reconciliations_open,priority:3"`
	InvoiceNumber string              `gorm:"type:varchar(50);not null"`
	Stage         invoicing.Stage     `gorm:"type:varchar(20);not null"`
	Operation     string              `gorm:"type:varchar(30);not null"`
	Reason        string              `gorm:"type:text"`
	Status        invoicing.GapStatus `gorm:"type:varchar(20);not null;index:idx_pending_reconciliations_open,priority:2"`
	Attempts      int                 `gorm:"not null;default:1"`
	DetectedAt    time.Time           `gorm:"not null"`
	ResolvedAt    *time.Time
}

// TableName returns the table name for GORM
func (ReconciliationGapModel) TableName() string {
	return "pending_reconciliations"
}

func (m *ReconciliationGapModel) ToDomain() invoicing.ReconciliationGap {
	return invoicing.ReconciliationGap{
		ID:            m.ID,
		TenantID:      m.TenantID,
		InvoiceID:     m.InvoiceID,
		InvoiceNumber: m.InvoiceNumber,
		Stage:         m.Stage,
		Operation:     m.Operation,
		Reason:        m.Reason,
		Status:        m.Status,
		Attempts:      m.Attempts,
		DetectedAt:    m.DetectedAt,
		ResolvedAt:    m.ResolvedAt,
	}
}

func ReconciliationGapModelFromDomain(g invoicing.ReconciliationGap) ReconciliationGapModel {
	return ReconciliationGapModel{
		ID:            g.ID,
		TenantID:      g.TenantID,
		InvoiceID:     g.InvoiceID,
		InvoiceNumber: g.InvoiceNumber,
		Stage:         g.Stage,
		Operation:     g.Operation,
		Reason:        g.Reason,
		Status:        g.Status,
		Attempts:      g.Attempts,
		DetectedAt:    g.DetectedAt,
		ResolvedAt:    g.ResolvedAt,
	}
}
