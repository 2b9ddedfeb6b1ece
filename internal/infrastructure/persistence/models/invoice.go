package models

import (
	"time"

	"github.com/erp/invoicing/internal/domain/invoicing"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// InvoiceModel is the persistence model for the Invoice aggregate header.
// Items live in invoice_items and are written by their own repository.
type InvoiceModel struct {
	AggregateModel
	TenantID         uuid.UUID               `gorm:"type:uuid;not null;uniqueIndex:idx_invoices_tenant_number,priority:1"`
	InvoiceNumber    string                  `gorm:"type:varchar(50);not null;uniqueIndex:idx_invoices_tenant_number,priority:2"`
	CustomerID       uuid.UUID               `gorm:"type:uuid;not null;index"`
	CustomerName     string                  `gorm:"type:varchar(200);not null;default:''"`
	Subtotal         decimal.Decimal         `gorm:"type:decimal(18,2);not null;default:0"`
	DiscountAmount   decimal.Decimal         `gorm:"type:decimal(18,2);not null;default:0"`
	TaxAmount        decimal.Decimal         `gorm:"type:decimal(18,2);not null;default:0"`
	TotalAmount      decimal.Decimal         `gorm:"type:decimal(18,2);not null;default:0"`
	PaymentStatus    invoicing.PaymentStatus `gorm:"type:varchar(20);not null;index"`
	AmountPaid       decimal.Decimal         `gorm:"type:decimal(18,2);not null;default:0"`
	PaymentMethod    string                  `gorm:"type:varchar(50);not null;default:''"`
	WarrantyProvided bool                    `gorm:"not null;default:false"`
	Notes            string                  `gorm:"type:text"`
	IssuedAt         time.Time               `gorm:"not null;index"`
	CreatedBy        *uuid.UUID              `gorm:"type:uuid"`
	Items            []InvoiceItemModel      `gorm:"foreignKey:InvoiceID;references:ID"`
}

// TableName returns the table name for GORM
func (InvoiceModel) TableName() string {
	return "invoices"
}

// ToDomain converts the header and any preloaded items
func (m *InvoiceModel) ToDomain() *invoicing.Invoice {
	inv := &invoicing.Invoice{
		TenantAggregateRoot: m.aggregateRoot(m.TenantID, m.CreatedBy),
		InvoiceNumber:       m.InvoiceNumber,
		CustomerID:          m.CustomerID,
		CustomerName:        m.CustomerName,
		Subtotal:            m.Subtotal,
		DiscountAmount:      m.DiscountAmount,
		TaxAmount:           m.TaxAmount,
		TotalAmount:         m.TotalAmount,
		PaymentStatus:       m.PaymentStatus,
		AmountPaid:          m.AmountPaid,
		PaymentMethod:       m.PaymentMethod,
		WarrantyProvided:    m.WarrantyProvided,
		Notes:               m.Notes,
		IssuedAt:            m.IssuedAt,
		Items:               make([]invoicing.InvoiceItem, len(m.Items)),
	}
	for i := range m.Items {
		inv.Items[i] = m.Items[i].ToDomain()
	}
	return inv
}

// InvoiceModelFromDomain maps the header only
func InvoiceModelFromDomain(inv *invoicing.Invoice) *InvoiceModel {
	m := &InvoiceModel{
		TenantID:         inv.TenantID,
		InvoiceNumber:    inv.InvoiceNumber,
		CustomerID:       inv.CustomerID,
		CustomerName:     inv.CustomerName,
		Subtotal:         inv.Subtotal,
		DiscountAmount:   inv.DiscountAmount,
		TaxAmount:        inv.TaxAmount,
		TotalAmount:      inv.TotalAmount,
		PaymentStatus:    inv.PaymentStatus,
		AmountPaid:       inv.AmountPaid,
		PaymentMethod:    inv.PaymentMethod,
		WarrantyProvided: inv.WarrantyProvided,
		Notes:            inv.Notes,
		IssuedAt:         inv.IssuedAt,
		CreatedBy:        inv.CreatedBy,
	}
	m.FromDomainAggregateRoot(inv.BaseAggregateRoot)
	return m
}

// InvoiceItemModel is one row of invoice_items
type InvoiceItemModel struct {
	ID              uuid.UUID       `gorm:"type:uuid;primary_key"`
	TenantID        uuid.UUID       `gorm:"type:uuid;not null"`
	InvoiceID       uuid.UUID       `gorm:"type:uuid;not null;index"`
	Position        int             `gorm:"not null"`
	ProductID       uuid.UUID       `gorm:"type:uuid;not null;index"`
	VariantID       *uuid.UUID      `gorm:"type:uuid"`
	ProductName     string          `gorm:"type:varchar(200);not null;default:''"`
	Quantity        decimal.Decimal `gorm:"type:decimal(18,4);not null"`
	UnitPrice       decimal.Decimal `gorm:"type:decimal(18,2);not null"`
	DiscountPercent decimal.Decimal `gorm:"type:decimal(5,2);not null;default:0"`
	TaxPercent      decimal.Decimal `gorm:"type:decimal(5,2);not null;default:0"`
	SerialNumber    string          `gorm:"type:varchar(100);not null;default:''"`
	WarrantyMonths  int             `gorm:"not null;default:0"`
	CreatedAt       time.Time       `gorm:"not null"`
}

// TableName returns the table name for GORM
func (InvoiceItemModel) TableName() string {
	return "invoice_items"
}

// ToDomain converts the row to a domain item
func (m *InvoiceItemModel) ToDomain() invoicing.InvoiceItem {
	return invoicing.InvoiceItem{
		ID:              m.ID,
		InvoiceID:       m.InvoiceID,
		Position:        m.Position,
		ProductID:       m.ProductID,
		VariantID:       m.VariantID,
		ProductName:     m.ProductName,
		Quantity:        m.Quantity,
		UnitPrice:       m.UnitPrice,
		DiscountPercent: m.DiscountPercent,
		TaxPercent:      m.TaxPercent,
		SerialNumber:    m.SerialNumber,
		WarrantyMonths:  m.WarrantyMonths,
		CreatedAt:       m.CreatedAt,
	}
}

// InvoiceItemModelFromDomain maps an item owned by tenantID
func InvoiceItemModelFromDomain(tenantID uuid.UUID, item invoicing.InvoiceItem) InvoiceItemModel {
	return InvoiceItemModel{
		ID:              item.ID,
		TenantID:        tenantID,
		InvoiceID:       item.InvoiceID,
		Position:        item.Position,
		ProductID:       item.ProductID,
		VariantID:       item.VariantID,
		ProductName:     item.ProductName,
		Quantity:        item.Quantity,
		UnitPrice:       item.UnitPrice,
		DiscountPercent: item.DiscountPercent,
		TaxPercent:      item.TaxPercent,
		SerialNumber:    item.SerialNumber,
		WarrantyMonths:  item.WarrantyMonths,
		CreatedAt:       item.CreatedAt,
	}
}
