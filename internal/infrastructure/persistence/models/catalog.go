package models

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ProductModel is the priced catalog entry used to fill in missing item prices
type ProductModel struct {
	BaseModel
	TenantID uuid.UUID       `gorm:"type:uuid;not null;index"`
	Name     string          `gorm:"type:varchar(200);not null"`
	Price    decimal.Decimal `gorm:"type:decimal(18,2);not null;default:0"`
}

// TableName returns the table name for GORM
func (ProductModel) TableName() string {
	return "products"
}

// ProductVariantModel adjusts its product's price
type ProductVariantModel struct {
	BaseModel
	TenantID        uuid.UUID       `gorm:"type:uuid;not null;index"`
	ProductID       uuid.UUID       `gorm:"type:uuid;not null;index"`
	Name            string          `gorm:"type:varchar(200);not null"`
	PriceAdjustment decimal.Decimal `gorm:"type:decimal(18,2);not null;default:0"`
}

// TableName returns the table name for GORM
func (ProductVariantModel) TableName() string {
	return "product_variants"
}

// All lists every model, in dependency order, for AutoMigrate
func All() []any {
	return []any{
		&ProductModel{},
		&ProductVariantModel{},
		&InvoiceModel{},
		&InvoiceItemModel{},
		&StockMovementModel{},
		&WarrantyRecordModel{},
		&LedgerEntryModel{},
		&PaymentModel{},
		&ReconciliationGapModel{},
	}
}
