package persistence

import (
	"context"
	"errors"
	"time"

	"github.com/erp/invoicing/internal/domain/invoicing"
	"github.com/erp/invoicing/internal/domain/shared"
	"github.com/erp/invoicing/internal/infrastructure/persistence/models"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormProductCatalog implements invoicing.ProductCatalog over the products
// and product_variants tables
type GormProductCatalog struct {
	db *gorm.DB
}

// NewGormProductCatalog creates a new GormProductCatalog
func NewGormProductCatalog(db *gorm.DB) *GormProductCatalog {
	return &GormProductCatalog{db: db}
}

// ResolvePrice returns the product price plus the variant adjustment
func (c *GormProductCatalog) ResolvePrice(ctx context.Context, tenantID, productID uuid.UUID, variantID *uuid.UUID) (decimal.Decimal, error) {
	db := c.db.WithContext(ctx)

	var product models.ProductModel
	if err := db.Where("tenant_id = ? AND id = ?", tenantID, productID).First(&product).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return decimal.Zero, shared.ErrNotFound
		}
		return decimal.Zero, err
	}
	if variantID == nil {
		return product.Price, nil
	}

	var variant models.ProductVariantModel
	if err := db.Where("tenant_id = ? AND product_id = ? AND id = ?", tenantID, productID, *variantID).
		First(&variant).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return decimal.Zero, shared.ErrNotFound
		}
		return decimal.Zero, err
	}
	return product.Price.Add(variant.PriceAdjustment), nil
}

// UpsertProduct creates the product or updates its name and price
func (c *GormProductCatalog) UpsertProduct(ctx context.Context, tenantID, productID uuid.UUID, name string, price decimal.Decimal) error {
	now := time.Now()
	row := models.ProductModel{
		BaseModel: models.BaseModel{ID: productID, CreatedAt: now, UpdatedAt: now},
		TenantID:  tenantID,
		Name:      name,
		Price:     price,
	}
	return c.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"name", "price", "updated_at"}),
	}).Create(&row).Error
}

// UpsertVariant creates the variant or updates its price adjustment
func (c *GormProductCatalog) UpsertVariant(ctx context.Context, tenantID, productID, variantID uuid.UUID, name string, adjustment decimal.Decimal) error {
	now := time.Now()
	row := models.ProductVariantModel{
		BaseModel:       models.BaseModel{ID: variantID, CreatedAt: now, UpdatedAt: now},
		TenantID:        tenantID,
		ProductID:       productID,
		Name:            name,
		PriceAdjustment: adjustment,
	}
	return c.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"name", "price_adjustment", "updated_at"}),
	}).Create(&row).Error
}

var _ invoicing.ProductCatalog = (*GormProductCatalog)(nil)
