package persistence

import (
	"context"

	"github.com/erp/invoicing/internal/domain/invoicing"
	"github.com/erp/invoicing/internal/infrastructure/persistence/models"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Every derived record set is replaced as a unit: delete the old rows and
// insert the new ones inside one transaction.

// GormInvoiceItemRepository implements invoicing.InvoiceItemRepository
type GormInvoiceItemRepository struct {
	db *gorm.DB
}

// NewGormInvoiceItemRepository creates a new GormInvoiceItemRepository
func NewGormInvoiceItemRepository(db *gorm.DB) *GormInvoiceItemRepository {
	return &GormInvoiceItemRepository{db: db}
}

func (r *GormInvoiceItemRepository) FindByInvoice(ctx context.Context, tenantID, invoiceID uuid.UUID) ([]invoicing.InvoiceItem, error) {
	var rows []models.InvoiceItemModel
	if err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND invoice_id = ?", tenantID, invoiceID).
		Order("position ASC").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	items := make([]invoicing.InvoiceItem, len(rows))
	for i := range rows {
		items[i] = rows[i].ToDomain()
	}
	return items, nil
}

func (r *GormInvoiceItemRepository) ReplaceForInvoice(ctx context.Context, tenantID, invoiceID uuid.UUID, items []invoicing.InvoiceItem) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("tenant_id = ? AND invoice_id = ?", tenantID, invoiceID).
			Delete(&models.InvoiceItemModel{}).Error; err != nil {
			return err
		}
		if len(items) == 0 {
			return nil
		}
		rows := make([]models.InvoiceItemModel, len(items))
		for i, item := range items {
			item.InvoiceID = invoiceID
			rows[i] = models.InvoiceItemModelFromDomain(tenantID, item)
		}
		return tx.Create(&rows).Error
	})
}

func (r *GormInvoiceItemRepository) DeleteByInvoice(ctx context.Context, tenantID, invoiceID uuid.UUID) error {
	return r.db.WithContext(ctx).
		Where("tenant_id = ? AND invoice_id = ?", tenantID, invoiceID).
		Delete(&models.InvoiceItemModel{}).Error
}

// GormStockMovementRepository implements invoicing.StockMovementRepository
type GormStockMovementRepository struct {
	db *gorm.DB
}

// NewGormStockMovementRepository creates a new GormStockMovementRepository
func NewGormStockMovementRepository(db *gorm.DB) *GormStockMovementRepository {
	return &GormStockMovementRepository{db: db}
}

func (r *GormStockMovementRepository) FindByReference(ctx context.Context, tenantID uuid.UUID, referenceNumber string) ([]invoicing.StockMovement, error) {
	var rows []models.StockMovementModel
	if err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND reference_number = ?", tenantID, referenceNumber).
		Order("created_at ASC").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	movements := make([]invoicing.StockMovement, len(rows))
	for i := range rows {
		movements[i] = rows[i].ToDomain()
	}
	return movements, nil
}

func (r *GormStockMovementRepository) ReplaceByReference(ctx context.Context, tenantID uuid.UUID, referenceNumber string, movements []invoicing.StockMovement) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("tenant_id = ? AND reference_number = ?", tenantID, referenceNumber).
			Delete(&models.StockMovementModel{}).Error; err != nil {
			return err
		}
		if len(movements) == 0 {
			return nil
		}
		rows := make([]models.StockMovementModel, len(movements))
		for i, mv := range movements {
			rows[i] = models.StockMovementModelFromDomain(mv)
		}
		return tx.Create(&rows).Error
	})
}

// OnHand sums every movement of a product within the tenant
func (r *GormStockMovementRepository) OnHand(ctx context.Context, tenantID, productID uuid.UUID) (decimal.Decimal, error) {
	var quantities []decimal.Decimal
	if err := r.db.WithContext(ctx).Model(&models.StockMovementModel{}).
		Where("tenant_id = ? AND product_id = ?", tenantID, productID).
		Pluck("quantity", &quantities).Error; err != nil {
		return decimal.Zero, err
	}
	return decimal.Sum(decimal.Zero, quantities...), nil
}

// GormWarrantyRepository implements invoicing.WarrantyRepository
type GormWarrantyRepository struct {
	db *gorm.DB
}

// NewGormWarrantyRepository creates a new GormWarrantyRepository
func NewGormWarrantyRepository(db *gorm.DB) *GormWarrantyRepository {
	return &GormWarrantyRepository{db: db}
}

func (r *GormWarrantyRepository) FindByInvoice(ctx context.Context, tenantID, invoiceID uuid.UUID) ([]invoicing.WarrantyRecord, error) {
	var rows []models.WarrantyRecordModel
	if err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND invoice_id = ?", tenantID, invoiceID).
		Order("created_at ASC").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	records := make([]invoicing.WarrantyRecord, len(rows))
	for i := range rows {
		records[i] = rows[i].ToDomain()
	}
	return records, nil
}

func (r *GormWarrantyRepository) ReplaceForInvoice(ctx context.Context, tenantID, invoiceID uuid.UUID, records []invoicing.WarrantyRecord) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("tenant_id = ? AND invoice_id = ?", tenantID, invoiceID).
			Delete(&models.WarrantyRecordModel{}).Error; err != nil {
			return err
		}
		if len(records) == 0 {
			return nil
		}
		rows := make([]models.WarrantyRecordModel, len(records))
		for i, w := range records {
			rows[i] = models.WarrantyRecordModelFromDomain(w)
		}
		return tx.Create(&rows).Error
	})
}

var (
	_ invoicing.InvoiceItemRepository   = (*GormInvoiceItemRepository)(nil)
	_ invoicing.StockMovementRepository = (*GormStockMovementRepository)(nil)
	_ invoicing.WarrantyRepository      = (*GormWarrantyRepository)(nil)
)
