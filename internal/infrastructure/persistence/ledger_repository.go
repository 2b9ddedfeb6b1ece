package persistence

import (
	"context"
	"errors"

	"github.com/erp/invoicing/internal/domain/invoicing"
	"github.com/erp/invoicing/internal/infrastructure/persistence/models"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// GormLedgerRepository implements invoicing.LedgerRepository using GORM
type GormLedgerRepository struct {
	db *gorm.DB
}

// NewGormLedgerRepository creates a new GormLedgerRepository
func NewGormLedgerRepository(db *gorm.DB) *GormLedgerRepository {
	return &GormLedgerRepository{db: db}
}

// FindEntriesByInvoice returns every entry of the invoice, oldest first
func (r *GormLedgerRepository) FindEntriesByInvoice(ctx context.Context, tenantID, invoiceID uuid.UUID) ([]invoicing.LedgerEntry, error) {
	var rows []models.LedgerEntryModel
	if err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND invoice_id = ?", tenantID, invoiceID).
		Order("created_at ASC").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	entries := make([]invoicing.LedgerEntry, len(rows))
	for i := range rows {
		entries[i] = rows[i].ToDomain()
	}
	return entries, nil
}

// FindPaymentsByInvoice returns payments and refunds, oldest first
func (r *GormLedgerRepository) FindPaymentsByInvoice(ctx context.Context, tenantID, invoiceID uuid.UUID) ([]invoicing.Payment, error) {
	var rows []models.PaymentModel
	if err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND invoice_id = ?", tenantID, invoiceID).
		Order("received_at ASC").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	payments := make([]invoicing.Payment, len(rows))
	for i := range rows {
		payments[i] = rows[i].ToDomain()
	}
	return payments, nil
}

// LoadState returns the active entry and the payment sum
func (r *GormLedgerRepository) LoadState(ctx context.Context, tenantID, invoiceID uuid.UUID) (invoicing.LedgerState, error) {
	state := invoicing.LedgerState{PaymentsTotal: decimal.Zero}
	db := r.db.WithContext(ctx)

	var active models.LedgerEntryModel
	err := db.Where("tenant_id = ? AND invoice_id = ? AND status = ?", tenantID, invoiceID, invoicing.LedgerStatusActive).
		Order("created_at DESC").
		First(&active).Error
	switch {
	case err == nil:
		entry := active.ToDomain()
		state.Active = &entry
	case !errors.Is(err, gorm.ErrRecordNotFound):
		return state, err
	}

	var amounts []decimal.Decimal
	if err := db.Model(&models.PaymentModel{}).
		Where("tenant_id = ? AND invoice_id = ?", tenantID, invoiceID).
		Pluck("amount", &amounts).Error; err != nil {
		return state, err
	}
	state.PaymentsTotal = decimal.Sum(decimal.Zero, amounts...)
	return state, nil
}

// Apply retires the previous entry, inserts the new ones and records the
// payment delta in one transaction
func (r *GormLedgerRepository) Apply(ctx context.Context, plan invoicing.LedgerPlan) error {
	if plan.IsEmpty() {
		return nil
	}
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if plan.Retire != nil {
			if err := tx.Model(&models.LedgerEntryModel{}).
				Where("id = ?", plan.Retire.ID).
				Updates(map[string]any{
					"status":     plan.Retire.Status,
					"updated_at": plan.Retire.UpdatedAt,
				}).Error; err != nil {
				return err
			}
		}
		if len(plan.Insert) > 0 {
			rows := make([]models.LedgerEntryModel, len(plan.Insert))
			for i, e := range plan.Insert {
				rows[i] = models.LedgerEntryModelFromDomain(e)
			}
			if err := tx.Create(&rows).Error; err != nil {
				return err
			}
		}
		if plan.Payment != nil {
			row := models.PaymentModelFromDomain(*plan.Payment)
			if err := tx.Create(&row).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

var _ invoicing.LedgerRepository = (*GormLedgerRepository)(nil)
