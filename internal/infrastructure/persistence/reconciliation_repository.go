package persistence

import (
	"context"
	"errors"
	"time"

	"github.com/erp/invoicing/internal/domain/invoicing"
	"github.com/erp/invoicing/internal/domain/shared"
	"github.com/erp/invoicing/internal/infrastructure/persistence/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// GormReconciliationLog implements invoicing.ReconciliationLog over the
// pending_reconciliations table
type GormReconciliationLog struct {
	db *gorm.DB
}

// NewGormReconciliationLog creates a new GormReconciliationLog
func NewGormReconciliationLog(db *gorm.DB) *GormReconciliationLog {
	return &GormReconciliationLog{db: db}
}

// Record opens the gap, or bumps the attempts of the open gap already
// recorded for the same invoice and stage
func (r *GormReconciliationLog) Record(ctx context.Context, gap invoicing.ReconciliationGap) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing models.ReconciliationGapModel
		err := tx.Where("tenant_id = ? AND invoice_id = ? AND stage = ? AND status = ?",
			gap.TenantID, gap.InvoiceID, gap.Stage, invoicing.GapStatusOpen).
			First(&existing).Error
		if err == nil {
			return tx.Model(&existing).Updates(map[string]any{
				"attempts":  gorm.Expr("attempts + 1"),
				"reason":    gap.Reason,
				"operation": gap.Operation,
			}).Error
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}

		if gap.Attempts < 1 {
			gap.Attempts = 1
		}
		row := models.ReconciliationGapModelFromDomain(gap)
		return tx.Create(&row).Error
	})
}

// FindOpen pages through the tenant's open gaps, oldest first
func (r *GormReconciliationLog) FindOpen(ctx context.Context, tenantID uuid.UUID, filter shared.Filter) ([]invoicing.ReconciliationGap, error) {
	var rows []models.ReconciliationGapModel
	if err := r.db.WithContext(ctx).
		Scopes(tenantScope(tenantID), paginate(filter)).
		Where("status = ?", invoicing.GapStatusOpen).
		Order("detected_at ASC").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	return toGaps(rows), nil
}

// FindRetryable pages through the tenant's open gaps that Reconcile can
// re-run, oldest first
func (r *GormReconciliationLog) FindRetryable(ctx context.Context, tenantID uuid.UUID, filter shared.Filter) ([]invoicing.ReconciliationGap, error) {
	var rows []models.ReconciliationGapModel
	if err := r.db.WithContext(ctx).
		Scopes(tenantScope(tenantID), paginate(filter)).
		Where("status = ? AND stage IN ?", invoicing.GapStatusOpen, invoicing.RetryableStages()).
		Order("detected_at ASC").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	return toGaps(rows), nil
}

// FindOpenByInvoice returns the open gaps of one invoice
func (r *GormReconciliationLog) FindOpenByInvoice(ctx context.Context, tenantID, invoiceID uuid.UUID) ([]invoicing.ReconciliationGap, error) {
	var rows []models.ReconciliationGapModel
	if err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND invoice_id = ? AND status = ?", tenantID, invoiceID, invoicing.GapStatusOpen).
		Order("detected_at ASC").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	return toGaps(rows), nil
}

// ResolveStage resolves every open gap of the invoice at that stage
func (r *GormReconciliationLog) ResolveStage(ctx context.Context, tenantID, invoiceID uuid.UUID, stage invoicing.Stage) error {
	return r.db.WithContext(ctx).Model(&models.ReconciliationGapModel{}).
		Where("tenant_id = ? AND invoice_id = ? AND stage = ? AND status = ?", tenantID, invoiceID, stage, invoicing.GapStatusOpen).
		Updates(map[string]any{
			"status":      invoicing.GapStatusResolved,
			"resolved_at": time.Now(),
		}).Error
}

// OpenTenants lists the tenants that have open gaps, for the sweeper
func (r *GormReconciliationLog) OpenTenants(ctx context.Context) ([]uuid.UUID, error) {
	var tenants []uuid.UUID
	if err := r.db.WithContext(ctx).Model(&models.ReconciliationGapModel{}).
		Where("status = ?", invoicing.GapStatusOpen).
		Distinct("tenant_id").
		Pluck("tenant_id", &tenants).Error; err != nil {
		return nil, err
	}
	return tenants, nil
}

func toGaps(rows []models.ReconciliationGapModel) []invoicing.ReconciliationGap {
	gaps := make([]invoicing.ReconciliationGap, len(rows))
	for i := range rows {
		gaps[i] = rows[i].ToDomain()
	}
	return gaps
}

var _ invoicing.ReconciliationLog = (*GormReconciliationLog)(nil)
