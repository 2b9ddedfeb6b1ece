package invoicing

import (
	"context"
	"fmt"

	"github.com/erp/invoicing/internal/domain/invoicing"
	"github.com/erp/invoicing/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// MetricsRecorder receives invoice business measurements
type MetricsRecorder interface {
	RecordInvoiceIssued(ctx context.Context, tenantID uuid.UUID, status string, total decimal.Decimal)
	RecordInvoiceRevised(ctx context.Context, tenantID uuid.UUID, previous, current string)
	RecordInvoiceDeleted(ctx context.Context, tenantID uuid.UUID)
	RecordPayment(ctx context.Context, tenantID uuid.UUID, method string, amount decimal.Decimal)
	RecordReconciliationGap(ctx context.Context, tenantID uuid.UUID, stage, operation string)
}

// MetricsEventHandler turns invoice events into metrics
type MetricsEventHandler struct {
	recorder MetricsRecorder
	logger   *zap.Logger
}

// NewMetricsEventHandler creates a MetricsEventHandler
func NewMetricsEventHandler(recorder MetricsRecorder, logger *zap.Logger) *MetricsEventHandler {
	return &MetricsEventHandler{
		recorder: recorder,
		logger:   logger,
	}
}

// EventTypes returns the event types this handler is interested in
func (h *MetricsEventHandler) EventTypes() []string {
	return []string{
		invoicing.EventTypeInvoiceCreated,
		invoicing.EventTypeInvoiceUpdated,
		invoicing.EventTypeInvoiceDeleted,
		invoicing.EventTypeInvoicePaymentRecorded,
		invoicing.EventTypeInvoiceReconciliationNeeded,
	}
}

// Handle records the measurement for one event
func (h *MetricsEventHandler) Handle(ctx context.Context, event shared.DomainEvent) error {
	switch e := event.(type) {
	case *invoicing.InvoiceCreatedEvent:
		h.recorder.RecordInvoiceIssued(ctx, e.TenantID(), e.PaymentStatus.String(), e.TotalAmount)
	case *invoicing.InvoiceUpdatedEvent:
		h.recorder.RecordInvoiceRevised(ctx, e.TenantID(), e.PreviousStatus.String(), e.PaymentStatus.String())
	case *invoicing.InvoiceDeletedEvent:
		h.recorder.RecordInvoiceDeleted(ctx, e.TenantID())
	case *invoicing.InvoicePaymentRecordedEvent:
		h.recorder.RecordPayment(ctx, e.TenantID(), e.Method, e.Amount)
	case *invoicing.InvoiceReconciliationNeededEvent:
		h.recorder.RecordReconciliationGap(ctx, e.TenantID(), e.Stage.String(), e.Operation)
	default:
		h.logger.Error("unexpected event type", zap.String("actual", event.EventType()))
		return fmt.Errorf("unexpected event type: %s", event.EventType())
	}
	return nil
}
