package invoicing

import (
	"context"
	"testing"

	"github.com/erp/invoicing/internal/domain/invoicing"
	"github.com/erp/invoicing/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type unknownEvent struct {
	shared.BaseDomainEvent
}

func TestMetricsEventHandler(t *testing.T) {
	ctx := context.Background()
	inv, err := invoicing.NewInvoice(uuid.New(), "INV-M1", scenarioDraft())
	require.NoError(t, err)

	t.Run("Created", func(t *testing.T) {
		recorder := new(MockMetricsRecorder)
		recorder.On("RecordInvoiceIssued", ctx, inv.TenantID, "partial", mock.Anything).Return()
		h := NewMetricsEventHandler(recorder, zap.NewNop())

		require.NoError(t, h.Handle(ctx, invoicing.NewInvoiceCreatedEvent(inv)))
		recorder.AssertExpectations(t)
	})

	t.Run("Payment", func(t *testing.T) {
		recorder := new(MockMetricsRecorder)
		recorder.On("RecordPayment", ctx, inv.TenantID, "card", dec("25")).Return()
		h := NewMetricsEventHandler(recorder, zap.NewNop())

		require.NoError(t, h.Handle(ctx, invoicing.NewInvoicePaymentRecordedEvent(inv, dec("25"), "card")))
		recorder.AssertExpectations(t)
	})

	t.Run("Reconciliation gap", func(t *testing.T) {
		recorder := new(MockMetricsRecorder)
		recorder.On("RecordReconciliationGap", ctx, inv.TenantID, "stock", "create").Return()
		h := NewMetricsEventHandler(recorder, zap.NewNop())

		gap := invoicing.NewReconciliationGap(inv, invoicing.StageStock, "create", errStoreDown)
		require.NoError(t, h.Handle(ctx, invoicing.NewInvoiceReconciliationNeededEvent(gap)))
		recorder.AssertExpectations(t)
	})

	t.Run("Unknown event", func(t *testing.T) {
		h := NewMetricsEventHandler(new(MockMetricsRecorder), zap.NewNop())
		event := &unknownEvent{BaseDomainEvent: shared.NewBaseDomainEvent("Other", "Other", uuid.New(), uuid.New())}

		assert.Error(t, h.Handle(ctx, event))
	})

	t.Run("Subscribes to every invoice event", func(t *testing.T) {
		h := NewMetricsEventHandler(new(MockMetricsRecorder), zap.NewNop())
		assert.Len(t, h.EventTypes(), 5)
	})
}
