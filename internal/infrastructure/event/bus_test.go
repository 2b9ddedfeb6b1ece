package event

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/erp/invoicing/internal/domain/invoicing"
	"github.com/erp/invoicing/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

type recordingHandler struct {
	mu      sync.Mutex
	types   []string
	handled []shared.DomainEvent
	err     error
	panics  bool
}

func (h *recordingHandler) Handle(ctx context.Context, evt shared.DomainEvent) error {
	if h.panics {
		panic("boom")
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.handled = append(h.handled, evt)
	return h.err
}

func (h *recordingHandler) EventTypes() []string { return h.types }

func (h *recordingHandler) count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.handled)
}

func testInvoice() *invoicing.Invoice {
	inv := &invoicing.Invoice{
		TenantAggregateRoot: shared.NewTenantAggregateRoot(uuid.New()),
		InvoiceNumber:       "INV-1",
		CustomerID:          uuid.New(),
		TotalAmount:         decimal.NewFromInt(300),
		PaymentStatus:       invoicing.PaymentStatusPending,
	}
	return inv
}

func TestInMemoryEventBus(t *testing.T) {
	ctx := context.Background()

	t.Run("routes by event type", func(t *testing.T) {
		bus := NewInMemoryEventBus(nil)
		created := &recordingHandler{types: []string{invoicing.EventTypeInvoiceCreated}}
		all := &recordingHandler{}
		bus.Subscribe(created)
		bus.Subscribe(all)

		inv := testInvoice()
		require.NoError(t, bus.Publish(ctx,
			invoicing.NewInvoiceCreatedEvent(inv),
			invoicing.NewInvoiceDeletedEvent(inv),
		))

		assert.Equal(t, 1, created.count())
		assert.Equal(t, 2, all.count())
	})

	t.Run("explicit types override the handler's", func(t *testing.T) {
		bus := NewInMemoryEventBus(nil)
		h := &recordingHandler{types: []string{invoicing.EventTypeInvoiceCreated}}
		bus.Subscribe(h, invoicing.EventTypeInvoiceDeleted)

		inv := testInvoice()
		require.NoError(t, bus.Publish(ctx, invoicing.NewInvoiceCreatedEvent(inv)))
		assert.Equal(t, 0, h.count())
		require.NoError(t, bus.Publish(ctx, invoicing.NewInvoiceDeletedEvent(inv)))
		assert.Equal(t, 1, h.count())
	})

	t.Run("handler failures are logged not returned", func(t *testing.T) {
		core, logs := observer.New(zap.ErrorLevel)
		bus := NewInMemoryEventBus(zap.New(core))
		failing := &recordingHandler{err: errors.New("broker down")}
		panicking := &recordingHandler{panics: true}
		after := &recordingHandler{}
		bus.Subscribe(failing)
		bus.Subscribe(panicking)
		bus.Subscribe(after)

		require.NoError(t, bus.Publish(ctx, invoicing.NewInvoiceCreatedEvent(testInvoice())))
		assert.Equal(t, 1, after.count())
		assert.Equal(t, 2, logs.FilterMessage("event handler failed").Len())
	})

	t.Run("unsubscribe", func(t *testing.T) {
		bus := NewInMemoryEventBus(nil)
		h := &recordingHandler{}
		bus.Subscribe(h)
		bus.Unsubscribe(h)

		require.NoError(t, bus.Publish(ctx, invoicing.NewInvoiceCreatedEvent(testInvoice())))
		assert.Equal(t, 0, h.count())
	})

	t.Run("lifecycle", func(t *testing.T) {
		bus := NewInMemoryEventBus(nil)
		assert.NoError(t, bus.Start(ctx))
		assert.NoError(t, bus.Stop(ctx))
	})
}

func TestHandlerRegistry(t *testing.T) {
	r := NewHandlerRegistry()
	h := &recordingHandler{}

	r.Register(h, "A")
	r.Register(h, "A")
	r.Register(h)
	assert.Len(t, r.HandlersFor("A"), 1, "a handler is returned once")
	assert.Len(t, r.HandlersFor("B"), 1, "wildcard matches every type")

	r.Unregister(h)
	assert.Empty(t, r.HandlersFor("A"))
	assert.Empty(t, r.HandlersFor("B"))
}

func TestEnvelope(t *testing.T) {
	inv := testInvoice()
	evt := invoicing.NewInvoiceCreatedEvent(inv)

	data, err := Encode(evt)
	require.NoError(t, err)

	env, err := Decode(data)
	require.NoError(t, err)
	assert.Equal(t, evt.EventID(), env.ID)
	assert.Equal(t, invoicing.EventTypeInvoiceCreated, env.Type)
	assert.Equal(t, invoicing.AggregateTypeInvoice, env.AggregateType)
	assert.Equal(t, inv.ID, env.AggregateID)
	assert.Equal(t, inv.TenantID, env.TenantID)

	var payload invoicing.InvoiceCreatedEvent
	require.NoError(t, json.Unmarshal(env.Payload, &payload))
	assert.Equal(t, "INV-1", payload.InvoiceNumber)
	assert.True(t, payload.TotalAmount.Equal(decimal.NewFromInt(300)))

	_, err = Decode([]byte(`{"id":"00000000-0000-0000-0000-000000000000"}`))
	assert.Error(t, err)
	_, err = Decode([]byte(`not json`))
	assert.Error(t, err)
}
