package telemetry

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const invoiceMeterName = "github.com/erp/invoicing/invoice"

var (
	attrTenantID  = attribute.Key("tenant_id")
	attrStatus    = attribute.Key("payment_status")
	attrPrevious  = attribute.Key("previous_status")
	attrMethod    = attribute.Key("payment_method")
	attrStage     = attribute.Key("stage")
	attrOperation = attribute.Key("operation")
)

// amountBuckets covers invoice totals from single items up to large orders
var amountBuckets = []float64{10, 50, 100, 250, 500, 1000, 2500, 5000, 10000, 50000}

// InvoiceMetrics records invoice business measurements as OTel instruments
type InvoiceMetrics struct {
	issued        metric.Int64Counter
	revised       metric.Int64Counter
	deleted       metric.Int64Counter
	payments      metric.Int64Counter
	gaps          metric.Int64Counter
	invoiceAmount metric.Float64Histogram
	paymentAmount metric.Float64Histogram
}

// NewInvoiceMetrics creates the instruments on the given meter provider
func NewInvoiceMetrics(mp metric.MeterProvider) (*InvoiceMetrics, error) {
	meter := mp.Meter(invoiceMeterName)
	m := &InvoiceMetrics{}
	var err error

	if m.issued, err = meter.Int64Counter("invoice_issued_total",
		metric.WithDescription("Invoices created"), metric.WithUnit("{invoice}")); err != nil {
		return nil, fmt.Errorf("failed to create invoice_issued_total: %w", err)
	}
	if m.revised, err = meter.Int64Counter("invoice_revised_total",
		metric.WithDescription("Invoices edited"), metric.WithUnit("{invoice}")); err != nil {
		return nil, fmt.Errorf("failed to create invoice_revised_total: %w", err)
	}
	if m.deleted, err = meter.Int64Counter("invoice_deleted_total",
		metric.WithDescription("Invoices deleted"), metric.WithUnit("{invoice}")); err != nil {
		return nil, fmt.Errorf("failed to create invoice_deleted_total: %w", err)
	}
	if m.payments, err = meter.Int64Counter("invoice_payments_total",
		metric.WithDescription("Payments recorded against invoices"), metric.WithUnit("{payment}")); err != nil {
		return nil, fmt.Errorf("failed to create invoice_payments_total: %w", err)
	}
	if m.gaps, err = meter.Int64Counter("invoice_reconciliation_gaps_total",
		metric.WithDescription("Downstream sync failures left for reconciliation"), metric.WithUnit("{gap}")); err != nil {
		return nil, fmt.Errorf("failed to create invoice_reconciliation_gaps_total: %w", err)
	}
	if m.invoiceAmount, err = meter.Float64Histogram("invoice_total_amount",
		metric.WithDescription("Total amount of created invoices"),
		metric.WithExplicitBucketBoundaries(amountBuckets...)); err != nil {
		return nil, fmt.Errorf("failed to create invoice_total_amount: %w", err)
	}
	if m.paymentAmount, err = meter.Float64Histogram("invoice_payment_amount",
		metric.WithDescription("Amount of recorded payments"),
		metric.WithExplicitBucketBoundaries(amountBuckets...)); err != nil {
		return nil, fmt.Errorf("failed to create invoice_payment_amount: %w", err)
	}
	return m, nil
}

func (m *InvoiceMetrics) RecordInvoiceIssued(ctx context.Context, tenantID uuid.UUID, status string, total decimal.Decimal) {
	attrs := metric.WithAttributes(attrTenantID.String(tenantID.String()), attrStatus.String(status))
	m.issued.Add(ctx, 1, attrs)
	m.invoiceAmount.Record(ctx, total.InexactFloat64(), attrs)
}

func (m *InvoiceMetrics) RecordInvoiceRevised(ctx context.Context, tenantID uuid.UUID, previous, current string) {
	m.revised.Add(ctx, 1, metric.WithAttributes(
		attrTenantID.String(tenantID.String()),
		attrPrevious.String(previous),
		attrStatus.String(current),
	))
}

func (m *InvoiceMetrics) RecordInvoiceDeleted(ctx context.Context, tenantID uuid.UUID) {
	m.deleted.Add(ctx, 1, metric.WithAttributes(attrTenantID.String(tenantID.String())))
}

func (m *InvoiceMetrics) RecordPayment(ctx context.Context, tenantID uuid.UUID, method string, amount decimal.Decimal) {
	attrs := metric.WithAttributes(attrTenantID.String(tenantID.String()), attrMethod.String(method))
	m.payments.Add(ctx, 1, attrs)
	m.paymentAmount.Record(ctx, amount.InexactFloat64(), attrs)
}

func (m *InvoiceMetrics) RecordReconciliationGap(ctx context.Context, tenantID uuid.UUID, stage, operation string) {
	m.gaps.Add(ctx, 1, metric.WithAttributes(
		attrTenantID.String(tenantID.String()),
		attrStage.String(stage),
		attrOperation.String(operation),
	))
}
