package invoicing

import (
	"context"
	"errors"

	"github.com/erp/invoicing/internal/domain/invoicing"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ImportEntry is one invoice to create from an import file
type ImportEntry struct {
	Ref   string
	Draft invoicing.Draft
}

// ImportResult reports what happened to one entry
type ImportResult struct {
	Ref           string                        `json:"ref"`
	InvoiceID     *uuid.UUID                    `json:"invoice_id,omitempty"`
	InvoiceNumber string                        `json:"invoice_number,omitempty"`
	Error         string                        `json:"error,omitempty"`
	Warnings      []invoicing.ReconciliationGap `json:"warnings,omitempty"`
}

// ImportReport summarizes a batch import
type ImportReport struct {
	Total     int            `json:"total"`
	Created   int            `json:"created"`
	Failed    int            `json:"failed"`
	WithGaps  int            `json:"with_gaps"`
	Results   []ImportResult `json:"results"`
	Cancelled bool           `json:"cancelled,omitempty"`
}

// Importer creates invoices one at a time through the orchestrator
type Importer struct {
	orchestrator *Orchestrator
	logger       *zap.Logger
}

// NewImporter creates an Importer
func NewImporter(orchestrator *Orchestrator, logger *zap.Logger) *Importer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Importer{orchestrator: orchestrator, logger: logger}
}

// Import creates every entry. A failed entry does not stop the batch; a
// cancelled context does.
func (i *Importer) Import(ctx context.Context, tenantID uuid.UUID, entries []ImportEntry) ImportReport {
	report := ImportReport{Total: len(entries), Results: make([]ImportResult, 0, len(entries))}

	for _, entry := range entries {
		if ctx.Err() != nil {
			report.Cancelled = true
			break
		}

		result := ImportResult{Ref: entry.Ref}
		outcome, err := i.orchestrator.Create(ctx, tenantID, entry.Draft)
		if err != nil {
			result.Error = err.Error()
			report.Failed++
			var verr *invoicing.ValidationError
			if !errors.As(err, &verr) {
				i.logger.Error("import entry failed", zap.String("ref", entry.Ref), zap.Error(err))
			}
		} else {
			id := outcome.Invoice.ID
			result.InvoiceID = &id
			result.InvoiceNumber = outcome.Invoice.InvoiceNumber
			result.Warnings = outcome.Warnings
			report.Created++
			if outcome.HasWarnings() {
				report.WithGaps++
			}
		}
		report.Results = append(report.Results, result)
	}

	i.logger.Info("invoice import finished",
		zap.String("tenant_id", tenantID.String()),
		zap.Int("total", report.Total),
		zap.Int("created", report.Created),
		zap.Int("failed", report.Failed),
		zap.Int("with_gaps", report.WithGaps),
	)
	return report
}
