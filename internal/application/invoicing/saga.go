package invoicing

import (
	"context"
	"time"

	"github.com/erp/invoicing/internal/domain/invoicing"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
)

// StepStatus is the result of one saga step
type StepStatus string

const (
	StepDone    StepStatus = "done"
	StepFailed  StepStatus = "failed"
	StepSkipped StepStatus = "skipped"
)

// StepResult reports one record set touched by an operation
type StepResult struct {
	Stage    invoicing.Stage
	Status   StepStatus
	Error    string
	Duration time.Duration
}

// Outcome is everything a lifecycle operation did. It is returned even when
// the operation fails so callers can see which stages already committed.
type Outcome struct {
	Operation string
	Invoice   *invoicing.Invoice
	State     LifecycleState
	Steps     []StepResult
	Warnings  []invoicing.ReconciliationGap
}

// HasWarnings reports whether any soft stage left a reconciliation gap
func (o *Outcome) HasWarnings() bool {
	return len(o.Warnings) > 0
}

// sagaStep is one compensable unit of a lifecycle operation. Required steps
// abort the operation on failure; soft steps leave a reconciliation gap.
type sagaStep struct {
	stage      invoicing.Stage
	state      LifecycleState
	required   bool
	run        func(ctx context.Context) error
	compensate func(ctx context.Context) error
}

// runSaga executes steps in order. When a required step fails the completed
// steps are compensated in reverse order and the failure is returned as a
// PersistenceError for that stage.
func (o *Orchestrator) runSaga(ctx context.Context, op string, inv *invoicing.Invoice, lc *Lifecycle, steps []sagaStep) (*Outcome, error) {
	outcome := &Outcome{Operation: op, Invoice: inv}
	log := o.logger.With(
		zap.String("operation", op),
		zap.String("invoice_id", inv.ID.String()),
		zap.String("invoice_number", inv.InvoiceNumber),
	)

	completed := make([]sagaStep, 0, len(steps))
	for i, step := range steps {
		if err := lc.Enter(step.state); err != nil {
			log.Error("lifecycle transition rejected", zap.Error(err))
		}

		stepCtx, span := o.tracer.Start(ctx, "invoice."+op+"."+step.stage.String())
		span.SetAttributes(
			attribute.String("invoice.number", inv.InvoiceNumber),
			attribute.String("invoice.stage", step.stage.String()),
			attribute.Bool("invoice.stage_required", step.required),
		)
		started := time.Now()
		err := step.run(stepCtx)
		result := StepResult{Stage: step.stage, Status: StepDone, Duration: time.Since(started)}
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			result.Status = StepFailed
			result.Error = err.Error()
		}
		span.End()
		outcome.Steps = append(outcome.Steps, result)

		if err == nil {
			log.Debug("stage completed", zap.String("stage", step.stage.String()), zap.Duration("duration", result.Duration))
			completed = append(completed, step)
			continue
		}

		if step.required {
			log.Error("required stage failed",
				zap.String("stage", step.stage.String()),
				zap.String("state", lc.State().String()),
				zap.Error(err),
			)
			for _, rest := range steps[i+1:] {
				outcome.Steps = append(outcome.Steps, StepResult{Stage: rest.stage, Status: StepSkipped})
			}
			o.compensate(ctx, op, inv, completed, outcome, log)
			lc.Fail()
			outcome.State = lc.State()
			return outcome, invoicing.NewPersistenceError(step.stage, op, err)
		}

		log.Warn("stage failed after invoice commit, recording reconciliation gap",
			zap.String("stage", step.stage.String()),
			zap.Error(err),
		)
		outcome.Warnings = append(outcome.Warnings, o.recordGap(ctx, inv, step.stage, op, err))
	}

	if err := lc.Enter(StateComplete); err != nil {
		log.Error("lifecycle transition rejected", zap.Error(err))
	}
	outcome.State = lc.State()
	return outcome, nil
}

func (o *Orchestrator) compensate(ctx context.Context, op string, inv *invoicing.Invoice, completed []sagaStep, outcome *Outcome, log *zap.Logger) {
	for i := len(completed) - 1; i >= 0; i-- {
		step := completed[i]
		if step.compensate == nil {
			continue
		}
		if err := step.compensate(ctx); err != nil {
			log.Error("compensation failed",
				zap.String("stage", step.stage.String()),
				zap.Error(err),
			)
			outcome.Warnings = append(outcome.Warnings, o.recordGap(ctx, inv, step.stage, op+" compensation", err))
			continue
		}
		log.Info("stage compensated", zap.String("stage", step.stage.String()))
	}
}

// recordGap writes the gap to the reconciliation log. A log failure is only
// logged; the gap is still returned to the caller.
func (o *Orchestrator) recordGap(ctx context.Context, inv *invoicing.Invoice, stage invoicing.Stage, op string, cause error) invoicing.ReconciliationGap {
	gap := invoicing.NewReconciliationGap(inv, stage, op, cause)
	if o.reconciliation != nil {
		if err := o.reconciliation.Record(ctx, gap); err != nil {
			o.logger.Error("failed to record reconciliation gap",
				zap.String("invoice_id", inv.ID.String()),
				zap.String("stage", stage.String()),
				zap.Error(err),
			)
		}
	}
	inv.AddDomainEvent(invoicing.NewInvoiceReconciliationNeededEvent(gap))
	return gap
}
