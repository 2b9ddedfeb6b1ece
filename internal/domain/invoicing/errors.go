package invoicing

import (
	"fmt"
	"strings"
	"time"

	"github.com/erp/invoicing/internal/domain/shared"
	"github.com/google/uuid"
)

// Error codes surfaced to callers
const (
	CodeValidationFailed  = "VALIDATION_FAILED"
	CodePersistenceFailed = "PERSISTENCE_FAILED"
)

var (
	// ErrValidationFailed is the sentinel every ValidationError unwraps to
	ErrValidationFailed = shared.NewDomainError(CodeValidationFailed, "Invoice validation failed")
	// ErrPersistenceFailed is the sentinel every PersistenceError matches
	ErrPersistenceFailed = shared.NewDomainError(CodePersistenceFailed, "Invoice store operation failed")
	ErrInvoiceNotFound   = shared.NewDomainError("NOT_FOUND", "Invoice not found")
)

// Stage names a record set touched by a lifecycle operation
type Stage string

const (
	StageInvoice  Stage = "invoice"
	StageItems    Stage = "items"
	StageStock    Stage = "stock"
	StageWarranty Stage = "warranty"
	StageLedger   Stage = "ledger"
)

// IsValid checks the stage is one of the known record sets
func (s Stage) IsValid() bool {
	switch s {
	case StageInvoice, StageItems, StageStock, StageWarranty, StageLedger:
		return true
	}
	return false
}

// IsRetryable reports whether a gap at this stage can be re-run from the
// invoice's current state. Invoice and items gaps come from a failed
// compensation and are left for manual review.
func (s Stage) IsRetryable() bool {
	switch s {
	case StageStock, StageWarranty, StageLedger:
		return true
	}
	return false
}

// RetryableStages lists the stages Reconcile accepts
func RetryableStages() []Stage {
	return []Stage{StageStock, StageWarranty, StageLedger}
}

func (s Stage) String() string {
	return string(s)
}

// FieldViolation is one failed input rule
type FieldViolation struct {
	Field  string `json:"field"`
	Reason string `json:"reason"`
}

// ValidationError reports caller input that breaks an invoice invariant.
// It is always returned before anything is written.
type ValidationError struct {
	Violations []FieldViolation
}

// NewValidationError creates a validation error with a single violation
func NewValidationError(field, reason string) *ValidationError {
	return &ValidationError{Violations: []FieldViolation{{Field: field, Reason: reason}}}
}

// Add appends a violation
func (e *ValidationError) Add(field, reason string) {
	e.Violations = append(e.Violations, FieldViolation{Field: field, Reason: reason})
}

// OrNil returns nil when no violation was collected
func (e *ValidationError) OrNil() error {
	if e == nil || len(e.Violations) == 0 {
		return nil
	}
	return e
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Violations))
	for _, v := range e.Violations {
		parts = append(parts, fmt.Sprintf("%s: %s", v.Field, v.Reason))
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

func (e *ValidationError) Unwrap() error {
	return ErrValidationFailed
}

// PersistenceError reports a failed store operation and the stage it hit.
// Earlier stages of the same operation may already be committed.
type PersistenceError struct {
	Stage Stage
	Op    string
	Err   error
}

// NewPersistenceError wraps a store error with its stage
func NewPersistenceError(stage Stage, op string, err error) *PersistenceError {
	return &PersistenceError{Stage: stage, Op: op, Err: err}
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("%s failed at stage %s: %v", e.Op, e.Stage, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

// Is lets errors.Is(err, ErrPersistenceFailed) hold for every PersistenceError
func (e *PersistenceError) Is(target error) bool {
	return target == ErrPersistenceFailed
}

// GapStatus is the review state of a reconciliation gap
type GapStatus string

const (
	GapStatusOpen     GapStatus = "open"
	GapStatusResolved GapStatus = "resolved"
)

// ReconciliationGap records a dependent record set that failed to sync after
// its invoice was committed. It is a warning, never an operation error.
type ReconciliationGap struct {
	ID            uuid.UUID  `json:"id"`
	TenantID      uuid.UUID  `json:"tenant_id"`
	InvoiceID     uuid.UUID  `json:"invoice_id"`
	InvoiceNumber string     `json:"invoice_number"`
	Stage         Stage      `json:"stage"`
	Operation     string     `json:"operation"`
	Reason        string     `json:"reason"`
	Status        GapStatus  `json:"status"`
	Attempts      int        `json:"attempts"`
	DetectedAt    time.Time  `json:"detected_at"`
	ResolvedAt    *time.Time `json:"resolved_at,omitempty"`
}

// NewReconciliationGap creates an open gap for a failed sync stage
func NewReconciliationGap(inv *Invoice, stage Stage, operation string, cause error) ReconciliationGap {
	reason := ""
	if cause != nil {
		reason = cause.Error()
	}
	return ReconciliationGap{
		ID:            uuid.New(),
		TenantID:      inv.TenantID,
		InvoiceID:     inv.ID,
		InvoiceNumber: inv.InvoiceNumber,
		Stage:         stage,
		Operation:     operation,
		Reason:        reason,
		Status:        GapStatusOpen,
		Attempts:      1,
		DetectedAt:    time.Now(),
	}
}

// Resolve marks the gap as reconciled
func (g *ReconciliationGap) Resolve() {
	now := time.Now()
	g.Status = GapStatusResolved
	g.ResolvedAt = &now
}

func (g ReconciliationGap) String() string {
	return fmt.Sprintf("invoice %s needs %s reconciliation after %s: %s", g.InvoiceNumber, g.Stage, g.Operation, g.Reason)
}
