package invoicing

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// LedgerEntryType classifies an accounts ledger entry
type LedgerEntryType string

const (
	// LedgerEntryPending is the full total still owed
	LedgerEntryPending LedgerEntryType = "pending"
	// LedgerEntryPartial is the balance left after a partial payment
	LedgerEntryPartial LedgerEntryType = "partial"
	// LedgerEntrySettled marks an invoice paid in full
	LedgerEntrySettled LedgerEntryType = "settled"
	// LedgerEntryReversal voids the entry it replaced. It is the active entry
	// of a cancelled invoice and stays active until a later revision
	// supersedes it.
	LedgerEntryReversal LedgerEntryType = "reversal"
)

// IsOutstanding reports whether the entry represents money owed
func (t LedgerEntryType) IsOutstanding() bool {
	return t == LedgerEntryPending || t == LedgerEntryPartial
}

// LedgerEntryStatus tracks whether an entry is the current one for its invoice
type LedgerEntryStatus string

const (
	LedgerStatusActive     LedgerEntryStatus = "active"
	LedgerStatusSuperseded LedgerEntryStatus = "superseded"
	LedgerStatusReversed   LedgerEntryStatus = "reversed"
)

// LedgerEntry is an accounts receivable record. An invoice has at most one
// active entry; older entries stay for audit as superseded or reversed.
type LedgerEntry struct {
	ID            uuid.UUID
	TenantID      uuid.UUID
	InvoiceID     uuid.UUID
	InvoiceNumber string
	CustomerID    uuid.UUID
	EntryType     LedgerEntryType
	Amount        decimal.Decimal
	Status        LedgerEntryStatus
	Notes         string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// PaymentKind distinguishes money received from money returned
type PaymentKind string

const (
	PaymentKindPayment PaymentKind = "payment"
	PaymentKindRefund  PaymentKind = "refund"
)

// Payment is money received (positive) or refunded (negative) for an invoice.
// The payments of an invoice always sum to its AmountPaid.
type Payment struct {
	ID            uuid.UUID
	TenantID      uuid.UUID
	InvoiceID     uuid.UUID
	InvoiceNumber string
	CustomerID    uuid.UUID
	Kind          PaymentKind
	Amount        decimal.Decimal
	Method        string
	ReceivedAt    time.Time
}

// LedgerState is what the ledger currently holds for one invoice
type LedgerState struct {
	Active        *LedgerEntry
	PaymentsTotal decimal.Decimal
}

// LedgerPlan is the set of writes that brings the ledger in line with an
// invoice. Apply it atomically.
type LedgerPlan struct {
	InvoiceID uuid.UUID
	// Retire is the previously active entry with its new status, if any
	Retire  *LedgerEntry
	Insert  []LedgerEntry
	Payment *Payment
}

// IsEmpty reports whether the ledger is already in line
func (p LedgerPlan) IsEmpty() bool {
	return p.Retire == nil && len(p.Insert) == 0 && p.Payment == nil
}

// PlanLedger compares an invoice with its current ledger state.
//
//	pending   -> active pending entry for the total
//	partial   -> active partial entry for total - amount_paid
//	paid      -> active settled entry for the total
//	cancelled -> the active entry is reversed with a reversal entry
//
// Payments are reconciled to AmountPaid: any increase is written as a payment
// with the given method, any decrease as a refund.
func PlanLedger(inv *Invoice, state LedgerState, method string) LedgerPlan {
	plan := LedgerPlan{InvoiceID: inv.ID}
	now := time.Now()

	// A deleted invoice may be reconciled from a stub without customer data
	customerID := inv.CustomerID
	if customerID == uuid.Nil && state.Active != nil {
		customerID = state.Active.CustomerID
	}

	newEntry := func(entryType LedgerEntryType, amount decimal.Decimal, notes string) LedgerEntry {
		return LedgerEntry{
			ID:            uuid.New(),
			TenantID:      inv.TenantID,
			InvoiceID:     inv.ID,
			InvoiceNumber: inv.InvoiceNumber,
			CustomerID:    customerID,
			EntryType:     entryType,
			Amount:        amount,
			Status:        LedgerStatusActive,
			Notes:         notes,
			CreatedAt:     now,
			UpdatedAt:     now,
		}
	}

	if inv.IsCancelled() {
		if state.Active != nil && state.Active.EntryType != LedgerEntryReversal {
			retired := *state.Active
			retired.Status = LedgerStatusReversed
			retired.UpdatedAt = now
			plan.Retire = &retired
			plan.Insert = append(plan.Insert, newEntry(LedgerEntryReversal, state.Active.Amount,
				"Reversal of "+string(state.Active.EntryType)+" entry for "+inv.InvoiceNumber))
		}
	} else {
		wantType, wantAmount := desiredEntry(inv)
		if state.Active == nil || state.Active.EntryType != wantType || !state.Active.Amount.Equal(wantAmount) {
			if state.Active != nil {
				retired := *state.Active
				retired.Status = LedgerStatusSuperseded
				retired.UpdatedAt = now
				plan.Retire = &retired
			}
			plan.Insert = append(plan.Insert, newEntry(wantType, wantAmount, "Invoice "+inv.InvoiceNumber))
		}
	}

	delta := inv.AmountPaid.Sub(state.PaymentsTotal)
	if !delta.IsZero() {
		kind := PaymentKindPayment
		if delta.IsNegative() {
			kind = PaymentKindRefund
		}
		if method == "" {
			method = inv.PaymentMethod
		}
		plan.Payment = &Payment{
			ID:            uuid.New(),
			TenantID:      inv.TenantID,
			InvoiceID:     inv.ID,
			InvoiceNumber: inv.InvoiceNumber,
			CustomerID:    customerID,
			Kind:          kind,
			Amount:        delta,
			Method:        method,
			ReceivedAt:    now,
		}
	}

	return plan
}

func desiredEntry(inv *Invoice) (LedgerEntryType, decimal.Decimal) {
	switch inv.PaymentStatus {
	case PaymentStatusPartial:
		return LedgerEntryPartial, inv.TotalAmount.Sub(inv.AmountPaid)
	case PaymentStatusPaid:
		return LedgerEntrySettled, inv.TotalAmount
	default:
		return LedgerEntryPending, inv.TotalAmount
	}
}
