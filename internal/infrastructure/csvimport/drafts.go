package csvimport

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/erp/invoicing/internal/domain/invoicing"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Column names of an invoice import file. Each row is one item; rows with
// the same invoice_ref form one invoice and its header columns are read from
// the first of them.
const (
	ColInvoiceRef       = "invoice_ref"
	ColCustomerID       = "customer_id"
	ColCustomerName     = "customer_name"
	ColProductID        = "product_id"
	ColVariantID        = "variant_id"
	ColProductName      = "product_name"
	ColQuantity         = "quantity"
	ColUnitPrice        = "unit_price"
	ColDiscountPercent  = "discount_percent"
	ColTaxPercent       = "tax_percent"
	ColSerialNumber     = "serial_number"
	ColWarrantyMonths   = "warranty_months"
	ColDiscountAmount   = "discount_amount"
	ColTaxAmount        = "tax_amount"
	ColPaymentStatus    = "payment_status"
	ColAmountPaid       = "amount_paid"
	ColPaymentMethod    = "payment_method"
	ColWarrantyProvided = "warranty_provided"
	ColNotes            = "notes"
)

// RequiredColumns must be present in every import file
var RequiredColumns = []string{ColInvoiceRef, ColCustomerID, ColProductID, ColQuantity}

// RowError is a problem with one cell of the file
type RowError struct {
	Line    int    `json:"line"`
	Column  string `json:"column"`
	Message string `json:"message"`
}

func (e RowError) Error() string {
	return fmt.Sprintf("line %d, column %s: %s", e.Line, e.Column, e.Message)
}

// ImportedDraft is one invoice read from the file
type ImportedDraft struct {
	Ref   string
	Line  int
	Draft invoicing.Draft
}

// ReadDrafts parses an invoice import file. Drafts with cell errors are left
// out and reported; the rest are returned in file order.
func ReadDrafts(r io.Reader, opts ...ParserOption) ([]ImportedDraft, []RowError, error) {
	p, err := NewParser(r, opts...)
	if err != nil {
		return nil, nil, err
	}
	if missing := p.MissingHeaders(RequiredColumns...); len(missing) > 0 {
		return nil, nil, fmt.Errorf("missing required columns: %s", strings.Join(missing, ", "))
	}
	rows, err := p.ReadAll()
	if err != nil {
		return nil, nil, err
	}

	var (
		drafts  []ImportedDraft
		rowErrs []RowError
		index   = make(map[string]int)
		broken  = make(map[string]bool)
	)
	for _, row := range rows {
		ref := row.Get(ColInvoiceRef)
		if ref == "" {
			rowErrs = append(rowErrs, RowError{Line: row.LineNumber, Column: ColInvoiceRef, Message: "is required"})
			continue
		}
		c := cells{row: row}

		item := invoicing.DraftItem{
			ProductID:       c.uuid(ColProductID),
			VariantID:       c.optionalUUID(ColVariantID),
			ProductName:     row.Get(ColProductName),
			Quantity:        c.decimal(ColQuantity),
			UnitPrice:       c.optionalDecimal(ColUnitPrice),
			DiscountPercent: c.decimal(ColDiscountPercent),
			TaxPercent:      c.decimal(ColTaxPercent),
			SerialNumber:    row.Get(ColSerialNumber),
			WarrantyMonths:  c.int(ColWarrantyMonths),
		}

		pos, seen := index[ref]
		if !seen {
			draft := ImportedDraft{
				Ref:  ref,
				Line: row.LineNumber,
				Draft: invoicing.Draft{
					CustomerID:       c.uuid(ColCustomerID),
					CustomerName:     row.Get(ColCustomerName),
					DiscountAmount:   c.decimal(ColDiscountAmount),
					TaxAmount:        c.optionalDecimal(ColTaxAmount),
					PaymentStatus:    invoicing.PaymentStatus(strings.ToLower(row.Get(ColPaymentStatus))),
					AmountPaid:       c.decimal(ColAmountPaid),
					PaymentMethod:    row.Get(ColPaymentMethod),
					WarrantyProvided: c.bool(ColWarrantyProvided),
					Notes:            row.Get(ColNotes),
				},
			}
			pos = len(drafts)
			index[ref] = pos
			drafts = append(drafts, draft)
		}
		drafts[pos].Draft.Items = append(drafts[pos].Draft.Items, item)

		if len(c.errs) > 0 {
			rowErrs = append(rowErrs, c.errs...)
			broken[ref] = true
		}
	}

	valid := drafts[:0]
	for _, d := range drafts {
		if !broken[d.Ref] {
			valid = append(valid, d)
		}
	}
	return valid, rowErrs, nil
}

// cells converts the columns of one row and collects conversion errors
type cells struct {
	row  *Row
	errs []RowError
}

func (c *cells) fail(col, msg string) {
	c.errs = append(c.errs, RowError{Line: c.row.LineNumber, Column: col, Message: msg})
}

func (c *cells) uuid(col string) uuid.UUID {
	v := c.row.Get(col)
	if v == "" {
		return uuid.Nil
	}
	id, err := uuid.Parse(v)
	if err != nil {
		c.fail(col, "is not a valid UUID")
		return uuid.Nil
	}
	return id
}

func (c *cells) optionalUUID(col string) *uuid.UUID {
	if c.row.Get(col) == "" {
		return nil
	}
	id := c.uuid(col)
	if id == uuid.Nil {
		return nil
	}
	return &id
}

func (c *cells) decimal(col string) decimal.Decimal {
	v := c.row.Get(col)
	if v == "" {
		return decimal.Zero
	}
	d, err := decimal.NewFromString(v)
	if err != nil {
		c.fail(col, "is not a valid number")
		return decimal.Zero
	}
	return d
}

func (c *cells) optionalDecimal(col string) *decimal.Decimal {
	if c.row.Get(col) == "" {
		return nil
	}
	d := c.decimal(col)
	return &d
}

func (c *cells) int(col string) int {
	v := c.row.Get(col)
	if v == "" {
		return 0
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		c.fail(col, "is not a valid integer")
		return 0
	}
	return n
}

func (c *cells) bool(col string) bool {
	switch strings.ToLower(c.row.Get(col)) {
	case "", "0", "false", "no", "n":
		return false
	case "1", "true", "yes", "y":
		return true
	default:
		c.fail(col, "is not a valid boolean")
		return false
	}
}
