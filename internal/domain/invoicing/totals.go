package invoicing

import "github.com/shopspring/decimal"

// MoneyScale is the number of decimal places kept on stored amounts
const MoneyScale = 2

var hundred = decimal.NewFromInt(100)

// Totals is the result of pricing an invoice
type Totals struct {
	Subtotal decimal.Decimal
	// ItemTax is the tax implied by the item tax percentages. It becomes the
	// invoice tax amount when the caller does not supply one.
	ItemTax  decimal.Decimal
	Tax      decimal.Decimal
	Discount decimal.Decimal
	Total    decimal.Decimal
}

// LineTotal is quantity x unit price less the line discount percentage
func LineTotal(quantity, unitPrice, discountPercent decimal.Decimal) decimal.Decimal {
	factor := decimal.NewFromInt(1).Sub(discountPercent.Div(hundred))
	return quantity.Mul(unitPrice).Mul(factor)
}

// CalculateTotals prices a set of items.
//
//	subtotal = sum(quantity * unit_price * (1 - discount_percent/100))
//	total    = max(0, subtotal + tax - discount)
//
// A nil tax falls back to the tax implied by the item tax percentages.
func CalculateTotals(items []InvoiceItem, discountAmount decimal.Decimal, taxAmount *decimal.Decimal) Totals {
	subtotal := decimal.Zero
	itemTax := decimal.Zero
	for _, item := range items {
		line := LineTotal(item.Quantity, item.UnitPrice, item.DiscountPercent)
		subtotal = subtotal.Add(line)
		itemTax = itemTax.Add(line.Mul(item.TaxPercent).Div(hundred))
	}
	subtotal = subtotal.Round(MoneyScale)
	itemTax = itemTax.Round(MoneyScale)

	tax := itemTax
	if taxAmount != nil {
		tax = taxAmount.Round(MoneyScale)
	}
	discount := discountAmount.Round(MoneyScale)

	total := subtotal.Add(tax).Sub(discount)
	if total.IsNegative() {
		total = decimal.Zero
	}

	return Totals{
		Subtotal: subtotal,
		ItemTax:  itemTax,
		Tax:      tax,
		Discount: discount,
		Total:    total,
	}
}
