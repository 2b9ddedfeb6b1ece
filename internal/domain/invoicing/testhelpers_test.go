package invoicing

import (
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func price(v string) *decimal.Decimal {
	d := decimal.RequireFromString(v)
	return &d
}

func draftItem(qty int64, unitPrice string) DraftItem {
	return DraftItem{
		ProductID:   uuid.New(),
		ProductName: "Widget",
		Quantity:    decimal.NewFromInt(qty),
		UnitPrice:   price(unitPrice),
	}
}

// scenarioDraft is 3 @ 100 + 1 @ 50 with no discount or tax
func scenarioDraft() Draft {
	return Draft{
		CustomerID:   uuid.New(),
		CustomerName: "Asha Traders",
		Items:        []DraftItem{draftItem(3, "100"), draftItem(1, "50")},
		TaxAmount:    price("0"),
	}
}

func newTestInvoice(t *testing.T, draft Draft) *Invoice {
	t.Helper()
	inv, err := NewInvoice(uuid.New(), "INV-TEST1", draft)
	require.NoError(t, err)
	return inv
}
