package pricing

import (
	"github.com/shopspring/decimal"
)

// ExtraPricing is the resolved price of the extra units of a session
type ExtraPricing struct {
	UnitPrice decimal.Decimal
	Subtotal  decimal.Decimal
}

// ExtraUnitPrice returns the price of quantity extra units under the snapshot.
// Tiers are checked in ascending threshold order and the last one whose
// threshold is <= quantity wins. Without a matching tier the package's flat
// extra price applies. Quantity 0 always yields a zero subtotal.
func ExtraUnitPrice(quantity int, snapshot RuleSnapshot) ExtraPricing {
	unitPrice := snapshot.FlatExtraUnitPrice
	for _, tier := range sortedTiers(snapshot.Tiers) {
		if tier.Threshold <= quantity {
			unitPrice = tier.UnitPrice
		}
	}

	if quantity <= 0 {
		return ExtraPricing{UnitPrice: unitPrice, Subtotal: decimal.Zero}
	}

	return ExtraPricing{
		UnitPrice: unitPrice,
		Subtotal:  unitPrice.Mul(decimal.NewFromInt(int64(quantity))),
	}
}

// Components are the priced parts a session total is made of
type Components struct {
	Base             decimal.Decimal
	ExtraSubtotal    decimal.Decimal
	ProductsSubtotal decimal.Decimal
	Addition         decimal.Decimal
	Discount         decimal.Decimal
}

// Total folds the components into a single amount. The result is not clamped:
// an over-discounted session shows a negative total.
func Total(c Components) decimal.Decimal {
	return c.Base.
		Add(c.ExtraSubtotal).
		Add(c.ProductsSubtotal).
		Add(c.Addition).
		Sub(c.Discount)
}

// ProductsSubtotal sums quantity * unit price over every line, whatever its origin
func ProductsSubtotal(lines []ProductLine) decimal.Decimal {
	sum := decimal.Zero
	for _, line := range lines {
		sum = sum.Add(line.Amount())
	}
	return sum
}
