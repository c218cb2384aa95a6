package pricing

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// LineOrigin tells whether a product line came from the frozen package or was added by hand
type LineOrigin string

const (
	OriginPackage LineOrigin = "package"
	OriginManual  LineOrigin = "manual"
)

// IsValid checks if the origin is a known LineOrigin
func (o LineOrigin) IsValid() bool {
	return o == OriginPackage || o == OriginManual
}

// ProductLine is one product billed on a session
type ProductLine struct {
	ID        uuid.UUID       `json:"id"`
	ProductID uuid.UUID       `json:"product_id,omitempty"`
	Name      string          `json:"name"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	Origin    LineOrigin      `json:"origin"`
	Produced  bool            `json:"produced,omitempty"`
	Delivered bool            `json:"delivered,omitempty"`
}

// Amount returns quantity * unit price
func (l ProductLine) Amount() decimal.Decimal {
	return l.UnitPrice.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

// SameItem reports whether two lines bill the same thing, ids and
// production flags aside
func (l ProductLine) SameItem(other ProductLine) bool {
	return l.ProductID == other.ProductID && l.Name == other.Name && l.Origin == other.Origin &&
		l.Quantity == other.Quantity && l.UnitPrice.Equal(other.UnitPrice)
}

// PackageLines builds the package-origin lines for a snapshot's included products
func PackageLines(snapshot RuleSnapshot) []ProductLine {
	lines := make([]ProductLine, 0, len(snapshot.Products))
	for _, p := range snapshot.Products {
		lines = append(lines, ProductLine{
			ID:        uuid.New(),
			ProductID: p.ProductID,
			Name:      p.Name,
			Quantity:  p.Quantity,
			UnitPrice: p.UnitPrice,
			Origin:    OriginPackage,
		})
	}
	return lines
}

// MergeLines replaces every package-origin line of existing with packageLines
// and keeps manual lines in their original order after them.
func MergeLines(existing, packageLines []ProductLine) []ProductLine {
	merged := make([]ProductLine, 0, len(existing)+len(packageLines))
	merged = append(merged, packageLines...)
	for _, line := range existing {
		if line.Origin != OriginPackage {
			merged = append(merged, line)
		}
	}
	return merged
}

// EqualLines compares two product line lists in order
func EqualLines(a, b []ProductLine) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		x, y := a[i], b[i]
		if x.ID != y.ID || x.ProductID != y.ProductID || x.Name != y.Name ||
			x.Quantity != y.Quantity || !x.UnitPrice.Equal(y.UnitPrice) ||
			x.Origin != y.Origin || x.Produced != y.Produced || x.Delivered != y.Delivered {
			return false
		}
	}
	return true
}
