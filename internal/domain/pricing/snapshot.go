package pricing

import (
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// SnapshotSource records how a snapshot was produced
type SnapshotSource string

const (
	SourceCatalog  SnapshotSource = "catalog"
	SourceFallback SnapshotSource = "fallback"
)

// Tier is one extra-unit price breakpoint.
// The tier applies from Threshold units upward until a higher threshold takes over
type Tier struct {
	Threshold int             `json:"threshold"`
	UnitPrice decimal.Decimal `json:"unit_price"`
}

// IncludedProduct is a product that comes with a package
type IncludedProduct struct {
	ProductID uuid.UUID       `json:"product_id"`
	Name      string          `json:"name"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
}

// RuleSnapshot is the copy of a package's pricing rules taken when the
// package was assigned to a session. It is never refreshed from the live catalog.
type RuleSnapshot struct {
	PackageID          uuid.UUID         `json:"package_id"`
	PackageName        string            `json:"package_name"`
	Category           string            `json:"category"`
	BasePrice          decimal.Decimal   `json:"base_price"`
	FlatExtraUnitPrice decimal.Decimal   `json:"flat_extra_unit_price"`
	Products           []IncludedProduct `json:"products"`
	Tiers              []Tier            `json:"tiers"`
	Source             SnapshotSource    `json:"source"`
	FrozenAt           time.Time         `json:"frozen_at"`
}

// IsEmpty reports whether the snapshot carries no rules at all.
// A fallback snapshot is not empty: it is a valid zero-priced rule set.
func (s RuleSnapshot) IsEmpty() bool {
	return s.Source == "" && s.FrozenAt.IsZero()
}

// Clone returns a deep copy so callers can never mutate shared slices
func (s RuleSnapshot) Clone() RuleSnapshot {
	out := s
	out.Products = append([]IncludedProduct(nil), s.Products...)
	out.Tiers = append([]Tier(nil), s.Tiers...)
	return out
}

// Equal compares two snapshots field by field
func (s RuleSnapshot) Equal(other RuleSnapshot) bool {
	if s.PackageID != other.PackageID ||
		s.PackageName != other.PackageName ||
		s.Category != other.Category ||
		s.Source != other.Source ||
		!s.FrozenAt.Equal(other.FrozenAt) ||
		!s.BasePrice.Equal(other.BasePrice) ||
		!s.FlatExtraUnitPrice.Equal(other.FlatExtraUnitPrice) ||
		len(s.Products) != len(other.Products) ||
		len(s.Tiers) != len(other.Tiers) {
		return false
	}
	for i := range s.Products {
		a, b := s.Products[i], other.Products[i]
		if a.ProductID != b.ProductID || a.Name != b.Name || a.Quantity != b.Quantity || !a.UnitPrice.Equal(b.UnitPrice) {
			return false
		}
	}
	for i := range s.Tiers {
		if s.Tiers[i].Threshold != other.Tiers[i].Threshold || !s.Tiers[i].UnitPrice.Equal(other.Tiers[i].UnitPrice) {
			return false
		}
	}
	return true
}

func sortedTiers(tiers []Tier) []Tier {
	out := make([]Tier, len(tiers))
	copy(out, tiers)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Threshold < out[j].Threshold
	})
	return out
}
