package catalog

import (
	"context"

	"github.com/google/uuid"
	"github.com/lunari/studio-ledger/internal/domain/pricing"
	"github.com/shopspring/decimal"
)

// Category groups packages (Gestante, Newborn, Familia...)
type Category struct {
	ID       uuid.UUID
	TenantID uuid.UUID
	Name     string
}

// Package is a sellable session package as the catalog currently defines it.
// Sessions never read it directly; they hold a frozen snapshot of it.
type Package struct {
	ID             uuid.UUID
	TenantID       uuid.UUID
	Name           string
	CategoryID     *uuid.UUID
	CategoryName   string
	BasePrice      decimal.Decimal
	ExtraUnitPrice decimal.Decimal
	Products       []pricing.IncludedProduct
	Tiers          []pricing.Tier
	Active         bool
}

// Rules converts the package into the rule set a snapshot is frozen from
func (p *Package) Rules() *pricing.PackageRules {
	return &pricing.PackageRules{
		PackageID:      p.ID,
		Name:           p.Name,
		Category:       p.CategoryName,
		BasePrice:      p.BasePrice,
		ExtraUnitPrice: p.ExtraUnitPrice,
		Products:       append([]pricing.IncludedProduct(nil), p.Products...),
		Tiers:          append([]pricing.Tier(nil), p.Tiers...),
	}
}

// Resolver looks packages and categories up by id or name
type Resolver interface {
	pricing.RuleSource
	// ResolveCategory returns the display name of a category id
	ResolveCategory(ctx context.Context, tenantID uuid.UUID, ref string) (string, error)
}
