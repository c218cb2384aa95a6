package pricing

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// PackageRules is what the catalog knows about a package at a point in time
type PackageRules struct {
	PackageID      uuid.UUID
	Name           string
	Category       string
	BasePrice      decimal.Decimal
	ExtraUnitPrice decimal.Decimal
	Products       []IncludedProduct
	Tiers          []Tier
}

// RuleSource resolves a package by id or name.
// Implementations return shared.ErrNotFound when no package matches.
type RuleSource interface {
	ResolvePackage(ctx context.Context, tenantID uuid.UUID, ref string) (*PackageRules, error)
}

// Freezer captures package rules into immutable snapshots
type Freezer struct {
	source RuleSource
	logger *zap.Logger
	now    func() time.Time
}

// FreezerOption is a functional option for configuring the freezer
type FreezerOption func(*Freezer)

// WithFreezerLogger sets the logger
func WithFreezerLogger(logger *zap.Logger) FreezerOption {
	return func(f *Freezer) {
		f.logger = logger
	}
}

// WithFreezerClock overrides the clock used to stamp snapshots
func WithFreezerClock(now func() time.Time) FreezerOption {
	return func(f *Freezer) {
		f.now = now
	}
}

// NewFreezer creates a new freezer over a rule source
func NewFreezer(source RuleSource, opts ...FreezerOption) *Freezer {
	f := &Freezer{
		source: source,
		logger: zap.NewNop(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Freeze snapshots the rules of the referenced package. It never fails: an
// unresolvable package yields a zero-priced fallback snapshot carrying the raw
// reference and the given category, so the session stays computable.
func (f *Freezer) Freeze(ctx context.Context, tenantID uuid.UUID, packageRef, category string) RuleSnapshot {
	if packageRef == "" {
		return f.fallback(packageRef, category)
	}

	rules, err := f.source.ResolvePackage(ctx, tenantID, packageRef)
	if err != nil || rules == nil {
		f.logger.Warn("package could not be resolved, freezing fallback rules",
			zap.String("package_ref", packageRef),
			zap.String("tenant_id", tenantID.String()),
			zap.Error(err),
		)
		return f.fallback(packageRef, category)
	}

	resolvedCategory := rules.Category
	if resolvedCategory == "" {
		resolvedCategory = category
	}

	return RuleSnapshot{
		PackageID:          rules.PackageID,
		PackageName:        rules.Name,
		Category:           resolvedCategory,
		BasePrice:          rules.BasePrice,
		FlatExtraUnitPrice: rules.ExtraUnitPrice,
		Products:           append([]IncludedProduct(nil), rules.Products...),
		Tiers:              sortedTiers(rules.Tiers),
		Source:             SourceCatalog,
		FrozenAt:           f.now(),
	}
}

// ReFreezeProducts swaps the included product list of an existing snapshot.
// Base price and extra-unit tiers are left untouched.
func (f *Freezer) ReFreezeProducts(existing RuleSnapshot, products []IncludedProduct) RuleSnapshot {
	out := existing.Clone()
	out.Products = append([]IncludedProduct(nil), products...)
	out.FrozenAt = f.now()
	if out.Source == "" {
		out.Source = SourceFallback
	}
	return out
}

func (f *Freezer) fallback(packageRef, category string) RuleSnapshot {
	return RuleSnapshot{
		PackageName:        packageRef,
		Category:           category,
		BasePrice:          decimal.Zero,
		FlatExtraUnitPrice: decimal.Zero,
		Products:           []IncludedProduct{},
		Tiers:              []Tier{},
		Source:             SourceFallback,
		FrozenAt:           f.now(),
	}
}
