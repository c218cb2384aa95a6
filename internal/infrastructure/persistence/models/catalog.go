package models

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/lunari/studio-ledger/internal/domain/catalog"
	"github.com/lunari/studio-ledger/internal/domain/pricing"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

// CategoryModel is the persistence model for package categories
type CategoryModel struct {
	BaseModel
	TenantID uuid.UUID `gorm:"type:uuid;not null;index"`
	Name     string    `gorm:"type:varchar(100);not null"`
}

// TableName returns the table name for GORM
func (CategoryModel) TableName() string {
	return "categories"
}

// PackageModel is the persistence model for session packages
type PackageModel struct {
	BaseModel
	TenantID       uuid.UUID       `gorm:"type:uuid;not null;index"`
	Name           string          `gorm:"type:varchar(200);not null"`
	CategoryID     *uuid.UUID      `gorm:"type:uuid"`
	BasePrice      decimal.Decimal `gorm:"type:decimal(18,2);not null;default:0"`
	ExtraUnitPrice decimal.Decimal `gorm:"type:decimal(18,2);not null;default:0"`
	Products       datatypes.JSON  `gorm:"type:jsonb"`
	Tiers          datatypes.JSON  `gorm:"type:jsonb"`
	Active         bool            `gorm:"not null;default:true"`
}

// TableName returns the table name for GORM
func (PackageModel) TableName() string {
	return "packages"
}

// PackageRow is a package joined with its category name
type PackageRow struct {
	PackageModel
	CategoryName *string
}

// ToDomain converts the row to a catalog Package
func (r *PackageRow) ToDomain() (*catalog.Package, error) {
	p := &catalog.Package{
		ID:             r.ID,
		TenantID:       r.TenantID,
		Name:           r.Name,
		CategoryID:     r.CategoryID,
		CategoryName:   deref(r.CategoryName),
		BasePrice:      r.BasePrice,
		ExtraUnitPrice: r.ExtraUnitPrice,
		Active:         r.Active,
	}
	if len(r.Products) > 0 {
		if err := json.Unmarshal(r.Products, &p.Products); err != nil {
			return nil, fmt.Errorf("decode products of package %s: %w", r.ID, err)
		}
	}
	if len(r.Tiers) > 0 {
		if err := json.Unmarshal(r.Tiers, &p.Tiers); err != nil {
			return nil, fmt.Errorf("decode tiers of package %s: %w", r.ID, err)
		}
	}
	return p, nil
}

// PackageModelFromDomain creates a persistence model from a catalog Package
func PackageModelFromDomain(p *catalog.Package) (*PackageModel, error) {
	products := p.Products
	if products == nil {
		products = []pricing.IncludedProduct{}
	}
	tiers := p.Tiers
	if tiers == nil {
		tiers = []pricing.Tier{}
	}
	productsJSON, err := json.Marshal(products)
	if err != nil {
		return nil, err
	}
	tiersJSON, err := json.Marshal(tiers)
	if err != nil {
		return nil, err
	}
	return &PackageModel{
		BaseModel:      BaseModel{ID: p.ID},
		TenantID:       p.TenantID,
		Name:           p.Name,
		CategoryID:     p.CategoryID,
		BasePrice:      p.BasePrice,
		ExtraUnitPrice: p.ExtraUnitPrice,
		Products:       datatypes.JSON(productsJSON),
		Tiers:          datatypes.JSON(tiersJSON),
		Active:         p.Active,
	}, nil
}
