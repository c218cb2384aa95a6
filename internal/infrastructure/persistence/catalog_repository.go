package persistence

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"github.com/lunari/studio-ledger/internal/domain/catalog"
	"github.com/lunari/studio-ledger/internal/domain/pricing"
	"github.com/lunari/studio-ledger/internal/domain/shared"
	"github.com/lunari/studio-ledger/internal/infrastructure/persistence/models"
	"gorm.io/gorm"
)

// GormCatalogRepository resolves packages and categories of the live catalog
type GormCatalogRepository struct {
	db *gorm.DB
}

// NewGormCatalogRepository creates a new GormCatalogRepository
func NewGormCatalogRepository(db *gorm.DB) *GormCatalogRepository {
	return &GormCatalogRepository{db: db}
}

// FindPackage looks an active package up by id or, failing that, by
// case-insensitive name.
func (r *GormCatalogRepository) FindPackage(ctx context.Context, tenantID uuid.UUID, ref string) (*catalog.Package, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return nil, shared.ErrNotFound
	}

	query := r.db.WithContext(ctx).
		Table("packages").
		Select("packages.*, categories.name AS category_name").
		Joins("LEFT JOIN categories ON categories.id = packages.category_id").
		Where("packages.tenant_id = ? AND packages.active = ?", tenantID, true)

	if id, err := uuid.Parse(ref); err == nil {
		query = query.Where("packages.id = ?", id)
	} else {
		query = query.Where("LOWER(packages.name) = ?", strings.ToLower(ref))
	}

	var row models.PackageRow
	if err := query.Order("packages.updated_at DESC").Take(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return row.ToDomain()
}

// ResolvePackage implements pricing.RuleSource
func (r *GormCatalogRepository) ResolvePackage(ctx context.Context, tenantID uuid.UUID, ref string) (*pricing.PackageRules, error) {
	pkg, err := r.FindPackage(ctx, tenantID, ref)
	if err != nil {
		return nil, err
	}
	return pkg.Rules(), nil
}

// ResolveCategory returns the name of a category given its id. A ref that
// is not an id is taken to already be a name.
func (r *GormCatalogRepository) ResolveCategory(ctx context.Context, tenantID uuid.UUID, ref string) (string, error) {
	ref = strings.TrimSpace(ref)
	id, err := uuid.Parse(ref)
	if err != nil {
		return ref, nil
	}

	var model models.CategoryModel
	if err := r.db.WithContext(ctx).
		Where("id = ? AND tenant_id = ?", id, tenantID).
		Take(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", shared.ErrNotFound
		}
		return "", err
	}
	return model.Name, nil
}

// SavePackage creates or replaces a package
func (r *GormCatalogRepository) SavePackage(ctx context.Context, p *catalog.Package) error {
	isNew := p.ID == uuid.Nil
	if isNew {
		p.ID = uuid.New()
	}
	model, err := models.PackageModelFromDomain(p)
	if err != nil {
		return err
	}
	if isNew {
		return r.db.WithContext(ctx).Create(model).Error
	}
	return r.db.WithContext(ctx).Save(model).Error
}

// SaveCategory creates or replaces a category
func (r *GormCatalogRepository) SaveCategory(ctx context.Context, c *catalog.Category) error {
	isNew := c.ID == uuid.Nil
	if isNew {
		c.ID = uuid.New()
	}
	model := &models.CategoryModel{
		BaseModel: models.BaseModel{ID: c.ID},
		TenantID:  c.TenantID,
		Name:      c.Name,
	}
	if isNew {
		return r.db.WithContext(ctx).Create(model).Error
	}
	return r.db.WithContext(ctx).Save(model).Error
}

// Ensure GormCatalogRepository implements catalog.Resolver
var _ catalog.Resolver = (*GormCatalogRepository)(nil)
