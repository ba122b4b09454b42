package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/BruksfildServices01/marketplace-exchange/internal/domain/schedule"
	domain "github.com/BruksfildServices01/marketplace-exchange/internal/domain/transaction"
	"github.com/BruksfildServices01/marketplace-exchange/internal/models"
)

// CatalogGormRepository reads listings, people and communities owned by
// other services.
type CatalogGormRepository struct {
	db *gorm.DB
}

func NewCatalogGormRepository(db *gorm.DB) *CatalogGormRepository {
	return &CatalogGormRepository{db: db}
}

func (r *CatalogGormRepository) Listing(ctx context.Context, id uint) (*models.Listing, error) {
	var l models.Listing
	if err := r.db.WithContext(ctx).First(&l, id).Error; err != nil {
		return nil, notFound(err)
	}
	return &l, nil
}

func (r *CatalogGormRepository) Person(ctx context.Context, id uint) (*models.Person, error) {
	var p models.Person
	if err := r.db.WithContext(ctx).First(&p, id).Error; err != nil {
		return nil, notFound(err)
	}
	return &p, nil
}

func (r *CatalogGormRepository) Community(ctx context.Context, id uint) (*models.Community, error) {
	var c models.Community
	if err := r.db.WithContext(ctx).
		Preload("Processes").
		First(&c, id).Error; err != nil {
		return nil, notFound(err)
	}
	return &c, nil
}

func (r *CatalogGormRepository) SaveAvailability(
	ctx context.Context,
	personID uint,
	rule schedule.AvailabilityRule,
) error {
	res := r.db.WithContext(ctx).
		Model(&models.Person{}).
		Where("id = ?", personID).
		Updates(map[string]any{
			"availability_set":      true,
			"availability_weekdays": int16(rule.Weekdays),
			"availability_hours":    int64(rule.Hours),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return domain.ErrRecordNotFound
	}
	return nil
}

// Compile-time check
var _ domain.Catalog = (*CatalogGormRepository)(nil)
