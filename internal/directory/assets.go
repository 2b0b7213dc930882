package directory

import (
	"context"
	"errors"
	"fmt"

	"github.com/yazid-hub/GMOA/internal/gmaoerr"
	"github.com/yazid-hub/GMOA/internal/models"
	"gorm.io/gorm"
)

// Assets is the asset catalog.
type Assets struct {
	db *gorm.DB
}

// NewAssets creates an asset catalog.
func NewAssets(db *gorm.DB) *Assets {
	return &Assets{db: db}
}

// CreateAssetOpts holds parameters for registering an asset.
type CreateAssetOpts struct {
	ID       string `validate:"required,max=64"`
	Name     string `validate:"required,max=255"`
	Category string `validate:"max=64"`
	Location string `validate:"max=255"`
}

// Create registers an asset in service.
func (a *Assets) Create(ctx context.Context, opts CreateAssetOpts) (*models.Asset, error) {
	if err := gmaoerr.CheckStruct(opts); err != nil {
		return nil, err
	}
	asset := models.Asset{ID: opts.ID, Name: opts.Name, Category: opts.Category, Location: opts.Location}
	if err := a.db.WithContext(ctx).Create(&asset).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, &gmaoerr.ConflictError{Entity: "asset", Key: opts.ID, Reason: "already exists"}
		}
		return nil, fmt.Errorf("directory: create asset %s: %w", opts.ID, err)
	}
	return &asset, nil
}

// Get looks up an asset by ID.
func (a *Assets) Get(ctx context.Context, id string) (*models.Asset, error) {
	var asset models.Asset
	if err := a.db.WithContext(ctx).Where("id = ?", id).First(&asset).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, gmaoerr.NotFound("asset", id)
		}
		return nil, fmt.Errorf("directory: get asset %s: %w", id, err)
	}
	return &asset, nil
}

// List returns assets, optionally filtered by category.
func (a *Assets) List(ctx context.Context, category string) ([]models.Asset, error) {
	q := a.db.WithContext(ctx).Model(&models.Asset{})
	if category != "" {
		q = q.Where("category = ?", category)
	}
	var assets []models.Asset
	if err := q.Order("id ASC").Find(&assets).Error; err != nil {
		return nil, fmt.Errorf("directory: list assets: %w", err)
	}
	return assets, nil
}
