package repository

import (
	"github.com/nkoenig/assetvault/app/models"
	"gorm.io/gorm"
)

// assetRepository implements the AssetRepository interface
type assetRepository struct {
	db *gorm.DB
}

// NewAssetRepository creates a new asset repository instance
func NewAssetRepository(db *gorm.DB) AssetRepository {
	return &assetRepository{db: db}
}

// Create creates a new asset
func (r *assetRepository) Create(asset *models.Asset) error {
	return r.db.Create(asset).Error
}

// GetByID retrieves an asset by its ID
func (r *assetRepository) GetByID(id uint) (*models.Asset, error) {
	var asset models.Asset
	err := r.db.Preload("Category").First(&asset, id).Error
	if err != nil {
		return nil, err
	}
	return &asset, nil
}

// GetByUUID retrieves an asset by its public UUID
func (r *assetRepository) GetByUUID(uuid string) (*models.Asset, error) {
	var asset models.Asset
	err := r.db.Preload("Category").Where("uuid = ?", uuid).First(&asset).Error
	if err != nil {
		return nil, err
	}
	return &asset, nil
}

// Update saves an existing asset
func (r *assetRepository) Update(asset *models.Asset) error {
	return r.db.Save(asset).Error
}

// CountActive counts active assets
func (r *assetRepository) CountActive() (int64, error) {
	var count int64
	err := r.db.Model(&models.Asset{}).Where("is_active = ?", true).Count(&count).Error
	return count, err
}
