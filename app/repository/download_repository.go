package repository

import (
	"time"

	"github.com/nkoenig/assetvault/app/models"
	"gorm.io/gorm"
)

// downloadRepository implements the DownloadRepository interface
type downloadRepository struct {
	db *gorm.DB
}

// NewDownloadRepository creates a new download repository instance
func NewDownloadRepository(db *gorm.DB) DownloadRepository {
	return &downloadRepository{db: db}
}

// ConsumeUnderLimit counts the user's downloads inside the window and inserts
// the record only when the count is below the limit, all in one transaction.
// The asset's download counter is bumped in the same transaction and its
// committed value is returned, so milestone checks see each count exactly
// once even under concurrent downloads of the same asset. Callers must
// serialize invocations per user; the transaction guarantees the count and
// the insert commit together or not at all.
func (r *downloadRepository) ConsumeUnderLimit(d *models.Download, limit int, windowStart, windowEnd time.Time) (int64, int64, bool, error) {
	var consumed, assetDownloads int64
	ok := false
	err := r.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&models.Download{}).
			Where("user_id = ? AND downloaded_at >= ? AND downloaded_at < ?", d.UserID, windowStart, windowEnd).
			Count(&consumed).Error; err != nil {
			return err
		}
		if limit > 0 && consumed >= int64(limit) {
			return nil
		}
		if err := tx.Create(d).Error; err != nil {
			return err
		}
		if err := tx.Model(&models.Asset{}).
			Where("id = ?", d.AssetID).
			Update("download_count", gorm.Expr("download_count + 1")).Error; err != nil {
			return err
		}
		var asset models.Asset
		if err := tx.Select("download_count").First(&asset, d.AssetID).Error; err != nil {
			return err
		}
		assetDownloads = asset.DownloadCount
		ok = true
		return nil
	})
	return consumed, assetDownloads, ok, err
}

// CountForUserBetween counts a user's downloads within [start, end)
func (r *downloadRepository) CountForUserBetween(userID uint, start, end time.Time) (int64, error) {
	var count int64
	err := r.db.Model(&models.Download{}).
		Where("user_id = ? AND downloaded_at >= ? AND downloaded_at < ?", userID, start, end).
		Count(&count).Error
	return count, err
}

// CountForUser counts all downloads of a user
func (r *downloadRepository) CountForUser(userID uint) (int64, error) {
	var count int64
	err := r.db.Model(&models.Download{}).Where("user_id = ?", userID).Count(&count).Error
	return count, err
}

// Count counts all download records
func (r *downloadRepository) Count() (int64, error) {
	var count int64
	err := r.db.Model(&models.Download{}).Count(&count).Error
	return count, err
}

// CountBetween counts downloads across all users within [start, end)
func (r *downloadRepository) CountBetween(start, end time.Time) (int64, error) {
	var count int64
	err := r.db.Model(&models.Download{}).
		Where("downloaded_at >= ? AND downloaded_at < ?", start, end).
		Count(&count).Error
	return count, err
}

// HistoryByUser returns a user's downloads with assets preloaded, newest first
func (r *downloadRepository) HistoryByUser(userID uint, offset, limit int) ([]models.Download, error) {
	var downloads []models.Download
	err := r.db.Preload("Asset").Preload("Asset.Category").
		Where("user_id = ?", userID).
		Order("downloaded_at DESC").
		Offset(offset).Limit(limit).
		Find(&downloads).Error
	return downloads, err
}

// TopAssets returns the most downloaded assets by consumption record count
func (r *downloadRepository) TopAssets(limit int) ([]AssetDownloadCount, error) {
	var rows []struct {
		AssetID   uint
		Downloads int64
	}
	err := r.db.Model(&models.Download{}).
		Select("asset_id, COUNT(*) as downloads").
		Group("asset_id").
		Order("downloads DESC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}

	ids := make([]uint, 0, len(rows))
	for _, row := range rows {
		ids = append(ids, row.AssetID)
	}
	var assets []models.Asset
	if err := r.db.Preload("Category").Where("id IN ?", ids).Find(&assets).Error; err != nil {
		return nil, err
	}
	byID := make(map[uint]models.Asset, len(assets))
	for _, a := range assets {
		byID[a.ID] = a
	}

	result := make([]AssetDownloadCount, 0, len(rows))
	for _, row := range rows {
		asset, found := byID[row.AssetID]
		if !found {
			continue
		}
		result = append(result, AssetDownloadCount{Asset: asset, Downloads: row.Downloads})
	}
	return result, nil
}
