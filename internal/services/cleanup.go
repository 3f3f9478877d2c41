package services

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/shifter/server/internal/models"
	"github.com/shifter/server/internal/storage"
	"github.com/shifter/server/pkg/logger"
)

// CleanupService removes expired uploads for good: blob first, row
// second. Expiry enforcement never depends on it running — access is
// already denied lazily — this only reclaims space.
type CleanupService struct {
	DB      *gorm.DB
	Storage storage.Store
}

func NewCleanupService(db *gorm.DB, store storage.Store) *CleanupService {
	return &CleanupService{DB: db, Storage: store}
}

// DeleteExpired purges every upload whose expiry lies before now and
// returns how many were removed. A blob deletion failure skips the row
// so a later run can retry it.
func (s *CleanupService) DeleteExpired(ctx context.Context, now time.Time) (int, error) {
	var expired []models.FileUpload
	if err := s.DB.Where("expires_at < ?", now.UTC()).Find(&expired).Error; err != nil {
		return 0, err
	}

	deleted := 0
	for _, file := range expired {
		if err := s.Storage.Delete(ctx, file.StoragePath); err != nil {
			logger.Error("cleanup_blob_delete_failed", err, map[string]interface{}{
				"file_hex":     file.FileHex,
				"storage_path": file.StoragePath,
			})
			continue
		}

		if err := s.DB.Delete(&models.FileUpload{}, "id = ?", file.ID).Error; err != nil {
			logger.Error("cleanup_record_delete_failed", err, map[string]interface{}{
				"file_hex": file.FileHex,
			})
			continue
		}

		logger.Info("expired_file_deleted", map[string]interface{}{
			"file_hex":   file.FileHex,
			"file_name":  file.Filename,
			"expired_at": file.ExpiresAt,
		})
		deleted++
	}

	return deleted, nil
}
