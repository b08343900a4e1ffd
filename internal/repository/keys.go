package repository

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm/clause"

	"vpnbot/internal/models"
)

func (r *Repository) CreateAccessKey(ctx context.Context, key *models.AccessKey) error {
	if err := r.conn(ctx).Omit(clause.Associations).Create(key).Error; err != nil {
		return fmt.Errorf("failed to create access key: %w", err)
	}
	return nil
}

func (r *Repository) UpdateAccessKey(ctx context.Context, key *models.AccessKey) error {
	err := r.conn(ctx).Model(&models.AccessKey{}).
		Where("id = ?", key.ID).
		Updates(map[string]any{
			"name":            key.Name,
			"access_url":      key.AccessURL,
			"subscription_id": key.SubscriptionID,
			"deleted":         key.Deleted,
			"deleted_at":      key.DeletedAt,
			"updated_at":      time.Now().UTC(),
		}).Error
	if err != nil {
		return fmt.Errorf("failed to update access key: %w", err)
	}
	return nil
}

func (r *Repository) AccessKeyByKeyID(ctx context.Context, keyID string) (*models.AccessKey, error) {
	var key models.AccessKey
	if err := r.conn(ctx).Where("key_id = ?", keyID).First(&key).Error; err != nil {
		return nil, notFoundOr(err, "access key", keyID)
	}
	return &key, nil
}

// UserAccessKeys returns the user's non-deleted keys, oldest first.
func (r *Repository) UserAccessKeys(ctx context.Context, userID models.UserID) ([]models.AccessKey, error) {
	var keys []models.AccessKey
	err := r.conn(ctx).
		Where("user_id = ? AND deleted = ?", userID, false).
		Order("created_at, id").
		Find(&keys).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list user access keys: %w", err)
	}
	return keys, nil
}

func (r *Repository) SubscriptionAccessKeys(ctx context.Context, subscriptionID uint) ([]models.AccessKey, error) {
	var keys []models.AccessKey
	err := r.conn(ctx).
		Where("subscription_id = ? AND deleted = ?", subscriptionID, false).
		Order("created_at, id").
		Find(&keys).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list subscription access keys: %w", err)
	}
	return keys, nil
}

func (r *Repository) AllLiveAccessKeys(ctx context.Context) ([]models.AccessKey, error) {
	var keys []models.AccessKey
	if err := r.conn(ctx).Where("deleted = ?", false).Order("id").Find(&keys).Error; err != nil {
		return nil, fmt.Errorf("failed to list access keys: %w", err)
	}
	return keys, nil
}

// MarkKeyDeleted tombstones a key. It reports false when the key was already
// deleted or does not exist.
func (r *Repository) MarkKeyDeleted(ctx context.Context, keyID string, at time.Time) (bool, error) {
	res := r.conn(ctx).Model(&models.AccessKey{}).
		Where("key_id = ? AND deleted = ?", keyID, false).
		Updates(map[string]any{
			"deleted":    true,
			"deleted_at": at,
			"updated_at": at,
		})
	if res.Error != nil {
		return false, fmt.Errorf("failed to mark access key deleted: %w", res.Error)
	}
	return res.RowsAffected > 0, nil
}

func (r *Repository) CountLiveKeys(ctx context.Context) (int64, error) {
	var n int64
	if err := r.conn(ctx).Model(&models.AccessKey{}).Where("deleted = ?", false).Count(&n).Error; err != nil {
		return 0, fmt.Errorf("failed to count access keys: %w", err)
	}
	return n, nil
}
