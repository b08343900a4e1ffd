package repository

import (
	"context"
	"fmt"

	"gorm.io/gorm/clause"

	"vpnbot/internal/models"
)

// EnsureUser returns the user for the chat id, creating it on first contact.
// Profile names are refreshed on every call.
func (r *Repository) EnsureUser(ctx context.Context, profile models.Profile) (*models.User, error) {
	user := models.User{
		TelegramID: profile.TelegramID,
		Username:   profile.Username,
		FirstName:  profile.FirstName,
		LastName:   profile.LastName,
	}

	err := r.conn(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "telegram_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"username", "first_name", "last_name", "updated_at"}),
	}).Create(&user).Error
	if err != nil {
		return nil, fmt.Errorf("failed to ensure user: %w", err)
	}

	return r.UserByTelegramID(ctx, profile.TelegramID)
}

func (r *Repository) UserByID(ctx context.Context, id models.UserID) (*models.User, error) {
	var user models.User
	if err := r.conn(ctx).First(&user, uint(id)).Error; err != nil {
		return nil, notFoundOr(err, "user", id)
	}
	return &user, nil
}

func (r *Repository) UserByTelegramID(ctx context.Context, id models.TelegramID) (*models.User, error) {
	var user models.User
	if err := r.conn(ctx).Where("telegram_id = ?", id).First(&user).Error; err != nil {
		return nil, notFoundOr(err, "user", id)
	}
	return &user, nil
}

func (r *Repository) ResolveUserID(ctx context.Context, id models.TelegramID) (models.UserID, error) {
	user, err := r.UserByTelegramID(ctx, id)
	if err != nil {
		return 0, err
	}
	return user.ID, nil
}

// MarkTrialUsed only ever flips the flag from false to true.
func (r *Repository) MarkTrialUsed(ctx context.Context, id models.UserID) error {
	err := r.conn(ctx).Model(&models.User{}).
		Where("id = ? AND test_used = ?", id, false).
		Update("test_used", true).Error
	if err != nil {
		return fmt.Errorf("failed to mark trial used: %w", err)
	}
	return nil
}

func (r *Repository) SetPremium(ctx context.Context, id models.UserID, premium bool) error {
	err := r.conn(ctx).Model(&models.User{}).
		Where("id = ?", id).
		Update("is_premium", premium).Error
	if err != nil {
		return fmt.Errorf("failed to update premium flag: %w", err)
	}
	return nil
}

func (r *Repository) ListUsers(ctx context.Context, offset, limit int) ([]models.User, error) {
	var users []models.User
	err := r.conn(ctx).Order("id").Offset(offset).Limit(limit).Find(&users).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	return users, nil
}

func (r *Repository) AllTelegramIDs(ctx context.Context) ([]models.TelegramID, error) {
	var ids []models.TelegramID
	if err := r.conn(ctx).Model(&models.User{}).Order("id").Pluck("telegram_id", &ids).Error; err != nil {
		return nil, fmt.Errorf("failed to list chat ids: %w", err)
	}
	return ids, nil
}

func (r *Repository) CountUsers(ctx context.Context) (int64, error) {
	var n int64
	if err := r.conn(ctx).Model(&models.User{}).Count(&n).Error; err != nil {
		return 0, fmt.Errorf("failed to count users: %w", err)
	}
	return n, nil
}
