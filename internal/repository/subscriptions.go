package repository

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm/clause"

	"vpnbot/internal/models"
)

func (r *Repository) CreateSubscription(ctx context.Context, sub *models.Subscription) error {
	if err := r.conn(ctx).Omit(clause.Associations).Create(sub).Error; err != nil {
		return fmt.Errorf("failed to create subscription: %w", err)
	}
	return nil
}

func (r *Repository) UpdateSubscription(ctx context.Context, sub *models.Subscription) error {
	err := r.conn(ctx).Model(&models.Subscription{}).
		Where("id = ?", sub.ID).
		Updates(map[string]any{
			"plan_id":    sub.PlanID,
			"status":     sub.Status,
			"expires_at": sub.ExpiresAt,
			"price_paid": sub.PricePaid,
			"payment_id": sub.PaymentID,
			"updated_at": time.Now().UTC(),
		}).Error
	if err != nil {
		return fmt.Errorf("failed to update subscription: %w", err)
	}
	return nil
}

func (r *Repository) SubscriptionByID(ctx context.Context, id uint) (*models.Subscription, error) {
	var sub models.Subscription
	if err := r.conn(ctx).First(&sub, id).Error; err != nil {
		return nil, notFoundOr(err, "subscription", id)
	}
	return &sub, nil
}

func (r *Repository) SubscriptionByPublicID(ctx context.Context, publicID string) (*models.Subscription, error) {
	var sub models.Subscription
	if err := r.conn(ctx).Where("subscription_id = ?", publicID).First(&sub).Error; err != nil {
		return nil, notFoundOr(err, "subscription", publicID)
	}
	return &sub, nil
}

// ActiveSubscription returns the user's active subscription that has not yet
// expired at now.
func (r *Repository) ActiveSubscription(ctx context.Context, userID models.UserID, now time.Time) (*models.Subscription, error) {
	var sub models.Subscription
	err := r.conn(ctx).
		Where("user_id = ? AND status = ? AND expires_at > ?", userID, models.SubscriptionActive, now).
		Order("expires_at DESC").
		First(&sub).Error
	if err != nil {
		return nil, notFoundOr(err, "active subscription for user", userID)
	}
	return &sub, nil
}

// ActiveSubscriptions returns every subscription in active status, expired or not.
func (r *Repository) ActiveSubscriptions(ctx context.Context, userID models.UserID) ([]models.Subscription, error) {
	var subs []models.Subscription
	err := r.conn(ctx).
		Where("user_id = ? AND status = ?", userID, models.SubscriptionActive).
		Order("id").
		Find(&subs).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list active subscriptions: %w", err)
	}
	return subs, nil
}

// DeactivateSubscriptions sets every active subscription of the user except
// exceptID to inactive.
func (r *Repository) DeactivateSubscriptions(ctx context.Context, userID models.UserID, exceptID uint) (int64, error) {
	res := r.conn(ctx).Model(&models.Subscription{}).
		Where("user_id = ? AND status = ? AND id <> ?", userID, models.SubscriptionActive, exceptID).
		Updates(map[string]any{
			"status":     models.SubscriptionInactive,
			"updated_at": time.Now().UTC(),
		})
	if res.Error != nil {
		return 0, fmt.Errorf("failed to deactivate subscriptions: %w", res.Error)
	}
	return res.RowsAffected, nil
}

// ExpiringSubscriptions returns active subscriptions with from <= expires_at < to.
func (r *Repository) ExpiringSubscriptions(ctx context.Context, from, to time.Time) ([]models.Subscription, error) {
	var subs []models.Subscription
	err := r.conn(ctx).
		Where("status = ? AND expires_at >= ? AND expires_at < ?", models.SubscriptionActive, from, to).
		Order("expires_at").
		Find(&subs).Error
	if err != nil {
		return nil, fmt.Errorf("failed to query expiring subscriptions: %w", err)
	}
	return subs, nil
}

func (r *Repository) ExpiredActiveSubscriptions(ctx context.Context, now time.Time) ([]models.Subscription, error) {
	var subs []models.Subscription
	err := r.conn(ctx).
		Where("status = ? AND expires_at <= ?", models.SubscriptionActive, now).
		Order("expires_at").
		Find(&subs).Error
	if err != nil {
		return nil, fmt.Errorf("failed to query expired subscriptions: %w", err)
	}
	return subs, nil
}
