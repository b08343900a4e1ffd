// Package repository is the persistence gateway. It is the only place that
// knows how rows are stored; callers work with the typed records in models.
package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"vpnbot/internal/apperrors"
	"vpnbot/internal/models"
)

// Gateway lists the logical data operations used by the lifecycle engine,
// the background jobs and the bot.
type Gateway interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error

	EnsureUser(ctx context.Context, profile models.Profile) (*models.User, error)
	UserByID(ctx context.Context, id models.UserID) (*models.User, error)
	UserByTelegramID(ctx context.Context, id models.TelegramID) (*models.User, error)
	ResolveUserID(ctx context.Context, id models.TelegramID) (models.UserID, error)
	MarkTrialUsed(ctx context.Context, id models.UserID) error
	SetPremium(ctx context.Context, id models.UserID, premium bool) error
	ListUsers(ctx context.Context, offset, limit int) ([]models.User, error)
	AllTelegramIDs(ctx context.Context) ([]models.TelegramID, error)
	CountUsers(ctx context.Context) (int64, error)

	CreateSubscription(ctx context.Context, sub *models.Subscription) error
	UpdateSubscription(ctx context.Context, sub *models.Subscription) error
	SubscriptionByID(ctx context.Context, id uint) (*models.Subscription, error)
	SubscriptionByPublicID(ctx context.Context, publicID string) (*models.Subscription, error)
	ActiveSubscription(ctx context.Context, userID models.UserID, now time.Time) (*models.Subscription, error)
	ActiveSubscriptions(ctx context.Context, userID models.UserID) ([]models.Subscription, error)
	DeactivateSubscriptions(ctx context.Context, userID models.UserID, exceptID uint) (int64, error)
	ExpiringSubscriptions(ctx context.Context, from, to time.Time) ([]models.Subscription, error)
	ExpiredActiveSubscriptions(ctx context.Context, now time.Time) ([]models.Subscription, error)

	CreateAccessKey(ctx context.Context, key *models.AccessKey) error
	UpdateAccessKey(ctx context.Context, key *models.AccessKey) error
	AccessKeyByKeyID(ctx context.Context, keyID string) (*models.AccessKey, error)
	UserAccessKeys(ctx context.Context, userID models.UserID) ([]models.AccessKey, error)
	SubscriptionAccessKeys(ctx context.Context, subscriptionID uint) ([]models.AccessKey, error)
	AllLiveAccessKeys(ctx context.Context) ([]models.AccessKey, error)
	MarkKeyDeleted(ctx context.Context, keyID string, at time.Time) (bool, error)
	CountLiveKeys(ctx context.Context) (int64, error)

	CreatePayment(ctx context.Context, p *models.Payment) error
	PaymentByProviderID(ctx context.Context, paymentID string) (*models.Payment, error)
	CompletePayment(ctx context.Context, paymentID string, status models.PaymentStatus, at time.Time) (bool, error)
	StalePendingPayments(ctx context.Context, before time.Time) ([]models.Payment, error)
}

type txKey struct{}

type Repository struct {
	db *gorm.DB
}

var _ Gateway = (*Repository)(nil)

func New(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// RunInTx executes fn within a database transaction. Repository calls made
// with the ctx passed to fn join the transaction.
func (r *Repository) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := ctx.Value(txKey{}).(*gorm.DB); ok {
		return fn(ctx)
	}
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(context.WithValue(ctx, txKey{}, tx))
	})
}

func (r *Repository) conn(ctx context.Context) *gorm.DB {
	if tx, ok := ctx.Value(txKey{}).(*gorm.DB); ok {
		return tx
	}
	return r.db.WithContext(ctx)
}

func notFoundOr(err error, entity string, id any) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return apperrors.NotFound(entity, id)
	}
	return fmt.Errorf("failed to get %s: %w", entity, err)
}
