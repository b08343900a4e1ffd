// Package worker holds the periodic background jobs: key reconciliation,
// expiry reminders, expiry enforcement and cleanup of abandoned checkouts.
package worker

import (
	"context"
	"time"

	"vpnbot/internal/lifecycle"
	"vpnbot/internal/models"
)

// Notifier delivers job outcomes to users.
type Notifier interface {
	ExpiryReminder(ctx context.Context, tg models.TelegramID, sub models.Subscription, planName string) error
	SubscriptionExpired(ctx context.Context, tg models.TelegramID, planName string) error
	PaymentConfirmed(ctx context.Context, act *lifecycle.Activation) error
	PaymentCanceled(ctx context.Context, tg models.TelegramID, paymentID string) error
}

// Marks records that something happened, for a while.
type Marks interface {
	Mark(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Unmark(ctx context.Context, key string) error
}

// ItemFailure is one record a sweep could not process.
type ItemFailure struct {
	ID  string
	Err error
}

type clock func() time.Time

func (c clock) now() time.Time {
	if c == nil {
		return time.Now().UTC()
	}
	return c().UTC()
}
