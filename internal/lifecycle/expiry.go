package lifecycle

import (
	"context"
	"fmt"

	"vpnbot/internal/models"
)

// ExpireSubscription moves a lapsed active subscription to inactive and
// suspends its keys with a zero data limit. Suspended keys keep their access
// URL, so a later renewal resumes them in place. It reports false when the
// subscription was no longer due.
func (e *Engine) ExpireSubscription(ctx context.Context, subscriptionID uint) (bool, error) {
	sub, err := e.repo.SubscriptionByID(ctx, subscriptionID)
	if err != nil {
		return false, err
	}

	release, err := e.lockUser(ctx, sub.UserID)
	if err != nil {
		return false, err
	}
	defer release()

	if sub, err = e.repo.SubscriptionByID(ctx, subscriptionID); err != nil {
		return false, err
	}
	now := e.clock()
	if sub.Status != models.SubscriptionActive || sub.ExpiresAt == nil || sub.ExpiresAt.After(now) {
		return false, nil
	}

	keys, err := e.repo.SubscriptionAccessKeys(ctx, sub.ID)
	if err != nil {
		return false, err
	}

	var gone []string
	for _, key := range keys {
		err := e.keys.SetDataLimit(ctx, key.KeyID, 0)
		switch {
		case err == nil:
		case isNotFound(err):
			gone = append(gone, key.KeyID)
		default:
			e.logger.Warn("failed to suspend key", "key_id", key.KeyID, "subscription_id", sub.SubscriptionID, "error", err)
		}
	}

	err = e.repo.RunInTx(ctx, func(ctx context.Context) error {
		sub.Status = models.SubscriptionInactive
		if err := e.repo.UpdateSubscription(ctx, sub); err != nil {
			return err
		}
		for _, keyID := range gone {
			if _, err := e.repo.MarkKeyDeleted(ctx, keyID, now); err != nil {
				return err
			}
		}
		if _, err := e.repo.ActiveSubscription(ctx, sub.UserID, now); isNotFound(err) {
			return e.repo.SetPremium(ctx, sub.UserID, false)
		} else if err != nil {
			return err
		}
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("failed to expire subscription %s: %w", sub.SubscriptionID, err)
	}

	e.logger.Info("subscription expired", "user_id", sub.UserID, "subscription_id", sub.SubscriptionID, "keys", len(keys))
	return true, nil
}
