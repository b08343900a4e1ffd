package lifecycle

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"vpnbot/internal/apperrors"
	"vpnbot/internal/models"
)

// ActivateTrial starts the one-time free plan for the user. The trial always
// issues a single fresh key; keys left over from lapsed plans are revoked.
func (e *Engine) ActivateTrial(ctx context.Context, userID models.UserID) (*Activation, error) {
	plan, ok := e.catalog.Trial()
	if !ok {
		return nil, apperrors.UnknownPlan("trial")
	}

	release, err := e.lockUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	defer release()

	user, err := e.repo.UserByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user.TestUsed {
		return nil, apperrors.AlreadyUsed("trial has already been activated")
	}

	now := e.clock()
	if _, err := e.repo.ActiveSubscription(ctx, userID, now); err == nil {
		return nil, apperrors.Conflict("user already has an active subscription")
	} else if !isNotFound(err) {
		return nil, err
	}

	existing, err := e.repo.UserAccessKeys(ctx, userID)
	if err != nil {
		return nil, err
	}

	expiresAt := now.Add(plan.Duration())
	kp, err := e.provisionKeys(ctx, user, existing, 0, 1, expiresAt)
	if err != nil {
		return nil, err
	}

	sub := &models.Subscription{
		SubscriptionID: uuid.NewString(),
		UserID:         userID,
		PlanID:         plan.ID,
		Status:         models.SubscriptionActive,
		ExpiresAt:      &expiresAt,
		CreatedAt:      now,
	}

	err = e.repo.RunInTx(ctx, func(ctx context.Context) error {
		if err := e.repo.CreateSubscription(ctx, sub); err != nil {
			return err
		}
		if _, err := e.repo.DeactivateSubscriptions(ctx, userID, sub.ID); err != nil {
			return err
		}
		if err := e.commit(ctx, kp, sub.ID, now); err != nil {
			return err
		}
		return e.repo.MarkTrialUsed(ctx, userID)
	})
	if err != nil {
		e.rollbackKeys(ctx, kp.created)
		return nil, fmt.Errorf("failed to activate trial: %w", err)
	}

	e.revokeExtra(ctx, kp.extra)
	user.TestUsed = true

	e.logger.Info("trial activated", "user_id", userID, "subscription_id", sub.SubscriptionID, "expires_at", expiresAt)

	return &Activation{
		User:         user,
		Subscription: sub,
		Plan:         plan,
		Keys:         kp.live(),
	}, nil
}
