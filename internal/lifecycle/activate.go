package lifecycle

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"vpnbot/internal/apperrors"
	"vpnbot/internal/models"
	"vpnbot/internal/plans"
)

// activatePlan makes sub the user's only active subscription for plan and
// provisions keys up to the plan's device limit, renewing existing keys in
// place first. A sub with zero ID is created. When paymentID is set the
// payment is completed in the same transaction. Caller holds the user lock.
func (e *Engine) activatePlan(
	ctx context.Context,
	user *models.User,
	sub *models.Subscription,
	plan plans.Plan,
	paymentID string,
) (*Activation, error) {
	now := e.clock()
	expiresAt := now.Add(plan.Duration())

	existing, err := e.repo.UserAccessKeys(ctx, user.ID)
	if err != nil {
		return nil, err
	}

	create := plan.Devices - len(existing)
	if create < 0 {
		create = 0
	}
	kp, err := e.provisionKeys(ctx, user, existing, plan.Devices, create, expiresAt)
	if err != nil {
		return nil, err
	}

	err = e.repo.RunInTx(ctx, func(ctx context.Context) error {
		if paymentID != "" {
			moved, err := e.repo.CompletePayment(ctx, paymentID, models.PaymentSucceeded, now)
			if err != nil {
				return err
			}
			if !moved {
				return apperrors.Conflict(fmt.Sprintf("payment %s is no longer pending", paymentID))
			}
		}

		sub.Status = models.SubscriptionActive
		sub.ExpiresAt = &expiresAt
		sub.PlanID = plan.ID
		if sub.ID == 0 {
			sub.SubscriptionID = uuid.NewString()
			sub.UserID = user.ID
			sub.CreatedAt = now
			if err := e.repo.CreateSubscription(ctx, sub); err != nil {
				return err
			}
		} else if err := e.repo.UpdateSubscription(ctx, sub); err != nil {
			return err
		}

		if _, err := e.repo.DeactivateSubscriptions(ctx, user.ID, sub.ID); err != nil {
			return err
		}
		if err := e.commit(ctx, kp, sub.ID, now); err != nil {
			return err
		}
		return e.repo.SetPremium(ctx, user.ID, true)
	})
	if err != nil {
		e.rollbackKeys(ctx, kp.created)
		return nil, fmt.Errorf("failed to activate subscription: %w", err)
	}

	e.revokeExtra(ctx, kp.extra)
	user.IsPremium = true

	e.logger.Info("subscription activated",
		"user_id", user.ID,
		"subscription_id", sub.SubscriptionID,
		"plan", plan.ID,
		"renewed", len(kp.renewed),
		"created", len(kp.created),
		"revoked", len(kp.extra),
	)

	return &Activation{
		User:         user,
		Subscription: sub,
		Plan:         plan,
		Keys:         kp.live(),
	}, nil
}

// GrantPlan activates a plan without payment. Used by operators.
func (e *Engine) GrantPlan(ctx context.Context, userID models.UserID, planID string) (*Activation, error) {
	plan, ok := e.catalog.Get(planID)
	if !ok || plan.Trial {
		return nil, apperrors.UnknownPlan(planID)
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

	return e.activatePlan(ctx, user, &models.Subscription{}, plan, "")
}
