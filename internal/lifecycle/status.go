package lifecycle

import (
	"context"

	"vpnbot/internal/models"
	"vpnbot/internal/plans"
)

type StatusReport struct {
	User *models.User
	// Subscription is nil without an active subscription.
	Subscription *models.Subscription
	PlanName     string
	Plan         plans.Plan
	Keys         []models.AccessKey
}

func (e *Engine) Status(ctx context.Context, userID models.UserID) (*StatusReport, error) {
	user, err := e.repo.UserByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	keys, err := e.repo.UserAccessKeys(ctx, userID)
	if err != nil {
		return nil, err
	}

	report := &StatusReport{User: user, Keys: keys}

	sub, err := e.repo.ActiveSubscription(ctx, userID, e.clock())
	if isNotFound(err) {
		return report, nil
	}
	if err != nil {
		return nil, err
	}
	report.Subscription = sub
	report.PlanName = e.catalog.DisplayName(sub.PlanID)
	report.Plan, _ = e.catalog.Get(sub.PlanID)
	return report, nil
}
