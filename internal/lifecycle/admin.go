package lifecycle

import (
	"context"
	"fmt"

	"vpnbot/internal/models"
)

type KeyFailure struct {
	KeyID string
	Err   error
}

// DeactivationReport lists what a deactivation did. Keys in Failures could not
// be deleted on the server but are deleted locally all the same.
type DeactivationReport struct {
	KeysRevoked              int
	SubscriptionsDeactivated int64
	Failures                 []KeyFailure
}

// DeactivateUser revokes every key of the user and deactivates all of their
// subscriptions. Provider failures are collected per key and never abort the
// local cleanup.
func (e *Engine) DeactivateUser(ctx context.Context, userID models.UserID) (*DeactivationReport, error) {
	release, err := e.lockUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	defer release()

	if _, err := e.repo.UserByID(ctx, userID); err != nil {
		return nil, err
	}

	keys, err := e.repo.UserAccessKeys(ctx, userID)
	if err != nil {
		return nil, err
	}

	report := &DeactivationReport{}
	for _, key := range keys {
		if err := e.keys.DeleteKey(ctx, key.KeyID); err != nil && !isNotFound(err) {
			e.logger.Warn("failed to delete key on server", "user_id", userID, "key_id", key.KeyID, "error", err)
			report.Failures = append(report.Failures, KeyFailure{KeyID: key.KeyID, Err: err})
		}
	}

	now := e.clock()
	err = e.repo.RunInTx(ctx, func(ctx context.Context) error {
		for _, key := range keys {
			changed, err := e.repo.MarkKeyDeleted(ctx, key.KeyID, now)
			if err != nil {
				return err
			}
			if changed {
				report.KeysRevoked++
			}
		}
		n, err := e.repo.DeactivateSubscriptions(ctx, userID, 0)
		if err != nil {
			return err
		}
		report.SubscriptionsDeactivated = n
		return e.repo.SetPremium(ctx, userID, false)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to deactivate user %d: %w", userID, err)
	}

	e.logger.Info("user deactivated",
		"user_id", userID,
		"keys", report.KeysRevoked,
		"subscriptions", report.SubscriptionsDeactivated,
		"failures", len(report.Failures),
	)
	return report, nil
}
