package lifecycle

import (
	"context"
	"fmt"

	"vpnbot/internal/apperrors"
	"vpnbot/internal/models"
	"vpnbot/internal/outline"
)

// AddDevice issues one more key under the user's active subscription.
func (e *Engine) AddDevice(ctx context.Context, userID models.UserID) (*models.AccessKey, error) {
	release, err := e.lockUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	defer release()

	user, err := e.repo.UserByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	sub, err := e.repo.ActiveSubscription(ctx, userID, e.clock())
	if err != nil {
		return nil, err
	}
	plan, ok := e.catalog.Get(sub.PlanID)
	if !ok {
		return nil, apperrors.UnknownPlan(sub.PlanID)
	}

	keys, err := e.repo.UserAccessKeys(ctx, userID)
	if err != nil {
		return nil, err
	}
	if len(keys) >= plan.Devices {
		return nil, apperrors.Conflict(fmt.Sprintf("device limit of %d reached", plan.Devices))
	}

	created, err := e.keys.CreateKey(ctx, outline.KeyName(deviceName(user.TelegramID, nextDevice(user.TelegramID, keys)), *sub.ExpiresAt))
	if err != nil {
		return nil, providerErr("outline", err)
	}

	key := &models.AccessKey{
		KeyID:          created.ID,
		Name:           created.Name,
		AccessURL:      created.AccessURL,
		UserID:         userID,
		SubscriptionID: sub.ID,
		CreatedAt:      e.clock(),
	}
	if err := e.repo.CreateAccessKey(ctx, key); err != nil {
		e.rollbackKeys(ctx, []models.AccessKey{*key})
		return nil, err
	}

	e.logger.Info("device added", "user_id", userID, "key_id", key.KeyID)
	return key, nil
}

// RevokeKey deletes one of the user's keys on the server and locally.
func (e *Engine) RevokeKey(ctx context.Context, userID models.UserID, keyID string) error {
	release, err := e.lockUser(ctx, userID)
	if err != nil {
		return err
	}
	defer release()

	key, err := e.repo.AccessKeyByKeyID(ctx, keyID)
	if err != nil {
		return err
	}
	if key.UserID != userID || key.Deleted {
		return apperrors.NotFound("access key", keyID)
	}

	if err := e.keys.DeleteKey(ctx, keyID); err != nil && !isNotFound(err) {
		return providerErr("outline", err)
	}
	if _, err := e.repo.MarkKeyDeleted(ctx, keyID, e.clock()); err != nil {
		return err
	}

	e.logger.Info("key revoked", "user_id", userID, "key_id", keyID)
	return nil
}
