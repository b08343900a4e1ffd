package lifecycle

import (
	"context"
	"time"

	"vpnbot/internal/models"
	"vpnbot/internal/outline"
)

// keyPlan is the set of provider-side changes made for one activation. The
// database side is applied by commit.
type keyPlan struct {
	renewed []models.AccessKey
	created []models.AccessKey
	// gone were missing on the server during renewal.
	gone []models.AccessKey
	// extra exceed the device limit and are revoked after commit.
	extra []models.AccessKey
}

func (kp *keyPlan) live() []models.AccessKey {
	out := make([]models.AccessKey, 0, len(kp.renewed)+len(kp.created))
	out = append(out, kp.renewed...)
	return append(out, kp.created...)
}

// provisionKeys renews up to keep existing keys in place, creates create new
// keys plus one replacement for every renewed key the server no longer has,
// and marks the remaining existing keys as extra. On failure every key created
// here is deleted again.
func (e *Engine) provisionKeys(
	ctx context.Context,
	user *models.User,
	existing []models.AccessKey,
	keep, create int,
	expiresAt time.Time,
) (*keyPlan, error) {
	kp := &keyPlan{}
	if keep > len(existing) {
		keep = len(existing)
	}
	if keep < 0 {
		keep = 0
	}
	kp.extra = append(kp.extra, existing[keep:]...)

	device := 0
	for _, key := range existing[:keep] {
		device++
		name := outline.KeyName(deviceName(user.TelegramID, device), expiresAt)
		err := e.renewKey(ctx, key.KeyID, name)
		switch {
		case err == nil:
			key.Name = name
			kp.renewed = append(kp.renewed, key)
		case isNotFound(err):
			e.logger.Warn("renewed key missing on server, replacing", "key_id", key.KeyID, "user_id", user.ID)
			kp.gone = append(kp.gone, key)
			device--
			create++
		default:
			return nil, providerErr("outline", err)
		}
	}

	for i := 0; i < create; i++ {
		device++
		created, err := e.keys.CreateKey(ctx, outline.KeyName(deviceName(user.TelegramID, device), expiresAt))
		if err != nil {
			e.rollbackKeys(ctx, kp.created)
			return nil, providerErr("outline", err)
		}
		kp.created = append(kp.created, models.AccessKey{
			KeyID:     created.ID,
			Name:      created.Name,
			AccessURL: created.AccessURL,
			UserID:    user.ID,
			CreatedAt: e.clock(),
		})
	}

	return kp, nil
}

// renewKey renames the key and lifts any suspension, keeping its access URL.
func (e *Engine) renewKey(ctx context.Context, keyID, name string) error {
	if err := e.keys.RenameKey(ctx, keyID, name); err != nil {
		return err
	}
	return e.keys.RemoveDataLimit(ctx, keyID)
}

// commit applies the key plan for subscription subID. Must run inside a
// transaction.
func (e *Engine) commit(ctx context.Context, kp *keyPlan, subID uint, at time.Time) error {
	for i := range kp.renewed {
		kp.renewed[i].SubscriptionID = subID
		if err := e.repo.UpdateAccessKey(ctx, &kp.renewed[i]); err != nil {
			return err
		}
	}
	for i := range kp.created {
		kp.created[i].SubscriptionID = subID
		if err := e.repo.CreateAccessKey(ctx, &kp.created[i]); err != nil {
			return err
		}
	}
	for _, key := range append(kp.gone, kp.extra...) {
		if _, err := e.repo.MarkKeyDeleted(ctx, key.KeyID, at); err != nil {
			return err
		}
	}
	return nil
}

// rollbackKeys deletes keys created by a failed operation. Best effort: a key
// that cannot be deleted is logged and later left to the operator.
func (e *Engine) rollbackKeys(ctx context.Context, keys []models.AccessKey) {
	for _, key := range keys {
		if err := e.keys.DeleteKey(ctx, key.KeyID); err != nil && !isNotFound(err) {
			e.logger.Error("failed to roll back created key", "key_id", key.KeyID, "error", err)
		}
	}
}

// revokeExtra deletes keys above the device limit on the server. They are
// already tombstoned locally.
func (e *Engine) revokeExtra(ctx context.Context, keys []models.AccessKey) {
	for _, key := range keys {
		if err := e.keys.DeleteKey(ctx, key.KeyID); err != nil && !isNotFound(err) {
			e.logger.Warn("failed to revoke key above device limit", "key_id", key.KeyID, "error", err)
		}
	}
}
