package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"

	"vpnbot/internal/apperrors"
	"vpnbot/internal/outline"
	"vpnbot/internal/repository"
)

type KeyLister interface {
	ListKeys(ctx context.Context) ([]outline.AccessKey, error)
}

type SyncResult struct {
	ProviderKeys int
	LocalKeys    int
	// Deleted lists keys tombstoned by this run.
	Deleted  []string
	Failures []ItemFailure
}

// Reconciler tombstones local keys that no longer exist on the VPN server.
type Reconciler struct {
	repo       repository.Gateway
	keys       KeyLister
	logger     *slog.Logger
	now        clock
	newBackOff func() backoff.BackOff
}

func NewReconciler(repo repository.Gateway, keys KeyLister, logger *slog.Logger) *Reconciler {
	return &Reconciler{
		repo:   repo,
		keys:   keys,
		logger: logger,
		newBackOff: func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = time.Second
			return backoff.WithMaxRetries(b, 2)
		},
	}
}

// SyncKeys compares the server inventory with local keys. If the inventory
// cannot be fetched nothing is deleted. Local keys are read before the
// inventory so a key provisioned during the fetch is never treated as missing.
func (r *Reconciler) SyncKeys(ctx context.Context) (*SyncResult, error) {
	local, err := r.repo.AllLiveAccessKeys(ctx)
	if err != nil {
		return nil, err
	}

	inventory, err := backoff.RetryWithData(func() ([]outline.AccessKey, error) {
		keys, err := r.keys.ListKeys(ctx)
		if err != nil && !errors.Is(err, apperrors.ErrProviderUnavailable) {
			return nil, backoff.Permanent(err)
		}
		return keys, err
	}, backoff.WithContext(r.newBackOff(), ctx))
	if err != nil {
		return nil, fmt.Errorf("failed to fetch key inventory: %w", err)
	}

	onServer := make(map[string]struct{}, len(inventory))
	for _, k := range inventory {
		onServer[k.ID] = struct{}{}
	}

	result := &SyncResult{ProviderKeys: len(inventory), LocalKeys: len(local)}
	now := r.now.now()
	for _, key := range local {
		if _, ok := onServer[key.KeyID]; ok {
			continue
		}
		changed, err := r.repo.MarkKeyDeleted(ctx, key.KeyID, now)
		if err != nil {
			r.logger.Warn("failed to mark missing key deleted", "key_id", key.KeyID, "error", err)
			result.Failures = append(result.Failures, ItemFailure{ID: key.KeyID, Err: err})
			continue
		}
		if changed {
			result.Deleted = append(result.Deleted, key.KeyID)
		}
	}

	r.logger.Info("key reconciliation finished",
		"server_keys", result.ProviderKeys,
		"local_keys", result.LocalKeys,
		"deleted", len(result.Deleted),
		"failures", len(result.Failures),
	)
	return result, nil
}
