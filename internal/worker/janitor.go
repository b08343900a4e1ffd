package worker

import (
	"context"
	"log/slog"
	"time"

	"vpnbot/internal/lifecycle"
	"vpnbot/internal/models"
	"vpnbot/internal/repository"
)

type StaleResolver interface {
	CancelStalePayment(ctx context.Context, paymentID string) (*lifecycle.StaleResolution, error)
}

// PendingJanitor settles checkouts left pending for longer than ttl.
type PendingJanitor struct {
	repo     repository.Gateway
	resolver StaleResolver
	notifier Notifier
	ttl      time.Duration
	logger   *slog.Logger
	now      clock
}

func NewPendingJanitor(repo repository.Gateway, resolver StaleResolver, notifier Notifier, ttl time.Duration, logger *slog.Logger) *PendingJanitor {
	return &PendingJanitor{
		repo:     repo,
		resolver: resolver,
		notifier: notifier,
		ttl:      ttl,
		logger:   logger,
	}
}

func (j *PendingJanitor) Sweep(ctx context.Context) (*SweepResult, error) {
	stale, err := j.repo.StalePendingPayments(ctx, j.now.now().Add(-j.ttl))
	if err != nil {
		return nil, err
	}

	result := &SweepResult{Scanned: len(stale)}
	for _, p := range stale {
		res, err := j.resolver.CancelStalePayment(ctx, p.PaymentID)
		if err != nil {
			j.logger.Warn("failed to settle stale payment", "payment_id", p.PaymentID, "error", err)
			result.Failures = append(result.Failures, ItemFailure{ID: p.PaymentID, Err: err})
			continue
		}
		if res.Outcome == lifecycle.StalePending {
			j.logger.Debug("stale payment still pending at provider", "payment_id", p.PaymentID)
			continue
		}
		result.Changed++

		if err := j.announce(ctx, p.UserID, p.PaymentID, res); err != nil {
			j.logger.Warn("failed to notify about settled payment", "payment_id", p.PaymentID, "error", err)
		}
	}

	if result.Scanned > 0 {
		j.logger.Info("stale checkouts settled", "scanned", result.Scanned, "settled", result.Changed, "failures", len(result.Failures))
	}
	return result, nil
}

func (j *PendingJanitor) announce(ctx context.Context, userID models.UserID, paymentID string, res *lifecycle.StaleResolution) error {
	switch res.Outcome {
	case lifecycle.StaleConfirmed:
		if res.Activation == nil {
			return nil
		}
		return j.notifier.PaymentConfirmed(ctx, res.Activation)
	case lifecycle.StaleCanceled:
		user, err := j.repo.UserByID(ctx, userID)
		if err != nil {
			return err
		}
		return j.notifier.PaymentCanceled(ctx, user.TelegramID, paymentID)
	}
	return nil
}
