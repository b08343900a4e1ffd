package worker

import (
	"context"
	"log/slog"
	"time"

	"vpnbot/internal/models"
	"vpnbot/internal/plans"
	"vpnbot/internal/repository"
)

const reminderMarkTTL = 48 * time.Hour

type NotifyResult struct {
	Candidates int
	Sent       int
	// Skipped were already reminded within the mark TTL.
	Skipped  int
	Failures []ItemFailure
}

// ExpiryNotifier reminds users whose subscription expires in days days. The
// scan window is [now+days, now+days+1d); a redis mark per subscription keeps
// overlapping runs from sending the reminder twice.
type ExpiryNotifier struct {
	repo     repository.Gateway
	catalog  *plans.Catalog
	notifier Notifier
	marks    Marks
	days     int
	logger   *slog.Logger
	now      clock
}

func NewExpiryNotifier(
	repo repository.Gateway,
	catalog *plans.Catalog,
	notifier Notifier,
	marks Marks,
	days int,
	logger *slog.Logger,
) *ExpiryNotifier {
	return &ExpiryNotifier{
		repo:     repo,
		catalog:  catalog,
		notifier: notifier,
		marks:    marks,
		days:     days,
		logger:   logger,
	}
}

// Window returns the half-open scan window for the given instant.
func (n *ExpiryNotifier) Window(now time.Time) (time.Time, time.Time) {
	from := now.Add(time.Duration(n.days) * 24 * time.Hour)
	return from, from.Add(24 * time.Hour)
}

func (n *ExpiryNotifier) Notify(ctx context.Context) (*NotifyResult, error) {
	from, to := n.Window(n.now.now())

	subs, err := n.repo.ExpiringSubscriptions(ctx, from, to)
	if err != nil {
		return nil, err
	}

	result := &NotifyResult{Candidates: len(subs)}
	for _, sub := range subs {
		markKey := "expiry:" + sub.SubscriptionID
		if n.marks != nil {
			fresh, err := n.marks.Mark(ctx, markKey, reminderMarkTTL)
			if err != nil {
				n.logger.Warn("failed to set reminder mark, sending anyway", "subscription_id", sub.SubscriptionID, "error", err)
			} else if !fresh {
				result.Skipped++
				continue
			}
		}

		if err := n.remind(ctx, sub); err != nil {
			n.logger.Warn("failed to send expiry reminder", "subscription_id", sub.SubscriptionID, "user_id", sub.UserID, "error", err)
			result.Failures = append(result.Failures, ItemFailure{ID: sub.SubscriptionID, Err: err})
			if n.marks != nil {
				if err := n.marks.Unmark(ctx, markKey); err != nil {
					n.logger.Warn("failed to clear reminder mark", "subscription_id", sub.SubscriptionID, "error", err)
				}
			}
			continue
		}
		result.Sent++
	}

	n.logger.Info("expiry reminders sent",
		"window_from", from,
		"window_to", to,
		"candidates", result.Candidates,
		"sent", result.Sent,
		"skipped", result.Skipped,
		"failures", len(result.Failures),
	)
	return result, nil
}

func (n *ExpiryNotifier) remind(ctx context.Context, sub models.Subscription) error {
	user, err := n.repo.UserByID(ctx, sub.UserID)
	if err != nil {
		return err
	}
	return n.notifier.ExpiryReminder(ctx, user.TelegramID, sub, n.catalog.DisplayName(sub.PlanID))
}

// Expirer ends lapsed subscriptions.
type Expirer interface {
	ExpireSubscription(ctx context.Context, subscriptionID uint) (bool, error)
}

type SweepResult struct {
	Scanned  int
	Changed  int
	Failures []ItemFailure
}

// ExpirySweeper deactivates subscriptions whose expiry has passed and tells
// their owners.
type ExpirySweeper struct {
	repo     repository.Gateway
	engine   Expirer
	catalog  *plans.Catalog
	notifier Notifier
	logger   *slog.Logger
	now      clock
}

func NewExpirySweeper(repo repository.Gateway, engine Expirer, catalog *plans.Catalog, notifier Notifier, logger *slog.Logger) *ExpirySweeper {
	return &ExpirySweeper{
		repo:     repo,
		engine:   engine,
		catalog:  catalog,
		notifier: notifier,
		logger:   logger,
	}
}

func (s *ExpirySweeper) Sweep(ctx context.Context) (*SweepResult, error) {
	subs, err := s.repo.ExpiredActiveSubscriptions(ctx, s.now.now())
	if err != nil {
		return nil, err
	}

	result := &SweepResult{Scanned: len(subs)}
	for _, sub := range subs {
		expired, err := s.engine.ExpireSubscription(ctx, sub.ID)
		if err != nil {
			s.logger.Warn("failed to expire subscription", "subscription_id", sub.SubscriptionID, "error", err)
			result.Failures = append(result.Failures, ItemFailure{ID: sub.SubscriptionID, Err: err})
			continue
		}
		if !expired {
			continue
		}
		result.Changed++

		user, err := s.repo.UserByID(ctx, sub.UserID)
		if err != nil {
			s.logger.Warn("failed to load user for expiry notice", "user_id", sub.UserID, "error", err)
			continue
		}
		if err := s.notifier.SubscriptionExpired(ctx, user.TelegramID, s.catalog.DisplayName(sub.PlanID)); err != nil {
			s.logger.Warn("failed to send expiry notice", "telegram_id", user.TelegramID, "error", err)
		}
	}

	if result.Scanned > 0 {
		s.logger.Info("expired subscriptions processed", "scanned", result.Scanned, "expired", result.Changed, "failures", len(result.Failures))
	}
	return result, nil
}
