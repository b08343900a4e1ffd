// Package lifecycle turns plan choices and payment outcomes into subscription
// and access key state. Every operation holds a per-user lock and commits its
// database writes in one transaction.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"vpnbot/internal/apperrors"
	"vpnbot/internal/models"
	"vpnbot/internal/outline"
	"vpnbot/internal/payment"
	"vpnbot/internal/plans"
	"vpnbot/internal/repository"
)

const lockWait = 15 * time.Second

// KeyProvider manages access keys on the VPN server.
type KeyProvider interface {
	CreateKey(ctx context.Context, name string) (*outline.AccessKey, error)
	DeleteKey(ctx context.Context, id string) error
	RenameKey(ctx context.Context, id, name string) error
	SetDataLimit(ctx context.Context, id string, bytes int64) error
	RemoveDataLimit(ctx context.Context, id string) error
}

// PaymentProvider creates and inspects charges.
type PaymentProvider interface {
	CreatePayment(ctx context.Context, in payment.CreatePaymentInput) (*payment.PaymentResponse, error)
	FindPayment(ctx context.Context, paymentID string) (*payment.PaymentResponse, error)
}

// Locker serialises operations across processes.
type Locker interface {
	Lock(ctx context.Context, key string) (func(), error)
}

type Engine struct {
	repo     repository.Gateway
	keys     KeyProvider
	payments PaymentProvider
	catalog  *plans.Catalog
	locker   Locker
	logger   *slog.Logger
	now      func() time.Time
}

type Option func(*Engine)

// WithClock replaces the wall clock.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

func NewEngine(
	repo repository.Gateway,
	keys KeyProvider,
	payments PaymentProvider,
	catalog *plans.Catalog,
	locker Locker,
	logger *slog.Logger,
	opts ...Option,
) *Engine {
	e := &Engine{
		repo:     repo,
		keys:     keys,
		payments: payments,
		catalog:  catalog,
		locker:   locker,
		logger:   logger,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Catalog exposes the plan catalog the engine sells from.
func (e *Engine) Catalog() *plans.Catalog {
	return e.catalog
}

// Activation describes the state after a subscription became active.
type Activation struct {
	User         *models.User
	Subscription *models.Subscription
	Plan         plans.Plan
	Keys         []models.AccessKey
	// AlreadyConfirmed is set when the payment had been confirmed earlier and
	// nothing changed.
	AlreadyConfirmed bool
}

func (e *Engine) clock() time.Time {
	return e.now().UTC()
}

func (e *Engine) lockUser(ctx context.Context, id models.UserID) (func(), error) {
	lockCtx, cancel := context.WithTimeout(ctx, lockWait)
	defer cancel()

	release, err := e.locker.Lock(lockCtx, fmt.Sprintf("lifecycle:user:%d", id))
	if err != nil {
		return nil, fmt.Errorf("failed to lock user %d: %w", id, err)
	}
	return release, nil
}

// providerErr keeps typed provider errors and classifies anything else as an
// outage of the named provider.
func providerErr(provider string, err error) error {
	if apperrors.KindOf(err) != "" {
		return err
	}
	return apperrors.ProviderUnavailable(provider, err)
}

func isNotFound(err error) bool {
	return errors.Is(err, apperrors.ErrNotFound)
}

func deviceName(tg models.TelegramID, device int) string {
	return fmt.Sprintf("tg%d-dev%d", tg, device)
}

// nextDevice returns a device number not used by any of keys.
func nextDevice(tg models.TelegramID, keys []models.AccessKey) int {
	prefix := fmt.Sprintf("tg%d-dev", tg)
	highest := len(keys)
	for _, k := range keys {
		rest, ok := strings.CutPrefix(k.Name, prefix)
		if !ok {
			continue
		}
		end := strings.IndexFunc(rest, func(r rune) bool { return r < '0' || r > '9' })
		if end < 0 {
			end = len(rest)
		}
		if n, err := strconv.Atoi(rest[:end]); err == nil && n > highest {
			highest = n
		}
	}
	return highest + 1
}
