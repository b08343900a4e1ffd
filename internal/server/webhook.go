package server

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"vpnbot/internal/apperrors"
	"vpnbot/internal/lifecycle"
	"vpnbot/internal/models"
	"vpnbot/internal/payment"
)

const maxWebhookBody = 64 << 10

type Confirmer interface {
	ConfirmPayment(ctx context.Context, paymentID string) (*lifecycle.Activation, error)
}

// PaymentNotifier tells the buyer how a payment ended.
type PaymentNotifier interface {
	PaymentConfirmed(ctx context.Context, act *lifecycle.Activation) error
	PaymentCanceled(ctx context.Context, tg models.TelegramID, paymentID string) error
}

// Owners resolves the buyer of a payment.
type Owners interface {
	PaymentByProviderID(ctx context.Context, paymentID string) (*models.Payment, error)
	UserByID(ctx context.Context, id models.UserID) (*models.User, error)
}

// Marks suppresses repeated cancel notices when the provider redelivers.
type Marks interface {
	Mark(ctx context.Context, key string, ttl time.Duration) (bool, error)
}

type WebhookHandler struct {
	engine   Confirmer
	owners   Owners
	notifier PaymentNotifier
	marks    Marks
	logger   *slog.Logger
}

func NewWebhookHandler(engine Confirmer, owners Owners, notifier PaymentNotifier, marks Marks, logger *slog.Logger) *WebhookHandler {
	return &WebhookHandler{
		engine:   engine,
		owners:   owners,
		notifier: notifier,
		marks:    marks,
		logger:   logger,
	}
}

// ServeHTTP answers 200 for every terminal outcome, 400 for payloads that can
// never be processed and 503 when the provider should redeliver later.
func (h *WebhookHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read body")
		return
	}

	n, err := payment.ParseNotification(body)
	if err != nil {
		h.logger.Warn("rejected payment notification", "error", err)
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	log := h.logger.With("payment_id", n.Object.ID, "event", n.Event)

	if n.Event == payment.EventWaitingForCapture {
		log.Debug("ignored payment event")
		writeOK(w)
		return
	}

	ctx := r.Context()
	act, err := h.engine.ConfirmPayment(ctx, n.Object.ID)
	switch {
	case err == nil:
		if act.AlreadyConfirmed {
			log.Info("payment already confirmed")
			break
		}
		log.Info("payment confirmed", "subscription_id", act.Subscription.SubscriptionID, "keys", len(act.Keys))
		if err := h.notifier.PaymentConfirmed(ctx, act); err != nil {
			log.Warn("failed to notify about confirmed payment", "error", err)
		}

	case errors.Is(err, apperrors.ErrPaymentNotConfirmed):
		log.Info("payment not confirmed", "reason", err)
		if n.Event == payment.EventCanceled {
			h.announceCancel(ctx, log, n.Object.ID)
		}

	case errors.Is(err, apperrors.ErrNotFound):
		log.Warn("notification for unknown payment", "error", err)

	case errors.Is(err, apperrors.ErrConflict), errors.Is(err, apperrors.ErrUnknownPlan):
		log.Error("payment cannot be applied", "error", err)

	default:
		log.Error("failed to process payment notification", "error", err)
		writeError(w, http.StatusServiceUnavailable, "temporarily unavailable")
		return
	}

	writeOK(w)
}

func (h *WebhookHandler) announceCancel(ctx context.Context, log *slog.Logger, paymentID string) {
	if h.marks != nil {
		fresh, err := h.marks.Mark(ctx, "payment:canceled:"+paymentID, 72*time.Hour)
		if err == nil && !fresh {
			return
		}
	}

	p, err := h.owners.PaymentByProviderID(ctx, paymentID)
	if err != nil {
		log.Warn("failed to load canceled payment", "error", err)
		return
	}
	if p.Status != models.PaymentCanceled {
		return
	}
	user, err := h.owners.UserByID(ctx, p.UserID)
	if err != nil {
		log.Warn("failed to load payment owner", "error", err)
		return
	}
	if err := h.notifier.PaymentCanceled(ctx, user.TelegramID, paymentID); err != nil {
		log.Warn("failed to notify about canceled payment", "error", err)
	}
}
