package lifecycle

import (
	"context"
	"fmt"
	"strconv"

	"github.com/google/uuid"

	"vpnbot/internal/apperrors"
	"vpnbot/internal/models"
	"vpnbot/internal/payment"
	"vpnbot/internal/plans"
)

// Checkout is the handle returned to the user after a paid checkout started.
type Checkout struct {
	Subscription    *models.Subscription
	Payment         *models.Payment
	Plan            plans.Plan
	ConfirmationURL string
}

// StartPaidCheckout creates a pending subscription and a provider payment for
// the plan. Keys are provisioned only after the payment is confirmed.
func (e *Engine) StartPaidCheckout(ctx context.Context, userID models.UserID, planID string) (*Checkout, error) {
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

	now := e.clock()
	sub := &models.Subscription{
		SubscriptionID: uuid.NewString(),
		UserID:         user.ID,
		PlanID:         plan.ID,
		Status:         models.SubscriptionPending,
		PricePaid:      plan.Price,
		CreatedAt:      now,
	}
	if err := e.repo.CreateSubscription(ctx, sub); err != nil {
		return nil, err
	}

	remote, err := e.payments.CreatePayment(ctx, payment.CreatePaymentInput{
		Amount:      plan.Price,
		Description: fmt.Sprintf("VPN: %s", plan.Name),
		Metadata: map[string]string{
			payment.MetaSubscriptionID: sub.SubscriptionID,
			payment.MetaUserID:         strconv.FormatUint(uint64(user.ID), 10),
			payment.MetaPlanID:         plan.ID,
		},
	})
	if err != nil {
		sub.Status = models.SubscriptionCanceled
		if uerr := e.repo.UpdateSubscription(ctx, sub); uerr != nil {
			e.logger.Error("failed to cancel subscription after payment error", "subscription_id", sub.SubscriptionID, "error", uerr)
		}
		return nil, providerErr("yookassa", err)
	}

	p := &models.Payment{
		PaymentID:      remote.ID,
		UserID:         user.ID,
		SubscriptionID: sub.SubscriptionID,
		Amount:         plan.Price,
		Currency:       remote.Amount.Currency,
		Status:         models.PaymentPending,
		ConfirmURL:     remote.ConfirmationURL(),
		CreatedAt:      now,
	}
	if p.Currency == "" {
		p.Currency = "RUB"
	}
	sub.PaymentID = &p.PaymentID

	err = e.repo.RunInTx(ctx, func(ctx context.Context) error {
		if err := e.repo.CreatePayment(ctx, p); err != nil {
			return err
		}
		return e.repo.UpdateSubscription(ctx, sub)
	})
	if err != nil {
		// the charge exists at the provider; keep enough in the log to grant it by hand
		e.logger.Error("failed to record created payment",
			"payment_id", remote.ID, "user_id", user.ID, "plan", plan.ID, "error", err)
		return nil, fmt.Errorf("failed to record payment: %w", err)
	}

	e.logger.Info("checkout started", "user_id", user.ID, "plan", plan.ID, "payment_id", p.PaymentID)

	return &Checkout{
		Subscription:    sub,
		Payment:         p,
		Plan:            plan,
		ConfirmationURL: p.ConfirmURL,
	}, nil
}

// ConfirmPayment activates the subscription behind a payment once the
// provider reports it succeeded. Calling it again for a confirmed payment
// returns the current state without side effects. A non-succeeded status
// yields ErrPaymentNotConfirmed; a canceled payment also cancels its pending
// subscription.
func (e *Engine) ConfirmPayment(ctx context.Context, paymentID string) (*Activation, error) {
	p, err := e.repo.PaymentByProviderID(ctx, paymentID)
	if err != nil {
		return nil, err
	}
	if p.Status.Terminal() {
		return e.settled(ctx, p)
	}

	release, err := e.lockUser(ctx, p.UserID)
	if err != nil {
		return nil, err
	}
	defer release()

	// another holder of the lock may have settled it meanwhile
	if p, err = e.repo.PaymentByProviderID(ctx, paymentID); err != nil {
		return nil, err
	}
	if p.Status.Terminal() {
		return e.settled(ctx, p)
	}

	remote, err := e.payments.FindPayment(ctx, paymentID)
	if err != nil {
		return nil, providerErr("yookassa", err)
	}
	if ref, ok := remote.Metadata[payment.MetaSubscriptionID]; ok && ref != p.SubscriptionID {
		return nil, apperrors.Conflict(fmt.Sprintf("payment %s belongs to subscription %s, not %s", paymentID, ref, p.SubscriptionID))
	}

	switch remote.Status {
	case payment.StatusSucceeded:
	case payment.StatusCanceled:
		if err := e.cancelPending(ctx, p); err != nil {
			return nil, err
		}
		return nil, apperrors.PaymentNotConfirmed(paymentID, remote.Status)
	default:
		return nil, apperrors.PaymentNotConfirmed(paymentID, remote.Status)
	}

	user, err := e.repo.UserByID(ctx, p.UserID)
	if err != nil {
		return nil, err
	}
	sub, err := e.repo.SubscriptionByPublicID(ctx, p.SubscriptionID)
	if err != nil {
		return nil, err
	}
	plan, ok := e.catalog.Get(sub.PlanID)
	if !ok {
		return nil, apperrors.UnknownPlan(sub.PlanID)
	}

	return e.activatePlan(ctx, user, sub, plan, paymentID)
}

// settled reports the outcome of a payment that reached a terminal status.
func (e *Engine) settled(ctx context.Context, p *models.Payment) (*Activation, error) {
	if p.Status == models.PaymentCanceled {
		e.checkLatePayment(ctx, p)
	}
	if p.Status != models.PaymentSucceeded {
		return nil, apperrors.PaymentNotConfirmed(p.PaymentID, string(p.Status))
	}

	user, err := e.repo.UserByID(ctx, p.UserID)
	if err != nil {
		return nil, err
	}
	sub, err := e.repo.SubscriptionByPublicID(ctx, p.SubscriptionID)
	if err != nil {
		return nil, err
	}
	keys, err := e.repo.SubscriptionAccessKeys(ctx, sub.ID)
	if err != nil {
		return nil, err
	}
	plan, _ := e.catalog.Get(sub.PlanID)

	return &Activation{
		User:             user,
		Subscription:     sub,
		Plan:             plan,
		Keys:             keys,
		AlreadyConfirmed: true,
	}, nil
}

// checkLatePayment asks the provider about a locally canceled payment. A
// payment that succeeded anyway is never activated automatically; it is
// logged for an operator to grant the plan by hand.
func (e *Engine) checkLatePayment(ctx context.Context, p *models.Payment) {
	remote, err := e.payments.FindPayment(ctx, p.PaymentID)
	if err != nil {
		e.logger.Warn("failed to recheck canceled payment", "payment_id", p.PaymentID, "error", err)
		return
	}
	if remote.Status == payment.StatusSucceeded {
		e.logger.Error("canceled payment succeeded at provider",
			"payment_id", p.PaymentID,
			"user_id", p.UserID,
			"subscription_id", p.SubscriptionID,
			"amount", p.Amount,
		)
	}
}

// cancelPending marks a pending payment and its pending subscription canceled.
func (e *Engine) cancelPending(ctx context.Context, p *models.Payment) error {
	now := e.clock()
	err := e.repo.RunInTx(ctx, func(ctx context.Context) error {
		if _, err := e.repo.CompletePayment(ctx, p.PaymentID, models.PaymentCanceled, now); err != nil {
			return err
		}
		sub, err := e.repo.SubscriptionByPublicID(ctx, p.SubscriptionID)
		if isNotFound(err) {
			return nil
		}
		if err != nil {
			return err
		}
		if sub.Status != models.SubscriptionPending {
			return nil
		}
		sub.Status = models.SubscriptionCanceled
		return e.repo.UpdateSubscription(ctx, sub)
	})
	if err != nil {
		return fmt.Errorf("failed to cancel payment %s: %w", p.PaymentID, err)
	}
	p.Status = models.PaymentCanceled
	e.logger.Info("payment canceled", "payment_id", p.PaymentID, "user_id", p.UserID)
	return nil
}

// StaleOutcome is what happened to an abandoned checkout.
type StaleOutcome string

const (
	StaleConfirmed StaleOutcome = "confirmed"
	StaleCanceled  StaleOutcome = "canceled"
	// StalePending means the provider still waits for the user; the provider
	// cancels such payments on its own and a later sweep sees that.
	StalePending StaleOutcome = "pending"
)

type StaleResolution struct {
	Outcome    StaleOutcome
	Activation *Activation
}

// CancelStalePayment settles a checkout that stayed pending for too long. The
// provider is asked first: a paid checkout is confirmed and a canceled one is
// canceled here too. A checkout the provider still holds as pending stays
// pending, since the user can still pay it. Only a payment the provider does
// not know is canceled without its word. Provider outages leave the payment
// pending for a later attempt.
func (e *Engine) CancelStalePayment(ctx context.Context, paymentID string) (*StaleResolution, error) {
	act, err := e.ConfirmPayment(ctx, paymentID)
	switch {
	case err == nil:
		if act.AlreadyConfirmed {
			return &StaleResolution{Outcome: StaleConfirmed}, nil
		}
		return &StaleResolution{Outcome: StaleConfirmed, Activation: act}, nil
	case apperrors.KindOf(err) == apperrors.KindPaymentNotConfirmed:
		p, err := e.repo.PaymentByProviderID(ctx, paymentID)
		if err != nil {
			return nil, err
		}
		if p.Status == models.PaymentCanceled {
			return &StaleResolution{Outcome: StaleCanceled}, nil
		}
		return &StaleResolution{Outcome: StalePending}, nil
	case apperrors.KindOf(err) == apperrors.KindNotFound:
		// unknown to the provider or a dangling local reference
	default:
		return nil, err
	}

	p, err := e.repo.PaymentByProviderID(ctx, paymentID)
	if err != nil {
		return nil, err
	}

	release, err := e.lockUser(ctx, p.UserID)
	if err != nil {
		return nil, err
	}
	defer release()

	if p, err = e.repo.PaymentByProviderID(ctx, paymentID); err != nil {
		return nil, err
	}
	switch p.Status {
	case models.PaymentSucceeded:
		return &StaleResolution{Outcome: StaleConfirmed}, nil
	case models.PaymentPending:
		if err := e.cancelPending(ctx, p); err != nil {
			return nil, err
		}
	}
	return &StaleResolution{Outcome: StaleCanceled}, nil
}
