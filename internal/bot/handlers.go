package bot

import (
	"context"
	"errors"
	"strings"

	tu "github.com/mymmrac/telego/telegoutil"

	"vpnbot/internal/apperrors"
	"vpnbot/internal/models"
)

func (b *Bot) startReply(ctx context.Context, req request) (*reply, error) {
	user, err := b.user(ctx, req)
	if err != nil {
		return nil, err
	}
	report, err := b.engine.Status(ctx, user.ID)
	if err != nil {
		return nil, err
	}
	return &reply{
		Text:   welcomeText(user),
		Markup: menuKeyboard(report.Subscription != nil, b.trialAvailable(user), req.IsAdmin),
	}, nil
}

func (b *Bot) helpReply(_ context.Context, _ request) (*reply, error) {
	return &reply{Text: helpText, Markup: tu.InlineKeyboard(backRow())}, nil
}

func (b *Bot) statusReply(ctx context.Context, req request) (*reply, error) {
	user, err := b.user(ctx, req)
	if err != nil {
		return nil, err
	}
	report, err := b.engine.Status(ctx, user.ID)
	if err != nil {
		return nil, err
	}
	return &reply{
		Text:   statusText(report, b.now()),
		Markup: menuKeyboard(report.Subscription != nil, b.trialAvailable(user), req.IsAdmin),
	}, nil
}

func (b *Bot) plansReply(ctx context.Context, req request) (*reply, error) {
	user, err := b.user(ctx, req)
	if err != nil {
		return nil, err
	}
	return &reply{
		Text:   plansText(b.catalog, b.trialAvailable(user)),
		Markup: plansKeyboard(b.catalog, b.trialAvailable(user)),
	}, nil
}

func (b *Bot) keysReply(ctx context.Context, req request) (*reply, error) {
	user, err := b.user(ctx, req)
	if err != nil {
		return nil, err
	}
	report, err := b.engine.Status(ctx, user.ID)
	if err != nil {
		return nil, err
	}
	return &reply{Text: keysText(report), Markup: keysKeyboard(report)}, nil
}

func (b *Bot) trialReply(ctx context.Context, req request) (*reply, error) {
	user, err := b.user(ctx, req)
	if err != nil {
		return nil, err
	}
	act, err := b.engine.ActivateTrial(ctx, user.ID)
	if err != nil {
		return nil, err
	}
	return &reply{Text: activationText(act), Markup: activationKeyboard()}, nil
}

func (b *Bot) buyReply(ctx context.Context, req request) (*reply, error) {
	planID := strings.TrimPrefix(req.Text, cbBuy)
	user, err := b.user(ctx, req)
	if err != nil {
		return nil, err
	}
	checkout, err := b.engine.StartPaidCheckout(ctx, user.ID, planID)
	if err != nil {
		return nil, err
	}
	return &reply{Text: checkoutText(checkout), Markup: checkoutKeyboard(checkout)}, nil
}

func (b *Bot) checkReply(ctx context.Context, req request) (*reply, error) {
	paymentID := strings.TrimPrefix(req.Text, cbCheck)
	user, err := b.user(ctx, req)
	if err != nil {
		return nil, err
	}
	p, err := b.users.PaymentByProviderID(ctx, paymentID)
	if err != nil {
		return nil, err
	}
	if p.UserID != user.ID {
		return nil, apperrors.NotFound("payment", paymentID)
	}

	act, err := b.engine.ConfirmPayment(ctx, paymentID)
	if err != nil {
		if errors.Is(err, apperrors.ErrPaymentNotConfirmed) && p.Status == models.PaymentPending {
			return &reply{Text: errorText(err), Markup: retryCheckKeyboard(paymentID)}, nil
		}
		if errors.Is(err, apperrors.ErrProviderUnavailable) {
			return &reply{Text: errorText(err), Markup: retryCheckKeyboard(paymentID)}, nil
		}
		return nil, err
	}
	return &reply{Text: activationText(act), Markup: activationKeyboard()}, nil
}

func (b *Bot) addKeyReply(ctx context.Context, req request) (*reply, error) {
	user, err := b.user(ctx, req)
	if err != nil {
		return nil, err
	}
	key, err := b.engine.AddDevice(ctx, user.ID)
	if err != nil {
		return nil, err
	}
	return b.renderKey(key), nil
}

func (b *Bot) keyReply(ctx context.Context, req request) (*reply, error) {
	keyID := strings.TrimPrefix(req.Text, cbKey)
	user, err := b.user(ctx, req)
	if err != nil {
		return nil, err
	}
	key, err := b.users.AccessKeyByKeyID(ctx, keyID)
	if err != nil {
		return nil, err
	}
	if key.UserID != user.ID || key.Deleted {
		return nil, apperrors.NotFound("access key", keyID)
	}
	return b.renderKey(key), nil
}

func (b *Bot) deleteKeyReply(ctx context.Context, req request) (*reply, error) {
	keyID := strings.TrimPrefix(req.Text, cbDelKey)
	user, err := b.user(ctx, req)
	if err != nil {
		return nil, err
	}
	if err := b.engine.RevokeKey(ctx, user.ID, keyID); err != nil {
		return nil, err
	}
	report, err := b.engine.Status(ctx, user.ID)
	if err != nil {
		return nil, err
	}
	return &reply{Text: "🗑 Ключ удалён.\n\n" + keysText(report), Markup: keysKeyboard(report)}, nil
}

func (b *Bot) renderKey(key *models.AccessKey) *reply {
	r := &reply{
		Text: keyText(key),
		Markup: tu.InlineKeyboard(
			tu.InlineKeyboardRow(tu.InlineKeyboardButton("« К ключам").WithCallbackData(cbKeys)),
		),
	}
	png, err := renderQR(key.AccessURL)
	if err != nil {
		b.logger.Warn("failed to render key qr", "key_id", key.KeyID, "error", err)
		return r
	}
	r.Photo = png
	return r
}

func (b *Bot) trialAvailable(user *models.User) bool {
	_, ok := b.catalog.Trial()
	return ok && !user.TestUsed
}
