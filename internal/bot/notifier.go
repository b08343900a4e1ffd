package bot

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/mymmrac/telego"
	tu "github.com/mymmrac/telego/telegoutil"

	"vpnbot/internal/lifecycle"
	"vpnbot/internal/models"
)

// Sender is the part of the Telegram API the notifier needs. *telego.Bot
// satisfies it.
type Sender interface {
	SendMessage(ctx context.Context, params *telego.SendMessageParams) (*telego.Message, error)
}

// Notifier delivers messages that originate outside a chat: payment
// outcomes and expiry notices.
type Notifier struct {
	sender Sender
	logger *slog.Logger
}

func NewNotifier(sender Sender, logger *slog.Logger) *Notifier {
	return &Notifier{sender: sender, logger: logger}
}

func (n *Notifier) send(ctx context.Context, tg models.TelegramID, text string, markup *telego.InlineKeyboardMarkup) error {
	params := tu.Message(tu.ID(int64(tg)), text).WithParseMode(telego.ModeHTML)
	if markup != nil {
		params = params.WithReplyMarkup(markup)
	}
	if _, err := n.sender.SendMessage(ctx, params); err != nil {
		return fmt.Errorf("failed to send message to %d: %w", tg, err)
	}
	n.logger.Debug("notification sent", "telegram_id", tg)
	return nil
}

func (n *Notifier) ExpiryReminder(ctx context.Context, tg models.TelegramID, sub models.Subscription, planName string) error {
	return n.send(ctx, tg, expiryReminderText(sub, planName), renewKeyboard())
}

func (n *Notifier) SubscriptionExpired(ctx context.Context, tg models.TelegramID, planName string) error {
	return n.send(ctx, tg, expiredText(planName), renewKeyboard())
}

func (n *Notifier) PaymentConfirmed(ctx context.Context, act *lifecycle.Activation) error {
	return n.send(ctx, act.User.TelegramID, activationText(act), activationKeyboard())
}

func (n *Notifier) PaymentCanceled(ctx context.Context, tg models.TelegramID, paymentID string) error {
	return n.send(ctx, tg, canceledText(paymentID), tu.InlineKeyboard(
		tu.InlineKeyboardRow(tu.InlineKeyboardButton("💳 Тарифные планы").WithCallbackData(cbPlans)),
	))
}
