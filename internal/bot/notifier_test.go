package bot

import (
	"context"
	"testing"
	"time"

	"github.com/mymmrac/telego"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vpnbot/internal/lifecycle"
	"vpnbot/internal/logger"
	"vpnbot/internal/models"
	"vpnbot/internal/plans"
)

func TestNotifier(t *testing.T) {
	ctx := context.Background()
	sender := &fakeSender{fail: map[int64]bool{}}
	n := NewNotifier(sender, logger.Discard())

	expires := time.Date(2026, 9, 2, 18, 30, 0, 0, time.UTC)
	sub := models.Subscription{SubscriptionID: "s1", ExpiresAt: &expires}

	require.NoError(t, n.ExpiryReminder(ctx, 10, sub, "30 дней"))
	require.NoError(t, n.SubscriptionExpired(ctx, 11, "7 дней"))
	require.NoError(t, n.PaymentConfirmed(ctx, &lifecycle.Activation{
		User:         &models.User{TelegramID: 12},
		Subscription: &sub,
		Plan:         plans.Plan{Name: "30 дней"},
		Keys:         []models.AccessKey{{AccessURL: "ss://k"}},
	}))
	require.NoError(t, n.PaymentCanceled(ctx, 13, "pay-9"))

	msgs := sender.messages()
	require.Len(t, msgs, 4)
	for i, tg := range []int64{10, 11, 12, 13} {
		assert.Equal(t, tg, msgs[i].ChatID.ID)
		assert.Equal(t, telego.ModeHTML, msgs[i].ParseMode)
		assert.NotNil(t, msgs[i].ReplyMarkup)
	}

	assert.Contains(t, msgs[0].Text, "02.09.2026 18:30 UTC")
	reminder, ok := msgs[0].ReplyMarkup.(*telego.InlineKeyboardMarkup)
	require.True(t, ok)
	assert.Contains(t, callbacks(reminder), cbPlans, "reminder carries a renewal action")

	assert.Contains(t, msgs[1].Text, "7 дней")
	assert.Contains(t, msgs[2].Text, "ss://k")
	assert.Contains(t, msgs[3].Text, "pay-9")
}

func TestNotifier_SendFailure(t *testing.T) {
	sender := &fakeSender{fail: map[int64]bool{10: true}}
	n := NewNotifier(sender, logger.Discard())

	err := n.SubscriptionExpired(context.Background(), 10, "30 дней")
	assert.ErrorContains(t, err, "blocked")
}

func TestStatusText(t *testing.T) {
	expires := now.Add(50 * time.Hour)
	text := statusText(&lifecycle.StatusReport{
		User:         &models.User{},
		Subscription: &models.Subscription{ExpiresAt: &expires},
		PlanName:     "30 дней",
		Plan:         plans.Plan{Devices: 2},
		Keys:         []models.AccessKey{{KeyID: "1"}},
	}, now)
	assert.Contains(t, text, "30 дней")
	assert.Contains(t, text, "2 дн. 2 ч.")
	assert.Contains(t, text, "1 из 2")

	text = statusText(&lifecycle.StatusReport{User: &models.User{}}, now)
	assert.Contains(t, text, "Активной подписки нет")
	assert.Contains(t, text, "бесплатно")
}

func TestFormatPrice(t *testing.T) {
	assert.Equal(t, "150₽", formatPrice(150))
	assert.Equal(t, "99.50₽", formatPrice(99.5))
}

func TestRenderQR(t *testing.T) {
	png, err := renderQR("ss://abc@host:1")
	require.NoError(t, err)
	assert.Equal(t, pngMagic, png[:4])

	_, err = renderQR("  ")
	assert.ErrorIs(t, err, errEmptyQR)
}
