package bot

import (
	"errors"
	"fmt"
	"html"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"vpnbot/internal/apperrors"
	"vpnbot/internal/lifecycle"
	"vpnbot/internal/models"
	"vpnbot/internal/plans"
	"vpnbot/internal/worker"
)

const dateLayout = "02.01.2006 15:04 UTC"

func formatDate(t *time.Time) string {
	if t == nil {
		return "—"
	}
	return t.UTC().Format(dateLayout)
}

func formatPrice(p float64) string {
	if p == float64(int64(p)) {
		return fmt.Sprintf("%d₽", int64(p))
	}
	return fmt.Sprintf("%.2f₽", p)
}

func welcomeText(user *models.User) string {
	return fmt.Sprintf("Привет, %s! 👋\n\n"+
		"Я бот для управления VPN-подключением. С моей помощью вы можете получить "+
		"доступ к стабильному и быстрому VPN.\n\n"+
		"<b>Что я умею:</b>\n"+
		"• Выдавать ключи доступа Outline\n"+
		"• Поддерживать несколько устройств на одной подписке\n"+
		"• Показывать состояние вашей подписки\n\n"+
		"Выберите действие из меню ниже:", html.EscapeString(user.DisplayName()))
}

const helpText = "📱 <b>Как подключиться</b>\n\n" +
	"1. Установите приложение Outline (iOS, Android, Windows, macOS, Linux).\n" +
	"2. Откройте «🔑 Мои ключи» и выберите ключ.\n" +
	"3. Скопируйте ссылку <code>ss://…</code> или отсканируйте QR-код.\n" +
	"4. Добавьте ключ в приложение и нажмите «Подключиться».\n\n" +
	"Один ключ — одно устройство. Продление подписки сохраняет ваши ключи."

func plansText(catalog *plans.Catalog, trialAvailable bool) string {
	var sb strings.Builder
	sb.WriteString("💳 <b>Тарифные планы</b>\n\n")
	if trial, ok := catalog.Trial(); ok && trialAvailable {
		fmt.Fprintf(&sb, "🎁 <b>%s</b> — бесплатно\n%s\n\n", html.EscapeString(trial.Name), html.EscapeString(trial.Description))
	}
	for _, p := range catalog.Paid() {
		fmt.Fprintf(&sb, "• <b>%s</b> — %s, устройств: %d", html.EscapeString(p.Name), formatPrice(p.Price), p.Devices)
		if p.Discount != "" {
			fmt.Fprintf(&sb, " (скидка %s)", html.EscapeString(p.Discount))
		}
		sb.WriteString("\n")
	}
	return sb.String()
}

func checkoutText(c *lifecycle.Checkout) string {
	return fmt.Sprintf("🧾 <b>Заказ оформлен</b>\n\n"+
		"План: <b>%s</b>\n"+
		"Стоимость: <b>%s</b>\n"+
		"Устройств: %d\n\n"+
		"Нажмите «Оплатить», а после оплаты — «Я оплатил».",
		html.EscapeString(c.Plan.Name), formatPrice(c.Plan.Price), c.Plan.Devices)
}

func activationText(act *lifecycle.Activation) string {
	var sb strings.Builder
	if act.Plan.Trial {
		sb.WriteString("🎁 <b>Тестовый период активирован!</b>\n\n")
	} else {
		sb.WriteString("✅ <b>Подписка активирована!</b>\n\n")
	}
	fmt.Fprintf(&sb, "План: <b>%s</b>\n", html.EscapeString(act.Plan.Name))
	if act.Subscription != nil {
		fmt.Fprintf(&sb, "Действует до: <b>%s</b>\n", formatDate(act.Subscription.ExpiresAt))
	}
	sb.WriteString(keysBlock(act.Keys))
	return sb.String()
}

func keysBlock(keys []models.AccessKey) string {
	if len(keys) == 0 {
		return ""
	}
	var sb strings.Builder
	sb.WriteString("\n🔑 <b>Ключи доступа:</b>\n")
	for i, k := range keys {
		fmt.Fprintf(&sb, "\n%d. <code>%s</code>\n", i+1, html.EscapeString(k.AccessURL))
	}
	return sb.String()
}

func statusText(r *lifecycle.StatusReport, now time.Time) string {
	var sb strings.Builder
	sb.WriteString("📊 <b>Статус подписки</b>\n\n")
	if r.Subscription == nil {
		sb.WriteString("❌ Активной подписки нет.\n")
		if !r.User.TestUsed {
			sb.WriteString("Вы можете попробовать VPN бесплатно.\n")
		}
		return sb.String()
	}

	fmt.Fprintf(&sb, "✅ План: <b>%s</b>\n", html.EscapeString(r.PlanName))
	fmt.Fprintf(&sb, "⏳ Действует до: <b>%s</b>\n", formatDate(r.Subscription.ExpiresAt))
	if r.Subscription.ExpiresAt != nil {
		fmt.Fprintf(&sb, "Осталось: %s\n", remaining(r.Subscription.ExpiresAt.Sub(now)))
	}
	fmt.Fprintf(&sb, "🔑 Ключей: %d из %d\n", len(r.Keys), r.Plan.Devices)
	return sb.String()
}

func remaining(d time.Duration) string {
	if d <= 0 {
		return "истекла"
	}
	days := int(d / (24 * time.Hour))
	hours := int(d%(24*time.Hour)) / int(time.Hour)
	if days > 0 {
		return fmt.Sprintf("%d дн. %d ч.", days, hours)
	}
	return fmt.Sprintf("%d ч.", hours)
}

func keysText(r *lifecycle.StatusReport) string {
	if len(r.Keys) == 0 {
		if r.Subscription == nil {
			return "🔑 У вас нет ключей. Оформите подписку или тестовый период."
		}
		return "🔑 У вас пока нет ключей. Добавьте устройство."
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "🔑 <b>Ваши ключи</b> (%d", len(r.Keys))
	if r.Subscription != nil {
		fmt.Fprintf(&sb, " из %d", r.Plan.Devices)
	}
	sb.WriteString(")\n\nВыберите ключ, чтобы получить ссылку и QR-код.")
	return sb.String()
}

func keyText(k *models.AccessKey) string {
	return fmt.Sprintf("🔑 <b>%s</b>\n\n<code>%s</code>\n\nСкопируйте ссылку в приложение Outline или отсканируйте QR-код.",
		html.EscapeString(k.Name), html.EscapeString(k.AccessURL))
}

func expiryReminderText(sub models.Subscription, planName string) string {
	return fmt.Sprintf("⚠️ <b>Ваша подписка скоро истекает</b>\n\n"+
		"План: <b>%s</b>\n"+
		"Дата окончания: <b>%s</b>\n\n"+
		"Чтобы продолжить пользоваться VPN, продлите подписку. Ключи сохранятся.",
		html.EscapeString(planName), formatDate(sub.ExpiresAt))
}

func expiredText(planName string) string {
	return fmt.Sprintf("⌛ <b>Подписка «%s» закончилась</b>\n\n"+
		"Ключи приостановлены. После продления они снова заработают без перенастройки.",
		html.EscapeString(planName))
}

func canceledText(paymentID string) string {
	return fmt.Sprintf("❌ Платёж <code>%s</code> отменён. Деньги не списаны.\n\nВы можете оформить заказ заново.",
		html.EscapeString(paymentID))
}

// errorText renders a lifecycle error as a message the user can act on.
func errorText(err error) string {
	switch {
	case errors.Is(err, apperrors.ErrUnknownPlan):
		return "❌ Такого тарифа нет. Выберите тариф из списка."
	case errors.Is(err, apperrors.ErrAlreadyUsed):
		return "ℹ️ Тестовый период уже использован. Выберите платный тариф."
	case errors.Is(err, apperrors.ErrPaymentNotConfirmed):
		return "⏳ Оплата ещё не подтверждена. Если вы уже оплатили, проверьте ещё раз через минуту."
	case errors.Is(err, apperrors.ErrProviderUnavailable):
		return "⚠️ Сервис временно недоступен. Попробуйте ещё раз через несколько минут."
	case errors.Is(err, apperrors.ErrNotFound):
		return "❌ Не найдено. Возможно, данные устарели: откройте меню заново."
	case errors.Is(err, apperrors.ErrConflict):
		return "⚠️ Сейчас это действие недоступно. Проверьте статус подписки."
	default:
		return "⚠️ Что-то пошло не так. Попробуйте ещё раз."
	}
}

func adminStatsText(s *worker.Stats) string {
	var sb strings.Builder
	sb.WriteString("📈 <b>Статистика</b>\n\n")
	fmt.Fprintf(&sb, "👥 Пользователей: %d\n", s.Users)
	fmt.Fprintf(&sb, "🔑 Активных ключей в базе: %d\n", s.LiveKeys)
	if s.ServerErr != nil {
		fmt.Fprintf(&sb, "\n⚠️ Сервер недоступен: %s\n", html.EscapeString(s.ServerErr.Error()))
		return sb.String()
	}
	fmt.Fprintf(&sb, "🖥 Ключей на сервере: %d\n", s.ServerKeys)
	if s.Server != nil {
		fmt.Fprintf(&sb, "Сервер: %s (v%s)\n", html.EscapeString(s.Server.Name), html.EscapeString(s.Server.Version))
	}
	fmt.Fprintf(&sb, "📶 Трафик: %s\n", humanize.IBytes(uint64(max(s.BytesTransferred, 0))))
	return sb.String()
}

func usersText(users []models.User, page, total int64) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "👥 <b>Пользователи</b> (всего %d, стр. %d)\n\n", total, page+1)
	if len(users) == 0 {
		sb.WriteString("Пусто.")
		return sb.String()
	}
	for _, u := range users {
		mark := "▫️"
		if u.IsPremium {
			mark = "⭐"
		}
		fmt.Fprintf(&sb, "%s <code>%d</code> %s", mark, u.TelegramID, html.EscapeString(u.DisplayName()))
		if u.Username != "" {
			fmt.Fprintf(&sb, " @%s", html.EscapeString(u.Username))
		}
		sb.WriteString("\n")
	}
	return sb.String()
}

func deactivationText(tg models.TelegramID, r *lifecycle.DeactivationReport) string {
	text := fmt.Sprintf("🚫 Пользователь <code>%d</code> отключён.\nКлючей удалено: %d\nПодписок деактивировано: %d",
		tg, r.KeysRevoked, r.SubscriptionsDeactivated)
	if len(r.Failures) > 0 {
		text += fmt.Sprintf("\n⚠️ Не удалось удалить на сервере: %d", len(r.Failures))
	}
	return text
}
