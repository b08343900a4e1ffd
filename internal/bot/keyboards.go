package bot

import (
	"fmt"

	"github.com/mymmrac/telego"
	tu "github.com/mymmrac/telego/telegoutil"

	"vpnbot/internal/lifecycle"
	"vpnbot/internal/plans"
)

// Callback data. Prefixed entries carry an id after the colon.
const (
	cbMenu      = "menu"
	cbTrial     = "trial"
	cbPlans     = "plans"
	cbStatus    = "status"
	cbKeys      = "keys"
	cbHelp      = "help"
	cbAddKey    = "addkey"
	cbBuy       = "buy:"
	cbCheck     = "check:"
	cbKey       = "key:"
	cbDelKey    = "delkey:"
	cbAdmin     = "admin"
	cbAdminUsrs = "admin:users:"
	cbAdminStat = "admin:stats"
)

func backRow() []telego.InlineKeyboardButton {
	return tu.InlineKeyboardRow(tu.InlineKeyboardButton("« В меню").WithCallbackData(cbMenu))
}

func menuKeyboard(hasSubscription, trialAvailable, admin bool) *telego.InlineKeyboardMarkup {
	var rows [][]telego.InlineKeyboardButton
	if hasSubscription {
		rows = append(rows,
			tu.InlineKeyboardRow(tu.InlineKeyboardButton("🔑 Мои ключи").WithCallbackData(cbKeys)),
			tu.InlineKeyboardRow(tu.InlineKeyboardButton("📊 Статус подписки").WithCallbackData(cbStatus)),
			tu.InlineKeyboardRow(tu.InlineKeyboardButton("🔄 Продлить").WithCallbackData(cbPlans)),
		)
	} else {
		if trialAvailable {
			rows = append(rows, tu.InlineKeyboardRow(tu.InlineKeyboardButton("🎁 Попробовать бесплатно").WithCallbackData(cbTrial)))
		}
		rows = append(rows, tu.InlineKeyboardRow(tu.InlineKeyboardButton("💳 Тарифные планы").WithCallbackData(cbPlans)))
	}
	rows = append(rows, tu.InlineKeyboardRow(tu.InlineKeyboardButton("📱 Как настроить").WithCallbackData(cbHelp)))
	if admin {
		rows = append(rows, tu.InlineKeyboardRow(tu.InlineKeyboardButton("🔐 Админ-панель").WithCallbackData(cbAdmin)))
	}
	return tu.InlineKeyboard(rows...)
}

func plansKeyboard(catalog *plans.Catalog, trialAvailable bool) *telego.InlineKeyboardMarkup {
	var rows [][]telego.InlineKeyboardButton
	if _, ok := catalog.Trial(); ok && trialAvailable {
		rows = append(rows, tu.InlineKeyboardRow(tu.InlineKeyboardButton("🎁 Тестовый период").WithCallbackData(cbTrial)))
	}
	for _, p := range catalog.Paid() {
		label := fmt.Sprintf("%s — %s", p.Name, formatPrice(p.Price))
		rows = append(rows, tu.InlineKeyboardRow(tu.InlineKeyboardButton(label).WithCallbackData(cbBuy+p.ID)))
	}
	rows = append(rows, backRow())
	return tu.InlineKeyboard(rows...)
}

func checkoutKeyboard(c *lifecycle.Checkout) *telego.InlineKeyboardMarkup {
	return tu.InlineKeyboard(
		tu.InlineKeyboardRow(tu.InlineKeyboardButton("💳 Оплатить").WithURL(c.ConfirmationURL)),
		tu.InlineKeyboardRow(tu.InlineKeyboardButton("✅ Я оплатил").WithCallbackData(cbCheck+c.Payment.PaymentID)),
		backRow(),
	)
}

func retryCheckKeyboard(paymentID string) *telego.InlineKeyboardMarkup {
	return tu.InlineKeyboard(
		tu.InlineKeyboardRow(tu.InlineKeyboardButton("🔄 Проверить ещё раз").WithCallbackData(cbCheck+paymentID)),
		backRow(),
	)
}

func keysKeyboard(r *lifecycle.StatusReport) *telego.InlineKeyboardMarkup {
	var rows [][]telego.InlineKeyboardButton
	for i, k := range r.Keys {
		rows = append(rows, tu.InlineKeyboardRow(
			tu.InlineKeyboardButton(fmt.Sprintf("🔑 Устройство %d", i+1)).WithCallbackData(cbKey+k.KeyID),
			tu.InlineKeyboardButton("🗑").WithCallbackData(cbDelKey+k.KeyID),
		))
	}
	if r.Subscription != nil && len(r.Keys) < r.Plan.Devices {
		rows = append(rows, tu.InlineKeyboardRow(tu.InlineKeyboardButton("➕ Добавить устройство").WithCallbackData(cbAddKey)))
	}
	if r.Subscription == nil {
		rows = append(rows, tu.InlineKeyboardRow(tu.InlineKeyboardButton("💳 Тарифные планы").WithCallbackData(cbPlans)))
	}
	rows = append(rows, backRow())
	return tu.InlineKeyboard(rows...)
}

func activationKeyboard() *telego.InlineKeyboardMarkup {
	return tu.InlineKeyboard(
		tu.InlineKeyboardRow(tu.InlineKeyboardButton("🔑 Мои ключи").WithCallbackData(cbKeys)),
		tu.InlineKeyboardRow(tu.InlineKeyboardButton("📱 Как настроить").WithCallbackData(cbHelp)),
	)
}

func renewKeyboard() *telego.InlineKeyboardMarkup {
	return tu.InlineKeyboard(
		tu.InlineKeyboardRow(tu.InlineKeyboardButton("🔄 Продлить подписку").WithCallbackData(cbPlans)),
		tu.InlineKeyboardRow(tu.InlineKeyboardButton("ℹ️ Мой статус").WithCallbackData(cbStatus)),
	)
}

func adminKeyboard() *telego.InlineKeyboardMarkup {
	return tu.InlineKeyboard(
		tu.InlineKeyboardRow(
			tu.InlineKeyboardButton("👥 Пользователи").WithCallbackData(cbAdminUsrs+"0"),
			tu.InlineKeyboardButton("📈 Статистика").WithCallbackData(cbAdminStat),
		),
		backRow(),
	)
}

func usersKeyboard(page int64, hasNext bool) *telego.InlineKeyboardMarkup {
	var nav []telego.InlineKeyboardButton
	if page > 0 {
		nav = append(nav, tu.InlineKeyboardButton("«").WithCallbackData(fmt.Sprintf("%s%d", cbAdminUsrs, page-1)))
	}
	if hasNext {
		nav = append(nav, tu.InlineKeyboardButton("»").WithCallbackData(fmt.Sprintf("%s%d", cbAdminUsrs, page+1)))
	}
	if len(nav) == 0 {
		return tu.InlineKeyboard(backRow())
	}
	return tu.InlineKeyboard(tu.InlineKeyboardRow(nav...), backRow())
}
