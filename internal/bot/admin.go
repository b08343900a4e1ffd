package bot

import (
	"context"
	"fmt"
	"html"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"vpnbot/internal/models"
)

const usersPageSize = 10

var denied = &reply{Text: "⛔ У вас нет доступа к этой команде."}

func (b *Bot) adminReply(_ context.Context, req request) (*reply, error) {
	if !req.IsAdmin {
		return denied, nil
	}
	return &reply{
		Text: "🛠 <b>Панель администратора</b>\n\n" +
			"/users [страница] — список пользователей\n" +
			"/stats — статистика сервера\n" +
			"/grant &lt;telegram id&gt; &lt;тариф&gt; — выдать подписку\n" +
			"/deactivate &lt;telegram id&gt; — отключить пользователя\n" +
			"/broadcast &lt;текст&gt; — рассылка всем пользователям",
		Markup: adminKeyboard(),
	}, nil
}

func (b *Bot) usersCommandReply(ctx context.Context, req request) (*reply, error) {
	if !req.IsAdmin {
		return denied, nil
	}
	var page int64
	if len(req.Args) > 0 {
		n, err := strconv.ParseInt(req.Args[0], 10, 64)
		if err != nil || n < 1 {
			return &reply{Text: "Использование: /users [номер страницы]"}, nil
		}
		page = n - 1
	}
	return b.usersPage(ctx, page)
}

func (b *Bot) usersPageReply(ctx context.Context, req request) (*reply, error) {
	if !req.IsAdmin {
		return denied, nil
	}
	page, err := strconv.ParseInt(strings.TrimPrefix(req.Text, cbAdminUsrs), 10, 64)
	if err != nil || page < 0 {
		page = 0
	}
	return b.usersPage(ctx, page)
}

func (b *Bot) usersPage(ctx context.Context, page int64) (*reply, error) {
	total, err := b.users.CountUsers(ctx)
	if err != nil {
		return nil, err
	}
	// one extra row tells whether a next page exists
	users, err := b.users.ListUsers(ctx, int(page)*usersPageSize, usersPageSize+1)
	if err != nil {
		return nil, err
	}
	hasNext := len(users) > usersPageSize
	if hasNext {
		users = users[:usersPageSize]
	}
	return &reply{Text: usersText(users, page, total), Markup: usersKeyboard(page, hasNext)}, nil
}

func (b *Bot) statsReply(ctx context.Context, req request) (*reply, error) {
	if !req.IsAdmin {
		return denied, nil
	}
	stats, err := b.stats(ctx)
	if err != nil {
		return nil, err
	}
	return &reply{Text: adminStatsText(stats), Markup: adminKeyboard()}, nil
}

func (b *Bot) deactivateReply(ctx context.Context, req request) (*reply, error) {
	if !req.IsAdmin {
		return denied, nil
	}
	if len(req.Args) != 1 {
		return &reply{Text: "Использование: /deactivate &lt;telegram id&gt;"}, nil
	}
	tg, userID, err := b.resolveArg(ctx, req.Args[0])
	if err != nil {
		return nil, err
	}
	report, err := b.engine.DeactivateUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	b.logger.Info("user deactivated by admin", "admin", req.From.TelegramID, "telegram_id", tg, "keys_revoked", report.KeysRevoked)
	return &reply{Text: deactivationText(tg, report)}, nil
}

func (b *Bot) grantReply(ctx context.Context, req request) (*reply, error) {
	if !req.IsAdmin {
		return denied, nil
	}
	if len(req.Args) != 2 {
		return &reply{Text: "Использование: /grant &lt;telegram id&gt; &lt;тариф&gt;"}, nil
	}
	tg, userID, err := b.resolveArg(ctx, req.Args[0])
	if err != nil {
		return nil, err
	}
	act, err := b.engine.GrantPlan(ctx, userID, req.Args[1])
	if err != nil {
		return nil, err
	}
	b.logger.Info("plan granted by admin", "admin", req.From.TelegramID, "telegram_id", tg, "plan_id", act.Plan.ID)

	if err := b.notifier.PaymentConfirmed(ctx, act); err != nil {
		b.logger.Warn("failed to notify user about granted plan", "telegram_id", tg, "error", err)
	}
	return &reply{Text: fmt.Sprintf("✅ Пользователю <code>%d</code> выдан тариф «%s», ключей: %d.",
		tg, html.EscapeString(act.Plan.Name), len(act.Keys))}, nil
}

func (b *Bot) resolveArg(ctx context.Context, arg string) (models.TelegramID, models.UserID, error) {
	n, err := strconv.ParseInt(arg, 10, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid telegram id %q: %w", arg, err)
	}
	tg := models.TelegramID(n)
	userID, err := b.users.ResolveUserID(ctx, tg)
	if err != nil {
		return 0, 0, err
	}
	return tg, userID, nil
}

func (b *Bot) broadcastReply(ctx context.Context, req request) (*reply, error) {
	if !req.IsAdmin {
		return denied, nil
	}
	text := strings.TrimSpace(strings.Join(req.Args, " "))
	if text == "" {
		return &reply{Text: "Использование: /broadcast &lt;текст&gt;"}, nil
	}
	ids, err := b.users.AllTelegramIDs(ctx)
	if err != nil {
		return nil, err
	}

	admin := req.From.TelegramID
	b.broadcasts.Add(1)
	go func() {
		defer b.broadcasts.Done()
		// outlives the update that started it
		bctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), time.Hour)
		defer cancel()

		limit := rate.Inf
		if b.cfg.BroadcastRate > 0 {
			limit = rate.Limit(b.cfg.BroadcastRate)
		}
		limiter := rate.NewLimiter(limit, 1)
		res, err := broadcast(bctx, b.notifier, limiter, ids, text)
		if err != nil {
			b.logger.Warn("broadcast interrupted", "error", err)
		}
		b.logger.Info("broadcast finished", "sent", res.Sent, "failed", res.Failed)

		summary := fmt.Sprintf("📢 Рассылка завершена.\nДоставлено: %d\nОшибок: %d", res.Sent, res.Failed)
		if err := b.notifier.send(bctx, admin, summary, nil); err != nil {
			b.logger.Warn("failed to report broadcast result", "error", err)
		}
	}()

	return &reply{Text: fmt.Sprintf("📢 Рассылка запущена: %d получателей.", len(ids))}, nil
}

type broadcastResult struct {
	Sent   int
	Failed int
}

// broadcast sends text to every recipient, paced by limiter. Delivery
// failures are counted; only cancellation stops the run early.
func broadcast(ctx context.Context, n *Notifier, limiter *rate.Limiter, ids []models.TelegramID, text string) (broadcastResult, error) {
	var res broadcastResult
	body := "📢 <b>Объявление</b>\n\n" + html.EscapeString(text)
	for _, tg := range ids {
		if err := limiter.Wait(ctx); err != nil {
			return res, err
		}
		if err := n.send(ctx, tg, body, nil); err != nil {
			res.Failed++
			continue
		}
		res.Sent++
	}
	return res, nil
}
