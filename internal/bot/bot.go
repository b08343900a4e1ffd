// Package bot is the Telegram presentation layer. Handlers translate chat
// events into lifecycle operations and render the results; they hold no
// business rules of their own.
package bot

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/mymmrac/telego"
	th "github.com/mymmrac/telego/telegohandler"
	tu "github.com/mymmrac/telego/telegoutil"

	"vpnbot/internal/config"
	"vpnbot/internal/lifecycle"
	"vpnbot/internal/models"
	"vpnbot/internal/plans"
	"vpnbot/internal/worker"
)

// Service is the lifecycle surface used by the handlers.
type Service interface {
	ActivateTrial(ctx context.Context, userID models.UserID) (*lifecycle.Activation, error)
	StartPaidCheckout(ctx context.Context, userID models.UserID, planID string) (*lifecycle.Checkout, error)
	ConfirmPayment(ctx context.Context, paymentID string) (*lifecycle.Activation, error)
	AddDevice(ctx context.Context, userID models.UserID) (*models.AccessKey, error)
	RevokeKey(ctx context.Context, userID models.UserID, keyID string) error
	Status(ctx context.Context, userID models.UserID) (*lifecycle.StatusReport, error)
	DeactivateUser(ctx context.Context, userID models.UserID) (*lifecycle.DeactivationReport, error)
	GrantPlan(ctx context.Context, userID models.UserID, planID string) (*lifecycle.Activation, error)
}

// Users is the read side of the persistence gateway used by the handlers.
type Users interface {
	EnsureUser(ctx context.Context, profile models.Profile) (*models.User, error)
	ResolveUserID(ctx context.Context, id models.TelegramID) (models.UserID, error)
	UserByTelegramID(ctx context.Context, id models.TelegramID) (*models.User, error)
	ListUsers(ctx context.Context, offset, limit int) ([]models.User, error)
	CountUsers(ctx context.Context) (int64, error)
	AllTelegramIDs(ctx context.Context) ([]models.TelegramID, error)
	PaymentByProviderID(ctx context.Context, paymentID string) (*models.Payment, error)
	AccessKeyByKeyID(ctx context.Context, keyID string) (*models.AccessKey, error)
}

type StatsFunc func(ctx context.Context) (*worker.Stats, error)

// reply is a rendered answer. Photo, when set, is sent as an image with Text
// as its caption.
type reply struct {
	Text   string
	Markup *telego.InlineKeyboardMarkup
	Photo  []byte
}

type Bot struct {
	api      *telego.Bot
	engine   Service
	users    Users
	catalog  *plans.Catalog
	stats    StatsFunc
	notifier *Notifier
	cfg      config.TelegramConfig
	logger   *slog.Logger
	now      func() time.Time

	// broadcasts run in the background; tests wait on it
	broadcasts sync.WaitGroup
}

func NewBot(
	token string,
	engine Service,
	users Users,
	catalog *plans.Catalog,
	stats StatsFunc,
	cfg config.TelegramConfig,
	logger *slog.Logger,
) (*Bot, error) {
	api, err := telego.NewBot(token)
	if err != nil {
		return nil, fmt.Errorf("failed to create bot: %w", err)
	}
	return &Bot{
		api:      api,
		engine:   engine,
		users:    users,
		catalog:  catalog,
		stats:    stats,
		notifier: NewNotifier(api, logger),
		cfg:      cfg,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}, nil
}

// Notifier sends messages outside of a chat exchange through this bot.
func (b *Bot) Notifier() *Notifier {
	return b.notifier
}

// Start long-polls for updates until ctx is canceled.
func (b *Bot) Start(ctx context.Context) error {
	updates, err := b.api.UpdatesViaLongPolling(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to start long polling: %w", err)
	}

	bh, err := th.NewBotHandler(b.api, updates)
	if err != nil {
		return fmt.Errorf("failed to create bot handler: %w", err)
	}
	b.register(bh)

	go func() {
		<-ctx.Done()
		stopCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := bh.StopWithContext(stopCtx); err != nil {
			b.logger.Warn("failed to stop bot handler", "error", err)
		}
	}()

	b.logger.Info("telegram bot started")
	return bh.Start()
}

func (b *Bot) register(bh *th.BotHandler) {
	bh.HandleMessage(b.onCommand(b.startReply), th.CommandEqual("start"))
	bh.HandleMessage(b.onCommand(b.helpReply), th.CommandEqual("help"))
	bh.HandleMessage(b.onCommand(b.statusReply), th.CommandEqual("status"))
	bh.HandleMessage(b.onCommand(b.plansReply), th.CommandEqual("plans"))
	bh.HandleMessage(b.onCommand(b.keysReply), th.CommandEqual("keys"))

	bh.HandleMessage(b.onCommand(b.adminReply), th.CommandEqual("admin"))
	bh.HandleMessage(b.onCommand(b.usersCommandReply), th.CommandEqual("users"))
	bh.HandleMessage(b.onCommand(b.statsReply), th.CommandEqual("stats"))
	bh.HandleMessage(b.onCommand(b.deactivateReply), th.CommandEqual("deactivate"))
	bh.HandleMessage(b.onCommand(b.grantReply), th.CommandEqual("grant"))
	bh.HandleMessage(b.onCommand(b.broadcastReply), th.CommandEqual("broadcast"))

	bh.HandleCallbackQuery(b.onCallback(b.startReply), th.CallbackDataEqual(cbMenu))
	bh.HandleCallbackQuery(b.onCallback(b.helpReply), th.CallbackDataEqual(cbHelp))
	bh.HandleCallbackQuery(b.onCallback(b.statusReply), th.CallbackDataEqual(cbStatus))
	bh.HandleCallbackQuery(b.onCallback(b.plansReply), th.CallbackDataEqual(cbPlans))
	bh.HandleCallbackQuery(b.onCallback(b.keysReply), th.CallbackDataEqual(cbKeys))
	bh.HandleCallbackQuery(b.onCallback(b.trialReply), th.CallbackDataEqual(cbTrial))
	bh.HandleCallbackQuery(b.onCallback(b.addKeyReply), th.CallbackDataEqual(cbAddKey))
	bh.HandleCallbackQuery(b.onCallback(b.buyReply), th.CallbackDataPrefix(cbBuy))
	bh.HandleCallbackQuery(b.onCallback(b.checkReply), th.CallbackDataPrefix(cbCheck))
	bh.HandleCallbackQuery(b.onCallback(b.keyReply), th.CallbackDataPrefix(cbKey))
	bh.HandleCallbackQuery(b.onCallback(b.deleteKeyReply), th.CallbackDataPrefix(cbDelKey))
	bh.HandleCallbackQuery(b.onCallback(b.adminReply), th.CallbackDataEqual(cbAdmin))
	bh.HandleCallbackQuery(b.onCallback(b.usersPageReply), th.CallbackDataPrefix(cbAdminUsrs))
	bh.HandleCallbackQuery(b.onCallback(b.statsReply), th.CallbackDataEqual(cbAdminStat))
}

// request is what a handler knows about the incoming event.
type request struct {
	From    models.Profile
	ChatID  int64
	Text    string // command text or callback data
	Args    []string
	IsAdmin bool
}

type replyFunc func(ctx context.Context, req request) (*reply, error)

func profileOf(u *telego.User) models.Profile {
	return models.Profile{
		TelegramID: models.TelegramID(u.ID),
		Username:   u.Username,
		FirstName:  u.FirstName,
		LastName:   u.LastName,
	}
}

func (b *Bot) onCommand(fn replyFunc) th.MessageHandler {
	return func(ctx *th.Context, msg telego.Message) error {
		if msg.From == nil {
			return nil
		}
		_, _, args := tu.ParseCommand(msg.Text)
		req := request{
			From:    profileOf(msg.From),
			ChatID:  msg.Chat.ID,
			Text:    msg.Text,
			Args:    args,
			IsAdmin: b.cfg.IsAdmin(models.TelegramID(msg.From.ID)),
		}
		b.respond(ctx.Context(), ctx.Bot(), req, fn)
		return nil
	}
}

func (b *Bot) onCallback(fn replyFunc) th.CallbackQueryHandler {
	return func(ctx *th.Context, query telego.CallbackQuery) error {
		_ = ctx.Bot().AnswerCallbackQuery(ctx.Context(), tu.CallbackQuery(query.ID))
		req := request{
			From:    profileOf(&query.From),
			ChatID:  query.From.ID,
			Text:    query.Data,
			IsAdmin: b.cfg.IsAdmin(models.TelegramID(query.From.ID)),
		}
		b.respond(ctx.Context(), ctx.Bot(), req, fn)
		return nil
	}
}

func (b *Bot) respond(ctx context.Context, api *telego.Bot, req request, fn replyFunc) {
	r, err := fn(ctx, req)
	if err != nil {
		b.logger.Warn("request failed", "telegram_id", req.From.TelegramID, "request", req.Text, "error", err)
		r = &reply{Text: errorText(err), Markup: tu.InlineKeyboard(backRow())}
	}
	if r == nil {
		return
	}
	if err := send(ctx, api, req.ChatID, r); err != nil {
		b.logger.Warn("failed to send reply", "telegram_id", req.From.TelegramID, "error", err)
	}
}

func send(ctx context.Context, api *telego.Bot, chatID int64, r *reply) error {
	if len(r.Photo) > 0 {
		params := tu.Photo(tu.ID(chatID), tu.File(tu.NameReader(bytes.NewReader(r.Photo), "key.png"))).
			WithCaption(r.Text).
			WithParseMode(telego.ModeHTML)
		if r.Markup != nil {
			params = params.WithReplyMarkup(r.Markup)
		}
		_, err := api.SendPhoto(ctx, params)
		return err
	}

	params := tu.Message(tu.ID(chatID), r.Text).WithParseMode(telego.ModeHTML)
	if r.Markup != nil {
		params = params.WithReplyMarkup(r.Markup)
	}
	_, err := api.SendMessage(ctx, params)
	return err
}

// user resolves the caller, creating the row on first contact.
func (b *Bot) user(ctx context.Context, req request) (*models.User, error) {
	return b.users.EnsureUser(ctx, req.From)
}
