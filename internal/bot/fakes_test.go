package bot

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/mymmrac/telego"
	"github.com/stretchr/testify/require"

	"vpnbot/internal/config"
	"vpnbot/internal/lifecycle"
	"vpnbot/internal/logger"
	"vpnbot/internal/models"
	"vpnbot/internal/plans"
	"vpnbot/internal/repository"
	"vpnbot/internal/testutil"
	"vpnbot/internal/worker"
)

var now = time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

const adminID = 999

type fakeEngine struct {
	mu    sync.Mutex
	calls []string

	sub  *models.Subscription
	plan plans.Plan
	keys []models.AccessKey

	trialErr    error
	checkout    *lifecycle.Checkout
	checkoutErr error
	confirm     *lifecycle.Activation
	confirmErr  error
	added       *models.AccessKey
	addErr      error
	revokeErr   error
	deactivated *lifecycle.DeactivationReport
	grantErr    error
}

func (f *fakeEngine) record(format string, args ...any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, fmt.Sprintf(format, args...))
}

func (f *fakeEngine) activation(userID models.UserID) *lifecycle.Activation {
	return &lifecycle.Activation{
		User:         &models.User{ID: userID, TelegramID: models.TelegramID(userID) + 1000},
		Subscription: f.sub,
		Plan:         f.plan,
		Keys:         f.keys,
	}
}

func (f *fakeEngine) ActivateTrial(_ context.Context, userID models.UserID) (*lifecycle.Activation, error) {
	f.record("trial %d", userID)
	if f.trialErr != nil {
		return nil, f.trialErr
	}
	return f.activation(userID), nil
}

func (f *fakeEngine) StartPaidCheckout(_ context.Context, userID models.UserID, planID string) (*lifecycle.Checkout, error) {
	f.record("checkout %d %s", userID, planID)
	return f.checkout, f.checkoutErr
}

func (f *fakeEngine) ConfirmPayment(_ context.Context, paymentID string) (*lifecycle.Activation, error) {
	f.record("confirm %s", paymentID)
	return f.confirm, f.confirmErr
}

func (f *fakeEngine) AddDevice(_ context.Context, userID models.UserID) (*models.AccessKey, error) {
	f.record("add %d", userID)
	return f.added, f.addErr
}

func (f *fakeEngine) RevokeKey(_ context.Context, userID models.UserID, keyID string) error {
	f.record("revoke %d %s", userID, keyID)
	return f.revokeErr
}

func (f *fakeEngine) Status(_ context.Context, userID models.UserID) (*lifecycle.StatusReport, error) {
	report := &lifecycle.StatusReport{User: &models.User{ID: userID}, Keys: f.keys}
	if f.sub != nil {
		report.Subscription = f.sub
		report.Plan = f.plan
		report.PlanName = f.plan.Name
	}
	return report, nil
}

func (f *fakeEngine) DeactivateUser(_ context.Context, userID models.UserID) (*lifecycle.DeactivationReport, error) {
	f.record("deactivate %d", userID)
	return f.deactivated, nil
}

func (f *fakeEngine) GrantPlan(_ context.Context, userID models.UserID, planID string) (*lifecycle.Activation, error) {
	f.record("grant %d %s", userID, planID)
	if f.grantErr != nil {
		return nil, f.grantErr
	}
	return f.activation(userID), nil
}

type fakeSender struct {
	mu   sync.Mutex
	sent []*telego.SendMessageParams
	fail map[int64]bool
}

func (f *fakeSender) SendMessage(_ context.Context, params *telego.SendMessageParams) (*telego.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail[params.ChatID.ID] {
		return nil, fmt.Errorf("telegram: bot was blocked by chat %d", params.ChatID.ID)
	}
	f.sent = append(f.sent, params)
	return &telego.Message{}, nil
}

func (f *fakeSender) messages() []*telego.SendMessageParams {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*telego.SendMessageParams(nil), f.sent...)
}

type testBot struct {
	*Bot
	repo   *repository.Repository
	engine *fakeEngine
	sender *fakeSender
}

func newTestBot(t *testing.T) *testBot {
	t.Helper()
	catalog, err := plans.Load("")
	require.NoError(t, err)

	repo := repository.New(testutil.NewDB(t))
	engine := &fakeEngine{}
	sender := &fakeSender{fail: map[int64]bool{}}

	b := &Bot{
		engine:   engine,
		users:    repo,
		catalog:  catalog,
		notifier: NewNotifier(sender, logger.Discard()),
		cfg:      config.TelegramConfig{AdminIDs: []int64{adminID}, BroadcastRate: 1000},
		logger:   logger.Discard(),
		now:      func() time.Time { return now },
		stats: func(context.Context) (*worker.Stats, error) {
			return &worker.Stats{Users: 3, LiveKeys: 4, ServerKeys: 4, BytesTransferred: 3 << 30}, nil
		},
	}
	return &testBot{Bot: b, repo: repo, engine: engine, sender: sender}
}

func from(tg int64) request {
	return request{
		From:    models.Profile{TelegramID: models.TelegramID(tg), FirstName: "Ann"},
		ChatID:  tg,
		IsAdmin: tg == adminID,
	}
}

func (r request) with(text string, args ...string) request {
	r.Text = text
	r.Args = args
	return r
}

func callbacks(m *telego.InlineKeyboardMarkup) []string {
	var out []string
	if m == nil {
		return out
	}
	for _, row := range m.InlineKeyboard {
		for _, btn := range row {
			if btn.CallbackData != "" {
				out = append(out, btn.CallbackData)
			}
		}
	}
	return out
}

func urls(m *telego.InlineKeyboardMarkup) []string {
	var out []string
	for _, row := range m.InlineKeyboard {
		for _, btn := range row {
			if btn.URL != "" {
				out = append(out, btn.URL)
			}
		}
	}
	return out
}
