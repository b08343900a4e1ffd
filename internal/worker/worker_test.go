package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"vpnbot/internal/database"
	"vpnbot/internal/lifecycle"
	"vpnbot/internal/models"
	"vpnbot/internal/outline"
	"vpnbot/internal/plans"
	"vpnbot/internal/repository"
	"vpnbot/internal/testutil"
)

var now = time.Date(2026, 7, 15, 10, 0, 0, 0, time.UTC)

func fixedClock() time.Time { return now }

type sent struct {
	Kind string
	To   models.TelegramID
	Ref  string
}

type fakeNotifier struct {
	mu   sync.Mutex
	sent []sent
	fail map[models.TelegramID]bool
}

func newFakeNotifier() *fakeNotifier {
	return &fakeNotifier{fail: map[models.TelegramID]bool{}}
}

func (f *fakeNotifier) record(kind string, to models.TelegramID, ref string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail[to] {
		return fmt.Errorf("telegram: chat %d blocked the bot", to)
	}
	f.sent = append(f.sent, sent{Kind: kind, To: to, Ref: ref})
	return nil
}

func (f *fakeNotifier) ExpiryReminder(_ context.Context, tg models.TelegramID, sub models.Subscription, _ string) error {
	return f.record("reminder", tg, sub.SubscriptionID)
}

func (f *fakeNotifier) SubscriptionExpired(_ context.Context, tg models.TelegramID, planName string) error {
	return f.record("expired", tg, planName)
}

func (f *fakeNotifier) PaymentConfirmed(_ context.Context, act *lifecycle.Activation) error {
	return f.record("confirmed", act.User.TelegramID, act.Subscription.SubscriptionID)
}

func (f *fakeNotifier) PaymentCanceled(_ context.Context, tg models.TelegramID, paymentID string) error {
	return f.record("canceled", tg, paymentID)
}

func (f *fakeNotifier) messages() []sent {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]sent(nil), f.sent...)
}

type fixture struct {
	repo    *repository.Repository
	catalog *plans.Catalog
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	catalog, err := plans.Load("")
	require.NoError(t, err)
	return &fixture{repo: repository.New(testutil.NewDB(t)), catalog: catalog}
}

func (f *fixture) user(t *testing.T, tg int64) *models.User {
	t.Helper()
	u, err := f.repo.EnsureUser(context.Background(), models.Profile{TelegramID: models.TelegramID(tg)})
	require.NoError(t, err)
	return u
}

func (f *fixture) subscription(t *testing.T, userID models.UserID, status models.SubscriptionStatus, expiresIn time.Duration) *models.Subscription {
	t.Helper()
	expires := now.Add(expiresIn)
	sub := &models.Subscription{
		SubscriptionID: uuid.NewString(),
		UserID:         userID,
		PlanID:         "monthly",
		Status:         status,
		ExpiresAt:      &expires,
		CreatedAt:      now.Add(-time.Hour),
	}
	require.NoError(t, f.repo.CreateSubscription(context.Background(), sub))
	return sub
}

func (f *fixture) key(t *testing.T, userID models.UserID, subID uint, keyID string) {
	t.Helper()
	require.NoError(t, f.repo.CreateAccessKey(context.Background(), &models.AccessKey{
		KeyID:          keyID,
		Name:           "key " + keyID,
		AccessURL:      "ss://" + keyID,
		UserID:         userID,
		SubscriptionID: subID,
		CreatedAt:      now,
	}))
}

func newMarks(t *testing.T) (*database.RedisMarks, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return database.NewRedisMarks(rdb), mr
}

type fakeLister struct {
	mu    sync.Mutex
	keys  []outline.AccessKey
	errs  []error
	calls int
	// onList runs after the inventory snapshot is taken.
	onList func()
}

func (f *fakeLister) ListKeys(context.Context) ([]outline.AccessKey, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if len(f.errs) > 0 {
		err := f.errs[0]
		f.errs = f.errs[1:]
		return nil, err
	}
	keys := append([]outline.AccessKey(nil), f.keys...)
	if f.onList != nil {
		f.onList()
	}
	return keys, nil
}

func inventory(ids ...string) []outline.AccessKey {
	keys := make([]outline.AccessKey, 0, len(ids))
	for _, id := range ids {
		keys = append(keys, outline.AccessKey{ID: id, AccessURL: "ss://" + id})
	}
	return keys
}

func noRetry() backoff.BackOff {
	return backoff.WithMaxRetries(&backoff.ZeroBackOff{}, 2)
}

type fakeExpirer struct {
	expired map[uint]bool
	errs    map[uint]error
}

func (f *fakeExpirer) ExpireSubscription(_ context.Context, id uint) (bool, error) {
	if err := f.errs[id]; err != nil {
		return false, err
	}
	return f.expired[id], nil
}

type fakeResolver struct {
	results map[string]*lifecycle.StaleResolution
	err     error
	calls   []string
}

func (f *fakeResolver) CancelStalePayment(_ context.Context, id string) (*lifecycle.StaleResolution, error) {
	f.calls = append(f.calls, id)
	if f.err != nil {
		return nil, f.err
	}
	res, ok := f.results[id]
	if !ok {
		return nil, errors.New("unexpected payment " + id)
	}
	return res, nil
}
