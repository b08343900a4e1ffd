package lifecycle

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"vpnbot/internal/apperrors"
	"vpnbot/internal/database"
	"vpnbot/internal/logger"
	"vpnbot/internal/models"
	"vpnbot/internal/outline"
	"vpnbot/internal/payment"
	"vpnbot/internal/plans"
	"vpnbot/internal/repository"
	"vpnbot/internal/testutil"
)

var t0 = time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type fakeKeys struct {
	mu      sync.Mutex
	seq     int
	keys    map[string]*outline.AccessKey
	limits  map[string]int64
	created int
	renamed int
	deleted []string

	// failCreateAfter makes every create after that many successful ones fail.
	failCreateAfter int
	deleteErr       map[string]error
}

func newFakeKeys() *fakeKeys {
	return &fakeKeys{
		keys:            map[string]*outline.AccessKey{},
		limits:          map[string]int64{},
		failCreateAfter: -1,
		deleteErr:       map[string]error{},
	}
}

func (f *fakeKeys) CreateKey(_ context.Context, name string) (*outline.AccessKey, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failCreateAfter >= 0 && f.created >= f.failCreateAfter {
		return nil, apperrors.ProviderUnavailable("outline", fmt.Errorf("connection refused"))
	}
	f.seq++
	f.created++
	id := fmt.Sprint(f.seq)
	key := &outline.AccessKey{ID: id, Name: name, AccessURL: "ss://key-" + id}
	f.keys[id] = key
	cp := *key
	return &cp, nil
}

func (f *fakeKeys) DeleteKey(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.deleteErr[id]; err != nil {
		return err
	}
	if _, ok := f.keys[id]; !ok {
		return apperrors.NotFound("outline resource", id)
	}
	delete(f.keys, id)
	f.deleted = append(f.deleted, id)
	return nil
}

func (f *fakeKeys) RenameKey(_ context.Context, id, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	key, ok := f.keys[id]
	if !ok {
		return apperrors.NotFound("outline resource", id)
	}
	key.Name = name
	f.renamed++
	return nil
}

func (f *fakeKeys) SetDataLimit(_ context.Context, id string, bytes int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.keys[id]; !ok {
		return apperrors.NotFound("outline resource", id)
	}
	f.limits[id] = bytes
	return nil
}

func (f *fakeKeys) RemoveDataLimit(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.keys[id]; !ok {
		return apperrors.NotFound("outline resource", id)
	}
	delete(f.limits, id)
	return nil
}

// dropKey removes a key behind the bot's back.
func (f *fakeKeys) dropKey(id string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.keys, id)
}

func (f *fakeKeys) name(id string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if k, ok := f.keys[id]; ok {
		return k.Name
	}
	return ""
}

func (f *fakeKeys) suspended(id string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	limit, ok := f.limits[id]
	return ok && limit == 0
}

func (f *fakeKeys) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.keys)
}

type fakePayments struct {
	mu        sync.Mutex
	seq       int
	payments  map[string]*payment.PaymentResponse
	createErr error
	findErr   error
	findCalls int
}

func newFakePayments() *fakePayments {
	return &fakePayments{payments: map[string]*payment.PaymentResponse{}}
}

func (f *fakePayments) CreatePayment(_ context.Context, in payment.CreatePaymentInput) (*payment.PaymentResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return nil, f.createErr
	}
	f.seq++
	id := fmt.Sprintf("pay-%d", f.seq)
	meta := make(map[string]string, len(in.Metadata))
	for k, v := range in.Metadata {
		meta[k] = v
	}
	p := &payment.PaymentResponse{
		ID:           id,
		Status:       payment.StatusPending,
		Amount:       payment.Amount{Value: fmt.Sprintf("%.2f", in.Amount), Currency: "RUB"},
		Description:  in.Description,
		Confirmation: payment.Confirmation{Type: "redirect", ConfirmationURL: "https://pay.example/" + id},
		Metadata:     meta,
	}
	f.payments[id] = p
	cp := *p
	return &cp, nil
}

func (f *fakePayments) FindPayment(_ context.Context, id string) (*payment.PaymentResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.findCalls++
	if f.findErr != nil {
		return nil, f.findErr
	}
	p, ok := f.payments[id]
	if !ok {
		return nil, apperrors.NotFound("yookassa resource", id)
	}
	cp := *p
	return &cp, nil
}

func (f *fakePayments) setStatus(id, status string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.payments[id].Status = status
	f.payments[id].Paid = status == payment.StatusSucceeded
}

func (f *fakePayments) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.findCalls
}

type harness struct {
	engine   *Engine
	repo     *repository.Repository
	keys     *fakeKeys
	payments *fakePayments
	clock    *fakeClock
	catalog  *plans.Catalog
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	catalog, err := plans.Load("")
	require.NoError(t, err)

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	h := &harness{
		repo:     repository.New(testutil.NewDB(t)),
		keys:     newFakeKeys(),
		payments: newFakePayments(),
		clock:    &fakeClock{now: t0},
		catalog:  catalog,
	}
	h.engine = NewEngine(h.repo, h.keys, h.payments, catalog,
		database.NewRedisLocker(rdb, time.Minute), logger.Discard(), WithClock(h.clock.Now))
	return h
}

func (h *harness) newUser(t *testing.T, tg int64) *models.User {
	t.Helper()
	user, err := h.repo.EnsureUser(context.Background(), models.Profile{TelegramID: models.TelegramID(tg), FirstName: "Ivan"})
	require.NoError(t, err)
	return user
}

func (h *harness) liveKeys(t *testing.T, userID models.UserID) []models.AccessKey {
	t.Helper()
	keys, err := h.repo.UserAccessKeys(context.Background(), userID)
	require.NoError(t, err)
	return keys
}

func (h *harness) activeCount(t *testing.T, userID models.UserID) int {
	t.Helper()
	subs, err := h.repo.ActiveSubscriptions(context.Background(), userID)
	require.NoError(t, err)
	n := 0
	for _, s := range subs {
		if s.IsLive(h.clock.Now()) {
			n++
		}
	}
	return n
}

// paidCheckout starts and confirms a checkout for plan.
func (h *harness) paidCheckout(t *testing.T, userID models.UserID, planID string) *Activation {
	t.Helper()
	ctx := context.Background()
	checkout, err := h.engine.StartPaidCheckout(ctx, userID, planID)
	require.NoError(t, err)
	h.payments.setStatus(checkout.Payment.PaymentID, payment.StatusSucceeded)
	act, err := h.engine.ConfirmPayment(ctx, checkout.Payment.PaymentID)
	require.NoError(t, err)
	return act
}
