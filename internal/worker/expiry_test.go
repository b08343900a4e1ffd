package worker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vpnbot/internal/logger"
	"vpnbot/internal/models"
)

const day = 24 * time.Hour

func TestExpiryNotifier_Window(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	marks, _ := newMarks(t)
	notifier := newFakeNotifier()

	u1 := f.user(t, 101)
	u2 := f.user(t, 102)
	u3 := f.user(t, 103)
	u4 := f.user(t, 104)
	u5 := f.user(t, 105)

	inWindow := f.subscription(t, u1.ID, models.SubscriptionActive, day+2*time.Hour)
	atStart := f.subscription(t, u2.ID, models.SubscriptionActive, day)
	f.subscription(t, u3.ID, models.SubscriptionActive, 2*day)            // N+1, excluded
	f.subscription(t, u4.ID, models.SubscriptionActive, 12*time.Hour)     // N-1 side
	f.subscription(t, u5.ID, models.SubscriptionInactive, day+time.Hour) // not active

	n := NewExpiryNotifier(f.repo, f.catalog, notifier, marks, 1, logger.Discard())
	n.now = fixedClock

	res, err := n.Notify(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Candidates)
	assert.Equal(t, 2, res.Sent)

	refs := map[string]models.TelegramID{}
	for _, m := range notifier.messages() {
		assert.Equal(t, "reminder", m.Kind)
		refs[m.Ref] = m.To
	}
	assert.Equal(t, models.TelegramID(101), refs[inWindow.SubscriptionID])
	assert.Equal(t, models.TelegramID(102), refs[atStart.SubscriptionID])
}

func TestExpiryNotifier_NoDuplicateWithinWindow(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	marks, mr := newMarks(t)
	notifier := newFakeNotifier()

	u := f.user(t, 201)
	f.subscription(t, u.ID, models.SubscriptionActive, day+time.Hour)

	n := NewExpiryNotifier(f.repo, f.catalog, notifier, marks, 1, logger.Discard())
	n.now = fixedClock

	_, err := n.Notify(ctx)
	require.NoError(t, err)
	res, err := n.Notify(ctx)
	require.NoError(t, err)

	assert.Equal(t, 1, res.Skipped)
	assert.Zero(t, res.Sent)
	assert.Len(t, notifier.messages(), 1)

	mr.FastForward(reminderMarkTTL + time.Minute)
	res, err = n.Notify(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Sent, "mark expired")
}

func TestExpiryNotifier_FailedSendIsRetried(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	marks, _ := newMarks(t)
	notifier := newFakeNotifier()

	blocked := f.user(t, 301)
	ok := f.user(t, 302)
	sub := f.subscription(t, blocked.ID, models.SubscriptionActive, day+time.Hour)
	f.subscription(t, ok.ID, models.SubscriptionActive, day+time.Hour)
	notifier.fail[301] = true

	n := NewExpiryNotifier(f.repo, f.catalog, notifier, marks, 1, logger.Discard())
	n.now = fixedClock

	res, err := n.Notify(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Sent, "one failure does not stop the scan")
	require.Len(t, res.Failures, 1)
	assert.Equal(t, sub.SubscriptionID, res.Failures[0].ID)

	notifier.fail[301] = false
	res, err = n.Notify(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Sent)
	assert.Equal(t, 1, res.Skipped)
}

func TestExpiryNotifier_WithoutMarks(t *testing.T) {
	f := newFixture(t)
	notifier := newFakeNotifier()
	u := f.user(t, 401)
	f.subscription(t, u.ID, models.SubscriptionActive, 3*day+time.Hour)

	n := NewExpiryNotifier(f.repo, f.catalog, notifier, nil, 3, logger.Discard())
	n.now = fixedClock

	for i := 0; i < 2; i++ {
		res, err := n.Notify(context.Background())
		require.NoError(t, err)
		assert.Equal(t, 1, res.Sent)
	}
	assert.Len(t, notifier.messages(), 2, "window alone does not deduplicate")
}

func TestExpirySweeper_Sweep(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	notifier := newFakeNotifier()

	u1 := f.user(t, 501)
	u2 := f.user(t, 502)
	u3 := f.user(t, 503)
	lapsed := f.subscription(t, u1.ID, models.SubscriptionActive, -time.Hour)
	raced := f.subscription(t, u2.ID, models.SubscriptionActive, -time.Minute)
	broken := f.subscription(t, u3.ID, models.SubscriptionActive, -day)
	f.subscription(t, u1.ID, models.SubscriptionActive, day)

	expirer := &fakeExpirer{
		expired: map[uint]bool{lapsed.ID: true, raced.ID: false},
		errs:    map[uint]error{broken.ID: errors.New("db is gone")},
	}

	s := NewExpirySweeper(f.repo, expirer, f.catalog, notifier, logger.Discard())
	s.now = fixedClock

	res, err := s.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, res.Scanned)
	assert.Equal(t, 1, res.Changed)
	require.Len(t, res.Failures, 1)
	assert.Equal(t, broken.SubscriptionID, res.Failures[0].ID)

	msgs := notifier.messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, "expired", msgs[0].Kind)
	assert.Equal(t, models.TelegramID(501), msgs[0].To)
}
