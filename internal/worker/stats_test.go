package worker

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vpnbot/internal/apperrors"
	"vpnbot/internal/models"
	"vpnbot/internal/outline"
)

type fakeServer struct {
	fakeLister
	info    *outline.ServerInfo
	infoErr error
	metrics *outline.Metrics
}

func (f *fakeServer) GetServerInfo(context.Context) (*outline.ServerInfo, error) {
	return f.info, f.infoErr
}

func (f *fakeServer) GetMetrics(context.Context) (*outline.Metrics, error) {
	return f.metrics, nil
}

func TestServerStats(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	u := f.user(t, 1)
	f.user(t, 2)
	sub := f.subscription(t, u.ID, models.SubscriptionActive, day)
	f.key(t, u.ID, sub.ID, "1")

	server := &fakeServer{
		fakeLister: fakeLister{keys: inventory("1", "2")},
		info:       &outline.ServerInfo{Name: "nl-1", Version: "1.9.0"},
		metrics:    &outline.Metrics{BytesTransferredByUserID: map[string]int64{"1": 1 << 20, "2": 1 << 10}},
	}

	stats, err := ServerStats(ctx, f.repo, server)
	require.NoError(t, err)
	assert.EqualValues(t, 2, stats.Users)
	assert.EqualValues(t, 1, stats.LiveKeys)
	assert.Equal(t, 2, stats.ServerKeys)
	assert.Equal(t, "nl-1", stats.Server.Name)
	assert.EqualValues(t, 1<<20+1<<10, stats.BytesTransferred)
	assert.NoError(t, stats.ServerErr)
}

func TestServerStats_ServerDown(t *testing.T) {
	f := newFixture(t)
	f.user(t, 1)

	server := &fakeServer{infoErr: apperrors.ProviderUnavailable("outline", errors.New("refused"))}

	stats, err := ServerStats(context.Background(), f.repo, server)
	require.NoError(t, err)
	assert.EqualValues(t, 1, stats.Users)
	assert.Nil(t, stats.Server)
	assert.ErrorIs(t, stats.ServerErr, apperrors.ErrProviderUnavailable)
}
