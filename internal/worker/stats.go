package worker

import (
	"context"
	"fmt"

	"vpnbot/internal/outline"
	"vpnbot/internal/repository"
)

type ServerInspector interface {
	ListKeys(ctx context.Context) ([]outline.AccessKey, error)
	GetServerInfo(ctx context.Context) (*outline.ServerInfo, error)
	GetMetrics(ctx context.Context) (*outline.Metrics, error)
}

type Stats struct {
	Users            int64
	LiveKeys         int64
	ServerKeys       int
	Server           *outline.ServerInfo
	BytesTransferred int64
	// ServerErr is set when the VPN server could not be queried; the
	// database figures are still valid.
	ServerErr error
}

// ServerStats collects figures for the admin panel.
func ServerStats(ctx context.Context, repo repository.Gateway, server ServerInspector) (*Stats, error) {
	users, err := repo.CountUsers(ctx)
	if err != nil {
		return nil, err
	}
	liveKeys, err := repo.CountLiveKeys(ctx)
	if err != nil {
		return nil, err
	}

	stats := &Stats{Users: users, LiveKeys: liveKeys}

	info, err := server.GetServerInfo(ctx)
	if err != nil {
		stats.ServerErr = fmt.Errorf("server info: %w", err)
		return stats, nil
	}
	stats.Server = info

	keys, err := server.ListKeys(ctx)
	if err != nil {
		stats.ServerErr = fmt.Errorf("key list: %w", err)
		return stats, nil
	}
	stats.ServerKeys = len(keys)

	metrics, err := server.GetMetrics(ctx)
	if err != nil {
		stats.ServerErr = fmt.Errorf("metrics: %w", err)
		return stats, nil
	}
	stats.BytesTransferred = metrics.Total()

	return stats, nil
}
