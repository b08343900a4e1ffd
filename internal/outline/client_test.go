package outline

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vpnbot/internal/apperrors"
	"vpnbot/internal/config"
)

type recordedRequest struct {
	Method string
	Path   string
	Body   string
}

type fakeServer struct {
	mu       sync.Mutex
	requests []recordedRequest
	handler  http.HandlerFunc
}

func newTestClient(t *testing.T, handler http.HandlerFunc) (*Client, *fakeServer) {
	t.Helper()
	fs := &fakeServer{handler: handler}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		fs.mu.Lock()
		fs.requests = append(fs.requests, recordedRequest{Method: r.Method, Path: r.URL.Path, Body: string(body)})
		fs.mu.Unlock()
		fs.handler(w, r)
	}))
	t.Cleanup(srv.Close)

	client := NewClient(config.OutlineConfig{APIURL: srv.URL + "/secret/", Timeout: time.Second})
	return client, fs
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func TestClient_ListKeys(t *testing.T) {
	client, fs := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"accessKeys": []map[string]any{
				{"id": "1", "name": "tg1-dev1", "accessUrl": "ss://one"},
				{"id": "2", "name": "tg2-dev1", "accessUrl": "ss://two"},
			},
		})
	})

	keys, err := client.ListKeys(context.Background())
	require.NoError(t, err)
	require.Len(t, keys, 2)
	assert.Equal(t, "ss://two", keys[1].AccessURL)
	assert.Equal(t, "/secret/access-keys", fs.requests[0].Path)
}

func TestClient_CreateKey(t *testing.T) {
	t.Run("name accepted on create", func(t *testing.T) {
		client, fs := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusCreated, map[string]any{"id": "5", "name": "tg1-dev1", "accessUrl": "ss://five"})
		})

		key, err := client.CreateKey(context.Background(), "tg1-dev1")
		require.NoError(t, err)
		assert.Equal(t, "5", key.ID)
		require.Len(t, fs.requests, 1)
		assert.JSONEq(t, `{"name":"tg1-dev1"}`, fs.requests[0].Body)
	})

	t.Run("renames when server ignores the name", func(t *testing.T) {
		client, fs := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			if r.Method == http.MethodPut {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			writeJSON(w, http.StatusCreated, map[string]any{"id": "6", "name": "", "accessUrl": "ss://six"})
		})

		key, err := client.CreateKey(context.Background(), "tg1-dev2")
		require.NoError(t, err)
		assert.Equal(t, "tg1-dev2", key.Name)
		require.Len(t, fs.requests, 2)
		assert.Equal(t, http.MethodPut, fs.requests[1].Method)
		assert.Equal(t, "/secret/access-keys/6/name", fs.requests[1].Path)
	})
}

func TestClient_CreateKeyWithExpiration(t *testing.T) {
	client, fs := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusCreated, map[string]any{"id": "9", "name": "tg1-dev1 (until 2026-04-01)", "accessUrl": "ss://nine"})
	})

	expires := time.Date(2026, 4, 1, 23, 0, 0, 0, time.UTC)
	key, err := client.CreateKeyWithExpiration(context.Background(), "tg1-dev1", expires)
	require.NoError(t, err)
	assert.Equal(t, "tg1-dev1 (until 2026-04-01)", key.Name)
	assert.JSONEq(t, `{"name":"tg1-dev1 (until 2026-04-01)"}`, fs.requests[0].Body)
}

func TestClient_DataLimit(t *testing.T) {
	client, fs := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	require.NoError(t, client.SetDataLimit(context.Background(), "3", 0))
	require.NoError(t, client.RemoveDataLimit(context.Background(), "3"))

	require.Len(t, fs.requests, 2)
	assert.Equal(t, http.MethodPut, fs.requests[0].Method)
	assert.Equal(t, "/secret/access-keys/3/data-limit", fs.requests[0].Path)
	assert.JSONEq(t, `{"limit":{"bytes":0}}`, fs.requests[0].Body)
	assert.Equal(t, http.MethodDelete, fs.requests[1].Method)
}

func TestClient_Metrics(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"bytesTransferredByUserId": map[string]int64{"1": 100, "2": 50}})
	})

	metrics, err := client.GetMetrics(context.Background())
	require.NoError(t, err)
	assert.EqualValues(t, 150, metrics.Total())
	assert.EqualValues(t, 100, metrics.BytesTransferredByUserID["1"])
}

func TestClient_ErrorMapping(t *testing.T) {
	tests := []struct {
		name   string
		status int
		target error
	}{
		{name: "not found", status: http.StatusNotFound, target: apperrors.ErrNotFound},
		{name: "server error", status: http.StatusBadGateway, target: apperrors.ErrProviderUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				http.Error(w, "nope", tt.status)
			})

			err := client.DeleteKey(context.Background(), "42")
			assert.ErrorIs(t, err, tt.target)
		})
	}

	t.Run("bad request is not a provider outage", func(t *testing.T) {
		client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "bad", http.StatusBadRequest)
		})

		err := client.RenameKey(context.Background(), "42", "x")
		require.Error(t, err)
		assert.NotErrorIs(t, err, apperrors.ErrProviderUnavailable)
	})

	t.Run("unreachable server", func(t *testing.T) {
		client := NewClient(config.OutlineConfig{APIURL: "http://127.0.0.1:1", Timeout: time.Second})
		_, err := client.GetServerInfo(context.Background())
		assert.ErrorIs(t, err, apperrors.ErrProviderUnavailable)
	})
}
