// Package outline is a client for the Outline VPN server management API.
package outline

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"vpnbot/internal/apperrors"
	"vpnbot/internal/config"
)

const providerName = "outline"

type Client struct {
	BaseURL    string
	HTTPClient *http.Client
}

func NewClient(cfg config.OutlineConfig) *Client {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	if cfg.InsecureTLS {
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec // self-signed management API
	}
	return &Client{
		BaseURL: strings.TrimRight(cfg.APIURL, "/"),
		HTTPClient: &http.Client{
			Timeout:   cfg.Timeout,
			Transport: transport,
		},
	}
}

// KeyName builds the display name of a key that is valid until expiresAt.
func KeyName(base string, expiresAt time.Time) string {
	if base == "" {
		base = "VPN"
	}
	return fmt.Sprintf("%s (until %s)", base, expiresAt.UTC().Format("2006-01-02"))
}

func (c *Client) doRequest(ctx context.Context, method, endpoint string, body any) ([]byte, error) {
	var bodyReader io.Reader
	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request body: %w", err)
		}
		bodyReader = bytes.NewReader(jsonBody)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+endpoint, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, apperrors.ProviderUnavailable(providerName, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, apperrors.ProviderUnavailable(providerName, fmt.Errorf("failed to read response body: %w", err))
	}

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, apperrors.NotFound("outline resource", endpoint)
	case resp.StatusCode >= 500:
		return nil, apperrors.ProviderUnavailable(providerName,
			fmt.Errorf("api error: %s (status: %d)", strings.TrimSpace(string(respBody)), resp.StatusCode))
	case resp.StatusCode >= 400:
		return nil, fmt.Errorf("outline api error: %s (status: %d)", strings.TrimSpace(string(respBody)), resp.StatusCode)
	}

	return respBody, nil
}

func (c *Client) GetServerInfo(ctx context.Context) (*ServerInfo, error) {
	resp, err := c.doRequest(ctx, http.MethodGet, "/server", nil)
	if err != nil {
		return nil, err
	}

	var info ServerInfo
	if err := json.Unmarshal(resp, &info); err != nil {
		return nil, fmt.Errorf("failed to unmarshal server info: %w", err)
	}
	return &info, nil
}

func (c *Client) GetMetrics(ctx context.Context) (*Metrics, error) {
	resp, err := c.doRequest(ctx, http.MethodGet, "/metrics/transfer", nil)
	if err != nil {
		return nil, err
	}

	var metrics Metrics
	if err := json.Unmarshal(resp, &metrics); err != nil {
		return nil, fmt.Errorf("failed to unmarshal metrics: %w", err)
	}
	if metrics.BytesTransferredByUserID == nil {
		metrics.BytesTransferredByUserID = map[string]int64{}
	}
	return &metrics, nil
}

func (c *Client) ListKeys(ctx context.Context) ([]AccessKey, error) {
	resp, err := c.doRequest(ctx, http.MethodGet, "/access-keys", nil)
	if err != nil {
		return nil, err
	}

	var list listKeysResponse
	if err := json.Unmarshal(resp, &list); err != nil {
		return nil, fmt.Errorf("failed to unmarshal access keys: %w", err)
	}
	return list.AccessKeys, nil
}

func (c *Client) CreateKey(ctx context.Context, name string) (*AccessKey, error) {
	resp, err := c.doRequest(ctx, http.MethodPost, "/access-keys", nameRequest{Name: name})
	if err != nil {
		return nil, err
	}

	var key AccessKey
	if err := json.Unmarshal(resp, &key); err != nil {
		return nil, fmt.Errorf("failed to unmarshal access key: %w", err)
	}
	if key.ID == "" || key.AccessURL == "" {
		return nil, apperrors.ProviderUnavailable(providerName, fmt.Errorf("incomplete access key in response"))
	}
	// older servers ignore the name in the create body
	if name != "" && key.Name != name {
		if err := c.RenameKey(ctx, key.ID, name); err != nil {
			return nil, err
		}
		key.Name = name
	}
	return &key, nil
}

// CreateKeyWithExpiration creates a key whose name carries the expiry date.
// Outline itself has no expiry; the date is informational.
func (c *Client) CreateKeyWithExpiration(ctx context.Context, base string, expiresAt time.Time) (*AccessKey, error) {
	return c.CreateKey(ctx, KeyName(base, expiresAt))
}

func (c *Client) DeleteKey(ctx context.Context, id string) error {
	_, err := c.doRequest(ctx, http.MethodDelete, "/access-keys/"+id, nil)
	return err
}

func (c *Client) RenameKey(ctx context.Context, id, name string) error {
	_, err := c.doRequest(ctx, http.MethodPut, "/access-keys/"+id+"/name", nameRequest{Name: name})
	return err
}

// SetDataLimit caps the traffic of a key. A zero limit suspends the key while
// its access URL stays valid.
func (c *Client) SetDataLimit(ctx context.Context, id string, bytes int64) error {
	_, err := c.doRequest(ctx, http.MethodPut, "/access-keys/"+id+"/data-limit", dataLimitRequest{Limit: DataLimit{Bytes: bytes}})
	return err
}

func (c *Client) RemoveDataLimit(ctx context.Context, id string) error {
	_, err := c.doRequest(ctx, http.MethodDelete, "/access-keys/"+id+"/data-limit", nil)
	return err
}
