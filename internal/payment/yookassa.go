// Package payment is the YooKassa payment provider client.
package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"

	"vpnbot/internal/apperrors"
	"vpnbot/internal/config"
)

const providerName = "yookassa"

type Client struct {
	ShopID     string
	SecretKey  string
	APIURL     string
	ReturnURL  string
	Currency   string
	HTTPClient *http.Client

	retryInitial time.Duration
	maxRetries   uint64
}

func NewClient(cfg config.YookassaConfig) *Client {
	return &Client{
		ShopID:    cfg.ShopID,
		SecretKey: cfg.SecretKey,
		APIURL:    strings.TrimRight(cfg.APIURL, "/"),
		ReturnURL: cfg.ReturnURL,
		Currency:  cfg.Currency,
		HTTPClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		retryInitial: 500 * time.Millisecond,
		maxRetries:   3,
	}
}

func (c *Client) doRequest(ctx context.Context, method, endpoint string, body any) ([]byte, error) {
	var bodyReader io.Reader
	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request: %w", err)
		}
		bodyReader = bytes.NewReader(jsonBody)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.APIURL+endpoint, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	if method == http.MethodPost {
		req.Header.Set("Idempotence-Key", uuid.NewString())
	}
	req.Header.Set("Content-Type", "application/json")
	req.SetBasicAuth(c.ShopID, c.SecretKey)

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, apperrors.ProviderUnavailable(providerName, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, apperrors.ProviderUnavailable(providerName, fmt.Errorf("failed to read response: %w", err))
	}

	if resp.StatusCode >= 400 {
		apiErr := describe(respBody)
		switch {
		case resp.StatusCode == http.StatusNotFound:
			return nil, apperrors.NotFound("yookassa resource", endpoint)
		case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
			return nil, apperrors.ProviderUnavailable(providerName,
				fmt.Errorf("api error: %s (status: %d)", apiErr, resp.StatusCode))
		default:
			return nil, fmt.Errorf("yookassa api error: %s (status: %d)", apiErr, resp.StatusCode)
		}
	}

	return respBody, nil
}

func describe(body []byte) string {
	var apiErr apiError
	if err := json.Unmarshal(body, &apiErr); err == nil && apiErr.Description != "" {
		return apiErr.Code + ": " + apiErr.Description
	}
	return strings.TrimSpace(string(body))
}

// CreatePayment starts a redirect checkout with immediate capture.
func (c *Client) CreatePayment(ctx context.Context, in CreatePaymentInput) (*PaymentResponse, error) {
	if in.Amount <= 0 {
		return nil, fmt.Errorf("payment amount must be positive, got %.2f", in.Amount)
	}

	reqBody := CreatePaymentRequest{
		Amount: Amount{
			Value:    fmt.Sprintf("%.2f", in.Amount),
			Currency: c.Currency,
		},
		Capture: true,
		Confirmation: Confirmation{
			Type:      "redirect",
			ReturnURL: c.ReturnURL,
		},
		Description: in.Description,
		Metadata:    in.Metadata,
	}

	resp, err := c.doRequest(ctx, http.MethodPost, "/payments", reqBody)
	if err != nil {
		return nil, err
	}

	var paymentResponse PaymentResponse
	if err := json.Unmarshal(resp, &paymentResponse); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response: %w", err)
	}
	if paymentResponse.ID == "" {
		return nil, apperrors.ProviderUnavailable(providerName, errors.New("payment id missing in response"))
	}

	return &paymentResponse, nil
}

// FindPayment fetches the current state of a payment. Transient failures are
// retried with exponential backoff a bounded number of times.
func (c *Client) FindPayment(ctx context.Context, paymentID string) (*PaymentResponse, error) {
	var paymentResponse PaymentResponse

	operation := func() error {
		resp, err := c.doRequest(ctx, http.MethodGet, "/payments/"+paymentID, nil)
		if err != nil {
			if errors.Is(err, apperrors.ErrProviderUnavailable) {
				return err
			}
			return backoff.Permanent(err)
		}
		if err := json.Unmarshal(resp, &paymentResponse); err != nil {
			return backoff.Permanent(fmt.Errorf("failed to unmarshal response: %w", err))
		}
		return nil
	}

	if err := backoff.Retry(operation, c.backOff(ctx)); err != nil {
		return nil, err
	}
	return &paymentResponse, nil
}

func (c *Client) backOff(ctx context.Context) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.retryInitial
	b.MaxInterval = 5 * c.retryInitial
	return backoff.WithContext(backoff.WithMaxRetries(b, c.maxRetries), ctx)
}
