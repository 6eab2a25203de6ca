/**
 * @description
 * Client for the momo-service internal trigger endpoints, used by the scheduler.
 */
package paymentsclient

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/Turabayo/she-saves-bloom-sub000/internal/domain"
)

// Client calls the momo-service internal API.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewClient creates a new momo-service client.
func NewClient(baseURL, apiKey string) *Client {
	return &Client{
		baseURL:    strings.TrimSuffix(strings.TrimSpace(baseURL), "/"),
		apiKey:     strings.TrimSpace(apiKey),
		httpClient: &http.Client{Timeout: 5 * time.Minute},
	}
}

// ExecuteAutoSavings triggers the auto-savings run.
func (c *Client) ExecuteAutoSavings(ctx context.Context) (*domain.AutoSavingsSummary, error) {
	var summary domain.AutoSavingsSummary
	if err := c.post(ctx, "/internal/auto-savings/execute", &summary); err != nil {
		return nil, err
	}
	return &summary, nil
}

// ReconcilePayments triggers batch reconciliation of stale PENDING payments.
func (c *Client) ReconcilePayments(ctx context.Context) (*domain.ReconcileSummary, error) {
	var summary domain.ReconcileSummary
	if err := c.post(ctx, "/internal/payments/reconcile", &summary); err != nil {
		return nil, err
	}
	return &summary, nil
}

func (c *Client) post(ctx context.Context, path string, out interface{}) error {
	if c.baseURL == "" {
		return fmt.Errorf("payments service base URL is not configured")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if c.apiKey != "" {
		req.Header.Set("X-Internal-API-Key", c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to execute request to payments service: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("payments service returned error status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode payments service response: %w", err)
	}
	return nil
}
