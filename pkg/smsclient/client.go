/**
 * @description
 * Client for the SMS delivery service. Messages are fire-and-forget from the
 * caller's point of view; the client only reports transport or HTTP failures.
 */
package smsclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// ErrNotConfigured is returned when no SMS service URL is set.
var ErrNotConfigured = errors.New("sms service URL is not configured")

// Message is the request body accepted by the SMS service.
type Message struct {
	PhoneNumber string `json:"phoneNumber"`
	Message     string `json:"message"`
}

// Client is a client for the SMS service.
type Client struct {
	url        string
	apiKey     string
	httpClient *http.Client
}

// NewClient creates a new SMS service client. apiKey is optional and sent as a bearer token.
func NewClient(url, apiKey string) *Client {
	return &Client{
		url:        strings.TrimSpace(url),
		apiKey:     strings.TrimSpace(apiKey),
		httpClient: &http.Client{Timeout: 15 * time.Second},
	}
}

// Configured reports whether Send can reach a service.
func (c *Client) Configured() bool {
	return c != nil && c.url != ""
}

// Send delivers one text message.
func (c *Client) Send(ctx context.Context, phone, message string) error {
	if !c.Configured() {
		return ErrNotConfigured
	}

	body, err := json.Marshal(Message{PhoneNumber: phone, Message: message})
	if err != nil {
		return fmt.Errorf("failed to marshal sms payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewBuffer(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to execute request to sms service: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("sms service returned error status %d", resp.StatusCode)
	}
	return nil
}
