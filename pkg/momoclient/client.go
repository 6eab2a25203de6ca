/**
 * @description
 * This package provides a client for the MTN Mobile Money (MoMo) Open API.
 * It covers the two products the savings core needs: Collection (request-to-pay,
 * used for top-ups) and Disbursement (transfer, used for withdrawals), plus the
 * status lookups for both.
 *
 * @notes
 * - Every call authenticates with a product-scoped bearer token obtained through
 *   TokenProvider. Tokens are cached until shortly before they expire.
 * - Request-to-pay and transfer are asynchronous on the provider side: an accepted
 *   request is answered with 202 and no body. The final outcome is fetched via
 *   the status endpoints or delivered to the callback URL.
 */
package momoclient

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

	"go.uber.org/zap"
)

// Product selects the MoMo API product and its credentials.
type Product string

const (
	ProductCollection   Product = "collection"
	ProductDisbursement Product = "disbursement"
)

var (
	// ErrMissingCredentials is returned before any network call when a product is not configured.
	ErrMissingCredentials = errors.New("momo credentials are not configured")
	// ErrTokenUnavailable wraps every failure to obtain an access token.
	ErrTokenUnavailable = errors.New("momo access token unavailable")
)

// ProductCredentials are the per-product secrets issued by the MoMo developer portal.
type ProductCredentials struct {
	SubscriptionKey string
	APIUser         string
	APIKey          string
}

func (c ProductCredentials) complete() bool {
	return strings.TrimSpace(c.SubscriptionKey) != "" &&
		strings.TrimSpace(c.APIUser) != "" &&
		strings.TrimSpace(c.APIKey) != ""
}

// Config holds everything needed to talk to the MoMo API.
type Config struct {
	BaseURL           string
	TargetEnvironment string
	Currency          string
	CallbackURL       string
	Collection        ProductCredentials
	Disbursement      ProductCredentials
	// TokenExpirySkew is subtracted from expires_in so a token is refreshed before the provider rejects it.
	TokenExpirySkew time.Duration
}

// Client is a client for the MTN MoMo API.
type Client struct {
	cfg        Config
	HTTPClient *http.Client
	tokens     *TokenProvider
	logger     *zap.Logger
}

// NewClient creates a new MoMo API client. cache may be nil, in which case tokens
// are only cached in process memory.
func NewClient(cfg Config, cache TokenCache, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg.BaseURL = strings.TrimSuffix(strings.TrimSpace(cfg.BaseURL), "/")
	if cfg.TargetEnvironment == "" {
		cfg.TargetEnvironment = "sandbox"
	}
	if cfg.Currency == "" {
		cfg.Currency = "EUR"
	}
	httpClient := &http.Client{Timeout: 30 * time.Second}
	c := &Client{
		cfg:        cfg,
		HTTPClient: httpClient,
		logger:     logger.Named("momo_client"),
	}
	c.tokens = newTokenProvider(c, cache, cfg.TokenExpirySkew)
	return c
}

// Currency is the configured transaction currency.
func (c *Client) Currency() string {
	return c.cfg.Currency
}

// Tokens exposes the token provider, mainly for warm-up and tests.
func (c *Client) Tokens() *TokenProvider {
	return c.tokens
}

func (c *Client) credentials(product Product) (ProductCredentials, error) {
	var creds ProductCredentials
	switch product {
	case ProductCollection:
		creds = c.cfg.Collection
	case ProductDisbursement:
		creds = c.cfg.Disbursement
	default:
		return creds, fmt.Errorf("unknown momo product %q", product)
	}
	if c.cfg.BaseURL == "" || !creds.complete() {
		return creds, fmt.Errorf("%w: %s", ErrMissingCredentials, product)
	}
	return creds, nil
}

// CheckCredentials reports ErrMissingCredentials when the product cannot be used.
func (c *Client) CheckCredentials(product Product) error {
	_, err := c.credentials(product)
	return err
}

// Party identifies a payer or payee.
type Party struct {
	PartyIDType string `json:"partyIdType"`
	PartyID     string `json:"partyId"`
}

// MSISDN builds a phone-number party.
func MSISDN(phone string) *Party {
	return &Party{PartyIDType: "MSISDN", PartyID: phone}
}

// PaymentRequest is the body of both request-to-pay (Payer set) and transfer (Payee set).
type PaymentRequest struct {
	Amount       string `json:"amount"`
	Currency     string `json:"currency"`
	ExternalID   string `json:"externalId"`
	Payer        *Party `json:"payer,omitempty"`
	Payee        *Party `json:"payee,omitempty"`
	PayerMessage string `json:"payerMessage"`
	PayeeNote    string `json:"payeeNote"`
}

// StatusResponse is returned by the request-to-pay and transfer status endpoints.
type StatusResponse struct {
	Amount                 string  `json:"amount"`
	Currency               string  `json:"currency"`
	ExternalID             string  `json:"externalId"`
	FinancialTransactionID string  `json:"financialTransactionId"`
	Status                 string  `json:"status"`
	Reason                 *Reason `json:"reason,omitempty"`
}

// Reason is the failure reason. MoMo sends it either as a string or as {code,message}.
type Reason struct {
	Code    string `json:"code,omitempty"`
	Message string `json:"message,omitempty"`
}

// UnmarshalJSON accepts both reason shapes.
func (r *Reason) UnmarshalJSON(data []byte) error {
	if len(data) > 0 && data[0] == '"' {
		return json.Unmarshal(data, &r.Code)
	}
	type alias Reason
	var a alias
	if err := json.Unmarshal(data, &a); err != nil {
		return err
	}
	*r = Reason(a)
	return nil
}

func (r *Reason) String() string {
	if r == nil {
		return ""
	}
	if r.Message != "" {
		return r.Message
	}
	return r.Code
}

// APIError is a non-success response from the MoMo API.
type APIError struct {
	Op         string
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	body := strings.TrimSpace(e.Body)
	if body == "" {
		return fmt.Sprintf("momo api error: %s returned status %d", e.Op, e.StatusCode)
	}
	return fmt.Sprintf("momo api error: %s returned status %d: %s", e.Op, e.StatusCode, body)
}

// RequestToPay asks the payer to approve a debit of their wallet. A nil error means
// the provider accepted the request (202), not that money moved.
func (c *Client) RequestToPay(ctx context.Context, referenceID string, req PaymentRequest) error {
	if req.Currency == "" {
		req.Currency = c.cfg.Currency
	}
	return c.submit(ctx, ProductCollection, "request_to_pay", "/collection/v1_0/requesttopay", referenceID, req)
}

// Transfer sends money from the disbursement account to the payee. A nil error
// means the provider accepted the request (202).
func (c *Client) Transfer(ctx context.Context, referenceID string, req PaymentRequest) error {
	if req.Currency == "" {
		req.Currency = c.cfg.Currency
	}
	return c.submit(ctx, ProductDisbursement, "transfer", "/disbursement/v1_0/transfer", referenceID, req)
}

// RequestToPayStatus fetches the provider-side status of a top-up.
func (c *Client) RequestToPayStatus(ctx context.Context, referenceID string) (*StatusResponse, error) {
	return c.status(ctx, ProductCollection, "request_to_pay_status", "/collection/v1_0/requesttopay/", referenceID)
}

// TransferStatus fetches the provider-side status of a withdrawal.
func (c *Client) TransferStatus(ctx context.Context, referenceID string) (*StatusResponse, error) {
	return c.status(ctx, ProductDisbursement, "transfer_status", "/disbursement/v1_0/transfer/", referenceID)
}

func (c *Client) submit(ctx context.Context, product Product, op, path, referenceID string, payload PaymentRequest) error {
	creds, err := c.credentials(product)
	if err != nil {
		return err
	}
	token, err := c.tokens.Token(ctx, product)
	if err != nil {
		return err
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal %s request: %w", op, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create %s request: %w", op, err)
	}
	c.setHeaders(req, creds, token)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Reference-Id", referenceID)
	if c.cfg.CallbackURL != "" {
		req.Header.Set("X-Callback-Url", c.cfg.CallbackURL)
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to execute %s request: %w", op, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusAccepted {
		c.dropRejectedToken(ctx, product, resp.StatusCode)
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		c.logger.Warn("non-202 response",
			zap.String("op", op),
			zap.String("reference_id", referenceID),
			zap.Int("status", resp.StatusCode),
			zap.String("body", string(respBody)),
		)
		return &APIError{Op: op, StatusCode: resp.StatusCode, Body: string(respBody)}
	}
	return nil
}

func (c *Client) status(ctx context.Context, product Product, op, pathPrefix, referenceID string) (*StatusResponse, error) {
	creds, err := c.credentials(product)
	if err != nil {
		return nil, err
	}
	token, err := c.tokens.Token(ctx, product)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.BaseURL+pathPrefix+referenceID, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create %s request: %w", op, err)
	}
	c.setHeaders(req, creds, token)

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to execute %s request: %w", op, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s response: %w", op, err)
	}
	if resp.StatusCode != http.StatusOK {
		c.dropRejectedToken(ctx, product, resp.StatusCode)
		c.logger.Warn("non-200 status response",
			zap.String("op", op),
			zap.String("reference_id", referenceID),
			zap.Int("status", resp.StatusCode),
		)
		return nil, &APIError{Op: op, StatusCode: resp.StatusCode, Body: string(respBody)}
	}

	var out StatusResponse
	if err := json.Unmarshal(respBody, &out); err != nil {
		return nil, fmt.Errorf("failed to decode %s response: %w", op, err)
	}
	return &out, nil
}

// dropRejectedToken forgets the bearer token after a 401 so a revoked token is
// replaced on the next call instead of being reused until it expires.
func (c *Client) dropRejectedToken(ctx context.Context, product Product, statusCode int) {
	if statusCode != http.StatusUnauthorized {
		return
	}
	c.logger.Warn("access token rejected; invalidating", zap.String("product", string(product)))
	c.tokens.Invalidate(context.WithoutCancel(ctx), product)
}

func (c *Client) setHeaders(req *http.Request, creds ProductCredentials, token string) {
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("X-Target-Environment", c.cfg.TargetEnvironment)
	req.Header.Set("Ocp-Apim-Subscription-Key", creds.SubscriptionKey)
}
