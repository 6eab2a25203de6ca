package momoclient

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// DefaultTokenExpirySkew is used when Config.TokenExpirySkew is zero.
const DefaultTokenExpirySkew = 60 * time.Second

// tokenFetchTimeout bounds a shared token fetch, which outlives any one caller.
const tokenFetchTimeout = 15 * time.Second

// TokenCache is an optional shared store for access tokens, so several replicas
// reuse one token per product. Implementations must expire entries after ttl.
type TokenCache interface {
	// GetToken returns the token and its remaining lifetime; ttl <= 0 means a miss.
	GetToken(ctx context.Context, product Product) (token string, ttl time.Duration, err error)
	SetToken(ctx context.Context, product Product, token string, ttl time.Duration) error
	DeleteToken(ctx context.Context, product Product) error
}

// TokenResponse is the body returned by POST /{product}/token/.
type TokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int64  `json:"expires_in"`
}

type cachedToken struct {
	value     string
	expiresAt time.Time
}

// TokenProvider obtains and caches product-scoped access tokens.
type TokenProvider struct {
	client *Client
	shared TokenCache
	skew   time.Duration
	now    func() time.Time

	mu     sync.Mutex
	memory map[Product]cachedToken
	group  singleflight.Group
}

func newTokenProvider(client *Client, shared TokenCache, skew time.Duration) *TokenProvider {
	if skew <= 0 {
		skew = DefaultTokenExpirySkew
	}
	return &TokenProvider{
		client: client,
		shared: shared,
		skew:   skew,
		now:    time.Now,
		memory: make(map[Product]cachedToken),
	}
}

// Token returns a valid bearer token for product, fetching a new one when the
// cached token is missing or within the expiry skew. Concurrent callers share one
// fetch, which is detached from any single caller's cancellation.
func (p *TokenProvider) Token(ctx context.Context, product Product) (string, error) {
	if token, ok := p.fromMemory(product); ok {
		return token, nil
	}

	ch := p.group.DoChan(string(product), func() (interface{}, error) {
		if token, ok := p.fromMemory(product); ok {
			return token, nil
		}
		fetchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), tokenFetchTimeout)
		defer cancel()

		if p.shared != nil {
			token, ttl, err := p.shared.GetToken(fetchCtx, product)
			if err != nil {
				p.client.logger.Warn("shared token cache read failed",
					zap.String("product", string(product)), zap.Error(err))
			} else if ttl > 0 && token != "" {
				p.remember(product, token, p.now().Add(ttl))
				return token, nil
			}
		}
		return p.fetch(fetchCtx, product)
	})

	select {
	case <-ctx.Done():
		return "", fmt.Errorf("%w: %w", ErrTokenUnavailable, ctx.Err())
	case res := <-ch:
		if res.Err != nil {
			return "", res.Err
		}
		return res.Val.(string), nil
	}
}

// Invalidate drops the cached token for product, locally and in the shared cache,
// so the next call fetches a fresh one.
func (p *TokenProvider) Invalidate(ctx context.Context, product Product) {
	p.mu.Lock()
	delete(p.memory, product)
	p.mu.Unlock()

	if p.shared != nil {
		if err := p.shared.DeleteToken(ctx, product); err != nil {
			p.client.logger.Warn("shared token cache delete failed",
				zap.String("product", string(product)), zap.Error(err))
		}
	}
}

func (p *TokenProvider) fromMemory(product Product) (string, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	entry, ok := p.memory[product]
	if !ok || !p.now().Before(entry.expiresAt) {
		return "", false
	}
	return entry.value, true
}

func (p *TokenProvider) remember(product Product, token string, expiresAt time.Time) {
	p.mu.Lock()
	p.memory[product] = cachedToken{value: token, expiresAt: expiresAt}
	p.mu.Unlock()
}

func (p *TokenProvider) fetch(ctx context.Context, product Product) (string, error) {
	creds, err := p.client.credentials(product)
	if err != nil {
		return "", err
	}

	url := fmt.Sprintf("%s/%s/token/", p.client.cfg.BaseURL, product)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, nil)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrTokenUnavailable, err)
	}
	req.SetBasicAuth(creds.APIUser, creds.APIKey)
	req.Header.Set("Ocp-Apim-Subscription-Key", creds.SubscriptionKey)

	resp, err := p.client.HTTPClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrTokenUnavailable, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err != nil {
		return "", fmt.Errorf("%w: read body: %v", ErrTokenUnavailable, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		p.client.logger.Warn("token request rejected",
			zap.String("product", string(product)), zap.Int("status", resp.StatusCode))
		return "", fmt.Errorf("%w: status %d: %s", ErrTokenUnavailable, resp.StatusCode, string(body))
	}

	var tr TokenResponse
	if err := json.Unmarshal(body, &tr); err != nil {
		return "", fmt.Errorf("%w: decode: %v", ErrTokenUnavailable, err)
	}
	if tr.AccessToken == "" {
		return "", fmt.Errorf("%w: empty access_token", ErrTokenUnavailable)
	}

	ttl := time.Duration(tr.ExpiresIn)*time.Second - p.skew
	if ttl <= 0 {
		// Too short-lived to cache safely; use once.
		return tr.AccessToken, nil
	}
	p.remember(product, tr.AccessToken, p.now().Add(ttl))
	if p.shared != nil {
		if err := p.shared.SetToken(ctx, product, tr.AccessToken, ttl); err != nil {
			p.client.logger.Warn("shared token cache write failed",
				zap.String("product", string(product)), zap.Error(err))
		}
	}
	return tr.AccessToken, nil
}
