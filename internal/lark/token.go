package lark

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/runixer/rara/internal/apperr"
	"github.com/runixer/rara/internal/config"
)

// TokenSource hands out a tenant access token.
type TokenSource interface {
	Token(ctx context.Context) (AccessToken, error)
}

// TokenProvider obtains tenant_access_token values from Lark and caches them
// until shortly before expiry. Concurrent callers that miss the cache share a
// single upstream request.
type TokenProvider struct {
	httpClient *http.Client
	baseURL    string
	appID      string
	appSecret  string
	margin     time.Duration
	store      TokenStore
	group      singleflight.Group
	now        func() time.Time
	logger     *slog.Logger
}

// NewTokenProvider creates a provider for the app in cfg. A nil store keeps
// the token in memory.
func NewTokenProvider(logger *slog.Logger, cfg config.LarkConfig, store TokenStore) (*TokenProvider, error) {
	httpClient, err := newHTTPClient(cfg.ProxyURL, cfg.GetRequestTimeout(), true)
	if err != nil {
		return nil, err
	}
	if store == nil {
		store = NewMemoryTokenStore()
	}

	providerLogger := logger.With("component", "lark_client")
	logProxy(providerLogger, cfg.ProxyURL)

	return &TokenProvider{
		httpClient: httpClient,
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		appID:      cfg.AppID,
		appSecret:  cfg.AppSecret,
		margin:     cfg.GetTokenRefreshMargin(),
		store:      store,
		now:        time.Now,
		logger:     providerLogger,
	}, nil
}

// Token returns a cached token that is still valid for at least the refresh
// margin, or requests a new one. Failures are auth errors and are not retried.
func (p *TokenProvider) Token(ctx context.Context) (AccessToken, error) {
	if token, ok := p.cached(ctx); ok {
		recordTokenCache(cacheHit)
		return token, nil
	}
	recordTokenCache(cacheMiss)

	v, err, shared := p.group.Do("tenant_access_token", func() (interface{}, error) {
		// Another caller may have refreshed while we waited for the group.
		if token, ok := p.cached(ctx); ok {
			return token, nil
		}
		token, err := p.requestToken(ctx)
		if err != nil {
			return AccessToken{}, err
		}
		ttl := token.ExpiresIn - p.margin
		if err := p.store.Save(ctx, token, ttl); err != nil {
			p.logger.Warn("failed to store tenant token", "error", err)
		}
		return token, nil
	})
	if err != nil {
		return AccessToken{}, err
	}
	if shared {
		p.logger.Debug("tenant token request shared")
	}
	return v.(AccessToken), nil
}

func (p *TokenProvider) cached(ctx context.Context) (AccessToken, bool) {
	token, ok, err := p.store.Load(ctx)
	if err != nil {
		p.logger.Warn("failed to load cached tenant token", "error", err)
		return AccessToken{}, false
	}
	if !ok || !token.ValidAt(p.now(), p.margin) {
		return AccessToken{}, false
	}
	return token, true
}

func (p *TokenProvider) requestToken(ctx context.Context) (AccessToken, error) {
	const op = "request tenant token"
	start := time.Now()

	body, err := json.Marshal(tenantTokenRequest{AppID: p.appID, AppSecret: p.appSecret})
	if err != nil {
		return AccessToken{}, apperr.Auth(op, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+tenantTokenPath, bytes.NewReader(body))
	if err != nil {
		return AccessToken{}, apperr.Auth(op, err)
	}
	req.Header.Set("Content-Type", "application/json; charset=utf-8")
	req.Header.Set("User-Agent", "rara/1.0")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		recordTokenRequest(statusFor(err), time.Since(start).Seconds())
		p.logger.Error("tenant token request failed", "error", err)
		return AccessToken{}, apperr.Auth(op, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	if err != nil {
		recordTokenRequest(statusError, time.Since(start).Seconds())
		return AccessToken{}, apperr.Auth(op, fmt.Errorf("read response: %w", err))
	}

	var tr tenantTokenResponse
	if err := json.Unmarshal(raw, &tr); err != nil {
		recordTokenRequest(statusError, time.Since(start).Seconds())
		p.logger.Error("failed to decode tenant token response", "status", resp.Status, "error", err)
		return AccessToken{}, apperr.Auth(op, fmt.Errorf("status %s: decode response: %w", resp.Status, err))
	}

	if tr.Code != 0 || tr.TenantAccessToken == "" {
		recordTokenRequest(statusError, time.Since(start).Seconds())
		p.logger.Error("Lark rejected tenant token request",
			"status", resp.Status,
			"code", tr.Code,
			"msg", tr.Msg,
		)
		if tr.Code == 0 {
			return AccessToken{}, apperr.Auth(op, fmt.Errorf("status %s: empty tenant_access_token", resp.Status))
		}
		return AccessToken{}, apperr.Auth(op, fmt.Errorf("code %d: %s", tr.Code, tr.Msg))
	}

	recordTokenRequest(statusSuccess, time.Since(start).Seconds())
	token := AccessToken{
		Value:     tr.TenantAccessToken,
		IssuedAt:  p.now(),
		ExpiresIn: time.Duration(tr.Expire) * time.Second,
	}
	p.logger.Info("tenant token refreshed", "expires_in", token.ExpiresIn)
	return token, nil
}

// statusFor classifies a transport error for metrics.
func statusFor(err error) string {
	if errors.Is(err, context.DeadlineExceeded) {
		return statusTimeout
	}
	var timeout interface{ Timeout() bool }
	if errors.As(err, &timeout) && timeout.Timeout() {
		return statusTimeout
	}
	return statusError
}
