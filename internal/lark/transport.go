package lark

import (
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"time"
)

// newHTTPClient builds a client with an isolated transport.
//
// Token calls and file downloads get separate clients: a slow multi-megabyte
// download must not hold the connection a token refresh is waiting for, and
// the two have very different timeouts.
func newHTTPClient(proxyURL string, timeout time.Duration, keepAlive bool) (*http.Client, error) {
	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   30 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		ForceAttemptHTTP2:     false,
		MaxIdleConns:          10,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   15 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		ResponseHeaderTimeout: 30 * time.Second,
		DisableKeepAlives:     !keepAlive,
	}

	if proxyURL != "" {
		proxy, err := url.Parse(proxyURL)
		if err != nil {
			return nil, fmt.Errorf("failed to parse proxy URL: %w", err)
		}
		transport.Proxy = http.ProxyURL(proxy)
	}

	return &http.Client{
		Timeout:   timeout,
		Transport: transport,
	}, nil
}

// logProxy logs the proxy in use with the password masked.
func logProxy(logger *slog.Logger, proxyURL string) {
	if proxyURL == "" {
		return
	}
	safe := proxyURL
	if u, err := url.Parse(proxyURL); err == nil && u.User != nil {
		u.User = url.UserPassword(u.User.Username(), "*****")
		safe = u.String()
	}
	logger.Info("Using proxy for Lark", "proxy_url", safe)
}
