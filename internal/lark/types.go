// Package lark talks to the Lark Open Platform: tenant access tokens and
// Drive file downloads.
package lark

import (
	"time"
)

const (
	tenantTokenPath = "/open-apis/auth/v3/tenant_access_token/internal"
	driveFilePath   = "/open-apis/drive/v1/files/"
)

// AccessToken is a tenant_access_token with its lifetime.
type AccessToken struct {
	Value     string        `json:"value"`
	IssuedAt  time.Time     `json:"issued_at"`
	ExpiresIn time.Duration `json:"expires_in"`
}

// ExpiresAt returns the declared expiry instant.
func (t AccessToken) ExpiresAt() time.Time {
	return t.IssuedAt.Add(t.ExpiresIn)
}

// ValidAt reports whether the token may still be handed out at now, keeping
// margin in reserve so it does not expire in flight.
func (t AccessToken) ValidAt(now time.Time, margin time.Duration) bool {
	if t.Value == "" {
		return false
	}
	return now.Before(t.ExpiresAt().Add(-margin))
}

// FileReference identifies a file in Lark Drive.
type FileReference struct {
	Token string
	// Name is the declared file name; may be empty.
	Name string
}

// tenantTokenRequest is the body of the tenant_access_token/internal call.
type tenantTokenRequest struct {
	AppID     string `json:"app_id"`
	AppSecret string `json:"app_secret"`
}

type tenantTokenResponse struct {
	Code              int    `json:"code"`
	Msg               string `json:"msg"`
	TenantAccessToken string `json:"tenant_access_token"`
	Expire            int    `json:"expire"` // seconds
}

// apiError is the envelope Lark returns on failed Open API calls.
type apiError struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
}
