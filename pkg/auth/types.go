// Package auth implements the security service: provider-based login,
// JWT session tokens and a bearer-token HTTP middleware.
package auth

import (
	"context"
	"encoding/json"
)

// ServiceName is the registry name of the security service.
const ServiceName = "security"

// Session response headers set by a successful auth call.
const (
	HeaderSessionToken      = "X-Session-Token"
	HeaderSessionUserID     = "X-Session-UserId"
	HeaderSessionProvider   = "X-Session-Provider"
	HeaderSessionExpiration = "X-Session-Expiration"
)

// AuthPayload is the data of a security.auth request. An empty Provider tries
// every configured provider.
type AuthPayload struct {
	Provider     string          `json:"provider"`
	ProviderData json.RawMessage `json:"providerData"`
}

// AuthResponse is the data of a successful security.auth response.
type AuthResponse struct {
	SessionToken string `json:"sessionToken"`
	UserID       string `json:"userId"`
	Provider     string `json:"provider"`
	ExpiresAt    string `json:"expiresAt"`
}

// ProviderResult is the outcome of one provider validation.
type ProviderResult struct {
	Valid    bool
	Message  string
	UserID   string
	Provider string
}

// Provider validates credentials. An error is a provider fault, not a rejection.
type Provider interface {
	Name() string
	Validate(ctx context.Context, payload *AuthPayload) (ProviderResult, error)
}
