package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v4"

	"github.com/stracadev/straca/pkg/dispatcher"
	"github.com/stracadev/straca/pkg/registry"
)

const logPrefix = "auth:manager"

// Defaults applied by NewManager.
const (
	DefaultSecret     = "default"
	DefaultExpiration = time.Hour
)

// ErrInvalidToken is returned for tokens that fail verification or have expired.
var ErrInvalidToken = errors.New("invalid session token")

// SessionClaims are the claims of a session token.
type SessionClaims struct {
	UserID string `json:"userId"`
	jwt.RegisteredClaims
}

// ManagerOptions configures a Manager.
type ManagerOptions struct {
	Secret     string
	Expiration time.Duration
	Providers  []Provider
}

// Manager issues and verifies session tokens.
type Manager struct {
	secret     []byte
	expiration time.Duration
	providers  []Provider
	now        func() time.Time
}

// NewManager creates a Manager, filling defaults for an empty secret or a non-positive expiration.
func NewManager(opts ManagerOptions) *Manager {
	m := &Manager{
		secret:     []byte(opts.Secret),
		expiration: opts.Expiration,
		providers:  opts.Providers,
		now:        time.Now,
	}
	if len(m.secret) == 0 {
		m.secret = []byte(DefaultSecret)
	}
	if m.expiration <= 0 {
		m.expiration = DefaultExpiration
	}
	return m
}

// IssueToken signs an HS256 session token for userID.
func (m *Manager) IssueToken(userID string) (string, time.Time, error) {
	expiresAt := m.now().Add(m.expiration)
	claims := SessionClaims{
		UserID: userID,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(m.now()),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("%s - failed to sign token: %w", logPrefix, err)
	}
	return token, expiresAt, nil
}

// ValidateToken verifies a session token and returns its claims.
func (m *Manager) ValidateToken(tokenString string) (*SessionClaims, error) {
	claims := &SessionClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return m.secret, nil
	})
	if err != nil || !token.Valid {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if claims.UserID == "" {
		return nil, fmt.Errorf("%w: missing userId", ErrInvalidToken)
	}
	return claims, nil
}

// Register adds the auth operation to reg under ServiceName.
func (m *Manager) Register(reg *registry.Registry) error {
	return reg.ConfigureService(ServiceName).
		Version("1.0.0").
		Describe("Authentication service").
		Handle("auth", m.handleAuth, registry.Metadata{
			Description:       "Authenticate user, create session token",
			Payload:           AuthPayload{Provider: StaticProviderName, ProviderData: []byte(`{"username":"admin","password":"secret"}`)},
			PayloadRationale:  "Provider name and provider-specific credentials",
			Response:          AuthResponse{},
			ResponseRationale: "Session token, also returned in the X-Session-* headers",
		}).
		Err()
}

func (m *Manager) handleAuth(ctx context.Context, req *dispatcher.Request, res *dispatcher.Response, cc *dispatcher.CallContext) error {
	var payload AuthPayload
	if err := req.DecodeData(&payload); err != nil {
		res.Fail(fmt.Sprintf("invalid auth payload: %v", err))
		return nil
	}

	for _, p := range m.providers {
		if payload.Provider != "" && payload.Provider != p.Name() {
			continue
		}
		result, err := p.Validate(ctx, &payload)
		if err != nil {
			return fmt.Errorf("%s - provider %s: %w", logPrefix, p.Name(), err)
		}
		if !result.Valid {
			slog.Info(fmt.Sprintf("%s - Authentication failed with provider %s: %s", logPrefix, p.Name(), result.Message))
			continue
		}

		token, expiresAt, err := m.IssueToken(result.UserID)
		if err != nil {
			return err
		}
		res.Data = &AuthResponse{
			SessionToken: token,
			UserID:       result.UserID,
			Provider:     result.Provider,
			ExpiresAt:    expiresAt.UTC().Format(time.RFC3339),
		}
		if cc != nil && cc.Writer != nil {
			h := cc.Writer.Header()
			h.Set(HeaderSessionExpiration, expiresAt.UTC().Format(http.TimeFormat))
			h.Set(HeaderSessionToken, token)
			h.Set(HeaderSessionUserID, result.UserID)
			h.Set(HeaderSessionProvider, result.Provider)
		}
		slog.Info(fmt.Sprintf("%s - Authentication successful for user %s with provider %s", logPrefix, result.UserID, result.Provider))
		return nil
	}

	res.Fail("authentication failed")
	return nil
}
