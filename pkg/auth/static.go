package auth

import (
	"context"
	"encoding/json"

	"github.com/go-playground/validator/v10"
	"golang.org/x/crypto/bcrypt"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// StaticProviderName is the name reported by StaticProvider.
const StaticProviderName = "static"

// Credentials is the providerData understood by StaticProvider.
type Credentials struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

// StaticProvider accepts a single user whose password matches a bcrypt hash.
type StaticProvider struct {
	username string
	hash     []byte
}

// NewStaticProvider creates a StaticProvider for username and bcrypt hash.
func NewStaticProvider(username, hash string) *StaticProvider {
	return &StaticProvider{username: username, hash: []byte(hash)}
}

func (p *StaticProvider) Name() string {
	return StaticProviderName
}

func (p *StaticProvider) Validate(_ context.Context, payload *AuthPayload) (ProviderResult, error) {
	result := ProviderResult{Provider: StaticProviderName}

	var creds Credentials
	if err := json.Unmarshal(payload.ProviderData, &creds); err != nil {
		result.Message = "invalid credentials payload"
		return result, nil
	}
	if err := validate.Struct(creds); err != nil {
		result.Message = "username and password are required"
		return result, nil
	}
	if len(p.hash) == 0 || creds.Username != p.username {
		result.Message = "invalid credentials"
		return result, nil
	}
	if err := bcrypt.CompareHashAndPassword(p.hash, []byte(creds.Password)); err != nil {
		result.Message = "invalid credentials"
		return result, nil
	}

	result.Valid = true
	result.UserID = creds.Username
	return result, nil
}
