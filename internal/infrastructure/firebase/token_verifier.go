package firebase

import (
	"context"
	"strings"

	"firebase.google.com/go/v4/auth"

	"zarigaas/internal/usecase"
	"zarigaas/pkg/errors"
)

// TokenVerifier turns a bearer token into the caller's identity.
type TokenVerifier interface {
	Verify(ctx context.Context, token string) (usecase.Identity, error)
}

// AuthVerifier checks Firebase ID tokens.
type AuthVerifier struct {
	client *auth.Client
}

func NewAuthVerifier(client *auth.Client) *AuthVerifier {
	return &AuthVerifier{client: client}
}

func (v *AuthVerifier) Verify(ctx context.Context, token string) (usecase.Identity, error) {
	result, err := v.client.VerifyIDToken(ctx, token)
	if err != nil {
		return usecase.Identity{}, errors.Unauthorized("Invalid or expired token", err)
	}
	return identityFromClaims(result.UID, result.Claims), nil
}

func identityFromClaims(uid string, claims map[string]interface{}) usecase.Identity {
	id := usecase.Identity{UID: uid}
	if email, ok := claims["email"].(string); ok {
		id.Email = email
	}
	if name, ok := claims["name"].(string); ok {
		id.DisplayName = name
	}
	return id
}

const devPrefix = "dev:"

// DevVerifier accepts tokens of the form "dev:<uid>" or
// "dev:<uid>:<email>" and any other token through next. It must never be
// used in production.
type DevVerifier struct {
	next TokenVerifier
}

func NewDevVerifier(next TokenVerifier) *DevVerifier {
	return &DevVerifier{next: next}
}

func (v *DevVerifier) Verify(ctx context.Context, token string) (usecase.Identity, error) {
	if !strings.HasPrefix(token, devPrefix) {
		if v.next == nil {
			return usecase.Identity{}, errors.Unauthorized("Invalid or expired token", nil)
		}
		return v.next.Verify(ctx, token)
	}
	parts := strings.SplitN(strings.TrimPrefix(token, devPrefix), ":", 2)
	if parts[0] == "" {
		return usecase.Identity{}, errors.Unauthorized("Development token has no user", nil)
	}
	id := usecase.Identity{UID: parts[0]}
	if len(parts) == 2 {
		id.Email = parts[1]
	}
	return id, nil
}

// NewVerifier builds the verifier for an auth mode. The "dev" mode also
// accepts development tokens; config loading refuses it in production.
func NewVerifier(client *auth.Client, mode string) (TokenVerifier, error) {
	var base TokenVerifier
	if client != nil {
		base = NewAuthVerifier(client)
	}
	if mode == "dev" {
		return NewDevVerifier(base), nil
	}
	if base == nil {
		return nil, errors.Internal("Firebase auth client is required", nil)
	}
	return base, nil
}
