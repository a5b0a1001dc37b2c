package middleware

import (
	"context"
	"strings"

	"github.com/labstack/echo/v4"

	"zarigaas/internal/domain/entity"
	"zarigaas/internal/infrastructure/firebase"
	"zarigaas/internal/usecase"
	"zarigaas/pkg/errors"
	"zarigaas/pkg/response"
)

// Context keys set by Authenticate.
const (
	KeyUID      = "uid"
	KeyIdentity = "identity"
	KeyActor    = "actor"
)

type ActorResolver interface {
	ResolveActor(ctx context.Context, uid string) (entity.Actor, error)
}

type AuthMiddleware struct {
	verifier firebase.TokenVerifier
	resolver ActorResolver
}

func NewAuthMiddleware(verifier firebase.TokenVerifier, resolver ActorResolver) *AuthMiddleware {
	return &AuthMiddleware{verifier: verifier, resolver: resolver}
}

// BearerToken extracts the token from an Authorization header value.
func BearerToken(header string) (string, bool) {
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || parts[0] != "Bearer" || parts[1] == "" {
		return "", false
	}
	return parts[1], true
}

// Authenticate verifies the bearer token and resolves the caller's role.
// WebSocket clients may pass the token as the "token" query parameter.
func (m *AuthMiddleware) Authenticate(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		token, ok := BearerToken(c.Request().Header.Get("Authorization"))
		if !ok {
			token = c.QueryParam("token")
		}
		if token == "" {
			return response.Error(c, errors.Unauthorized("Authorization header is required", nil))
		}

		identity, err := m.verifier.Verify(c.Request().Context(), token)
		if err != nil {
			return response.Error(c, err)
		}
		actor, err := m.resolver.ResolveActor(c.Request().Context(), identity.UID)
		if err != nil {
			return response.Error(c, err)
		}

		c.Set(KeyUID, identity.UID)
		c.Set(KeyIdentity, identity)
		c.Set(KeyActor, actor)
		return next(c)
	}
}

func ActorFrom(c echo.Context) entity.Actor {
	actor, _ := c.Get(KeyActor).(entity.Actor)
	return actor
}

func IdentityFrom(c echo.Context) usecase.Identity {
	identity, _ := c.Get(KeyIdentity).(usecase.Identity)
	return identity
}
