// Package middleware provides request authentication, rate limiting, logging
// and instrumentation for the HTTP and realtime surfaces.
package middleware

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"vibefeed/internal/models"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
)

// IdentityVerifier resolves an opaque credential into a principal.
type IdentityVerifier interface {
	Verify(ctx context.Context, credential string) (models.Principal, error)
}

// ErrInvalidCredential is returned for any credential that fails verification.
var ErrInvalidCredential = errors.New("invalid or expired credential")

// JWTVerifier verifies HMAC-signed tokens carrying the user id in "userId"
// or "sub" and an optional "username".
type JWTVerifier struct {
	secret []byte
}

// NewJWTVerifier returns a verifier for tokens signed with secret.
func NewJWTVerifier(secret string) *JWTVerifier {
	return &JWTVerifier{secret: []byte(secret)}
}

// Verify implements IdentityVerifier.
func (v *JWTVerifier) Verify(_ context.Context, credential string) (models.Principal, error) {
	if credential == "" {
		return models.Principal{}, ErrInvalidCredential
	}

	token, err := jwt.Parse(credential, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return v.secret, nil
	})
	if err != nil || !token.Valid {
		return models.Principal{}, ErrInvalidCredential
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return models.Principal{}, ErrInvalidCredential
	}

	userID, ok := userIDClaim(claims)
	if !ok || userID == 0 {
		return models.Principal{}, ErrInvalidCredential
	}
	username, _ := claims["username"].(string)

	return models.Principal{UserID: userID, Username: username}, nil
}

// Issue signs a token for p; used by seed tooling and tests.
func (v *JWTVerifier) Issue(p models.Principal, ttl time.Duration) (string, error) {
	claims := jwt.MapClaims{
		"sub":      strconv.FormatUint(uint64(p.UserID), 10),
		"userId":   p.UserID,
		"username": p.Username,
		"exp":      time.Now().Add(ttl).Unix(),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(v.secret)
}

func userIDClaim(claims jwt.MapClaims) (uint, bool) {
	for _, key := range []string{"userId", "sub"} {
		switch val := claims[key].(type) {
		case float64:
			if val > 0 && val == float64(uint32(val)) {
				return uint(val), true
			}
		case string:
			id, err := strconv.ParseUint(val, 10, 32)
			if err == nil {
				return uint(id), true
			}
		}
	}
	return 0, false
}

// BearerToken extracts the credential from "Authorization: Bearer" or the
// "token" query parameter.
func BearerToken(c *fiber.Ctx) string {
	if authHeader := c.Get("Authorization"); authHeader != "" {
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
			return strings.TrimSpace(parts[1])
		}
		return ""
	}
	return c.Query("token")
}

// AuthRequired rejects requests without a verifiable credential and stores
// the principal in locals ("userID", "principal") and the user context.
func AuthRequired(v IdentityVerifier) fiber.Handler {
	return func(c *fiber.Ctx) error {
		token := BearerToken(c)
		if token == "" {
			return models.RespondWithError(c, fiber.StatusUnauthorized,
				models.NewUnauthorizedError("Authorization required"))
		}

		principal, err := v.Verify(c.UserContext(), token)
		if err != nil {
			return models.RespondWithError(c, fiber.StatusUnauthorized,
				models.NewUnauthorizedError("Invalid or expired token"))
		}

		SetPrincipal(c, principal)
		return c.Next()
	}
}

// SetPrincipal records principal on the request.
func SetPrincipal(c *fiber.Ctx, principal models.Principal) {
	c.Locals("userID", principal.UserID)
	c.Locals("principal", principal)
	c.SetUserContext(context.WithValue(c.UserContext(), UserIDKey, principal.UserID))
}

// PrincipalFrom returns the principal stored by AuthRequired, if any.
func PrincipalFrom(c *fiber.Ctx) (models.Principal, bool) {
	p, ok := c.Locals("principal").(models.Principal)
	return p, ok && p.Authenticated()
}
