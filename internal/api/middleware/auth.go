package middleware

import (
	"errors"
	"log/slog"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/saturnino-fabrica-de-software/studentid/internal/domain"
	"github.com/saturnino-fabrica-de-software/studentid/internal/token"
)

const (
	// LocalClaims is the key to retrieve the validated token claims from context
	LocalClaims = "claims"
)

// TokenValidator validates access tokens; satisfied by *token.Issuer
type TokenValidator interface {
	Validate(tokenString string) (*token.Claims, error)
}

// AuthDependencies contains dependencies for JWT authentication
type AuthDependencies struct {
	Tokens TokenValidator
	Logger *slog.Logger
}

// Auth requires a valid bearer access token
func Auth(deps AuthDependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		raw := extractBearerToken(c)
		if raw == "" {
			return domain.ErrUnauthorized
		}

		claims, err := deps.Tokens.Validate(raw)
		if err != nil {
			if errors.Is(err, token.ErrExpiredToken) {
				deps.Logger.Debug("expired access token", "path", c.Path())
			} else {
				deps.Logger.Warn("invalid access token", "error", err, "ip", c.IP())
			}
			return domain.ErrUnauthorized
		}

		c.Locals(LocalClaims, claims)
		return c.Next()
	}
}

// RequireRole rejects authenticated callers whose role is not listed; chain after Auth
func RequireRole(roles ...domain.Role) fiber.Handler {
	return func(c *fiber.Ctx) error {
		claims, err := GetClaims(c)
		if err != nil {
			return err
		}
		for _, role := range roles {
			if claims.Role == role {
				return c.Next()
			}
		}
		return domain.ErrForbidden
	}
}

// GetClaims retrieves the claims stored by Auth
func GetClaims(c *fiber.Ctx) (*token.Claims, error) {
	claims, ok := c.Locals(LocalClaims).(*token.Claims)
	if !ok || claims == nil {
		return nil, domain.ErrUnauthorized
	}
	return claims, nil
}

// CanManageStudent reports whether the caller may act on the given student record
func CanManageStudent(c *fiber.Ctx, studentID uuid.UUID) bool {
	claims, err := GetClaims(c)
	if err != nil {
		return false
	}
	if claims.Role == domain.RoleAdmin {
		return true
	}
	return claims.StudentID != nil && *claims.StudentID == studentID
}

// extractBearerToken extracts token from Authorization header
func extractBearerToken(c *fiber.Ctx) string {
	auth := c.Get("Authorization")
	if auth == "" {
		return ""
	}

	// Expected format: "Bearer <token>"
	parts := strings.SplitN(auth, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}

	return strings.TrimSpace(parts[1])
}
