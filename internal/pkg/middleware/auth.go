package middleware

import (
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"

	"github.com/multigpt/paycore/internal/pkg/env"
)

// KeyUserID is the request-local the auth middleware stores the
// authenticated user id under.
const KeyUserID = "USER_ID"

// RequireJWTAuth authenticates API requests with a bearer token. The token
// carries the user id in the sub claim; only HS256 is accepted.
func RequireJWTAuth() fiber.Handler {
	secret := []byte(env.GetEnv("JWT_SECRET", ""))

	return func(c *fiber.Ctx) error {
		tokenString := extractBearerToken(c)
		if tokenString == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized", "message": "Missing bearer token"})
		}
		if len(secret) == 0 {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "JWT_SECRET is not configured"})
		}

		claims := jwt.RegisteredClaims{}
		token, err := jwt.ParseWithClaims(tokenString, &claims, func(t *jwt.Token) (interface{}, error) {
			if t.Method.Alg() != jwt.SigningMethodHS256.Alg() {
				return nil, errors.New("unexpected signing method " + t.Method.Alg())
			}
			return secret, nil
		})
		if err != nil || !token.Valid {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized", "message": "Invalid token"})
		}
		if claims.Subject == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized", "message": "Token has no subject"})
		}

		c.Locals(KeyUserID, claims.Subject)
		return c.Next()
	}
}

// UserID returns the authenticated user id set by RequireJWTAuth, or "".
func UserID(c *fiber.Ctx) string {
	if id, ok := c.Locals(KeyUserID).(string); ok {
		return id
	}
	return ""
}

func extractBearerToken(c *fiber.Ctx) string {
	auth := strings.TrimSpace(c.Get("Authorization"))
	if strings.HasPrefix(strings.ToLower(auth), "bearer ") {
		return strings.TrimSpace(auth[7:])
	}
	return ""
}
