package middleware

import (
	"strings"

	"closet_server/pkg/logger"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// JWTAuth validates the bearer token and puts the user id into locals.
// Tokens are HS256 signed with the shared secret.
func JWTAuth(secret string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		tokenString := extractToken(c)
		if tokenString == "" {
			return fiber.NewError(fiber.StatusUnauthorized, "missing token")
		}

		token, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, jwt.ErrSignatureInvalid
			}
			return []byte(secret), nil
		})
		if err != nil || !token.Valid {
			logger.Debug("[JWTAuth] Token validation failed: %v", err)
			return fiber.NewError(fiber.StatusUnauthorized, "invalid token")
		}

		claims, ok := token.Claims.(jwt.MapClaims)
		if !ok {
			return fiber.NewError(fiber.StatusUnauthorized, "invalid claims")
		}

		sub, err := claims.GetSubject()
		if err != nil || sub == "" {
			return fiber.NewError(fiber.StatusUnauthorized, "missing subject")
		}

		userID, err := uuid.Parse(sub)
		if err != nil {
			return fiber.NewError(fiber.StatusUnauthorized, "invalid subject")
		}

		c.Locals("user_id", userID)
		return c.Next()
	}
}

// extractToken reads the Authorization header, falling back to the token
// query parameter for browser redirects that cannot set headers.
func extractToken(c *fiber.Ctx) string {
	header := c.Get("Authorization")
	if strings.HasPrefix(header, "Bearer ") {
		return strings.TrimPrefix(header, "Bearer ")
	}
	return c.Query("token")
}
