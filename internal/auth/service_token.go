package auth

import (
	"github.com/gofiber/fiber/v2"
	"golang.org/x/crypto/bcrypt"

	apperrors "github.com/spec-kit/sla-service/pkg/util"
)

// HashServiceToken hashes a collaborator service token for storage in the
// environment.
func HashServiceToken(token string) (string, error) {
	hashed, err := bcrypt.GenerateFromPassword([]byte(token), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hashed), nil
}

// RequireServiceToken guards the lifecycle callback endpoints. The ticket
// CRUD subsystem presents the shared token in X-Service-Token; it is
// checked against the configured bcrypt hash.
func RequireServiceToken(tokenHash string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if tokenHash == "" {
			return apperrors.NewUnauthorized("service token not configured")
		}
		token := c.Get("X-Service-Token")
		if token == "" {
			return apperrors.NewUnauthorized("missing service token")
		}
		if err := bcrypt.CompareHashAndPassword([]byte(tokenHash), []byte(token)); err != nil {
			return apperrors.NewUnauthorized("invalid service token")
		}
		return c.Next()
	}
}
