package handlers

import (
	"github.com/gofiber/fiber/v2"
	"golang.org/x/crypto/bcrypt"

	applog "auctionsearch/internal/log"
)

const AdminTokenHeader = "X-Admin-Token"

// RequireAdminToken admits requests whose X-Admin-Token matches the bcrypt
// hash. With no hash configured the admin surface does not exist.
func RequireAdminToken(tokenHash string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if tokenHash == "" {
			return renderError(c, fiber.StatusNotFound, "Not found")
		}
		tok := c.Get(AdminTokenHeader)
		if tok == "" {
			applog.Security(c, "access.denied.admin", map[string]any{"reason": "missing token"})
			return renderError(c, fiber.StatusUnauthorized, "Authentication required")
		}
		if err := bcrypt.CompareHashAndPassword([]byte(tokenHash), []byte(tok)); err != nil {
			applog.Security(c, "access.denied.admin", map[string]any{"reason": "bad token"})
			return renderError(c, fiber.StatusForbidden, "Access denied")
		}
		return c.Next()
	}
}
