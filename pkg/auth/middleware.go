package auth

import (
	"crypto/subtle"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/zapvendas/messaging-api/pkg/env"
	"github.com/zapvendas/messaging-api/pkg/router"
)

// AdminAuth guards tenant provisioning with the X-Admin-Secret header.
func AdminAuth() fiber.Handler {
	adminSecret := env.MustGetEnvString("ADMIN_SECRET_KEY")

	return func(c *fiber.Ctx) error {
		provided := strings.TrimSpace(c.Get("X-Admin-Secret"))
		if provided == "" {
			return router.ResponseUnauthorized(c, "Missing X-Admin-Secret header")
		}
		if subtle.ConstantTimeCompare([]byte(provided), []byte(adminSecret)) != 1 {
			return router.ResponseUnauthorized(c, "Invalid admin secret")
		}
		return c.Next()
	}
}

// TenantAuth validates the Bearer token and stores tenant_id in request locals.
func TenantAuth() fiber.Handler {
	return func(c *fiber.Ctx) error {
		header := strings.TrimSpace(c.Get("Authorization"))
		if header == "" {
			return router.ResponseUnauthorized(c, "Missing Authorization header")
		}

		parts := strings.SplitN(header, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			return router.ResponseUnauthorized(c, "Authorization header must be a Bearer token")
		}

		claims, err := ValidateTenantToken(strings.TrimSpace(parts[1]))
		if err != nil {
			return router.ResponseUnauthorized(c, "Invalid tenant token")
		}

		c.Locals("tenant_id", claims.TenantID)
		return c.Next()
	}
}
