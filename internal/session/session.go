package session

import (
	"context"

	"github.com/gofiber/fiber/v2"

	"github.com/zapvendas/messaging-api/pkg/log"
	"github.com/zapvendas/messaging-api/pkg/router"
	pkgWhatsApp "github.com/zapvendas/messaging-api/pkg/whatsapp"
)

func getTenantID(c *fiber.Ctx) string {
	return c.Locals("tenant_id").(string)
}

func userContext(c *fiber.Ctx) context.Context {
	ctx := c.UserContext()
	if ctx == nil {
		ctx = context.Background()
	}
	return ctx
}

// Connect opens the tenant's messaging session. When no stored
// credentials exist, the session moves to awaiting_pairing and the QR
// code shows up on the status endpoint. Calling Connect again while a
// session is live is a no-op.
func Connect(c *fiber.Ctx) error {
	tenantID := getTenantID(c)

	log.Session(tenantID).Info("Connecting session")

	if err := pkgWhatsApp.Connect(userContext(c), tenantID); err != nil {
		log.Session(tenantID).WithError(err).Error("Failed to connect session")
		return router.ResponseInternalError(c, "Failed to connect session: "+err.Error())
	}

	return router.ResponseSuccessWithData(c, "Session connect started", pkgWhatsApp.GetState(tenantID))
}

// Status reports the session state. Unknown tenants read as disconnected.
func Status(c *fiber.Ctx) error {
	tenantID := getTenantID(c)
	return router.ResponseSuccessWithData(c, "Session status", pkgWhatsApp.GetState(tenantID))
}

// Disconnect logs the session out and removes its stored credentials.
// The next Connect requires pairing again.
func Disconnect(c *fiber.Ctx) error {
	tenantID := getTenantID(c)

	log.Session(tenantID).Info("Disconnecting session")

	if err := pkgWhatsApp.Disconnect(userContext(c), tenantID); err != nil {
		log.Session(tenantID).WithError(err).Error("Failed to disconnect session")
		return router.ResponseInternalError(c, "Failed to disconnect session: "+err.Error())
	}

	return router.ResponseSuccess(c, "Session disconnected and credentials removed")
}
