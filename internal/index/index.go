package index

import (
	"github.com/gofiber/fiber/v2"

	"github.com/zapvendas/messaging-api/pkg/router"
)

func Index(c *fiber.Ctx) error {
	return router.ResponseSuccess(c, "ZapVendas Messaging API is running")
}
