package contacts

import (
	"context"

	"github.com/gofiber/fiber/v2"

	"github.com/zapvendas/messaging-api/internal/contact"
	"github.com/zapvendas/messaging-api/pkg/log"
	"github.com/zapvendas/messaging-api/pkg/router"
)

var contactStore contact.Store

func Use(store contact.Store) {
	contactStore = store
}

// List returns the tenant's contacts in creation order, history included.
func List(c *fiber.Ctx) error {
	tenantID := c.Locals("tenant_id").(string)

	ctx := c.UserContext()
	if ctx == nil {
		ctx = context.Background()
	}

	items, err := contactStore.List(ctx, tenantID)
	if err != nil {
		log.Session(tenantID).WithError(err).Error("Failed to list contacts")
		return router.ResponseInternalError(c, "Failed to list contacts")
	}

	return router.ResponseSuccessWithData(c, "Success list contacts", map[string]interface{}{
		"contacts": items,
		"total":    len(items),
	})
}
