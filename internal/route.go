package internal

import (
	"github.com/gofiber/fiber/v2"

	"github.com/zapvendas/messaging-api/pkg/auth"
	"github.com/zapvendas/messaging-api/pkg/router"

	ctlCampaigns "github.com/zapvendas/messaging-api/internal/campaigns"
	ctlContacts "github.com/zapvendas/messaging-api/internal/contacts"
	ctlIndex "github.com/zapvendas/messaging-api/internal/index"
	ctlMessage "github.com/zapvendas/messaging-api/internal/message"
	ctlSession "github.com/zapvendas/messaging-api/internal/session"
	ctlTenant "github.com/zapvendas/messaging-api/internal/tenant"
	ctlWebhooks "github.com/zapvendas/messaging-api/internal/webhooks"
)

func Routes(app *fiber.App) {
	// Route for Index
	// ---------------------------------------------
	if router.BaseURL == "" {
		app.Get("/", ctlIndex.Index)
	} else {
		app.Get(router.BaseURL, ctlIndex.Index)
		app.Get(router.BaseURL+"/", ctlIndex.Index)
	}

	// ============================================================
	// TENANT PROVISIONING (X-Admin-Secret authentication)
	// ============================================================
	adminMiddleware := auth.AdminAuth()
	app.Post(router.BaseURL+"/tenants/token", adminMiddleware, ctlTenant.CreateToken)

	// ============================================================
	// TENANT OPERATIONS (JWT Bearer token authentication)
	// ============================================================
	tenantMiddleware := auth.TenantAuth()

	// Session lifecycle
	app.Get(router.BaseURL+"/session", tenantMiddleware, ctlSession.Status)
	app.Post(router.BaseURL+"/session/connect", tenantMiddleware, ctlSession.Connect)
	app.Delete(router.BaseURL+"/session", tenantMiddleware, ctlSession.Disconnect)

	// Messaging
	app.Post(router.BaseURL+"/messages", tenantMiddleware, ctlMessage.Send)

	// Contacts
	app.Get(router.BaseURL+"/contacts", tenantMiddleware, ctlContacts.List)

	// Campaigns (one per tenant at a time)
	app.Post(router.BaseURL+"/campaigns", tenantMiddleware, ctlCampaigns.Start)
	app.Get(router.BaseURL+"/campaigns/current", tenantMiddleware, ctlCampaigns.Status)
	app.Post(router.BaseURL+"/campaigns/current/pause", tenantMiddleware, ctlCampaigns.Pause)
	app.Post(router.BaseURL+"/campaigns/current/resume", tenantMiddleware, ctlCampaigns.Resume)
	app.Post(router.BaseURL+"/campaigns/current/cancel", tenantMiddleware, ctlCampaigns.Cancel)

	// Webhooks
	app.Get(router.BaseURL+"/webhooks", tenantMiddleware, ctlWebhooks.List)
	app.Post(router.BaseURL+"/webhooks", tenantMiddleware, ctlWebhooks.Create)
	app.Patch(router.BaseURL+"/webhooks/:webhook_id", tenantMiddleware, ctlWebhooks.Update)
	app.Delete(router.BaseURL+"/webhooks/:webhook_id", tenantMiddleware, ctlWebhooks.Delete)
	app.Get(router.BaseURL+"/webhooks/:webhook_id/logs", tenantMiddleware, ctlWebhooks.Logs)
}
