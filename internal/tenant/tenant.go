package tenant

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	typAPI "github.com/zapvendas/messaging-api/internal/types"
	pkgAuth "github.com/zapvendas/messaging-api/pkg/auth"
	"github.com/zapvendas/messaging-api/pkg/log"
	"github.com/zapvendas/messaging-api/pkg/router"
)

// CreateToken mints a bearer token for a tenant. Guarded by the admin
// secret middleware; tenants are provisioned by the operator, not
// self-service.
func CreateToken(c *fiber.Ctx) error {
	var req typAPI.RequestCreateToken
	if err := c.BodyParser(&req); err != nil {
		return router.ResponseBadRequest(c, "Failed parse body request")
	}

	req.TenantID = strings.TrimSpace(req.TenantID)
	if req.TenantID == "" {
		return router.ResponseBadRequest(c, "tenant_id is required")
	}
	if strings.ContainsAny(req.TenantID, "/\\. ") {
		return router.ResponseBadRequest(c, "tenant_id must not contain path separators or spaces")
	}

	token, err := pkgAuth.GenerateTenantToken(req.TenantID, 1)
	if err != nil {
		log.Session(req.TenantID).WithError(err).Error("Failed to generate tenant token")
		return router.ResponseInternalError(c, "Failed to generate tenant token")
	}

	log.Session(req.TenantID).Info("Tenant token issued")

	return router.ResponseCreatedWithData(c, "Tenant token created", typAPI.ResponseTokenCreated{
		TenantID: req.TenantID,
		Token:    token,
	})
}
