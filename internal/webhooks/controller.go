package webhooks

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"

	typAPI "github.com/zapvendas/messaging-api/internal/types"
	"github.com/zapvendas/messaging-api/internal/webhook"
	"github.com/zapvendas/messaging-api/pkg/log"
	"github.com/zapvendas/messaging-api/pkg/router"
)

var engine *webhook.Engine

func Use(e *webhook.Engine) {
	engine = e
}

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

func generateSecret() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}

// List returns the tenant's webhook registrations. Secrets are never
// echoed back.
func List(c *fiber.Ctx) error {
	tenantID := getTenantID(c)

	webhooks, err := engine.Store().List(userContext(c), tenantID)
	if err != nil {
		log.Session(tenantID).WithError(err).Error("Failed to list webhooks")
		return router.ResponseInternalError(c, "Failed to list webhooks")
	}

	return router.ResponseSuccessWithData(c, "Success list webhooks", map[string]interface{}{
		"webhooks": webhooks,
		"total":    len(webhooks),
	})
}

// Create registers a webhook endpoint. When no secret is supplied a
// random one is generated and returned once in the response.
func Create(c *fiber.Ctx) error {
	tenantID := getTenantID(c)

	var req typAPI.RequestCreateWebhook
	if err := c.BodyParser(&req); err != nil {
		return router.ResponseBadRequest(c, "Failed parse body request")
	}

	req.URL = strings.TrimSpace(req.URL)
	if req.URL == "" {
		return router.ResponseBadRequest(c, "url is required")
	}
	if err := webhook.ValidateURL(req.URL); err != nil {
		return router.ResponseBadRequest(c, err.Error())
	}

	secret := strings.TrimSpace(req.Secret)
	generated := false
	if secret == "" {
		var err error
		secret, err = generateSecret()
		if err != nil {
			return router.ResponseInternalError(c, "Failed to generate webhook secret")
		}
		generated = true
	}

	created, err := engine.Store().Create(userContext(c), webhook.Config{
		TenantID: tenantID,
		URL:      req.URL,
		Secret:   secret,
		Events:   req.Events,
	})
	if err != nil {
		log.Session(tenantID).WithError(err).Error("Failed to create webhook")
		return router.ResponseInternalError(c, "Failed to create webhook")
	}

	log.Session(tenantID).WithField("webhook_id", created.ID).Info("Webhook created")

	data := map[string]interface{}{"webhook": created}
	if generated {
		data["secret"] = secret
	}
	return router.ResponseCreatedWithData(c, "Webhook created", data)
}

// Update patches a webhook registration in place.
func Update(c *fiber.Ctx) error {
	tenantID := getTenantID(c)

	webhookID, err := c.ParamsInt("webhook_id")
	if err != nil {
		return router.ResponseBadRequest(c, "invalid webhook_id")
	}

	var req typAPI.RequestUpdateWebhook
	if err := c.BodyParser(&req); err != nil {
		return router.ResponseBadRequest(c, "Failed parse body request")
	}

	ctx := userContext(c)
	current, err := engine.Store().Get(ctx, tenantID, int64(webhookID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return router.ResponseNotFound(c, "Webhook not found")
		}
		log.Session(tenantID).WithError(err).Error("Failed to load webhook")
		return router.ResponseInternalError(c, "Failed to load webhook")
	}

	if req.URL != nil {
		trimmed := strings.TrimSpace(*req.URL)
		if err := webhook.ValidateURL(trimmed); err != nil {
			return router.ResponseBadRequest(c, err.Error())
		}
		current.URL = trimmed
	}
	if req.Events != nil {
		current.Events = *req.Events
	}
	if req.Secret != nil && strings.TrimSpace(*req.Secret) != "" {
		current.Secret = strings.TrimSpace(*req.Secret)
	}
	if req.Enabled != nil {
		current.Enabled = *req.Enabled
	}

	if err := engine.Store().Update(ctx, current); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return router.ResponseNotFound(c, "Webhook not found")
		}
		log.Session(tenantID).WithError(err).Error("Failed to update webhook")
		return router.ResponseInternalError(c, "Failed to update webhook")
	}

	log.Session(tenantID).WithField("webhook_id", current.ID).Info("Webhook updated")

	return router.ResponseSuccessWithData(c, "Webhook updated", map[string]interface{}{"webhook": current})
}

// Delete removes a webhook registration and its delivery logs.
func Delete(c *fiber.Ctx) error {
	tenantID := getTenantID(c)

	webhookID, err := c.ParamsInt("webhook_id")
	if err != nil {
		return router.ResponseBadRequest(c, "invalid webhook_id")
	}

	if err := engine.Store().Delete(userContext(c), tenantID, int64(webhookID)); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return router.ResponseNotFound(c, "Webhook not found")
		}
		log.Session(tenantID).WithError(err).Error("Failed to delete webhook")
		return router.ResponseInternalError(c, "Failed to delete webhook")
	}

	log.Session(tenantID).WithField("webhook_id", webhookID).Info("Webhook deleted")

	return router.ResponseSuccess(c, "Webhook deleted")
}

// Logs returns recent delivery outcomes for one webhook.
func Logs(c *fiber.Ctx) error {
	tenantID := getTenantID(c)

	webhookID, err := c.ParamsInt("webhook_id")
	if err != nil {
		return router.ResponseBadRequest(c, "invalid webhook_id")
	}

	limit := c.QueryInt("limit", 50)
	if limit <= 0 || limit > 200 {
		limit = 50
	}

	logs, err := engine.Store().DeliveryLogs(userContext(c), tenantID, int64(webhookID), limit)
	if err != nil {
		log.Session(tenantID).WithError(err).Error("Failed to load delivery logs")
		return router.ResponseInternalError(c, "Failed to load delivery logs")
	}

	return router.ResponseSuccessWithData(c, "Success list delivery logs", map[string]interface{}{
		"logs":  logs,
		"total": len(logs),
	})
}
