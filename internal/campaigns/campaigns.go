package campaigns

import (
	"context"
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/zapvendas/messaging-api/internal/campaign"
	"github.com/zapvendas/messaging-api/internal/contact"
	typAPI "github.com/zapvendas/messaging-api/internal/types"
	"github.com/zapvendas/messaging-api/pkg/log"
	"github.com/zapvendas/messaging-api/pkg/router"
)

var (
	manager      *campaign.Manager
	contactStore contact.Store
)

// Use wires the campaign manager and the contact store used to resolve
// selected contact ids into dispatch targets.
func Use(m *campaign.Manager, store contact.Store) {
	manager = m
	contactStore = store
}

func getTenantID(c *fiber.Ctx) string {
	return c.Locals("tenant_id").(string)
}

// Start launches a bulk dispatch over the selected contacts. One campaign
// per tenant at a time; campaigns are in-memory and lost on restart.
func Start(c *fiber.Ctx) error {
	tenantID := getTenantID(c)

	var req typAPI.RequestStartCampaign
	if err := c.BodyParser(&req); err != nil {
		log.Session(tenantID).Warn("Failed to parse body request")
		return router.ResponseBadRequest(c, "Failed parse body request")
	}

	if strings.TrimSpace(req.Template) == "" {
		return router.ResponseBadRequest(c, "template is required")
	}
	if len(req.ContactIDs) == 0 {
		return router.ResponseBadRequest(c, "contact_ids is required")
	}

	ctx := c.UserContext()
	if ctx == nil {
		ctx = context.Background()
	}

	targets, err := resolveTargets(ctx, tenantID, req.ContactIDs)
	if err != nil {
		log.Session(tenantID).WithError(err).Error("Failed to resolve campaign targets")
		return router.ResponseInternalError(c, "Failed to resolve campaign targets")
	}
	if len(targets) == 0 {
		return router.ResponseBadRequest(c, "No selected contact has a phone number")
	}

	runner := manager.Runner(tenantID)
	err = runner.Start(campaign.Config{
		TenantID:  tenantID,
		Template:  req.Template,
		Targets:   targets,
		MinDelayS: req.MinDelayS,
		MaxDelayS: req.MaxDelayS,
		SafeMode:  req.SafeMode,
	})
	if err != nil {
		switch {
		case errors.Is(err, campaign.ErrAlreadyRunning):
			return router.ResponseConflict(c, err.Error())
		case errors.Is(err, campaign.ErrNoTargets), errors.Is(err, campaign.ErrBadDelayRange):
			return router.ResponseBadRequest(c, err.Error())
		default:
			return router.ResponseInternalError(c, "Failed to start campaign: "+err.Error())
		}
	}

	log.Session(tenantID).WithField("targets", len(targets)).Info("Campaign started")

	return router.ResponseCreatedWithData(c, "Campaign started", runner.Snapshot())
}

// Status reports live campaign progress including the delay countdown.
func Status(c *fiber.Ctx) error {
	tenantID := getTenantID(c)
	return router.ResponseSuccessWithData(c, "Campaign status", manager.Runner(tenantID).Snapshot())
}

// Pause stops the campaign at the next send boundary, keeping progress.
func Pause(c *fiber.Ctx) error {
	tenantID := getTenantID(c)

	if err := manager.Runner(tenantID).Pause(); err != nil {
		return router.ResponseConflict(c, err.Error())
	}

	log.Session(tenantID).Info("Campaign paused")
	return router.ResponseSuccessWithData(c, "Campaign paused", manager.Runner(tenantID).Snapshot())
}

// Resume continues a paused campaign from the saved position.
func Resume(c *fiber.Ctx) error {
	tenantID := getTenantID(c)

	if err := manager.Runner(tenantID).Resume(); err != nil {
		return router.ResponseConflict(c, err.Error())
	}

	log.Session(tenantID).Info("Campaign resumed")
	return router.ResponseSuccessWithData(c, "Campaign resumed", manager.Runner(tenantID).Snapshot())
}

// Cancel resets the campaign to idle, discarding progress counters.
func Cancel(c *fiber.Ctx) error {
	tenantID := getTenantID(c)

	manager.Runner(tenantID).Cancel()

	log.Session(tenantID).Info("Campaign cancelled")
	return router.ResponseSuccessWithData(c, "Campaign cancelled", manager.Runner(tenantID).Snapshot())
}

// resolveTargets maps selected contact ids to dispatch targets, keeping
// the selection order and skipping ids with no stored phone number.
func resolveTargets(ctx context.Context, tenantID string, ids []string) ([]campaign.Target, error) {
	contacts, err := contactStore.List(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	byID := make(map[string]contact.Contact, len(contacts))
	for _, item := range contacts {
		byID[item.ID] = item
	}

	targets := make([]campaign.Target, 0, len(ids))
	for _, id := range ids {
		item, ok := byID[id]
		if !ok || strings.TrimSpace(item.Phone) == "" {
			continue
		}
		targets = append(targets, campaign.Target{
			ContactID:   item.ID,
			DisplayName: item.DisplayName,
			Phone:       item.Phone,
		})
	}
	return targets, nil
}
