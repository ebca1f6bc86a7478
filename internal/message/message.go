package message

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/zapvendas/messaging-api/internal/contact"
	typAPI "github.com/zapvendas/messaging-api/internal/types"
	"github.com/zapvendas/messaging-api/pkg/log"
	"github.com/zapvendas/messaging-api/pkg/phone"
	"github.com/zapvendas/messaging-api/pkg/router"
	pkgWhatsApp "github.com/zapvendas/messaging-api/pkg/whatsapp"
)

var contactStore contact.Store

// Use wires the contact store so sent texts land in contact history.
func Use(store contact.Store) {
	contactStore = store
}

func getTenantID(c *fiber.Ctx) string {
	return c.Locals("tenant_id").(string)
}

// Send delivers one text message to a phone number. The destination is
// normalized before dispatch and the sent text is appended to the
// matching contact's history when one exists.
func Send(c *fiber.Ctx) error {
	tenantID := getTenantID(c)

	var req typAPI.RequestSendMessage
	if err := c.BodyParser(&req); err != nil {
		log.Session(tenantID).Warn("Failed to parse body request")
		return router.ResponseBadRequest(c, "Failed parse body request")
	}

	req.Phone = strings.TrimSpace(req.Phone)
	if req.Phone == "" {
		return router.ResponseBadRequest(c, "phone is required")
	}
	if strings.TrimSpace(req.Text) == "" {
		return router.ResponseBadRequest(c, "text is required")
	}

	ctx := c.UserContext()
	if ctx == nil {
		ctx = context.Background()
	}

	msgID, err := pkgWhatsApp.SendText(ctx, tenantID, req.Phone, req.Text)
	if err != nil {
		log.Session(tenantID).WithError(err).Error("Failed to send message")
		switch {
		case errors.Is(err, pkgWhatsApp.ErrNotConnected):
			return router.ResponseConflict(c, err.Error())
		case errors.Is(err, pkgWhatsApp.ErrTextTooLong), errors.Is(err, pkgWhatsApp.ErrInvalidDestination):
			return router.ResponseBadRequest(c, err.Error())
		default:
			return router.ResponseInternalError(c, "Failed to send message: "+err.Error())
		}
	}

	canonical := phone.EnsureCountry(phone.Normalize(req.Phone))
	recordOutbound(ctx, tenantID, canonical, req.Text)

	log.Session(tenantID).WithField("message_id", msgID).Info("Message sent")

	return router.ResponseSuccessWithData(c, "Success send message", typAPI.ResponseMessageSent{
		MessageID: msgID,
		Phone:     canonical,
	})
}

// recordOutbound appends the sent text to the matching contact's history.
// History is best effort; a store failure never fails the send.
func recordOutbound(ctx context.Context, tenantID string, canonical string, text string) {
	if contactStore == nil {
		return
	}

	contacts, err := contactStore.List(ctx, tenantID)
	if err != nil {
		log.Session(tenantID).WithError(err).Warn("Failed to load contacts for outbound history")
		return
	}

	entry := contact.Message{
		Direction: contact.DirectionYou,
		Content:   text,
		Timestamp: time.Now(),
	}

	variants := phone.Variants(canonical)
	for i := range contacts {
		if matchesAny(contacts[i].Phone, variants) {
			history := append(contacts[i].History, entry)
			if err := contactStore.AppendHistory(ctx, tenantID, contacts[i].ID, history); err != nil {
				log.Session(tenantID).WithError(err).Warn("Failed to append outbound history")
			}
			return
		}
	}
}

func matchesAny(contactPhone string, variants []string) bool {
	for _, v := range variants {
		if phone.Match(contactPhone, v) {
			return true
		}
	}
	return false
}
