package internal

import (
	"github.com/robfig/cron/v3"

	"github.com/zapvendas/messaging-api/pkg/env"
	"github.com/zapvendas/messaging-api/pkg/log"
	pkgWhatsApp "github.com/zapvendas/messaging-api/pkg/whatsapp"
)

// Routines registers the periodic health check. The messaging core already
// reconnects on transport drops; the cron only surfaces sessions that went
// quietly stale.
func Routines(c *cron.Cron) {
	log.Print(nil).Info("Running Routine Tasks")

	if !env.GetEnvBoolOrDefault("WHATSAPP_ENABLE_HEALTH_CHECK_CRON", true) {
		log.Print(nil).Info("Health check cron disabled")
		c.Start()
		return
	}

	_, err := c.AddFunc("0 */5 * * * *", func() {
		if pkgWhatsApp.SessionsLen() == 0 {
			return
		}
		pkgWhatsApp.RangeSessions(func(s *pkgWhatsApp.Session) {
			state := s.State()
			healthy := pkgWhatsApp.IsSessionHealthy(s.TenantID)
			if state.Status == pkgWhatsApp.StatusConnected && !healthy {
				log.Session(s.TenantID).Warn("Session unhealthy, transport check failed")
			}
		})
	})
	if err != nil {
		log.Print(nil).WithError(err).Error("Failed to add health check cron job")
	}

	c.Start()
}
