package internal

import (
	"context"
	"database/sql"
	mathrand "math/rand/v2"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/zapvendas/messaging-api/internal/cache"
	"github.com/zapvendas/messaging-api/internal/campaign"
	"github.com/zapvendas/messaging-api/internal/campaigns"
	"github.com/zapvendas/messaging-api/internal/contact"
	"github.com/zapvendas/messaging-api/internal/contacts"
	"github.com/zapvendas/messaging-api/internal/ingest"
	"github.com/zapvendas/messaging-api/internal/message"
	"github.com/zapvendas/messaging-api/internal/webhook"
	"github.com/zapvendas/messaging-api/internal/webhooks"
	"github.com/zapvendas/messaging-api/pkg/env"
	"github.com/zapvendas/messaging-api/pkg/log"
	pkgWhatsApp "github.com/zapvendas/messaging-api/pkg/whatsapp"
)

// App holds the long-lived components built at startup, mainly so main can
// shut them down in order.
type App struct {
	DB            *sql.DB
	Redis         *redis.Client
	WebhookEngine *webhook.Engine
}

// whatsappSender adapts the package-level send call to the campaign runner.
type whatsappSender struct{}

func (whatsappSender) SendText(ctx context.Context, tenantID string, to string, text string) (string, error) {
	return pkgWhatsApp.SendText(ctx, tenantID, to, text)
}

// Startup wires persistence, the ingestion pipeline, the webhook engine and
// the campaign manager into the messaging core, then restores every tenant
// with persisted credentials.
func Startup() (*App, error) {
	log.Print(nil).Info("Running Startup Tasks")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	db, err := contact.OpenPostgres(env.MustGetEnvString("POSTGRES_DSN"))
	if err != nil {
		return nil, err
	}

	contactStore := contact.NewPostgresStore(db)
	if err := contactStore.EnsureSchema(ctx); err != nil {
		return nil, err
	}

	webhookStore := webhook.NewStore(db)
	if err := webhookStore.EnsureSchema(ctx); err != nil {
		return nil, err
	}
	engine := webhook.NewEngine(webhookStore)

	rdb := redis.NewClient(&redis.Options{
		Addr:     env.GetEnvStringOrDefault("REDIS_ADDRESS", "localhost:6379"),
		Password: env.GetEnvStringOrDefault("REDIS_PASSWORD", ""),
		DB:       env.GetEnvIntOrDefault("REDIS_DB", 0),
	})
	var dedup cache.Deduper
	if err := rdb.Ping(ctx).Err(); err != nil {
		log.Print(nil).WithError(err).Warn("Redis unreachable, inbound dedupe disabled")
	} else {
		dedupeTTL := env.GetEnvDurationOrDefault("INBOUND_DEDUPE_TTL", 24*time.Hour)
		dedup = cache.NewRedisDeduper(rdb, dedupeTTL)
	}
	pipeline := ingest.New(contactStore, dedup)

	manager := campaign.NewManager(whatsappSender{}, campaignRecorder(contactStore))

	// Controller wiring
	message.Use(contactStore)
	contacts.Use(contactStore)
	campaigns.Use(manager, contactStore)
	webhooks.Use(engine)

	pkgWhatsApp.SetInboundHandler(func(ctx context.Context, m pkgWhatsApp.InboundMessage) {
		res, err := pipeline.Ingest(ctx, m.TenantID, m.MessageID, m.SenderRaw, m.SenderName, m.Content, m.Timestamp)
		if err != nil {
			log.Session(m.TenantID).WithError(err).Error("Failed to ingest inbound message")
			return
		}
		if res.Created {
			log.Session(m.TenantID).WithField("contact_id", res.ContactID).Info("Contact created from inbound message")
		}
	})

	pkgWhatsApp.SetEventNotifier(func(tenantID string, event string, data map[string]interface{}) {
		engine.Dispatch(context.Background(), tenantID, webhook.Event{
			Event:     event,
			TenantID:  tenantID,
			Timestamp: time.Now(),
			Data:      data,
		})
	})

	restoreSessions()

	return &App{DB: db, Redis: rdb, WebhookEngine: engine}, nil
}

// campaignRecorder appends a campaign send to the target contact's history.
// Best effort: the campaign keeps going even when history persistence fails.
func campaignRecorder(store contact.Store) campaign.Recorder {
	return func(ctx context.Context, tenantID string, contactID string, content string) {
		items, err := store.List(ctx, tenantID)
		if err != nil {
			log.Session(tenantID).WithError(err).Warn("Failed to load contacts for campaign history")
			return
		}
		for i := range items {
			if items[i].ID != contactID {
				continue
			}
			history := append(items[i].History, contact.Message{
				Direction: contact.DirectionYou,
				Content:   content,
				Timestamp: time.Now(),
			})
			if err := store.AppendHistory(ctx, tenantID, contactID, history); err != nil {
				log.Session(tenantID).WithError(err).Warn("Failed to append campaign history")
			}
			return
		}
	}
}

// restoreSessions reconnects every tenant with stored credentials, a few at
// a time with a small jitter so a restart does not reconnect the whole
// fleet at once.
func restoreSessions() {
	tenants, err := pkgWhatsApp.PersistedTenants()
	if err != nil {
		log.Print(nil).WithError(err).Error("Failed to scan persisted sessions")
		return
	}
	if len(tenants) == 0 {
		return
	}

	concurrency := env.GetEnvIntOrDefault("WHATSAPP_STARTUP_CONCURRENCY", 10)
	if concurrency <= 0 {
		concurrency = 10
	}
	jitterMax := env.GetEnvDurationOrDefault("WHATSAPP_STARTUP_JITTER_MAX", 5*time.Second)

	var g errgroup.Group
	g.SetLimit(concurrency)

	for _, tenantID := range tenants {
		tenantID := tenantID
		g.Go(func() error {
			if jitterMax > 0 {
				time.Sleep(time.Duration(mathrand.Int64N(int64(jitterMax) + 1)))
			}
			log.Session(tenantID).Info("Restoring session")
			if err := pkgWhatsApp.Connect(context.Background(), tenantID); err != nil {
				log.Session(tenantID).WithError(err).Warn("Failed to restore session")
			}
			return nil
		})
	}
	_ = g.Wait()

	log.Print(nil).WithField("tenants", len(tenants)).Info("Startup restore pass complete")
}
