// Package webhook delivers session and message events to tenant-registered
// HTTPS endpoints, signed with a per-endpoint HMAC secret.
package webhook

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/zapvendas/messaging-api/pkg/env"
	"github.com/zapvendas/messaging-api/pkg/log"
)

// Engine fans events out to matching endpoints through a fixed worker
// pool. A full queue drops the delivery rather than blocking the caller.
type Engine struct {
	store      *Store
	httpClient *http.Client
	queue      chan deliveryTask
	retryLimit int
	enabled    bool
	wg         sync.WaitGroup
	ctx        context.Context
	cancel     context.CancelFunc
}

type deliveryTask struct {
	webhook Config
	event   Event
}

func NewEngine(store *Store) *Engine {
	workers := env.GetEnvIntOrDefault("WEBHOOK_WORKERS", 4)
	if workers <= 0 {
		workers = 4
	}
	retryLimit := env.GetEnvIntOrDefault("WEBHOOK_RETRY_LIMIT", 3)
	if retryLimit <= 0 {
		retryLimit = 3
	}
	enabled := env.GetEnvBoolOrDefault("WEBHOOKS_ENABLED", true)

	ctx, cancel := context.WithCancel(context.Background())

	e := &Engine{
		store:      store,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		queue:      make(chan deliveryTask, 1000),
		retryLimit: retryLimit,
		enabled:    enabled,
		ctx:        ctx,
		cancel:     cancel,
	}

	if enabled {
		for i := 0; i < workers; i++ {
			e.wg.Add(1)
			go e.worker()
		}
	}

	return e
}

func (e *Engine) Store() *Store {
	return e.store
}

// Shutdown closes the queue, waits for the workers to drain the remaining
// deliveries, then cancels any in-flight HTTP requests.
func (e *Engine) Shutdown() {
	close(e.queue)
	e.wg.Wait()
	e.cancel()
}

// Dispatch queues the event for every enabled endpoint subscribed to it.
func (e *Engine) Dispatch(ctx context.Context, tenantID string, event Event) {
	if !e.enabled {
		return
	}

	webhooks, err := e.store.ListEnabled(ctx, tenantID)
	if err != nil {
		log.Session(tenantID).WithError(err).Error("Failed to load webhooks for dispatch")
		return
	}

	for _, w := range webhooks {
		if !subscribed(w, event.Event) {
			continue
		}
		select {
		case e.queue <- deliveryTask{webhook: w, event: event}:
		default:
			log.Session(tenantID).WithField("webhook_id", w.ID).Warn("Webhook queue full, dropping event")
		}
	}
}

// subscribed treats an empty event list as a subscription to everything.
func subscribed(w Config, event string) bool {
	if len(w.Events) == 0 {
		return true
	}
	for _, e := range w.Events {
		if e == event {
			return true
		}
	}
	return false
}

// worker drains the queue until it is closed, so queued deliveries still
// go out during shutdown.
func (e *Engine) worker() {
	defer e.wg.Done()
	for task := range e.queue {
		e.deliver(task)
	}
}

func (e *Engine) deliver(task deliveryTask) {
	tenantID := task.event.TenantID

	if err := ValidateURL(task.webhook.URL); err != nil {
		e.logDelivery(task.webhook.ID, task.event.Event, DeliveryFailed, 0, err.Error())
		return
	}

	payload, err := json.Marshal(task.event)
	if err != nil {
		log.Session(tenantID).WithError(err).Error("Failed to marshal webhook payload")
		return
	}

	signature := Sign(payload, task.webhook.Secret)

	var lastErr error
	for attempt := 1; attempt <= e.retryLimit; attempt++ {
		lastErr = e.post(task.webhook.URL, payload, signature, task.event.Event)
		if lastErr == nil {
			e.logDelivery(task.webhook.ID, task.event.Event, DeliverySuccess, attempt, "")
			log.Session(tenantID).WithField("webhook_id", task.webhook.ID).WithField("event", task.event.Event).Info("Webhook delivered")
			return
		}
		if attempt < e.retryLimit {
			time.Sleep(time.Duration(attempt*2) * time.Second)
		}
	}

	e.logDelivery(task.webhook.ID, task.event.Event, DeliveryFailed, e.retryLimit, lastErr.Error())
	log.Session(tenantID).WithField("webhook_id", task.webhook.ID).WithError(lastErr).Warn("Webhook delivery failed")
}

func (e *Engine) logDelivery(webhookID int64, event string, status DeliveryStatus, attempts int, detail string) {
	if e.store == nil {
		return
	}
	_ = e.store.LogDelivery(context.Background(), webhookID, event, status, attempts, detail)
}

func (e *Engine) post(endpoint string, payload []byte, signature string, event string) error {
	req, err := http.NewRequestWithContext(e.ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return err
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Webhook-Signature", signature)
	req.Header.Set("X-Webhook-Event", event)
	req.Header.Set("User-Agent", "ZapVendas-Messaging-API/1.0")

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return err
	}
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
	resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("HTTP %d: %s", resp.StatusCode, string(body))
	}
	return nil
}

// Sign computes the hex HMAC-SHA256 signature sent alongside the payload.
func Sign(payload []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

// ValidateURL rejects non-HTTPS and private-network endpoints.
func ValidateURL(rawURL string) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return err
	}

	if u.Scheme != "https" {
		return fmt.Errorf("only HTTPS URLs are allowed")
	}

	host := strings.ToLower(u.Hostname())
	if host == "localhost" || host == "127.0.0.1" || host == "0.0.0.0" ||
		strings.HasPrefix(host, "192.168.") || strings.HasPrefix(host, "10.") || strings.HasPrefix(host, "172.") {
		return fmt.Errorf("private/local network URLs are not allowed")
	}

	return nil
}
