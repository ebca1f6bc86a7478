package webhook

import "time"

// Config is one registered webhook endpoint for a tenant.
type Config struct {
	ID        int64     `json:"id"`
	TenantID  string    `json:"tenant_id"`
	URL       string    `json:"url"`
	Secret    string    `json:"-"`
	Events    []string  `json:"events"`
	Enabled   bool      `json:"enabled"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Event is the JSON body POSTed to registered endpoints.
type Event struct {
	Event     string                 `json:"event"`
	TenantID  string                 `json:"tenant_id"`
	Timestamp time.Time              `json:"timestamp"`
	Data      map[string]interface{} `json:"data"`
}

// DeliveryStatus is the terminal outcome of one delivery attempt chain.
type DeliveryStatus string

const (
	DeliverySuccess DeliveryStatus = "success"
	DeliveryFailed  DeliveryStatus = "failed"
)

// DeliveryLog is one recorded delivery outcome.
type DeliveryLog struct {
	ID        int64          `json:"id"`
	WebhookID int64          `json:"webhook_id"`
	Event     string         `json:"event"`
	Status    DeliveryStatus `json:"status"`
	Attempts  int            `json:"attempts"`
	LastError string         `json:"last_error,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}
