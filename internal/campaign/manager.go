package campaign

import (
	"sync"

	"golang.org/x/time/rate"

	"github.com/zapvendas/messaging-api/pkg/env"
)

// Manager hands out one Runner per tenant.
type Manager struct {
	sender Sender
	record Recorder

	mu      sync.Mutex
	runners map[string]*Runner
}

func NewManager(sender Sender, record Recorder) *Manager {
	return &Manager{
		sender:  sender,
		record:  record,
		runners: make(map[string]*Runner),
	}
}

// Runner returns the tenant's campaign runner, creating it on first use.
// Each runner gets its own rate limiter so tenants cannot starve each other.
func (m *Manager) Runner(tenantID string) *Runner {
	m.mu.Lock()
	defer m.mu.Unlock()
	if r, ok := m.runners[tenantID]; ok {
		return r
	}
	r := NewRunner(m.sender, m.record, newSendLimiter())
	m.runners[tenantID] = r
	return r
}

// newSendLimiter caps campaign throughput on top of the randomized delays.
// The cap matters when delays are configured near zero.
func newSendLimiter() *rate.Limiter {
	perMinute := env.GetEnvIntOrDefault("CAMPAIGN_MAX_SENDS_PER_MINUTE", 20)
	if perMinute <= 0 {
		perMinute = 20
	}
	return rate.NewLimiter(rate.Limit(float64(perMinute)/60.0), 1)
}
