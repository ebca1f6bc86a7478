package whatsapp

import (
	"sync"
	"time"

	"go.mau.fi/whatsmeow"
	"go.mau.fi/whatsmeow/store/sqlstore"
)

// Status is the lifecycle state of one tenant's messaging session.
type Status string

const (
	StatusDisconnected    Status = "disconnected"
	StatusConnecting      Status = "connecting"
	StatusAwaitingPairing Status = "awaiting_pairing"
	StatusConnected       Status = "connected"
)

// State is the externally visible snapshot of a session, shaped for the
// polling endpoint.
type State struct {
	Status      Status `json:"status"`
	QRCode      string `json:"qr_code,omitempty"`
	PhoneNumber string `json:"phone_number,omitempty"`
}

// Session owns the single protocol client handle for one tenant.
type Session struct {
	TenantID string

	mu          sync.Mutex
	client      *whatsmeow.Client
	container   *sqlstore.Container
	status      Status
	qrCode      string
	phoneNumber string
	reconnect   *time.Timer
	closing     bool
}

func (s *Session) Client() *whatsmeow.Client {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.client
}

func (s *Session) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return State{
		Status:      s.status,
		QRCode:      s.qrCode,
		PhoneNumber: s.phoneNumber,
	}
}

func (s *Session) setStatus(status Status) {
	s.mu.Lock()
	s.status = status
	if status != StatusAwaitingPairing {
		s.qrCode = ""
	}
	if status != StatusConnected {
		s.phoneNumber = ""
	}
	s.mu.Unlock()
}

func (s *Session) setPairingChallenge(qrDataURI string) {
	s.mu.Lock()
	s.status = StatusAwaitingPairing
	s.qrCode = qrDataURI
	s.mu.Unlock()
}

func (s *Session) setConnected(phoneNumber string) {
	s.mu.Lock()
	s.status = StatusConnected
	s.qrCode = ""
	s.phoneNumber = phoneNumber
	s.mu.Unlock()
}

// cancelReconnect stops a pending reconnect timer, if any.
func (s *Session) cancelReconnect() {
	s.mu.Lock()
	if s.reconnect != nil {
		s.reconnect.Stop()
		s.reconnect = nil
	}
	s.mu.Unlock()
}

func (s *Session) markClosing() {
	s.mu.Lock()
	s.closing = true
	s.mu.Unlock()
}

func (s *Session) isClosing() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closing
}

// Process-wide session registry, one entry per tenant. All lifecycle
// mutations go through the functions below so the one-session-per-tenant
// invariant holds.
var (
	sessionsMu sync.RWMutex
	sessions   = make(map[string]*Session)
)

func getSession(tenantID string) *Session {
	sessionsMu.RLock()
	s := sessions[tenantID]
	sessionsMu.RUnlock()
	return s
}

// ensureSession returns the tenant's session, creating it when absent.
// The second return value reports whether this call created it, which makes
// concurrent Connect calls collapse onto a single handle.
func ensureSession(tenantID string) (*Session, bool) {
	sessionsMu.Lock()
	defer sessionsMu.Unlock()
	if s, ok := sessions[tenantID]; ok {
		return s, false
	}
	s := &Session{TenantID: tenantID, status: StatusConnecting}
	sessions[tenantID] = s
	return s, true
}

func deleteSession(tenantID string) {
	sessionsMu.Lock()
	delete(sessions, tenantID)
	sessionsMu.Unlock()
}

func rangeSessions(fn func(*Session)) {
	sessionsMu.RLock()
	snapshot := make([]*Session, 0, len(sessions))
	for _, s := range sessions {
		snapshot = append(snapshot, s)
	}
	sessionsMu.RUnlock()
	for _, s := range snapshot {
		fn(s)
	}
}

// RangeSessions visits every live session. Used by the health check routine.
func RangeSessions(fn func(*Session)) {
	rangeSessions(fn)
}

func SessionsLen() int {
	sessionsMu.RLock()
	defer sessionsMu.RUnlock()
	return len(sessions)
}
