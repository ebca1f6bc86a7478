// Package whatsapp owns one persistent WhatsApp connection per tenant and
// multiplexes its lifecycle: disconnected, connecting, awaiting pairing and
// connected. Protocol internals are delegated to whatsmeow; this package
// translates its events into session state, routes inbound frames to the
// ingestion handler and exposes the outbound send operation.
package whatsapp

import (
	"context"
	"encoding/base64"
	"errors"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/rivo/uniseg"
	qrCode "github.com/skip2/go-qrcode"
	"google.golang.org/protobuf/proto"

	"go.mau.fi/whatsmeow"
	"go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/store/sqlstore"
	"go.mau.fi/whatsmeow/types"
	"go.mau.fi/whatsmeow/types/events"

	"github.com/zapvendas/messaging-api/pkg/env"
	"github.com/zapvendas/messaging-api/pkg/log"
	"github.com/zapvendas/messaging-api/pkg/phone"
)

var (
	ErrNotConnected       = errors.New("WhatsApp Client is not Connected")
	ErrTextTooLong        = errors.New("WhatsApp Message Text is Too Long")
	ErrInvalidDestination = errors.New("WhatsApp Destination Number is Not Valid")
	ErrEmptyTenant        = errors.New("Tenant ID Should Not Be Empty")
)

const (
	qrChannelWaitTimeout = 2 * time.Minute
	logoutRequestTimeout = 30 * time.Second
)

// Connection event names surfaced to the webhook notifier.
const (
	EventConnected    = "connection.connected"
	EventDisconnected = "connection.disconnected"
	EventLoggedOut    = "connection.logged_out"
	EventMessage      = "message.received"
)

// InboundMessage is a decoded inbound frame, normalized for ingestion.
type InboundMessage struct {
	TenantID   string
	MessageID  string
	SenderRaw  string
	SenderName string
	Content    string
	Timestamp  time.Time
}

var (
	inboundHandler func(context.Context, InboundMessage)
	eventNotifier  func(tenantID string, event string, data map[string]interface{})
)

// SetInboundHandler registers the ingestion pipeline. Must be called during
// startup, before any session connects.
func SetInboundHandler(fn func(context.Context, InboundMessage)) {
	inboundHandler = fn
}

// SetEventNotifier registers the webhook dispatcher for connection and
// message events. Optional.
func SetEventNotifier(fn func(tenantID string, event string, data map[string]interface{})) {
	eventNotifier = fn
}

func notifyEvent(tenantID string, event string, data map[string]interface{}) {
	if eventNotifier == nil {
		return
	}
	eventNotifier(tenantID, event, data)
}

// SessionRoot is the directory holding one credential store per tenant.
func SessionRoot() string {
	return env.GetEnvStringOrDefault("WHATSAPP_SESSION_ROOT", "./sessions")
}

func tenantDir(tenantID string) string {
	return filepath.Join(SessionRoot(), tenantID)
}

func reconnectDelay() time.Duration {
	return env.GetEnvDurationOrDefault("WHATSAPP_RECONNECT_DELAY", 3*time.Second)
}

func maxTextGraphemes() int {
	return env.GetEnvIntOrDefault("WHATSAPP_TEXT_MAX_GRAPHEMES", 4096)
}

// Connect brings up the tenant's session. Idempotent: a second call while a
// live session exists is a no-op and the existing state stays observable via
// GetState. Initialization failures tear the session down and surface as the
// returned error.
func Connect(ctx context.Context, tenantID string) error {
	if tenantID == "" {
		return ErrEmptyTenant
	}

	s, created := ensureSession(tenantID)
	if !created {
		return nil
	}

	if err := initSession(ctx, s); err != nil {
		deleteSession(tenantID)
		return err
	}
	return nil
}

func initSession(ctx context.Context, s *Session) error {
	dir := tenantDir(s.TenantID)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}

	container, err := sqlstore.New(ctx, "sqlite3", "file:"+filepath.Join(dir, "session.db")+"?_foreign_keys=on", nil)
	if err != nil {
		return err
	}

	device, err := container.GetFirstDevice(ctx)
	if err != nil {
		return err
	}

	client := whatsmeow.NewClient(device, nil)
	// The fixed-delay reconnect policy below is the single reconnect
	// authority; whatsmeow's own backoff would race it.
	client.EnableAutoReconnect = false
	client.AutoTrustIdentity = true
	client.AddEventHandler(handleEvents(s.TenantID))

	s.mu.Lock()
	s.client = client
	s.container = container
	s.mu.Unlock()

	if device.ID == nil {
		qrCtx, cancel := context.WithTimeout(context.Background(), qrChannelWaitTimeout)
		qrChan, err := client.GetQRChannel(qrCtx)
		if err != nil {
			cancel()
			return err
		}
		if err := client.Connect(); err != nil {
			cancel()
			return err
		}
		go watchQRChannel(s, qrChan, cancel)
		return nil
	}

	return client.Connect()
}

// watchQRChannel mirrors pairing challenges into session state until the
// channel settles. On timeout the session is dropped so the next connect
// starts a fresh pairing.
func watchQRChannel(s *Session, ch <-chan whatsmeow.QRChannelItem, cancel context.CancelFunc) {
	defer cancel()
	for item := range ch {
		switch item.Event {
		case "code":
			png, err := qrCode.Encode(item.Code, qrCode.Medium, 256)
			if err != nil {
				log.Session(s.TenantID).WithError(err).Error("Failed to render pairing QR code")
				continue
			}
			s.setPairingChallenge("data:image/png;base64," + base64.StdEncoding.EncodeToString(png))
		case whatsmeow.QRChannelSuccess.Event:
			return
		default:
			log.Session(s.TenantID).Warn("QR pairing ended without success: " + item.Event)
			if c := s.Client(); c != nil {
				c.Disconnect()
			}
			deleteSession(s.TenantID)
			return
		}
	}
}

func handleEvents(tenantID string) func(interface{}) {
	return func(evt interface{}) {
		switch e := evt.(type) {
		case *events.PairSuccess:
			log.Session(tenantID).Info("Paired with " + e.ID.User)
		case *events.Connected:
			s := getSession(tenantID)
			if s == nil {
				return
			}
			self := ""
			if c := s.Client(); c != nil && c.Store.ID != nil {
				self = c.Store.ID.User
			}
			s.setConnected(self)
			log.Session(tenantID).Info("Session connected")
			notifyEvent(tenantID, EventConnected, map[string]interface{}{
				"phone_number": self,
			})
		case *events.LoggedOut:
			log.Session(tenantID).Warn("Logged out by remote: " + e.Reason.String())
			handleRemoteLogout(tenantID)
			notifyEvent(tenantID, EventLoggedOut, nil)
		case *events.StreamReplaced:
			log.Session(tenantID).Warn("Stream replaced by another connection")
			scheduleReconnect(tenantID)
		case *events.Disconnected:
			log.Session(tenantID).Warn("Session disconnected")
			notifyEvent(tenantID, EventDisconnected, nil)
			scheduleReconnect(tenantID)
		case *events.ConnectFailure:
			log.Session(tenantID).Error("Connection failure: " + e.Reason.String())
		case *events.KeepAliveTimeout:
			log.Session(tenantID).Warn("Keepalive timeout")
		case *events.Message:
			routeInbound(tenantID, e)
		}
	}
}

// scheduleReconnect arms the fixed-delay reconnect for a transient close.
// Retries are unbounded with no backoff growth: cardinality is one
// connection per tenant, so availability wins over herd avoidance.
func scheduleReconnect(tenantID string) {
	s := getSession(tenantID)
	if s == nil || s.isClosing() {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.reconnect != nil {
		return
	}
	s.status = StatusDisconnected
	s.qrCode = ""
	s.phoneNumber = ""
	s.reconnect = time.AfterFunc(reconnectDelay(), func() {
		runReconnect(tenantID)
	})
}

func runReconnect(tenantID string) {
	s := getSession(tenantID)
	if s == nil || s.isClosing() {
		return
	}

	s.mu.Lock()
	s.reconnect = nil
	client := s.client
	s.status = StatusConnecting
	s.mu.Unlock()

	if client == nil {
		return
	}

	err := client.Connect()
	if err != nil && !errors.Is(err, whatsmeow.ErrAlreadyConnected) {
		log.Session(tenantID).WithError(err).Warn("Reconnect attempt failed")
		scheduleReconnect(tenantID)
	}
}

func handleRemoteLogout(tenantID string) {
	s := getSession(tenantID)
	if s == nil {
		return
	}
	s.markClosing()
	s.cancelReconnect()
	if c := s.Client(); c != nil {
		c.Disconnect()
	}
	purgeCredentials(context.Background(), s)
	deleteSession(tenantID)
}

// purgeCredentials drops the tenant's persisted pairing state so the next
// connect must present a fresh QR challenge.
func purgeCredentials(ctx context.Context, s *Session) {
	if c := s.Client(); c != nil {
		if err := c.Store.Delete(ctx); err != nil {
			log.Session(s.TenantID).WithError(err).Warn("Failed to delete credential store")
		}
	}
	if err := os.RemoveAll(tenantDir(s.TenantID)); err != nil {
		log.Session(s.TenantID).WithError(err).Warn("Failed to remove credential directory")
	}
}

// GetState is a pure read; unknown tenants report disconnected.
func GetState(tenantID string) State {
	s := getSession(tenantID)
	if s == nil {
		return State{Status: StatusDisconnected}
	}
	return s.State()
}

// Disconnect is the explicit-intent teardown: protocol-level logout,
// credential purge and session removal. It cancels any pending reconnect
// and never triggers the auto-reconnect policy. Disconnecting a tenant
// without a session is a no-op.
func Disconnect(ctx context.Context, tenantID string) error {
	s := getSession(tenantID)
	if s == nil {
		return nil
	}

	s.markClosing()
	s.cancelReconnect()

	if client := s.Client(); client != nil {
		if client.Store.ID != nil {
			logoutCtx, cancel := context.WithTimeout(ctx, logoutRequestTimeout)
			if err := client.Logout(logoutCtx); err != nil {
				log.Session(tenantID).WithError(err).Warn("Protocol logout failed, disconnecting anyway")
				client.Disconnect()
			}
			cancel()
		} else {
			client.Disconnect()
		}
	}

	purgeCredentials(ctx, s)
	deleteSession(tenantID)
	notifyEvent(tenantID, EventLoggedOut, nil)
	return nil
}

// SendText delivers one text message. The session must be connected; the
// destination is normalized with the national prefix forced on. Transport
// errors propagate untouched, retry is the caller's decision.
func SendText(ctx context.Context, tenantID string, to string, text string) (string, error) {
	s := getSession(tenantID)
	if s == nil || s.Status() != StatusConnected {
		return "", ErrNotConnected
	}
	client := s.Client()
	if client == nil {
		return "", ErrNotConnected
	}

	if uniseg.GraphemeClusterCount(text) > maxTextGraphemes() {
		return "", ErrTextTooLong
	}

	dest := phone.EnsureCountry(phone.Normalize(to))
	if dest == "" {
		return "", ErrInvalidDestination
	}

	remoteJID := types.NewJID(dest, types.DefaultUserServer)
	msgExtra := whatsmeow.SendRequestExtra{ID: client.GenerateMessageID()}
	msgContent := &waE2E.Message{
		Conversation: proto.String(text),
	}

	if _, err := client.SendMessage(ctx, remoteJID, msgContent, msgExtra); err != nil {
		return "", err
	}
	return msgExtra.ID, nil
}

func routeInbound(tenantID string, e *events.Message) {
	if e.Info.IsFromMe || e.Info.IsGroup {
		return
	}

	content := extractContent(e.Message)
	if content == "" {
		return
	}

	notifyEvent(tenantID, EventMessage, map[string]interface{}{
		"message_id": e.Info.ID,
		"from":       e.Info.Sender.String(),
		"timestamp":  e.Info.Timestamp.Unix(),
	})

	if inboundHandler == nil {
		return
	}
	inboundHandler(context.Background(), InboundMessage{
		TenantID:   tenantID,
		MessageID:  e.Info.ID,
		SenderRaw:  e.Info.Sender.User,
		SenderName: e.Info.PushName,
		Content:    content,
		Timestamp:  e.Info.Timestamp,
	})
}

// extractContent pulls the text body out of a frame, or a bracketed type
// marker for media. An empty result means the frame carries nothing worth
// ingesting (protocol messages, receipts inside message wrappers).
func extractContent(msg *waE2E.Message) string {
	switch {
	case msg == nil:
		return ""
	case msg.GetConversation() != "":
		return msg.GetConversation()
	case msg.GetExtendedTextMessage().GetText() != "":
		return msg.GetExtendedTextMessage().GetText()
	case msg.GetImageMessage() != nil:
		return "[image]"
	case msg.GetAudioMessage() != nil:
		return "[audio]"
	case msg.GetVideoMessage() != nil:
		return "[video]"
	case msg.GetDocumentMessage() != nil:
		return "[document]"
	case msg.GetStickerMessage() != nil:
		return "[sticker]"
	case msg.GetContactMessage() != nil:
		return "[contact]"
	case msg.GetLocationMessage() != nil:
		return "[location]"
	default:
		return ""
	}
}

// PersistedTenants lists tenants with a credential store on disk, used to
// restore sessions after a restart.
func PersistedTenants() ([]string, error) {
	entries, err := os.ReadDir(SessionRoot())
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var tenants []string
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		if _, err := os.Stat(filepath.Join(SessionRoot(), entry.Name(), "session.db")); err == nil {
			tenants = append(tenants, entry.Name())
		}
	}
	return tenants, nil
}

// IsSessionHealthy reports whether the tenant's client is both connected
// and logged in. Used by the health check routine.
func IsSessionHealthy(tenantID string) bool {
	s := getSession(tenantID)
	if s == nil {
		return false
	}
	client := s.Client()
	return client != nil && client.IsConnected() && client.IsLoggedIn()
}
