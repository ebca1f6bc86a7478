package whatsapp

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"google.golang.org/protobuf/proto"

	"go.mau.fi/whatsmeow/proto/waE2E"
)

func TestGetStateUnknownTenantIsDisconnected(t *testing.T) {
	state := GetState("tenant-does-not-exist")
	if state.Status != StatusDisconnected {
		t.Fatalf("expected disconnected, got %s", state.Status)
	}
	if state.QRCode != "" || state.PhoneNumber != "" {
		t.Fatalf("expected empty state payload, got %+v", state)
	}
}

func TestEnsureSessionIsIdempotent(t *testing.T) {
	const tenant = "tenant-ensure"
	t.Cleanup(func() { deleteSession(tenant) })

	first, created := ensureSession(tenant)
	if !created {
		t.Fatal("expected first ensureSession to create")
	}
	second, created := ensureSession(tenant)
	if created {
		t.Fatal("expected second ensureSession to reuse")
	}
	if first != second {
		t.Fatal("expected the same session handle")
	}
}

func TestConcurrentEnsureSessionYieldsOneHandle(t *testing.T) {
	const tenant = "tenant-concurrent"
	t.Cleanup(func() { deleteSession(tenant) })

	var (
		mu      sync.Mutex
		handles = make(map[*Session]struct{})
		wg      sync.WaitGroup
	)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s, _ := ensureSession(tenant)
			mu.Lock()
			handles[s] = struct{}{}
			mu.Unlock()
		}()
	}
	wg.Wait()

	if len(handles) != 1 {
		t.Fatalf("expected exactly one session handle, got %d", len(handles))
	}
}

func TestSessionStateTransitions(t *testing.T) {
	const tenant = "tenant-transitions"
	t.Cleanup(func() { deleteSession(tenant) })

	s, _ := ensureSession(tenant)
	if s.Status() != StatusConnecting {
		t.Fatalf("new session should start connecting, got %s", s.Status())
	}

	s.setPairingChallenge("data:image/png;base64,abc")
	state := s.State()
	if state.Status != StatusAwaitingPairing || state.QRCode == "" {
		t.Fatalf("expected awaiting pairing with QR payload, got %+v", state)
	}

	s.setConnected("5511987654321")
	state = s.State()
	if state.Status != StatusConnected {
		t.Fatalf("expected connected, got %s", state.Status)
	}
	if state.QRCode != "" {
		t.Fatal("QR payload must be cleared once connected")
	}
	if state.PhoneNumber != "5511987654321" {
		t.Fatalf("expected self phone id, got %q", state.PhoneNumber)
	}

	s.setStatus(StatusDisconnected)
	state = s.State()
	if state.PhoneNumber != "" {
		t.Fatal("self phone id must be cleared when not connected")
	}
}

func TestScheduleReconnectMarksDisconnectedAndArmsOnce(t *testing.T) {
	t.Setenv("WHATSAPP_RECONNECT_DELAY", "1h")

	const tenant = "tenant-reconnect"
	t.Cleanup(func() { deleteSession(tenant) })

	s, _ := ensureSession(tenant)
	s.setConnected("5511987654321")

	scheduleReconnect(tenant)
	if s.Status() != StatusDisconnected {
		t.Fatalf("expected disconnected while waiting, got %s", s.Status())
	}

	s.mu.Lock()
	first := s.reconnect
	s.mu.Unlock()
	if first == nil {
		t.Fatal("expected a reconnect timer to be armed")
	}

	scheduleReconnect(tenant)
	s.mu.Lock()
	second := s.reconnect
	s.mu.Unlock()
	if second != first {
		t.Fatal("second transient close must not re-arm the timer")
	}

	s.cancelReconnect()
	s.mu.Lock()
	cleared := s.reconnect == nil
	s.mu.Unlock()
	if !cleared {
		t.Fatal("cancelReconnect must clear the timer")
	}
}

func TestReconnectFiresWithinBackoffWindow(t *testing.T) {
	t.Setenv("WHATSAPP_RECONNECT_DELAY", "20ms")

	const tenant = "tenant-backoff"
	t.Cleanup(func() { deleteSession(tenant) })

	s, _ := ensureSession(tenant)
	s.setConnected("5511987654321")

	scheduleReconnect(tenant)

	// With no client handle the attempt is a no-op, but the timer must fire
	// and flip the session back into connecting within the window.
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if s.Status() == StatusConnecting {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("expected session to re-enter connecting, still %s", s.Status())
}

func TestScheduleReconnectSkipsClosingSession(t *testing.T) {
	const tenant = "tenant-closing"
	t.Cleanup(func() { deleteSession(tenant) })

	s, _ := ensureSession(tenant)
	s.markClosing()

	scheduleReconnect(tenant)
	s.mu.Lock()
	armed := s.reconnect != nil
	s.mu.Unlock()
	if armed {
		t.Fatal("closing session must not arm a reconnect")
	}
}

func TestExtractContent(t *testing.T) {
	tests := []struct {
		name string
		msg  *waE2E.Message
		want string
	}{
		{"nil message", nil, ""},
		{"conversation", &waE2E.Message{Conversation: proto.String("Oi")}, "Oi"},
		{
			"extended text",
			&waE2E.Message{ExtendedTextMessage: &waE2E.ExtendedTextMessage{Text: proto.String("link text")}},
			"link text",
		},
		{"image", &waE2E.Message{ImageMessage: &waE2E.ImageMessage{}}, "[image]"},
		{"audio", &waE2E.Message{AudioMessage: &waE2E.AudioMessage{}}, "[audio]"},
		{"video", &waE2E.Message{VideoMessage: &waE2E.VideoMessage{}}, "[video]"},
		{"document", &waE2E.Message{DocumentMessage: &waE2E.DocumentMessage{}}, "[document]"},
		{"sticker", &waE2E.Message{StickerMessage: &waE2E.StickerMessage{}}, "[sticker]"},
		{"empty", &waE2E.Message{}, ""},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := extractContent(tc.msg); got != tc.want {
				t.Fatalf("extractContent = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestSendTextRequiresConnectedSession(t *testing.T) {
	const tenant = "tenant-send-disconnected"
	t.Cleanup(func() { deleteSession(tenant) })

	// No session at all.
	if _, err := SendText(t.Context(), tenant, "11987654321", "hello"); err != ErrNotConnected {
		t.Fatalf("expected ErrNotConnected, got %v", err)
	}

	// Session exists but is not connected.
	s, _ := ensureSession(tenant)
	s.setStatus(StatusDisconnected)
	if _, err := SendText(t.Context(), tenant, "11987654321", "hello"); err != ErrNotConnected {
		t.Fatalf("expected ErrNotConnected for disconnected session, got %v", err)
	}
}

func TestPersistedTenantsScansSessionRoot(t *testing.T) {
	root := t.TempDir()
	t.Setenv("WHATSAPP_SESSION_ROOT", root)

	if tenants, err := PersistedTenants(); err != nil || tenants != nil {
		t.Fatalf("empty root: got %v, %v", tenants, err)
	}

	mkTenant := func(name string, withStore bool) {
		dir := filepath.Join(root, name)
		if err := os.MkdirAll(dir, 0o700); err != nil {
			t.Fatal(err)
		}
		if withStore {
			if err := os.WriteFile(filepath.Join(dir, "session.db"), []byte("x"), 0o600); err != nil {
				t.Fatal(err)
			}
		}
	}
	mkTenant("tenant-a", true)
	mkTenant("tenant-b", false)
	mkTenant("tenant-c", true)

	tenants, err := PersistedTenants()
	if err != nil {
		t.Fatal(err)
	}
	if len(tenants) != 2 {
		t.Fatalf("expected 2 persisted tenants, got %v", tenants)
	}
}

func TestRemoteLogoutPurgesCredentials(t *testing.T) {
	root := t.TempDir()
	t.Setenv("WHATSAPP_SESSION_ROOT", root)

	const tenantID = "tenant-logout"
	dir := filepath.Join(root, tenantID)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "session.db"), []byte("x"), 0o600); err != nil {
		t.Fatal(err)
	}

	s, created := ensureSession(tenantID)
	if !created {
		t.Fatal("expected a fresh session")
	}
	t.Cleanup(func() { deleteSession(tenantID) })
	s.setConnected("5511987654321")

	handleRemoteLogout(tenantID)

	if _, err := os.Stat(dir); !os.IsNotExist(err) {
		t.Fatalf("credential directory should be removed, stat err = %v", err)
	}
	if got := GetState(tenantID).Status; got != StatusDisconnected {
		t.Fatalf("state after remote logout = %v, want %v", got, StatusDisconnected)
	}
	tenants, err := PersistedTenants()
	if err != nil {
		t.Fatal(err)
	}
	for _, name := range tenants {
		if name == tenantID {
			t.Fatal("tenant must not be restorable after remote logout")
		}
	}
}
