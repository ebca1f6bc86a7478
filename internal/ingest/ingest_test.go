package ingest

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/zapvendas/messaging-api/internal/contact"
)

type fakeStore struct {
	contacts []contact.Contact
	appended map[string][]contact.Message
	created  []contact.Contact
	listErr  error
}

func newFakeStore(contacts ...contact.Contact) *fakeStore {
	return &fakeStore{
		contacts: contacts,
		appended: make(map[string][]contact.Message),
	}
}

func (f *fakeStore) List(ctx context.Context, tenantID string) ([]contact.Contact, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.contacts, nil
}

func (f *fakeStore) Create(ctx context.Context, c contact.Contact) (contact.Contact, error) {
	c.ID = "created-" + c.Phone
	f.created = append(f.created, c)
	return c, nil
}

func (f *fakeStore) AppendHistory(ctx context.Context, tenantID string, contactID string, history []contact.Message) error {
	f.appended[contactID] = history
	return nil
}

type fakeDeduper struct {
	seen map[string]bool
}

func (f *fakeDeduper) Seen(ctx context.Context, tenantID string, messageID string) (bool, error) {
	key := tenantID + ":" + messageID
	if f.seen[key] {
		return true, nil
	}
	if f.seen == nil {
		f.seen = make(map[string]bool)
	}
	f.seen[key] = true
	return false, nil
}

func TestIngestAppendsToMatchingContact(t *testing.T) {
	t.Parallel()

	existing := contact.Contact{
		ID:       "c1",
		TenantID: "t1",
		Phone:    "5511987654321",
		History: []contact.Message{
			{Direction: contact.DirectionYou, Content: "hello"},
		},
	}

	// The stored phone matches through every locale-prefix variant.
	for _, sender := range []string{"5511987654321", "11987654321", "+55 (11) 98765-4321"} {
		store := newFakeStore(existing)
		p := New(store, nil)

		res, err := p.Ingest(context.Background(), "t1", "m1", sender, "", "Oi", time.Now())
		if err != nil {
			t.Fatalf("Ingest(%q) error: %v", sender, err)
		}
		if res.Created {
			t.Fatalf("Ingest(%q) unexpectedly created a contact", sender)
		}
		if res.ContactID != "c1" {
			t.Fatalf("Ingest(%q) matched %q, want c1", sender, res.ContactID)
		}

		history := store.appended["c1"]
		if len(history) != 2 {
			t.Fatalf("expected history of 2, got %d", len(history))
		}
		last := history[len(history)-1]
		if last.Direction != contact.DirectionLead || last.Content != "Oi" {
			t.Fatalf("unexpected appended entry: %+v", last)
		}
	}
}

func TestIngestCreatesContactWhenNoMatch(t *testing.T) {
	t.Parallel()

	store := newFakeStore(contact.Contact{ID: "other", TenantID: "t1", Phone: "5521912345678"})
	p := New(store, nil)

	res, err := p.Ingest(context.Background(), "t1", "m1", "5511987654321", "", "Oi", time.Now())
	if err != nil {
		t.Fatalf("Ingest error: %v", err)
	}
	if !res.Created {
		t.Fatal("expected a new contact")
	}

	if len(store.created) != 1 {
		t.Fatalf("expected 1 created contact, got %d", len(store.created))
	}
	c := store.created[0]
	if !strings.Contains(c.DisplayName, "11 987654321") {
		t.Fatalf("display name %q should contain the formatted phone", c.DisplayName)
	}
	if c.Status != "new" {
		t.Fatalf("expected status new, got %q", c.Status)
	}
	if len(c.History) != 1 {
		t.Fatalf("expected history of 1, got %d", len(c.History))
	}
	if c.History[0].Direction != contact.DirectionLead || c.History[0].Content != "Oi" {
		t.Fatalf("unexpected history entry: %+v", c.History[0])
	}
}

func TestIngestPrefersSanitizedPushName(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	p := New(store, nil)

	if _, err := p.Ingest(context.Background(), "t1", "m1", "5511987654321", "Maria 🚀✨", "Oi", time.Now()); err != nil {
		t.Fatalf("Ingest error: %v", err)
	}

	if got := store.created[0].DisplayName; got != "Maria" {
		t.Fatalf("expected sanitized push name, got %q", got)
	}
}

func TestIngestEmptyBodyBecomesPlaceholder(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	p := New(store, nil)

	if _, err := p.Ingest(context.Background(), "t1", "m1", "5511987654321", "", "  ", time.Now()); err != nil {
		t.Fatalf("Ingest error: %v", err)
	}

	if got := store.created[0].History[0].Content; got != "[media]" {
		t.Fatalf("expected media placeholder, got %q", got)
	}
}

func TestIngestSkipsDuplicateDeliveries(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	p := New(store, &fakeDeduper{seen: make(map[string]bool)})

	first, err := p.Ingest(context.Background(), "t1", "m1", "5511987654321", "", "Oi", time.Now())
	if err != nil || first.Skipped {
		t.Fatalf("first delivery: res=%+v err=%v", first, err)
	}

	second, err := p.Ingest(context.Background(), "t1", "m1", "5511987654321", "", "Oi", time.Now())
	if err != nil {
		t.Fatalf("second delivery error: %v", err)
	}
	if !second.Skipped {
		t.Fatal("expected duplicate delivery to be skipped")
	}
	if len(store.created) != 1 {
		t.Fatalf("duplicate must not create another contact, got %d", len(store.created))
	}
}

func TestIngestWithoutDeduperAcceptsRedeliveries(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	p := New(store, nil)

	for i := 0; i < 2; i++ {
		res, err := p.Ingest(context.Background(), "t1", "m1", "5511987654321", "", "Oi", time.Now())
		if err != nil {
			t.Fatalf("delivery %d: %v", i, err)
		}
		if res.Skipped {
			t.Fatalf("delivery %d skipped without a deduper", i)
		}
	}
}

func TestIngestPropagatesStoreErrors(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	store.listErr = errors.New("db down")
	p := New(store, nil)

	if _, err := p.Ingest(context.Background(), "t1", "m1", "5511987654321", "", "Oi", time.Now()); err == nil {
		t.Fatal("expected error from store")
	}
}
