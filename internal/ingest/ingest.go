// Package ingest resolves inbound messages against a tenant's address book
// and records them, creating contacts for unknown senders.
package ingest

import (
	"context"
	"strings"
	"time"

	"github.com/forPelevin/gomoji"

	"github.com/zapvendas/messaging-api/internal/cache"
	"github.com/zapvendas/messaging-api/internal/contact"
	"github.com/zapvendas/messaging-api/pkg/log"
	"github.com/zapvendas/messaging-api/pkg/phone"
)

// mediaPlaceholder stands in for bodies that could not be decoded to text.
const mediaPlaceholder = "[media]"

type Result struct {
	ContactID string
	Created   bool
	// Skipped is set when the message was a duplicate delivery.
	Skipped bool
}

type Pipeline struct {
	store contact.Store
	dedup cache.Deduper
}

// New builds the pipeline. dedup may be nil, in which case redeliveries are
// ingested again.
func New(store contact.Store, dedup cache.Deduper) *Pipeline {
	return &Pipeline{store: store, dedup: dedup}
}

// Ingest records one inbound message. The sender is matched against every
// stored contact using the relaxed phone predicate across locale-prefix
// variants; the O(n) scan per message is the accepted cost of fuzzy
// matching. Messages that reach this stage are never dropped: an empty body
// still lands as a media placeholder.
func (p *Pipeline) Ingest(ctx context.Context, tenantID, messageID, senderRaw, senderName, content string, ts time.Time) (Result, error) {
	if p.dedup != nil && messageID != "" {
		seen, err := p.dedup.Seen(ctx, tenantID, messageID)
		if err != nil {
			log.Session(tenantID).WithError(err).Warn("Dedupe check failed, ingesting anyway")
		} else if seen {
			return Result{Skipped: true}, nil
		}
	}

	if strings.TrimSpace(content) == "" {
		content = mediaPlaceholder
	}
	if ts.IsZero() {
		ts = time.Now()
	}

	canonical := phone.Normalize(senderRaw)
	variants := phone.Variants(canonical)

	contacts, err := p.store.List(ctx, tenantID)
	if err != nil {
		return Result{}, err
	}

	entry := contact.Message{
		Direction: contact.DirectionLead,
		Content:   content,
		Timestamp: ts,
	}

	if matched := findByPhone(contacts, variants); matched != nil {
		history := append(matched.History, entry)
		if err := p.store.AppendHistory(ctx, tenantID, matched.ID, history); err != nil {
			return Result{}, err
		}
		return Result{ContactID: matched.ID}, nil
	}

	created, err := p.store.Create(ctx, contact.Contact{
		TenantID:    tenantID,
		DisplayName: displayName(senderName, canonical),
		Phone:       canonical,
		Status:      "new",
		History:     []contact.Message{entry},
	})
	if err != nil {
		return Result{}, err
	}
	return Result{ContactID: created.ID, Created: true}, nil
}

func findByPhone(contacts []contact.Contact, variants []string) *contact.Contact {
	for i := range contacts {
		c := &contacts[i]
		if c.Phone == "" {
			continue
		}
		for _, v := range variants {
			if phone.Match(c.Phone, v) {
				return c
			}
		}
	}
	return nil
}

// displayName prefers the sender's push name, scrubbed of emoji; unknown
// senders get a name synthesized from the formatted phone.
func displayName(senderName, canonical string) string {
	name := strings.TrimSpace(gomoji.RemoveEmojis(senderName))
	if name != "" {
		return name
	}
	return "Lead " + phone.Format(canonical)
}
