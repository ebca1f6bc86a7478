package cache

import "context"

// Deduper remembers recently ingested message IDs so redelivered inbound
// frames are processed once.
type Deduper interface {
	// Seen marks the message as processed and reports whether it had
	// already been marked before this call.
	Seen(ctx context.Context, tenantID string, messageID string) (bool, error)
}
