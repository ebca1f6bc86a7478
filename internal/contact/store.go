package contact

import "context"

// Store is the narrow persistence surface the messaging core consumes.
// Matching against the address book happens in the ingestion pipeline, so
// List returns the tenant's full contact list; AppendHistory replaces the
// whole history array rather than appending server-side.
type Store interface {
	List(ctx context.Context, tenantID string) ([]Contact, error)
	Create(ctx context.Context, c Contact) (Contact, error)
	AppendHistory(ctx context.Context, tenantID string, contactID string, history []Message) error
}
