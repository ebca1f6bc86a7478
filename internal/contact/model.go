package contact

import "time"

// Direction marks who authored a history entry.
type Direction string

const (
	// DirectionYou is an outbound message sent on behalf of the tenant.
	DirectionYou Direction = "you"
	// DirectionLead is an inbound message from the contact.
	DirectionLead Direction = "lead"
)

// Message is one immutable entry in a contact's conversation history.
// Entries have no identity beyond their position; edits happen only by
// appending new entries.
type Message struct {
	Direction Direction `json:"direction"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// Contact is one lead in a tenant's address book.
type Contact struct {
	ID          string    `json:"id"`
	TenantID    string    `json:"tenant_id"`
	DisplayName string    `json:"display_name"`
	Phone       string    `json:"phone,omitempty"`
	Status      string    `json:"status"`
	History     []Message `json:"history"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}
