package types

// RequestCreateToken mints a tenant API token. Admin only.
type RequestCreateToken struct {
	TenantID string `json:"tenant_id"`
}

// ResponseTokenCreated carries the minted bearer token.
type ResponseTokenCreated struct {
	TenantID string `json:"tenant_id"`
	Token    string `json:"token"`
}

// RequestSendMessage sends one text to one destination phone.
type RequestSendMessage struct {
	Phone string `json:"phone"`
	Text  string `json:"text"`
}

// ResponseMessageSent echoes the provider-assigned message id.
type ResponseMessageSent struct {
	MessageID string `json:"message_id"`
	Phone     string `json:"phone"`
}

// RequestStartCampaign starts a bulk dispatch over selected contacts.
type RequestStartCampaign struct {
	Template   string   `json:"template"`
	ContactIDs []string `json:"contact_ids"`
	MinDelayS  int      `json:"min_delay_seconds"`
	MaxDelayS  int      `json:"max_delay_seconds"`
	SafeMode   bool     `json:"safe_mode"`
}

// RequestCreateWebhook registers a webhook endpoint for session events.
type RequestCreateWebhook struct {
	URL    string   `json:"url"`
	Events []string `json:"events"`
	Secret string   `json:"secret"`
}

// RequestUpdateWebhook patches a webhook registration.
type RequestUpdateWebhook struct {
	URL     *string   `json:"url,omitempty"`
	Events  *[]string `json:"events,omitempty"`
	Secret  *string   `json:"secret,omitempty"`
	Enabled *bool     `json:"enabled,omitempty"`
}
