package models

// WebhookPayload is the notification body WhatsApp posts to the
// webhook. A single delivery may batch many messages and statuses
// across entries and changes.
type WebhookPayload struct {
	Object string  `json:"object"`
	Entry  []Entry `json:"entry"`
}

type Entry struct {
	ID      string   `json:"id"`
	Changes []Change `json:"changes"`
}

type Change struct {
	Value ChangeValue `json:"value"`
	Field string      `json:"field"`
}

type ChangeValue struct {
	MessagingProduct string `json:"messaging_product"`
	Metadata         struct {
		DisplayPhoneNumber string `json:"display_phone_number"`
		PhoneNumberID      string `json:"phone_number_id"`
	} `json:"metadata"`
	Contacts []WebhookContact `json:"contacts,omitempty"`
	Messages []WebhookMessage `json:"messages,omitempty"`
	Statuses []WebhookStatus  `json:"statuses,omitempty"`
}

// WebhookContact carries the sender profile WhatsApp attaches to
// inbound messages.
type WebhookContact struct {
	WaID    string `json:"wa_id"`
	Profile struct {
		Name string `json:"name"`
	} `json:"profile"`
}

// WebhookMessage is one inbound message unit.
type WebhookMessage struct {
	From      string           `json:"from"`
	ID        string           `json:"id"`
	Timestamp string           `json:"timestamp"`
	Type      string           `json:"type"`
	Text      *TextMessage     `json:"text,omitempty"`
	Image     *MediaMessage    `json:"image,omitempty"`
	Video     *MediaMessage    `json:"video,omitempty"`
	Audio     *MediaMessage    `json:"audio,omitempty"`
	Document  *MediaMessage    `json:"document,omitempty"`
	Sticker   *MediaMessage    `json:"sticker,omitempty"`
	Location  *LocationMessage `json:"location,omitempty"`
	Reaction  *ReactionMessage `json:"reaction,omitempty"`
}

// WebhookStatus is one delivery-status unit for a previously sent
// message, correlated by the provider message id.
type WebhookStatus struct {
	ID          string         `json:"id"`
	Status      string         `json:"status"` // sent, delivered, read, failed
	Timestamp   string         `json:"timestamp"`
	RecipientID string         `json:"recipient_id"`
	Errors      []WebhookError `json:"errors,omitempty"`
}

type WebhookError struct {
	Code    int    `json:"code"`
	Title   string `json:"title"`
	Message string `json:"message"`
}

type TextMessage struct {
	Body string `json:"body"`
}

// MediaMessage is a media attachment reference. The ID is the opaque
// media id resolvable through the Graph API.
type MediaMessage struct {
	ID       string `json:"id"`
	MimeType string `json:"mime_type"`
	SHA256   string `json:"sha256,omitempty"`
	Caption  string `json:"caption,omitempty"`
	Filename string `json:"filename,omitempty"`
}

type LocationMessage struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Name      string  `json:"name,omitempty"`
	Address   string  `json:"address,omitempty"`
}

type ReactionMessage struct {
	MessageID string `json:"message_id"`
	Emoji     string `json:"emoji"`
}
