package models

import (
	"time"
)

// LeadStatus is the CRM-facing sales funnel stage of a contact.
type LeadStatus string

const (
	LeadNew         LeadStatus = "new"
	LeadAttending   LeadStatus = "attending"
	LeadProposal    LeadStatus = "proposal"
	LeadNegotiation LeadStatus = "negotiation"
	LeadWon         LeadStatus = "won"
	LeadLost        LeadStatus = "lost"
)

// ConversationStatus is the lifecycle state of a conversation. A
// contact has at most one open conversation at a time; that rule is
// enforced by the conversation store, not the schema.
type ConversationStatus string

const (
	ConversationOpen    ConversationStatus = "open"
	ConversationWaiting ConversationStatus = "waiting"
	ConversationClosed  ConversationStatus = "closed"
)

// SenderRole identifies who authored a message.
type SenderRole string

const (
	SenderClient SenderRole = "client"
	SenderAgent  SenderRole = "agent"
	SenderBot    SenderRole = "bot"
	SenderSystem SenderRole = "system"
)

// MessageStatus is the delivery state reported by WhatsApp. Empty for
// messages where delivery tracking does not apply (client/system).
type MessageStatus string

const (
	StatusPending   MessageStatus = "pending"
	StatusSent      MessageStatus = "sent"
	StatusDelivered MessageStatus = "delivered"
	StatusRead      MessageStatus = "read"
	StatusFailed    MessageStatus = "failed"
)

// TravelRecord is one entry of a contact's travel history.
type TravelRecord struct {
	Destination string `json:"destination"`
	Date        string `json:"date"`
	Status      string `json:"status"` // completed, ongoing, cancelled
}

// Contact is the identity anchor for a WhatsApp phone number.
type Contact struct {
	ID              string         `gorm:"primaryKey;type:varchar(36)" json:"id"`
	Phone           string         `gorm:"type:varchar(32);uniqueIndex;not null" json:"phone"`
	Name            string         `gorm:"type:varchar(255)" json:"name"`
	Email           string         `gorm:"type:varchar(255)" json:"email,omitempty"`
	CRMID           string         `gorm:"column:crm_id;type:varchar(64);index" json:"crm_id,omitempty"`
	Tags            []string       `gorm:"serializer:json;type:text" json:"tags"`
	LeadStatus      LeadStatus     `gorm:"type:varchar(20);default:'new'" json:"lead_status"`
	AssignedAgentID string         `gorm:"type:varchar(36)" json:"assigned_agent_id,omitempty"`
	TravelHistory   []TravelRecord `gorm:"serializer:json;type:text" json:"travel_history"`
	FirstContactAt  time.Time      `gorm:"autoCreateTime" json:"first_contact_at"`
	LastMessageAt   *time.Time     `json:"last_message_at,omitempty"`
	CreatedAt       time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt       time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
}

func (Contact) TableName() string {
	return "contacts"
}

// Conversation is the per-contact unit of agent work.
type Conversation struct {
	ID                 string             `gorm:"primaryKey;type:varchar(36)" json:"id"`
	ContactID          string             `gorm:"type:varchar(36);index;not null" json:"contact_id"`
	AssignedAgentID    string             `gorm:"type:varchar(36);index" json:"assigned_agent_id,omitempty"`
	Channel            string             `gorm:"type:varchar(20);default:'whatsapp'" json:"channel"`
	Status             ConversationStatus `gorm:"type:varchar(20);index;default:'open'" json:"status"`
	UnreadCount        int                `gorm:"default:0" json:"unread_count"`
	LastMessagePreview string             `gorm:"type:varchar(200)" json:"last_message_preview"`
	LastMessageAt      *time.Time         `json:"last_message_at,omitempty"`
	CreatedAt          time.Time          `gorm:"autoCreateTime;index" json:"created_at"`
	UpdatedAt          time.Time          `gorm:"autoUpdateTime" json:"updated_at"`

	Contact *Contact `gorm:"foreignKey:ContactID" json:"contact,omitempty"`
}

func (Conversation) TableName() string {
	return "conversations"
}

// DeliveryError is the typed failure detail attached to a message when
// WhatsApp reports a failed status.
type DeliveryError struct {
	Code    int    `json:"code,omitempty"`
	Title   string `json:"title,omitempty"`
	Message string `json:"message,omitempty"`
}

// Message is append-only within its conversation. Only the delivery
// status (and failure detail) mutate after creation. The provider
// message id, once bound, is unique and immutable.
type Message struct {
	ID                string         `gorm:"primaryKey;type:varchar(36)" json:"id"`
	ConversationID    string         `gorm:"type:varchar(36);index;not null" json:"conversation_id"`
	Sender            SenderRole     `gorm:"type:varchar(10);not null" json:"sender"`
	SenderName        string         `gorm:"type:varchar(255)" json:"sender_name,omitempty"`
	Content           string         `gorm:"type:text" json:"content"`
	ContentType       string         `gorm:"type:varchar(20);default:'text'" json:"content_type"`
	MediaID           string         `gorm:"type:varchar(255)" json:"media_id,omitempty"`
	ProviderMessageID *string        `gorm:"type:varchar(128);uniqueIndex" json:"provider_message_id,omitempty"`
	Status            MessageStatus  `gorm:"type:varchar(20)" json:"status,omitempty"`
	Error             *DeliveryError `gorm:"serializer:json;type:text" json:"error,omitempty"`
	CreatedAt         time.Time      `gorm:"autoCreateTime;index" json:"created_at"`
	UpdatedAt         time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
}

func (Message) TableName() string {
	return "messages"
}

// InternalNote is an agent-only annotation on a contact, never sent
// to the customer.
type InternalNote struct {
	ID         string    `gorm:"primaryKey;type:varchar(36)" json:"id"`
	ContactID  string    `gorm:"type:varchar(36);index;not null" json:"contact_id"`
	AuthorName string    `gorm:"type:varchar(255)" json:"author_name"`
	Content    string    `gorm:"type:text;not null" json:"content"`
	CreatedAt  time.Time `gorm:"autoCreateTime" json:"created_at"`
}

func (InternalNote) TableName() string {
	return "internal_notes"
}

// QuickReply is a canned response agents can insert by shortcut.
type QuickReply struct {
	ID        string    `gorm:"primaryKey;type:varchar(36)" json:"id"`
	Shortcut  string    `gorm:"type:varchar(50);uniqueIndex" json:"shortcut"`
	Title     string    `gorm:"type:varchar(255)" json:"title"`
	Content   string    `gorm:"type:text;not null" json:"content"`
	Category  string    `gorm:"type:varchar(100)" json:"category"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (QuickReply) TableName() string {
	return "quick_replies"
}
