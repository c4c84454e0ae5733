// Package events carries incremental change events from the ingestion
// and send paths to realtime consumers (websocket hub, reconciler).
package events

import (
	"context"
	"sync"
	"time"

	"whatsapp-inbox/internal/models"
	"whatsapp-inbox/pkg/metrics"
)

const (
	MessageNew          = "message:new"
	MessageStatus       = "message:status"
	ConversationUpdated = "conversation:updated"
)

// StatusChange is the payload of a message:status event.
type StatusChange struct {
	MessageID         string               `json:"message_id"`
	ProviderMessageID string               `json:"provider_message_id,omitempty"`
	Status            models.MessageStatus `json:"status"`
}

// ConversationPatch carries only the conversation fields that changed.
// Nil fields were not touched and must not be merged by consumers.
type ConversationPatch struct {
	Status             *models.ConversationStatus `json:"status,omitempty"`
	AssignedAgentID    *string                    `json:"assigned_agent_id,omitempty"`
	UnreadCount        *int                       `json:"unread_count,omitempty"`
	LastMessagePreview *string                    `json:"last_message_preview,omitempty"`
	LastMessageAt      *time.Time                 `json:"last_message_at,omitempty"`
}

// Event is the envelope published on the bus. Exactly one of Message,
// Status or Patch is set, matching Type.
type Event struct {
	Type           string             `json:"type"`
	ConversationID string             `json:"conversation_id"`
	Message        *models.Message    `json:"message,omitempty"`
	Status         *StatusChange      `json:"status,omitempty"`
	Patch          *ConversationPatch `json:"patch,omitempty"`
	Timestamp      time.Time          `json:"timestamp"`
}

// Handler receives events for a subscribed type. Handlers must not
// block; slow consumers buffer on their own side.
type Handler func(Event)

// Subscription is the opaque handle returned by Subscribe and consumed
// by Unsubscribe.
type Subscription struct {
	topic  string
	cancel func() error
}

// Bus is the publish/subscribe channel for change events.
type Bus interface {
	Publish(ctx context.Context, evt Event) error
	Subscribe(eventType string, fn Handler) (*Subscription, error)
	Unsubscribe(sub *Subscription) error
	Close() error
}

type memorySub struct {
	id uint64
	fn Handler
}

// MemoryBus dispatches events synchronously in-process. It is the
// default transport for single-node deployments and tests.
type MemoryBus struct {
	mu     sync.RWMutex
	nextID uint64
	subs   map[string][]memorySub
}

func NewMemoryBus() *MemoryBus {
	return &MemoryBus{subs: make(map[string][]memorySub)}
}

func (b *MemoryBus) Publish(_ context.Context, evt Event) error {
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now()
	}

	b.mu.RLock()
	handlers := make([]Handler, 0, len(b.subs[evt.Type]))
	for _, s := range b.subs[evt.Type] {
		handlers = append(handlers, s.fn)
	}
	b.mu.RUnlock()

	// Synchronous dispatch keeps per-conversation arrival order.
	for _, fn := range handlers {
		fn(evt)
	}

	metrics.EventsPublished.WithLabelValues(evt.Type).Inc()
	return nil
}

func (b *MemoryBus) Subscribe(eventType string, fn Handler) (*Subscription, error) {
	b.mu.Lock()
	b.nextID++
	id := b.nextID
	b.subs[eventType] = append(b.subs[eventType], memorySub{id: id, fn: fn})
	b.mu.Unlock()

	return &Subscription{
		topic: eventType,
		cancel: func() error {
			b.mu.Lock()
			defer b.mu.Unlock()
			subs := b.subs[eventType]
			for i, s := range subs {
				if s.id == id {
					b.subs[eventType] = append(subs[:i], subs[i+1:]...)
					break
				}
			}
			return nil
		},
	}, nil
}

func (b *MemoryBus) Unsubscribe(sub *Subscription) error {
	if sub == nil || sub.cancel == nil {
		return nil
	}
	return sub.cancel()
}

func (b *MemoryBus) Close() error {
	b.mu.Lock()
	b.subs = make(map[string][]memorySub)
	b.mu.Unlock()
	return nil
}
