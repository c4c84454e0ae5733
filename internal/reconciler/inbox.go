// Package reconciler maintains a live in-memory view of the inbox
// from the change event stream, the way a connected dashboard would.
// A full refetch only happens for conversations the view has never
// seen; everything else merges incrementally.
package reconciler

import (
	"context"
	"sort"
	"sync"

	"go.uber.org/zap"

	"whatsapp-inbox/internal/events"
	"whatsapp-inbox/internal/models"
	"whatsapp-inbox/internal/store"
)

// Fetcher loads the authoritative state for a conversation the view
// does not hold yet.
type Fetcher interface {
	FetchConversation(ctx context.Context, id string) (*models.Conversation, []models.Message, error)
}

// Snapshot is the reconciled state of one conversation.
type Snapshot struct {
	Conversation models.Conversation
	Messages     []models.Message
}

type entry struct {
	conv     models.Conversation
	messages []models.Message
	seen     map[string]int // message id -> index into messages
}

// Inbox applies change events to an in-memory conversation map.
type Inbox struct {
	fetcher Fetcher
	logger  *zap.Logger

	mu    sync.RWMutex
	convs map[string]*entry
	subs  []*events.Subscription
}

func NewInbox(fetcher Fetcher, logger *zap.Logger) *Inbox {
	return &Inbox{
		fetcher: fetcher,
		logger:  logger,
		convs:   make(map[string]*entry),
	}
}

// Attach subscribes the inbox to the bus. Events are applied in
// arrival order.
func (i *Inbox) Attach(bus events.Bus) error {
	for _, topic := range []string{events.MessageNew, events.MessageStatus, events.ConversationUpdated} {
		sub, err := bus.Subscribe(topic, func(evt events.Event) {
			i.Apply(context.Background(), evt)
		})
		if err != nil {
			return err
		}
		i.subs = append(i.subs, sub)
	}
	return nil
}

// Detach removes the bus subscriptions.
func (i *Inbox) Detach(bus events.Bus) {
	for _, sub := range i.subs {
		if err := bus.Unsubscribe(sub); err != nil {
			i.logger.Warn("unsubscribe failed", zap.Error(err))
		}
	}
	i.subs = nil
}

// Apply merges one event into the view.
func (i *Inbox) Apply(ctx context.Context, evt events.Event) {
	switch evt.Type {
	case events.MessageNew:
		i.applyMessage(ctx, evt)
	case events.MessageStatus:
		i.applyStatus(evt)
	case events.ConversationUpdated:
		i.applyPatch(ctx, evt)
	default:
		i.logger.Debug("ignoring unknown event", zap.String("event", evt.Type))
	}
}

func (i *Inbox) applyMessage(ctx context.Context, evt events.Event) {
	if evt.Message == nil {
		return
	}

	i.mu.Lock()
	e, ok := i.convs[evt.ConversationID]
	i.mu.Unlock()

	if !ok {
		// First sight of this conversation: load it whole. The event's
		// message is already part of the fetched state or will be
		// deduplicated below.
		e = i.fetch(ctx, evt.ConversationID)
		if e == nil {
			return
		}
	}

	i.mu.Lock()
	defer i.mu.Unlock()

	if _, dup := e.seen[evt.Message.ID]; dup {
		return
	}
	e.seen[evt.Message.ID] = len(e.messages)
	e.messages = append(e.messages, *evt.Message)

	if evt.Message.Sender == models.SenderClient {
		e.conv.UnreadCount++
	}
	e.conv.LastMessagePreview = store.Truncate(evt.Message.Content, store.PreviewLimit)
	created := evt.Message.CreatedAt
	e.conv.LastMessageAt = &created
}

func (i *Inbox) applyStatus(evt events.Event) {
	if evt.Status == nil {
		return
	}

	i.mu.Lock()
	defer i.mu.Unlock()

	e, ok := i.convs[evt.ConversationID]
	if !ok {
		return
	}
	idx, ok := e.seen[evt.Status.MessageID]
	if !ok {
		// Status for a message the view never loaded; nothing to patch.
		return
	}
	e.messages[idx].Status = evt.Status.Status
}

func (i *Inbox) applyPatch(ctx context.Context, evt events.Event) {
	if evt.Patch == nil {
		return
	}

	i.mu.Lock()
	e, ok := i.convs[evt.ConversationID]
	i.mu.Unlock()

	if !ok {
		// A conversation can be announced by a patch alone, e.g. an
		// assignment made on another node before any message flows.
		e = i.fetch(ctx, evt.ConversationID)
		if e == nil {
			return
		}
	}

	i.mu.Lock()
	defer i.mu.Unlock()

	p := evt.Patch
	if p.Status != nil {
		e.conv.Status = *p.Status
	}
	if p.AssignedAgentID != nil {
		e.conv.AssignedAgentID = *p.AssignedAgentID
	}
	if p.UnreadCount != nil {
		e.conv.UnreadCount = *p.UnreadCount
	}
	if p.LastMessagePreview != nil {
		e.conv.LastMessagePreview = *p.LastMessagePreview
	}
	if p.LastMessageAt != nil {
		at := *p.LastMessageAt
		e.conv.LastMessageAt = &at
	}
}

func (i *Inbox) fetch(ctx context.Context, conversationID string) *entry {
	conv, msgs, err := i.fetcher.FetchConversation(ctx, conversationID)
	if err != nil {
		i.logger.Warn("conversation fetch failed",
			zap.String("conversation_id", conversationID), zap.Error(err))
		return nil
	}

	e := &entry{
		conv:     *conv,
		messages: msgs,
		seen:     make(map[string]int, len(msgs)),
	}
	for idx, m := range msgs {
		e.seen[m.ID] = idx
	}

	i.mu.Lock()
	if existing, ok := i.convs[conversationID]; ok {
		// A concurrent apply fetched first; keep its state.
		e = existing
	} else {
		i.convs[conversationID] = e
	}
	i.mu.Unlock()
	return e
}

// Get returns a copy of one conversation's reconciled state.
func (i *Inbox) Get(conversationID string) (*Snapshot, bool) {
	i.mu.RLock()
	defer i.mu.RUnlock()

	e, ok := i.convs[conversationID]
	if !ok {
		return nil, false
	}
	return snapshotOf(e), true
}

// List returns copies of every conversation, newest activity first.
func (i *Inbox) List() []Snapshot {
	i.mu.RLock()
	defer i.mu.RUnlock()

	out := make([]Snapshot, 0, len(i.convs))
	for _, e := range i.convs {
		out = append(out, *snapshotOf(e))
	}
	sort.Slice(out, func(a, b int) bool {
		at, bt := out[a].Conversation.LastMessageAt, out[b].Conversation.LastMessageAt
		if at == nil {
			return false
		}
		if bt == nil {
			return true
		}
		return at.After(*bt)
	})
	return out
}

func snapshotOf(e *entry) *Snapshot {
	msgs := make([]models.Message, len(e.messages))
	copy(msgs, e.messages)
	return &Snapshot{Conversation: e.conv, Messages: msgs}
}
