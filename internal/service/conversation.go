package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"whatsapp-inbox/internal/cache"
	"whatsapp-inbox/internal/events"
	"whatsapp-inbox/internal/models"
	"whatsapp-inbox/internal/store"
)

const conversationCacheTTL = 5 * time.Minute

// ConversationService wraps conversation reads with cache memoization
// and turns agent actions into store updates plus change events.
type ConversationService struct {
	conversations *store.ConversationStore
	messages      *store.MessageStore
	cache         *cache.Cache
	bus           events.Bus
	logger        *zap.Logger
}

func NewConversationService(
	conversations *store.ConversationStore,
	messages *store.MessageStore,
	c *cache.Cache,
	bus events.Bus,
	logger *zap.Logger,
) *ConversationService {
	return &ConversationService{
		conversations: conversations,
		messages:      messages,
		cache:         c,
		bus:           bus,
		logger:        logger,
	}
}

// List returns conversations, optionally filtered by status.
func (s *ConversationService) List(ctx context.Context, status models.ConversationStatus, limit int) ([]models.Conversation, error) {
	return s.conversations.List(ctx, status, limit)
}

// Get returns one conversation, memoized for five minutes. Every
// mutation invalidates the entry; fetching never resets unread.
func (s *ConversationService) Get(ctx context.Context, id string) (*models.Conversation, error) {
	key := conversationCacheKey(id)
	if v, ok := s.cache.Get(key); ok {
		if conv, ok := v.(*models.Conversation); ok {
			return conv, nil
		}
	}

	conv, err := s.conversations.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	s.cache.Set(key, conv, conversationCacheTTL)
	return conv, nil
}

// Messages lists a conversation's messages ascending, paging backwards
// from beforeID.
func (s *ConversationService) Messages(ctx context.Context, conversationID string, limit int, beforeID string) ([]models.Message, error) {
	return s.messages.ListByConversation(ctx, conversationID, limit, beforeID)
}

// MarkAsRead resets the unread count to zero. This is the only path
// that resets it.
func (s *ConversationService) MarkAsRead(ctx context.Context, id string) error {
	if err := s.conversations.MarkAsRead(ctx, id); err != nil {
		return err
	}
	s.cache.Delete(conversationCacheKey(id))

	zero := 0
	s.publish(ctx, events.Event{
		Type:           events.ConversationUpdated,
		ConversationID: id,
		Patch:          &events.ConversationPatch{UnreadCount: &zero},
	})
	return nil
}

// Assign hands the conversation to an agent.
func (s *ConversationService) Assign(ctx context.Context, id, agentID string) error {
	if err := s.conversations.Assign(ctx, id, agentID); err != nil {
		return err
	}
	s.cache.Delete(conversationCacheKey(id))

	s.publish(ctx, events.Event{
		Type:           events.ConversationUpdated,
		ConversationID: id,
		Patch:          &events.ConversationPatch{AssignedAgentID: &agentID},
	})
	return nil
}

// Close ends the conversation. Reopening happens through a new
// conversation on the next inbound message.
func (s *ConversationService) Close(ctx context.Context, id string) error {
	if err := s.conversations.Close(ctx, id); err != nil {
		return err
	}
	s.cache.Delete(conversationCacheKey(id))

	closed := models.ConversationClosed
	s.publish(ctx, events.Event{
		Type:           events.ConversationUpdated,
		ConversationID: id,
		Patch:          &events.ConversationPatch{Status: &closed},
	})
	return nil
}

func (s *ConversationService) publish(ctx context.Context, evt events.Event) {
	if err := s.bus.Publish(ctx, evt); err != nil {
		s.logger.Warn("event publish failed", zap.String("event", evt.Type), zap.Error(err))
	}
}
