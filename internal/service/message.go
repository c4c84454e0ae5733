// Package service holds the business operations on top of the stores:
// the outbound send path, conversation operations and CRM lead sync.
package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"whatsapp-inbox/internal/ai"
	"whatsapp-inbox/internal/cache"
	"whatsapp-inbox/internal/events"
	"whatsapp-inbox/internal/models"
	"whatsapp-inbox/internal/store"
	"whatsapp-inbox/pkg/metrics"
)

// ErrSendInFlight means another send for the same conversation has
// not finished yet. The caller keeps the typed content and may retry.
var ErrSendInFlight = errors.New("send already in flight for this conversation")

// Sender is the provider-side send operation, implemented by the
// WhatsApp client.
type Sender interface {
	SendText(ctx context.Context, to, body string) (string, error)
	SendTemplate(ctx context.Context, to, templateName, languageCode string) (string, error)
}

// SendRequest describes an outbound agent message. A non-empty
// TemplateName sends a template; Content is the text body otherwise.
type SendRequest struct {
	ConversationID string
	Content        string
	TemplateName   string
	SenderName     string
}

// MessageService owns the outbound send path and reply suggestions.
type MessageService struct {
	conversations *store.ConversationStore
	messages      *store.MessageStore
	sender        Sender
	bus           events.Bus
	cache         *cache.Cache
	suggester     ai.Suggester
	logger        *zap.Logger

	inFlight sync.Map // conversationID -> struct{}
}

func NewMessageService(
	conversations *store.ConversationStore,
	messages *store.MessageStore,
	sender Sender,
	bus events.Bus,
	c *cache.Cache,
	logger *zap.Logger,
) *MessageService {
	return &MessageService{
		conversations: conversations,
		messages:      messages,
		sender:        sender,
		bus:           bus,
		cache:         c,
		logger:        logger,
	}
}

// WithSuggester enables AI reply suggestions.
func (s *MessageService) WithSuggester(sug ai.Suggester) *MessageService {
	s.suggester = sug
	return s
}

// SendToCustomer sends an agent message via the provider and persists
// it with the provider id bound. On provider failure nothing is
// persisted and the provider's error detail is preserved in the
// returned error. One send at a time per conversation: a concurrent
// duplicate gets ErrSendInFlight immediately.
func (s *MessageService) SendToCustomer(ctx context.Context, req SendRequest) (*models.Message, error) {
	if _, loaded := s.inFlight.LoadOrStore(req.ConversationID, struct{}{}); loaded {
		metrics.SendsTotal.WithLabelValues("in_flight").Inc()
		return nil, ErrSendInFlight
	}
	defer s.inFlight.Delete(req.ConversationID)

	conv, err := s.conversations.FindByID(ctx, req.ConversationID)
	if err != nil {
		return nil, fmt.Errorf("conversation %s: %w", req.ConversationID, err)
	}
	if conv.Contact == nil {
		return nil, fmt.Errorf("conversation %s has no contact", req.ConversationID)
	}

	var (
		providerID  string
		content     = req.Content
		contentType = "text"
	)
	if req.TemplateName != "" {
		contentType = "template"
		// Template bodies live on the provider side; store a placeholder
		// so the message row and the preview are not blank.
		content = fmt.Sprintf("[Template: %s]", req.TemplateName)
		providerID, err = s.sender.SendTemplate(ctx, conv.Contact.Phone, req.TemplateName, "")
	} else {
		providerID, err = s.sender.SendText(ctx, conv.Contact.Phone, req.Content)
	}
	if err != nil {
		metrics.SendsTotal.WithLabelValues("provider_error").Inc()
		return nil, fmt.Errorf("provider send to %s: %w", conv.Contact.Phone, err)
	}

	now := time.Now().UTC()
	msg := models.Message{
		ConversationID:    conv.ID,
		Sender:            models.SenderAgent,
		SenderName:        req.SenderName,
		Content:           content,
		ContentType:       contentType,
		ProviderMessageID: &providerID,
		Status:            models.StatusSent,
		CreatedAt:         now,
	}
	if err := s.messages.Insert(ctx, &msg); err != nil {
		// The provider accepted the message but we could not record
		// it; surface the storage error rather than hiding it.
		metrics.SendsTotal.WithLabelValues("store_error").Inc()
		return nil, fmt.Errorf("persist sent message: %w", err)
	}

	// Agent sends never touch the unread count.
	if err := s.conversations.BumpSummary(ctx, conv.ID, msg.Content, now, false); err != nil {
		s.logger.Warn("failed to update conversation summary",
			zap.String("conversation_id", conv.ID), zap.Error(err))
	}
	s.cache.Delete(conversationCacheKey(conv.ID))

	s.publish(ctx, events.Event{
		Type:           events.MessageNew,
		ConversationID: conv.ID,
		Message:        &msg,
	})
	preview := store.Truncate(msg.Content, store.PreviewLimit)
	s.publish(ctx, events.Event{
		Type:           events.ConversationUpdated,
		ConversationID: conv.ID,
		Patch: &events.ConversationPatch{
			LastMessagePreview: &preview,
			LastMessageAt:      &now,
		},
	})

	metrics.SendsTotal.WithLabelValues("success").Inc()
	return &msg, nil
}

// SuggestReply returns an AI-drafted reply from the last ten messages
// of the conversation.
func (s *MessageService) SuggestReply(ctx context.Context, conversationID, agentName string) (string, error) {
	if s.suggester == nil {
		return "", errors.New("suggestions are not configured")
	}

	conv, err := s.conversations.FindByID(ctx, conversationID)
	if err != nil {
		return "", fmt.Errorf("conversation %s: %w", conversationID, err)
	}

	history, err := s.messages.ListByConversation(ctx, conversationID, 10, "")
	if err != nil {
		return "", fmt.Errorf("load history: %w", err)
	}

	req := ai.SuggestionRequest{
		AgentName: agentName,
		History:   history,
	}
	if conv.Contact != nil {
		req.ContactName = conv.Contact.Name
		req.ContactTags = conv.Contact.Tags
	}
	return s.suggester.SuggestReply(ctx, req)
}

func (s *MessageService) publish(ctx context.Context, evt events.Event) {
	if err := s.bus.Publish(ctx, evt); err != nil {
		s.logger.Warn("event publish failed", zap.String("event", evt.Type), zap.Error(err))
	}
}

func conversationCacheKey(id string) string {
	return "conversation:" + id
}
