package reconciler

import (
	"context"

	"whatsapp-inbox/internal/models"
	"whatsapp-inbox/internal/store"
)

const fetchHistoryLimit = 50

// StoreFetcher loads conversation state straight from the database.
type StoreFetcher struct {
	conversations *store.ConversationStore
	messages      *store.MessageStore
}

func NewStoreFetcher(conversations *store.ConversationStore, messages *store.MessageStore) *StoreFetcher {
	return &StoreFetcher{conversations: conversations, messages: messages}
}

func (f *StoreFetcher) FetchConversation(ctx context.Context, id string) (*models.Conversation, []models.Message, error) {
	conv, err := f.conversations.FindByID(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	msgs, err := f.messages.ListByConversation(ctx, id, fetchHistoryLimit, "")
	if err != nil {
		return nil, nil, err
	}
	return conv, msgs, nil
}
