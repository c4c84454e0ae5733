package store

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"whatsapp-inbox/internal/models"
)

// MessageStore persists messages and correlates provider status
// updates.
type MessageStore struct {
	db *gorm.DB
}

func NewMessageStore(db *gorm.DB) *MessageStore {
	return &MessageStore{db: db}
}

// Insert persists a message, assigning an id when absent. A conflict
// on the provider message id returns ErrDuplicateProviderID and
// persists nothing.
func (s *MessageStore) Insert(ctx context.Context, msg *models.Message) error {
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	err := s.db.WithContext(ctx).Create(msg).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return ErrDuplicateProviderID
	}
	return err
}

// FindByProviderID returns the message bound to a provider message id,
// or ErrNotFound.
func (s *MessageStore) FindByProviderID(ctx context.Context, providerID string) (*models.Message, error) {
	var msg models.Message
	err := s.db.WithContext(ctx).Where("provider_message_id = ?", providerID).First(&msg).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &msg, nil
}

// UpdateStatusByProviderID patches the delivery status of the message
// bound to providerID and returns the updated row. A missing message
// returns (nil, nil): status updates can race ahead of message
// persistence or reference messages we never stored.
func (s *MessageStore) UpdateStatusByProviderID(ctx context.Context, providerID string, status models.MessageStatus, detail *models.DeliveryError) (*models.Message, error) {
	msg, err := s.FindByProviderID(ctx, providerID)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	msg.Status = status
	if detail != nil {
		msg.Error = detail
	}
	if err := s.db.WithContext(ctx).Model(msg).Select("status", "error").Updates(msg).Error; err != nil {
		return nil, err
	}
	return msg, nil
}

// ListByConversation returns messages in creation order, ties broken
// by insertion order, so the UI never reorders on re-render. beforeID
// pages backwards through history.
func (s *MessageStore) ListByConversation(ctx context.Context, conversationID string, limit int, beforeID string) ([]models.Message, error) {
	if limit <= 0 || limit > 200 {
		limit = 100
	}

	q := s.db.WithContext(ctx).
		Where("conversation_id = ?", conversationID).
		Order("created_at DESC, id DESC").
		Limit(limit)
	if beforeID != "" {
		var before models.Message
		if err := s.db.WithContext(ctx).First(&before, "id = ?", beforeID).Error; err == nil {
			q = q.Where("created_at < ?", before.CreatedAt)
		}
	}

	var msgs []models.Message
	if err := q.Find(&msgs).Error; err != nil {
		return nil, err
	}

	// Query runs descending for the limit; flip to ascending for the UI.
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
	return msgs, nil
}

// CountByConversation is used by the backfill tool.
func (s *MessageStore) CountByConversation(ctx context.Context, conversationID string) (int64, error) {
	var n int64
	err := s.db.WithContext(ctx).Model(&models.Message{}).
		Where("conversation_id = ?", conversationID).
		Count(&n).Error
	return n, err
}

// LastByConversation returns the newest message of a conversation, or
// ErrNotFound for an empty one.
func (s *MessageStore) LastByConversation(ctx context.Context, conversationID string) (*models.Message, error) {
	var msg models.Message
	err := s.db.WithContext(ctx).
		Where("conversation_id = ?", conversationID).
		Order("created_at DESC, id DESC").
		First(&msg).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &msg, nil
}
