package store

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"whatsapp-inbox/internal/models"
)

// PreviewLimit bounds the conversation's last-message preview.
const PreviewLimit = 120

// ConversationStore resolves contacts to their single open
// conversation and maintains the denormalized summary fields.
type ConversationStore struct {
	db *gorm.DB

	// Per-contact locks serialize resolve-or-create within this
	// process; the partial unique index on (contact_id) WHERE
	// status='open' covers races across processes.
	locks sync.Map // contactID -> *sync.Mutex
}

func NewConversationStore(db *gorm.DB) *ConversationStore {
	return &ConversationStore{db: db}
}

func (s *ConversationStore) contactLock(contactID string) *sync.Mutex {
	mu, _ := s.locks.LoadOrStore(contactID, &sync.Mutex{})
	return mu.(*sync.Mutex)
}

// ResolveOpen returns the contact's open conversation, creating one
// when none exists. Under a concurrent burst the earliest created
// conversation wins deterministically for every message in the burst.
func (s *ConversationStore) ResolveOpen(ctx context.Context, contactID string) (*models.Conversation, error) {
	mu := s.contactLock(contactID)
	mu.Lock()
	defer mu.Unlock()

	conv, err := s.findOpen(ctx, contactID)
	if err == nil {
		return conv, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	created := models.Conversation{
		ID:        uuid.NewString(),
		ContactID: contactID,
		Channel:   "whatsapp",
		Status:    models.ConversationOpen,
	}
	err = s.db.WithContext(ctx).Create(&created).Error
	if err == nil {
		return &created, nil
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		// Another process created the open conversation first.
		return s.findOpen(ctx, contactID)
	}
	return nil, fmt.Errorf("conversation create for contact %s: %w", contactID, err)
}

func (s *ConversationStore) findOpen(ctx context.Context, contactID string) (*models.Conversation, error) {
	var conv models.Conversation
	err := s.db.WithContext(ctx).
		Where("contact_id = ? AND status = ?", contactID, models.ConversationOpen).
		Order("created_at ASC, id ASC").
		First(&conv).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("open conversation lookup for contact %s: %w", contactID, err)
	}
	return &conv, nil
}

// FindByID returns a conversation with its contact preloaded.
func (s *ConversationStore) FindByID(ctx context.Context, id string) (*models.Conversation, error) {
	var conv models.Conversation
	err := s.db.WithContext(ctx).Preload("Contact").First(&conv, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &conv, nil
}

// List returns conversations, newest activity first, optionally
// filtered by status.
func (s *ConversationStore) List(ctx context.Context, status models.ConversationStatus, limit int) ([]models.Conversation, error) {
	if limit <= 0 {
		limit = 50
	}
	q := s.db.WithContext(ctx).Preload("Contact").
		Order("last_message_at DESC NULLS LAST").
		Limit(limit)
	if status != "" {
		q = q.Where("status = ?", status)
	}
	convs := []models.Conversation{}
	err := q.Find(&convs).Error
	return convs, err
}

// BumpSummary updates the preview and activity timestamp after a
// message. incrementUnread adds exactly one to the unread count as a
// SQL expression, so concurrent deliveries never lose increments.
func (s *ConversationStore) BumpSummary(ctx context.Context, id, preview string, at time.Time, incrementUnread bool) error {
	updates := map[string]any{
		"last_message_preview": Truncate(preview, PreviewLimit),
		"last_message_at":      at,
	}
	if incrementUnread {
		updates["unread_count"] = gorm.Expr("unread_count + 1")
	}
	return s.db.WithContext(ctx).Model(&models.Conversation{}).
		Where("id = ?", id).
		Updates(updates).Error
}

// MarkAsRead resets the unread count. This is the only operation that
// resets it; fetching a conversation never does.
func (s *ConversationStore) MarkAsRead(ctx context.Context, id string) error {
	res := s.db.WithContext(ctx).Model(&models.Conversation{}).
		Where("id = ?", id).
		Update("unread_count", 0)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// Assign sets the responsible agent.
func (s *ConversationStore) Assign(ctx context.Context, id, agentID string) error {
	res := s.db.WithContext(ctx).Model(&models.Conversation{}).
		Where("id = ?", id).
		Update("assigned_agent_id", agentID)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// Close ends a conversation. Closed conversations stay immutable; a
// later inbound message opens a fresh one through ResolveOpen.
func (s *ConversationStore) Close(ctx context.Context, id string) error {
	res := s.db.WithContext(ctx).Model(&models.Conversation{}).
		Where("id = ?", id).
		Update("status", models.ConversationClosed)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// Unread returns the current unread count, used by the backfill tool.
func (s *ConversationStore) Unread(ctx context.Context, id string) (int, error) {
	var conv models.Conversation
	if err := s.db.WithContext(ctx).Select("unread_count").First(&conv, "id = ?", id).Error; err != nil {
		return 0, err
	}
	return conv.UnreadCount, nil
}
