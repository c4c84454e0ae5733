package store

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"whatsapp-inbox/internal/models"
)

// NoteStore keeps agent-only notes attached to contacts.
type NoteStore struct {
	db *gorm.DB
}

func NewNoteStore(db *gorm.DB) *NoteStore {
	return &NoteStore{db: db}
}

func (s *NoteStore) Create(ctx context.Context, note *models.InternalNote) error {
	if note.ID == "" {
		note.ID = uuid.NewString()
	}
	return s.db.WithContext(ctx).Create(note).Error
}

func (s *NoteStore) ListByContact(ctx context.Context, contactID string) ([]models.InternalNote, error) {
	notes := []models.InternalNote{}
	err := s.db.WithContext(ctx).
		Where("contact_id = ?", contactID).
		Order("created_at ASC").
		Find(&notes).Error
	return notes, err
}

func (s *NoteStore) Delete(ctx context.Context, id string) error {
	res := s.db.WithContext(ctx).Delete(&models.InternalNote{}, "id = ?", id)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// QuickReplyStore keeps the team's canned responses.
type QuickReplyStore struct {
	db *gorm.DB
}

func NewQuickReplyStore(db *gorm.DB) *QuickReplyStore {
	return &QuickReplyStore{db: db}
}

func (s *QuickReplyStore) Create(ctx context.Context, qr *models.QuickReply) error {
	if qr.ID == "" {
		qr.ID = uuid.NewString()
	}
	err := s.db.WithContext(ctx).Create(qr).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return ErrDuplicateShortcut
	}
	return err
}

func (s *QuickReplyStore) List(ctx context.Context) ([]models.QuickReply, error) {
	replies := []models.QuickReply{}
	err := s.db.WithContext(ctx).Order("shortcut ASC").Find(&replies).Error
	return replies, err
}

func (s *QuickReplyStore) Update(ctx context.Context, id string, fields map[string]any) (*models.QuickReply, error) {
	res := s.db.WithContext(ctx).Model(&models.QuickReply{}).Where("id = ?", id).Updates(fields)
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, ErrNotFound
	}
	var qr models.QuickReply
	if err := s.db.WithContext(ctx).First(&qr, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &qr, nil
}

func (s *QuickReplyStore) Delete(ctx context.Context, id string) error {
	res := s.db.WithContext(ctx).Delete(&models.QuickReply{}, "id = ?", id)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
