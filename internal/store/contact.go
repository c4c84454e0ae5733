package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"whatsapp-inbox/internal/models"
)

// ContactStore resolves WhatsApp phone numbers to contacts.
type ContactStore struct {
	db *gorm.DB
}

func NewContactStore(db *gorm.DB) *ContactStore {
	return &ContactStore{db: db}
}

// ResolveContact returns the contact for phone, creating it on first
// contact. An existing contact is returned unchanged: the provider's
// display name never overwrites agent-curated naming. A duplicate-key
// error on create means a concurrent insert won the race; the winner
// is re-fetched.
func (s *ContactStore) ResolveContact(ctx context.Context, phone, displayName string) (*models.Contact, error) {
	var contact models.Contact
	err := s.db.WithContext(ctx).Where("phone = ?", phone).First(&contact).Error
	if err == nil {
		return &contact, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("contact lookup for %s: %w", phone, err)
	}

	name := displayName
	if name == "" {
		name = phone
	}
	contact = models.Contact{
		ID:            uuid.NewString(),
		Phone:         phone,
		Name:          name,
		LeadStatus:    models.LeadNew,
		Tags:          []string{},
		TravelHistory: []models.TravelRecord{},
	}

	err = s.db.WithContext(ctx).Create(&contact).Error
	if err == nil {
		return &contact, nil
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		var winner models.Contact
		if ferr := s.db.WithContext(ctx).Where("phone = ?", phone).First(&winner).Error; ferr != nil {
			return nil, fmt.Errorf("contact re-fetch after conflict for %s: %w", phone, ferr)
		}
		return &winner, nil
	}
	return nil, fmt.Errorf("contact create for %s: %w", phone, err)
}

// FindByID returns a contact or ErrNotFound.
func (s *ContactStore) FindByID(ctx context.Context, id string) (*models.Contact, error) {
	var contact models.Contact
	err := s.db.WithContext(ctx).First(&contact, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &contact, nil
}

// List returns contacts most recently contacted first.
func (s *ContactStore) List(ctx context.Context, limit int) ([]models.Contact, error) {
	if limit <= 0 {
		limit = 100
	}
	contacts := []models.Contact{}
	err := s.db.WithContext(ctx).
		Order("last_message_at DESC NULLS LAST").
		Limit(limit).
		Find(&contacts).Error
	return contacts, err
}

// Update applies agent or CRM edits to a contact and returns the
// stored row.
func (s *ContactStore) Update(ctx context.Context, id string, fields map[string]any) (*models.Contact, error) {
	res := s.db.WithContext(ctx).Model(&models.Contact{}).Where("id = ?", id).Updates(fields)
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, ErrNotFound
	}
	return s.FindByID(ctx, id)
}

// Create inserts an agent-entered contact. A phone collision returns
// ErrDuplicatePhone.
func (s *ContactStore) Create(ctx context.Context, contact *models.Contact) error {
	if contact.ID == "" {
		contact.ID = uuid.NewString()
	}
	if contact.LeadStatus == "" {
		contact.LeadStatus = models.LeadNew
	}
	if contact.Tags == nil {
		contact.Tags = []string{}
	}
	if contact.TravelHistory == nil {
		contact.TravelHistory = []models.TravelRecord{}
	}
	err := s.db.WithContext(ctx).Create(contact).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return ErrDuplicatePhone
	}
	return err
}

// Delete removes a contact.
func (s *ContactStore) Delete(ctx context.Context, id string) error {
	res := s.db.WithContext(ctx).Delete(&models.Contact{}, "id = ?", id)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// TouchLastMessage records when the contact last messaged us.
func (s *ContactStore) TouchLastMessage(ctx context.Context, id string, at time.Time) error {
	return s.db.WithContext(ctx).Model(&models.Contact{}).
		Where("id = ?", id).
		Update("last_message_at", at).Error
}
