package service

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"whatsapp-inbox/internal/crm"
	"whatsapp-inbox/internal/models"
	"whatsapp-inbox/internal/store"
)

// LeadSync links inbox contacts to CRM leads. It implements the
// ingestion pipeline's CRMSyncer hook; sync failures are the
// caller's to log and never block message processing.
type LeadSync struct {
	contacts *store.ContactStore
	crm      crm.Service
	logger   *zap.Logger
}

func NewLeadSync(contacts *store.ContactStore, crmSvc crm.Service, logger *zap.Logger) *LeadSync {
	return &LeadSync{contacts: contacts, crm: crmSvc, logger: logger}
}

// SyncContact looks the contact's phone up in the CRM, links the
// existing lead or creates a new one, and stores the crm id locally.
func (s *LeadSync) SyncContact(ctx context.Context, contact *models.Contact) error {
	lead, err := s.crm.FindLeadByPhone(ctx, contact.Phone)
	if err != nil {
		return fmt.Errorf("crm lookup for %s: %w", contact.Phone, err)
	}

	if lead == nil {
		lead, err = s.crm.CreateLead(ctx, crm.Lead{
			Phone:  contact.Phone,
			Name:   contact.Name,
			Source: "WhatsApp Inbox",
		})
		if err != nil {
			return fmt.Errorf("crm create for %s: %w", contact.Phone, err)
		}
		s.logger.Info("created crm lead",
			zap.String("contact_id", contact.ID), zap.String("crm_id", lead.ID))
	}

	updates := map[string]any{"crm_id": lead.ID}
	if lead.Email != "" && contact.Email == "" {
		updates["email"] = lead.Email
	}
	if lead.LeadStatus != "" && contact.LeadStatus == models.LeadNew {
		updates["lead_status"] = lead.LeadStatus
	}
	if _, err := s.contacts.Update(ctx, contact.ID, updates); err != nil {
		return fmt.Errorf("link crm lead %s: %w", lead.ID, err)
	}
	return nil
}

// Push sends agent-curated contact fields back to the CRM.
func (s *LeadSync) Push(ctx context.Context, contactID string) error {
	contact, err := s.contacts.FindByID(ctx, contactID)
	if err != nil {
		return err
	}
	if contact.CRMID == "" {
		return nil
	}
	return s.crm.UpdateLead(ctx, contact.CRMID, crm.Lead{
		Phone:      contact.Phone,
		Name:       contact.Name,
		Email:      contact.Email,
		LeadStatus: contact.LeadStatus,
	})
}
