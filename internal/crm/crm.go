// Package crm is the narrow interface to the external CRM. Lead
// synchronization logic beyond lookup/create/update lives with the
// CRM provider, not here.
package crm

import (
	"context"

	"whatsapp-inbox/internal/models"
)

// Lead is the CRM-side projection of a contact.
type Lead struct {
	ID         string            `json:"id"`
	Phone      string            `json:"phone"`
	Name       string            `json:"name"`
	Email      string            `json:"email,omitempty"`
	Source     string            `json:"source,omitempty"`
	LeadStatus models.LeadStatus `json:"lead_status,omitempty"`
}

// Service is what the inbox needs from the CRM.
type Service interface {
	// FindLeadByPhone returns (nil, nil) when no lead exists.
	FindLeadByPhone(ctx context.Context, phone string) (*Lead, error)
	CreateLead(ctx context.Context, lead Lead) (*Lead, error)
	UpdateLead(ctx context.Context, id string, lead Lead) error
}
