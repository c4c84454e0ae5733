package ingest

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"go.uber.org/zap"

	"whatsapp-inbox/internal/events"
	"whatsapp-inbox/internal/models"
	"whatsapp-inbox/internal/store"
	"whatsapp-inbox/pkg/metrics"
	wire "whatsapp-inbox/pkg/models"
)

// ReadMarker flags inbound messages as read on the provider side.
// Optional; failures are logged and never affect ingestion.
type ReadMarker interface {
	MarkAsRead(ctx context.Context, providerMessageID string) error
}

// CRMSyncer links freshly created contacts to the CRM. Optional;
// invoked asynchronously, failures never affect ingestion.
type CRMSyncer interface {
	SyncContact(ctx context.Context, contact *models.Contact) error
}

// Pipeline turns webhook message and status units into persisted
// state and change events. Every step is individually idempotent, so
// provider redeliveries are safe.
type Pipeline struct {
	contacts      *store.ContactStore
	conversations *store.ConversationStore
	messages      *store.MessageStore
	bus           events.Bus
	logger        *zap.Logger

	readMarker ReadMarker
	crmSync    CRMSyncer
}

func NewPipeline(
	contacts *store.ContactStore,
	conversations *store.ConversationStore,
	messages *store.MessageStore,
	bus events.Bus,
	logger *zap.Logger,
) *Pipeline {
	return &Pipeline{
		contacts:      contacts,
		conversations: conversations,
		messages:      messages,
		bus:           bus,
		logger:        logger,
	}
}

// WithReadMarker enables provider-side read receipts for ingested
// messages.
func (p *Pipeline) WithReadMarker(rm ReadMarker) *Pipeline {
	p.readMarker = rm
	return p
}

// WithCRMSync enables lead syncing for newly seen contacts.
func (p *Pipeline) WithCRMSync(cs CRMSyncer) *Pipeline {
	p.crmSync = cs
	return p
}

// Ingest processes one inbound message unit: resolve contact, resolve
// open conversation, normalize, persist, bump the conversation
// summary, emit events. Redelivery of an already-stored provider
// message id skips persistence and events entirely.
func (p *Pipeline) Ingest(ctx context.Context, msg wire.WebhookMessage, profileName string) error {
	contact, err := p.contacts.ResolveContact(ctx, msg.From, profileName)
	if err != nil {
		return fmt.Errorf("resolve contact: %w", err)
	}

	if p.crmSync != nil && contact.CRMID == "" {
		go func(c models.Contact) {
			syncCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := p.crmSync.SyncContact(syncCtx, &c); err != nil {
				p.logger.Warn("crm sync failed", zap.String("contact_id", c.ID), zap.Error(err))
			}
		}(*contact)
	}

	conv, err := p.conversations.ResolveOpen(ctx, contact.ID)
	if err != nil {
		return fmt.Errorf("resolve conversation: %w", err)
	}

	norm := NormalizeInbound(msg)
	ts := parseTimestamp(msg.Timestamp)
	providerID := msg.ID

	record := models.Message{
		ConversationID:    conv.ID,
		Sender:            models.SenderClient,
		SenderName:        contact.Name,
		Content:           norm.Content,
		ContentType:       norm.Type,
		MediaID:           norm.MediaID,
		ProviderMessageID: &providerID,
		// Inbound messages are, by definition, delivered.
		Status:    models.StatusDelivered,
		CreatedAt: ts,
	}

	err = p.messages.Insert(ctx, &record)
	if errors.Is(err, store.ErrDuplicateProviderID) {
		metrics.IngestDuplicates.Inc()
		p.logger.Debug("skipping redelivered message",
			zap.String("provider_message_id", providerID))
		return nil
	}
	if err != nil {
		return fmt.Errorf("persist message: %w", err)
	}

	if err := p.conversations.BumpSummary(ctx, conv.ID, norm.Content, ts, true); err != nil {
		return fmt.Errorf("update conversation summary: %w", err)
	}
	if err := p.contacts.TouchLastMessage(ctx, contact.ID, ts); err != nil {
		p.logger.Warn("failed to touch contact", zap.String("contact_id", contact.ID), zap.Error(err))
	}

	p.publish(ctx, events.Event{
		Type:           events.MessageNew,
		ConversationID: conv.ID,
		Message:        &record,
	})
	preview := store.Truncate(norm.Content, store.PreviewLimit)
	p.publish(ctx, events.Event{
		Type:           events.ConversationUpdated,
		ConversationID: conv.ID,
		Patch: &events.ConversationPatch{
			LastMessagePreview: &preview,
			LastMessageAt:      &ts,
		},
	})

	if p.readMarker != nil {
		go func() {
			readCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := p.readMarker.MarkAsRead(readCtx, providerID); err != nil {
				p.logger.Debug("mark-as-read failed",
					zap.String("provider_message_id", providerID), zap.Error(err))
			}
		}()
	}

	metrics.MessagesIngested.WithLabelValues(norm.Type).Inc()
	return nil
}

// IngestStatus applies a delivery-status update. Unknown provider ids
// are a no-op, not an error: statuses can race ahead of message
// persistence or reference messages this system never stored.
func (p *Pipeline) IngestStatus(ctx context.Context, st wire.WebhookStatus) error {
	status := models.MessageStatus(st.Status)

	var detail *models.DeliveryError
	if status == models.StatusFailed && len(st.Errors) > 0 {
		detail = &models.DeliveryError{
			Code:    st.Errors[0].Code,
			Title:   st.Errors[0].Title,
			Message: st.Errors[0].Message,
		}
	}

	msg, err := p.messages.UpdateStatusByProviderID(ctx, st.ID, status, detail)
	if err != nil {
		return fmt.Errorf("update status: %w", err)
	}
	if msg == nil {
		p.logger.Debug("status update for unknown message",
			zap.String("provider_message_id", st.ID),
			zap.String("status", st.Status))
		return nil
	}

	p.publish(ctx, events.Event{
		Type:           events.MessageStatus,
		ConversationID: msg.ConversationID,
		Status: &events.StatusChange{
			MessageID:         msg.ID,
			ProviderMessageID: st.ID,
			Status:            status,
		},
	})

	metrics.StatusUpdates.WithLabelValues(st.Status).Inc()
	return nil
}

func (p *Pipeline) publish(ctx context.Context, evt events.Event) {
	if err := p.bus.Publish(ctx, evt); err != nil {
		p.logger.Warn("event publish failed", zap.String("event", evt.Type), zap.Error(err))
	}
}

func parseTimestamp(raw string) time.Time {
	if secs, err := strconv.ParseInt(raw, 10, 64); err == nil && secs > 0 {
		return time.Unix(secs, 0).UTC()
	}
	return time.Now().UTC()
}
