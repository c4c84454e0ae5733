// Package webhook receives WhatsApp Cloud API callbacks: the
// subscription handshake and the notification batches.
package webhook

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"whatsapp-inbox/internal/config"
	"whatsapp-inbox/internal/ingest"
	"whatsapp-inbox/pkg/metrics"
	wire "whatsapp-inbox/pkg/models"
)

type Handler struct {
	cfg      *config.Config
	pipeline *ingest.Pipeline
	logger   *zap.Logger
}

func NewHandler(cfg *config.Config, pipeline *ingest.Pipeline, logger *zap.Logger) *Handler {
	return &Handler{cfg: cfg, pipeline: pipeline, logger: logger}
}

// Verify answers the Cloud API subscription handshake: echo the
// challenge when the verify token matches, 403 otherwise.
func (h *Handler) Verify(c *gin.Context) {
	mode := c.Query("hub.mode")
	token := c.Query("hub.verify_token")
	challenge := c.Query("hub.challenge")

	if mode == "" || token == "" {
		c.Status(http.StatusBadRequest)
		return
	}
	if mode != "subscribe" || token != h.cfg.VerifyToken {
		c.Status(http.StatusForbidden)
		return
	}

	h.logger.Info("webhook verified")
	c.String(http.StatusOK, challenge)
}

// Receive processes a notification batch. Every message and status
// unit across all entries and changes is attempted; a failing unit is
// logged and counted without aborting the rest. The response is 200
// once the batch has been walked, so the provider does not redeliver
// units that did succeed.
func (h *Handler) Receive(c *gin.Context) {
	var payload wire.WebhookPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		h.logger.Warn("malformed webhook payload", zap.Error(err))
		c.Status(http.StatusBadRequest)
		return
	}
	if payload.Object != "whatsapp_business_account" {
		h.logger.Warn("unexpected webhook object", zap.String("object", payload.Object))
		c.Status(http.StatusBadRequest)
		return
	}

	ctx := c.Request.Context()
	for _, entry := range payload.Entry {
		for _, change := range entry.Changes {
			if change.Field != "" && change.Field != "messages" {
				continue
			}
			value := change.Value

			names := profileNames(value.Contacts)
			for _, msg := range value.Messages {
				if err := h.pipeline.Ingest(ctx, msg, names[msg.From]); err != nil {
					metrics.IngestFailures.Inc()
					h.logger.Error("failed to ingest message",
						zap.String("provider_message_id", msg.ID),
						zap.String("from", msg.From),
						zap.Error(err))
				}
			}

			for _, st := range value.Statuses {
				if err := h.pipeline.IngestStatus(ctx, st); err != nil {
					metrics.IngestFailures.Inc()
					h.logger.Error("failed to apply status update",
						zap.String("provider_message_id", st.ID),
						zap.String("status", st.Status),
						zap.Error(err))
				}
			}
		}
	}

	c.Status(http.StatusOK)
}

func profileNames(contacts []wire.WebhookContact) map[string]string {
	names := make(map[string]string, len(contacts))
	for _, ct := range contacts {
		names[ct.WaID] = ct.Profile.Name
	}
	return names
}
