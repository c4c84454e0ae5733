package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"whatsapp-inbox/internal/service"
	"whatsapp-inbox/internal/whatsapp"
)

type MessageHandler struct {
	messages *service.MessageService
}

func NewMessageHandler(messages *service.MessageService) *MessageHandler {
	return &MessageHandler{messages: messages}
}

type SendMessageRequest struct {
	// ConversationID is read from the URL on the conversation-scoped
	// route; the flat /api/send route carries it in the body.
	ConversationID string `json:"conversation_id"`
	Content        string `json:"content"`
	TemplateName   string `json:"template_name"`
}

// Send delivers an agent message to the conversation's customer. A
// concurrent send on the same conversation gets 409 and keeps its
// content; a provider rejection surfaces the provider's response body.
func (h *MessageHandler) Send(c *gin.Context) {
	var req SendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.Content == "" && req.TemplateName == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "content or template_name is required"})
		return
	}
	conversationID := c.Param("id")
	if conversationID == "" {
		conversationID = req.ConversationID
	}
	if conversationID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "conversation_id is required"})
		return
	}

	msg, err := h.messages.SendToCustomer(c.Request.Context(), service.SendRequest{
		ConversationID: conversationID,
		Content:        req.Content,
		TemplateName:   req.TemplateName,
		SenderName:     agentName(c),
	})
	if err != nil {
		if errors.Is(err, service.ErrSendInFlight) {
			c.JSON(http.StatusConflict, gin.H{"error": "a send is already in flight for this conversation"})
			return
		}
		var apiErr *whatsapp.APIError
		if errors.As(err, &apiErr) {
			c.JSON(http.StatusBadGateway, gin.H{
				"error":           "provider rejected the message",
				"provider_status": apiErr.StatusCode,
				"provider_body":   apiErr.Body,
			})
			return
		}
		abortStoreError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message":             msg,
		"whatsapp_message_id": msg.ProviderMessageID,
	})
}

// Suggest drafts a reply from recent history for the agent to edit.
func (h *MessageHandler) Suggest(c *gin.Context) {
	suggestion, err := h.messages.SuggestReply(c.Request.Context(), c.Param("id"), agentName(c))
	if err != nil {
		abortStoreError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"suggestion": suggestion})
}
