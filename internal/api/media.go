package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"whatsapp-inbox/internal/whatsapp"
)

type MediaHandler struct {
	client *whatsapp.Client
}

func NewMediaHandler(client *whatsapp.Client) *MediaHandler {
	return &MediaHandler{client: client}
}

// RetrieveURL resolves a provider media id to a short-lived download
// URL. The dashboard fetches the bytes itself.
func (h *MediaHandler) RetrieveURL(c *gin.Context) {
	mediaID := c.Param("id")
	if mediaID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "media id required"})
		return
	}

	url, err := h.client.RetrieveMediaURL(c.Request.Context(), mediaID)
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"url": url})
}
