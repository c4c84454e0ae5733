package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"whatsapp-inbox/internal/models"
	"whatsapp-inbox/internal/store"
)

type QuickReplyHandler struct {
	replies *store.QuickReplyStore
}

func NewQuickReplyHandler(replies *store.QuickReplyStore) *QuickReplyHandler {
	return &QuickReplyHandler{replies: replies}
}

func (h *QuickReplyHandler) List(c *gin.Context) {
	replies, err := h.replies.List(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, replies)
}

type QuickReplyRequest struct {
	Shortcut string `json:"shortcut" binding:"required"`
	Title    string `json:"title"`
	Content  string `json:"content" binding:"required"`
	Category string `json:"category"`
}

func (h *QuickReplyHandler) Create(c *gin.Context) {
	var req QuickReplyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	qr := models.QuickReply{
		Shortcut: req.Shortcut,
		Title:    req.Title,
		Content:  req.Content,
		Category: req.Category,
	}
	err := h.replies.Create(c.Request.Context(), &qr)
	if errors.Is(err, store.ErrDuplicateShortcut) {
		c.JSON(http.StatusConflict, gin.H{"error": "shortcut already in use"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, qr)
}

func (h *QuickReplyHandler) Update(c *gin.Context) {
	var req QuickReplyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	qr, err := h.replies.Update(c.Request.Context(), c.Param("id"), map[string]any{
		"shortcut": req.Shortcut,
		"title":    req.Title,
		"content":  req.Content,
		"category": req.Category,
	})
	if err != nil {
		abortStoreError(c, err)
		return
	}
	c.JSON(http.StatusOK, qr)
}

func (h *QuickReplyHandler) Delete(c *gin.Context) {
	if err := h.replies.Delete(c.Request.Context(), c.Param("id")); err != nil {
		abortStoreError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "quick reply deleted"})
}
