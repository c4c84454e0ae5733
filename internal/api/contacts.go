package api

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"whatsapp-inbox/internal/models"
	"whatsapp-inbox/internal/service"
	"whatsapp-inbox/internal/store"
)

type ContactHandler struct {
	contacts *store.ContactStore
	notes    *store.NoteStore
	leadSync *service.LeadSync
}

func NewContactHandler(contacts *store.ContactStore, notes *store.NoteStore) *ContactHandler {
	return &ContactHandler{contacts: contacts, notes: notes}
}

// WithLeadSync enables pushing contact edits back to the CRM.
func (h *ContactHandler) WithLeadSync(ls *service.LeadSync) *ContactHandler {
	h.leadSync = ls
	return h
}

func (h *ContactHandler) List(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "100"))

	contacts, err := h.contacts.List(c.Request.Context(), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, contacts)
}

func (h *ContactHandler) Get(c *gin.Context) {
	contact, err := h.contacts.FindByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		abortStoreError(c, err)
		return
	}
	c.JSON(http.StatusOK, contact)
}

type CreateContactRequest struct {
	Phone string   `json:"phone" binding:"required"`
	Name  string   `json:"name"`
	Email string   `json:"email"`
	Tags  []string `json:"tags"`
}

func (h *ContactHandler) Create(c *gin.Context) {
	var req CreateContactRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	contact := models.Contact{
		Phone: req.Phone,
		Name:  req.Name,
		Email: req.Email,
		Tags:  req.Tags,
	}
	if contact.Name == "" {
		contact.Name = req.Phone
	}
	err := h.contacts.Create(c.Request.Context(), &contact)
	if errors.Is(err, store.ErrDuplicatePhone) {
		c.JSON(http.StatusConflict, gin.H{"error": "a contact with this phone already exists"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, contact)
}

type UpdateContactRequest struct {
	Name          *string               `json:"name"`
	Email         *string               `json:"email"`
	Tags          []string              `json:"tags"`
	LeadStatus    *models.LeadStatus    `json:"lead_status"`
	TravelHistory []models.TravelRecord `json:"travel_history"`
}

func (h *ContactHandler) Update(c *gin.Context) {
	var req UpdateContactRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	fields := map[string]any{}
	if req.Name != nil {
		fields["name"] = *req.Name
	}
	if req.Email != nil {
		fields["email"] = *req.Email
	}
	if req.Tags != nil {
		// Map updates skip the struct serializer; store the JSON text.
		raw, _ := json.Marshal(req.Tags)
		fields["tags"] = string(raw)
	}
	if req.LeadStatus != nil {
		fields["lead_status"] = *req.LeadStatus
	}
	if req.TravelHistory != nil {
		raw, _ := json.Marshal(req.TravelHistory)
		fields["travel_history"] = string(raw)
	}
	if len(fields) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "no fields to update"})
		return
	}

	contact, err := h.contacts.Update(c.Request.Context(), c.Param("id"), fields)
	if err != nil {
		abortStoreError(c, err)
		return
	}

	if h.leadSync != nil && contact.CRMID != "" {
		if err := h.leadSync.Push(c.Request.Context(), contact.ID); err != nil {
			c.JSON(http.StatusOK, gin.H{"contact": contact, "crm_sync": "failed: " + err.Error()})
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"contact": contact})
}

func (h *ContactHandler) Delete(c *gin.Context) {
	if err := h.contacts.Delete(c.Request.Context(), c.Param("id")); err != nil {
		abortStoreError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "contact deleted"})
}

// Export streams every contact as CSV for campaign tooling.
func (h *ContactHandler) Export(c *gin.Context) {
	contacts, err := h.contacts.List(c.Request.Context(), 100000)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.Header("Content-Type", "text/csv")
	c.Header("Content-Disposition", "attachment; filename=contacts.csv")
	c.Status(http.StatusOK)

	w := csv.NewWriter(c.Writer)
	_ = w.Write([]string{"Phone", "Name", "Email", "Lead Status", "Tags", "First Contact"})
	for _, contact := range contacts {
		_ = w.Write([]string{
			contact.Phone,
			contact.Name,
			contact.Email,
			string(contact.LeadStatus),
			strings.Join(contact.Tags, ";"),
			contact.FirstContactAt.Format("2006-01-02"),
		})
	}
	w.Flush()
}

type CreateNoteRequest struct {
	Content string `json:"content" binding:"required"`
}

func (h *ContactHandler) ListNotes(c *gin.Context) {
	notes, err := h.notes.ListByContact(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, notes)
}

func (h *ContactHandler) CreateNote(c *gin.Context) {
	var req CreateNoteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	note := models.InternalNote{
		ContactID:  c.Param("id"),
		AuthorName: agentName(c),
		Content:    req.Content,
	}
	if err := h.notes.Create(c.Request.Context(), &note); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, note)
}

func (h *ContactHandler) DeleteNote(c *gin.Context) {
	if err := h.notes.Delete(c.Request.Context(), c.Param("noteId")); err != nil {
		abortStoreError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "note deleted"})
}
