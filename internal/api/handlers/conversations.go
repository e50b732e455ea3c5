package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/loomnote/chat-backend/internal/api/middleware"
	"github.com/loomnote/chat-backend/internal/apperr"
	"github.com/loomnote/chat-backend/internal/identity"
	"github.com/loomnote/chat-backend/internal/models"
	"github.com/loomnote/chat-backend/internal/store"
)

// TenantHeader names the tenant a request acts within. Absent, the
// principal's first membership is used.
const TenantHeader = "X-Tenant-ID"

type CreateConversationRequest struct {
	Title string `json:"title" binding:"omitempty,max=200"`
}

type ConversationResponse struct {
	ID        uuid.UUID `json:"id"`
	TenantID  uuid.UUID `json:"tenantId"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

type MessageResponse struct {
	ID             uuid.UUID `json:"id"`
	ConversationID uuid.UUID `json:"conversationId"`
	Role           string    `json:"role"`
	Content        string    `json:"content"`
	Timestamp      time.Time `json:"timestamp"`
}

type ConversationDetailResponse struct {
	ConversationResponse
	Messages []MessageResponse `json:"messages"`
}

// requestScope resolves the (tenant, user) scope for the current request.
func (h *handler) requestScope(c *gin.Context) (store.Scope, error) {
	return identity.ScopeFor(middleware.Principal(c), c.GetHeader(TenantHeader))
}

// ListConversations returns the caller's conversations, newest-updated
// first. A principal without tenant membership gets an empty list plus a
// tenant-setup advisory rather than an authentication failure.
func (h *handler) ListConversations(c *gin.Context) {
	scope, err := h.requestScope(c)
	if err != nil {
		if apperr.KindOf(err) == apperr.KindTenantSetup {
			c.JSON(http.StatusOK, gin.H{
				"conversations": []ConversationResponse{},
				"warning":       "tenant setup pending",
			})
			return
		}
		respondError(c, err)
		return
	}

	conversations, err := h.store.List(c.Request.Context(), scope)
	if err != nil {
		respondError(c, err)
		return
	}

	response := make([]ConversationResponse, 0, len(conversations))
	for _, conversation := range conversations {
		response = append(response, convertToConversationResponse(conversation))
	}
	c.JSON(http.StatusOK, gin.H{"conversations": response})
}

// CreateConversation creates a fresh conversation. Deliberately not
// idempotent: every call yields a new conversation.
func (h *handler) CreateConversation(c *gin.Context) {
	var req CreateConversationRequest
	if err := c.ShouldBindJSON(&req); err != nil && c.Request.ContentLength > 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	scope, err := h.requestScope(c)
	if err != nil {
		respondError(c, err)
		return
	}

	conversation, err := h.store.Create(c.Request.Context(), scope, req.Title)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, convertToConversationResponse(*conversation))
}

// GetConversation returns one conversation with its ordered messages.
func (h *handler) GetConversation(c *gin.Context) {
	conversationID, err := uuid.Parse(c.Param("conversationId"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid conversation ID"})
		return
	}

	scope, err := h.requestScope(c)
	if err != nil {
		respondError(c, err)
		return
	}

	conversation, messages, err := h.store.Get(c.Request.Context(), scope, conversationID)
	if err != nil {
		respondError(c, err)
		return
	}

	detail := ConversationDetailResponse{
		ConversationResponse: convertToConversationResponse(*conversation),
		Messages:             make([]MessageResponse, 0, len(messages)),
	}
	for _, msg := range messages {
		detail.Messages = append(detail.Messages, convertToMessageResponse(msg))
	}
	c.JSON(http.StatusOK, detail)
}

// DeleteConversation removes a conversation and all of its messages.
func (h *handler) DeleteConversation(c *gin.Context) {
	conversationID, err := uuid.Parse(c.Param("conversationId"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid conversation ID"})
		return
	}

	scope, err := h.requestScope(c)
	if err != nil {
		respondError(c, err)
		return
	}

	if err := h.store.Delete(c.Request.Context(), scope, conversationID); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func convertToConversationResponse(conversation models.Conversation) ConversationResponse {
	return ConversationResponse{
		ID:        conversation.ID,
		TenantID:  conversation.TenantID,
		Title:     conversation.Title,
		CreatedAt: conversation.CreatedAt,
		UpdatedAt: conversation.UpdatedAt,
	}
}

func convertToMessageResponse(msg models.Message) MessageResponse {
	return MessageResponse{
		ID:             msg.ID,
		ConversationID: msg.ConversationID,
		Role:           msg.Role,
		Content:        msg.Content,
		Timestamp:      msg.CreatedAt,
	}
}
