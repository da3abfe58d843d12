package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/chenjeraimunyaradzi05-art/Ngurra-sub003/internal/hub"
	"github.com/chenjeraimunyaradzi05-art/Ngurra-sub003/internal/middleware"
	"github.com/chenjeraimunyaradzi05-art/Ngurra-sub003/internal/model"
	"github.com/chenjeraimunyaradzi05-art/Ngurra-sub003/internal/service"
)

// ChatHandler exposes the REST surface the sync core falls back to when the
// socket is down: conversation listing, history paging, sends, and read
// receipts.
type ChatHandler interface {
	ListConversations(c *gin.Context)
	GetMessages(c *gin.Context)
	CreateConversation(c *gin.Context)
	SendMessage(c *gin.Context)
	MarkRead(c *gin.Context)
}

type chatHandler struct {
	chat   service.ChatService
	hub    *hub.Hub
	logger *zap.Logger
}

func NewChatHandler(chat service.ChatService, h *hub.Hub, logger *zap.Logger) ChatHandler {
	return &chatHandler{
		chat:   chat,
		hub:    h,
		logger: logger,
	}
}

type sendMessageRequest struct {
	Content  string            `json:"content"`
	Type     model.MessageType `json:"type"`
	ClientID string            `json:"clientId"`
	ReplyTo  string            `json:"replyTo"`
}

type createConversationRequest struct {
	ParticipantIDs []string               `json:"participantIds"`
	Kind           model.ConversationKind `json:"kind"`
	Title          string                 `json:"title"`
}

// ListConversations returns the caller's conversations and the aggregate
// unread count.
func (h *chatHandler) ListConversations(c *gin.Context) {
	userID := middleware.UserID(c)

	convs, totalUnread, err := h.chat.ListConversations(c.Request.Context(), userID)
	if err != nil {
		h.fail(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"conversations": convs,
		"totalUnread":   totalUnread,
	})
}

// GetMessages returns one page of conversation history, oldest first. The
// optional before query parameter (a message id) pages backwards.
func (h *chatHandler) GetMessages(c *gin.Context) {
	userID := middleware.UserID(c)
	conversationID := c.Param("conversationId")
	before := c.Query("before")

	msgs, hasMore, err := h.chat.History(c.Request.Context(), userID, conversationID, before)
	if err != nil {
		h.fail(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"messages": msgs,
		"hasMore":  hasMore,
	})
}

func (h *chatHandler) CreateConversation(c *gin.Context) {
	userID := middleware.UserID(c)

	var req createConversationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body", "code": "BAD_REQUEST"})
		return
	}

	conv, err := h.chat.CreateConversation(c.Request.Context(), userID, req.ParticipantIDs, req.Kind, req.Title)
	if err != nil {
		h.fail(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"conversation": conv})
}

// SendMessage stores a message posted over REST and fans it out to connected
// participants exactly as a socket send would.
func (h *chatHandler) SendMessage(c *gin.Context) {
	userID := middleware.UserID(c)
	conversationID := c.Param("conversationId")

	var req sendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body", "code": "BAD_REQUEST"})
		return
	}

	conv, msg, err := h.chat.SendMessage(
		c.Request.Context(),
		userID,
		middleware.DisplayName(c),
		conversationID,
		req.ClientID,
		req.Content,
		req.Type,
		req.ReplyTo,
	)
	if err != nil {
		h.fail(c, err)
		return
	}

	h.hub.NotifyMessage(conv, msg)

	c.JSON(http.StatusCreated, gin.H{"message": msg})
}

// MarkRead marks the whole conversation read for the caller and pushes read
// receipts to the other participants.
func (h *chatHandler) MarkRead(c *gin.Context) {
	userID := middleware.UserID(c)
	conversationID := c.Param("conversationId")

	ids, readAt, err := h.chat.MarkRead(c.Request.Context(), userID, conversationID)
	if err != nil {
		h.fail(c, err)
		return
	}

	if len(ids) > 0 {
		h.hub.NotifyRead(conversationID, userID, ids, readAt)
	}

	c.JSON(http.StatusOK, gin.H{"marked": len(ids)})
}

func (h *chatHandler) fail(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrConversationNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "conversation not found", "code": "NOT_FOUND"})
	case errors.Is(err, service.ErrNotParticipant):
		c.JSON(http.StatusForbidden, gin.H{"error": "not a participant", "code": "FORBIDDEN"})
	case errors.Is(err, service.ErrEmptyContent), errors.Is(err, service.ErrNoParticipants):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error(), "code": "BAD_REQUEST"})
	default:
		h.logger.Error("request failed", zap.String("path", c.FullPath()), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error", "code": "INTERNAL"})
	}
}
