package handler

import (
	"net/http"
	"strconv"

	"pulse-chat/internal/domain/chat"
	"pulse-chat/internal/repository"
	"pulse-chat/internal/services"
	"pulse-chat/internal/transport/httpdto"
	pulse_errors "pulse-chat/pkg/errors"

	"github.com/gin-gonic/gin"
)

// ChatHandler serves the caller's chat list and per-chat history.
type ChatHandler struct {
	conversations *services.ConversationService
	messages      *services.MessageService
	notifier      Notifier
}

func NewChatHandler(conversations *services.ConversationService, messages *services.MessageService, notifier Notifier) *ChatHandler {
	return &ChatHandler{conversations: conversations, messages: messages, notifier: notifier}
}

func (h *ChatHandler) List(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	includeArchived := false
	if raw := c.Query("archived"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			respondError(c, pulse_errors.Invalid("Invalid archived flag"))
			return
		}
		includeArchived = v
	}

	sessions, err := h.conversations.ListSessions(c.Request.Context(), userID, includeArchived)
	if err != nil {
		respondError(c, err)
		return
	}
	if sessions == nil {
		sessions = []services.SessionView{}
	}
	c.JSON(http.StatusOK, httpdto.NewSuccessResponse(gin.H{"chats": sessions}))
}

func (h *ChatHandler) History(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	page, err := queryInt(c, "page", 1)
	if err != nil {
		respondError(c, err)
		return
	}
	limit, err := queryInt(c, "limit", 0)
	if err != nil {
		respondError(c, err)
		return
	}

	result, err := h.messages.History(c.Request.Context(), userID, c.Param("chatId"), page, limit)
	if err != nil {
		respondError(c, err)
		return
	}
	if result.Messages == nil {
		result.Messages = []chat.Message{}
	}
	c.JSON(http.StatusOK, httpdto.NewSuccessResponse(httpdto.HistoryResponse{
		Messages: result.Messages,
		Pagination: httpdto.Pagination{
			Page:    result.Page,
			Limit:   result.Limit,
			Total:   result.Total,
			HasMore: result.HasMore,
		},
	}))
}

func (h *ChatHandler) Search(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	limit, err := queryInt(c, "limit", 0)
	if err != nil {
		respondError(c, err)
		return
	}
	query := c.Query("q")
	found, err := h.messages.Search(c.Request.Context(), userID, c.Param("chatId"), query, limit)
	if err != nil {
		respondError(c, err)
		return
	}
	if found == nil {
		found = []chat.Message{}
	}
	c.JSON(http.StatusOK, httpdto.NewSuccessResponse(httpdto.SearchMessagesResponse{Messages: found, Query: query}))
}

// MarkRead marks every unread message in the chat as read by the caller.
func (h *ChatHandler) MarkRead(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	receipt, err := h.messages.MarkChatRead(c.Request.Context(), userID, c.Param("chatId"))
	if err != nil {
		respondError(c, err)
		return
	}
	h.notifier.PublishRead(c.Request.Context(), receipt)
	c.JSON(http.StatusOK, httpdto.NewSuccessResponse(httpdto.ReadResponse{ChatID: receipt.ChatID, MessageIDs: nonNil(receipt.MessageIDs)}))
}

func (h *ChatHandler) UpdateSettings(c *gin.Context) {
	var req httpdto.UpdateChatSettingsRequest
	if !bindJSON(c, &req) {
		return
	}
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	session, err := h.conversations.UpdateSettings(c.Request.Context(), c.Param("chatId"), userID, repository.SessionFlags{
		IsPinned:   req.IsPinned,
		IsMuted:    req.IsMuted,
		IsArchived: req.IsArchived,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, httpdto.NewSuccessResponse(session))
}
