package handler

import (
	"net/http"
	"strings"

	"pulse-chat/internal/services"
	"pulse-chat/internal/transport/httpdto"
	pulse_errors "pulse-chat/pkg/errors"

	"github.com/gin-gonic/gin"
)

type MessageHandler struct {
	service  *services.MessageService
	notifier Notifier
}

func NewMessageHandler(service *services.MessageService, notifier Notifier) *MessageHandler {
	return &MessageHandler{service: service, notifier: notifier}
}

func (h *MessageHandler) SendPrivate(c *gin.Context) {
	var req httpdto.SendMessageRequest
	if !bindJSON(c, &req) {
		return
	}
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	receiverID := strings.TrimSpace(req.ReceiverID)
	if receiverID == "" {
		respondError(c, pulse_errors.Invalid("Receiver ID is required"))
		return
	}

	msg, err := h.service.SendPrivate(c.Request.Context(), userID, receiverID, req.Input())
	if err != nil {
		respondError(c, err)
		return
	}
	status := h.notifier.PublishMessage(c.Request.Context(), msg)
	msg.Status = status.Status

	c.JSON(http.StatusCreated, httpdto.NewSuccessResponse(httpdto.SendMessageResponse{
		Message:     msg,
		Status:      status.Status,
		DeliveredTo: status.DeliveredTo,
	}))
}

func (h *MessageHandler) SendGroup(c *gin.Context) {
	var req httpdto.SendMessageRequest
	if !bindJSON(c, &req) {
		return
	}
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	groupID := strings.TrimSpace(req.GroupID)
	if groupID == "" {
		respondError(c, pulse_errors.Invalid("Group ID is required"))
		return
	}

	msg, err := h.service.SendGroup(c.Request.Context(), userID, groupID, req.Input())
	if err != nil {
		respondError(c, err)
		return
	}
	status := h.notifier.PublishMessage(c.Request.Context(), msg)
	msg.Status = status.Status

	c.JSON(http.StatusCreated, httpdto.NewSuccessResponse(httpdto.SendMessageResponse{
		Message:     msg,
		Status:      status.Status,
		DeliveredTo: status.DeliveredTo,
	}))
}

func (h *MessageHandler) MarkRead(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	receipt, err := h.service.MarkRead(c.Request.Context(), userID, c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	h.notifier.PublishRead(c.Request.Context(), receipt)
	c.JSON(http.StatusOK, httpdto.NewSuccessResponse(httpdto.ReadResponse{ChatID: receipt.ChatID, MessageIDs: nonNil(receipt.MessageIDs)}))
}

func (h *MessageHandler) Delete(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	msg, err := h.service.Delete(c.Request.Context(), userID, c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	h.notifier.PublishDeleted(c.Request.Context(), msg)
	c.JSON(http.StatusOK, httpdto.NewSuccessResponse(gin.H{"id": msg.ID, "chatId": msg.ChatID}))
}

func nonNil(ids []string) []string {
	if ids == nil {
		return []string{}
	}
	return ids
}
