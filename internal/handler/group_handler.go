package handler

import (
	"net/http"

	"pulse-chat/internal/domain/chat"
	"pulse-chat/internal/gateway"
	"pulse-chat/internal/repository"
	"pulse-chat/internal/services"
	"pulse-chat/internal/transport/httpdto"
	pulse_errors "pulse-chat/pkg/errors"

	"github.com/gin-gonic/gin"
)

type GroupHandler struct {
	service  *services.GroupService
	notifier Notifier
}

func NewGroupHandler(service *services.GroupService, notifier Notifier) *GroupHandler {
	return &GroupHandler{service: service, notifier: notifier}
}

func (h *GroupHandler) Create(c *gin.Context) {
	var req httpdto.CreateGroupRequest
	if !bindJSON(c, &req) {
		return
	}
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	view, err := h.service.Create(c.Request.Context(), userID, req.Params())
	if err != nil {
		respondError(c, err)
		return
	}
	h.notifier.PublishGroupChange(c.Request.Context(), view, gateway.GroupCreated, userID)
	c.JSON(http.StatusCreated, httpdto.NewSuccessResponse(view))
}

func (h *GroupHandler) ListMine(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	groups, err := h.service.ListMine(c.Request.Context(), userID)
	if err != nil {
		respondError(c, err)
		return
	}
	if groups == nil {
		groups = []services.GroupView{}
	}
	c.JSON(http.StatusOK, httpdto.NewSuccessResponse(gin.H{"groups": groups}))
}

func (h *GroupHandler) Search(c *gin.Context) {
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
	result, err := h.service.Search(c.Request.Context(), repository.GroupQuery{
		Text:     c.Query("q"),
		Tag:      c.Query("tag"),
		Category: c.Query("category"),
		Page:     page,
		Limit:    limit,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, httpdto.NewSuccessResponse(result))
}

func (h *GroupHandler) Get(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	view, err := h.service.Get(c.Request.Context(), userID, c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, httpdto.NewSuccessResponse(view))
}

func (h *GroupHandler) Update(c *gin.Context) {
	var req httpdto.UpdateGroupRequest
	if !bindJSON(c, &req) {
		return
	}
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	update := services.GroupUpdate{
		Name:        req.Name,
		Description: req.Description,
		AvatarURL:   req.AvatarURL,
		MaxMembers:  req.MaxMembers,
		Settings:    req.Settings,
		Tags:        req.Tags,
		Category:    req.Category,
	}
	if req.Type != nil {
		t := chat.GroupType(*req.Type)
		update.Type = &t
	}

	view, err := h.service.Update(c.Request.Context(), userID, c.Param("id"), update)
	if err != nil {
		respondError(c, err)
		return
	}
	h.notifier.PublishGroupChange(c.Request.Context(), view, gateway.GroupUpdated, userID)
	c.JSON(http.StatusOK, httpdto.NewSuccessResponse(view))
}

func (h *GroupHandler) Join(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	view, err := h.service.Join(c.Request.Context(), userID, c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	h.notifier.PublishGroupChange(c.Request.Context(), view, gateway.GroupJoined, userID)
	c.JSON(http.StatusOK, httpdto.NewSuccessResponse(view))
}

func (h *GroupHandler) JoinByInvite(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	view, err := h.service.JoinByInvite(c.Request.Context(), userID, c.Param("inviteCode"))
	if err != nil {
		respondError(c, err)
		return
	}
	h.notifier.PublishGroupChange(c.Request.Context(), view, gateway.GroupJoined, userID)
	c.JSON(http.StatusOK, httpdto.NewSuccessResponse(view))
}

func (h *GroupHandler) Leave(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	view, err := h.service.Leave(c.Request.Context(), userID, c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	h.notifier.PublishGroupChange(c.Request.Context(), view, gateway.GroupLeft, userID)
	c.JSON(http.StatusOK, httpdto.NewSuccessResponse(gin.H{"groupId": view.ID}))
}

func (h *GroupHandler) AddMember(c *gin.Context) {
	var req httpdto.AddMemberRequest
	if !bindJSON(c, &req) {
		return
	}
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	view, err := h.service.AddMember(c.Request.Context(), userID, c.Param("id"), req.UserID)
	if err != nil {
		respondError(c, err)
		return
	}
	h.notifier.PublishGroupChange(c.Request.Context(), view, gateway.GroupMemberAdded, req.UserID)
	c.JSON(http.StatusOK, httpdto.NewSuccessResponse(view))
}

func (h *GroupHandler) RemoveMember(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	targetID := c.Param("userId")
	view, err := h.service.RemoveMember(c.Request.Context(), userID, c.Param("id"), targetID)
	if err != nil {
		respondError(c, err)
		return
	}
	h.notifier.PublishGroupChange(c.Request.Context(), view, gateway.GroupMemberRemoved, targetID)
	c.JSON(http.StatusOK, httpdto.NewSuccessResponse(view))
}

func (h *GroupHandler) UpdateMemberRole(c *gin.Context) {
	var req httpdto.UpdateMemberRoleRequest
	if !bindJSON(c, &req) {
		return
	}
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	role := chat.Role(req.Role)
	if !role.Valid() {
		respondError(c, pulse_errors.Invalid("Invalid role"))
		return
	}
	targetID := c.Param("userId")
	view, err := h.service.UpdateMemberRole(c.Request.Context(), userID, c.Param("id"), targetID, role)
	if err != nil {
		respondError(c, err)
		return
	}
	h.notifier.PublishGroupChange(c.Request.Context(), view, gateway.GroupUpdated, targetID)
	c.JSON(http.StatusOK, httpdto.NewSuccessResponse(view))
}

func (h *GroupHandler) RegenerateInviteCode(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	view, err := h.service.RegenerateInviteCode(c.Request.Context(), userID, c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, httpdto.NewSuccessResponse(gin.H{
		"inviteCode": view.InviteCode,
		"inviteLink": view.InviteLink,
	}))
}
