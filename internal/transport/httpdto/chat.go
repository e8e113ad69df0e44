package httpdto

// UpdateChatSettingsRequest is used for PATCH /v1/chats/:chatId/settings.
// Absent fields are left unchanged.
type UpdateChatSettingsRequest struct {
	IsPinned   *bool `json:"isPinned"`
	IsMuted    *bool `json:"isMuted"`
	IsArchived *bool `json:"isArchived"`
}
