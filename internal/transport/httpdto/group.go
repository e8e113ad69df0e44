package httpdto

import "pulse-chat/internal/domain/chat"

// CreateGroupRequest is used for POST /v1/groups.
type CreateGroupRequest struct {
	Name        string              `json:"name" binding:"required"`
	Description string              `json:"description"`
	AvatarURL   string              `json:"avatarUrl"`
	Type        string              `json:"type"`
	MaxMembers  int                 `json:"maxMembers"`
	MemberIDs   []string            `json:"memberIds"`
	Settings    *chat.GroupSettings `json:"settings"`
	Tags        []string            `json:"tags"`
	Category    string              `json:"category"`
}

func (r CreateGroupRequest) Params() chat.GroupParams {
	return chat.GroupParams{
		Name:        r.Name,
		Description: r.Description,
		AvatarURL:   r.AvatarURL,
		Type:        chat.GroupType(r.Type),
		MaxMembers:  r.MaxMembers,
		MemberIDs:   r.MemberIDs,
		Settings:    r.Settings,
		Tags:        r.Tags,
		Category:    r.Category,
	}
}

// UpdateGroupRequest is used for PATCH /v1/groups/:id.
type UpdateGroupRequest struct {
	Name        *string             `json:"name"`
	Description *string             `json:"description"`
	AvatarURL   *string             `json:"avatarUrl"`
	Type        *string             `json:"type"`
	MaxMembers  *int                `json:"maxMembers"`
	Settings    *chat.GroupSettings `json:"settings"`
	Tags        []string            `json:"tags"`
	Category    *string             `json:"category"`
}

type AddMemberRequest struct {
	UserID string `json:"userId" binding:"required"`
}

type UpdateMemberRoleRequest struct {
	Role string `json:"role" binding:"required"`
}
