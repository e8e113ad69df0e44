package chat

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"strings"
	"time"
	"unicode/utf8"

	pulse_errors "pulse-chat/pkg/errors"
)

const (
	MinGroupMembers      = 2
	MaxGroupMembers      = 1000
	DefaultGroupMembers  = 100
	MaxGroupNameLength   = 100
	MaxGroupDescLength   = 500
	InviteCodeLength     = 8
	activeMemberInterval = 30 * 24 * time.Hour
)

// Group is the configuration and membership record behind a group session.
// Admins are derived from member roles, so the creator is always one of them.
type Group struct {
	ID           string        `gorm:"primaryKey;type:varchar(64)" json:"id"`
	Name         string        `gorm:"type:varchar(100);not null" json:"name"`
	Description  string        `gorm:"type:varchar(500)" json:"description,omitempty"`
	AvatarURL    string        `json:"avatarUrl,omitempty"`
	CreatorID    string        `gorm:"type:varchar(64);not null;index" json:"creatorId"`
	Type         GroupType     `gorm:"type:varchar(16);not null;index" json:"type"`
	MaxMembers   int           `gorm:"not null" json:"maxMembers"`
	InviteCode   string        `gorm:"type:varchar(32);uniqueIndex" json:"inviteCode,omitempty"`
	InviteLink   string        `json:"inviteLink,omitempty"`
	Settings     GroupSettings `gorm:"embedded;embeddedPrefix:setting_" json:"settings"`
	Tags         []string      `gorm:"serializer:json" json:"tags,omitempty"`
	Category     string        `gorm:"type:varchar(50);index" json:"category,omitempty"`
	MessageCount int64         `gorm:"not null" json:"messageCount"`

	Members []Member `gorm:"foreignKey:GroupID" json:"members,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func (Group) TableName() string {
	return "groups"
}

type GroupSettings struct {
	AllowMemberInvite  bool `json:"allowMemberInvite"`
	AllowMemberView    bool `json:"allowMemberView"`
	AllowMemberMessage bool `json:"allowMemberMessage"`
	AllowMemberMedia   bool `json:"allowMemberMedia"`
	AllowMemberEdit    bool `json:"allowMemberEdit"`
	RequireApproval    bool `json:"requireApproval"`
	EnableModeration   bool `json:"enableModeration"`
}

func DefaultGroupSettings() GroupSettings {
	return GroupSettings{
		AllowMemberView:    true,
		AllowMemberMessage: true,
		AllowMemberMedia:   true,
	}
}

type Member struct {
	GroupID  string    `gorm:"primaryKey;type:varchar(64)" json:"-"`
	UserID   string    `gorm:"primaryKey;type:varchar(64);index" json:"userId"`
	Role     Role      `gorm:"type:varchar(16);not null" json:"role"`
	JoinedAt time.Time `json:"joinedAt"`
	LastSeen time.Time `json:"lastSeen"`
	IsActive bool      `gorm:"not null;index" json:"isActive"`
}

func (Member) TableName() string {
	return "group_members"
}

// GroupParams are the caller-supplied fields of a new group.
type GroupParams struct {
	Name        string
	Description string
	AvatarURL   string
	Type        GroupType
	MaxMembers  int
	MemberIDs   []string
	Settings    *GroupSettings
	Tags        []string
	Category    string
}

func (p *GroupParams) Normalize() {
	p.Name = strings.TrimSpace(p.Name)
	p.Description = strings.TrimSpace(p.Description)
	p.Category = strings.TrimSpace(p.Category)
	if p.Type == "" {
		p.Type = GroupPublic
	}
	if p.MaxMembers == 0 {
		p.MaxMembers = DefaultGroupMembers
	}
}

func (p GroupParams) Validate() error {
	if err := ValidateGroupName(p.Name); err != nil {
		return err
	}
	if utf8.RuneCountInString(p.Description) > MaxGroupDescLength {
		return pulse_errors.Invalid(fmt.Sprintf("Group description cannot exceed %d characters", MaxGroupDescLength))
	}
	if !p.Type.Valid() {
		return pulse_errors.Invalid(fmt.Sprintf("Unsupported group type %q", p.Type))
	}
	if p.MaxMembers < MinGroupMembers || p.MaxMembers > MaxGroupMembers {
		return pulse_errors.Invalid(fmt.Sprintf("Max members must be between %d and %d", MinGroupMembers, MaxGroupMembers))
	}
	return nil
}

func ValidateGroupName(name string) error {
	if name == "" {
		return pulse_errors.Invalid("Group name is required")
	}
	if utf8.RuneCountInString(name) > MaxGroupNameLength {
		return pulse_errors.Invalid(fmt.Sprintf("Group name cannot exceed %d characters", MaxGroupNameLength))
	}
	return nil
}

// NewGroup builds a group with creatorID as creator and MemberIDs as members.
// inviteBase is prefixed to the invite code to form the invite link.
func NewGroup(creatorID string, p GroupParams, inviteBase string, now time.Time) (*Group, error) {
	if creatorID == "" {
		return nil, pulse_errors.Invalid("Creator is required")
	}
	p.Normalize()
	if err := p.Validate(); err != nil {
		return nil, err
	}
	settings := DefaultGroupSettings()
	if p.Settings != nil {
		settings = *p.Settings
	}
	g := &Group{
		ID:          NewID(),
		Name:        p.Name,
		Description: p.Description,
		AvatarURL:   p.AvatarURL,
		CreatorID:   creatorID,
		Type:        p.Type,
		MaxMembers:  p.MaxMembers,
		Settings:    settings,
		Tags:        p.Tags,
		Category:    p.Category,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := g.RegenerateInviteCode(inviteBase); err != nil {
		return nil, err
	}
	g.AddMember(creatorID, RoleCreator, now)
	for _, id := range p.MemberIDs {
		if id == "" || id == creatorID || g.IsActiveMember(id) {
			continue
		}
		if g.IsFull() {
			return nil, pulse_errors.Forbidden("Group is full")
		}
		g.AddMember(id, RoleMember, now)
	}
	return g, nil
}

func (g *Group) ChatID() string {
	return GroupChatID(g.ID)
}

func (g *Group) Member(userID string) (*Member, bool) {
	for i := range g.Members {
		if g.Members[i].UserID == userID {
			return &g.Members[i], true
		}
	}
	return nil, false
}

func (g *Group) IsActiveMember(userID string) bool {
	m, ok := g.Member(userID)
	return ok && m.IsActive
}

// RoleOf returns the role of an active member.
func (g *Group) RoleOf(userID string) (Role, bool) {
	m, ok := g.Member(userID)
	if !ok || !m.IsActive {
		return "", false
	}
	return m.Role, true
}

func (g *Group) Admins() []string {
	var ids []string
	for _, m := range g.Members {
		if m.IsActive && m.Role.AtLeast(RoleAdmin) {
			ids = append(ids, m.UserID)
		}
	}
	return ids
}

func (g *Group) ActiveMemberIDs() []string {
	ids := make([]string, 0, len(g.Members))
	for _, m := range g.Members {
		if m.IsActive {
			ids = append(ids, m.UserID)
		}
	}
	return ids
}

// MemberCount is the number of active members.
func (g *Group) MemberCount() int {
	n := 0
	for _, m := range g.Members {
		if m.IsActive {
			n++
		}
	}
	return n
}

// ActiveMemberCount counts active members seen within the last 30 days.
func (g *Group) ActiveMemberCount(now time.Time) int {
	n := 0
	cutoff := now.Add(-activeMemberInterval)
	for _, m := range g.Members {
		if m.IsActive && m.LastSeen.After(cutoff) {
			n++
		}
	}
	return n
}

func (g *Group) IsFull() bool {
	return g.MemberCount() >= g.MaxMembers
}

// AddMember adds or reactivates a member. Returns false if already active.
func (g *Group) AddMember(userID string, role Role, now time.Time) bool {
	if !role.Valid() {
		role = RoleMember
	}
	if m, ok := g.Member(userID); ok {
		if m.IsActive {
			return false
		}
		m.IsActive = true
		m.Role = role
		m.JoinedAt = now
		m.LastSeen = now
		return true
	}
	g.Members = append(g.Members, Member{
		GroupID:  g.ID,
		UserID:   userID,
		Role:     role,
		JoinedAt: now,
		LastSeen: now,
		IsActive: true,
	})
	return true
}

// RemoveMember deactivates a member. The creator is never removed.
func (g *Group) RemoveMember(userID string) bool {
	m, ok := g.Member(userID)
	if !ok || !m.IsActive || m.Role == RoleCreator {
		return false
	}
	m.IsActive = false
	return true
}

func (g *Group) Touch(userID string, now time.Time) {
	if m, ok := g.Member(userID); ok && m.IsActive {
		m.LastSeen = now
	}
}

// HasPermission evaluates group-level permissions for an active member.
func (g *Group) HasPermission(userID string, perm Permission) bool {
	role, ok := g.RoleOf(userID)
	if !ok {
		return false
	}
	elevated := role.AtLeast(RoleAdmin)
	switch perm {
	case PermSendMessage:
		return g.Settings.AllowMemberMessage || elevated
	case PermManageMembers:
		return elevated
	case PermManageGroup:
		return role == RoleCreator
	case PermInviteMembers:
		return g.Settings.AllowMemberInvite || elevated
	case PermViewMembers:
		return g.Settings.AllowMemberView || elevated
	default:
		return false
	}
}

// CanPostAttachment reports whether userID may send image or file messages.
func (g *Group) CanPostAttachment(userID string) bool {
	role, ok := g.RoleOf(userID)
	if !ok {
		return false
	}
	return g.Settings.AllowMemberMedia || role.AtLeast(RoleAdmin)
}

func (g *Group) RegenerateInviteCode(inviteBase string) error {
	code, err := GenerateInviteCode()
	if err != nil {
		return err
	}
	g.InviteCode = code
	g.InviteLink = strings.TrimRight(inviteBase, "/") + "/" + code
	return nil
}

const inviteAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZabcdefghijkmnopqrstuvwxyz23456789"

func GenerateInviteCode() (string, error) {
	var sb strings.Builder
	max := big.NewInt(int64(len(inviteAlphabet)))
	for i := 0; i < InviteCodeLength; i++ {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		sb.WriteByte(inviteAlphabet[n.Int64()])
	}
	return sb.String(), nil
}
