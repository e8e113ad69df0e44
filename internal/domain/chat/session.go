package chat

import (
	"time"

	pulse_errors "pulse-chat/pkg/errors"
)

// Session is the per-pair or per-group conversation record. ChatID is the join
// key used by messages and socket rooms.
type Session struct {
	ID           string      `gorm:"primaryKey;type:varchar(64)" json:"id"`
	ChatID       string      `gorm:"uniqueIndex;type:varchar(160);not null" json:"chatId"`
	Type         SessionType `gorm:"type:varchar(16);not null" json:"type"`
	Name         string      `gorm:"type:varchar(100)" json:"name,omitempty"`
	AvatarURL    string      `json:"avatarUrl,omitempty"`
	Description  string      `gorm:"type:varchar(500)" json:"description,omitempty"`
	LastMessage  LastMessage `gorm:"embedded;embeddedPrefix:last_message_" json:"lastMessage"`
	LastActivity time.Time   `gorm:"index" json:"lastActivity"`
	IsPinned     bool        `json:"isPinned"`
	IsMuted      bool        `json:"isMuted"`
	IsArchived   bool        `json:"isArchived"`
	Group        GroupInfo   `gorm:"embedded;embeddedPrefix:group_" json:"groupInfo"`

	Participants []Participant `gorm:"foreignKey:ChatID;references:ChatID" json:"participants"`
	UnreadCounts []UnreadCount `gorm:"foreignKey:ChatID;references:ChatID" json:"-"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func (Session) TableName() string {
	return "chat_sessions"
}

// LastMessage is a denormalized snapshot of the latest message in a session.
type LastMessage struct {
	ID       string      `gorm:"type:varchar(64)" json:"id,omitempty"`
	Content  string      `gorm:"type:text" json:"content,omitempty"`
	Type     MessageType `gorm:"type:varchar(16)" json:"type,omitempty"`
	SenderID string      `gorm:"type:varchar(64)" json:"senderId,omitempty"`
	At       *time.Time  `json:"timestamp,omitempty"`
}

// GroupInfo mirrors the owning group on group sessions. Zero on private ones.
type GroupInfo struct {
	ID         string `gorm:"type:varchar(64);index" json:"groupId,omitempty"`
	CreatorID  string `gorm:"type:varchar(64)" json:"creatorId,omitempty"`
	MaxMembers int    `json:"maxMembers,omitempty"`
	IsPublic   bool   `json:"isPublic"`
	InviteCode string `gorm:"type:varchar(32)" json:"inviteCode,omitempty"`
}

type Participant struct {
	ChatID   string     `gorm:"primaryKey;type:varchar(160)" json:"-"`
	UserID   string     `gorm:"primaryKey;type:varchar(64);index" json:"userId"`
	Role     Role       `gorm:"type:varchar(16);not null" json:"role"`
	JoinedAt time.Time  `json:"joinedAt"`
	LastSeen *time.Time `json:"lastSeen,omitempty"`
}

func (Participant) TableName() string {
	return "chat_participants"
}

type UnreadCount struct {
	ChatID string `gorm:"primaryKey;type:varchar(160)"`
	UserID string `gorm:"primaryKey;type:varchar(64)"`
	Count  int    `gorm:"not null"`
}

func (UnreadCount) TableName() string {
	return "chat_unread_counts"
}

func NewPrivateSession(a, b string, now time.Time) (*Session, error) {
	if a == "" || b == "" {
		return nil, pulse_errors.Invalid("Both participants are required")
	}
	if a == b {
		return nil, pulse_errors.Invalid("Cannot start a chat with yourself")
	}
	s := &Session{
		ID:           NewID(),
		ChatID:       PrivateChatID(a, b),
		Type:         SessionPrivate,
		LastActivity: now,
	}
	s.AddParticipant(a, RoleMember, now)
	s.AddParticipant(b, RoleMember, now)
	return s, nil
}

// NewGroupSession builds the session for a group from its active members.
func NewGroupSession(g *Group, now time.Time) *Session {
	s := &Session{
		ID:           NewID(),
		ChatID:       GroupChatID(g.ID),
		Type:         SessionGroup,
		Name:         g.Name,
		AvatarURL:    g.AvatarURL,
		Description:  g.Description,
		LastActivity: now,
		Group: GroupInfo{
			ID:         g.ID,
			CreatorID:  g.CreatorID,
			MaxMembers: g.MaxMembers,
			IsPublic:   g.Type == GroupPublic,
			InviteCode: g.InviteCode,
		},
	}
	for _, m := range g.Members {
		if m.IsActive {
			s.AddParticipant(m.UserID, m.Role, now)
		}
	}
	return s
}

func (s *Session) Participant(userID string) (*Participant, bool) {
	for i := range s.Participants {
		if s.Participants[i].UserID == userID {
			return &s.Participants[i], true
		}
	}
	return nil, false
}

func (s *Session) IsParticipant(userID string) bool {
	_, ok := s.Participant(userID)
	return ok
}

func (s *Session) ParticipantIDs() []string {
	ids := make([]string, 0, len(s.Participants))
	for _, p := range s.Participants {
		ids = append(ids, p.UserID)
	}
	return ids
}

// OtherParticipants returns every participant except userID.
func (s *Session) OtherParticipants(userID string) []string {
	ids := make([]string, 0, len(s.Participants))
	for _, p := range s.Participants {
		if p.UserID != userID {
			ids = append(ids, p.UserID)
		}
	}
	return ids
}

// Counterpart is the other side of a private session.
func (s *Session) Counterpart(userID string) string {
	if s.Type != SessionPrivate {
		return ""
	}
	for _, p := range s.Participants {
		if p.UserID != userID {
			return p.UserID
		}
	}
	return ""
}

// Admins lists participants holding the admin or creator role.
func (s *Session) Admins() []string {
	var ids []string
	for _, p := range s.Participants {
		if p.Role.AtLeast(RoleAdmin) {
			ids = append(ids, p.UserID)
		}
	}
	return ids
}

// AddParticipant adds userID with a zeroed unread counter. Returns false when
// already present.
func (s *Session) AddParticipant(userID string, role Role, now time.Time) bool {
	if s.IsParticipant(userID) {
		return false
	}
	if !role.Valid() {
		role = RoleMember
	}
	s.Participants = append(s.Participants, Participant{ChatID: s.ChatID, UserID: userID, Role: role, JoinedAt: now})
	s.setUnread(userID, 0)
	s.LastActivity = now
	return true
}

// RemoveParticipant drops the participant and its unread counter together.
func (s *Session) RemoveParticipant(userID string, now time.Time) bool {
	idx := -1
	for i, p := range s.Participants {
		if p.UserID == userID {
			idx = i
			break
		}
	}
	if idx < 0 {
		return false
	}
	s.Participants = append(s.Participants[:idx], s.Participants[idx+1:]...)
	for i, u := range s.UnreadCounts {
		if u.UserID == userID {
			s.UnreadCounts = append(s.UnreadCounts[:i], s.UnreadCounts[i+1:]...)
			break
		}
	}
	s.LastActivity = now
	return true
}

func (s *Session) UnreadFor(userID string) int {
	for _, u := range s.UnreadCounts {
		if u.UserID == userID {
			return u.Count
		}
	}
	return 0
}

// UnreadMap returns the userId -> count mapping.
func (s *Session) UnreadMap() map[string]int {
	m := make(map[string]int, len(s.UnreadCounts))
	for _, u := range s.UnreadCounts {
		m[u.UserID] = u.Count
	}
	return m
}

func (s *Session) IncrementUnread(userID string) {
	for i := range s.UnreadCounts {
		if s.UnreadCounts[i].UserID == userID {
			s.UnreadCounts[i].Count++
			return
		}
	}
	s.UnreadCounts = append(s.UnreadCounts, UnreadCount{ChatID: s.ChatID, UserID: userID, Count: 1})
}

func (s *Session) ClearUnread(userID string) {
	s.setUnread(userID, 0)
}

func (s *Session) setUnread(userID string, n int) {
	for i := range s.UnreadCounts {
		if s.UnreadCounts[i].UserID == userID {
			s.UnreadCounts[i].Count = n
			return
		}
	}
	s.UnreadCounts = append(s.UnreadCounts, UnreadCount{ChatID: s.ChatID, UserID: userID, Count: n})
}

func (s *Session) UpdateLastMessage(m *Message, now time.Time) {
	s.LastMessage = SnapshotOf(m)
	s.LastActivity = now
}

func SnapshotOf(m *Message) LastMessage {
	if m == nil {
		return LastMessage{}
	}
	at := m.CreatedAt
	return LastMessage{
		ID:       m.ID,
		Content:  m.Preview(),
		Type:     m.Type,
		SenderID: m.SenderID,
		At:       &at,
	}
}

// HasPermission evaluates session-level permissions. A muted session blocks
// sending for everyone, the creator included.
func (s *Session) HasPermission(userID string, perm Permission) bool {
	p, ok := s.Participant(userID)
	if !ok {
		return false
	}
	switch perm {
	case PermSendMessage:
		return !s.IsMuted
	case PermViewMembers:
		return true
	case PermManageMembers, PermInviteMembers:
		if s.Type == SessionPrivate {
			return false
		}
		return p.Role.AtLeast(RoleAdmin)
	case PermManageGroup:
		if s.Type == SessionPrivate {
			return false
		}
		return p.Role == RoleCreator
	default:
		return false
	}
}

// SetRole updates a participant's role in place.
func (s *Session) SetRole(userID string, role Role) bool {
	p, ok := s.Participant(userID)
	if !ok || !role.Valid() {
		return false
	}
	p.Role = role
	return true
}
