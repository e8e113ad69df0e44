package services

import (
	"context"
	"errors"
	"time"

	"pulse-chat/internal/domain/chat"
	"pulse-chat/internal/domain/user"
	"pulse-chat/internal/proxy"
	"pulse-chat/internal/repository"
	pulse_errors "pulse-chat/pkg/errors"
)

// ConversationService owns the chat session lifecycle: creation, membership,
// last-message snapshots and unread counters.
type ConversationService struct {
	store  repository.Store
	access *proxy.AccessControl
}

func NewConversationService(store repository.Store, access *proxy.AccessControl) *ConversationService {
	return &ConversationService{store: store, access: access}
}

// CreatePrivateSession finds or creates the session between a and b.
// Argument order does not matter.
func (s *ConversationService) CreatePrivateSession(ctx context.Context, a, b string) (chat.Session, error) {
	return createPrivateSession(ctx, s.store, a, b)
}

func createPrivateSession(ctx context.Context, store repository.Store, a, b string) (chat.Session, error) {
	session, err := chat.NewPrivateSession(a, b, time.Now())
	if err != nil {
		return chat.Session{}, err
	}
	return store.Sessions().UpsertPrivate(ctx, session)
}

// CreateGroupSession creates the session for g. It fails with a conflict if
// one already exists.
func (s *ConversationService) CreateGroupSession(ctx context.Context, g *chat.Group) (chat.Session, error) {
	session := chat.NewGroupSession(g, time.Now())
	if err := s.store.Sessions().Create(ctx, session); err != nil {
		return chat.Session{}, err
	}
	return *session, nil
}

func (s *ConversationService) AddParticipant(ctx context.Context, chatID, userID string, role chat.Role) (bool, error) {
	if !role.Valid() {
		return false, pulse_errors.Invalid("Invalid role")
	}
	return s.store.Sessions().AddParticipant(ctx, chatID, chat.Participant{UserID: userID, Role: role, JoinedAt: time.Now()})
}

func (s *ConversationService) RemoveParticipant(ctx context.Context, chatID, userID string) (bool, error) {
	return s.store.Sessions().RemoveParticipant(ctx, chatID, userID, time.Now())
}

func (s *ConversationService) UpdateLastMessage(ctx context.Context, chatID string, m *chat.Message) error {
	return s.store.Sessions().UpdateLastMessage(ctx, chatID, chat.SnapshotOf(m), time.Now())
}

func (s *ConversationService) IncrementUnreadCount(ctx context.Context, chatID string, userIDs ...string) error {
	return s.store.Sessions().IncrementUnread(ctx, chatID, userIDs)
}

func (s *ConversationService) ClearUnreadCount(ctx context.Context, chatID, userID string) error {
	return s.store.Sessions().ClearUnread(ctx, chatID, userID)
}

// GetSession returns the session if userID participates in it.
func (s *ConversationService) GetSession(ctx context.Context, chatID, userID string) (chat.Session, error) {
	session, err := s.store.Sessions().GetByChatID(ctx, chatID)
	if err != nil {
		return chat.Session{}, err
	}
	if err := s.access.CanViewChat(&session, userID); err != nil {
		return chat.Session{}, err
	}
	return session, nil
}

// CanJoinRoom re-validates membership against fresh state before a socket
// subscribes to a chat.
func (s *ConversationService) CanJoinRoom(ctx context.Context, chatID, userID string) error {
	_, err := s.GetSession(ctx, chatID, userID)
	return err
}

// SessionView is a session formatted for the caller's chat list.
type SessionView struct {
	chat.Session
	UnreadCount      int           `json:"unreadCount"`
	OtherParticipant *user.Summary `json:"otherParticipant,omitempty"`
	MemberCount      int           `json:"memberCount"`
}

func (s *ConversationService) ListSessions(ctx context.Context, userID string, includeArchived bool) ([]SessionView, error) {
	sessions, err := s.store.Sessions().ListForUser(ctx, userID, includeArchived)
	if err != nil {
		return nil, err
	}

	var others []string
	for i := range sessions {
		if other := sessions[i].Counterpart(userID); other != "" {
			others = append(others, other)
		}
	}
	users, err := s.store.Users().GetByIDs(ctx, others)
	if err != nil {
		return nil, err
	}
	byID := make(map[string]user.User, len(users))
	for _, u := range users {
		byID[u.ID] = u
	}

	views := make([]SessionView, 0, len(sessions))
	for i := range sessions {
		v := SessionView{
			Session:     sessions[i],
			UnreadCount: sessions[i].UnreadFor(userID),
			MemberCount: len(sessions[i].Participants),
		}
		if other := sessions[i].Counterpart(userID); other != "" {
			summary := user.Summary{ID: other}
			if u, ok := byID[other]; ok {
				summary = u.Summary()
			}
			v.OtherParticipant = &summary
			if v.Name == "" {
				v.Name = summary.DisplayName
				if v.Name == "" {
					v.Name = summary.Username
				}
				v.AvatarURL = summary.AvatarURL
			}
		}
		views = append(views, v)
	}
	return views, nil
}

// UpdateSettings changes the pinned/muted/archived flags of a session.
func (s *ConversationService) UpdateSettings(ctx context.Context, chatID, userID string, flags repository.SessionFlags) (chat.Session, error) {
	session, group, err := loadChat(ctx, s.store, chatID)
	if err != nil {
		return chat.Session{}, err
	}
	if err := s.access.CanUpdateSessionSettings(&session, group, userID, flags.IsMuted != nil); err != nil {
		return chat.Session{}, err
	}
	if err := s.store.Sessions().UpdateFlags(ctx, chatID, flags); err != nil {
		return chat.Session{}, err
	}
	return s.store.Sessions().GetByChatID(ctx, chatID)
}

// loadChat fetches a session and, for group sessions, its group.
func loadChat(ctx context.Context, store repository.Store, chatID string) (chat.Session, *chat.Group, error) {
	session, err := store.Sessions().GetByChatID(ctx, chatID)
	if err != nil {
		return chat.Session{}, nil, err
	}
	if session.Type != chat.SessionGroup {
		return session, nil, nil
	}
	groupID := session.Group.ID
	if groupID == "" {
		groupID, _ = chat.GroupIDFromChatID(chatID)
	}
	g, err := store.Groups().GetByID(ctx, groupID)
	if errors.Is(err, pulse_errors.ErrNotFound) {
		return chat.Session{}, nil, pulse_errors.NotFound("Group not found")
	}
	if err != nil {
		return chat.Session{}, nil, err
	}
	return session, &g, nil
}
