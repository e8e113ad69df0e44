package repository

import (
	"context"
	"time"

	"pulse-chat/internal/domain/chat"
	"pulse-chat/internal/domain/user"
)

type SessionRepository interface {
	// Create inserts a new session with its participants. Fails with
	// ErrConflict when the chat id is taken.
	Create(ctx context.Context, s *chat.Session) error
	// UpsertPrivate inserts s unless its chat id exists, then returns the
	// stored session. Concurrent callers converge on one record.
	UpsertPrivate(ctx context.Context, s *chat.Session) (chat.Session, error)
	GetByChatID(ctx context.Context, chatID string) (chat.Session, error)
	ListForUser(ctx context.Context, userID string, includeArchived bool) ([]chat.Session, error)

	AddParticipant(ctx context.Context, chatID string, p chat.Participant) (bool, error)
	RemoveParticipant(ctx context.Context, chatID, userID string, at time.Time) (bool, error)
	SetParticipantRole(ctx context.Context, chatID, userID string, role chat.Role) error

	UpdateLastMessage(ctx context.Context, chatID string, snapshot chat.LastMessage, at time.Time) error
	IncrementUnread(ctx context.Context, chatID string, userIDs []string) error
	ClearUnread(ctx context.Context, chatID, userID string) error

	UpdateFlags(ctx context.Context, chatID string, flags SessionFlags) error
	UpdateGroupProfile(ctx context.Context, chatID string, g *chat.Group) error
}

// SessionFlags holds optional updates to the pinned/muted/archived flags.
type SessionFlags struct {
	IsPinned   *bool
	IsMuted    *bool
	IsArchived *bool
}

type MessageRepository interface {
	Create(ctx context.Context, m *chat.Message) error
	GetByID(ctx context.Context, id string) (chat.Message, error)
	// ListByChat returns a page of messages newest first.
	ListByChat(ctx context.Context, chatID string, page, limit int) ([]chat.Message, int64, error)
	Search(ctx context.Context, chatID, query string, limit int) ([]chat.Message, error)
	Latest(ctx context.Context, chatID string) (chat.Message, error)
	// UnreadBy lists ids of messages in chatID not sent by userID and not yet read by them.
	UnreadBy(ctx context.Context, chatID, userID string, limit int) ([]string, error)

	AddReceipt(ctx context.Context, r chat.Receipt) (bool, error)
	AdvanceStatus(ctx context.Context, id string, status chat.MessageStatus) error
	SoftDelete(ctx context.Context, id string, at time.Time) error
}

type GroupQuery struct {
	Text     string
	Tag      string
	Category string
	Page     int
	Limit    int
}

type GroupRepository interface {
	Create(ctx context.Context, g *chat.Group) error
	GetByID(ctx context.Context, id string) (chat.Group, error)
	// GetByIDForUpdate loads the group and holds its row lock until the
	// surrounding transaction ends.
	GetByIDForUpdate(ctx context.Context, id string) (chat.Group, error)
	GetByInviteCode(ctx context.Context, code string) (chat.Group, error)
	ListForUser(ctx context.Context, userID string) ([]chat.Group, error)
	// Search only ever returns public groups.
	Search(ctx context.Context, q GroupQuery) ([]chat.Group, int64, error)

	UpdateProfile(ctx context.Context, g *chat.Group) error
	UpdateInviteCode(ctx context.Context, groupID, code, link string) error
	UpsertMember(ctx context.Context, m chat.Member) error
	DeactivateMember(ctx context.Context, groupID, userID string) (bool, error)
	UpdateMemberRole(ctx context.Context, groupID, userID string, role chat.Role) error
	TouchMember(ctx context.Context, groupID, userID string, at time.Time) error
	IncrementMessageCount(ctx context.Context, groupID string) error
}

type UserRepository interface {
	GetByID(ctx context.Context, id string) (user.User, error)
	GetByIDs(ctx context.Context, ids []string) ([]user.User, error)
	Save(ctx context.Context, u *user.User) error
	SetPresence(ctx context.Context, id string, online bool, lastSeen time.Time) error
}

// Store groups the repositories that make up the conversation store.
type Store interface {
	Sessions() SessionRepository
	Messages() MessageRepository
	Groups() GroupRepository
	Users() UserRepository
	// WithinTx runs fn against a store bound to one transaction.
	WithinTx(ctx context.Context, fn func(Store) error) error
}
