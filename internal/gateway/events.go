package gateway

import (
	"encoding/json"
	"time"

	"pulse-chat/internal/domain/chat"
)

// Client -> server events.
const (
	EventJoinChat    = "join_chat"
	EventJoinRoom    = "join_room"
	EventLeaveChat   = "leave_chat"
	EventLeaveRoom   = "leave_room"
	EventSendMessage = "send_message"
	EventTypingStart = "typing_start"
	EventTypingStop  = "typing_stop"
	EventMarkRead    = "mark_read"
	EventCreateGroup = "create_group"
	EventJoinGroup   = "join_group"
	EventLeaveGroup  = "leave_group"
	EventPing        = "ping"
)

// Server -> client events.
const (
	EventNewMessage        = "new_message"
	EventMessageStatus     = "message_status"
	EventMessageDeleted    = "message_deleted"
	EventUserTyping        = "user_typing"
	EventUserStoppedTyping = "user_stopped_typing"
	EventUserOnline        = "user_online"
	EventUserOffline       = "user_offline"
	EventJoinedChat        = "joined_chat"
	EventLeftChat          = "left_chat"
	EventGroupUpdated      = "group_updated"
	EventError             = "error"
	EventPong              = "pong"
)

// Group change actions carried by group_updated.
const (
	GroupCreated       = "created"
	GroupJoined        = "joined"
	GroupLeft          = "left"
	GroupMemberAdded   = "member_added"
	GroupMemberRemoved = "member_removed"
	GroupUpdated       = "updated"
)

// Envelope is the frame exchanged over the plain websocket transport.
type Envelope struct {
	Type      string          `json:"type"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
}

type chatRequest struct {
	ChatID     string `json:"chatId"`
	ReceiverID string `json:"receiverId,omitempty"`
}

type sendMessageRequest struct {
	ChatID          string           `json:"chatId"`
	ReceiverID      string           `json:"receiverId,omitempty"`
	GroupID         string           `json:"groupId,omitempty"`
	Type            chat.MessageType `json:"type"`
	Content         string           `json:"content"`
	FileURL         string           `json:"fileUrl,omitempty"`
	FileName        string           `json:"fileName,omitempty"`
	FileSize        int64            `json:"fileSize,omitempty"`
	ReplyTo         string           `json:"replyTo,omitempty"`
	ForwardedFrom   string           `json:"forwardedFrom,omitempty"`
	Metadata        map[string]any   `json:"metadata,omitempty"`
	ClientMessageID string           `json:"tempId,omitempty"`
}

func (r sendMessageRequest) input() chat.MessageInput {
	return chat.MessageInput{
		Type:            r.Type,
		Content:         r.Content,
		FileURL:         r.FileURL,
		FileName:        r.FileName,
		FileSize:        r.FileSize,
		ReplyToID:       r.ReplyTo,
		ForwardedFromID: r.ForwardedFrom,
		Metadata:        r.Metadata,
	}
}

type markReadRequest struct {
	ChatID    string `json:"chatId"`
	MessageID string `json:"messageId,omitempty"`
}

type createGroupRequest struct {
	Name        string              `json:"name"`
	Description string              `json:"description,omitempty"`
	AvatarURL   string              `json:"avatarUrl,omitempty"`
	Type        chat.GroupType      `json:"type,omitempty"`
	MaxMembers  int                 `json:"maxMembers,omitempty"`
	MemberIDs   []string            `json:"memberIds,omitempty"`
	Settings    *chat.GroupSettings `json:"settings,omitempty"`
	Tags        []string            `json:"tags,omitempty"`
	Category    string              `json:"category,omitempty"`
}

type groupRequest struct {
	GroupID    string `json:"groupId"`
	InviteCode string `json:"inviteCode,omitempty"`
}

type NewMessagePayload struct {
	ChatID  string       `json:"chatId"`
	Message chat.Message `json:"message"`
	TempID  string       `json:"tempId,omitempty"`
}

type MessageStatusPayload struct {
	ChatID      string             `json:"chatId"`
	MessageID   string             `json:"messageId"`
	Status      chat.MessageStatus `json:"status"`
	DeliveredTo []string           `json:"deliveredTo,omitempty"`
	ReadBy      string             `json:"readBy,omitempty"`
}

type MessageDeletedPayload struct {
	ChatID    string `json:"chatId"`
	MessageID string `json:"messageId"`
}

type TypingPayload struct {
	ChatID   string `json:"chatId"`
	UserID   string `json:"userId"`
	Username string `json:"username"`
}

type PresencePayload struct {
	UserID    string    `json:"userId"`
	Timestamp time.Time `json:"timestamp"`
}

type RoomPayload struct {
	ChatID string `json:"chatId"`
}

type GroupChangePayload struct {
	ChatID  string `json:"chatId"`
	GroupID string `json:"groupId"`
	Action  string `json:"action"`
	UserID  string `json:"userId,omitempty"`
	Group   any    `json:"group,omitempty"`
}

type ErrorPayload struct {
	Event   string `json:"event,omitempty"`
	Message string `json:"message"`
	Code    string `json:"code"`
}
