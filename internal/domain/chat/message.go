package chat

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	pulse_errors "pulse-chat/pkg/errors"
)

const (
	MaxContentLength  = 5000
	MaxFileNameLength = 255
	previewLength     = 100
)

// Message is a single chat message. Exactly one of ReceiverID (private) and
// GroupID (group) is set.
type Message struct {
	ID              string         `gorm:"primaryKey;type:varchar(64)" json:"id"`
	Type            MessageType    `gorm:"type:varchar(16);not null" json:"type"`
	ChatType        SessionType    `gorm:"type:varchar(16);not null" json:"chatType"`
	ChatID          string         `gorm:"type:varchar(160);not null;index:idx_messages_chat_created,priority:1" json:"chatId"`
	SenderID        string         `gorm:"type:varchar(64);not null;index" json:"senderId"`
	ReceiverID      string         `gorm:"type:varchar(64)" json:"receiverId,omitempty"`
	GroupID         string         `gorm:"type:varchar(64);index" json:"groupId,omitempty"`
	Content         string         `gorm:"type:text" json:"content"`
	FileURL         string         `json:"fileUrl,omitempty"`
	FileName        string         `gorm:"type:varchar(255)" json:"fileName,omitempty"`
	FileSize        int64          `json:"fileSize,omitempty"`
	Status          MessageStatus  `gorm:"type:varchar(16);not null" json:"status"`
	ReplyToID       string         `gorm:"type:varchar(64)" json:"replyTo,omitempty"`
	ForwardedFromID string         `gorm:"type:varchar(64)" json:"forwardedFrom,omitempty"`
	Metadata        map[string]any `gorm:"serializer:json" json:"metadata,omitempty"`
	IsDeleted       bool           `gorm:"not null;index" json:"isDeleted"`
	DeletedAt       *time.Time     `json:"deletedAt,omitempty"`

	ReadBy      []Receipt `gorm:"foreignKey:MessageID" json:"readBy"`
	DeliveredTo []Receipt `gorm:"foreignKey:MessageID" json:"deliveredTo"`

	CreatedAt time.Time `gorm:"index:idx_messages_chat_created,priority:2" json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func (Message) TableName() string {
	return "messages"
}

type ReceiptKind string

const (
	ReceiptRead      ReceiptKind = "read"
	ReceiptDelivered ReceiptKind = "delivered"
)

// Receipt records that a user read or received a message. (MessageID, UserID,
// Kind) is unique, so repeated marks are no-ops.
type Receipt struct {
	MessageID string      `gorm:"primaryKey;type:varchar(64)" json:"-"`
	UserID    string      `gorm:"primaryKey;type:varchar(64)" json:"userId"`
	Kind      ReceiptKind `gorm:"primaryKey;type:varchar(16)" json:"-"`
	At        time.Time   `gorm:"not null" json:"at"`
}

func (Receipt) TableName() string {
	return "message_receipts"
}

// MessageInput is the client-supplied part of a new message.
type MessageInput struct {
	Type            MessageType
	Content         string
	FileURL         string
	FileName        string
	FileSize        int64
	ReplyToID       string
	ForwardedFromID string
	Metadata        map[string]any
}

func (in *MessageInput) Normalize() {
	if in.Type == "" {
		in.Type = MessageText
	}
	in.Content = strings.TrimSpace(in.Content)
	in.FileName = strings.TrimSpace(in.FileName)
}

func (in MessageInput) Validate() error {
	if !in.Type.Valid() {
		return pulse_errors.Invalid(fmt.Sprintf("Unsupported message type %q", in.Type))
	}
	if in.Type == MessageSystem {
		return pulse_errors.Invalid("System messages cannot be sent by users")
	}
	if utf8.RuneCountInString(in.Content) > MaxContentLength {
		return pulse_errors.Invalid(fmt.Sprintf("Message content cannot exceed %d characters", MaxContentLength))
	}
	if utf8.RuneCountInString(in.FileName) > MaxFileNameLength {
		return pulse_errors.Invalid(fmt.Sprintf("File name cannot exceed %d characters", MaxFileNameLength))
	}
	if in.FileSize < 0 {
		return pulse_errors.Invalid("File size cannot be negative")
	}
	if in.Type.HasAttachment() {
		if in.FileURL == "" {
			return pulse_errors.Invalid("File URL is required for attachments")
		}
		return nil
	}
	if in.Content == "" {
		return pulse_errors.Invalid("Message content is required")
	}
	return nil
}

func NewPrivateMessage(senderID, receiverID string, in MessageInput, now time.Time) (*Message, error) {
	if receiverID == "" {
		return nil, pulse_errors.Invalid("Receiver is required")
	}
	if senderID == receiverID {
		return nil, pulse_errors.Invalid("Cannot send a message to yourself")
	}
	m, err := newMessage(senderID, in, now)
	if err != nil {
		return nil, err
	}
	m.ChatType = SessionPrivate
	m.ReceiverID = receiverID
	m.ChatID = PrivateChatID(senderID, receiverID)
	return m, nil
}

func NewGroupMessage(senderID, groupID string, in MessageInput, now time.Time) (*Message, error) {
	if groupID == "" {
		return nil, pulse_errors.Invalid("Group is required")
	}
	m, err := newMessage(senderID, in, now)
	if err != nil {
		return nil, err
	}
	m.ChatType = SessionGroup
	m.GroupID = groupID
	m.ChatID = GroupChatID(groupID)
	return m, nil
}

func newMessage(senderID string, in MessageInput, now time.Time) (*Message, error) {
	if senderID == "" {
		return nil, pulse_errors.Invalid("Sender is required")
	}
	in.Normalize()
	if err := in.Validate(); err != nil {
		return nil, err
	}
	return &Message{
		ID:              NewID(),
		Type:            in.Type,
		SenderID:        senderID,
		Content:         in.Content,
		FileURL:         in.FileURL,
		FileName:        in.FileName,
		FileSize:        in.FileSize,
		Status:          StatusSent,
		ReplyToID:       in.ReplyToID,
		ForwardedFromID: in.ForwardedFromID,
		Metadata:        in.Metadata,
		CreatedAt:       now,
		UpdatedAt:       now,
	}, nil
}

// Recipients are the users a message is addressed to, given the session's
// current participants.
func (m *Message) Recipients(s *Session) []string {
	if m.ChatType == SessionPrivate {
		return []string{m.ReceiverID}
	}
	return s.OtherParticipants(m.SenderID)
}

func (m *Message) IsReadBy(userID string) bool {
	return hasReceipt(m.ReadBy, userID)
}

func (m *Message) IsDeliveredTo(userID string) bool {
	return hasReceipt(m.DeliveredTo, userID)
}

// MarkRead appends a read receipt unless one exists. Returns true if added.
func (m *Message) MarkRead(userID string, at time.Time) bool {
	if m.IsReadBy(userID) {
		return false
	}
	m.ReadBy = append(m.ReadBy, Receipt{MessageID: m.ID, UserID: userID, Kind: ReceiptRead, At: at})
	m.AdvanceStatus(StatusRead)
	return true
}

func (m *Message) MarkDelivered(userID string, at time.Time) bool {
	if m.IsDeliveredTo(userID) {
		return false
	}
	m.DeliveredTo = append(m.DeliveredTo, Receipt{MessageID: m.ID, UserID: userID, Kind: ReceiptDelivered, At: at})
	m.AdvanceStatus(StatusDelivered)
	return true
}

// AdvanceStatus moves the lifecycle forward only.
func (m *Message) AdvanceStatus(s MessageStatus) bool {
	if s.rank() <= m.Status.rank() {
		return false
	}
	m.Status = s
	return true
}

func (m *Message) SoftDelete(now time.Time) bool {
	if m.IsDeleted {
		return false
	}
	m.IsDeleted = true
	m.DeletedAt = &now
	m.UpdatedAt = now
	return true
}

// Preview is the short text shown in session lists.
func (m *Message) Preview() string {
	switch m.Type {
	case MessageImage:
		return "📷 Image"
	case MessageFile:
		if m.FileName != "" {
			return "📎 " + m.FileName
		}
		return "📎 File"
	case MessageText, MessageSystem:
		if utf8.RuneCountInString(m.Content) <= previewLength {
			return m.Content
		}
		return string([]rune(m.Content)[:previewLength]) + "…"
	default:
		return m.Content
	}
}

func (m *Message) FormattedFileSize() string {
	return FormatFileSize(m.FileSize)
}

func FormatFileSize(size int64) string {
	const unit = 1024
	switch {
	case size <= 0:
		return ""
	case size < unit:
		return fmt.Sprintf("%d B", size)
	case size < unit*unit:
		return fmt.Sprintf("%.1f KB", float64(size)/unit)
	case size < unit*unit*unit:
		return fmt.Sprintf("%.1f MB", float64(size)/(unit*unit))
	default:
		return fmt.Sprintf("%.1f GB", float64(size)/(unit*unit*unit))
	}
}

func hasReceipt(rs []Receipt, userID string) bool {
	for _, r := range rs {
		if r.UserID == userID {
			return true
		}
	}
	return false
}
