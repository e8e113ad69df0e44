package chat

// SessionType distinguishes one-to-one sessions from group sessions.
type SessionType string

const (
	SessionPrivate SessionType = "private"
	SessionGroup   SessionType = "group"
)

func (t SessionType) Valid() bool {
	switch t {
	case SessionPrivate, SessionGroup:
		return true
	default:
		return false
	}
}

type MessageType string

const (
	MessageText   MessageType = "text"
	MessageImage  MessageType = "image"
	MessageFile   MessageType = "file"
	MessageSystem MessageType = "system"
)

func (t MessageType) Valid() bool {
	switch t {
	case MessageText, MessageImage, MessageFile, MessageSystem:
		return true
	default:
		return false
	}
}

// HasAttachment reports whether messages of this type carry a file reference
// instead of text content.
func (t MessageType) HasAttachment() bool {
	switch t {
	case MessageImage, MessageFile:
		return true
	case MessageText, MessageSystem:
		return false
	default:
		return false
	}
}

type MessageStatus string

const (
	StatusSending   MessageStatus = "sending"
	StatusSent      MessageStatus = "sent"
	StatusDelivered MessageStatus = "delivered"
	StatusRead      MessageStatus = "read"
	StatusFailed    MessageStatus = "failed"
)

func (s MessageStatus) Valid() bool {
	return s.rank() > 0
}

func (s MessageStatus) rank() int {
	switch s {
	case StatusFailed:
		return 1
	case StatusSending:
		return 2
	case StatusSent:
		return 3
	case StatusDelivered:
		return 4
	case StatusRead:
		return 5
	default:
		return 0
	}
}

// Role is a participant's standing inside a session or group.
type Role string

const (
	RoleMember  Role = "member"
	RoleAdmin   Role = "admin"
	RoleCreator Role = "creator"
)

func (r Role) Valid() bool {
	return r.rank() > 0
}

func (r Role) rank() int {
	switch r {
	case RoleMember:
		return 1
	case RoleAdmin:
		return 2
	case RoleCreator:
		return 3
	default:
		return 0
	}
}

// AtLeast reports whether r ranks at or above min (member < admin < creator).
func (r Role) AtLeast(min Role) bool {
	return r.rank() >= min.rank() && r.rank() > 0
}

type GroupType string

const (
	GroupPublic  GroupType = "public"
	GroupPrivate GroupType = "private"
	GroupSecret  GroupType = "secret"
)

func (t GroupType) Valid() bool {
	switch t {
	case GroupPublic, GroupPrivate, GroupSecret:
		return true
	default:
		return false
	}
}

type Permission string

const (
	PermSendMessage   Permission = "send_message"
	PermManageMembers Permission = "manage_members"
	PermManageGroup   Permission = "manage_group"
	PermInviteMembers Permission = "invite_members"
	PermViewMembers   Permission = "view_members"
)

func (p Permission) Valid() bool {
	switch p {
	case PermSendMessage, PermManageMembers, PermManageGroup, PermInviteMembers, PermViewMembers:
		return true
	default:
		return false
	}
}

// ParsePermission converts wire input into a Permission. Unknown names are rejected.
func ParsePermission(s string) (Permission, bool) {
	p := Permission(s)
	return p, p.Valid()
}

// StatusesBelow lists the statuses a message may advance from to reach s.
func StatusesBelow(s MessageStatus) []MessageStatus {
	var out []MessageStatus
	for _, c := range []MessageStatus{StatusSending, StatusSent, StatusDelivered, StatusRead} {
		if c.rank() < s.rank() {
			out = append(out, c)
		}
	}
	return out
}
