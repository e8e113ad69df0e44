package chat

import (
	"strings"

	"github.com/google/uuid"
)

const (
	privatePrefix = "private_"
	groupPrefix   = "group_"
)

// PrivateChatID is order independent: PrivateChatID(a, b) == PrivateChatID(b, a).
func PrivateChatID(a, b string) string {
	if b < a {
		a, b = b, a
	}
	return privatePrefix + a + "_" + b
}

func GroupChatID(groupID string) string {
	return groupPrefix + groupID
}

// GroupIDFromChatID extracts the group id from a group chat id.
func GroupIDFromChatID(chatID string) (string, bool) {
	if !strings.HasPrefix(chatID, groupPrefix) {
		return "", false
	}
	id := strings.TrimPrefix(chatID, groupPrefix)
	return id, id != ""
}

func NewID() string {
	return uuid.New().String()
}
