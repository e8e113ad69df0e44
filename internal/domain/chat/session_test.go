package chat

import (
	"errors"
	"testing"
	"time"

	pulse_errors "pulse-chat/pkg/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var now = time.Date(2026, 1, 10, 12, 0, 0, 0, time.UTC)

func TestPrivateChatIDIsOrderIndependent(t *testing.T) {
	assert.Equal(t, "private_1_2", PrivateChatID("1", "2"))
	assert.Equal(t, "private_1_2", PrivateChatID("2", "1"))
	assert.Equal(t, "group_g1", GroupChatID("g1"))

	id, ok := GroupIDFromChatID("group_g1")
	assert.True(t, ok)
	assert.Equal(t, "g1", id)

	_, ok = GroupIDFromChatID("private_1_2")
	assert.False(t, ok)
}

func TestNewPrivateSession(t *testing.T) {
	s, err := NewPrivateSession("2", "1", now)
	require.NoError(t, err)

	assert.Equal(t, "private_1_2", s.ChatID)
	assert.Equal(t, SessionPrivate, s.Type)
	assert.ElementsMatch(t, []string{"1", "2"}, s.ParticipantIDs())
	assert.Equal(t, map[string]int{"1": 0, "2": 0}, s.UnreadMap())
	assert.Equal(t, "1", s.Counterpart("2"))

	_, err = NewPrivateSession("1", "1", now)
	assert.True(t, errors.Is(err, pulse_errors.ErrInvalidInput))
}

func TestParticipantsAndUnreadCountsStayInStep(t *testing.T) {
	s, err := NewPrivateSession("1", "2", now)
	require.NoError(t, err)

	assert.False(t, s.AddParticipant("1", RoleMember, now))
	assert.True(t, s.AddParticipant("3", RoleMember, now.Add(time.Minute)))
	assert.Equal(t, now.Add(time.Minute), s.LastActivity)
	assert.Len(t, s.Participants, 3)
	assert.Len(t, s.UnreadCounts, 3)

	assert.True(t, s.RemoveParticipant("3", now.Add(2*time.Minute)))
	assert.False(t, s.RemoveParticipant("3", now))
	assert.Len(t, s.Participants, 2)
	assert.Len(t, s.UnreadCounts, 2)
	_, has := s.UnreadMap()["3"]
	assert.False(t, has)
}

func TestUnreadCounter(t *testing.T) {
	s, err := NewPrivateSession("1", "2", now)
	require.NoError(t, err)

	s.IncrementUnread("2")
	s.IncrementUnread("2")
	s.IncrementUnread("2")
	assert.Equal(t, 3, s.UnreadFor("2"))
	assert.Equal(t, 0, s.UnreadFor("1"))

	s.ClearUnread("2")
	assert.Equal(t, 0, s.UnreadFor("2"))
	_, has := s.UnreadMap()["2"]
	assert.True(t, has)
}

func TestUpdateLastMessage(t *testing.T) {
	s, err := NewPrivateSession("1", "2", now)
	require.NoError(t, err)
	m, err := NewPrivateMessage("1", "2", MessageInput{Content: "hi"}, now)
	require.NoError(t, err)

	later := now.Add(time.Second)
	s.UpdateLastMessage(m, later)

	assert.Equal(t, m.ID, s.LastMessage.ID)
	assert.Equal(t, "hi", s.LastMessage.Content)
	assert.Equal(t, "1", s.LastMessage.SenderID)
	assert.Equal(t, later, s.LastActivity)
}

func TestSessionPermissions(t *testing.T) {
	g, err := NewGroup("c", GroupParams{Name: "team", MemberIDs: []string{"a", "m"}}, "http://x/invite", now)
	require.NoError(t, err)
	g.Members[1].Role = RoleAdmin
	s := NewGroupSession(g, now)

	assert.True(t, s.HasPermission("m", PermSendMessage))
	assert.False(t, s.HasPermission("m", PermManageMembers))
	assert.True(t, s.HasPermission("a", PermManageMembers))
	assert.False(t, s.HasPermission("a", PermManageGroup))
	assert.True(t, s.HasPermission("c", PermManageGroup))
	assert.False(t, s.HasPermission("stranger", PermViewMembers))
	assert.False(t, s.HasPermission("c", Permission("delete_everything")))

	s.IsMuted = true
	assert.False(t, s.HasPermission("c", PermSendMessage))
	assert.False(t, s.HasPermission("m", PermSendMessage))
}

func TestParsePermission(t *testing.T) {
	p, ok := ParsePermission("invite_members")
	assert.True(t, ok)
	assert.Equal(t, PermInviteMembers, p)

	_, ok = ParsePermission("root")
	assert.False(t, ok)
}
