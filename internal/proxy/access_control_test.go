package proxy

import (
	"errors"
	"testing"
	"time"

	"pulse-chat/internal/domain/chat"
	pulse_errors "pulse-chat/pkg/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var now = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

// team returns a group created by 3 with plain members 4 and 5 and admin 6.
func team(t *testing.T) *chat.Group {
	t.Helper()
	g, err := chat.NewGroup("3", chat.GroupParams{Name: "Team", MemberIDs: []string{"4", "5"}}, "", now)
	require.NoError(t, err)
	require.True(t, g.AddMember("6", chat.RoleAdmin, now))
	return g
}

func assertKind(t *testing.T, err error, kind error, msg string) {
	t.Helper()
	require.Error(t, err)
	assert.True(t, errors.Is(err, kind), "got %v", err)
	if msg != "" {
		assert.Equal(t, msg, pulse_errors.PublicMessage(err))
	}
}

func TestIsParticipant(t *testing.T) {
	ac := NewAccessControl()
	s, err := chat.NewPrivateSession("1", "2", now)
	require.NoError(t, err)

	assert.True(t, ac.IsParticipant(s, "1"))
	assert.True(t, ac.IsParticipant(s, "2"))
	assert.False(t, ac.IsParticipant(s, "3"))
	assert.False(t, ac.IsParticipant(nil, "1"))
	assert.False(t, ac.IsParticipant(s, ""))
}

func TestCanSendInSession(t *testing.T) {
	ac := NewAccessControl()

	t.Run("private", func(t *testing.T) {
		s, _ := chat.NewPrivateSession("1", "2", now)
		assert.NoError(t, ac.CanSendInSession(s, nil, "1", chat.MessageText))
		assertKind(t, ac.CanSendInSession(s, nil, "9", chat.MessageText), pulse_errors.ErrForbidden, "You are not a participant in this chat")
	})

	t.Run("muted blocks everyone", func(t *testing.T) {
		g := team(t)
		s := chat.NewGroupSession(g, now)
		s.IsMuted = true
		assertKind(t, ac.CanSendInSession(s, g, "3", chat.MessageText), pulse_errors.ErrForbidden, "This chat is muted")
		assertKind(t, ac.CanSendInSession(s, g, "4", chat.MessageText), pulse_errors.ErrForbidden, "This chat is muted")
	})

	t.Run("member messaging disabled", func(t *testing.T) {
		g := team(t)
		g.Settings.AllowMemberMessage = false
		s := chat.NewGroupSession(g, now)
		assertKind(t, ac.CanSendInSession(s, g, "4", chat.MessageText), pulse_errors.ErrForbidden, "Only admins can send messages in this group")
		assert.NoError(t, ac.CanSendInSession(s, g, "6", chat.MessageText))
		assert.NoError(t, ac.CanSendInSession(s, g, "3", chat.MessageText))
	})

	t.Run("media disabled", func(t *testing.T) {
		g := team(t)
		g.Settings.AllowMemberMedia = false
		s := chat.NewGroupSession(g, now)
		assert.NoError(t, ac.CanSendInSession(s, g, "4", chat.MessageText))
		assertKind(t, ac.CanSendInSession(s, g, "4", chat.MessageImage), pulse_errors.ErrForbidden, "Media sharing is disabled in this group")
		assert.NoError(t, ac.CanSendInSession(s, g, "6", chat.MessageFile))
	})
}

func TestNonMembersAreDenied(t *testing.T) {
	ac := NewAccessControl()
	g := team(t)

	assert.Error(t, ac.CanSendInGroup(g, "99"))
	assert.Error(t, ac.CanManageMembers(g, "99"))
	assert.Error(t, ac.CanManageGroup(g, "99"))
	assert.Error(t, ac.CanViewMembers(g, "99"))
	assert.Error(t, ac.CanAddMember(g, "99", "100"))
}

func TestCanManage(t *testing.T) {
	ac := NewAccessControl()
	g := team(t)

	assert.NoError(t, ac.CanManageMembers(g, "3"))
	assert.NoError(t, ac.CanManageMembers(g, "6"))
	assertKind(t, ac.CanManageMembers(g, "4"), pulse_errors.ErrForbidden, "")

	assert.NoError(t, ac.CanManageGroup(g, "3"))
	assertKind(t, ac.CanManageGroup(g, "6"), pulse_errors.ErrForbidden, "")
}

func TestCanAddMember(t *testing.T) {
	ac := NewAccessControl()
	g := team(t)

	assertKind(t, ac.CanAddMember(g, "4", "7"), pulse_errors.ErrForbidden, "You do not have permission to add members")
	assert.NoError(t, ac.CanAddMember(g, "6", "7"))
	assertKind(t, ac.CanAddMember(g, "3", "5"), pulse_errors.ErrForbidden, "User is already a member")

	g.MaxMembers = g.MemberCount()
	assertKind(t, ac.CanAddMember(g, "3", "7"), pulse_errors.ErrForbidden, "Group is full")

	g.MaxMembers = 100
	g.Settings.AllowMemberInvite = true
	assert.NoError(t, ac.CanAddMember(g, "4", "7"))
}

func TestCanRemoveMember(t *testing.T) {
	ac := NewAccessControl()
	g := team(t)

	// plain member removing plain member
	assertKind(t, ac.CanRemoveMember(g, "5", "4"), pulse_errors.ErrForbidden, "You do not have permission to remove members")
	assert.NoError(t, ac.CanRemoveMember(g, "3", "4"))
	assert.NoError(t, ac.CanRemoveMember(g, "6", "4"))

	// admins are removable by the creator only
	require.True(t, g.AddMember("8", chat.RoleAdmin, now))
	assertKind(t, ac.CanRemoveMember(g, "6", "8"), pulse_errors.ErrForbidden, "Only the group creator can remove an admin")
	assert.NoError(t, ac.CanRemoveMember(g, "3", "8"))

	// nobody removes the creator
	for _, actor := range []string{"3", "6", "4"} {
		assertKind(t, ac.CanRemoveMember(g, actor, "3"), pulse_errors.ErrForbidden, "The group creator cannot be removed")
	}

	assertKind(t, ac.CanRemoveMember(g, "3", "99"), pulse_errors.ErrNotFound, "")
}

func TestCanLeave(t *testing.T) {
	ac := NewAccessControl()
	g := team(t)

	assertKind(t, ac.CanLeave(g, "3"), pulse_errors.ErrForbidden, "The group creator cannot leave the group")
	assert.NoError(t, ac.CanLeave(g, "4"))
	assert.NoError(t, ac.CanLeave(g, "6"))
	assertKind(t, ac.CanLeave(g, "99"), pulse_errors.ErrNotFound, "")
}

func TestCanJoin(t *testing.T) {
	ac := NewAccessControl()

	g := team(t)
	assert.NoError(t, ac.CanJoin(g, "7", ""))
	assertKind(t, ac.CanJoin(g, "4", ""), pulse_errors.ErrForbidden, "User is already a member")
	assertKind(t, ac.CanJoin(g, "7", "nope"), pulse_errors.ErrForbidden, "Invalid invite code")
	assert.NoError(t, ac.CanJoin(g, "7", g.InviteCode))

	g.Settings.RequireApproval = true
	assertKind(t, ac.CanJoin(g, "7", ""), pulse_errors.ErrForbidden, "This group requires approval to join")
	assert.NoError(t, ac.CanJoin(g, "7", g.InviteCode))

	secret := team(t)
	secret.Type = chat.GroupSecret
	assertKind(t, ac.CanJoin(secret, "7", ""), pulse_errors.ErrForbidden, "This group can only be joined with an invite")
	assert.NoError(t, ac.CanJoin(secret, "7", secret.InviteCode))

	full := team(t)
	full.MaxMembers = full.MemberCount()
	assertKind(t, ac.CanJoin(full, "7", full.InviteCode), pulse_errors.ErrForbidden, "Group is full")
}

func TestCanDeleteMessage(t *testing.T) {
	ac := NewAccessControl()
	m, err := chat.NewPrivateMessage("1", "2", chat.MessageInput{Content: "hi"}, now)
	require.NoError(t, err)

	assert.NoError(t, ac.CanDeleteMessage(m, "1"))
	assertKind(t, ac.CanDeleteMessage(m, "2"), pulse_errors.ErrForbidden, "You can only delete your own messages")
}

func TestCanUpdateSessionSettings(t *testing.T) {
	ac := NewAccessControl()

	private, _ := chat.NewPrivateSession("1", "2", now)
	assert.NoError(t, ac.CanUpdateSessionSettings(private, nil, "2", true))
	assertKind(t, ac.CanUpdateSessionSettings(private, nil, "9", false), pulse_errors.ErrForbidden, "")

	g := team(t)
	s := chat.NewGroupSession(g, now)
	assert.NoError(t, ac.CanUpdateSessionSettings(s, g, "4", false))
	assertKind(t, ac.CanUpdateSessionSettings(s, g, "4", true), pulse_errors.ErrForbidden, "Only group admins can mute this chat")
	assert.NoError(t, ac.CanUpdateSessionSettings(s, g, "6", true))
	assert.NoError(t, ac.CanUpdateSessionSettings(s, g, "3", true))
}
