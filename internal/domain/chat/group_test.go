package chat

import (
	"errors"
	"testing"
	"time"

	pulse_errors "pulse-chat/pkg/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewGroup(t *testing.T) {
	g, err := NewGroup("3", GroupParams{
		Name:      " Study ",
		MemberIDs: []string{"4", "5", "4", "3"},
	}, "https://chat.example/invite/", now)
	require.NoError(t, err)

	assert.Equal(t, "Study", g.Name)
	assert.Equal(t, GroupPublic, g.Type)
	assert.Equal(t, DefaultGroupMembers, g.MaxMembers)
	assert.Equal(t, 3, g.MemberCount())
	assert.Equal(t, []string{"3"}, g.Admins())
	assert.Len(t, g.InviteCode, InviteCodeLength)
	assert.Equal(t, "https://chat.example/invite/"+g.InviteCode, g.InviteLink)

	role, ok := g.RoleOf("3")
	assert.True(t, ok)
	assert.Equal(t, RoleCreator, role)
}

func TestNewGroupValidation(t *testing.T) {
	_, err := NewGroup("1", GroupParams{Name: ""}, "", now)
	assert.True(t, errors.Is(err, pulse_errors.ErrInvalidInput))

	_, err = NewGroup("1", GroupParams{Name: "x", MaxMembers: 1}, "", now)
	assert.True(t, errors.Is(err, pulse_errors.ErrInvalidInput))

	_, err = NewGroup("1", GroupParams{Name: "x", Type: "hidden"}, "", now)
	assert.True(t, errors.Is(err, pulse_errors.ErrInvalidInput))

	_, err = NewGroup("1", GroupParams{Name: "x", MaxMembers: 2, MemberIDs: []string{"2", "3"}}, "", now)
	assert.True(t, errors.Is(err, pulse_errors.ErrForbidden))
}

func TestCreatorCannotBeRemoved(t *testing.T) {
	g, err := NewGroup("c", GroupParams{Name: "x", MemberIDs: []string{"m"}}, "", now)
	require.NoError(t, err)

	assert.False(t, g.RemoveMember("c"))
	assert.Contains(t, g.Admins(), "c")

	assert.True(t, g.RemoveMember("m"))
	assert.False(t, g.IsActiveMember("m"))
	assert.Equal(t, 1, g.MemberCount())

	// rejoining reactivates the same record
	assert.True(t, g.AddMember("m", RoleMember, now))
	assert.Len(t, g.Members, 2)
	assert.True(t, g.IsActiveMember("m"))
}

func TestGroupCountsAreDerived(t *testing.T) {
	g, err := NewGroup("c", GroupParams{Name: "x", MemberIDs: []string{"a", "b"}}, "", now)
	require.NoError(t, err)

	g.Members[2].LastSeen = now.Add(-40 * 24 * time.Hour)
	g.RemoveMember("a")

	assert.Equal(t, 2, g.MemberCount())
	assert.Equal(t, 1, g.ActiveMemberCount(now))
}

func TestGroupPermissions(t *testing.T) {
	g, err := NewGroup("c", GroupParams{Name: "x", MemberIDs: []string{"a", "m"}}, "", now)
	require.NoError(t, err)
	g.Members[1].Role = RoleAdmin

	assert.True(t, g.HasPermission("m", PermSendMessage))
	assert.False(t, g.HasPermission("m", PermInviteMembers))
	assert.True(t, g.HasPermission("a", PermInviteMembers))
	assert.True(t, g.HasPermission("a", PermManageMembers))
	assert.False(t, g.HasPermission("a", PermManageGroup))
	assert.True(t, g.HasPermission("c", PermManageGroup))
	assert.False(t, g.HasPermission("c", Permission("nope")))

	g.Settings.AllowMemberMessage = false
	assert.False(t, g.HasPermission("m", PermSendMessage))
	assert.True(t, g.HasPermission("a", PermSendMessage))

	g.Settings.AllowMemberMedia = false
	assert.False(t, g.CanPostAttachment("m"))
	assert.True(t, g.CanPostAttachment("c"))

	g.RemoveMember("m")
	g.Settings.AllowMemberMessage = true
	assert.False(t, g.HasPermission("m", PermSendMessage))
}

func TestRoleRanking(t *testing.T) {
	assert.True(t, RoleCreator.AtLeast(RoleAdmin))
	assert.True(t, RoleAdmin.AtLeast(RoleAdmin))
	assert.False(t, RoleMember.AtLeast(RoleAdmin))
	assert.False(t, Role("owner").AtLeast(RoleMember))
}
