package proxy

import (
	"pulse-chat/internal/domain/chat"
	pulse_errors "pulse-chat/pkg/errors"
)

// AccessControl holds the authorization rules shared by the REST and socket
// surfaces. Every check is a pure function of the loaded records, so callers
// must pass fresh state from the store.
type AccessControl struct{}

func NewAccessControl() *AccessControl {
	return &AccessControl{}
}

func (a *AccessControl) IsParticipant(s *chat.Session, userID string) bool {
	return s != nil && userID != "" && s.IsParticipant(userID)
}

func (a *AccessControl) CanViewChat(s *chat.Session, userID string) error {
	if !a.IsParticipant(s, userID) {
		return pulse_errors.Forbidden("You are not a participant in this chat")
	}
	return nil
}

// CanSendInSession checks membership and send permission for a message of
// type t. g must be set for group sessions.
func (a *AccessControl) CanSendInSession(s *chat.Session, g *chat.Group, userID string, t chat.MessageType) error {
	if err := a.CanViewChat(s, userID); err != nil {
		return err
	}
	if !s.HasPermission(userID, chat.PermSendMessage) {
		return pulse_errors.Forbidden("This chat is muted")
	}
	if s.Type != chat.SessionGroup {
		return nil
	}
	if g == nil {
		return pulse_errors.NotFound("Group not found")
	}
	if err := a.CanSendInGroup(g, userID); err != nil {
		return err
	}
	if t.HasAttachment() && !g.CanPostAttachment(userID) {
		return pulse_errors.Forbidden("Media sharing is disabled in this group")
	}
	return nil
}

func (a *AccessControl) CanSendInGroup(g *chat.Group, userID string) error {
	if !g.IsActiveMember(userID) {
		return pulse_errors.Forbidden("You are not a member of this group")
	}
	if !g.HasPermission(userID, chat.PermSendMessage) {
		return pulse_errors.Forbidden("Only admins can send messages in this group")
	}
	return nil
}

func (a *AccessControl) CanViewMembers(g *chat.Group, userID string) error {
	if !g.HasPermission(userID, chat.PermViewMembers) {
		return pulse_errors.Forbidden("You do not have permission to view members")
	}
	return nil
}

func (a *AccessControl) CanManageMembers(g *chat.Group, userID string) error {
	if !g.HasPermission(userID, chat.PermManageMembers) {
		return pulse_errors.Forbidden("You do not have permission to manage members")
	}
	return nil
}

func (a *AccessControl) CanManageGroup(g *chat.Group, userID string) error {
	if !g.HasPermission(userID, chat.PermManageGroup) {
		return pulse_errors.Forbidden("Only the group creator can update this group")
	}
	return nil
}

func (a *AccessControl) CanAddMember(g *chat.Group, actorID, targetID string) error {
	if !g.HasPermission(actorID, chat.PermInviteMembers) {
		return pulse_errors.Forbidden("You do not have permission to add members")
	}
	if g.IsActiveMember(targetID) {
		return pulse_errors.Forbidden("User is already a member")
	}
	if g.IsFull() {
		return pulse_errors.Forbidden("Group is full")
	}
	return nil
}

// CanRemoveMember enforces the removal precedence: the creator is never
// removable and admins can only be removed by the creator.
func (a *AccessControl) CanRemoveMember(g *chat.Group, actorID, targetID string) error {
	targetRole, ok := g.RoleOf(targetID)
	if !ok {
		return pulse_errors.NotFound("User is not a member of this group")
	}
	if targetRole == chat.RoleCreator {
		return pulse_errors.Forbidden("The group creator cannot be removed")
	}
	if !g.HasPermission(actorID, chat.PermManageMembers) {
		return pulse_errors.Forbidden("You do not have permission to remove members")
	}
	if targetRole == chat.RoleAdmin {
		if actorRole, _ := g.RoleOf(actorID); actorRole != chat.RoleCreator {
			return pulse_errors.Forbidden("Only the group creator can remove an admin")
		}
	}
	return nil
}

func (a *AccessControl) CanLeave(g *chat.Group, userID string) error {
	role, ok := g.RoleOf(userID)
	if !ok {
		return pulse_errors.NotFound("You are not a member of this group")
	}
	if role == chat.RoleCreator {
		return pulse_errors.Forbidden("The group creator cannot leave the group")
	}
	return nil
}

// CanJoin decides a self-service join. inviteCode is empty for a direct join.
func (a *AccessControl) CanJoin(g *chat.Group, userID, inviteCode string) error {
	if g.IsActiveMember(userID) {
		return pulse_errors.Forbidden("User is already a member")
	}
	if inviteCode != "" {
		if inviteCode != g.InviteCode {
			return pulse_errors.Forbidden("Invalid invite code")
		}
	} else {
		if g.Type != chat.GroupPublic {
			return pulse_errors.Forbidden("This group can only be joined with an invite")
		}
		if g.Settings.RequireApproval {
			return pulse_errors.Forbidden("This group requires approval to join")
		}
	}
	if g.IsFull() {
		return pulse_errors.Forbidden("Group is full")
	}
	return nil
}

func (a *AccessControl) CanDeleteMessage(m *chat.Message, userID string) error {
	if m.SenderID != userID {
		return pulse_errors.Forbidden("You can only delete your own messages")
	}
	return nil
}

// CanUpdateSessionSettings gates the shared session flags. Muting a group
// session needs manage_members; everything else only needs membership.
func (a *AccessControl) CanUpdateSessionSettings(s *chat.Session, g *chat.Group, userID string, changesMute bool) error {
	if err := a.CanViewChat(s, userID); err != nil {
		return err
	}
	if !changesMute || s.Type == chat.SessionPrivate {
		return nil
	}
	if g == nil || !g.HasPermission(userID, chat.PermManageMembers) {
		return pulse_errors.Forbidden("Only group admins can mute this chat")
	}
	return nil
}
