package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"pulse-chat/internal/domain/chat"
	"pulse-chat/internal/proxy"
	"pulse-chat/internal/repository"
	pulse_errors "pulse-chat/pkg/errors"
)

const inviteCodeAttempts = 3

type GroupService struct {
	store      repository.Store
	access     *proxy.AccessControl
	inviteBase string
}

func NewGroupService(store repository.Store, access *proxy.AccessControl, inviteBase string) *GroupService {
	return &GroupService{store: store, access: access, inviteBase: inviteBase}
}

// GroupView is a group with its derived counters.
type GroupView struct {
	chat.Group
	MemberCount       int `json:"memberCount"`
	ActiveMemberCount int `json:"activeMemberCount"`
}

func viewOf(g chat.Group, now time.Time) GroupView {
	return GroupView{Group: g, MemberCount: g.MemberCount(), ActiveMemberCount: g.ActiveMemberCount(now)}
}

// Create builds a group owned by creatorID together with its session.
func (s *GroupService) Create(ctx context.Context, creatorID string, p chat.GroupParams) (GroupView, error) {
	p.MemberIDs = dedupe(p.MemberIDs, creatorID)
	if len(p.MemberIDs) > 0 {
		found, err := s.store.Users().GetByIDs(ctx, p.MemberIDs)
		if err != nil {
			return GroupView{}, err
		}
		if len(found) != len(p.MemberIDs) {
			return GroupView{}, pulse_errors.Invalid("One or more members do not exist")
		}
	}

	var g *chat.Group
	var err error
	for attempt := 0; attempt < inviteCodeAttempts; attempt++ {
		g, err = chat.NewGroup(creatorID, p, s.inviteBase, time.Now())
		if err != nil {
			return GroupView{}, err
		}
		err = s.store.WithinTx(ctx, func(tx repository.Store) error {
			if err := tx.Groups().Create(ctx, g); err != nil {
				return err
			}
			return tx.Sessions().Create(ctx, chat.NewGroupSession(g, g.CreatedAt))
		})
		if !errors.Is(err, pulse_errors.ErrConflict) {
			break
		}
	}
	if err != nil {
		return GroupView{}, err
	}
	return viewOf(*g, time.Now()), nil
}

// Get returns a group visible to userID. Public groups are visible to
// everyone; others only to members.
func (s *GroupService) Get(ctx context.Context, userID, groupID string) (GroupView, error) {
	g, err := s.store.Groups().GetByID(ctx, groupID)
	if err != nil {
		return GroupView{}, err
	}
	if g.Type != chat.GroupPublic && !g.IsActiveMember(userID) {
		return GroupView{}, pulse_errors.Forbidden("You are not a member of this group")
	}
	view := viewOf(g, time.Now())
	if err := s.access.CanViewMembers(&g, userID); err != nil {
		view.Members = nil
	}
	if !g.HasPermission(userID, chat.PermInviteMembers) {
		view.InviteCode = ""
		view.InviteLink = ""
	}
	return view, nil
}

func (s *GroupService) ListMine(ctx context.Context, userID string) ([]GroupView, error) {
	groups, err := s.store.Groups().ListForUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	now := time.Now()
	views := make([]GroupView, 0, len(groups))
	for _, g := range groups {
		views = append(views, viewOf(g, now))
	}
	return views, nil
}

type GroupSearchResult struct {
	Groups []GroupView `json:"groups"`
	Total  int64       `json:"total"`
	Page   int         `json:"page"`
	Limit  int         `json:"limit"`
}

// Search lists public groups. Invite codes are never included.
func (s *GroupService) Search(ctx context.Context, q repository.GroupQuery) (GroupSearchResult, error) {
	if q.Page < 1 {
		q.Page = 1
	}
	if q.Limit < 1 || q.Limit > maxSearchLimit {
		q.Limit = 20
	}
	q.Text = strings.TrimSpace(q.Text)
	groups, total, err := s.store.Groups().Search(ctx, q)
	if err != nil {
		return GroupSearchResult{}, err
	}
	now := time.Now()
	res := GroupSearchResult{Groups: make([]GroupView, 0, len(groups)), Total: total, Page: q.Page, Limit: q.Limit}
	for _, g := range groups {
		v := viewOf(g, now)
		v.InviteCode = ""
		v.InviteLink = ""
		v.Members = nil
		res.Groups = append(res.Groups, v)
	}
	return res, nil
}

// GroupUpdate carries the optional fields of a group edit.
type GroupUpdate struct {
	Name        *string
	Description *string
	AvatarURL   *string
	Type        *chat.GroupType
	MaxMembers  *int
	Settings    *chat.GroupSettings
	Tags        []string
	Category    *string
}

func (s *GroupService) Update(ctx context.Context, userID, groupID string, u GroupUpdate) (GroupView, error) {
	g, err := s.store.Groups().GetByID(ctx, groupID)
	if err != nil {
		return GroupView{}, err
	}
	if err := s.access.CanManageGroup(&g, userID); err != nil {
		return GroupView{}, err
	}
	if err := applyGroupUpdate(&g, u); err != nil {
		return GroupView{}, err
	}

	err = s.store.WithinTx(ctx, func(tx repository.Store) error {
		if err := tx.Groups().UpdateProfile(ctx, &g); err != nil {
			return err
		}
		return tx.Sessions().UpdateGroupProfile(ctx, g.ChatID(), &g)
	})
	if err != nil {
		return GroupView{}, err
	}
	return viewOf(g, time.Now()), nil
}

func applyGroupUpdate(g *chat.Group, u GroupUpdate) error {
	if u.Name != nil {
		name := strings.TrimSpace(*u.Name)
		if err := chat.ValidateGroupName(name); err != nil {
			return err
		}
		g.Name = name
	}
	if u.Description != nil {
		desc := strings.TrimSpace(*u.Description)
		if utf8.RuneCountInString(desc) > chat.MaxGroupDescLength {
			return pulse_errors.Invalid(fmt.Sprintf("Group description cannot exceed %d characters", chat.MaxGroupDescLength))
		}
		g.Description = desc
	}
	if u.AvatarURL != nil {
		g.AvatarURL = *u.AvatarURL
	}
	if u.Type != nil {
		if !u.Type.Valid() {
			return pulse_errors.Invalid(fmt.Sprintf("Unsupported group type %q", *u.Type))
		}
		g.Type = *u.Type
	}
	if u.MaxMembers != nil {
		n := *u.MaxMembers
		if n < chat.MinGroupMembers || n > chat.MaxGroupMembers {
			return pulse_errors.Invalid(fmt.Sprintf("Max members must be between %d and %d", chat.MinGroupMembers, chat.MaxGroupMembers))
		}
		if n < g.MemberCount() {
			return pulse_errors.Invalid("Max members cannot be lower than the current member count")
		}
		g.MaxMembers = n
	}
	if u.Settings != nil {
		g.Settings = *u.Settings
	}
	if u.Tags != nil {
		g.Tags = u.Tags
	}
	if u.Category != nil {
		g.Category = strings.TrimSpace(*u.Category)
	}
	return nil
}

// Join adds userID to a public group directly.
func (s *GroupService) Join(ctx context.Context, userID, groupID string) (GroupView, error) {
	return s.admit(ctx, groupID, userID, chat.RoleMember, func(g *chat.Group) error {
		return s.access.CanJoin(g, userID, "")
	})
}

// JoinByInvite adds userID to the group holding inviteCode.
func (s *GroupService) JoinByInvite(ctx context.Context, userID, inviteCode string) (GroupView, error) {
	inviteCode = strings.TrimSpace(inviteCode)
	if inviteCode == "" {
		return GroupView{}, pulse_errors.Invalid("Invite code is required")
	}
	g, err := s.store.Groups().GetByInviteCode(ctx, inviteCode)
	if err != nil {
		return GroupView{}, err
	}
	return s.admit(ctx, g.ID, userID, chat.RoleMember, func(g *chat.Group) error {
		return s.access.CanJoin(g, userID, inviteCode)
	})
}

// AddMember lets an inviting member add targetID.
func (s *GroupService) AddMember(ctx context.Context, actorID, groupID, targetID string) (GroupView, error) {
	if _, err := s.store.Users().GetByID(ctx, targetID); err != nil {
		if errors.Is(err, pulse_errors.ErrNotFound) {
			return GroupView{}, pulse_errors.NotFound("User not found")
		}
		return GroupView{}, err
	}
	return s.admit(ctx, groupID, targetID, chat.RoleMember, func(g *chat.Group) error {
		return s.access.CanAddMember(g, actorID, targetID)
	})
}

// admit activates userID in the group and mirrors it onto the session. The
// group row stays locked from the check to the insert, so concurrent joins
// cannot overshoot maxMembers.
func (s *GroupService) admit(ctx context.Context, groupID, userID string, role chat.Role, check func(*chat.Group) error) (GroupView, error) {
	var view GroupView
	err := s.store.WithinTx(ctx, func(tx repository.Store) error {
		g, err := tx.Groups().GetByIDForUpdate(ctx, groupID)
		if err != nil {
			return err
		}
		if err := check(&g); err != nil {
			return err
		}
		now := time.Now()
		g.AddMember(userID, role, now)
		m, _ := g.Member(userID)
		if err := tx.Groups().UpsertMember(ctx, *m); err != nil {
			return err
		}
		if _, err := tx.Sessions().AddParticipant(ctx, g.ChatID(), chat.Participant{UserID: userID, Role: role, JoinedAt: now}); err != nil {
			return err
		}
		view = viewOf(g, now)
		return nil
	})
	if err != nil {
		return GroupView{}, err
	}
	return view, nil
}

// Leave removes userID from the group and returns the group as it stands
// afterwards. The creator cannot leave.
func (s *GroupService) Leave(ctx context.Context, userID, groupID string) (GroupView, error) {
	g, err := s.store.Groups().GetByID(ctx, groupID)
	if err != nil {
		return GroupView{}, err
	}
	if err := s.access.CanLeave(&g, userID); err != nil {
		return GroupView{}, err
	}
	return s.evict(ctx, &g, userID)
}

// RemoveMember removes targetID on behalf of actorID.
func (s *GroupService) RemoveMember(ctx context.Context, actorID, groupID, targetID string) (GroupView, error) {
	g, err := s.store.Groups().GetByID(ctx, groupID)
	if err != nil {
		return GroupView{}, err
	}
	if err := s.access.CanRemoveMember(&g, actorID, targetID); err != nil {
		return GroupView{}, err
	}
	return s.evict(ctx, &g, targetID)
}

// evict deactivates the membership and drops the session participant along
// with its unread counter.
func (s *GroupService) evict(ctx context.Context, g *chat.Group, userID string) (GroupView, error) {
	err := s.store.WithinTx(ctx, func(tx repository.Store) error {
		if _, err := tx.Groups().DeactivateMember(ctx, g.ID, userID); err != nil {
			return err
		}
		_, err := tx.Sessions().RemoveParticipant(ctx, g.ChatID(), userID, time.Now())
		return err
	})
	if err != nil {
		return GroupView{}, err
	}
	g.RemoveMember(userID)
	return viewOf(*g, time.Now()), nil
}

// UpdateMemberRole promotes or demotes a member. Only the creator may change
// roles, and the creator role cannot be granted or taken.
func (s *GroupService) UpdateMemberRole(ctx context.Context, actorID, groupID, targetID string, role chat.Role) (GroupView, error) {
	if role != chat.RoleMember && role != chat.RoleAdmin {
		return GroupView{}, pulse_errors.Invalid("Role must be member or admin")
	}
	g, err := s.store.Groups().GetByID(ctx, groupID)
	if err != nil {
		return GroupView{}, err
	}
	if err := s.access.CanManageGroup(&g, actorID); err != nil {
		return GroupView{}, err
	}
	m, ok := g.Member(targetID)
	if !ok || !m.IsActive {
		return GroupView{}, pulse_errors.NotFound("User is not a member of this group")
	}
	if m.Role == chat.RoleCreator {
		return GroupView{}, pulse_errors.Forbidden("The group creator's role cannot be changed")
	}
	m.Role = role

	err = s.store.WithinTx(ctx, func(tx repository.Store) error {
		if err := tx.Groups().UpdateMemberRole(ctx, groupID, targetID, role); err != nil {
			return err
		}
		return tx.Sessions().SetParticipantRole(ctx, g.ChatID(), targetID, role)
	})
	if err != nil {
		return GroupView{}, err
	}
	return viewOf(g, time.Now()), nil
}

// RegenerateInviteCode replaces the invite code, invalidating the old one.
func (s *GroupService) RegenerateInviteCode(ctx context.Context, userID, groupID string) (GroupView, error) {
	g, err := s.store.Groups().GetByID(ctx, groupID)
	if err != nil {
		return GroupView{}, err
	}
	if err := s.access.CanManageGroup(&g, userID); err != nil {
		return GroupView{}, err
	}
	for attempt := 0; attempt < inviteCodeAttempts; attempt++ {
		if err = g.RegenerateInviteCode(s.inviteBase); err != nil {
			return GroupView{}, err
		}
		err = s.store.Groups().UpdateInviteCode(ctx, g.ID, g.InviteCode, g.InviteLink)
		if !errors.Is(err, pulse_errors.ErrConflict) {
			break
		}
	}
	if err != nil {
		return GroupView{}, err
	}
	if err := s.store.Sessions().UpdateGroupProfile(ctx, g.ChatID(), &g); err != nil {
		return GroupView{}, err
	}
	return viewOf(g, time.Now()), nil
}

func dedupe(ids []string, skip string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" || id == skip {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
