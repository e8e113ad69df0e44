// Package memory is an in-process conversation store used for local
// development (STORE_DRIVER=memory) and tests. State is lost on restart.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"pulse-chat/internal/domain/chat"
	"pulse-chat/internal/domain/user"
	"pulse-chat/internal/repository"
	pulse_errors "pulse-chat/pkg/errors"
)

type Store struct {
	// txMu serializes WithinTx bodies
	txMu     sync.Mutex
	mu       sync.RWMutex
	sessions map[string]*chat.Session
	messages map[string]*chat.Message
	groups   map[string]*chat.Group
	users    map[string]user.User
}

func NewStore() *Store {
	return &Store{
		sessions: make(map[string]*chat.Session),
		messages: make(map[string]*chat.Message),
		groups:   make(map[string]*chat.Group),
		users:    make(map[string]user.User),
	}
}

func (s *Store) Sessions() repository.SessionRepository { return sessionRepo{s} }
func (s *Store) Messages() repository.MessageRepository { return messageRepo{s} }
func (s *Store) Groups() repository.GroupRepository     { return groupRepo{s} }
func (s *Store) Users() repository.UserRepository       { return userRepo{s} }

// WithinTx runs fn while no other WithinTx body runs. Each repository call is
// atomic on its own; there is no rollback.
func (s *Store) WithinTx(_ context.Context, fn func(repository.Store) error) error {
	s.txMu.Lock()
	defer s.txMu.Unlock()
	return fn(s)
}

type sessionRepo struct{ s *Store }

func (r sessionRepo) Create(_ context.Context, sess *chat.Session) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.sessions[sess.ChatID]; ok {
		return pulse_errors.Conflict("Chat already exists")
	}
	stamp(&sess.CreatedAt, &sess.UpdatedAt)
	r.s.sessions[sess.ChatID] = cloneSession(sess)
	return nil
}

func (r sessionRepo) UpsertPrivate(_ context.Context, sess *chat.Session) (chat.Session, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if existing, ok := r.s.sessions[sess.ChatID]; ok {
		return *cloneSession(existing), nil
	}
	stamp(&sess.CreatedAt, &sess.UpdatedAt)
	r.s.sessions[sess.ChatID] = cloneSession(sess)
	return *cloneSession(sess), nil
}

func (r sessionRepo) GetByChatID(_ context.Context, chatID string) (chat.Session, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	sess, ok := r.s.sessions[chatID]
	if !ok {
		return chat.Session{}, pulse_errors.NotFound("Chat not found")
	}
	return *cloneSession(sess), nil
}

func (r sessionRepo) ListForUser(_ context.Context, userID string, includeArchived bool) ([]chat.Session, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	var out []chat.Session
	for _, sess := range r.s.sessions {
		if !sess.IsParticipant(userID) || (sess.IsArchived && !includeArchived) {
			continue
		}
		out = append(out, *cloneSession(sess))
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].IsPinned != out[j].IsPinned {
			return out[i].IsPinned
		}
		return out[i].LastActivity.After(out[j].LastActivity)
	})
	return out, nil
}

func (r sessionRepo) AddParticipant(_ context.Context, chatID string, p chat.Participant) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	sess, ok := r.s.sessions[chatID]
	if !ok {
		return false, pulse_errors.NotFound("Chat not found")
	}
	return sess.AddParticipant(p.UserID, p.Role, p.JoinedAt), nil
}

func (r sessionRepo) RemoveParticipant(_ context.Context, chatID, userID string, at time.Time) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	sess, ok := r.s.sessions[chatID]
	if !ok {
		return false, nil
	}
	return sess.RemoveParticipant(userID, at), nil
}

func (r sessionRepo) SetParticipantRole(_ context.Context, chatID, userID string, role chat.Role) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	sess, ok := r.s.sessions[chatID]
	if !ok || !sess.SetRole(userID, role) {
		return pulse_errors.NotFound("Participant not found")
	}
	return nil
}

func (r sessionRepo) UpdateLastMessage(_ context.Context, chatID string, snapshot chat.LastMessage, at time.Time) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	sess, ok := r.s.sessions[chatID]
	if !ok {
		return pulse_errors.NotFound("Chat not found")
	}
	sess.LastMessage = snapshot
	sess.LastActivity = at
	sess.UpdatedAt = at
	return nil
}

func (r sessionRepo) IncrementUnread(_ context.Context, chatID string, userIDs []string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	sess, ok := r.s.sessions[chatID]
	if !ok {
		return pulse_errors.NotFound("Chat not found")
	}
	for _, id := range userIDs {
		sess.IncrementUnread(id)
	}
	return nil
}

func (r sessionRepo) ClearUnread(_ context.Context, chatID, userID string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	sess, ok := r.s.sessions[chatID]
	if !ok {
		return nil
	}
	if _, has := sess.UnreadMap()[userID]; has {
		sess.ClearUnread(userID)
	}
	return nil
}

func (r sessionRepo) UpdateFlags(_ context.Context, chatID string, flags repository.SessionFlags) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	sess, ok := r.s.sessions[chatID]
	if !ok {
		return pulse_errors.NotFound("Chat not found")
	}
	if flags.IsPinned != nil {
		sess.IsPinned = *flags.IsPinned
	}
	if flags.IsMuted != nil {
		sess.IsMuted = *flags.IsMuted
	}
	if flags.IsArchived != nil {
		sess.IsArchived = *flags.IsArchived
	}
	return nil
}

func (r sessionRepo) UpdateGroupProfile(_ context.Context, chatID string, g *chat.Group) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	sess, ok := r.s.sessions[chatID]
	if !ok {
		return pulse_errors.NotFound("Chat not found")
	}
	sess.Name = g.Name
	sess.AvatarURL = g.AvatarURL
	sess.Description = g.Description
	sess.Group.MaxMembers = g.MaxMembers
	sess.Group.IsPublic = g.Type == chat.GroupPublic
	sess.Group.InviteCode = g.InviteCode
	return nil
}

type messageRepo struct{ s *Store }

func (r messageRepo) Create(_ context.Context, m *chat.Message) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.messages[m.ID]; ok {
		return pulse_errors.Conflict("Message already exists")
	}
	stamp(&m.CreatedAt, &m.UpdatedAt)
	r.s.messages[m.ID] = cloneMessage(m)
	return nil
}

func (r messageRepo) GetByID(_ context.Context, id string) (chat.Message, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	m, ok := r.s.messages[id]
	if !ok || m.IsDeleted {
		return chat.Message{}, pulse_errors.NotFound("Message not found")
	}
	return *cloneMessage(m), nil
}

// visible returns the non-deleted messages of a chat, newest first.
func (r messageRepo) visible(chatID string) []*chat.Message {
	var out []*chat.Message
	for _, m := range r.s.messages {
		if m.ChatID == chatID && !m.IsDeleted {
			out = append(out, m)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}

func (r messageRepo) ListByChat(_ context.Context, chatID string, page, limit int) ([]chat.Message, int64, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = 50
	}
	all := r.visible(chatID)
	start := (page - 1) * limit
	if start > len(all) {
		start = len(all)
	}
	end := start + limit
	if end > len(all) {
		end = len(all)
	}
	out := make([]chat.Message, 0, end-start)
	for _, m := range all[start:end] {
		out = append(out, *cloneMessage(m))
	}
	return out, int64(len(all)), nil
}

func (r messageRepo) Search(_ context.Context, chatID, query string, limit int) ([]chat.Message, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	if limit < 1 {
		limit = 50
	}
	q := strings.ToLower(strings.TrimSpace(query))
	var out []chat.Message
	for _, m := range r.visible(chatID) {
		if strings.Contains(strings.ToLower(m.Content), q) {
			out = append(out, *cloneMessage(m))
			if len(out) == limit {
				break
			}
		}
	}
	return out, nil
}

func (r messageRepo) Latest(_ context.Context, chatID string) (chat.Message, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	all := r.visible(chatID)
	if len(all) == 0 {
		return chat.Message{}, pulse_errors.NotFound("Message not found")
	}
	return *cloneMessage(all[0]), nil
}

func (r messageRepo) UnreadBy(_ context.Context, chatID, userID string, limit int) ([]string, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	if limit < 1 {
		limit = 500
	}
	all := r.visible(chatID)
	var ids []string
	for i := len(all) - 1; i >= 0 && len(ids) < limit; i-- {
		m := all[i]
		if m.SenderID != userID && !m.IsReadBy(userID) {
			ids = append(ids, m.ID)
		}
	}
	return ids, nil
}

func (r messageRepo) AddReceipt(_ context.Context, rec chat.Receipt) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	m, ok := r.s.messages[rec.MessageID]
	if !ok {
		return false, pulse_errors.NotFound("Message not found")
	}
	switch rec.Kind {
	case chat.ReceiptRead:
		if m.IsReadBy(rec.UserID) {
			return false, nil
		}
		m.ReadBy = append(m.ReadBy, rec)
	case chat.ReceiptDelivered:
		if m.IsDeliveredTo(rec.UserID) {
			return false, nil
		}
		m.DeliveredTo = append(m.DeliveredTo, rec)
	default:
		return false, pulse_errors.Invalid("unknown receipt kind")
	}
	return true, nil
}

func (r messageRepo) AdvanceStatus(_ context.Context, id string, status chat.MessageStatus) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if m, ok := r.s.messages[id]; ok {
		m.AdvanceStatus(status)
	}
	return nil
}

func (r messageRepo) SoftDelete(_ context.Context, id string, at time.Time) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	m, ok := r.s.messages[id]
	if !ok || !m.SoftDelete(at) {
		return pulse_errors.NotFound("Message not found")
	}
	return nil
}

type groupRepo struct{ s *Store }

func (r groupRepo) Create(_ context.Context, g *chat.Group) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.groups[g.ID]; ok {
		return pulse_errors.Conflict("Group already exists")
	}
	for _, other := range r.s.groups {
		if g.InviteCode != "" && other.InviteCode == g.InviteCode {
			return pulse_errors.Conflict("Invite code already in use")
		}
	}
	stamp(&g.CreatedAt, &g.UpdatedAt)
	for i := range g.Members {
		g.Members[i].GroupID = g.ID
	}
	r.s.groups[g.ID] = cloneGroup(g)
	return nil
}

func (r groupRepo) GetByID(_ context.Context, id string) (chat.Group, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	g, ok := r.s.groups[id]
	if !ok {
		return chat.Group{}, pulse_errors.NotFound("Group not found")
	}
	return *cloneGroup(g), nil
}

// GetByIDForUpdate is GetByID; WithinTx already serializes writers.
func (r groupRepo) GetByIDForUpdate(ctx context.Context, id string) (chat.Group, error) {
	return r.GetByID(ctx, id)
}

func (r groupRepo) GetByInviteCode(_ context.Context, code string) (chat.Group, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	for _, g := range r.s.groups {
		if code != "" && g.InviteCode == code {
			return *cloneGroup(g), nil
		}
	}
	return chat.Group{}, pulse_errors.NotFound("Invalid invite code")
}

func (r groupRepo) ListForUser(_ context.Context, userID string) ([]chat.Group, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	var out []chat.Group
	for _, g := range r.s.groups {
		if g.IsActiveMember(userID) {
			out = append(out, *cloneGroup(g))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.After(out[j].UpdatedAt) })
	return out, nil
}

func (r groupRepo) Search(_ context.Context, q repository.GroupQuery) ([]chat.Group, int64, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	text := strings.ToLower(strings.TrimSpace(q.Text))
	var matched []chat.Group
	for _, g := range r.s.groups {
		if g.Type != chat.GroupPublic {
			continue
		}
		if text != "" && !strings.Contains(strings.ToLower(g.Name), text) && !strings.Contains(strings.ToLower(g.Description), text) {
			continue
		}
		if q.Category != "" && g.Category != q.Category {
			continue
		}
		if q.Tag != "" && !containsString(g.Tags, q.Tag) {
			continue
		}
		matched = append(matched, *cloneGroup(g))
	}
	sort.Slice(matched, func(i, j int) bool {
		if matched[i].MessageCount != matched[j].MessageCount {
			return matched[i].MessageCount > matched[j].MessageCount
		}
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})
	page, limit := q.Page, q.Limit
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = 50
	}
	total := int64(len(matched))
	start := (page - 1) * limit
	if start > len(matched) {
		start = len(matched)
	}
	end := start + limit
	if end > len(matched) {
		end = len(matched)
	}
	return matched[start:end], total, nil
}

func (r groupRepo) UpdateProfile(_ context.Context, g *chat.Group) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	stored, ok := r.s.groups[g.ID]
	if !ok {
		return pulse_errors.NotFound("Group not found")
	}
	stored.Name = g.Name
	stored.Description = g.Description
	stored.AvatarURL = g.AvatarURL
	stored.Type = g.Type
	stored.MaxMembers = g.MaxMembers
	stored.Tags = append([]string(nil), g.Tags...)
	stored.Category = g.Category
	stored.Settings = g.Settings
	stored.UpdatedAt = time.Now()
	return nil
}

func (r groupRepo) UpdateInviteCode(_ context.Context, groupID, code, link string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	g, ok := r.s.groups[groupID]
	if !ok {
		return pulse_errors.NotFound("Group not found")
	}
	g.InviteCode = code
	g.InviteLink = link
	return nil
}

func (r groupRepo) UpsertMember(_ context.Context, m chat.Member) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	g, ok := r.s.groups[m.GroupID]
	if !ok {
		return pulse_errors.NotFound("Group not found")
	}
	if existing, ok := g.Member(m.UserID); ok {
		*existing = m
		return nil
	}
	g.Members = append(g.Members, m)
	return nil
}

func (r groupRepo) DeactivateMember(_ context.Context, groupID, userID string) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	g, ok := r.s.groups[groupID]
	if !ok {
		return false, nil
	}
	return g.RemoveMember(userID), nil
}

func (r groupRepo) UpdateMemberRole(_ context.Context, groupID, userID string, role chat.Role) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	g, ok := r.s.groups[groupID]
	if !ok {
		return pulse_errors.NotFound("Group not found")
	}
	m, ok := g.Member(userID)
	if !ok || !m.IsActive {
		return pulse_errors.NotFound("User is not a member of this group")
	}
	m.Role = role
	return nil
}

func (r groupRepo) TouchMember(_ context.Context, groupID, userID string, at time.Time) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if g, ok := r.s.groups[groupID]; ok {
		g.Touch(userID, at)
	}
	return nil
}

func (r groupRepo) IncrementMessageCount(_ context.Context, groupID string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if g, ok := r.s.groups[groupID]; ok {
		g.MessageCount++
	}
	return nil
}

type userRepo struct{ s *Store }

func (r userRepo) GetByID(_ context.Context, id string) (user.User, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	u, ok := r.s.users[id]
	if !ok {
		return user.User{}, pulse_errors.NotFound("User not found")
	}
	return u, nil
}

func (r userRepo) GetByIDs(_ context.Context, ids []string) ([]user.User, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	var out []user.User
	for _, id := range ids {
		if u, ok := r.s.users[id]; ok {
			out = append(out, u)
		}
	}
	return out, nil
}

func (r userRepo) Save(_ context.Context, u *user.User) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	stamp(&u.CreatedAt, &u.UpdatedAt)
	if existing, ok := r.s.users[u.ID]; ok {
		existing.Username = u.Username
		existing.DisplayName = u.DisplayName
		existing.AvatarURL = u.AvatarURL
		r.s.users[u.ID] = existing
		return nil
	}
	r.s.users[u.ID] = *u
	return nil
}

func (r userRepo) SetPresence(_ context.Context, id string, online bool, lastSeen time.Time) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	u, ok := r.s.users[id]
	if !ok {
		return pulse_errors.NotFound("User not found")
	}
	u.IsOnline = online
	u.LastSeenAt = &lastSeen
	r.s.users[id] = u
	return nil
}

func stamp(created, updated *time.Time) {
	now := time.Now()
	if created.IsZero() {
		*created = now
	}
	if updated.IsZero() {
		*updated = now
	}
}

func containsString(items []string, s string) bool {
	for _, it := range items {
		if it == s {
			return true
		}
	}
	return false
}
