package gateway

import (
	"context"
	"encoding/json"
	"time"

	"pulse-chat/internal/domain/chat"
	pulseredis "pulse-chat/internal/redis"
	"pulse-chat/internal/services"
	pulse_errors "pulse-chat/pkg/errors"
	"pulse-chat/pkg/logger"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

type Options struct {
	EventsPerSecond       float64
	EventBurst            int
	MaxConnectionsPerUser int
	// PresenceRefresh must stay below the redis presence TTL.
	PresenceRefresh       time.Duration
}

func DefaultOptions() Options {
	return Options{EventsPerSecond: 20, EventBurst: 40, MaxConnectionsPerUser: 10, PresenceRefresh: time.Minute}
}

type Deps struct {
	Auth          *services.AuthService
	Users         *services.UserService
	Conversations *services.ConversationService
	Messages      *services.MessageService
	Groups        *services.GroupService
	// optional
	MessageLimiter *pulseredis.RateLimiter
}

type handlerFunc func(ctx context.Context, p *Peer, payload json.RawMessage) error

// Gateway runs the realtime protocol on top of any transport that can supply
// a Conn. Transports call Connect, Dispatch and Disconnect; the REST layer
// calls the Publish methods after a successful write.
type Gateway struct {
	registry *Registry
	deps     Deps
	opts     Options
	log      *eventLogger
	handlers map[string]handlerFunc
}

func New(deps Deps, opts Options, l *logger.Logger) *Gateway {
	if opts.EventsPerSecond <= 0 {
		opts.EventsPerSecond = DefaultOptions().EventsPerSecond
	}
	if opts.EventBurst <= 0 {
		opts.EventBurst = DefaultOptions().EventBurst
	}
	if opts.PresenceRefresh <= 0 {
		opts.PresenceRefresh = DefaultOptions().PresenceRefresh
	}
	g := &Gateway{
		registry: NewRegistry(),
		deps:     deps,
		opts:     opts,
		log:      newEventLogger(l),
	}
	g.handlers = map[string]handlerFunc{
		EventJoinChat:    g.handleJoin,
		EventJoinRoom:    g.handleJoin,
		EventLeaveChat:   g.handleLeave,
		EventLeaveRoom:   g.handleLeave,
		EventSendMessage: g.handleSendMessage,
		EventTypingStart: g.handleTyping(EventUserTyping),
		EventTypingStop:  g.handleTyping(EventUserStoppedTyping),
		EventMarkRead:    g.handleMarkRead,
		EventCreateGroup: g.handleCreateGroup,
		EventJoinGroup:   g.handleJoinGroup,
		EventLeaveGroup:  g.handleLeaveGroup,
		EventPing:        g.handlePing,
	}
	return g
}

func (g *Gateway) Registry() *Registry { return g.registry }

// Connect authenticates a new connection and registers it. On error nothing
// is retained and the caller must close the transport.
func (g *Gateway) Connect(ctx context.Context, conn Conn, token string) (*Peer, error) {
	u, err := g.deps.Auth.Authenticate(ctx, token)
	if err != nil {
		return nil, err
	}
	if max := g.opts.MaxConnectionsPerUser; max > 0 && g.registry.ConnectionCount(u.ID) >= max {
		return nil, pulse_errors.Forbidden("Too many open connections")
	}

	p := &Peer{
		UserID:   u.ID,
		Username: u.Username,
		conn:     conn,
		limiter:  rate.NewLimiter(rate.Limit(g.opts.EventsPerSecond), g.opts.EventBurst),
	}
	if g.registry.Add(p) == 1 {
		g.broadcastPresence(ctx, p, EventUserOnline, time.Now())
	}
	if err := g.deps.Users.ConnectionOpened(ctx, u.ID, conn.ID()); err != nil {
		g.log.Error("presence_online", u.ID, conn.ID(), err)
	}
	g.log.Info("connected", u.ID, conn.ID())
	return p, nil
}

// Disconnect performs the same cleanup for clean and abrupt closes.
func (g *Gateway) Disconnect(ctx context.Context, connID string) {
	p, rooms, remaining, ok := g.registry.Remove(connID)
	if !ok {
		return
	}
	last := remaining == 0
	lastSeen, err := g.deps.Users.ConnectionClosed(ctx, p.UserID, connID, last)
	if err != nil {
		g.log.Error("presence_offline", p.UserID, connID, err)
	}
	if last {
		payload := PresencePayload{UserID: p.UserID, Timestamp: lastSeen}
		g.fanout(g.peersIn(rooms, ""), EventUserOffline, payload)
	}
	g.log.Info("disconnected", p.UserID, connID, zap.Int("rooms", len(rooms)), zap.Bool("last", last))
}

// KeepPresence refreshes presence for every connected user each
// PresenceRefresh until ctx is done. Idle connections send no events, so
// nothing else would keep their records alive.
func (g *Gateway) KeepPresence(ctx context.Context) {
	ticker := time.NewTicker(g.opts.PresenceRefresh)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			g.RefreshPresence(ctx)
		}
	}
}

// RefreshPresence heartbeats each connected user once.
func (g *Gateway) RefreshPresence(ctx context.Context) {
	for _, userID := range g.registry.OnlineUsers() {
		if err := g.deps.Users.Heartbeat(ctx, userID); err != nil {
			g.log.Error("heartbeat_failed", userID, "", err)
		}
	}
}

// Dispatch handles one inbound event. Events from the same connection are
// handled one at a time in arrival order.
func (g *Gateway) Dispatch(ctx context.Context, connID, event string, payload json.RawMessage) {
	p, ok := g.registry.Get(connID)
	if !ok {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.limiter.Allow() {
		g.log.Warn("rate_limited", p.UserID, connID, zap.String("msg_type", event))
		g.emitError(p, event, pulse_errors.ErrRateLimited)
		return
	}
	h, ok := g.handlers[event]
	if !ok {
		g.log.Warn("unknown_event", p.UserID, connID, zap.String("msg_type", event))
		g.emitError(p, event, pulse_errors.Invalid("Unknown event "+event))
		return
	}
	if err := h(ctx, p, payload); err != nil {
		if pulse_errors.IsInternal(err) {
			g.log.Error("handle_event", p.UserID, connID, err, zap.String("msg_type", event))
		}
		g.emitError(p, event, err)
	}
}

func (g *Gateway) emitError(p *Peer, event string, err error) {
	g.send(p, EventError, ErrorPayload{
		Event:   event,
		Message: pulse_errors.PublicMessage(err),
		Code:    pulse_errors.Code(err),
	})
}

// send is fire-and-forget; a failed write only gets logged.
func (g *Gateway) send(p *Peer, event string, payload any) {
	if err := p.send(event, payload); err != nil {
		g.log.Warn("send_failed", p.UserID, p.ID(), zap.String("msg_type", event), zap.Error(err))
	}
}

func (g *Gateway) fanout(peers []*Peer, event string, payload any) {
	for _, p := range peers {
		g.send(p, event, payload)
	}
}

// peersIn collects the distinct connections subscribed to any of rooms,
// skipping those owned by excludeUser.
func (g *Gateway) peersIn(rooms []string, excludeUser string) []*Peer {
	seen := make(map[string]struct{})
	var out []*Peer
	for _, chatID := range rooms {
		for _, p := range g.registry.RoomPeers(chatID) {
			if p.UserID == excludeUser {
				continue
			}
			if _, ok := seen[p.ID()]; ok {
				continue
			}
			seen[p.ID()] = struct{}{}
			out = append(out, p)
		}
	}
	return out
}

// broadcastPresence tells the online contacts of p's user, anyone sharing a
// chat session with them, that the user came online.
func (g *Gateway) broadcastPresence(ctx context.Context, p *Peer, event string, at time.Time) {
	sessions, err := g.deps.Conversations.ListSessions(ctx, p.UserID, true)
	if err != nil {
		g.log.Error("presence_broadcast", p.UserID, p.ID(), err)
		return
	}
	notified := make(map[string]struct{})
	payload := PresencePayload{UserID: p.UserID, Timestamp: at}
	for _, s := range sessions {
		for _, id := range s.OtherParticipants(p.UserID) {
			if _, ok := notified[id]; ok {
				continue
			}
			notified[id] = struct{}{}
			g.fanout(g.registry.UserPeers(id), event, payload)
		}
	}
}

// PublishMessage notifies the room of a persisted message and records
// delivery for every other participant holding a connection in that room.
func (g *Gateway) PublishMessage(ctx context.Context, msg chat.Message) MessageStatusPayload {
	return g.publishMessage(ctx, msg, "")
}

func (g *Gateway) publishMessage(ctx context.Context, msg chat.Message, tempID string) MessageStatusPayload {
	roomPeers := g.registry.RoomPeers(msg.ChatID)
	g.fanout(roomPeers, EventNewMessage, NewMessagePayload{ChatID: msg.ChatID, Message: msg, TempID: tempID})

	// participants who are online but have not joined the room still learn
	// about the message so their chat list can update
	inRoom := make(map[string]struct{}, len(roomPeers))
	for _, p := range roomPeers {
		inRoom[p.UserID] = struct{}{}
	}
	session, err := g.deps.Conversations.GetSession(ctx, msg.ChatID, msg.SenderID)
	if err != nil {
		g.log.Error("publish_message", msg.SenderID, "", err, zap.String("chat_id", msg.ChatID))
	} else {
		for _, id := range session.OtherParticipants(msg.SenderID) {
			if _, ok := inRoom[id]; ok {
				continue
			}
			g.fanout(g.registry.UserPeers(id), EventNewMessage, NewMessagePayload{ChatID: msg.ChatID, Message: msg})
		}
	}

	var online []string
	for _, id := range g.registry.UsersInRoom(msg.ChatID) {
		if id == msg.SenderID {
			continue
		}
		if err == nil && !session.IsParticipant(id) {
			continue
		}
		online = append(online, id)
	}

	status := MessageStatusPayload{ChatID: msg.ChatID, MessageID: msg.ID, Status: chat.StatusSent}
	if len(online) > 0 {
		if _, err := g.deps.Messages.MarkDelivered(ctx, msg.ID, online); err != nil {
			g.log.Error("mark_delivered", msg.SenderID, "", err, zap.String("message_id", msg.ID))
		} else {
			status.Status = chat.StatusDelivered
			status.DeliveredTo = online
		}
	}
	g.fanout(g.registry.RoomPeers(msg.ChatID), EventMessageStatus, status)
	return status
}

// PublishRead broadcasts read receipts to the chat room.
func (g *Gateway) PublishRead(ctx context.Context, receipt services.ReadReceipt) {
	peers := g.registry.RoomPeers(receipt.ChatID)
	for _, id := range receipt.MessageIDs {
		g.fanout(peers, EventMessageStatus, MessageStatusPayload{
			ChatID:    receipt.ChatID,
			MessageID: id,
			Status:    chat.StatusRead,
			ReadBy:    receipt.UserID,
		})
	}
}

func (g *Gateway) PublishDeleted(ctx context.Context, msg chat.Message) {
	g.fanout(g.registry.RoomPeers(msg.ChatID), EventMessageDeleted, MessageDeletedPayload{ChatID: msg.ChatID, MessageID: msg.ID})
}

// PublishGroupChange notifies the room and every online member of a
// membership or profile change. Users who left or were removed stop
// receiving the room's traffic.
func (g *Gateway) PublishGroupChange(ctx context.Context, group services.GroupView, action, userID string) {
	chatID := group.ChatID()
	users := group.ActiveMemberIDs()

	// the invite code is only shown to members allowed to invite
	group.InviteCode, group.InviteLink = "", ""
	payload := GroupChangePayload{ChatID: chatID, GroupID: group.ID, Action: action, UserID: userID, Group: group}

	targets := g.registry.RoomPeers(chatID)
	seen := make(map[string]struct{}, len(targets))
	for _, p := range targets {
		seen[p.ID()] = struct{}{}
	}
	if userID != "" {
		users = append(users, userID)
	}
	for _, id := range users {
		for _, p := range g.registry.UserPeers(id) {
			if _, ok := seen[p.ID()]; ok {
				continue
			}
			seen[p.ID()] = struct{}{}
			targets = append(targets, p)
		}
	}
	g.fanout(targets, EventGroupUpdated, payload)

	if action == GroupLeft || action == GroupMemberRemoved {
		for _, p := range g.registry.LeaveUser(userID, chatID) {
			g.send(p, EventLeftChat, RoomPayload{ChatID: chatID})
		}
	}
}
