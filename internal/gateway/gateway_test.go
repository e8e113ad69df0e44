package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"pulse-chat/config"
	"pulse-chat/internal/domain/chat"
	"pulse-chat/internal/domain/user"
	"pulse-chat/internal/proxy"
	pulseredis "pulse-chat/internal/redis"
	"pulse-chat/internal/repository/memory"
	"pulse-chat/internal/services"
	pulse_errors "pulse-chat/pkg/errors"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sentEvent struct {
	Event   string
	Payload any
}

type fakeConn struct {
	id     string
	mu     sync.Mutex
	events []sentEvent
	closed bool
}

func newFakeConn() *fakeConn {
	return &fakeConn{id: uuid.New().String()}
}

func (c *fakeConn) ID() string { return c.id }

func (c *fakeConn) Send(event string, payload any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return errors.New("closed")
	}
	c.events = append(c.events, sentEvent{Event: event, Payload: payload})
	return nil
}

func (c *fakeConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func (c *fakeConn) of(event string) []any {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []any
	for _, e := range c.events {
		if e.Event == event {
			out = append(out, e.Payload)
		}
	}
	return out
}

func (c *fakeConn) reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = nil
}

type harness struct {
	gw       *Gateway
	store    *memory.Store
	auth     *services.AuthService
	messages *services.MessageService
	groups   *services.GroupService
}

func newHarness(t *testing.T, opts Options) *harness {
	t.Helper()
	return newHarnessWithPresence(t, opts, nil)
}

func newHarnessWithPresence(t *testing.T, opts Options, presence *pulseredis.PresenceStore) *harness {
	t.Helper()
	store := memory.NewStore()
	for _, u := range []user.User{
		{ID: "1", Username: "alice"},
		{ID: "2", Username: "bob"},
		{ID: "3", Username: "carol"},
		{ID: "4", Username: "dave"},
		{ID: "5", Username: "erin"},
	} {
		u := u
		require.NoError(t, store.Users().Save(context.Background(), &u))
	}
	access := proxy.NewAccessControl()
	auth := services.NewAuthService(store.Users(), &config.Config{JWTSecret: "test-secret", JWTExpiryHours: 1})
	h := &harness{
		store:    store,
		auth:     auth,
		messages: services.NewMessageService(store, access),
		groups:   services.NewGroupService(store, access, "https://chat.example/invite"),
	}
	h.gw = New(Deps{
		Auth:          auth,
		Users:         services.NewUserService(store.Users(), presence),
		Conversations: services.NewConversationService(store, access),
		Messages:      h.messages,
		Groups:        h.groups,
	}, opts, nil)
	return h
}

func (h *harness) token(t *testing.T, userID string) string {
	t.Helper()
	u, err := h.store.Users().GetByID(context.Background(), userID)
	require.NoError(t, err)
	token, err := h.auth.IssueAccessToken(u)
	require.NoError(t, err)
	return token
}

func (h *harness) connect(t *testing.T, userID string) *fakeConn {
	t.Helper()
	conn := newFakeConn()
	_, err := h.gw.Connect(context.Background(), conn, h.token(t, userID))
	require.NoError(t, err)
	return conn
}

func (h *harness) emit(conn *fakeConn, event string, payload any) {
	raw, _ := json.Marshal(payload)
	h.gw.Dispatch(context.Background(), conn.ID(), event, raw)
}

func lastError(t *testing.T, conn *fakeConn) ErrorPayload {
	t.Helper()
	errs := conn.of(EventError)
	require.NotEmpty(t, errs, "expected an error event")
	return errs[len(errs)-1].(ErrorPayload)
}

func TestConnectRejectsBadCredentials(t *testing.T) {
	h := newHarness(t, DefaultOptions())

	_, err := h.gw.Connect(context.Background(), newFakeConn(), "")
	assert.True(t, errors.Is(err, pulse_errors.ErrUnauthorized))

	_, err = h.gw.Connect(context.Background(), newFakeConn(), "not-a-jwt")
	assert.True(t, errors.Is(err, pulse_errors.ErrUnauthorized))

	ghost, err := h.auth.IssueAccessToken(user.User{ID: "404", Username: "ghost"})
	require.NoError(t, err)
	_, err = h.gw.Connect(context.Background(), newFakeConn(), ghost)
	assert.True(t, errors.Is(err, pulse_errors.ErrUnauthorized))

	assert.Zero(t, h.gw.Registry().Len())
}

func TestConnectionLimitPerUser(t *testing.T) {
	opts := DefaultOptions()
	opts.MaxConnectionsPerUser = 1
	h := newHarness(t, opts)

	h.connect(t, "1")
	_, err := h.gw.Connect(context.Background(), newFakeConn(), h.token(t, "1"))
	assert.True(t, errors.Is(err, pulse_errors.ErrForbidden))
}

func TestPresenceAcrossConnections(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, DefaultOptions())
	_, err := h.messages.SendPrivate(ctx, "1", "2", chat.MessageInput{Content: "hi"})
	require.NoError(t, err)

	bob := h.connect(t, "2")
	h.emit(bob, EventJoinChat, map[string]string{"chatId": "private_1_2"})

	alice1 := h.connect(t, "1")
	online := bob.of(EventUserOnline)
	require.Len(t, online, 1)
	assert.Equal(t, "1", online[0].(PresencePayload).UserID)

	alice2 := h.connect(t, "1")
	assert.Len(t, bob.of(EventUserOnline), 1, "second connection is not a presence change")

	h.emit(alice1, EventJoinChat, map[string]string{"chatId": "private_1_2"})
	h.gw.Disconnect(ctx, alice1.ID())
	assert.Empty(t, bob.of(EventUserOffline), "still online through another connection")

	u, err := h.store.Users().GetByID(ctx, "1")
	require.NoError(t, err)
	assert.True(t, u.IsOnline)

	h.emit(alice2, EventJoinChat, map[string]string{"chatId": "private_1_2"})
	h.gw.Disconnect(ctx, alice2.ID())
	offline := bob.of(EventUserOffline)
	require.Len(t, offline, 1)
	assert.Equal(t, "1", offline[0].(PresencePayload).UserID)

	u, err = h.store.Users().GetByID(ctx, "1")
	require.NoError(t, err)
	assert.False(t, u.IsOnline)
	assert.NotNil(t, u.LastSeenAt)
	assert.False(t, h.gw.Registry().IsOnline("1"))
}

func TestJoinRequiresMembership(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, DefaultOptions())
	_, err := h.messages.SendPrivate(ctx, "1", "2", chat.MessageInput{Content: "hi"})
	require.NoError(t, err)

	carol := h.connect(t, "3")
	h.emit(carol, EventJoinChat, map[string]string{"chatId": "private_1_2"})
	assert.Equal(t, "FORBIDDEN", lastError(t, carol).Code)
	assert.False(t, h.gw.Registry().InRoom(carol.ID(), "private_1_2"))

	h.emit(carol, EventJoinChat, map[string]string{"chatId": ""})
	assert.Equal(t, "INVALID_REQUEST", lastError(t, carol).Code)

	bob := h.connect(t, "2")
	h.emit(bob, EventJoinRoom, map[string]string{"chatId": "private_1_2"})
	require.Len(t, bob.of(EventJoinedChat), 1)
	assert.True(t, h.gw.Registry().InRoom(bob.ID(), "private_1_2"))

	h.emit(bob, EventLeaveChat, map[string]string{"chatId": "private_1_2"})
	assert.False(t, h.gw.Registry().InRoom(bob.ID(), "private_1_2"))
	h.emit(bob, EventLeaveChat, map[string]string{"chatId": "private_1_2"})
	assert.Empty(t, bob.of(EventError), "leaving twice is a no-op")
}

func TestDeliveryStatusFollowsRoomPresence(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, DefaultOptions())
	g, err := h.groups.Create(ctx, "3", chat.GroupParams{Name: "Team", MemberIDs: []string{"4", "5"}})
	require.NoError(t, err)
	chatID := g.ChatID()

	carol := h.connect(t, "3")
	h.emit(carol, EventJoinChat, map[string]string{"chatId": chatID})

	// nobody else around yet
	h.emit(carol, EventSendMessage, map[string]string{"chatId": chatID, "content": "first"})
	statuses := carol.of(EventMessageStatus)
	require.Len(t, statuses, 1)
	assert.Equal(t, chat.StatusSent, statuses[0].(MessageStatusPayload).Status)

	dave := h.connect(t, "4")
	h.emit(dave, EventJoinChat, map[string]string{"chatId": chatID})
	carol.reset()

	h.emit(carol, EventSendMessage, map[string]string{"chatId": chatID, "content": "second"})
	require.Empty(t, carol.of(EventError))

	received := dave.of(EventNewMessage)
	require.Len(t, received, 1)
	msg := received[0].(NewMessagePayload).Message
	assert.Equal(t, "second", msg.Content)

	statuses = carol.of(EventMessageStatus)
	require.Len(t, statuses, 1)
	status := statuses[0].(MessageStatusPayload)
	assert.Equal(t, chat.StatusDelivered, status.Status)
	assert.Equal(t, []string{"4"}, status.DeliveredTo)

	stored, err := h.store.Messages().GetByID(ctx, msg.ID)
	require.NoError(t, err)
	assert.True(t, stored.IsDeliveredTo("4"))
	assert.False(t, stored.IsDeliveredTo("5"))
}

func TestFirstPrivateMessageReachesReceiverOutsideRoom(t *testing.T) {
	h := newHarness(t, DefaultOptions())
	alice := h.connect(t, "1")
	bob := h.connect(t, "2")

	h.emit(alice, EventSendMessage, map[string]any{"receiverId": "2", "content": "hey", "tempId": "t1"})
	require.Empty(t, alice.of(EventError))

	own := alice.of(EventNewMessage)
	require.Len(t, own, 1)
	assert.Equal(t, "t1", own[0].(NewMessagePayload).TempID)
	assert.True(t, h.gw.Registry().InRoom(alice.ID(), "private_1_2"))

	require.Len(t, bob.of(EventNewMessage), 1)
	status := alice.of(EventMessageStatus)[0].(MessageStatusPayload)
	assert.Equal(t, chat.StatusSent, status.Status, "bob has not joined the room")
}

func TestSendMessageErrorsAreScoped(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, DefaultOptions())
	g, err := h.groups.Create(ctx, "3", chat.GroupParams{Name: "Team", MemberIDs: []string{"4"}})
	require.NoError(t, err)

	dave := h.connect(t, "4")
	h.emit(dave, EventJoinChat, map[string]string{"chatId": g.ChatID()})
	alice := h.connect(t, "1")

	h.emit(alice, EventSendMessage, map[string]string{"chatId": g.ChatID(), "content": "hi"})
	assert.Equal(t, "FORBIDDEN", lastError(t, alice).Code)
	assert.Empty(t, dave.of(EventNewMessage))

	h.emit(dave, EventSendMessage, map[string]string{"chatId": g.ChatID(), "content": "   "})
	assert.Equal(t, "INVALID_REQUEST", lastError(t, dave).Code)

	h.emit(dave, "teleport", map[string]string{})
	assert.Equal(t, "INVALID_REQUEST", lastError(t, dave).Code)
}

func TestTypingRelay(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, DefaultOptions())
	_, err := h.messages.SendPrivate(ctx, "1", "2", chat.MessageInput{Content: "hi"})
	require.NoError(t, err)

	alice := h.connect(t, "1")
	aliceTab := h.connect(t, "1")
	bob := h.connect(t, "2")
	for _, c := range []*fakeConn{alice, aliceTab, bob} {
		h.emit(c, EventJoinChat, map[string]string{"chatId": "private_1_2"})
	}

	h.emit(alice, EventTypingStart, map[string]string{"receiverId": "2"})
	typing := bob.of(EventUserTyping)
	require.Len(t, typing, 1)
	assert.Equal(t, TypingPayload{ChatID: "private_1_2", UserID: "1", Username: "alice"}, typing[0])
	assert.Empty(t, aliceTab.of(EventUserTyping), "own connections are skipped")

	h.emit(alice, EventTypingStop, map[string]string{"chatId": "private_1_2"})
	assert.Len(t, bob.of(EventUserStoppedTyping), 1)

	carol := h.connect(t, "3")
	h.emit(carol, EventTypingStart, map[string]string{"chatId": "private_1_2"})
	assert.Equal(t, "FORBIDDEN", lastError(t, carol).Code)
}

func TestMarkReadBroadcastsReceipt(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, DefaultOptions())
	msg, err := h.messages.SendPrivate(ctx, "1", "2", chat.MessageInput{Content: "hi"})
	require.NoError(t, err)

	alice := h.connect(t, "1")
	bob := h.connect(t, "2")
	h.emit(alice, EventJoinChat, map[string]string{"chatId": msg.ChatID})
	h.emit(bob, EventJoinChat, map[string]string{"chatId": msg.ChatID})

	h.emit(bob, EventMarkRead, map[string]string{"chatId": msg.ChatID, "messageId": msg.ID})
	statuses := alice.of(EventMessageStatus)
	require.Len(t, statuses, 1)
	assert.Equal(t, MessageStatusPayload{ChatID: msg.ChatID, MessageID: msg.ID, Status: chat.StatusRead, ReadBy: "2"}, statuses[0])

	// marking again changes nothing and broadcasts nothing
	h.emit(bob, EventMarkRead, map[string]string{"chatId": msg.ChatID, "messageId": msg.ID})
	assert.Len(t, alice.of(EventMessageStatus), 1)

	session, err := h.store.Sessions().GetByChatID(ctx, msg.ChatID)
	require.NoError(t, err)
	assert.Equal(t, 0, session.UnreadFor("2"))
}

func TestGroupLifecycleEvents(t *testing.T) {
	h := newHarness(t, DefaultOptions())
	carol := h.connect(t, "3")
	dave := h.connect(t, "4")
	alice := h.connect(t, "1")

	h.emit(carol, EventCreateGroup, map[string]any{"name": "Team", "memberIds": []string{"4"}})
	require.Empty(t, carol.of(EventError))
	created := dave.of(EventGroupUpdated)
	require.Len(t, created, 1)
	change := created[0].(GroupChangePayload)
	assert.Equal(t, GroupCreated, change.Action)
	assert.True(t, h.gw.Registry().InRoom(carol.ID(), change.ChatID))

	h.emit(alice, EventJoinGroup, map[string]string{"groupId": change.GroupID})
	require.Empty(t, alice.of(EventError))
	assert.True(t, h.gw.Registry().InRoom(alice.ID(), change.ChatID))
	joined := carol.of(EventGroupUpdated)
	require.Len(t, joined, 2)
	assert.Equal(t, GroupJoined, joined[1].(GroupChangePayload).Action)

	h.emit(alice, EventLeaveGroup, map[string]string{"groupId": change.GroupID})
	require.Empty(t, alice.of(EventError))
	assert.False(t, h.gw.Registry().InRoom(alice.ID(), change.ChatID))
	left := carol.of(EventGroupUpdated)
	require.Len(t, left, 3)
	assert.Equal(t, GroupLeft, left[2].(GroupChangePayload).Action)

	h.emit(carol, EventLeaveGroup, map[string]string{"groupId": change.GroupID})
	assert.Equal(t, "FORBIDDEN", lastError(t, carol).Code)
	assert.Len(t, carol.of(EventGroupUpdated), 3, "failed actions broadcast nothing")
}

func TestEventsAreRateLimited(t *testing.T) {
	h := newHarness(t, Options{EventsPerSecond: 0.001, EventBurst: 1})
	alice := h.connect(t, "1")

	h.emit(alice, EventPing, nil)
	assert.Len(t, alice.of(EventPong), 1)

	h.emit(alice, EventPing, nil)
	assert.Len(t, alice.of(EventPong), 1)
	assert.Equal(t, "RATE_LIMITED", lastError(t, alice).Code)
}

func TestDisconnectIsIdempotent(t *testing.T) {
	h := newHarness(t, DefaultOptions())
	alice := h.connect(t, "1")
	h.gw.Disconnect(context.Background(), alice.ID())
	h.gw.Disconnect(context.Background(), alice.ID())
	assert.Zero(t, h.gw.Registry().Len())

	// events from a gone connection are ignored
	h.emit(alice, EventPing, nil)
	assert.Empty(t, alice.of(EventPong))
}

func TestRefreshPresenceKeepsIdleUsersOnline(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	presence := pulseredis.NewPresenceStore(client, nil, 5*time.Minute)
	h := newHarnessWithPresence(t, DefaultOptions(), presence)

	h.connect(t, "1")
	h.connect(t, "1")
	h.connect(t, "2")

	for i := 0; i < 3; i++ {
		mr.FastForward(4 * time.Minute)
		h.gw.RefreshPresence(ctx)
	}

	for _, id := range []string{"1", "2"} {
		status, ok, err := presence.GetPresence(ctx, id)
		require.NoError(t, err)
		require.True(t, ok, "user %s expired", id)
		assert.True(t, status.IsOnline)
	}
	n, err := presence.ConnectionCount(ctx, "1")
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)
}

func TestKeepPresenceStopsWithContext(t *testing.T) {
	h := newHarness(t, Options{PresenceRefresh: time.Millisecond})
	h.connect(t, "1")

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		h.gw.KeepPresence(ctx)
		close(done)
	}()
	time.Sleep(5 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("KeepPresence did not return after cancel")
	}
}
