package repository

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"pulse-chat/internal/domain/chat"
	"pulse-chat/internal/domain/user"
	pulse_errors "pulse-chat/pkg/errors"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var now = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func newTestStore(t *testing.T) *GormStore {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger:                                   logger.Default.LogMode(logger.Silent),
		DisableForeignKeyConstraintWhenMigrating: true,
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, AutoMigrate(db))
	return NewGormStore(db)
}

func TestUpsertPrivateIsIdempotent(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	var wg sync.WaitGroup
	results := make([]chat.Session, 2)
	errs := make([]error, 2)
	for i, pair := range [][2]string{{"1", "2"}, {"2", "1"}} {
		wg.Add(1)
		go func(i int, a, b string) {
			defer wg.Done()
			s, err := chat.NewPrivateSession(a, b, now)
			if err != nil {
				errs[i] = err
				return
			}
			results[i], errs[i] = store.Sessions().UpsertPrivate(ctx, s)
		}(i, pair[0], pair[1])
	}
	wg.Wait()
	require.NoError(t, errs[0])
	require.NoError(t, errs[1])

	assert.Equal(t, "private_1_2", results[0].ChatID)
	assert.Equal(t, results[0].ID, results[1].ID)

	var count int64
	require.NoError(t, store.db.Model(&chat.Session{}).Count(&count).Error)
	assert.EqualValues(t, 1, count)

	got, err := store.Sessions().GetByChatID(ctx, "private_1_2")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"1", "2"}, got.ParticipantIDs())
	assert.Equal(t, map[string]int{"1": 0, "2": 0}, got.UnreadMap())
}

func TestCreateGroupSessionConflict(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	g, err := chat.NewGroup("3", chat.GroupParams{Name: "Team", MemberIDs: []string{"4", "5"}}, "", now)
	require.NoError(t, err)
	require.NoError(t, store.Groups().Create(ctx, g))

	require.NoError(t, store.Sessions().Create(ctx, chat.NewGroupSession(g, now)))
	err = store.Sessions().Create(ctx, chat.NewGroupSession(g, now))
	assert.True(t, errors.Is(err, pulse_errors.ErrConflict))

	s, err := store.Sessions().GetByChatID(ctx, g.ChatID())
	require.NoError(t, err)
	p, ok := s.Participant("3")
	require.True(t, ok)
	assert.Equal(t, chat.RoleCreator, p.Role)
	assert.Equal(t, g.ID, s.Group.ID)
}

func TestUnreadCounters(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	s, _ := chat.NewPrivateSession("1", "2", now)
	_, err := store.Sessions().UpsertPrivate(ctx, s)
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		require.NoError(t, store.Sessions().IncrementUnread(ctx, s.ChatID, []string{"2"}))
	}
	// absent counters start at one
	require.NoError(t, store.Sessions().IncrementUnread(ctx, s.ChatID, []string{"7"}))

	got, err := store.Sessions().GetByChatID(ctx, s.ChatID)
	require.NoError(t, err)
	assert.Equal(t, 3, got.UnreadFor("2"))
	assert.Equal(t, 0, got.UnreadFor("1"))
	assert.Equal(t, 1, got.UnreadFor("7"))

	require.NoError(t, store.Sessions().ClearUnread(ctx, s.ChatID, "2"))
	got, _ = store.Sessions().GetByChatID(ctx, s.ChatID)
	assert.Equal(t, 0, got.UnreadFor("2"))
	_, kept := got.UnreadMap()["2"]
	assert.True(t, kept)
}

func TestParticipantUnreadSymmetry(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	g, _ := chat.NewGroup("3", chat.GroupParams{Name: "Team", MemberIDs: []string{"4"}}, "", now)
	require.NoError(t, store.Sessions().Create(ctx, chat.NewGroupSession(g, now)))
	chatID := g.ChatID()

	added, err := store.Sessions().AddParticipant(ctx, chatID, chat.Participant{UserID: "5", Role: chat.RoleMember, JoinedAt: now})
	require.NoError(t, err)
	assert.True(t, added)

	added, err = store.Sessions().AddParticipant(ctx, chatID, chat.Participant{UserID: "5", Role: chat.RoleMember, JoinedAt: now})
	require.NoError(t, err)
	assert.False(t, added)

	got, _ := store.Sessions().GetByChatID(ctx, chatID)
	_, ok := got.UnreadMap()["5"]
	assert.True(t, ok)

	require.NoError(t, store.Sessions().IncrementUnread(ctx, chatID, []string{"5"}))
	removed, err := store.Sessions().RemoveParticipant(ctx, chatID, "5", now.Add(time.Minute))
	require.NoError(t, err)
	assert.True(t, removed)

	got, _ = store.Sessions().GetByChatID(ctx, chatID)
	assert.False(t, got.IsParticipant("5"))
	_, ok = got.UnreadMap()["5"]
	assert.False(t, ok)
	assert.True(t, got.LastActivity.Equal(now.Add(time.Minute)))

	removed, err = store.Sessions().RemoveParticipant(ctx, chatID, "99", now)
	require.NoError(t, err)
	assert.False(t, removed)

	_, err = store.Sessions().AddParticipant(ctx, "group_missing", chat.Participant{UserID: "1"})
	assert.True(t, errors.Is(err, pulse_errors.ErrNotFound))
}

func TestReceiptsAreIdempotent(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	m, err := chat.NewPrivateMessage("1", "2", chat.MessageInput{Content: "hi"}, now)
	require.NoError(t, err)
	require.NoError(t, store.Messages().Create(ctx, m))

	rec := chat.Receipt{MessageID: m.ID, UserID: "2", Kind: chat.ReceiptRead, At: now}
	added, err := store.Messages().AddReceipt(ctx, rec)
	require.NoError(t, err)
	assert.True(t, added)
	added, err = store.Messages().AddReceipt(ctx, rec)
	require.NoError(t, err)
	assert.False(t, added)

	_, err = store.Messages().AddReceipt(ctx, chat.Receipt{MessageID: m.ID, UserID: "2", Kind: chat.ReceiptDelivered, At: now})
	require.NoError(t, err)
	require.NoError(t, store.Messages().AdvanceStatus(ctx, m.ID, chat.StatusRead))
	// status never moves backwards
	require.NoError(t, store.Messages().AdvanceStatus(ctx, m.ID, chat.StatusDelivered))

	got, err := store.Messages().GetByID(ctx, m.ID)
	require.NoError(t, err)
	assert.Len(t, got.ReadBy, 1)
	assert.Len(t, got.DeliveredTo, 1)
	assert.Equal(t, chat.StatusRead, got.Status)
}

func TestDeletedMessagesAreHidden(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	var ids []string
	for i, content := range []string{"first apple", "second", "third apple"} {
		m, err := chat.NewPrivateMessage("1", "2", chat.MessageInput{Content: content}, now.Add(time.Duration(i)*time.Second))
		require.NoError(t, err)
		require.NoError(t, store.Messages().Create(ctx, m))
		ids = append(ids, m.ID)
	}
	chatID := chat.PrivateChatID("1", "2")

	require.NoError(t, store.Messages().SoftDelete(ctx, ids[2], now))
	err := store.Messages().SoftDelete(ctx, ids[2], now)
	assert.True(t, errors.Is(err, pulse_errors.ErrNotFound))

	_, err = store.Messages().GetByID(ctx, ids[2])
	assert.True(t, errors.Is(err, pulse_errors.ErrNotFound))

	page, total, err := store.Messages().ListByChat(ctx, chatID, 1, 10)
	require.NoError(t, err)
	assert.EqualValues(t, 2, total)
	require.Len(t, page, 2)
	assert.Equal(t, ids[1], page[0].ID)

	found, err := store.Messages().Search(ctx, chatID, "APPLE", 10)
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, ids[0], found[0].ID)

	latest, err := store.Messages().Latest(ctx, chatID)
	require.NoError(t, err)
	assert.Equal(t, ids[1], latest.ID)

	unread, err := store.Messages().UnreadBy(ctx, chatID, "2", 10)
	require.NoError(t, err)
	assert.ElementsMatch(t, ids[:2], unread)
}

func TestGroupMembership(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	g, err := chat.NewGroup("3", chat.GroupParams{Name: "Team", MemberIDs: []string{"4", "5"}, Tags: []string{"go"}, Category: "dev"}, "", now)
	require.NoError(t, err)
	require.NoError(t, store.Groups().Create(ctx, g))

	ok, err := store.Groups().DeactivateMember(ctx, g.ID, "3")
	require.NoError(t, err)
	assert.False(t, ok, "creator is never deactivated")

	ok, err = store.Groups().DeactivateMember(ctx, g.ID, "4")
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, store.Groups().IncrementMessageCount(ctx, g.ID))
	require.NoError(t, store.Groups().IncrementMessageCount(ctx, g.ID))

	got, err := store.Groups().GetByID(ctx, g.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, got.MemberCount())
	assert.False(t, got.IsActiveMember("4"))
	assert.EqualValues(t, 2, got.MessageCount)

	require.NoError(t, store.Groups().UpsertMember(ctx, chat.Member{GroupID: g.ID, UserID: "4", Role: chat.RoleAdmin, JoinedAt: now, LastSeen: now, IsActive: true}))
	got, _ = store.Groups().GetByID(ctx, g.ID)
	role, ok := got.RoleOf("4")
	require.True(t, ok)
	assert.Equal(t, chat.RoleAdmin, role)

	mine, err := store.Groups().ListForUser(ctx, "5")
	require.NoError(t, err)
	assert.Len(t, mine, 1)

	byCode, err := store.Groups().GetByInviteCode(ctx, g.InviteCode)
	require.NoError(t, err)
	assert.Equal(t, g.ID, byCode.ID)
}

func TestGroupSearch(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	public, _ := chat.NewGroup("1", chat.GroupParams{Name: "Gophers 100%", Tags: []string{"go"}, Category: "dev"}, "", now)
	secret, _ := chat.NewGroup("1", chat.GroupParams{Name: "Gophers hideout", Type: chat.GroupSecret}, "", now)
	other, _ := chat.NewGroup("1", chat.GroupParams{Name: "Cooking", Description: "for gophers too"}, "", now)
	for _, g := range []*chat.Group{public, secret, other} {
		require.NoError(t, store.Groups().Create(ctx, g))
	}

	found, total, err := store.Groups().Search(ctx, GroupQuery{Text: "gophers"})
	require.NoError(t, err)
	assert.EqualValues(t, 2, total)
	assert.Len(t, found, 2)

	found, _, err = store.Groups().Search(ctx, GroupQuery{Text: "100%"})
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, public.ID, found[0].ID)

	found, _, err = store.Groups().Search(ctx, GroupQuery{Tag: "go", Category: "dev"})
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, public.ID, found[0].ID)
}

func TestSearchQueriesIndexedVectorOnPostgres(t *testing.T) {
	db, err := gorm.Open(postgres.New(postgres.Config{DSN: "host=localhost user=chat dbname=chat sslmode=disable"}), &gorm.Config{
		DryRun:               true,
		DisableAutomaticPing: true,
		Logger:               logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	messages := db.ToSQL(func(tx *gorm.DB) *gorm.DB {
		var out []chat.Message
		return tx.Scopes(matchText(" hello ", messageSearchVector, "content")).Find(&out)
	})
	assert.Contains(t, messages, messageSearchVector+" @@ plainto_tsquery('simple', 'hello')")
	assert.NotContains(t, messages, "LIKE")

	groups := db.ToSQL(func(tx *gorm.DB) *gorm.DB {
		var out []chat.Group
		return tx.Scopes(matchText("gophers", groupSearchVector, "name", "description")).Find(&out)
	})
	assert.Contains(t, groups, groupSearchVector+" @@ plainto_tsquery('simple', 'gophers')")

	// sqlite has no tsvector and keeps the substring match
	fallback := newTestStore(t).db.ToSQL(func(tx *gorm.DB) *gorm.DB {
		var out []chat.Group
		return tx.Scopes(matchText("gophers", groupSearchVector, "name", "description")).Find(&out)
	})
	assert.Contains(t, fallback, "LOWER(name) LIKE")
	assert.Contains(t, fallback, "LOWER(description) LIKE")
}

func TestGetByIDForUpdateLoadsMembers(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	g, err := chat.NewGroup("1", chat.GroupParams{Name: "Locked", MemberIDs: []string{"2"}}, "", now)
	require.NoError(t, err)
	require.NoError(t, store.Groups().Create(ctx, g))

	err = store.WithinTx(ctx, func(tx Store) error {
		locked, err := tx.Groups().GetByIDForUpdate(ctx, g.ID)
		require.NoError(t, err)
		assert.Equal(t, g.MaxMembers, locked.MaxMembers)
		assert.Len(t, locked.Members, 2)
		assert.True(t, locked.IsActiveMember("2"))
		return nil
	})
	require.NoError(t, err)

	err = store.WithinTx(ctx, func(tx Store) error {
		_, err := tx.Groups().GetByIDForUpdate(ctx, "missing")
		return err
	})
	assert.True(t, errors.Is(err, pulse_errors.ErrNotFound))
}

func TestWithinTxRollsBack(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	m, _ := chat.NewPrivateMessage("1", "2", chat.MessageInput{Content: "lost"}, now)

	boom := errors.New("boom")
	err := store.WithinTx(ctx, func(tx Store) error {
		if err := tx.Messages().Create(ctx, m); err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)

	_, err = store.Messages().GetByID(ctx, m.ID)
	assert.True(t, errors.Is(err, pulse_errors.ErrNotFound))
}

func TestUserPresence(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	require.NoError(t, store.Users().Save(ctx, &user.User{ID: "1", Username: "alice"}))

	require.NoError(t, store.Users().SetPresence(ctx, "1", true, now))
	u, err := store.Users().GetByID(ctx, "1")
	require.NoError(t, err)
	assert.True(t, u.IsOnline)

	err = store.Users().SetPresence(ctx, "404", true, now)
	assert.True(t, errors.Is(err, pulse_errors.ErrNotFound))
}
