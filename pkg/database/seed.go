package database

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strconv"
	"time"

	"pulse-chat/internal/domain/chat"
	"pulse-chat/internal/domain/user"
	"pulse-chat/internal/repository"
	pulse_errors "pulse-chat/pkg/errors"
)

// SeedConfig holds configuration for seeding development data
type SeedConfig struct {
	TestUserCount   int
	CreateDemoChats bool
	InviteBaseURL   string
}

// DefaultSeedConfig returns default seed configuration
func DefaultSeedConfig() *SeedConfig {
	return &SeedConfig{
		TestUserCount:   5,
		CreateDemoChats: true,
		InviteBaseURL:   "http://localhost:3000/invite",
	}
}

// SeedResult holds the result of the seeding operation
type SeedResult struct {
	Users    []*user.User
	Group    *chat.Group
	Sessions []string
}

var testUserNames = []string{"alice", "bob", "carol", "dave", "erin", "frank", "grace", "heidi"}

// Seed inserts development users and, optionally, a private chat between the
// first two users and a group owned by the third. Re-running it is safe.
func Seed(ctx context.Context, store repository.Store, cfg *SeedConfig) (*SeedResult, error) {
	if cfg == nil {
		cfg = DefaultSeedConfig()
	}

	log.Println("Starting database seeding...")
	result := &SeedResult{}

	users, err := seedTestUsers(ctx, store, cfg.TestUserCount)
	if err != nil {
		return nil, fmt.Errorf("failed to seed test users: %w", err)
	}
	result.Users = users

	if cfg.CreateDemoChats && len(users) >= 5 {
		chatID, err := seedPrivateChat(ctx, store, users[0], users[1])
		if err != nil {
			return nil, fmt.Errorf("failed to seed private chat: %w", err)
		}
		result.Sessions = append(result.Sessions, chatID)

		g, err := seedGroup(ctx, store, users[2], users[3:5], cfg.InviteBaseURL)
		if err != nil {
			return nil, fmt.Errorf("failed to seed group: %w", err)
		}
		if g != nil {
			result.Group = g
			result.Sessions = append(result.Sessions, g.ChatID())
		}
	}

	log.Println("Database seeding completed successfully!")
	return result, nil
}

// seedTestUsers creates users with ids "1".."count" so that tokens are easy to
// mint by hand during development.
func seedTestUsers(ctx context.Context, store repository.Store, count int) ([]*user.User, error) {
	users := make([]*user.User, 0, count)
	for i := 1; i <= count; i++ {
		name := "user" + strconv.Itoa(i)
		if i <= len(testUserNames) {
			name = testUserNames[i-1]
		}
		u := &user.User{
			ID:          strconv.Itoa(i),
			Username:    name,
			DisplayName: name,
			CreatedAt:   time.Now(),
			UpdatedAt:   time.Now(),
		}
		if err := store.Users().Save(ctx, u); err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	log.Printf("Seeded %d test users", len(users))
	return users, nil
}

func seedPrivateChat(ctx context.Context, store repository.Store, a, b *user.User) (string, error) {
	now := time.Now()
	s, err := chat.NewPrivateSession(a.ID, b.ID, now)
	if err != nil {
		return "", err
	}
	stored, err := store.Sessions().UpsertPrivate(ctx, s)
	if err != nil {
		return "", err
	}
	if stored.LastMessage.ID != "" {
		return stored.ChatID, nil
	}

	msg, err := chat.NewPrivateMessage(a.ID, b.ID, chat.MessageInput{Content: "Hey " + b.Name() + "!"}, now)
	if err != nil {
		return "", err
	}
	err = store.WithinTx(ctx, func(tx repository.Store) error {
		if err := tx.Messages().Create(ctx, msg); err != nil {
			return err
		}
		if err := tx.Sessions().UpdateLastMessage(ctx, stored.ChatID, chat.SnapshotOf(msg), now); err != nil {
			return err
		}
		return tx.Sessions().IncrementUnread(ctx, stored.ChatID, []string{b.ID})
	})
	return stored.ChatID, err
}

// seedGroup creates the demo group once; an existing group owned by the same
// creator with the same name is left alone.
func seedGroup(ctx context.Context, store repository.Store, creator *user.User, members []*user.User, inviteBase string) (*chat.Group, error) {
	existing, err := store.Groups().ListForUser(ctx, creator.ID)
	if err != nil {
		return nil, err
	}
	for i := range existing {
		if existing[i].Name == "Team" && existing[i].CreatorID == creator.ID {
			log.Println("Demo group already exists, skipping creation")
			return nil, nil
		}
	}

	ids := make([]string, 0, len(members))
	for _, m := range members {
		ids = append(ids, m.ID)
	}
	g, err := chat.NewGroup(creator.ID, chat.GroupParams{
		Name:        "Team",
		Description: "Demo group",
		MemberIDs:   ids,
		Tags:        []string{"demo"},
		Category:    "general",
	}, inviteBase, time.Now())
	if err != nil {
		return nil, err
	}

	err = store.WithinTx(ctx, func(tx repository.Store) error {
		if err := tx.Groups().Create(ctx, g); err != nil {
			return err
		}
		return tx.Sessions().Create(ctx, chat.NewGroupSession(g, g.CreatedAt))
	})
	if errors.Is(err, pulse_errors.ErrConflict) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return g, nil
}
