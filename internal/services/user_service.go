package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"pulse-chat/internal/domain/user"
	"pulse-chat/internal/redis"
	"pulse-chat/internal/repository"
	pulse_errors "pulse-chat/pkg/errors"
)

// UserService reads the user directory and keeps presence in sync with live
// connections. The redis presence store is optional.
type UserService struct {
	repo     repository.UserRepository
	presence *redis.PresenceStore
}

func NewUserService(repo repository.UserRepository, presence *redis.PresenceStore) *UserService {
	return &UserService{repo: repo, presence: presence}
}

func (s *UserService) GetByID(ctx context.Context, userID string) (user.User, error) {
	u, err := s.repo.GetByID(ctx, userID)
	if errors.Is(err, pulse_errors.ErrNotFound) {
		return user.User{}, pulse_errors.NotFound("User not found")
	}
	return u, err
}

// ConnectionOpened records a new live connection and marks the user online.
// The users table is written even when redis fails; both errors are
// returned joined.
func (s *UserService) ConnectionOpened(ctx context.Context, userID, connID string) error {
	now := time.Now()
	err := s.repo.SetPresence(ctx, userID, true, now)
	if s.presence != nil {
		if _, perr := s.presence.AddConnection(ctx, userID, connID, now); perr != nil {
			err = errors.Join(err, fmt.Errorf("redis presence: %w", perr))
		}
	}
	return err
}

// ConnectionClosed drops a live connection. last comes from the gateway's
// registry; when set the user goes offline with lastSeen = now.
func (s *UserService) ConnectionClosed(ctx context.Context, userID, connID string, last bool) (time.Time, error) {
	now := time.Now()
	var err error
	if last {
		err = s.repo.SetPresence(ctx, userID, false, now)
	}
	if s.presence != nil {
		if _, perr := s.presence.RemoveConnection(ctx, userID, connID, now, last); perr != nil {
			err = errors.Join(err, fmt.Errorf("redis presence: %w", perr))
		}
	}
	return now, err
}

// Heartbeat keeps the redis presence record of a connected user alive.
func (s *UserService) Heartbeat(ctx context.Context, userID string) error {
	if s.presence == nil {
		return nil
	}
	return s.presence.Heartbeat(ctx, userID, time.Now())
}

type Presence struct {
	UserID   string     `json:"userId"`
	IsOnline bool       `json:"isOnline"`
	LastSeen *time.Time `json:"lastSeen,omitempty"`
}

// GetPresence prefers the redis view and falls back to the users table.
func (s *UserService) GetPresence(ctx context.Context, userID string) (Presence, error) {
	if s.presence != nil {
		status, ok, err := s.presence.GetPresence(ctx, userID)
		if err == nil && ok {
			p := Presence{UserID: userID, IsOnline: status.IsOnline}
			if !status.LastSeen.IsZero() {
				seen := status.LastSeen
				p.LastSeen = &seen
			}
			return p, nil
		}
	}
	u, err := s.GetByID(ctx, userID)
	if err != nil {
		return Presence{}, err
	}
	return Presence{UserID: u.ID, IsOnline: u.IsOnline, LastSeen: u.LastSeenAt}, nil
}
