package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

// PresenceStatus represents a user's online status
type PresenceStatus struct {
	UserID   string    `json:"userId"`
	IsOnline bool      `json:"isOnline"`
	LastSeen time.Time `json:"lastSeen"`
}

// PresenceStore tracks live connections per user. A user is online while at
// least one connection is registered.
type PresenceStore struct {
	client    *goredis.Client
	publisher *Publisher
	ttl       time.Duration
}

// Redis key prefixes for presence
const (
	presenceKeyPrefix    = "presence:"        // JSON PresenceStatus per user
	presenceOnlineSet    = "presence:online"  // Set of online user IDs
	connectionsKeyPrefix = "connections:"     // Hash connID -> connected_at per user
	presenceChannel      = "channel:presence" // pub/sub channel for changes
)

// NewPresenceStore creates a new presence store. publisher may be nil.
func NewPresenceStore(client *goredis.Client, publisher *Publisher, ttl time.Duration) *PresenceStore {
	if ttl == 0 {
		ttl = 5 * time.Minute // Default TTL for presence data
	}
	return &PresenceStore{
		client:    client,
		publisher: publisher,
		ttl:       ttl,
	}
}

// AddConnection registers connID for userID and returns how many connections
// the user now has. The first connection publishes the online change.
func (p *PresenceStore) AddConnection(ctx context.Context, userID, connID string, at time.Time) (int64, error) {
	key := connectionsKeyPrefix + userID

	pipe := p.client.TxPipeline()
	pipe.HSet(ctx, key, connID, at.UTC().Format(time.RFC3339))
	pipe.Expire(ctx, key, p.ttl)
	count := pipe.HLen(ctx, key)
	p.markOnline(ctx, pipe, userID, at)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, err
	}

	if count.Val() == 1 {
		if err := p.publish(ctx, PresenceStatus{UserID: userID, IsOnline: true, LastSeen: at}); err != nil {
			return count.Val(), err
		}
	}
	return count.Val(), nil
}

// RemoveConnection drops connID and returns the remaining count. last comes
// from the caller's connection registry, not from the hash, which may have
// expired under an idle user: when set the user goes offline with
// lastSeen = at, otherwise the online record is refreshed.
func (p *PresenceStore) RemoveConnection(ctx context.Context, userID, connID string, at time.Time, last bool) (int64, error) {
	if last {
		return 0, p.SetOffline(ctx, userID, at)
	}
	key := connectionsKeyPrefix + userID

	pipe := p.client.TxPipeline()
	pipe.HDel(ctx, key, connID)
	pipe.Expire(ctx, key, p.ttl)
	count := pipe.HLen(ctx, key)
	p.markOnline(ctx, pipe, userID, at)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, err
	}
	return count.Val(), nil
}

func (p *PresenceStore) markOnline(ctx context.Context, pipe goredis.Pipeliner, userID string, at time.Time) {
	data, _ := json.Marshal(PresenceStatus{UserID: userID, IsOnline: true, LastSeen: at})
	pipe.Set(ctx, presenceKeyPrefix+userID, data, p.ttl)
	pipe.SAdd(ctx, presenceOnlineSet, userID)
}

func (p *PresenceStore) ConnectionCount(ctx context.Context, userID string) (int64, error) {
	return p.client.HLen(ctx, connectionsKeyPrefix+userID).Result()
}

// SetOffline marks a user as offline
func (p *PresenceStore) SetOffline(ctx context.Context, userID string, at time.Time) error {
	status := PresenceStatus{UserID: userID, IsOnline: false, LastSeen: at}
	data, _ := json.Marshal(status)

	pipe := p.client.Pipeline()
	pipe.Set(ctx, presenceKeyPrefix+userID, data, 24*time.Hour) // Keep offline status longer for last_seen queries
	pipe.SRem(ctx, presenceOnlineSet, userID)
	pipe.Del(ctx, connectionsKeyPrefix+userID)
	if _, err := pipe.Exec(ctx); err != nil {
		return err
	}
	return p.publish(ctx, status)
}

// Heartbeat rewrites the online record of a connected user and extends the
// connection hash. It recreates the record if it has already expired.
func (p *PresenceStore) Heartbeat(ctx context.Context, userID string, at time.Time) error {
	pipe := p.client.TxPipeline()
	pipe.Expire(ctx, connectionsKeyPrefix+userID, p.ttl)
	p.markOnline(ctx, pipe, userID, at)
	_, err := pipe.Exec(ctx)
	return err
}

// GetPresence returns the stored status. ok is false when nothing is known
// about the user.
func (p *PresenceStore) GetPresence(ctx context.Context, userID string) (status PresenceStatus, ok bool, err error) {
	data, err := p.client.Get(ctx, presenceKeyPrefix+userID).Result()
	if err == goredis.Nil {
		return PresenceStatus{UserID: userID}, false, nil
	}
	if err != nil {
		return PresenceStatus{}, false, err
	}
	if err := json.Unmarshal([]byte(data), &status); err != nil {
		return PresenceStatus{}, false, err
	}
	return status, true, nil
}

// IsOnline checks if a user is online
func (p *PresenceStore) IsOnline(ctx context.Context, userID string) (bool, error) {
	return p.client.SIsMember(ctx, presenceOnlineSet, userID).Result()
}

// GetOnlineCount returns the count of online users
func (p *PresenceStore) GetOnlineCount(ctx context.Context) (int64, error) {
	return p.client.SCard(ctx, presenceOnlineSet).Result()
}

func (p *PresenceStore) publish(ctx context.Context, status PresenceStatus) error {
	if p.publisher == nil {
		return nil
	}
	data, err := json.Marshal(status)
	if err != nil {
		return err
	}
	return p.publisher.Publish(ctx, fmt.Sprintf("%s:%s", presenceChannel, status.UserID), data)
}
