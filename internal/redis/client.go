package redis

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/mossy-p/screenview-signaling/config"
	"github.com/mossy-p/screenview-signaling/internal/router"
	"github.com/redis/go-redis/v9"
)

const (
	keyPrefix = "screenview:"
	roomTTL   = 24 * time.Hour
	opTimeout = 2 * time.Second
)

var _ router.Presence = (*Presence)(nil)

// Presence mirrors room membership into Redis so tools outside the process
// can see who is connected. The relay never reads it back.
type Presence struct {
	client *redis.Client
	logger *slog.Logger
}

// Connect initializes the Redis client and checks the connection
func Connect(ctx context.Context, cfg config.RedisConfig, logger *slog.Logger) (*Presence, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%s", cfg.Host, cfg.Port),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	// Test connection
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return NewPresence(client, logger), nil
}

// NewPresence wraps an existing client
func NewPresence(client *redis.Client, logger *slog.Logger) *Presence {
	if logger == nil {
		logger = slog.Default()
	}
	return &Presence{client: client, logger: logger}
}

// Close closes the Redis connection
func (p *Presence) Close() error {
	return p.client.Close()
}

func hostKey(room string) string    { return keyPrefix + "room:" + room + ":host" }
func viewersKey(room string) string { return keyPrefix + "room:" + room + ":viewers" }

func (p *Presence) RoomOpened(ctx context.Context, room, hostID string) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	_, err := p.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, viewersKey(room))
		pipe.Set(ctx, hostKey(room), hostID, roomTTL)
		return nil
	})
	p.check("RoomOpened", room, err)
}

func (p *Presence) RoomClosed(ctx context.Context, room string) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	err := p.client.Del(ctx, hostKey(room), viewersKey(room)).Err()
	p.check("RoomClosed", room, err)
}

func (p *Presence) ViewerAdded(ctx context.Context, room, viewerID string) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	_, err := p.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.SAdd(ctx, viewersKey(room), viewerID)
		pipe.Expire(ctx, viewersKey(room), roomTTL)
		return nil
	})
	p.check("ViewerAdded", room, err)
}

func (p *Presence) ViewerRemoved(ctx context.Context, room, viewerID string) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	err := p.client.SRem(ctx, viewersKey(room), viewerID).Err()
	p.check("ViewerRemoved", room, err)
}

// Reset deletes every mirrored key
func (p *Presence) Reset(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	iter := p.client.Scan(ctx, 0, keyPrefix+"room:*", 100).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		p.check("Reset", "", err)
		return
	}
	if len(keys) > 0 {
		p.check("Reset", "", p.client.Del(ctx, keys...).Err())
	}
}

// Viewers returns the mirrored viewer ids of a room
func (p *Presence) Viewers(ctx context.Context, room string) ([]string, error) {
	ids, err := p.client.SMembers(ctx, viewersKey(room)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read viewers of room %s: %w", room, err)
	}
	return ids, nil
}

// Host returns the mirrored host connection id of a room
func (p *Presence) Host(ctx context.Context, room string) (string, error) {
	id, err := p.client.Get(ctx, hostKey(room)).Result()
	if err != nil {
		return "", fmt.Errorf("failed to read host of room %s: %w", room, err)
	}
	return id, nil
}

func (p *Presence) check(op, room string, err error) {
	if err != nil {
		p.logger.Warn("Redis presence update failed", "op", op, "room", room, "error", err)
	}
}
