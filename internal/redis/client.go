package redis

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/mossy-p/signaling-relay/config"
	"github.com/mossy-p/signaling-relay/internal/presence"
	"github.com/redis/go-redis/v9"
)

const (
	opTimeout = 2 * time.Second
	keyTTL    = 24 * time.Hour
)

// Mirror copies room membership into Redis sets so dashboards outside the
// relay can read it. The relay itself never reads them back.
type Mirror struct {
	client *redis.Client
}

// Connect initializes the Redis client and checks the connection
func Connect(cfg config.RedisConfig) (*Mirror, error) {
	client := redis.NewClient(&redis.Options{
		Addr:        fmt.Sprintf("%s:%s", cfg.Host, cfg.Port),
		Password:    cfg.Password,
		DB:          cfg.DB,
		DialTimeout: opTimeout,
	})

	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &Mirror{client: client}, nil
}

// Close closes the Redis connection
func (m *Mirror) Close() error {
	if m.client != nil {
		return m.client.Close()
	}
	return nil
}

// Observer returns a presence observer writing under the given variant
// ("polling" or "live").
func (m *Mirror) Observer(variant string) presence.Observer {
	return &observer{client: m.client, variant: variant}
}

// PeersKey is the set holding a room's peer ids.
func PeersKey(variant, roomID string) string {
	return "relay:" + variant + ":room:" + roomID + ":peers"
}

type observer struct {
	client  *redis.Client
	variant string
}

func (o *observer) PeerJoined(roomID, peerID string) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	key := PeersKey(o.variant, roomID)
	pipe := o.client.TxPipeline()
	pipe.SAdd(ctx, key, peerID)
	pipe.Expire(ctx, key, keyTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		slog.Warn("presence mirror: add peer", "room", roomID, "peer", peerID, "error", err)
	}
}

func (o *observer) PeerLeft(roomID, peerID string) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	if err := o.client.SRem(ctx, PeersKey(o.variant, roomID), peerID).Err(); err != nil {
		slog.Warn("presence mirror: remove peer", "room", roomID, "peer", peerID, "error", err)
	}
}

func (o *observer) RoomClosed(roomID string) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	if err := o.client.Del(ctx, PeersKey(o.variant, roomID)).Err(); err != nil {
		slog.Warn("presence mirror: delete room", "room", roomID, "error", err)
	}
}
