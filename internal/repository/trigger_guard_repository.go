package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisTriggerGuard marks tournaments whose automation run is in flight. The marker is shared by
// every processor instance and expires after ttl in case a consumer dies before releasing it.
type RedisTriggerGuard struct {
	client redis.UniversalClient
	ttl    time.Duration
}

// NewRedisTriggerGuard constructs the guard.
func NewRedisTriggerGuard(client redis.UniversalClient, ttl time.Duration) *RedisTriggerGuard {
	if ttl <= 0 {
		ttl = 2 * time.Hour
	}
	return &RedisTriggerGuard{client: client, ttl: ttl}
}

func triggerKey(tournamentID int64) string {
	return fmt.Sprintf("automation:pending:%d", tournamentID)
}

// Acquire returns true when this caller placed the marker.
func (g *RedisTriggerGuard) Acquire(ctx context.Context, tournamentID int64) (bool, error) {
	ok, err := g.client.SetNX(ctx, triggerKey(tournamentID), time.Now().UTC().Unix(), g.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("acquire automation trigger %d: %w", tournamentID, err)
	}
	return ok, nil
}

// Release clears the marker.
func (g *RedisTriggerGuard) Release(ctx context.Context, tournamentID int64) error {
	if err := g.client.Del(ctx, triggerKey(tournamentID)).Err(); err != nil {
		return fmt.Errorf("release automation trigger %d: %w", tournamentID, err)
	}
	return nil
}

// Pending reports whether a marker is currently held.
func (g *RedisTriggerGuard) Pending(ctx context.Context, tournamentID int64) (bool, error) {
	n, err := g.client.Exists(ctx, triggerKey(tournamentID)).Result()
	if err != nil {
		return false, fmt.Errorf("check automation trigger %d: %w", tournamentID, err)
	}
	return n > 0, nil
}
