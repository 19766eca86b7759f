package repository

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/tourney-pipeline/internal/models"
)

func newRedisFixture(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	srv := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: srv.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return srv, client
}

func matchKey(id int64) models.ReservationKey {
	return models.ReservationKey{Type: models.ResourceMatch, ID: id, Platform: models.PlatformOsu}
}

func TestReservationLifecycle(t *testing.T) {
	srv, client := newRedisFixture(t)
	repo := NewReservationRepository(client)
	ctx := context.Background()
	key := matchKey(42)

	status, err := repo.Status(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, models.ReservationAvailable, status)

	ok, err := repo.TryReserve(ctx, key, time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.True(t, srv.Exists("dedup:match:osu:pending:42"))

	ok, err = repo.TryReserve(ctx, key, time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)

	status, err = repo.Status(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, models.ReservationPending, status)

	require.NoError(t, repo.MarkCompleted(ctx, key, time.Hour))
	assert.False(t, srv.Exists("dedup:match:osu:pending:42"))

	status, err = repo.Status(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, models.ReservationRecentlyProcessed, status)

	ok, err = repo.TryReserve(ctx, key, time.Minute)
	require.NoError(t, err)
	assert.False(t, ok, "processed marker must block new reservations")

	srv.FastForward(time.Hour + time.Second)

	ok, err = repo.TryReserve(ctx, key, time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestReservationReleaseAllowsRetry(t *testing.T) {
	_, client := newRedisFixture(t)
	repo := NewReservationRepository(client)
	ctx := context.Background()
	key := matchKey(7)

	ok, err := repo.TryReserve(ctx, key, time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, repo.Release(ctx, key))

	ok, err = repo.TryReserve(ctx, key, time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestReservationPendingExpires(t *testing.T) {
	srv, client := newRedisFixture(t)
	repo := NewReservationRepository(client)
	ctx := context.Background()
	key := matchKey(8)

	ok, err := repo.TryReserve(ctx, key, time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	srv.FastForward(2 * time.Minute)

	ok, err = repo.TryReserve(ctx, key, time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestReservationConcurrentReserveWinsOnce(t *testing.T) {
	_, client := newRedisFixture(t)
	repo := NewReservationRepository(client)
	ctx := context.Background()
	key := matchKey(99)

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins int
	)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := repo.TryReserve(ctx, key, time.Minute)
			assert.NoError(t, err)
			if ok {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, wins)
}

func TestReservationBatchOperations(t *testing.T) {
	_, client := newRedisFixture(t)
	repo := NewReservationRepository(client)
	ctx := context.Background()
	keys := []models.ReservationKey{matchKey(1), matchKey(2), matchKey(3)}

	ok, err := repo.TryReserve(ctx, keys[1], time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	results, err := repo.TryReserveBatch(ctx, keys, time.Minute)
	require.NoError(t, err)
	assert.Equal(t, []bool{true, false, true}, results)

	require.NoError(t, repo.MarkCompletedBatch(ctx, keys[:1], time.Hour))
	require.NoError(t, repo.ReleaseBatch(ctx, keys[2:]))

	statuses, err := repo.StatusBatch(ctx, keys)
	require.NoError(t, err)
	assert.Equal(t, []models.ReservationStatus{
		models.ReservationRecentlyProcessed,
		models.ReservationPending,
		models.ReservationAvailable,
	}, statuses)
}

func TestRedisTriggerGuard(t *testing.T) {
	srv, client := newRedisFixture(t)
	guard := NewRedisTriggerGuard(client, time.Minute)
	ctx := context.Background()

	ok, err := guard.Acquire(ctx, 5)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = guard.Acquire(ctx, 5)
	require.NoError(t, err)
	assert.False(t, ok)

	pending, err := guard.Pending(ctx, 5)
	require.NoError(t, err)
	assert.True(t, pending)

	require.NoError(t, guard.Release(ctx, 5))
	ok, err = guard.Acquire(ctx, 5)
	require.NoError(t, err)
	assert.True(t, ok)

	srv.FastForward(2 * time.Minute)
	pending, err = guard.Pending(ctx, 5)
	require.NoError(t, err)
	assert.False(t, pending, "safety ttl must clear an abandoned marker")
}
