package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/noah-isme/tourney-pipeline/internal/models"
)

// reserveScript claims the pending key unless the resource was processed recently.
// KEYS[1] pending key, KEYS[2] processed key, ARGV[1] ttl in milliseconds.
var reserveScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[2]) == 1 then
  return 0
end
if redis.call('SET', KEYS[1], '1', 'NX', 'PX', ARGV[1]) then
  return 1
end
return 0
`)

// ReservationRepository stores fetch reservations in Redis.
type ReservationRepository struct {
	client redis.UniversalClient
	prefix string
}

// NewReservationRepository constructs the repository. Keys are namespaced under "dedup".
func NewReservationRepository(client redis.UniversalClient) *ReservationRepository {
	return &ReservationRepository{client: client, prefix: "dedup"}
}

func (r *ReservationRepository) pendingKey(key models.ReservationKey) string {
	return fmt.Sprintf("%s:%s:%s:pending:%d", r.prefix, key.Type, key.Platform, key.ID)
}

func (r *ReservationRepository) processedKey(key models.ReservationKey) string {
	return fmt.Sprintf("%s:%s:%s:processed:%d", r.prefix, key.Type, key.Platform, key.ID)
}

// TryReserve claims the key for ttl. It returns false when another worker holds it or it was processed recently.
func (r *ReservationRepository) TryReserve(ctx context.Context, key models.ReservationKey, ttl time.Duration) (bool, error) {
	res, err := reserveScript.Run(ctx, r.client, []string{r.pendingKey(key), r.processedKey(key)}, ttl.Milliseconds()).Int()
	if err != nil {
		return false, fmt.Errorf("reserve %s: %w", key, err)
	}
	return res == 1, nil
}

// TryReserveBatch claims many keys in one round trip. Results follow the order of keys.
func (r *ReservationRepository) TryReserveBatch(ctx context.Context, keys []models.ReservationKey, ttl time.Duration) ([]bool, error) {
	if len(keys) == 0 {
		return nil, nil
	}
	// the script body must be known to the pipeline, so load it once up front
	if err := reserveScript.Load(ctx, r.client).Err(); err != nil {
		return nil, fmt.Errorf("load reserve script: %w", err)
	}
	pipe := r.client.Pipeline()
	cmds := make([]*redis.Cmd, len(keys))
	for i, key := range keys {
		cmds[i] = reserveScript.EvalSha(ctx, pipe, []string{r.pendingKey(key), r.processedKey(key)}, ttl.Milliseconds())
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("reserve batch: %w", err)
	}
	out := make([]bool, len(keys))
	for i, cmd := range cmds {
		v, err := cmd.Int()
		if err != nil {
			return nil, fmt.Errorf("reserve %s: %w", keys[i], err)
		}
		out[i] = v == 1
	}
	return out, nil
}

// MarkCompleted swaps the pending key for a processed marker that lives for ttl.
func (r *ReservationRepository) MarkCompleted(ctx context.Context, key models.ReservationKey, ttl time.Duration) error {
	return r.MarkCompletedBatch(ctx, []models.ReservationKey{key}, ttl)
}

// MarkCompletedBatch completes many keys atomically in one round trip.
func (r *ReservationRepository) MarkCompletedBatch(ctx context.Context, keys []models.ReservationKey, ttl time.Duration) error {
	if len(keys) == 0 {
		return nil
	}
	pipe := r.client.TxPipeline()
	for _, key := range keys {
		pipe.Del(ctx, r.pendingKey(key))
		pipe.Set(ctx, r.processedKey(key), time.Now().UTC().Unix(), ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("complete reservations: %w", err)
	}
	return nil
}

// Release drops the pending key so the resource can be retried immediately.
func (r *ReservationRepository) Release(ctx context.Context, key models.ReservationKey) error {
	return r.ReleaseBatch(ctx, []models.ReservationKey{key})
}

// ReleaseBatch drops many pending keys with a single command.
func (r *ReservationRepository) ReleaseBatch(ctx context.Context, keys []models.ReservationKey) error {
	if len(keys) == 0 {
		return nil
	}
	names := make([]string, len(keys))
	for i, key := range keys {
		names[i] = r.pendingKey(key)
	}
	if err := r.client.Del(ctx, names...).Err(); err != nil {
		return fmt.Errorf("release reservations: %w", err)
	}
	return nil
}

// Status reports the state of one key.
func (r *ReservationRepository) Status(ctx context.Context, key models.ReservationKey) (models.ReservationStatus, error) {
	statuses, err := r.StatusBatch(ctx, []models.ReservationKey{key})
	if err != nil {
		return models.ReservationAvailable, err
	}
	return statuses[0], nil
}

// StatusBatch reports the state of many keys in one round trip. A pending claim wins over a processed marker.
func (r *ReservationRepository) StatusBatch(ctx context.Context, keys []models.ReservationKey) ([]models.ReservationStatus, error) {
	if len(keys) == 0 {
		return nil, nil
	}
	type check struct {
		pending   *redis.IntCmd
		processed *redis.IntCmd
	}
	pipe := r.client.Pipeline()
	checks := make([]check, len(keys))
	for i, key := range keys {
		checks[i] = check{
			pending:   pipe.Exists(ctx, r.pendingKey(key)),
			processed: pipe.Exists(ctx, r.processedKey(key)),
		}
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("reservation status: %w", err)
	}
	out := make([]models.ReservationStatus, len(keys))
	for i, c := range checks {
		switch {
		case c.pending.Val() > 0:
			out[i] = models.ReservationPending
		case c.processed.Val() > 0:
			out[i] = models.ReservationRecentlyProcessed
		default:
			out[i] = models.ReservationAvailable
		}
	}
	return out, nil
}
