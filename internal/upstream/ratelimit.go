package upstream

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/time/rate"

	"github.com/noah-isme/tourney-pipeline/internal/models"
)

// RateLimited throttles every call of the wrapped client through one shared limiter.
type RateLimited struct {
	next    Client
	limiter *rate.Limiter
}

// NewRateLimited allows perMinute calls per minute with the given burst.
func NewRateLimited(next Client, perMinute, burst int) *RateLimited {
	if perMinute <= 0 {
		perMinute = 60
	}
	if burst <= 0 {
		burst = 1
	}
	limit := rate.Every(time.Minute / time.Duration(perMinute))
	return &RateLimited{next: next, limiter: rate.NewLimiter(limit, burst)}
}

func (r *RateLimited) wait(ctx context.Context) error {
	if err := r.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("upstream rate limit: %w", err)
	}
	return nil
}

func (r *RateLimited) GetMatch(ctx context.Context, id int64) (*Match, error) {
	if err := r.wait(ctx); err != nil {
		return nil, err
	}
	return r.next.GetMatch(ctx, id)
}

func (r *RateLimited) GetBeatmap(ctx context.Context, id int64) (*Beatmap, error) {
	if err := r.wait(ctx); err != nil {
		return nil, err
	}
	return r.next.GetBeatmap(ctx, id)
}

func (r *RateLimited) GetBeatmapset(ctx context.Context, id int64) (*Beatmapset, error) {
	if err := r.wait(ctx); err != nil {
		return nil, err
	}
	return r.next.GetBeatmapset(ctx, id)
}

func (r *RateLimited) GetUser(ctx context.Context, id int64, ruleset models.Ruleset) (*User, error) {
	if err := r.wait(ctx); err != nil {
		return nil, err
	}
	return r.next.GetUser(ctx, id, ruleset)
}
