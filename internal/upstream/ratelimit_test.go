package upstream

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/tourney-pipeline/internal/models"
)

type countingClient struct {
	calls int
}

func (c *countingClient) GetMatch(ctx context.Context, id int64) (*Match, error) {
	c.calls++
	return &Match{Match: MatchInfo{ID: id}}, nil
}

func (c *countingClient) GetBeatmap(ctx context.Context, id int64) (*Beatmap, error) {
	c.calls++
	return &Beatmap{ID: id}, nil
}

func (c *countingClient) GetBeatmapset(ctx context.Context, id int64) (*Beatmapset, error) {
	c.calls++
	return &Beatmapset{ID: id}, nil
}

func (c *countingClient) GetUser(ctx context.Context, id int64, ruleset models.Ruleset) (*User, error) {
	c.calls++
	return &User{ID: id}, nil
}

func TestRateLimitedPassesThrough(t *testing.T) {
	next := &countingClient{}
	client := NewRateLimited(next, 6000, 4)

	match, err := client.GetMatch(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, int64(1), match.Match.ID)
	_, err = client.GetBeatmap(context.Background(), 2)
	require.NoError(t, err)
	_, err = client.GetBeatmapset(context.Background(), 3)
	require.NoError(t, err)
	_, err = client.GetUser(context.Background(), 4, models.RulesetOsu)
	require.NoError(t, err)
	assert.Equal(t, 4, next.calls)
}

func TestRateLimitedStopsOnCancelledContext(t *testing.T) {
	next := &countingClient{}
	client := NewRateLimited(next, 1, 1)

	_, err := client.GetBeatmap(context.Background(), 1)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = client.GetBeatmap(ctx, 2)
	require.Error(t, err)
	assert.Equal(t, 1, next.calls)
}
