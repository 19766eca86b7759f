package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/noah-isme/tourney-pipeline/internal/messaging"
	"github.com/noah-isme/tourney-pipeline/internal/models"
)

// Completion check results.
const (
	TriggerPublished  = "published"
	TriggerIncomplete = "incomplete"
	TriggerDuplicate  = "duplicate"
	TriggerFailed     = "failed"
)

type matchFetchStateStore interface {
	FetchStatesByTournament(ctx context.Context, tournamentID int64) ([]models.MatchFetchState, error)
	UpdateFetchStatus(ctx context.Context, id int64, status models.FetchStatus) (int64, error)
}

type beatmapFetchStateStore interface {
	FetchStatesByTournament(ctx context.Context, tournamentID int64) ([]models.BeatmapFetchState, error)
	UpdateFetchStatus(ctx context.Context, ids []int64, status models.FetchStatus) error
}

type tournamentTimeStore interface {
	UpdateTimes(ctx context.Context, id int64, start, end *time.Time) error
	IDsReferencingBeatmap(ctx context.Context, beatmapID int64) ([]int64, error)
}

type messagePublisher interface {
	Publish(ctx context.Context, topic string, meta models.MessageMeta, payload interface{}) error
}

// TriggerGuard records tournaments whose automation run has been published but not yet consumed.
type TriggerGuard interface {
	Acquire(ctx context.Context, tournamentID int64) (bool, error)
	Release(ctx context.Context, tournamentID int64) error
	Pending(ctx context.Context, tournamentID int64) (bool, error)
}

// CompletionConfig tunes the tracker.
type CompletionConfig struct {
	// Concurrency bounds the tournaments re-checked in parallel after a beatmap update.
	Concurrency int
}

// CompletionTracker publishes an automation run once every match and beatmap of a tournament has settled.
type CompletionTracker struct {
	matches     matchFetchStateStore
	beatmaps    beatmapFetchStateStore
	tournaments tournamentTimeStore
	guard       TriggerGuard
	publisher   messagePublisher
	metrics     *MetricsService
	cfg         CompletionConfig
	logger      *zap.Logger
}

// NewCompletionTracker wires the tracker.
func NewCompletionTracker(
	matches matchFetchStateStore,
	beatmaps beatmapFetchStateStore,
	tournaments tournamentTimeStore,
	guard TriggerGuard,
	publisher messagePublisher,
	metrics *MetricsService,
	cfg CompletionConfig,
	logger *zap.Logger,
) *CompletionTracker {
	if logger == nil {
		logger = zap.NewNop()
	}
	if guard == nil {
		guard = NewMemoryTriggerGuard()
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 4
	}
	return &CompletionTracker{
		matches:     matches,
		beatmaps:    beatmaps,
		tournaments: tournaments,
		guard:       guard,
		publisher:   publisher,
		metrics:     metrics,
		cfg:         cfg,
		logger:      logger,
	}
}

// CheckAndTrigger publishes an automation run for the tournament when all of its data has settled and no
// run is already pending. It reports whether a message was published.
func (t *CompletionTracker) CheckAndTrigger(ctx context.Context, tournamentID int64) (bool, error) {
	matchStates, err := t.matches.FetchStatesByTournament(ctx, tournamentID)
	if err != nil {
		return false, err
	}
	for _, state := range matchStates {
		if !state.FetchStatus.IsTerminal() {
			t.metrics.RecordTrigger(TriggerIncomplete)
			return false, nil
		}
	}

	beatmapStates, err := t.beatmaps.FetchStatesByTournament(ctx, tournamentID)
	if err != nil {
		return false, err
	}
	for _, state := range beatmapStates {
		if !state.FetchStatus.IsTerminal() {
			t.metrics.RecordTrigger(TriggerIncomplete)
			return false, nil
		}
	}

	acquired, err := t.guard.Acquire(ctx, tournamentID)
	if err != nil {
		return false, err
	}
	if !acquired {
		t.metrics.RecordTrigger(TriggerDuplicate)
		return false, nil
	}

	if err := t.publish(ctx, tournamentID, matchStates); err != nil {
		t.metrics.RecordTrigger(TriggerFailed)
		if releaseErr := t.guard.Release(context.WithoutCancel(ctx), tournamentID); releaseErr != nil {
			t.logger.Sugar().Warnw("failed to release automation trigger", "tournament_id", tournamentID, "error", releaseErr)
		}
		return false, err
	}

	t.metrics.RecordTrigger(TriggerPublished)
	t.logger.Info("automation run triggered", zap.Int64("tournament_id", tournamentID))
	return true, nil
}

func (t *CompletionTracker) publish(ctx context.Context, tournamentID int64, states []models.MatchFetchState) error {
	start, end := matchTimeBounds(states)
	if start != nil {
		if err := t.tournaments.UpdateTimes(ctx, tournamentID, start, end); err != nil {
			return err
		}
	}

	meta := models.MessageMeta{CorrelationID: uuid.NewString(), Priority: models.PriorityNormal}
	msg := models.AutomationCheckMessage{MessageMeta: meta, TournamentID: tournamentID, ReleaseTrigger: true}
	if err := t.publisher.Publish(ctx, messaging.TopicAutomationRun, meta, msg); err != nil {
		return fmt.Errorf("publish automation run %d: %w", tournamentID, err)
	}
	return nil
}

// matchTimeBounds returns the earliest and latest match start time.
func matchTimeBounds(states []models.MatchFetchState) (*time.Time, *time.Time) {
	var start, end *time.Time
	for _, state := range states {
		if state.StartTime == nil {
			continue
		}
		ts := *state.StartTime
		if start == nil || ts.Before(*start) {
			start = &ts
		}
		if end == nil || ts.After(*end) {
			end = &ts
		}
	}
	return start, end
}

// UpdateMatchFetchStatus writes the status and, when it is terminal, re-checks the owning tournament.
func (t *CompletionTracker) UpdateMatchFetchStatus(ctx context.Context, matchID int64, status models.FetchStatus) error {
	tournamentID, err := t.matches.UpdateFetchStatus(ctx, matchID, status)
	if err != nil {
		return err
	}
	if !status.IsTerminal() {
		return nil
	}
	_, err = t.CheckAndTrigger(ctx, tournamentID)
	return err
}

// UpdateBeatmapFetchStatus writes the status for every beatmap and, when it is terminal, re-checks each
// tournament referencing any of them.
func (t *CompletionTracker) UpdateBeatmapFetchStatus(ctx context.Context, beatmapIDs []int64, status models.FetchStatus) error {
	if len(beatmapIDs) == 0 {
		return nil
	}
	if err := t.beatmaps.UpdateFetchStatus(ctx, beatmapIDs, status); err != nil {
		return err
	}
	if !status.IsTerminal() {
		return nil
	}

	seen := make(map[int64]struct{})
	var tournamentIDs []int64
	for _, id := range beatmapIDs {
		ids, err := t.tournaments.IDsReferencingBeatmap(ctx, id)
		if err != nil {
			return err
		}
		for _, tid := range ids {
			if _, ok := seen[tid]; ok {
				continue
			}
			seen[tid] = struct{}{}
			tournamentIDs = append(tournamentIDs, tid)
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(t.cfg.Concurrency)
	for _, tid := range tournamentIDs {
		tid := tid
		g.Go(func() error {
			_, err := t.CheckAndTrigger(gctx, tid)
			return err
		})
	}
	return g.Wait()
}

// Release clears the pending marker once an automation run finished.
func (t *CompletionTracker) Release(ctx context.Context, tournamentID int64) error {
	return t.guard.Release(ctx, tournamentID)
}

// MemoryTriggerGuard keeps pending markers in process memory. Only correct with a single processor instance.
type MemoryTriggerGuard struct {
	mu      sync.Mutex
	pending map[int64]struct{}
}

// NewMemoryTriggerGuard constructs an empty guard.
func NewMemoryTriggerGuard() *MemoryTriggerGuard {
	return &MemoryTriggerGuard{pending: make(map[int64]struct{})}
}

func (g *MemoryTriggerGuard) Acquire(ctx context.Context, tournamentID int64) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.pending[tournamentID]; ok {
		return false, nil
	}
	g.pending[tournamentID] = struct{}{}
	return true, nil
}

func (g *MemoryTriggerGuard) Release(ctx context.Context, tournamentID int64) error {
	g.mu.Lock()
	delete(g.pending, tournamentID)
	g.mu.Unlock()
	return nil
}

func (g *MemoryTriggerGuard) Pending(ctx context.Context, tournamentID int64) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	_, ok := g.pending[tournamentID]
	return ok, nil
}
