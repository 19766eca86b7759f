package service

import (
	"context"
	"fmt"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/tourney-pipeline/internal/messaging"
	"github.com/noah-isme/tourney-pipeline/internal/models"
	"github.com/noah-isme/tourney-pipeline/pkg/jobs"
)

// retryableFetchStatuses are re-queued by the fetch sweep.
var retryableFetchStatuses = []models.FetchStatus{models.FetchStatusNotFetched, models.FetchStatusError}

type sweepMatchStore interface {
	ListByFetchStatus(ctx context.Context, statuses []models.FetchStatus, limit int) ([]models.Match, error)
}

type sweepBeatmapStore interface {
	ListByFetchStatus(ctx context.Context, statuses []models.FetchStatus, limit int) ([]models.BeatmapFetchState, error)
}

type sweepTournamentStore interface {
	ListVerifiedWithoutStats(ctx context.Context, limit int) ([]int64, error)
}

type jobEnqueuer interface {
	Enqueue(job jobs.Job) error
}

// SweeperConfig schedules the recovery jobs.
type SweeperConfig struct {
	FetchInterval time.Duration
	StatsInterval time.Duration
	BatchSize     int
}

// SweeperService periodically re-queues fetches that never settled and stats for newly verified tournaments.
type SweeperService struct {
	matches     sweepMatchStore
	beatmaps    sweepBeatmapStore
	tournaments sweepTournamentStore
	publisher   messagePublisher
	statsQueue  jobEnqueuer
	cfg         SweeperConfig
	logger      *zap.Logger
	scheduler   gocron.Scheduler
}

// NewSweeperService wires the sweeper. Start must be called to schedule it.
func NewSweeperService(matches sweepMatchStore, beatmaps sweepBeatmapStore, tournaments sweepTournamentStore, publisher messagePublisher, statsQueue jobEnqueuer, cfg SweeperConfig, logger *zap.Logger) *SweeperService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.FetchInterval <= 0 {
		cfg.FetchInterval = 5 * time.Minute
	}
	if cfg.StatsInterval <= 0 {
		cfg.StatsInterval = 15 * time.Minute
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	return &SweeperService{
		matches:     matches,
		beatmaps:    beatmaps,
		tournaments: tournaments,
		publisher:   publisher,
		statsQueue:  statsQueue,
		cfg:         cfg,
		logger:      logger,
	}
}

// Start schedules both sweeps. Jobs run until Stop is called or ctx is cancelled.
func (s *SweeperService) Start(ctx context.Context) error {
	scheduler, err := gocron.NewScheduler()
	if err != nil {
		return fmt.Errorf("create scheduler: %w", err)
	}

	_, err = scheduler.NewJob(
		gocron.DurationJob(s.cfg.FetchInterval),
		gocron.NewTask(func() {
			if _, err := s.SweepFetches(ctx); err != nil {
				s.logger.Sugar().Warnw("fetch sweep failed", "error", err)
			}
		}),
		gocron.WithName("fetch-sweep"),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		return fmt.Errorf("schedule fetch sweep: %w", err)
	}

	_, err = scheduler.NewJob(
		gocron.DurationJob(s.cfg.StatsInterval),
		gocron.NewTask(func() {
			if _, err := s.SweepStats(ctx); err != nil {
				s.logger.Sugar().Warnw("stats sweep failed", "error", err)
			}
		}),
		gocron.WithName("stats-sweep"),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		return fmt.Errorf("schedule stats sweep: %w", err)
	}

	scheduler.Start()
	s.scheduler = scheduler
	s.logger.Info("sweeper started",
		zap.Duration("fetch_interval", s.cfg.FetchInterval),
		zap.Duration("stats_interval", s.cfg.StatsInterval))
	return nil
}

// Stop shuts the scheduler down and waits for running sweeps.
func (s *SweeperService) Stop() error {
	if s.scheduler == nil {
		return nil
	}
	return s.scheduler.Shutdown()
}

// SweepFetches re-publishes fetch requests for matches and beatmaps left NotFetched or in Error.
// It returns the number of messages published.
func (s *SweeperService) SweepFetches(ctx context.Context) (int, error) {
	matches, err := s.matches.ListByFetchStatus(ctx, retryableFetchStatuses, s.cfg.BatchSize)
	if err != nil {
		return 0, err
	}
	beatmaps, err := s.beatmaps.ListByFetchStatus(ctx, retryableFetchStatuses, s.cfg.BatchSize)
	if err != nil {
		return 0, err
	}

	published := 0
	for _, match := range matches {
		meta := models.MessageMeta{CorrelationID: uuid.NewString(), Priority: models.PriorityLow}
		msg := models.FetchMatchMessage{MessageMeta: meta, OsuMatchID: match.OsuID}
		if err := s.publisher.Publish(ctx, messaging.TopicFetchMatch, meta, msg); err != nil {
			return published, err
		}
		published++
	}
	for _, beatmap := range beatmaps {
		meta := models.MessageMeta{CorrelationID: uuid.NewString(), Priority: models.PriorityLow}
		msg := models.FetchBeatmapMessage{MessageMeta: meta, OsuBeatmapID: beatmap.OsuID}
		if err := s.publisher.Publish(ctx, messaging.TopicFetchBeatmap, meta, msg); err != nil {
			return published, err
		}
		published++
	}
	if published > 0 {
		s.logger.Info("re-queued unsettled fetches", zap.Int("matches", len(matches)), zap.Int("beatmaps", len(beatmaps)))
	}
	return published, nil
}

// SweepStats enqueues stats jobs for Verified tournaments whose stats were never built.
func (s *SweeperService) SweepStats(ctx context.Context) (int, error) {
	ids, err := s.tournaments.ListVerifiedWithoutStats(ctx, s.cfg.BatchSize)
	if err != nil {
		return 0, err
	}
	for i, id := range ids {
		if err := s.statsQueue.Enqueue(NewStatsJob(id)); err != nil {
			return i, err
		}
	}
	if len(ids) > 0 {
		s.logger.Info("enqueued tournament stats", zap.Int("tournaments", len(ids)))
	}
	return len(ids), nil
}
