package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/noah-isme/tourney-pipeline/internal/models"
	"github.com/noah-isme/tourney-pipeline/internal/repository"
	"github.com/noah-isme/tourney-pipeline/internal/stats"
	appErrors "github.com/noah-isme/tourney-pipeline/pkg/errors"
	"github.com/noah-isme/tourney-pipeline/pkg/jobs"
)

// JobTypeTournamentStats identifies stats jobs on the worker queue.
const JobTypeTournamentStats = "tournament_stats"

type statsTournamentStore interface {
	LoadTree(ctx context.Context, id int64) (*models.Tournament, error)
	MarkStatsProcessed(ctx context.Context, exec sqlx.ExtContext, id int64, at time.Time) error
}

type statsStore interface {
	ReplaceMatchStats(ctx context.Context, exec sqlx.ExtContext, stats repository.MatchStats) error
	ListPlayerMatchStats(ctx context.Context, exec sqlx.ExtContext, tournamentID int64) ([]models.PlayerMatchStats, error)
	RatingAdjustmentCounts(ctx context.Context, tournamentID int64) (map[int64]int, error)
	ReplaceTournamentStats(ctx context.Context, exec sqlx.ExtContext, tournamentID int64, stats []models.PlayerTournamentStats) error
}

// StatsResult reports what one stats run produced.
type StatsResult struct {
	TournamentID   int64 `json:"tournamentId"`
	MatchesScored  int   `json:"matchesScored"`
	MatchesSkipped int   `json:"matchesSkipped"`
	Players        int   `json:"players"`
}

// StatsService rebuilds rosters and player statistics for verified tournaments.
type StatsService struct {
	tournaments statsTournamentStore
	stats       statsStore
	tx          txProvider
	metrics     *MetricsService
	logger      *zap.Logger
	now         func() time.Time
}

// NewStatsService wires the reducer.
func NewStatsService(tournaments statsTournamentStore, statsRepo statsStore, tx txProvider, metrics *MetricsService, logger *zap.Logger) *StatsService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StatsService{
		tournaments: tournaments,
		stats:       statsRepo,
		tx:          tx,
		metrics:     metrics,
		logger:      logger,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// ProcessTournament clears and rebuilds every derived row of a Verified tournament. Running it twice
// produces identical rows.
func (s *StatsService) ProcessTournament(ctx context.Context, tournamentID int64) (result StatsResult, err error) {
	started := time.Now()
	defer func() {
		outcome := "ok"
		if err != nil {
			outcome = "error"
		}
		s.metrics.ObserveStatsRun(outcome, time.Since(started))
	}()

	result.TournamentID = tournamentID
	tournament, err := s.tournaments.LoadTree(ctx, tournamentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return result, appErrors.Clone(appErrors.ErrNotFound, "tournament not found")
		}
		return result, err
	}
	if tournament.VerificationStatus != models.VerificationStatusVerified {
		s.logger.Error("stats requested for unverified tournament",
			zap.Int64("tournament_id", tournamentID), zap.Stringer("status", tournament.VerificationStatus))
		return result, appErrors.Clone(appErrors.ErrNotVerified, fmt.Sprintf("tournament %d is not verified", tournamentID))
	}

	for _, match := range tournament.VerifiedMatches() {
		if err := s.processMatch(ctx, match); err != nil {
			if errors.Is(err, appErrors.ErrStructural) {
				s.logger.Sugar().Warnw("skipping match stats", "tournament_id", tournamentID, "match_id", match.ID, "error", err)
				result.MatchesSkipped++
				continue
			}
			return result, err
		}
		result.MatchesScored++
	}

	players, err := s.processTournamentStats(ctx, tournamentID)
	if err != nil {
		return result, err
	}
	result.Players = players

	s.logger.Info("tournament stats rebuilt",
		zap.Int64("tournament_id", tournamentID),
		zap.Int("matches", result.MatchesScored),
		zap.Int("skipped", result.MatchesSkipped),
		zap.Int("players", players))
	return result, nil
}

func (s *StatsService) processMatch(ctx context.Context, match *models.Match) (err error) {
	verified := match.VerifiedGames()
	if len(verified) == 0 {
		return appErrors.Clone(appErrors.ErrStructural, "match has no verified games")
	}

	payload := repository.MatchStats{MatchID: match.ID}
	byGame := make(map[int64][]models.GameRoster, len(verified))
	perGame := make([][]models.GameRoster, 0, len(verified))
	for _, game := range verified {
		rosters := stats.GameRosters(game)
		if len(rosters) == 0 {
			s.logger.Warn("skipping game without rosters", zap.Int64("match_id", match.ID), zap.Int64("game_id", game.ID))
			continue
		}
		payload.GameRosters = append(payload.GameRosters, rosters...)
		byGame[game.ID] = rosters
		perGame = append(perGame, rosters)
	}
	payload.MatchRosters = stats.MatchRosters(match.ID, perGame)

	playerStats, err := stats.PlayerMatchStats(match, byGame, payload.MatchRosters)
	if err != nil {
		if errors.Is(err, stats.ErrNoRosters) {
			return appErrors.Wrap(err, appErrors.ErrStructural.Code, appErrors.ErrStructural.Status, "match produced no rosters")
		}
		return err
	}
	payload.PlayerStats = playerStats

	tx, err := s.tx.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin match stats transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()
	if err = s.stats.ReplaceMatchStats(ctx, tx, payload); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit match stats transaction: %w", err)
	}
	return nil
}

func (s *StatsService) processTournamentStats(ctx context.Context, tournamentID int64) (players int, err error) {
	adjustments, err := s.stats.RatingAdjustmentCounts(ctx, tournamentID)
	if err != nil {
		return 0, err
	}

	tx, err := s.tx.BeginTxx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin tournament stats transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	matchStats, err := s.stats.ListPlayerMatchStats(ctx, tx, tournamentID)
	if err != nil {
		return 0, err
	}
	rows := stats.PlayerTournamentStats(tournamentID, matchStats, adjustments)
	if err = s.stats.ReplaceTournamentStats(ctx, tx, tournamentID, rows); err != nil {
		return 0, err
	}
	if err = s.tournaments.MarkStatsProcessed(ctx, tx, tournamentID, s.now()); err != nil {
		return 0, err
	}
	if err = tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit tournament stats transaction: %w", err)
	}
	return len(rows), nil
}

// StatsWorker bridges queue jobs to StatsService.
type StatsWorker struct {
	service *StatsService
	logger  *zap.Logger
}

// NewStatsWorker constructs a worker.
func NewStatsWorker(service *StatsService, logger *zap.Logger) *StatsWorker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StatsWorker{service: service, logger: logger}
}

// NewStatsJob builds a queue job for one tournament.
func NewStatsJob(tournamentID int64) jobs.Job {
	return jobs.Job{
		ID:      strconv.FormatInt(tournamentID, 10),
		Type:    JobTypeTournamentStats,
		Payload: tournamentID,
	}
}

// Handle processes a queue job. Precondition failures are not retried.
func (w *StatsWorker) Handle(ctx context.Context, job jobs.Job) error {
	tournamentID, ok := job.Payload.(int64)
	if !ok {
		return jobs.Permanent(fmt.Errorf("stats job %s: unexpected payload %T", job.ID, job.Payload))
	}
	_, err := w.service.ProcessTournament(ctx, tournamentID)
	if err == nil {
		return nil
	}
	if errors.Is(err, appErrors.ErrNotVerified) || errors.Is(err, appErrors.ErrNotFound) {
		return jobs.Permanent(err)
	}
	w.logger.Sugar().Warnw("stats job failed", "tournament_id", tournamentID, "attempt", job.Attempt, "error", err)
	return err
}
