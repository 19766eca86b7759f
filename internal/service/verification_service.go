package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/noah-isme/tourney-pipeline/internal/automation"
	"github.com/noah-isme/tourney-pipeline/internal/models"
	appErrors "github.com/noah-isme/tourney-pipeline/pkg/errors"
)

// DefaultMinVerifiedMatchRatio is the share of matches that must pass for a tournament to pass.
const DefaultMinVerifiedMatchRatio = 0.8

type verificationStore interface {
	LoadTree(ctx context.Context, id int64) (*models.Tournament, error)
	SaveVerification(ctx context.Context, exec sqlx.ExtContext, t *models.Tournament) error
}

// VerificationConfig tunes the tournament rollup.
type VerificationConfig struct {
	MinVerifiedMatchRatio float64
}

// VerificationService runs the automation checks over a fully loaded tournament and persists the verdicts.
type VerificationService struct {
	tournaments verificationStore
	engine      *automation.Engine
	tx          txProvider
	cfg         VerificationConfig
	metrics     *MetricsService
	logger      *zap.Logger
}

// NewVerificationService wires the orchestrator.
func NewVerificationService(tournaments verificationStore, engine *automation.Engine, tx txProvider, cfg VerificationConfig, metrics *MetricsService, logger *zap.Logger) *VerificationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if engine == nil {
		engine = automation.NewEngine(automation.DefaultConfig())
	}
	if cfg.MinVerifiedMatchRatio <= 0 || cfg.MinVerifiedMatchRatio > 1 {
		cfg.MinVerifiedMatchRatio = DefaultMinVerifiedMatchRatio
	}
	return &VerificationService{tournaments: tournaments, engine: engine, tx: tx, cfg: cfg, metrics: metrics, logger: logger}
}

// ProcessTournament assigns Pre verdicts to the tournament and everything below it. Entities holding a
// final verdict are left alone unless override is set.
func (s *VerificationService) ProcessTournament(ctx context.Context, tournamentID int64, override bool) (models.VerificationSummary, error) {
	tournament, err := s.tournaments.LoadTree(ctx, tournamentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.VerificationSummary{}, appErrors.Clone(appErrors.ErrNotFound, "tournament not found")
		}
		return models.VerificationSummary{}, err
	}

	conversionFailed, converted := s.convert(tournament)

	if !override && tournament.VerificationStatus.IsTerminal() {
		dirty := converted
		// A confirmed rejection still owes its children the cascade.
		if tournament.VerificationStatus == models.VerificationStatusRejected && hasOpenVerdicts(tournament) {
			automation.CascadeTournament(tournament, models.VerificationStatusRejected, false)
			dirty = true
		}
		if dirty {
			if err := s.save(ctx, tournament); err != nil {
				return models.VerificationSummary{}, err
			}
		}
		s.logger.Info("tournament already finalized, skipping checks",
			zap.Int64("tournament_id", tournamentID), zap.Stringer("status", tournament.VerificationStatus))
		return models.NewVerificationSummary(tournament, true), nil
	}

	if reason := s.engine.CheckTournament(tournament); reason != models.TournamentRejectionNone ||
		tournament.VerificationStatus == models.VerificationStatusRejected {
		status := models.VerificationStatusPreRejected
		if tournament.VerificationStatus == models.VerificationStatusRejected {
			status = models.VerificationStatusRejected
			tournament.RejectionReason |= reason
		} else {
			tournament.RejectionReason = reason
		}
		tournament.VerificationStatus = status
		automation.CascadeTournament(tournament, status, override)
	} else {
		s.checkMatches(tournament, conversionFailed, override)
		s.rollup(tournament)
	}

	if err := s.save(ctx, tournament); err != nil {
		return models.VerificationSummary{}, err
	}

	summary := models.NewVerificationSummary(tournament, false)
	s.recordVerdicts(summary)
	s.logger.Info("automation checks completed",
		zap.Int64("tournament_id", tournamentID),
		zap.Stringer("status", tournament.VerificationStatus),
		zap.Int("matches", len(tournament.Matches)))
	return summary, nil
}

// convert rewrites head-to-head games of team tournaments. The returned set holds the indexes of matches
// whose lobby was too large to split.
func (s *VerificationService) convert(t *models.Tournament) (map[int]bool, bool) {
	failed := make(map[int]bool)
	changed := false
	for i := range t.Matches {
		converted, ok := automation.ConvertHeadToHead(&t.Matches[i], t)
		if !ok {
			failed[i] = true
			s.logger.Sugar().Warnw("head-to-head conversion failed", "tournament_id", t.ID, "match_id", t.Matches[i].ID)
		}
		changed = changed || converted
	}
	return failed, changed
}

func (s *VerificationService) checkMatches(t *models.Tournament, conversionFailed map[int]bool, override bool) {
	usage := automation.BeatmapUsage(t)
	for i := range t.Matches {
		match := &t.Matches[i]
		for j := range match.Games {
			game := &match.Games[j]
			for k := range game.Scores {
				score := &game.Scores[k]
				if !override && score.VerificationStatus.IsTerminal() {
					continue
				}
				score.RejectionReason = s.engine.CheckScore(score, t)
				score.VerificationStatus = verdict(score.RejectionReason == models.ScoreRejectionNone)
			}

			game.WarningFlags = automation.GameWarnings(game, t, usage)
			if override || !game.VerificationStatus.IsTerminal() {
				game.RejectionReason = s.engine.CheckGame(game, t)
				game.VerificationStatus = verdict(game.RejectionReason == models.GameRejectionNone)
			}
			if automation.IsRejected(game.VerificationStatus) {
				automation.CascadeGame(game, models.VerificationStatusPreRejected, override)
			}
		}

		match.WarningFlags = automation.MatchWarnings(match)
		if override || !match.VerificationStatus.IsTerminal() {
			match.RejectionReason = s.engine.CheckMatch(match, t)
			if conversionFailed[i] {
				match.RejectionReason |= models.MatchRejectionFailedTeamVsConversion
			}
			match.VerificationStatus = verdict(match.RejectionReason == models.MatchRejectionNone)
		}
		if automation.IsRejected(match.VerificationStatus) {
			automation.CascadeMatch(match, models.VerificationStatusPreRejected, override)
		}
	}
}

// rollup decides the tournament verdict from its match verdicts.
func (s *VerificationService) rollup(t *models.Tournament) {
	reason := models.TournamentRejectionNone
	valid := 0
	for i := range t.Matches {
		if t.Matches[i].VerificationStatus.IsValid() {
			valid++
		}
		if t.Matches[i].FetchStatus == models.FetchStatusNotFound {
			reason |= models.TournamentRejectionIncompleteData
		}
	}
	switch {
	case valid == 0:
		reason |= models.TournamentRejectionNoVerifiedMatches
	case float64(valid)/float64(len(t.Matches)) < s.cfg.MinVerifiedMatchRatio:
		reason |= models.TournamentRejectionNotEnoughVerifiedMatches
	}

	t.RejectionReason = reason
	t.VerificationStatus = verdict(reason == models.TournamentRejectionNone)
	if t.VerificationStatus == models.VerificationStatusPreRejected {
		automation.CascadeTournament(t, models.VerificationStatusPreRejected, false)
	}
}

// hasOpenVerdicts reports whether any match, game or score below t lacks a final verdict.
func hasOpenVerdicts(t *models.Tournament) bool {
	for i := range t.Matches {
		match := &t.Matches[i]
		if !match.VerificationStatus.IsTerminal() {
			return true
		}
		for j := range match.Games {
			game := &match.Games[j]
			if !game.VerificationStatus.IsTerminal() {
				return true
			}
			for k := range game.Scores {
				if !game.Scores[k].VerificationStatus.IsTerminal() {
					return true
				}
			}
		}
	}
	return false
}

func verdict(passed bool) models.VerificationStatus {
	if passed {
		return models.VerificationStatusPreVerified
	}
	return models.VerificationStatusPreRejected
}

func (s *VerificationService) save(ctx context.Context, t *models.Tournament) (err error) {
	tx, err := s.tx.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin verification transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()
	if err = s.tournaments.SaveVerification(ctx, tx, t); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit verification transaction: %w", err)
	}
	return nil
}

func (s *VerificationService) recordVerdicts(summary models.VerificationSummary) {
	s.metrics.RecordVerdicts("tournament", summary.Tournament.String(), 1)
	for status, n := range summary.Matches {
		s.metrics.RecordVerdicts("match", status.String(), n)
	}
	for status, n := range summary.Games {
		s.metrics.RecordVerdicts("game", status.String(), n)
	}
	for status, n := range summary.Scores {
		s.metrics.RecordVerdicts("score", status.String(), n)
	}
}
