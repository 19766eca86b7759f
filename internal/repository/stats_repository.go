package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/tourney-pipeline/internal/models"
)

// StatsRepository replaces derived roster and statistics rows. Every write clears before inserting.
type StatsRepository struct {
	db *sqlx.DB
}

// NewStatsRepository constructs the repository.
func NewStatsRepository(db *sqlx.DB) *StatsRepository {
	return &StatsRepository{db: db}
}

func (r *StatsRepository) exec(exec sqlx.ExtContext) sqlx.ExtContext {
	if exec != nil {
		return exec
	}
	return r.db
}

// MatchStats groups the derived rows of one match.
type MatchStats struct {
	MatchID      int64
	GameRosters  []models.GameRoster
	MatchRosters []models.MatchRoster
	PlayerStats  []models.PlayerMatchStats
}

// ReplaceMatchStats clears and rebuilds rosters and player match stats for one match.
func (r *StatsRepository) ReplaceMatchStats(ctx context.Context, exec sqlx.ExtContext, stats MatchStats) error {
	target := r.exec(exec)

	// Every game of the match is cleared, including games that lost their verdict since the last run.
	const clearGames = `DELETE FROM game_rosters WHERE game_id IN (SELECT id FROM games WHERE match_id = $1)`
	if _, err := target.ExecContext(ctx, clearGames, stats.MatchID); err != nil {
		return fmt.Errorf("clear game rosters: %w", err)
	}
	const clearMatch = `DELETE FROM match_rosters WHERE match_id = $1`
	if _, err := target.ExecContext(ctx, clearMatch, stats.MatchID); err != nil {
		return fmt.Errorf("clear match rosters: %w", err)
	}
	const clearPlayers = `DELETE FROM player_match_stats WHERE match_id = $1`
	if _, err := target.ExecContext(ctx, clearPlayers, stats.MatchID); err != nil {
		return fmt.Errorf("clear player match stats: %w", err)
	}

	const insertGame = `INSERT INTO game_rosters (game_id, team, roster, score) VALUES (:game_id, :team, :roster, :score)`
	for i := range stats.GameRosters {
		if _, err := sqlx.NamedExecContext(ctx, target, insertGame, &stats.GameRosters[i]); err != nil {
			return fmt.Errorf("insert game roster: %w", err)
		}
	}
	const insertMatch = `INSERT INTO match_rosters (match_id, team, roster, score) VALUES (:match_id, :team, :roster, :score)`
	for i := range stats.MatchRosters {
		if _, err := sqlx.NamedExecContext(ctx, target, insertMatch, &stats.MatchRosters[i]); err != nil {
			return fmt.Errorf("insert match roster: %w", err)
		}
	}
	const insertPlayer = `INSERT INTO player_match_stats (player_id, match_id, match_cost, average_score, average_placement,
       average_misses, average_accuracy, games_played, games_won, games_lost, won, teammate_ids, opponent_ids)
VALUES (:player_id, :match_id, :match_cost, :average_score, :average_placement,
       :average_misses, :average_accuracy, :games_played, :games_won, :games_lost, :won, :teammate_ids, :opponent_ids)`
	for i := range stats.PlayerStats {
		if _, err := sqlx.NamedExecContext(ctx, target, insertPlayer, &stats.PlayerStats[i]); err != nil {
			return fmt.Errorf("insert player match stats: %w", err)
		}
	}
	return nil
}

// ListPlayerMatchStats returns the player match stats of every Verified match in a tournament.
func (r *StatsRepository) ListPlayerMatchStats(ctx context.Context, exec sqlx.ExtContext, tournamentID int64) ([]models.PlayerMatchStats, error) {
	const query = `SELECT s.id, s.player_id, s.match_id, s.match_cost, s.average_score, s.average_placement, s.average_misses,
       s.average_accuracy, s.games_played, s.games_won, s.games_lost, s.won, s.teammate_ids, s.opponent_ids
FROM player_match_stats s JOIN matches m ON m.id = s.match_id
WHERE m.tournament_id = $1 AND m.verification_status = $2
ORDER BY s.player_id, s.match_id`
	var rows []models.PlayerMatchStats
	if err := sqlx.SelectContext(ctx, r.exec(exec), &rows, query, tournamentID, models.VerificationStatusVerified); err != nil {
		return nil, fmt.Errorf("list player match stats: %w", err)
	}
	return rows, nil
}

// RatingAdjustmentCounts counts the upstream rating adjustments each player received for the tournament's matches.
func (r *StatsRepository) RatingAdjustmentCounts(ctx context.Context, tournamentID int64) (map[int64]int, error) {
	const query = `SELECT a.player_id, COUNT(*) AS adjustments FROM rating_adjustments a
JOIN matches m ON m.id = a.match_id
WHERE m.tournament_id = $1
GROUP BY a.player_id`
	var rows []struct {
		PlayerID    int64 `db:"player_id"`
		Adjustments int   `db:"adjustments"`
	}
	if err := r.db.SelectContext(ctx, &rows, query, tournamentID); err != nil {
		return nil, fmt.Errorf("count rating adjustments: %w", err)
	}
	counts := make(map[int64]int, len(rows))
	for _, row := range rows {
		counts[row.PlayerID] = row.Adjustments
	}
	return counts, nil
}

// ReplaceTournamentStats clears and rebuilds player tournament stats.
func (r *StatsRepository) ReplaceTournamentStats(ctx context.Context, exec sqlx.ExtContext, tournamentID int64, stats []models.PlayerTournamentStats) error {
	target := r.exec(exec)
	const clear = `DELETE FROM player_tournament_stats WHERE tournament_id = $1`
	if _, err := target.ExecContext(ctx, clear, tournamentID); err != nil {
		return fmt.Errorf("clear player tournament stats: %w", err)
	}
	const insert = `INSERT INTO player_tournament_stats (player_id, tournament_id, average_match_cost, average_score,
       average_placement, average_accuracy, matches_played, matches_won, matches_lost, games_played, games_won,
       games_lost, teammate_ids)
VALUES (:player_id, :tournament_id, :average_match_cost, :average_score,
       :average_placement, :average_accuracy, :matches_played, :matches_won, :matches_lost, :games_played, :games_won,
       :games_lost, :teammate_ids)`
	for i := range stats {
		if _, err := sqlx.NamedExecContext(ctx, target, insert, &stats[i]); err != nil {
			return fmt.Errorf("insert player tournament stats: %w", err)
		}
	}
	return nil
}
