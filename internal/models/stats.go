package models

import (
	"time"

	"github.com/lib/pq"
)

// GameRoster is one team's composition and summed score in a game.
type GameRoster struct {
	ID     int64         `db:"id" json:"id"`
	GameID int64         `db:"game_id" json:"gameId"`
	Team   Team          `db:"team" json:"team"`
	Roster pq.Int64Array `db:"roster" json:"roster"`
	Score  int64         `db:"score" json:"score"`
}

// MatchRoster is one team's composition in a match. Score counts the games the team won.
type MatchRoster struct {
	ID      int64         `db:"id" json:"id"`
	MatchID int64         `db:"match_id" json:"matchId"`
	Team    Team          `db:"team" json:"team"`
	Roster  pq.Int64Array `db:"roster" json:"roster"`
	Score   int           `db:"score" json:"score"`
}

// PlayerMatchStats summarises one player's performance across the verified games of a match.
type PlayerMatchStats struct {
	ID               int64         `db:"id" json:"id"`
	PlayerID         int64         `db:"player_id" json:"playerId"`
	MatchID          int64         `db:"match_id" json:"matchId"`
	MatchCost        float64       `db:"match_cost" json:"matchCost"`
	AverageScore     float64       `db:"average_score" json:"averageScore"`
	AveragePlacement float64       `db:"average_placement" json:"averagePlacement"`
	AverageMisses    float64       `db:"average_misses" json:"averageMisses"`
	AverageAccuracy  float64       `db:"average_accuracy" json:"averageAccuracy"`
	GamesPlayed      int           `db:"games_played" json:"gamesPlayed"`
	GamesWon         int           `db:"games_won" json:"gamesWon"`
	GamesLost        int           `db:"games_lost" json:"gamesLost"`
	Won              bool          `db:"won" json:"won"`
	TeammateIDs      pq.Int64Array `db:"teammate_ids" json:"teammateIds"`
	OpponentIDs      pq.Int64Array `db:"opponent_ids" json:"opponentIds"`
}

// PlayerTournamentStats aggregates a player's match stats across a tournament.
type PlayerTournamentStats struct {
	ID               int64         `db:"id" json:"id"`
	PlayerID         int64         `db:"player_id" json:"playerId"`
	TournamentID     int64         `db:"tournament_id" json:"tournamentId"`
	AverageMatchCost float64       `db:"average_match_cost" json:"averageMatchCost"`
	AverageScore     float64       `db:"average_score" json:"averageScore"`
	AveragePlacement float64       `db:"average_placement" json:"averagePlacement"`
	AverageAccuracy  float64       `db:"average_accuracy" json:"averageAccuracy"`
	MatchesPlayed    int           `db:"matches_played" json:"matchesPlayed"`
	MatchesWon       int           `db:"matches_won" json:"matchesWon"`
	MatchesLost      int           `db:"matches_lost" json:"matchesLost"`
	GamesPlayed      int           `db:"games_played" json:"gamesPlayed"`
	GamesWon         int           `db:"games_won" json:"gamesWon"`
	GamesLost        int           `db:"games_lost" json:"gamesLost"`
	TeammateIDs      pq.Int64Array `db:"teammate_ids" json:"teammateIds"`
}

// RatingAdjustment is produced by the upstream rating system. It is only read here.
type RatingAdjustment struct {
	ID           int64     `db:"id" json:"id"`
	PlayerID     int64     `db:"player_id" json:"playerId"`
	MatchID      *int64    `db:"match_id" json:"matchId,omitempty"`
	Ruleset      Ruleset   `db:"ruleset" json:"ruleset"`
	RatingBefore float64   `db:"rating_before" json:"ratingBefore"`
	RatingAfter  float64   `db:"rating_after" json:"ratingAfter"`
	Timestamp    time.Time `db:"timestamp" json:"timestamp"`
}
