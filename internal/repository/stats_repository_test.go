package repository

import (
	"context"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/tourney-pipeline/internal/models"
)

func TestStatsRepositoryReplaceMatchStats(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewStatsRepository(db)

	stats := MatchStats{
		MatchID: 1,
		GameRosters: []models.GameRoster{
			{GameID: 11, Team: models.TeamBlue, Roster: pq.Int64Array{3, 4}, Score: 700000},
			{GameID: 11, Team: models.TeamRed, Roster: pq.Int64Array{1, 2}, Score: 900000},
		},
		MatchRosters: []models.MatchRoster{
			{MatchID: 1, Team: models.TeamRed, Roster: pq.Int64Array{1, 2}, Score: 1},
		},
		PlayerStats: []models.PlayerMatchStats{{PlayerID: 1, MatchID: 1, MatchCost: 1.2, Won: true}},
	}

	// clears by match so games that lost their verdict drop their old rosters
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM game_rosters WHERE game_id IN (SELECT id FROM games WHERE match_id = $1)")).
		WithArgs(int64(1)).
		WillReturnResult(sqlmock.NewResult(0, 4))
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM match_rosters WHERE match_id = $1")).
		WithArgs(int64(1)).
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM player_match_stats WHERE match_id = $1")).
		WithArgs(int64(1)).
		WillReturnResult(sqlmock.NewResult(0, 4))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO game_rosters")).WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO game_rosters")).WillReturnResult(sqlmock.NewResult(2, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO match_rosters")).WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO player_match_stats")).WillReturnResult(sqlmock.NewResult(1, 1))

	require.NoError(t, repo.ReplaceMatchStats(context.Background(), nil, stats))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStatsRepositoryRatingAdjustmentCounts(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewStatsRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("FROM rating_adjustments a")).
		WithArgs(int64(7)).
		WillReturnRows(sqlmock.NewRows([]string{"player_id", "adjustments"}).AddRow(1, 3).AddRow(2, 1))

	counts, err := repo.RatingAdjustmentCounts(context.Background(), 7)
	require.NoError(t, err)
	assert.Equal(t, map[int64]int{1: 3, 2: 1}, counts)
}

func TestStatsRepositoryListPlayerMatchStatsOnlyVerified(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewStatsRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("WHERE m.tournament_id = $1 AND m.verification_status = $2")).
		WithArgs(int64(7), models.VerificationStatusVerified).
		WillReturnRows(sqlmock.NewRows([]string{"player_id", "match_id", "match_cost", "won"}).
			AddRow(1, 1, 1.1, true).
			AddRow(1, 2, 0.9, false))

	rows, err := repo.ListPlayerMatchStats(context.Background(), nil, 7)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.True(t, rows[0].Won)
	assert.InDelta(t, 0.9, rows[1].MatchCost, 1e-9)
}

func TestStatsRepositoryReplaceTournamentStats(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewStatsRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM player_tournament_stats WHERE tournament_id = $1")).
		WithArgs(int64(7)).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO player_tournament_stats")).WillReturnResult(sqlmock.NewResult(1, 1))

	err := repo.ReplaceTournamentStats(context.Background(), nil, 7, []models.PlayerTournamentStats{{PlayerID: 1, TournamentID: 7}})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}
