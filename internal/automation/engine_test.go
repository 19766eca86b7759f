package automation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/tourney-pipeline/internal/models"
)

func int64Ptr(v int64) *int64 { return &v }

func teamTournament() *models.Tournament {
	return &models.Tournament{
		ID:           7,
		Name:         "Summer Team Tournament 4",
		Abbreviation: "STT4",
		Ruleset:      models.RulesetOsu,
		LobbySize:    2,
	}
}

func teamGame(scores ...models.Score) *models.Game {
	return &models.Game{
		ID:          1,
		MatchID:     10,
		Ruleset:     models.RulesetOsu,
		ScoringType: models.ScoringTypeScoreV2,
		TeamType:    models.TeamTypeTeamVs,
		Scores:      scores,
	}
}

func validScore(player int64, team models.Team, value int64) models.Score {
	return models.Score{
		PlayerID:           player,
		Team:               team,
		Score:              value,
		Ruleset:            models.RulesetOsu,
		VerificationStatus: models.VerificationStatusPreVerified,
	}
}

func TestPassesTeamSizeCheckIgnoresRefereeScore(t *testing.T) {
	referee := models.Score{PlayerID: 99, Team: models.TeamRed, Score: 0, Ruleset: models.RulesetOsu, VerificationStatus: models.VerificationStatusPreRejected}
	game := teamGame(
		referee,
		validScore(1, models.TeamRed, 100000),
		validScore(2, models.TeamRed, 100000),
		validScore(3, models.TeamBlue, 100000),
		validScore(4, models.TeamBlue, 100000),
	)
	tournament := teamTournament()

	assert.True(t, PassesTeamSizeCheck(game, tournament.LobbySize))
	assert.True(t, NewEngine(DefaultConfig()).PassesAutomationChecks(game, tournament))
}

func TestPassesTeamSizeCheckFailsOnZeroScoringPlayers(t *testing.T) {
	game := teamGame(
		validScore(1, models.TeamRed, 0),
		validScore(2, models.TeamRed, 0),
		validScore(3, models.TeamBlue, 0),
		validScore(4, models.TeamBlue, 250000),
	)

	assert.False(t, PassesTeamSizeCheck(game, 2))
}

func TestPassesTeamSizeCheckHeadToHead(t *testing.T) {
	game := teamGame(validScore(1, models.TeamNoTeam, 500000), validScore(2, models.TeamNoTeam, 400000))
	game.TeamType = models.TeamTypeHeadToHead

	assert.True(t, PassesTeamSizeCheck(game, 1))
	assert.False(t, PassesTeamSizeCheck(game, 2))
}

func TestPassesNameCheck(t *testing.T) {
	tournament := &models.Tournament{Abbreviation: "STT3"}

	assert.False(t, PassesNameCheck(&models.Match{Name: "STT4: a vs b"}, tournament))
	assert.True(t, PassesNameCheck(&models.Match{Name: "STT3: a vs b"}, tournament))
	assert.False(t, PassesNameCheck(&models.Match{Name: "stt3: a vs b"}, tournament))
	assert.False(t, PassesNameCheck(&models.Match{Name: "STT3 a vs b"}, tournament))
	assert.False(t, PassesNameCheck(&models.Match{Name: ": a vs b"}, &models.Tournament{}))
}

func TestCheckScore(t *testing.T) {
	engine := NewEngine(DefaultConfig())
	tournament := teamTournament()

	tests := []struct {
		name  string
		score models.Score
		want  models.ScoreRejectionReason
	}{
		{name: "accepted", score: validScore(1, models.TeamRed, 500000), want: models.ScoreRejectionNone},
		{name: "at minimum", score: validScore(1, models.TeamRed, DefaultScoreMinimum), want: models.ScoreRejectionScoreBelowMinimum},
		{name: "nofail exempt", score: func() models.Score {
			s := validScore(1, models.TeamRed, 500000)
			s.Mods = models.ModsNoFail | models.ModsHidden
			return s
		}(), want: models.ScoreRejectionNone},
		{name: "relax forbidden", score: func() models.Score {
			s := validScore(1, models.TeamRed, 500000)
			s.Mods = models.ModsRelax
			return s
		}(), want: models.ScoreRejectionInvalidMods},
		{name: "wrong ruleset and low", score: func() models.Score {
			s := validScore(1, models.TeamRed, 10)
			s.Ruleset = models.RulesetTaiko
			return s
		}(), want: models.ScoreRejectionScoreBelowMinimum | models.ScoreRejectionRulesetMismatch},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			score := tc.score
			assert.Equal(t, tc.want, engine.CheckScore(&score, tournament))
		})
	}
}

func TestCheckGameCombinesReasons(t *testing.T) {
	engine := NewEngine(DefaultConfig())
	tournament := teamTournament()
	tournament.PooledBeatmapIDs = []int64{100, 101}

	game := teamGame(validScore(1, models.TeamRed, 100000))
	game.ScoringType = models.ScoringTypeScore
	game.TeamType = models.TeamTypeTagTeamVs
	game.BeatmapID = int64Ptr(555)

	reason := engine.CheckGame(game, tournament)
	assert.True(t, reason.Has(models.GameRejectionInvalidScoringType))
	assert.True(t, reason.Has(models.GameRejectionInvalidTeamType))
	assert.True(t, reason.Has(models.GameRejectionBeatmapNotPooled))
	assert.True(t, reason.Has(models.GameRejectionTeamSizeMismatch))
	assert.False(t, reason.Has(models.GameRejectionNoScores))
}

func TestCheckGameWithoutScores(t *testing.T) {
	engine := NewEngine(DefaultConfig())
	game := teamGame()

	assert.Equal(t, models.GameRejectionNoScores, engine.CheckGame(game, teamTournament()))
}

func TestCheckGameNoValidScores(t *testing.T) {
	engine := NewEngine(DefaultConfig())
	rejected := validScore(1, models.TeamRed, 100000)
	rejected.VerificationStatus = models.VerificationStatusPreRejected
	game := teamGame(rejected)

	reason := engine.CheckGame(game, teamTournament())
	assert.True(t, reason.Has(models.GameRejectionNoValidScores))
	assert.True(t, reason.Has(models.GameRejectionTeamSizeMismatch))
}

func TestCheckMatch(t *testing.T) {
	engine := NewEngine(DefaultConfig())
	tournament := teamTournament()

	notFound := &models.Match{TournamentID: 7, Name: "STT4: x", FetchStatus: models.FetchStatusNotFound}
	assert.Equal(t, models.MatchRejectionNoData|models.MatchRejectionNoGames, engine.CheckMatch(notFound, tournament))

	badLink := &models.Match{TournamentID: 8, Name: "STT4: x", Games: []models.Game{{VerificationStatus: models.VerificationStatusPreVerified}}}
	assert.Equal(t, models.MatchRejectionInvalidTournamentLink, engine.CheckMatch(badLink, tournament))

	noValid := &models.Match{TournamentID: 7, Name: "OTHER: x", Games: []models.Game{{VerificationStatus: models.VerificationStatusPreRejected}}}
	assert.Equal(t, models.MatchRejectionNamePrefixMismatch|models.MatchRejectionNoValidGames, engine.CheckMatch(noValid, tournament))
}

func TestMatchWarnings(t *testing.T) {
	match := &models.Match{Games: []models.Game{
		{VerificationStatus: models.VerificationStatusPreVerified},
		{VerificationStatus: models.VerificationStatusVerified},
		{VerificationStatus: models.VerificationStatusPreRejected},
	}}
	assert.Equal(t, models.MatchWarningLowGameCount, MatchWarnings(match))

	match.Games = append(match.Games, models.Game{VerificationStatus: models.VerificationStatusPreVerified})
	assert.Equal(t, models.MatchWarningNone, MatchWarnings(match))
}

func TestGameWarningsBeatmapUsedOnce(t *testing.T) {
	tournament := teamTournament()
	tournament.Matches = []models.Match{{Games: []models.Game{
		{BeatmapID: int64Ptr(1)},
		{BeatmapID: int64Ptr(2)},
		{BeatmapID: int64Ptr(2)},
	}}}
	usage := BeatmapUsage(tournament)

	require.Equal(t, 2, usage[2])
	assert.Equal(t, models.GameWarningBeatmapUsedOnce, GameWarnings(&tournament.Matches[0].Games[0], tournament, usage))
	assert.Equal(t, models.GameWarningNone, GameWarnings(&tournament.Matches[0].Games[1], tournament, usage))

	tournament.PooledBeatmapIDs = []int64{1}
	assert.Equal(t, models.GameWarningNone, GameWarnings(&tournament.Matches[0].Games[0], tournament, usage))
}

func TestCheckTournament(t *testing.T) {
	engine := NewEngine(Config{})

	assert.Equal(t, models.TournamentRejectionNone, engine.CheckTournament(teamTournament()))

	broken := teamTournament()
	broken.Abbreviation = " "
	assert.Equal(t, models.TournamentRejectionInvalidMetadata, engine.CheckTournament(broken))

	broken = teamTournament()
	broken.RankRangeLowerBound = -1
	assert.Equal(t, models.TournamentRejectionInvalidMetadata, engine.CheckTournament(broken))

	broken = teamTournament()
	broken.Ruleset = models.Ruleset(42)
	assert.Equal(t, models.TournamentRejectionInvalidMetadata, engine.CheckTournament(broken))
}

func TestNewEngineDefaults(t *testing.T) {
	engine := NewEngine(Config{})

	assert.Equal(t, DefaultScoreMinimum, engine.Config().ScoreMinimum)
	assert.Equal(t, DefaultConfig().ForbiddenMods, engine.Config().ForbiddenMods)
}
