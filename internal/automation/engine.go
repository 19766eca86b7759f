// Package automation holds the side-effect-free checks that decide whether tournament data is acceptable.
// Functions here compute rejection reasons and warnings; they never assign verification statuses.
package automation

import (
	"strings"

	"github.com/noah-isme/tourney-pipeline/internal/models"
)

// DefaultScoreMinimum is the lowest score value that is rejected outright.
const DefaultScoreMinimum int64 = 1000

// minimumValidGames is the valid game count below which a match is flagged for review.
const minimumValidGames = 3

// nameSeparator follows the tournament abbreviation at the start of every lobby name.
const nameSeparator = ":"

// Config tunes the score policy.
type Config struct {
	// ScoreMinimum rejects scores whose value is less than or equal to it.
	ScoreMinimum int64
	// ForbiddenMods lists mods that alter scoring or remove the player from play.
	ForbiddenMods models.Mods
	// ExemptMods are removed from ForbiddenMods by policy.
	ExemptMods models.Mods
}

// DefaultConfig returns the score policy used in production.
func DefaultConfig() Config {
	return Config{
		ScoreMinimum: DefaultScoreMinimum,
		ForbiddenMods: models.ModsNoFail | models.ModsSuddenDeath | models.ModsPerfect | models.ModsRelax |
			models.ModsAutopilot | models.ModsAutoplay | models.ModsCinema | models.ModsTarget,
		ExemptMods: models.ModsNoFail,
	}
}

// Engine evaluates scores, games, matches and tournaments against a fixed policy.
type Engine struct {
	cfg Config
}

// NewEngine constructs an Engine. A zero ScoreMinimum falls back to the default.
func NewEngine(cfg Config) *Engine {
	if cfg.ScoreMinimum <= 0 {
		cfg.ScoreMinimum = DefaultScoreMinimum
	}
	if cfg.ForbiddenMods == models.ModsNone {
		def := DefaultConfig()
		cfg.ForbiddenMods = def.ForbiddenMods
		cfg.ExemptMods = def.ExemptMods
	}
	return &Engine{cfg: cfg}
}

// Config returns the policy the engine was built with.
func (e *Engine) Config() Config {
	return e.cfg
}

func (e *Engine) hasForbiddenMods(mods models.Mods) bool {
	return mods&(e.cfg.ForbiddenMods&^e.cfg.ExemptMods) != 0
}

// CheckScore returns the reasons score must be rejected.
func (e *Engine) CheckScore(score *models.Score, tournament *models.Tournament) models.ScoreRejectionReason {
	reason := models.ScoreRejectionNone
	if score.Score <= e.cfg.ScoreMinimum {
		reason |= models.ScoreRejectionScoreBelowMinimum
	}
	if e.hasForbiddenMods(score.Mods) {
		reason |= models.ScoreRejectionInvalidMods
	}
	if tournament != nil && score.Ruleset != tournament.Ruleset {
		reason |= models.ScoreRejectionRulesetMismatch
	}
	return reason
}

// CheckGame returns the reasons game must be rejected. Score verdicts must already be assigned
// because the team size and valid score checks only count accepted scores.
func (e *Engine) CheckGame(game *models.Game, tournament *models.Tournament) models.GameRejectionReason {
	reason := models.GameRejectionNone
	if game.ScoringType != models.ScoringTypeScoreV2 {
		reason |= models.GameRejectionInvalidScoringType
	}
	if game.TeamType != models.TeamTypeHeadToHead && game.TeamType != models.TeamTypeTeamVs {
		reason |= models.GameRejectionInvalidTeamType
	}
	if e.hasForbiddenMods(game.Mods) {
		reason |= models.GameRejectionInvalidMods
	}
	if tournament != nil {
		if game.Ruleset != tournament.Ruleset {
			reason |= models.GameRejectionRulesetMismatch
		}
		if len(tournament.PooledBeatmapIDs) > 0 && (game.BeatmapID == nil || !tournament.IsPooled(*game.BeatmapID)) {
			reason |= models.GameRejectionBeatmapNotPooled
		}
	}
	if len(game.Scores) == 0 {
		return reason | models.GameRejectionNoScores
	}
	if len(game.ValidScores()) == 0 {
		reason |= models.GameRejectionNoValidScores
	}
	if tournament != nil && !PassesTeamSizeCheck(game, tournament.LobbySize) {
		reason |= models.GameRejectionTeamSizeMismatch
	}
	return reason
}

// GameWarnings flags games worth a human look. usage counts how many games of the tournament played each beatmap.
func GameWarnings(game *models.Game, tournament *models.Tournament, usage map[int64]int) models.GameWarningFlags {
	flags := models.GameWarningNone
	if tournament != nil && len(tournament.PooledBeatmapIDs) == 0 && game.BeatmapID != nil && usage[*game.BeatmapID] == 1 {
		flags |= models.GameWarningBeatmapUsedOnce
	}
	return flags
}

// BeatmapUsage counts the games of a tournament played on each beatmap.
func BeatmapUsage(tournament *models.Tournament) map[int64]int {
	usage := make(map[int64]int)
	for i := range tournament.Matches {
		for j := range tournament.Matches[i].Games {
			if id := tournament.Matches[i].Games[j].BeatmapID; id != nil {
				usage[*id]++
			}
		}
	}
	return usage
}

// CheckMatch returns the reasons match must be rejected. Game verdicts must already be assigned.
func (e *Engine) CheckMatch(match *models.Match, tournament *models.Tournament) models.MatchRejectionReason {
	reason := models.MatchRejectionNone
	if tournament == nil || match.TournamentID != tournament.ID {
		reason |= models.MatchRejectionInvalidTournamentLink
	}
	if match.FetchStatus == models.FetchStatusNotFound {
		reason |= models.MatchRejectionNoData
	}
	if tournament != nil && !PassesNameCheck(match, tournament) {
		reason |= models.MatchRejectionNamePrefixMismatch
	}
	if len(match.Games) == 0 {
		return reason | models.MatchRejectionNoGames
	}
	if len(match.ValidGames()) == 0 {
		reason |= models.MatchRejectionNoValidGames
	}
	return reason
}

// MatchWarnings flags matches worth a human look.
func MatchWarnings(match *models.Match) models.MatchWarningFlags {
	flags := models.MatchWarningNone
	if valid := len(match.ValidGames()); valid > 0 && valid < minimumValidGames {
		flags |= models.MatchWarningLowGameCount
	}
	return flags
}

// CheckTournament inspects only the tournament's own fields. Child verdicts are rolled up elsewhere.
func (e *Engine) CheckTournament(tournament *models.Tournament) models.TournamentRejectionReason {
	if strings.TrimSpace(tournament.Name) == "" ||
		strings.TrimSpace(tournament.Abbreviation) == "" ||
		!tournament.Ruleset.IsValid() ||
		tournament.RankRangeLowerBound < 0 {
		return models.TournamentRejectionInvalidMetadata
	}
	return models.TournamentRejectionNone
}

// PassesNameCheck reports whether the lobby name starts with the tournament abbreviation and separator.
func PassesNameCheck(match *models.Match, tournament *models.Tournament) bool {
	if tournament.Abbreviation == "" {
		return false
	}
	return strings.HasPrefix(match.Name, tournament.Abbreviation+nameSeparator)
}

// PassesTeamSizeCheck reports whether both sides field exactly lobbySize players.
// Only accepted, non-zero scores count; zero scores left by referees are ignored.
func PassesTeamSizeCheck(game *models.Game, lobbySize int) bool {
	if lobbySize <= 0 {
		return false
	}
	if game.TeamType == models.TeamTypeHeadToHead {
		return lobbySize == 1 && len(countedScores(game)) == 2
	}

	sizes := map[models.Team]int{}
	for _, score := range countedScores(game) {
		if score.Team == models.TeamNoTeam {
			continue
		}
		sizes[score.Team]++
	}
	return len(sizes) == 2 && sizes[models.TeamRed] == lobbySize && sizes[models.TeamBlue] == lobbySize
}

func countedScores(game *models.Game) []*models.Score {
	var out []*models.Score
	for _, score := range game.ValidScores() {
		if score.Score == 0 {
			continue
		}
		out = append(out, score)
	}
	return out
}

// PassesAutomationChecks reports whether game is acceptable as it stands.
func (e *Engine) PassesAutomationChecks(game *models.Game, tournament *models.Tournament) bool {
	return e.CheckGame(game, tournament) == models.GameRejectionNone
}
