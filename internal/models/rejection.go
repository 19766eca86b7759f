package models

// ScoreRejectionReason is a bitmask of reasons a score failed automation checks.
type ScoreRejectionReason int

const (
	ScoreRejectionNone              ScoreRejectionReason = 0
	ScoreRejectionScoreBelowMinimum ScoreRejectionReason = 1 << 0
	ScoreRejectionInvalidMods       ScoreRejectionReason = 1 << 1
	ScoreRejectionRulesetMismatch   ScoreRejectionReason = 1 << 2
	// ScoreRejectionRejectedGame marks a score rejected because its game was rejected.
	ScoreRejectionRejectedGame ScoreRejectionReason = 1 << 3
)

// Has reports whether every bit of r2 is set.
func (r ScoreRejectionReason) Has(r2 ScoreRejectionReason) bool { return r&r2 == r2 }

// GameRejectionReason is a bitmask of reasons a game failed automation checks.
type GameRejectionReason int

const (
	GameRejectionNone               GameRejectionReason = 0
	GameRejectionNoScores           GameRejectionReason = 1 << 0
	GameRejectionInvalidMods        GameRejectionReason = 1 << 1
	GameRejectionRulesetMismatch    GameRejectionReason = 1 << 2
	GameRejectionInvalidScoringType GameRejectionReason = 1 << 3
	GameRejectionInvalidTeamType    GameRejectionReason = 1 << 4
	GameRejectionTeamSizeMismatch   GameRejectionReason = 1 << 5
	GameRejectionNoValidScores      GameRejectionReason = 1 << 6
	GameRejectionBeatmapNotPooled   GameRejectionReason = 1 << 7
	// GameRejectionRejectedMatch marks a game rejected because its match was rejected.
	GameRejectionRejectedMatch GameRejectionReason = 1 << 8
)

// Has reports whether every bit of r2 is set.
func (r GameRejectionReason) Has(r2 GameRejectionReason) bool { return r&r2 == r2 }

// MatchRejectionReason is a bitmask of reasons a match failed automation checks.
type MatchRejectionReason int

const (
	MatchRejectionNone                   MatchRejectionReason = 0
	MatchRejectionNoData                 MatchRejectionReason = 1 << 0
	MatchRejectionNoGames                MatchRejectionReason = 1 << 1
	MatchRejectionNamePrefixMismatch     MatchRejectionReason = 1 << 2
	MatchRejectionFailedTeamVsConversion MatchRejectionReason = 1 << 3
	MatchRejectionNoValidGames           MatchRejectionReason = 1 << 4
	MatchRejectionInvalidTournamentLink  MatchRejectionReason = 1 << 5
	// MatchRejectionRejectedTournament marks a match rejected because its tournament was rejected.
	MatchRejectionRejectedTournament MatchRejectionReason = 1 << 6
)

// Has reports whether every bit of r2 is set.
func (r MatchRejectionReason) Has(r2 MatchRejectionReason) bool { return r&r2 == r2 }

// TournamentRejectionReason is a bitmask of reasons a tournament failed automation checks.
type TournamentRejectionReason int

const (
	TournamentRejectionNone                     TournamentRejectionReason = 0
	TournamentRejectionNoVerifiedMatches        TournamentRejectionReason = 1 << 0
	TournamentRejectionNotEnoughVerifiedMatches TournamentRejectionReason = 1 << 1
	TournamentRejectionInvalidMetadata          TournamentRejectionReason = 1 << 2
	TournamentRejectionIncompleteData           TournamentRejectionReason = 1 << 3
)

// Has reports whether every bit of r2 is set.
func (r TournamentRejectionReason) Has(r2 TournamentRejectionReason) bool { return r&r2 == r2 }

// GameWarningFlags marks games that pass checks but deserve a human look.
type GameWarningFlags int

const (
	GameWarningNone GameWarningFlags = 0
	// GameWarningBeatmapUsedOnce is raised when a tournament without a pool plays a beatmap exactly once.
	GameWarningBeatmapUsedOnce GameWarningFlags = 1 << 0
)

// MatchWarningFlags marks matches that pass checks but deserve a human look.
type MatchWarningFlags int

const (
	MatchWarningNone MatchWarningFlags = 0
	// MatchWarningLowGameCount is raised when a match has fewer than three valid games.
	MatchWarningLowGameCount MatchWarningFlags = 1 << 0
)
