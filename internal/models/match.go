package models

import (
	"sort"
	"time"
)

// Match is one multiplayer lobby belonging to a tournament.
type Match struct {
	ID                 int64                `db:"id" json:"id"`
	OsuID              int64                `db:"osu_id" json:"osuId"`
	TournamentID       int64                `db:"tournament_id" json:"tournamentId"`
	Name               string               `db:"name" json:"name"`
	StartTime          *time.Time           `db:"start_time" json:"startTime,omitempty"`
	EndTime            *time.Time           `db:"end_time" json:"endTime,omitempty"`
	VerificationStatus VerificationStatus   `db:"verification_status" json:"verificationStatus"`
	RejectionReason    MatchRejectionReason `db:"rejection_reason" json:"rejectionReason"`
	WarningFlags       MatchWarningFlags    `db:"warning_flags" json:"warningFlags"`
	FetchStatus        FetchStatus          `db:"fetch_status" json:"fetchStatus"`

	Games             []Game             `db:"-" json:"games,omitempty"`
	Rosters           []MatchRoster      `db:"-" json:"rosters,omitempty"`
	PlayerMatchStats  []PlayerMatchStats `db:"-" json:"playerMatchStats,omitempty"`
	RatingAdjustments []RatingAdjustment `db:"-" json:"ratingAdjustments,omitempty"`
}

// MatchFetchState is the slice of a match the completion tracker needs.
type MatchFetchState struct {
	ID          int64       `db:"id"`
	FetchStatus FetchStatus `db:"fetch_status"`
	StartTime   *time.Time  `db:"start_time"`
}

// ValidGames returns the games currently counted as accepted.
func (m *Match) ValidGames() []*Game {
	var out []*Game
	for i := range m.Games {
		if m.Games[i].VerificationStatus.IsValid() {
			out = append(out, &m.Games[i])
		}
	}
	return out
}

// VerifiedGames returns the games whose status is Verified.
func (m *Match) VerifiedGames() []*Game {
	var out []*Game
	for i := range m.Games {
		if m.Games[i].VerificationStatus == VerificationStatusVerified {
			out = append(out, &m.Games[i])
		}
	}
	return out
}

// Game is one beatmap played inside a match.
type Game struct {
	ID                 int64               `db:"id" json:"id"`
	OsuID              int64               `db:"osu_id" json:"osuId"`
	MatchID            int64               `db:"match_id" json:"matchId"`
	BeatmapID          *int64              `db:"beatmap_id" json:"beatmapId,omitempty"`
	Ruleset            Ruleset             `db:"ruleset" json:"ruleset"`
	ScoringType        ScoringType         `db:"scoring_type" json:"scoringType"`
	TeamType           TeamType            `db:"team_type" json:"teamType"`
	Mods               Mods                `db:"mods" json:"mods"`
	StartTime          *time.Time          `db:"start_time" json:"startTime,omitempty"`
	EndTime            *time.Time          `db:"end_time" json:"endTime,omitempty"`
	VerificationStatus VerificationStatus  `db:"verification_status" json:"verificationStatus"`
	RejectionReason    GameRejectionReason `db:"rejection_reason" json:"rejectionReason"`
	WarningFlags       GameWarningFlags    `db:"warning_flags" json:"warningFlags"`

	Scores  []Score      `db:"-" json:"scores,omitempty"`
	Rosters []GameRoster `db:"-" json:"rosters,omitempty"`
}

// ValidScores returns the scores currently counted as accepted.
func (g *Game) ValidScores() []*Score {
	var out []*Score
	for i := range g.Scores {
		if g.Scores[i].VerificationStatus.IsValid() {
			out = append(out, &g.Scores[i])
		}
	}
	return out
}

// VerifiedScores returns the scores whose status is Verified.
func (g *Game) VerifiedScores() []*Score {
	var out []*Score
	for i := range g.Scores {
		if g.Scores[i].VerificationStatus == VerificationStatusVerified {
			out = append(out, &g.Scores[i])
		}
	}
	return out
}

// Score is one player's result in a game.
type Score struct {
	ID                 int64                `db:"id" json:"id"`
	GameID             int64                `db:"game_id" json:"gameId"`
	PlayerID           int64                `db:"player_id" json:"playerId"`
	Score              int64                `db:"score" json:"score"`
	Placement          int                  `db:"placement" json:"placement"`
	MaxCombo           int                  `db:"max_combo" json:"maxCombo"`
	Count50            int                  `db:"count_50" json:"count50"`
	Count100           int                  `db:"count_100" json:"count100"`
	Count300           int                  `db:"count_300" json:"count300"`
	CountMiss          int                  `db:"count_miss" json:"countMiss"`
	CountKatu          int                  `db:"count_katu" json:"countKatu"`
	CountGeki          int                  `db:"count_geki" json:"countGeki"`
	Pass               bool                 `db:"pass" json:"pass"`
	Perfect            bool                 `db:"perfect" json:"perfect"`
	Mods               Mods                 `db:"mods" json:"mods"`
	Team               Team                 `db:"team" json:"team"`
	Ruleset            Ruleset              `db:"ruleset" json:"ruleset"`
	VerificationStatus VerificationStatus   `db:"verification_status" json:"verificationStatus"`
	RejectionReason    ScoreRejectionReason `db:"rejection_reason" json:"rejectionReason"`
}

// Accuracy returns the ruleset specific accuracy in the range [0, 1].
func (s *Score) Accuracy(ruleset Ruleset) float64 {
	switch {
	case ruleset == RulesetTaiko:
		total := float64(s.Count300 + s.Count100 + s.CountMiss)
		if total == 0 {
			return 0
		}
		return (float64(s.Count300) + 0.5*float64(s.Count100)) / total
	case ruleset == RulesetCatch:
		total := float64(s.Count300 + s.Count100 + s.Count50 + s.CountKatu + s.CountMiss)
		if total == 0 {
			return 0
		}
		return float64(s.Count300+s.Count100+s.Count50) / total
	case ruleset.IsMania():
		total := float64(s.CountGeki + s.Count300 + s.CountKatu + s.Count100 + s.Count50 + s.CountMiss)
		if total == 0 {
			return 0
		}
		weighted := 300*float64(s.CountGeki+s.Count300) + 200*float64(s.CountKatu) + 100*float64(s.Count100) + 50*float64(s.Count50)
		return weighted / (300 * total)
	default:
		total := float64(s.Count300 + s.Count100 + s.Count50 + s.CountMiss)
		if total == 0 {
			return 0
		}
		return (300*float64(s.Count300) + 100*float64(s.Count100) + 50*float64(s.Count50)) / (300 * total)
	}
}

// AssignPlacements ranks scores by value, highest first. Equal scores keep their input order.
func AssignPlacements(scores []Score) {
	order := make([]int, len(scores))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return scores[order[a]].Score > scores[order[b]].Score
	})
	for rank, idx := range order {
		scores[idx].Placement = rank + 1
	}
}
