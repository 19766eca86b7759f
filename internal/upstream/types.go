package upstream

import (
	"strings"
	"time"

	"github.com/noah-isme/tourney-pipeline/internal/models"
)

// Match is the multiplayer match payload with every event page merged.
type Match struct {
	Match         MatchInfo    `json:"match"`
	Events        []MatchEvent `json:"events"`
	Users         []User       `json:"users"`
	FirstEventID  int64        `json:"first_event_id"`
	LatestEventID int64        `json:"latest_event_id"`
}

// MatchInfo holds the scalar match fields.
type MatchInfo struct {
	ID        int64      `json:"id"`
	Name      string     `json:"name"`
	StartTime *time.Time `json:"start_time"`
	EndTime   *time.Time `json:"end_time"`
}

// MatchEvent is one lobby event. Only events carrying a game are of interest.
type MatchEvent struct {
	ID     int64 `json:"id"`
	Detail struct {
		Type string `json:"type"`
	} `json:"detail"`
	Game *Game `json:"game,omitempty"`
}

// Games returns the games played in the match in event order.
func (m *Match) Games() []Game {
	var out []Game
	for _, event := range m.Events {
		if event.Game != nil {
			out = append(out, *event.Game)
		}
	}
	return out
}

// PlayerIDs returns the distinct upstream user ids that set a score.
func (m *Match) PlayerIDs() []int64 {
	seen := make(map[int64]struct{})
	var out []int64
	for _, game := range m.Games() {
		for _, score := range game.Scores {
			if _, ok := seen[score.UserID]; ok {
				continue
			}
			seen[score.UserID] = struct{}{}
			out = append(out, score.UserID)
		}
	}
	return out
}

// BeatmapIDs returns the distinct upstream beatmap ids played in the match.
func (m *Match) BeatmapIDs() []int64 {
	seen := make(map[int64]struct{})
	var out []int64
	for _, game := range m.Games() {
		if game.BeatmapID == nil {
			continue
		}
		if _, ok := seen[*game.BeatmapID]; ok {
			continue
		}
		seen[*game.BeatmapID] = struct{}{}
		out = append(out, *game.BeatmapID)
	}
	return out
}

// Game is one beatmap played in a match.
type Game struct {
	ID          int64      `json:"id"`
	BeatmapID   *int64     `json:"beatmap_id"`
	Mode        string     `json:"mode"`
	ScoringType string     `json:"scoring_type"`
	TeamType    string     `json:"team_type"`
	Mods        []string   `json:"mods"`
	StartTime   *time.Time `json:"start_time"`
	EndTime     *time.Time `json:"end_time"`
	Scores      []Score    `json:"scores"`
}

// ToModel converts the game. Scores, match and beatmap ids are resolved by the caller.
func (g *Game) ToModel(matchID int64) models.Game {
	return models.Game{
		OsuID:       g.ID,
		MatchID:     matchID,
		Ruleset:     ParseRuleset(g.Mode),
		ScoringType: ParseScoringType(g.ScoringType),
		TeamType:    ParseTeamType(g.TeamType),
		Mods:        ParseMods(g.Mods),
		StartTime:   g.StartTime,
		EndTime:     g.EndTime,
	}
}

// Score is one player's result in a game.
type Score struct {
	UserID     int64           `json:"user_id"`
	Score      int64           `json:"score"`
	MaxCombo   int             `json:"max_combo"`
	Mods       []string        `json:"mods"`
	Passed     bool            `json:"passed"`
	Perfect    int             `json:"perfect"`
	Statistics ScoreStatistics `json:"statistics"`
	Match      struct {
		Slot int    `json:"slot"`
		Team string `json:"team"`
		Pass bool   `json:"pass"`
	} `json:"match"`
}

// ScoreStatistics carries the hit counts.
type ScoreStatistics struct {
	Count50   int `json:"count_50"`
	Count100  int `json:"count_100"`
	Count300  int `json:"count_300"`
	CountGeki int `json:"count_geki"`
	CountKatu int `json:"count_katu"`
	CountMiss int `json:"count_miss"`
}

// ToModel converts the score for the given local player and game ruleset.
func (s *Score) ToModel(playerID int64, ruleset models.Ruleset) models.Score {
	return models.Score{
		PlayerID:  playerID,
		Score:     s.Score,
		MaxCombo:  s.MaxCombo,
		Count50:   s.Statistics.Count50,
		Count100:  s.Statistics.Count100,
		Count300:  s.Statistics.Count300,
		CountMiss: s.Statistics.CountMiss,
		CountKatu: s.Statistics.CountKatu,
		CountGeki: s.Statistics.CountGeki,
		Pass:      s.Passed || s.Match.Pass,
		Perfect:   s.Perfect == 1,
		Mods:      ParseMods(s.Mods),
		Team:      ParseTeam(s.Match.Team),
		Ruleset:   ruleset,
	}
}

// Beatmap is one difficulty.
type Beatmap struct {
	ID               int64   `json:"id"`
	BeatmapsetID     int64   `json:"beatmapset_id"`
	Mode             string  `json:"mode"`
	Version          string  `json:"version"`
	Status           string  `json:"status"`
	TotalLength      int     `json:"total_length"`
	HitLength        int     `json:"hit_length"`
	BPM              float64 `json:"bpm"`
	CS               float64 `json:"cs"`
	AR               float64 `json:"ar"`
	Drain            float64 `json:"drain"`
	Accuracy         float64 `json:"accuracy"`
	DifficultyRating float64 `json:"difficulty_rating"`
	MaxCombo         *int    `json:"max_combo"`
}

// ToModel converts the beatmap into a fetched local record.
func (b *Beatmap) ToModel() models.Beatmap {
	ruleset := ParseRuleset(b.Mode)
	if ruleset == models.RulesetManiaOther {
		ruleset = ManiaVariant(b.CS)
	}
	return models.Beatmap{
		OsuID:        b.ID,
		HasData:      true,
		FetchStatus:  models.FetchStatusFetched,
		Ruleset:      ruleset,
		DiffName:     b.Version,
		RankedStatus: ParseRankedStatus(b.Status),
		TotalLength:  b.TotalLength,
		DrainLength:  b.HitLength,
		BPM:          b.BPM,
		CS:           b.CS,
		AR:           b.AR,
		HP:           b.Drain,
		OD:           b.Accuracy,
		SR:           b.DifficultyRating,
		MaxCombo:     b.MaxCombo,
	}
}

// Beatmapset groups difficulties.
type Beatmapset struct {
	ID            int64      `json:"id"`
	Artist        string     `json:"artist"`
	Title         string     `json:"title"`
	UserID        int64      `json:"user_id"`
	Status        string     `json:"status"`
	RankedDate    *time.Time `json:"ranked_date"`
	SubmittedDate *time.Time `json:"submitted_date"`
	Beatmaps      []Beatmap  `json:"beatmaps"`
}

// ToModel converts the set and every child beatmap.
func (s *Beatmapset) ToModel() models.Beatmapset {
	set := models.Beatmapset{
		OsuID:        s.ID,
		HasData:      true,
		Artist:       s.Artist,
		Title:        s.Title,
		RankedStatus: ParseRankedStatus(s.Status),
		RankedDate:   s.RankedDate,
		SubmittedAt:  s.SubmittedDate,
	}
	if s.UserID > 0 {
		creator := s.UserID
		set.CreatorID = &creator
	}
	for i := range s.Beatmaps {
		set.Beatmaps = append(set.Beatmaps, s.Beatmaps[i].ToModel())
	}
	return set
}

// User is a player profile in one ruleset.
type User struct {
	ID          int64          `json:"id"`
	Username    string         `json:"username"`
	CountryCode string         `json:"country_code"`
	Playmode    string         `json:"playmode"`
	Statistics  UserStatistics `json:"statistics"`
}

// UserStatistics is the standing in the requested ruleset.
type UserStatistics struct {
	PP         float64            `json:"pp"`
	GlobalRank *int               `json:"global_rank"`
	Variants   []VariantStatistic `json:"variants"`
}

// VariantStatistic is the standing in one mania key variant.
type VariantStatistic struct {
	Mode       string  `json:"mode"`
	Variant    string  `json:"variant"`
	PP         float64 `json:"pp"`
	GlobalRank *int    `json:"global_rank"`
}

// RulesetData extracts the standing for ruleset. Mania key variants read the variant entry.
// ok is false when the user has no rank in that ruleset.
func (u *User) RulesetData(ruleset models.Ruleset) (models.PlayerRulesetData, bool) {
	data := models.PlayerRulesetData{Ruleset: ruleset}
	var variant string
	switch ruleset {
	case models.RulesetMania4k:
		variant = "4k"
	case models.RulesetMania7k:
		variant = "7k"
	}
	if variant == "" {
		if u.Statistics.GlobalRank == nil {
			return data, false
		}
		data.PP = u.Statistics.PP
		data.GlobalRank = *u.Statistics.GlobalRank
		return data, true
	}
	for _, v := range u.Statistics.Variants {
		if v.Variant == variant && v.GlobalRank != nil {
			data.PP = v.PP
			data.GlobalRank = *v.GlobalRank
			return data, true
		}
	}
	return data, false
}

// ParseRuleset maps an API mode name. Unknown names fall back to osu.
func ParseRuleset(mode string) models.Ruleset {
	switch mode {
	case "taiko":
		return models.RulesetTaiko
	case "fruits":
		return models.RulesetCatch
	case "mania":
		return models.RulesetManiaOther
	default:
		return models.RulesetOsu
	}
}

// ManiaVariant classifies a mania beatmap by its key count.
func ManiaVariant(keys float64) models.Ruleset {
	switch keys {
	case 4:
		return models.RulesetMania4k
	case 7:
		return models.RulesetMania7k
	default:
		return models.RulesetManiaOther
	}
}

// ParseScoringType maps an API scoring type name.
func ParseScoringType(name string) models.ScoringType {
	switch name {
	case "accuracy":
		return models.ScoringTypeAccuracy
	case "combo":
		return models.ScoringTypeCombo
	case "scorev2":
		return models.ScoringTypeScoreV2
	default:
		return models.ScoringTypeScore
	}
}

// ParseTeamType maps an API team type name.
func ParseTeamType(name string) models.TeamType {
	switch name {
	case "tag-coop":
		return models.TeamTypeTagCoop
	case "team-vs":
		return models.TeamTypeTeamVs
	case "tag-team-vs":
		return models.TeamTypeTagTeamVs
	default:
		return models.TeamTypeHeadToHead
	}
}

// ParseTeam maps an API team name.
func ParseTeam(name string) models.Team {
	switch name {
	case "red":
		return models.TeamRed
	case "blue":
		return models.TeamBlue
	default:
		return models.TeamNoTeam
	}
}

var modAcronyms = map[string]models.Mods{
	"NF": models.ModsNoFail,
	"EZ": models.ModsEasy,
	"TD": models.ModsTouchDevice,
	"HD": models.ModsHidden,
	"HR": models.ModsHardRock,
	"SD": models.ModsSuddenDeath,
	"DT": models.ModsDoubleTime,
	"RX": models.ModsRelax,
	"HT": models.ModsHalfTime,
	"NC": models.ModsNightcore | models.ModsDoubleTime,
	"FL": models.ModsFlashlight,
	"AT": models.ModsAutoplay,
	"SO": models.ModsSpunOut,
	"AP": models.ModsAutopilot,
	"PF": models.ModsPerfect | models.ModsSuddenDeath,
	"CN": models.ModsCinema,
	"TP": models.ModsTarget,
	"V2": models.ModsScoreV2,
}

// ParseMods folds mod acronyms into a bitmask. Unknown acronyms are ignored.
func ParseMods(acronyms []string) models.Mods {
	var mods models.Mods
	for _, a := range acronyms {
		mods |= modAcronyms[strings.ToUpper(a)]
	}
	return mods
}

// ParseRankedStatus maps an API status name onto the numeric ranked status.
func ParseRankedStatus(status string) int {
	switch status {
	case "graveyard":
		return -2
	case "wip":
		return -1
	case "ranked":
		return 1
	case "approved":
		return 2
	case "qualified":
		return 3
	case "loved":
		return 4
	default:
		return 0
	}
}
