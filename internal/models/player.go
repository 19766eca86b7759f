package models

import "time"

// Player is an osu! user seen in any score. Stubs are created with only OsuID set.
type Player struct {
	ID             int64      `db:"id" json:"id"`
	OsuID          int64      `db:"osu_id" json:"osuId"`
	Username       string     `db:"username" json:"username"`
	Country        string     `db:"country" json:"country"`
	DefaultRuleset Ruleset    `db:"default_ruleset" json:"defaultRuleset"`
	LastFetchedAt  *time.Time `db:"last_fetched_at" json:"lastFetchedAt,omitempty"`

	RulesetData []PlayerRulesetData `db:"-" json:"rulesetData,omitempty"`
}

// PlayerRulesetData is a player's standing in one ruleset.
type PlayerRulesetData struct {
	PlayerID   int64   `db:"player_id" json:"playerId"`
	Ruleset    Ruleset `db:"ruleset" json:"ruleset"`
	PP         float64 `db:"pp" json:"pp"`
	GlobalRank int     `db:"global_rank" json:"globalRank"`
}
