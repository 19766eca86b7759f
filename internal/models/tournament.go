package models

import "time"

// Tournament is the root of the verification tree. Matches and pooled beatmaps are loaded on demand.
type Tournament struct {
	ID                   int64                     `db:"id" json:"id"`
	Name                 string                    `db:"name" json:"name"`
	Abbreviation         string                    `db:"abbreviation" json:"abbreviation"`
	Ruleset              Ruleset                   `db:"ruleset" json:"ruleset"`
	LobbySize            int                       `db:"lobby_size" json:"lobbySize"`
	RankRangeLowerBound  int                       `db:"rank_range_lower_bound" json:"rankRangeLowerBound"`
	VerificationStatus   VerificationStatus        `db:"verification_status" json:"verificationStatus"`
	RejectionReason      TournamentRejectionReason `db:"rejection_reason" json:"rejectionReason"`
	StartTime            *time.Time                `db:"start_time" json:"startTime,omitempty"`
	EndTime              *time.Time                `db:"end_time" json:"endTime,omitempty"`
	LastStatsProcessedAt *time.Time                `db:"last_stats_processed_at" json:"lastStatsProcessedAt,omitempty"`

	Matches               []Match                 `db:"-" json:"matches,omitempty"`
	PooledBeatmapIDs      []int64                 `db:"-" json:"pooledBeatmapIds,omitempty"`
	PlayerTournamentStats []PlayerTournamentStats `db:"-" json:"playerTournamentStats,omitempty"`
}

// IsPooled reports whether beatmapID belongs to the tournament's pool.
func (t *Tournament) IsPooled(beatmapID int64) bool {
	for _, id := range t.PooledBeatmapIDs {
		if id == beatmapID {
			return true
		}
	}
	return false
}

// VerifiedMatches returns the matches whose status is Verified.
func (t *Tournament) VerifiedMatches() []*Match {
	var out []*Match
	for i := range t.Matches {
		if t.Matches[i].VerificationStatus == VerificationStatusVerified {
			out = append(out, &t.Matches[i])
		}
	}
	return out
}

// VerificationSummary counts verdicts per entity level after an automation run.
// Enum keys encode as their underlying integer in JSON.
type VerificationSummary struct {
	TournamentID int64                      `json:"tournamentId"`
	Skipped      bool                       `json:"skipped"`
	Tournament   VerificationStatus         `json:"tournament"`
	Matches      map[VerificationStatus]int `json:"matches"`
	Games        map[VerificationStatus]int `json:"games"`
	Scores       map[VerificationStatus]int `json:"scores"`
}

// NewVerificationSummary tallies the verdicts currently held by t.
func NewVerificationSummary(t *Tournament, skipped bool) VerificationSummary {
	summary := VerificationSummary{
		TournamentID: t.ID,
		Skipped:      skipped,
		Tournament:   t.VerificationStatus,
		Matches:      map[VerificationStatus]int{},
		Games:        map[VerificationStatus]int{},
		Scores:       map[VerificationStatus]int{},
	}
	for _, match := range t.Matches {
		summary.Matches[match.VerificationStatus]++
		for _, game := range match.Games {
			summary.Games[game.VerificationStatus]++
			for _, score := range game.Scores {
				summary.Scores[score.VerificationStatus]++
			}
		}
	}
	return summary
}
