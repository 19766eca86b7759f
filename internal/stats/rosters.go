// Package stats reduces verified tournament data into rosters and per-player statistics.
// Every function is deterministic so callers can clear and rebuild derived rows on each run.
package stats

import (
	"sort"

	"github.com/lib/pq"

	"github.com/noah-isme/tourney-pipeline/internal/models"
)

// rosterTeams fixes the emission order of roster rows.
var rosterTeams = []models.Team{models.TeamBlue, models.TeamRed}

// sides maps each counted player of a game to the team they played for. Head-to-head games between
// exactly two players give the lower player id the red side so the mapping is stable across a match.
func sides(game *models.Game) map[int64]models.Team {
	out := make(map[int64]models.Team)
	verified := game.VerifiedScores()
	if game.TeamType == models.TeamTypeHeadToHead {
		if len(verified) != 2 {
			return out
		}
		first, second := verified[0].PlayerID, verified[1].PlayerID
		if first > second {
			first, second = second, first
		}
		out[first] = models.TeamRed
		out[second] = models.TeamBlue
		return out
	}
	for _, score := range verified {
		if score.Team == models.TeamNoTeam {
			continue
		}
		out[score.PlayerID] = score.Team
	}
	return out
}

// GameRosters groups the verified scores of game by team. Games without two usable sides produce no rows.
func GameRosters(game *models.Game) []models.GameRoster {
	teamOf := sides(game)
	players := map[models.Team][]int64{}
	totals := map[models.Team]int64{}
	for _, score := range game.VerifiedScores() {
		team, ok := teamOf[score.PlayerID]
		if !ok {
			continue
		}
		players[team] = append(players[team], score.PlayerID)
		totals[team] += score.Score
	}

	var rosters []models.GameRoster
	for _, team := range rosterTeams {
		ids := players[team]
		if len(ids) == 0 {
			continue
		}
		sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
		rosters = append(rosters, models.GameRoster{
			GameID: game.ID,
			Team:   team,
			Roster: pq.Int64Array(ids),
			Score:  totals[team],
		})
	}
	return rosters
}

// GameWinner returns the team with the higher roster score, or NoTeam on a tie or a one-sided game.
func GameWinner(rosters []models.GameRoster) models.Team {
	if len(rosters) != 2 {
		return models.TeamNoTeam
	}
	switch {
	case rosters[0].Score > rosters[1].Score:
		return rosters[0].Team
	case rosters[1].Score > rosters[0].Score:
		return rosters[1].Team
	default:
		return models.TeamNoTeam
	}
}

// MatchRosters merges game rosters into one row per team. Score counts the games each team won.
func MatchRosters(matchID int64, games [][]models.GameRoster) []models.MatchRoster {
	members := map[models.Team]map[int64]struct{}{}
	wins := map[models.Team]int{}
	for _, rosters := range games {
		for _, roster := range rosters {
			if members[roster.Team] == nil {
				members[roster.Team] = map[int64]struct{}{}
			}
			for _, id := range roster.Roster {
				members[roster.Team][id] = struct{}{}
			}
		}
		if winner := GameWinner(rosters); winner != models.TeamNoTeam {
			wins[winner]++
		}
	}

	var out []models.MatchRoster
	for _, team := range rosterTeams {
		set := members[team]
		if len(set) == 0 {
			continue
		}
		out = append(out, models.MatchRoster{
			MatchID: matchID,
			Team:    team,
			Roster:  pq.Int64Array(sortedIDs(set)),
			Score:   wins[team],
		})
	}
	return out
}

func sortedIDs(set map[int64]struct{}) []int64 {
	ids := make([]int64, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
