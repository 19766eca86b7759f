package stats

import (
	"errors"
	"math"
	"sort"

	"github.com/lib/pq"

	"github.com/noah-isme/tourney-pipeline/internal/models"
)

// ErrNoRosters is returned when player stats are requested before match rosters exist.
var ErrNoRosters = errors.New("stats: match rosters missing")

// matchCostBonusBase rewards players who appeared in more of the match's games.
const matchCostBonusBase = 1.4

// MatchCost scores a player's relative performance. ratios holds score/median for each game the player
// played and totalGames is the number of games counted in the match.
func MatchCost(ratios []float64, totalGames int) float64 {
	n := len(ratios)
	if n == 0 {
		return 0
	}
	var sum float64
	for _, r := range ratios {
		sum += r
	}
	cost := 2 / float64(n+2) * sum
	if totalGames > 1 {
		participation := float64(n-1) / float64(totalGames-1)
		cost *= math.Pow(matchCostBonusBase, math.Pow(participation, 0.6))
	}
	return cost
}

func median(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	mid := len(sorted) / 2
	if len(sorted)%2 == 1 {
		return sorted[mid]
	}
	return (sorted[mid-1] + sorted[mid]) / 2
}

type playerAccumulator struct {
	team      models.Team
	ratios    []float64
	score     float64
	placement float64
	misses    float64
	accuracy  float64
	games     int
	gamesWon  int
}

// PlayerMatchStats computes per-player statistics over the verified games of match that produced rosters.
// gameRosters is keyed by game id and matchRosters must come from MatchRosters for the same games.
func PlayerMatchStats(match *models.Match, gameRosters map[int64][]models.GameRoster, matchRosters []models.MatchRoster) ([]models.PlayerMatchStats, error) {
	if len(matchRosters) == 0 {
		return nil, ErrNoRosters
	}

	players := map[int64]*playerAccumulator{}
	var counted int
	for _, game := range match.VerifiedGames() {
		rosters := gameRosters[game.ID]
		if len(rosters) == 0 {
			continue
		}
		counted++
		teamOf := sides(game)
		winner := GameWinner(rosters)

		var values []float64
		for _, score := range game.VerifiedScores() {
			if _, ok := teamOf[score.PlayerID]; ok {
				values = append(values, float64(score.Score))
			}
		}
		mid := median(values)

		for _, score := range game.VerifiedScores() {
			team, ok := teamOf[score.PlayerID]
			if !ok {
				continue
			}
			acc := players[score.PlayerID]
			if acc == nil {
				acc = &playerAccumulator{team: team}
				players[score.PlayerID] = acc
			}
			ratio := 0.0
			if mid > 0 {
				ratio = float64(score.Score) / mid
			}
			acc.ratios = append(acc.ratios, ratio)
			acc.score += float64(score.Score)
			acc.placement += float64(score.Placement)
			acc.misses += float64(score.CountMiss)
			acc.accuracy += score.Accuracy(score.Ruleset)
			acc.games++
			if winner != models.TeamNoTeam && winner == team {
				acc.gamesWon++
			}
		}
	}

	byTeam := map[models.Team]models.MatchRoster{}
	for _, roster := range matchRosters {
		byTeam[roster.Team] = roster
	}

	ids := make([]int64, 0, len(players))
	for id := range players {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	out := make([]models.PlayerMatchStats, 0, len(ids))
	for _, id := range ids {
		acc := players[id]
		own := byTeam[acc.team]
		opp := byTeam[acc.team.Opponent()]
		games := float64(acc.games)
		out = append(out, models.PlayerMatchStats{
			PlayerID:         id,
			MatchID:          match.ID,
			MatchCost:        MatchCost(acc.ratios, counted),
			AverageScore:     acc.score / games,
			AveragePlacement: acc.placement / games,
			AverageMisses:    acc.misses / games,
			AverageAccuracy:  acc.accuracy / games,
			GamesPlayed:      acc.games,
			GamesWon:         acc.gamesWon,
			GamesLost:        acc.games - acc.gamesWon,
			Won:              own.Score > opp.Score,
			TeammateIDs:      pq.Int64Array(without(own.Roster, id)),
			OpponentIDs:      pq.Int64Array(append([]int64{}, opp.Roster...)),
		})
	}
	return out, nil
}

func without(ids []int64, id int64) []int64 {
	out := make([]int64, 0, len(ids))
	for _, v := range ids {
		if v != id {
			out = append(out, v)
		}
	}
	return out
}

// PlayerTournamentStats aggregates match stats per player. Players without any rating adjustment are
// left out; adjustments maps player id to the number of adjustments recorded in the tournament.
func PlayerTournamentStats(tournamentID int64, matchStats []models.PlayerMatchStats, adjustments map[int64]int) []models.PlayerTournamentStats {
	grouped := map[int64][]models.PlayerMatchStats{}
	for _, s := range matchStats {
		grouped[s.PlayerID] = append(grouped[s.PlayerID], s)
	}

	ids := make([]int64, 0, len(grouped))
	for id := range grouped {
		if adjustments[id] == 0 {
			continue
		}
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	out := make([]models.PlayerTournamentStats, 0, len(ids))
	for _, id := range ids {
		rows := grouped[id]
		agg := models.PlayerTournamentStats{PlayerID: id, TournamentID: tournamentID}
		teammates := map[int64]struct{}{}
		var cost, score, placement, accuracy float64
		for _, row := range rows {
			cost += row.MatchCost
			score += row.AverageScore
			placement += row.AveragePlacement
			accuracy += row.AverageAccuracy
			agg.MatchesPlayed++
			if row.Won {
				agg.MatchesWon++
			} else {
				agg.MatchesLost++
			}
			agg.GamesPlayed += row.GamesPlayed
			agg.GamesWon += row.GamesWon
			agg.GamesLost += row.GamesLost
			for _, mate := range row.TeammateIDs {
				teammates[mate] = struct{}{}
			}
		}
		n := float64(len(rows))
		agg.AverageMatchCost = cost / n
		agg.AverageScore = score / n
		agg.AveragePlacement = placement / n
		agg.AverageAccuracy = accuracy / n
		agg.TeammateIDs = pq.Int64Array(sortedIDs(teammates))
		out = append(out, agg)
	}
	return out
}
