package automation

import "github.com/noah-isme/tourney-pipeline/internal/models"

// ConvertHeadToHead rewrites the head-to-head games of a team tournament into TeamVs games.
// Players are ordered by first appearance across the match and split into consecutive blocks of
// LobbySize, alternating Red and Blue. Zero scores are left without a team.
//
// converted reports whether any game changed. ok is false when the lobby held more players than two
// full teams, in which case nothing is modified.
func ConvertHeadToHead(match *models.Match, tournament *models.Tournament) (converted bool, ok bool) {
	if tournament == nil || tournament.LobbySize <= 1 {
		return false, true
	}
	if match.VerificationStatus == models.VerificationStatusVerified {
		return false, true
	}

	var targets []int
	for i := range match.Games {
		if match.Games[i].TeamType == models.TeamTypeHeadToHead {
			targets = append(targets, i)
		}
	}
	if len(targets) == 0 {
		return false, true
	}

	order := make(map[int64]int)
	for _, gi := range targets {
		for _, score := range match.Games[gi].Scores {
			if score.Score == 0 || score.Team != models.TeamNoTeam {
				continue
			}
			if _, seen := order[score.PlayerID]; !seen {
				order[score.PlayerID] = len(order)
			}
		}
	}
	if len(order) > 2*tournament.LobbySize {
		return false, false
	}

	for _, gi := range targets {
		game := &match.Games[gi]
		game.TeamType = models.TeamTypeTeamVs
		for si := range game.Scores {
			score := &game.Scores[si]
			idx, assigned := order[score.PlayerID]
			if !assigned || score.Team != models.TeamNoTeam {
				continue
			}
			score.Team = teamForIndex(idx, tournament.LobbySize)
		}
	}
	return true, true
}

func teamForIndex(idx, lobbySize int) models.Team {
	if (idx/lobbySize)%2 == 0 {
		return models.TeamRed
	}
	return models.TeamBlue
}
