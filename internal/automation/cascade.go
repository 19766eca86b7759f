package automation

import "github.com/noah-isme/tourney-pipeline/internal/models"

// CascadeTournament pushes status down to every match, game and score of t. Children already holding a
// terminal status keep it unless override is set, but their own children are still visited.
// Each child gains its level's cascade marker; existing reasons are kept.
func CascadeTournament(t *models.Tournament, status models.VerificationStatus, override bool) {
	for i := range t.Matches {
		match := &t.Matches[i]
		if override || !match.VerificationStatus.IsTerminal() {
			match.VerificationStatus = status
			match.RejectionReason |= models.MatchRejectionRejectedTournament
		}
		CascadeMatch(match, status, override)
	}
}

// CascadeMatch pushes status down to every game and score of match.
func CascadeMatch(match *models.Match, status models.VerificationStatus, override bool) {
	for i := range match.Games {
		game := &match.Games[i]
		if override || !game.VerificationStatus.IsTerminal() {
			game.VerificationStatus = status
			game.RejectionReason |= models.GameRejectionRejectedMatch
		}
		CascadeGame(game, status, override)
	}
}

// CascadeGame pushes status down to every score of game.
func CascadeGame(game *models.Game, status models.VerificationStatus, override bool) {
	for i := range game.Scores {
		score := &game.Scores[i]
		if override || !score.VerificationStatus.IsTerminal() {
			score.VerificationStatus = status
			score.RejectionReason |= models.ScoreRejectionRejectedGame
		}
	}
}

// IsRejected reports whether status is either rejection verdict.
func IsRejected(status models.VerificationStatus) bool {
	return status == models.VerificationStatusRejected || status == models.VerificationStatusPreRejected
}
