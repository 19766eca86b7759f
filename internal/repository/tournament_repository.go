package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/noah-isme/tourney-pipeline/internal/models"
)

const tournamentColumns = `id, name, abbreviation, ruleset, lobby_size, rank_range_lower_bound, verification_status,
       rejection_reason, start_time, end_time, last_stats_processed_at`

const matchColumns = `id, osu_id, tournament_id, name, start_time, end_time, verification_status, rejection_reason,
       warning_flags, fetch_status`

const gameColumns = `id, osu_id, match_id, beatmap_id, ruleset, scoring_type, team_type, mods, start_time, end_time,
       verification_status, rejection_reason, warning_flags`

const scoreColumns = `id, game_id, player_id, score, placement, max_combo, count_50, count_100, count_300, count_miss,
       count_katu, count_geki, pass, perfect, mods, team, ruleset, verification_status, rejection_reason`

// TournamentRepository reads tournaments and persists verification verdicts across the whole tree.
type TournamentRepository struct {
	db *sqlx.DB
}

// NewTournamentRepository constructs the repository.
func NewTournamentRepository(db *sqlx.DB) *TournamentRepository {
	return &TournamentRepository{db: db}
}

func (r *TournamentRepository) exec(exec sqlx.ExtContext) sqlx.ExtContext {
	if exec != nil {
		return exec
	}
	return r.db
}

// FindByID loads the tournament row only.
func (r *TournamentRepository) FindByID(ctx context.Context, id int64) (*models.Tournament, error) {
	query := `SELECT ` + tournamentColumns + ` FROM tournaments WHERE id = $1`
	var tournament models.Tournament
	if err := r.db.GetContext(ctx, &tournament, query, id); err != nil {
		return nil, fmt.Errorf("get tournament: %w", err)
	}
	return &tournament, nil
}

// LoadTree loads the tournament with every match, game, score and its pooled beatmap ids.
func (r *TournamentRepository) LoadTree(ctx context.Context, id int64) (*models.Tournament, error) {
	tournament, err := r.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}

	pooled, err := r.ListPooledBeatmapIDs(ctx, id)
	if err != nil {
		return nil, err
	}
	tournament.PooledBeatmapIDs = pooled

	var matches []models.Match
	matchQuery := `SELECT ` + matchColumns + ` FROM matches WHERE tournament_id = $1 ORDER BY start_time NULLS LAST, id`
	if err := r.db.SelectContext(ctx, &matches, matchQuery, id); err != nil {
		return nil, fmt.Errorf("list tournament matches: %w", err)
	}
	if len(matches) == 0 {
		return tournament, nil
	}

	matchIDs := make([]int64, len(matches))
	for i := range matches {
		matchIDs[i] = matches[i].ID
	}
	var games []models.Game
	gameQuery := `SELECT ` + gameColumns + ` FROM games WHERE match_id = ANY($1) ORDER BY start_time NULLS LAST, id`
	if err := r.db.SelectContext(ctx, &games, gameQuery, pq.Array(matchIDs)); err != nil {
		return nil, fmt.Errorf("list tournament games: %w", err)
	}

	if len(games) > 0 {
		gameIDs := make([]int64, len(games))
		for i := range games {
			gameIDs[i] = games[i].ID
		}
		var scores []models.Score
		scoreQuery := `SELECT ` + scoreColumns + ` FROM game_scores WHERE game_id = ANY($1) ORDER BY id`
		if err := r.db.SelectContext(ctx, &scores, scoreQuery, pq.Array(gameIDs)); err != nil {
			return nil, fmt.Errorf("list tournament scores: %w", err)
		}
		scoresByGame := make(map[int64][]models.Score, len(games))
		for _, score := range scores {
			scoresByGame[score.GameID] = append(scoresByGame[score.GameID], score)
		}
		for i := range games {
			games[i].Scores = scoresByGame[games[i].ID]
		}
	}

	gamesByMatch := make(map[int64][]models.Game, len(matches))
	for _, game := range games {
		gamesByMatch[game.MatchID] = append(gamesByMatch[game.MatchID], game)
	}
	for i := range matches {
		matches[i].Games = gamesByMatch[matches[i].ID]
	}
	tournament.Matches = matches
	return tournament, nil
}

// ListPooledBeatmapIDs returns local beatmap ids in the tournament pool.
func (r *TournamentRepository) ListPooledBeatmapIDs(ctx context.Context, id int64) ([]int64, error) {
	const query = `SELECT beatmap_id FROM tournament_pooled_beatmaps WHERE tournament_id = $1 ORDER BY beatmap_id`
	var ids []int64
	if err := r.db.SelectContext(ctx, &ids, query, id); err != nil {
		return nil, fmt.Errorf("list pooled beatmaps: %w", err)
	}
	return ids, nil
}

// IDsReferencingBeatmap lists tournaments that pool or played the beatmap.
func (r *TournamentRepository) IDsReferencingBeatmap(ctx context.Context, beatmapID int64) ([]int64, error) {
	const query = `SELECT tournament_id FROM tournament_pooled_beatmaps WHERE beatmap_id = $1
UNION
SELECT m.tournament_id FROM games g JOIN matches m ON m.id = g.match_id WHERE g.beatmap_id = $1`
	var ids []int64
	if err := r.db.SelectContext(ctx, &ids, query, beatmapID); err != nil {
		return nil, fmt.Errorf("list tournaments referencing beatmap: %w", err)
	}
	return ids, nil
}

// UpdateTimes stores the derived tournament window.
func (r *TournamentRepository) UpdateTimes(ctx context.Context, id int64, start, end *time.Time) error {
	const query = `UPDATE tournaments SET start_time = $1, end_time = $2 WHERE id = $3`
	if _, err := r.db.ExecContext(ctx, query, start, end, id); err != nil {
		return fmt.Errorf("update tournament times: %w", err)
	}
	return nil
}

// ListVerifiedWithoutStats returns Verified tournaments whose stats were never processed.
func (r *TournamentRepository) ListVerifiedWithoutStats(ctx context.Context, limit int) ([]int64, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	const query = `SELECT id FROM tournaments WHERE verification_status = $1 AND last_stats_processed_at IS NULL
ORDER BY id LIMIT $2`
	var ids []int64
	if err := r.db.SelectContext(ctx, &ids, query, models.VerificationStatusVerified, limit); err != nil {
		return nil, fmt.Errorf("list tournaments awaiting stats: %w", err)
	}
	return ids, nil
}

// MarkStatsProcessed stamps the last successful stats run.
func (r *TournamentRepository) MarkStatsProcessed(ctx context.Context, exec sqlx.ExtContext, id int64, at time.Time) error {
	const query = `UPDATE tournaments SET last_stats_processed_at = $1 WHERE id = $2`
	if _, err := r.exec(exec).ExecContext(ctx, query, at, id); err != nil {
		return fmt.Errorf("mark tournament stats processed: %w", err)
	}
	return nil
}

// SaveVerification writes verdicts and structural team fixes for the whole tree. Each level is updated
// with a single statement so the caller can run all of them inside one transaction.
func (r *TournamentRepository) SaveVerification(ctx context.Context, exec sqlx.ExtContext, t *models.Tournament) error {
	target := r.exec(exec)

	const tournamentQuery = `UPDATE tournaments SET verification_status = $1, rejection_reason = $2 WHERE id = $3`
	if _, err := target.ExecContext(ctx, tournamentQuery, t.VerificationStatus, t.RejectionReason, t.ID); err != nil {
		return fmt.Errorf("save tournament verdict: %w", err)
	}

	var m, g, s verdictBatch
	for i := range t.Matches {
		match := &t.Matches[i]
		m.add(match.ID, int64(match.VerificationStatus), int64(match.RejectionReason), int64(match.WarningFlags))
		for j := range match.Games {
			game := &match.Games[j]
			g.add(game.ID, int64(game.VerificationStatus), int64(game.RejectionReason), int64(game.WarningFlags), int64(game.TeamType))
			for k := range game.Scores {
				score := &game.Scores[k]
				s.add(score.ID, int64(score.VerificationStatus), int64(score.RejectionReason), int64(score.Team))
			}
		}
	}

	if len(m.ids) > 0 {
		const query = `UPDATE matches AS m SET verification_status = v.status, rejection_reason = v.reason, warning_flags = v.warnings
FROM (SELECT unnest($1::bigint[]) AS id, unnest($2::int[]) AS status, unnest($3::int[]) AS reason, unnest($4::int[]) AS warnings) AS v
WHERE m.id = v.id`
		if _, err := target.ExecContext(ctx, query, m.args()...); err != nil {
			return fmt.Errorf("save match verdicts: %w", err)
		}
	}
	if len(g.ids) > 0 {
		const query = `UPDATE games AS g SET verification_status = v.status, rejection_reason = v.reason, warning_flags = v.warnings, team_type = v.team_type
FROM (SELECT unnest($1::bigint[]) AS id, unnest($2::int[]) AS status, unnest($3::int[]) AS reason, unnest($4::int[]) AS warnings, unnest($5::int[]) AS team_type) AS v
WHERE g.id = v.id`
		if _, err := target.ExecContext(ctx, query, g.args()...); err != nil {
			return fmt.Errorf("save game verdicts: %w", err)
		}
	}
	if len(s.ids) > 0 {
		const query = `UPDATE game_scores AS s SET verification_status = v.status, rejection_reason = v.reason, team = v.team
FROM (SELECT unnest($1::bigint[]) AS id, unnest($2::int[]) AS status, unnest($3::int[]) AS reason, unnest($4::int[]) AS team) AS v
WHERE s.id = v.id`
		if _, err := target.ExecContext(ctx, query, s.args()...); err != nil {
			return fmt.Errorf("save score verdicts: %w", err)
		}
	}
	return nil
}

// verdictBatch collects column-oriented arrays for an unnest based bulk update.
type verdictBatch struct {
	ids     []int64
	columns [][]int64
}

func (b *verdictBatch) add(id int64, values ...int64) {
	if b.columns == nil {
		b.columns = make([][]int64, len(values))
	}
	b.ids = append(b.ids, id)
	for i, v := range values {
		b.columns[i] = append(b.columns[i], v)
	}
}

func (b *verdictBatch) args() []interface{} {
	out := make([]interface{}, 0, len(b.columns)+1)
	out = append(out, pq.Array(b.ids))
	for _, column := range b.columns {
		out = append(out, pq.Array(column))
	}
	return out
}
