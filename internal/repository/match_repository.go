package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/noah-isme/tourney-pipeline/internal/models"
)

// MatchRepository persists matches together with their games and scores.
type MatchRepository struct {
	db *sqlx.DB
}

// NewMatchRepository constructs the repository.
func NewMatchRepository(db *sqlx.DB) *MatchRepository {
	return &MatchRepository{db: db}
}

func (r *MatchRepository) exec(exec sqlx.ExtContext) sqlx.ExtContext {
	if exec != nil {
		return exec
	}
	return r.db
}

// FindByOsuID returns the local match registered for an upstream match id.
func (r *MatchRepository) FindByOsuID(ctx context.Context, osuID int64) (*models.Match, error) {
	query := `SELECT ` + matchColumns + ` FROM matches WHERE osu_id = $1`
	var match models.Match
	if err := r.db.GetContext(ctx, &match, query, osuID); err != nil {
		return nil, fmt.Errorf("get match by osu id: %w", err)
	}
	return &match, nil
}

// FetchStatesByTournament returns the fetch state of every match in a tournament.
func (r *MatchRepository) FetchStatesByTournament(ctx context.Context, tournamentID int64) ([]models.MatchFetchState, error) {
	const query = `SELECT id, fetch_status, start_time FROM matches WHERE tournament_id = $1 ORDER BY id`
	var states []models.MatchFetchState
	if err := r.db.SelectContext(ctx, &states, query, tournamentID); err != nil {
		return nil, fmt.Errorf("list match fetch states: %w", err)
	}
	return states, nil
}

// UpdateFetchStatus sets the fetch status of one match and returns its tournament id.
func (r *MatchRepository) UpdateFetchStatus(ctx context.Context, id int64, status models.FetchStatus) (int64, error) {
	const query = `UPDATE matches SET fetch_status = $1 WHERE id = $2 RETURNING tournament_id`
	var tournamentID int64
	if err := r.db.QueryRowxContext(ctx, query, status, id).Scan(&tournamentID); err != nil {
		return 0, fmt.Errorf("update match fetch status: %w", err)
	}
	return tournamentID, nil
}

// ListByFetchStatus returns up to limit matches whose fetch status is one of statuses.
func (r *MatchRepository) ListByFetchStatus(ctx context.Context, statuses []models.FetchStatus, limit int) ([]models.Match, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	query := `SELECT ` + matchColumns + ` FROM matches WHERE fetch_status = ANY($1) ORDER BY id LIMIT $2`
	var matches []models.Match
	if err := r.db.SelectContext(ctx, &matches, query, pq.Array(fetchStatusValues(statuses)), limit); err != nil {
		return nil, fmt.Errorf("list matches by fetch status: %w", err)
	}
	return matches, nil
}

// UpdateDetails writes the upstream scalar fields of a match.
func (r *MatchRepository) UpdateDetails(ctx context.Context, exec sqlx.ExtContext, match *models.Match) error {
	const query = `UPDATE matches SET name = :name, start_time = :start_time, end_time = :end_time WHERE id = :id`
	if _, err := sqlx.NamedExecContext(ctx, r.exec(exec), query, match); err != nil {
		return fmt.Errorf("update match details: %w", err)
	}
	return nil
}

// UpsertGames inserts or refreshes games by upstream id and writes back their local ids. Verdict
// columns are left alone on conflict so a refetch never resets a human decision.
func (r *MatchRepository) UpsertGames(ctx context.Context, exec sqlx.ExtContext, games []models.Game) error {
	target := r.exec(exec)
	const query = `INSERT INTO games (osu_id, match_id, beatmap_id, ruleset, scoring_type, team_type, mods, start_time, end_time,
       verification_status, rejection_reason, warning_flags)
VALUES (:osu_id, :match_id, :beatmap_id, :ruleset, :scoring_type, :team_type, :mods, :start_time, :end_time,
       :verification_status, :rejection_reason, :warning_flags)
ON CONFLICT (osu_id) DO UPDATE
SET beatmap_id = EXCLUDED.beatmap_id,
    ruleset = EXCLUDED.ruleset,
    scoring_type = EXCLUDED.scoring_type,
    mods = EXCLUDED.mods,
    start_time = EXCLUDED.start_time,
    end_time = EXCLUDED.end_time
RETURNING id, verification_status, rejection_reason`
	for i := range games {
		game := &games[i]
		rows, err := sqlx.NamedQueryContext(ctx, target, query, game)
		if err != nil {
			return fmt.Errorf("upsert game: %w", err)
		}
		if rows.Next() {
			if err := rows.Scan(&game.ID, &game.VerificationStatus, &game.RejectionReason); err != nil {
				rows.Close()
				return fmt.Errorf("scan upserted game: %w", err)
			}
		}
		rows.Close()
		for j := range game.Scores {
			game.Scores[j].GameID = game.ID
		}
	}
	return nil
}

// UpsertScores inserts or refreshes scores keyed by (game, player) and writes back their local ids.
func (r *MatchRepository) UpsertScores(ctx context.Context, exec sqlx.ExtContext, scores []models.Score) error {
	target := r.exec(exec)
	const query = `INSERT INTO game_scores (game_id, player_id, score, placement, max_combo, count_50, count_100, count_300,
       count_miss, count_katu, count_geki, pass, perfect, mods, team, ruleset, verification_status, rejection_reason)
VALUES (:game_id, :player_id, :score, :placement, :max_combo, :count_50, :count_100, :count_300,
       :count_miss, :count_katu, :count_geki, :pass, :perfect, :mods, :team, :ruleset, :verification_status, :rejection_reason)
ON CONFLICT (game_id, player_id) DO UPDATE
SET score = EXCLUDED.score,
    placement = EXCLUDED.placement,
    max_combo = EXCLUDED.max_combo,
    count_50 = EXCLUDED.count_50,
    count_100 = EXCLUDED.count_100,
    count_300 = EXCLUDED.count_300,
    count_miss = EXCLUDED.count_miss,
    count_katu = EXCLUDED.count_katu,
    count_geki = EXCLUDED.count_geki,
    pass = EXCLUDED.pass,
    perfect = EXCLUDED.perfect,
    mods = EXCLUDED.mods
RETURNING id, verification_status, rejection_reason`
	for i := range scores {
		score := &scores[i]
		rows, err := sqlx.NamedQueryContext(ctx, target, query, score)
		if err != nil {
			return fmt.Errorf("upsert score: %w", err)
		}
		if rows.Next() {
			if err := rows.Scan(&score.ID, &score.VerificationStatus, &score.RejectionReason); err != nil {
				rows.Close()
				return fmt.Errorf("scan upserted score: %w", err)
			}
		}
		rows.Close()
	}
	return nil
}

// SaveCascade persists verdicts assigned to freshly stored children of a rejected parent.
func (r *MatchRepository) SaveCascade(ctx context.Context, exec sqlx.ExtContext, games []models.Game) error {
	target := r.exec(exec)
	var g, s verdictBatch
	for i := range games {
		game := &games[i]
		g.add(game.ID, int64(game.VerificationStatus), int64(game.RejectionReason))
		for j := range game.Scores {
			score := &game.Scores[j]
			s.add(score.ID, int64(score.VerificationStatus), int64(score.RejectionReason))
		}
	}
	if len(g.ids) > 0 {
		const query = `UPDATE games AS g SET verification_status = v.status, rejection_reason = v.reason
FROM (SELECT unnest($1::bigint[]) AS id, unnest($2::int[]) AS status, unnest($3::int[]) AS reason) AS v
WHERE g.id = v.id`
		if _, err := target.ExecContext(ctx, query, g.args()...); err != nil {
			return fmt.Errorf("save cascaded game verdicts: %w", err)
		}
	}
	if len(s.ids) > 0 {
		const query = `UPDATE game_scores AS s SET verification_status = v.status, rejection_reason = v.reason
FROM (SELECT unnest($1::bigint[]) AS id, unnest($2::int[]) AS status, unnest($3::int[]) AS reason) AS v
WHERE s.id = v.id`
		if _, err := target.ExecContext(ctx, query, s.args()...); err != nil {
			return fmt.Errorf("save cascaded score verdicts: %w", err)
		}
	}
	return nil
}

func fetchStatusValues(statuses []models.FetchStatus) []int64 {
	out := make([]int64, len(statuses))
	for i, s := range statuses {
		out[i] = int64(s)
	}
	return out
}
