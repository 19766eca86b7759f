package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/noah-isme/tourney-pipeline/internal/models"
)

const beatmapColumns = `id, osu_id, beatmapset_id, has_data, fetch_status, ruleset, diff_name, ranked_status, total_length,
       drain_length, bpm, cs, ar, hp, od, sr, max_combo`

// BeatmapRepository persists beatmaps and beatmapsets.
type BeatmapRepository struct {
	db *sqlx.DB
}

// NewBeatmapRepository constructs the repository.
func NewBeatmapRepository(db *sqlx.DB) *BeatmapRepository {
	return &BeatmapRepository{db: db}
}

func (r *BeatmapRepository) exec(exec sqlx.ExtContext) sqlx.ExtContext {
	if exec != nil {
		return exec
	}
	return r.db
}

// FindByOsuID returns the local beatmap for an upstream id.
func (r *BeatmapRepository) FindByOsuID(ctx context.Context, osuID int64) (*models.Beatmap, error) {
	query := `SELECT ` + beatmapColumns + ` FROM beatmaps WHERE osu_id = $1`
	var beatmap models.Beatmap
	if err := r.db.GetContext(ctx, &beatmap, query, osuID); err != nil {
		return nil, fmt.Errorf("get beatmap by osu id: %w", err)
	}
	return &beatmap, nil
}

// EnsureStubs creates NotFetched rows for unseen upstream ids and returns the state of every requested id.
func (r *BeatmapRepository) EnsureStubs(ctx context.Context, exec sqlx.ExtContext, osuIDs []int64) ([]models.BeatmapFetchState, error) {
	if len(osuIDs) == 0 {
		return nil, nil
	}
	target := r.exec(exec)
	const insert = `INSERT INTO beatmaps (osu_id, has_data, fetch_status)
SELECT unnest($1::bigint[]), TRUE, $2
ON CONFLICT (osu_id) DO NOTHING`
	if _, err := target.ExecContext(ctx, insert, pq.Array(osuIDs), models.FetchStatusNotFetched); err != nil {
		return nil, fmt.Errorf("create beatmap stubs: %w", err)
	}
	const query = `SELECT id, osu_id, fetch_status FROM beatmaps WHERE osu_id = ANY($1) ORDER BY id`
	var states []models.BeatmapFetchState
	if err := sqlx.SelectContext(ctx, target, &states, query, pq.Array(osuIDs)); err != nil {
		return nil, fmt.Errorf("list beatmap stubs: %w", err)
	}
	return states, nil
}

// FetchStatesByTournament returns every beatmap pooled by or played in the tournament.
func (r *BeatmapRepository) FetchStatesByTournament(ctx context.Context, tournamentID int64) ([]models.BeatmapFetchState, error) {
	const query = `SELECT b.id, b.osu_id, b.fetch_status FROM beatmaps b
WHERE b.id IN (
    SELECT beatmap_id FROM tournament_pooled_beatmaps WHERE tournament_id = $1
    UNION
    SELECT g.beatmap_id FROM games g JOIN matches m ON m.id = g.match_id
    WHERE m.tournament_id = $1 AND g.beatmap_id IS NOT NULL
)
ORDER BY b.id`
	var states []models.BeatmapFetchState
	if err := r.db.SelectContext(ctx, &states, query, tournamentID); err != nil {
		return nil, fmt.Errorf("list beatmap fetch states: %w", err)
	}
	return states, nil
}

// UpdateFetchStatus sets the fetch status of the given local beatmaps.
func (r *BeatmapRepository) UpdateFetchStatus(ctx context.Context, ids []int64, status models.FetchStatus) error {
	if len(ids) == 0 {
		return nil
	}
	const query = `UPDATE beatmaps SET fetch_status = $1 WHERE id = ANY($2)`
	if _, err := r.db.ExecContext(ctx, query, status, pq.Array(ids)); err != nil {
		return fmt.Errorf("update beatmap fetch status: %w", err)
	}
	return nil
}

// MarkNoData flags beatmaps as absent upstream. Descriptive columns keep their previous values.
func (r *BeatmapRepository) MarkNoData(ctx context.Context, osuIDs []int64) ([]int64, error) {
	if len(osuIDs) == 0 {
		return nil, nil
	}
	const query = `UPDATE beatmaps SET has_data = FALSE WHERE osu_id = ANY($1) RETURNING id`
	var ids []int64
	if err := r.db.SelectContext(ctx, &ids, query, pq.Array(osuIDs)); err != nil {
		return nil, fmt.Errorf("mark beatmaps without data: %w", err)
	}
	return ids, nil
}

// ListByFetchStatus returns up to limit beatmaps whose fetch status is one of statuses.
func (r *BeatmapRepository) ListByFetchStatus(ctx context.Context, statuses []models.FetchStatus, limit int) ([]models.BeatmapFetchState, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	const query = `SELECT id, osu_id, fetch_status FROM beatmaps WHERE fetch_status = ANY($1) ORDER BY id LIMIT $2`
	var states []models.BeatmapFetchState
	if err := r.db.SelectContext(ctx, &states, query, pq.Array(fetchStatusValues(statuses)), limit); err != nil {
		return nil, fmt.Errorf("list beatmaps by fetch status: %w", err)
	}
	return states, nil
}

// UpsertBeatmapset stores the set and every child beatmap, writing local ids back onto set.
func (r *BeatmapRepository) UpsertBeatmapset(ctx context.Context, exec sqlx.ExtContext, set *models.Beatmapset) error {
	target := r.exec(exec)
	const setQuery = `INSERT INTO beatmapsets (osu_id, has_data, artist, title, creator_id, ranked_status, ranked_date, submitted_at)
VALUES (:osu_id, :has_data, :artist, :title, :creator_id, :ranked_status, :ranked_date, :submitted_at)
ON CONFLICT (osu_id) DO UPDATE
SET has_data = EXCLUDED.has_data,
    artist = EXCLUDED.artist,
    title = EXCLUDED.title,
    creator_id = EXCLUDED.creator_id,
    ranked_status = EXCLUDED.ranked_status,
    ranked_date = EXCLUDED.ranked_date,
    submitted_at = EXCLUDED.submitted_at
RETURNING id`
	rows, err := sqlx.NamedQueryContext(ctx, target, setQuery, set)
	if err != nil {
		return fmt.Errorf("upsert beatmapset: %w", err)
	}
	if rows.Next() {
		if err := rows.Scan(&set.ID); err != nil {
			rows.Close()
			return fmt.Errorf("scan beatmapset id: %w", err)
		}
	}
	rows.Close()

	const beatmapQuery = `INSERT INTO beatmaps (osu_id, beatmapset_id, has_data, fetch_status, ruleset, diff_name, ranked_status,
       total_length, drain_length, bpm, cs, ar, hp, od, sr, max_combo)
VALUES (:osu_id, :beatmapset_id, :has_data, :fetch_status, :ruleset, :diff_name, :ranked_status,
       :total_length, :drain_length, :bpm, :cs, :ar, :hp, :od, :sr, :max_combo)
ON CONFLICT (osu_id) DO UPDATE
SET beatmapset_id = EXCLUDED.beatmapset_id,
    has_data = EXCLUDED.has_data,
    ruleset = EXCLUDED.ruleset,
    diff_name = EXCLUDED.diff_name,
    ranked_status = EXCLUDED.ranked_status,
    total_length = EXCLUDED.total_length,
    drain_length = EXCLUDED.drain_length,
    bpm = EXCLUDED.bpm,
    cs = EXCLUDED.cs,
    ar = EXCLUDED.ar,
    hp = EXCLUDED.hp,
    od = EXCLUDED.od,
    sr = EXCLUDED.sr,
    max_combo = EXCLUDED.max_combo
RETURNING id`
	for i := range set.Beatmaps {
		beatmap := &set.Beatmaps[i]
		beatmap.BeatmapsetID = &set.ID
		rows, err := sqlx.NamedQueryContext(ctx, target, beatmapQuery, beatmap)
		if err != nil {
			return fmt.Errorf("upsert beatmap: %w", err)
		}
		if rows.Next() {
			if err := rows.Scan(&beatmap.ID); err != nil {
				rows.Close()
				return fmt.Errorf("scan beatmap id: %w", err)
			}
		}
		rows.Close()
	}
	return nil
}
