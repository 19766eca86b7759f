package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/noah-isme/tourney-pipeline/internal/models"
)

const playerColumns = `id, osu_id, username, country, default_ruleset, last_fetched_at`

// PlayerRepository persists players and their per-ruleset standing.
type PlayerRepository struct {
	db *sqlx.DB
}

// NewPlayerRepository constructs the repository.
func NewPlayerRepository(db *sqlx.DB) *PlayerRepository {
	return &PlayerRepository{db: db}
}

func (r *PlayerRepository) exec(exec sqlx.ExtContext) sqlx.ExtContext {
	if exec != nil {
		return exec
	}
	return r.db
}

// FindByOsuID returns the local player for an upstream user id.
func (r *PlayerRepository) FindByOsuID(ctx context.Context, osuID int64) (*models.Player, error) {
	query := `SELECT ` + playerColumns + ` FROM players WHERE osu_id = $1`
	var player models.Player
	if err := r.db.GetContext(ctx, &player, query, osuID); err != nil {
		return nil, fmt.Errorf("get player by osu id: %w", err)
	}
	return &player, nil
}

// EnsureStubs creates rows for unseen upstream user ids. It returns the local id of every requested user
// and the upstream ids that were created by this call.
func (r *PlayerRepository) EnsureStubs(ctx context.Context, exec sqlx.ExtContext, osuIDs []int64) (map[int64]int64, []int64, error) {
	if len(osuIDs) == 0 {
		return map[int64]int64{}, nil, nil
	}
	target := r.exec(exec)

	const insert = `INSERT INTO players (osu_id, username, country, default_ruleset)
SELECT unnest($1::bigint[]), '', '', $2
ON CONFLICT (osu_id) DO NOTHING
RETURNING osu_id`
	var created []int64
	if err := sqlx.SelectContext(ctx, target, &created, insert, pq.Array(osuIDs), models.RulesetOsu); err != nil {
		return nil, nil, fmt.Errorf("create player stubs: %w", err)
	}

	const query = `SELECT id, osu_id FROM players WHERE osu_id = ANY($1)`
	var rows []struct {
		ID    int64 `db:"id"`
		OsuID int64 `db:"osu_id"`
	}
	if err := sqlx.SelectContext(ctx, target, &rows, query, pq.Array(osuIDs)); err != nil {
		return nil, nil, fmt.Errorf("list player stubs: %w", err)
	}
	ids := make(map[int64]int64, len(rows))
	for _, row := range rows {
		ids[row.OsuID] = row.ID
	}
	return ids, created, nil
}

// UpdateProfile writes profile fields and stamps the fetch time.
func (r *PlayerRepository) UpdateProfile(ctx context.Context, exec sqlx.ExtContext, player *models.Player) error {
	const query = `UPDATE players SET username = :username, country = :country, default_ruleset = :default_ruleset,
       last_fetched_at = :last_fetched_at WHERE id = :id`
	if _, err := sqlx.NamedExecContext(ctx, r.exec(exec), query, player); err != nil {
		return fmt.Errorf("update player profile: %w", err)
	}
	return nil
}

// UpsertRulesetData stores per-ruleset standing rows.
func (r *PlayerRepository) UpsertRulesetData(ctx context.Context, exec sqlx.ExtContext, data []models.PlayerRulesetData) error {
	target := r.exec(exec)
	const query = `INSERT INTO player_ruleset_data (player_id, ruleset, pp, global_rank)
VALUES (:player_id, :ruleset, :pp, :global_rank)
ON CONFLICT (player_id, ruleset) DO UPDATE
SET pp = EXCLUDED.pp,
    global_rank = EXCLUDED.global_rank`
	for i := range data {
		if _, err := sqlx.NamedExecContext(ctx, target, query, &data[i]); err != nil {
			return fmt.Errorf("upsert player ruleset data: %w", err)
		}
	}
	return nil
}

// MarkFetched stamps a player as fetched without touching other fields.
func (r *PlayerRepository) MarkFetched(ctx context.Context, id int64, at time.Time) error {
	const query = `UPDATE players SET last_fetched_at = $1 WHERE id = $2`
	if _, err := r.db.ExecContext(ctx, query, at, id); err != nil {
		return fmt.Errorf("mark player fetched: %w", err)
	}
	return nil
}
