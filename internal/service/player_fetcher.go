package service

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/noah-isme/tourney-pipeline/internal/models"
	"github.com/noah-isme/tourney-pipeline/internal/upstream"
)

type playerFetchStore interface {
	EnsureStubs(ctx context.Context, exec sqlx.ExtContext, osuIDs []int64) (map[int64]int64, []int64, error)
	UpdateProfile(ctx context.Context, exec sqlx.ExtContext, player *models.Player) error
	UpsertRulesetData(ctx context.Context, exec sqlx.ExtContext, data []models.PlayerRulesetData) error
	MarkFetched(ctx context.Context, id int64, at time.Time) error
}

// PlayerFetcher refreshes player profiles and their per-ruleset standing.
type PlayerFetcher struct {
	client  upstream.Client
	players playerFetchStore
	dedup   fetchReserver
	tx      txProvider
	metrics *MetricsService
	logger  *zap.Logger
	now     func() time.Time
}

// NewPlayerFetcher wires the fetcher.
func NewPlayerFetcher(client upstream.Client, players playerFetchStore, dedup fetchReserver, tx txProvider, metrics *MetricsService, logger *zap.Logger) *PlayerFetcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PlayerFetcher{
		client:  client,
		players: players,
		dedup:   dedup,
		tx:      tx,
		metrics: metrics,
		logger:  logger,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Fetch processes one FetchPlayer message.
func (f *PlayerFetcher) Fetch(ctx context.Context, msg models.FetchPlayerMessage) error {
	osuID := msg.OsuPlayerID
	reserved, err := f.dedup.TryReserve(ctx, models.ResourcePlayer, osuID)
	if err != nil {
		return err
	}
	if !reserved {
		f.metrics.RecordFetch(string(models.ResourcePlayer), OutcomeSkipped)
		return nil
	}

	ids, _, err := f.players.EnsureStubs(ctx, nil, []int64{osuID})
	if err != nil {
		return f.fail(ctx, osuID, err)
	}
	playerID, ok := ids[osuID]
	if !ok {
		return f.fail(ctx, osuID, fmt.Errorf("player %d missing after stub creation", osuID))
	}

	user, err := f.client.GetUser(ctx, osuID, models.RulesetOsu)
	if err != nil {
		return f.fail(ctx, osuID, err)
	}
	if user == nil {
		if err := f.players.MarkFetched(ctx, playerID, f.now()); err != nil {
			return f.fail(ctx, osuID, err)
		}
		f.complete(ctx, osuID)
		f.metrics.RecordFetch(string(models.ResourcePlayer), OutcomeNotFound)
		return nil
	}

	data, err := f.rulesetData(ctx, osuID, playerID, user)
	if err != nil {
		return f.fail(ctx, osuID, err)
	}

	fetchedAt := f.now()
	player := &models.Player{
		ID:             playerID,
		OsuID:          osuID,
		Username:       user.Username,
		Country:        user.CountryCode,
		DefaultRuleset: upstream.ParseRuleset(user.Playmode),
		LastFetchedAt:  &fetchedAt,
	}
	if err := f.store(ctx, player, data); err != nil {
		return f.fail(ctx, osuID, err)
	}
	f.complete(ctx, osuID)
	f.metrics.RecordFetch(string(models.ResourcePlayer), OutcomeFetched)
	return nil
}

// rulesetData collects standings for every ruleset. The upstream serves all mania variants from one
// request, so each API mode is requested once.
func (f *PlayerFetcher) rulesetData(ctx context.Context, osuID, playerID int64, first *upstream.User) ([]models.PlayerRulesetData, error) {
	responses := map[string]*upstream.User{models.RulesetOsu.APIName(): first}
	var out []models.PlayerRulesetData
	for _, ruleset := range models.AllRulesets {
		mode := ruleset.APIName()
		user, ok := responses[mode]
		if !ok {
			var err error
			user, err = f.client.GetUser(ctx, osuID, ruleset)
			if err != nil {
				return nil, err
			}
			responses[mode] = user
		}
		if user == nil {
			continue
		}
		data, ok := user.RulesetData(ruleset)
		if !ok {
			continue
		}
		data.PlayerID = playerID
		out = append(out, data)
	}
	return out, nil
}

func (f *PlayerFetcher) store(ctx context.Context, player *models.Player, data []models.PlayerRulesetData) (err error) {
	tx, err := f.tx.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin player transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()
	if err = f.players.UpdateProfile(ctx, tx, player); err != nil {
		return err
	}
	if err = f.players.UpsertRulesetData(ctx, tx, data); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit player transaction: %w", err)
	}
	return nil
}

func (f *PlayerFetcher) complete(ctx context.Context, osuID int64) {
	if err := f.dedup.MarkCompleted(ctx, models.ResourcePlayer, osuID); err != nil {
		f.logger.Sugar().Warnw("failed to mark player fetch completed", "osu_id", osuID, "error", err)
	}
}

func (f *PlayerFetcher) fail(ctx context.Context, osuID int64, cause error) error {
	cleanup, cancel := context.WithTimeout(context.WithoutCancel(ctx), statusWriteTimeout)
	defer cancel()
	if err := f.dedup.Release(cleanup, models.ResourcePlayer, osuID); err != nil {
		f.logger.Sugar().Warnw("failed to release player reservation", "osu_id", osuID, "error", err)
	}
	f.metrics.RecordFetch(string(models.ResourcePlayer), OutcomeError)
	f.logger.Error("player fetch failed", zap.Int64("osu_id", osuID), zap.Error(cause))
	return cause
}
