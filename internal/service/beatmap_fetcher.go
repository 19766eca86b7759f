package service

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/noah-isme/tourney-pipeline/internal/models"
	"github.com/noah-isme/tourney-pipeline/internal/upstream"
)

type beatmapFetchStore interface {
	EnsureStubs(ctx context.Context, exec sqlx.ExtContext, osuIDs []int64) ([]models.BeatmapFetchState, error)
	MarkNoData(ctx context.Context, osuIDs []int64) ([]int64, error)
	UpsertBeatmapset(ctx context.Context, exec sqlx.ExtContext, set *models.Beatmapset) error
}

type beatmapStatusWriter interface {
	UpdateBeatmapFetchStatus(ctx context.Context, beatmapIDs []int64, status models.FetchStatus) error
}

type batchFetchReserver interface {
	fetchReserver
	MarkCompletedBatch(ctx context.Context, t models.ResourceType, ids []int64) error
}

// BeatmapFetcher pulls beatmaps together with their owning set.
type BeatmapFetcher struct {
	client   upstream.Client
	beatmaps beatmapFetchStore
	tracker  beatmapStatusWriter
	dedup    batchFetchReserver
	tx       txProvider
	metrics  *MetricsService
	logger   *zap.Logger
}

// NewBeatmapFetcher wires the fetcher.
func NewBeatmapFetcher(client upstream.Client, beatmaps beatmapFetchStore, tracker beatmapStatusWriter, dedup batchFetchReserver, tx txProvider, metrics *MetricsService, logger *zap.Logger) *BeatmapFetcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BeatmapFetcher{client: client, beatmaps: beatmaps, tracker: tracker, dedup: dedup, tx: tx, metrics: metrics, logger: logger}
}

// Fetch processes one FetchBeatmap message.
func (f *BeatmapFetcher) Fetch(ctx context.Context, msg models.FetchBeatmapMessage) error {
	osuID := msg.OsuBeatmapID
	reserved, err := f.dedup.TryReserve(ctx, models.ResourceBeatmap, osuID)
	if err != nil {
		return err
	}
	if !reserved {
		f.metrics.RecordFetch(string(models.ResourceBeatmap), OutcomeSkipped)
		return nil
	}

	states, err := f.beatmaps.EnsureStubs(ctx, nil, []int64{osuID})
	if err != nil {
		return f.fail(ctx, nil, osuID, err)
	}
	localIDs := make([]int64, 0, len(states))
	for _, state := range states {
		localIDs = append(localIDs, state.ID)
	}
	if err := f.tracker.UpdateBeatmapFetchStatus(ctx, localIDs, models.FetchStatusFetching); err != nil {
		return f.fail(ctx, localIDs, osuID, err)
	}

	beatmap, err := f.client.GetBeatmap(ctx, osuID)
	if err != nil {
		return f.fail(ctx, localIDs, osuID, err)
	}
	if beatmap == nil {
		ids, err := f.beatmaps.MarkNoData(ctx, []int64{osuID})
		if err != nil {
			return f.fail(ctx, localIDs, osuID, err)
		}
		if err := f.tracker.UpdateBeatmapFetchStatus(ctx, ids, models.FetchStatusNotFound); err != nil {
			return f.fail(ctx, localIDs, osuID, err)
		}
		f.complete(ctx, models.ResourceBeatmap, []int64{osuID})
		f.metrics.RecordFetch(string(models.ResourceBeatmap), OutcomeNotFound)
		return nil
	}

	set, err := f.client.GetBeatmapset(ctx, beatmap.BeatmapsetID)
	if err != nil {
		return f.fail(ctx, localIDs, osuID, err)
	}
	model := beatmapsetModel(beatmap, set)

	if err := f.store(ctx, &model); err != nil {
		return f.fail(ctx, localIDs, osuID, err)
	}

	childIDs := make([]int64, 0, len(model.Beatmaps))
	childOsuIDs := make([]int64, 0, len(model.Beatmaps))
	for _, child := range model.Beatmaps {
		childIDs = append(childIDs, child.ID)
		childOsuIDs = append(childOsuIDs, child.OsuID)
	}
	if err := f.tracker.UpdateBeatmapFetchStatus(ctx, childIDs, models.FetchStatusFetched); err != nil {
		return f.fail(ctx, localIDs, osuID, err)
	}
	f.complete(ctx, models.ResourceBeatmap, childOsuIDs)
	f.complete(ctx, models.ResourceBeatmapset, []int64{model.OsuID})
	f.metrics.RecordFetch(string(models.ResourceBeatmap), OutcomeFetched)
	return nil
}

// beatmapsetModel converts the set, making sure the requested beatmap is part of it even when the set
// lookup came back empty.
func beatmapsetModel(beatmap *upstream.Beatmap, set *upstream.Beatmapset) models.Beatmapset {
	if set == nil {
		model := (&upstream.Beatmapset{ID: beatmap.BeatmapsetID, Beatmaps: []upstream.Beatmap{*beatmap}}).ToModel()
		model.HasData = false
		return model
	}
	model := set.ToModel()
	for _, child := range model.Beatmaps {
		if child.OsuID == beatmap.ID {
			return model
		}
	}
	model.Beatmaps = append(model.Beatmaps, beatmap.ToModel())
	return model
}

func (f *BeatmapFetcher) store(ctx context.Context, set *models.Beatmapset) (err error) {
	tx, err := f.tx.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin beatmapset transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()
	if err = f.beatmaps.UpsertBeatmapset(ctx, tx, set); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit beatmapset transaction: %w", err)
	}
	return nil
}

func (f *BeatmapFetcher) complete(ctx context.Context, t models.ResourceType, osuIDs []int64) {
	if err := f.dedup.MarkCompletedBatch(ctx, t, osuIDs); err != nil {
		f.logger.Sugar().Warnw("failed to mark fetch completed", "resource", t, "osu_ids", osuIDs, "error", err)
	}
}

func (f *BeatmapFetcher) fail(ctx context.Context, localIDs []int64, osuID int64, cause error) error {
	cleanup, cancel := context.WithTimeout(context.WithoutCancel(ctx), statusWriteTimeout)
	defer cancel()

	if len(localIDs) > 0 {
		if err := f.tracker.UpdateBeatmapFetchStatus(cleanup, localIDs, models.FetchStatusError); err != nil {
			f.logger.Sugar().Warnw("failed to record beatmap fetch error", "osu_id", osuID, "error", err)
		}
	}
	if err := f.dedup.Release(cleanup, models.ResourceBeatmap, osuID); err != nil {
		f.logger.Sugar().Warnw("failed to release beatmap reservation", "osu_id", osuID, "error", err)
	}
	f.metrics.RecordFetch(string(models.ResourceBeatmap), OutcomeError)
	f.logger.Error("beatmap fetch failed", zap.Int64("osu_id", osuID), zap.Error(cause))
	return cause
}
