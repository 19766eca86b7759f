package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/noah-isme/tourney-pipeline/internal/automation"
	"github.com/noah-isme/tourney-pipeline/internal/messaging"
	"github.com/noah-isme/tourney-pipeline/internal/models"
	"github.com/noah-isme/tourney-pipeline/internal/upstream"
)

// statusWriteTimeout bounds the cleanup writes performed after a failed fetch.
const statusWriteTimeout = 5 * time.Second

type matchFetchStore interface {
	FindByOsuID(ctx context.Context, osuID int64) (*models.Match, error)
	UpdateDetails(ctx context.Context, exec sqlx.ExtContext, match *models.Match) error
	UpsertGames(ctx context.Context, exec sqlx.ExtContext, games []models.Game) error
	UpsertScores(ctx context.Context, exec sqlx.ExtContext, scores []models.Score) error
	SaveCascade(ctx context.Context, exec sqlx.ExtContext, games []models.Game) error
}

type beatmapStubStore interface {
	EnsureStubs(ctx context.Context, exec sqlx.ExtContext, osuIDs []int64) ([]models.BeatmapFetchState, error)
}

type playerStubStore interface {
	EnsureStubs(ctx context.Context, exec sqlx.ExtContext, osuIDs []int64) (map[int64]int64, []int64, error)
}

type matchStatusWriter interface {
	UpdateMatchFetchStatus(ctx context.Context, matchID int64, status models.FetchStatus) error
}

type fetchReserver interface {
	TryReserve(ctx context.Context, t models.ResourceType, id int64) (bool, error)
	MarkCompleted(ctx context.Context, t models.ResourceType, id int64) error
	Release(ctx context.Context, t models.ResourceType, id int64) error
}

// MatchFetcher pulls matches from the upstream API and stores their games and scores.
type MatchFetcher struct {
	client    upstream.Client
	matches   matchFetchStore
	beatmaps  beatmapStubStore
	players   playerStubStore
	tracker   matchStatusWriter
	dedup     fetchReserver
	publisher messagePublisher
	tx        txProvider
	metrics   *MetricsService
	logger    *zap.Logger
}

// NewMatchFetcher wires the fetcher.
func NewMatchFetcher(
	client upstream.Client,
	matches matchFetchStore,
	beatmaps beatmapStubStore,
	players playerStubStore,
	tracker matchStatusWriter,
	dedup fetchReserver,
	publisher messagePublisher,
	tx txProvider,
	metrics *MetricsService,
	logger *zap.Logger,
) *MatchFetcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MatchFetcher{
		client:    client,
		matches:   matches,
		beatmaps:  beatmaps,
		players:   players,
		tracker:   tracker,
		dedup:     dedup,
		publisher: publisher,
		tx:        tx,
		metrics:   metrics,
		logger:    logger,
	}
}

// Fetch processes one FetchMatch message. Returned errors are transient and should be retried.
func (f *MatchFetcher) Fetch(ctx context.Context, msg models.FetchMatchMessage) error {
	osuID := msg.OsuMatchID
	reserved, err := f.dedup.TryReserve(ctx, models.ResourceMatch, osuID)
	if err != nil {
		return err
	}
	if !reserved {
		f.metrics.RecordFetch(string(models.ResourceMatch), OutcomeSkipped)
		return nil
	}

	match, err := f.matches.FindByOsuID(ctx, osuID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			f.logger.Sugar().Warnw("match not registered locally, skipping fetch", "osu_id", osuID)
			f.release(ctx, osuID)
			f.metrics.RecordFetch(string(models.ResourceMatch), OutcomeSkipped)
			return nil
		}
		return f.fail(ctx, 0, osuID, err)
	}

	if err := f.tracker.UpdateMatchFetchStatus(ctx, match.ID, models.FetchStatusFetching); err != nil {
		return f.fail(ctx, match.ID, osuID, err)
	}

	data, err := f.client.GetMatch(ctx, osuID)
	if err != nil {
		return f.fail(ctx, match.ID, osuID, err)
	}

	if data == nil {
		if err := f.tracker.UpdateMatchFetchStatus(ctx, match.ID, models.FetchStatusNotFound); err != nil {
			return f.fail(ctx, match.ID, osuID, err)
		}
		f.complete(ctx, osuID)
		f.metrics.RecordFetch(string(models.ResourceMatch), OutcomeNotFound)
		f.logger.Info("match not found upstream", zap.Int64("match_id", match.ID), zap.Int64("osu_id", osuID))
		return nil
	}

	children, err := f.store(ctx, match, data)
	if err != nil {
		return f.fail(ctx, match.ID, osuID, err)
	}
	f.publishChildren(ctx, msg.MessageMeta, children)

	if err := f.tracker.UpdateMatchFetchStatus(ctx, match.ID, models.FetchStatusFetched); err != nil {
		return f.fail(ctx, match.ID, osuID, err)
	}
	f.complete(ctx, osuID)
	f.metrics.RecordFetch(string(models.ResourceMatch), OutcomeFetched)
	return nil
}

// discovered holds the upstream ids first seen while storing a match.
type discovered struct {
	players  []int64
	beatmaps []int64
}

func (f *MatchFetcher) store(ctx context.Context, match *models.Match, data *upstream.Match) (children discovered, err error) {
	tx, err := f.tx.BeginTxx(ctx, nil)
	if err != nil {
		return children, fmt.Errorf("begin match transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	match.Name = data.Match.Name
	match.StartTime = data.Match.StartTime
	match.EndTime = data.Match.EndTime
	if err = f.matches.UpdateDetails(ctx, tx, match); err != nil {
		return children, err
	}

	playerIDs, created, err := f.players.EnsureStubs(ctx, tx, data.PlayerIDs())
	if err != nil {
		return children, err
	}
	children.players = created

	beatmapStates, err := f.beatmaps.EnsureStubs(ctx, tx, data.BeatmapIDs())
	if err != nil {
		return children, err
	}
	beatmapIDs := make(map[int64]int64, len(beatmapStates))
	for _, state := range beatmapStates {
		beatmapIDs[state.OsuID] = state.ID
		if state.FetchStatus == models.FetchStatusNotFetched {
			children.beatmaps = append(children.beatmaps, state.OsuID)
		}
	}

	upstreamGames := data.Games()
	games := make([]models.Game, 0, len(upstreamGames))
	for i := range upstreamGames {
		src := &upstreamGames[i]
		game := src.ToModel(match.ID)
		if src.BeatmapID != nil {
			if id, ok := beatmapIDs[*src.BeatmapID]; ok {
				game.BeatmapID = &id
			}
		}
		for j := range src.Scores {
			playerID, ok := playerIDs[src.Scores[j].UserID]
			if !ok {
				return children, fmt.Errorf("player %d missing after stub creation", src.Scores[j].UserID)
			}
			game.Scores = append(game.Scores, src.Scores[j].ToModel(playerID, game.Ruleset))
		}
		models.AssignPlacements(game.Scores)
		games = append(games, game)
	}

	if err = f.matches.UpsertGames(ctx, tx, games); err != nil {
		return children, err
	}
	for i := range games {
		if err = f.matches.UpsertScores(ctx, tx, games[i].Scores); err != nil {
			return children, err
		}
	}

	if cascadeRejections(match, games) {
		if err = f.matches.SaveCascade(ctx, tx, games); err != nil {
			return children, err
		}
	}

	if err = tx.Commit(); err != nil {
		return children, fmt.Errorf("commit match transaction: %w", err)
	}
	return children, nil
}

// cascadeRejections copies a rejected parent's verdict onto the stored children of match and reports
// whether anything needs to be written back.
func cascadeRejections(match *models.Match, games []models.Game) bool {
	if automation.IsRejected(match.VerificationStatus) {
		if len(games) == 0 {
			return false
		}
		holder := models.Match{VerificationStatus: match.VerificationStatus, Games: games}
		automation.CascadeMatch(&holder, match.VerificationStatus, false)
		return true
	}
	changed := false
	for i := range games {
		if automation.IsRejected(games[i].VerificationStatus) && len(games[i].Scores) > 0 {
			automation.CascadeGame(&games[i], games[i].VerificationStatus, false)
			changed = true
		}
	}
	return changed
}

func (f *MatchFetcher) publishChildren(ctx context.Context, parent models.MessageMeta, children discovered) {
	meta := models.MessageMeta{CorrelationID: parent.CorrelationID, Priority: parent.Priority}
	for _, id := range children.players {
		msg := models.FetchPlayerMessage{MessageMeta: meta, OsuPlayerID: id}
		if err := f.publisher.Publish(ctx, messaging.TopicFetchPlayer, meta, msg); err != nil {
			f.logger.Sugar().Warnw("failed to publish player fetch", "osu_id", id, "error", err)
		}
	}
	for _, id := range children.beatmaps {
		msg := models.FetchBeatmapMessage{MessageMeta: meta, OsuBeatmapID: id}
		if err := f.publisher.Publish(ctx, messaging.TopicFetchBeatmap, meta, msg); err != nil {
			f.logger.Sugar().Warnw("failed to publish beatmap fetch", "osu_id", id, "error", err)
		}
	}
}

func (f *MatchFetcher) complete(ctx context.Context, osuID int64) {
	if err := f.dedup.MarkCompleted(ctx, models.ResourceMatch, osuID); err != nil {
		f.logger.Sugar().Warnw("failed to mark match fetch completed", "osu_id", osuID, "error", err)
	}
}

func (f *MatchFetcher) release(ctx context.Context, osuID int64) {
	if err := f.dedup.Release(ctx, models.ResourceMatch, osuID); err != nil {
		f.logger.Sugar().Warnw("failed to release match reservation", "osu_id", osuID, "error", err)
	}
}

// fail records the Error status and drops the reservation even when ctx was cancelled, then returns cause.
func (f *MatchFetcher) fail(ctx context.Context, matchID, osuID int64, cause error) error {
	cleanup, cancel := context.WithTimeout(context.WithoutCancel(ctx), statusWriteTimeout)
	defer cancel()

	if matchID != 0 {
		if err := f.tracker.UpdateMatchFetchStatus(cleanup, matchID, models.FetchStatusError); err != nil {
			f.logger.Sugar().Warnw("failed to record match fetch error", "match_id", matchID, "error", err)
		}
	}
	f.release(cleanup, osuID)
	f.metrics.RecordFetch(string(models.ResourceMatch), OutcomeError)
	f.logger.Error("match fetch failed", zap.Int64("osu_id", osuID), zap.Error(cause))
	return cause
}
