// Package worker binds broker topics to the pipeline services.
package worker

import (
	"context"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/message/router/middleware"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/tourney-pipeline/internal/messaging"
	"github.com/noah-isme/tourney-pipeline/internal/models"
)

// releaseTimeout bounds the trigger release issued after an automation run.
const releaseTimeout = 5 * time.Second

type matchFetcher interface {
	Fetch(ctx context.Context, msg models.FetchMatchMessage) error
}

type beatmapFetcher interface {
	Fetch(ctx context.Context, msg models.FetchBeatmapMessage) error
}

type playerFetcher interface {
	Fetch(ctx context.Context, msg models.FetchPlayerMessage) error
}

type automationRunner interface {
	ProcessTournament(ctx context.Context, tournamentID int64, override bool) (models.VerificationSummary, error)
}

type triggerReleaser interface {
	Release(ctx context.Context, tournamentID int64) error
}

// Router is the subset of the bus consumers register against.
type Router interface {
	Handle(name, topic string, handler message.NoPublishHandlerFunc)
}

// Consumers decodes broker messages and dispatches them to the fetchers and the verification orchestrator.
type Consumers struct {
	matches    matchFetcher
	beatmaps   beatmapFetcher
	players    playerFetcher
	automation automationRunner
	tracker    triggerReleaser
	validate   *validator.Validate
	logger     *zap.Logger
}

// NewConsumers wires the consumers. A nil validator falls back to validator.New().
func NewConsumers(matches matchFetcher, beatmaps beatmapFetcher, players playerFetcher, automation automationRunner, tracker triggerReleaser, validate *validator.Validate, logger *zap.Logger) *Consumers {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Consumers{
		matches:    matches,
		beatmaps:   beatmaps,
		players:    players,
		automation: automation,
		tracker:    tracker,
		validate:   validate,
		logger:     logger,
	}
}

// Register subscribes every consumer on r.
func (c *Consumers) Register(r Router) {
	r.Handle("fetch-match", messaging.TopicFetchMatch, c.HandleFetchMatch)
	r.Handle("fetch-beatmap", messaging.TopicFetchBeatmap, c.HandleFetchBeatmap)
	r.Handle("fetch-player", messaging.TopicFetchPlayer, c.HandleFetchPlayer)
	r.Handle("automation-run", messaging.TopicAutomationRun, c.HandleAutomationRun)
}

// decode reports false for payloads that can never succeed. Those are acked and dropped
// instead of cycling through retries.
func (c *Consumers) decode(msg *message.Message, v interface{}) bool {
	if err := messaging.Decode(msg, v); err != nil {
		c.logger.Error("dropping undecodable message", zap.String("message_id", msg.UUID), zap.Error(err))
		return false
	}
	if err := c.validate.Struct(v); err != nil {
		c.logger.Error("dropping invalid message",
			zap.String("message_id", msg.UUID),
			zap.String("correlation_id", middleware.MessageCorrelationID(msg)),
			zap.Error(err))
		return false
	}
	return true
}

func (c *Consumers) HandleFetchMatch(msg *message.Message) error {
	var payload models.FetchMatchMessage
	if !c.decode(msg, &payload) {
		return nil
	}
	return c.matches.Fetch(msg.Context(), payload)
}

func (c *Consumers) HandleFetchBeatmap(msg *message.Message) error {
	var payload models.FetchBeatmapMessage
	if !c.decode(msg, &payload) {
		return nil
	}
	return c.beatmaps.Fetch(msg.Context(), payload)
}

func (c *Consumers) HandleFetchPlayer(msg *message.Message) error {
	var payload models.FetchPlayerMessage
	if !c.decode(msg, &payload) {
		return nil
	}
	return c.players.Fetch(msg.Context(), payload)
}

// HandleAutomationRun runs verification for one tournament. Runs published by the completion tracker
// clear the pending trigger on every exit path, otherwise the tournament could never be triggered again.
// Operator runs never held the trigger and leave it alone.
func (c *Consumers) HandleAutomationRun(msg *message.Message) error {
	var payload models.AutomationCheckMessage
	if !c.decode(msg, &payload) {
		return nil
	}
	ctx := msg.Context()
	if payload.ReleaseTrigger {
		defer c.release(ctx, payload.TournamentID)
	}

	summary, err := c.automation.ProcessTournament(ctx, payload.TournamentID, payload.OverrideFinalized)
	if err != nil {
		c.logger.Sugar().Warnw("automation run failed",
			"tournament_id", payload.TournamentID,
			"correlation_id", payload.CorrelationID,
			"error", err)
		return err
	}
	c.logger.Info("automation run finished",
		zap.Int64("tournament_id", payload.TournamentID),
		zap.String("correlation_id", payload.CorrelationID),
		zap.Stringer("status", summary.Tournament),
		zap.Bool("skipped", summary.Skipped))
	return nil
}

func (c *Consumers) release(ctx context.Context, tournamentID int64) {
	releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), releaseTimeout)
	defer cancel()
	if err := c.tracker.Release(releaseCtx, tournamentID); err != nil {
		c.logger.Error("failed to release automation trigger",
			zap.Int64("tournament_id", tournamentID), zap.Error(err))
	}
}

// WatchPoison logs every message the router gave up on until ctx ends or the channel closes.
func (c *Consumers) WatchPoison(ctx context.Context, messages <-chan *message.Message) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-messages:
			if !ok {
				return
			}
			c.logger.Error("message poisoned",
				zap.String("message_id", msg.UUID),
				zap.String("correlation_id", middleware.MessageCorrelationID(msg)),
				zap.String("topic", msg.Metadata.Get(middleware.PoisonedTopicKey)),
				zap.String("handler", msg.Metadata.Get(middleware.PoisonedHandlerKey)),
				zap.String("reason", msg.Metadata.Get(middleware.ReasonForPoisonedKey)))
			msg.Ack()
		}
	}
}
