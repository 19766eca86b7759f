package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/noah-isme/tourney-pipeline/internal/dto"
	"github.com/noah-isme/tourney-pipeline/internal/messaging"
	"github.com/noah-isme/tourney-pipeline/internal/models"
	"github.com/noah-isme/tourney-pipeline/internal/service"
	appErrors "github.com/noah-isme/tourney-pipeline/pkg/errors"
	"github.com/noah-isme/tourney-pipeline/pkg/jobs"
	"github.com/noah-isme/tourney-pipeline/pkg/middleware/requestid"
	"github.com/noah-isme/tourney-pipeline/pkg/response"
)

type messagePublisher interface {
	Publish(ctx context.Context, topic string, meta models.MessageMeta, payload interface{}) error
}

type completionChecker interface {
	CheckAndTrigger(ctx context.Context, tournamentID int64) (bool, error)
}

type jobEnqueuer interface {
	Enqueue(job jobs.Job) error
}

// TournamentOpsHandler lets operators kick pipeline stages for one tournament.
type TournamentOpsHandler struct {
	publisher  messagePublisher
	completion completionChecker
	stats      jobEnqueuer
}

// NewTournamentOpsHandler builds the handler.
func NewTournamentOpsHandler(publisher messagePublisher, completion completionChecker, stats jobEnqueuer) *TournamentOpsHandler {
	return &TournamentOpsHandler{publisher: publisher, completion: completion, stats: stats}
}

func tournamentIDParam(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "tournament id must be a positive integer"))
		return 0, false
	}
	return id, true
}

// RunAutomation godoc
// @Summary Queue automation checks
// @Tags Tournaments
// @Produce json
// @Param id path int true "Tournament ID"
// @Param override query bool false "Re-evaluate finalized verdicts"
// @Success 202 {object} response.Envelope
// @Router /internal/tournaments/{id}/automation-checks [post]
func (h *TournamentOpsHandler) RunAutomation(c *gin.Context) {
	id, ok := tournamentIDParam(c)
	if !ok {
		return
	}
	override := false
	if raw := c.Query("override"); raw != "" {
		parsed, err := strconv.ParseBool(raw)
		if err != nil {
			response.Error(c, appErrors.Clone(appErrors.ErrValidation, "override must be a boolean"))
			return
		}
		override = parsed
	}

	correlationID := requestid.Value(c)
	if correlationID == "" {
		correlationID = uuid.NewString()
	}
	meta := models.MessageMeta{CorrelationID: correlationID, Priority: models.PriorityHigh}
	msg := models.AutomationCheckMessage{MessageMeta: meta, TournamentID: id, OverrideFinalized: override}
	if err := h.publisher.Publish(c.Request.Context(), messaging.TopicAutomationRun, meta, msg); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrUnavailable.Code, appErrors.ErrUnavailable.Status, "failed to queue automation checks"))
		return
	}
	response.Accepted(c, dto.AutomationRunResponse{TournamentID: id, CorrelationID: correlationID, OverrideFinalized: override})
}

// CheckCompletion godoc
// @Summary Run the completion check
// @Tags Tournaments
// @Produce json
// @Param id path int true "Tournament ID"
// @Success 200 {object} response.Envelope
// @Router /internal/tournaments/{id}/completion-check [post]
func (h *TournamentOpsHandler) CheckCompletion(c *gin.Context) {
	id, ok := tournamentIDParam(c)
	if !ok {
		return
	}
	triggered, err := h.completion.CheckAndTrigger(c.Request.Context(), id)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, dto.CompletionCheckResponse{TournamentID: id, Triggered: triggered})
}

// RebuildStats godoc
// @Summary Queue a stats rebuild
// @Tags Tournaments
// @Produce json
// @Param id path int true "Tournament ID"
// @Success 202 {object} response.Envelope
// @Router /internal/tournaments/{id}/stats [post]
func (h *TournamentOpsHandler) RebuildStats(c *gin.Context) {
	id, ok := tournamentIDParam(c)
	if !ok {
		return
	}
	job := service.NewStatsJob(id)
	if err := h.stats.Enqueue(job); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrUnavailable.Code, appErrors.ErrUnavailable.Status, "failed to queue stats job"))
		return
	}
	response.Accepted(c, dto.StatsJobResponse{TournamentID: id, JobID: job.ID})
}
